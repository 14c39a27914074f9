package library

import (
	"context"
	"encoding/json"
	"time"

	"yomu/internal/domain"
)

// enqueue appends a pending write to the durable offline queue. Queueing
// failures are logged, never surfaced: the optimistic local mutation has
// already been applied.
func (s *Service) enqueue(t domain.MutationType, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to encode offline mutation", "type", t, "error", err)
		return
	}
	m := domain.OfflineMutation{
		Type:     t,
		Payload:  data,
		QueuedAt: time.Now().UnixMilli(),
	}
	if err := s.store.AppendMutation(m); err != nil {
		s.logger.Error("failed to queue offline mutation", "type", t, "error", err)
		return
	}
	s.logger.Debug("queued offline mutation", "type", t)
}

// Flush replays the offline queue. It is a no-op unless connectivity is
// available and the queue is non-empty. The durable queue is snapshotted
// and cleared before any network call, so a crash mid-flush cannot replay
// the same mutations twice. Mutations replay sequentially in original
// order; a failing mutation is logged and dropped rather than re-queued
// (at-most-once, avoiding poison-message livelock).
func (s *Service) Flush(ctx context.Context) {
	if !s.Online() || s.store.QueueLen() == 0 {
		return
	}

	pending := s.store.DrainMutations()
	if len(pending) == 0 {
		return
	}
	s.logger.Info("replaying offline queue", "count", len(pending))

	for _, m := range pending {
		if err := s.replay(ctx, m); err != nil {
			s.logger.Warn("dropping failed offline mutation", "type", m.Type, "error", err)
		}
	}
}

// replay executes one queued mutation's corresponding API call.
func (s *Service) replay(ctx context.Context, m domain.OfflineMutation) error {
	switch m.Type {
	case domain.MutationAddToLibrary:
		var p domain.AddPayload
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			return err
		}
		return s.client.AddToLibrary(ctx, p.Entry)

	case domain.MutationUpdateStatus:
		var p domain.StatusPayload
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			return err
		}
		return s.client.UpdateStatus(ctx, p.Key, p.Status)

	case domain.MutationUpdateProgress:
		var p domain.ProgressPayload
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			return err
		}
		return s.client.UpdateProgress(ctx, p.Key, p)

	case domain.MutationRemoveFromLibrary:
		var p domain.RemovePayload
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			return err
		}
		return s.client.RemoveFromLibrary(ctx, p.Key)

	case domain.MutationRecordHistory:
		var p domain.HistoryPayload
		if err := json.Unmarshal(m.Payload, &p); err != nil {
			return err
		}
		return s.client.RecordHistory(ctx, p.Record)

	default:
		s.logger.Warn("unknown queued mutation type", "type", m.Type)
		return nil
	}
}
