package library

import (
	"context"
	"errors"
	"time"

	"yomu/internal/coordinator"
	"yomu/internal/domain"
	"yomu/internal/merge"
)

// SaveProgress persists reading progress. With an empty key (no library
// membership) only the last-read snapshot is written. Otherwise the local
// entry is updated optimistically and the remote call follows: directly
// while online, via the offline queue otherwise. Both paths leave the
// in-memory entry in the same state. A failed remote call is never rolled
// back; the snapshot doubles as a safety net so progress is not silently
// lost.
func (s *Service) SaveProgress(ctx context.Context, key string, ref domain.TitleRef, p domain.ProgressPayload) error {
	now := time.Now()

	if key == "" {
		s.saveSnapshot(ref, p, now)
		return nil
	}
	p.Key = key

	s.applyProgress(key, p, now)
	s.persist()

	if !s.Online() {
		s.enqueue(domain.MutationUpdateProgress, p)
		return nil
	}

	err := s.coord.Once(ctx, "library.progress", func(ctx context.Context) error {
		return s.client.UpdateProgress(ctx, key, p)
	})
	if err != nil && !coordinator.IsCanceled(err) {
		if errors.Is(err, domain.ErrServerOffline) {
			s.goOffline(domain.MutationUpdateProgress, p)
			return nil
		}
		s.logger.Warn("remote progress update failed, keeping local state", "key", key, "error", err)
		s.saveSnapshot(ref, p, now)
	}
	return nil
}

// MarkAllRead resolves the title's last chapter and performs the same dual
// online/offline progress update plus a completed status change.
func (s *Service) MarkAllRead(ctx context.Context, key string, ref domain.TitleRef, records []domain.ChapterRecord) error {
	last, ok := merge.LastChapter(records)
	if !ok {
		return domain.ErrNotFound
	}

	if err := s.SaveProgress(ctx, key, ref, domain.ProgressPayload{
		ChapterLabel:  last.Label(),
		ChapterID:     last.ID,
		TotalChapters: len(records),
	}); err != nil {
		return err
	}
	return s.SetStatus(ctx, key, domain.StatusCompleted)
}

// RecordSession folds a closed reading session into the day-bucketed
// reading-time ledger and appends a history record.
func (s *Service) RecordSession(ctx context.Context, rec domain.HistoryRecord, minutes, pages int) {
	if minutes > 0 || pages > 0 {
		date := domain.LedgerDate(time.Now())
		if err := s.store.AddLedger(date, minutes, pages); err != nil {
			s.logger.Warn("failed to update reading ledger", "error", err)
		}
	}

	if !s.Online() {
		s.enqueue(domain.MutationRecordHistory, domain.HistoryPayload{Record: rec})
		return
	}

	err := s.coord.Once(ctx, "history.append", func(ctx context.Context) error {
		return s.client.RecordHistory(ctx, rec)
	})
	if err != nil && !coordinator.IsCanceled(err) {
		if errors.Is(err, domain.ErrServerOffline) {
			s.goOffline(domain.MutationRecordHistory, domain.HistoryPayload{Record: rec})
			return
		}
		s.logger.Warn("failed to append history", "error", err)
	}
}

// applyProgress mutates the in-memory entry for key.
func (s *Service) applyProgress(key string, p domain.ProgressPayload, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].Key != key {
			continue
		}
		s.entries[i].LastChapterLabel = p.ChapterLabel
		s.entries[i].LastChapterID = p.ChapterID
		s.entries[i].LastPage = p.Page
		s.entries[i].LastPageTotal = p.PageTotal
		if p.TotalChapters > 0 {
			s.entries[i].TotalChapters = p.TotalChapters
		}
		s.entries[i].LastReadAt = now.UnixMilli()
		return
	}
}

func (s *Service) saveSnapshot(ref domain.TitleRef, p domain.ProgressPayload, now time.Time) {
	snap := domain.LastReadSnapshot{
		TitleID:      ref.TitleID,
		Source:       ref.Source,
		Title:        ref.Title,
		Cover:        ref.Cover,
		ChapterLabel: p.ChapterLabel,
		ChapterID:    p.ChapterID,
		Page:         p.Page,
		PageTotal:    p.PageTotal,
		SavedAt:      now.UnixMilli(),
	}
	if err := s.store.SaveSnapshot(snap); err != nil {
		s.logger.Warn("failed to save last-read snapshot", "error", err)
	}
}
