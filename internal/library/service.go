// Package library owns the canonical in-memory library and the
// synchronization engine around it: key reconciliation, dual online/offline
// write paths, offline queue replay, and cache-first chapter fetching.
package library

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"yomu/internal/coordinator"
	"yomu/internal/domain"
	"yomu/internal/store"
)

// Service is the synchronization engine. It is constructed once at startup
// and passed by reference to all callers; it owns the shared library slice,
// the store, and the connectivity flag.
type Service struct {
	client domain.Client
	store  domain.Store
	coord  *coordinator.Coordinator
	logger *slog.Logger

	mu      sync.RWMutex
	entries []domain.LibraryEntry
	online  bool
}

// NewService creates the engine and loads the persisted library snapshot as
// the offline-read fallback.
func NewService(client domain.Client, store domain.Store, coord *coordinator.Coordinator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		client: client,
		store:  store,
		coord:  coord,
		logger: logger,
		online: true,
	}
	if entries, ok := store.GetLibrary(); ok {
		s.entries = entries
	}
	return s
}

// Online reports the current connectivity assumption.
func (s *Service) Online() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.online
}

// SetOnline flips the connectivity flag. Coming back online replays the
// offline mutation queue.
func (s *Service) SetOnline(ctx context.Context, online bool) {
	s.mu.Lock()
	wasOnline := s.online
	s.online = online
	s.mu.Unlock()

	if online && !wasOnline {
		s.logger.Info("connectivity restored, flushing offline queue")
		s.Flush(ctx)
	}
}

// Entries returns a copy of the library.
func (s *Service) Entries() []domain.LibraryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.LibraryEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Entry returns the library entry for a key.
func (s *Service) Entry(key string) (domain.LibraryEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.Key == key {
			return e, true
		}
	}
	return domain.LibraryEntry{}, false
}

// Add creates a library entry for a title: remotely while online, locally
// plus queued while offline. Adding an already-tracked key is a no-op
// upsert, never a duplicate row.
func (s *Service) Add(ctx context.Context, ref domain.TitleRef) error {
	now := time.Now()
	entry := domain.LibraryEntry{
		Key:               ref.Key(),
		TitleID:           ref.TitleID,
		Source:            ref.Source,
		Title:             ref.Title,
		Cover:             ref.Cover,
		Status:            domain.StatusReading,
		AddedAt:           now.UnixMilli(),
		ExternalCatalogID: ref.ExternalCatalogID,
	}

	s.upsert(entry)
	s.persist()

	// The orphan last-read snapshot is obsolete once its title is tracked.
	if snap, ok := s.store.GetSnapshot(); ok && domain.EntryKey(snap.Source, snap.TitleID) == entry.Key {
		s.store.ClearSnapshot()
	}

	if !s.Online() {
		s.enqueue(domain.MutationAddToLibrary, domain.AddPayload{Entry: entry})
		return nil
	}

	err := s.coord.Once(ctx, "library.add", func(ctx context.Context) error {
		return s.client.AddToLibrary(ctx, entry)
	})
	if err != nil && !coordinator.IsCanceled(err) {
		if errors.Is(err, domain.ErrServerOffline) {
			s.goOffline(domain.MutationAddToLibrary, domain.AddPayload{Entry: entry})
			return nil
		}
		s.logger.Warn("remote add failed, entry kept locally", "key", entry.Key, "error", err)
		return err
	}
	return nil
}

// SetStatus changes an entry's reading status through the dual
// online/offline write path.
func (s *Service) SetStatus(ctx context.Context, key string, status domain.ReadingStatus) error {
	s.mu.Lock()
	found := false
	for i := range s.entries {
		if s.entries[i].Key == key {
			s.entries[i].Status = status
			found = true
			break
		}
	}
	s.mu.Unlock()
	if !found {
		return domain.ErrNotFound
	}
	s.persist()
	// Listing TTLs depend on status; drop cached envelopes so the next
	// fetch re-caches under the new policy.
	s.store.InvalidateCache(store.PrefixChapters)

	if !s.Online() {
		s.enqueue(domain.MutationUpdateStatus, domain.StatusPayload{Key: key, Status: status})
		return nil
	}

	err := s.coord.Once(ctx, "library.status", func(ctx context.Context) error {
		return s.client.UpdateStatus(ctx, key, status)
	})
	if err != nil && !coordinator.IsCanceled(err) {
		if errors.Is(err, domain.ErrServerOffline) {
			s.goOffline(domain.MutationUpdateStatus, domain.StatusPayload{Key: key, Status: status})
			return nil
		}
		s.logger.Warn("remote status update failed", "key", key, "error", err)
		return err
	}
	return nil
}

// Remove deletes an entry: locally if offline (plus queued remote delete),
// remotely otherwise.
func (s *Service) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.Key != key {
			kept = append(kept, e)
		}
	}
	s.entries = kept
	s.mu.Unlock()
	s.persist()

	if !s.Online() {
		s.enqueue(domain.MutationRemoveFromLibrary, domain.RemovePayload{Key: key})
		return nil
	}

	err := s.coord.Once(ctx, "library.remove", func(ctx context.Context) error {
		return s.client.RemoveFromLibrary(ctx, key)
	})
	if err != nil && !coordinator.IsCanceled(err) {
		if errors.Is(err, domain.ErrServerOffline) {
			s.goOffline(domain.MutationRemoveFromLibrary, domain.RemovePayload{Key: key})
			return nil
		}
		s.logger.Warn("remote remove failed", "key", key, "error", err)
		return err
	}
	return nil
}

// goOffline records a connectivity loss discovered by a write path: the
// client flips offline and the failed mutation joins the queue, so the
// caller sees the same soft-success an offline write would have produced.
func (s *Service) goOffline(t domain.MutationType, payload any) {
	s.mu.Lock()
	wasOnline := s.online
	s.online = false
	s.mu.Unlock()

	if wasOnline {
		s.logger.Warn("server unreachable, switching offline")
	}
	s.enqueue(t, payload)
}

// RekeyEntry rewrites an entry's identity in place after an ambiguous
// aggregator reference resolved to a concrete source. The key is rewritten,
// never duplicated.
func (s *Service) RekeyEntry(oldKey string, source, titleID string) {
	s.mu.Lock()
	for i := range s.entries {
		if s.entries[i].Key == oldKey {
			s.entries[i].Source = source
			s.entries[i].TitleID = titleID
			s.entries[i].Key = domain.EntryKey(source, titleID)
			break
		}
	}
	s.mu.Unlock()
	s.persist()
}

// PullLibrary replaces the local library with the server-held one
// (last reconciliation wins).
func (s *Service) PullLibrary(ctx context.Context) error {
	var entries []domain.LibraryEntry
	err := s.coord.Retry(ctx, "library.pull", func(ctx context.Context) error {
		var err error
		entries, err = s.client.FetchLibrary(ctx)
		return err
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
	s.persist()
	s.logger.Info("pulled library", "count", len(entries))
	// A successful pull proves the server is reachable again.
	s.SetOnline(ctx, true)
	return nil
}

// PushLibrary uploads the local library as the cloud snapshot
// (last write wins).
func (s *Service) PushLibrary(ctx context.Context) error {
	entries := s.Entries()
	return s.coord.Retry(ctx, "library.push", func(ctx context.Context) error {
		return s.client.PushLibrary(ctx, entries)
	})
}

// Snapshot returns the last-read snapshot, if one exists.
func (s *Service) Snapshot() (domain.LastReadSnapshot, bool) {
	return s.store.GetSnapshot()
}

// Prefs returns the persisted reader preferences for a library key.
func (s *Service) Prefs(key string) (domain.ReaderPrefs, bool) {
	return s.store.GetPrefs(key)
}

// SavePrefs persists reader preferences for a library key.
func (s *Service) SavePrefs(key string, prefs domain.ReaderPrefs) {
	if err := s.store.SavePrefs(key, prefs); err != nil {
		s.logger.Warn("failed to save reader prefs", "key", key, "error", err)
	}
}

// TodayLedger returns the current day's reading-time bucket.
func (s *Service) TodayLedger() (domain.DayLedger, bool) {
	return s.store.GetLedger(domain.LedgerDate(time.Now()))
}

// upsert inserts or replaces an entry by key.
func (s *Service) upsert(entry domain.LibraryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].Key == entry.Key {
			// Keep progress fields accumulated so far.
			entry.LastReadAt = s.entries[i].LastReadAt
			entry.LastChapterLabel = s.entries[i].LastChapterLabel
			entry.LastChapterID = s.entries[i].LastChapterID
			entry.LastPage = s.entries[i].LastPage
			entry.LastPageTotal = s.entries[i].LastPageTotal
			s.entries[i] = entry
			return
		}
	}
	s.entries = append(s.entries, entry)
}

// persist writes the library snapshot used as the offline-read fallback.
// Persistence failures are logged, never surfaced.
func (s *Service) persist() {
	if err := s.store.SaveLibrary(s.Entries()); err != nil {
		s.logger.Warn("failed to persist library snapshot", "error", err)
	}
}
