package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"yomu/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCache_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SetCache("search:q=naruto", []string{"a", "b"}, time.Minute))

	var got []string
	require.True(t, s.GetCache("search:q=naruto", &got))
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestCache_ExpiredEntryNeverReturned(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SetCache("chapters:src:1", "payload", -time.Second))

	var got string
	assert.False(t, s.GetCache("chapters:src:1", &got))
	// Evicted on the expired read; a second read must also miss.
	assert.False(t, s.GetCache("chapters:src:1", &got))
}

func TestCache_DurablePromotionAfterRestart(t *testing.T) {
	dir := t.TempDir()

	s1, err := New(dir, nil)
	require.NoError(t, err)
	require.NoError(t, s1.SetCache("pages:src:ch1", []int{1, 2, 3}, time.Hour))
	require.NoError(t, s1.Close())

	// A fresh store has an empty volatile tier; the durable tier serves
	// the read and promotes it.
	s2, err := New(dir, nil)
	require.NoError(t, err)
	defer s2.Close()

	var got []int
	require.True(t, s2.GetCache("pages:src:ch1", &got))
	assert.Equal(t, []int{1, 2, 3}, got)

	s2.mu.RLock()
	_, promoted := s2.hot["cache:pages:src:ch1"]
	s2.mu.RUnlock()
	assert.True(t, promoted)
}

func TestCache_CorruptDurableRecordIsPurged(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, nil)
	require.NoError(t, err)
	defer s.Close()

	// Write garbage directly to the durable tier.
	require.NoError(t, s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCache).Put([]byte("search:q=x"), []byte("{not json"))
	}))

	var got string
	assert.False(t, s.GetCache("search:q=x", &got))

	// The corrupt record must be gone after the failed read.
	s.db.View(func(tx *bolt.Tx) error {
		assert.Nil(t, tx.Bucket(bucketCache).Get([]byte("search:q=x")))
		return nil
	})
}

func TestCache_InvalidatePrefix(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SetCache("chapters:src:1", "a", time.Hour))
	require.NoError(t, s.SetCache("chapters:src:2", "b", time.Hour))
	require.NoError(t, s.SetCache("search:q=x", "c", time.Hour))

	s.InvalidateCache("chapters:")

	var got string
	assert.False(t, s.GetCache("chapters:src:1", &got))
	assert.False(t, s.GetCache("chapters:src:2", &got))
	assert.True(t, s.GetCache("search:q=x", &got))
}

func TestQueue_DrainIsOrderedAndAtomic(t *testing.T) {
	s := newTestStore(t)

	for _, key := range []string{"src:1", "src:2", "src:3"} {
		payload, err := json.Marshal(domain.RemovePayload{Key: key})
		require.NoError(t, err)
		require.NoError(t, s.AppendMutation(domain.OfflineMutation{
			Type:     domain.MutationRemoveFromLibrary,
			Payload:  payload,
			QueuedAt: time.Now().UnixMilli(),
		}))
	}
	assert.Equal(t, 3, s.QueueLen())

	drained := s.DrainMutations()
	require.Len(t, drained, 3)
	for i, key := range []string{"src:1", "src:2", "src:3"} {
		var p domain.RemovePayload
		require.NoError(t, json.Unmarshal(drained[i].Payload, &p))
		assert.Equal(t, key, p.Key)
	}

	// The durable queue is already empty: a second drain replays nothing.
	assert.Equal(t, 0, s.QueueLen())
	assert.Empty(t, s.DrainMutations())
}

func TestQueue_SurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	s1, err := New(dir, nil)
	require.NoError(t, err)

	payload, err := json.Marshal(domain.StatusPayload{Key: "src:1", Status: domain.StatusCompleted})
	require.NoError(t, err)
	require.NoError(t, s1.AppendMutation(domain.OfflineMutation{
		Type:    domain.MutationUpdateStatus,
		Payload: payload,
	}))
	require.NoError(t, s1.Close())

	s2, err := New(dir, nil)
	require.NoError(t, err)
	defer s2.Close()

	drained := s2.DrainMutations()
	require.Len(t, drained, 1)
	assert.Equal(t, domain.MutationUpdateStatus, drained[0].Type)
}

func TestLibrarySnapshotAndPrefs(t *testing.T) {
	s := newTestStore(t)

	_, ok := s.GetLibrary()
	assert.False(t, ok)

	entries := []domain.LibraryEntry{{Key: "src:1", TitleID: "1", Source: "src", Title: "Alpha"}}
	require.NoError(t, s.SaveLibrary(entries))

	got, ok := s.GetLibrary()
	require.True(t, ok)
	assert.Equal(t, entries, got)

	prefs := domain.ReaderPrefs{Direction: domain.DirectionRTL, SpreadMode: true}
	require.NoError(t, s.SavePrefs("src:1", prefs))
	gotPrefs, ok := s.GetPrefs("src:1")
	require.True(t, ok)
	assert.Equal(t, prefs, gotPrefs)
}

func TestLedger_Accumulates(t *testing.T) {
	s := newTestStore(t)

	date := domain.LedgerDate(time.Now())
	require.NoError(t, s.AddLedger(date, 5, 12))
	require.NoError(t, s.AddLedger(date, 3, 8))

	day, ok := s.GetLedger(date)
	require.True(t, ok)
	assert.Equal(t, domain.DayLedger{Minutes: 8, Pages: 20}, day)
}

func TestFingerprint_Deterministic(t *testing.T) {
	a := Fingerprint(PrefixChapters, map[string]string{"source": "src", "title": "42"})
	b := Fingerprint(PrefixChapters, map[string]string{"title": "42", "source": "src"})
	assert.Equal(t, a, b)
	assert.Equal(t, "chapters:source=src&title=42", a)
}
