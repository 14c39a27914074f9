package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"yomu/internal/domain"
)

// Bucket names
var (
	bucketCache    = []byte("cache")
	bucketQueue    = []byte("queue")
	bucketLibrary  = []byte("library")
	bucketSnapshot = []byte("snapshot")
	bucketPrefs    = []byte("prefs")
	bucketLedger   = []byte("ledger")
)

// cacheEntry is the persisted envelope for one cached response.
type cacheEntry struct {
	Value     json.RawMessage `json:"value"`
	ExpiresAt int64           `json:"expiresAt"`
}

func (e cacheEntry) expired(now time.Time) bool {
	return now.UnixMilli() >= e.ExpiresAt
}

// Store implements domain.Store using BoltDB plus a volatile in-process
// tier. Reads fall back volatile -> durable, promoting on a durable hit.
type Store struct {
	db     *bolt.DB
	logger *slog.Logger

	mu  sync.RWMutex
	hot map[string][]byte // volatile tier, keyed bucket:key

	memQueue []domain.OfflineMutation // queue storage in memory-only mode
}

// New opens the store under baseDir. An empty baseDir yields a memory-only
// store (no persistence), which tests use.
func New(baseDir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if baseDir == "" {
		return &Store{hot: make(map[string][]byte), logger: logger}, nil
	}

	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(baseDir, "yomu.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketCache, bucketQueue, bucketLibrary, bucketSnapshot, bucketPrefs, bucketLedger} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, hot: make(map[string][]byte), logger: logger}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// === Generic helpers ===

func (s *Store) get(bucket []byte, key string, dest any) bool {
	hotKey := string(bucket) + ":" + key

	// Check volatile tier first
	s.mu.RLock()
	if data, ok := s.hot[hotKey]; ok {
		s.mu.RUnlock()
		return json.Unmarshal(data, dest) == nil
	}
	s.mu.RUnlock()

	if s.db == nil {
		return false
	}

	// Read from BoltDB
	var data []byte
	s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})

	if data == nil {
		return false
	}

	if err := json.Unmarshal(data, dest); err != nil {
		// Corrupt durable record: treat as absent and purge
		s.logger.Warn("purging corrupt record", "bucket", string(bucket), "key", key, "error", err)
		s.delete(bucket, key)
		return false
	}

	// Promote to volatile tier
	s.mu.Lock()
	s.hot[hotKey] = data
	s.mu.Unlock()

	return true
}

func (s *Store) set(bucket []byte, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	hotKey := string(bucket) + ":" + key

	s.mu.Lock()
	s.hot[hotKey] = data
	s.mu.Unlock()

	if s.db == nil {
		return nil // Memory-only mode
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		return b.Put([]byte(key), data)
	})
}

func (s *Store) delete(bucket []byte, key string) {
	hotKey := string(bucket) + ":" + key

	s.mu.Lock()
	delete(s.hot, hotKey)
	s.mu.Unlock()

	if s.db == nil {
		return
	}

	s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b != nil {
			b.Delete([]byte(key))
		}
		return nil
	})
}

func (s *Store) deletePrefix(bucket []byte, prefix string) {
	s.mu.Lock()
	hotPrefix := string(bucket) + ":" + prefix
	for k := range s.hot {
		if strings.HasPrefix(k, hotPrefix) {
			delete(s.hot, k)
		}
	}
	s.mu.Unlock()

	if s.db == nil {
		return
	}

	s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		prefixBytes := []byte(prefix)
		for k, _ := c.Seek(prefixBytes); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// === Tiered response cache ===

// GetCache returns the cached value for a request fingerprint if present
// and unexpired. An expired entry is evicted from both tiers on read.
func (s *Store) GetCache(fingerprint string, dest any) bool {
	var entry cacheEntry
	if !s.get(bucketCache, fingerprint, &entry) {
		return false
	}
	if entry.expired(time.Now()) {
		s.delete(bucketCache, fingerprint)
		return false
	}
	return json.Unmarshal(entry.Value, dest) == nil
}

// SetCache writes a value with the given TTL into both tiers.
func (s *Store) SetCache(fingerprint string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	entry := cacheEntry{
		Value:     data,
		ExpiresAt: time.Now().Add(ttl).UnixMilli(),
	}
	return s.set(bucketCache, fingerprint, entry)
}

// InvalidateCache evicts every cache entry whose fingerprint starts with
// prefix. An empty prefix clears the whole cache.
func (s *Store) InvalidateCache(prefix string) {
	s.deletePrefix(bucketCache, prefix)
}

// === Offline mutation queue ===

// AppendMutation appends a pending write to the durable queue.
func (s *Store) AppendMutation(m domain.OfflineMutation) error {
	if s.db == nil {
		s.mu.Lock()
		s.memQueue = append(s.memQueue, m)
		s.mu.Unlock()
		return nil
	}

	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketQueue)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return b.Put(key, data)
	})
}

// DrainMutations atomically snapshots the queue in FIFO order and persists
// it as empty, so a crash mid-replay cannot cause duplicate replays.
// Records that fail to decode are dropped.
func (s *Store) DrainMutations() []domain.OfflineMutation {
	if s.db == nil {
		s.mu.Lock()
		drained := s.memQueue
		s.memQueue = nil
		s.mu.Unlock()
		return drained
	}

	var drained []domain.OfflineMutation
	s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketQueue)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var m domain.OfflineMutation
			if err := json.Unmarshal(v, &m); err != nil {
				s.logger.Warn("dropping corrupt queued mutation", "error", err)
			} else {
				drained = append(drained, m)
			}
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	return drained
}

// QueueLen returns the number of pending mutations.
func (s *Store) QueueLen() int {
	if s.db == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return len(s.memQueue)
	}

	n := 0
	s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketQueue).Stats().KeyN
		return nil
	})
	return n
}

// === Library snapshot ===

func (s *Store) GetLibrary() ([]domain.LibraryEntry, bool) {
	var entries []domain.LibraryEntry
	ok := s.get(bucketLibrary, "list", &entries)
	return entries, ok
}

func (s *Store) SaveLibrary(entries []domain.LibraryEntry) error {
	return s.set(bucketLibrary, "list", entries)
}

// === Last-read snapshot ===

func (s *Store) GetSnapshot() (domain.LastReadSnapshot, bool) {
	var snap domain.LastReadSnapshot
	ok := s.get(bucketSnapshot, "last", &snap)
	return snap, ok
}

func (s *Store) SaveSnapshot(snap domain.LastReadSnapshot) error {
	return s.set(bucketSnapshot, "last", snap)
}

func (s *Store) ClearSnapshot() {
	s.delete(bucketSnapshot, "last")
}

// === Per-title reader preferences ===

func (s *Store) GetPrefs(key string) (domain.ReaderPrefs, bool) {
	var prefs domain.ReaderPrefs
	ok := s.get(bucketPrefs, key, &prefs)
	return prefs, ok
}

func (s *Store) SavePrefs(key string, prefs domain.ReaderPrefs) error {
	return s.set(bucketPrefs, key, prefs)
}

// === Reading-time ledger ===

func (s *Store) AddLedger(date string, minutes, pages int) error {
	var day domain.DayLedger
	s.get(bucketLedger, date, &day)
	day.Minutes += minutes
	day.Pages += pages
	return s.set(bucketLedger, date, day)
}

func (s *Store) GetLedger(date string) (domain.DayLedger, bool) {
	var day domain.DayLedger
	ok := s.get(bucketLedger, date, &day)
	return day, ok
}
