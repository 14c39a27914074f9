package domain

import (
	"context"
	"time"
)

// ChapterRequest asks the remote service for a title's chapter listing from
// one source. Either Source or ExternalCatalogID identifies the title; when
// only the catalog id is known the service resolves it and reports the
// concrete identity back in ChapterPage.
type ChapterRequest struct {
	TitleID           string
	Source            string
	ExternalCatalogID string
	Offset            int
	Limit             int
}

// ChapterPage is one page of a chapter listing. ResolvedSourceID and
// ResolvedTitleID, when non-empty, must overwrite the caller's working
// title identity.
type ChapterPage struct {
	Chapters         []RawChapter
	Total            int
	ResolvedSourceID string
	ResolvedTitleID  string
}

// Client is the remote HTTP/JSON collaborator.
type Client interface {
	Search(ctx context.Context, query string) ([]TitleRef, error)
	Similar(ctx context.Context, titleID string) ([]TitleRef, error)
	Chapters(ctx context.Context, req ChapterRequest) (ChapterPage, error)
	Pages(ctx context.Context, chapterID, source string) ([]Page, error)

	FetchLibrary(ctx context.Context) ([]LibraryEntry, error)
	PushLibrary(ctx context.Context, entries []LibraryEntry) error
	AddToLibrary(ctx context.Context, entry LibraryEntry) error
	UpdateStatus(ctx context.Context, key string, status ReadingStatus) error
	UpdateProgress(ctx context.Context, key string, p ProgressPayload) error
	RemoveFromLibrary(ctx context.Context, key string) error

	RecordHistory(ctx context.Context, rec HistoryRecord) error
	SourceHealth(ctx context.Context) (map[string]bool, error)
}

// Store handles local durable state (BoltDB + memory).
type Store interface {
	// === Tiered response cache ===
	GetCache(fingerprint string, dest any) bool
	SetCache(fingerprint string, value any, ttl time.Duration) error
	InvalidateCache(prefix string)

	// === Offline mutation queue ===
	AppendMutation(m OfflineMutation) error
	DrainMutations() []OfflineMutation
	QueueLen() int

	// === Library snapshot (offline-read fallback) ===
	GetLibrary() ([]LibraryEntry, bool)
	SaveLibrary(entries []LibraryEntry) error

	// === Last-read snapshot ===
	GetSnapshot() (LastReadSnapshot, bool)
	SaveSnapshot(s LastReadSnapshot) error
	ClearSnapshot()

	// === Per-title reader preferences ===
	GetPrefs(key string) (ReaderPrefs, bool)
	SavePrefs(key string, p ReaderPrefs) error

	// === Reading-time ledger ===
	AddLedger(date string, minutes, pages int) error
	GetLedger(date string) (DayLedger, bool)

	Close() error
}
