package domain

import (
	"fmt"
	"strings"
	"time"
)

// ReadingStatus tracks where a title sits in the user's library.
type ReadingStatus string

const (
	StatusReading    ReadingStatus = "reading"
	StatusCompleted  ReadingStatus = "completed"
	StatusPlanToRead ReadingStatus = "plan_to_read"
	StatusOnHold     ReadingStatus = "on_hold"
	StatusDropped    ReadingStatus = "dropped"
)

// String returns a human-readable representation of the reading status.
func (s ReadingStatus) String() string {
	switch s {
	case StatusReading:
		return "Reading"
	case StatusCompleted:
		return "Completed"
	case StatusPlanToRead:
		return "Plan to Read"
	case StatusOnHold:
		return "On Hold"
	case StatusDropped:
		return "Dropped"
	default:
		return "Unknown"
	}
}

// ReadDirection is the page navigation direction for the reader.
type ReadDirection string

const (
	DirectionLTR ReadDirection = "ltr"
	DirectionRTL ReadDirection = "rtl"
)

// EntryKey builds the canonical library key for a source/title pair.
func EntryKey(source, titleID string) string {
	return source + ":" + titleID
}

// TitleRef identifies a title as known so far. Source may still be an
// aggregator identity until the chapter listing resolves it to a concrete
// source (see ChapterPage.ResolvedSourceID).
type TitleRef struct {
	TitleID           string `json:"titleId"`
	Source            string `json:"source"`
	Title             string `json:"title"`
	Cover             string `json:"cover,omitempty"`
	ExternalCatalogID string `json:"externalCatalogId,omitempty"`
}

// Key returns the library key for the ref's current identity.
func (r TitleRef) Key() string {
	return EntryKey(r.Source, r.TitleID)
}

// LibraryEntry is one tracked title in the user's library.
type LibraryEntry struct {
	Key               string        `json:"key"`
	TitleID           string        `json:"titleId"`
	Source            string        `json:"source"`
	Title             string        `json:"title"`
	Cover             string        `json:"cover,omitempty"`
	Status            ReadingStatus `json:"status"`
	AddedAt           int64         `json:"addedAt"`
	LastReadAt        int64         `json:"lastReadAt,omitempty"`
	LastChapterLabel  string        `json:"lastChapterLabel,omitempty"`
	LastChapterID     string        `json:"lastChapterId,omitempty"`
	LastPage          int           `json:"lastPage,omitempty"`
	LastPageTotal     int           `json:"lastPageTotal,omitempty"`
	TotalChapters     int           `json:"totalChapters,omitempty"`
	ExternalCatalogID string        `json:"externalCatalogId,omitempty"`
}

// Ref returns a TitleRef for the entry.
func (e LibraryEntry) Ref() TitleRef {
	return TitleRef{
		TitleID:           e.TitleID,
		Source:            e.Source,
		Title:             e.Title,
		Cover:             e.Cover,
		ExternalCatalogID: e.ExternalCatalogID,
	}
}

// ProgressText returns secondary info for display (e.g., "Ch. 42 · 12/20").
func (e LibraryEntry) ProgressText() string {
	if e.LastChapterLabel == "" {
		return e.Status.String()
	}
	if e.LastPageTotal > 0 {
		return fmt.Sprintf("Ch. %s · %d/%d", e.LastChapterLabel, e.LastPage+1, e.LastPageTotal)
	}
	return "Ch. " + e.LastChapterLabel
}

// LastReadSnapshot mirrors the progress fields of a title that has been
// read but never saved to the library. At most one exists at a time.
type LastReadSnapshot struct {
	TitleID      string `json:"titleId"`
	Source       string `json:"source"`
	Title        string `json:"title"`
	Cover        string `json:"cover,omitempty"`
	ChapterLabel string `json:"chapterLabel"`
	ChapterID    string `json:"chapterId"`
	Page         int    `json:"page"`
	PageTotal    int    `json:"pageTotal"`
	SavedAt      int64  `json:"savedAt"`
}

// RawChapter is a single chapter row as reported by one source, before
// merging. Number carries the source's chapter label verbatim ("12",
// "12.5", "Extra") and may be empty.
type RawChapter struct {
	ID              string `json:"id"`
	Number          string `json:"number,omitempty"`
	Title           string `json:"title,omitempty"`
	Language        string `json:"language,omitempty"`
	ScanlationGroup string `json:"scanlationGroup,omitempty"`
	Official        bool   `json:"official,omitempty"`
}

// SourceChapters is one source's chapter listing for a title.
type SourceChapters struct {
	SourceID string
	Chapters []RawChapter
}

// ChapterRecord is one merged chapter row. SourceID names the source whose
// id/title/label fields won; SiblingSourceIDs lists every source that
// carries an equivalent chapter, enabling cross-source fallback.
type ChapterRecord struct {
	ID               string   `json:"id"`
	Number           string   `json:"number,omitempty"`
	Title            string   `json:"title,omitempty"`
	Language         string   `json:"language,omitempty"`
	ScanlationGroup  string   `json:"scanlationGroup,omitempty"`
	Official         bool     `json:"official,omitempty"`
	SourceID         string   `json:"sourceId"`
	SiblingSourceIDs []string `json:"siblingSourceIds"`
}

// Label returns the best display label for the chapter.
func (c ChapterRecord) Label() string {
	if c.Number != "" {
		return c.Number
	}
	if c.Title != "" {
		return c.Title
	}
	return c.ID
}

// Page is one page of a chapter.
type Page struct {
	URL     string `json:"url"`
	Referer string `json:"referer,omitempty"`
}

// ReaderPrefs is the per-title reader preference blob.
type ReaderPrefs struct {
	FitMode    string        `json:"fitMode,omitempty"`
	Direction  ReadDirection `json:"direction,omitempty"`
	SpreadMode bool          `json:"spreadMode,omitempty"`
	Brightness int           `json:"brightness,omitempty"`
	Contrast   int           `json:"contrast,omitempty"`
}

// DayLedger is one day bucket of the reading-time ledger.
type DayLedger struct {
	Minutes int `json:"minutes"`
	Pages   int `json:"pages"`
}

// LedgerDate formats a time as a ledger bucket key.
func LedgerDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// HistoryRecord is one reading-history append.
type HistoryRecord struct {
	Key          string `json:"key,omitempty"`
	TitleID      string `json:"titleId"`
	Source       string `json:"source"`
	Title        string `json:"title"`
	ChapterID    string `json:"chapterId"`
	ChapterLabel string `json:"chapterLabel"`
	ReadAt       int64  `json:"readAt"`
}

// NormalizeTitle case-folds and trims a title for comparison.
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}
