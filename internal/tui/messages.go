package tui

import "yomu/internal/domain"

// Message types for the TUI

// ErrMsg represents an error surfaced to the status bar
type ErrMsg struct {
	Err     error
	Context string
}

// Error implements the error interface
func (e ErrMsg) Error() string {
	if e.Context != "" {
		return e.Context + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

// LibraryPulledMsg signals that the library has been reconciled with the server
type LibraryPulledMsg struct {
	Entries []domain.LibraryEntry
}

// SearchResultsMsg signals that catalog search results are ready
type SearchResultsMsg struct {
	Results []domain.TitleRef
	Query   string
}

// ChaptersLoadedMsg signals that the merged chapter view is ready
type ChaptersLoadedMsg struct {
	Ref      domain.TitleRef
	Chapters []domain.ChapterRecord
}

// ReaderOpenedMsg signals that a reading session is active
type ReaderOpenedMsg struct{}

// ReaderClosedMsg signals that the reading session has been folded and closed
type ReaderClosedMsg struct{}

// PageMovedMsg signals that the reader position changed
type PageMovedMsg struct{}

// PrefetchDoneMsg signals that a look-ahead pass has finished
type PrefetchDoneMsg struct{}

// MarkedAllReadMsg signals that a title was marked completed
type MarkedAllReadMsg struct {
	Key string
}

// EntryAddedMsg signals that a title was added to the library
type EntryAddedMsg struct {
	Key string
}

// EntryRemovedMsg signals that a title was removed from the library
type EntryRemovedMsg struct {
	Key string
}

// StatusMsg sets a temporary status bar message
type StatusMsg struct {
	Message string
	IsError bool
}

// ClearStatusMsg clears the status bar message
type ClearStatusMsg struct{}
