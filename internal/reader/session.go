// Package reader implements the reading continuity engine: the open-session
// state machine, spread-aware page navigation, debounced progress saves, and
// look-ahead chapter prefetch.
package reader

import (
	"time"

	"yomu/internal/domain"
)

// State is the engine lifecycle state.
type State int

const (
	StateClosed State = iota
	StateOpening
	StateActive
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateActive:
		return "active"
	default:
		return "closed"
	}
}

// MoveDirection is a page navigation request.
type MoveDirection int

const (
	MovePrev MoveDirection = iota
	MoveNext
)

// Session holds the state of one open reading view. It lives only while the
// engine is active and is never persisted; its final position is folded into
// library progress and the reading ledger on close.
type Session struct {
	Ref          domain.TitleRef
	ChapterID    string
	ChapterLabel string
	PageIndex    int
	PageCount    int
	Pages        []domain.Page
	StartedAt    time.Time
	StartPage    int

	// wide flags pages observed to be wide single images; they are never
	// paired in spread mode.
	wide map[int]bool

	pagesTurned int
}

// IsWide reports whether a page has been flagged as a wide single image.
func (s *Session) IsWide(index int) bool {
	return s.wide[index]
}

// CurrentPage returns the page at the session's position.
func (s *Session) CurrentPage() (domain.Page, bool) {
	if s.PageIndex < 0 || s.PageIndex >= len(s.Pages) {
		return domain.Page{}, false
	}
	return s.Pages[s.PageIndex], true
}
