package reader

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"yomu/internal/coordinator"
	"yomu/internal/domain"
)

// Library is the slice of the synchronization engine the reader depends on.
// *library.Service satisfies it.
type Library interface {
	FetchChapters(ctx context.Context, ref *domain.TitleRef, sources []string) ([]domain.ChapterRecord, error)
	FetchPages(ctx context.Context, chapterID, source string) ([]domain.Page, error)
	HealthySources(ctx context.Context, primary string, configured []string) []string
	ResolveKey(titleID, source, title, externalCatalogID string) string
	SaveProgress(ctx context.Context, key string, ref domain.TitleRef, p domain.ProgressPayload) error
	RecordSession(ctx context.Context, rec domain.HistoryRecord, minutes, pages int)
	Prefs(key string) (domain.ReaderPrefs, bool)
}

// Settings are the reader defaults; per-title preference blobs override
// direction and spread mode when a title has them saved.
type Settings struct {
	Direction        domain.ReadDirection
	SpreadMode       bool
	WideAspect       float64
	PrefetchDistance int
	SaveDelay        time.Duration
	Sources          []string
}

// Engine drives one reading view at a time through
// Closed -> Opening -> Active -> Closed.
type Engine struct {
	lib      Library
	coord    *coordinator.Coordinator
	logger   *slog.Logger
	settings Settings

	mu         sync.Mutex
	state      State
	session    *Session
	chapters   []domain.ChapterRecord
	chapterIdx int
	direction  domain.ReadDirection
	spreadMode bool

	prefetched       map[string][]domain.Page
	prefetchInFlight bool

	saveTimer *time.Timer
}

// New creates a closed engine.
func New(lib Library, coord *coordinator.Coordinator, settings Settings, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if settings.WideAspect <= 0 {
		settings.WideAspect = 1.2
	}
	return &Engine{
		lib:        lib,
		coord:      coord,
		logger:     logger,
		settings:   settings,
		state:      StateClosed,
		prefetched: make(map[string][]domain.Page),
	}
}

// State returns the engine lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Session returns a copy of the active session.
func (e *Engine) Session() (Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return Session{}, false
	}
	return *e.session, true
}

// Chapters returns the navigation-order chapter list of the open title.
func (e *Engine) Chapters() []domain.ChapterRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.ChapterRecord, len(e.chapters))
	copy(out, e.chapters)
	return out
}

// Open starts a reading session for a title at the given chapter (the first
// chapter when chapterID is empty), at the given page. Opening covers
// resolving the title to a concrete source; if that fails the engine returns
// to Closed and surfaces the error. An open call supersedes any still-pending
// previous open. A previously active session is force-saved first.
func (e *Engine) Open(ctx context.Context, ref domain.TitleRef, chapterID string, startPage int) error {
	e.closeSession(ctx)

	e.mu.Lock()
	e.state = StateOpening
	e.mu.Unlock()

	callCtx, done := e.coord.Begin(ctx, "reader.open")
	defer done()

	sources := e.lib.HealthySources(callCtx, ref.Source, e.settings.Sources)
	chapters, err := e.lib.FetchChapters(callCtx, &ref, sources)
	if err != nil || ref.Source == "" {
		e.mu.Lock()
		e.state = StateClosed
		e.mu.Unlock()
		if err == nil {
			err = domain.ErrSourceUnresolved
		}
		if !coordinator.IsCanceled(err) {
			e.logger.Warn("failed to open title", "title", ref.TitleID, "error", err)
		}
		return err
	}
	if len(chapters) == 0 {
		e.mu.Lock()
		e.state = StateClosed
		e.mu.Unlock()
		return domain.ErrNotFound
	}

	idx := 0
	if chapterID != "" {
		for i, c := range chapters {
			if c.ID == chapterID {
				idx = i
				break
			}
		}
	}

	e.mu.Lock()
	e.chapters = chapters
	e.direction = e.settings.Direction
	e.spreadMode = e.settings.SpreadMode
	key := e.lib.ResolveKey(ref.TitleID, ref.Source, ref.Title, ref.ExternalCatalogID)
	if prefs, ok := e.lib.Prefs(key); ok {
		if prefs.Direction != "" {
			e.direction = prefs.Direction
		}
		e.spreadMode = prefs.SpreadMode
	}
	e.mu.Unlock()

	return e.openChapter(callCtx, ref, idx, startPage)
}

// openChapter loads one chapter's pages (from the prefetch map when present)
// and activates the session.
func (e *Engine) openChapter(ctx context.Context, ref domain.TitleRef, idx, startPage int) error {
	chapter := e.chapters[idx]

	pages, hit := e.takePrefetched(chapter.ID)
	if !hit {
		var err error
		pages, err = e.lib.FetchPages(ctx, chapter.ID, chapter.SourceID)
		if err != nil {
			e.mu.Lock()
			e.session = nil
			e.state = StateClosed
			e.mu.Unlock()
			return err
		}
	} else {
		e.logger.Debug("prefetch hit", "chapter", chapter.ID)
	}

	if startPage < 0 || startPage >= len(pages) {
		startPage = 0
	}

	e.mu.Lock()
	e.session = &Session{
		Ref:          ref,
		ChapterID:    chapter.ID,
		ChapterLabel: chapter.Label(),
		PageIndex:    startPage,
		PageCount:    len(pages),
		Pages:        pages,
		StartedAt:    time.Now(),
		StartPage:    startPage,
		wide:         make(map[int]bool),
	}
	e.chapterIdx = idx
	e.state = StateActive
	e.mu.Unlock()
	return nil
}

// Prefetch fetches page lists for up to the configured distance of upcoming
// chapters into the in-memory map, skipping ids already present. At most one
// pass runs at a time; a call while one is in flight returns immediately.
// Callers run it off the render path.
func (e *Engine) Prefetch(ctx context.Context) {
	e.mu.Lock()
	if e.state != StateActive || e.settings.PrefetchDistance <= 0 || e.prefetchInFlight {
		e.mu.Unlock()
		return
	}
	e.prefetchInFlight = true
	start := e.chapterIdx + 1
	end := start + e.settings.PrefetchDistance
	if end > len(e.chapters) {
		end = len(e.chapters)
	}
	var upcoming []domain.ChapterRecord
	if start < len(e.chapters) {
		upcoming = append(upcoming, e.chapters[start:end]...)
	}
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.prefetchInFlight = false
		e.mu.Unlock()
	}()

	for _, chapter := range upcoming {
		e.mu.Lock()
		_, present := e.prefetched[chapter.ID]
		e.mu.Unlock()
		if present {
			continue
		}

		pages, err := e.lib.FetchPages(ctx, chapter.ID, chapter.SourceID)
		if err != nil {
			if !coordinator.IsCanceled(err) {
				e.logger.Debug("prefetch failed", "chapter", chapter.ID, "error", err)
			}
			continue
		}
		e.mu.Lock()
		e.prefetched[chapter.ID] = pages
		e.mu.Unlock()
	}
}

// takePrefetched consumes a prefetched page list.
func (e *Engine) takePrefetched(chapterID string) ([]domain.Page, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pages, ok := e.prefetched[chapterID]
	if ok {
		delete(e.prefetched, chapterID)
	}
	return pages, ok
}

// PrefetchedCount reports how many chapters are held in the prefetch map.
func (e *Engine) PrefetchedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.prefetched)
}

// ToggleSpread flips two-page spread mode for the open session and reports
// the new value.
func (e *Engine) ToggleSpread() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.spreadMode = !e.spreadMode
	return e.spreadMode
}

// ToggleDirection flips the reading direction for the open session and
// reports the new value.
func (e *Engine) ToggleDirection() domain.ReadDirection {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.direction == domain.DirectionRTL {
		e.direction = domain.DirectionLTR
	} else {
		e.direction = domain.DirectionRTL
	}
	return e.direction
}

// Direction returns the session's effective reading direction.
func (e *Engine) Direction() domain.ReadDirection {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.direction
}

// SpreadMode returns the session's effective spread mode.
func (e *Engine) SpreadMode() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.spreadMode
}

// ReportPageSize records a page's natural dimensions; pages wider than the
// aspect threshold are flagged as spreads and never paired.
func (e *Engine) ReportPageSize(index, width, height int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil || height <= 0 {
		return
	}
	if float64(width)/float64(height) > e.settings.WideAspect {
		e.session.wide[index] = true
	}
}

// Move navigates one step. The step magnitude is 1, or 2 in spread mode
// unless the current page (for next) or the adjacent page in the move's
// direction (for prev) is wide. Reading direction flips the sign of the
// step. Moving next past the last page advances to the next chapter; moving
// prev before the first page is a no-op. Each page change schedules a
// debounced progress save.
func (e *Engine) Move(ctx context.Context, dir MoveDirection) error {
	e.mu.Lock()
	if e.state != StateActive || e.session == nil {
		e.mu.Unlock()
		return domain.ErrReaderClosed
	}
	sess := e.session

	sign := 1
	if e.direction == domain.DirectionRTL {
		sign = -1
	}
	if dir == MovePrev {
		sign = -sign
	}

	step := 1
	if e.spreadMode {
		step = 2
		switch dir {
		case MoveNext:
			if sess.wide[sess.PageIndex] {
				step = 1
			}
		case MovePrev:
			if sess.wide[sess.PageIndex+sign] {
				step = 1
			}
		}
	}

	target := sess.PageIndex + sign*step

	if dir == MovePrev {
		// Never auto-retreat past the chapter start.
		if target < 0 || target >= sess.PageCount {
			e.mu.Unlock()
			return nil
		}
		sess.PageIndex = target
		sess.pagesTurned++
		e.mu.Unlock()
		e.scheduleSave()
		return nil
	}

	if target < 0 || target >= sess.PageCount {
		e.mu.Unlock()
		return e.advanceChapter(ctx)
	}

	sess.PageIndex = target
	sess.pagesTurned++
	e.mu.Unlock()
	e.scheduleSave()
	return nil
}

// advanceChapter force-saves and opens the next chapter in navigation order.
// At the end of the list it is a no-op. Crossing a boundary consumes one
// look-ahead slot, so a fresh pass refills the window.
func (e *Engine) advanceChapter(ctx context.Context) error {
	e.mu.Lock()
	next := e.chapterIdx + 1
	if next >= len(e.chapters) {
		e.mu.Unlock()
		return nil
	}
	ref := e.session.Ref
	e.mu.Unlock()

	e.forceSave(ctx)
	if err := e.openChapter(ctx, ref, next, 0); err != nil {
		return err
	}
	go e.Prefetch(context.Background())
	return nil
}

// scheduleSave (re)arms the debounced progress save.
func (e *Engine) scheduleSave() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.saveTimer != nil {
		e.saveTimer.Stop()
	}
	if e.settings.SaveDelay <= 0 {
		go e.saveNow(context.Background())
		return
	}
	e.saveTimer = time.AfterFunc(e.settings.SaveDelay, func() {
		e.saveNow(context.Background())
	})
}

// forceSave cancels any pending debounce and saves synchronously.
func (e *Engine) forceSave(ctx context.Context) {
	e.mu.Lock()
	if e.saveTimer != nil {
		e.saveTimer.Stop()
		e.saveTimer = nil
	}
	e.mu.Unlock()
	e.saveNow(ctx)
}

// saveNow persists the session's current position.
func (e *Engine) saveNow(ctx context.Context) {
	e.mu.Lock()
	if e.session == nil {
		e.mu.Unlock()
		return
	}
	sess := *e.session
	total := len(e.chapters)
	e.mu.Unlock()

	key := e.lib.ResolveKey(sess.Ref.TitleID, sess.Ref.Source, sess.Ref.Title, sess.Ref.ExternalCatalogID)
	err := e.lib.SaveProgress(ctx, key, sess.Ref, domain.ProgressPayload{
		ChapterLabel:  sess.ChapterLabel,
		ChapterID:     sess.ChapterID,
		Page:          sess.PageIndex,
		PageTotal:     sess.PageCount,
		TotalChapters: total,
	})
	if err != nil && !coordinator.IsCanceled(err) {
		e.logger.Warn("failed to save reading progress", "error", err)
	}
}

// Close force-saves, folds the session into the reading ledger and history,
// and returns the engine to Closed. The prefetch map does not survive a
// close.
func (e *Engine) Close(ctx context.Context) {
	e.closeSession(ctx)

	e.mu.Lock()
	e.chapters = nil
	e.chapterIdx = 0
	e.prefetched = make(map[string][]domain.Page)
	e.mu.Unlock()
}

// closeSession folds and discards the active session, if any.
func (e *Engine) closeSession(ctx context.Context) {
	e.mu.Lock()
	if e.session == nil {
		e.state = StateClosed
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	e.forceSave(ctx)

	e.mu.Lock()
	sess := *e.session
	e.session = nil
	e.state = StateClosed
	e.mu.Unlock()

	minutes := int(time.Since(sess.StartedAt).Minutes())
	key := e.lib.ResolveKey(sess.Ref.TitleID, sess.Ref.Source, sess.Ref.Title, sess.Ref.ExternalCatalogID)
	e.lib.RecordSession(ctx, domain.HistoryRecord{
		Key:          key,
		TitleID:      sess.Ref.TitleID,
		Source:       sess.Ref.Source,
		Title:        sess.Ref.Title,
		ChapterID:    sess.ChapterID,
		ChapterLabel: sess.ChapterLabel,
		ReadAt:       time.Now().UnixMilli(),
	}, minutes, sess.pagesTurned)
}
