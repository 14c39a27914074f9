package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"yomu/internal/coordinator"
	"yomu/internal/domain"
	"yomu/internal/reader"
)

// Commands run the service calls off the render loop; each returns a message
// folded back into Update. Superseded calls resolve to nil so an aborted
// action never surfaces an error or mutates the view.

func (m *Model) pullLibraryCmd() tea.Cmd {
	return func() tea.Msg {
		if err := m.library.PullLibrary(context.Background()); err != nil {
			if coordinator.IsCanceled(err) {
				return nil
			}
			// Offline reads fall back to the persisted snapshot.
			return LibraryPulledMsg{Entries: m.library.Entries()}
		}
		return LibraryPulledMsg{Entries: m.library.Entries()}
	}
}

func (m *Model) searchCmd(query string) tea.Cmd {
	return func() tea.Msg {
		results, err := m.library.Search(context.Background(), query)
		if err != nil {
			if coordinator.IsCanceled(err) {
				return nil
			}
			return ErrMsg{Err: err, Context: "search failed"}
		}
		return SearchResultsMsg{Results: results, Query: query}
	}
}

func (m *Model) loadChaptersCmd(ref domain.TitleRef) tea.Cmd {
	return func() tea.Msg {
		working := ref
		chapters, err := m.library.FetchChapters(context.Background(), &working, m.sources)
		if err != nil {
			if coordinator.IsCanceled(err) {
				return nil
			}
			return ErrMsg{Err: err, Context: "failed to load chapters"}
		}
		return ChaptersLoadedMsg{Ref: working, Chapters: chapters}
	}
}

func (m *Model) openReaderCmd(ref domain.TitleRef, chapterID string, startPage int) tea.Cmd {
	return func() tea.Msg {
		if err := m.engine.Open(context.Background(), ref, chapterID, startPage); err != nil {
			if coordinator.IsCanceled(err) {
				return nil
			}
			return ErrMsg{Err: err, Context: "failed to open chapter"}
		}
		return ReaderOpenedMsg{}
	}
}

func (m *Model) prefetchCmd() tea.Cmd {
	return func() tea.Msg {
		m.engine.Prefetch(context.Background())
		return PrefetchDoneMsg{}
	}
}

func (m *Model) moveCmd(dir reader.MoveDirection) tea.Cmd {
	return func() tea.Msg {
		if err := m.engine.Move(context.Background(), dir); err != nil {
			if err == domain.ErrReaderClosed || coordinator.IsCanceled(err) {
				return nil
			}
			return ErrMsg{Err: err, Context: "navigation failed"}
		}
		return PageMovedMsg{}
	}
}

func (m *Model) closeReaderCmd() tea.Cmd {
	return func() tea.Msg {
		m.engine.Close(context.Background())
		return ReaderClosedMsg{}
	}
}

func (m *Model) addEntryCmd(ref domain.TitleRef) tea.Cmd {
	return func() tea.Msg {
		if err := m.library.Add(context.Background(), ref); err != nil {
			return ErrMsg{Err: err, Context: "failed to add"}
		}
		return EntryAddedMsg{Key: ref.Key()}
	}
}

func (m *Model) removeEntryCmd(key string) tea.Cmd {
	return func() tea.Msg {
		if err := m.library.Remove(context.Background(), key); err != nil {
			return ErrMsg{Err: err, Context: "failed to remove"}
		}
		return EntryRemovedMsg{Key: key}
	}
}

func (m *Model) markAllReadCmd(entry domain.LibraryEntry) tea.Cmd {
	return func() tea.Msg {
		ref := entry.Ref()
		chapters, err := m.library.FetchChapters(context.Background(), &ref, m.sources)
		if err != nil {
			return ErrMsg{Err: err, Context: "failed to load chapters"}
		}
		if err := m.library.MarkAllRead(context.Background(), entry.Key, ref, chapters); err != nil {
			return ErrMsg{Err: err, Context: "failed to mark all read"}
		}
		return MarkedAllReadMsg{Key: entry.Key}
	}
}

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return ClearStatusMsg{}
	})
}
