// Package tui is the terminal shell over the synchronization engine and the
// reader: library browsing, catalog search, merged chapter lists, and the
// page-by-page reading view.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"yomu/internal/domain"
	"yomu/internal/library"
	"yomu/internal/reader"
)

type view int

const (
	viewLibrary view = iota
	viewSearch
	viewChapters
	viewReader
	viewHelp
)

const statusClearDelay = 3 * time.Second

// Model is the root bubbletea model.
type Model struct {
	library *library.Service
	engine  *reader.Engine
	sources []string

	view     view
	prevView view
	width    int
	height   int

	libraryList list.Model
	chapterList list.Model
	searchList  list.Model
	searchInput textinput.Model
	filterInput textinput.Model
	filtering   bool
	searching   bool

	// the title whose chapters/reader are open
	currentRef domain.TitleRef
	currentKey string
	chapters   []domain.ChapterRecord

	status      string
	statusIsErr bool
}

// NewModel creates the root model.
func NewModel(lib *library.Service, engine *reader.Engine, sources []string) *Model {
	searchInput := textinput.New()
	searchInput.Placeholder = "search the catalog..."
	searchInput.CharLimit = 120

	filterInput := textinput.New()
	filterInput.Placeholder = "filter library..."
	filterInput.Prompt = "/"

	m := &Model{
		library:     lib,
		engine:      engine,
		sources:     sources,
		view:        viewLibrary,
		libraryList: newEntryList("Library"),
		chapterList: newChapterList(),
		searchList:  newResultList(),
		searchInput: searchInput,
		filterInput: filterInput,
	}
	m.setLibraryItems(lib.Entries())
	return m
}

// Init kicks off the initial library reconciliation.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.pullLibraryCmd(), textinput.Blink)
}

// Update folds one message into the model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeLists()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case LibraryPulledMsg:
		m.setLibraryItems(msg.Entries)
		return m, nil

	case SearchResultsMsg:
		m.setSearchItems(msg.Results)
		return m, nil

	case ChaptersLoadedMsg:
		m.currentRef = msg.Ref
		m.currentKey = m.library.ResolveKey(msg.Ref.TitleID, msg.Ref.Source, msg.Ref.Title, msg.Ref.ExternalCatalogID)
		m.chapters = msg.Chapters
		m.setChapterItems(msg.Chapters)
		m.view = viewChapters
		return m, nil

	case ReaderOpenedMsg:
		m.view = viewReader
		return m, m.prefetchCmd()

	case ReaderClosedMsg:
		m.view = viewChapters
		m.setLibraryItems(m.library.Entries())
		return m, nil

	case PageMovedMsg, PrefetchDoneMsg:
		return m, nil

	case EntryAddedMsg:
		m.setLibraryItems(m.library.Entries())
		return m.flash("added to library", false)

	case EntryRemovedMsg:
		m.setLibraryItems(m.library.Entries())
		return m.flash("removed from library", false)

	case MarkedAllReadMsg:
		m.setLibraryItems(m.library.Entries())
		return m.flash("marked all read", false)

	case ErrMsg:
		return m.flash(msg.Error(), true)

	case StatusMsg:
		m.status = msg.Message
		m.statusIsErr = msg.IsError
		return m, clearStatusAfter(statusClearDelay)

	case ClearStatusMsg:
		m.status = ""
		m.statusIsErr = false
		return m, nil
	}

	return m.updateLists(msg)
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Text inputs swallow everything except escape and enter.
	if m.searching {
		return m.handleSearchInput(msg)
	}
	if m.filtering {
		return m.handleFilterInput(msg)
	}

	switch m.view {
	case viewReader:
		return m.handleReaderKey(msg)
	case viewHelp:
		m.view = m.prevView
		return m, nil
	}

	switch {
	case key.Matches(msg, Keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, Keys.Help):
		m.prevView = m.view
		m.view = viewHelp
		return m, nil
	}

	switch m.view {
	case viewLibrary:
		return m.handleLibraryKey(msg)
	case viewSearch:
		return m.handleSearchResultsKey(msg)
	case viewChapters:
		return m.handleChaptersKey(msg)
	}
	return m, nil
}

func (m *Model) handleLibraryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, Keys.Search):
		m.view = viewSearch
		m.searching = true
		m.searchInput.Focus()
		return m, textinput.Blink

	case key.Matches(msg, Keys.Filter):
		m.filtering = true
		m.filterInput.SetValue("")
		m.filterInput.Focus()
		return m, textinput.Blink

	case key.Matches(msg, Keys.Refresh):
		return m, m.pullLibraryCmd()

	case key.Matches(msg, Keys.Enter):
		if entry, ok := m.selectedEntry(); ok {
			m.currentKey = entry.Key
			return m, m.loadChaptersCmd(entry.Ref())
		}
		return m, nil

	case key.Matches(msg, Keys.Continue):
		return m.continueReading()

	case key.Matches(msg, Keys.Remove):
		if entry, ok := m.selectedEntry(); ok {
			return m, m.removeEntryCmd(entry.Key)
		}
		return m, nil

	case key.Matches(msg, Keys.MarkAllRead):
		if entry, ok := m.selectedEntry(); ok {
			return m, m.markAllReadCmd(entry)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.libraryList, cmd = m.libraryList.Update(msg)
	return m, cmd
}

func (m *Model) handleSearchInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, Keys.Escape):
		m.searching = false
		m.searchInput.Blur()
		m.view = viewLibrary
		return m, nil
	case key.Matches(msg, Keys.Enter):
		m.searching = false
		m.searchInput.Blur()
		return m, m.searchCmd(m.searchInput.Value())
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	return m, cmd
}

func (m *Model) handleFilterInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, Keys.Escape):
		m.filtering = false
		m.filterInput.Blur()
		m.setLibraryItems(m.library.Entries())
		return m, nil
	case key.Matches(msg, Keys.Enter):
		m.filtering = false
		m.filterInput.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.filterInput, cmd = m.filterInput.Update(msg)
	m.setLibraryItems(m.library.Filter(m.filterInput.Value()))
	return m, cmd
}

func (m *Model) handleSearchResultsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, Keys.Escape), key.Matches(msg, Keys.Back):
		m.view = viewLibrary
		return m, nil

	case key.Matches(msg, Keys.Search):
		m.searching = true
		m.searchInput.Focus()
		return m, textinput.Blink

	case key.Matches(msg, Keys.Add):
		if ref, ok := m.selectedResult(); ok {
			return m, m.addEntryCmd(ref)
		}
		return m, nil

	case key.Matches(msg, Keys.Enter):
		if ref, ok := m.selectedResult(); ok {
			return m, m.loadChaptersCmd(ref)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.searchList, cmd = m.searchList.Update(msg)
	return m, cmd
}

func (m *Model) handleChaptersKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, Keys.Escape), key.Matches(msg, Keys.Back):
		m.view = viewLibrary
		return m, nil

	case key.Matches(msg, Keys.MarkAllRead):
		if entry, ok := m.library.Entry(m.currentKey); ok {
			return m, m.markAllReadCmd(entry)
		}
		return m, nil

	case key.Matches(msg, Keys.Enter):
		if chapter, ok := m.selectedChapter(); ok {
			startPage := 0
			if entry, tracked := m.library.Entry(m.currentKey); tracked && entry.LastChapterID == chapter.ID {
				startPage = entry.LastPage
			}
			return m, m.openReaderCmd(m.currentRef, chapter.ID, startPage)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.chapterList, cmd = m.chapterList.Update(msg)
	return m, cmd
}

func (m *Model) handleReaderKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, Keys.Quit), key.Matches(msg, Keys.Escape):
		return m, m.closeReaderCmd()

	case key.Matches(msg, Keys.NextPage):
		return m, m.moveCmd(reader.MoveNext)

	case key.Matches(msg, Keys.PrevPage):
		return m, m.moveCmd(reader.MovePrev)

	case key.Matches(msg, Keys.ToggleSpread):
		on := m.engine.ToggleSpread()
		m.savePrefs()
		if on {
			return m.flash("spread mode on", false)
		}
		return m.flash("spread mode off", false)

	case key.Matches(msg, Keys.ToggleDirection):
		dir := m.engine.ToggleDirection()
		m.savePrefs()
		return m.flash("reading "+string(dir), false)
	}
	return m, nil
}

// continueReading reopens the last read position: the selected entry's saved
// chapter, or the last-read snapshot for an untracked title.
func (m *Model) continueReading() (tea.Model, tea.Cmd) {
	if entry, ok := m.selectedEntry(); ok && entry.LastChapterID != "" {
		m.currentKey = entry.Key
		m.currentRef = entry.Ref()
		return m, m.openReaderCmd(entry.Ref(), entry.LastChapterID, entry.LastPage)
	}

	if snap, ok := m.library.Snapshot(); ok {
		ref := domain.TitleRef{TitleID: snap.TitleID, Source: snap.Source, Title: snap.Title, Cover: snap.Cover}
		m.currentKey = ""
		m.currentRef = ref
		return m, m.openReaderCmd(ref, snap.ChapterID, snap.Page)
	}

	return m.flash("nothing to continue", true)
}

// savePrefs persists the open title's effective reader settings.
func (m *Model) savePrefs() {
	if m.currentKey == "" {
		return
	}
	m.library.SavePrefs(m.currentKey, domain.ReaderPrefs{
		Direction:  m.engine.Direction(),
		SpreadMode: m.engine.SpreadMode(),
	})
}

func (m *Model) flash(text string, isErr bool) (tea.Model, tea.Cmd) {
	m.status = text
	m.statusIsErr = isErr
	return m, clearStatusAfter(statusClearDelay)
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	m.libraryList, cmd = m.libraryList.Update(msg)
	cmds = append(cmds, cmd)
	m.chapterList, cmd = m.chapterList.Update(msg)
	cmds = append(cmds, cmd)
	m.searchList, cmd = m.searchList.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}
