package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/lipgloss"

	"yomu/internal/domain"
	"yomu/internal/tui/styles"
)

// entryItem adapts a library entry to the list component.
type entryItem struct {
	entry domain.LibraryEntry
}

func (i entryItem) Title() string {
	return styles.RenderStatus(i.entry.Status) + " " + i.entry.Title
}

func (i entryItem) Description() string { return i.entry.ProgressText() }
func (i entryItem) FilterValue() string { return i.entry.Title }

// resultItem adapts a catalog search result to the list component.
type resultItem struct {
	ref domain.TitleRef
}

func (i resultItem) Title() string       { return i.ref.Title }
func (i resultItem) Description() string { return i.ref.Source }
func (i resultItem) FilterValue() string { return i.ref.Title }

// chapterItem adapts a merged chapter record to the list component.
type chapterItem struct {
	chapter domain.ChapterRecord
	read    bool
}

func (i chapterItem) Title() string {
	marker := styles.DimStyle.Render(styles.UnreadChar)
	if i.read {
		marker = styles.CompletedStyle.Render(styles.CompletedChar)
	}
	return marker + " Ch. " + i.chapter.Label()
}

func (i chapterItem) Description() string {
	desc := i.chapter.SourceID
	if len(i.chapter.SiblingSourceIDs) > 1 {
		desc += " +" + fmt.Sprint(len(i.chapter.SiblingSourceIDs)-1)
	}
	if i.chapter.Title != "" {
		desc = i.chapter.Title + " · " + desc
	}
	return desc
}

func (i chapterItem) FilterValue() string { return i.chapter.Label() }

func newDelegate() list.DefaultDelegate {
	d := list.NewDefaultDelegate()
	d.Styles.SelectedTitle = d.Styles.SelectedTitle.
		Foreground(styles.Accent).
		BorderLeftForeground(styles.Accent)
	d.Styles.SelectedDesc = d.Styles.SelectedDesc.
		Foreground(styles.LightGray).
		BorderLeftForeground(styles.Accent)
	return d
}

func newEntryList(title string) list.Model {
	l := list.New(nil, newDelegate(), 0, 0)
	l.Title = title
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.SetShowStatusBar(false)
	return l
}

func newResultList() list.Model {
	l := newEntryList("Search")
	return l
}

func newChapterList() list.Model {
	l := newEntryList("Chapters")
	return l
}

func (m *Model) setLibraryItems(entries []domain.LibraryEntry) {
	items := make([]list.Item, len(entries))
	for i, e := range entries {
		items[i] = entryItem{entry: e}
	}
	m.libraryList.SetItems(items)
}

func (m *Model) setSearchItems(results []domain.TitleRef) {
	items := make([]list.Item, len(results))
	for i, r := range results {
		items[i] = resultItem{ref: r}
	}
	m.searchList.SetItems(items)
	m.view = viewSearch
}

func (m *Model) setChapterItems(chapters []domain.ChapterRecord) {
	entry, tracked := m.library.Entry(m.currentKey)
	items := make([]list.Item, len(chapters))
	for i, c := range chapters {
		read := tracked && entry.LastChapterID == c.ID
		items[i] = chapterItem{chapter: c, read: read}
	}
	m.chapterList.SetItems(items)
	m.chapterList.Title = m.currentRef.Title
}

func (m *Model) selectedEntry() (domain.LibraryEntry, bool) {
	if item, ok := m.libraryList.SelectedItem().(entryItem); ok {
		return item.entry, true
	}
	return domain.LibraryEntry{}, false
}

func (m *Model) selectedResult() (domain.TitleRef, bool) {
	if item, ok := m.searchList.SelectedItem().(resultItem); ok {
		return item.ref, true
	}
	return domain.TitleRef{}, false
}

func (m *Model) selectedChapter() (domain.ChapterRecord, bool) {
	if item, ok := m.chapterList.SelectedItem().(chapterItem); ok {
		return item.chapter, true
	}
	return domain.ChapterRecord{}, false
}

func (m *Model) resizeLists() {
	h := m.height - 4 // status bar and margins
	if h < 0 {
		h = 0
	}
	m.libraryList.SetSize(m.width, h)
	m.chapterList.SetSize(m.width, h)
	m.searchList.SetSize(m.width, h)
	m.searchInput.Width = m.width - 4
	m.filterInput.Width = m.width - 4
}

// View renders the current view plus the status bar.
func (m *Model) View() string {
	var body string
	switch m.view {
	case viewLibrary:
		body = m.viewLibrary()
	case viewSearch:
		body = m.viewSearch()
	case viewChapters:
		body = m.chapterList.View()
	case viewReader:
		body = m.viewReader()
	case viewHelp:
		body = m.viewHelp()
	}
	return body + "\n" + m.statusBar()
}

func (m *Model) viewLibrary() string {
	if m.filtering {
		return m.filterInput.View() + "\n" + m.libraryList.View()
	}
	return m.libraryList.View()
}

func (m *Model) viewSearch() string {
	if m.searching {
		return m.searchInput.View() + "\n" + m.searchList.View()
	}
	return m.searchList.View()
}

func (m *Model) viewReader() string {
	sess, ok := m.engine.Session()
	if !ok {
		return styles.DimStyle.Render("opening...")
	}

	header := styles.TitleStyle.Render(sess.Ref.Title) +
		styles.SubtitleStyle.Render("  Ch. "+sess.ChapterLabel)

	var pageLine string
	if page, ok := sess.CurrentPage(); ok {
		pageLine = styles.SubtitleStyle.Render(page.URL)
	}

	position := fmt.Sprintf("page %d/%d", sess.PageIndex+1, sess.PageCount)
	var percent float64
	if sess.PageCount > 0 {
		percent = float64(sess.PageIndex+1) / float64(sess.PageCount) * 100
	}

	barWidth := m.width - len(position) - 6
	footer := styles.RenderProgressBar(percent, barWidth) + " " + styles.DimStyle.Render(position)

	mode := string(m.engine.Direction())
	if m.engine.SpreadMode() {
		mode += " · spread"
	}

	lines := []string{
		header,
		"",
		pageLine,
		"",
		footer,
		styles.DimStyle.Render(mode),
	}
	return lipgloss.NewStyle().Padding(1, 2).Render(strings.Join(lines, "\n"))
}

func (m *Model) viewHelp() string {
	row := func(k, desc string) string {
		return "  " + styles.HelpKeyStyle.Render(styles.Pad(k, 10)) + styles.HelpDescStyle.Render(desc)
	}
	sections := []string{
		styles.TitleStyle.Render("Keys"),
		"",
		row("j/k", "move"),
		row("enter", "open"),
		row("f", "search the catalog"),
		row("/", "filter the library"),
		row("a", "add result to library"),
		row("x", "remove from library"),
		row("w", "mark all read"),
		row("c", "continue reading"),
		row("r", "refresh library"),
		"",
		styles.TitleStyle.Render("Reader"),
		"",
		row("l/→", "next page"),
		row("h/←", "previous page"),
		row("s", "toggle spread mode"),
		row("d", "toggle reading direction"),
		row("esc", "close the reader"),
		"",
		styles.DimStyle.Render("press any key to go back"),
	}
	return lipgloss.NewStyle().Padding(1, 2).Render(strings.Join(sections, "\n"))
}

func (m *Model) statusBar() string {
	left := m.status
	if m.statusIsErr && left != "" {
		left = styles.ErrorStyle.Render(left)
	}

	right := ""
	if ledger, ok := m.library.TodayLedger(); ok && ledger.Minutes > 0 {
		right = styles.DimStyle.Render(fmt.Sprintf("%dm today", ledger.Minutes))
	}
	if !m.library.Online() {
		right = styles.OfflineBadge + " " + right
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return styles.StatusBarStyle.Render(left + strings.Repeat(" ", gap) + right)
}
