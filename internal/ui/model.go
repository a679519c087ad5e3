package ui

import (
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/five82/feedline/internal/config"
	"github.com/five82/feedline/internal/diff"
	"github.com/five82/feedline/internal/feed"
	"github.com/five82/feedline/internal/timeline"
)

const toastDuration = 4 * time.Second

// Controller is the part of the timeline orchestrator the viewer drives.
type Controller interface {
	Subscribe() (<-chan timeline.State[feed.Item], func())
	Notices() <-chan timeline.Notice
	Refresh()
	LoadMore()
}

// Options configures the viewer.
type Options struct {
	Controller Controller
	Timeline   string
	Prefs      config.Prefs
	PrefsPath  string
	Logger     zerolog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Model is the root Bubble Tea model.
type Model struct {
	ctrl        Controller
	states      <-chan timeline.State[feed.Item]
	unsubscribe func()
	notices     <-chan timeline.Notice
	log         zerolog.Logger
	now         func() time.Time

	timelineName string
	prefsPath    string
	prefs        config.Prefs

	theme   Theme
	keys    keyMap
	help    help.Model
	spinner spinner.Model

	width  int
	height int
	ready  bool

	// Rendered list, kept in step with the orchestrator by applying diffs.
	items       []feed.Item
	state       timeline.State[feed.Item]
	hasState    bool
	lastUpdated time.Time

	selected int
	offset   int

	showHelp bool

	toast   string
	toastID uuid.UUID
}

// New subscribes to the controller and builds the model.
func New(opts Options) Model {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	prefs := opts.Prefs
	if prefs.Theme == "" {
		prefs.Theme = themeOrder[0]
	}

	m := Model{
		ctrl:         opts.Controller,
		log:          opts.Logger.With().Str("component", "ui").Logger(),
		now:          now,
		timelineName: opts.Timeline,
		prefsPath:    opts.PrefsPath,
		prefs:        prefs,
		theme:        GetTheme(prefs.Theme),
		keys:         DefaultKeyMap(),
		help:         help.New(),
		spinner:      spinner.New(spinner.WithSpinner(spinner.Dot)),
		unsubscribe:  func() {},
	}
	m.applyTheme()
	if m.ctrl != nil {
		m.states, m.unsubscribe = m.ctrl.Subscribe()
		m.notices = m.ctrl.Notices()
	}
	return m
}

// Close stops the state subscription.
func (m Model) Close() {
	m.unsubscribe()
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		waitForState(m.states),
		waitForNotice(m.notices),
	)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.ready = true
		m.clampScroll()
		return m, nil

	case stateMsg:
		m.applyState(timeline.State[feed.Item](msg))
		return m, waitForState(m.states)

	case streamClosedMsg:
		return m, tea.Quit

	case noticeMsg:
		m.toast = msg.Message
		m.toastID = msg.ID
		return m, tea.Batch(expireToast(msg.ID), waitForNotice(m.notices))

	case toastExpiredMsg:
		if msg.id == m.toastID {
			m.toast = ""
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}
	return m.renderMain()
}

// applyState brings the rendered list in line with st by applying its diff,
// falling back to st.Items when the diff does not fit.
func (m *Model) applyState(st timeline.State[feed.Item]) {
	selectedID := ""
	if m.selected >= 0 && m.selected < len(m.items) {
		selectedID = feed.Key(m.items[m.selected])
	}

	next, err := diff.Apply(m.items, st.Diff)
	if err == nil && len(next) != len(st.Items) {
		err = errDiffMismatch
	}
	if err != nil {
		m.log.Warn().Err(err).Uint64("seq", st.Seq).Msg("diff did not apply, resyncing list")
		next = append([]feed.Item(nil), st.Items...)
	}

	m.items = next
	m.state = st
	m.hasState = true
	m.lastUpdated = m.now()
	m.reselect(selectedID)
}

// reselect keeps the selection on the same item when rows are inserted or
// removed above it; a removed selection stays at the same row.
func (m *Model) reselect(id string) {
	if id != "" {
		for i, item := range m.items {
			if feed.Key(item) == id {
				m.selected = i
				m.clampScroll()
				return
			}
		}
	}
	m.selected = min(m.selected, len(m.items)-1)
	m.selected = max(m.selected, 0)
	m.clampScroll()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		// Any key closes help
		m.showHelp = false
		m.help.ShowAll = false
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.unsubscribe()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		m.help.ShowAll = true
		return m, nil

	case key.Matches(msg, m.keys.CycleTheme):
		m.prefs.Theme = NextTheme(m.theme.Name)
		m.applyTheme()
		m.savePrefs()
		return m, nil

	case key.Matches(msg, m.keys.Timestamps):
		m.prefs.ShowTimestamps = !m.prefs.ShowTimestamps
		m.savePrefs()
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		m.ctrl.Refresh()
		return m, nil

	case key.Matches(msg, m.keys.LoadMore):
		m.ctrl.LoadMore()
		return m, nil
	}

	return m.handleListKey(msg)
}

func (m Model) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	count := len(m.items)
	if count == 0 {
		return m, nil
	}

	page := max(m.listHeight(), 1)
	switch {
	case key.Matches(msg, m.keys.Down):
		m.selected = min(m.selected+1, count-1)
	case key.Matches(msg, m.keys.Up):
		m.selected = max(m.selected-1, 0)
	case key.Matches(msg, m.keys.Top):
		m.selected = 0
	case key.Matches(msg, m.keys.Bottom):
		m.selected = count - 1
	case key.Matches(msg, m.keys.PageDown):
		m.selected = min(m.selected+page, count-1)
	case key.Matches(msg, m.keys.PageUp):
		m.selected = max(m.selected-page, 0)
	default:
		return m, nil
	}
	m.clampScroll()
	m.maybeLoadMore()
	return m, nil
}

// maybeLoadMore asks for the next page once the selection reaches the last
// row. A failed load is only retried explicitly.
func (m *Model) maybeLoadMore() {
	if m.selected != len(m.items)-1 || !m.hasState {
		return
	}
	st := m.state
	if !st.MoreAvailable || st.MoreLoading || st.MoreError != "" {
		return
	}
	m.ctrl.LoadMore()
}

func (m *Model) clampScroll() {
	height := m.listHeight()
	if height <= 0 {
		m.offset = 0
		return
	}
	if m.selected < m.offset {
		m.offset = m.selected
	}
	if m.selected >= m.offset+height {
		m.offset = m.selected - height + 1
	}
	m.offset = max(min(m.offset, len(m.items)-height), 0)
}

func (m *Model) applyTheme() {
	m.theme = GetTheme(m.prefs.Theme)
	m.prefs.Theme = m.theme.Name

	m.spinner.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.Accent))

	keyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.Warning))
	descStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.Muted))
	sepStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(m.theme.Faint))
	m.help.Styles.ShortKey = keyStyle
	m.help.Styles.ShortDesc = descStyle
	m.help.Styles.ShortSeparator = sepStyle
	m.help.Styles.FullKey = keyStyle
	m.help.Styles.FullDesc = descStyle
	m.help.Styles.FullSeparator = sepStyle
	m.help.Styles.Ellipsis = sepStyle
}

func (m *Model) savePrefs() {
	if m.prefsPath == "" {
		return
	}
	if err := config.SavePrefs(m.prefsPath, m.prefs); err != nil {
		m.log.Warn().Err(err).Msg("save prefs failed")
	}
}

// Messages

type stateMsg timeline.State[feed.Item]

type streamClosedMsg struct{}

type noticeMsg timeline.Notice

type toastExpiredMsg struct {
	id uuid.UUID
}

// Commands

func waitForState(ch <-chan timeline.State[feed.Item]) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		st, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return stateMsg(st)
	}
}

func waitForNotice(ch <-chan timeline.Notice) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			// Notices end with the orchestrator; the state stream reports that.
			return nil
		}
		return noticeMsg(n)
	}
}

func expireToast(id uuid.UUID) tea.Cmd {
	return tea.Tick(toastDuration, func(time.Time) tea.Msg {
		return toastExpiredMsg{id: id}
	})
}

// Run starts the Bubble Tea program and blocks until it exits.
func Run(opts Options) error {
	m := New(opts)
	defer m.Close()
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
