package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/dsouza-anush/open-deep-research/internal/chat"
	"github.com/dsouza-anush/open-deep-research/internal/clipboard"
	"github.com/dsouza-anush/open-deep-research/internal/config"
	"github.com/dsouza-anush/open-deep-research/internal/export"
	"github.com/dsouza-anush/open-deep-research/internal/research"
	"github.com/dsouza-anush/open-deep-research/internal/store"
)

// researchMode mirrors the service's chat profiles: iteration depth and
// researcher parallelism per job.
type researchMode struct {
	name          string
	maxIterations int
	maxConcurrent int
}

var researchModes = []researchMode{
	{"Quick", 1, 2},
	{"Standard", 2, 3},
	{"Deep", 3, 4},
	{"Expert", 5, 5},
}

type Model struct {
	cfg      config.AppConfig
	st       store.Store
	mgr      *chat.Manager
	ctrl     *research.Controller
	client   *research.Client
	exporter *export.Exporter
	logger   *slog.Logger

	list     list.Model
	viewport viewport.Model
	input    textarea.Model
	help     help.Model
	spinner  spinner.Model
	keys     keyMap

	width  int
	height int

	focusInput    bool
	sidebarHidden bool
	modeIdx       int

	rendering   bool
	renderNonce int
	rendered    map[string]string

	status string
	err    error
}

type healthMsg struct{ err error }
type startJobMsg struct {
	jobID string
	err   error
}
type pollTickMsg struct{ jobID string }
type jobStatusMsg struct {
	jobID string
	st    research.Status
	err   error
}
type renderMsg struct {
	convID   string
	cacheKey string
	rendered string
	bottom   bool
	nonce    int
}
type exportMsg struct {
	path string
	err  error
}
type copyMsg struct{ err error }

type conversationItem struct {
	id        string
	title     string
	msgCount  int
	updatedAt time.Time
}

func (i conversationItem) Title() string { return i.title }

func (i conversationItem) Description() string {
	return fmt.Sprintf("%d msgs | %s", i.msgCount, i.updatedAt.Local().Format("2006-01-02 15:04"))
}

func (i conversationItem) FilterValue() string {
	return strings.ToLower(i.title)
}

func NewModel(
	cfg config.AppConfig,
	st store.Store,
	mgr *chat.Manager,
	ctrl *research.Controller,
	client *research.Client,
	exporter *export.Exporter,
	logger *slog.Logger,
) Model {
	if logger == nil {
		logger = slog.Default()
	}

	l := list.New([]list.Item{}, list.NewDefaultDelegate(), 32, 20)
	l.Title = "Conversations"
	l.SetShowFilter(false)
	l.SetFilteringEnabled(false)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.DisableQuitKeybindings()

	vp := viewport.New(60, 20)
	vp.SetContent("Loading conversation...")

	ta := textarea.New()
	ta.Placeholder = "Ask a research question..."
	ta.CharLimit = 4000
	ta.ShowLineNumbers = false
	ta.SetHeight(3)
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Points

	h := help.New()
	h.ShowAll = false

	m := Model{
		cfg:      cfg,
		st:       st,
		mgr:      mgr,
		ctrl:     ctrl,
		client:   client,
		exporter: exporter,
		logger:   logger.With("component", "ui"),

		list:     l,
		viewport: vp,
		input:    ta,
		help:     h,
		spinner:  sp,
		keys:     defaultKeys(),

		focusInput: true,
		modeIdx:    1, // Standard
		rendered:   make(map[string]string),

		sidebarHidden: loadSidebarHidden(st),
	}
	m.applyConversations()
	return m
}

func loadSidebarHidden(st store.Store) bool {
	raw, ok, err := st.Load(store.KeySidebarHidden)
	if err != nil || !ok {
		return false
	}
	return string(raw) == "1"
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.healthCmd())
}

func (m Model) healthCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return healthMsg{err: m.client.Health(ctx)}
	}
}

func (m Model) startJobCmd(query string, mode researchMode) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		jobID, err := m.client.StartJob(ctx, query, research.JobOptions{
			MaxIterations: mode.maxIterations,
			MaxConcurrent: mode.maxConcurrent,
		})
		return startJobMsg{jobID: jobID, err: err}
	}
}

func pollTick(interval time.Duration, jobID string) tea.Cmd {
	return tea.Tick(interval, func(time.Time) tea.Msg {
		return pollTickMsg{jobID: jobID}
	})
}

func (m Model) fetchStatusCmd(jobID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		st, err := m.client.JobStatus(ctx, jobID)
		return jobStatusMsg{jobID: jobID, st: st, err: err}
	}
}

func (m Model) exportCmd(conv *chat.Conversation) tea.Cmd {
	return func() tea.Msg {
		path, err := m.exporter.Export(conv, time.Now())
		return exportMsg{path: path, err: err}
	}
}

func (m Model) copyCmd(report string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return copyMsg{err: clipboard.Copy(ctx, report)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		cmds = append(cmds, m.renderActive(false))

	case healthMsg:
		if msg.err != nil {
			m.status = "Warning: " + msg.err.Error()
		}

	case startJobMsg:
		m.ctrl.HandleStart(msg.jobID, msg.err)
		if m.ctrl.InFlight() {
			cmds = append(cmds, pollTick(m.cfg.PollInterval, msg.jobID))
		} else {
			// Start failed; the error message is already in the conversation.
			m.applyConversations()
			cmds = append(cmds, m.renderActive(true))
		}

	case pollTickMsg:
		if m.ctrl.InFlight() && m.ctrl.JobID() == msg.jobID {
			cmds = append(cmds, m.fetchStatusCmd(msg.jobID))
		}

	case jobStatusMsg:
		if m.ctrl.JobID() != msg.jobID {
			break
		}
		if m.ctrl.HandleStatus(msg.st, msg.err) {
			cmds = append(cmds, pollTick(m.cfg.PollInterval, msg.jobID))
		} else {
			m.applyConversations()
			cmds = append(cmds, m.renderActive(true))
		}

	case renderMsg:
		if msg.nonce != m.renderNonce {
			break
		}
		m.rendering = false
		m.rendered[msg.cacheKey] = msg.rendered
		if m.mgr.ActiveID() == msg.convID {
			m.setViewport(msg.rendered, msg.bottom)
		}

	case exportMsg:
		if msg.err != nil {
			m.err = msg.err
			m.status = "Export failed: " + msg.err.Error()
		} else {
			m.status = "Exported: " + msg.path
		}

	case copyMsg:
		if msg.err != nil {
			if errors.Is(msg.err, clipboard.ErrToolNotFound) {
				m.status = "Could not copy: clipboard tool not found"
			} else {
				m.status = "Could not copy: " + msg.err.Error()
			}
		} else {
			m.status = "Report copied to clipboard"
		}

	case spinner.TickMsg:
		if m.ctrl.InFlight() {
			var spin tea.Cmd
			m.spinner, spin = m.spinner.Update(msg)
			cmds = append(cmds, spin)
		}

	case tea.KeyMsg:
		return m.updateKeys(msg)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.NewChat):
		m.mgr.CreateConversation()
		m.applyConversations()
		m.focusInput = true
		m.input.Focus()
		return m, tea.Batch(m.renderActive(false), textarea.Blink)

	case key.Matches(msg, m.keys.DeleteChat):
		m.deleteActiveConversation()
		return m, m.renderActive(false)

	case key.Matches(msg, m.keys.Sidebar):
		m.sidebarHidden = !m.sidebarHidden
		m.saveSidebarHidden()
		m.resize()
		return m, m.renderActive(false)

	case key.Matches(msg, m.keys.Mode):
		m.modeIdx = (m.modeIdx + 1) % len(researchModes)
		m.status = "Research mode: " + researchModes[m.modeIdx].name
		return m, nil

	case key.Matches(msg, m.keys.Export):
		if conv := m.mgr.Active(); conv != nil && len(conv.Messages) > 0 {
			cmds = append(cmds, m.exportCmd(conv))
		}
		return m, tea.Batch(cmds...)

	case key.Matches(msg, m.keys.Copy):
		if conv := m.mgr.Active(); conv != nil {
			if report := LatestReport(conv); report != "" {
				cmds = append(cmds, m.copyCmd(report))
			} else {
				m.status = "No report to copy yet"
			}
		}
		return m, tea.Batch(cmds...)

	case key.Matches(msg, m.keys.Tab):
		m.toggleFocus()
		return m, nil

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil
	}

	if m.focusInput {
		if key.Matches(msg, m.keys.Submit) {
			return m.submit()
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	// Sidebar focus: navigate conversations, q quits, enter/esc return to
	// the input box.
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "enter", "esc":
		m.toggleFocus()
		return m, nil
	}

	prev := m.mgr.ActiveID()
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	cmds = append(cmds, cmd)
	if id := m.selectedConversationID(); id != "" && id != prev {
		m.mgr.SelectConversation(id)
		cmds = append(cmds, m.renderActive(false))
	}
	return m, tea.Batch(cmds...)
}

// submit runs the local half of a submission; the start-job network call
// happens in a command after the user message is already visible.
func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.ctrl.InFlight() {
		m.status = "Research already in progress"
		return m, nil
	}

	query, ok := m.ctrl.Begin(m.mgr.ActiveID(), m.input.Value())
	if !ok {
		return m, nil
	}

	m.input.Reset()
	m.applyConversations()
	mode := researchModes[m.modeIdx]
	m.logger.Info("submitting research", "mode", mode.name)
	return m, tea.Batch(
		m.renderActive(true),
		m.startJobCmd(query, mode),
		m.spinner.Tick,
	)
}

func (m *Model) toggleFocus() {
	m.focusInput = !m.focusInput
	if m.focusInput {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
}

func (m *Model) deleteActiveConversation() {
	id := m.mgr.ActiveID()
	if id == "" {
		return
	}
	m.mgr.DeleteConversation(id)

	if m.mgr.Active() == nil {
		if recent := m.mgr.MostRecentlyUpdated(); recent != nil {
			m.mgr.SelectConversation(recent.ID)
		} else {
			m.mgr.CreateConversation()
		}
	}
	m.applyConversations()
}

func (m *Model) saveSidebarHidden() {
	value := []byte("0")
	if m.sidebarHidden {
		value = []byte("1")
	}
	if err := m.st.Save(store.KeySidebarHidden, value); err != nil {
		m.logger.Warn("save sidebar flag", "err", err)
	}
}

// applyConversations rebuilds the sidebar items and keeps the selection on
// the active conversation.
func (m *Model) applyConversations() {
	convs := m.mgr.Conversations()
	items := make([]list.Item, 0, len(convs))
	selectIdx := 0
	for idx, c := range convs {
		items = append(items, conversationItem{
			id:        c.ID,
			title:     c.Title,
			msgCount:  len(c.Messages),
			updatedAt: c.UpdatedAt,
		})
		if c.ID == m.mgr.ActiveID() {
			selectIdx = idx
		}
	}
	m.list.SetItems(items)
	if len(items) > 0 {
		m.list.Select(selectIdx)
	}
}

func (m *Model) selectedConversationID() string {
	item, ok := m.list.SelectedItem().(conversationItem)
	if !ok {
		return ""
	}
	return item.id
}

// renderActive kicks off a glamour render of the active conversation,
// reusing the cache when the content has not changed at this width.
func (m *Model) renderActive(gotoBottom bool) tea.Cmd {
	conv := m.mgr.Active()
	if conv == nil {
		m.viewport.SetContent("No conversation selected")
		return nil
	}

	md := welcomeMarkdown
	if len(conv.Messages) > 0 {
		md = BuildTranscriptMarkdown(conv)
	}

	cacheKey := fmt.Sprintf("%s|w=%d|n=%d", conv.ID, m.viewport.Width, len(conv.Messages))
	if rendered, ok := m.rendered[cacheKey]; ok {
		m.setViewport(rendered, gotoBottom)
		return nil
	}

	m.rendering = true
	m.renderNonce++
	nonce := m.renderNonce
	wrap := m.viewport.Width - 2
	if wrap < 20 {
		wrap = 20
	}
	convID := conv.ID
	style := m.cfg.GlamourStyle

	return func() tea.Msg {
		rendered := md
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(style),
			glamour.WithWordWrap(wrap),
		)
		if err == nil {
			if out, renderErr := r.Render(md); renderErr == nil {
				rendered = out
			}
		}
		return renderMsg{
			convID:   convID,
			cacheKey: cacheKey,
			rendered: rendered,
			bottom:   gotoBottom,
			nonce:    nonce,
		}
	}
}

func (m *Model) setViewport(content string, gotoBottom bool) {
	m.viewport.SetContent(content)
	if gotoBottom {
		m.viewport.GotoBottom()
	} else {
		m.viewport.GotoTop()
	}
}

func (m *Model) resize() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	left, right := m.paneWidths()

	inputHeight := 5
	bodyHeight := m.height - inputHeight - 3
	if bodyHeight < 8 {
		bodyHeight = 8
	}

	m.list.SetSize(left-2, bodyHeight-2)
	m.viewport.Width = right - 2
	m.viewport.Height = bodyHeight - 2
	m.input.SetWidth(m.width - 4)
}

func (m *Model) paneWidths() (int, int) {
	if m.sidebarHidden {
		return 0, m.width
	}
	left := m.width / 4
	if left < 28 {
		left = 28
	}
	if left > m.width-40 {
		left = m.width - 40
	}
	if left < 20 {
		left = 20
	}
	right := m.width - left - 1
	if right < 20 {
		right = 20
	}
	return left, right
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Starting..."
	}

	_, right := m.paneWidths()
	bodyHeight := m.viewport.Height + 2

	transcript := panelStyle(!m.focusInput && m.sidebarHidden || m.focusInput).
		Width(right).Height(bodyHeight).Render(m.viewport.View())

	var body string
	if m.sidebarHidden {
		body = transcript
	} else {
		left, _ := m.paneWidths()
		sidebar := panelStyle(!m.focusInput).Width(left).Height(bodyHeight).Render(m.list.View())
		body = lipgloss.JoinHorizontal(lipgloss.Top, sidebar, transcript)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.statusLine(),
		body,
		inputStyle.Render(m.input.View()),
		m.help.View(m.keys),
	)
}

func (m Model) statusLine() string {
	parts := []string{"mode: " + researchModes[m.modeIdx].name}

	if conv := m.mgr.Active(); conv != nil {
		parts = append(parts, fmt.Sprintf("messages=%d", len(conv.Messages)))
	}
	if m.ctrl.InFlight() {
		parts = append(parts, m.spinner.View()+" "+m.ctrl.Progress())
	}
	if m.rendering {
		parts = append(parts, "[rendering]")
	}
	if strings.TrimSpace(m.status) != "" {
		parts = append(parts, strings.TrimSpace(m.status))
	}
	if m.err != nil {
		parts = append(parts, "err="+m.err.Error())
	}

	line := strings.Join(parts, "  ")
	width := m.width - 2
	if width < 10 {
		width = 10
	}
	return statusStyle.Render(ansi.Truncate(line, width, "..."))
}

var (
	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("24")).
			Padding(0, 1)
	inputStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), true).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

func panelStyle(active bool) lipgloss.Style {
	border := lipgloss.NormalBorder()
	if active {
		return lipgloss.NewStyle().
			Border(border, true).
			BorderForeground(lipgloss.Color("39")).
			Padding(0, 1)
	}
	return lipgloss.NewStyle().
		Border(border, true).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)
}

type keyMap struct {
	Submit     key.Binding
	NewChat    key.Binding
	DeleteChat key.Binding
	Tab        key.Binding
	Sidebar    key.Binding
	Mode       key.Binding
	Export     key.Binding
	Copy       key.Binding
	PageUp     key.Binding
	PageDown   key.Binding
	Quit       key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "submit"),
		),
		NewChat: key.NewBinding(
			key.WithKeys("ctrl+n"),
			key.WithHelp("ctrl+n", "new chat"),
		),
		DeleteChat: key.NewBinding(
			key.WithKeys("ctrl+x"),
			key.WithHelp("ctrl+x", "delete chat"),
		),
		Tab: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "focus sidebar"),
		),
		Sidebar: key.NewBinding(
			key.WithKeys("ctrl+b"),
			key.WithHelp("ctrl+b", "toggle sidebar"),
		),
		Mode: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("ctrl+r", "research mode"),
		),
		Export: key.NewBinding(
			key.WithKeys("ctrl+e"),
			key.WithHelp("ctrl+e", "export"),
		),
		Copy: key.NewBinding(
			key.WithKeys("ctrl+y"),
			key.WithHelp("ctrl+y", "copy report"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("pgup", "scroll up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("pgdn", "scroll down"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "quit"),
		),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Submit, k.NewChat, k.Tab, k.Mode, k.Export, k.Copy, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Submit, k.NewChat, k.DeleteChat, k.Tab},
		{k.Sidebar, k.Mode, k.Export, k.Copy},
		{k.PageUp, k.PageDown, k.Quit},
	}
}
