package ui

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsouza-anush/open-deep-research/internal/chat"
	"github.com/dsouza-anush/open-deep-research/internal/config"
	"github.com/dsouza-anush/open-deep-research/internal/export"
	"github.com/dsouza-anush/open-deep-research/internal/research"
	"github.com/dsouza-anush/open-deep-research/internal/store"
)

func newTestModel(t *testing.T) Model {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMemoryStore()
	mgr, err := chat.NewManager(st, logger)
	require.NoError(t, err)
	ctrl := research.NewController(mgr, logger)
	client := research.NewClient("http://localhost:0", logger)
	exp, err := export.New(t.TempDir())
	require.NoError(t, err)

	cfg := config.AppConfig{
		ServerURL:    "http://localhost:0",
		GlamourStyle: "dark",
		PollInterval: research.DefaultPollInterval,
		MaxAttempts:  research.DefaultMaxAttempts,
	}
	return NewModel(cfg, st, mgr, ctrl, client, exp, logger)
}

func asModel(t *testing.T, tm tea.Model) Model {
	t.Helper()
	m, ok := tm.(Model)
	require.True(t, ok, "update must return ui.Model")
	return m
}

func TestSubmitAppendsUserMessageFirst(t *testing.T) {
	m := newTestModel(t)
	m.input.SetValue("  What is new in fusion?  ")

	tm, cmd := m.submit()
	m = asModel(t, tm)

	require.NotNil(t, cmd)
	assert.True(t, m.ctrl.InFlight())
	assert.Empty(t, m.input.Value())

	conv := m.mgr.Active()
	require.NotNil(t, conv)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, chat.RoleUser, conv.Messages[0].Role)
	assert.Equal(t, "What is new in fusion?", conv.Messages[0].Content)
}

func TestSubmitRejectsEmptyInput(t *testing.T) {
	m := newTestModel(t)
	m.input.SetValue("   ")

	tm, cmd := m.submit()
	m = asModel(t, tm)

	assert.Nil(t, cmd)
	assert.False(t, m.ctrl.InFlight())
	assert.Empty(t, m.mgr.Active().Messages)
}

func TestStartFailureSettlesWithoutPolling(t *testing.T) {
	m := newTestModel(t)
	_, ok := m.ctrl.Begin(m.mgr.ActiveID(), "query")
	require.True(t, ok)

	tm, _ := m.Update(startJobMsg{err: assert.AnError})
	m = asModel(t, tm)

	assert.False(t, m.ctrl.InFlight())
	conv := m.mgr.Active()
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, chat.RoleAssistant, conv.Messages[1].Role)
	assert.Contains(t, conv.Messages[1].Content, "Research failed to start")
}

func TestJobStatusProgressKeepsPolling(t *testing.T) {
	m := newTestModel(t)
	_, ok := m.ctrl.Begin(m.mgr.ActiveID(), "query")
	require.True(t, ok)
	m.ctrl.HandleStart("job-1", nil)

	tm, cmd := m.Update(jobStatusMsg{
		jobID: "job-1",
		st:    research.Status{JobID: "job-1", Status: research.StatusInProgress, Progress: "Searching sources"},
	})
	m = asModel(t, tm)

	require.NotNil(t, cmd, "a progress status must schedule the next poll")
	assert.True(t, m.ctrl.InFlight())
	assert.Equal(t, "Searching sources", m.ctrl.Progress())
	assert.Len(t, m.mgr.Active().Messages, 1)
}

func TestJobStatusCompletionAppendsReport(t *testing.T) {
	m := newTestModel(t)
	_, ok := m.ctrl.Begin(m.mgr.ActiveID(), "query")
	require.True(t, ok)
	m.ctrl.HandleStart("job-1", nil)

	tm, _ := m.Update(jobStatusMsg{
		jobID: "job-1",
		st:    research.Status{JobID: "job-1", Status: research.StatusCompleted, Result: "# Report"},
	})
	m = asModel(t, tm)

	assert.False(t, m.ctrl.InFlight())
	conv := m.mgr.Active()
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "# Report", conv.Messages[1].Content)
}

func TestStaleJobStatusIsIgnored(t *testing.T) {
	m := newTestModel(t)
	_, ok := m.ctrl.Begin(m.mgr.ActiveID(), "query")
	require.True(t, ok)
	m.ctrl.HandleStart("job-2", nil)

	tm, cmd := m.Update(jobStatusMsg{
		jobID: "job-1",
		st:    research.Status{JobID: "job-1", Status: research.StatusCompleted, Result: "stale"},
	})
	m = asModel(t, tm)

	assert.Nil(t, cmd)
	assert.True(t, m.ctrl.InFlight())
	assert.Len(t, m.mgr.Active().Messages, 1)
}

func TestStalePollTickIsDropped(t *testing.T) {
	m := newTestModel(t)
	_, ok := m.ctrl.Begin(m.mgr.ActiveID(), "query")
	require.True(t, ok)
	m.ctrl.HandleStart("job-2", nil)

	_, cmd := m.Update(pollTickMsg{jobID: "job-1"})
	assert.Nil(t, cmd)
}

func TestDeleteActiveFallsBackToMostRecent(t *testing.T) {
	m := newTestModel(t)
	first := m.mgr.ActiveID()
	m.mgr.CreateConversation()
	second := m.mgr.ActiveID()
	require.NotEqual(t, first, second)

	m.deleteActiveConversation()

	assert.Equal(t, first, m.mgr.ActiveID())
	assert.Len(t, m.mgr.Conversations(), 1)
}

func TestDeleteLastConversationCreatesFresh(t *testing.T) {
	m := newTestModel(t)
	only := m.mgr.ActiveID()

	m.deleteActiveConversation()

	require.Len(t, m.mgr.Conversations(), 1)
	assert.NotEqual(t, only, m.mgr.ActiveID())
	assert.NotEmpty(t, m.mgr.ActiveID())
}

func TestSidebarToggleIsPersisted(t *testing.T) {
	m := newTestModel(t)
	require.False(t, m.sidebarHidden)

	tm, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlB})
	m = asModel(t, tm)

	assert.True(t, m.sidebarHidden)
	raw, ok, err := m.st.Load(store.KeySidebarHidden)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", string(raw))
	assert.True(t, loadSidebarHidden(m.st))
}

func TestModeCycling(t *testing.T) {
	m := newTestModel(t)
	start := m.modeIdx
	for i := 0; i < len(researchModes); i++ {
		tm, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlR})
		m = asModel(t, tm)
	}
	assert.Equal(t, start, m.modeIdx, "cycling through all modes returns to the start")
}

func TestBuildTranscriptMarkdown(t *testing.T) {
	conv := &chat.Conversation{
		Messages: []chat.Message{
			{Role: chat.RoleUser, Content: "question"},
			{Role: chat.RoleAssistant, Content: "answer"},
			{Role: chat.RoleAssistant, Content: "  "},
		},
	}
	md := BuildTranscriptMarkdown(conv)
	assert.Contains(t, md, "## You\n\nquestion")
	assert.Contains(t, md, "## Researcher\n\nanswer")
	assert.Equal(t, 1, strings.Count(md, "## Researcher"), "blank messages are skipped")
}

func TestLatestReport(t *testing.T) {
	conv := &chat.Conversation{
		Messages: []chat.Message{
			{Role: chat.RoleUser, Content: "q1"},
			{Role: chat.RoleAssistant, Content: "r1"},
			{Role: chat.RoleUser, Content: "q2"},
			{Role: chat.RoleAssistant, Content: "r2"},
		},
	}
	assert.Equal(t, "r2", LatestReport(conv))
	assert.Empty(t, LatestReport(&chat.Conversation{}))
}
