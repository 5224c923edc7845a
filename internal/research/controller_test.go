package research

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsouza-anush/open-deep-research/internal/chat"
	"github.com/dsouza-anush/open-deep-research/internal/store"
)

func newTestController(t *testing.T) (*Controller, *chat.Manager) {
	t.Helper()
	mgr, err := chat.NewManager(store.NewMemoryStore(), nil)
	require.NoError(t, err)
	return NewController(mgr, nil), mgr
}

func TestBeginAppendsUserMessageBeforeAnyNetworkCall(t *testing.T) {
	ctrl, mgr := newTestController(t)
	conv := mgr.Active()

	query, ok := ctrl.Begin(conv.ID, "  what changed in EV markets?  ")
	require.True(t, ok)
	assert.Equal(t, "what changed in EV markets?", query)

	// The user message is already persisted; no network call has happened.
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, chat.RoleUser, conv.Messages[0].Role)
	assert.Equal(t, "what changed in EV markets?", conv.Messages[0].Content)
	assert.True(t, ctrl.InFlight())
	assert.Equal(t, "Starting research...", ctrl.Progress())
}

func TestBeginRejectsEmptyInput(t *testing.T) {
	ctrl, mgr := newTestController(t)
	conv := mgr.Active()

	_, ok := ctrl.Begin(conv.ID, "   \n\t ")
	assert.False(t, ok)
	assert.Empty(t, conv.Messages)
	assert.False(t, ctrl.InFlight())
}

func TestBeginRejectsWhenNoActiveConversation(t *testing.T) {
	ctrl, mgr := newTestController(t)
	id := mgr.ActiveID()
	mgr.DeleteConversation(id)

	_, ok := ctrl.Begin(id, "query")
	assert.False(t, ok)
	assert.False(t, ctrl.InFlight())
}

func TestResubmitWhileInFlightIsNoOp(t *testing.T) {
	ctrl, mgr := newTestController(t)
	conv := mgr.Active()

	_, ok := ctrl.Begin(conv.ID, "first")
	require.True(t, ok)
	ctrl.HandleStart("job-1", nil)

	_, ok = ctrl.Begin(conv.ID, "second")
	assert.False(t, ok)
	assert.Len(t, conv.Messages, 1, "message count unchanged on rejected resubmit")
}

func TestStartFailureAppendsSingleErrorMessageWithoutPolling(t *testing.T) {
	ctrl, mgr := newTestController(t)
	conv := mgr.Active()

	_, ok := ctrl.Begin(conv.ID, "query")
	require.True(t, ok)

	ctrl.HandleStart("", errors.New("server returned 500 Internal Server Error"))

	require.Len(t, conv.Messages, 2)
	assert.Equal(t, chat.RoleAssistant, conv.Messages[1].Role)
	assert.Contains(t, conv.Messages[1].Content, "Research failed to start")
	assert.Contains(t, conv.Messages[1].Content, "500")
	assert.False(t, ctrl.InFlight())
	assert.Empty(t, ctrl.Progress())
	assert.Empty(t, ctrl.JobID(), "no poller should be armed after a start failure")
}

func TestCompletedJobAppendsReport(t *testing.T) {
	ctrl, mgr := newTestController(t)
	conv := mgr.Active()

	_, ok := ctrl.Begin(conv.ID, "query")
	require.True(t, ok)
	ctrl.HandleStart("job-1", nil)
	assert.Equal(t, "job-1", ctrl.JobID())

	cont := ctrl.HandleStatus(Status{Status: StatusInProgress, Progress: "Searching sources..."}, nil)
	assert.True(t, cont)
	assert.Equal(t, "Searching sources...", ctrl.Progress())

	cont = ctrl.HandleStatus(Status{Status: StatusCompleted, Result: "# Report\n\nfindings"}, nil)
	assert.False(t, cont)

	require.Len(t, conv.Messages, 2)
	assert.Equal(t, chat.RoleAssistant, conv.Messages[1].Role)
	assert.Equal(t, "# Report\n\nfindings", conv.Messages[1].Content)
	assert.False(t, ctrl.InFlight())
	assert.Empty(t, ctrl.Progress())
}

func TestFailedJobGetsFailurePrefix(t *testing.T) {
	ctrl, mgr := newTestController(t)
	conv := mgr.Active()

	ctrl.Begin(conv.ID, "query")
	ctrl.HandleStart("job-1", nil)
	ctrl.HandleStatus(Status{Status: StatusFailed, Error: "search quota exceeded"}, nil)

	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "Research failed: search quota exceeded", conv.Messages[1].Content)
	assert.False(t, ctrl.InFlight())
}

func TestTimeoutWordingIsDistinct(t *testing.T) {
	ctrl, mgr := newTestController(t)
	conv := mgr.Active()

	ctrl.Begin(conv.ID, "query")
	ctrl.HandleStart("job-1", nil)
	for i := 0; i < DefaultMaxAttempts-1; i++ {
		require.True(t, ctrl.HandleStatus(Status{Status: StatusInProgress}, nil))
	}
	assert.False(t, ctrl.HandleStatus(Status{Status: StatusInProgress}, nil))

	require.Len(t, conv.Messages, 2)
	content := conv.Messages[1].Content
	assert.Contains(t, content, "timed out")
	assert.NotContains(t, content, "Research failed:")
	assert.False(t, ctrl.InFlight())
}

func TestPollingTransportErrorSettlesSubmission(t *testing.T) {
	ctrl, mgr := newTestController(t)
	conv := mgr.Active()

	ctrl.Begin(conv.ID, "query")
	ctrl.HandleStart("job-1", nil)
	cont := ctrl.HandleStatus(Status{}, errors.New("dial tcp: connection refused"))
	assert.False(t, cont)

	require.Len(t, conv.Messages, 2)
	assert.Contains(t, conv.Messages[1].Content, "Could not reach the research service")
	assert.False(t, ctrl.InFlight())
}

func TestSystemIsResubmittableAfterEveryTerminalPath(t *testing.T) {
	ctrl, mgr := newTestController(t)
	conv := mgr.Active()

	// Failure path, then a fresh successful submission.
	ctrl.Begin(conv.ID, "first")
	ctrl.HandleStart("", errors.New("boom"))
	require.False(t, ctrl.InFlight())

	_, ok := ctrl.Begin(conv.ID, "second")
	require.True(t, ok)
	ctrl.HandleStart("job-2", nil)
	ctrl.HandleStatus(Status{Status: StatusCompleted, Result: "done"}, nil)

	assert.False(t, ctrl.InFlight())
	assert.Len(t, conv.Messages, 4)
}

func TestExactlyOneTerminalAssistantMessagePerSubmission(t *testing.T) {
	ctrl, mgr := newTestController(t)
	conv := mgr.Active()

	ctrl.Begin(conv.ID, "query")
	ctrl.HandleStart("job-1", nil)
	ctrl.HandleStatus(Status{Status: StatusCompleted, Result: "done"}, nil)

	// Stray messages after settlement must be ignored.
	assert.False(t, ctrl.HandleStatus(Status{Status: StatusFailed, Error: "late"}, nil))
	assert.Len(t, conv.Messages, 2)
}
