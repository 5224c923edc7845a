package research

import (
	"log/slog"
	"strings"

	"github.com/dsouza-anush/open-deep-research/internal/chat"
)

// Progress text shown between local acceptance and the first status fetch.
const startingProgress = "Starting research..."

// Controller orchestrates one research submission end to end and enforces
// at most one in-flight job. Its methods are synchronous; the caller wires
// the actual network calls between the phases, so the controller can run
// inside a single-threaded event loop.
//
// A submission only ever adds messages to its conversation. Existing
// messages are never touched.
type Controller struct {
	mgr    *chat.Manager
	logger *slog.Logger

	inFlight       bool
	progress       string
	poller         *Poller
	conversationID string
}

func NewController(mgr *chat.Manager, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{mgr: mgr, logger: logger.With("component", "submit")}
}

func (c *Controller) InFlight() bool {
	return c.inFlight
}

// Progress is the current progress text, empty when nothing is in flight.
func (c *Controller) Progress() string {
	return c.progress
}

// JobID identifies the job being polled, empty before acceptance and after
// settlement.
func (c *Controller) JobID() string {
	if c.poller == nil {
		return ""
	}
	return c.poller.JobID()
}

// Begin validates a submission and appends the user message, guaranteeing
// it is visible before any network call. It returns the trimmed query and
// whether the submission may proceed to the start-job call. Rejections are
// silent: no message, no state change.
func (c *Controller) Begin(conversationID, raw string) (string, bool) {
	query := strings.TrimSpace(raw)
	if query == "" || c.inFlight {
		return "", false
	}
	active := c.mgr.Active()
	if active == nil || active.ID != conversationID {
		return "", false
	}

	c.mgr.AppendMessage(conversationID, chat.NewMessage(chat.RoleUser, query))
	c.inFlight = true
	c.progress = startingProgress
	c.conversationID = conversationID
	c.logger.Info("submission accepted", "conversation_id", conversationID, "query_len", len(query))
	return query, true
}

// HandleStart consumes the result of the start-job call. A failure settles
// the submission immediately, without polling; a success arms the poller.
func (c *Controller) HandleStart(jobID string, err error) {
	if !c.inFlight {
		return
	}
	if err != nil {
		c.logger.Warn("job start failed", "err", err)
		c.settle("Research failed to start: " + err.Error())
		return
	}
	c.poller = NewPoller(jobID)
}

// HandleStatus consumes one status fetch and reports whether polling
// should continue. Progress transitions update the visible progress text
// in fetch order; the terminal transition appends the submission's single
// assistant message.
func (c *Controller) HandleStatus(st Status, fetchErr error) bool {
	if !c.inFlight || c.poller == nil {
		return false
	}

	tr := c.poller.Observe(st, fetchErr)
	if tr.Outcome == nil {
		c.progress = tr.Progress
		return true
	}

	switch tr.Outcome.Kind {
	case OutcomeCompleted:
		c.settle(tr.Outcome.Text)
	case OutcomeFailed:
		c.settle("Research failed: " + tr.Outcome.Text)
	default:
		// Timeout and transport outcomes carry their own distinct wording.
		c.settle(tr.Outcome.Text)
	}
	return false
}

// settle appends the terminal assistant message and returns the controller
// to the submittable state.
func (c *Controller) settle(content string) {
	c.mgr.AppendMessage(c.conversationID, chat.NewMessage(chat.RoleAssistant, content))
	c.inFlight = false
	c.progress = ""
	c.poller = nil
	c.conversationID = ""
}
