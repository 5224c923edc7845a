package research

import (
	"context"
	"fmt"
	"time"
)

const (
	// DefaultPollInterval is the fixed cadence between status checks.
	DefaultPollInterval = time.Second
	// DefaultMaxAttempts bounds total wall-clock waiting to five minutes.
	DefaultMaxAttempts = 300
)

// Fallbacks mirror the service's own placeholder wording.
const (
	defaultProgress = "Research in progress..."
	defaultResult   = "Research completed but no report was generated."
	defaultJobError = "The research service reported a failure with no detail."
	timeoutMessage  = "Research timed out after 5 minutes of polling. Try a narrower or more specific query."
)

type OutcomeKind int

const (
	OutcomeCompleted OutcomeKind = iota
	OutcomeFailed
	OutcomeTimedOut
	OutcomeTransportError
)

// Outcome is the single terminal result of polling one job.
type Outcome struct {
	Kind OutcomeKind
	Text string
}

// Transition is the result of one status observation: either a progress
// update while polling continues, or the terminal outcome. Exactly one of
// the two is populated for a live poller.
type Transition struct {
	Progress string
	Outcome  *Outcome
}

// Poller drives one job from submission to exactly one terminal outcome.
// The cadence is owned by the caller (a ticker, or tea.Tick in the UI);
// Observe is the transition step. Once terminal, further observations are
// no-ops, so the outcome can never be delivered twice.
type Poller struct {
	jobID       string
	maxAttempts int
	attempts    int
	done        bool
}

func NewPoller(jobID string) *Poller {
	return &Poller{jobID: jobID, maxAttempts: DefaultMaxAttempts}
}

func (p *Poller) JobID() string { return p.jobID }
func (p *Poller) Done() bool    { return p.done }

// Observe feeds one fetch result into the state machine.
func (p *Poller) Observe(st Status, fetchErr error) Transition {
	if p.done {
		return Transition{}
	}
	if fetchErr != nil {
		return p.terminal(OutcomeTransportError, fmt.Sprintf("Could not reach the research service: %v", fetchErr))
	}

	switch st.Status {
	case StatusCompleted:
		text := st.Result
		if text == "" {
			text = defaultResult
		}
		return p.terminal(OutcomeCompleted, text)
	case StatusFailed:
		text := st.Error
		if text == "" {
			text = defaultJobError
		}
		return p.terminal(OutcomeFailed, text)
	}

	// Every other status string keeps polling, unknown values included.
	p.attempts++
	if p.attempts >= p.maxAttempts {
		return p.terminal(OutcomeTimedOut, timeoutMessage)
	}
	progress := st.Progress
	if progress == "" {
		progress = defaultProgress
	}
	return Transition{Progress: progress}
}

func (p *Poller) terminal(kind OutcomeKind, text string) Transition {
	p.done = true
	return Transition{Outcome: &Outcome{Kind: kind, Text: text}}
}

// FetchFunc fetches the current status of a job.
type FetchFunc func(ctx context.Context, jobID string) (Status, error)

// Run polls on a fixed interval until the terminal outcome, invoking
// onProgress for every non-terminal observation. It blocks the caller and
// is used by the headless ask mode; the TUI drives Observe through timer
// messages instead.
func (p *Poller) Run(ctx context.Context, interval time.Duration, fetch FetchFunc, onProgress func(string)) Outcome {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.done = true
			return Outcome{Kind: OutcomeTransportError, Text: fmt.Sprintf("Could not reach the research service: %v", ctx.Err())}
		case <-ticker.C:
		}

		st, err := fetch(ctx, p.jobID)
		tr := p.Observe(st, err)
		if tr.Outcome != nil {
			return *tr.Outcome
		}
		if onProgress != nil {
			onProgress(tr.Progress)
		}
	}
}
