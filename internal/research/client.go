package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Job status values reported by the research service. Anything outside
// this list is treated as "still running"; the service's vocabulary is not
// fully enumerated.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Status is one polled observation of a research job.
type Status struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Progress string `json:"progress"`
	Result   string `json:"result"`
	Error    string `json:"error"`
}

// JobOptions tune how the service runs one job. Zero values are omitted
// from the request so the service applies its own defaults.
type JobOptions struct {
	MaxIterations int
	MaxConcurrent int
}

type startRequest struct {
	Query  string         `json:"query"`
	Config map[string]any `json:"config,omitempty"`
}

type startResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Client talks to the research service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger.With("component", "research"),
	}
}

// StartJob asks the service to run a research job for query. It succeeds
// only when the service acknowledges with a pending status and a job id;
// any other response shape is an error carrying the server's message.
func (c *Client) StartJob(ctx context.Context, query string, opts JobOptions) (string, error) {
	reqBody := startRequest{Query: query}
	if opts.MaxIterations > 0 || opts.MaxConcurrent > 0 {
		reqBody.Config = map[string]any{}
		if opts.MaxIterations > 0 {
			reqBody.Config["max_researcher_iterations"] = opts.MaxIterations
		}
		if opts.MaxConcurrent > 0 {
			reqBody.Config["max_concurrent_research_units"] = opts.MaxConcurrent
		}
	}

	raw, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("encode start request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/research/async", bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("build start request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("start research job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("start research job: server returned %s", resp.Status)
	}

	var out startResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode start response: %w", err)
	}
	if out.Status != StatusPending || out.JobID == "" {
		if out.Message != "" {
			return "", fmt.Errorf("research job rejected: %s", out.Message)
		}
		return "", fmt.Errorf("research job rejected: unexpected status %q", out.Status)
	}

	c.logger.Info("research job started", "job_id", out.JobID)
	return out.JobID, nil
}

// JobStatus fetches the current state of a job.
func (c *Client) JobStatus(ctx context.Context, jobID string) (Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/research/status/"+url.PathEscape(jobID), nil)
	if err != nil {
		return Status{}, fmt.Errorf("build status request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Status{}, fmt.Errorf("fetch job status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Status{}, fmt.Errorf("fetch job status: server returned %s", resp.Status)
	}

	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return Status{}, fmt.Errorf("decode job status: %w", err)
	}
	return st, nil
}

// Health probes the service so the UI can warn before the first submission.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("research service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("research service unhealthy: %s", resp.Status)
	}
	return nil
}
