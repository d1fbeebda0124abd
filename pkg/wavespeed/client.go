package wavespeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the production API origin.
	DefaultBaseURL = "https://api.wavespeed.ai"

	// DefaultPollInterval is the delay between status polls while waiting.
	DefaultPollInterval = 5 * time.Second

	// DefaultWaitTimeout is the wall-clock budget for a blocking wait.
	DefaultWaitTimeout = 1800 * time.Second

	// DefaultRequestTimeout bounds a single control call.
	DefaultRequestTimeout = 30 * time.Second

	resultPathFormat = "/api/v2/predictions/%s/result"

	// seedModulus folds user-supplied seeds into the range the service
	// accepts. The sentinel -1 ("random") passes through untouched.
	seedModulus = 9999999999
)

// Request is one buildable API call: an endpoint path plus a payload builder.
// Payload returns a ValidationError before any network I/O when the bound
// values do not satisfy the endpoint's schema.
type Request interface {
	Path() string
	Payload() (map[string]interface{}, error)
}

// ClientConfig configures a Client. The zero value of every field other than
// APIKey selects a default.
type ClientConfig struct {
	APIKey       string
	BaseURL      string
	HTTPClient   *http.Client
	Logger       *zap.Logger
	PollInterval time.Duration
	WaitTimeout  time.Duration
}

// Client talks to the WaveSpeed AI API. An instance holds only its credential
// and timing defaults; it performs no retries and keeps no state across calls.
// Use one instance per concurrent caller.
type Client struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	logger       *zap.Logger
	pollInterval time.Duration
	waitTimeout  time.Duration
}

// New creates a Client from a config, applying defaults for unset fields.
func New(cfg ClientConfig) *Client {
	c := &Client{
		apiKey:       cfg.APIKey,
		baseURL:      cfg.BaseURL,
		httpClient:   cfg.HTTPClient,
		logger:       cfg.Logger,
		pollInterval: cfg.PollInterval,
		waitTimeout:  cfg.WaitTimeout,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: DefaultRequestTimeout}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	if c.waitTimeout <= 0 {
		c.waitTimeout = DefaultWaitTimeout
	}
	return c
}

// NewClient creates a Client with default settings.
func NewClient(apiKey string) *Client {
	return New(ClientConfig{APIKey: apiKey})
}

// Submit builds the request payload and posts it, returning the task the
// service assigned. Outputs are always requested as URLs, never inline base64.
func (c *Client) Submit(ctx context.Context, req Request) (*Task, error) {
	payload, err := req.Payload()
	if err != nil {
		return nil, err
	}

	body := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	body["enable_base64_output"] = false
	if seed, ok := body["seed"]; ok {
		body["seed"] = normalizeSeed(seed)
	}

	data, err := c.post(ctx, req.Path(), body)
	if err != nil {
		return nil, err
	}

	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to parse response: %v", err)
	}
	if task.ID == "" {
		return nil, &SubmissionError{}
	}
	c.logger.Info("task submitted",
		zap.String("task_id", task.ID),
		zap.String("endpoint", req.Path()))
	return &task, nil
}

// Poll performs a single status check for the given task.
func (c *Client) Poll(ctx context.Context, taskID string) (*TaskResult, error) {
	if taskID == "" {
		return nil, &InvalidTaskIDError{}
	}
	data, err := c.get(ctx, fmt.Sprintf(resultPathFormat, taskID))
	if err != nil {
		return nil, err
	}
	var result TaskResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %v", err)
	}
	if result.ID == "" {
		result.ID = taskID
	}
	return &result, nil
}

// WaitOptions tune a blocking wait. Zero values select the client defaults.
type WaitOptions struct {
	PollInterval time.Duration
	Timeout      time.Duration
}

// Wait blocks until the task completes, fails, or the wall-clock timeout
// elapses. It polls, inspects the status, and sleeps between polls; the
// calling goroutine is occupied for the whole duration. A failed task yields
// a TaskFailedError with the server-supplied reason; an exhausted budget
// yields a TaskTimeoutError with no further polls.
func (c *Client) Wait(ctx context.Context, taskID string, opts *WaitOptions) (*TaskResult, error) {
	if taskID == "" {
		return nil, &InvalidTaskIDError{}
	}

	interval := c.pollInterval
	timeout := c.waitTimeout
	if opts != nil {
		if opts.PollInterval > 0 {
			interval = opts.PollInterval
		}
		if opts.Timeout > 0 {
			timeout = opts.Timeout
		}
	}

	start := time.Now()
	for time.Since(start) < timeout {
		result, err := c.Poll(ctx, taskID)
		if err != nil {
			return nil, err
		}
		switch result.Status {
		case StatusCompleted:
			c.logger.Info("task completed",
				zap.String("task_id", taskID),
				zap.Duration("elapsed", time.Since(start)))
			return result, nil
		case StatusFailed:
			return nil, &TaskFailedError{TaskID: taskID, Reason: result.Error}
		}
		c.logger.Debug("task in progress",
			zap.String("task_id", taskID),
			zap.String("status", string(result.Status)))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
	return nil, &TaskTimeoutError{TaskID: taskID, Timeout: timeout}
}

// RunOptions tune a Run call. NoWait returns right after submission.
type RunOptions struct {
	NoWait       bool
	PollInterval time.Duration
	Timeout      time.Duration
}

// Run submits the request and, unless NoWait is set, blocks for the result.
// With NoWait the returned result carries only the task ID and a processing
// status.
func (c *Client) Run(ctx context.Context, req Request, opts *RunOptions) (*TaskResult, error) {
	task, err := c.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	if opts != nil && opts.NoWait {
		return &TaskResult{ID: task.ID, Status: StatusProcessing}, nil
	}
	var wait *WaitOptions
	if opts != nil {
		wait = &WaitOptions{PollInterval: opts.PollInterval, Timeout: opts.Timeout}
	}
	return c.Wait(ctx, task.ID, wait)
}

// normalizeSeed folds a numeric seed into [0, seedModulus), preserving the
// sentinel -1. Values arrive as int, int64, or float64 depending on whether
// the payload came from Go code or decoded JSON.
func normalizeSeed(v interface{}) interface{} {
	var n int64
	switch s := v.(type) {
	case int:
		n = int64(s)
	case int64:
		n = s
	case float64:
		n = int64(s)
	case json.Number:
		parsed, err := s.Int64()
		if err != nil {
			return v
		}
		n = parsed
	default:
		return v
	}
	if n == -1 {
		return n
	}
	n %= seedModulus
	if n < 0 {
		n += seedModulus
	}
	return n
}
