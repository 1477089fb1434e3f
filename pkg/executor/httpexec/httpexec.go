// Package httpexec implements the execution collaborator over HTTP. It posts
// routed actions to a remediation execution service and maps transport and
// API failures to the SDK's typed errors.
package httpexec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/remedly/sdk/pkg/core"
	sdkerrors "github.com/remedly/sdk/pkg/errors"
	"github.com/remedly/sdk/pkg/metrics"
)

// Config holds executor client configuration.
type Config struct {
	// BaseURL of the execution service (required).
	BaseURL string `yaml:"base_url" json:"base_url"`

	// APIKey for bearer authentication (required).
	APIKey string `yaml:"api_key" json:"api_key"`

	// Timeout per request. Default: 60s; executions are synchronous.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// Metrics receives request counters and latencies (optional).
	Metrics metrics.Collector

	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

// Executor is an HTTP client for the execution service.
type Executor struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	metrics    metrics.Collector
	host       string
}

// New creates an HTTP executor.
func New(cfg *Config) (*Executor, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, sdkerrors.ErrMissingEndpoint
	}
	if cfg.APIKey == "" {
		return nil, sdkerrors.ErrMissingAPIKey
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, sdkerrors.E(sdkerrors.KindInvalidInput, "httpexec.New", "invalid base URL", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	collector := cfg.Metrics
	if collector == nil {
		collector = &metrics.NopCollector{}
	}

	return &Executor{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		metrics:    collector,
		host:       u.Host,
	}, nil
}

// Name identifies the collaborator in logs and telemetry.
func (e *Executor) Name() string { return "http-executor" }

// executeRequest is the wire format of an execution request.
type executeRequest struct {
	ActionType string         `json:"action_type"`
	Payload    map[string]any `json:"payload"`
}

// executeResponse is the wire format of an execution response.
type executeResponse struct {
	JobID       string    `json:"job_id"`
	Status      string    `json:"status"`
	Details     string    `json:"details"`
	CompletedAt time.Time `json:"completed_at"`
}

// Apply submits a routed action for execution and waits for the terminal
// result.
func (e *Executor) Apply(ctx context.Context, actionType string, payload map[string]any) (*core.ExecutionResult, error) {
	const op = "httpexec.Apply"

	body, err := json.Marshal(executeRequest{ActionType: actionType, Payload: payload})
	if err != nil {
		return nil, sdkerrors.E(sdkerrors.KindInvalidInput, op, "marshal request", err)
	}
	return e.roundTrip(ctx, op, http.MethodPost, "/v1/executions", body)
}

// Status fetches the current state of a previously dispatched job. Useful for
// jobs Apply returned as pending.
func (e *Executor) Status(ctx context.Context, jobID string) (*core.ExecutionResult, error) {
	const op = "httpexec.Status"
	if jobID == "" {
		return nil, sdkerrors.E(sdkerrors.KindInvalidInput, op, "job id is required")
	}
	return e.roundTrip(ctx, op, http.MethodGet, "/v1/executions/"+url.PathEscape(jobID), nil)
}

// Rollback reverts a previously applied remediation job.
func (e *Executor) Rollback(ctx context.Context, jobID string) (*core.ExecutionResult, error) {
	const op = "httpexec.Rollback"
	if jobID == "" {
		return nil, sdkerrors.E(sdkerrors.KindInvalidInput, op, "job id is required")
	}
	return e.roundTrip(ctx, op, http.MethodPost, "/v1/executions/"+url.PathEscape(jobID)+"/rollback", nil)
}

func (e *Executor) roundTrip(ctx context.Context, op, method, path string, body []byte) (*core.ExecutionResult, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, e.baseURL+path, reader)
	if err != nil {
		return nil, sdkerrors.E(sdkerrors.KindInternal, op, "build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	timer := metrics.NewTimer(e.metrics, metrics.HTTPRequestDuration.Name, "method", method, "host", e.host)
	resp, err := e.httpClient.Do(req)
	timer.ObserveDuration()
	if err != nil {
		e.metrics.CounterInc(metrics.HTTPRequestsTotal.Name, "method", method, "host", e.host, "status", "error")
		if ctx.Err() != nil {
			return nil, sdkerrors.E(sdkerrors.KindTimeout, op, "request canceled", err)
		}
		return nil, sdkerrors.E(sdkerrors.KindNetwork, op, "request failed", err)
	}
	defer resp.Body.Close()

	e.metrics.CounterInc(metrics.HTTPRequestsTotal.Name,
		"method", method, "host", e.host, "status", fmt.Sprintf("%d", resp.StatusCode))

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, sdkerrors.E(sdkerrors.KindNetwork, op, "read response", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, e.errorFromStatus(op, resp, respBody)
	}

	var out executeResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, sdkerrors.E(sdkerrors.KindServer, op, "decode response", err)
	}
	if out.JobID == "" {
		return nil, sdkerrors.E(sdkerrors.KindServer, op, "response carries no job id")
	}

	result := &core.ExecutionResult{
		JobID:       out.JobID,
		Status:      core.JobStatus(out.Status),
		Details:     out.Details,
		CompletedAt: out.CompletedAt,
	}
	if result.Status != core.JobSuccess && result.Status != core.JobFailed && result.Status != core.JobPending {
		return nil, sdkerrors.E(sdkerrors.KindServer, op, fmt.Sprintf("unknown job status %q", out.Status))
	}
	return result, nil
}

func (e *Executor) errorFromStatus(op string, resp *http.Response, body []byte) error {
	apiErr := &sdkerrors.APIError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = string(body)
	}
	apiErr.StatusCode = resp.StatusCode

	var kind sdkerrors.Kind
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		kind = sdkerrors.KindAuthentication
	case resp.StatusCode == http.StatusTooManyRequests:
		kind = sdkerrors.KindRateLimit
	case resp.StatusCode >= 500:
		kind = sdkerrors.KindServer
	default:
		kind = sdkerrors.KindExecution
	}
	return sdkerrors.E(kind, op, fmt.Sprintf("execution service returned %d", resp.StatusCode), apiErr)
}

var _ core.Executor = (*Executor)(nil)
