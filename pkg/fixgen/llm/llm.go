// Package llm implements the fix-generation collaborator against an
// LLM-backed remediation service. The service owns model selection and prompt
// system text; this client sends the assembled prompt and normalizes the
// response into a proposed fix.
package llm

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

// DefaultTimeout is the default per-request timeout. Generation is the
// slowest collaborator call by an order of magnitude.
const DefaultTimeout = 120 * time.Second

// Config holds generator configuration.
type Config struct {
	// Endpoint of the remediation service (required).
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// APIKey for bearer authentication (required).
	APIKey string `yaml:"api_key" json:"api_key"`

	// Model requests a specific model (optional, service default otherwise).
	Model string `yaml:"model" json:"model"`

	// Timeout per request.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// Metrics receives request counters and latencies (optional).
	Metrics metrics.Collector

	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

// Generator is an HTTP client for the LLM remediation service.
type Generator struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
	metrics    metrics.Collector
	host       string
}

// New creates an LLM fix generator.
func New(cfg *Config) (*Generator, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, sdkerrors.ErrMissingEndpoint
	}
	if cfg.APIKey == "" {
		return nil, sdkerrors.ErrMissingAPIKey
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, sdkerrors.E(sdkerrors.KindInvalidInput, "llm.New", "invalid endpoint", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	collector := cfg.Metrics
	if collector == nil {
		collector = &metrics.NopCollector{}
	}

	return &Generator{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: httpClient,
		metrics:    collector,
		host:       u.Host,
	}, nil
}

// Name identifies the collaborator in logs and telemetry.
func (g *Generator) Name() string { return "llm" }

// fixRequest is the wire format of a generation request.
type fixRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model,omitempty"`
}

// fixResponse is the wire format of a generation response. Confidence may be
// a probability (0-1) or a percentage (0-100); both are normalized to 0-100.
type fixResponse struct {
	Patch      string  `json:"patch"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// GenerateFix sends the prompt to the remediation service.
func (g *Generator) GenerateFix(ctx context.Context, promptText string) (*core.ProposedFix, error) {
	const op = "llm.GenerateFix"

	body, err := json.Marshal(fixRequest{Prompt: promptText, Model: g.model})
	if err != nil {
		return nil, sdkerrors.E(sdkerrors.KindInternal, op, "marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint+"/v1/fixes", bytes.NewReader(body))
	if err != nil {
		return nil, sdkerrors.E(sdkerrors.KindInternal, op, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	timer := metrics.NewTimer(g.metrics, metrics.HTTPRequestDuration.Name, "method", http.MethodPost, "host", g.host)
	resp, err := g.httpClient.Do(req)
	timer.ObserveDuration()
	if err != nil {
		g.metrics.CounterInc(metrics.HTTPRequestsTotal.Name, "method", http.MethodPost, "host", g.host, "status", "error")
		if ctx.Err() != nil {
			return nil, sdkerrors.E(sdkerrors.KindTimeout, op, "request canceled", err)
		}
		return nil, sdkerrors.E(sdkerrors.KindNetwork, op, "request failed", err)
	}
	defer resp.Body.Close()

	g.metrics.CounterInc(metrics.HTTPRequestsTotal.Name,
		"method", http.MethodPost, "host", g.host, "status", fmt.Sprintf("%d", resp.StatusCode))

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, sdkerrors.E(sdkerrors.KindNetwork, op, "read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, sdkerrors.E(sdkerrors.KindAuthentication, op, fmt.Sprintf("remediation service returned %d", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, sdkerrors.E(sdkerrors.KindRateLimit, op, "remediation service rate limited the request")
	default:
		return nil, sdkerrors.E(sdkerrors.KindFixGeneration, op, fmt.Sprintf("remediation service returned %d", resp.StatusCode),
			&sdkerrors.APIError{StatusCode: resp.StatusCode, Message: string(respBody)})
	}

	var out fixResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, sdkerrors.E(sdkerrors.KindFixGeneration, op, "decode response", err)
	}
	if out.Patch == "" {
		return nil, sdkerrors.E(sdkerrors.KindFixGeneration, op, "response carries no patch")
	}

	confidence := out.Confidence
	if confidence > 0 && confidence <= 1 {
		confidence *= 100
	}
	if confidence < 0 || confidence > 100 {
		return nil, sdkerrors.E(sdkerrors.KindFixGeneration, op, fmt.Sprintf("confidence %v out of range", out.Confidence))
	}

	return &core.ProposedFix{
		Content:    out.Patch,
		Confidence: confidence,
		Rationale:  out.Rationale,
	}, nil
}

var _ core.FixGenerator = (*Generator)(nil)
