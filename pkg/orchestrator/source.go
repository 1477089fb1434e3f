package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	sdkerrors "github.com/remedly/sdk/pkg/errors"
	"github.com/remedly/sdk/pkg/issue"
	"github.com/remedly/sdk/pkg/metrics"
)

// HTTPSourceConfig configures an HTTPSource.
type HTTPSourceConfig struct {
	// Endpoint of the issue feed (required).
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// APIKey for bearer authentication (required).
	APIKey string `yaml:"api_key" json:"api_key"`

	// Timeout per poll request.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// Metrics receives request counters and latencies (optional).
	Metrics metrics.Collector

	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

// HTTPSource polls a Remedly-compatible issue feed. Each poll requests the
// issues opened since the previous poll; the server drives the cursor via the
// next_since field.
type HTTPSource struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	metrics    metrics.Collector
	host       string
	since      string
}

// NewHTTPSource creates an HTTP issue source.
func NewHTTPSource(cfg *HTTPSourceConfig) (*HTTPSource, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, sdkerrors.ErrMissingEndpoint
	}
	if cfg.APIKey == "" {
		return nil, sdkerrors.ErrMissingAPIKey
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, sdkerrors.E(sdkerrors.KindInvalidInput, "orchestrator.NewHTTPSource", "invalid endpoint", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	collector := cfg.Metrics
	if collector == nil {
		collector = &metrics.NopCollector{}
	}

	return &HTTPSource{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		metrics:    collector,
		host:       u.Host,
	}, nil
}

func (s *HTTPSource) Name() string { return "http(" + s.host + ")" }

// issuesResponse is the wire format of the issue feed.
type issuesResponse struct {
	Issues    []*issue.Issue `json:"issues"`
	NextSince string         `json:"next_since"`
}

// Poll fetches the next batch of issues.
func (s *HTTPSource) Poll(ctx context.Context) ([]*issue.Issue, error) {
	const op = "orchestrator.HTTPSource.Poll"

	endpoint := s.endpoint + "/v1/issues"
	if s.since != "" {
		endpoint += "?since=" + url.QueryEscape(s.since)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, sdkerrors.E(sdkerrors.KindInternal, op, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	timer := metrics.NewTimer(s.metrics, metrics.HTTPRequestDuration.Name, "method", http.MethodGet, "host", s.host)
	resp, err := s.httpClient.Do(req)
	timer.ObserveDuration()
	if err != nil {
		s.metrics.CounterInc(metrics.HTTPRequestsTotal.Name, "method", http.MethodGet, "host", s.host, "status", "error")
		if ctx.Err() != nil {
			return nil, sdkerrors.E(sdkerrors.KindTimeout, op, "poll canceled", err)
		}
		return nil, sdkerrors.E(sdkerrors.KindNetwork, op, "poll failed", err)
	}
	defer resp.Body.Close()

	s.metrics.CounterInc(metrics.HTTPRequestsTotal.Name,
		"method", http.MethodGet, "host", s.host, "status", fmt.Sprintf("%d", resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, sdkerrors.E(sdkerrors.KindNetwork, op, "read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, sdkerrors.E(sdkerrors.KindAuthentication, op, fmt.Sprintf("issue feed returned %d", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, sdkerrors.E(sdkerrors.KindRateLimit, op, "issue feed rate limited the poll")
	default:
		return nil, sdkerrors.E(sdkerrors.KindServer, op, fmt.Sprintf("issue feed returned %d", resp.StatusCode),
			&sdkerrors.APIError{StatusCode: resp.StatusCode, Message: string(body)})
	}

	var out issuesResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, sdkerrors.E(sdkerrors.KindServer, op, "decode response", err)
	}
	if out.NextSince != "" {
		s.since = out.NextSince
	}
	return out.Issues, nil
}

var _ IssueSource = (*HTTPSource)(nil)
