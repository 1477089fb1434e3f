// Package contextgraph implements the enrichment collaborator against the
// context-graph service, which aggregates application topology, ownership and
// git metadata for a monitored estate.
//
// Unlike advisory enrichment (scores, percentiles), workflow context is load
// bearing: a failed fetch aborts the run, so errors here are returned, not
// swallowed.
package contextgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/remedly/sdk/pkg/core"
	sdkerrors "github.com/remedly/sdk/pkg/errors"
	"github.com/remedly/sdk/pkg/issue"
	"github.com/remedly/sdk/pkg/metrics"
)

const (
	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultCacheTTL bounds how long a fetched context is reused.
	// Ownership and topology drift slowly; an hour is conservative.
	DefaultCacheTTL = time.Hour
)

// Config holds enricher configuration.
type Config struct {
	// Endpoint of the context-graph service (required).
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// APIKey for bearer authentication (required).
	APIKey string `yaml:"api_key" json:"api_key"`

	// Timeout per request.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// CacheTTL for fetched contexts. Zero uses the default; negative disables
	// caching.
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl"`

	// Metrics receives request counters and latencies (optional).
	Metrics metrics.Collector

	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

type cacheEntry struct {
	ctx     *core.EnrichmentContext
	fetched time.Time
}

// Enricher fetches enrichment context over HTTP.
type Enricher struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	metrics    metrics.Collector
	host       string

	cacheTTL time.Duration
	mu       sync.RWMutex
	cache    map[string]cacheEntry
}

// New creates a context-graph enricher.
func New(cfg *Config) (*Enricher, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, sdkerrors.ErrMissingEndpoint
	}
	if cfg.APIKey == "" {
		return nil, sdkerrors.ErrMissingAPIKey
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, sdkerrors.E(sdkerrors.KindInvalidInput, "contextgraph.New", "invalid endpoint", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = DefaultCacheTTL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	collector := cfg.Metrics
	if collector == nil {
		collector = &metrics.NopCollector{}
	}

	return &Enricher{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		metrics:    collector,
		host:       u.Host,
		cacheTTL:   cacheTTL,
		cache:      make(map[string]cacheEntry),
	}, nil
}

// Name identifies the collaborator in logs and telemetry.
func (e *Enricher) Name() string { return "context-graph" }

// contextResponse is the wire format of the context-graph service.
type contextResponse struct {
	Application struct {
		Name      string `json:"name"`
		Structure string `json:"structure"`
	} `json:"application"`
	Ownership struct {
		Team  string `json:"team"`
		Owner string `json:"owner"`
	} `json:"ownership"`
	IaCReferences []string `json:"iac_references"`
	CICDConfigs   []string `json:"cicd_configs"`
	Git           struct {
		RepoURL       string   `json:"repo_url"`
		CommitHistory []string `json:"commit_history"`
	} `json:"git"`
}

// FetchEnrichment returns the context for an issue, from cache when fresh.
func (e *Enricher) FetchEnrichment(ctx context.Context, iss *issue.Issue) (*core.EnrichmentContext, error) {
	const op = "contextgraph.FetchEnrichment"

	if e.cacheTTL > 0 {
		e.mu.RLock()
		entry, ok := e.cache[iss.ID]
		e.mu.RUnlock()
		if ok && time.Since(entry.fetched) < e.cacheTTL {
			return entry.ctx, nil
		}
	}

	reqURL := fmt.Sprintf("%s/v1/context/%s", e.endpoint, url.PathEscape(iss.ID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, sdkerrors.E(sdkerrors.KindInternal, op, "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	req.Header.Set("Accept", "application/json")

	timer := metrics.NewTimer(e.metrics, metrics.HTTPRequestDuration.Name, "method", http.MethodGet, "host", e.host)
	resp, err := e.httpClient.Do(req)
	timer.ObserveDuration()
	if err != nil {
		e.metrics.CounterInc(metrics.HTTPRequestsTotal.Name, "method", http.MethodGet, "host", e.host, "status", "error")
		if ctx.Err() != nil {
			return nil, sdkerrors.E(sdkerrors.KindTimeout, op, "request canceled", err)
		}
		return nil, sdkerrors.E(sdkerrors.KindNetwork, op, "request failed", err)
	}
	defer resp.Body.Close()

	e.metrics.CounterInc(metrics.HTTPRequestsTotal.Name,
		"method", http.MethodGet, "host", e.host, "status", fmt.Sprintf("%d", resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, sdkerrors.E(sdkerrors.KindNetwork, op, "read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, sdkerrors.E(sdkerrors.KindNotFound, op, fmt.Sprintf("no context for issue %s", iss.ID))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, sdkerrors.E(sdkerrors.KindAuthentication, op, fmt.Sprintf("context-graph returned %d", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, sdkerrors.E(sdkerrors.KindRateLimit, op, "context-graph rate limited the request")
	default:
		return nil, sdkerrors.E(sdkerrors.KindEnrichment, op, fmt.Sprintf("context-graph returned %d", resp.StatusCode),
			&sdkerrors.APIError{StatusCode: resp.StatusCode, Message: string(body)})
	}

	var out contextResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, sdkerrors.E(sdkerrors.KindEnrichment, op, "decode response", err)
	}

	enrichment := &core.EnrichmentContext{
		Application: core.Application{
			Name:      out.Application.Name,
			Structure: out.Application.Structure,
		},
		Ownership: core.Ownership{
			Team:  out.Ownership.Team,
			Owner: out.Ownership.Owner,
		},
		IaCReferences: out.IaCReferences,
		CICDConfigs:   out.CICDConfigs,
		Git: core.GitInfo{
			RepoURL:       out.Git.RepoURL,
			CommitHistory: out.Git.CommitHistory,
		},
		Source: e.Name(),
	}

	if e.cacheTTL > 0 {
		e.mu.Lock()
		e.cache[iss.ID] = cacheEntry{ctx: enrichment, fetched: time.Now()}
		e.mu.Unlock()
	}
	return enrichment, nil
}

var _ core.Enricher = (*Enricher)(nil)
