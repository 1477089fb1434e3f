package contextgraph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	sdkerrors "github.com/remedly/sdk/pkg/errors"
	"github.com/remedly/sdk/pkg/issue"
	"github.com/remedly/sdk/pkg/shared/severity"
)

func testIssue(id string) *issue.Issue {
	return &issue.Issue{
		ID:          id,
		Category:    issue.StaticAnalysis,
		Severity:    severity.High,
		Description: "SQL injection in login handler",
	}
}

func contextBody() map[string]any {
	return map[string]any{
		"application": map[string]string{"name": "Monitored-App-1", "structure": "Microservices architecture"},
		"ownership":   map[string]string{"team": "Platform Security", "owner": "jane.doe@example.com"},
		"iac_references": []string{"s3.tf"},
		"cicd_configs":   []string{".github/workflows/deploy.yml"},
		"git": map[string]any{
			"repo_url":       "https://github.com/example/app",
			"commit_history": []string{"feat: add new login page"},
		},
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(nil); err != sdkerrors.ErrMissingEndpoint {
		t.Errorf("New(nil) error = %v, want ErrMissingEndpoint", err)
	}
	if _, err := New(&Config{Endpoint: "http://graph.local"}); err != sdkerrors.ErrMissingAPIKey {
		t.Errorf("New() without key error = %v, want ErrMissingAPIKey", err)
	}
}

func TestFetchEnrichment(t *testing.T) {
	var gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(contextBody())
	}))
	defer server.Close()

	e, err := New(&Config{Endpoint: server.URL, APIKey: "secret"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	enrichment, err := e.FetchEnrichment(context.Background(), testIssue("issue-1"))
	if err != nil {
		t.Fatalf("FetchEnrichment() error = %v", err)
	}

	if gotPath != "/v1/context/issue-1" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("auth = %q", gotAuth)
	}
	if enrichment.Application.Name != "Monitored-App-1" {
		t.Errorf("application = %+v", enrichment.Application)
	}
	if enrichment.Ownership.Owner != "jane.doe@example.com" {
		t.Errorf("ownership = %+v", enrichment.Ownership)
	}
	if enrichment.Source != "context-graph" {
		t.Errorf("source = %q", enrichment.Source)
	}
}

func TestFetchEnrichmentCaches(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(contextBody())
	}))
	defer server.Close()

	e, err := New(&Config{Endpoint: server.URL, APIKey: "secret", CacheTTL: time.Minute})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := e.FetchEnrichment(context.Background(), testIssue("issue-1")); err != nil {
			t.Fatalf("FetchEnrichment() error = %v", err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server calls = %d, want 1 (cached)", got)
	}

	// A different issue misses the cache.
	if _, err := e.FetchEnrichment(context.Background(), testIssue("issue-2")); err != nil {
		t.Fatalf("FetchEnrichment() error = %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server calls = %d, want 2", got)
	}
}

func TestFetchEnrichmentCacheDisabled(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(contextBody())
	}))
	defer server.Close()

	e, err := New(&Config{Endpoint: server.URL, APIKey: "secret", CacheTTL: -1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := e.FetchEnrichment(context.Background(), testIssue("issue-1")); err != nil {
			t.Fatalf("FetchEnrichment() error = %v", err)
		}
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server calls = %d, want 2 (no cache)", got)
	}
}

func TestFetchEnrichmentErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantKind   sdkerrors.Kind
	}{
		{name: "not found", statusCode: http.StatusNotFound, wantKind: sdkerrors.KindNotFound},
		{name: "unauthorized", statusCode: http.StatusUnauthorized, wantKind: sdkerrors.KindAuthentication},
		{name: "rate limited", statusCode: http.StatusTooManyRequests, wantKind: sdkerrors.KindRateLimit},
		{name: "server error", statusCode: http.StatusInternalServerError, wantKind: sdkerrors.KindEnrichment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			e, err := New(&Config{Endpoint: server.URL, APIKey: "secret"})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}

			_, err = e.FetchEnrichment(context.Background(), testIssue("issue-1"))
			if err == nil {
				t.Fatal("FetchEnrichment() should fail")
			}
			if got := sdkerrors.GetKind(err); got != tt.wantKind {
				t.Errorf("kind = %v, want %v", got, tt.wantKind)
			}
		})
	}
}

func TestFetchEnrichmentNetworkError(t *testing.T) {
	e, err := New(&Config{Endpoint: "http://127.0.0.1:1", APIKey: "secret", Timeout: time.Second})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = e.FetchEnrichment(context.Background(), testIssue("issue-1"))
	if !sdkerrors.IsNetworkError(err) {
		t.Errorf("kind = %v, want network", sdkerrors.GetKind(err))
	}
}
