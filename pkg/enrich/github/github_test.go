package github

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	sdkerrors "github.com/remedly/sdk/pkg/errors"
	"github.com/remedly/sdk/pkg/issue"
	"github.com/remedly/sdk/pkg/shared/severity"
)

func TestParseRepository(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantOwner string
		wantRepo  string
		wantErr   bool
	}{
		{name: "https url", input: "https://github.com/example/monitored-app", wantOwner: "example", wantRepo: "monitored-app"},
		{name: "https url with .git", input: "https://github.com/example/app.git", wantOwner: "example", wantRepo: "app"},
		{name: "ssh url", input: "git@github.com:example/app.git", wantOwner: "example", wantRepo: "app"},
		{name: "slug", input: "example/app", wantOwner: "example", wantRepo: "app"},
		{name: "trailing slash", input: "https://github.com/example/app/", wantOwner: "example", wantRepo: "app"},
		{name: "empty", input: "", wantErr: true},
		{name: "owner only", input: "example", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, repo, err := ParseRepository(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRepository(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if owner != tt.wantOwner || repo != tt.wantRepo {
				t.Errorf("ParseRepository(%q) = %q/%q, want %q/%q", tt.input, owner, repo, tt.wantOwner, tt.wantRepo)
			}
		})
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(nil); err != sdkerrors.ErrMissingAPIKey {
		t.Errorf("New(nil) error = %v, want ErrMissingAPIKey", err)
	}
	if _, err := New(&Config{}); err != sdkerrors.ErrMissingAPIKey {
		t.Errorf("New() without token error = %v, want ErrMissingAPIKey", err)
	}
	if _, err := New(&Config{Token: "tok"}); err != nil {
		t.Errorf("New() error = %v", err)
	}
}

func newTestEnricher(t *testing.T, handler http.Handler) *Enricher {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	e, err := New(&Config{Token: "tok", APIBaseURL: server.URL, CommitHistoryDepth: 2})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e
}

func TestFetchEnrichment(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/repos/example/app", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"name": "app",
			"description": "Microservices architecture with web frontend",
			"html_url": "https://github.com/example/app",
			"owner": {"login": "example"}
		}`)
	})
	mux.HandleFunc("/api/v3/repos/example/app/commits", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"commit": {"message": "feat: add new login page\n\nLonger body."}},
			{"commit": {"message": "fix: button alignment"}}
		]`)
	})
	e := newTestEnricher(t, mux)

	iss := &issue.Issue{
		ID:          "issue-1",
		Category:    issue.StaticAnalysis,
		Severity:    severity.High,
		Description: "SQL injection",
		Location:    issue.Location{Repository: "https://github.com/example/app"},
		FileOwner:   "jane.doe@example.com",
	}

	enrichment, err := e.FetchEnrichment(context.Background(), iss)
	if err != nil {
		t.Fatalf("FetchEnrichment() error = %v", err)
	}

	if enrichment.Application.Name != "app" {
		t.Errorf("application name = %q", enrichment.Application.Name)
	}
	if enrichment.Ownership.Team != "example" || enrichment.Ownership.Owner != "jane.doe@example.com" {
		t.Errorf("ownership = %+v", enrichment.Ownership)
	}
	if len(enrichment.Git.CommitHistory) != 2 || enrichment.Git.CommitHistory[0] != "feat: add new login page" {
		t.Errorf("commit history = %v", enrichment.Git.CommitHistory)
	}
	if enrichment.Source != "github" {
		t.Errorf("source = %q", enrichment.Source)
	}
}

func TestFetchEnrichmentErrors(t *testing.T) {
	t.Run("no repository on issue", func(t *testing.T) {
		e, err := New(&Config{Token: "tok"})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		_, err = e.FetchEnrichment(context.Background(), &issue.Issue{ID: "i1", Category: issue.RuntimeAlert})
		if sdkerrors.GetKind(err) != sdkerrors.KindInvalidInput {
			t.Errorf("kind = %v, want invalid_input", sdkerrors.GetKind(err))
		}
	})

	t.Run("repository not found", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/api/v3/repos/example/gone", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message": "Not Found"}`)
		})
		e := newTestEnricher(t, mux)

		_, err := e.FetchEnrichment(context.Background(), &issue.Issue{
			ID: "i1", Category: issue.StaticAnalysis, Description: "x",
			Location: issue.Location{Repository: "example/gone"},
		})
		if sdkerrors.GetKind(err) != sdkerrors.KindNotFound {
			t.Errorf("kind = %v, want not_found", sdkerrors.GetKind(err))
		}
	})

	t.Run("bad token", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/api/v3/repos/example/app", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"message": "Bad credentials"}`)
		})
		e := newTestEnricher(t, mux)

		_, err := e.FetchEnrichment(context.Background(), &issue.Issue{
			ID: "i1", Category: issue.StaticAnalysis, Description: "x",
			Location: issue.Location{Repository: "example/app"},
		})
		if sdkerrors.GetKind(err) != sdkerrors.KindAuthentication {
			t.Errorf("kind = %v, want authentication", sdkerrors.GetKind(err))
		}
	})
}
