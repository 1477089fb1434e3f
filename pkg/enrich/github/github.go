// Package github implements an enrichment collaborator backed by the GitHub
// API. It serves deployments without a context-graph service: for code-derived
// issues the repository itself is the best available source of application and
// ownership context.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v74/github"
	"golang.org/x/oauth2"

	"github.com/remedly/sdk/pkg/core"
	sdkerrors "github.com/remedly/sdk/pkg/errors"
	"github.com/remedly/sdk/pkg/issue"
)

// DefaultCommitHistoryDepth is how many recent commit subjects are included
// in the enrichment context.
const DefaultCommitHistoryDepth = 5

// Config holds enricher configuration.
type Config struct {
	// Token is a GitHub access token (required).
	Token string `yaml:"token" json:"token"`

	// APIBaseURL overrides the GitHub API endpoint (GitHub Enterprise, tests).
	APIBaseURL string `yaml:"api_base_url" json:"api_base_url"`

	// CommitHistoryDepth is how many recent commits to include.
	CommitHistoryDepth int `yaml:"commit_history_depth" json:"commit_history_depth"`

	// Timeout per API call.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// Enricher fetches repository context from GitHub.
type Enricher struct {
	client  *gogithub.Client
	depth   int
	timeout time.Duration
}

// New creates a GitHub enricher.
func New(cfg *Config) (*Enricher, error) {
	if cfg == nil || cfg.Token == "" {
		return nil, sdkerrors.ErrMissingAPIKey
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	httpClient := oauth2.NewClient(context.Background(), ts)

	client := gogithub.NewClient(httpClient)
	if cfg.APIBaseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(cfg.APIBaseURL, cfg.APIBaseURL)
		if err != nil {
			return nil, sdkerrors.E(sdkerrors.KindInvalidInput, "github.New", "invalid API base URL", err)
		}
	}

	depth := cfg.CommitHistoryDepth
	if depth <= 0 {
		depth = DefaultCommitHistoryDepth
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Enricher{client: client, depth: depth, timeout: timeout}, nil
}

// Name identifies the collaborator in logs and telemetry.
func (e *Enricher) Name() string { return "github" }

// FetchEnrichment builds context from the issue's repository.
func (e *Enricher) FetchEnrichment(ctx context.Context, iss *issue.Issue) (*core.EnrichmentContext, error) {
	const op = "github.FetchEnrichment"

	owner, repo, err := ParseRepository(iss.Location.Repository)
	if err != nil {
		return nil, sdkerrors.E(sdkerrors.KindInvalidInput, op, "issue has no usable repository", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	repository, _, err := e.client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return nil, e.mapError(op, err)
	}

	commits, _, err := e.client.Repositories.ListCommits(ctx, owner, repo, &gogithub.CommitsListOptions{
		ListOptions: gogithub.ListOptions{PerPage: e.depth},
	})
	if err != nil {
		return nil, e.mapError(op, err)
	}

	history := make([]string, 0, len(commits))
	for _, c := range commits {
		history = append(history, commitSubject(c.GetCommit().GetMessage()))
	}

	enrichment := &core.EnrichmentContext{
		Application: core.Application{
			Name:      repository.GetName(),
			Structure: repository.GetDescription(),
		},
		Ownership: core.Ownership{
			Team:  repository.GetOwner().GetLogin(),
			Owner: iss.FileOwner,
		},
		Git: core.GitInfo{
			RepoURL:       repository.GetHTMLURL(),
			CommitHistory: history,
		},
		Source: e.Name(),
	}
	if enrichment.Git.RepoURL == "" {
		enrichment.Git.RepoURL = iss.Location.Repository
	}
	return enrichment, nil
}

func (e *Enricher) mapError(op string, err error) error {
	var rateErr *gogithub.RateLimitError
	if errors.As(err, &rateErr) {
		return sdkerrors.E(sdkerrors.KindRateLimit, op, "GitHub rate limit exceeded", err)
	}

	var ghErr *gogithub.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		switch ghErr.Response.StatusCode {
		case http.StatusNotFound:
			return sdkerrors.E(sdkerrors.KindNotFound, op, "repository not found", err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return sdkerrors.E(sdkerrors.KindAuthentication, op, "GitHub rejected the token", err)
		}
		return sdkerrors.E(sdkerrors.KindEnrichment, op, fmt.Sprintf("GitHub returned %d", ghErr.Response.StatusCode), err)
	}

	return sdkerrors.E(sdkerrors.KindNetwork, op, "GitHub request failed", err)
}

// ParseRepository extracts owner and repo from a repository URL or slug.
// Accepts "https://github.com/owner/repo", "git@github.com:owner/repo.git"
// and "owner/repo".
func ParseRepository(repository string) (owner, repo string, err error) {
	s := strings.TrimSpace(repository)
	if s == "" {
		return "", "", fmt.Errorf("repository is empty")
	}

	s = strings.TrimSuffix(s, ".git")
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
		// drop the host
		if j := strings.Index(s, "/"); j >= 0 {
			s = s[j+1:]
		}
	} else if i := strings.Index(s, ":"); i >= 0 && strings.Contains(s[:i], "@") {
		s = s[i+1:]
	}

	parts := strings.Split(strings.Trim(s, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("cannot parse owner/repo from %q", repository)
	}
	return parts[0], parts[1], nil
}

func commitSubject(message string) string {
	if i := strings.IndexByte(message, '\n'); i >= 0 {
		return message[:i]
	}
	return message
}

var _ core.Enricher = (*Enricher)(nil)
