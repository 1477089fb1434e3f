package gitenv

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/go-github/v74/github"
	"golang.org/x/oauth2"

	"github.com/remedly/sdk/pkg/core"
)

// GitHubEnv reads the GitHub Actions environment.
type GitHubEnv struct {
	accessToken  string
	client       *github.Client
	ctx          context.Context
	eventPayload githubEventPayload
	logger       core.Logger
}

// NewGitHub creates a GitHub Actions environment. Without GITHUB_TOKEN the
// environment is still usable for detection; only PostFixComment needs auth.
func NewGitHub(logger core.Logger) (*GitHubEnv, error) {
	if logger == nil {
		logger = core.NopLogger{}
	}
	accessToken := os.Getenv("GITHUB_TOKEN")
	ctx := context.Background()

	var client *github.Client
	if accessToken != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
		client = github.NewClient(oauth2.NewClient(ctx, ts))
	} else {
		client = github.NewClient(nil)
	}

	return &GitHubEnv{
		accessToken: accessToken,
		client:      client,
		ctx:         ctx,
		logger:      logger,
	}, nil
}

// IsActive reports whether the agent runs inside GitHub Actions.
func (g *GitHubEnv) IsActive() bool {
	if os.Getenv("GITHUB_ACTIONS") != "true" {
		return false
	}
	g.logger.Debug("gitenv: GitHub Actions environment detected")
	if g.accessToken == "" {
		g.logger.Warn("gitenv: GITHUB_TOKEN is not set, review comments will not work")
	}
	g.loadEventPayload()
	return true
}

func (g *GitHubEnv) loadEventPayload() {
	eventPath := os.Getenv("GITHUB_EVENT_PATH")
	if eventPath == "" {
		return
	}
	data, err := os.ReadFile(eventPath)
	if err != nil {
		g.logger.Warn("gitenv: could not read GITHUB_EVENT_PATH: %v", err)
		return
	}
	if err := json.Unmarshal(data, &g.eventPayload); err != nil {
		g.logger.Warn("gitenv: could not parse event payload: %v", err)
	}
}

// Provider returns "github".
func (g *GitHubEnv) Provider() string { return ProviderGitHub }

// ProjectID returns the GitHub repository ID.
func (g *GitHubEnv) ProjectID() string { return os.Getenv("GITHUB_REPOSITORY_ID") }

// ProjectName returns owner/repo.
func (g *GitHubEnv) ProjectName() string { return os.Getenv("GITHUB_REPOSITORY") }

// CanonicalRepoName returns {domain}/{owner}/{repo}, honoring the server URL
// for GitHub Enterprise.
func (g *GitHubEnv) CanonicalRepoName() string {
	repo := os.Getenv("GITHUB_REPOSITORY")
	if repo == "" {
		return ""
	}
	domain := "github.com"
	if serverURL := os.Getenv("GITHUB_SERVER_URL"); serverURL != "" {
		domain = strings.TrimPrefix(serverURL, "https://")
		domain = strings.TrimPrefix(domain, "http://")
		domain = strings.TrimSuffix(domain, "/")
	}
	return fmt.Sprintf("%s/%s", domain, repo)
}

// ProjectURL returns the repository URL.
func (g *GitHubEnv) ProjectURL() string {
	serverURL := os.Getenv("GITHUB_SERVER_URL")
	if serverURL == "" {
		serverURL = "https://github.com"
	}
	return fmt.Sprintf("%s/%s", serverURL, os.Getenv("GITHUB_REPOSITORY"))
}

// CommitSha returns the current commit SHA.
func (g *GitHubEnv) CommitSha() string { return os.Getenv("GITHUB_SHA") }

// CommitBranch returns the current branch name.
func (g *GitHubEnv) CommitBranch() string {
	if g.MergeRequestID() != "" && g.eventPayload.PullRequest != nil {
		return g.eventPayload.PullRequest.Head.Ref
	}
	if os.Getenv("GITHUB_REF_TYPE") == "branch" {
		return os.Getenv("GITHUB_REF_NAME")
	}
	return ""
}

// DefaultBranch returns the default branch name.
func (g *GitHubEnv) DefaultBranch() string {
	if g.eventPayload.Repository != nil && g.eventPayload.Repository.DefaultBranch != "" {
		return g.eventPayload.Repository.DefaultBranch
	}
	return "main"
}

// MergeRequestID returns the PR number.
func (g *GitHubEnv) MergeRequestID() string {
	if g.eventPayload.PullRequest != nil {
		return strconv.Itoa(g.eventPayload.PullRequest.Number)
	}
	return ""
}

// SourceBranch returns the head branch for PRs.
func (g *GitHubEnv) SourceBranch() string { return os.Getenv("GITHUB_HEAD_REF") }

// TargetBranch returns the base branch for PRs.
func (g *GitHubEnv) TargetBranch() string { return os.Getenv("GITHUB_BASE_REF") }

// JobURL returns the URL of the current workflow run.
func (g *GitHubEnv) JobURL() string {
	serverURL := os.Getenv("GITHUB_SERVER_URL")
	repo := os.Getenv("GITHUB_REPOSITORY")
	runID := os.Getenv("GITHUB_RUN_ID")
	if serverURL == "" || repo == "" || runID == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/actions/runs/%s", serverURL, repo, runID)
}

// PostFixComment creates a review comment carrying a proposed fix on the
// current pull request.
func (g *GitHubEnv) PostFixComment(option FixCommentOption) error {
	if g.accessToken == "" {
		return fmt.Errorf("GITHUB_TOKEN not set, cannot create PR comment")
	}

	prNumberStr := g.MergeRequestID()
	if prNumberStr == "" {
		return fmt.Errorf("not in a pull request context")
	}
	prNumber, err := strconv.Atoi(prNumberStr)
	if err != nil {
		return fmt.Errorf("invalid PR number: %w", err)
	}

	ownerRepo := os.Getenv("GITHUB_REPOSITORY")
	parts := strings.Split(ownerRepo, "/")
	if len(parts) != 2 {
		return fmt.Errorf("invalid GITHUB_REPOSITORY format: %s", ownerRepo)
	}
	owner, repo := parts[0], parts[1]

	comment := github.DraftReviewComment{
		Path: github.Ptr(option.Path),
		Body: github.Ptr(option.Body),
	}
	if option.StartLine == option.EndLine || option.EndLine == 0 {
		comment.Line = github.Ptr(option.StartLine)
	} else {
		comment.StartLine = github.Ptr(option.StartLine)
		comment.Line = github.Ptr(option.EndLine)
	}

	review := &github.PullRequestReviewRequest{
		Body:     github.Ptr(option.Title),
		Event:    github.Ptr("COMMENT"),
		Comments: []*github.DraftReviewComment{&comment},
	}

	if _, _, err := g.client.PullRequests.CreateReview(g.ctx, owner, repo, prNumber, review); err != nil {
		return fmt.Errorf("failed to create PR comment: %w", err)
	}
	g.logger.Info("gitenv: created PR review comment: %s", option.Title)
	return nil
}

type githubEventPayload struct {
	PullRequest *githubPullRequest `json:"pull_request"`
	Repository  *githubRepository  `json:"repository"`
}

type githubPullRequest struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Base   struct {
		Ref string `json:"ref"`
		Sha string `json:"sha"`
	} `json:"base"`
	Head struct {
		Ref string `json:"ref"`
		Sha string `json:"sha"`
	} `json:"head"`
}

type githubRepository struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	DefaultBranch string `json:"default_branch"`
}

var _ GitEnv = (*GitHubEnv)(nil)
