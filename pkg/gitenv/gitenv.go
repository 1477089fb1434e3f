// Package gitenv detects the CI environment the agent runs in and abstracts
// over Git providers. The orchestrator uses it to stamp issues with repository
// context, and the approval flow uses it to surface proposed fixes as review
// comments on the originating pull or merge request.
package gitenv

import (
	"fmt"
	"strings"

	"github.com/remedly/sdk/pkg/workflow"
)

const (
	ProviderGitHub = "github"
	ProviderGitLab = "gitlab"
	ProviderManual = "manual"
)

// GitEnv is a unified view of a CI/CD environment. Implementations read
// provider-specific environment variables.
type GitEnv interface {
	// Provider returns the provider name (github, gitlab, manual).
	Provider() string

	// IsActive reports whether this CI environment is detected.
	IsActive() bool

	// Repository info.
	ProjectID() string
	ProjectName() string
	ProjectURL() string

	// CanonicalRepoName returns {domain}/{owner}/{repo}, e.g.
	// github.com/remedly/api. The domain prefix keeps repositories unique
	// across providers.
	CanonicalRepoName() string

	// Commit info.
	CommitSha() string
	CommitBranch() string
	DefaultBranch() string

	// MR/PR info.
	MergeRequestID() string
	SourceBranch() string
	TargetBranch() string

	// JobURL returns the URL of the running CI job.
	JobURL() string

	// PostFixComment posts a proposed fix as a review comment on the current
	// pull or merge request.
	PostFixComment(option FixCommentOption) error
}

// FixCommentOption configures a proposed-fix review comment.
type FixCommentOption struct {
	Title     string
	Body      string
	Path      string
	StartLine int
	EndLine   int
}

// BuildFixComment renders an approval payload into a review comment. The
// comment carries the patch and rationale so a reviewer can approve or reject
// without leaving the merge request.
func BuildFixComment(payload *workflow.ApprovalPayload) FixCommentOption {
	if payload == nil || payload.ProposedFix == nil {
		return FixCommentOption{}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "A fix has been proposed with %.2f%% confidence and needs review.\n\n", payload.ProposedFix.Confidence)
	if payload.ProposedFix.Rationale != "" {
		fmt.Fprintf(&b, "%s\n\n", payload.ProposedFix.Rationale)
	}
	fmt.Fprintf(&b, "```diff\n%s\n```\n", strings.TrimRight(payload.ProposedFix.Content, "\n"))
	if payload.SuggestedAction != "" {
		fmt.Fprintf(&b, "\nSuggested action: %s\n", payload.SuggestedAction)
	}

	opt := FixCommentOption{
		Title: "Proposed fix awaiting approval",
		Body:  b.String(),
	}
	if payload.Issue != nil {
		opt.Title = "Proposed fix for issue " + payload.Issue.ID
		opt.Path = payload.Issue.Location.FilePath
	}
	return opt
}

// ManualEnv is the fallback when no CI environment is detected. Values come
// from local git metadata or operator configuration.
type ManualEnv struct {
	repoName  string
	branch    string
	commitSha string
}

// NewManualEnv creates a manual environment.
func NewManualEnv(repoName, branch, commitSha string) *ManualEnv {
	return &ManualEnv{repoName: repoName, branch: branch, commitSha: commitSha}
}

func (m *ManualEnv) Provider() string          { return ProviderManual }
func (m *ManualEnv) IsActive() bool            { return true }
func (m *ManualEnv) ProjectID() string         { return "" }
func (m *ManualEnv) ProjectName() string       { return m.repoName }
func (m *ManualEnv) ProjectURL() string        { return m.repoName }
func (m *ManualEnv) CanonicalRepoName() string { return m.repoName }
func (m *ManualEnv) CommitSha() string         { return m.commitSha }
func (m *ManualEnv) CommitBranch() string      { return m.branch }
func (m *ManualEnv) DefaultBranch() string     { return "main" }
func (m *ManualEnv) MergeRequestID() string    { return "" }
func (m *ManualEnv) SourceBranch() string      { return "" }
func (m *ManualEnv) TargetBranch() string      { return "" }
func (m *ManualEnv) JobURL() string            { return "" }

// PostFixComment is not available outside a CI merge-request context.
func (m *ManualEnv) PostFixComment(option FixCommentOption) error {
	return fmt.Errorf("gitenv: no merge request to comment on in manual mode")
}

var _ GitEnv = (*ManualEnv)(nil)
