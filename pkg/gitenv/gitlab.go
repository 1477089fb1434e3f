package gitenv

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/remedly/sdk/pkg/core"
)

// GitLabEnv reads the GitLab CI environment.
type GitLabEnv struct {
	accessToken string
	serverURL   string
	client      *gitlab.Client
	logger      core.Logger
}

// NewGitLab creates a GitLab CI environment. Without GITLAB_TOKEN the
// environment is still usable for detection; only PostFixComment needs auth.
func NewGitLab(logger core.Logger) (*GitLabEnv, error) {
	if logger == nil {
		logger = core.NopLogger{}
	}
	accessToken := os.Getenv("GITLAB_TOKEN")
	serverURL := os.Getenv("CI_SERVER_URL")

	var client *gitlab.Client
	if accessToken != "" && serverURL != "" {
		var err error
		client, err = gitlab.NewClient(accessToken, gitlab.WithBaseURL(serverURL))
		if err != nil {
			return nil, fmt.Errorf("failed to create GitLab client: %w", err)
		}
	}

	return &GitLabEnv{
		accessToken: accessToken,
		serverURL:   serverURL,
		client:      client,
		logger:      logger,
	}, nil
}

// IsActive reports whether the agent runs inside GitLab CI.
func (g *GitLabEnv) IsActive() bool {
	if os.Getenv("GITLAB_CI") != "true" {
		return false
	}
	g.logger.Debug("gitenv: GitLab CI environment detected")
	if g.accessToken == "" {
		g.logger.Warn("gitenv: GITLAB_TOKEN is not set, review comments will not work")
	}
	return true
}

// Provider returns "gitlab".
func (g *GitLabEnv) Provider() string { return ProviderGitLab }

// ProjectID returns the GitLab project ID.
func (g *GitLabEnv) ProjectID() string { return os.Getenv("CI_PROJECT_ID") }

// ProjectName returns the project name.
func (g *GitLabEnv) ProjectName() string { return os.Getenv("CI_PROJECT_NAME") }

// ProjectURL returns the project URL.
func (g *GitLabEnv) ProjectURL() string { return os.Getenv("CI_PROJECT_URL") }

// CanonicalRepoName returns {domain}/{namespace}/{project}.
func (g *GitLabEnv) CanonicalRepoName() string {
	path := os.Getenv("CI_PROJECT_PATH")
	if path == "" {
		return ""
	}
	domain := os.Getenv("CI_SERVER_HOST")
	if domain == "" {
		domain = "gitlab.com"
	}
	return fmt.Sprintf("%s/%s", domain, path)
}

// CommitSha returns the current commit SHA.
func (g *GitLabEnv) CommitSha() string { return os.Getenv("CI_COMMIT_SHA") }

// CommitBranch returns the current branch name.
func (g *GitLabEnv) CommitBranch() string { return os.Getenv("CI_COMMIT_BRANCH") }

// DefaultBranch returns the default branch name.
func (g *GitLabEnv) DefaultBranch() string { return os.Getenv("CI_DEFAULT_BRANCH") }

// MergeRequestID returns the MR IID.
func (g *GitLabEnv) MergeRequestID() string { return os.Getenv("CI_MERGE_REQUEST_IID") }

// SourceBranch returns the source branch for MRs.
func (g *GitLabEnv) SourceBranch() string { return os.Getenv("CI_MERGE_REQUEST_SOURCE_BRANCH_NAME") }

// TargetBranch returns the target branch for MRs.
func (g *GitLabEnv) TargetBranch() string { return os.Getenv("CI_MERGE_REQUEST_TARGET_BRANCH_NAME") }

// JobURL returns the URL of the current job.
func (g *GitLabEnv) JobURL() string { return os.Getenv("CI_JOB_URL") }

// PostFixComment creates a discussion carrying a proposed fix on the current
// merge request.
func (g *GitLabEnv) PostFixComment(option FixCommentOption) error {
	if g.client == nil {
		return errors.New("GitLab client not initialized, GITLAB_TOKEN may not be set")
	}

	mrIDStr := g.MergeRequestID()
	if mrIDStr == "" {
		return errors.New("not in a merge request context")
	}
	mrID, err := strconv.Atoi(mrIDStr)
	if err != nil {
		return fmt.Errorf("invalid MR ID: %w", err)
	}

	projectID := g.ProjectID()
	if projectID == "" {
		return errors.New("CI_PROJECT_ID not set")
	}

	mr, _, err := g.client.MergeRequests.GetMergeRequest(projectID, mrID, nil)
	if err != nil {
		return fmt.Errorf("failed to get MR: %w", err)
	}

	position := gitlab.PositionOptions{
		BaseSHA:      &mr.DiffRefs.BaseSha,
		StartSHA:     &mr.DiffRefs.StartSha,
		HeadSHA:      &mr.DiffRefs.HeadSha,
		OldPath:      &option.Path,
		NewPath:      &option.Path,
		PositionType: gitlab.Ptr("text"),
		NewLine:      &option.StartLine,
		OldLine:      &option.StartLine,
	}

	_, res, err := g.client.Discussions.CreateMergeRequestDiscussion(
		projectID, mrID,
		&gitlab.CreateMergeRequestDiscussionOptions{Body: &option.Body, Position: &position},
	)

	// GitLab rejects OldLine when the line is new in the diff. Retry without.
	if err != nil || (res != nil && res.StatusCode == 400) {
		position.OldLine = nil
		_, _, err = g.client.Discussions.CreateMergeRequestDiscussion(
			projectID, mrID,
			&gitlab.CreateMergeRequestDiscussionOptions{Body: &option.Body, Position: &position},
		)
		if err != nil {
			return fmt.Errorf("failed to create MR discussion: %w", err)
		}
	}

	g.logger.Info("gitenv: created MR discussion: %s", option.Title)
	return nil
}

var _ GitEnv = (*GitLabEnv)(nil)
