package gitenv

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/remedly/sdk/pkg/core"
	"github.com/remedly/sdk/pkg/issue"
	"github.com/remedly/sdk/pkg/workflow"
)

func TestNormalizeRepoURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "git@github.com:remedly/api.git", want: "github.com/remedly/api"},
		{in: "https://github.com/remedly/api", want: "github.com/remedly/api"},
		{in: "https://gitlab.com/remedly/api.git/", want: "gitlab.com/remedly/api"},
		{in: "http://git.internal/ops/infra", want: "git.internal/ops/infra"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		if got := NormalizeRepoURL(tt.in); got != tt.want {
			t.Errorf("NormalizeRepoURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestManualEnv(t *testing.T) {
	env := NewManualEnv("github.com/remedly/api", "main", "abc1234")

	if env.Provider() != ProviderManual {
		t.Errorf("provider = %q", env.Provider())
	}
	if !env.IsActive() {
		t.Error("manual env should always be active")
	}
	if env.CanonicalRepoName() != "github.com/remedly/api" {
		t.Errorf("canonical repo = %q", env.CanonicalRepoName())
	}
	if env.CommitBranch() != "main" || env.CommitSha() != "abc1234" {
		t.Errorf("commit info = %q @ %q", env.CommitBranch(), env.CommitSha())
	}
	if err := env.PostFixComment(FixCommentOption{Body: "b"}); err == nil {
		t.Error("PostFixComment() should fail in manual mode")
	}
}

func TestDetectFromDirectoryReadsLocalGit(t *testing.T) {
	dir := t.TempDir()
	gitDir := filepath.Join(dir, ".git")
	if err := os.MkdirAll(filepath.Join(gitDir, "refs", "heads"), 0o755); err != nil {
		t.Fatal(err)
	}

	config := "[remote \"origin\"]\n\turl = git@github.com:remedly/api.git\n"
	if err := os.WriteFile(filepath.Join(gitDir, "config"), []byte(config), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(gitDir, "HEAD"), []byte("ref: refs/heads/fix/s3-acl\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	sha := "0123456789abcdef0123456789abcdef01234567"
	if err := os.MkdirAll(filepath.Join(gitDir, "refs", "heads", "fix"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(gitDir, "refs", "heads", "fix", "s3-acl"), []byte(sha+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("GITHUB_ACTIONS", "")
	t.Setenv("GITLAB_CI", "")

	env := DetectFromDirectory(dir, core.NopLogger{})
	if env == nil {
		t.Fatal("DetectFromDirectory() = nil")
	}
	if env.Provider() != ProviderManual {
		t.Fatalf("provider = %q, want manual", env.Provider())
	}
	if env.CanonicalRepoName() != "github.com/remedly/api" {
		t.Errorf("canonical repo = %q", env.CanonicalRepoName())
	}
	if env.CommitBranch() != "fix/s3-acl" {
		t.Errorf("branch = %q", env.CommitBranch())
	}
	if env.CommitSha() != sha {
		t.Errorf("sha = %q", env.CommitSha())
	}
}

func TestGitHubEnvReadsActionsVariables(t *testing.T) {
	t.Setenv("GITHUB_ACTIONS", "true")
	t.Setenv("GITHUB_REPOSITORY", "remedly/api")
	t.Setenv("GITHUB_REPOSITORY_ID", "42")
	t.Setenv("GITHUB_SERVER_URL", "https://github.com")
	t.Setenv("GITHUB_SHA", "abc1234")
	t.Setenv("GITHUB_REF_TYPE", "branch")
	t.Setenv("GITHUB_REF_NAME", "main")
	t.Setenv("GITHUB_RUN_ID", "777")
	t.Setenv("GITHUB_EVENT_PATH", "")
	t.Setenv("GITHUB_TOKEN", "")

	env, err := NewGitHub(core.NopLogger{})
	if err != nil {
		t.Fatalf("NewGitHub() error = %v", err)
	}
	if !env.IsActive() {
		t.Fatal("IsActive() = false inside simulated Actions env")
	}
	if env.CanonicalRepoName() != "github.com/remedly/api" {
		t.Errorf("canonical repo = %q", env.CanonicalRepoName())
	}
	if env.CommitBranch() != "main" {
		t.Errorf("branch = %q", env.CommitBranch())
	}
	if env.JobURL() != "https://github.com/remedly/api/actions/runs/777" {
		t.Errorf("job url = %q", env.JobURL())
	}
	if err := env.PostFixComment(FixCommentOption{Body: "b"}); err == nil {
		t.Error("PostFixComment() without token should fail")
	}
}

func TestGitLabEnvReadsCIVariables(t *testing.T) {
	t.Setenv("GITLAB_CI", "true")
	t.Setenv("CI_PROJECT_ID", "101")
	t.Setenv("CI_PROJECT_PATH", "remedly/api")
	t.Setenv("CI_SERVER_HOST", "gitlab.example.com")
	t.Setenv("CI_COMMIT_SHA", "abc1234")
	t.Setenv("CI_COMMIT_BRANCH", "main")
	t.Setenv("CI_SERVER_URL", "")
	t.Setenv("GITLAB_TOKEN", "")

	env, err := NewGitLab(core.NopLogger{})
	if err != nil {
		t.Fatalf("NewGitLab() error = %v", err)
	}
	if !env.IsActive() {
		t.Fatal("IsActive() = false inside simulated GitLab CI env")
	}
	if env.CanonicalRepoName() != "gitlab.example.com/remedly/api" {
		t.Errorf("canonical repo = %q", env.CanonicalRepoName())
	}
	if err := env.PostFixComment(FixCommentOption{Body: "b"}); err == nil {
		t.Error("PostFixComment() without client should fail")
	}
}

func TestBuildFixComment(t *testing.T) {
	payload := &workflow.ApprovalPayload{
		Issue: &issue.Issue{
			ID:       "ISS-9",
			Category: issue.CloudPosture,
			Location: issue.Location{FilePath: "main.tf"},
		},
		ProposedFix: &core.ProposedFix{
			Content:    "-acl = \"public-read\"\n+acl = \"private\"\n",
			Confidence: 72.5,
			Rationale:  "Bucket should not be world readable.",
		},
		SuggestedAction: "Apply Terraform change",
	}

	opt := BuildFixComment(payload)
	if opt.Title != "Proposed fix for issue ISS-9" {
		t.Errorf("title = %q", opt.Title)
	}
	if opt.Path != "main.tf" {
		t.Errorf("path = %q", opt.Path)
	}
	for _, want := range []string{"72.50%", "```diff", "+acl = \"private\"", "Apply Terraform change", "world readable"} {
		if !strings.Contains(opt.Body, want) {
			t.Errorf("body missing %q:\n%s", want, opt.Body)
		}
	}

	if got := BuildFixComment(nil); got != (FixCommentOption{}) {
		t.Errorf("BuildFixComment(nil) = %+v", got)
	}
}
