package gitenv

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/remedly/sdk/pkg/core"
)

// Detect auto-detects the CI environment. Returns nil when none is found.
func Detect(logger core.Logger) GitEnv {
	if logger == nil {
		logger = core.NopLogger{}
	}

	if gh, err := NewGitHub(logger); err == nil && gh.IsActive() {
		return gh
	}
	if gl, err := NewGitLab(logger); err == nil && gl.IsActive() {
		return gl
	}

	logger.Debug("gitenv: no CI environment detected")
	return nil
}

// DetectFromDirectory detects the environment, falling back to local git
// metadata under dir when no CI is active.
func DetectFromDirectory(dir string, logger core.Logger) GitEnv {
	if logger == nil {
		logger = core.NopLogger{}
	}
	if env := Detect(logger); env != nil {
		return env
	}

	absPath, err := filepath.Abs(dir)
	if err != nil {
		absPath = dir
	}

	repoName := NormalizeRepoURL(readGitRemoteURL(filepath.Join(absPath, ".git", "config")))
	branch := readGitBranch(filepath.Join(absPath, ".git", "HEAD"))
	commitSha := readGitCommitSha(absPath)

	if repoName != "" {
		logger.Debug("gitenv: detected local repo %s (branch %s)", repoName, branch)
	}
	return NewManualEnv(repoName, branch, commitSha)
}

// readGitRemoteURL reads the origin remote URL from a git config file.
func readGitRemoteURL(configPath string) string {
	file, err := os.Open(configPath)
	if err != nil {
		return ""
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	inRemoteOrigin := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == `[remote "origin"]` {
			inRemoteOrigin = true
			continue
		}
		if inRemoteOrigin {
			if strings.HasPrefix(line, "[") {
				break
			}
			if strings.HasPrefix(line, "url = ") {
				return strings.TrimPrefix(line, "url = ")
			}
		}
	}
	return ""
}

// readGitBranch reads the current branch from .git/HEAD. A detached HEAD
// yields the short commit hash.
func readGitBranch(headPath string) string {
	content, err := os.ReadFile(headPath)
	if err != nil {
		return ""
	}

	head := strings.TrimSpace(string(content))
	if strings.HasPrefix(head, "ref: refs/heads/") {
		return strings.TrimPrefix(head, "ref: refs/heads/")
	}
	if len(head) >= 7 {
		return head[:7]
	}
	return ""
}

// readGitCommitSha resolves HEAD to a commit SHA.
func readGitCommitSha(repoPath string) string {
	content, err := os.ReadFile(filepath.Join(repoPath, ".git", "HEAD"))
	if err != nil {
		return ""
	}

	head := strings.TrimSpace(string(content))
	if strings.HasPrefix(head, "ref: ") {
		refPath := strings.TrimPrefix(head, "ref: ")
		refContent, err := os.ReadFile(filepath.Join(repoPath, ".git", refPath))
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(refContent))
	}
	return head
}

// NormalizeRepoURL normalizes a git remote URL to {domain}/{owner}/{repo}.
// SSH remotes (git@github.com:org/repo.git) and HTTPS remotes both collapse
// to the same canonical form.
func NormalizeRepoURL(url string) string {
	if url == "" {
		return ""
	}
	if strings.HasPrefix(url, "git@") {
		url = strings.TrimPrefix(url, "git@")
		url = strings.Replace(url, ":", "/", 1)
	}
	url = strings.TrimPrefix(url, "https://")
	url = strings.TrimPrefix(url, "http://")
	url = strings.TrimSuffix(url, ".git")
	url = strings.TrimSuffix(url, "/")
	return url
}
