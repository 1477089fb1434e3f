// Package core provides the collaborator contracts and shared data types for
// the Remedly AutoFix SDK. Concrete implementations (HTTP, gRPC, rule-based,
// mocks) live in their own packages; the workflow engine depends only on the
// interfaces defined here.
package core

import (
	"context"
	"time"

	"github.com/remedly/sdk/pkg/issue"
)

// =============================================================================
// Enrichment Collaborator
// =============================================================================

// Enricher fetches contextual metadata for an issue: application identity,
// ownership, git history, linked IaC and CI references. The workflow treats
// the returned context as opaque data to log and forward.
type Enricher interface {
	// Name returns the enricher name (e.g., "contextgraph", "github")
	Name() string

	// FetchEnrichment returns contextual metadata for the issue.
	FetchEnrichment(ctx context.Context, iss *issue.Issue) (*EnrichmentContext, error)
}

// EnrichmentContext is the opaque structured bundle returned by an Enricher.
type EnrichmentContext struct {
	// Application identity
	Application Application `json:"application"`

	// Ownership information
	Ownership Ownership `json:"ownership"`

	// Linked infrastructure-as-code references
	IaCReferences []string `json:"iac_references,omitempty"`

	// Linked CI/CD configuration files
	CICDConfigs []string `json:"cicd_configs,omitempty"`

	// Git repository information
	Git GitInfo `json:"git"`

	// Source names the enricher that produced this context
	Source string `json:"source,omitempty"`
}

// Application identifies the application an issue belongs to.
type Application struct {
	Name      string `json:"name"`
	Structure string `json:"structure,omitempty"`
}

// Ownership names the team and individual owner of the affected component.
type Ownership struct {
	Team  string `json:"team,omitempty"`
	Owner string `json:"owner,omitempty"`
}

// GitInfo carries repository history relevant to the issue.
type GitInfo struct {
	RepoURL       string   `json:"repo_url,omitempty"`
	CommitHistory []string `json:"commit_history,omitempty"`
}

// =============================================================================
// Fix-Generation Collaborator
// =============================================================================

// FixGenerator proposes a remediation for an issue given an assembled prompt.
// Prompt assembly itself is synchronous and pure (see pkg/prompt); only
// GenerateFix suspends.
type FixGenerator interface {
	// Name returns the generator name (e.g., "llm", "rules")
	Name() string

	// GenerateFix returns a proposed fix for the given prompt text.
	GenerateFix(ctx context.Context, promptText string) (*ProposedFix, error)
}

// ProposedFix is a remediation proposal. It is created once per workflow run
// and immutable afterward.
type ProposedFix struct {
	// Content is the fix itself: a diff/patch or command text
	Content string `json:"content"`

	// Confidence in [0, 100] estimating how likely the fix is correct and safe
	Confidence float64 `json:"confidence"`

	// Rationale explains why the fix is appropriate
	Rationale string `json:"rationale"`
}

// =============================================================================
// Execution Collaborator
// =============================================================================

// Executor applies (or simulates) a remediation action.
type Executor interface {
	// Name returns the executor name (e.g., "http", "grpc")
	Name() string

	// Apply performs the remediation described by actionType and payload
	// and returns the resulting job status.
	Apply(ctx context.Context, actionType string, payload map[string]any) (*ExecutionResult, error)
}

// JobStatus is the terminal or in-flight state of an execution job.
type JobStatus string

const (
	JobSuccess JobStatus = "success"
	JobFailed  JobStatus = "failed"
	JobPending JobStatus = "pending"
)

// ExecutionResult is returned by the execution collaborator.
type ExecutionResult struct {
	// JobID identifies the remediation job on the execution service
	JobID string `json:"job_id"`

	// Status of the job
	Status JobStatus `json:"status"`

	// Details is a human-readable status description
	Details string `json:"details,omitempty"`

	// CompletedAt is set when the job reached a terminal state
	CompletedAt time.Time `json:"completed_at,omitzero"`
}
