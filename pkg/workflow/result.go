package workflow

import (
	"time"

	"github.com/remedly/sdk/pkg/action"
	"github.com/remedly/sdk/pkg/core"
	"github.com/remedly/sdk/pkg/issue"
)

// Status is the terminal state of a workflow run.
type Status string

const (
	// StatusCompletedAutomatic - the fix passed the confidence threshold and
	// was handed to the execution collaborator.
	StatusCompletedAutomatic Status = "completed_automatic"

	// StatusAwaitingApproval - the fix fell below the confidence threshold
	// and was queued for human approval.
	StatusAwaitingApproval Status = "awaiting_approval"

	// StatusFailed - a collaborator call or the action router failed.
	StatusFailed Status = "failed"
)

// Actor is the actor recorded on every audit entry the engine appends.
const Actor = "AutoFixWorkflow"

// AuditEntry is one step in a workflow run's audit trail. Entries are
// append-only and ordered by real occurrence; they are never mutated after
// append.
type AuditEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Actor     string         `json:"actor"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
}

// ApprovalPayload is the bundle handed to the human-review queue when
// confidence is insufficient for automatic execution.
type ApprovalPayload struct {
	Issue           *issue.Issue            `json:"issue"`
	Context         *core.EnrichmentContext `json:"context,omitempty"`
	ProposedFix     *core.ProposedFix       `json:"proposed_fix"`
	SuggestedAction string                  `json:"suggested_action"`
}

// RunMetrics captures timing for a single workflow run. Duration marshals as
// integer nanoseconds, which is how time.Duration serializes.
type RunMetrics struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration_ns"`
}

// Result is the terminal output of a workflow run. It is owned solely by the
// caller; the engine holds no state across invocations.
//
// Exactly one of ExecutionResult, ApprovalPayload and Error is populated,
// matching Status.
type Result struct {
	WorkflowID string `json:"workflow_id"`
	IssueID    string `json:"issue_id"`
	Status     Status `json:"status"`

	// Decision is a human-readable explanation citing the confidence score.
	Decision string `json:"decision"`

	Context         *core.EnrichmentContext `json:"context,omitempty"`
	ProposedFix     *core.ProposedFix       `json:"proposed_fix,omitempty"`
	ExecutionAction *action.ExecutionAction `json:"execution_action,omitempty"`
	ExecutionResult *core.ExecutionResult   `json:"execution_result,omitempty"`
	ApprovalPayload *ApprovalPayload        `json:"approval_payload,omitempty"`

	// AuditLog is the ordered, append-only record of every step this run took.
	AuditLog []AuditEntry `json:"audit_log"`

	Error   string      `json:"error,omitempty"`
	Metrics *RunMetrics `json:"metrics,omitempty"`
}
