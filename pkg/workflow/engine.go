// Package workflow implements the AutoFix decision workflow: given a
// normalized issue it fetches enrichment context, requests a proposed fix,
// applies the confidence-based decision and routes the result either to
// automatic execution or to the human-approval queue, assembling a complete
// audit trail along the way.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/remedly/sdk/pkg/action"
	"github.com/remedly/sdk/pkg/audit"
	"github.com/remedly/sdk/pkg/core"
	"github.com/remedly/sdk/pkg/issue"
	"github.com/remedly/sdk/pkg/prompt"
)

// ConfidenceThreshold is the score at or above which a proposed fix is
// executed automatically. The comparison is inclusive: exactly 90.0 routes
// to automatic execution.
const ConfidenceThreshold = 90.0

// Observer receives workflow telemetry. Implementations must be safe for
// concurrent use; pkg/metrics provides a Prometheus-backed one.
type Observer interface {
	// RunFinished is called once per run with the terminal status, the
	// proposed fix's confidence (0 when no fix was produced) and the run
	// duration.
	RunFinished(status Status, confidence float64, duration time.Duration)

	// CollaboratorCall is called after each collaborator call.
	CollaboratorCall(collaborator string, duration time.Duration, err error)
}

// EngineConfig configures a workflow Engine.
type EngineConfig struct {
	// Enricher fetches contextual metadata (required).
	Enricher core.Enricher

	// Generator proposes fixes (required).
	Generator core.FixGenerator

	// Executor applies remediations (required).
	Executor core.Executor

	// Logger for operational logging. Defaults to a silent logger.
	Logger core.Logger

	// Audit mirrors the in-run trail into a persistent sink (optional).
	Audit *audit.Logger

	// Observer receives run telemetry (optional).
	Observer Observer

	// Threshold overrides the confidence threshold for automatic execution.
	// Zero falls back to ConfidenceThreshold. An unattainable threshold
	// (above 100) routes every successful fix to human approval, which is how
	// policy-gated issues are handled.
	Threshold float64
}

// Engine orchestrates AutoFix workflow runs. It holds no mutable state:
// every Run allocates its own workflow id and audit trail, so concurrent
// runs for different issues are independent.
type Engine struct {
	enricher  core.Enricher
	generator core.FixGenerator
	executor  core.Executor
	logger    core.Logger
	audit     *audit.Logger
	observer  Observer
	threshold float64
}

// NewEngine creates a workflow engine.
func NewEngine(cfg *EngineConfig) (*Engine, error) {
	if cfg == nil || cfg.Enricher == nil || cfg.Generator == nil || cfg.Executor == nil {
		return nil, fmt.Errorf("workflow: enricher, generator and executor are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = core.NopLogger{}
	}
	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = ConfidenceThreshold
	}
	return &Engine{
		enricher:  cfg.Enricher,
		generator: cfg.Generator,
		executor:  cfg.Executor,
		logger:    logger,
		audit:     cfg.Audit,
		observer:  cfg.Observer,
		threshold: threshold,
	}, nil
}

// run carries the per-invocation state: the trail belongs to exactly one
// Result and is never shared.
type run struct {
	engine *Engine
	result *Result
}

func (r *run) log(act string, details map[string]any) {
	r.result.AuditLog = append(r.result.AuditLog, AuditEntry{
		Timestamp: time.Now(),
		Actor:     Actor,
		Action:    act,
		Details:   details,
	})
}

// Run executes the AutoFix workflow for one issue. It is total: all failure
// paths are captured into the returned Result, and the input issue is never
// mutated. Collaborator calls are strictly sequential and never retried here;
// retry policy belongs to the collaborators or the calling orchestrator.
func (e *Engine) Run(ctx context.Context, iss *issue.Issue) (res *Result) {
	workflowID := "wf-" + uuid.NewString()
	started := time.Now()

	r := &run{
		engine: e,
		result: &Result{
			WorkflowID: workflowID,
			AuditLog:   make([]AuditEntry, 0, 8),
		},
	}

	defer func() {
		if p := recover(); p != nil {
			r.fail(fmt.Errorf("panic: %v", p))
		}
		res = r.result
		r.result.Metrics = &RunMetrics{
			StartedAt:  started,
			FinishedAt: time.Now(),
			Duration:   time.Since(started),
		}
		confidence := 0.0
		if r.result.ProposedFix != nil {
			confidence = r.result.ProposedFix.Confidence
		}
		if e.observer != nil {
			e.observer.RunFinished(r.result.Status, confidence, r.result.Metrics.Duration)
		}
	}()

	if iss == nil {
		return r.fail(fmt.Errorf("no issue provided"))
	}
	r.result.IssueID = iss.ID

	e.logger.Debug("workflow %s started for issue %s (%s)", workflowID, iss.ID, iss.Category)
	r.log("Workflow started", map[string]any{"workflow_id": workflowID, "issue_id": iss.ID})
	if e.audit != nil {
		e.audit.WorkflowStarted(workflowID, iss.ID)
	}

	if err := iss.Validate(); err != nil {
		return r.fail(err)
	}

	// Step 1: enrichment. Any failure aborts the run; no retry.
	enrichment, err := e.callEnricher(ctx, iss)
	if err != nil {
		return r.fail(err)
	}
	r.result.Context = enrichment
	r.log("Context received", map[string]any{"context": enrichment})

	// Step 2: fix generation.
	promptText, err := prompt.Build(iss, enrichment)
	if err != nil {
		return r.fail(err)
	}
	r.log("Fix generation requested", map[string]any{"prompt": promptText})

	fix, err := e.callGenerator(ctx, promptText)
	if err != nil {
		return r.fail(err)
	}
	r.result.ProposedFix = fix
	r.log("Fix proposed", map[string]any{
		"confidence": fix.Confidence,
		"rationale":  fix.Rationale,
		"content":    fix.Content,
	})

	// Step 3: confidence decision.
	if fix.Confidence >= e.threshold {
		return r.completeAutomatic(ctx, iss, fix)
	}
	return r.queueForApproval(iss, enrichment, fix)
}

func (e *Engine) callEnricher(ctx context.Context, iss *issue.Issue) (*core.EnrichmentContext, error) {
	started := time.Now()
	enrichment, err := e.enricher.FetchEnrichment(ctx, iss)
	if e.observer != nil {
		e.observer.CollaboratorCall("enricher", time.Since(started), err)
	}
	return enrichment, err
}

func (e *Engine) callGenerator(ctx context.Context, promptText string) (*core.ProposedFix, error) {
	started := time.Now()
	fix, err := e.generator.GenerateFix(ctx, promptText)
	if e.observer != nil {
		e.observer.CollaboratorCall("generator", time.Since(started), err)
	}
	if err == nil && fix == nil {
		err = fmt.Errorf("fix generator %s returned no fix", e.generator.Name())
	}
	return fix, err
}

func (r *run) completeAutomatic(ctx context.Context, iss *issue.Issue, fix *core.ProposedFix) *Result {
	e := r.engine

	act, err := action.Route(iss, fix)
	if err != nil {
		return r.fail(err)
	}
	r.result.ExecutionAction = act
	r.log("Execution action routed", map[string]any{"type": act.Type.String(), "payload": act.Payload})

	started := time.Now()
	execResult, err := e.executor.Apply(ctx, act.Type.String(), act.Payload)
	if e.observer != nil {
		e.observer.CollaboratorCall("executor", time.Since(started), err)
	}
	if err != nil {
		return r.fail(err)
	}
	r.result.ExecutionResult = execResult
	r.log("Execution result received", map[string]any{
		"job_id": execResult.JobID,
		"status": string(execResult.Status),
	})

	r.result.Status = StatusCompletedAutomatic
	r.result.Decision = fmt.Sprintf("Auto-remediated based on confidence score of %.2f%%", fix.Confidence)
	e.logger.Info("workflow %s: %s", r.result.WorkflowID, r.result.Decision)
	if e.audit != nil {
		e.audit.WorkflowCompleted(r.result.WorkflowID, r.result.IssueID, string(r.result.Status), r.result.Decision)
	}
	return r.result
}

func (r *run) queueForApproval(iss *issue.Issue, enrichment *core.EnrichmentContext, fix *core.ProposedFix) *Result {
	e := r.engine

	r.result.ApprovalPayload = &ApprovalPayload{
		Issue:           iss,
		Context:         enrichment,
		ProposedFix:     fix,
		SuggestedAction: action.SuggestedAction(iss),
	}
	r.log("Queued for human approval", map[string]any{
		"confidence":       fix.Confidence,
		"threshold":        e.threshold,
		"suggested_action": r.result.ApprovalPayload.SuggestedAction,
	})

	r.result.Status = StatusAwaitingApproval
	r.result.Decision = fmt.Sprintf("Fix requires manual approval due to confidence score of %.2f%%", fix.Confidence)
	e.logger.Info("workflow %s: %s", r.result.WorkflowID, r.result.Decision)
	if e.audit != nil {
		e.audit.WorkflowCompleted(r.result.WorkflowID, r.result.IssueID, string(r.result.Status), r.result.Decision)
	}
	return r.result
}

func (r *run) fail(err error) *Result {
	e := r.engine

	// The result must carry exactly one of execution result, approval
	// payload and error; a failure discards any partial branch output.
	r.result.Context = nil
	r.result.ProposedFix = nil
	r.result.ExecutionAction = nil
	r.result.ExecutionResult = nil
	r.result.ApprovalPayload = nil

	r.result.Status = StatusFailed
	r.result.Decision = "An unexpected error occurred during the workflow."
	r.result.Error = err.Error()
	r.log("Workflow failed", map[string]any{"error": err.Error()})

	e.logger.Error("workflow %s failed for issue %s: %v", r.result.WorkflowID, r.result.IssueID, err)
	if e.audit != nil {
		e.audit.WorkflowFailed(r.result.WorkflowID, r.result.IssueID, err)
	}
	return r.result
}
