// Package orchestrator drives the agent's remediation loop. It polls issue
// sources, applies policy, tracks lifecycle state, hands issues to the
// workflow engine and routes the outcomes: automatic executions are archived,
// low-confidence fixes land in the approval queue, and resolved approvals are
// executed on behalf of the reviewer.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/remedly/sdk/pkg/action"
	"github.com/remedly/sdk/pkg/approval"
	"github.com/remedly/sdk/pkg/audit"
	"github.com/remedly/sdk/pkg/core"
	"github.com/remedly/sdk/pkg/gitenv"
	"github.com/remedly/sdk/pkg/history"
	"github.com/remedly/sdk/pkg/issue"
	"github.com/remedly/sdk/pkg/metrics"
	"github.com/remedly/sdk/pkg/policy"
	"github.com/remedly/sdk/pkg/store"
	"github.com/remedly/sdk/pkg/workflow"
)

const (
	// DefaultPollInterval between source polls in daemon mode.
	DefaultPollInterval = 30 * time.Second

	// DefaultMaxPollFailures is the number of consecutive poll failures after
	// which the daemon loop gives up.
	DefaultMaxPollFailures = 5

	// forceApprovalThreshold is unattainable, so every successful fix for a
	// policy-gated issue routes to human approval.
	forceApprovalThreshold = 200
)

// IssueSource delivers normalized issues to the orchestrator. Sources may
// redeliver; the orchestrator deduplicates by issue id.
type IssueSource interface {
	Name() string
	Poll(ctx context.Context) ([]*issue.Issue, error)
}

// StaticSource serves a fixed batch once and nothing afterwards. Used for
// one-shot runs and tests.
type StaticSource struct {
	issues  []*issue.Issue
	drained bool
}

// NewStaticSource creates a source over a fixed batch.
func NewStaticSource(issues []*issue.Issue) *StaticSource {
	return &StaticSource{issues: issues}
}

func (s *StaticSource) Name() string { return "static" }

func (s *StaticSource) Poll(ctx context.Context) ([]*issue.Issue, error) {
	if s.drained {
		return nil, nil
	}
	s.drained = true
	return s.issues, nil
}

// Config wires an Orchestrator. Source, Enricher, Generator and Executor are
// required; everything else has a working default.
type Config struct {
	Source    IssueSource
	Enricher  core.Enricher
	Generator core.FixGenerator
	Executor  core.Executor

	// Policy gates issues before they enter the workflow. Defaults to
	// policy.DefaultRules.
	Policy *policy.Engine

	// Store tracks issue lifecycle. Defaults to a fresh in-memory store.
	Store *store.Store

	// Approvals holds fixes awaiting review. Defaults to a fresh queue.
	Approvals *approval.Queue

	// History archives terminal results (optional).
	History *history.Archive

	// Audit records orchestration events (optional).
	Audit *audit.Logger

	// CIEnv, when active, receives a proposed-fix review comment on the
	// current merge request each time an issue lands in the approval queue
	// (optional).
	CIEnv gitenv.GitEnv

	// Metrics receives intake and execution counters. Defaults to a no-op.
	Metrics metrics.Collector

	// Logger for operational logging. Defaults to a silent logger.
	Logger core.Logger

	// PollInterval between source polls in daemon mode.
	PollInterval time.Duration

	// MaxPollFailures before the daemon loop stops with an error.
	MaxPollFailures int

	// RateLimit caps workflow runs per second. Zero means unlimited.
	RateLimit float64

	// RateBurst is the limiter burst size. Defaults to 1 when rate limited.
	RateBurst int
}

// Orchestrator runs the remediation loop. It is safe for a single Run or
// RunOnce at a time; Approve and Reject may be called concurrently with the
// loop.
type Orchestrator struct {
	source    IssueSource
	executor  core.Executor
	auto      *workflow.Engine
	review    *workflow.Engine
	policy    *policy.Engine
	store     *store.Store
	approvals *approval.Queue
	history   *history.Archive
	audit     *audit.Logger
	ciEnv     gitenv.GitEnv
	metrics   metrics.Collector
	logger    core.Logger
	limiter   *rate.Limiter

	pollInterval    time.Duration
	maxPollFailures int
}

// New creates an orchestrator. Two workflow engines share the collaborators:
// the regular one applies the confidence threshold, the review one carries an
// unattainable threshold for issues whose policy forbids automatic execution.
func New(cfg *Config) (*Orchestrator, error) {
	if cfg == nil || cfg.Source == nil {
		return nil, fmt.Errorf("orchestrator: an issue source is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = core.NopLogger{}
	}
	collector := cfg.Metrics
	if collector == nil {
		collector = &metrics.NopCollector{}
	}

	policyEngine := cfg.Policy
	if policyEngine == nil {
		var err error
		policyEngine, err = policy.NewEngine(policy.DefaultRules())
		if err != nil {
			return nil, err
		}
	}

	observer := metrics.NewWorkflowObserver(collector)
	auto, err := workflow.NewEngine(&workflow.EngineConfig{
		Enricher:  cfg.Enricher,
		Generator: cfg.Generator,
		Executor:  cfg.Executor,
		Logger:    logger,
		Audit:     cfg.Audit,
		Observer:  observer,
	})
	if err != nil {
		return nil, err
	}
	review, err := workflow.NewEngine(&workflow.EngineConfig{
		Enricher:  cfg.Enricher,
		Generator: cfg.Generator,
		Executor:  cfg.Executor,
		Logger:    logger,
		Audit:     cfg.Audit,
		Observer:  observer,
		Threshold: forceApprovalThreshold,
	})
	if err != nil {
		return nil, err
	}

	st := cfg.Store
	if st == nil {
		st = store.New(0)
	}
	approvals := cfg.Approvals
	if approvals == nil {
		approvals = approval.NewQueue(&approval.QueueConfig{Audit: cfg.Audit, Metrics: collector})
	}

	limit := rate.Inf
	burst := 1
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
		if cfg.RateBurst > 0 {
			burst = cfg.RateBurst
		}
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	maxPollFailures := cfg.MaxPollFailures
	if maxPollFailures <= 0 {
		maxPollFailures = DefaultMaxPollFailures
	}

	return &Orchestrator{
		source:          cfg.Source,
		executor:        cfg.Executor,
		auto:            auto,
		review:          review,
		policy:          policyEngine,
		store:           st,
		approvals:       approvals,
		history:         cfg.History,
		audit:           cfg.Audit,
		ciEnv:           cfg.CIEnv,
		metrics:         collector,
		logger:          logger,
		limiter:         rate.NewLimiter(limit, burst),
		pollInterval:    pollInterval,
		maxPollFailures: maxPollFailures,
	}, nil
}

// Store exposes the lifecycle store for status surfaces.
func (o *Orchestrator) Store() *store.Store { return o.store }

// Approvals exposes the approval queue for review surfaces.
func (o *Orchestrator) Approvals() *approval.Queue { return o.approvals }

// Run polls the source until the context is canceled or the source fails
// MaxPollFailures times in a row.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		if err := o.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			o.logger.Warn("orchestrator: poll failed (%d/%d): %v", failures, o.maxPollFailures, err)
			if failures >= o.maxPollFailures {
				return fmt.Errorf("orchestrator: source %s failed %d consecutive polls: %w",
					o.source.Name(), failures, err)
			}
		} else {
			failures = 0
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single poll-and-process pass.
func (o *Orchestrator) RunOnce(ctx context.Context) error {
	if o.audit != nil {
		o.audit.Info(audit.EventPollStarted, "polling issue source", map[string]any{
			"source": o.source.Name(),
		})
	}

	issues, err := o.source.Poll(ctx)
	if err != nil {
		if o.audit != nil {
			o.audit.Error(audit.EventPollFailed, "issue source poll failed", err, map[string]any{
				"source": o.source.Name(),
			})
		}
		return err
	}

	for _, iss := range issues {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.processIssue(ctx, iss)
	}

	o.expireApprovals()
	return nil
}

// expireApprovals sweeps the approval queue and closes out the lifecycle of
// issues whose requests timed out. Expired issues leave the loop as skipped;
// they can re-enter through a later redelivery under a fresh id.
func (o *Orchestrator) expireApprovals() {
	expired := o.approvals.ExpireStale()
	if len(expired) == 0 {
		return
	}
	for _, issueID := range expired {
		o.logger.Info("orchestrator: approval for issue %s expired unresolved", issueID)
		o.transition(issueID, store.StateSkipped, "")
		if o.audit != nil {
			o.audit.Info(audit.EventApprovalExpired, "approval request expired", map[string]any{
				"issue_id": issueID,
			})
		}
	}
	o.syncOpenGauge()
}

// processIssue takes one issue from intake to a lifecycle transition. Failures
// are terminal per issue and never abort the batch.
func (o *Orchestrator) processIssue(ctx context.Context, iss *issue.Issue) {
	if iss == nil {
		return
	}
	if _, tracked := o.store.Get(iss.ID); tracked {
		o.logger.Debug("orchestrator: issue %s already tracked, skipping redelivery", iss.ID)
		return
	}
	if err := o.store.Add(iss); err != nil {
		o.logger.Warn("orchestrator: rejected issue %s: %v", iss.ID, err)
		return
	}

	o.metrics.CounterInc(metrics.IssuesReceivedTotal.Name,
		"category", string(iss.Category), "severity", iss.Severity.String())
	o.syncOpenGauge()
	if o.audit != nil {
		o.audit.Info(audit.EventIssueReceived, "issue received", map[string]any{
			"issue_id": iss.ID,
			"category": string(iss.Category),
			"severity": iss.Severity.String(),
		})
	}

	decision := o.policy.Evaluate(iss)
	if !decision.Remediate {
		o.logger.Info("orchestrator: issue %s skipped by policy rule %s", iss.ID, decision.RuleID)
		o.transition(iss.ID, store.StateSkipped, "")
		return
	}

	if err := o.limiter.Wait(ctx); err != nil {
		o.transition(iss.ID, store.StateSkipped, "")
		return
	}

	o.transition(iss.ID, store.StateInProgress, "")

	engine := o.auto
	if !decision.AllowAutomatic {
		o.logger.Info("orchestrator: policy rule %s requires approval for issue %s", decision.RuleID, iss.ID)
		engine = o.review
	}
	res := engine.Run(ctx, iss)

	switch res.Status {
	case workflow.StatusCompletedAutomatic:
		o.metrics.CounterInc(metrics.ExecutionJobsTotal.Name,
			"action_type", res.ExecutionAction.Type.String(),
			"status", string(res.ExecutionResult.Status))
		o.transition(iss.ID, store.StateRemediated, res.WorkflowID)

	case workflow.StatusAwaitingApproval:
		if err := o.approvals.Enqueue(res); err != nil {
			o.logger.Error("orchestrator: could not queue issue %s for approval: %v", iss.ID, err)
			o.transition(iss.ID, store.StateFailed, res.WorkflowID)
			break
		}
		o.transition(iss.ID, store.StateAwaitingApproval, res.WorkflowID)
		o.postFixComment(res)

	default:
		o.transition(iss.ID, store.StateFailed, res.WorkflowID)
	}

	o.syncOpenGauge()
	o.archive(ctx, res)
}

// postFixComment surfaces a queued fix as a review comment on the current
// merge request, so the reviewer sees the patch where the issue lives. Posting
// is best effort: the approval queue, not the comment, owns the resolution.
func (o *Orchestrator) postFixComment(res *workflow.Result) {
	if o.ciEnv == nil || !o.ciEnv.IsActive() {
		return
	}
	comment := gitenv.BuildFixComment(res.ApprovalPayload)
	if comment.Body == "" {
		return
	}
	if err := o.ciEnv.PostFixComment(comment); err != nil {
		o.logger.Warn("orchestrator: could not post fix comment for issue %s: %v", res.IssueID, err)
		return
	}
	o.logger.Info("orchestrator: posted proposed-fix comment for issue %s via %s", res.IssueID, o.ciEnv.Provider())
}

// Approve resolves a pending approval and executes the suggested action on
// behalf of the reviewer.
func (o *Orchestrator) Approve(ctx context.Context, issueID, reviewer, note string) (*core.ExecutionResult, error) {
	req, err := o.approvals.Approve(issueID, reviewer, note)
	if err != nil {
		return nil, err
	}

	o.transition(issueID, store.StateInProgress, req.WorkflowID)

	act, err := action.Route(req.Payload.Issue, req.Payload.ProposedFix)
	if err != nil {
		o.transition(issueID, store.StateFailed, req.WorkflowID)
		return nil, err
	}

	execResult, err := o.executor.Apply(ctx, act.Type.String(), act.Payload)
	if err != nil {
		o.metrics.CounterInc(metrics.ExecutionJobsTotal.Name,
			"action_type", act.Type.String(), "status", "error")
		o.transition(issueID, store.StateFailed, req.WorkflowID)
		return nil, err
	}

	o.metrics.CounterInc(metrics.ExecutionJobsTotal.Name,
		"action_type", act.Type.String(), "status", string(execResult.Status))
	o.transition(issueID, store.StateRemediated, req.WorkflowID)
	o.syncOpenGauge()

	if o.audit != nil {
		o.audit.Info(audit.EventExecutionFinished, "approved fix executed", map[string]any{
			"issue_id":    issueID,
			"reviewer":    reviewer,
			"action_type": act.Type.String(),
			"job_id":      execResult.JobID,
			"job_status":  string(execResult.Status),
		})
	}
	return execResult, nil
}

// Reject resolves a pending approval negatively. The issue leaves the
// remediation lifecycle as skipped.
func (o *Orchestrator) Reject(issueID, reviewer, note string) error {
	if _, err := o.approvals.Reject(issueID, reviewer, note); err != nil {
		return err
	}
	o.transition(issueID, store.StateSkipped, "")
	o.syncOpenGauge()
	return nil
}

func (o *Orchestrator) transition(issueID string, to store.State, workflowID string) {
	if err := o.store.Transition(issueID, to, workflowID); err != nil {
		o.logger.Warn("orchestrator: %v", err)
	}
}

func (o *Orchestrator) syncOpenGauge() {
	o.metrics.GaugeSet(metrics.IssuesOpenGauge.Name, float64(o.store.OpenCount()))
}

func (o *Orchestrator) archive(ctx context.Context, res *workflow.Result) {
	if o.history == nil {
		return
	}
	if err := o.history.Save(ctx, res); err != nil {
		o.logger.Error("orchestrator: could not archive workflow %s: %v", res.WorkflowID, err)
	}
}

var _ IssueSource = (*StaticSource)(nil)
