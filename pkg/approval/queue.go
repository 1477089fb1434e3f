// Package approval holds proposed fixes that fell below the confidence
// threshold (or were forced to review by policy) until a human resolves them.
package approval

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/remedly/sdk/pkg/audit"
	"github.com/remedly/sdk/pkg/metrics"
	"github.com/remedly/sdk/pkg/workflow"
)

// Resolution is the terminal state of an approval request.
type Resolution string

const (
	ResolutionPending  Resolution = "pending"
	ResolutionApproved Resolution = "approved"
	ResolutionRejected Resolution = "rejected"
	ResolutionExpired  Resolution = "expired"
)

// Request is one pending approval. The payload is exactly what the workflow
// queued: issue, context, proposed fix and suggested action.
type Request struct {
	IssueID    string                    `json:"issue_id"`
	WorkflowID string                    `json:"workflow_id"`
	Payload    *workflow.ApprovalPayload `json:"payload"`
	QueuedAt   time.Time                 `json:"queued_at"`

	Resolution Resolution `json:"resolution"`
	ResolvedBy string     `json:"resolved_by,omitempty"`
	ResolvedAt time.Time  `json:"resolved_at,omitempty"`
	Note       string     `json:"note,omitempty"`
}

// Authorizer decides whether a reviewer may resolve requests. The default
// allows everyone; deployments plug in their own directory or RBAC check.
type Authorizer interface {
	CanResolve(reviewer string) bool
}

// AllowAll authorizes every named reviewer.
type AllowAll struct{}

func (AllowAll) CanResolve(reviewer string) bool { return reviewer != "" }

// Stats summarizes the queue.
type Stats struct {
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	Expired  int `json:"expired"`
}

// QueueConfig configures an approval queue.
type QueueConfig struct {
	// Authorizer gates resolution calls. Defaults to AllowAll.
	Authorizer Authorizer

	// TTL expires pending requests after this duration. Zero disables expiry.
	TTL time.Duration

	// Audit records queue and resolution events (optional).
	Audit *audit.Logger

	// Metrics receives queue depth and resolution counters (optional).
	Metrics metrics.Collector
}

// Queue is a concurrency-safe approval queue.
type Queue struct {
	mu         sync.RWMutex
	requests   map[string]*Request
	authorizer Authorizer
	ttl        time.Duration
	audit      *audit.Logger
	metrics    metrics.Collector
}

// NewQueue creates an approval queue.
func NewQueue(cfg *QueueConfig) *Queue {
	if cfg == nil {
		cfg = &QueueConfig{}
	}
	authorizer := cfg.Authorizer
	if authorizer == nil {
		authorizer = AllowAll{}
	}
	collector := cfg.Metrics
	if collector == nil {
		collector = &metrics.NopCollector{}
	}
	return &Queue{
		requests:   make(map[string]*Request),
		authorizer: authorizer,
		ttl:        cfg.TTL,
		audit:      cfg.Audit,
		metrics:    collector,
	}
}

// Enqueue adds the approval payload of a workflow result that ended awaiting
// approval. Re-queueing an issue with a pending request is an error.
func (q *Queue) Enqueue(res *workflow.Result) error {
	if res == nil || res.ApprovalPayload == nil {
		return fmt.Errorf("approval: result carries no approval payload")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if existing, ok := q.requests[res.IssueID]; ok && existing.Resolution == ResolutionPending {
		return fmt.Errorf("approval: issue %s already has a pending request", res.IssueID)
	}

	q.requests[res.IssueID] = &Request{
		IssueID:    res.IssueID,
		WorkflowID: res.WorkflowID,
		Payload:    res.ApprovalPayload,
		QueuedAt:   time.Now(),
		Resolution: ResolutionPending,
	}
	q.metrics.GaugeInc(metrics.ApprovalQueueDepth.Name)

	if q.audit != nil {
		q.audit.Info(audit.EventApprovalQueued, "fix queued for approval", map[string]any{
			"issue_id":         res.IssueID,
			"workflow_id":      res.WorkflowID,
			"suggested_action": res.ApprovalPayload.SuggestedAction,
		})
	}
	return nil
}

// Approve resolves a pending request positively and returns it so the caller
// can execute the suggested action.
func (q *Queue) Approve(issueID, reviewer, note string) (*Request, error) {
	return q.resolve(issueID, reviewer, note, ResolutionApproved)
}

// Reject resolves a pending request negatively.
func (q *Queue) Reject(issueID, reviewer, note string) (*Request, error) {
	return q.resolve(issueID, reviewer, note, ResolutionRejected)
}

func (q *Queue) resolve(issueID, reviewer, note string, resolution Resolution) (*Request, error) {
	if !q.authorizer.CanResolve(reviewer) {
		return nil, fmt.Errorf("approval: reviewer %q is not authorized", reviewer)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	req, ok := q.requests[issueID]
	if !ok {
		return nil, fmt.Errorf("approval: no request for issue %s", issueID)
	}
	if req.Resolution != ResolutionPending {
		return nil, fmt.Errorf("approval: request for issue %s already %s", issueID, req.Resolution)
	}

	req.Resolution = resolution
	req.ResolvedBy = reviewer
	req.ResolvedAt = time.Now()
	req.Note = note

	q.metrics.GaugeDec(metrics.ApprovalQueueDepth.Name)
	q.metrics.CounterInc(metrics.ApprovalResolutionsTotal.Name, "outcome", string(resolution))
	if q.audit != nil {
		q.audit.ApprovalResolved(issueID, reviewer, resolution == ResolutionApproved, note)
	}

	out := *req
	return &out, nil
}

// Get returns a copy of the request for an issue.
func (q *Queue) Get(issueID string) (Request, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	req, ok := q.requests[issueID]
	if !ok {
		return Request{}, false
	}
	return *req, true
}

// Pending returns pending requests ordered by queue time.
func (q *Queue) Pending() []Request {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]Request, 0, len(q.requests))
	for _, req := range q.requests {
		if req.Resolution == ResolutionPending {
			out = append(out, *req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueuedAt.Before(out[j].QueuedAt) })
	return out
}

// Stats returns queue counters.
func (q *Queue) Stats() Stats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var s Stats
	for _, req := range q.requests {
		switch req.Resolution {
		case ResolutionPending:
			s.Pending++
		case ResolutionApproved:
			s.Approved++
		case ResolutionRejected:
			s.Rejected++
		case ResolutionExpired:
			s.Expired++
		}
	}
	return s
}

// ExpireStale marks pending requests older than the TTL as expired and
// returns the affected issue ids so the caller can close out their lifecycle
// state. With no TTL configured it is a no-op.
func (q *Queue) ExpireStale() []string {
	if q.ttl <= 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := time.Now().Add(-q.ttl)
	var expired []string
	for _, req := range q.requests {
		if req.Resolution != ResolutionPending || req.QueuedAt.After(cutoff) {
			continue
		}
		req.Resolution = ResolutionExpired
		req.ResolvedAt = time.Now()
		expired = append(expired, req.IssueID)
		q.metrics.GaugeDec(metrics.ApprovalQueueDepth.Name)
		q.metrics.CounterInc(metrics.ApprovalResolutionsTotal.Name, "outcome", string(ResolutionExpired))
	}
	return expired
}
