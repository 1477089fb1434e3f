package metrics

import (
	"time"

	"github.com/remedly/sdk/pkg/workflow"
)

// =============================================================================
// Workflow Observer
// =============================================================================

// WorkflowObserver bridges workflow telemetry into a Collector. It implements
// workflow.Observer and is safe for concurrent use because the underlying
// collectors are.
type WorkflowObserver struct {
	collector Collector
}

// NewWorkflowObserver creates an observer backed by the given collector.
// A nil collector falls back to the no-op collector.
func NewWorkflowObserver(collector Collector) *WorkflowObserver {
	if collector == nil {
		collector = &NopCollector{}
	}
	return &WorkflowObserver{collector: collector}
}

// RunFinished records the terminal status, confidence and duration of a run.
func (o *WorkflowObserver) RunFinished(status workflow.Status, confidence float64, duration time.Duration) {
	o.collector.CounterInc(WorkflowRunsTotal.Name, "status", string(status))
	o.collector.HistogramObserve(WorkflowRunDuration.Name, duration.Seconds(), "status", string(status))
	if confidence > 0 {
		o.collector.HistogramObserve(WorkflowFixConfidence.Name, confidence)
	}
}

// CollaboratorCall records one enricher, generator or executor call.
func (o *WorkflowObserver) CollaboratorCall(collaborator string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	o.collector.CounterInc(CollaboratorCallsTotal.Name, "collaborator", collaborator, "status", status)
	o.collector.HistogramObserve(CollaboratorCallDuration.Name, duration.Seconds(), "collaborator", collaborator)
}

var _ workflow.Observer = (*WorkflowObserver)(nil)
