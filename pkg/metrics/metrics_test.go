package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/remedly/sdk/pkg/workflow"
)

func TestInMemoryCollectorCounters(t *testing.T) {
	c := NewInMemoryCollector()

	c.CounterInc(WorkflowRunsTotal.Name, "status", "completed_automatic")
	c.CounterInc(WorkflowRunsTotal.Name, "status", "completed_automatic")
	c.CounterAdd(WorkflowRunsTotal.Name, 3, "status", "failed")

	if got := c.GetCounter(WorkflowRunsTotal.Name, "status", "completed_automatic"); got != 2 {
		t.Errorf("counter = %v, want 2", got)
	}
	if got := c.GetCounter(WorkflowRunsTotal.Name, "status", "failed"); got != 3 {
		t.Errorf("counter = %v, want 3", got)
	}

	c.Reset()
	if got := c.GetCounter(WorkflowRunsTotal.Name, "status", "failed"); got != 0 {
		t.Errorf("counter after reset = %v, want 0", got)
	}
}

func TestInMemoryCollectorGauges(t *testing.T) {
	c := NewInMemoryCollector()

	c.GaugeSet(ApprovalQueueDepth.Name, 5)
	c.GaugeInc(ApprovalQueueDepth.Name)
	c.GaugeDec(ApprovalQueueDepth.Name)
	c.GaugeDec(ApprovalQueueDepth.Name)

	if got := c.GetGauge(ApprovalQueueDepth.Name); got != 4 {
		t.Errorf("gauge = %v, want 4", got)
	}
}

func TestTimerObservesHistogram(t *testing.T) {
	c := NewInMemoryCollector()

	timer := NewTimer(c, WorkflowRunDuration.Name, "status", "failed")
	time.Sleep(time.Millisecond)
	d := timer.ObserveDuration()
	if d <= 0 {
		t.Fatalf("duration = %v, want > 0", d)
	}

	obs := c.GetHistogram(WorkflowRunDuration.Name, "status", "failed")
	if len(obs) != 1 {
		t.Fatalf("got %d observations, want 1", len(obs))
	}
	if obs[0] <= 0 {
		t.Errorf("observation = %v, want > 0", obs[0])
	}
}

func TestWorkflowObserverRunFinished(t *testing.T) {
	c := NewInMemoryCollector()
	o := NewWorkflowObserver(c)

	o.RunFinished(workflow.StatusCompletedAutomatic, 95, 2*time.Second)
	o.RunFinished(workflow.StatusFailed, 0, time.Second)

	if got := c.GetCounter(WorkflowRunsTotal.Name, "status", "completed_automatic"); got != 1 {
		t.Errorf("completed_automatic runs = %v, want 1", got)
	}
	if got := c.GetCounter(WorkflowRunsTotal.Name, "status", "failed"); got != 1 {
		t.Errorf("failed runs = %v, want 1", got)
	}

	// A zero confidence means no fix was produced; it must not pollute the
	// confidence distribution.
	if got := c.GetHistogram(WorkflowFixConfidence.Name); len(got) != 1 || got[0] != 95 {
		t.Errorf("confidence observations = %v, want [95]", got)
	}
}

func TestWorkflowObserverCollaboratorCall(t *testing.T) {
	c := NewInMemoryCollector()
	o := NewWorkflowObserver(c)

	o.CollaboratorCall("enricher", 100*time.Millisecond, nil)
	o.CollaboratorCall("enricher", 50*time.Millisecond, errors.New("NetworkError"))

	if got := c.GetCounter(CollaboratorCallsTotal.Name, "collaborator", "enricher", "status", "success"); got != 1 {
		t.Errorf("success calls = %v, want 1", got)
	}
	if got := c.GetCounter(CollaboratorCallsTotal.Name, "collaborator", "enricher", "status", "error"); got != 1 {
		t.Errorf("error calls = %v, want 1", got)
	}
	if got := c.GetHistogram(CollaboratorCallDuration.Name, "collaborator", "enricher"); len(got) != 2 {
		t.Errorf("got %d duration observations, want 2", len(got))
	}
}

func TestPrometheusCollectorRegistration(t *testing.T) {
	c := NewPrometheusCollector(&PrometheusConfig{RegisterDefaultMetrics: true})

	// Re-registering an existing metric is a no-op, not an error.
	if err := c.RegisterCounter(WorkflowRunsTotal); err != nil {
		t.Errorf("RegisterCounter() error = %v", err)
	}
	if err := c.RegisterGauge(ApprovalQueueDepth); err != nil {
		t.Errorf("RegisterGauge() error = %v", err)
	}
	if err := c.RegisterHistogram(WorkflowRunDuration); err != nil {
		t.Errorf("RegisterHistogram() error = %v", err)
	}

	// Recording against registered and unregistered names must not panic.
	c.CounterInc(WorkflowRunsTotal.Name, "status", "failed")
	c.CounterInc("unregistered_metric")
	c.GaugeSet(ApprovalQueueDepth.Name, 2)
	c.HistogramObserve(WorkflowRunDuration.Name, 1.5, "status", "failed")

	if c.Handler() == nil {
		t.Error("Handler() = nil")
	}
	if c.Registry() == nil {
		t.Error("Registry() = nil")
	}
}
