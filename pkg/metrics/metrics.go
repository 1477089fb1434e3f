// Package metrics provides metrics collection and reporting for the Remedly SDK.
// It includes a backend-agnostic Collector interface, a Prometheus-compatible
// implementation and an Observer that feeds workflow telemetry into a Collector.
package metrics

import (
	"net/http"
	"sync"
	"time"
)

// =============================================================================
// Metrics Interface
// =============================================================================

// Collector is the interface for collecting and reporting metrics.
// Implement this interface to use custom metrics backends (Prometheus, StatsD, etc.).
type Collector interface {
	// Counter operations
	CounterInc(name string, labels ...string)
	CounterAdd(name string, value float64, labels ...string)

	// Gauge operations
	GaugeSet(name string, value float64, labels ...string)
	GaugeInc(name string, labels ...string)
	GaugeDec(name string, labels ...string)

	// Histogram operations
	HistogramObserve(name string, value float64, labels ...string)

	// Handler returns an HTTP handler for metrics endpoint
	Handler() http.Handler

	// Reset clears all metrics (for testing)
	Reset()
}

// =============================================================================
// Metric Types
// =============================================================================

// MetricType represents the type of metric.
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

// MetricDefinition defines a metric with its metadata.
type MetricDefinition struct {
	Name    string     `json:"name"`
	Type    MetricType `json:"type"`
	Help    string     `json:"help"`
	Labels  []string   `json:"labels,omitempty"`
	Buckets []float64  `json:"buckets,omitempty"` // For histograms
}

// =============================================================================
// Default Metrics - Standard metrics for the Remedly SDK
// =============================================================================

var (
	// Workflow metrics
	WorkflowRunsTotal = MetricDefinition{
		Name:   "remedly_workflow_runs_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of workflow runs by terminal status",
		Labels: []string{"status"},
	}
	WorkflowRunDuration = MetricDefinition{
		Name:    "remedly_workflow_run_duration_seconds",
		Type:    MetricTypeHistogram,
		Help:    "Duration of workflow runs in seconds",
		Labels:  []string{"status"},
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}
	WorkflowFixConfidence = MetricDefinition{
		Name:    "remedly_workflow_fix_confidence",
		Type:    MetricTypeHistogram,
		Help:    "Confidence scores of proposed fixes (0-100)",
		Labels:  []string{},
		Buckets: []float64{10, 25, 50, 70, 80, 85, 90, 95, 99, 100},
	}

	// Collaborator metrics
	CollaboratorCallsTotal = MetricDefinition{
		Name:   "remedly_collaborator_calls_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of collaborator calls",
		Labels: []string{"collaborator", "status"},
	}
	CollaboratorCallDuration = MetricDefinition{
		Name:    "remedly_collaborator_call_duration_seconds",
		Type:    MetricTypeHistogram,
		Help:    "Duration of collaborator calls in seconds",
		Labels:  []string{"collaborator"},
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}

	// Approval queue metrics
	ApprovalQueueDepth = MetricDefinition{
		Name:   "remedly_approval_queue_depth",
		Type:   MetricTypeGauge,
		Help:   "Current number of fixes awaiting human approval",
		Labels: []string{},
	}
	ApprovalResolutionsTotal = MetricDefinition{
		Name:   "remedly_approval_resolutions_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of approval decisions",
		Labels: []string{"outcome"},
	}

	// Issue intake metrics
	IssuesReceivedTotal = MetricDefinition{
		Name:   "remedly_issues_received_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of issues received from sources",
		Labels: []string{"category", "severity"},
	}
	IssuesOpenGauge = MetricDefinition{
		Name:   "remedly_issues_open",
		Type:   MetricTypeGauge,
		Help:   "Current number of issues not yet in a terminal state",
		Labels: []string{},
	}

	// Executor metrics
	ExecutionJobsTotal = MetricDefinition{
		Name:   "remedly_execution_jobs_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of remediation jobs dispatched",
		Labels: []string{"action_type", "status"},
	}

	// HTTP client metrics
	HTTPRequestsTotal = MetricDefinition{
		Name:   "remedly_http_requests_total",
		Type:   MetricTypeCounter,
		Help:   "Total number of HTTP requests made",
		Labels: []string{"method", "host", "status"},
	}
	HTTPRequestDuration = MetricDefinition{
		Name:    "remedly_http_request_duration_seconds",
		Type:    MetricTypeHistogram,
		Help:    "Duration of HTTP requests in seconds",
		Labels:  []string{"method", "host"},
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}
)

// =============================================================================
// NopCollector - No-operation implementation
// =============================================================================

// NopCollector is a no-op metrics collector that discards all metrics.
// Use this when metrics are not needed.
type NopCollector struct{}

func (c *NopCollector) CounterInc(name string, labels ...string)                      {}
func (c *NopCollector) CounterAdd(name string, value float64, labels ...string)       {}
func (c *NopCollector) GaugeSet(name string, value float64, labels ...string)         {}
func (c *NopCollector) GaugeInc(name string, labels ...string)                        {}
func (c *NopCollector) GaugeDec(name string, labels ...string)                        {}
func (c *NopCollector) HistogramObserve(name string, value float64, labels ...string) {}
func (c *NopCollector) Handler() http.Handler                                         { return http.NotFoundHandler() }
func (c *NopCollector) Reset()                                                        {}

// =============================================================================
// InMemoryCollector - Simple in-memory implementation for testing
// =============================================================================

// InMemoryCollector stores metrics in memory for testing purposes.
type InMemoryCollector struct {
	mu         sync.RWMutex
	counters   map[string]float64
	gauges     map[string]float64
	histograms map[string][]float64
}

// NewInMemoryCollector creates a new in-memory metrics collector.
func NewInMemoryCollector() *InMemoryCollector {
	return &InMemoryCollector{
		counters:   make(map[string]float64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

func (c *InMemoryCollector) key(name string, labels []string) string {
	key := name
	for i := 0; i < len(labels); i += 2 {
		if i+1 < len(labels) {
			key += "," + labels[i] + "=" + labels[i+1]
		}
	}
	return key
}

func (c *InMemoryCollector) CounterInc(name string, labels ...string) {
	c.CounterAdd(name, 1, labels...)
}

func (c *InMemoryCollector) CounterAdd(name string, value float64, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[c.key(name, labels)] += value
}

func (c *InMemoryCollector) GaugeSet(name string, value float64, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges[c.key(name, labels)] = value
}

func (c *InMemoryCollector) GaugeInc(name string, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges[c.key(name, labels)]++
}

func (c *InMemoryCollector) GaugeDec(name string, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges[c.key(name, labels)]--
}

func (c *InMemoryCollector) HistogramObserve(name string, value float64, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := c.key(name, labels)
	c.histograms[key] = append(c.histograms[key], value)
}

func (c *InMemoryCollector) Handler() http.Handler {
	return http.NotFoundHandler()
}

func (c *InMemoryCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters = make(map[string]float64)
	c.gauges = make(map[string]float64)
	c.histograms = make(map[string][]float64)
}

// GetCounter returns the value of a counter.
func (c *InMemoryCollector) GetCounter(name string, labels ...string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counters[c.key(name, labels)]
}

// GetGauge returns the value of a gauge.
func (c *InMemoryCollector) GetGauge(name string, labels ...string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gauges[c.key(name, labels)]
}

// GetHistogram returns all observations of a histogram.
func (c *InMemoryCollector) GetHistogram(name string, labels ...string) []float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.histograms[c.key(name, labels)]
}

// =============================================================================
// Timer - Helper for timing operations
// =============================================================================

// Timer is a helper for timing operations and recording to histograms.
type Timer struct {
	start     time.Time
	collector Collector
	name      string
	labels    []string
}

// NewTimer creates a new timer that will record to the given histogram.
func NewTimer(collector Collector, name string, labels ...string) *Timer {
	return &Timer{
		start:     time.Now(),
		collector: collector,
		name:      name,
		labels:    labels,
	}
}

// ObserveDuration records the duration since the timer was created.
func (t *Timer) ObserveDuration() time.Duration {
	d := time.Since(t.start)
	t.collector.HistogramObserve(t.name, d.Seconds(), t.labels...)
	return d
}

// =============================================================================
// Interface compliance
// =============================================================================

var (
	_ Collector = (*NopCollector)(nil)
	_ Collector = (*InMemoryCollector)(nil)
)
