// Package audit provides structured audit logging for remediation operations.
//
// Every decision the AutoFix workflow makes is logged via this package to
// enable:
// - Security monitoring and incident response
// - Compliance review of automatic remediations
// - Debugging of confidence-threshold decisions
// - Remote log collection (when configured)
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType represents the type of audit event.
type EventType string

const (
	// Workflow events
	EventWorkflowStarted   EventType = "workflow_started"
	EventContextReceived   EventType = "context_received"
	EventFixRequested      EventType = "fix_requested"
	EventFixProposed       EventType = "fix_proposed"
	EventActionRouted      EventType = "action_routed"
	EventExecutionFinished EventType = "execution_finished"
	EventWorkflowCompleted EventType = "workflow_completed"
	EventWorkflowFailed    EventType = "workflow_failed"

	// Approval events
	EventApprovalQueued  EventType = "approval_queued"
	EventApprovalGranted EventType = "approval_granted"
	EventApprovalDenied  EventType = "approval_denied"
	EventApprovalExpired EventType = "approval_expired"

	// Issue lifecycle events
	EventIssueReceived      EventType = "issue_received"
	EventIssueStatusChanged EventType = "issue_status_changed"

	// Orchestrator events
	EventPollStarted EventType = "poll_started"
	EventPollFailed  EventType = "poll_failed"
)

// Severity represents log severity level.
type Severity string

const (
	SeverityDebug    Severity = "DEBUG"
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARN"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// Event represents an audit event.
type Event struct {
	Timestamp  time.Time      `json:"timestamp"`
	Type       EventType      `json:"type"`
	Severity   Severity       `json:"severity"`
	Actor      string         `json:"actor,omitempty"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	IssueID    string         `json:"issue_id,omitempty"`
	Message    string         `json:"message"`
	Error      string         `json:"error,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

// LoggerConfig configures the audit logger.
type LoggerConfig struct {
	// Actor is the default actor recorded in events.
	Actor string

	// LogFile is the path to the audit log file.
	// Default: ~/.remedly/audit.log
	LogFile string

	// BufferSize is the number of events to buffer before flushing.
	// Default: 100
	BufferSize int

	// FlushInterval is how often to flush buffered events.
	// Default: 5 seconds
	FlushInterval time.Duration

	// Verbose enables console output of audit events.
	Verbose bool
}

// DefaultLoggerConfig returns sensible defaults.
func DefaultLoggerConfig() *LoggerConfig {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "/tmp"
	}

	return &LoggerConfig{
		LogFile:       filepath.Join(home, ".remedly", "audit.log"),
		BufferSize:    100,
		FlushInterval: 5 * time.Second,
	}
}

// Logger writes audit events to a JSONL file with buffering and periodic
// flushing.
type Logger struct {
	config *LoggerConfig
	file   *os.File
	mu     sync.Mutex

	buffer   []Event
	bufferMu sync.Mutex

	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	// Callback for remote log collection
	remoteSender func([]Event) error
}

// NewLogger creates a new audit logger.
func NewLogger(config *LoggerConfig) (*Logger, error) {
	if config == nil {
		config = DefaultLoggerConfig()
	}
	if config.LogFile == "" {
		config.LogFile = DefaultLoggerConfig().LogFile
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 100
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = 5 * time.Second
	}

	dir := filepath.Dir(config.LogFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return &Logger{
		config: config,
		file:   file,
		buffer: make([]Event, 0, config.BufferSize),
		stopCh: make(chan struct{}),
	}, nil
}

// Start begins background flushing.
func (l *Logger) Start() {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.stopCh = make(chan struct{})
	l.mu.Unlock()

	l.wg.Add(1)
	go l.flushLoop()
}

// Stop stops the logger and flushes remaining events.
func (l *Logger) Stop() error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		l.Flush()
		return l.file.Close()
	}
	l.running = false
	close(l.stopCh)
	l.mu.Unlock()

	l.wg.Wait()
	l.Flush()
	return l.file.Close()
}

// Log records an audit event.
func (l *Logger) Log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Actor == "" {
		event.Actor = l.config.Actor
	}

	l.bufferMu.Lock()
	l.buffer = append(l.buffer, event)
	shouldFlush := len(l.buffer) >= l.config.BufferSize
	l.bufferMu.Unlock()

	if l.config.Verbose {
		l.printEvent(event)
	}

	if shouldFlush {
		go l.Flush()
	}
}

// Info logs an informational event.
func (l *Logger) Info(eventType EventType, message string, details map[string]any) {
	l.Log(Event{
		Type:     eventType,
		Severity: SeverityInfo,
		Message:  message,
		Details:  details,
	})
}

// Error logs an error event.
func (l *Logger) Error(eventType EventType, message string, err error, details map[string]any) {
	event := Event{
		Type:     eventType,
		Severity: SeverityError,
		Message:  message,
		Details:  details,
	}
	if err != nil {
		event.Error = err.Error()
	}
	l.Log(event)
}

// WorkflowStarted logs the start of a workflow run.
func (l *Logger) WorkflowStarted(workflowID, issueID string) {
	l.Log(Event{
		Type:       EventWorkflowStarted,
		Severity:   SeverityInfo,
		WorkflowID: workflowID,
		IssueID:    issueID,
		Message:    "Workflow started",
	})
}

// WorkflowCompleted logs a terminal workflow state.
func (l *Logger) WorkflowCompleted(workflowID, issueID, status, decision string) {
	l.Log(Event{
		Type:       EventWorkflowCompleted,
		Severity:   SeverityInfo,
		WorkflowID: workflowID,
		IssueID:    issueID,
		Message:    decision,
		Details:    map[string]any{"status": status},
	})
}

// WorkflowFailed logs a failed workflow run.
func (l *Logger) WorkflowFailed(workflowID, issueID string, err error) {
	event := Event{
		Type:       EventWorkflowFailed,
		Severity:   SeverityError,
		WorkflowID: workflowID,
		IssueID:    issueID,
		Message:    "Workflow failed",
	}
	if err != nil {
		event.Error = err.Error()
	}
	l.Log(event)
}

// ApprovalResolved logs an approval decision made by a human reviewer.
func (l *Logger) ApprovalResolved(issueID, approverID string, granted bool, comment string) {
	eventType := EventApprovalGranted
	message := "Approval granted"
	if !granted {
		eventType = EventApprovalDenied
		message = "Approval denied"
	}
	l.Log(Event{
		Type:     eventType,
		Severity: SeverityInfo,
		IssueID:  issueID,
		Actor:    approverID,
		Message:  message,
		Details:  map[string]any{"comment": comment},
	})
}

// Flush writes buffered events to disk.
func (l *Logger) Flush() {
	l.bufferMu.Lock()
	if len(l.buffer) == 0 {
		l.bufferMu.Unlock()
		return
	}
	events := l.buffer
	l.buffer = make([]Event, 0, l.config.BufferSize)
	l.bufferMu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		_, _ = l.file.Write(data)
		_, _ = l.file.Write([]byte("\n"))
	}
	_ = l.file.Sync()

	if l.remoteSender != nil {
		go l.remoteSender(events) //nolint:errcheck // async send, errors handled internally
	}
}

func (l *Logger) flushLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.Flush()
		}
	}
}

func (l *Logger) printEvent(event Event) {
	timestamp := event.Timestamp.Format("2006-01-02 15:04:05")
	fmt.Printf("[%s] [%s] %s: %s\n", timestamp, event.Severity, event.Type, event.Message)
	if event.Error != "" {
		fmt.Printf("  Error: %s\n", event.Error)
	}
}

// SetRemoteSender sets the callback for sending events to a remote endpoint.
func (l *Logger) SetRemoteSender(sender func([]Event) error) {
	l.remoteSender = sender
}
