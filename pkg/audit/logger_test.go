package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestLogger(t *testing.T) (*Logger, string) {
	t.Helper()
	dir := t.TempDir()
	logFile := filepath.Join(dir, "audit.log")
	l, err := NewLogger(&LoggerConfig{
		Actor:         "test-agent",
		LogFile:       logFile,
		BufferSize:    10,
		FlushInterval: time.Hour, // flush manually in tests
	})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	return l, logFile
}

func readEvents(t *testing.T, logFile string) []Event {
	t.Helper()
	f, err := os.Open(logFile)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		events = append(events, e)
	}
	return events
}

func TestLoggerWritesJSONL(t *testing.T) {
	l, logFile := newTestLogger(t)

	l.WorkflowStarted("wf-1", "issue-1")
	l.WorkflowCompleted("wf-1", "issue-1", "completed_automatic", "Auto-remediated based on confidence score of 95.00%")
	l.Flush()

	events := readEvents(t, logFile)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Type != EventWorkflowStarted {
		t.Errorf("first event type = %v", events[0].Type)
	}
	if events[0].Actor != "test-agent" {
		t.Errorf("actor = %q, want default actor", events[0].Actor)
	}
	if events[1].Details["status"] != "completed_automatic" {
		t.Errorf("details = %v", events[1].Details)
	}

	if err := l.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestLoggerRecordsErrors(t *testing.T) {
	l, logFile := newTestLogger(t)

	l.WorkflowFailed("wf-1", "issue-1", errors.New("NetworkError"))
	l.Flush()

	events := readEvents(t, logFile)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Error != "NetworkError" {
		t.Errorf("error = %q, want NetworkError", events[0].Error)
	}
	if events[0].Severity != SeverityError {
		t.Errorf("severity = %v", events[0].Severity)
	}

	_ = l.Stop()
}

func TestApprovalResolved(t *testing.T) {
	l, logFile := newTestLogger(t)

	l.ApprovalResolved("issue-1", "alice", true, "looks safe")
	l.ApprovalResolved("issue-2", "bob", false, "too risky")
	l.Flush()

	events := readEvents(t, logFile)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Type != EventApprovalGranted || events[0].Actor != "alice" {
		t.Errorf("unexpected granted event: %+v", events[0])
	}
	if events[1].Type != EventApprovalDenied || events[1].Actor != "bob" {
		t.Errorf("unexpected denied event: %+v", events[1])
	}

	_ = l.Stop()
}

func TestStopFlushesBuffer(t *testing.T) {
	l, logFile := newTestLogger(t)
	l.Start()

	l.Info(EventIssueReceived, "issue received", map[string]any{"issue_id": "issue-1"})
	if err := l.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	events := readEvents(t, logFile)
	if len(events) != 1 {
		t.Fatalf("got %d events after Stop, want 1", len(events))
	}
}
