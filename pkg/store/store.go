// Package store tracks issues through their remediation lifecycle. The store
// is in-memory and scoped to one agent process; terminal results are archived
// separately by pkg/history.
package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/remedly/sdk/pkg/issue"
)

// State is an issue's position in the remediation lifecycle.
type State string

const (
	// StateReceived - accepted from a source, not yet processed.
	StateReceived State = "received"

	// StateInProgress - a workflow run is executing for this issue.
	StateInProgress State = "in_progress"

	// StateRemediated - a fix was applied automatically.
	StateRemediated State = "remediated"

	// StateAwaitingApproval - a proposed fix is queued for human review.
	StateAwaitingApproval State = "awaiting_approval"

	// StateFailed - the workflow run failed.
	StateFailed State = "failed"

	// StateSkipped - policy excluded the issue from remediation.
	StateSkipped State = "skipped"
)

// terminal states never transition further.
func (s State) terminal() bool {
	return s == StateRemediated || s == StateFailed || s == StateSkipped
}

// validTransitions maps each state to its allowed successors.
var validTransitions = map[State][]State{
	StateReceived:         {StateInProgress, StateSkipped},
	StateInProgress:       {StateRemediated, StateAwaitingApproval, StateFailed},
	StateAwaitingApproval: {StateInProgress, StateRemediated, StateFailed, StateSkipped},
}

// Entry is one tracked issue with its lifecycle metadata.
type Entry struct {
	Issue     *issue.Issue `json:"issue"`
	State     State        `json:"state"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`

	// WorkflowID of the most recent run for this issue, if any.
	WorkflowID string `json:"workflow_id,omitempty"`
}

// EventType classifies store events.
type EventType string

const (
	EventAdded        EventType = "added"
	EventStateChanged EventType = "state_changed"
)

// Event is emitted on the store's event channel whenever an issue is added or
// changes state.
type Event struct {
	Type     EventType `json:"type"`
	IssueID  string    `json:"issue_id"`
	From     State     `json:"from,omitempty"`
	To       State     `json:"to"`
	Occurred time.Time `json:"occurred"`
}

// Store is a concurrency-safe issue tracker. Events are delivered on a
// buffered channel; when no consumer keeps up the oldest pending event is
// dropped rather than blocking state transitions.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	events  chan Event
}

// New creates a store with the given event buffer size. A non-positive size
// falls back to 64.
func New(eventBuffer int) *Store {
	if eventBuffer <= 0 {
		eventBuffer = 64
	}
	return &Store{
		entries: make(map[string]*Entry),
		events:  make(chan Event, eventBuffer),
	}
}

// Events returns the channel on which lifecycle events are delivered.
func (s *Store) Events() <-chan Event {
	return s.events
}

// Add registers a new issue in state received. Adding an id that already
// exists is an error; sources may redeliver and the caller decides dedup
// policy.
func (s *Store) Add(iss *issue.Issue) error {
	if err := iss.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[iss.ID]; exists {
		return fmt.Errorf("store: issue %s already tracked", iss.ID)
	}

	now := time.Now()
	s.entries[iss.ID] = &Entry{
		Issue:     iss,
		State:     StateReceived,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.emit(Event{Type: EventAdded, IssueID: iss.ID, To: StateReceived, Occurred: now})
	return nil
}

// Get returns a copy of the entry for an issue id.
func (s *Store) Get(id string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Transition moves an issue to a new state, recording the workflow id when one
// is given. Invalid transitions and unknown ids are errors.
func (s *Store) Transition(id string, to State, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("store: unknown issue %s", id)
	}
	if e.State.terminal() {
		return fmt.Errorf("store: issue %s is already %s", id, e.State)
	}
	if !transitionAllowed(e.State, to) {
		return fmt.Errorf("store: issue %s cannot move from %s to %s", id, e.State, to)
	}

	from := e.State
	e.State = to
	e.UpdatedAt = time.Now()
	if workflowID != "" {
		e.WorkflowID = workflowID
	}
	s.emit(Event{Type: EventStateChanged, IssueID: id, From: from, To: to, Occurred: e.UpdatedAt})
	return nil
}

// List returns entries in the given state, or all entries when state is empty,
// ordered by creation time.
func (s *Store) List(state State) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if state == "" || e.State == state {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Issue.ID < out[j].Issue.ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// OpenCount returns the number of issues not yet in a terminal state.
func (s *Store) OpenCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.entries {
		if !e.State.terminal() {
			n++
		}
	}
	return n
}

// emit delivers an event without blocking; the caller holds the write lock.
func (s *Store) emit(ev Event) {
	for {
		select {
		case s.events <- ev:
			return
		default:
		}
		select {
		case <-s.events: // drop oldest
		default:
		}
	}
}

func transitionAllowed(from, to State) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
