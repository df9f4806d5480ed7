// Package events carries run progress events to observers.
// Sinks never block the pipeline and never fail it.
package events

import "time"

// Event types
const (
	TypeStatus   = "status"
	TypeStage    = "stage"
	TypeTask     = "task"
	TypeLog      = "log"
	TypeError    = "error"
	TypeComplete = "complete"
)

// Event is one progress notification for a run
type Event struct {
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Sink receives run events
type Sink interface {
	Emit(runID string, ev Event)
}

// Multi fans an event out to several sinks
type Multi []Sink

// Emit forwards ev to every sink
func (m Multi) Emit(runID string, ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	for _, s := range m {
		if s != nil {
			s.Emit(runID, ev)
		}
	}
}

// Discard drops every event
type Discard struct{}

// Emit does nothing
func (Discard) Emit(string, Event) {}
