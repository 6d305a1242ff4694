// Package events publishes pipe invocation state changes.
package events

import (
	"context"
	"sync"
	"time"
)

// State is the lifecycle state of one invocation.
type State string

const (
	Pending   State = "pending"
	Running   State = "running"
	Succeeded State = "succeeded"
	Failed    State = "failed"
)

// IsTerminal reports whether no further transition can follow.
func (s State) IsTerminal() bool {
	return s == Succeeded || s == Failed
}

// Event is one state transition.
type Event struct {
	RunID        string        `json:"run_id"`
	InvocationID string        `json:"invocation_id"`
	Pipe         string        `json:"pipe"`
	Kind         string        `json:"kind"`
	State        State         `json:"state"`
	Result       string        `json:"result,omitempty"`
	Index        *int          `json:"index,omitempty"`
	Error        string        `json:"error,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
	Time         time.Time     `json:"time"`
}

// Sink receives events. Publish must be safe for concurrent use and must
// not block the caller for long.
type Sink interface {
	Publish(ctx context.Context, e Event)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

// Fanout publishes to every sink in order.
func Fanout(sinks ...Sink) Sink {
	return fanout(sinks)
}

type fanout []Sink

func (f fanout) Publish(ctx context.Context, e Event) {
	for _, s := range f {
		s.Publish(ctx, e)
	}
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events for pipe reached state.
func (r *Recorder) Count(pipe string, state State) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Pipe == pipe && e.State == state {
			n++
		}
	}
	return n
}

// Transitions returns the ordered states of each invocation, keyed by
// invocation ID.
func (r *Recorder) Transitions() map[string][]State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string][]State)
	for _, e := range r.events {
		out[e.InvocationID] = append(out[e.InvocationID], e.State)
	}
	return out
}
