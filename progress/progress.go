// Package progress delivers positive grading outcomes to whatever tracks a
// learner's progress. The grading engine only notifies; storage belongs to
// the sink.
package progress

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidEvent is returned for events missing required fields.
var ErrInvalidEvent = errors.New("invalid progress event")

// Event records one exercise solved in one session.
type Event struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"sessionId"`
	ExerciseID string    `json:"exerciseId"`
	Reason     string    `json:"reason"`
	Warning    string    `json:"warning,omitempty"`
	Attempts   int       `json:"attempts"`
	At         time.Time `json:"at"`
}

// NewEvent returns an Event with a fresh ID and the current time.
func NewEvent(sessionID, exerciseID, reason string, attempts int) Event {
	return Event{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		ExerciseID: exerciseID,
		Reason:     reason,
		Attempts:   attempts,
		At:         time.Now().UTC(),
	}
}

// Validate checks the fields every sink relies on.
func (e Event) Validate() error {
	switch {
	case e.ExerciseID == "":
		return errors.Join(ErrInvalidEvent, errors.New("missing exercise id"))
	case e.SessionID == "":
		return errors.Join(ErrInvalidEvent, errors.New("missing session id"))
	}
	return nil
}

// Sink receives progress events.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: a failed Notify must not affect the verdict that caused it.
type Sink interface {
	Notify(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

// Notify calls f.
func (f SinkFunc) Notify(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// MemorySink keeps events in memory.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Notify stores ev.
func (s *MemorySink) Notify(_ context.Context, ev Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

// Events returns a copy of the stored events in arrival order.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// Solved reports whether exerciseID has been solved in sessionID.
func (s *MemorySink) Solved(sessionID, exerciseID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if ev.SessionID == sessionID && ev.ExerciseID == exerciseID {
			return true
		}
	}
	return false
}

// Multi fans an event out to every sink and joins their errors.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, ev Event) error {
		var errs []error
		for _, s := range sinks {
			if err := s.Notify(ctx, ev); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}
