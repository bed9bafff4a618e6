package events

import (
	"context"
	"sync"
)

// MemorySink buffers events in memory. Used as the default sink in local
// setups and as a capture double in tests.
type MemorySink struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Emit(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

// Events returns a snapshot of everything emitted so far.
func (s *MemorySink) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// ByKind filters the captured events.
func (s *MemorySink) ByKind(kind Kind) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, ev := range s.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}
