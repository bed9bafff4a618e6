// Package results persists per-variant view and conversion tallies. Stores
// implement events.Sink so aggregation rides the same emission pipeline as
// external publishing.
package results

import (
	"context"
	"sync"

	"splitlab/internal/events"
	"splitlab/internal/experiment/models"
)

// MemoryStore aggregates counts in process. Suitable for single-instance
// deployments and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	counts map[models.TestID]map[models.VariantID]*models.Counts
}

// NewMemory constructs an empty in-memory results store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		counts: make(map[models.TestID]map[models.VariantID]*models.Counts),
	}
}

// Emit tallies exposure and conversion events. Metric events pass through
// untouched.
func (s *MemoryStore) Emit(ctx context.Context, event events.Event) error {
	if event.Kind != events.KindExposure && event.Kind != events.KindConversion {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byVariant, ok := s.counts[event.TestID]
	if !ok {
		byVariant = make(map[models.VariantID]*models.Counts)
		s.counts[event.TestID] = byVariant
	}
	c, ok := byVariant[event.VariantID]
	if !ok {
		c = &models.Counts{}
		byVariant[event.VariantID] = c
	}

	switch event.Kind {
	case events.KindExposure:
		c.Views++
	case events.KindConversion:
		c.Conversions++
	}
	return nil
}

// ByTest returns the tallies for every variant seen under testID. Tests with
// no recorded events yield an empty map.
func (s *MemoryStore) ByTest(ctx context.Context, testID models.TestID) (map[models.VariantID]models.Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[models.VariantID]models.Counts, len(s.counts[testID]))
	for id, c := range s.counts[testID] {
		out[id] = *c
	}
	return out, nil
}
