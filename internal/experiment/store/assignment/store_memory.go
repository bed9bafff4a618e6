// Package assignment persists sticky variant assignments. Once an identity
// has a cached variant for a test, that value wins over recomputation so a
// returning visitor never flips variants after a weight-table edit.
package assignment

import (
	"context"
	"sync"

	"splitlab/internal/experiment/models"
	dErrors "splitlab/pkg/domainerrors"
)

// ErrNotFound reports a cache miss for an identity+test pair.
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "assignment not found")

// MemoryStore keeps assignments in process memory. Suitable for single
// instance deployments and tests; use RedisStore when instances share state.
type MemoryStore struct {
	mu          sync.RWMutex
	assignments map[string]map[models.TestID]models.VariantID
}

// NewMemory creates an empty in-memory assignment store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		assignments: make(map[string]map[models.TestID]models.VariantID),
	}
}

func (s *MemoryStore) Get(_ context.Context, identity string, testID models.TestID) (models.VariantID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if byTest, ok := s.assignments[identity]; ok {
		if variantID, ok := byTest[testID]; ok {
			return variantID, nil
		}
	}
	return "", ErrNotFound
}

func (s *MemoryStore) Put(_ context.Context, identity string, testID models.TestID, variantID models.VariantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byTest, ok := s.assignments[identity]
	if !ok {
		byTest = make(map[models.TestID]models.VariantID)
		s.assignments[identity] = byTest
	}
	byTest[testID] = variantID
	return nil
}
