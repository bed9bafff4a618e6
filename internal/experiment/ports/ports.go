// Package ports defines the interfaces the assignment engine depends on.
// Interfaces live here when consumed across packages to avoid duplication.
package ports

import (
	"context"

	"splitlab/internal/events"
	"splitlab/internal/experiment/models"
)

// ConfigProvider supplies the current test-configuration set. Implementations
// may be remote or cached; callers must tolerate empty results and use a
// fallback chain in production wiring.
type ConfigProvider interface {
	// GetConfig returns the validated configuration snapshot.
	GetConfig(ctx context.Context) (models.ConfigSet, error)
}

// AssignmentStore persists sticky variant assignments per identity. A miss is
// reported with a not_found domain error; the engine treats any Get error as
// a miss and recomputes, because the hash is deterministic and redundant
// writes converge to the same value.
type AssignmentStore interface {
	// Get returns the cached variant for an identity+test pair.
	Get(ctx context.Context, identity string, testID models.TestID) (models.VariantID, error)

	// Put caches the variant for an identity+test pair.
	Put(ctx context.Context, identity string, testID models.TestID, variantID models.VariantID) error
}

// ResultsStore aggregates events into per-variant counters. It doubles as an
// events.Sink so aggregation rides the same emission pipeline as external
// analytics.
type ResultsStore interface {
	events.Sink

	// ByTest returns the per-variant view/conversion tallies for a test.
	ByTest(ctx context.Context, testID models.TestID) (map[models.VariantID]models.Counts, error)
}
