package results

import (
	"context"
	"database/sql"

	"splitlab/internal/events"
	"splitlab/internal/experiment/models"
	dErrors "splitlab/pkg/domainerrors"
)

const schema = `
CREATE TABLE IF NOT EXISTS experiment_counts (
	test_id     TEXT NOT NULL,
	variant_id  TEXT NOT NULL,
	views       BIGINT NOT NULL DEFAULT 0,
	conversions BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (test_id, variant_id)
)`

// PostgresStore aggregates counts durably. The upsert keeps one row per
// test and variant so reads never need aggregation.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a Postgres-backed results store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the counts table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "ensure results schema")
	}
	return nil
}

// Emit tallies exposure and conversion events. Metric events pass through
// untouched.
func (s *PostgresStore) Emit(ctx context.Context, event events.Event) error {
	var views, conversions int64
	switch event.Kind {
	case events.KindExposure:
		views = 1
	case events.KindConversion:
		conversions = 1
	default:
		return nil
	}

	const query = `
		INSERT INTO experiment_counts (test_id, variant_id, views, conversions)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (test_id, variant_id)
		DO UPDATE SET
			views = experiment_counts.views + EXCLUDED.views,
			conversions = experiment_counts.conversions + EXCLUDED.conversions`

	_, err := s.db.ExecContext(ctx, query, string(event.TestID), string(event.VariantID), views, conversions)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "record event")
	}
	return nil
}

// ByTest returns the tallies for every variant seen under testID.
func (s *PostgresStore) ByTest(ctx context.Context, testID models.TestID) (map[models.VariantID]models.Counts, error) {
	const query = `
		SELECT variant_id, views, conversions
		FROM experiment_counts
		WHERE test_id = $1`

	rows, err := s.db.QueryContext(ctx, query, string(testID))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "query results")
	}
	defer rows.Close()

	out := make(map[models.VariantID]models.Counts)
	for rows.Next() {
		var variantID string
		var c models.Counts
		if err := rows.Scan(&variantID, &c.Views, &c.Conversions); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "scan results row")
		}
		out[models.VariantID(variantID)] = c
	}
	if err := rows.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "iterate results")
	}
	return out, nil
}
