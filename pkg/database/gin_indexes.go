package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CreateGINIndexes creates the full-text-search GIN indexes this schema
// relies on for meeting and matter search, retargeted from the
// teacher's alert_sessions indexes at the meetings/matters text columns
// this domain actually searches.
func CreateGINIndexes(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE INDEX IF NOT EXISTS idx_meetings_title_gin
			ON meetings USING gin(to_tsvector('english', title))`,
		`CREATE INDEX IF NOT EXISTS idx_meetings_summary_gin
			ON meetings USING gin(to_tsvector('english', COALESCE(summary, '')))`,
		`CREATE INDEX IF NOT EXISTS idx_city_matters_title_gin
			ON city_matters USING gin(to_tsvector('english', title))`,
		`CREATE INDEX IF NOT EXISTS idx_city_matters_summary_gin
			ON city_matters USING gin(to_tsvector('english', COALESCE(canonical_summary, '')))`,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("database: create gin index: %w", err)
		}
	}
	return nil
}
