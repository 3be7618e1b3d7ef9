// Package database provides the shared test-database setup used by every
// package's integration tests: a real Postgres, either a CI-provided
// service container or a local testcontainer, with the schema applied
// and GIN indexes built.
package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	dbpkg "github.com/engagic/ingest/pkg/database"
)

// NewTestPool returns a pgxpool.Pool backed by a fresh schema, against
// an external CI_DATABASE_URL if set, or a local testcontainer
// otherwise. The pool and any container it started are cleaned up via
// t.Cleanup.
func NewTestPool(t *testing.T) *pgxpool.Pool {
	ctx := context.Background()

	ciDatabaseURL := os.Getenv("CI_DATABASE_URL")

	var connStr string
	if ciDatabaseURL != "" {
		t.Log("using external PostgreSQL from CI_DATABASE_URL")
		connStr = ciDatabaseURL
	} else {
		t.Log("using testcontainers for PostgreSQL")
		pgContainer, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		require.NoError(t, err)

		t.Cleanup(func() {
			if err := testcontainers.TerminateContainer(pgContainer); err != nil {
				t.Logf("failed to terminate container: %v", err)
			}
		})

		connStr, err = pgContainer.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	require.NoError(t, dbpkg.MigrateDSN(connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	require.NoError(t, dbpkg.CreateGINIndexes(ctx, pool))

	t.Cleanup(pool.Close)

	return pool
}
