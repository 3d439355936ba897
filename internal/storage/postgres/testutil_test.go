package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// schema mirrors migrations/postgres; the migrations package imports this
// one, so tests apply it inline.
const schema = `
CREATE TABLE IF NOT EXISTS job_handles (
	job_id       TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	owner        TEXT NOT NULL,
	app          TEXT NOT NULL,
	model_type   TEXT NULL,
	trigger_word TEXT NOT NULL DEFAULT '',
	model_id     TEXT NOT NULL DEFAULT '',
	prompt       TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	progress     INTEGER NOT NULL DEFAULT 0 CHECK (progress BETWEEN 0 AND 100),
	mint_digest  TEXT NULL,
	created_at   BIGINT NOT NULL,
	updated_at   BIGINT NOT NULL
);
`

// setupTestDB creates a PostgreSQL container for testing and applies the schema.
// Returns a cleanup function that must be called after tests complete.
func setupTestDB(t *testing.T) (*Pool, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := NewPool(ctx, dsn, PoolOptions{MaxConns: 4})
	require.NoError(t, err, "failed to create pool")

	_, err = pool.Exec(ctx, schema)
	require.NoError(t, err, "failed to apply schema")

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return pool, cleanup
}
