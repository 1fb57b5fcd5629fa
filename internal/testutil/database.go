package testutil

import (
	"context"
	"testing"

	"github.com/bissquit/eventrelay/internal/pkg/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// NewTestDB starts a PostgreSQL container, applies migrations and returns a
// connected pool. Everything is torn down when the test finishes.
func NewTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := NewPostgresContainer(ctx)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	require.NoError(t, postgres.Migrate(container.ConnectionString))

	pool, err := postgres.Connect(ctx, postgres.Config{
		URL:             container.ConnectionString,
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnectAttempts: 3,
	})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}
