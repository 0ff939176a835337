package repositories

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prudhvinik1/accountpurge/internal/database"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// getTestPool connects to TEST_DATABASE_URL, applies migrations and empties
// the tables. The test is skipped when no database is configured.
func getTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err, "Failed to connect to test Postgres")
	t.Cleanup(pool.Close)

	require.NoError(t, database.RunMigrations(ctx, dsn))

	_, err = pool.Exec(ctx, `TRUNCATE account_events, devices, accounts RESTART IDENTITY CASCADE`)
	require.NoError(t, err)

	return pool
}

// getTestRedisClient returns a client on DB 1 of TEST_REDIS_ADDR (default
// localhost:6379) and skips the test when Redis is unreachable.
func getTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   1, // Use DB 1 for tests (different from production DB 0)
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("redis not available at %s: %v", addr, err)
	}

	require.NoError(t, client.FlushDB(ctx).Err())
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}
