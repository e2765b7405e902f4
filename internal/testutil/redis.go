// README: Shared Redis fixture for store tests (skipped unless DASHR_TEST_REDIS_ADDR is set).
package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
)

// NewTestRedis connects to DASHR_TEST_REDIS_ADDR and flushes the selected database.
func NewTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("DASHR_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("DASHR_TEST_REDIS_ADDR not set; skipping Redis-backed tests")
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	t.Cleanup(func() { client.Close() })
	if err := client.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("flush redis: %v", err)
	}
	return client
}
