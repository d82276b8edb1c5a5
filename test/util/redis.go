package util

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	sharedRedisAddr string
	redisOnce       sync.Once
	redisErr        error
)

// SetupTestRedis returns a client on an empty Redis database.
//   - CI: Connects to CI_REDIS_ADDR
//   - Local: Uses a shared testcontainer (started once per package)
//
// The database is flushed before the test, so tests using it must not run in
// parallel.
func SetupTestRedis(t *testing.T) *goredis.Client {
	t.Helper()

	rdb := goredis.NewClient(&goredis.Options{Addr: getOrCreateSharedRedis(t)})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, rdb.FlushDB(ctx).Err())

	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func getOrCreateSharedRedis(t *testing.T) string {
	if addr := os.Getenv("CI_REDIS_ADDR"); addr != "" {
		t.Log("Using external Redis from CI_REDIS_ADDR")
		return addr
	}
	if testing.Short() {
		t.Skip("skipping Redis test in short mode")
	}

	redisOnce.Do(func() {
		ctx := context.Background()
		t.Log("Starting shared Redis testcontainer for all tests")

		container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "redis:7-alpine",
				ExposedPorts: []string{"6379/tcp"},
				WaitingFor: wait.ForLog("Ready to accept connections").
					WithStartupTimeout(30 * time.Second),
			},
			Started: true,
		})
		if err != nil {
			redisErr = fmt.Errorf("failed to start redis container: %w", err)
			return
		}

		endpoint, err := container.Endpoint(ctx, "")
		if err != nil {
			redisErr = fmt.Errorf("failed to get redis endpoint: %w", err)
			return
		}
		sharedRedisAddr = endpoint
		t.Logf("Shared Redis ready: %s", sharedRedisAddr)
	})

	require.NoError(t, redisErr, "Failed to setup shared Redis container")
	return sharedRedisAddr
}
