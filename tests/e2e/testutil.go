package e2e

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"

	"github.com/nidhogg/mnemo/internal/config"
	"github.com/nidhogg/mnemo/internal/durable"
	"github.com/nidhogg/mnemo/internal/manager"
	"github.com/nidhogg/mnemo/internal/session"
)

// Suppress unused import warning for testcontainers base package.
var _ = testcontainers.GenericContainerRequest{}

// Package-level shared state — set by TestMain, used by all subtests.
var (
	testLogger *zap.Logger
	testCache  *session.RedisCache
	testStore  *durable.PostgresStore
)

// startPostgres starts a PostgreSQL testcontainer, returns DSN + cleanup func.
func startPostgres(ctx context.Context) (string, func(), error) {
	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("mnemo_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	if err != nil {
		return "", nil, fmt.Errorf("start postgres: %w", err)
	}
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("pg connection string: %w", err)
	}
	cleanup := func() { container.Terminate(ctx) }
	return dsn, cleanup, nil
}

// startRedis starts a Redis testcontainer, returns URL + cleanup func.
func startRedis(ctx context.Context) (string, func(), error) {
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return "", nil, fmt.Errorf("start redis: %w", err)
	}
	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("redis endpoint: %w", err)
	}
	url := "redis://" + endpoint
	cleanup := func() { container.Terminate(ctx) }
	return url, cleanup, nil
}

// testMemoryConfig returns memory tuning for the e2e suite: short TTL and
// tight caps so expiry and pruning behavior is observable.
func testMemoryConfig() config.MemoryConfig {
	return config.MemoryConfig{
		SessionTTLSeconds:  300,
		MaxHistory:         10,
		RetentionDays:      365,
		MaxEvents:          50,
		RetentionThreshold: 0.5,
		ContextThreshold:   0.7,
		RecentWindow:       10,
	}
}

// newTestManager builds a Manager over the shared Redis and Postgres
// containers. No primary classifier; every turn uses the rule fallback.
func newTestManager(t *testing.T) *manager.Manager {
	t.Helper()
	return manager.New(testCache, testStore, nil, testMemoryConfig(), testLogger)
}

// flushSession drops the cached session so the next access reconstructs
// from durable memory.
func flushSession(t *testing.T, tenantID, userID string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := testCache.Delete(ctx, tenantID, userID); err != nil {
		t.Fatalf("flush session: %v", err)
	}
}
