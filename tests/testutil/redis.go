package testutil

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Redis test configuration constants
const (
	redisCtxTimeout                = 10 * time.Second
	redisContainerStartupTimeout   = 60 * time.Second
	redisContainerTerminateTimeout = 5 * time.Second
	redisPingTimeout               = 2 * time.Second
	redisPingRetryDelay            = 500 * time.Millisecond
	redisContainerMemoryLimit      = 128 * 1024 * 1024 // 128MB
	redisTestPoolSize              = 10
)

// sharedRedisContainer holds the singleton Redis container
var (
	sharedRedisContainer   *SharedRedisContainer
	sharedRedisContainerMu sync.Mutex
)

// SharedRedisContainer represents a reusable Redis container for tests
type SharedRedisContainer struct {
	Container testcontainers.Container
	Addr      string
}

// GetSharedRedisContainer returns a singleton Redis container.
// The container is started once and reused across all tests.
func GetSharedRedisContainer(ctx context.Context) (*SharedRedisContainer, error) {
	sharedRedisContainerMu.Lock()
	defer sharedRedisContainerMu.Unlock()

	needsCreation := sharedRedisContainer == nil

	if !needsCreation && needsRedisContainerRecreation(ctx) {
		cleanupCrashedRedisContainer()
		needsCreation = true
	}

	if needsCreation {
		startupCtx, cancel := context.WithTimeout(context.Background(), redisContainerStartupTimeout)
		defer cancel()

		cont, err := startRedisContainer(startupCtx)
		if err != nil {
			return nil, fmt.Errorf("failed to start Redis container: %w", err)
		}
		sharedRedisContainer = cont
	}

	return sharedRedisContainer, nil
}

// needsRedisContainerRecreation checks if the existing container needs to be recreated
func needsRedisContainerRecreation(ctx context.Context) bool {
	if sharedRedisContainer == nil || sharedRedisContainer.Container == nil {
		return true
	}
	running, err := isRedisContainerRunning(ctx, sharedRedisContainer.Container)
	return err != nil || !running
}

// cleanupCrashedRedisContainer terminates a crashed container
func cleanupCrashedRedisContainer() {
	if sharedRedisContainer == nil {
		return
	}
	if sharedRedisContainer.Container != nil {
		terminateCtx, cancel := context.WithTimeout(context.Background(), redisContainerTerminateTimeout)
		_ = sharedRedisContainer.Container.Terminate(terminateCtx)
		cancel()
	}
	sharedRedisContainer = nil
}

// isRedisContainerRunning checks if the container is still running
func isRedisContainerRunning(ctx context.Context, cont testcontainers.Container) (bool, error) {
	if cont == nil {
		return false, nil
	}
	state, err := cont.State(ctx)
	if err != nil {
		return false, err
	}
	return state.Running, nil
}

// startRedisContainer starts a new Redis container
func startRedisContainer(ctx context.Context) (*SharedRedisContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		HostConfigModifier: func(hc *container.HostConfig) {
			hc.Memory = redisContainerMemoryLimit
			hc.MemorySwap = redisContainerMemoryLimit
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("Ready to accept connections").WithStartupTimeout(redisContainerStartupTimeout),
			wait.ForListeningPort("6379/tcp").WithStartupTimeout(redisContainerStartupTimeout),
		),
	}

	cont, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
		Reuse:            false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start Redis container: %w", err)
	}

	host, err := cont.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := cont.MappedPort(ctx, "6379")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	return &SharedRedisContainer{
		Container: cont,
		Addr:      net.JoinHostPort(host, port.Port()),
	}, nil
}

// SetupTestRedis creates a Redis client using the shared container.
// This is the recommended way to get a Redis client for tests.
func SetupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), redisContainerStartupTimeout)
	defer cancel()

	cont, err := GetSharedRedisContainer(ctx)
	if err != nil {
		t.Fatalf("Failed to get shared Redis container: %v", err)
	}

	testClient := redis.NewClient(&redis.Options{
		Addr:     cont.Addr,
		PoolSize: redisTestPoolSize,
	})

	maxRetries := 5
	var pingErr error
	for i := range maxRetries {
		pingCtx, pingCancel := context.WithTimeout(ctx, redisPingTimeout)
		pingErr = testClient.Ping(pingCtx).Err()
		pingCancel()
		if pingErr == nil {
			break
		}
		if i < maxRetries-1 {
			time.Sleep(redisPingRetryDelay)
		}
	}
	if pingErr != nil {
		_ = testClient.Close()
		t.Fatalf("Failed to ping Redis after %d retries: %v", maxRetries, pingErr)
	}

	// Cleanup: flush DB and close client after test
	t.Cleanup(func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), redisCtxTimeout)
		defer cleanupCancel()
		_ = testClient.FlushDB(cleanupCtx).Err()
		_ = testClient.Close()
	})

	return testClient
}

// CleanupSharedRedisContainer terminates the shared container.
// This is typically called from TestMain or when all tests are done.
func CleanupSharedRedisContainer() {
	sharedRedisContainerMu.Lock()
	defer sharedRedisContainerMu.Unlock()

	if sharedRedisContainer != nil {
		if sharedRedisContainer.Container != nil {
			ctx, cancel := context.WithTimeout(context.Background(), redisContainerTerminateTimeout)
			defer cancel()
			_ = sharedRedisContainer.Container.Terminate(ctx)
		}
		sharedRedisContainer = nil
	}
}
