package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestRedis holds the Redis test container and its connection URL
type TestRedis struct {
	URL       string
	container testcontainers.Container
}

// SetupTestRedis starts a Redis container for integration tests
func SetupTestRedis(t *testing.T) *TestRedis {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := redisContainer.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	port, err := redisContainer.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatal(err)
	}

	return &TestRedis{
		URL:       fmt.Sprintf("redis://%s:%s", host, port.Port()),
		container: redisContainer,
	}
}

// Teardown stops the Redis container
func (tr *TestRedis) Teardown(t *testing.T) {
	terminate(t, tr.container)
}
