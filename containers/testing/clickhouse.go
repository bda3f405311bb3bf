package testing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// ClickHouseConfig holds configuration for ClickHouse testcontainer setup.
type ClickHouseConfig struct {
	// Image is the Docker image to use (default: "clickhouse/clickhouse-server:24.8")
	Image string
	// Database is the default database to create (default: "default")
	Database string
	// Username is the ClickHouse user (default: "default")
	Username string
	// Password is the ClickHouse user's password (default: "")
	Password string
	// StartupTimeout is the maximum time to wait for ClickHouse to be ready (default: 60s)
	StartupTimeout time.Duration
}

// DefaultClickHouseConfig returns the default ClickHouse configuration for testing.
func DefaultClickHouseConfig() ClickHouseConfig {
	return ClickHouseConfig{
		Image:          "clickhouse/clickhouse-server:24.8",
		Database:       "default",
		Username:       "default",
		Password:       "",
		StartupTimeout: 60 * time.Second,
	}
}

// SetupClickHouse starts a ClickHouse container for metrics store integration
// tests and returns its native-protocol address (host:port) along with a
// cleanup function. Callers open it the same way metrics.New does, against
// config.ClickHouseConfig.
func SetupClickHouse(ctx context.Context, t *testing.T, config *ClickHouseConfig) (string, ContainerCleanup, error) {
	if config == nil {
		defaultConfig := DefaultClickHouseConfig()
		config = &defaultConfig
	}

	req := testcontainers.ContainerRequest{
		Image:        config.Image,
		ExposedPorts: []string{"9000/tcp", "8123/tcp"},
		Env: map[string]string{
			"CLICKHOUSE_DB":       config.Database,
			"CLICKHOUSE_USER":     config.Username,
			"CLICKHOUSE_PASSWORD": config.Password,
		},
		WaitingFor: wait.ForListeningPort("9000/tcp").WithStartupTimeout(config.StartupTimeout),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", func() {}, fmt.Errorf("failed to start ClickHouse container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return "", func() {}, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "9000")
	if err != nil {
		_ = container.Terminate(ctx)
		return "", func() {}, fmt.Errorf("failed to get mapped port: %w", err)
	}

	addr := fmt.Sprintf("%s:%s", host, port.Port())
	cleanup := createCleanupFunc(ctx, container, "ClickHouse")
	return addr, cleanup, nil
}
