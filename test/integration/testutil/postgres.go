// Package testutil provides shared helpers for integration tests.
package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// DefaultImage is the Postgres image used by the SQL demo tests.
	DefaultImage = "postgres:16-alpine"

	containerPort = "5432/tcp"

	dbName     = "ipcrace"
	dbUser     = "postgres"
	dbPassword = "postgres"
)

// PostgresContainer wraps a testcontainers container running Postgres.
type PostgresContainer struct {
	Container testcontainers.Container
	Host      string
	Port      int
}

// StartPostgres starts a Postgres container and waits until it accepts
// connections.
func StartPostgres(ctx context.Context) (*PostgresContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        DefaultImage,
		ExposedPorts: []string{containerPort},
		Env: map[string]string{
			"POSTGRES_DB":       dbName,
			"POSTGRES_USER":     dbUser,
			"POSTGRES_PASSWORD": dbPassword,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("start container: %w", err)
	}

	port, err := container.MappedPort(ctx, containerPort)
	if err != nil {
		terminateContainer(ctx, container)
		return nil, fmt.Errorf("get port: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		terminateContainer(ctx, container)
		return nil, fmt.Errorf("get host: %w", err)
	}

	return &PostgresContainer{
		Container: container,
		Host:      host,
		Port:      port.Int(),
	}, nil
}

// terminateContainer terminates a container, ignoring errors (used in error paths).
func terminateContainer(ctx context.Context, container testcontainers.Container) {
	//nolint:errcheck // cleanup on error path, best effort
	container.Terminate(ctx)
}

// DSN returns the connection string for the running container.
func (pc *PostgresContainer) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		dbUser, dbPassword, pc.Host, pc.Port, dbName)
}

// Terminate stops and removes the container.
func (pc *PostgresContainer) Terminate(ctx context.Context) error {
	if pc.Container != nil {
		return pc.Container.Terminate(ctx)
	}
	return nil
}
