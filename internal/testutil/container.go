// Package testutil provides containers, clients and fixtures for
// integration tests (build tag "integration").
package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	postgresImage = "postgres:16-alpine"
	mailpitImage  = "axllent/mailpit:latest"

	mailpitSMTPPort nat.Port = "1025/tcp"
	mailpitAPIPort  nat.Port = "8025/tcp"

	startupTimeout = 60 * time.Second
)

// PostgresContainer is a throwaway PostgreSQL server with an empty
// eventrelay database.
type PostgresContainer struct {
	*postgres.PostgresContainer
	ConnectionString string
}

// MailpitContainer is a throwaway SMTP sink with an HTTP API for reading
// what was delivered.
type MailpitContainer struct {
	testcontainers.Container
	SMTPHost string
	SMTPPort int
	APIURL   string
}

// NewPostgresContainer starts PostgreSQL and waits until it accepts connections.
func NewPostgresContainer(ctx context.Context) (*PostgresContainer, error) {
	container, err := postgres.Run(ctx,
		postgresImage,
		postgres.WithDatabase("eventrelay"),
		postgres.WithUsername("eventrelay"),
		postgres.WithPassword("eventrelay"),
		testcontainers.WithWaitStrategy(
			// The server restarts once after initdb, hence two occurrences.
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(startupTimeout),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(context.Background())
		return nil, fmt.Errorf("get connection string: %w", err)
	}

	return &PostgresContainer{
		PostgresContainer: container,
		ConnectionString:  connStr,
	}, nil
}

// NewMailpitContainer starts Mailpit and waits for both its SMTP and HTTP ports.
func NewMailpitContainer(ctx context.Context) (*MailpitContainer, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        mailpitImage,
			ExposedPorts: []string{string(mailpitSMTPPort), string(mailpitAPIPort)},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort(mailpitSMTPPort),
				wait.ForHTTP("/api/v1/info").WithPort(mailpitAPIPort),
			).WithDeadline(startupTimeout),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("start mailpit container: %w", err)
	}

	smtpHost, smtpPort, err := endpoint(ctx, container, mailpitSMTPPort)
	if err != nil {
		_ = container.Terminate(context.Background())
		return nil, err
	}
	apiHost, apiPort, err := endpoint(ctx, container, mailpitAPIPort)
	if err != nil {
		_ = container.Terminate(context.Background())
		return nil, err
	}

	return &MailpitContainer{
		Container: container,
		SMTPHost:  smtpHost,
		SMTPPort:  smtpPort,
		APIURL:    fmt.Sprintf("http://%s:%d", apiHost, apiPort),
	}, nil
}

func endpoint(ctx context.Context, c testcontainers.Container, port nat.Port) (string, int, error) {
	host, err := c.Host(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("get container host: %w", err)
	}
	mapped, err := c.MappedPort(ctx, port)
	if err != nil {
		return "", 0, fmt.Errorf("get mapped port %s: %w", port, err)
	}
	return host, mapped.Int(), nil
}
