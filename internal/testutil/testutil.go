// Package testutil starts the Postgres that integration tests run against.
//
// Set DOCBOX_TEST_DATABASE_URL (URL form) to reuse a running server instead
// of starting a container. Each NewTestDB call still gets a fresh database.
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Knowmad79/Docbox2026/internal/storage"
	"github.com/Knowmad79/Docbox2026/migrations"
)

// ExternalDSNEnv names the variable that skips the container.
const ExternalDSNEnv = "DOCBOX_TEST_DATABASE_URL"

// Postgres is a server tests can create databases on. Container is nil when
// the server came from ExternalDSNEnv.
type Postgres struct {
	Container testcontainers.Container
	// AdminDSN points at the maintenance database.
	AdminDSN string
}

// StartPostgres returns the external server if configured, else starts a
// postgres:17-alpine container.
func StartPostgres(ctx context.Context) (*Postgres, error) {
	if dsn := os.Getenv(ExternalDSNEnv); dsn != "" {
		return &Postgres{AdminDSN: dsn}, nil
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "docbox",
				"POSTGRES_PASSWORD": "docbox",
				"POSTGRES_DB":       "docbox",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("testutil: start container: %w", err)
	}
	pg := &Postgres{Container: container}

	host, err := container.Host(ctx)
	if err != nil {
		pg.Terminate()
		return nil, fmt.Errorf("testutil: container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		pg.Terminate()
		return nil, fmt.Errorf("testutil: container port: %w", err)
	}
	pg.AdminDSN = fmt.Sprintf("postgres://docbox:docbox@%s:%s/docbox?sslmode=disable", host, port.Port())
	return pg, nil
}

// MustStartPostgres is StartPostgres for TestMain: it exits the process on
// failure.
func MustStartPostgres() *Postgres {
	pg, err := StartPostgres(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return pg
}

// NewTestDB creates an empty database, connects a storage.DB to it and
// applies the embedded migrations.
func (pg *Postgres) NewTestDB(ctx context.Context, logger *slog.Logger) (*storage.DB, error) {
	name := "docbox_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	admin, err := pgx.Connect(ctx, pg.AdminDSN)
	if err != nil {
		return nil, fmt.Errorf("testutil: connect admin: %w", err)
	}
	_, err = admin.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize())
	_ = admin.Close(ctx)
	if err != nil {
		return nil, fmt.Errorf("testutil: create database: %w", err)
	}

	dsn, err := url.Parse(pg.AdminDSN)
	if err != nil {
		return nil, fmt.Errorf("testutil: parse dsn: %w", err)
	}
	dsn.Path = "/" + name

	db, err := storage.New(ctx, dsn.String(), logger)
	if err != nil {
		return nil, fmt.Errorf("testutil: create DB: %w", err)
	}
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("testutil: run migrations: %w", err)
	}
	return db, nil
}

// Terminate stops and removes the container. External servers are left alone.
func (pg *Postgres) Terminate() {
	if pg == nil || pg.Container == nil {
		return
	}
	_ = pg.Container.Terminate(context.Background())
}

// TestLogger returns a logger for test output (warnings and up).
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
