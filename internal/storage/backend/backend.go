// Package backend opens the store selected by configuration: Postgres when a
// DSN is given, else the single-file SQLite store.
package backend

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/Knowmad79/Docbox2026/internal/model"
	"github.com/Knowmad79/Docbox2026/internal/server"
	"github.com/Knowmad79/Docbox2026/internal/service/shadow"
	"github.com/Knowmad79/Docbox2026/internal/service/triage"
	"github.com/Knowmad79/Docbox2026/internal/storage"
	"github.com/Knowmad79/Docbox2026/internal/storage/sqlite"
	"github.com/Knowmad79/Docbox2026/migrations"
)

// Store is everything the server, services and CLI need from persistence.
// Both *storage.DB and *sqlite.Store satisfy it.
type Store interface {
	triage.Store
	shadow.Store
	server.UserStore
	GetRuleOverride(ctx context.Context, senderKey string) (model.Zone, bool, error)
	Close(ctx context.Context)
}

var (
	_ Store = (*storage.DB)(nil)
	_ Store = (*sqlite.Store)(nil)
)

// Config selects and configures the store.
type Config struct {
	DatabaseURL string
	SQLitePath  string
	// ExtraMigrations run after the embedded Postgres migrations.
	ExtraMigrations []fs.FS
	// SkipMigrations leaves the Postgres schema untouched.
	SkipMigrations bool
}

// Kind names the store cfg selects, for logs.
func (c Config) Kind() string {
	if c.DatabaseURL != "" {
		return "postgres"
	}
	return "sqlite"
}

// Open connects to the configured store and brings its schema up to date.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DatabaseURL == "" {
		s, err := sqlite.Open(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("storage: sqlite", "path", cfg.SQLitePath)
		return s, nil
	}

	db, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	if cfg.SkipMigrations {
		logger.Info("storage: embedded migrations skipped")
	} else if err := Migrate(ctx, db, cfg.ExtraMigrations...); err != nil {
		db.Close(ctx)
		return nil, err
	}
	logger.Info("storage: postgres")
	return db, nil
}

// Migrate applies the embedded migrations, then each extra set in order.
func Migrate(ctx context.Context, db *storage.DB, extra ...fs.FS) error {
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	for i, extraFS := range extra {
		if err := db.RunMigrations(ctx, extraFS); err != nil {
			return fmt.Errorf("extra migrations[%d]: %w", i, err)
		}
	}
	return nil
}
