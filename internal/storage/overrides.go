package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Knowmad79/Docbox2026/internal/model"
)

// execer is satisfied by both the pool and a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// GetRuleOverride returns the learned zone for a sender key, if any.
func (db *DB) GetRuleOverride(ctx context.Context, senderKey string) (model.Zone, bool, error) {
	var zone string
	err := db.pool.QueryRow(ctx,
		`SELECT zone FROM rule_overrides WHERE sender_key = $1`, senderKey,
	).Scan(&zone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("storage: get rule override: %w", err)
	}
	return model.Zone(zone), true, nil
}

// SetRuleOverride upserts a learned zone. Concurrent writers for the same key
// resolve last-write-wins.
func (db *DB) SetRuleOverride(ctx context.Context, senderKey string, zone model.Zone) error {
	return upsertOverride(ctx, db.pool, senderKey, zone)
}

func upsertOverride(ctx context.Context, e execer, senderKey string, zone model.Zone) error {
	if _, err := e.Exec(ctx,
		`INSERT INTO rule_overrides (sender_key, zone) VALUES ($1, $2)
		 ON CONFLICT (sender_key) DO UPDATE SET zone = EXCLUDED.zone, updated_at = now()`,
		senderKey, string(zone),
	); err != nil {
		return fmt.Errorf("storage: upsert rule override: %w", err)
	}
	return nil
}
