package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Knowmad79/Docbox2026/internal/model"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// GetRuleOverride returns the learned zone for a sender key, if any.
func (s *Store) GetRuleOverride(ctx context.Context, senderKey string) (model.Zone, bool, error) {
	var zone string
	err := s.db.QueryRowContext(ctx,
		`SELECT zone FROM rule_overrides WHERE sender_key = ?`, senderKey,
	).Scan(&zone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("sqlite: get rule override: %w", err)
	}
	return model.Zone(zone), true, nil
}

// SetRuleOverride upserts a learned zone, last write wins.
func (s *Store) SetRuleOverride(ctx context.Context, senderKey string, zone model.Zone) error {
	return upsertOverride(ctx, s.db, senderKey, zone)
}

func upsertOverride(ctx context.Context, e execer, senderKey string, zone model.Zone) error {
	now := ts(time.Now())
	if _, err := e.ExecContext(ctx,
		`INSERT INTO rule_overrides (sender_key, zone, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(sender_key) DO UPDATE SET zone = excluded.zone, updated_at = excluded.updated_at`,
		senderKey, string(zone), now, now,
	); err != nil {
		return fmt.Errorf("sqlite: upsert rule override: %w", err)
	}
	return nil
}
