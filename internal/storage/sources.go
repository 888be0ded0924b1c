package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Knowmad79/Docbox2026/internal/model"
)

const sourceColumns = `id, user_id, name, inbound_token, inbound_address, email_count, created_at`

func scanSource(row pgx.Row) (model.Source, error) {
	var s model.Source
	err := row.Scan(&s.ID, &s.UserID, &s.Name, &s.InboundToken, &s.InboundAddress, &s.EmailCount, &s.CreatedAt)
	return s, err
}

// CreateSource inserts a forwarding source.
func (db *DB) CreateSource(ctx context.Context, s model.Source) (model.Source, error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if _, err := db.pool.Exec(ctx,
		`INSERT INTO sources (`+sourceColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.UserID, s.Name, s.InboundToken, s.InboundAddress, s.EmailCount, s.CreatedAt,
	); err != nil {
		return model.Source{}, fmt.Errorf("storage: create source: %w", err)
	}
	return s, nil
}

// ListSources returns the user's sources, newest first.
func (db *DB) ListSources(ctx context.Context, userID uuid.UUID) ([]model.Source, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE user_id = $1 ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("storage: list sources: %w", err)
	}
	defer rows.Close()

	var out []model.Source
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan source: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteSource removes one of the user's sources. Messages it delivered are
// kept with source_id cleared.
func (db *DB) DeleteSource(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM sources WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("storage: delete source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: source %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetSourceByToken resolves an inbound token to its source.
func (db *DB) GetSourceByToken(ctx context.Context, token string) (model.Source, error) {
	s, err := scanSource(db.pool.QueryRow(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE inbound_token = $1`, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Source{}, fmt.Errorf("storage: source: %w", ErrNotFound)
		}
		return model.Source{}, fmt.Errorf("storage: get source by token: %w", err)
	}
	return s, nil
}
