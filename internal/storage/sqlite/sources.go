package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Knowmad79/Docbox2026/internal/model"
	"github.com/Knowmad79/Docbox2026/internal/storage"
)

const sourceColumns = `id, user_id, name, inbound_token, inbound_address, email_count, created_at`

func scanSource(row rowScanner) (model.Source, error) {
	var (
		src               model.Source
		id, userID, since string
	)
	if err := row.Scan(&id, &userID, &src.Name, &src.InboundToken, &src.InboundAddress, &src.EmailCount, &since); err != nil {
		return model.Source{}, err
	}
	var err error
	if src.ID, err = parseUUID(id); err != nil {
		return model.Source{}, err
	}
	if src.UserID, err = parseUUID(userID); err != nil {
		return model.Source{}, err
	}
	if src.CreatedAt, err = parseTS(since); err != nil {
		return model.Source{}, err
	}
	return src, nil
}

// CreateSource inserts a forwarding source.
func (s *Store) CreateSource(ctx context.Context, src model.Source) (model.Source, error) {
	if src.ID == uuid.Nil {
		src.ID = uuid.New()
	}
	if src.CreatedAt.IsZero() {
		src.CreatedAt = time.Now().UTC()
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (`+sourceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		src.ID.String(), src.UserID.String(), src.Name, src.InboundToken, src.InboundAddress,
		src.EmailCount, ts(src.CreatedAt),
	); err != nil {
		return model.Source{}, fmt.Errorf("sqlite: create source: %w", err)
	}
	return src, nil
}

// ListSources returns the user's sources, newest first.
func (s *Store) ListSources(ctx context.Context, userID uuid.UUID) ([]model.Source, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE user_id = ? ORDER BY created_at DESC, id`, userID.String())
	if err != nil {
		return nil, fmt.Errorf("sqlite: list sources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan source: %w", err)
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// DeleteSource removes one of the user's sources.
func (s *Store) DeleteSource(ctx context.Context, userID, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sources WHERE id = ? AND user_id = ?`, id.String(), userID.String())
	if err != nil {
		return fmt.Errorf("sqlite: delete source: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sqlite: source %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// GetSourceByToken resolves an inbound token to its source.
func (s *Store) GetSourceByToken(ctx context.Context, token string) (model.Source, error) {
	src, err := scanSource(s.db.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE inbound_token = ?`, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Source{}, fmt.Errorf("sqlite: source: %w", storage.ErrNotFound)
		}
		return model.Source{}, fmt.Errorf("sqlite: get source by token: %w", err)
	}
	return src, nil
}

// Stats returns message totals, per-zone counts and the correction count.
func (s *Store) Stats(ctx context.Context, userID uuid.UUID) (model.Stats, error) {
	st := model.Stats{ZoneCounts: model.NewZoneCounts()}

	rows, err := s.db.QueryContext(ctx,
		`SELECT zone, count(*) FROM messages WHERE user_id = ? GROUP BY zone`, userID.String())
	if err != nil {
		return model.Stats{}, fmt.Errorf("sqlite: zone counts: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			zone string
			n    int
		)
		if err := rows.Scan(&zone, &n); err != nil {
			return model.Stats{}, fmt.Errorf("sqlite: scan zone count: %w", err)
		}
		st.ZoneCounts[model.Zone(zone)] = n
		st.TotalMessages += n
	}
	if err := rows.Err(); err != nil {
		return model.Stats{}, fmt.Errorf("sqlite: zone counts: %w", err)
	}
	// Release the single connection before the next query.
	_ = rows.Close()

	if err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM corrections WHERE user_id = ?`, userID.String(),
	).Scan(&st.TotalCorrections); err != nil {
		return model.Stats{}, fmt.Errorf("sqlite: count corrections: %w", err)
	}
	return st, nil
}
