package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Knowmad79/Docbox2026/internal/model"
	"github.com/Knowmad79/Docbox2026/internal/storage"
)

const vectorColumns = `id, nylas_message_id, grant_id, intent_label, risk_score, context_blob, summary,
	current_owner_role, deadline_at, lifecycle_state, is_overdue, created_at, updated_at`

func scanVector(row rowScanner) (model.StateVector, error) {
	var (
		v                          model.StateVector
		id, intent, blob, state    string
		deadline, created, updated string
		role                       sql.NullString
	)
	err := row.Scan(
		&id, &v.NylasMessageID, &v.GrantID, &intent, &v.RiskScore, &blob, &v.Summary,
		&role, &deadline, &state, &v.IsOverdue, &created, &updated,
	)
	if err != nil {
		return model.StateVector{}, err
	}
	if v.ID, err = parseUUID(id); err != nil {
		return model.StateVector{}, err
	}
	v.IntentLabel = model.IntentLabel(intent)
	v.LifecycleState = model.LifecycleState(state)
	if role.Valid {
		r := model.OwnerRole(role.String)
		v.CurrentOwnerRole = &r
	}
	if err := json.Unmarshal([]byte(blob), &v.ContextBlob); err != nil {
		return model.StateVector{}, fmt.Errorf("sqlite: decode context_blob: %w", err)
	}
	if v.ContextBlob == nil {
		v.ContextBlob = map[string]any{}
	}
	if v.DeadlineAt, err = parseTS(deadline); err != nil {
		return model.StateVector{}, err
	}
	if v.CreatedAt, err = parseTS(created); err != nil {
		return model.StateVector{}, err
	}
	if v.UpdatedAt, err = parseTS(updated); err != nil {
		return model.StateVector{}, err
	}
	return v, nil
}

// CreateVector persists a routed payload; a repeat nylas_message_id fails
// with storage.ErrDuplicateVector.
func (s *Store) CreateVector(ctx context.Context, p model.VectorPayload) (model.StateVector, error) {
	blob := p.ContextBlob
	if blob == nil {
		blob = map[string]any{}
	}
	raw, err := json.Marshal(blob)
	if err != nil {
		return model.StateVector{}, fmt.Errorf("sqlite: encode context_blob: %w", err)
	}
	state := p.LifecycleState
	if state == "" {
		state = model.StateNew
	}
	var role any
	if p.CurrentOwnerRole != nil {
		role = string(*p.CurrentOwnerRole)
	}

	id := uuid.New()
	now := ts(time.Now())
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO message_state_vectors (`+vectorColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		id.String(), p.NylasMessageID, p.GrantID, string(p.IntentLabel), p.RiskScore, string(raw), p.Summary,
		role, ts(p.DeadlineAt), string(state), now, now,
	); err != nil {
		if isUniqueViolation(err) {
			return model.StateVector{}, storage.ErrDuplicateVector
		}
		return model.StateVector{}, fmt.Errorf("sqlite: create vector: %w", err)
	}
	return s.GetVector(ctx, id)
}

// GetVector returns a vector by id.
func (s *Store) GetVector(ctx context.Context, id uuid.UUID) (model.StateVector, error) {
	return getVector(ctx, s.db, `id = ?`, id.String())
}

// GetVectorByMessageID returns the vector built from a source message.
func (s *Store) GetVectorByMessageID(ctx context.Context, nylasMessageID string) (model.StateVector, error) {
	return getVector(ctx, s.db, `nylas_message_id = ?`, nylasMessageID)
}

func getVector(ctx context.Context, q querier, where string, arg any) (model.StateVector, error) {
	v, err := scanVector(q.QueryRowContext(ctx,
		`SELECT `+vectorColumns+` FROM message_state_vectors WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.StateVector{}, fmt.Errorf("sqlite: vector %v: %w", arg, storage.ErrNotFound)
		}
		return model.StateVector{}, fmt.Errorf("sqlite: get vector: %w", err)
	}
	return v, nil
}

// ListVectors returns vectors newest first, optionally filtered by state.
func (s *Store) ListVectors(ctx context.Context, state model.LifecycleState, limit, offset int) ([]model.StateVector, error) {
	query := `SELECT ` + vectorColumns + ` FROM message_state_vectors`
	var args []any
	if state != "" {
		query += ` WHERE lifecycle_state = ?`
		args = append(args, string(state))
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)
	return s.queryVectors(ctx, query, args...)
}

// DailyDeck returns the role's open vectors, riskiest then soonest first.
func (s *Store) DailyDeck(ctx context.Context, role model.OwnerRole, limit int) ([]model.StateVector, error) {
	return s.queryVectors(ctx,
		`SELECT `+vectorColumns+` FROM message_state_vectors
		 WHERE current_owner_role = ? AND lifecycle_state IN ('NEW', 'ASSIGNED')
		 ORDER BY risk_score DESC, deadline_at ASC, id
		 LIMIT ?`,
		string(role), limit)
}

func (s *Store) queryVectors(ctx context.Context, query string, args ...any) ([]model.StateVector, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query vectors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.StateVector
	for rows.Next() {
		v, err := scanVector(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan vector: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// UpdateLifecycle applies one lifecycle change atomically. The store has a
// single connection, so concurrent calls run one after another.
func (s *Store) UpdateLifecycle(ctx context.Context, id uuid.UUID,
	decide func(current model.LifecycleState) (model.StateChange, error)) (model.StateVector, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.StateVector{}, fmt.Errorf("sqlite: begin lifecycle tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := getVector(ctx, tx, `id = ?`, id.String())
	if err != nil {
		return model.StateVector{}, err
	}

	change, err := decide(current.LifecycleState)
	if err != nil {
		return model.StateVector{}, err
	}

	now := ts(time.Now())
	if _, err := tx.ExecContext(ctx,
		`UPDATE message_state_vectors
		 SET lifecycle_state = ?1,
		     updated_at = ?2,
		     is_overdue = CASE WHEN ?1 IN ('RESOLVED', 'ARCHIVED') THEN 0 ELSE is_overdue END
		 WHERE id = ?3`,
		string(change.To), now, id.String(),
	); err != nil {
		return model.StateVector{}, fmt.Errorf("sqlite: update lifecycle: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO message_events (id, vector_id, event_type, description, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), id.String(), change.EventType, change.Description, now,
	); err != nil {
		return model.StateVector{}, fmt.Errorf("sqlite: append event: %w", err)
	}

	updated, err := getVector(ctx, tx, `id = ?`, id.String())
	if err != nil {
		return model.StateVector{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.StateVector{}, fmt.Errorf("sqlite: commit lifecycle tx: %w", err)
	}
	return updated, nil
}

// ListEvents returns a vector's audit history, oldest first.
func (s *Store) ListEvents(ctx context.Context, vectorID uuid.UUID) ([]model.StateEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, vector_id, event_type, description, created_at
		 FROM message_events WHERE vector_id = ?
		 ORDER BY created_at, rowid`, vectorID.String())
	if err != nil {
		return nil, fmt.Errorf("sqlite: list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.StateEvent
	for rows.Next() {
		var (
			e                model.StateEvent
			id, vid, created string
		)
		if err := rows.Scan(&id, &vid, &e.EventType, &e.Description, &created); err != nil {
			return nil, fmt.Errorf("sqlite: scan event: %w", err)
		}
		if e.ID, err = parseUUID(id); err != nil {
			return nil, err
		}
		if e.VectorID, err = parseUUID(vid); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseTS(created); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SweepOverdue flags open vectors past their deadline and clears the flag on
// vectors that no longer qualify.
func (s *Store) SweepOverdue(ctx context.Context, now time.Time) (marked, cleared int64, err error) {
	cutoff := ts(now)
	res, err := s.db.ExecContext(ctx,
		`UPDATE message_state_vectors SET is_overdue = 1
		 WHERE is_overdue = 0 AND deadline_at < ? AND lifecycle_state NOT IN ('RESOLVED', 'ARCHIVED')`,
		cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("sqlite: mark overdue: %w", err)
	}
	marked, _ = res.RowsAffected()

	res, err = s.db.ExecContext(ctx,
		`UPDATE message_state_vectors SET is_overdue = 0
		 WHERE is_overdue = 1 AND (deadline_at >= ? OR lifecycle_state IN ('RESOLVED', 'ARCHIVED'))`,
		cutoff)
	if err != nil {
		return marked, 0, fmt.Errorf("sqlite: clear overdue: %w", err)
	}
	cleared, _ = res.RowsAffected()
	return marked, cleared, nil
}
