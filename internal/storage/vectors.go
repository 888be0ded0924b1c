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

const vectorColumns = `id, nylas_message_id, grant_id, intent_label, risk_score, context_blob, summary,
	current_owner_role, deadline_at, lifecycle_state, is_overdue, created_at, updated_at`

// closedStates is the SQL list of lifecycle states that are never overdue.
const closedStates = `('RESOLVED', 'ARCHIVED')`

func scanVector(row pgx.Row) (model.StateVector, error) {
	var (
		v      model.StateVector
		intent string
		state  string
		role   *string
	)
	err := row.Scan(
		&v.ID, &v.NylasMessageID, &v.GrantID, &intent, &v.RiskScore, &v.ContextBlob, &v.Summary,
		&role, &v.DeadlineAt, &state, &v.IsOverdue, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return model.StateVector{}, err
	}
	v.IntentLabel = model.IntentLabel(intent)
	v.LifecycleState = model.LifecycleState(state)
	if role != nil {
		r := model.OwnerRole(*role)
		v.CurrentOwnerRole = &r
	}
	if v.ContextBlob == nil {
		v.ContextBlob = map[string]any{}
	}
	return v, nil
}

func roleArg(r *model.OwnerRole) *string {
	if r == nil {
		return nil
	}
	s := string(*r)
	return &s
}

// CreateVector persists a routed payload. A second vector for the same
// nylas_message_id fails with ErrDuplicateVector and writes nothing.
func (db *DB) CreateVector(ctx context.Context, p model.VectorPayload) (model.StateVector, error) {
	blob := p.ContextBlob
	if blob == nil {
		blob = map[string]any{}
	}
	state := p.LifecycleState
	if state == "" {
		state = model.StateNew
	}

	v, err := scanVector(db.pool.QueryRow(ctx,
		`INSERT INTO message_state_vectors
		 (id, nylas_message_id, grant_id, intent_label, risk_score, context_blob, summary,
		  current_owner_role, deadline_at, lifecycle_state)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING `+vectorColumns,
		uuid.New(), p.NylasMessageID, p.GrantID, string(p.IntentLabel), p.RiskScore, blob, p.Summary,
		roleArg(p.CurrentOwnerRole), p.DeadlineAt.UTC(), string(state),
	))
	if err != nil {
		if isUniqueViolation(err) {
			return model.StateVector{}, ErrDuplicateVector
		}
		return model.StateVector{}, fmt.Errorf("storage: create vector: %w", err)
	}
	return v, nil
}

// GetVector returns a vector by id.
func (db *DB) GetVector(ctx context.Context, id uuid.UUID) (model.StateVector, error) {
	return db.getVector(ctx, `id = $1`, id)
}

// GetVectorByMessageID returns the vector built from a source message.
func (db *DB) GetVectorByMessageID(ctx context.Context, nylasMessageID string) (model.StateVector, error) {
	return db.getVector(ctx, `nylas_message_id = $1`, nylasMessageID)
}

func (db *DB) getVector(ctx context.Context, where string, arg any) (model.StateVector, error) {
	v, err := scanVector(db.pool.QueryRow(ctx,
		`SELECT `+vectorColumns+` FROM message_state_vectors WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.StateVector{}, fmt.Errorf("storage: vector %v: %w", arg, ErrNotFound)
		}
		return model.StateVector{}, fmt.Errorf("storage: get vector: %w", err)
	}
	return v, nil
}

// ListVectors returns vectors newest first, optionally filtered by state.
func (db *DB) ListVectors(ctx context.Context, state model.LifecycleState, limit, offset int) ([]model.StateVector, error) {
	query := `SELECT ` + vectorColumns + ` FROM message_state_vectors`
	args := []any{limit, offset}
	if state != "" {
		query += ` WHERE lifecycle_state = $3`
		args = append(args, string(state))
	}
	query += ` ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`
	return db.queryVectors(ctx, query, args...)
}

// DailyDeck returns the open (NEW or ASSIGNED) vectors owned by role, riskiest
// first and then soonest deadline.
func (db *DB) DailyDeck(ctx context.Context, role model.OwnerRole, limit int) ([]model.StateVector, error) {
	return db.queryVectors(ctx,
		`SELECT `+vectorColumns+` FROM message_state_vectors
		 WHERE current_owner_role = $1 AND lifecycle_state IN ('NEW', 'ASSIGNED')
		 ORDER BY risk_score DESC, deadline_at ASC, id
		 LIMIT $2`,
		string(role), limit)
}

func (db *DB) queryVectors(ctx context.Context, query string, args ...any) ([]model.StateVector, error) {
	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: query vectors: %w", err)
	}
	defer rows.Close()

	var out []model.StateVector
	for rows.Next() {
		v, err := scanVector(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan vector: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// UpdateLifecycle locks the vector row, asks decide for the change and then
// writes the new state, updated_at and one event in the same transaction.
// Serialization failures and deadlocks are retried.
func (db *DB) UpdateLifecycle(ctx context.Context, id uuid.UUID,
	decide func(current model.LifecycleState) (model.StateChange, error)) (model.StateVector, error) {
	var out model.StateVector
	err := WithRetry(ctx, txMaxRetries, txBaseDelay, func() error {
		v, err := db.updateLifecycleTx(ctx, id, decide)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (db *DB) updateLifecycleTx(ctx context.Context, id uuid.UUID,
	decide func(model.LifecycleState) (model.StateChange, error)) (model.StateVector, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.StateVector{}, fmt.Errorf("storage: begin lifecycle tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current string
	if err := tx.QueryRow(ctx,
		`SELECT lifecycle_state FROM message_state_vectors WHERE id = $1 FOR UPDATE`, id,
	).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.StateVector{}, fmt.Errorf("storage: vector %s: %w", id, ErrNotFound)
		}
		return model.StateVector{}, fmt.Errorf("storage: lock vector: %w", err)
	}

	change, err := decide(model.LifecycleState(current))
	if err != nil {
		return model.StateVector{}, err
	}

	now := time.Now().UTC()
	v, err := scanVector(tx.QueryRow(ctx,
		`UPDATE message_state_vectors
		 SET lifecycle_state = $2,
		     updated_at = $3,
		     is_overdue = CASE WHEN $2 IN `+closedStates+` THEN false ELSE is_overdue END
		 WHERE id = $1
		 RETURNING `+vectorColumns,
		id, string(change.To), now))
	if err != nil {
		return model.StateVector{}, fmt.Errorf("storage: update lifecycle: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO message_events (id, vector_id, event_type, description, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), id, change.EventType, change.Description, now,
	); err != nil {
		return model.StateVector{}, fmt.Errorf("storage: append event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.StateVector{}, fmt.Errorf("storage: commit lifecycle tx: %w", err)
	}
	return v, nil
}

// SweepOverdue sets is_overdue on open vectors whose deadline is before now
// and clears it on vectors that no longer qualify.
func (db *DB) SweepOverdue(ctx context.Context, now time.Time) (marked, cleared int64, err error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE message_state_vectors SET is_overdue = true
		 WHERE is_overdue = false AND deadline_at < $1 AND lifecycle_state NOT IN `+closedStates,
		now.UTC())
	if err != nil {
		return 0, 0, fmt.Errorf("storage: mark overdue: %w", err)
	}
	marked = tag.RowsAffected()

	tag, err = db.pool.Exec(ctx,
		`UPDATE message_state_vectors SET is_overdue = false
		 WHERE is_overdue = true AND (deadline_at >= $1 OR lifecycle_state IN `+closedStates+`)`,
		now.UTC())
	if err != nil {
		return marked, 0, fmt.Errorf("storage: clear overdue: %w", err)
	}
	return marked, tag.RowsAffected(), nil
}
