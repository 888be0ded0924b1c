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

const messageColumns = `id, user_id, source_id, sender, sender_domain, subject, snippet, zone,
	confidence, reason, personality_message, summary, recommended_action, action_type,
	draft_reply, llm_fallback, corrected, corrected_at, status, snoozed_until,
	received_at, classified_at, completed_at, needs_reply, replied_at,
	provider_message_id, grant_id`

func scanMessage(row pgx.Row) (model.Message, error) {
	var (
		m          model.Message
		zone       string
		status     string
		actionType *string
	)
	err := row.Scan(
		&m.ID, &m.UserID, &m.SourceID, &m.Sender, &m.SenderDomain, &m.Subject, &m.Snippet, &zone,
		&m.Confidence, &m.Reason, &m.PersonalityMessage, &m.Summary, &m.RecommendedAction, &actionType,
		&m.DraftReply, &m.LLMFallback, &m.Corrected, &m.CorrectedAt, &status, &m.SnoozedUntil,
		&m.ReceivedAt, &m.ClassifiedAt, &m.CompletedAt, &m.NeedsReply, &m.RepliedAt,
		&m.ProviderMessageID, &m.GrantID,
	)
	if err != nil {
		return model.Message{}, err
	}
	m.Zone = model.Zone(zone)
	m.Status = model.MessageStatus(status)
	if actionType != nil {
		at := model.ActionType(*actionType)
		m.ActionType = &at
	}
	return m, nil
}

func actionTypeArg(at *model.ActionType) *string {
	if at == nil {
		return nil
	}
	s := string(*at)
	return &s
}

// CreateMessage inserts a triaged message. When the message came through a
// forwarding source, that source's email_count is bumped in the same
// transaction.
func (db *DB) CreateMessage(ctx context.Context, m model.Message) (model.Message, error) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	now := time.Now().UTC()
	if m.ReceivedAt.IsZero() {
		m.ReceivedAt = now
	}
	if m.ClassifiedAt.IsZero() {
		m.ClassifiedAt = now
	}
	if m.Status == "" {
		m.Status = model.StatusActive
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.Message{}, fmt.Errorf("storage: begin create message tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO messages (`+messageColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
		         $21, $22, $23, $24, $25, $26, $27)`,
		m.ID, m.UserID, m.SourceID, m.Sender, m.SenderDomain, m.Subject, m.Snippet, string(m.Zone),
		m.Confidence, m.Reason, m.PersonalityMessage, m.Summary, m.RecommendedAction, actionTypeArg(m.ActionType),
		m.DraftReply, m.LLMFallback, m.Corrected, m.CorrectedAt, string(m.Status), m.SnoozedUntil,
		m.ReceivedAt, m.ClassifiedAt, m.CompletedAt, m.NeedsReply, m.RepliedAt,
		m.ProviderMessageID, m.GrantID,
	); err != nil {
		if isUniqueViolation(err) {
			return model.Message{}, fmt.Errorf("storage: message %s: %w", derefOr(m.ProviderMessageID), ErrDuplicateMessage)
		}
		return model.Message{}, fmt.Errorf("storage: create message: %w", err)
	}

	if m.SourceID != nil {
		if _, err := tx.Exec(ctx,
			`UPDATE sources SET email_count = email_count + 1 WHERE id = $1`, *m.SourceID,
		); err != nil {
			return model.Message{}, fmt.Errorf("storage: bump source count: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Message{}, fmt.Errorf("storage: commit create message tx: %w", err)
	}
	return m, nil
}

// GetMessage returns one of the user's messages.
func (db *DB) GetMessage(ctx context.Context, userID, id uuid.UUID) (model.Message, error) {
	m, err := scanMessage(db.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Message{}, fmt.Errorf("storage: message %s: %w", id, ErrNotFound)
		}
		return model.Message{}, fmt.Errorf("storage: get message: %w", err)
	}
	return m, nil
}

// GetMessageByProviderID returns the user's message synced from the given
// provider message id.
func (db *DB) GetMessageByProviderID(ctx context.Context, userID uuid.UUID, providerMessageID string) (model.Message, error) {
	m, err := scanMessage(db.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE user_id = $1 AND provider_message_id = $2`,
		userID, providerMessageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Message{}, fmt.Errorf("storage: message %s: %w", providerMessageID, ErrNotFound)
		}
		return model.Message{}, fmt.Errorf("storage: get message by provider id: %w", err)
	}
	return m, nil
}

// ListMessages returns the user's messages newest first. An empty zone
// returns every zone.
func (db *DB) ListMessages(ctx context.Context, userID uuid.UUID, zone model.Zone) ([]model.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE user_id = $1`
	args := []any{userID}
	if zone != "" {
		query += ` AND zone = $2`
		args = append(args, string(zone))
	}
	query += ` ORDER BY received_at DESC, id`

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list messages: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteMessage removes one of the user's messages.
func (db *DB) DeleteMessage(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("storage: delete message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: message %s: %w", id, ErrNotFound)
	}
	return nil
}

// UpdateMessageStatus sets the workflow status. snoozedUntil is stored only
// for StatusSnoozed and cleared otherwise. completed_at records the first
// move to done and is cleared when the message is reopened.
func (db *DB) UpdateMessageStatus(ctx context.Context, userID, id uuid.UUID, status model.MessageStatus, snoozedUntil *time.Time) (model.Message, error) {
	if status != model.StatusSnoozed {
		snoozedUntil = nil
	}
	m, err := scanMessage(db.pool.QueryRow(ctx,
		`UPDATE messages SET status = $3, snoozed_until = $4,
		        completed_at = CASE WHEN $3 = 'done' THEN COALESCE(completed_at, now()) END
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+messageColumns,
		id, userID, string(status), snoozedUntil))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Message{}, fmt.Errorf("storage: message %s: %w", id, ErrNotFound)
		}
		return model.Message{}, fmt.Errorf("storage: update message status: %w", err)
	}
	return m, nil
}

// MarkMessageReplied clears needs_reply and stamps replied_at.
func (db *DB) MarkMessageReplied(ctx context.Context, userID, id uuid.UUID, at time.Time) (model.Message, error) {
	m, err := scanMessage(db.pool.QueryRow(ctx,
		`UPDATE messages SET needs_reply = false, replied_at = $3
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+messageColumns,
		id, userID, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Message{}, fmt.Errorf("storage: message %s: %w", id, ErrNotFound)
		}
		return model.Message{}, fmt.Errorf("storage: mark message replied: %w", err)
	}
	return m, nil
}

func derefOr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ApplyCorrection moves a message to c.NewZone, marks it corrected, records
// the correction and upserts the sender override, all in one transaction.
// c.OldZone and c.Sender are filled from the stored message.
func (db *DB) ApplyCorrection(ctx context.Context, c model.Correction, senderKey string) (model.Message, model.Correction, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CorrectedAt.IsZero() {
		c.CorrectedAt = time.Now().UTC()
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.Message{}, model.Correction{}, fmt.Errorf("storage: begin correction tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var oldZone string
	if err := tx.QueryRow(ctx,
		`SELECT zone, sender FROM messages WHERE id = $1 AND user_id = $2 FOR UPDATE`,
		c.MessageID, c.UserID,
	).Scan(&oldZone, &c.Sender); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Message{}, model.Correction{}, fmt.Errorf("storage: message %s: %w", c.MessageID, ErrNotFound)
		}
		return model.Message{}, model.Correction{}, fmt.Errorf("storage: lock message: %w", err)
	}
	c.OldZone = model.Zone(oldZone)

	m, err := scanMessage(tx.QueryRow(ctx,
		`UPDATE messages SET zone = $2, corrected = true, corrected_at = $3
		 WHERE id = $1
		 RETURNING `+messageColumns,
		c.MessageID, string(c.NewZone), c.CorrectedAt))
	if err != nil {
		return model.Message{}, model.Correction{}, fmt.Errorf("storage: update message zone: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO corrections (id, user_id, message_id, old_zone, new_zone, sender, corrected_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.UserID, c.MessageID, string(c.OldZone), string(c.NewZone), c.Sender, c.CorrectedAt,
	); err != nil {
		return model.Message{}, model.Correction{}, fmt.Errorf("storage: record correction: %w", err)
	}

	if err := upsertOverride(ctx, tx, senderKey, c.NewZone); err != nil {
		return model.Message{}, model.Correction{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Message{}, model.Correction{}, fmt.Errorf("storage: commit correction tx: %w", err)
	}
	return m, c, nil
}
