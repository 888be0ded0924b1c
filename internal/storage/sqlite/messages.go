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

const messageColumns = `id, user_id, source_id, sender, sender_domain, subject, snippet, zone,
	confidence, reason, personality_message, summary, recommended_action, action_type,
	draft_reply, llm_fallback, corrected, corrected_at, status, snoozed_until,
	received_at, classified_at, completed_at, needs_reply, replied_at,
	provider_message_id, grant_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (model.Message, error) {
	var (
		m                         model.Message
		id, userID, zone, status  string
		receivedAt, classifiedAt  string
		sourceID, summary, action sql.NullString
		actionType, draft         sql.NullString
		correctedAt, snoozedUntil sql.NullString
		completedAt, repliedAt    sql.NullString
		providerID, grantID       sql.NullString
	)
	err := row.Scan(
		&id, &userID, &sourceID, &m.Sender, &m.SenderDomain, &m.Subject, &m.Snippet, &zone,
		&m.Confidence, &m.Reason, &m.PersonalityMessage, &summary, &action, &actionType,
		&draft, &m.LLMFallback, &m.Corrected, &correctedAt, &status, &snoozedUntil,
		&receivedAt, &classifiedAt, &completedAt, &m.NeedsReply, &repliedAt,
		&providerID, &grantID,
	)
	if err != nil {
		return model.Message{}, err
	}

	if m.ID, err = parseUUID(id); err != nil {
		return model.Message{}, err
	}
	if m.UserID, err = parseUUID(userID); err != nil {
		return model.Message{}, err
	}
	if sourceID.Valid {
		sid, err := parseUUID(sourceID.String)
		if err != nil {
			return model.Message{}, err
		}
		m.SourceID = &sid
	}
	m.Zone = model.Zone(zone)
	m.Status = model.MessageStatus(status)
	m.Summary = nullString(summary)
	m.RecommendedAction = nullString(action)
	m.DraftReply = nullString(draft)
	m.ProviderMessageID = nullString(providerID)
	m.GrantID = nullString(grantID)
	if actionType.Valid {
		at := model.ActionType(actionType.String)
		m.ActionType = &at
	}
	if m.CorrectedAt, err = parseNullTS(correctedAt); err != nil {
		return model.Message{}, err
	}
	if m.SnoozedUntil, err = parseNullTS(snoozedUntil); err != nil {
		return model.Message{}, err
	}
	if m.CompletedAt, err = parseNullTS(completedAt); err != nil {
		return model.Message{}, err
	}
	if m.RepliedAt, err = parseNullTS(repliedAt); err != nil {
		return model.Message{}, err
	}
	if m.ReceivedAt, err = parseTS(receivedAt); err != nil {
		return model.Message{}, err
	}
	if m.ClassifiedAt, err = parseTS(classifiedAt); err != nil {
		return model.Message{}, err
	}
	return m, nil
}

// CreateMessage inserts a triaged message and bumps its source's count.
func (s *Store) CreateMessage(ctx context.Context, m model.Message) (model.Message, error) {
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

	var sourceID any
	if m.SourceID != nil {
		sourceID = m.SourceID.String()
	}
	var actionType any
	if m.ActionType != nil {
		actionType = string(*m.ActionType)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Message{}, fmt.Errorf("sqlite: begin create message tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (`+messageColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID.String(), m.UserID.String(), sourceID, m.Sender, m.SenderDomain, m.Subject, m.Snippet, string(m.Zone),
		m.Confidence, m.Reason, m.PersonalityMessage, strPtr(m.Summary), strPtr(m.RecommendedAction), actionType,
		strPtr(m.DraftReply), boolInt(m.LLMFallback), boolInt(m.Corrected), tsPtr(m.CorrectedAt), string(m.Status), tsPtr(m.SnoozedUntil),
		ts(m.ReceivedAt), ts(m.ClassifiedAt), tsPtr(m.CompletedAt), boolInt(m.NeedsReply), tsPtr(m.RepliedAt),
		strPtr(m.ProviderMessageID), strPtr(m.GrantID),
	); err != nil {
		if isUniqueViolation(err) {
			return model.Message{}, fmt.Errorf("sqlite: message %s: %w", m.ID, storage.ErrDuplicateMessage)
		}
		return model.Message{}, fmt.Errorf("sqlite: create message: %w", err)
	}
	if m.SourceID != nil {
		if _, err := tx.ExecContext(ctx,
			`UPDATE sources SET email_count = email_count + 1 WHERE id = ?`, sourceID,
		); err != nil {
			return model.Message{}, fmt.Errorf("sqlite: bump source count: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return model.Message{}, fmt.Errorf("sqlite: commit create message tx: %w", err)
	}
	return m, nil
}

// GetMessage returns one of the user's messages.
func (s *Store) GetMessage(ctx context.Context, userID, id uuid.UUID) (model.Message, error) {
	return getMessage(ctx, s.db, userID, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getMessage(ctx context.Context, q querier, userID, id uuid.UUID) (model.Message, error) {
	m, err := scanMessage(q.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = ? AND user_id = ?`, id.String(), userID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Message{}, fmt.Errorf("sqlite: message %s: %w", id, storage.ErrNotFound)
		}
		return model.Message{}, fmt.Errorf("sqlite: get message: %w", err)
	}
	return m, nil
}

// GetMessageByProviderID returns the user's message synced from the given
// provider message id.
func (s *Store) GetMessageByProviderID(ctx context.Context, userID uuid.UUID, providerMessageID string) (model.Message, error) {
	m, err := scanMessage(s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE user_id = ? AND provider_message_id = ?`,
		userID.String(), providerMessageID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Message{}, fmt.Errorf("sqlite: message %s: %w", providerMessageID, storage.ErrNotFound)
		}
		return model.Message{}, fmt.Errorf("sqlite: get message by provider id: %w", err)
	}
	return m, nil
}

// ListMessages returns the user's messages newest first; an empty zone means all.
func (s *Store) ListMessages(ctx context.Context, userID uuid.UUID, zone model.Zone) ([]model.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE user_id = ?`
	args := []any{userID.String()}
	if zone != "" {
		query += ` AND zone = ?`
		args = append(args, string(zone))
	}
	query += ` ORDER BY received_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteMessage removes one of the user's messages.
func (s *Store) DeleteMessage(ctx context.Context, userID, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE id = ? AND user_id = ?`, id.String(), userID.String())
	if err != nil {
		return fmt.Errorf("sqlite: delete message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sqlite: message %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// UpdateMessageStatus sets the workflow status; snoozedUntil is kept only for
// StatusSnoozed. completed_at keeps the first move to done.
func (s *Store) UpdateMessageStatus(ctx context.Context, userID, id uuid.UUID, status model.MessageStatus, snoozedUntil *time.Time) (model.Message, error) {
	if status != model.StatusSnoozed {
		snoozedUntil = nil
	}
	var completedAt any
	if status == model.StatusDone {
		completedAt = ts(time.Now())
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET status = ?, snoozed_until = ?,
		        completed_at = CASE WHEN ? IS NULL THEN NULL ELSE COALESCE(completed_at, ?) END
		 WHERE id = ? AND user_id = ?`,
		string(status), tsPtr(snoozedUntil), completedAt, completedAt, id.String(), userID.String())
	if err != nil {
		return model.Message{}, fmt.Errorf("sqlite: update message status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Message{}, fmt.Errorf("sqlite: message %s: %w", id, storage.ErrNotFound)
	}
	return s.GetMessage(ctx, userID, id)
}

// MarkMessageReplied clears needs_reply and stamps replied_at.
func (s *Store) MarkMessageReplied(ctx context.Context, userID, id uuid.UUID, at time.Time) (model.Message, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET needs_reply = 0, replied_at = ? WHERE id = ? AND user_id = ?`,
		ts(at), id.String(), userID.String())
	if err != nil {
		return model.Message{}, fmt.Errorf("sqlite: mark message replied: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Message{}, fmt.Errorf("sqlite: message %s: %w", id, storage.ErrNotFound)
	}
	return s.GetMessage(ctx, userID, id)
}

// ApplyCorrection moves a message to c.NewZone, records the correction and
// upserts the sender override in one transaction.
func (s *Store) ApplyCorrection(ctx context.Context, c model.Correction, senderKey string) (model.Message, model.Correction, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CorrectedAt.IsZero() {
		c.CorrectedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Message{}, model.Correction{}, fmt.Errorf("sqlite: begin correction tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := getMessage(ctx, tx, c.UserID, c.MessageID)
	if err != nil {
		return model.Message{}, model.Correction{}, err
	}
	c.OldZone = current.Zone
	c.Sender = current.Sender

	if _, err := tx.ExecContext(ctx,
		`UPDATE messages SET zone = ?, corrected = 1, corrected_at = ? WHERE id = ?`,
		string(c.NewZone), ts(c.CorrectedAt), c.MessageID.String(),
	); err != nil {
		return model.Message{}, model.Correction{}, fmt.Errorf("sqlite: update message zone: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO corrections (id, user_id, message_id, old_zone, new_zone, sender, corrected_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.UserID.String(), c.MessageID.String(), string(c.OldZone), string(c.NewZone),
		c.Sender, ts(c.CorrectedAt),
	); err != nil {
		return model.Message{}, model.Correction{}, fmt.Errorf("sqlite: record correction: %w", err)
	}
	if err := upsertOverride(ctx, tx, senderKey, c.NewZone); err != nil {
		return model.Message{}, model.Correction{}, err
	}

	updated, err := getMessage(ctx, tx, c.UserID, c.MessageID)
	if err != nil {
		return model.Message{}, model.Correction{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Message{}, model.Correction{}, fmt.Errorf("sqlite: commit correction tx: %w", err)
	}
	return updated, c, nil
}
