package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Knowmad79/Docbox2026/internal/model"
)

// ListEvents returns a vector's audit history, oldest first.
func (db *DB) ListEvents(ctx context.Context, vectorID uuid.UUID) ([]model.StateEvent, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, vector_id, event_type, description, created_at
		 FROM message_events WHERE vector_id = $1
		 ORDER BY created_at, id`, vectorID)
	if err != nil {
		return nil, fmt.Errorf("storage: list events: %w", err)
	}
	defer rows.Close()

	var out []model.StateEvent
	for rows.Next() {
		var e model.StateEvent
		if err := rows.Scan(&e.ID, &e.VectorID, &e.EventType, &e.Description, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
