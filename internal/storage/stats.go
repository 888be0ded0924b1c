package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Knowmad79/Docbox2026/internal/model"
)

// Stats returns message totals, per-zone counts and the correction count for
// a user. Every zone is present in ZoneCounts.
func (db *DB) Stats(ctx context.Context, userID uuid.UUID) (model.Stats, error) {
	st := model.Stats{ZoneCounts: model.NewZoneCounts()}

	rows, err := db.pool.Query(ctx,
		`SELECT zone, count(*) FROM messages WHERE user_id = $1 GROUP BY zone`, userID)
	if err != nil {
		return model.Stats{}, fmt.Errorf("storage: zone counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			zone string
			n    int
		)
		if err := rows.Scan(&zone, &n); err != nil {
			return model.Stats{}, fmt.Errorf("storage: scan zone count: %w", err)
		}
		st.ZoneCounts[model.Zone(zone)] = n
		st.TotalMessages += n
	}
	if err := rows.Err(); err != nil {
		return model.Stats{}, fmt.Errorf("storage: zone counts: %w", err)
	}

	if err := db.pool.QueryRow(ctx,
		`SELECT count(*) FROM corrections WHERE user_id = $1`, userID,
	).Scan(&st.TotalCorrections); err != nil {
		return model.Stats{}, fmt.Errorf("storage: count corrections: %w", err)
	}
	return st, nil
}
