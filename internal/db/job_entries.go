package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// InsertJobEntry stores a job application record and returns its ID.
func (db *DB) InsertJobEntry(ctx context.Context, entry *JobEntry) (uuid.UUID, error) {
	var id uuid.UUID
	err := db.pool.QueryRow(ctx,
		`INSERT INTO job_entries (owner_id, company, position, status, applied_at, source, portal)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		entry.OwnerID, entry.Company, entry.Position, entry.Status, entry.AppliedAt, entry.Source, entry.Portal,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert job entry: %w", err)
	}
	return id, nil
}
