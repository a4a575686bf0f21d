package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// GetScanCursor retrieves the owner's scan cursor.
// Returns nil without error when no cycle has ever completed for the owner.
func (db *DB) GetScanCursor(ctx context.Context, ownerID uuid.UUID) (*ScanCursor, error) {
	var cursor ScanCursor
	err := db.pool.QueryRow(ctx,
		`SELECT owner_id, last_scan_at FROM scan_cursors WHERE owner_id = $1`,
		ownerID,
	).Scan(&cursor.OwnerID, &cursor.LastScanAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get scan cursor: %w", err)
	}
	return &cursor, nil
}

// SetScanCursor advances the owner's scan cursor to the given cycle start time.
func (db *DB) SetScanCursor(ctx context.Context, ownerID uuid.UUID, lastScanAt time.Time) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO scan_cursors (owner_id, last_scan_at)
		 VALUES ($1, $2)
		 ON CONFLICT (owner_id) DO UPDATE SET last_scan_at = $2`,
		ownerID, lastScanAt,
	)
	if err != nil {
		return fmt.Errorf("failed to set scan cursor: %w", err)
	}
	return nil
}
