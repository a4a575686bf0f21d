package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// MessageExists reports whether a message was already ingested for the owner.
// The (owner_id, provider_message_id) pair is the dedup boundary.
func (db *DB) MessageExists(ctx context.Context, ownerID uuid.UUID, providerMessageID string) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM ingested_messages WHERE owner_id = $1 AND provider_message_id = $2
		 )`,
		ownerID, providerMessageID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check message existence: %w", err)
	}
	return exists, nil
}

// InsertMessage stores an ingested message event and returns its ID.
func (db *DB) InsertMessage(ctx context.Context, msg *IngestedMessage) (uuid.UUID, error) {
	var id uuid.UUID
	err := db.pool.QueryRow(ctx,
		`INSERT INTO ingested_messages
		   (owner_id, provider_message_id, subject, raw_text, timestamp, type, is_job_related)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		msg.OwnerID, msg.ProviderMessageID, msg.Subject, msg.RawText, msg.Timestamp, msg.Type, msg.IsJobRelated,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert ingested message: %w", err)
	}
	return id, nil
}

// LinkMessageToEntry records which job entry a message produced. This is the
// only mutation an ingested message receives after creation.
func (db *DB) LinkMessageToEntry(ctx context.Context, messageID, entryID uuid.UUID) error {
	result, err := db.pool.Exec(ctx,
		`UPDATE ingested_messages SET linked_entry_id = $1 WHERE id = $2`,
		entryID, messageID,
	)
	if err != nil {
		return fmt.Errorf("failed to link message to entry: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("ingested message not found: %s", messageID)
	}
	return nil
}
