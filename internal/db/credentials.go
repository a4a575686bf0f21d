package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// GetCredential retrieves the mailbox credential for an owner.
// Returns nil without error when the owner never connected a mailbox.
func (db *DB) GetCredential(ctx context.Context, ownerID uuid.UUID) (*Credential, error) {
	var cred Credential
	err := db.pool.QueryRow(ctx,
		`SELECT id, owner_id, access_token, refresh_token, expires_at, created_at, updated_at
		 FROM credentials WHERE owner_id = $1`,
		ownerID,
	).Scan(&cred.ID, &cred.OwnerID, &cred.AccessToken, &cred.RefreshToken, &cred.ExpiresAt, &cred.CreatedAt, &cred.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	return &cred, nil
}

// UpsertCredential stores the tokens from an OAuth grant, replacing any
// existing credential for the owner.
func (db *DB) UpsertCredential(ctx context.Context, ownerID uuid.UUID, accessToken, refreshToken string, expiresAt *time.Time) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO credentials (owner_id, access_token, refresh_token, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (owner_id) DO UPDATE
		 SET access_token = $2, refresh_token = $3, expires_at = $4, updated_at = NOW()`,
		ownerID, accessToken, refreshToken, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}
	return nil
}

// UpdateAccessToken rotates the access token after a successful refresh
// exchange. The refresh token is left untouched.
func (db *DB) UpdateAccessToken(ctx context.Context, ownerID uuid.UUID, accessToken string, expiresAt time.Time) error {
	result, err := db.pool.Exec(ctx,
		`UPDATE credentials SET access_token = $1, expires_at = $2, updated_at = NOW()
		 WHERE owner_id = $3`,
		accessToken, expiresAt, ownerID,
	)
	if err != nil {
		return fmt.Errorf("failed to update access token: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("credential not found for owner: %s", ownerID)
	}
	return nil
}

// DeleteCredential removes the owner's credential on explicit disconnect.
func (db *DB) DeleteCredential(ctx context.Context, ownerID uuid.UUID) error {
	result, err := db.pool.Exec(ctx, `DELETE FROM credentials WHERE owner_id = $1`, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("credential not found for owner: %s", ownerID)
	}
	return nil
}
