package db

import (
	"time"

	"github.com/google/uuid"
)

// Credential holds one owner's mailbox OAuth tokens. There is at most one row
// per owner; it is created on the first OAuth grant, rotated in place on
// refresh, and deleted only on explicit disconnect.
type Credential struct {
	ID           uuid.UUID  `json:"id"`
	OwnerID      uuid.UUID  `json:"owner_id"`
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"` // nil means unknown expiry; treated as non-expiring
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// ScanCursor records where the last scan cycle for an owner started.
type ScanCursor struct {
	OwnerID    uuid.UUID `json:"owner_id"`
	LastScanAt time.Time `json:"last_scan_at"`
}

// IngestedMessage is the per-message event record. The (owner_id,
// provider_message_id) pair is the idempotency key: a message is ingested at
// most once, and only LinkedEntryID may change afterwards.
type IngestedMessage struct {
	ID                uuid.UUID  `json:"id"`
	OwnerID           uuid.UUID  `json:"owner_id"`
	ProviderMessageID string     `json:"provider_message_id"`
	Subject           string     `json:"subject"`
	RawText           string     `json:"raw_text"`
	Timestamp         time.Time  `json:"timestamp"`
	Type              string     `json:"type"`
	IsJobRelated      bool       `json:"is_job_related"`
	LinkedEntryID     *uuid.UUID `json:"linked_entry_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// Job entry statuses.
const (
	StatusApplied   = "applied"
	StatusInterview = "interview"
	StatusOffer     = "offer"
	StatusRejected  = "rejected"
	StatusWithdrawn = "withdrawn"
)

// JobEntry is one tracked job application. Entries created by the pipeline
// carry a fixed source sentinel; manual entries are created by the dashboard.
type JobEntry struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Company   string    `json:"company"`
	Position  string    `json:"position"`
	Status    string    `json:"status"`
	AppliedAt time.Time `json:"applied_at"`
	Source    string    `json:"source"`
	Portal    *string   `json:"portal,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
