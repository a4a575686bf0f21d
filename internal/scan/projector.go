package scan

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/jobtrail/internal/classify"
	"github.com/jonathan/jobtrail/internal/db"
)

// AutoImportSource marks job entries created by the pipeline rather than the
// dashboard's manual forms.
const AutoImportSource = "Gmail Auto-Import"

// Projector converts qualifying classifications into job entries.
//
// It performs no dedup against existing entries: repeated qualifying
// messages about the same company/position each produce a row. Entries are
// per-message events; collapsing them would discard status transitions
// (interview, offer, rejection) carried by later messages.
type Projector struct {
	store Store
}

// NewProjector creates a projector writing through the given store.
func NewProjector(store Store) *Projector {
	return &Projector{store: store}
}

// Project creates a job entry for a qualifying verdict. Returns the entry ID
// and true when an entry was created; a verdict below the confidence gate or
// missing company/position is a no-op, not an error.
func (p *Projector) Project(ctx context.Context, ownerID uuid.UUID, verdict classify.Verdict, occurredAt time.Time) (uuid.UUID, bool, error) {
	if !verdict.Qualifies() || verdict.Company == "" || verdict.Position == "" {
		return uuid.Nil, false, nil
	}

	status := verdict.Status
	if status == "" {
		status = db.StatusApplied
	}

	var portal *string
	if verdict.Portal != "" {
		portal = &verdict.Portal
	}

	entryID, err := p.store.InsertJobEntry(ctx, &db.JobEntry{
		OwnerID:   ownerID,
		Company:   verdict.Company,
		Position:  verdict.Position,
		Status:    status,
		AppliedAt: occurredAt, // the message's timestamp, not the scan time
		Source:    AutoImportSource,
		Portal:    portal,
	})
	if err != nil {
		return uuid.Nil, false, err
	}
	return entryID, true, nil
}
