package token

import (
	"fmt"

	"github.com/google/uuid"
)

// NoCredentialError indicates the owner never connected a mailbox. Terminal:
// the user must authorize the integration before scans can run.
type NoCredentialError struct {
	OwnerID uuid.UUID
}

func (e *NoCredentialError) Error() string {
	return fmt.Sprintf("no mailbox credential for owner: %s", e.OwnerID)
}

// RefreshError indicates the refresh exchange failed. Terminal for the
// current scan cycle; usually means the refresh token was revoked and the
// user must reauthorize.
type RefreshError struct {
	Message string
	Cause   error
}

func (e *RefreshError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("token refresh failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("token refresh failed: %s", e.Message)
}

func (e *RefreshError) Unwrap() error {
	return e.Cause
}
