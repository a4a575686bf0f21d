package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/jobtrail/internal/token"
)

// ErrValidation indicates a request body failed validation.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus maps service errors to response status codes. A missing mailbox
// connection is a precondition failure the client fixes by connecting; a
// failed refresh means the stored grant is no longer usable.
func HTTPStatus(err error) int {
	var noCred *token.NoCredentialError
	if errors.As(err, &noCred) {
		return http.StatusPreconditionFailed
	}
	var refresh *token.RefreshError
	if errors.As(err, &refresh) {
		return http.StatusUnauthorized
	}
	var validation *ErrValidation
	if errors.As(err, &validation) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
