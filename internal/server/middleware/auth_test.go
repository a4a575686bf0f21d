package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticValidator struct {
	ownerID uuid.UUID
	token   string
}

type staticClaims struct{ ownerID uuid.UUID }

func (c staticClaims) GetOwnerID() uuid.UUID { return c.ownerID }

func (v staticValidator) ValidateToken(tokenString string) (OwnerIDGetter, error) {
	if tokenString != v.token {
		return nil, fmt.Errorf("invalid token")
	}
	return staticClaims{ownerID: v.ownerID}, nil
}

func TestAuth(t *testing.T) {
	ownerID := uuid.New()
	validator := staticValidator{ownerID: ownerID, token: "good-token"}

	var gotOwnerID uuid.UUID
	handler := Auth(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := OwnerID(r)
		require.NoError(t, err)
		gotOwnerID = id
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{name: "valid token", header: "Bearer good-token", wantStatus: http.StatusOK},
		{name: "lowercase scheme", header: "bearer good-token", wantStatus: http.StatusOK},
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic good-token", wantStatus: http.StatusUnauthorized},
		{name: "bad token", header: "Bearer bad-token", wantStatus: http.StatusUnauthorized},
		{name: "no token", header: "Bearer", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/scan", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, ownerID, gotOwnerID)
			} else {
				assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
			}
		})
	}
}

func TestOwnerID_MissingFromContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := OwnerID(req)
	assert.Error(t, err)
}

func TestWithOwnerID(t *testing.T) {
	ownerID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithOwnerID(req.Context(), ownerID))

	got, err := OwnerID(req)
	require.NoError(t, err)
	assert.Equal(t, ownerID, got)
}
