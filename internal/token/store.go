// Package token manages the OAuth credential lifecycle for mailbox
// connections: loading stored tokens, refreshing them ahead of expiry, and
// persisting rotated access tokens.
package token

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/jobtrail/internal/db"
)

// RefreshMargin is the safety margin before expiry at which a token is
// refreshed. A token is never handed out with less than this much lifetime
// remaining unless its expiry is unknown.
const RefreshMargin = 5 * time.Minute

// DefaultTokenEndpoint is the provider's OAuth token exchange endpoint.
const DefaultTokenEndpoint = "https://oauth2.googleapis.com/token"

// DefaultTimeout bounds the refresh exchange request.
const DefaultTimeout = 30 * time.Second

// CredentialStore is the persistence surface the token store needs.
type CredentialStore interface {
	GetCredential(ctx context.Context, ownerID uuid.UUID) (*db.Credential, error)
	UpdateAccessToken(ctx context.Context, ownerID uuid.UUID, accessToken string, expiresAt time.Time) error
}

// Options configures a Store.
type Options struct {
	Endpoint string
	Timeout  time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Store resolves valid access tokens for one owner at a time.
type Store struct {
	creds        CredentialStore
	httpClient   *http.Client
	endpoint     string
	clientID     string
	clientSecret string
	now          func() time.Time
}

// NewStore creates a token store using the given OAuth client credentials.
func NewStore(creds CredentialStore, clientID, clientSecret string, opts *Options) *Store {
	s := &Store{
		creds:        creds,
		httpClient:   &http.Client{Timeout: DefaultTimeout},
		endpoint:     DefaultTokenEndpoint,
		clientID:     clientID,
		clientSecret: clientSecret,
		now:          time.Now,
	}
	if opts == nil {
		return s
	}
	if opts.Endpoint != "" {
		s.endpoint = opts.Endpoint
	}
	if opts.Timeout > 0 {
		s.httpClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Now != nil {
		s.now = opts.Now
	}
	return s
}

// GetValidAccessToken returns an access token with at least RefreshMargin of
// lifetime left, refreshing at most once. A credential with unknown expiry is
// treated as non-expiring and returned as-is.
func (s *Store) GetValidAccessToken(ctx context.Context, ownerID uuid.UUID) (string, error) {
	cred, err := s.creds.GetCredential(ctx, ownerID)
	if err != nil {
		return "", fmt.Errorf("failed to load credential: %w", err)
	}
	if cred == nil {
		return "", &NoCredentialError{OwnerID: ownerID}
	}

	if cred.ExpiresAt == nil || cred.ExpiresAt.Sub(s.now()) > RefreshMargin {
		return cred.AccessToken, nil
	}

	return s.refresh(ctx, cred)
}

// ForceRefresh performs one refresh exchange regardless of the cached
// token's remaining lifetime. Used after the provider rejects a token that
// looked valid locally.
func (s *Store) ForceRefresh(ctx context.Context, ownerID uuid.UUID) (string, error) {
	cred, err := s.creds.GetCredential(ctx, ownerID)
	if err != nil {
		return "", fmt.Errorf("failed to load credential: %w", err)
	}
	if cred == nil {
		return "", &NoCredentialError{OwnerID: ownerID}
	}
	return s.refresh(ctx, cred)
}

// refreshResponse is the token endpoint's exchange payload.
type refreshResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// refresh performs a single refresh exchange and persists the rotated token.
// There is no retry loop here; a second provider rejection is the caller's
// problem.
func (s *Store) refresh(ctx context.Context, cred *db.Credential) (string, error) {
	if cred.RefreshToken == "" {
		return "", &RefreshError{Message: "no refresh token stored"}
	}

	form := url.Values{
		"client_id":     {s.clientID},
		"client_secret": {s.clientSecret},
		"refresh_token": {cred.RefreshToken},
		"grant_type":    {"refresh_token"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &RefreshError{Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", &RefreshError{Message: "exchange request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &RefreshError{Message: "failed to read exchange response", Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &RefreshError{Message: fmt.Sprintf("exchange returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}

	var exchange refreshResponse
	if err := json.Unmarshal(body, &exchange); err != nil {
		return "", &RefreshError{Message: "failed to decode exchange response", Cause: err}
	}
	if exchange.AccessToken == "" {
		return "", &RefreshError{Message: "exchange response missing access token"}
	}

	expiresAt := s.now().Add(time.Duration(exchange.ExpiresIn) * time.Second)
	if err := s.creds.UpdateAccessToken(ctx, cred.OwnerID, exchange.AccessToken, expiresAt); err != nil {
		return "", &RefreshError{Message: "failed to persist rotated token", Cause: err}
	}

	return exchange.AccessToken, nil
}
