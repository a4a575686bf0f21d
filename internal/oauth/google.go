// Package oauth implements the Google consent flow that connects an owner's
// mailbox: generating the consent URL and exchanging the callback code for
// tokens.
package oauth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// GmailReadonlyScope is the only scope the pipeline needs.
const GmailReadonlyScope = "https://www.googleapis.com/auth/gmail.readonly"

// CredentialWriter persists the tokens obtained from a grant.
type CredentialWriter interface {
	UpsertCredential(ctx context.Context, ownerID uuid.UUID, accessToken, refreshToken string, expiresAt *time.Time) error
}

// Connector drives the authorization-code flow for one OAuth client.
type Connector struct {
	config oauth2.Config
	creds  CredentialWriter
}

// NewConnector creates a connector for the given Google OAuth client.
func NewConnector(clientID, clientSecret, redirectURL string, creds CredentialWriter) *Connector {
	return &Connector{
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     endpoints.Google,
			RedirectURL:  redirectURL,
			Scopes:       []string{GmailReadonlyScope},
		},
		creds: creds,
	}
}

// AuthURL returns the consent URL for an owner. The owner ID travels in the
// state parameter; offline access with forced consent guarantees a refresh
// token on every grant.
func (c *Connector) AuthURL(ownerID uuid.UUID) string {
	return c.config.AuthCodeURL(
		ownerID.String(),
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// HandleCallback exchanges the authorization code and stores the credential
// for the owner carried in state. Returns the owner ID on success.
func (c *Connector) HandleCallback(ctx context.Context, code, state string) (uuid.UUID, error) {
	ownerID, err := uuid.Parse(state)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid state parameter: %w", err)
	}
	if code == "" {
		return uuid.Nil, fmt.Errorf("missing authorization code")
	}

	tok, err := c.config.Exchange(ctx, code)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	var expiresAt *time.Time
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry.UTC()
		expiresAt = &expiry
	}

	if err := c.creds.UpsertCredential(ctx, ownerID, tok.AccessToken, tok.RefreshToken, expiresAt); err != nil {
		return uuid.Nil, fmt.Errorf("failed to store credential: %w", err)
	}

	return ownerID, nil
}
