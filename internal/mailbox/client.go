// Package mailbox wraps the remote mail provider's search and fetch
// operations behind a stable interface, and normalizes raw messages into
// plain subject/body text.
package mailbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultBaseURL is the Gmail REST API root.
const DefaultBaseURL = "https://gmail.googleapis.com/gmail/v1"

// DefaultTimeout is the HTTP request timeout for provider calls.
const DefaultTimeout = 30 * time.Second

// DefaultMaxResults caps how many references one search returns. The pipeline
// never paginates within a cycle; high volume drains across cycles.
const DefaultMaxResults = 50

// RelevanceQuery is the fixed job-application vocabulary filter every scan
// search starts from.
const RelevanceQuery = "in:inbox (job OR application OR interview OR offer OR hiring OR position OR career OR opportunity)"

// Error represents a provider failure with enough context for the caller to
// decide between a token refresh, a skip, and a cycle abort.
type Error struct {
	Op         string
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("mailbox %s error: %s: %v", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("mailbox %s error: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsAuthError reports whether the provider rejected the access token. The
// caller is expected to force exactly one token refresh and retry once.
func IsAuthError(err error) bool {
	var merr *Error
	return errors.As(err, &merr) && merr.StatusCode == http.StatusUnauthorized
}

// IsNotFound reports whether the referenced message no longer exists.
func IsNotFound(err error) bool {
	var merr *Error
	return errors.As(err, &merr) && merr.StatusCode == http.StatusNotFound
}

// Options configures the mailbox client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	MaxResults int
}

// Client talks to the provider's REST message API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxResults int
}

// NewClient creates a mailbox client. A nil opts uses the defaults.
func NewClient(opts *Options) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		maxResults: DefaultMaxResults,
	}
	if opts == nil {
		return c
	}
	if opts.BaseURL != "" {
		c.baseURL = opts.BaseURL
	}
	if opts.Timeout > 0 {
		c.httpClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.MaxResults > 0 && opts.MaxResults <= DefaultMaxResults {
		c.maxResults = opts.MaxResults
	}
	return c
}

// BuildQuery combines the fixed relevance filter with an optional lower time
// bound in the provider's query syntax.
func BuildQuery(after *time.Time) string {
	if after == nil {
		return RelevanceQuery
	}
	return fmt.Sprintf("%s after:%d", RelevanceQuery, after.Unix())
}

// Search lists candidate message references matching the query. maxResults
// overrides the client default for this call; values outside [1, 50] fall
// back to the default.
func (c *Client) Search(ctx context.Context, accessToken, query string, maxResults int) ([]MessageRef, error) {
	if maxResults < 1 || maxResults > DefaultMaxResults {
		maxResults = c.maxResults
	}
	endpoint := fmt.Sprintf("%s/users/me/messages?q=%s&maxResults=%d",
		c.baseURL, url.QueryEscape(query), maxResults)

	body, err := c.get(ctx, "search", endpoint, accessToken)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &Error{Op: "search", Message: "failed to decode message list", Cause: err}
	}
	return resp.Messages, nil
}

// Fetch retrieves a full message by its opaque identifier.
func (c *Client) Fetch(ctx context.Context, accessToken, messageID string) (*RawMessage, error) {
	endpoint := fmt.Sprintf("%s/users/me/messages/%s?format=full", c.baseURL, url.PathEscape(messageID))

	body, err := c.get(ctx, "fetch", endpoint, accessToken)
	if err != nil {
		return nil, err
	}

	var msg RawMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, &Error{Op: "fetch", Message: "failed to decode message", Cause: err}
	}
	return &msg, nil
}

// get performs an authenticated GET and maps non-2xx statuses to typed errors.
func (c *Client) get(ctx context.Context, op, endpoint, accessToken string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &Error{Op: op, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Op: op, Message: "request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Op: op, StatusCode: resp.StatusCode, Message: "failed to read response", Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("provider returned status %d: %s", resp.StatusCode, truncate(string(body), 200)),
		}
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
