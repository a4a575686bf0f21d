package mailbox

import (
	"strconv"
	"time"
)

// MessageRef is an opaque reference returned by a mailbox search.
type MessageRef struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}

// searchResponse is the provider's message list payload.
type searchResponse struct {
	Messages           []MessageRef `json:"messages"`
	ResultSizeEstimate int          `json:"resultSizeEstimate"`
}

// Header is a single message header.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Body holds base64url-encoded message content.
type Body struct {
	Data string `json:"data"`
	Size int    `json:"size"`
}

// Payload is the (possibly nested) MIME structure of a message.
type Payload struct {
	MimeType string    `json:"mimeType"`
	Headers  []Header  `json:"headers"`
	Body     *Body     `json:"body,omitempty"`
	Parts    []Payload `json:"parts,omitempty"`
}

// RawMessage is a full message as fetched from the provider.
type RawMessage struct {
	ID           string   `json:"id"`
	ThreadID     string   `json:"threadId"`
	Snippet      string   `json:"snippet"`
	Payload      *Payload `json:"payload"`
	InternalDate string   `json:"internalDate"` // epoch milliseconds, as a string
}

// InternalTime parses the provider-assigned internal timestamp.
// Returns the zero time when the field is missing or malformed.
func (m *RawMessage) InternalTime() time.Time {
	if m.InternalDate == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(m.InternalDate, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
