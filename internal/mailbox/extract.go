package mailbox

import (
	"encoding/base64"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Content is the normalized plain-text view of a message.
type Content struct {
	Subject string
	Body    string
}

// ExtractContent normalizes a raw message into subject and body text.
// The body is taken from the first available of: the flat body payload, the
// first text/plain part in a depth-first scan, the first text/html part
// (stripped to text), or the provider snippet. Decoding failures degrade to
// an empty body so classification still runs on the subject alone.
func ExtractContent(msg *RawMessage) Content {
	content := Content{}
	if msg == nil {
		return content
	}
	content.Subject = headerValue(msg.Payload, "Subject")
	content.Body = extractBody(msg.Payload, msg.Snippet)
	return content
}

// headerValue finds a header by name, case-insensitively.
func headerValue(p *Payload, name string) string {
	if p == nil {
		return ""
	}
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func extractBody(p *Payload, snippet string) string {
	if p == nil {
		return snippet
	}

	if p.Body != nil && p.Body.Data != "" {
		return decodeBase64URL(p.Body.Data)
	}

	if part := findPart(p.Parts, "text/plain"); part != nil {
		return decodeBase64URL(part.Body.Data)
	}

	if part := findPart(p.Parts, "text/html"); part != nil {
		return htmlToText(decodeBase64URL(part.Body.Data))
	}

	return snippet
}

// findPart returns the first part with the given MIME type in depth-first
// order, descending into multipart containers.
func findPart(parts []Payload, mimeType string) *Payload {
	for i := range parts {
		part := &parts[i]
		if strings.EqualFold(part.MimeType, mimeType) && part.Body != nil && part.Body.Data != "" {
			return part
		}
		if nested := findPart(part.Parts, mimeType); nested != nil {
			return nested
		}
	}
	return nil
}

// decodeBase64URL decodes the provider's URL-safe base64 content.
// Returns an empty string on failure instead of erroring the message.
func decodeBase64URL(data string) string {
	if decoded, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(decoded)
	}
	// Some payloads arrive padded.
	if decoded, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(decoded)
	}
	return ""
}

// htmlToText strips markup from an HTML part, keeping its visible text.
func htmlToText(html string) string {
	if html == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script, style").Remove()
	return strings.TrimSpace(doc.Text())
}
