// Package classify turns an email's subject and body into a structured
// job-application signal using LLM extraction.
package classify

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/jonathan/jobtrail/internal/llm"
)

// ConfidenceThreshold is the cutoff above which an extraction is trusted
// enough to create a job entry. The comparison is strictly greater-than so
// that downstream side effects stay deterministic and auditable per message.
const ConfidenceThreshold = 0.7

// Verdict is the structured result of classifying one email.
type Verdict struct {
	IsJobRelated bool    `json:"isJobRelated"`
	Company      string  `json:"company,omitempty"`
	Position     string  `json:"position,omitempty"`
	Status       string  `json:"status,omitempty"`
	Portal       string  `json:"portal,omitempty"`
	Confidence   float64 `json:"confidence"`
}

// Qualifies reports whether the verdict clears the confidence gate. It gates
// both the stored is_job_related flag and job entry creation.
func (v Verdict) Qualifies() bool {
	return v.IsJobRelated && v.Confidence > ConfidenceThreshold
}

// Degraded is the verdict used when the extraction service is unreachable or
// returns an unusable payload. Classification failure is never fatal: the
// message is still ingested, just as not job-related.
func Degraded() Verdict {
	return Verdict{IsJobRelated: false, Confidence: 0}
}

// Classifier classifies emails through an LLM client.
type Classifier struct {
	client llm.Client
}

// New creates a Classifier backed by the given LLM client.
func New(client llm.Client) *Classifier {
	return &Classifier{client: client}
}

// Classify extracts a job signal from the email. It never returns an error;
// any failure degrades to a zero-confidence verdict.
func (c *Classifier) Classify(ctx context.Context, subject, body string) Verdict {
	prompt := buildPrompt(subject, body)

	responseText, err := c.client.GenerateJSON(ctx, prompt)
	if err != nil {
		log.Printf("classify: extraction service error: %v", err)
		return Degraded()
	}

	verdict, err := parseVerdict(responseText)
	if err != nil {
		log.Printf("classify: unusable extraction response: %v", err)
		return Degraded()
	}

	return verdict
}

// parseVerdict validates and decodes the raw model response.
func parseVerdict(responseText string) (Verdict, error) {
	cleaned := llm.CleanJSONBlock(responseText)

	if err := validateVerdictJSON(cleaned); err != nil {
		return Verdict{}, err
	}

	var verdict Verdict
	if err := json.Unmarshal([]byte(cleaned), &verdict); err != nil {
		return Verdict{}, err
	}

	verdict.Status = normalizeStatus(verdict.Status)
	verdict.Company = strings.TrimSpace(verdict.Company)
	verdict.Position = strings.TrimSpace(verdict.Position)
	verdict.Portal = strings.TrimSpace(verdict.Portal)
	return verdict, nil
}

var knownStatuses = map[string]bool{
	"applied":   true,
	"interview": true,
	"offer":     true,
	"rejected":  true,
	"withdrawn": true,
}

// normalizeStatus maps the model's status to the canonical set; anything
// unrecognized is dropped so the projector applies its default.
func normalizeStatus(status string) string {
	status = strings.ToLower(strings.TrimSpace(status))
	if knownStatuses[status] {
		return status
	}
	return ""
}
