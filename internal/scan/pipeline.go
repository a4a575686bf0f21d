// Package scan implements the mailbox ingestion pipeline: one cycle resolves
// a valid access token, lists candidate messages since the owner's cursor,
// and processes each message through fetch, dedup, classification and
// persistence.
package scan

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/jobtrail/internal/classify"
	"github.com/jonathan/jobtrail/internal/db"
	"github.com/jonathan/jobtrail/internal/mailbox"
)

// messageType tags ingested events with their provider.
const messageType = "gmail"

// defaultClassifyTimeout bounds one message's classification call.
const defaultClassifyTimeout = 30 * time.Second

// TokenProvider resolves access tokens for the mailbox provider.
type TokenProvider interface {
	GetValidAccessToken(ctx context.Context, ownerID uuid.UUID) (string, error)
	ForceRefresh(ctx context.Context, ownerID uuid.UUID) (string, error)
}

// Mailbox lists and fetches provider messages.
type Mailbox interface {
	Search(ctx context.Context, accessToken, query string, maxResults int) ([]mailbox.MessageRef, error)
	Fetch(ctx context.Context, accessToken, messageID string) (*mailbox.RawMessage, error)
}

// Classifier extracts a job signal from one email. Implementations never
// fail; they degrade to a zero-confidence verdict.
type Classifier interface {
	Classify(ctx context.Context, subject, body string) classify.Verdict
}

// Store is the persistence surface one scan cycle needs.
type Store interface {
	GetScanCursor(ctx context.Context, ownerID uuid.UUID) (*db.ScanCursor, error)
	SetScanCursor(ctx context.Context, ownerID uuid.UUID, lastScanAt time.Time) error
	MessageExists(ctx context.Context, ownerID uuid.UUID, providerMessageID string) (bool, error)
	InsertMessage(ctx context.Context, msg *db.IngestedMessage) (uuid.UUID, error)
	LinkMessageToEntry(ctx context.Context, messageID, entryID uuid.UUID) error
	InsertJobEntry(ctx context.Context, entry *db.JobEntry) (uuid.UUID, error)
}

// Result summarizes one scan cycle.
type Result struct {
	ProcessedCount  int `json:"processed_count"`
	JobRelatedCount int `json:"job_related_count"`
}

// Options configures a Pipeline.
type Options struct {
	// Now overrides the clock, for tests.
	Now func() time.Time
	// ClassifyTimeout bounds a single classification call.
	ClassifyTimeout time.Duration
}

// Pipeline runs scan cycles. Cycles for the same owner must be serialized by
// the caller (see Service); within a cycle all I/O is sequential.
type Pipeline struct {
	tokens          TokenProvider
	mail            Mailbox
	classifier      Classifier
	store           Store
	projector       *Projector
	now             func() time.Time
	classifyTimeout time.Duration
}

// NewPipeline creates a pipeline over the given collaborators.
func NewPipeline(tokens TokenProvider, mail Mailbox, classifier Classifier, store Store, opts *Options) *Pipeline {
	p := &Pipeline{
		tokens:          tokens,
		mail:            mail,
		classifier:      classifier,
		store:           store,
		projector:       NewProjector(store),
		now:             time.Now,
		classifyTimeout: defaultClassifyTimeout,
	}
	if opts != nil {
		if opts.Now != nil {
			p.now = opts.Now
		}
		if opts.ClassifyTimeout > 0 {
			p.classifyTimeout = opts.ClassifyTimeout
		}
	}
	return p
}

// Run executes one scan cycle for the owner.
//
// Token acquisition and the initial search are fatal for the cycle and leave
// the cursor untouched, so the next cycle retries the same window. Failures
// on individual messages are logged and skipped; their idempotency keys are
// never written, so they are retried on a future cycle. The cursor advances
// to the cycle start time whenever the message loop completes, even if some
// messages were skipped.
//
// maxResults caps the candidate list for this cycle; zero means the mailbox
// client's default.
func (p *Pipeline) Run(ctx context.Context, ownerID uuid.UUID, maxResults int) (Result, error) {
	var result Result
	cycleStart := p.now().UTC()

	accessToken, err := p.tokens.GetValidAccessToken(ctx, ownerID)
	if err != nil {
		return result, err
	}

	cursor, err := p.store.GetScanCursor(ctx, ownerID)
	if err != nil {
		return result, err
	}

	var after *time.Time
	if cursor != nil {
		after = &cursor.LastScanAt
	}
	query := mailbox.BuildQuery(after)

	refs, err := p.search(ctx, ownerID, accessToken, query, maxResults)
	if err != nil {
		return result, fmt.Errorf("message search failed: %w", err)
	}

	log.Printf("scan: owner=%s found %d candidate messages", ownerID, len(refs))

	for _, ref := range refs {
		// Coarse cancellation: stop before the cursor update so the
		// whole window is retried.
		if err := ctx.Err(); err != nil {
			return result, err
		}

		ingested, jobRelated := p.processMessage(ctx, ownerID, accessToken, ref)
		if ingested {
			result.ProcessedCount++
		}
		if jobRelated {
			result.JobRelatedCount++
		}
	}

	// Advance to the cycle start time, not completion time: a message that
	// arrives mid-cycle stays inside the next window.
	if err := p.store.SetScanCursor(ctx, ownerID, cycleStart); err != nil {
		log.Printf("scan: owner=%s failed to advance cursor: %v", ownerID, err)
	}

	log.Printf("scan: owner=%s processed=%d jobRelated=%d", ownerID, result.ProcessedCount, result.JobRelatedCount)
	return result, nil
}

// search lists candidates, forcing one token refresh and retrying once when
// the provider rejects a token that looked valid locally.
func (p *Pipeline) search(ctx context.Context, ownerID uuid.UUID, accessToken, query string, maxResults int) ([]mailbox.MessageRef, error) {
	refs, err := p.mail.Search(ctx, accessToken, query, maxResults)
	if err == nil || !mailbox.IsAuthError(err) {
		return refs, err
	}

	log.Printf("scan: owner=%s search unauthorized, forcing token refresh", ownerID)
	freshToken, refreshErr := p.tokens.ForceRefresh(ctx, ownerID)
	if refreshErr != nil {
		return nil, refreshErr
	}
	return p.mail.Search(ctx, freshToken, query, maxResults)
}

// processMessage runs one message through fetch → extract → dedup →
// classify → persist. Returns whether the message was newly ingested and
// whether it produced a job entry. All failures are contained here.
func (p *Pipeline) processMessage(ctx context.Context, ownerID uuid.UUID, accessToken string, ref mailbox.MessageRef) (ingested, jobRelated bool) {
	msg, err := p.fetch(ctx, ownerID, accessToken, ref.ID)
	if err != nil {
		log.Printf("scan: owner=%s message=%s fetch failed, skipping: %v", ownerID, ref.ID, err)
		return false, false
	}

	content := mailbox.ExtractContent(msg)

	exists, err := p.store.MessageExists(ctx, ownerID, msg.ID)
	if err != nil {
		log.Printf("scan: owner=%s message=%s dedup check failed, skipping: %v", ownerID, msg.ID, err)
		return false, false
	}
	if exists {
		return false, false
	}

	classifyCtx, cancel := context.WithTimeout(ctx, p.classifyTimeout)
	verdict := p.classifier.Classify(classifyCtx, content.Subject, content.Body)
	cancel()

	occurredAt := msg.InternalTime()
	if occurredAt.IsZero() {
		occurredAt = p.now().UTC()
	}

	messageID, err := p.store.InsertMessage(ctx, &db.IngestedMessage{
		OwnerID:           ownerID,
		ProviderMessageID: msg.ID,
		Subject:           content.Subject,
		RawText:           content.Body,
		Timestamp:         occurredAt,
		Type:              messageType,
		IsJobRelated:      verdict.Qualifies(),
	})
	if err != nil {
		log.Printf("scan: owner=%s message=%s persist failed, skipping: %v", ownerID, msg.ID, err)
		return false, false
	}

	entryID, created, err := p.projector.Project(ctx, ownerID, verdict, occurredAt)
	if err != nil {
		log.Printf("scan: owner=%s message=%s job entry creation failed: %v", ownerID, msg.ID, err)
		return true, false
	}
	if created {
		if err := p.store.LinkMessageToEntry(ctx, messageID, entryID); err != nil {
			log.Printf("scan: owner=%s message=%s failed to link entry: %v", ownerID, msg.ID, err)
		}
	}

	return true, created
}

// fetch retrieves one message, with the same refresh-once retry as search.
func (p *Pipeline) fetch(ctx context.Context, ownerID uuid.UUID, accessToken, messageID string) (*mailbox.RawMessage, error) {
	msg, err := p.mail.Fetch(ctx, accessToken, messageID)
	if err == nil || !mailbox.IsAuthError(err) {
		return msg, err
	}

	freshToken, refreshErr := p.tokens.ForceRefresh(ctx, ownerID)
	if refreshErr != nil {
		return nil, refreshErr
	}
	return p.mail.Fetch(ctx, freshToken, messageID)
}
