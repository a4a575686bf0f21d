package scan

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/jobtrail/internal/classify"
	"github.com/jonathan/jobtrail/internal/db"
	"github.com/jonathan/jobtrail/internal/mailbox"
)

// --- fakes ---

type fakeTokens struct {
	token      string
	err        error
	forceToken string
	forceErr   error
	getCalls   int
	forceCalls int
}

func (f *fakeTokens) GetValidAccessToken(_ context.Context, _ uuid.UUID) (string, error) {
	f.getCalls++
	return f.token, f.err
}

func (f *fakeTokens) ForceRefresh(_ context.Context, _ uuid.UUID) (string, error) {
	f.forceCalls++
	return f.forceToken, f.forceErr
}

type fakeMail struct {
	refs            []mailbox.MessageRef
	messages        map[string]*mailbox.RawMessage
	searchAuthFails int
	fetchAuthFails  map[string]int
	fetchErr        map[string]error
	searchCalls     int
	searchTokens    []string
	searchMax       []int
	fetchTokens     []string
}

func (f *fakeMail) Search(_ context.Context, accessToken, _ string, maxResults int) ([]mailbox.MessageRef, error) {
	f.searchCalls++
	f.searchTokens = append(f.searchTokens, accessToken)
	f.searchMax = append(f.searchMax, maxResults)
	if f.searchAuthFails > 0 {
		f.searchAuthFails--
		return nil, &mailbox.Error{Op: "search", StatusCode: 401, Message: "unauthorized"}
	}
	return f.refs, nil
}

func (f *fakeMail) Fetch(_ context.Context, accessToken, messageID string) (*mailbox.RawMessage, error) {
	f.fetchTokens = append(f.fetchTokens, accessToken)
	if n := f.fetchAuthFails[messageID]; n > 0 {
		f.fetchAuthFails[messageID] = n - 1
		return nil, &mailbox.Error{Op: "fetch", StatusCode: 401, Message: "unauthorized"}
	}
	if err := f.fetchErr[messageID]; err != nil {
		return nil, err
	}
	msg, ok := f.messages[messageID]
	if !ok {
		return nil, &mailbox.Error{Op: "fetch", StatusCode: 404, Message: "not found"}
	}
	return msg, nil
}

type fakeClassifier struct {
	verdicts map[string]classify.Verdict // keyed by subject
}

func (f *fakeClassifier) Classify(_ context.Context, subject, _ string) classify.Verdict {
	if v, ok := f.verdicts[subject]; ok {
		return v
	}
	return classify.Degraded()
}

type memStore struct {
	cursor       *db.ScanCursor
	messages     map[string]*db.IngestedMessage
	entries      map[uuid.UUID]*db.JobEntry
	insertMsgErr error
	setCursorErr error
	cursorSets   []time.Time
}

func newMemStore() *memStore {
	return &memStore{
		messages: make(map[string]*db.IngestedMessage),
		entries:  make(map[uuid.UUID]*db.JobEntry),
	}
}

func (s *memStore) GetScanCursor(_ context.Context, _ uuid.UUID) (*db.ScanCursor, error) {
	return s.cursor, nil
}

func (s *memStore) SetScanCursor(_ context.Context, ownerID uuid.UUID, lastScanAt time.Time) error {
	if s.setCursorErr != nil {
		return s.setCursorErr
	}
	s.cursorSets = append(s.cursorSets, lastScanAt)
	s.cursor = &db.ScanCursor{OwnerID: ownerID, LastScanAt: lastScanAt}
	return nil
}

func (s *memStore) MessageExists(_ context.Context, _ uuid.UUID, providerMessageID string) (bool, error) {
	_, ok := s.messages[providerMessageID]
	return ok, nil
}

func (s *memStore) InsertMessage(_ context.Context, msg *db.IngestedMessage) (uuid.UUID, error) {
	if s.insertMsgErr != nil {
		return uuid.Nil, s.insertMsgErr
	}
	stored := *msg
	stored.ID = uuid.New()
	s.messages[msg.ProviderMessageID] = &stored
	return stored.ID, nil
}

func (s *memStore) LinkMessageToEntry(_ context.Context, messageID, entryID uuid.UUID) error {
	for _, msg := range s.messages {
		if msg.ID == messageID {
			id := entryID
			msg.LinkedEntryID = &id
			return nil
		}
	}
	return fmt.Errorf("message not found")
}

func (s *memStore) InsertJobEntry(_ context.Context, entry *db.JobEntry) (uuid.UUID, error) {
	stored := *entry
	stored.ID = uuid.New()
	s.entries[stored.ID] = &stored
	return stored.ID, nil
}

func rawMessage(id, subject, body string, at time.Time) *mailbox.RawMessage {
	return &mailbox.RawMessage{
		ID:           id,
		ThreadID:     "t-" + id,
		InternalDate: strconv.FormatInt(at.UnixMilli(), 10),
		Payload: &mailbox.Payload{
			Headers: []mailbox.Header{{Name: "Subject", Value: subject}},
			Body:    &mailbox.Body{Data: base64.RawURLEncoding.EncodeToString([]byte(body))},
		},
	}
}

type env struct {
	ownerID    uuid.UUID
	tokens     *fakeTokens
	mail       *fakeMail
	classifier *fakeClassifier
	store      *memStore
	now        time.Time
	pipeline   *Pipeline
}

func newEnv() *env {
	e := &env{
		ownerID:    uuid.New(),
		tokens:     &fakeTokens{token: "tok"},
		mail:       &fakeMail{messages: map[string]*mailbox.RawMessage{}, fetchAuthFails: map[string]int{}, fetchErr: map[string]error{}},
		classifier: &fakeClassifier{verdicts: map[string]classify.Verdict{}},
		store:      newMemStore(),
		now:        time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	e.pipeline = NewPipeline(e.tokens, e.mail, e.classifier, e.store, &Options{Now: func() time.Time { return e.now }})
	return e
}

func (e *env) addMessage(id, subject, body string, at time.Time, verdict classify.Verdict) {
	e.mail.refs = append(e.mail.refs, mailbox.MessageRef{ID: id})
	e.mail.messages[id] = rawMessage(id, subject, body, at)
	e.classifier.verdicts[subject] = verdict
}

// --- tests ---

func TestRun_EndToEnd_JobRelatedMessage(t *testing.T) {
	e := newEnv()
	msgTime := time.Date(2025, 5, 30, 9, 0, 0, 0, time.UTC)
	e.addMessage("m1", "Your application to Acme Corp", "We'd like to interview you.", msgTime, classify.Verdict{
		IsJobRelated: true,
		Company:      "Acme Corp",
		Position:     "Backend Engineer",
		Status:       "interview",
		Confidence:   0.92,
	})

	result, err := e.pipeline.Run(context.Background(), e.ownerID, 0)
	require.NoError(t, err)

	assert.Equal(t, Result{ProcessedCount: 1, JobRelatedCount: 1}, result)

	msg := e.store.messages["m1"]
	require.NotNil(t, msg)
	assert.True(t, msg.IsJobRelated)
	assert.Equal(t, "Your application to Acme Corp", msg.Subject)
	assert.Equal(t, msgTime, msg.Timestamp)
	require.NotNil(t, msg.LinkedEntryID)

	entry := e.store.entries[*msg.LinkedEntryID]
	require.NotNil(t, entry)
	assert.Equal(t, "Acme Corp", entry.Company)
	assert.Equal(t, "Backend Engineer", entry.Position)
	assert.Equal(t, "interview", entry.Status)
	assert.Equal(t, AutoImportSource, entry.Source)
	assert.Equal(t, msgTime, entry.AppliedAt)
}

func TestRun_AlreadyIngestedMessageIsSkipped(t *testing.T) {
	e := newEnv()
	e.addMessage("m1", "Your application to Acme Corp", "body", e.now, classify.Verdict{
		IsJobRelated: true, Company: "Acme Corp", Position: "Backend Engineer", Confidence: 0.92,
	})

	first, err := e.pipeline.Run(context.Background(), e.ownerID, 0)
	require.NoError(t, err)
	assert.Equal(t, Result{ProcessedCount: 1, JobRelatedCount: 1}, first)

	// Unchanged mailbox, second cycle: dedup on the provider message ID holds.
	second, err := e.pipeline.Run(context.Background(), e.ownerID, 0)
	require.NoError(t, err)
	assert.Equal(t, Result{}, second)
	assert.Len(t, e.store.messages, 1)
	assert.Len(t, e.store.entries, 1)
}

func TestRun_ConfidenceGating(t *testing.T) {
	tests := []struct {
		name       string
		verdict    classify.Verdict
		wantEntry  bool
		wantRelate bool
	}{
		{
			name:       "exactly at threshold does not qualify",
			verdict:    classify.Verdict{IsJobRelated: true, Company: "Acme", Position: "Eng", Confidence: 0.7},
			wantEntry:  false,
			wantRelate: false,
		},
		{
			name:       "just above threshold qualifies",
			verdict:    classify.Verdict{IsJobRelated: true, Company: "Acme", Position: "Eng", Confidence: 0.70001},
			wantEntry:  true,
			wantRelate: true,
		},
		{
			name:       "not job related despite fields",
			verdict:    classify.Verdict{IsJobRelated: false, Company: "Acme", Position: "Eng", Confidence: 0.99},
			wantEntry:  false,
			wantRelate: false,
		},
		{
			name:       "qualifying but missing position",
			verdict:    classify.Verdict{IsJobRelated: true, Company: "Acme", Confidence: 0.9},
			wantEntry:  false,
			wantRelate: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv()
			e.addMessage("m1", "subject", "body", e.now, tt.verdict)

			result, err := e.pipeline.Run(context.Background(), e.ownerID, 0)
			require.NoError(t, err)

			assert.Equal(t, 1, result.ProcessedCount)
			if tt.wantEntry {
				assert.Equal(t, 1, result.JobRelatedCount)
				assert.Len(t, e.store.entries, 1)
			} else {
				assert.Zero(t, result.JobRelatedCount)
				assert.Empty(t, e.store.entries)
			}
			assert.Equal(t, tt.wantRelate, e.store.messages["m1"].IsJobRelated)
		})
	}
}

func TestRun_DegradedClassificationStillPersistsMessage(t *testing.T) {
	e := newEnv()
	e.mail.refs = []mailbox.MessageRef{{ID: "m1"}}
	e.mail.messages["m1"] = rawMessage("m1", "unclassifiable", "body", e.now)
	// No verdict registered: the classifier degrades.

	result, err := e.pipeline.Run(context.Background(), e.ownerID, 0)
	require.NoError(t, err)

	assert.Equal(t, Result{ProcessedCount: 1, JobRelatedCount: 0}, result)
	msg := e.store.messages["m1"]
	require.NotNil(t, msg)
	assert.False(t, msg.IsJobRelated)
}

func TestRun_TokenFailureLeavesCursorUntouched(t *testing.T) {
	e := newEnv()
	e.tokens.err = errors.New("refresh token revoked")
	previous := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	e.store.cursor = &db.ScanCursor{OwnerID: e.ownerID, LastScanAt: previous}

	_, err := e.pipeline.Run(context.Background(), e.ownerID, 0)
	require.Error(t, err)

	assert.Empty(t, e.store.cursorSets)
	assert.Equal(t, previous, e.store.cursor.LastScanAt)
}

func TestRun_CursorAdvancesToCycleStartDespiteMessageFailures(t *testing.T) {
	e := newEnv()
	e.addMessage("ok", "fine", "body", e.now, classify.Verdict{})
	e.mail.refs = append(e.mail.refs, mailbox.MessageRef{ID: "broken"})
	e.mail.fetchErr["broken"] = &mailbox.Error{Op: "fetch", StatusCode: 500, Message: "boom"}

	result, err := e.pipeline.Run(context.Background(), e.ownerID, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, result.ProcessedCount)
	require.Len(t, e.store.cursorSets, 1)
	assert.Equal(t, e.now, e.store.cursorSets[0])
	// The failed message's idempotency key was never written, so a future
	// cycle retries it.
	_, exists := e.store.messages["broken"]
	assert.False(t, exists)
}

func TestRun_CursorMonotonic(t *testing.T) {
	e := newEnv()
	previous := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	e.store.cursor = &db.ScanCursor{OwnerID: e.ownerID, LastScanAt: previous}

	_, err := e.pipeline.Run(context.Background(), e.ownerID, 0)
	require.NoError(t, err)

	assert.True(t, !e.store.cursor.LastScanAt.Before(previous))
	assert.Equal(t, e.now, e.store.cursor.LastScanAt)
}

func TestRun_SearchUnauthorizedForcesOneRefreshAndRetries(t *testing.T) {
	e := newEnv()
	e.tokens.forceToken = "fresh"
	e.mail.searchAuthFails = 1
	e.addMessage("m1", "s", "b", e.now, classify.Verdict{})

	result, err := e.pipeline.Run(context.Background(), e.ownerID, 0)
	require.NoError(t, err)

	assert.Equal(t, 1, result.ProcessedCount)
	assert.Equal(t, 1, e.tokens.forceCalls)
	assert.Equal(t, []string{"tok", "fresh"}, e.mail.searchTokens)
}

func TestRun_SearchUnauthorizedTwiceAbortsCycle(t *testing.T) {
	e := newEnv()
	e.tokens.forceToken = "fresh"
	e.mail.searchAuthFails = 2
	e.store.cursor = &db.ScanCursor{OwnerID: e.ownerID, LastScanAt: time.Unix(0, 0)}

	_, err := e.pipeline.Run(context.Background(), e.ownerID, 0)
	require.Error(t, err)

	assert.Equal(t, 1, e.tokens.forceCalls)
	assert.Empty(t, e.store.cursorSets)
}

func TestRun_FetchUnauthorizedRetriesThenSkips(t *testing.T) {
	e := newEnv()
	e.tokens.forceToken = "fresh"
	e.addMessage("m1", "s", "b", e.now, classify.Verdict{})
	e.mail.fetchAuthFails["m1"] = 2 // fails on the retry too

	result, err := e.pipeline.Run(context.Background(), e.ownerID, 0)
	require.NoError(t, err)

	// Skipped, not fatal; the cycle completes and the cursor advances.
	assert.Equal(t, Result{}, result)
	assert.Equal(t, 1, e.tokens.forceCalls)
	assert.Len(t, e.store.cursorSets, 1)
}

func TestRun_PersistFailureSkipsMessage(t *testing.T) {
	e := newEnv()
	e.addMessage("m1", "s", "b", e.now, classify.Verdict{IsJobRelated: true, Company: "A", Position: "P", Confidence: 0.9})
	e.store.insertMsgErr = errors.New("connection reset")

	result, err := e.pipeline.Run(context.Background(), e.ownerID, 0)
	require.NoError(t, err)

	assert.Equal(t, Result{}, result)
	assert.Empty(t, e.store.entries)
	assert.Len(t, e.store.cursorSets, 1)
}

func TestRun_SearchWindowFromCursor(t *testing.T) {
	e := newEnv()
	searchQueries := []string{}
	base := e.mail
	e.pipeline = NewPipeline(e.tokens, mailRecorder{inner: base, queries: &searchQueries}, e.classifier, e.store, &Options{Now: func() time.Time { return e.now }})

	// No cursor: unbounded query.
	_, err := e.pipeline.Run(context.Background(), e.ownerID, 0)
	require.NoError(t, err)
	require.Len(t, searchQueries, 1)
	assert.Equal(t, mailbox.RelevanceQuery, searchQueries[0])

	// Cursor present: bounded by its epoch seconds.
	_, err = e.pipeline.Run(context.Background(), e.ownerID, 0)
	require.NoError(t, err)
	require.Len(t, searchQueries, 2)
	assert.Equal(t, fmt.Sprintf("%s after:%d", mailbox.RelevanceQuery, e.now.Unix()), searchQueries[1])
}

// mailRecorder records search queries while delegating to the fake.
type mailRecorder struct {
	inner   *fakeMail
	queries *[]string
}

func (m mailRecorder) Search(ctx context.Context, accessToken, query string, maxResults int) ([]mailbox.MessageRef, error) {
	*m.queries = append(*m.queries, query)
	return m.inner.Search(ctx, accessToken, query, maxResults)
}

func (m mailRecorder) Fetch(ctx context.Context, accessToken, messageID string) (*mailbox.RawMessage, error) {
	return m.inner.Fetch(ctx, accessToken, messageID)
}

func TestRun_MaxResultsPassedToSearch(t *testing.T) {
	e := newEnv()

	_, err := e.pipeline.Run(context.Background(), e.ownerID, 25)
	require.NoError(t, err)
	assert.Equal(t, []int{25}, e.mail.searchMax)
}

func TestRun_CancelledContextAbortsBeforeCursorUpdate(t *testing.T) {
	e := newEnv()
	e.addMessage("m1", "s", "b", e.now, classify.Verdict{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.pipeline.Run(ctx, e.ownerID, 0)
	require.Error(t, err)
	assert.Empty(t, e.store.cursorSets)
}
