package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spendlens/guardrails/internal/logger"
)

type capturingStore struct {
	entries []*Entry
	events  []*SecurityEvent
	err     error
}

func (s *capturingStore) InsertEntry(ctx context.Context, entry *Entry) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *capturingStore) InsertSecurityEvent(ctx context.Context, event *SecurityEvent) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

type capturingNotifier struct {
	entries []Entry
	events  []SecurityEvent
}

func (n *capturingNotifier) AuditRecorded(entry Entry) {
	n.entries = append(n.entries, entry)
}

func (n *capturingNotifier) SecurityAlert(event SecurityEvent) {
	n.events = append(n.events, event)
}

func TestHashContent(t *testing.T) {
	hash := HashContent("hello")
	assert.Len(t, hash, 64)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", hash)
	assert.NotEqual(t, hash, HashContent("hello "))
	assert.Equal(t, HashContent(""), HashContent(""))
}

func TestRecordPersistsAndNotifies(t *testing.T) {
	store := &capturingStore{}
	notifier := &capturingNotifier{}
	r := NewRecorder(store, notifier, time.Second, logger.NewNop())

	r.Record(context.Background(), Entry{
		RequestID:   "req-1",
		UserID:      "u-100",
		Stage:       "input",
		Decision:    "ALLOW",
		ContentHash: HashContent("hi"),
	})

	require.Len(t, store.entries, 1)
	assert.Equal(t, "req-1", store.entries[0].RequestID)
	assert.False(t, store.entries[0].CreatedAt.IsZero())

	require.Len(t, notifier.entries, 1)
	assert.Equal(t, "req-1", notifier.entries[0].RequestID)
}

func TestRecordSurvivesStoreFailure(t *testing.T) {
	store := &capturingStore{err: errors.New("insert failed")}
	notifier := &capturingNotifier{}
	r := NewRecorder(store, notifier, time.Second, logger.NewNop())

	// Must not panic or propagate; the notifier still fires.
	r.Record(context.Background(), Entry{RequestID: "req-2", Decision: "BLOCK"})
	assert.Len(t, notifier.entries, 1)
}

func TestRecordWithoutStore(t *testing.T) {
	r := NewRecorder(nil, nil, time.Second, logger.NewNop())
	r.Record(context.Background(), Entry{RequestID: "req-3", Decision: "ALLOW"})
}

func TestRecordSecurityEvent(t *testing.T) {
	store := &capturingStore{}
	notifier := &capturingNotifier{}
	r := NewRecorder(store, notifier, time.Second, logger.NewNop())

	event := r.RecordSecurityEvent(context.Background(), SecurityEvent{
		Kind:      "cross_user_pii",
		UserID:    "u-100",
		RequestID: "req-4",
		PIITypes:  []string{"EMAIL"},
	})

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "CRITICAL", event.Severity)
	assert.False(t, event.CreatedAt.IsZero())

	require.Len(t, store.events, 1)
	assert.Equal(t, event.ID, store.events[0].ID)
	require.Len(t, notifier.events, 1)
	assert.Equal(t, event.ID, notifier.events[0].ID)
}

func TestRecordSecurityEventIDSurvivesFailure(t *testing.T) {
	r := NewRecorder(&capturingStore{err: errors.New("down")}, nil, time.Second, logger.NewNop())

	event := r.RecordSecurityEvent(context.Background(), SecurityEvent{Kind: "cross_user_pii"})
	assert.NotEmpty(t, event.ID)
}
