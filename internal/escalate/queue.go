package escalate

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spendlens/guardrails/internal/anomaly"
	"github.com/spendlens/guardrails/internal/logger"
)

// Request carries everything the queue needs to create a review item.
// The raw input text is deliberately absent; only its hash travels here.
type Request struct {
	UserID     string
	SessionID  string
	RequestID  string
	Endpoint   string
	InputHash  string
	Score      float64
	Factors    anomaly.Factors
	PatternIDs []string
}

// Notifier receives newly created records for real-time delivery. Must
// be non-blocking.
type Notifier interface {
	EscalationCreated(record *Record)
}

// Queue manages human-review items for scores in the ambiguous band.
type Queue struct {
	store     Store
	notifier  Notifier
	logger    *logger.Logger
	opTimeout time.Duration
}

// NewQueue creates an escalation queue over the given store. The
// notifier may be nil.
func NewQueue(store Store, notifier Notifier, opTimeout time.Duration, log *logger.Logger) *Queue {
	if opTimeout <= 0 {
		opTimeout = 3 * time.Second
	}
	return &Queue{store: store, notifier: notifier, logger: log, opTimeout: opTimeout}
}

// Enqueue creates a PENDING review record. When persistence fails the
// record is returned with a synthesized tracking id and Ephemeral set:
// an audit failure must never become an availability failure and never
// downgrades the security decision already made.
func (q *Queue) Enqueue(ctx context.Context, req Request) *Record {
	record := &Record{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		SessionID:  req.SessionID,
		RequestID:  req.RequestID,
		Endpoint:   req.Endpoint,
		InputHash:  req.InputHash,
		Score:      req.Score,
		Factors:    req.Factors,
		PatternIDs: req.PatternIDs,
		Severity:   SeverityForScore(req.Score),
		Status:     StatusPending,
		CreatedAt:  time.Now().UTC(),
	}

	if q.store == nil {
		record.Ephemeral = true
		q.logger.Warn("No escalation store configured, tracking id is ephemeral",
			zap.String("tracking_id", record.ID))
		if q.notifier != nil {
			q.notifier.EscalationCreated(record)
		}
		return record
	}

	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), q.opTimeout)
	defer cancel()

	if err := q.store.Create(storeCtx, record); err != nil {
		record.Ephemeral = true
		q.logger.Error("Failed to persist escalation record, tracking id is ephemeral",
			zap.String("tracking_id", record.ID),
			zap.String("severity", string(record.Severity)),
			zap.Error(err))
	} else {
		q.logger.Security("Escalation created",
			zap.String("id", record.ID),
			zap.String("severity", string(record.Severity)),
			zap.Float64("score", record.Score),
			zap.String("input_hash", record.InputHash))
	}

	if q.notifier != nil {
		q.notifier.EscalationCreated(record)
	}

	return record
}

// ListPending returns pending records, highest severity first, oldest
// first within a severity.
func (q *Queue) ListPending(ctx context.Context, limit int) ([]*Record, error) {
	if q.store == nil {
		return nil, ErrNoStore
	}
	ctx, cancel := context.WithTimeout(ctx, q.opTimeout)
	defer cancel()
	return q.store.ListPending(ctx, limit)
}

// Get fetches a record by id.
func (q *Queue) Get(ctx context.Context, id string) (*Record, error) {
	if q.store == nil {
		return nil, ErrNoStore
	}
	ctx, cancel := context.WithTimeout(ctx, q.opTimeout)
	defer cancel()
	return q.store.Get(ctx, id)
}

// Resolve records a reviewer's decision. A record resolves exactly once.
func (q *Queue) Resolve(ctx context.Context, id string, resolution Resolution, reviewer string) (*Record, error) {
	if !ValidResolution(resolution) {
		return nil, ErrInvalidResolution
	}
	if q.store == nil {
		return nil, ErrNoStore
	}
	ctx, cancel := context.WithTimeout(ctx, q.opTimeout)
	defer cancel()
	return q.store.Resolve(ctx, id, resolution, reviewer)
}

// Stats aggregates queue contents by status and severity.
func (q *Queue) Stats(ctx context.Context) (*Stats, error) {
	if q.store == nil {
		return nil, ErrNoStore
	}
	ctx, cancel := context.WithTimeout(ctx, q.opTimeout)
	defer cancel()
	return q.store.Stats(ctx)
}
