package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spendlens/guardrails/internal/logger"
)

// Recorder emits audit records to the structured log, mirrors them to
// the store when one is configured and notifies the real-time sink.
// Persistence failures are swallowed and logged: an audit write must
// never reverse or block the security decision already made.
type Recorder struct {
	store     Store
	notifier  Notifier
	logger    *logger.Logger
	opTimeout time.Duration
}

// NewRecorder creates a recorder. Both store and notifier may be nil.
func NewRecorder(store Store, notifier Notifier, opTimeout time.Duration, log *logger.Logger) *Recorder {
	if opTimeout <= 0 {
		opTimeout = 3 * time.Second
	}
	return &Recorder{
		store:     store,
		notifier:  notifier,
		logger:    log,
		opTimeout: opTimeout,
	}
}

// Record emits one audit entry.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	r.logger.Audit("Inspection audited",
		zap.String("request_id", entry.RequestID),
		zap.String("user_id", entry.UserID),
		zap.String("stage", entry.Stage),
		zap.String("decision", entry.Decision),
		zap.Float64("confidence", entry.Confidence),
		zap.Float64("score", entry.Score),
		zap.Strings("pattern_ids", entry.PatternIDs),
		zap.String("content_hash", entry.ContentHash),
		zap.Float64("elapsed_ms", entry.ElapsedMS))

	if r.store != nil {
		// Detached from request cancellation: an aborted caller may
		// abandon its inspection, but an already-issued audit write
		// completes or fails on its own.
		storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opTimeout)
		defer cancel()

		if err := r.store.InsertEntry(storeCtx, &entry); err != nil {
			r.logger.Error("Failed to persist audit entry",
				zap.String("request_id", entry.RequestID),
				zap.Error(err))
		}
	}

	if r.notifier != nil {
		r.notifier.AuditRecorded(entry)
	}
}

// RecordSecurityEvent creates a CRITICAL security event, persists it and
// raises an alert. The returned event always carries an id even when
// persistence failed.
func (r *Recorder) RecordSecurityEvent(ctx context.Context, event SecurityEvent) SecurityEvent {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Severity == "" {
		event.Severity = "CRITICAL"
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	r.logger.Security("Security event recorded",
		zap.String("event_id", event.ID),
		zap.String("kind", event.Kind),
		zap.String("severity", event.Severity),
		zap.String("user_id", event.UserID),
		zap.String("request_id", event.RequestID),
		zap.Strings("pii_types", event.PIITypes),
		zap.String("content_hash", event.ContentHash))

	if r.store != nil {
		storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opTimeout)
		defer cancel()

		if err := r.store.InsertSecurityEvent(storeCtx, &event); err != nil {
			r.logger.Error("Failed to persist security event",
				zap.String("event_id", event.ID),
				zap.Error(err))
		}
	}

	if r.notifier != nil {
		r.notifier.SecurityAlert(event)
	}

	return event
}
