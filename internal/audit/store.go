package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/spendlens/guardrails/internal/logger"
)

// Store persists audit entries and security events.
type Store interface {
	InsertEntry(ctx context.Context, entry *Entry) error
	InsertSecurityEvent(ctx context.Context, event *SecurityEvent) error
}

// SQLStore is the PostgreSQL-backed audit store.
type SQLStore struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// NewSQLStore wraps an existing database handle.
func NewSQLStore(db *sqlx.DB, log *logger.Logger) *SQLStore {
	return &SQLStore{db: db, logger: log}
}

// InsertEntry persists one audit entry.
func (s *SQLStore) InsertEntry(ctx context.Context, entry *Entry) error {
	var factors []byte
	if entry.Factors != nil {
		var err error
		factors, err = json.Marshal(entry.Factors)
		if err != nil {
			return fmt.Errorf("failed to marshal factors: %w", err)
		}
	}

	query := `
		INSERT INTO audit_entries
			(request_id, user_id, session_id, endpoint, stage, decision,
			 confidence, score, factors, pattern_ids, list_id, pii_types,
			 content_hash, elapsed_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := s.db.ExecContext(ctx, query,
		entry.RequestID,
		entry.UserID,
		entry.SessionID,
		entry.Endpoint,
		entry.Stage,
		entry.Decision,
		entry.Confidence,
		entry.Score,
		factors,
		pq.Array(entry.PatternIDs),
		entry.ListID,
		pq.Array(entry.PIITypes),
		entry.ContentHash,
		entry.ElapsedMS,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	return nil
}

// InsertSecurityEvent persists one security event.
func (s *SQLStore) InsertSecurityEvent(ctx context.Context, event *SecurityEvent) error {
	query := `
		INSERT INTO security_events
			(id, kind, severity, user_id, request_id, pii_types,
			 content_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.Kind,
		event.Severity,
		event.UserID,
		event.RequestID,
		pq.Array(event.PIITypes),
		event.ContentHash,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert security event: %w", err)
	}

	return nil
}
