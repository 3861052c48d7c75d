package escalate

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/spendlens/guardrails/internal/anomaly"
	"github.com/spendlens/guardrails/internal/logger"
)

// Store persists escalation records. The engine only needs create,
// find and update capability; the storage engine itself lives here.
type Store interface {
	Create(ctx context.Context, record *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	ListPending(ctx context.Context, limit int) ([]*Record, error)
	Resolve(ctx context.Context, id string, resolution Resolution, reviewer string) (*Record, error)
	Stats(ctx context.Context) (*Stats, error)
}

// SQLStore is the PostgreSQL-backed store.
type SQLStore struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// NewSQLStore wraps an existing database handle.
func NewSQLStore(db *sqlx.DB, log *logger.Logger) *SQLStore {
	return &SQLStore{db: db, logger: log}
}

// Create inserts a new PENDING record.
func (s *SQLStore) Create(ctx context.Context, record *Record) error {
	factors, err := json.Marshal(record.Factors)
	if err != nil {
		return fmt.Errorf("failed to marshal factors: %w", err)
	}

	query := `
		INSERT INTO escalation_records
			(id, user_id, session_id, request_id, endpoint, input_hash,
			 score, factors, pattern_ids, severity, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = s.db.ExecContext(ctx, query,
		record.ID,
		record.UserID,
		record.SessionID,
		record.RequestID,
		record.Endpoint,
		record.InputHash,
		record.Score,
		factors,
		pq.Array(record.PatternIDs),
		record.Severity,
		record.Status,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert escalation record: %w", err)
	}

	s.logger.Debug("Escalation record persisted",
		zap.String("id", record.ID),
		zap.String("severity", string(record.Severity)))

	return nil
}

// Get fetches one record by id.
func (s *SQLStore) Get(ctx context.Context, id string) (*Record, error) {
	query := `
		SELECT id, user_id, session_id, request_id, endpoint, input_hash,
		       score, factors, pattern_ids, severity, status,
		       COALESCE(resolution, '') AS resolution,
		       COALESCE(reviewer, '') AS reviewer,
		       created_at, resolved_at
		FROM escalation_records
		WHERE id = $1`

	record, err := s.scanOne(s.db.QueryRowxContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return record, err
}

// ListPending returns pending records ordered by severity descending,
// then by age ascending so the oldest items of a severity surface first.
func (s *SQLStore) ListPending(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, user_id, session_id, request_id, endpoint, input_hash,
		       score, factors, pattern_ids, severity, status,
		       COALESCE(resolution, '') AS resolution,
		       COALESCE(reviewer, '') AS reviewer,
		       created_at, resolved_at
		FROM escalation_records
		WHERE status = $1
		ORDER BY CASE severity
		           WHEN 'HIGH' THEN 3
		           WHEN 'MEDIUM' THEN 2
		           ELSE 1
		         END DESC,
		         created_at ASC
		LIMIT $2`

	rows, err := s.db.QueryxContext(ctx, query, StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending escalations: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		record, err := s.scanOne(rows)
		if err != nil {
			s.logger.Error("Failed to scan escalation record", zap.Error(err))
			continue
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// Resolve transitions a PENDING record to RESOLVED exactly once. A second
// resolve attempt returns ErrAlreadyResolved.
func (s *SQLStore) Resolve(ctx context.Context, id string, resolution Resolution, reviewer string) (*Record, error) {
	if !ValidResolution(resolution) {
		return nil, ErrInvalidResolution
	}

	query := `
		UPDATE escalation_records
		SET status = $1, resolution = $2, reviewer = $3, resolved_at = NOW()
		WHERE id = $4 AND status = $5
		RETURNING id, user_id, session_id, request_id, endpoint, input_hash,
		          score, factors, pattern_ids, severity, status,
		          COALESCE(resolution, '') AS resolution,
		          COALESCE(reviewer, '') AS reviewer,
		          created_at, resolved_at`

	record, err := s.scanOne(s.db.QueryRowxContext(ctx, query,
		StatusResolved, resolution, reviewer, id, StatusPending))
	if errors.Is(err, sql.ErrNoRows) {
		// Distinguish a missing record from a double resolve.
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrAlreadyResolved
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("Escalation record resolved",
		zap.String("id", id),
		zap.String("resolution", string(resolution)),
		zap.String("reviewer", reviewer))

	return record, nil
}

// Stats aggregates records by status and severity.
func (s *SQLStore) Stats(ctx context.Context) (*Stats, error) {
	query := `
		SELECT status, severity, COUNT(*) AS count
		FROM escalation_records
		GROUP BY status, severity`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate escalation stats: %w", err)
	}
	defer rows.Close()

	stats := &Stats{
		ByStatus:   make(map[Status]int),
		BySeverity: make(map[Severity]int),
	}

	for rows.Next() {
		var status Status
		var severity Severity
		var count int
		if err := rows.Scan(&status, &severity, &count); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %w", err)
		}
		stats.ByStatus[status] += count
		stats.BySeverity[severity] += count
		stats.Total += count
	}

	return stats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *SQLStore) scanOne(row rowScanner) (*Record, error) {
	var record Record
	var factors []byte
	var patternIDs pq.StringArray

	err := row.Scan(
		&record.ID,
		&record.UserID,
		&record.SessionID,
		&record.RequestID,
		&record.Endpoint,
		&record.InputHash,
		&record.Score,
		&factors,
		&patternIDs,
		&record.Severity,
		&record.Status,
		&record.Resolution,
		&record.Reviewer,
		&record.CreatedAt,
		&record.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(factors) > 0 {
		var f anomaly.Factors
		if err := json.Unmarshal(factors, &f); err == nil {
			record.Factors = f
		}
	}
	record.PatternIDs = []string(patternIDs)

	return &record, nil
}
