package identity

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/spendlens/guardrails/internal/logger"
)

// SQLStore loads identity data from the application database.
type SQLStore struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// NewSQLStore wraps an existing database handle.
func NewSQLStore(db *sqlx.DB, log *logger.Logger) *SQLStore {
	return &SQLStore{db: db, logger: log}
}

// FetchSnapshot loads a user's profile identifiers and mines account and
// loan numbers from that user's own transaction records.
func (s *SQLStore) FetchSnapshot(ctx context.Context, userID string) (*Snapshot, error) {
	snapshot := &Snapshot{UserID: userID, MinedAt: time.Now()}

	var row struct {
		Email string         `db:"email"`
		Name  sql.NullString `db:"full_name"`
	}
	query := `SELECT email, full_name FROM users WHERE id = $1`
	if err := s.db.GetContext(ctx, &row, query, userID); err != nil {
		return nil, fmt.Errorf("failed to load user profile: %w", err)
	}
	snapshot.Email = strings.ToLower(row.Email)
	snapshot.Name = row.Name.String

	accountQuery := `
		SELECT DISTINCT account_number
		FROM transactions
		WHERE user_id = $1 AND account_number IS NOT NULL
		LIMIT 100`
	if err := s.db.SelectContext(ctx, &snapshot.AccountNumbers, accountQuery, userID); err != nil {
		return nil, fmt.Errorf("failed to mine account numbers: %w", err)
	}

	loanQuery := `
		SELECT DISTINCT loan_number
		FROM transactions
		WHERE user_id = $1 AND loan_number IS NOT NULL
		LIMIT 100`
	if err := s.db.SelectContext(ctx, &snapshot.LoanNumbers, loanQuery, userID); err != nil {
		return nil, fmt.Errorf("failed to mine loan numbers: %w", err)
	}

	s.logger.Debug("Identity snapshot loaded",
		zap.String("user_id", userID),
		zap.Int("account_numbers", len(snapshot.AccountNumbers)),
		zap.Int("loan_numbers", len(snapshot.LoanNumbers)))

	return snapshot, nil
}

// FetchDirectory loads the email to user-id mapping for all known users.
func (s *SQLStore) FetchDirectory(ctx context.Context) (Directory, error) {
	var rows []struct {
		ID    string `db:"id"`
		Email string `db:"email"`
	}

	query := `SELECT id, email FROM users`
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to load email directory: %w", err)
	}

	dir := make(Directory, len(rows))
	for _, r := range rows {
		dir[strings.ToLower(r.Email)] = r.ID
	}

	s.logger.Debug("Email directory loaded", zap.Int("entries", len(dir)))

	return dir, nil
}
