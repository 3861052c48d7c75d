package identity

import (
	"context"
	"errors"
	"time"
)

// ErrNoStore is returned when identity data is requested but no backing
// store was configured.
var ErrNoStore = errors.New("identity store not configured")

// Snapshot holds the identifiers known to belong to one user: their
// profile email and name plus account/loan numbers mined from their own
// transaction records.
type Snapshot struct {
	UserID         string    `json:"user_id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	AccountNumbers []string  `json:"account_numbers"`
	LoanNumbers    []string  `json:"loan_numbers"`
	MinedAt        time.Time `json:"mined_at"`
}

// Directory maps lowercased emails to the owning user id for every known
// user.
type Directory map[string]string

// Store is the storage collaborator supplying identity data.
type Store interface {
	FetchSnapshot(ctx context.Context, userID string) (*Snapshot, error)
	FetchDirectory(ctx context.Context) (Directory, error)
}

// DirectoryCache caches the email directory across requests. Lookups
// that fail must behave as misses, never as errors.
type DirectoryCache interface {
	Get(ctx context.Context) (Directory, bool)
	Set(ctx context.Context, dir Directory)
	Invalidate(ctx context.Context)
}

// CacheStats tracks cache performance counters.
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}
