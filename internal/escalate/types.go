package escalate

import (
	"errors"
	"time"

	"github.com/spendlens/guardrails/internal/anomaly"
)

// Severity of a review item, derived from the anomaly score.
type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
)

// Status of a review item. A record transitions PENDING to RESOLVED
// exactly once.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusResolved Status = "RESOLVED"
)

// Resolution recorded by a human reviewer.
type Resolution string

const (
	ResolutionApprove Resolution = "APPROVE"
	ResolutionReject  Resolution = "REJECT"
	ResolutionDismiss Resolution = "DISMISS"
)

var (
	// ErrNotFound is returned when no record exists for an id.
	ErrNotFound = errors.New("escalation record not found")

	// ErrAlreadyResolved is returned when resolving a resolved record.
	ErrAlreadyResolved = errors.New("escalation record already resolved")

	// ErrInvalidResolution is returned for an unrecognized resolution.
	ErrInvalidResolution = errors.New("invalid resolution")

	// ErrNoStore is returned from queries when no backing store was
	// configured.
	ErrNoStore = errors.New("escalation store not configured")
)

// Record is a persisted human-review item. It carries the input hash and
// factor breakdown, never the raw input text.
type Record struct {
	ID         string          `json:"id" db:"id"`
	UserID     string          `json:"user_id" db:"user_id"`
	SessionID  string          `json:"session_id" db:"session_id"`
	RequestID  string          `json:"request_id" db:"request_id"`
	Endpoint   string          `json:"endpoint" db:"endpoint"`
	InputHash  string          `json:"input_hash" db:"input_hash"`
	Score      float64         `json:"score" db:"score"`
	Factors    anomaly.Factors `json:"factors" db:"-"`
	PatternIDs []string        `json:"pattern_ids" db:"-"`
	Severity   Severity        `json:"severity" db:"severity"`
	Status     Status          `json:"status" db:"status"`
	Resolution Resolution      `json:"resolution,omitempty" db:"resolution"`
	Reviewer   string          `json:"reviewer,omitempty" db:"reviewer"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty" db:"resolved_at"`

	// Ephemeral marks a record whose persistence failed; its tracking
	// id was synthesized so the caller still gets a PENDING answer.
	Ephemeral bool `json:"ephemeral,omitempty" db:"-"`
}

// Stats aggregates queue contents by status and severity.
type Stats struct {
	Total      int              `json:"total"`
	ByStatus   map[Status]int   `json:"by_status"`
	BySeverity map[Severity]int `json:"by_severity"`
}

// SeverityForScore derives a review severity from an anomaly score.
func SeverityForScore(score float64) Severity {
	switch {
	case score >= 0.6:
		return SeverityHigh
	case score >= 0.45:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// ValidResolution reports whether r is one of the accepted resolutions.
func ValidResolution(r Resolution) bool {
	switch r {
	case ResolutionApprove, ResolutionReject, ResolutionDismiss:
		return true
	default:
		return false
	}
}
