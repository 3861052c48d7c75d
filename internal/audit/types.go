package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/spendlens/guardrails/internal/anomaly"
)

// Entry is one audit record. It carries the content hash, never the
// inspected text itself.
type Entry struct {
	RequestID   string           `json:"request_id"`
	UserID      string           `json:"user_id"`
	SessionID   string           `json:"session_id"`
	Endpoint    string           `json:"endpoint"`
	Stage       string           `json:"stage"` // input or output
	Decision    string           `json:"decision"`
	Confidence  float64          `json:"confidence"`
	Score       float64          `json:"score"`
	Factors     *anomaly.Factors `json:"factors,omitempty"`
	PatternIDs  []string         `json:"pattern_ids,omitempty"`
	ListID      string           `json:"list_id,omitempty"`
	PIITypes    []string         `json:"pii_types,omitempty"`
	ContentHash string           `json:"content_hash"`
	ElapsedMS   float64          `json:"elapsed_ms"`
	CreatedAt   time.Time        `json:"created_at"`
}

// SecurityEvent records a CRITICAL finding. Only the PII type taxonomy
// and a content hash are stored, never raw values.
type SecurityEvent struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Severity    string    `json:"severity"`
	UserID      string    `json:"user_id"`
	RequestID   string    `json:"request_id"`
	PIITypes    []string  `json:"pii_types,omitempty"`
	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"`
}

// Notifier receives audit activity for real-time delivery. Both methods
// must be non-blocking.
type Notifier interface {
	AuditRecorded(entry Entry)
	SecurityAlert(event SecurityEvent)
}

// HashContent returns the SHA-256 hex digest of text. All audit surfaces
// record this hash in place of the text itself.
func HashContent(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
