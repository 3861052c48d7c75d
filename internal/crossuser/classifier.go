package crossuser

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spendlens/guardrails/internal/identity"
	"github.com/spendlens/guardrails/internal/logger"
	"github.com/spendlens/guardrails/internal/pii"
)

// Ownership attributes a PII match to a tenant.
type Ownership string

const (
	OwnershipCurrentUser Ownership = "CURRENT_USER"
	OwnershipOtherUser   Ownership = "OTHER_USER"
	OwnershipUnknown     Ownership = "UNKNOWN"
)

// Match extends a PII match with its ownership classification and, when
// known, the suspected owning user.
type Match struct {
	pii.Match
	Ownership  Ownership      `json:"ownership"`
	Confidence pii.Confidence `json:"ownership_confidence"`
	OwnerID    string         `json:"owner_id,omitempty"`
}

// Classifier attributes PII matches to current-user, other-user or
// unknown using the identity service's cached data.
type Classifier struct {
	identity *identity.Service
	logger   *logger.Logger
}

// New creates a classifier.
func New(svc *identity.Service, log *logger.Logger) *Classifier {
	return &Classifier{identity: svc, logger: log}
}

// Classify attributes each match. Identity lookups that fail are logged
// and degrade to UNKNOWN attribution; they never abort classification,
// since the caller's security decision must not depend on lookup
// availability.
func (c *Classifier) Classify(ctx context.Context, userID string, matches []pii.Match) []Match {
	if len(matches) == 0 {
		return nil
	}

	snapshot, err := c.identity.Snapshot(ctx, userID)
	if err != nil {
		c.logger.Error("Identity snapshot unavailable, attribution degraded",
			zap.String("user_id", userID),
			zap.Error(err))
		snapshot = nil
	}

	var directory identity.Directory
	if needsDirectory(matches) {
		directory, err = c.identity.Directory(ctx)
		if err != nil {
			c.logger.Error("Email directory unavailable, attribution degraded",
				zap.Error(err))
		}
	}

	classified := make([]Match, 0, len(matches))
	for _, m := range matches {
		classified = append(classified, c.classifyOne(userID, snapshot, directory, m))
	}

	return classified
}

func (c *Classifier) classifyOne(userID string, snapshot *identity.Snapshot, directory identity.Directory, m pii.Match) Match {
	out := Match{Match: m, Ownership: OwnershipUnknown}

	switch m.Type {
	case pii.TypeSSN, pii.TypeCreditCard:
		// These must never appear in a model response; any occurrence
		// is treated as maximally suspicious regardless of context.
		out.Confidence = pii.ConfidenceHigh

	case pii.TypeEmail:
		email := strings.ToLower(m.Value)
		if snapshot != nil && email == snapshot.Email {
			out.Ownership = OwnershipCurrentUser
			out.Confidence = pii.ConfidenceHigh
			out.OwnerID = userID
			return out
		}
		if ownerID, known := directory[email]; known {
			if ownerID == userID {
				out.Ownership = OwnershipCurrentUser
			} else {
				out.Ownership = OwnershipOtherUser
				out.OwnerID = ownerID
			}
			out.Confidence = pii.ConfidenceHigh
			return out
		}
		out.Confidence = pii.ConfidenceMedium

	case pii.TypeAccountNumber:
		if snapshot != nil && containsDigits(snapshot.AccountNumbers, m.Value) {
			out.Ownership = OwnershipCurrentUser
			out.Confidence = pii.ConfidenceHigh
			out.OwnerID = userID
			return out
		}
		out.Confidence = pii.ConfidenceMedium

	case pii.TypeLoanNumber:
		if snapshot != nil && containsDigits(snapshot.LoanNumbers, m.Value) {
			out.Ownership = OwnershipCurrentUser
			out.Confidence = pii.ConfidenceHigh
			out.OwnerID = userID
			return out
		}
		out.Confidence = pii.ConfidenceMedium

	case pii.TypePhone:
		// No reliable reference data for phone numbers.
		out.Confidence = pii.ConfidenceLow

	default:
		out.Confidence = pii.ConfidenceMedium
	}

	return out
}

func needsDirectory(matches []pii.Match) bool {
	for _, m := range matches {
		if m.Type == pii.TypeEmail {
			return true
		}
	}
	return false
}

// containsDigits compares values on their digit content so formatting
// differences (dashes, spaces, labels) do not break attribution.
func containsDigits(known []string, value string) bool {
	target := onlyDigits(value)
	if target == "" {
		return false
	}
	for _, k := range known {
		if onlyDigits(k) == target {
			return true
		}
	}
	return false
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
