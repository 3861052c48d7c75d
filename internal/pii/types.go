package pii

import "strings"

// Type identifies a category of personally identifiable information.
type Type string

const (
	TypeSSN           Type = "SSN"
	TypeAccountNumber Type = "ACCOUNT_NUMBER"
	TypeLoanNumber    Type = "LOAN_NUMBER"
	TypeCreditCard    Type = "CREDIT_CARD"
	TypeEmail         Type = "EMAIL"
	TypePhone         Type = "PHONE"
)

// Confidence expresses how certain the detector is about a match. It is
// independent of the inspection pipeline's numeric anomaly score.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// ParseConfidence maps a configuration value to a Confidence. Unknown
// values yield ConfidenceMedium.
func ParseConfidence(s string) Confidence {
	switch strings.ToUpper(s) {
	case "HIGH":
		return ConfidenceHigh
	case "MEDIUM":
		return ConfidenceMedium
	case "LOW":
		return ConfidenceLow
	default:
		return ConfidenceMedium
	}
}

// Rank orders confidences for comparisons; higher is more certain.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	default:
		return 0
	}
}

// Match is one PII occurrence in the scanned text. Start and End are byte
// offsets forming a [Start,End) span within text bounds.
type Match struct {
	Type       Type       `json:"type"`
	Value      string     `json:"-"` // never serialized
	Start      int        `json:"start"`
	End        int        `json:"end"`
	Confidence Confidence `json:"confidence"`
	PatternID  string     `json:"pattern_id"`
}
