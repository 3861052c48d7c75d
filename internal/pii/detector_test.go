package pii

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spendlens/guardrails/internal/logger"
	"github.com/spendlens/guardrails/internal/rules"
)

func newDefaultDetector() *Detector {
	return New(rules.DefaultPIIDocument(), logger.NewNop())
}

func single(t *testing.T, d *Detector, text string, typ Type) Match {
	t.Helper()
	matches := d.Detect(text)
	require.Len(t, matches, 1)
	require.Equal(t, typ, matches[0].Type)
	return matches[0]
}

func TestDetectSSN(t *testing.T) {
	d := newDefaultDetector()

	t.Run("StructurallyValid", func(t *testing.T) {
		m := single(t, d, "my ssn is 123-45-6789 thanks", TypeSSN)
		assert.Equal(t, "123-45-6789", m.Value)
		// Structural validity alone never yields HIGH.
		assert.Equal(t, ConfidenceMedium, m.Confidence)
	})

	t.Run("InvalidArea", func(t *testing.T) {
		assert.Empty(t, d.Detect("number 666-12-3456 here"))
		assert.Empty(t, d.Detect("number 000-12-3456 here"))
		assert.Empty(t, d.Detect("number 912-12-3456 here"))
	})

	t.Run("InvalidGroupAndSerial", func(t *testing.T) {
		assert.Empty(t, d.Detect("number 123-00-6789 here"))
		assert.Empty(t, d.Detect("number 123-45-0000 here"))
	})

	t.Run("KnownInvalidNumber", func(t *testing.T) {
		// The famously leaked specimen number is on the invalid list.
		assert.Empty(t, d.Detect("ssn 078-05-1120"))
	})

	t.Run("DateContextSuppressed", func(t *testing.T) {
		assert.Empty(t, d.Detect("card issued 123-45-6789"))
		assert.Empty(t, d.Detect("123-45-6789 is my date of birth"))
	})

	t.Run("SpacedFormat", func(t *testing.T) {
		m := single(t, d, "ssn 123 45 6789", TypeSSN)
		assert.Equal(t, ConfidenceMedium, m.Confidence)
	})
}

func TestDetectCreditCard(t *testing.T) {
	d := newDefaultDetector()

	t.Run("GroupedValidLuhn", func(t *testing.T) {
		m := single(t, d, "card 4532 0151 1283 0366 on file", TypeCreditCard)
		assert.Equal(t, ConfidenceHigh, m.Confidence)
	})

	t.Run("ContiguousValidLuhn", func(t *testing.T) {
		m := single(t, d, "card 4532015112830366 on file", TypeCreditCard)
		assert.Equal(t, ConfidenceMedium, m.Confidence)
	})

	t.Run("LuhnFailureRejected", func(t *testing.T) {
		assert.Empty(t, d.Detect("card 4532015112830367 on file"))
	})
}

func TestDetectAccountAndLoan(t *testing.T) {
	d := newDefaultDetector()

	t.Run("LabeledAccount", func(t *testing.T) {
		m := single(t, d, "your account number: 85317642 was charged", TypeAccountNumber)
		assert.Equal(t, ConfidenceHigh, m.Confidence)
	})

	t.Run("BareAccountLowConfidence", func(t *testing.T) {
		m := single(t, d, "reference 85317642 was charged", TypeAccountNumber)
		assert.Equal(t, ConfidenceLow, m.Confidence)
	})

	t.Run("DateLikeExcluded", func(t *testing.T) {
		assert.Empty(t, d.Detect("posted 20240115 cleared"))
	})

	t.Run("LoanFormats", func(t *testing.T) {
		m := single(t, d, "loan number 74382910 refinanced", TypeLoanNumber)
		assert.Equal(t, ConfidenceHigh, m.Confidence)

		m = single(t, d, "see LN-7438291 for details", TypeLoanNumber)
		assert.Equal(t, ConfidenceMedium, m.Confidence)
	})
}

func TestDetectEmailAndPhone(t *testing.T) {
	d := newDefaultDetector()

	m := single(t, d, "contact alice@example.com please", TypeEmail)
	assert.Equal(t, ConfidenceHigh, m.Confidence)
	assert.Equal(t, "alice@example.com", m.Value)

	m = single(t, d, "call (555) 123-4567 today", TypePhone)
	assert.Equal(t, ConfidenceMedium, m.Confidence)
}

func TestDetectSpansAndOrder(t *testing.T) {
	d := newDefaultDetector()

	text := "alice@example.com then bob@example.com then 123-45-6789"
	matches := d.Detect(text)
	require.Len(t, matches, 3)

	for i, m := range matches {
		assert.Equal(t, text[m.Start:m.End], m.Value, "match %d", i)
		if i > 0 {
			assert.GreaterOrEqual(t, m.Start, matches[i-1].End)
		}
	}
}

// The labeled and bare account patterns both cover the digits; the
// earlier, labeled span survives and the overlap is dropped.
func TestDetectDedupe(t *testing.T) {
	d := newDefaultDetector()

	matches := d.Detect("your account number: 85317642 was charged")
	require.Len(t, matches, 1)
	assert.Equal(t, TypeAccountNumber, matches[0].Type)
	assert.Equal(t, ConfidenceHigh, matches[0].Confidence)
}

func TestDetectorEnabledAndFailOpen(t *testing.T) {
	d := newDefaultDetector()
	assert.True(t, d.Enabled())

	empty := NewFromFile("/nonexistent/pii.yaml", logger.NewNop())
	assert.False(t, empty.Enabled())
	assert.Empty(t, empty.Detect("ssn 123-45-6789 card 4532015112830366"))
}

func TestValidLuhn(t *testing.T) {
	assert.True(t, validLuhn("4532015112830366"))
	assert.True(t, validLuhn("4532-0151-1283-0366"))
	assert.False(t, validLuhn("4532015112830367"))
	assert.False(t, validLuhn("1234"))
	assert.False(t, validLuhn("12345678901234567890"))
}

func TestDetectorNormalizesPatternConfidence(t *testing.T) {
	doc := &rules.PIIDocument{
		Version: "test",
		Categories: map[string]rules.PIICategory{
			"email": {
				Enabled: true,
				Patterns: []rules.PIIPattern{
					{
						ID:         "email-lowercase-conf",
						Pattern:    `\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`,
						Confidence: "high",
					},
				},
			},
		},
	}
	d := New(doc, logger.NewNop())

	m := single(t, d, "reach me at alice@example.com", TypeEmail)
	assert.Equal(t, ConfidenceHigh, m.Confidence)
	assert.Equal(t, 3, m.Confidence.Rank())
}

func TestParseConfidence(t *testing.T) {
	assert.Equal(t, ConfidenceHigh, ParseConfidence("high"))
	assert.Equal(t, ConfidenceLow, ParseConfidence("LOW"))
	assert.Equal(t, ConfidenceMedium, ParseConfidence("bogus"))
}
