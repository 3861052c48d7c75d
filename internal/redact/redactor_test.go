package redact

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spendlens/guardrails/internal/logger"
	"github.com/spendlens/guardrails/internal/pii"
	"github.com/spendlens/guardrails/internal/rules"
)

func newRedactor(opts Options) *Redactor {
	log := logger.NewNop()
	return New(pii.New(rules.DefaultPIIDocument(), log), opts, log)
}

func TestRedactReplacesPII(t *testing.T) {
	r := newRedactor(Options{MinConfidence: pii.ConfidenceMedium})

	result := r.Redact("ssn 123-45-6789 and email alice@example.com")

	assert.True(t, result.WasRedacted)
	assert.Equal(t, "ssn [SSN_REDACTED] and email [EMAIL_REDACTED]", result.RedactedText)
	assert.Equal(t, 1, result.Summary.ByType[pii.TypeSSN])
	assert.Equal(t, 1, result.Summary.ByType[pii.TypeEmail])
	assert.Len(t, result.Summary.Spans, 2)
}

func TestRedactNoPII(t *testing.T) {
	r := newRedactor(Options{})

	text := "your grocery spending rose 12% in March"
	result := r.Redact(text)

	assert.False(t, result.WasRedacted)
	assert.Equal(t, text, result.RedactedText)
	assert.Zero(t, result.Summary.TotalCharsRedacted)
}

// Redacting already-redacted text changes nothing: placeholders are
// shaped so no PII pattern can re-match them.
func TestRedactIdempotent(t *testing.T) {
	r := newRedactor(Options{MinConfidence: pii.ConfidenceLow})

	first := r.Redact("ssn 123-45-6789, card 4532 0151 1283 0366, reach bob@example.com or (555) 123-4567, account number: 85317642")
	require.True(t, first.WasRedacted)

	second := r.Redact(first.RedactedText)
	assert.False(t, second.WasRedacted)
	assert.Equal(t, first.RedactedText, second.RedactedText)
}

// Multiple matches replace in descending span order; earlier offsets
// stay valid even when replacements change the text length.
func TestRedactMultipleSpans(t *testing.T) {
	r := newRedactor(Options{MinConfidence: pii.ConfidenceMedium})

	result := r.Redact("a@b.com c@d.com e@f.com")
	assert.Equal(t, "[EMAIL_REDACTED] [EMAIL_REDACTED] [EMAIL_REDACTED]", result.RedactedText)
	assert.Equal(t, 3, result.Summary.ByType[pii.TypeEmail])
}

func TestRedactMinConfidence(t *testing.T) {
	// A bare 8-digit number is a LOW-confidence account candidate.
	text := "reference 85317642 cleared"

	strict := newRedactor(Options{MinConfidence: pii.ConfidenceMedium}).Redact(text)
	assert.False(t, strict.WasRedacted)
	assert.Equal(t, text, strict.RedactedText)

	loose := newRedactor(Options{MinConfidence: pii.ConfidenceLow}).Redact(text)
	assert.True(t, loose.WasRedacted)
	assert.Equal(t, "reference [ACCOUNT_REDACTED] cleared", loose.RedactedText)
}

func TestRedactPartialReveal(t *testing.T) {
	r := newRedactor(Options{MinConfidence: pii.ConfidenceMedium, PartialReveal: true})

	t.Run("SSNKeepsLastFour", func(t *testing.T) {
		result := r.Redact("ssn 123-45-6789")
		assert.Equal(t, "ssn [SSN ****6789]", result.RedactedText)
	})

	t.Run("EmailKeepsDomain", func(t *testing.T) {
		result := r.Redact("email alice@example.com")
		assert.Equal(t, "email [EMAIL ***@example.com]", result.RedactedText)
	})

	t.Run("AccountKeepsLastThree", func(t *testing.T) {
		result := r.Redact("account number: 85317642")
		assert.Equal(t, "[ACCOUNT ***642]", result.RedactedText)
	})
}

func TestRedactCustomPlaceholders(t *testing.T) {
	r := newRedactor(Options{
		MinConfidence: pii.ConfidenceMedium,
		Placeholders:  map[pii.Type]string{pii.TypeEmail: "<email>"},
	})

	result := r.Redact("email alice@example.com")
	assert.Equal(t, "email <email>", result.RedactedText)
}

func TestRedactJSON(t *testing.T) {
	r := newRedactor(Options{MinConfidence: pii.ConfidenceMedium})

	t.Run("RedactsOnlyStringLeaves", func(t *testing.T) {
		raw := `{"user":{"email":"alice@example.com","age":34},"note":"ssn 123-45-6789","tags":["safe","bob@example.com"]}`
		result := r.RedactJSON(raw)
		require.True(t, result.WasRedacted)

		var doc map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(result.RedactedText), &doc))

		user := doc["user"].(map[string]interface{})
		assert.Equal(t, "[EMAIL_REDACTED]", user["email"])
		assert.Equal(t, float64(34), user["age"])
		assert.Equal(t, "ssn [SSN_REDACTED]", doc["note"])

		tags := doc["tags"].([]interface{})
		assert.Equal(t, "safe", tags[0])
		assert.Equal(t, "[EMAIL_REDACTED]", tags[1])
	})

	t.Run("PreservesKeySet", func(t *testing.T) {
		raw := `{"email":"alice@example.com","amount":12.50,"flag":true,"missing":null}`
		result := r.RedactJSON(raw)

		var doc map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(result.RedactedText), &doc))
		assert.Len(t, doc, 4)
		for _, key := range []string{"email", "amount", "flag", "missing"} {
			assert.Contains(t, doc, key)
		}
	})

	t.Run("InvalidJSONFallsBackToText", func(t *testing.T) {
		result := r.RedactJSON("not json but has alice@example.com in it")
		assert.True(t, result.WasRedacted)
		assert.Contains(t, result.RedactedText, "[EMAIL_REDACTED]")
		assert.NotContains(t, result.RedactedText, "alice@")
	})

	t.Run("TrailingGarbageFallsBack", func(t *testing.T) {
		result := r.RedactJSON(`{"a":"b"} alice@example.com`)
		assert.True(t, result.WasRedacted)
		assert.True(t, strings.Contains(result.RedactedText, "[EMAIL_REDACTED]"))
	})
}
