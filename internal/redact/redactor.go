package redact

import (
	"fmt"
	"strings"

	"github.com/spendlens/guardrails/internal/logger"
	"github.com/spendlens/guardrails/internal/pii"
)

// defaultPlaceholders are the per-type replacement tokens. They are
// deliberately shaped so no placeholder re-matches any PII pattern,
// which keeps redaction idempotent.
var defaultPlaceholders = map[pii.Type]string{
	pii.TypeSSN:           "[SSN_REDACTED]",
	pii.TypeAccountNumber: "[ACCOUNT_REDACTED]",
	pii.TypeLoanNumber:    "[LOAN_REDACTED]",
	pii.TypeCreditCard:    "[CARD_REDACTED]",
	pii.TypeEmail:         "[EMAIL_REDACTED]",
	pii.TypePhone:         "[PHONE_REDACTED]",
}

// Options configures redaction behavior.
type Options struct {
	// MinConfidence excludes matches below this confidence.
	MinConfidence pii.Confidence

	// PartialReveal keeps a recognizable tail of the redacted value:
	// last 4 digits for SSN/card/phone, domain for email, last 3
	// characters for account and loan numbers.
	PartialReveal bool

	// Placeholders overrides the default placeholder per type.
	Placeholders map[pii.Type]string
}

// SpanChange records one applied replacement.
type SpanChange struct {
	Type           pii.Type `json:"type"`
	Start          int      `json:"start"`
	End            int      `json:"end"`
	OriginalLen    int      `json:"original_len"`
	ReplacementLen int      `json:"replacement_len"`
}

// Summary aggregates what was redacted, by type and confidence.
type Summary struct {
	ByType             map[pii.Type]int       `json:"by_type"`
	ByConfidence       map[pii.Confidence]int `json:"by_confidence"`
	Spans              []SpanChange           `json:"spans"`
	TotalCharsRedacted int                    `json:"total_chars_redacted"`
}

func newSummary() Summary {
	return Summary{
		ByType:       make(map[pii.Type]int),
		ByConfidence: make(map[pii.Confidence]int),
	}
}

// merge folds another summary into this one.
func (s *Summary) merge(other Summary) {
	for t, n := range other.ByType {
		s.ByType[t] += n
	}
	for c, n := range other.ByConfidence {
		s.ByConfidence[c] += n
	}
	s.Spans = append(s.Spans, other.Spans...)
	s.TotalCharsRedacted += other.TotalCharsRedacted
}

// Result is the outcome of a redaction pass.
type Result struct {
	RedactedText string  `json:"redacted_text"`
	WasRedacted  bool    `json:"was_redacted"`
	Summary      Summary `json:"summary"`
}

// Redactor applies confidence-thresholded, structure-aware redaction.
type Redactor struct {
	detector *pii.Detector
	opts     Options
	logger   *logger.Logger
}

// New creates a redactor backed by the given detector.
func New(detector *pii.Detector, opts Options, log *logger.Logger) *Redactor {
	if opts.MinConfidence == "" {
		opts.MinConfidence = pii.ConfidenceMedium
	}
	return &Redactor{detector: detector, opts: opts, logger: log}
}

// Redact detects PII in the text and redacts it.
func (r *Redactor) Redact(text string) Result {
	return r.RedactMatches(text, r.detector.Detect(text))
}

// RedactMatches redacts the given matches. Matches below the minimum
// confidence are left in place. Replacement proceeds in strictly
// descending span order so earlier offsets stay valid.
func (r *Redactor) RedactMatches(text string, matches []pii.Match) Result {
	summary := newSummary()

	// Matches arrive sorted by position; walk them backwards.
	out := text
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		if m.Confidence.Rank() < r.opts.MinConfidence.Rank() {
			continue
		}
		if m.Start < 0 || m.End > len(out) || m.Start >= m.End {
			continue
		}

		replacement := r.replacement(m)
		out = out[:m.Start] + replacement + out[m.End:]

		summary.ByType[m.Type]++
		summary.ByConfidence[m.Confidence]++
		summary.TotalCharsRedacted += m.End - m.Start
		summary.Spans = append(summary.Spans, SpanChange{
			Type:           m.Type,
			Start:          m.Start,
			End:            m.End,
			OriginalLen:    m.End - m.Start,
			ReplacementLen: len(replacement),
		})
	}

	return Result{
		RedactedText: out,
		WasRedacted:  summary.TotalCharsRedacted > 0,
		Summary:      summary,
	}
}

func (r *Redactor) replacement(m pii.Match) string {
	if r.opts.PartialReveal {
		if partial := partialReveal(m); partial != "" {
			return partial
		}
	}

	if custom, ok := r.opts.Placeholders[m.Type]; ok {
		return custom
	}
	if token, ok := defaultPlaceholders[m.Type]; ok {
		return token
	}
	return "[REDACTED]"
}

// partialReveal preserves a recognizable tail of the value. The revealed
// fragments are short enough that no PII pattern can re-match them.
func partialReveal(m pii.Match) string {
	switch m.Type {
	case pii.TypeSSN, pii.TypeCreditCard, pii.TypePhone:
		digits := digitTail(m.Value, 4)
		if digits == "" {
			return ""
		}
		return fmt.Sprintf("[%s ****%s]", typeLabel(m.Type), digits)
	case pii.TypeEmail:
		at := strings.LastIndex(m.Value, "@")
		if at < 0 {
			return ""
		}
		return "[EMAIL ***" + m.Value[at:] + "]"
	case pii.TypeAccountNumber, pii.TypeLoanNumber:
		if len(m.Value) < 3 {
			return ""
		}
		return fmt.Sprintf("[%s ***%s]", typeLabel(m.Type), m.Value[len(m.Value)-3:])
	default:
		return ""
	}
}

func typeLabel(t pii.Type) string {
	switch t {
	case pii.TypeSSN:
		return "SSN"
	case pii.TypeCreditCard:
		return "CARD"
	case pii.TypePhone:
		return "PHONE"
	case pii.TypeAccountNumber:
		return "ACCOUNT"
	case pii.TypeLoanNumber:
		return "LOAN"
	default:
		return string(t)
	}
}

// digitTail returns the last n digits of a value, or "" when it has
// fewer digits than n.
func digitTail(value string, n int) string {
	var digits []rune
	for _, r := range value {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) < n {
		return ""
	}
	return string(digits[len(digits)-n:])
}
