package anomaly

import (
	"regexp"
	"sort"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/spendlens/guardrails/internal/logger"
	"github.com/spendlens/guardrails/internal/patterns"
	"github.com/spendlens/guardrails/internal/rules"
)

// Decision is the outcome derived from the total anomaly score.
type Decision string

const (
	DecisionAllow    Decision = "ALLOW"
	DecisionEscalate Decision = "ESCALATE"
	DecisionBlock    Decision = "BLOCK"
)

// Factors is the per-factor breakdown of an anomaly score.
type Factors struct {
	Pattern      float64 `json:"pattern"`
	Length       float64 `json:"length"`
	SpecialChars float64 `json:"special_chars"`
	Encoding     float64 `json:"encoding"`
	Instruction  float64 `json:"instruction"`
}

// Score is the result of scoring one input. Value is always in [0,1].
type Score struct {
	Value    float64  `json:"value"`
	Factors  Factors  `json:"factors"`
	Decision Decision `json:"decision"`
}

// Encoding heuristics are fixed; the ruleset only tunes their weight.
// The factor counts distinct techniques, not occurrences.
var (
	reBase64Run     = regexp.MustCompile(`[A-Za-z0-9+/]{24,}={0,2}`)
	reUnicodeEsc    = regexp.MustCompile(`\\u[0-9a-fA-F]{4}|\\x[0-9a-fA-F]{2}`)
	reStackedURLEnc = regexp.MustCompile(`%25|(?:%[0-9a-fA-F]{2}){3,}`)
)

type compiledRules struct {
	doc       *rules.AnomalyDocument
	verbRe    *regexp.Regexp
	condRe    *regexp.Regexp
	aiRefs    []string
	dangerous map[rune]bool
}

// Scorer combines pattern matches and independent heuristics into a
// bounded risk score and a decision.
type Scorer struct {
	logger *logger.Logger
	path   string
	active atomic.Pointer[compiledRules]
}

// New creates a scorer from an already-decoded anomaly document.
func New(doc *rules.AnomalyDocument, log *logger.Logger) *Scorer {
	s := &Scorer{logger: log}
	s.active.Store(compile(doc))

	log.Info("Anomaly scorer initialized",
		zap.String("version", doc.Version),
		zap.Float64("block_threshold", doc.Thresholds.Block),
		zap.Float64("escalate_threshold", doc.Thresholds.Escalate))

	return s
}

// NewFromFile creates a scorer from an anomaly-rules file. A missing or
// invalid file falls back to the built-in default rule set; scoring never
// fails at call time.
func NewFromFile(path string, log *logger.Logger) *Scorer {
	s := &Scorer{logger: log, path: path}
	s.active.Store(s.load())
	return s
}

// Reload re-reads the configured file and swaps the rule set atomically.
func (s *Scorer) Reload() {
	if s.path == "" {
		return
	}
	s.active.Store(s.load())
}

func (s *Scorer) load() *compiledRules {
	if s.path == "" {
		return compile(rules.DefaultAnomalyDocument())
	}

	doc, err := rules.LoadAnomalyDocument(s.path)
	if err != nil {
		s.logger.Warn("Failed to load anomaly rules, using built-in defaults",
			zap.String("path", s.path),
			zap.Error(err))
		return compile(rules.DefaultAnomalyDocument())
	}

	return compile(doc)
}

func compile(doc *rules.AnomalyDocument) *compiledRules {
	cr := &compiledRules{
		doc:       doc,
		dangerous: make(map[rune]bool, len(doc.Special.DangerousChars)),
	}

	for _, r := range doc.Special.DangerousChars {
		cr.dangerous[r] = true
	}

	if len(doc.Language.ImperativeVerbs) > 0 {
		cr.verbRe = wordAlternation(doc.Language.ImperativeVerbs)
	}
	if len(doc.Language.Conditionals) > 0 {
		cr.condRe = wordAlternation(doc.Language.Conditionals)
	}
	for _, ref := range doc.Language.AIReferences {
		cr.aiRefs = append(cr.aiRefs, strings.ToLower(ref))
	}

	return cr
}

func wordAlternation(words []string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// Thresholds returns the active decision thresholds. The inspection
// pipeline derives its decision band from these, so there is exactly one
// threshold source.
func (s *Scorer) Thresholds() rules.Thresholds {
	return s.active.Load().doc.Thresholds
}

// Score computes the five factor scores for the input and derives a
// decision. The total is capped at 1.0.
func (s *Scorer) Score(input string, matched []patterns.Match) Score {
	cr := s.active.Load()

	factors := Factors{
		Pattern:      cr.patternFactor(matched),
		Length:       cr.lengthFactor(input),
		SpecialChars: cr.specialFactor(input),
		Encoding:     cr.encodingFactor(input),
		Instruction:  cr.instructionFactor(input),
	}

	total := factors.Pattern + factors.Length + factors.SpecialChars + factors.Encoding + factors.Instruction
	if total > 1.0 {
		total = 1.0
	}
	if total < 0 {
		total = 0
	}

	return Score{
		Value:    total,
		Factors:  factors,
		Decision: cr.decide(total),
	}
}

func (cr *compiledRules) decide(total float64) Decision {
	switch {
	case total >= cr.doc.Thresholds.Block:
		return DecisionBlock
	case total >= cr.doc.Thresholds.Escalate:
		return DecisionEscalate
	default:
		return DecisionAllow
	}
}

// patternFactor sums match contributions in severity order. Each
// subsequent match contributes at a geometrically diminishing rate so a
// pile of low-severity matches cannot stack into a false BLOCK.
func (cr *compiledRules) patternFactor(matched []patterns.Match) float64 {
	if len(matched) == 0 {
		return 0
	}

	pf := cr.doc.Pattern

	weights := make([]float64, 0, len(matched))
	for _, m := range matched {
		weights = append(weights, pf.SeverityWeights[m.Severity])
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(weights)))

	sum := 0.0
	multiplier := 1.0
	for _, w := range weights {
		sum += w * multiplier
		multiplier *= pf.DiminishingRate
	}

	if sum > pf.MaxContribution {
		sum = pf.MaxContribution
	}
	return sum
}

// lengthFactor penalizes inputs outside the normal length band, ramping
// linearly toward the extreme thresholds.
func (cr *compiledRules) lengthFactor(input string) float64 {
	lf := cr.doc.Length
	n := len([]rune(input))

	if n >= lf.NormalMin && n <= lf.NormalMax {
		return 0
	}

	if n < lf.NormalMin {
		if n <= lf.ExtremeMin || lf.NormalMin <= lf.ExtremeMin {
			return lf.MaxPenalty
		}
		frac := float64(lf.NormalMin-n) / float64(lf.NormalMin-lf.ExtremeMin)
		return lf.MaxPenalty * frac
	}

	if n >= lf.ExtremeMax || lf.ExtremeMax <= lf.NormalMax {
		return lf.MaxPenalty
	}
	frac := float64(n-lf.NormalMax) / float64(lf.ExtremeMax-lf.NormalMax)
	return lf.MaxPenalty * frac
}

// specialFactor scores the density of characters from the configured
// dangerous set.
func (cr *compiledRules) specialFactor(input string) float64 {
	sf := cr.doc.Special

	runes := []rune(input)
	if len(runes) == 0 {
		return 0
	}

	count := 0
	for _, r := range runes {
		if cr.dangerous[r] {
			count++
		}
	}

	density := float64(count) / float64(len(runes))
	if density <= sf.DensityThreshold {
		return 0
	}

	score := (density - sf.DensityThreshold) * sf.Scale
	if score > sf.MaxContribution {
		score = sf.MaxContribution
	}
	return score
}

// encodingFactor counts distinct obfuscation techniques present in the
// input. Occurrence counts do not matter, only how many techniques appear.
func (cr *compiledRules) encodingFactor(input string) float64 {
	ef := cr.doc.Encoding

	techniques := 0
	if reBase64Run.MatchString(input) {
		techniques++
	}
	if reUnicodeEsc.MatchString(input) {
		techniques++
	}
	if reStackedURLEnc.MatchString(input) {
		techniques++
	}

	score := float64(techniques) * ef.PerTechnique
	if score > ef.MaxContribution {
		score = ef.MaxContribution
	}
	return score
}

// instructionFactor scores weighted keyword hits: imperative verbs at
// word boundaries (+1), AI-directed reference phrases (+2, substring),
// conditional words (+0.5).
func (cr *compiledRules) instructionFactor(input string) float64 {
	lf := cr.doc.Language
	lowered := strings.ToLower(input)

	raw := 0.0
	if cr.verbRe != nil {
		raw += float64(len(cr.verbRe.FindAllStringIndex(input, -1)))
	}
	for _, ref := range cr.aiRefs {
		raw += 2.0 * float64(strings.Count(lowered, ref))
	}
	if cr.condRe != nil {
		raw += 0.5 * float64(len(cr.condRe.FindAllStringIndex(input, -1)))
	}

	score := raw * lf.Multiplier
	if score > lf.MaxContribution {
		score = lf.MaxContribution
	}
	return score
}
