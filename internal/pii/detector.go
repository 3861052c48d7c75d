package pii

import (
	"regexp"
	"sort"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/spendlens/guardrails/internal/logger"
	"github.com/spendlens/guardrails/internal/rules"
)

// defaultMaxMatches caps matches per PII type when the category does not
// configure its own cap; this bounds worst-case work on untrusted input.
const defaultMaxMatches = 25

// categoryTypes maps rule-document category keys to PII types. Unknown
// keys are skipped at compile time.
var categoryTypes = map[string]Type{
	"ssn":            TypeSSN,
	"account_number": TypeAccountNumber,
	"loan_number":    TypeLoanNumber,
	"credit_card":    TypeCreditCard,
	"email":          TypeEmail,
	"phone":          TypePhone,
}

type compiledPattern struct {
	id         string
	re         *regexp.Regexp
	confidence Confidence
	validation string
}

type compiledCategory struct {
	typ             Type
	patterns        []compiledPattern
	exclusions      []*regexp.Regexp
	invalidPrefixes map[string]bool
	maxMatches      int
}

type detectorSet struct {
	categories []compiledCategory
	version    string
}

// Detector scans text for PII across all enabled categories.
type Detector struct {
	logger *logger.Logger
	path   string
	active atomic.Pointer[detectorSet]
}

// New creates a detector from an already-decoded PII document.
func New(doc *rules.PIIDocument, log *logger.Logger) *Detector {
	d := &Detector{logger: log}
	d.active.Store(d.compile(doc))

	log.Info("PII detector initialized",
		zap.String("version", doc.Version),
		zap.Int("categories", len(doc.Categories)))

	return d
}

// NewFromFile creates a detector from a PII-patterns file. A missing or
// invalid file yields an empty detector (fail open); output inspection
// then sees no PII, which downstream layers must tolerate.
func NewFromFile(path string, log *logger.Logger) *Detector {
	d := &Detector{logger: log, path: path}
	d.active.Store(d.load())
	return d
}

// Reload re-reads the configured file and swaps the detector set atomically.
func (d *Detector) Reload() {
	if d.path == "" {
		return
	}
	d.active.Store(d.load())
}

func (d *Detector) load() *detectorSet {
	if d.path == "" {
		return d.compile(rules.DefaultPIIDocument())
	}

	doc, err := rules.LoadPIIDocument(d.path)
	if err != nil {
		d.logger.Warn("Failed to load PII patterns, continuing with none",
			zap.String("path", d.path),
			zap.Error(err))
		return &detectorSet{}
	}

	return d.compile(doc)
}

func (d *Detector) compile(doc *rules.PIIDocument) *detectorSet {
	ds := &detectorSet{version: doc.Version}

	// Deterministic category order keeps dedup tie-breaking stable.
	keys := make([]string, 0, len(doc.Categories))
	for key := range doc.Categories {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		cat := doc.Categories[key]
		typ, known := categoryTypes[key]
		if !known {
			d.logger.Warn("Unknown PII category, skipped", zap.String("category", key))
			continue
		}
		if !cat.Enabled {
			continue
		}

		cc := compiledCategory{
			typ:             typ,
			maxMatches:      cat.MaxMatches,
			invalidPrefixes: make(map[string]bool, len(cat.InvalidPrefixes)),
		}
		if cc.maxMatches <= 0 {
			cc.maxMatches = defaultMaxMatches
		}
		for _, p := range cat.InvalidPrefixes {
			cc.invalidPrefixes[digitsOf(p)] = true
		}

		for _, p := range cat.Patterns {
			re, err := regexp.Compile(p.Pattern)
			if err != nil {
				d.logger.Warn("PII pattern failed to compile, disabled",
					zap.String("pattern_id", p.ID),
					zap.Error(err))
				continue
			}
			cc.patterns = append(cc.patterns, compiledPattern{
				id:         p.ID,
				re:         re,
				confidence: ParseConfidence(p.Confidence),
				validation: p.Validation,
			})
		}

		for _, e := range cat.Exclusions {
			re, err := regexp.Compile(e)
			if err != nil {
				d.logger.Warn("PII exclusion failed to compile, disabled",
					zap.String("category", key),
					zap.Error(err))
				continue
			}
			cc.exclusions = append(cc.exclusions, re)
		}

		ds.categories = append(ds.categories, cc)
	}

	d.logger.Info("PII patterns compiled",
		zap.String("version", doc.Version),
		zap.Int("categories", len(ds.categories)))

	return ds
}

// Detect scans the text and returns deduplicated matches sorted by
// position. Overlaps are resolved by earliest start, ties by highest
// confidence.
func (d *Detector) Detect(text string) []Match {
	ds := d.active.Load()

	var found []Match
	for _, cat := range ds.categories {
		found = append(found, cat.scan(text)...)
	}

	return dedupe(found)
}

// Enabled reports whether any category is active.
func (d *Detector) Enabled() bool {
	return len(d.active.Load().categories) > 0
}

func (cc *compiledCategory) scan(text string) []Match {
	var matches []Match

	for _, cp := range cc.patterns {
		spans := cp.re.FindAllStringIndex(text, -1)
		for _, span := range spans {
			if len(matches) >= cc.maxMatches {
				return matches
			}

			value := text[span[0]:span[1]]
			if cc.excluded(value) {
				continue
			}

			confidence := cp.confidence
			switch cp.validation {
			case "luhn":
				if !validLuhn(value) {
					continue
				}
			case "ssn":
				digits := digitsOf(value)
				if !validSSNStructure(digits) {
					continue
				}
				if cc.invalidPrefixes[digits] {
					continue
				}
				if hasDateContext(text, span[0], span[1]) {
					continue
				}
				// Structural validity alone does not prove authenticity.
				if confidence.Rank() > ConfidenceMedium.Rank() {
					confidence = ConfidenceMedium
				}
			}

			matches = append(matches, Match{
				Type:       cc.typ,
				Value:      value,
				Start:      span[0],
				End:        span[1],
				Confidence: confidence,
				PatternID:  cp.id,
			})
		}
	}

	return matches
}

func (cc *compiledCategory) excluded(value string) bool {
	for _, re := range cc.exclusions {
		if re.MatchString(value) {
			return true
		}
	}
	return false
}

// dedupe resolves overlapping matches: earliest start wins, ties go to
// the highest confidence. The survivors come back sorted by position.
func dedupe(matches []Match) []Match {
	if len(matches) <= 1 {
		return matches
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Start != matches[j].Start {
			return matches[i].Start < matches[j].Start
		}
		return matches[i].Confidence.Rank() > matches[j].Confidence.Rank()
	})

	kept := make([]Match, 0, len(matches))
	kept = append(kept, matches[0])
	for _, m := range matches[1:] {
		last := kept[len(kept)-1]
		if m.Start < last.End {
			continue
		}
		kept = append(kept, m)
	}

	return kept
}
