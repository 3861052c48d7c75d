package patterns

import (
	"regexp"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/spendlens/guardrails/internal/logger"
	"github.com/spendlens/guardrails/internal/rules"
)

// maxSampleRunes bounds how much matched text a Match may carry. Matches
// flow into logs and audit records, so the full payload is never copied.
const maxSampleRunes = 50

// neverMatch is the sentinel for patterns that failed to compile. The
// character class is empty, so it structurally cannot match anything.
var neverMatch = regexp.MustCompile(`[^\x00-\x{10FFFF}]`)

// Match is one occurrence of an attack pattern in the input.
type Match struct {
	PatternID string         `json:"pattern_id"`
	Category  string         `json:"category"`
	Severity  rules.Severity `json:"severity"`
	Start     int            `json:"start"`
	End       int            `json:"end"`
	Sample    string         `json:"sample"`
}

type compiledPattern struct {
	def rules.InjectionPattern
	re  *regexp.Regexp
}

type patternSet struct {
	patterns []*compiledPattern
	version  string
}

// Matcher scans input against the compiled injection pattern set.
type Matcher struct {
	logger *logger.Logger
	path   string
	active atomic.Pointer[patternSet]
}

// New creates a matcher from an already-decoded patterns document.
func New(doc *rules.InjectionDocument, log *logger.Logger) *Matcher {
	m := &Matcher{logger: log}
	m.active.Store(m.compile(doc))

	log.Info("Pattern matcher initialized",
		zap.String("version", doc.Version),
		zap.Int("patterns", len(doc.Patterns)))

	return m
}

// NewFromFile creates a matcher from a patterns file. A missing or
// invalid file yields zero patterns; the anomaly scorer's remaining
// factors still apply.
func NewFromFile(path string, log *logger.Logger) *Matcher {
	m := &Matcher{logger: log, path: path}
	m.active.Store(m.load())
	return m
}

// Reload re-reads the configured file and swaps the pattern set atomically.
func (m *Matcher) Reload() {
	if m.path == "" {
		return
	}
	m.active.Store(m.load())
}

func (m *Matcher) load() *patternSet {
	if m.path == "" {
		return m.compile(rules.DefaultInjectionDocument())
	}

	doc, err := rules.LoadInjectionDocument(m.path)
	if err != nil {
		m.logger.Warn("Failed to load injection patterns, continuing with none",
			zap.String("path", m.path),
			zap.Error(err))
		return &patternSet{}
	}

	return m.compile(doc)
}

// compile builds the pattern set. Case-insensitive matching is forced on
// every pattern; a pattern that fails to compile is replaced with a
// sentinel that never matches so one bad rule cannot disable the rest.
func (m *Matcher) compile(doc *rules.InjectionDocument) *patternSet {
	ps := &patternSet{
		patterns: make([]*compiledPattern, 0, len(doc.Patterns)),
		version:  doc.Version,
	}

	for _, def := range doc.Patterns {
		re, err := regexp.Compile("(?i)" + def.Pattern)
		if err != nil {
			m.logger.Warn("Injection pattern failed to compile, disabled",
				zap.String("pattern_id", def.ID),
				zap.Error(err))
			re = neverMatch
		}
		ps.patterns = append(ps.patterns, &compiledPattern{def: def, re: re})
	}

	m.logger.Info("Injection patterns compiled",
		zap.String("version", doc.Version),
		zap.Int("patterns", len(ps.patterns)))

	return ps
}

// Match performs a full scan of the input against every pattern. Multiple
// occurrences of the same pattern yield multiple matches, each with its
// own span.
func (m *Matcher) Match(input string) []Match {
	ps := m.active.Load()

	var matches []Match
	for _, cp := range ps.patterns {
		for _, span := range cp.re.FindAllStringIndex(input, -1) {
			matches = append(matches, Match{
				PatternID: cp.def.ID,
				Category:  cp.def.Category,
				Severity:  cp.def.Severity,
				Start:     span[0],
				End:       span[1],
				Sample:    truncate(input[span[0]:span[1]]),
			})
		}
	}

	return matches
}

// Size returns the number of active patterns.
func (m *Matcher) Size() int {
	return len(m.active.Load().patterns)
}

// Version returns the version string of the active document.
func (m *Matcher) Version() string {
	return m.active.Load().version
}

func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= maxSampleRunes {
		return s
	}
	return string(runes[:maxSampleRunes])
}
