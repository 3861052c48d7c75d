package lists

import (
	"regexp"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/spendlens/guardrails/internal/logger"
	"github.com/spendlens/guardrails/internal/rules"
)

// Decision is the immediate outcome of a list hit.
type Decision string

const (
	DecisionAllow Decision = "ALLOW"
	DecisionBlock Decision = "BLOCK"
)

// Result reports whether a list entry matched and which one.
type Result struct {
	Matched  bool     `json:"matched"`
	Decision Decision `json:"decision,omitempty"`
	ListID   string   `json:"list_id,omitempty"`
	Reason   string   `json:"reason,omitempty"`
}

// compiledEntry is a list entry prepared for matching. A regex entry that
// failed to compile is retained with compiled=false and never matches.
type compiledEntry struct {
	entry    rules.ListEntry
	isRegex  bool
	lowered  string
	re       *regexp.Regexp
	compiled bool
}

type ruleSet struct {
	allow []*compiledEntry
	block []*compiledEntry
}

// Checker evaluates the allow list in full before the block list; any
// allow hit wins even when a block entry would also match.
type Checker struct {
	logger *logger.Logger
	path   string
	active atomic.Pointer[ruleSet]
}

// New creates a checker from an already-decoded lists document.
func New(doc *rules.ListsDocument, log *logger.Logger) *Checker {
	c := &Checker{logger: log}
	c.active.Store(c.compile(doc))

	log.Info("List checker initialized",
		zap.Int("allow_entries", len(doc.AllowList)),
		zap.Int("block_entries", len(doc.BlockList)))

	return c
}

// NewFromFile creates a checker from a lists file. A missing or invalid
// file yields empty lists: this layer fails open, later layers still
// protect.
func NewFromFile(path string, log *logger.Logger) *Checker {
	c := &Checker{logger: log, path: path}
	c.active.Store(c.load())
	return c
}

// Reload re-reads the configured file and swaps the rule set atomically.
func (c *Checker) Reload() {
	if c.path == "" {
		return
	}
	c.active.Store(c.load())
}

func (c *Checker) load() *ruleSet {
	if c.path == "" {
		return c.compile(rules.DefaultListsDocument())
	}

	doc, err := rules.LoadListsDocument(c.path)
	if err != nil {
		c.logger.Warn("Failed to load lists document, continuing with empty lists",
			zap.String("path", c.path),
			zap.Error(err))
		return &ruleSet{}
	}

	c.logger.Info("Lists document loaded",
		zap.String("version", doc.Version),
		zap.Int("allow_entries", len(doc.AllowList)),
		zap.Int("block_entries", len(doc.BlockList)))

	return c.compile(doc)
}

func (c *Checker) compile(doc *rules.ListsDocument) *ruleSet {
	rs := &ruleSet{
		allow: make([]*compiledEntry, 0, len(doc.AllowList)),
		block: make([]*compiledEntry, 0, len(doc.BlockList)),
	}

	for _, e := range doc.AllowList {
		rs.allow = append(rs.allow, c.compileEntry(e))
	}
	for _, e := range doc.BlockList {
		rs.block = append(rs.block, c.compileEntry(e))
	}

	return rs
}

func (c *Checker) compileEntry(e rules.ListEntry) *compiledEntry {
	ce := &compiledEntry{entry: e}

	if e.Type == "regex" {
		ce.isRegex = true
		re, err := regexp.Compile("(?i)" + e.Pattern)
		if err != nil {
			// The entry stays in the set but never matches; one bad
			// rule must not disable the rest of the list.
			c.logger.Warn("List entry regex failed to compile, entry disabled",
				zap.String("entry_id", e.ID),
				zap.Error(err))
			return ce
		}
		ce.re = re
		ce.compiled = true
		return ce
	}

	ce.lowered = strings.ToLower(e.Pattern)
	ce.compiled = true
	return ce
}

// Check evaluates the input against both lists.
func (c *Checker) Check(input string) Result {
	rs := c.active.Load()
	lowered := strings.ToLower(input)

	for _, ce := range rs.allow {
		if ce.matches(input, lowered) {
			return Result{
				Matched:  true,
				Decision: DecisionAllow,
				ListID:   ce.entry.ID,
				Reason:   ce.entry.Reason,
			}
		}
	}

	for _, ce := range rs.block {
		if ce.matches(input, lowered) {
			return Result{
				Matched:  true,
				Decision: DecisionBlock,
				ListID:   ce.entry.ID,
				Reason:   ce.entry.Reason,
			}
		}
	}

	return Result{}
}

// Size returns the number of active allow and block entries.
func (c *Checker) Size() (allow, block int) {
	rs := c.active.Load()
	return len(rs.allow), len(rs.block)
}

func (ce *compiledEntry) matches(input, lowered string) bool {
	if !ce.compiled {
		return false
	}
	if ce.isRegex {
		return ce.re.MatchString(input)
	}
	return strings.Contains(lowered, ce.lowered)
}
