package rules

// Severity classifies how dangerous a matched pattern is considered.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Weight returns the relative ordering weight of a severity, used when
// sorting matches before scoring. Unknown severities sort lowest.
func (s Severity) Weight() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// InjectionDocument is the on-disk format for prompt-injection patterns.
type InjectionDocument struct {
	Version    string              `yaml:"version"`
	Categories []InjectionCategory `yaml:"categories"`
	Patterns   []InjectionPattern  `yaml:"patterns"`
}

// InjectionCategory groups related injection patterns.
type InjectionCategory struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Severity Severity `yaml:"severity"`
}

// InjectionPattern is a single named attack pattern.
type InjectionPattern struct {
	ID          string   `yaml:"id"`
	Category    string   `yaml:"category"`
	Name        string   `yaml:"name"`
	Pattern     string   `yaml:"pattern"`
	Flags       string   `yaml:"flags,omitempty"`
	Severity    Severity `yaml:"severity"`
	Description string   `yaml:"description,omitempty"`
}

// ListsDocument is the on-disk format for allow and block lists.
type ListsDocument struct {
	Version   string      `yaml:"version"`
	AllowList []ListEntry `yaml:"allow_list"`
	BlockList []ListEntry `yaml:"block_list"`
}

// ListEntry is one allow or block rule. Type is "regex" for a
// case-insensitive pattern; anything else matches as a case-insensitive
// substring.
type ListEntry struct {
	ID      string `yaml:"id"`
	Pattern string `yaml:"pattern"`
	Type    string `yaml:"type"`
	Reason  string `yaml:"reason,omitempty"`
	AddedBy string `yaml:"added_by,omitempty"`
	AddedAt string `yaml:"added_at,omitempty"`
}

// AnomalyDocument is the on-disk format for anomaly scoring rules.
type AnomalyDocument struct {
	Version    string            `yaml:"version"`
	Thresholds Thresholds        `yaml:"thresholds"`
	Pattern    PatternFactor     `yaml:"pattern_factor"`
	Length     LengthFactor      `yaml:"length_factor"`
	Special    SpecialFactor     `yaml:"special_char_factor"`
	Encoding   EncodingFactor    `yaml:"encoding_factor"`
	Language   InstructionFactor `yaml:"instruction_factor"`
}

// Thresholds convert a total anomaly score into a decision.
type Thresholds struct {
	Block    float64 `yaml:"block"`
	Escalate float64 `yaml:"escalate"`
	Allow    float64 `yaml:"allow"`
}

// PatternFactor parameterizes the pattern-match contribution.
type PatternFactor struct {
	SeverityWeights map[Severity]float64 `yaml:"severity_weights"`
	DiminishingRate float64              `yaml:"diminishing_rate"`
	MaxContribution float64              `yaml:"max_contribution"`
}

// LengthFactor parameterizes the input-length contribution.
type LengthFactor struct {
	NormalMin  int     `yaml:"normal_min"`
	NormalMax  int     `yaml:"normal_max"`
	ExtremeMin int     `yaml:"extreme_min"`
	ExtremeMax int     `yaml:"extreme_max"`
	MaxPenalty float64 `yaml:"max_penalty"`
}

// SpecialFactor parameterizes the special-character density contribution.
type SpecialFactor struct {
	DangerousChars   string  `yaml:"dangerous_chars"`
	DensityThreshold float64 `yaml:"density_threshold"`
	Scale            float64 `yaml:"scale"`
	MaxContribution  float64 `yaml:"max_contribution"`
}

// EncodingFactor parameterizes the encoded-payload contribution.
type EncodingFactor struct {
	PerTechnique    float64 `yaml:"per_technique"`
	MaxContribution float64 `yaml:"max_contribution"`
}

// InstructionFactor parameterizes the instruction-language contribution.
type InstructionFactor struct {
	ImperativeVerbs []string `yaml:"imperative_verbs"`
	AIReferences    []string `yaml:"ai_references"`
	Conditionals    []string `yaml:"conditionals"`
	Multiplier      float64  `yaml:"multiplier"`
	MaxContribution float64  `yaml:"max_contribution"`
}

// PIIDocument is the on-disk format for PII detection patterns.
type PIIDocument struct {
	Version    string                 `yaml:"version"`
	Categories map[string]PIICategory `yaml:"categories"`
}

// PIICategory configures detection for one PII type.
type PIICategory struct {
	Enabled         bool         `yaml:"enabled"`
	Patterns        []PIIPattern `yaml:"patterns"`
	Exclusions      []string     `yaml:"exclusions,omitempty"`
	InvalidPrefixes []string     `yaml:"invalid_prefixes,omitempty"`
	MaxMatches      int          `yaml:"max_matches,omitempty"`
}

// PIIPattern is a single PII regex with its default confidence.
type PIIPattern struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Pattern    string `yaml:"pattern"`
	Confidence string `yaml:"confidence"`           // HIGH, MEDIUM, or LOW
	Validation string `yaml:"validation,omitempty"` // luhn or ssn
}
