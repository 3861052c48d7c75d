package output

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spendlens/guardrails/internal/audit"
	"github.com/spendlens/guardrails/internal/crossuser"
	"github.com/spendlens/guardrails/internal/logger"
	"github.com/spendlens/guardrails/internal/pii"
	"github.com/spendlens/guardrails/internal/redact"
)

// Decision is the pipeline's verdict on a model response.
type Decision string

const (
	// DecisionAllow passes the response through: no PII found.
	DecisionAllow Decision = "ALLOW"
	// DecisionRedact returns the response with PII redacted: only
	// current-user or unattributable PII was found.
	DecisionRedact Decision = "REDACT"
	// DecisionBlock suppresses the entire response: data belonging to
	// another tenant (or never-allowed PII) was found. Partial leakage
	// is not an acceptable outcome.
	DecisionBlock Decision = "BLOCK"
)

// BlockedMessage is the fixed, non-descriptive text callers return in
// place of a blocked response. It deliberately confirms nothing about
// what was detected.
const BlockedMessage = "This response could not be delivered. Please contact support if the problem persists."

// Format tells the pipeline how to redact the response body.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Context identifies the request whose response is being inspected.
type Context struct {
	UserID    string
	SessionID string
	RequestID string
	Endpoint  string
	Response  string
	Format    Format
}

// Result is returned to the response-sending layer.
type Result struct {
	Decision        Decision        `json:"decision"`
	ProcessedText   string          `json:"-"`
	Summary         *redact.Summary `json:"summary,omitempty"`
	SecurityEventID string          `json:"security_event_id,omitempty"`
	PIITypes        []string        `json:"pii_types,omitempty"`
	ContentHash     string          `json:"content_hash"`
	ElapsedMS       float64         `json:"elapsed_ms"`
}

// Pipeline orchestrates PII detection, ownership classification and
// redaction of model responses.
type Pipeline struct {
	detector   *pii.Detector
	classifier *crossuser.Classifier
	redactor   *redact.Redactor
	recorder   *audit.Recorder
	logger     *logger.Logger
	enabled    bool
}

// New creates the output pipeline.
func New(
	detector *pii.Detector,
	classifier *crossuser.Classifier,
	redactor *redact.Redactor,
	recorder *audit.Recorder,
	enabled bool,
	log *logger.Logger,
) *Pipeline {
	return &Pipeline{
		detector:   detector,
		classifier: classifier,
		redactor:   redactor,
		recorder:   recorder,
		logger:     log,
		enabled:    enabled,
	}
}

// Inspect runs the pipeline for one response.
func (p *Pipeline) Inspect(ctx context.Context, oc Context) Result {
	start := time.Now()
	hash := audit.HashContent(oc.Response)

	if !p.enabled {
		result := Result{
			Decision:      DecisionAllow,
			ProcessedText: oc.Response,
			ContentHash:   hash,
			ElapsedMS:     elapsedMS(start),
		}
		p.audit(ctx, oc, result)
		return result
	}

	matches := p.detector.Detect(oc.Response)
	if len(matches) == 0 {
		result := Result{
			Decision:      DecisionAllow,
			ProcessedText: oc.Response,
			ContentHash:   hash,
			ElapsedMS:     elapsedMS(start),
		}
		p.audit(ctx, oc, result)
		return result
	}

	classified := p.classifier.Classify(ctx, oc.UserID, matches)
	piiTypes := typeTaxonomy(classified)

	if blocking := blockingMatches(classified); len(blocking) > 0 {
		event := p.recorder.RecordSecurityEvent(ctx, audit.SecurityEvent{
			Kind:        "cross_user_pii",
			Severity:    "CRITICAL",
			UserID:      oc.UserID,
			RequestID:   oc.RequestID,
			PIITypes:    typeTaxonomy(blocking),
			ContentHash: hash,
		})

		result := Result{
			Decision:        DecisionBlock,
			SecurityEventID: event.ID,
			PIITypes:        piiTypes,
			ContentHash:     hash,
			ElapsedMS:       elapsedMS(start),
		}
		p.audit(ctx, oc, result)

		p.logger.Security("Response blocked: cross-tenant data detected",
			zap.String("request_id", oc.RequestID),
			zap.String("user_id", oc.UserID),
			zap.Strings("pii_types", result.PIITypes),
			zap.String("security_event_id", event.ID),
			zap.String("content_hash", hash))

		return result
	}

	redacted := p.redact(oc, matches)
	result := Result{
		Decision:      DecisionRedact,
		ProcessedText: redacted.RedactedText,
		Summary:       &redacted.Summary,
		PIITypes:      piiTypes,
		ContentHash:   hash,
		ElapsedMS:     elapsedMS(start),
	}
	p.audit(ctx, oc, result)
	return result
}

func (p *Pipeline) redact(oc Context, matches []pii.Match) redact.Result {
	if oc.Format == FormatJSON {
		return p.redactor.RedactJSON(oc.Response)
	}
	return p.redactor.RedactMatches(oc.Response, matches)
}

// blockingMatches returns the matches that force a BLOCK: any
// HIGH-confidence other-user attribution, plus SSN and credit-card
// matches, which may never appear in a response.
func blockingMatches(classified []crossuser.Match) []crossuser.Match {
	var blocking []crossuser.Match
	for _, m := range classified {
		switch {
		case m.Type == pii.TypeSSN, m.Type == pii.TypeCreditCard:
			blocking = append(blocking, m)
		case m.Ownership == crossuser.OwnershipOtherUser && m.Confidence == pii.ConfidenceHigh:
			blocking = append(blocking, m)
		}
	}
	return blocking
}

func typeTaxonomy(classified []crossuser.Match) []string {
	seen := make(map[string]bool)
	var types []string
	for _, m := range classified {
		t := string(m.Type)
		if !seen[t] {
			seen[t] = true
			types = append(types, t)
		}
	}
	return types
}

func (p *Pipeline) audit(ctx context.Context, oc Context, result Result) {
	p.recorder.Record(ctx, audit.Entry{
		RequestID:   oc.RequestID,
		UserID:      oc.UserID,
		SessionID:   oc.SessionID,
		Endpoint:    oc.Endpoint,
		Stage:       "output",
		Decision:    string(result.Decision),
		PIITypes:    result.PIITypes,
		ContentHash: result.ContentHash,
		ElapsedMS:   result.ElapsedMS,
	})
}

func elapsedMS(start time.Time) float64 {
	return float64(time.Since(start).Nanoseconds()) / 1e6
}
