package inspect

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/spendlens/guardrails/internal/anomaly"
	"github.com/spendlens/guardrails/internal/audit"
	"github.com/spendlens/guardrails/internal/escalate"
	"github.com/spendlens/guardrails/internal/lists"
	"github.com/spendlens/guardrails/internal/logger"
	"github.com/spendlens/guardrails/internal/patterns"
)

// Decision is the pipeline's final verdict on an input.
type Decision string

const (
	DecisionAllow    Decision = "ALLOW"
	DecisionBlock    Decision = "BLOCK"
	DecisionEscalate Decision = "ESCALATE"
)

// Context identifies the request whose input is being inspected. The
// raw text lives only here; downstream records carry its hash.
type Context struct {
	UserID    string
	SessionID string
	RequestID string
	Endpoint  string
	Input     string
}

// Result is returned to the request-gating layer.
type Result struct {
	Decision     Decision        `json:"decision"`
	Confidence   float64         `json:"confidence"`
	Score        float64         `json:"score"`
	Factors      anomaly.Factors `json:"factors"`
	PatternIDs   []string        `json:"pattern_ids,omitempty"`
	ListID       string          `json:"list_id,omitempty"`
	EscalationID string          `json:"escalation_id,omitempty"`
	InputHash    string          `json:"input_hash"`
	ElapsedMS    float64         `json:"elapsed_ms"`
}

// Pipeline runs the input inspection stages strictly in order: list
// check (short-circuits), pattern scan, anomaly scoring, decision.
type Pipeline struct {
	lists    *lists.Checker
	patterns *patterns.Matcher
	scorer   *anomaly.Scorer
	queue    *escalate.Queue
	recorder *audit.Recorder
	logger   *logger.Logger
	enabled  bool
}

// New creates the input pipeline. The queue may be nil when escalation
// persistence is not wired, in which case ESCALATE results carry no
// tracking id.
func New(
	checker *lists.Checker,
	matcher *patterns.Matcher,
	scorer *anomaly.Scorer,
	queue *escalate.Queue,
	recorder *audit.Recorder,
	enabled bool,
	log *logger.Logger,
) *Pipeline {
	return &Pipeline{
		lists:    checker,
		patterns: matcher,
		scorer:   scorer,
		queue:    queue,
		recorder: recorder,
		logger:   log,
		enabled:  enabled,
	}
}

// Inspect runs the pipeline for one request.
func (p *Pipeline) Inspect(ctx context.Context, ic Context) Result {
	start := time.Now()
	hash := audit.HashContent(ic.Input)

	if !p.enabled {
		result := Result{
			Decision:   DecisionAllow,
			Confidence: 1.0,
			InputHash:  hash,
			ElapsedMS:  elapsedMS(start),
		}
		p.audit(ctx, ic, result)
		return result
	}

	// Stage 0: allow/block lists short-circuit the pipeline.
	if listResult := p.lists.Check(ic.Input); listResult.Matched {
		result := Result{
			Decision:   Decision(listResult.Decision),
			Confidence: 1.0,
			ListID:     listResult.ListID,
			InputHash:  hash,
			ElapsedMS:  elapsedMS(start),
		}
		p.finish(ctx, ic, result)
		return result
	}

	// Stage 1: pattern scan.
	matched := p.patterns.Match(ic.Input)
	patternIDs := make([]string, 0, len(matched))
	for _, m := range matched {
		patternIDs = append(patternIDs, m.PatternID)
	}

	// Stage 2: anomaly scoring over the matches and raw heuristics.
	score := p.scorer.Score(ic.Input, matched)

	// Stage 3: decision. The decision band comes from the scorer's
	// configured thresholds, which are the single threshold source.
	result := Result{
		Decision:   Decision(score.Decision),
		Confidence: confidenceFor(score.Value),
		Score:      score.Value,
		Factors:    score.Factors,
		PatternIDs: patternIDs,
		InputHash:  hash,
	}

	if result.Decision == DecisionEscalate && p.queue != nil {
		record := p.queue.Enqueue(ctx, escalate.Request{
			UserID:     ic.UserID,
			SessionID:  ic.SessionID,
			RequestID:  ic.RequestID,
			Endpoint:   ic.Endpoint,
			InputHash:  hash,
			Score:      score.Value,
			Factors:    score.Factors,
			PatternIDs: patternIDs,
		})
		result.EscalationID = record.ID
	}

	result.ElapsedMS = elapsedMS(start)
	p.finish(ctx, ic, result)
	return result
}

// confidenceFor is maximal at the score extremes and minimal at the
// ambiguous midpoint.
func confidenceFor(score float64) float64 {
	return math.Abs(score-0.5) * 2
}

func (p *Pipeline) finish(ctx context.Context, ic Context, result Result) {
	p.audit(ctx, ic, result)

	if result.Decision == DecisionBlock || result.Decision == DecisionEscalate {
		p.logger.Security("Input inspection flagged request",
			zap.String("request_id", ic.RequestID),
			zap.String("user_id", ic.UserID),
			zap.String("decision", string(result.Decision)),
			zap.Float64("score", result.Score),
			zap.Strings("pattern_ids", result.PatternIDs),
			zap.String("input_hash", result.InputHash))
	}
}

func (p *Pipeline) audit(ctx context.Context, ic Context, result Result) {
	factors := result.Factors
	p.recorder.Record(ctx, audit.Entry{
		RequestID:   ic.RequestID,
		UserID:      ic.UserID,
		SessionID:   ic.SessionID,
		Endpoint:    ic.Endpoint,
		Stage:       "input",
		Decision:    string(result.Decision),
		Confidence:  result.Confidence,
		Score:       result.Score,
		Factors:     &factors,
		PatternIDs:  result.PatternIDs,
		ListID:      result.ListID,
		ContentHash: result.InputHash,
		ElapsedMS:   result.ElapsedMS,
	})
}

func elapsedMS(start time.Time) float64 {
	return float64(time.Since(start).Nanoseconds()) / 1e6
}
