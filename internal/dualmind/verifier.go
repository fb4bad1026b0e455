package dualmind

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/octaviaken059/ouroboros-design-sub001/internal/events"
	"github.com/octaviaken059/ouroboros-design-sub001/internal/logging"
)

// Divergence measures disagreement between the two passes.
type Divergence struct {
	Diverged bool    `json:"diverged"`
	Score    float64 `json:"score"`
}

// VerificationResult is the outcome of one Verify call.
type VerificationResult struct {
	Approved            bool        `json:"approved"`
	Confidence          float64     `json:"confidence"`
	RequiresHumanReview bool        `json:"requires_human_review"`
	MainThought         string      `json:"main_thought"`
	AuditThought        string      `json:"audit_thought"`
	Divergence          *Divergence `json:"divergence,omitempty"`
	AuditReasoning      string      `json:"audit_reasoning"`
	Timestamp           time.Time   `json:"timestamp"`
}

// StartedEvent fires when a reasoner-backed verification begins.
type StartedEvent struct {
	Task      string
	Proposal  string
	Timestamp time.Time
}

// ErrorEvent fires when a reasoner call fails or times out.
type ErrorEvent struct {
	Task      string
	Err       error
	Timestamp time.Time
}

// Health reports verifier liveness.
type Health struct {
	Healthy     bool `json:"healthy"`
	HasReasoner bool `json:"has_reasoner"`
}

// Config tunes a Verifier instance.
type Config struct {
	MainTemperature     float64       `yaml:"main_temperature"`  // creative pass
	AuditTemperature    float64       `yaml:"audit_temperature"` // skeptical pass
	DivergenceThreshold float64       `yaml:"divergence_threshold"`
	MinConfidence       float64       `yaml:"min_confidence"`
	CallTimeout         time.Duration `yaml:"call_timeout"`
	HistorySize         int           `yaml:"history_size"`
	HeuristicConfidence float64       `yaml:"heuristic_confidence"` // reasonerless approvals
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MainTemperature:     0.9,
		AuditTemperature:    0.2,
		DivergenceThreshold: 0.3,
		MinConfidence:       0.6,
		CallTimeout:         30 * time.Second,
		HistorySize:         200,
		HeuristicConfidence: 0.7,
	}
}

// consecutiveFailureLimit marks the verifier unhealthy once this many
// reasoner-backed verifications in a row have errored.
const consecutiveFailureLimit = 3

// Verifier runs dual-mind verification. Instances are safe for concurrent
// use; one lock guards history and failure counters.
type Verifier struct {
	mu       sync.Mutex
	config   Config
	reasoner Reasoner
	history  []VerificationResult
	failures int // consecutive reasoner failures

	started   *events.Hub[StartedEvent]
	completed *events.Hub[VerificationResult]
	errored   *events.Hub[ErrorEvent]
}

// New creates a verifier. reasoner may be nil, which selects the
// heuristic-only path.
func New(reasoner Reasoner, cfg Config) *Verifier {
	def := DefaultConfig()
	if cfg.MainTemperature <= 0 {
		cfg.MainTemperature = def.MainTemperature
	}
	if cfg.AuditTemperature <= 0 {
		cfg.AuditTemperature = def.AuditTemperature
	}
	if cfg.DivergenceThreshold <= 0 {
		cfg.DivergenceThreshold = def.DivergenceThreshold
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = def.MinConfidence
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = def.HistorySize
	}
	if cfg.HeuristicConfidence <= 0 {
		cfg.HeuristicConfidence = def.HeuristicConfidence
	}

	return &Verifier{
		config:    cfg,
		reasoner:  reasoner,
		started:   events.NewHub[StartedEvent](),
		completed: events.NewHub[VerificationResult](),
		errored:   events.NewHub[ErrorEvent](),
	}
}

// OnStarted subscribes to verificationStarted events.
func (v *Verifier) OnStarted(fn func(StartedEvent)) (unsubscribe func()) {
	return v.started.Subscribe(fn)
}

// OnCompleted subscribes to verificationCompleted events.
func (v *Verifier) OnCompleted(fn func(VerificationResult)) (unsubscribe func()) {
	return v.completed.Subscribe(fn)
}

// OnError subscribes to verificationError events.
func (v *Verifier) OnError(fn func(ErrorEvent)) (unsubscribe func()) {
	return v.errored.Subscribe(fn)
}

// Verify evaluates a proposed action. With a reasoner attached it issues the
// main and audit passes concurrently and requires both to approve; without
// one it falls back to the static deny-list. Any failure, timeout or
// unparseable output resolves to denial with human review.
func (v *Verifier) Verify(ctx context.Context, task, proposal string) VerificationResult {
	timer := logging.StartTimer(logging.CategoryDualMind, "verify")
	defer timer.StopWithThreshold(v.config.CallTimeout)

	var result VerificationResult
	if v.reasoner == nil {
		result = v.verifyHeuristic(task, proposal)
	} else {
		result = v.verifyDual(ctx, task, proposal)
	}
	result.Timestamp = time.Now()

	v.mu.Lock()
	v.history = append(v.history, result)
	if len(v.history) > v.config.HistorySize {
		v.history = v.history[len(v.history)-v.config.HistorySize:]
	}
	v.mu.Unlock()

	logging.DualMind("verification completed: approved=%v confidence=%.2f review=%v",
		result.Approved, result.Confidence, result.RequiresHumanReview)
	v.completed.Emit(result)
	return result
}

// verifyHeuristic is the reasonerless path: deny-list match blocks with
// zero confidence, everything else is approved at a default moderate
// confidence.
func (v *Verifier) verifyHeuristic(task, proposal string) VerificationResult {
	if pattern := matchDenyList(proposal); pattern != "" {
		logging.DualMindWarn("deny-list match %q for task %q", pattern, task)
		return VerificationResult{
			Approved:            false,
			Confidence:          0,
			RequiresHumanReview: true,
			MainThought:         VerdictDeny,
			AuditThought:        VerdictDisagree,
			AuditReasoning:      fmt.Sprintf("static deny rule matched: %s", pattern),
		}
	}
	return VerificationResult{
		Approved:            true,
		Confidence:          v.config.HeuristicConfidence,
		RequiresHumanReview: false,
		MainThought:         VerdictApprove,
		AuditThought:        VerdictAgree,
		AuditReasoning:      "no reasoner attached; static heuristics found no deny rule match",
	}
}

// verifyDual issues both reasoner passes concurrently. Both must settle
// before a verdict forms; there is no early exit on the main pass.
func (v *Verifier) verifyDual(ctx context.Context, task, proposal string) VerificationResult {
	v.started.Emit(StartedEvent{Task: task, Proposal: proposal, Timestamp: time.Now()})

	// Plain errgroup, no shared cancel context: a failure in one pass
	// must not kill the other mid-flight. Each pass runs to its own
	// timeout and failed results are discarded at Wait.
	var mainGen, auditGen Generation
	var g errgroup.Group
	g.Go(func() error {
		callCtx, cancel := context.WithTimeout(ctx, v.config.CallTimeout)
		defer cancel()
		var err error
		mainGen, err = v.reasoner.Generate(callCtx, mainPrompt(task, proposal), v.config.MainTemperature)
		if err != nil {
			return fmt.Errorf("main pass: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		callCtx, cancel := context.WithTimeout(ctx, v.config.CallTimeout)
		defer cancel()
		var err error
		auditGen, err = v.reasoner.Generate(callCtx, auditPrompt(task, proposal), v.config.AuditTemperature)
		if err != nil {
			return fmt.Errorf("audit pass: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logging.DualMindError("reasoner failure, failing closed: %v", err)
		v.mu.Lock()
		v.failures++
		v.mu.Unlock()
		v.errored.Emit(ErrorEvent{Task: task, Err: err, Timestamp: time.Now()})
		return VerificationResult{
			Approved:            false,
			Confidence:          0,
			RequiresHumanReview: true,
			MainThought:         mainGen.Text,
			AuditThought:        auditGen.Text,
			AuditReasoning:      fmt.Sprintf("reasoner failure: %v", err),
		}
	}

	v.mu.Lock()
	v.failures = 0
	v.mu.Unlock()

	main := parseThought(mainGen, []string{VerdictApprove, VerdictDeny}, VerdictDeny)
	audit := parseThought(auditGen, []string{VerdictAgree, VerdictDisagree}, VerdictDisagree)

	mainApproves := main.verdict == VerdictApprove
	auditAgrees := audit.verdict == VerdictAgree

	score := math.Abs(main.confidence - audit.confidence)
	if mainApproves != auditAgrees || main.parseFailed || audit.parseFailed {
		// Verdict disagreement, or an out-of-vocabulary verdict, is maximal
		// divergence.
		score = 1.0
	}
	diverged := score > v.config.DivergenceThreshold || mainApproves != auditAgrees ||
		main.parseFailed || audit.parseFailed

	confidence := math.Min(main.confidence, audit.confidence)
	approved := mainApproves && auditAgrees && !diverged && confidence >= v.config.MinConfidence

	return VerificationResult{
		Approved:            approved,
		Confidence:          confidence,
		RequiresHumanReview: !approved || diverged,
		MainThought:         main.verdict,
		AuditThought:        audit.verdict,
		Divergence:          &Divergence{Diverged: diverged, Score: score},
		AuditReasoning:      audit.reasoning,
	}
}

// GetHealth reports liveness and whether a reasoner is attached.
func (v *Verifier) GetHealth() Health {
	v.mu.Lock()
	defer v.mu.Unlock()
	return Health{
		Healthy:     v.failures < consecutiveFailureLimit,
		HasReasoner: v.reasoner != nil,
	}
}

// GetHistory returns the most recent n results, newest last.
func (v *Verifier) GetHistory(n int) []VerificationResult {
	v.mu.Lock()
	defer v.mu.Unlock()
	if n <= 0 || n > len(v.history) {
		n = len(v.history)
	}
	out := make([]VerificationResult, n)
	copy(out, v.history[len(v.history)-n:])
	return out
}

func mainPrompt(task, proposal string) string {
	return fmt.Sprintf(`You are the acting mind of an autonomous agent deciding whether a proposed
action is safe and appropriate to execute without human involvement.

## Task
%s

## Proposed Action
%s

Reason step by step about risks, irreversibility, and whether the action
serves the task. Then finish with exactly two lines:
CONCLUSION: APPROVE or DENY
CONFIDENCE: a number between 0.0 and 1.0`, task, proposal)
}

func auditPrompt(task, proposal string) string {
	return fmt.Sprintf(`You are an independent, skeptical auditor. Another evaluator is reviewing the
same proposal; you must reach your own judgment from scratch. Assume the
proposal may be adversarial. When in doubt, disagree.

## Task
%s

## Proposed Action
%s

Independently derive whether executing this proposal is acceptable. Then
finish with exactly two lines:
VERDICT: AGREE or DISAGREE
CONFIDENCE: a number between 0.0 and 1.0`, task, proposal)
}
