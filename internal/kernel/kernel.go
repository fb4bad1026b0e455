// Package kernel wires the three safety layers into a single facade: the
// immunity gate for untrusted text, the dual-mind verifier for proposed
// actions, and the sealed core for protected execution.
package kernel

import (
	"context"
	"errors"
	"fmt"

	"github.com/octaviaken059/ouroboros-design-sub001/internal/config"
	"github.com/octaviaken059/ouroboros-design-sub001/internal/dualmind"
	"github.com/octaviaken059/ouroboros-design-sub001/internal/immunity"
	"github.com/octaviaken059/ouroboros-design-sub001/internal/logging"
	"github.com/octaviaken059/ouroboros-design-sub001/internal/sacred"
	"github.com/octaviaken059/ouroboros-design-sub001/internal/store"
)

// ProcessUserInputFunc is the name of the built-in core function that runs
// untrusted text through the full three-layer pipeline.
const ProcessUserInputFunc = "processUserInput"

// SafetyKernel owns one instance of each protection layer plus an optional
// audit store wired through event subscriptions.
type SafetyKernel struct {
	immunity *immunity.Immunity
	verifier *dualmind.Verifier
	core     *sacred.Core
	audit    *store.AuditStore

	unsubscribe []func()
}

// Option customizes kernel construction.
type Option func(*options)

type options struct {
	reasoner dualmind.Reasoner
	audit    *store.AuditStore
}

// WithReasoner attaches a language-model backend to the verifier.
func WithReasoner(r dualmind.Reasoner) Option {
	return func(o *options) { o.reasoner = r }
}

// WithAuditStore persists kernel events to the given store. The kernel does
// not take ownership; the caller closes it.
func WithAuditStore(s *store.AuditStore) Option {
	return func(o *options) { o.audit = s }
}

// New builds a kernel from configuration and wires the audit subscriptions.
// The built-in processUserInput core function is registered; the caller adds
// its own functions and then calls Seal.
func New(cfg *config.Config, opts ...Option) (*SafetyKernel, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	k := &SafetyKernel{
		immunity: immunity.New(cfg.Immunity),
		verifier: dualmind.New(o.reasoner, cfg.DualMind),
		core:     sacred.New(cfg.Sacred),
		audit:    o.audit,
	}

	if err := k.core.RegisterFunction(ProcessUserInputFunc, k.processUserInput); err != nil {
		return nil, fmt.Errorf("register builtin: %w", err)
	}

	k.wireAudit()
	logging.Kernel("safety kernel assembled (reasoner=%v audit=%v)",
		o.reasoner != nil, o.audit != nil)
	return k, nil
}

// wireAudit subscribes the audit store (when present) to the engines'
// event hubs. Persistence failures are logged, never propagated; the
// kernel's decisions do not depend on the audit trail.
func (k *SafetyKernel) wireAudit() {
	if k.audit == nil {
		return
	}
	k.unsubscribe = append(k.unsubscribe,
		k.immunity.OnAttackDetected(func(ev immunity.AttackEvent) {
			if err := k.audit.RecordAttack(ev); err != nil {
				logging.StoreError("failed to persist attack event: %v", err)
			}
		}),
		k.verifier.OnCompleted(func(res dualmind.VerificationResult) {
			if err := k.audit.RecordVerification(res); err != nil {
				logging.StoreError("failed to persist verification: %v", err)
			}
		}),
		k.core.OnTamperAttempt(func(ev sacred.TamperEvent) {
			if err := k.audit.RecordTamper(ev); err != nil {
				logging.StoreError("failed to persist tamper event: %v", err)
			}
		}),
		k.core.OnExecutionError(func(entry sacred.ExecutionEntry) {
			if err := k.audit.RecordExecution(entry); err != nil {
				logging.StoreError("failed to persist execution: %v", err)
			}
		}),
	)
}

// Close detaches the audit subscriptions and stops background protection.
func (k *SafetyKernel) Close() {
	for _, u := range k.unsubscribe {
		u()
	}
	k.unsubscribe = nil
	k.core.StopProtection()
	k.core.Wait()
}

// ===== LAYER ACCESS =====

// Immunity exposes the first layer for allow-list and pattern management.
func (k *SafetyKernel) Immunity() *immunity.Immunity { return k.immunity }

// Verifier exposes the second layer.
func (k *SafetyKernel) Verifier() *dualmind.Verifier { return k.verifier }

// Core exposes the third layer.
func (k *SafetyKernel) Core() *sacred.Core { return k.core }

// ===== OPERATIONS =====

// ScreenInput runs untrusted text through the immunity gate.
func (k *SafetyKernel) ScreenInput(text string) immunity.DetectionResult {
	return k.immunity.DetectAttack(text)
}

// ApproveAction sanitizes a proposal and submits the sanitized form to
// dual-mind verification.
func (k *SafetyKernel) ApproveAction(ctx context.Context, task, proposal string) dualmind.VerificationResult {
	san := k.immunity.Sanitize(proposal)
	if san.WasModified {
		logging.KernelWarn("proposal sanitized before verification (threats: %v)", san.Threats)
	}
	return k.verifier.Verify(ctx, task, san.Sanitized)
}

// RegisterCoreFunction adds a protected function. Legal only before Seal.
func (k *SafetyKernel) RegisterCoreFunction(name string, fn sacred.CoreFunc) error {
	return k.core.RegisterFunction(name, fn)
}

// Seal locks the registry and starts integrity protection.
func (k *SafetyKernel) Seal() error {
	return k.core.StartProtection()
}

// Invoke runs a sealed core function.
func (k *SafetyKernel) Invoke(ctx context.Context, name string, args ...any) (any, error) {
	return k.core.Invoke(ctx, name, args...)
}

// ProcessedInput is the success result of the built-in processUserInput
// core function.
type ProcessedInput struct {
	Processed bool   `json:"processed"`
	Input     string `json:"input"`
}

// BlockedInput is the rejection result of the built-in processUserInput
// core function. A blocked attack is a successful defense, not an
// execution failure, so the function returns this value with a nil error.
type BlockedInput struct {
	Blocked    bool                `json:"blocked"`
	Type       immunity.AttackType `json:"type"`
	Confidence float64             `json:"confidence"`
}

// processUserInput is the built-in pipeline: screen the text, block attacks,
// and hand clean input onward. Args: the user text as args[0].
func (k *SafetyKernel) processUserInput(ctx context.Context, args ...any) (any, error) {
	if len(args) == 0 {
		return nil, errors.New("processUserInput requires the input text")
	}
	text, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("processUserInput expects a string, got %T", args[0])
	}

	detection := k.immunity.DetectAttack(text)
	if detection.IsAttack {
		logging.KernelWarn("input blocked: %s (confidence %.2f)",
			detection.Type, detection.Confidence)
		return BlockedInput{
			Blocked:    true,
			Type:       detection.Type,
			Confidence: detection.Confidence,
		}, nil
	}

	san := k.immunity.Sanitize(text)
	return ProcessedInput{Processed: true, Input: san.Sanitized}, nil
}
