// Package sacred implements a sealed, tamper-evident registry of core
// functions. Once sealed, the registry is immutable; registration attempts
// and integrity violations count toward an irreversible lockdown.
package sacred

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/octaviaken059/ouroboros-design-sub001/internal/events"
	"github.com/octaviaken059/ouroboros-design-sub001/internal/logging"
)

// ===== ERRORS =====

var (
	// ErrNotSealed is returned by Invoke before StartProtection.
	ErrNotSealed = errors.New("core is not sealed")
	// ErrSealed is returned by mutations attempted after sealing.
	ErrSealed = errors.New("core is sealed")
	// ErrLockedDown is returned by every operation after emergency lockdown.
	ErrLockedDown = errors.New("core is locked down")
	// ErrDuplicateFunction is returned when a name is registered twice.
	ErrDuplicateFunction = errors.New("function already registered")
	// ErrIntegrity is returned when the registry digest no longer matches.
	ErrIntegrity = errors.New("registry integrity violation")
)

// NotFoundError names the missing function.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("core function %q not found", e.Name)
}

// ===== TYPES =====

// CoreFunc is the signature of every registered core function.
type CoreFunc func(ctx context.Context, args ...any) (any, error)

// Config tunes a Core instance. Seal-sensitive fields cannot change after
// StartProtection.
type Config struct {
	StrictMode       bool          `yaml:"strict_mode"` // digest check on every invoke
	TamperThreshold  int           `yaml:"tamper_threshold"`
	ReverifyInterval time.Duration `yaml:"reverify_interval"`
	ExecutionLogSize int           `yaml:"execution_log_size"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		StrictMode:       true,
		TamperThreshold:  5,
		ReverifyInterval: 30 * time.Second,
		ExecutionLogSize: 200,
	}
}

// TamperEvent records one tamper attempt.
type TamperEvent struct {
	Reason    string    `json:"reason"`
	Attempts  int       `json:"attempts"`
	Timestamp time.Time `json:"timestamp"`
}

// LockdownEvent records the irreversible lockdown.
type LockdownEvent struct {
	Reason    string    `json:"reason"`
	Attempts  int       `json:"attempts"`
	Timestamp time.Time `json:"timestamp"`
}

// ExecutionEntry is one row of the bounded execution log.
type ExecutionEntry struct {
	Function  string        `json:"function"`
	OK        bool          `json:"ok"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// ExecResult is delivered by ExecuteAsync.
type ExecResult struct {
	Value any
	Err   error
}

// ProtectionStatus is a point-in-time snapshot.
type ProtectionStatus struct {
	State             SealState `json:"state"`
	Protected         bool      `json:"protected"`
	TamperingDetected bool      `json:"tampering_detected"`
	TamperAttempts    int       `json:"tamper_attempts"`
	IntegrityHash     string    `json:"integrity_hash"`
	FunctionCount     int       `json:"function_count"`
}

// ===== CORE =====

// Core is the sealed function registry. One mutex guards all mutable
// state; event callbacks always run outside the lock.
type Core struct {
	mu             sync.Mutex
	config         Config
	state          SealState
	registry       map[string]CoreFunc
	digest         string
	tamperAttempts int
	execLog        []ExecutionEntry
	stopVerify     chan struct{}
	verifyDone     chan struct{}

	sealed     *events.Hub[string] // carries the integrity digest
	protStart  *events.Hub[struct{}]
	protStop   *events.Hub[struct{}]
	tamper     *events.Hub[TamperEvent]
	lockdown   *events.Hub[LockdownEvent]
	execErrors *events.Hub[ExecutionEntry]
}

// New creates an unsealed core.
func New(cfg Config) *Core {
	def := DefaultConfig()
	if cfg.TamperThreshold <= 0 {
		cfg.TamperThreshold = def.TamperThreshold
	}
	if cfg.ReverifyInterval <= 0 {
		cfg.ReverifyInterval = def.ReverifyInterval
	}
	if cfg.ExecutionLogSize <= 0 {
		cfg.ExecutionLogSize = def.ExecutionLogSize
	}

	return &Core{
		config:     cfg,
		state:      Unsealed,
		registry:   make(map[string]CoreFunc),
		sealed:     events.NewHub[string](),
		protStart:  events.NewHub[struct{}](),
		protStop:   events.NewHub[struct{}](),
		tamper:     events.NewHub[TamperEvent](),
		lockdown:   events.NewHub[LockdownEvent](),
		execErrors: events.NewHub[ExecutionEntry](),
	}
}

// ===== EVENT SUBSCRIPTIONS =====

func (c *Core) OnSealed(fn func(digest string)) (unsubscribe func()) {
	return c.sealed.Subscribe(fn)
}

func (c *Core) OnProtectionStarted(fn func(struct{})) (unsubscribe func()) {
	return c.protStart.Subscribe(fn)
}

func (c *Core) OnProtectionStopped(fn func(struct{})) (unsubscribe func()) {
	return c.protStop.Subscribe(fn)
}

func (c *Core) OnTamperAttempt(fn func(TamperEvent)) (unsubscribe func()) {
	return c.tamper.Subscribe(fn)
}

func (c *Core) OnEmergencyLockdown(fn func(LockdownEvent)) (unsubscribe func()) {
	return c.lockdown.Subscribe(fn)
}

func (c *Core) OnExecutionError(fn func(ExecutionEntry)) (unsubscribe func()) {
	return c.execErrors.Subscribe(fn)
}

// ===== REGISTRATION AND SEALING =====

// RegisterFunction adds a named function to the registry. Only legal while
// Unsealed; attempts after sealing count as tampering.
func (c *Core) RegisterFunction(name string, fn CoreFunc) error {
	if name == "" {
		return errors.New("function name must not be empty")
	}
	if fn == nil {
		return fmt.Errorf("function %q must not be nil", name)
	}

	c.mu.Lock()
	switch c.state {
	case LockedDown:
		c.mu.Unlock()
		return ErrLockedDown
	case Sealed:
		emits := c.recordTamperLocked(fmt.Sprintf("registration of %q after seal", name))
		c.mu.Unlock()
		for _, e := range emits {
			e()
		}
		return fmt.Errorf("register %q: %w", name, ErrSealed)
	}
	if _, exists := c.registry[name]; exists {
		emits := c.recordTamperLocked(fmt.Sprintf("duplicate registration of %q", name))
		c.mu.Unlock()
		for _, e := range emits {
			e()
		}
		return fmt.Errorf("register %q: %w", name, ErrDuplicateFunction)
	}
	c.registry[name] = fn
	c.mu.Unlock()

	logging.Sacred("registered core function %q", name)
	return nil
}

// StartProtection seals the registry, computes its integrity digest and
// starts the background re-verification loop. Idempotent while Sealed.
func (c *Core) StartProtection() error {
	c.mu.Lock()
	switch c.state {
	case LockedDown:
		c.mu.Unlock()
		return ErrLockedDown
	case Sealed:
		c.mu.Unlock()
		return nil
	}

	c.digest = c.computeDigestLocked()
	c.state = Sealed
	c.stopVerify = make(chan struct{})
	c.verifyDone = make(chan struct{})
	go c.verifyLoop(c.config.ReverifyInterval, c.stopVerify, c.verifyDone)
	digest := c.digest
	count := len(c.registry)
	c.mu.Unlock()

	logging.Sacred("core sealed with %d functions, digest %s", count, digest[:12])
	c.sealed.Emit(digest)
	c.protStart.Emit(struct{}{})
	return nil
}

// StopProtection stops the background verification loop. The core stays
// Sealed; unsealing is not a transition that exists.
func (c *Core) StopProtection() {
	c.mu.Lock()
	stopped := c.stopVerifyLocked()
	c.mu.Unlock()

	if stopped {
		logging.Sacred("background verification stopped")
		c.protStop.Emit(struct{}{})
	}
}

// stopVerifyLocked closes the verify loop channel if one is running.
func (c *Core) stopVerifyLocked() bool {
	if c.stopVerify == nil {
		return false
	}
	close(c.stopVerify)
	c.stopVerify = nil
	return true
}

// Wait blocks until the background verification goroutine has exited.
// Intended for orderly shutdown and tests.
func (c *Core) Wait() {
	c.mu.Lock()
	done := c.verifyDone
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (c *Core) verifyLoop(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.VerifyIntegrity()
		}
	}
}

// VerifyIntegrity recomputes the digest and compares it to the sealed one.
// A mismatch counts as a tamper attempt. Returns true when intact.
func (c *Core) VerifyIntegrity() bool {
	c.mu.Lock()
	if c.state != Sealed {
		c.mu.Unlock()
		return c.state != LockedDown
	}
	ok := c.computeDigestLocked() == c.digest
	var emits []func()
	if !ok {
		emits = c.recordTamperLocked("integrity digest mismatch")
	}
	c.mu.Unlock()

	for _, e := range emits {
		e()
	}
	return ok
}

// computeDigestLocked hashes the sorted name/function-pointer pairs.
func (c *Core) computeDigestLocked() string {
	names := make([]string, 0, len(c.registry))
	for name := range c.registry {
		names = append(names, name)
	}
	sort.Strings(names)

	h := sha256.New()
	for _, name := range names {
		fmt.Fprintf(h, "%s\x00%x\n", name, reflect.ValueOf(c.registry[name]).Pointer())
	}
	return hex.EncodeToString(h.Sum(nil))
}

// recordTamperLocked increments the tamper counter and, at the threshold,
// performs the irreversible lockdown. Returns the event emissions to run
// after the lock is released.
func (c *Core) recordTamperLocked(reason string) []func() {
	c.tamperAttempts++
	ev := TamperEvent{Reason: reason, Attempts: c.tamperAttempts, Timestamp: time.Now()}
	emits := []func(){func() {
		logging.SacredWarn("tamper attempt %d/%d: %s", ev.Attempts, c.config.TamperThreshold, ev.Reason)
		c.tamper.Emit(ev)
	}}

	if c.tamperAttempts >= c.config.TamperThreshold && c.state != LockedDown {
		c.registry = make(map[string]CoreFunc)
		c.digest = ""
		c.state = LockedDown
		c.stopVerifyLocked()
		ld := LockdownEvent{Reason: reason, Attempts: c.tamperAttempts, Timestamp: time.Now()}
		emits = append(emits, func() {
			logging.SacredError("EMERGENCY LOCKDOWN after %d tamper attempts: %s", ld.Attempts, ld.Reason)
			c.lockdown.Emit(ld)
		})
	}
	return emits
}

// ===== INVOCATION =====

// Invoke runs a registered function. Legal only while Sealed. Panics inside
// the function are recovered and returned as errors; failures are appended
// to the execution log and emitted before the error is returned.
func (c *Core) Invoke(ctx context.Context, name string, args ...any) (any, error) {
	c.mu.Lock()
	switch c.state {
	case LockedDown:
		c.mu.Unlock()
		return nil, ErrLockedDown
	case Unsealed:
		c.mu.Unlock()
		return nil, ErrNotSealed
	}
	if c.config.StrictMode && c.computeDigestLocked() != c.digest {
		emits := c.recordTamperLocked("integrity digest mismatch at invoke")
		c.mu.Unlock()
		for _, e := range emits {
			e()
		}
		return nil, fmt.Errorf("invoke %q: %w", name, ErrIntegrity)
	}
	fn, ok := c.registry[name]
	c.mu.Unlock()
	if !ok {
		return nil, &NotFoundError{Name: name}
	}

	return c.run(ctx, name, fn, args...)
}

// Execute runs a one-off closure with the same logging and recovery as
// Invoke. Running before the core is sealed logs a warning.
func (c *Core) Execute(ctx context.Context, label string, fn CoreFunc, args ...any) (any, error) {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state == LockedDown {
		return nil, ErrLockedDown
	}
	if state == Unsealed {
		logging.SacredWarn("executing %q while core is unsealed", label)
	}
	return c.run(ctx, label, fn, args...)
}

// ExecuteAsync runs Execute in a goroutine and delivers the result on the
// returned channel.
func (c *Core) ExecuteAsync(ctx context.Context, label string, fn CoreFunc, args ...any) <-chan ExecResult {
	out := make(chan ExecResult, 1)
	go func() {
		v, err := c.Execute(ctx, label, fn, args...)
		out <- ExecResult{Value: v, Err: err}
	}()
	return out
}

func (c *Core) run(ctx context.Context, name string, fn CoreFunc, args ...any) (value any, err error) {
	start := time.Now()
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic in %q: %v", name, r)
			}
		}()
		value, err = fn(ctx, args...)
	}()

	entry := ExecutionEntry{
		Function:  name,
		OK:        err == nil,
		Duration:  time.Since(start),
		Timestamp: time.Now(),
	}
	if err != nil {
		entry.Error = err.Error()
	}

	c.mu.Lock()
	c.execLog = append(c.execLog, entry)
	if len(c.execLog) > c.config.ExecutionLogSize {
		c.execLog = c.execLog[len(c.execLog)-c.config.ExecutionLogSize:]
	}
	c.mu.Unlock()

	if err != nil {
		logging.SacredError("core function %q failed: %v", name, err)
		c.execErrors.Emit(entry)
		return nil, err
	}
	logging.SacredDebug("core function %q completed in %v", name, entry.Duration)
	return value, nil
}

// ===== INTROSPECTION =====

// State returns the current seal state.
func (c *Core) State() SealState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// GetProtectionStatus returns a point-in-time snapshot.
func (c *Core) GetProtectionStatus() ProtectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ProtectionStatus{
		State:             c.state,
		Protected:         c.state == Sealed,
		TamperingDetected: c.tamperAttempts > 0,
		TamperAttempts:    c.tamperAttempts,
		IntegrityHash:     c.digest,
		FunctionCount:     len(c.registry),
	}
}

// GetExecutionLog returns the most recent n entries, newest last.
func (c *Core) GetExecutionLog(n int) []ExecutionEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n <= 0 || n > len(c.execLog) {
		n = len(c.execLog)
	}
	out := make([]ExecutionEntry, n)
	copy(out, c.execLog[len(c.execLog)-n:])
	return out
}

// FunctionNames returns the registered names, sorted.
func (c *Core) FunctionNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.registry))
	for name := range c.registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UpdateConfig applies tuning changes. Seal-sensitive fields (threshold,
// interval, strict mode) are rejected once the core is sealed; the execution
// log size may always shrink or grow.
func (c *Core) UpdateConfig(cfg Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == LockedDown {
		return ErrLockedDown
	}
	if c.state == Sealed {
		if cfg.TamperThreshold != c.config.TamperThreshold ||
			cfg.ReverifyInterval != c.config.ReverifyInterval ||
			cfg.StrictMode != c.config.StrictMode {
			return fmt.Errorf("update config: %w", ErrSealed)
		}
	}
	if cfg.ExecutionLogSize > 0 {
		c.config.ExecutionLogSize = cfg.ExecutionLogSize
	}
	if c.state == Unsealed {
		if cfg.TamperThreshold > 0 {
			c.config.TamperThreshold = cfg.TamperThreshold
		}
		if cfg.ReverifyInterval > 0 {
			c.config.ReverifyInterval = cfg.ReverifyInterval
		}
		c.config.StrictMode = cfg.StrictMode
	}
	return nil
}
