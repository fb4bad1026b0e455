// Package logging provides categorized structured logging for the safety
// kernel. Each subsystem logs under its own category so that operators can
// raise verbosity for a single engine (say, sacred-core tamper handling)
// without drowning in attack-scan chatter.
package logging

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies a kernel subsystem.
type Category string

const (
	CategoryBoot     Category = "boot"     // Process/kernel initialization
	CategoryImmunity Category = "immunity" // Attack detection and sanitization
	CategoryDualMind Category = "dualmind" // Dual-mind verification
	CategorySacred   Category = "sacred"   // Sacred core registry and tamper handling
	CategoryKernel   Category = "kernel"   // Hosting facade wiring
	CategoryStore    Category = "store"    // Audit store persistence
	CategoryAPI      Category = "api"      // Reasoner/LLM calls
)

var (
	mu      sync.RWMutex
	root    *zap.Logger
	loggers map[Category]*zap.SugaredLogger
)

func init() {
	root = zap.NewNop()
	loggers = make(map[Category]*zap.SugaredLogger)
}

// Initialize installs the root zap logger all categories derive from.
// Safe to call more than once; the last logger wins.
func Initialize(logger *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger = zap.NewNop()
	}
	root = logger
	loggers = make(map[Category]*zap.SugaredLogger)
}

// InitializeDevelopment builds a console logger, optionally at debug level.
// Mirrors the CLI bootstrap; library users should prefer Initialize.
func InitializeDevelopment(verbose bool) error {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	Initialize(logger)
	return nil
}

// Get returns the sugared logger for a category.
func Get(category Category) *zap.SugaredLogger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l := root.Named(string(category)).Sugar()
	loggers[category] = l
	return l
}

// Sync flushes the root logger. Call before process exit.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = root.Sync()
}

// Category helpers. Printf-style, matching call sites throughout the kernel.

func Boot(format string, args ...interface{})          { Get(CategoryBoot).Infof(format, args...) }
func Immunity(format string, args ...interface{})      { Get(CategoryImmunity).Infof(format, args...) }
func ImmunityDebug(format string, args ...interface{}) { Get(CategoryImmunity).Debugf(format, args...) }
func ImmunityWarn(format string, args ...interface{})  { Get(CategoryImmunity).Warnf(format, args...) }
func DualMind(format string, args ...interface{})      { Get(CategoryDualMind).Infof(format, args...) }
func DualMindDebug(format string, args ...interface{}) { Get(CategoryDualMind).Debugf(format, args...) }
func DualMindWarn(format string, args ...interface{})  { Get(CategoryDualMind).Warnf(format, args...) }
func DualMindError(format string, args ...interface{}) { Get(CategoryDualMind).Errorf(format, args...) }
func Sacred(format string, args ...interface{})        { Get(CategorySacred).Infof(format, args...) }
func SacredDebug(format string, args ...interface{})   { Get(CategorySacred).Debugf(format, args...) }
func SacredWarn(format string, args ...interface{})    { Get(CategorySacred).Warnf(format, args...) }
func SacredError(format string, args ...interface{})   { Get(CategorySacred).Errorf(format, args...) }
func Kernel(format string, args ...interface{})        { Get(CategoryKernel).Infof(format, args...) }
func KernelWarn(format string, args ...interface{})    { Get(CategoryKernel).Warnf(format, args...) }
func Store(format string, args ...interface{})         { Get(CategoryStore).Infof(format, args...) }
func StoreError(format string, args ...interface{})    { Get(CategoryStore).Errorf(format, args...) }
func API(format string, args ...interface{})           { Get(CategoryAPI).Infof(format, args...) }
func APIError(format string, args ...interface{})      { Get(CategoryAPI).Errorf(format, args...) }

// Timer measures an operation's duration for a category.
type Timer struct {
	category  Category
	operation string
	start     time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, operation: operation, start: time.Now()}
}

// Stop logs the elapsed time at debug level and returns it.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debugf("%s took %v", t.operation, elapsed)
	return elapsed
}

// StopWithThreshold logs at warn level when elapsed exceeds the threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warnf("SLOW: %s took %v (threshold %v)", t.operation, elapsed, threshold)
	} else {
		Get(t.category).Debugf("%s took %v", t.operation, elapsed)
	}
	return elapsed
}
