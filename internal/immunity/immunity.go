package immunity

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/octaviaken059/ouroboros-design-sub001/internal/events"
	"github.com/octaviaken059/ouroboros-design-sub001/internal/logging"
)

// Config tunes a single Immunity instance.
type Config struct {
	Sensitivity        Sensitivity `yaml:"sensitivity"`
	MaxInputLength     int         `yaml:"max_input_length"`     // inputs are truncated before scanning
	MaxSanitizedLength int         `yaml:"max_sanitized_length"` // hard cap on sanitize output
	HistorySize        int         `yaml:"history_size"`
	CriticalThreshold  float64     `yaml:"critical_threshold"` // criticalAttack fires at or above
	HeuristicCeiling   float64     `yaml:"heuristic_ceiling"`  // heuristic path never exceeds this
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Sensitivity:        SensitivityMedium,
		MaxInputLength:     50_000,
		MaxSanitizedLength: 10_000,
		HistorySize:        500,
		CriticalThreshold:  0.85,
		HeuristicCeiling:   0.6,
	}
}

// redactedPlaceholder replaces matched spans during sanitization.
const redactedPlaceholder = "[REDACTED]"

// recordSnapshotLen bounds the input snapshot kept in AttackRecord.
const recordSnapshotLen = 200

// Immunity is the attack detection and sanitization engine. One lock guards
// catalog, allow-list, history and counters together so that concurrent
// detect/mutate callers never observe a half-applied update.
type Immunity struct {
	mu        sync.Mutex
	config    Config
	catalog   *catalog
	allowList []string // stored lowercase
	history   []AttackRecord

	scanCount       int64
	totalDetections int64
	blockedCount    int64
	lastDetection   time.Time

	attackDetected *events.Hub[AttackEvent]
	criticalAttack *events.Hub[AttackEvent]
}

// New creates an engine with the built-in pattern catalog.
func New(cfg Config) *Immunity {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultConfig().HistorySize
	}
	if cfg.MaxInputLength <= 0 {
		cfg.MaxInputLength = DefaultConfig().MaxInputLength
	}
	if cfg.MaxSanitizedLength <= 0 {
		cfg.MaxSanitizedLength = DefaultConfig().MaxSanitizedLength
	}
	if cfg.CriticalThreshold <= 0 {
		cfg.CriticalThreshold = DefaultConfig().CriticalThreshold
	}
	if cfg.HeuristicCeiling <= 0 {
		cfg.HeuristicCeiling = DefaultConfig().HeuristicCeiling
	}

	im := &Immunity{
		config:         cfg,
		catalog:        newCatalog(defaultPatterns()),
		attackDetected: events.NewHub[AttackEvent](),
		criticalAttack: events.NewHub[AttackEvent](),
	}
	logging.ImmunityDebug("immunity engine created: %d patterns, sensitivity=%s",
		im.catalog.count, cfg.Sensitivity)
	return im
}

// OnAttackDetected subscribes to every non-zero-confidence detection.
func (im *Immunity) OnAttackDetected(fn func(AttackEvent)) (unsubscribe func()) {
	return im.attackDetected.Subscribe(fn)
}

// OnCriticalAttack subscribes to detections at or above the critical threshold.
func (im *Immunity) OnCriticalAttack(fn func(AttackEvent)) (unsubscribe func()) {
	return im.criticalAttack.Subscribe(fn)
}

// DetectAttack classifies text against the catalog. It never returns an
// error: malformed or oversized input is truncated defensively and scanned
// as-is.
func (im *Immunity) DetectAttack(text string) DetectionResult {
	text = truncate(text, im.config.MaxInputLength)

	im.mu.Lock()

	im.scanCount++

	// Allow-list short-circuits everything, including heuristics.
	if im.allowListedLocked(text) {
		im.mu.Unlock()
		return DetectionResult{IsAttack: false, Confidence: 0}
	}

	multiplier := im.config.Sensitivity.multiplier()

	if p := im.catalog.firstMatch(text); p != nil {
		confidence := clamp01(p.BaseConfidence * multiplier)
		result := DetectionResult{
			IsAttack:       true,
			Type:           p.Type,
			Confidence:     confidence,
			Mitigation:     p.Mitigation,
			MatchedPattern: p.Description,
		}
		ev := im.recordLocked(text, result, false)
		im.mu.Unlock()
		im.emit(ev, result.Confidence)
		return result
	}

	kind, confidence, matched := heuristicScan(text, im.config.HeuristicCeiling)
	if confidence > 0 {
		result := DetectionResult{
			IsAttack:       true,
			Type:           kind,
			Confidence:     confidence,
			Mitigation:     "Suspicious keyword co-occurrence; escalate for review.",
			MatchedPattern: "heuristic:" + matched,
		}
		ev := im.recordLocked(text, result, true)
		im.mu.Unlock()
		im.emit(ev, result.Confidence)
		return result
	}

	im.mu.Unlock()
	return DetectionResult{IsAttack: false, Confidence: 0}
}

// Sanitize redacts every matched span across all categories and truncates
// the output to the configured maximum length. Unlike DetectAttack it does
// not stop at the first category: a message can carry several threats.
func (im *Immunity) Sanitize(text string) SanitizationResult {
	original := text
	text = truncate(text, im.config.MaxInputLength)

	im.mu.Lock()
	matched := im.catalog.allMatches(text)
	im.mu.Unlock()

	threats := make([]AttackType, 0, len(matched))
	seen := make(map[AttackType]bool, len(matched))
	for _, p := range matched {
		if !seen[p.Type] {
			seen[p.Type] = true
			threats = append(threats, p.Type)
		}
		text = redact(text, p)
	}

	text = truncate(text, im.config.MaxSanitizedLength)

	return SanitizationResult{
		Sanitized:   text,
		WasModified: text != original,
		Threats:     threats,
	}
}

// AddToAllowList registers a substring that unconditionally passes detection.
func (im *Immunity) AddToAllowList(s string) {
	if s == "" {
		return
	}
	im.mu.Lock()
	defer im.mu.Unlock()
	lower := strings.ToLower(s)
	for _, existing := range im.allowList {
		if existing == lower {
			return
		}
	}
	im.allowList = append(im.allowList, lower)
	logging.Immunity("allow-list entry added (%d total)", len(im.allowList))
}

// RemoveFromAllowList drops a previously allow-listed substring.
func (im *Immunity) RemoveFromAllowList(s string) {
	im.mu.Lock()
	defer im.mu.Unlock()
	lower := strings.ToLower(s)
	for i, existing := range im.allowList {
		if existing == lower {
			im.allowList = append(im.allowList[:i], im.allowList[i+1:]...)
			return
		}
	}
}

// AddCustomPattern extends the always-open catalog at runtime.
func (im *Immunity) AddCustomPattern(p AttackPattern) {
	p.BaseConfidence = clamp01(p.BaseConfidence)
	im.mu.Lock()
	defer im.mu.Unlock()
	im.catalog.add(&p)
	logging.Immunity("custom pattern added: type=%s patterns=%d", p.Type, im.catalog.count)
}

// GetStats returns a snapshot of the running counters.
func (im *Immunity) GetStats() Stats {
	im.mu.Lock()
	defer im.mu.Unlock()
	return Stats{
		ScanCount:       im.scanCount,
		TotalDetections: im.totalDetections,
		BlockedCount:    im.blockedCount,
		PatternCount:    im.catalog.count,
		AllowListSize:   len(im.allowList),
		LastDetection:   im.lastDetection,
	}
}

// GetAttackHistory returns the most recent n records, newest last.
func (im *Immunity) GetAttackHistory(n int) []AttackRecord {
	im.mu.Lock()
	defer im.mu.Unlock()
	if n <= 0 || n > len(im.history) {
		n = len(im.history)
	}
	out := make([]AttackRecord, n)
	copy(out, im.history[len(im.history)-n:])
	return out
}

// recordLocked appends a history entry and bumps counters. Caller holds mu.
func (im *Immunity) recordLocked(input string, result DetectionResult, heuristic bool) AttackEvent {
	record := AttackRecord{
		ID:         uuid.NewString(),
		Input:      truncate(input, recordSnapshotLen),
		Type:       result.Type,
		Confidence: result.Confidence,
		Timestamp:  time.Now(),
	}

	im.history = append(im.history, record)
	if len(im.history) > im.config.HistorySize {
		im.history = im.history[len(im.history)-im.config.HistorySize:]
	}

	im.totalDetections++
	if result.IsAttack {
		im.blockedCount++
	}
	im.lastDetection = record.Timestamp

	return AttackEvent{Record: record, MatchedPattern: result.MatchedPattern, Heuristic: heuristic}
}

// emit delivers events outside the lock; subscribers may call back into the
// engine.
func (im *Immunity) emit(ev AttackEvent, confidence float64) {
	logging.Immunity("attack detected: type=%s confidence=%.2f heuristic=%v",
		ev.Record.Type, confidence, ev.Heuristic)
	im.attackDetected.Emit(ev)
	if confidence >= im.config.CriticalThreshold {
		logging.ImmunityWarn("CRITICAL attack: type=%s confidence=%.2f", ev.Record.Type, confidence)
		im.criticalAttack.Emit(ev)
	}
}

// allowListedLocked reports whether text contains any allow-listed substring.
func (im *Immunity) allowListedLocked(text string) bool {
	if len(im.allowList) == 0 {
		return false
	}
	lower := strings.ToLower(text)
	for _, entry := range im.allowList {
		if strings.Contains(lower, entry) {
			return true
		}
	}
	return false
}

// redact replaces every span matched by p's matchers. A matcher that cannot
// report spans forces a whole-text replacement: when we cannot localize the
// threat, nothing short of full redaction is safe.
func redact(text string, p *AttackPattern) string {
	for _, m := range p.Matchers {
		if !m.Matches(text) {
			continue
		}
		sf, ok := m.(SpanFinder)
		if !ok {
			return redactedPlaceholder
		}
		spans := sf.FindSpans(text)
		if len(spans) == 0 {
			return redactedPlaceholder
		}
		var b strings.Builder
		prev := 0
		for _, span := range spans {
			if span[0] < prev {
				continue
			}
			b.WriteString(text[prev:span[0]])
			b.WriteString(redactedPlaceholder)
			prev = span[1]
		}
		b.WriteString(text[prev:])
		text = b.String()
	}
	return text
}

func truncate(s string, max int) string {
	if max > 0 && len(s) > max {
		return s[:max]
	}
	return s
}
