// Package immunity implements pattern- and heuristic-based screening of
// untrusted text against self-referential and injection attacks. It is the
// first of the three gates every piece of outside text must clear before it
// reaches the agent's reasoning or tool arguments.
package immunity

import "time"

// AttackType categorizes a detected manipulation attempt.
type AttackType string

const (
	LiarParadox          AttackType = "liar_paradox"          // Self-referential paradox bait
	RecursiveSuicide     AttackType = "recursive_suicide"     // Asking the agent to destroy/disable itself
	PromptInjection      AttackType = "prompt_injection"      // Classic instruction smuggling
	InstructionOverride  AttackType = "instruction_override"  // Claims of superseding authority
	IdentitySubstitution AttackType = "identity_substitution" // Re-assigning the agent's identity
	ShadowSelf           AttackType = "shadow_self"           // Appeals to a hidden, unconstrained persona
	MetaManipulation     AttackType = "meta_manipulation"     // Hypothetical/roleplay framing to dodge rules
)

// attackPriority fixes the scan order for detection. The first category with
// a matching pattern wins classification. More specific and higher-stakes
// categories come first so that, e.g., "ignore previous instructions" lands
// on prompt_injection rather than a broader override bucket.
var attackPriority = []AttackType{
	LiarParadox,
	RecursiveSuicide,
	PromptInjection,
	InstructionOverride,
	IdentitySubstitution,
	ShadowSelf,
	MetaManipulation,
}

// DetectionResult is the outcome of a single DetectAttack scan.
type DetectionResult struct {
	IsAttack       bool       `json:"is_attack"`
	Type           AttackType `json:"type,omitempty"`
	Confidence     float64    `json:"confidence"`
	Mitigation     string     `json:"mitigation,omitempty"`
	MatchedPattern string     `json:"matched_pattern,omitempty"`
}

// SanitizationResult is the outcome of Sanitize.
type SanitizationResult struct {
	Sanitized   string       `json:"sanitized"`
	WasModified bool         `json:"was_modified"`
	Threats     []AttackType `json:"threats,omitempty"`
}

// AttackRecord is a history entry for a non-zero-confidence detection.
type AttackRecord struct {
	ID         string     `json:"id"`
	Input      string     `json:"input"` // snapshot, truncated
	Type       AttackType `json:"type"`
	Confidence float64    `json:"confidence"`
	Timestamp  time.Time  `json:"timestamp"`
}

// AttackEvent is emitted on the attackDetected / criticalAttack hubs.
type AttackEvent struct {
	Record         AttackRecord
	MatchedPattern string
	Heuristic      bool
}

// Stats exposes the engine's running counters.
type Stats struct {
	ScanCount       int64     `json:"scan_count"`
	TotalDetections int64     `json:"total_detections"`
	BlockedCount    int64     `json:"blocked_count"`
	PatternCount    int       `json:"pattern_count"`
	AllowListSize   int       `json:"allow_list_size"`
	LastDetection   time.Time `json:"last_detection"`
}

// Sensitivity scales pattern base confidence.
type Sensitivity string

const (
	SensitivityLow    Sensitivity = "low"
	SensitivityMedium Sensitivity = "medium"
	SensitivityHigh   Sensitivity = "high"
)

func (s Sensitivity) multiplier() float64 {
	switch s {
	case SensitivityLow:
		return 0.8
	case SensitivityHigh:
		return 1.2
	default:
		return 1.0
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
