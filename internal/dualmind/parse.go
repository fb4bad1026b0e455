package dualmind

import (
	"strconv"
	"strings"
)

// Verdict vocabulary for the two passes.
const (
	VerdictApprove  = "APPROVE"
	VerdictDeny     = "DENY"
	VerdictAgree    = "AGREE"
	VerdictDisagree = "DISAGREE"
)

// fallbackConfidence is assigned when a marker is missing or unparseable.
const fallbackConfidence = 0.1

// thought is one parsed pass.
type thought struct {
	verdict    string
	confidence float64
	reasoning  string
	// parseFailed marks a missing/out-of-vocabulary verdict; it forces
	// maximal divergence downstream.
	parseFailed bool
}

// parseThought extracts the verdict and confidence from a reasoning trace.
// Marker-based and tolerant: an absent or unknown verdict resolves to the
// conservative verdict at low confidence rather than an error. A non-zero
// reported backend confidence takes precedence over the CONFIDENCE: marker.
func parseThought(gen Generation, vocabulary []string, conservative string) thought {
	t := thought{reasoning: gen.Text}

	verdict, ok := extractVerdict(gen.Text, vocabulary)
	if !ok {
		t.verdict = conservative
		t.confidence = fallbackConfidence
		t.parseFailed = true
		return t
	}
	t.verdict = verdict

	if gen.Confidence > 0 {
		t.confidence = clamp01(gen.Confidence)
		return t
	}
	conf, ok := extractConfidence(gen.Text)
	if !ok {
		t.confidence = fallbackConfidence
		return t
	}
	t.confidence = conf
	return t
}

// extractVerdict scans for a CONCLUSION: or VERDICT: marker and matches the
// following token against the pass vocabulary.
func extractVerdict(text string, vocabulary []string) (string, bool) {
	upper := strings.ToUpper(text)
	for _, marker := range []string{"CONCLUSION:", "VERDICT:"} {
		idx := strings.LastIndex(upper, marker)
		if idx < 0 {
			continue
		}
		rest := strings.TrimSpace(upper[idx+len(marker):])
		token := firstWord(rest)
		for _, v := range vocabulary {
			if token == v {
				return v, true
			}
		}
	}
	return "", false
}

// extractConfidence parses the value after a CONFIDENCE: marker. Accepts
// "0.85", "85%" and "85" forms; anything else is treated as absent.
func extractConfidence(text string) (float64, bool) {
	upper := strings.ToUpper(text)
	idx := strings.LastIndex(upper, "CONFIDENCE:")
	if idx < 0 {
		return 0, false
	}
	rest := strings.TrimSpace(text[idx+len("CONFIDENCE:"):])
	token := strings.TrimSuffix(firstWord(rest), "%")
	token = strings.TrimRight(token, ".,)")
	v, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, false
	}
	if v > 1 {
		v /= 100 // percentage form
	}
	return clamp01(v), true
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimRight(fields[0], ".,;:!")
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
