package immunity

import "strings"

// keywordPair flags two suspicious tokens co-occurring within a bounded
// window. This is the paraphrase net under the hard patterns: it catches
// rewordings at reduced confidence and never reaches certainty.
type keywordPair struct {
	a, b string
	kind AttackType
}

var suspiciousPairs = []keywordPair{
	{"ignore", "instructions", PromptInjection},
	{"ignore", "rules", PromptInjection},
	{"forget", "instructions", PromptInjection},
	{"forget", "training", PromptInjection},
	{"reveal", "prompt", PromptInjection},
	{"leak", "prompt", PromptInjection},
	{"system", "override", InstructionOverride},
	{"bypass", "safety", InstructionOverride},
	{"disable", "safety", InstructionOverride},
	{"disable", "filters", InstructionOverride},
	{"jailbreak", "mode", InstructionOverride},
	{"delete", "core", RecursiveSuicide},
	{"erase", "memory", RecursiveSuicide},
}

const (
	// heuristicWindow is the max token distance between pair members.
	heuristicWindow = 8
	// heuristicBase is the confidence for a single co-occurring pair.
	heuristicBase = 0.4
	// heuristicStep is added per additional pair.
	heuristicStep = 0.1
)

// heuristicScan tokenizes text and looks for suspicious keyword pairs within
// heuristicWindow tokens of each other. Confidence is capped at ceiling
// (HeuristicCeiling, ≤ 0.6 by default): heuristics escalate for review, they
// never certify an attack.
func heuristicScan(text string, ceiling float64) (AttackType, float64, string) {
	tokens := tokenize(text)
	if len(tokens) < 2 {
		return "", 0, ""
	}

	positions := make(map[string][]int, len(tokens))
	for i, tok := range tokens {
		positions[tok] = append(positions[tok], i)
	}

	var (
		confidence float64
		kind       AttackType
		matched    string
	)
	for _, pair := range suspiciousPairs {
		as, aok := positions[pair.a]
		bs, bok := positions[pair.b]
		if !aok || !bok {
			continue
		}
		if !withinWindow(as, bs, heuristicWindow) {
			continue
		}
		if confidence == 0 {
			confidence = heuristicBase
			kind = pair.kind
			matched = pair.a + "+" + pair.b
		} else {
			confidence += heuristicStep
		}
	}

	if confidence > ceiling {
		confidence = ceiling
	}
	return kind, confidence, matched
}

// withinWindow reports whether any position from as is within window tokens
// of any position from bs. Both slices are sorted ascending by construction.
func withinWindow(as, bs []int, window int) bool {
	i, j := 0, 0
	for i < len(as) && j < len(bs) {
		d := as[i] - bs[j]
		if d < 0 {
			d = -d
		}
		if d <= window {
			return true
		}
		if as[i] < bs[j] {
			i++
		} else {
			j++
		}
	}
	return false
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z':
			return false
		case r >= '0' && r <= '9':
			return false
		default:
			return true
		}
	})
	return fields
}
