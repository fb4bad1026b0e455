// Package dualmind implements two-pass verification of proposed agent
// actions. A "main" pass argues the case at a creative temperature while an
// independent "audit" pass re-derives the verdict skeptically; autonomous
// approval requires both to agree. Every ambiguous or failing state resolves
// to human review, never to silent approval.
package dualmind

import "context"

// Generation is one reasoner completion.
type Generation struct {
	Text string
	// Confidence is backend-reported when available; zero means the backend
	// reported none and the marker parser supplies it from the text.
	Confidence float64
}

// Reasoner is the consumed language-model capability. Implementations must
// honor ctx cancellation; the verifier wraps each call in its own timeout.
// Without a Reasoner the verifier falls back to static heuristics.
type Reasoner interface {
	Generate(ctx context.Context, prompt string, temperature float64) (Generation, error)
}
