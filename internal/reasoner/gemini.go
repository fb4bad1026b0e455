// Package reasoner provides language-model backends for dual-mind
// verification.
package reasoner

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/octaviaken059/ouroboros-design-sub001/internal/dualmind"
	"github.com/octaviaken059/ouroboros-design-sub001/internal/logging"
)

const defaultModel = "gemini-2.5-flash"

// GeminiReasoner generates reasoning passes using Google's Gemini API.
type GeminiReasoner struct {
	client *genai.Client
	model  string
}

var _ dualmind.Reasoner = (*GeminiReasoner)(nil)

// NewGemini creates a Gemini-backed reasoner.
func NewGemini(ctx context.Context, apiKey, model string) (*GeminiReasoner, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if model == "" {
		model = defaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiReasoner{client: client, model: model}, nil
}

// Generate runs one reasoning pass at the given sampling temperature.
func (r *GeminiReasoner) Generate(ctx context.Context, prompt string, temperature float64) (dualmind.Generation, error) {
	timer := logging.StartTimer(logging.CategoryAPI, "gemini generate")
	defer timer.Stop()

	resp, err := r.client.Models.GenerateContent(ctx,
		r.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			Temperature: genai.Ptr(float32(temperature)),
		},
	)
	if err != nil {
		logging.APIError("gemini generate failed: %v", err)
		return dualmind.Generation{}, fmt.Errorf("gemini generate: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return dualmind.Generation{}, fmt.Errorf("gemini returned an empty response")
	}
	return dualmind.Generation{Text: text}, nil
}
