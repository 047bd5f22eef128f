package generator

import (
	"github.com/tiktoken-go/tokenizer"
)

// tokenEstimator counts prompt tokens for metrics. Gemini and OpenAI
// tokenizations differ, but GPT-4 encoding is a close enough estimate for
// accounting purposes.
type tokenEstimator struct {
	codec tokenizer.Codec
}

func newTokenEstimator() *tokenEstimator {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return &tokenEstimator{codec: nil}
	}
	return &tokenEstimator{codec: codec}
}

// estimate returns the token count of text, falling back to a
// character-based estimate (4 chars ≈ 1 token) when no codec is available.
func (e *tokenEstimator) estimate(text string) int {
	if e.codec == nil {
		return len(text) / 4
	}
	count, err := e.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}
