package llm

import (
	"fmt"
	"strings"
)

// Provider identifies a generation API provider.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderOpenAI Provider = "openai"
)

// ProviderForModel determines the provider from the model name prefix.
func ProviderForModel(model string) (Provider, error) {
	switch {
	case strings.HasPrefix(model, "gemini"):
		return ProviderGoogle, nil
	case strings.HasPrefix(model, "gpt"), strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"), strings.HasPrefix(model, "o4"):
		return ProviderOpenAI, nil
	default:
		return "", fmt.Errorf("cannot determine provider for model %q", model)
	}
}
