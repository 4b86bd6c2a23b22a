package llm

import (
	"fmt"
	"strings"
	"time"
)

// NewProvider creates a new LLM provider based on configuration
func NewProvider(config Config) (Provider, error) {
	provider := strings.ToLower(config.Provider)

	switch provider {
	case "ollama":
		return NewOllamaProvider(config)

	case "openai":
		return NewOpenAIProvider(config)

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: ollama, openai)", config.Provider)
	}
}

// NewCachedProviderFromConfig builds the configured provider wrapped in the
// response cache.
func NewCachedProviderFromConfig(config Config, cacheTTL time.Duration) (Provider, error) {
	p, err := NewProvider(config)
	if err != nil {
		return nil, err
	}
	return NewCachedProvider(p, cacheTTL), nil
}
