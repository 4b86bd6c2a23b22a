// Package llm talks to the vision-language models that power text extraction
// and authorship evaluation. Providers are interchangeable; prompts are fixed
// collaborator payloads defined in prompts.go.
package llm

import (
	"context"
	"time"
)

// Provider defines the interface for vision-LLM backends
type Provider interface {
	// Name returns the provider name
	Name() string

	// Generate runs one completion over a prompt plus an optional screenshot
	Generate(ctx context.Context, req Request) (*Response, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// Request contains the input for one model call
type Request struct {
	// Model is the specific model to use (provider-specific)
	Model string

	// Prompt is the full instruction text
	Prompt string

	// ImageB64 is the cropped screenshot as base64 JPEG, without a data-URL
	// prefix; empty for text-only calls
	ImageB64 string

	// JSONFormat asks the model for a strict JSON object response
	JSONFormat bool

	// MaxTokens limits the response length
	MaxTokens int
}

// Response contains the model's raw output
type Response struct {
	// Text is the completion body; for evaluations this is a JSON-encoded
	// analysis object, for extractions the recovered text
	Text string

	// Model is the model that generated the response
	Model string

	// TokensUsed tracks token consumption
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests
	Timeout time.Duration

	// RatePerSec throttles calls to the endpoint; local models choke when
	// requests pile up
	RatePerSec float64

	// MaxTokens for response generation
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:   "ollama",
		Model:      "gemma3",
		Timeout:    120 * time.Second,
		RatePerSec: 1,
		MaxTokens:  2000,
	}
}
