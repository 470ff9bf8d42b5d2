// Package llm provides the completion transport used by plan synthesis.
// It speaks to one configured provider (Anthropic, OpenAI, or a local
// Ollama instance), rate-limited and retried; prompt construction and
// response parsing belong to the caller.
package llm

import (
	"context"
	"os"
	"time"

	"github.com/tabiq-dev/tabiq/internal/config"
)

// Provider constants
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderNone      = "none"
)

// Default endpoints and models per provider
const (
	anthropicBaseURL = "https://api.anthropic.com/v1"
	openAIBaseURL    = "https://api.openai.com/v1"
	ollamaBaseURL    = "http://localhost:11434"

	anthropicDefaultModel = "claude-3-5-haiku-20241022"
	openAIDefaultModel    = "gpt-4o-mini"
	ollamaDefaultModel    = "llama3.1"

	anthropicVersion = "2023-06-01"
)

// Request is one completion call. MaxTokens zero falls back to the
// client's configured ceiling; sampling temperature is client-level
// configuration.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
}

// Response carries the raw completion text plus provenance
type Response struct {
	Text     string
	Provider string
	Model    string
}

// CompletionService is the surface synthesis depends on
type CompletionService interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Options configures a client
type Options struct {
	Provider          string
	Model             string
	Endpoint          string
	APIKey            string
	MaxTokens         int
	Temperature       float64
	Timeout           time.Duration
	RequestsPerMinute int
	RetryAttempts     int
	RetryDelay        time.Duration
}

// OptionsFromConfig resolves client options from configuration, reading
// the API key out of the named environment variable.
func OptionsFromConfig(cfg *config.Config) Options {
	keyEnv := cfg.LLM.APIKeyEnv
	if keyEnv == "" {
		switch cfg.LLM.Provider {
		case ProviderAnthropic:
			keyEnv = "ANTHROPIC_API_KEY"
		case ProviderOpenAI:
			keyEnv = "OPENAI_API_KEY"
		}
	}

	var apiKey string
	if keyEnv != "" {
		apiKey = os.Getenv(keyEnv)
	}

	return Options{
		Provider:          cfg.LLM.Provider,
		Model:             cfg.LLM.Model,
		Endpoint:          cfg.LLM.Endpoint,
		APIKey:            apiKey,
		MaxTokens:         cfg.LLM.MaxTokens,
		Temperature:       cfg.LLM.Temperature,
		Timeout:           cfg.LLMTimeout(),
		RequestsPerMinute: cfg.LLM.RequestsPerMinute,
		RetryAttempts:     cfg.LLM.RetryAttempts,
		RetryDelay:        cfg.LLMRetryDelay(),
	}
}
