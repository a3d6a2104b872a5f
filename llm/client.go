// Package llm provides HTTP clients for LLM chat completion APIs.
package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Provider identifies an LLM API dialect.
type Provider string

const (
	ProviderOpenAI           Provider = "openai"
	ProviderOpenAICompatible Provider = "openai-compatible"
	ProviderClaude           Provider = "claude"
	ProviderGemini           Provider = "gemini"
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage represents token usage statistics from LLM API calls.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Completer performs chat completions.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, Usage, error)
}

// Config configures a Completer.
type Config struct {
	Provider        Provider
	APIKey          string
	BaseURL         string // Optional for openai/claude/gemini, required for openai-compatible
	Model           string
	MaxTokens       int
	Temperature     *float64      // nil leaves the provider default
	DisableThinking bool          // For Gemini: set thinkingBudget to 0
	Timeout         time.Duration // Default 30s
	HTTPClient      *http.Client  // Optional, overrides Timeout
}

// completerConfig holds all parameters needed by completers.
type completerConfig struct {
	http            *http.Client
	apiKey          string
	baseURL         string
	model           string
	maxTokens       int
	temperature     *float64
	disableThinking bool
}

// NewCompleter creates a Completer for the configured provider.
func NewCompleter(cfg Config) (Completer, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model required")
	}
	if cfg.Provider == ProviderOpenAICompatible && cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url required for %s", cfg.Provider)
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	cc := completerConfig{
		http:            client,
		apiKey:          cfg.APIKey,
		baseURL:         cfg.BaseURL,
		model:           cfg.Model,
		maxTokens:       cfg.MaxTokens,
		temperature:     cfg.Temperature,
		disableThinking: cfg.DisableThinking,
	}

	switch cfg.Provider {
	case ProviderGemini:
		return &geminiCompleter{cfg: cc}, nil
	case ProviderClaude:
		return &claudeCompleter{cfg: cc}, nil
	case ProviderOpenAI, ProviderOpenAICompatible, "":
		return &openaiCompleter{cfg: cc}, nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

// readBody reads a response body and turns non-2xx statuses into errors.
func readBody(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return body, fmt.Errorf("api error: %d - %s", resp.StatusCode, string(body))
	}
	return body, nil
}
