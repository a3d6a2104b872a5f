package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.aimuz.me/voicebridge/llm"
)

// DefaultSystemPrompt instructs the model to return only the translation.
const DefaultSystemPrompt = "You are a professional interpreter. Translate the user's text faithfully and naturally. " +
	"Reply with the translation only, without quotes, notes or explanations."

var errEmptyCompletion = errors.New("empty completion")

// LLMService translates through a chat completion model.
type LLMService struct {
	completer    llm.Completer
	name         string
	systemPrompt string
}

// NewLLMService wraps completer. name labels the engine in logs and metrics.
func NewLLMService(completer llm.Completer, name, systemPrompt string) *LLMService {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return &LLMService{completer: completer, name: name, systemPrompt: systemPrompt}
}

// Name returns the engine label.
func (s *LLMService) Name() string { return s.name }

// Translate implements Service.
func (s *LLMService) Translate(ctx context.Context, text, source, target string) (string, error) {
	msgs := buildMessages(s.systemPrompt, text, source, target)

	out, usage, err := s.completer.Complete(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("complete: %w", err)
	}
	if strings.TrimSpace(out) == "" {
		return "", errEmptyCompletion
	}

	slog.Debug("translation completed",
		"engine", s.name,
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens,
	)
	return out, nil
}

func buildMessages(systemPrompt, text, source, target string) []llm.Message {
	from := source
	if from == "" || from == "auto" {
		from = "the detected language"
	}

	content := fmt.Sprintf(
		"please translate the following text from %s to %s:\n\n%s",
		from, target, text,
	)

	return []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: content},
	}
}
