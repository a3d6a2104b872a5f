package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewCompleter(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"openai", Config{Provider: ProviderOpenAI, Model: "gpt-4o-mini"}, false},
		{"default provider", Config{Model: "gpt-4o-mini"}, false},
		{"claude", Config{Provider: ProviderClaude, Model: "claude-3-5-haiku-latest"}, false},
		{"gemini", Config{Provider: ProviderGemini, Model: "gemini-2.0-flash"}, false},
		{"missing model", Config{Provider: ProviderOpenAI}, true},
		{"compatible without base url", Config{Provider: ProviderOpenAICompatible, Model: "m"}, true},
		{"unknown provider", Config{Provider: "bogus", Model: "m"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCompleter(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewCompleter() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOpenAICompleter_Complete(t *testing.T) {
	var gotAuth string
	var gotReq openaiRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"Hello"}}],"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`))
	}))
	defer srv.Close()

	zero := 0.0
	c, err := NewCompleter(Config{
		Provider:    ProviderOpenAICompatible,
		APIKey:      "sk-test",
		BaseURL:     srv.URL,
		Model:       "test-model",
		Temperature: &zero,
	})
	if err != nil {
		t.Fatalf("NewCompleter: %v", err)
	}

	text, usage, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hola"}})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "Hello" {
		t.Errorf("text = %q, want Hello", text)
	}
	if usage.TotalTokens != 4 {
		t.Errorf("TotalTokens = %d, want 4", usage.TotalTokens)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotReq.Model != "test-model" || len(gotReq.Messages) != 1 {
		t.Errorf("unexpected request: %+v", gotReq)
	}
	if gotReq.Temperature == nil || *gotReq.Temperature != 0 {
		t.Errorf("temperature = %v, want explicit 0", gotReq.Temperature)
	}
}

func TestOpenAICompleter_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, _ := NewCompleter(Config{Provider: ProviderOpenAICompatible, BaseURL: srv.URL, Model: "m"})
	_, _, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "x"}})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected 429 error, got %v", err)
	}
}

func TestClaudeCompleter_SystemPrompt(t *testing.T) {
	var gotReq claudeRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "key" {
			t.Errorf("missing api key header")
		}
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Write([]byte(`{"content":[{"type":"text","text":"Bonjour"}],"usage":{"input_tokens":5,"output_tokens":2}}`))
	}))
	defer srv.Close()

	c, _ := NewCompleter(Config{Provider: ProviderClaude, APIKey: "key", BaseURL: srv.URL, Model: "claude"})
	text, usage, err := c.Complete(context.Background(), []Message{
		{Role: "system", Content: "Translate."},
		{Role: "user", Content: "Hello"},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "Bonjour" {
		t.Errorf("text = %q", text)
	}
	if usage.TotalTokens != 7 {
		t.Errorf("TotalTokens = %d, want 7", usage.TotalTokens)
	}
	if gotReq.System != "Translate." {
		t.Errorf("System = %q", gotReq.System)
	}
	if len(gotReq.Messages) != 1 || gotReq.MaxTokens != 1024 {
		t.Errorf("unexpected request: %+v", gotReq)
	}
}

func TestGeminiCompleter_Complete(t *testing.T) {
	var gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Hallo"}]}}]}`))
	}))
	defer srv.Close()

	c, _ := NewCompleter(Config{Provider: ProviderGemini, APIKey: "k", BaseURL: srv.URL, Model: "gemini-test"})
	text, _, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "Hello"}})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "Hallo" {
		t.Errorf("text = %q", text)
	}
	if gotPath != "/gemini-test:generateContent" {
		t.Errorf("path = %q", gotPath)
	}
}

func TestGeminiBuildRequest(t *testing.T) {
	c := &geminiCompleter{cfg: completerConfig{disableThinking: true}}
	req := c.buildRequest([]Message{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "u"},
		{Role: "assistant", Content: "a"},
	})

	if req.SystemInstruction == nil {
		t.Fatal("expected system instruction")
	}
	if len(req.Contents) != 2 || req.Contents[1].Role != "model" {
		t.Errorf("unexpected contents: %+v", req.Contents)
	}
	if req.GenerationConfig.ThinkingConfig == nil {
		t.Error("expected thinking config")
	}
	if req.GenerationConfig.Temperature != nil {
		t.Errorf("temperature = %v, want omitted", *req.GenerationConfig.Temperature)
	}
}
