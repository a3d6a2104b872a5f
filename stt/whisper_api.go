package stt

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"go.aimuz.me/voicebridge/audiocapture"
	"go.aimuz.me/voicebridge/langs"
)

// WhisperAPI transcribes through the OpenAI audio transcription endpoint.
type WhisperAPI struct {
	client openai.Client
	model  string
	ready  bool
}

// WhisperAPIConfig holds configuration for WhisperAPI.
type WhisperAPIConfig struct {
	APIKey     string
	BaseURL    string // Optional, defaults to OpenAI's API
	Model      string // Optional, defaults to "whisper-1"
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewWhisperAPI creates a WhisperAPI provider. It is ready when an API key
// is configured.
func NewWhisperAPI(cfg WhisperAPIConfig) *WhisperAPI {
	model := cfg.Model
	if model == "" {
		model = openai.AudioModelWhisper1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &WhisperAPI{
		client: openai.NewClient(opts...),
		model:  model,
		ready:  cfg.APIKey != "",
	}
}

func (w *WhisperAPI) Engine() Engine { return EngineWhisperAPI }
func (w *WhisperAPI) Name() string   { return EngineWhisperAPI.String() }
func (w *WhisperAPI) IsReady() bool  { return w.ready }

// Transcribe implements Provider.
func (w *WhisperAPI) Transcribe(ctx context.Context, seg audiocapture.Segment, lang string) (*Result, error) {
	if !w.ready {
		return nil, fmt.Errorf("%s: %w", w.Name(), ErrNotReady)
	}

	wav := float32ToWAV(seg.Samples, seg.SampleRate)
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
		Model: w.model,
	}
	// The API rejects "auto"; leaving the field out means auto-detect.
	if base := langs.ISOBase(lang); base != "" {
		params.Language = openai.String(base)
	}

	resp, err := w.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("transcription request: %w", err)
	}

	return &Result{Text: resp.Text, Language: lang}, nil
}

func (w *WhisperAPI) Close() error {
	return nil
}
