package tts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// slowSpeed is the playback speed used for slow speech.
const slowSpeed = 0.75

// RemoteConfig holds configuration for Remote.
type RemoteConfig struct {
	APIKey     string
	BaseURL    string
	Model      string // defaults to tts-1
	Voice      string // defaults to alloy
	Slow       bool
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Remote synthesizes mp3 through the OpenAI speech endpoint.
type Remote struct {
	client openai.Client
	model  string
	voice  string
	slow   bool
}

// NewRemote creates a Remote synthesizer.
func NewRemote(cfg RemoteConfig) *Remote {
	if cfg.Model == "" {
		cfg.Model = openai.SpeechModelTTS1
	}
	if cfg.Voice == "" {
		cfg.Voice = string(openai.AudioSpeechNewParamsVoiceAlloy)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
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

	return &Remote{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		voice:  cfg.Voice,
		slow:   cfg.Slow,
	}
}

// Synthesize implements Synthesizer. The model infers the language from
// the text, so lang is unused.
func (r *Remote) Synthesize(ctx context.Context, text, _ string) (Audio, error) {
	params := openai.AudioSpeechNewParams{
		Input:          text,
		Model:          r.model,
		Voice:          openai.AudioSpeechNewParamsVoice(r.voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	}
	if r.slow {
		params.Speed = openai.Float(slowSpeed)
	}

	resp, err := r.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return Audio{}, fmt.Errorf("speech request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Audio{}, fmt.Errorf("read speech: %w", err)
	}
	return Audio{Data: data, MIMEType: "audio/mp3"}, nil
}
