// Package stt provides speech-to-text providers and an ordered fallback
// chain over them.
package stt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.aimuz.me/voicebridge/audiocapture"
	"go.aimuz.me/voicebridge/internal/metrics"
)

// Engine identifies a recognition engine.
type Engine int

const (
	EngineWhisperLocal Engine = iota + 1 // whisper.cpp, offline
	EngineWhisperAPI                     // OpenAI transcription, networked
	EnginePocketSphinx                   // pocketsphinx, offline fallback
)

var engineNames = map[Engine]string{
	EngineWhisperLocal: "whisper-local",
	EngineWhisperAPI:   "whisper-api",
	EnginePocketSphinx: "pocketsphinx",
}

func (e Engine) String() string {
	if name, ok := engineNames[e]; ok {
		return name
	}
	return fmt.Sprintf("Engine(%d)", int(e))
}

// ParseEngine parses an engine name such as "whisper-local".
func ParseEngine(name string) (Engine, error) {
	for e, n := range engineNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return e, nil
		}
	}
	return 0, fmt.Errorf("unknown speech engine: %q", name)
}

// DefaultEngineOrder is the preferred engine order.
var DefaultEngineOrder = []Engine{EngineWhisperLocal, EngineWhisperAPI, EnginePocketSphinx}

// DefaultMinTextLength discards recognitions of this many runes or fewer.
const DefaultMinTextLength = 2

var (
	// ErrNoSpeech is returned when no engine recognized any speech.
	ErrNoSpeech = errors.New("no speech recognized")
	// ErrTooShort is returned when the recognized text is too short to be
	// anything but noise.
	ErrTooShort = errors.New("recognized text too short")
	// ErrNotReady is returned by a provider that cannot run.
	ErrNotReady = errors.New("provider not ready")
)

// Result represents the result of a transcription.
type Result struct {
	Text     string        `json:"text"`
	Language string        `json:"language,omitempty"` // detected language code, if reported
	Engine   Engine        `json:"-"`
	Duration time.Duration `json:"-"` // time spent recognizing
}

// Provider is a single speech-to-text engine.
type Provider interface {
	Engine() Engine
	// Name returns the provider identifier.
	Name() string
	// IsReady returns true if the provider can transcribe right now.
	IsReady() bool
	// Transcribe converts a captured segment to text. lang is a language
	// code, empty for auto-detect.
	Transcribe(ctx context.Context, seg audiocapture.Segment, lang string) (*Result, error)
	// Close releases resources held by the provider.
	Close() error
}

// Transcriber tries providers in order until one recognizes speech.
type Transcriber struct {
	providers []Provider
	minLen    int
}

// NewTranscriber creates a Transcriber over providers, tried in the given
// order. minTextLength <= 0 selects DefaultMinTextLength.
func NewTranscriber(providers []Provider, minTextLength int) *Transcriber {
	if minTextLength <= 0 {
		minTextLength = DefaultMinTextLength
	}
	return &Transcriber{providers: providers, minLen: minTextLength}
}

// Transcribe recognizes seg with the first ready provider that succeeds.
// Providers that are not ready are skipped. A failing provider falls
// through to the next one.
func (t *Transcriber) Transcribe(ctx context.Context, seg audiocapture.Segment, lang string) (*Result, error) {
	if len(seg.Samples) == 0 {
		return nil, ErrNoSpeech
	}

	for _, p := range t.providers {
		if !p.IsReady() {
			continue
		}

		start := time.Now()
		res, err := p.Transcribe(ctx, seg, lang)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			metrics.RecordEngineFailure("stt", p.Name())
			slog.Warn("speech engine failed", "engine", p.Name(), "error", err)
			continue
		}

		text := cleanText(res.Text)
		if text == "" {
			slog.Debug("speech engine heard nothing", "engine", p.Name())
			continue
		}
		if utf8.RuneCountInString(text) <= t.minLen {
			return nil, fmt.Errorf("%w: %q", ErrTooShort, text)
		}

		return &Result{
			Text:     text,
			Language: res.Language,
			Engine:   p.Engine(),
			Duration: time.Since(start),
		}, nil
	}

	return nil, ErrNoSpeech
}

// Providers returns the configured providers in order.
func (t *Transcriber) Providers() []Provider {
	return t.providers
}

// Ready reports whether at least one provider can run.
func (t *Transcriber) Ready() bool {
	for _, p := range t.providers {
		if p.IsReady() {
			return true
		}
	}
	return false
}

// Close releases all providers.
func (t *Transcriber) Close() error {
	var errs []error
	for _, p := range t.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

var (
	// regexTimestamp matches VTT/SRT timestamps like [00:00:00.000 --> 00:00:04.000]
	regexTimestamp = regexp.MustCompile(`\[\d{2}:\d{2}:\d{2}\.\d{3}\s*-->\s*\d{2}:\d{2}:\d{2}\.\d{3}\]`)
	// regexArtifacts matches [BLANK_AUDIO], [Music] and similar non-speech tags
	regexArtifacts = regexp.MustCompile(`\[[^\]]*\]`)
	regexSpaces    = regexp.MustCompile(`\s+`)
)

// cleanText removes timestamps and recognizer artifacts from text.
func cleanText(text string) string {
	text = regexTimestamp.ReplaceAllString(text, "")
	text = regexArtifacts.ReplaceAllString(text, "")
	text = regexSpaces.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
