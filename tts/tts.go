// Package tts synthesizes speech from text with one of two engines.
package tts

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.aimuz.me/voicebridge/internal/metrics"
)

// Engine identifies a synthesis engine.
type Engine int

const (
	// EngineRemote is the networked engine: broad language coverage, mp3.
	EngineRemote Engine = iota + 1
	// EngineLocal is the offline engine: narrower coverage, wav.
	EngineLocal
)

func (e Engine) String() string {
	switch e {
	case EngineRemote:
		return "remote"
	case EngineLocal:
		return "local"
	default:
		return fmt.Sprintf("Engine(%d)", int(e))
	}
}

// ParseEngine parses "remote" or "local".
func ParseEngine(name string) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "remote":
		return EngineRemote, nil
	case "local":
		return EngineLocal, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownEngine, name)
	}
}

var (
	// ErrEmptyText is returned for empty or whitespace-only input.
	ErrEmptyText = errors.New("nothing to synthesize")
	// ErrUnknownEngine is returned for an engine that is not configured.
	ErrUnknownEngine = errors.New("unknown synthesis engine")
	// ErrFailed is returned when the engine fails.
	ErrFailed = errors.New("speech synthesis failed")
)

// Audio is an encoded audio payload.
type Audio struct {
	Data     []byte
	MIMEType string // "audio/mp3" or "audio/wav"
	Engine   Engine
}

// DataURI encodes the audio as a base64 data URI.
func (a Audio) DataURI() string {
	return "data:" + a.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}

// Synthesizer is a single synthesis engine.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, lang string) (Audio, error)
}

// Speaker dispatches synthesis to exactly one engine per call.
type Speaker struct {
	engines map[Engine]Synthesizer
}

// NewSpeaker creates a Speaker. A nil synthesizer leaves that engine
// unavailable.
func NewSpeaker(remote, local Synthesizer) *Speaker {
	s := &Speaker{engines: make(map[Engine]Synthesizer, 2)}
	if remote != nil {
		s.engines[EngineRemote] = remote
	}
	if local != nil {
		s.engines[EngineLocal] = local
	}
	return s
}

// Synthesize renders text with the chosen engine. There is no fallback to
// the other engine.
func (s *Speaker) Synthesize(ctx context.Context, text, lang string, engine Engine) (Audio, error) {
	if strings.TrimSpace(text) == "" {
		return Audio{}, ErrEmptyText
	}

	syn, ok := s.engines[engine]
	if !ok {
		return Audio{}, fmt.Errorf("%w: %v", ErrUnknownEngine, engine)
	}

	audio, err := syn.Synthesize(ctx, text, lang)
	if err != nil {
		metrics.RecordEngineFailure("tts", engine.String())
		return Audio{}, fmt.Errorf("%w: %s: %w", ErrFailed, engine, err)
	}
	if len(audio.Data) == 0 {
		metrics.RecordEngineFailure("tts", engine.String())
		return Audio{}, fmt.Errorf("%w: %s returned no audio", ErrFailed, engine)
	}
	audio.Engine = engine
	return audio, nil
}

// DataURI synthesizes text and returns it as a data URI. It reports false
// on any failure.
func (s *Speaker) DataURI(ctx context.Context, text, lang string, engine Engine) (string, bool) {
	audio, err := s.Synthesize(ctx, text, lang, engine)
	if err != nil {
		if !errors.Is(err, ErrEmptyText) {
			slog.Warn("speech synthesis failed", "engine", engine, "lang", lang, "error", err)
		}
		return "", false
	}
	return audio.DataURI(), true
}

// Has reports whether engine is configured.
func (s *Speaker) Has(engine Engine) bool {
	_, ok := s.engines[engine]
	return ok
}
