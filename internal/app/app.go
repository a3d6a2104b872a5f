// Package app provides the action surface the web UI drives.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"go.aimuz.me/voicebridge/audiocapture"
	"go.aimuz.me/voicebridge/internal/types"
	"go.aimuz.me/voicebridge/langs"
	"go.aimuz.me/voicebridge/livetranslate"
	"go.aimuz.me/voicebridge/stt"
	"go.aimuz.me/voicebridge/translate"
	"go.aimuz.me/voicebridge/tts"
)

// DefaultRecordTimeout is how long a single recording waits for speech.
const DefaultRecordTimeout = 5 * time.Second

// TextTranslator translates and identifies text outside the session.
type TextTranslator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
	TranslateBatch(ctx context.Context, texts []string, source, target string) []string
	DetectLanguage(ctx context.Context, text string) (string, bool)
	Forget(text, source, target string) error
	ClearMemory() int
}

// Deps are the collaborators of a Service.
type Deps struct {
	Catalog    *langs.Catalog
	Microphone audiocapture.Microphone
	Session    *livetranslate.Session
	Translator TextTranslator
	Speaker    livetranslate.Speaker

	TTSEngine     tts.Engine // engine used for playback, default tts.EngineRemote
	STTEngines    []string   // ready recognition engines, reported in status
	DefaultTarget string
	RecordTimeout time.Duration
	Version       string

	// Closers are released by Close after the session stops.
	Closers []io.Closer
}

// Service provides application functionality to the UI.
// This struct focuses on orchestration; business logic lives in sub-components.
type Service struct {
	catalog    *langs.Catalog
	mic        audiocapture.Microphone
	session    *livetranslate.Session
	translator TextTranslator
	speaker    livetranslate.Speaker

	ttsEngine     tts.Engine
	sttEngines    []string
	defaultTarget string
	recordTimeout time.Duration
	version       string
	closers       []io.Closer
}

// New creates a Service from its collaborators.
func New(d Deps) *Service {
	if d.TTSEngine == 0 {
		d.TTSEngine = tts.EngineRemote
	}
	if d.RecordTimeout <= 0 {
		d.RecordTimeout = DefaultRecordTimeout
	}
	if d.DefaultTarget == "" {
		d.DefaultTarget = "en"
	}
	return &Service{
		catalog:       d.Catalog,
		mic:           d.Microphone,
		session:       d.Session,
		translator:    d.Translator,
		speaker:       d.Speaker,
		ttsEngine:     d.TTSEngine,
		sttEngines:    d.STTEngines,
		defaultTarget: d.DefaultTarget,
		recordTimeout: d.RecordTimeout,
		version:       d.Version,
		closers:       d.Closers,
	}
}

// Version returns the application version.
func (s *Service) Version() string {
	return s.version
}

// Close stops the session and releases engines and caches.
func (s *Service) Close() error {
	errs := []error{s.session.Close()}
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// ─────────────────────────────────────────────────────────────────────────────
// Session
// ─────────────────────────────────────────────────────────────────────────────

// StartSession starts continuous translation. Languages are display names;
// catalog codes are accepted too.
func (s *Service) StartSession(ctx context.Context, req types.StartRequest) types.Status {
	source, target := s.code(req.Source), s.code(req.Target)

	err := s.session.Start(ctx, source, target)
	switch {
	case err == nil:
		return types.Info(fmt.Sprintf("Listening, speak now (%s → %s)", s.name(source), s.name(target)))
	case errors.Is(err, livetranslate.ErrAlreadyListening):
		return types.Info("Already listening")
	case errors.Is(err, livetranslate.ErrMicrophoneBusy):
		return types.Info("Microphone busy with a recording, try again when it finishes")
	case errors.Is(err, audiocapture.ErrNoDevice):
		slog.Warn("start session", "error", err)
		return types.Error("No microphone found. Connect a microphone and try again")
	default:
		slog.Error("start session", "error", err)
		return types.Error("Could not start listening: " + err.Error())
	}
}

// StopSession stops continuous translation.
func (s *Service) StopSession() types.Status {
	if err := s.session.Stop(); err != nil {
		if errors.Is(err, livetranslate.ErrNotListening) {
			return types.Info("Not listening")
		}
		slog.Error("stop session", "error", err)
		return types.Error("Could not stop listening: " + err.Error())
	}
	return types.Info("Automatic translation stopped")
}

// SessionView returns the live status together with the latest snapshot.
func (s *Service) SessionView() types.SessionView {
	st := s.session.Status()
	st.STTEngines = s.sttEngines
	return types.SessionView{
		Status:   st,
		Snapshot: *s.session.Snapshot(),
	}
}

// History returns recent utterances of the current session.
func (s *Service) History() []types.Utterance {
	return s.session.History()
}

// SetAutoTranslate switches between automatic and recognition-only mode.
func (s *Service) SetAutoTranslate(req types.AutoRequest) types.Status {
	s.session.SetAutoTranslate(req.Enabled)
	if req.Enabled {
		return types.Info("Automatic mode: real-time translation enabled")
	}
	return types.Info("Manual mode: recognized text only")
}

// PlayLastTranslation returns audio for the requested text. Without a text
// the last translation is used, and its audio is reused when already
// synthesized with the same engine and language.
func (s *Service) PlayLastTranslation(ctx context.Context, req types.PlayRequest) types.PlayResult {
	snap := s.session.Snapshot()

	text := strings.TrimSpace(req.Text)
	if text == "" {
		text = snap.Translated
	}
	if text == "" {
		return types.PlayResult{Status: types.Error("No text to play")}
	}

	engine := s.ttsEngine
	if req.Engine != "" {
		e, err := tts.ParseEngine(req.Engine)
		if err != nil {
			return types.PlayResult{Status: types.Error("Unknown speech engine: " + req.Engine)}
		}
		engine = e
	}

	target := snap.TargetLang
	if req.Target != "" {
		target = s.code(req.Target)
	}
	if target == "" {
		target = s.defaultTarget
	}

	if h, ok := s.speaker.(interface{ Has(tts.Engine) bool }); ok && !h.Has(engine) {
		return types.PlayResult{Status: types.Error(fmt.Sprintf("Speech engine %s is not configured", engine))}
	}

	if snap.Audio != "" && text == snap.Translated && target == snap.TargetLang && engine == s.ttsEngine {
		return types.PlayResult{Status: types.Success("Playing translation"), Audio: snap.Audio}
	}

	audio, err := s.speaker.Synthesize(ctx, text, target, engine)
	if err != nil {
		slog.Warn("play translation", "engine", engine, "lang", target, "error", err)
		return types.PlayResult{Status: types.Error("Could not generate audio")}
	}
	return types.PlayResult{Status: types.Success("Playing translation"), Audio: audio.DataURI()}
}

// TestMicrophone lists input devices.
func (s *Service) TestMicrophone(ctx context.Context) types.MicrophoneReport {
	devices, err := s.mic.Devices(ctx)
	if err != nil {
		slog.Warn("test microphone", "error", err)
		return types.MicrophoneReport{
			Status:  types.Error("Microphone problem: " + err.Error()),
			Devices: []string{},
		}
	}
	if len(devices) == 0 {
		return types.MicrophoneReport{
			Status:  types.Error("No microphone found. Connect a microphone and check permissions"),
			Devices: []string{},
		}
	}
	return types.MicrophoneReport{
		Status:  types.Success(fmt.Sprintf("Microphone working (%d devices)", len(devices))),
		Devices: devices,
	}
}

// Record captures and recognizes a single utterance.
func (s *Service) Record(ctx context.Context, req types.RecordRequest) types.RecordResult {
	timeout := s.recordTimeout
	if req.Timeout > 0 {
		timeout = time.Duration(req.Timeout * float64(time.Second))
	}

	res, err := s.session.RecordOnce(ctx, s.code(req.Source), timeout)
	switch {
	case err == nil:
		return types.RecordResult{
			Status: types.Success("Speech recognized"),
			Text:   res.Text,
			Engine: res.Engine.String(),
		}
	case errors.Is(err, livetranslate.ErrAlreadyListening):
		return types.RecordResult{Status: types.Info("Stop automatic translation before recording")}
	case errors.Is(err, livetranslate.ErrMicrophoneBusy):
		return types.RecordResult{Status: types.Info("Already recording")}
	case errors.Is(err, audiocapture.ErrNoDevice):
		return types.RecordResult{Status: types.Error("No microphone found")}
	case errors.Is(err, audiocapture.ErrTimeout):
		return types.RecordResult{Status: types.Info("No speech detected")}
	case errors.Is(err, stt.ErrTooShort):
		return types.RecordResult{Status: types.Info("Speech too short, try again")}
	default:
		slog.Warn("record", "error", err)
		return types.RecordResult{Status: types.Error("Could not recognize speech")}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Text
// ─────────────────────────────────────────────────────────────────────────────

// Translate translates text once, outside the session.
func (s *Service) Translate(ctx context.Context, req types.TranslateRequest) types.TranslateResult {
	source, target := s.pair(req.Source, req.Target)

	out, err := s.translator.Translate(ctx, req.Text, source, target)
	switch {
	case err == nil:
		return types.TranslateResult{Status: types.Success("Translated"), Text: out}
	case errors.Is(err, translate.ErrNothingToTranslate):
		return types.TranslateResult{Status: types.Info("Nothing to translate")}
	default:
		slog.Error("translate", "source", source, "target", target, "error", err)
		return types.TranslateResult{Status: types.Error("Translation failed")}
	}
}

// TranslateBatch translates several texts with one language pair. Items
// that fail come back empty.
func (s *Service) TranslateBatch(ctx context.Context, req types.BatchTranslateRequest) types.BatchTranslateResult {
	if len(req.Texts) == 0 {
		return types.BatchTranslateResult{Status: types.Info("Nothing to translate"), Texts: []string{}}
	}
	source, target := s.pair(req.Source, req.Target)

	out := s.translator.TranslateBatch(ctx, req.Texts, source, target)
	var failed int
	for i, text := range out {
		if text == "" && strings.TrimSpace(req.Texts[i]) != "" {
			failed++
		}
	}
	switch {
	case failed == 0:
		return types.BatchTranslateResult{Status: types.Success(fmt.Sprintf("Translated %d texts", len(out))), Texts: out}
	case failed == len(out):
		return types.BatchTranslateResult{Status: types.Error("Translation failed"), Texts: out}
	default:
		return types.BatchTranslateResult{Status: types.Info(fmt.Sprintf("%d of %d texts failed", failed, len(out))), Texts: out}
	}
}

// ForgetTranslation drops one cached translation, or the whole in-memory
// cache when no text is given.
func (s *Service) ForgetTranslation(req types.ForgetRequest) types.Status {
	if strings.TrimSpace(req.Text) == "" {
		n := s.translator.ClearMemory()
		return types.Info(fmt.Sprintf("Cleared %d cached translations", n))
	}
	source, target := s.pair(req.Source, req.Target)
	if err := s.translator.Forget(req.Text, source, target); err != nil {
		slog.Error("forget translation", "error", err)
		return types.Error("Could not forget translation")
	}
	return types.Info("Translation forgotten")
}

func (s *Service) pair(source, target string) (string, string) {
	src := "auto"
	if source != "" && source != "auto" {
		src = s.code(source)
	}
	dst := s.defaultTarget
	if target != "" {
		dst = s.code(target)
	}
	return src, dst
}

// DetectLanguage identifies the language of text.
func (s *Service) DetectLanguage(ctx context.Context, req types.DetectRequest) types.DetectResult {
	code, ok := s.translator.DetectLanguage(ctx, req.Text)
	if !ok {
		return types.DetectResult{Status: types.Info("Language not detected")}
	}
	return types.DetectResult{
		Status: types.Success("Language detected"),
		Code:   code,
		Name:   s.name(code),
	}
}

// Languages returns the language catalog.
func (s *Service) Languages() []langs.Entry {
	return s.catalog.Entries()
}

func (s *Service) code(lang string) string {
	if s.catalog.Valid(lang) {
		return lang
	}
	return s.catalog.CodeFor(lang)
}

func (s *Service) name(code string) string {
	if name, ok := s.catalog.NameFor(code); ok {
		return name
	}
	return code
}
