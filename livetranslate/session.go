// Package livetranslate runs the continuous listen, translate and speak
// pipeline.
package livetranslate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"go.aimuz.me/voicebridge/audiocapture"
	"go.aimuz.me/voicebridge/internal/metrics"
	"go.aimuz.me/voicebridge/internal/types"
	"go.aimuz.me/voicebridge/stt"
	"go.aimuz.me/voicebridge/tts"
)

var (
	// ErrAlreadyListening is returned by Start while a session is running.
	ErrAlreadyListening = errors.New("already listening")
	// ErrNotListening is returned by Stop when no session is running.
	ErrNotListening = errors.New("not listening")
	// ErrMicrophoneBusy is returned by Start and RecordOnce while a single
	// recording holds the microphone.
	ErrMicrophoneBusy = errors.New("microphone busy")
)

// Transcriber turns a captured segment into text.
type Transcriber interface {
	Transcribe(ctx context.Context, seg audiocapture.Segment, lang string) (*stt.Result, error)
}

// Translator translates text between two languages.
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (string, error)
}

// Speaker synthesizes speech.
type Speaker interface {
	Synthesize(ctx context.Context, text, lang string, engine tts.Engine) (tts.Audio, error)
}

// Config holds configuration for a Session.
type Config struct {
	CaptureTimeout    time.Duration // wait for speech to start before looping, default 1s
	CalibrateDuration time.Duration // ambient noise sampling at start, default 1s
	UtteranceTimeout  time.Duration // budget for one transcribe, translate and speak run, default 60s
	MaxWorkers        int64         // concurrent utterance workers, default 4
	TTSEngine         tts.Engine    // default tts.EngineRemote
	AutoTranslate     bool
	HistorySize       int
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		CaptureTimeout:    time.Second,
		CalibrateDuration: time.Second,
		UtteranceTimeout:  60 * time.Second,
		MaxWorkers:        4,
		TTSEngine:         tts.EngineRemote,
		AutoTranslate:     true,
		HistorySize:       DefaultHistorySize,
	}
}

// published pairs a snapshot with the session generation that produced it.
type published struct {
	gen  uint64
	snap *types.Snapshot
}

// Session coordinates microphone capture, recognition, translation and
// synthesis. Each captured utterance is processed on its own goroutine and
// the latest successful result replaces the published snapshot whole.
type Session struct {
	mic         audiocapture.Microphone
	transcriber Transcriber
	translator  Translator
	speaker     Speaker
	cfg         Config

	// mu guards Start/Stop transitions and the fields below it.
	mu        sync.Mutex
	cancel    context.CancelFunc
	sessionID string
	source    string
	target    string
	startedAt time.Time
	recording bool

	listening atomic.Bool
	auto      atomic.Bool
	nextGen   atomic.Uint64
	current   atomic.Pointer[published]

	sem     *semaphore.Weighted
	history *History
	wg      sync.WaitGroup
}

// NewSession creates an idle session.
func NewSession(mic audiocapture.Microphone, tr Transcriber, tl Translator, sp Speaker, cfg Config) *Session {
	def := DefaultConfig()
	if cfg.CaptureTimeout <= 0 {
		cfg.CaptureTimeout = def.CaptureTimeout
	}
	if cfg.CalibrateDuration < 0 {
		cfg.CalibrateDuration = 0
	}
	if cfg.UtteranceTimeout <= 0 {
		cfg.UtteranceTimeout = def.UtteranceTimeout
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = def.MaxWorkers
	}
	if cfg.TTSEngine == 0 {
		cfg.TTSEngine = def.TTSEngine
	}

	s := &Session{
		mic:         mic,
		transcriber: tr,
		translator:  tl,
		speaker:     sp,
		cfg:         cfg,
		sem:         semaphore.NewWeighted(cfg.MaxWorkers),
		history:     NewHistory(cfg.HistorySize),
	}
	s.auto.Store(cfg.AutoTranslate)
	s.current.Store(&published{snap: &types.Snapshot{}})
	return s
}

// Start begins listening. The session keeps running after ctx is done;
// only Stop ends it.
func (s *Session) Start(ctx context.Context, source, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listening.Load() {
		return ErrAlreadyListening
	}
	if s.recording {
		return ErrMicrophoneBusy
	}

	devices, err := s.mic.Devices(ctx)
	if err != nil {
		return fmt.Errorf("list microphones: %w", err)
	}
	if len(devices) == 0 {
		return audiocapture.ErrNoDevice
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stream, err := s.mic.Open(loopCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("open microphone: %w", err)
	}

	gen := s.nextGen.Add(1)
	s.current.Store(&published{
		gen:  gen,
		snap: &types.Snapshot{SourceLang: source, TargetLang: target},
	})
	s.history.Reset(gen)

	s.cancel = cancel
	s.sessionID = uuid.NewString()
	s.source = source
	s.target = target
	s.startedAt = time.Now()
	s.listening.Store(true)
	metrics.SetSessionActive(true)

	s.wg.Add(1)
	go s.loop(loopCtx, stream, gen, source, target)

	slog.Info("session started",
		"session_id", s.sessionID,
		"source", source,
		"target", target,
		"devices", len(devices),
	)
	return nil
}

// Stop ends the session and resets the snapshot. It returns without
// waiting for in-flight utterances; their results are discarded.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.listening.Load() {
		return ErrNotListening
	}
	s.stopLocked()
	return nil
}

func (s *Session) stopLocked() {
	s.listening.Store(false)
	gen := s.nextGen.Add(1)
	s.current.Store(&published{gen: gen, snap: &types.Snapshot{}})
	s.history.Reset(gen)
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	metrics.SetSessionActive(false)

	slog.Info("session stopped",
		"session_id", s.sessionID,
		"duration", time.Since(s.startedAt).Round(time.Second),
	)
}

// abort stops the session started as gen, if it is still the current one.
func (s *Session) abort(gen uint64, reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.listening.Load() || s.current.Load().gen != gen {
		return
	}
	slog.Error("session aborted", "session_id", s.sessionID, "error", reason)
	s.stopLocked()
}

// Listening reports whether the session is running.
func (s *Session) Listening() bool {
	return s.listening.Load()
}

// Snapshot returns the latest published result. The returned value must not
// be modified.
func (s *Session) Snapshot() *types.Snapshot {
	return s.current.Load().snap
}

// SetAutoTranslate toggles translation and synthesis of new utterances.
// When off, only recognized text is published.
func (s *Session) SetAutoTranslate(enabled bool) {
	s.auto.Store(enabled)
}

// AutoTranslate reports the auto-translate mode.
func (s *Session) AutoTranslate() bool {
	return s.auto.Load()
}

// History returns recent utterances of the current session.
func (s *Session) History() []types.Utterance {
	return s.history.Recent()
}

// Status returns the current status.
func (s *Session) Status() types.LiveStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := types.LiveStatus{
		Active:        s.listening.Load(),
		AutoTranslate: s.auto.Load(),
	}
	if st.Active {
		st.SessionID = s.sessionID
		st.SourceLang = s.source
		st.TargetLang = s.target
		st.Duration = int64(time.Since(s.startedAt).Seconds())
		st.UtteranceCount = s.history.Count()
	}
	return st
}

// Wait blocks until the capture loop and every utterance worker have exited.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Close stops the session if running and waits for workers.
func (s *Session) Close() error {
	if err := s.Stop(); err != nil && !errors.Is(err, ErrNotListening) {
		return err
	}
	s.Wait()
	return nil
}

func (s *Session) loop(ctx context.Context, stream audiocapture.Stream, gen uint64, source, target string) {
	defer s.wg.Done()
	defer stream.Close()

	if s.cfg.CalibrateDuration > 0 {
		if err := stream.Calibrate(ctx, s.cfg.CalibrateDuration); err != nil && ctx.Err() == nil {
			slog.Warn("ambient noise calibration failed", "error", err)
		}
	}

	for ctx.Err() == nil {
		start := time.Now()
		seg, err := stream.Capture(ctx, s.cfg.CaptureTimeout)
		switch {
		case err == nil:
		case errors.Is(err, audiocapture.ErrTimeout):
			continue
		case ctx.Err() != nil:
			return
		case errors.Is(err, audiocapture.ErrClosed):
			metrics.RecordStage(metrics.StageCapture, metrics.OutcomeFailure, time.Since(start).Seconds())
			s.abort(gen, err)
			return
		default:
			metrics.RecordStage(metrics.StageCapture, metrics.OutcomeFailure, time.Since(start).Seconds())
			slog.Error("capture failed", "error", err)
			if sleepCtx(ctx, 100*time.Millisecond) != nil {
				return
			}
			continue
		}
		metrics.RecordStage(metrics.StageCapture, metrics.OutcomeSuccess, time.Since(start).Seconds())

		s.wg.Add(1)
		go s.process(ctx, gen, seg, source, target)
	}
}

// process runs one utterance through the pipeline and publishes the result.
// Stopping the session does not cancel it; a stale result is dropped at
// publish time.
func (s *Session) process(ctx context.Context, gen uint64, seg audiocapture.Segment, source, target string) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.UtteranceTimeout)
	defer cancel()

	// Acquired here so capture never waits for a worker slot.
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer s.sem.Release(1)

	snap, err := s.run(ctx, seg, source, target)
	if err != nil {
		switch {
		case ctx.Err() != nil:
		case errors.Is(err, stt.ErrTooShort), errors.Is(err, stt.ErrNoSpeech):
			slog.Debug("utterance discarded", "error", err)
		default:
			slog.Warn("utterance failed", "error", err)
		}
		return
	}

	if s.publish(gen, snap) {
		s.history.Add(gen, types.Utterance{
			ID:         snap.UtteranceID,
			Recognized: snap.Recognized,
			Translated: snap.Translated,
			At:         snap.UpdatedAt,
		})
	}
}

func (s *Session) run(ctx context.Context, seg audiocapture.Segment, source, target string) (*types.Snapshot, error) {
	start := time.Now()
	res, err := s.transcriber.Transcribe(ctx, seg, source)
	if err != nil {
		outcome := metrics.OutcomeFailure
		if errors.Is(err, stt.ErrTooShort) {
			outcome = metrics.OutcomeSkipped
		}
		metrics.RecordStage(metrics.StageTranscribe, outcome, time.Since(start).Seconds())
		return nil, fmt.Errorf("transcribe: %w", err)
	}
	metrics.RecordStage(metrics.StageTranscribe, metrics.OutcomeSuccess, time.Since(start).Seconds())

	snap := &types.Snapshot{
		Recognized:  res.Text,
		SourceLang:  source,
		TargetLang:  target,
		UtteranceID: uuid.NewString(),
	}

	if !s.auto.Load() {
		metrics.RecordStage(metrics.StageTranslate, metrics.OutcomeSkipped, 0)
		snap.UpdatedAt = time.Now()
		return snap, nil
	}

	start = time.Now()
	translated, err := s.translator.Translate(ctx, res.Text, source, target)
	if err != nil {
		metrics.RecordStage(metrics.StageTranslate, metrics.OutcomeFailure, time.Since(start).Seconds())
		return nil, fmt.Errorf("translate: %w", err)
	}
	metrics.RecordStage(metrics.StageTranslate, metrics.OutcomeSuccess, time.Since(start).Seconds())

	start = time.Now()
	audio, err := s.speaker.Synthesize(ctx, translated, target, s.cfg.TTSEngine)
	if err != nil {
		metrics.RecordStage(metrics.StageSynthesize, metrics.OutcomeFailure, time.Since(start).Seconds())
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	metrics.RecordStage(metrics.StageSynthesize, metrics.OutcomeSuccess, time.Since(start).Seconds())

	snap.Translated = translated
	snap.Audio = audio.DataURI()
	snap.UpdatedAt = time.Now()
	return snap, nil
}

// publish swaps in snap if gen is still the current session generation.
func (s *Session) publish(gen uint64, snap *types.Snapshot) bool {
	next := &published{gen: gen, snap: snap}
	for {
		cur := s.current.Load()
		if cur.gen != gen {
			slog.Debug("stale utterance dropped", "utterance_id", snap.UtteranceID)
			return false
		}
		if s.current.CompareAndSwap(cur, next) {
			return true
		}
	}
}

// RecordOnce captures and transcribes a single utterance outside the
// continuous loop. It fails with ErrAlreadyListening while a session holds
// the microphone and with ErrMicrophoneBusy while another recording does.
// Start is refused until it returns.
func (s *Session) RecordOnce(ctx context.Context, lang string, timeout time.Duration) (*stt.Result, error) {
	s.mu.Lock()
	switch {
	case s.listening.Load():
		s.mu.Unlock()
		return nil, ErrAlreadyListening
	case s.recording:
		s.mu.Unlock()
		return nil, ErrMicrophoneBusy
	}
	s.recording = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.recording = false
		s.mu.Unlock()
	}()

	devices, err := s.mic.Devices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list microphones: %w", err)
	}
	if len(devices) == 0 {
		return nil, audiocapture.ErrNoDevice
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := s.mic.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open microphone: %w", err)
	}
	defer stream.Close()

	if err := stream.Calibrate(ctx, s.cfg.CalibrateDuration/2); err != nil {
		slog.Warn("ambient noise calibration failed", "error", err)
	}

	seg, err := stream.Capture(ctx, timeout)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	return s.transcriber.Transcribe(ctx, seg, lang)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
