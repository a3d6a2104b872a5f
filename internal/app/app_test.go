package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.aimuz.me/voicebridge/audiocapture"
	"go.aimuz.me/voicebridge/internal/types"
	"go.aimuz.me/voicebridge/langs"
	"go.aimuz.me/voicebridge/livetranslate"
	"go.aimuz.me/voicebridge/stt"
	"go.aimuz.me/voicebridge/translate"
	"go.aimuz.me/voicebridge/tts"
)

type fakeStream struct {
	segments chan audiocapture.Segment
}

func (f *fakeStream) Calibrate(context.Context, time.Duration) error { return nil }

func (f *fakeStream) Capture(ctx context.Context, timeout time.Duration) (audiocapture.Segment, error) {
	select {
	case <-ctx.Done():
		return audiocapture.Segment{}, ctx.Err()
	case seg := <-f.segments:
		return seg, nil
	case <-time.After(5 * time.Millisecond):
		return audiocapture.Segment{}, audiocapture.ErrTimeout
	}
}

func (f *fakeStream) Close() error { return nil }

func (f *fakeStream) say(text string) {
	samples := make([]float32, len(text))
	for i, r := range []byte(text) {
		samples[i] = float32(r)
	}
	f.segments <- audiocapture.Segment{Samples: samples, SampleRate: 16000}
}

type fakeMic struct {
	devices []string
	listErr error
	stream  *fakeStream

	opening chan struct{} // when set, receives once per Open
	hold    chan struct{} // when set, Open waits for a receive
}

func (m *fakeMic) Devices(context.Context) ([]string, error) { return m.devices, m.listErr }

func (m *fakeMic) Open(context.Context) (audiocapture.Stream, error) {
	if m.opening != nil {
		m.opening <- struct{}{}
	}
	if m.hold != nil {
		<-m.hold
	}
	return m.stream, nil
}

type echoTranscriber struct{}

func (echoTranscriber) Transcribe(_ context.Context, seg audiocapture.Segment, _ string) (*stt.Result, error) {
	b := make([]byte, len(seg.Samples))
	for i, s := range seg.Samples {
		b[i] = byte(s)
	}
	if len(b) <= 2 {
		return nil, stt.ErrTooShort
	}
	return &stt.Result{Text: string(b), Engine: stt.EngineWhisperAPI}, nil
}

// stubService answers "hola" with "Hello" and fails on "boom".
type stubService struct {
	mu    sync.Mutex
	calls int
}

func (s *stubService) Translate(_ context.Context, text, _, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	switch text {
	case "boom":
		return "", errors.New("service unavailable")
	case "hola":
		return "Hello", nil
	}
	return strings.ToUpper(text), nil
}

type stubDetector struct{}

func (stubDetector) Detect(text string) (string, bool) {
	if strings.Contains(text, "hola") {
		return "es", true
	}
	return "", false
}

type countingSpeaker struct {
	calls   atomic.Int32
	fail    bool
	missing tts.Engine // engine reported as not configured
}

func (c *countingSpeaker) Has(engine tts.Engine) bool { return engine != c.missing }

func (c *countingSpeaker) Synthesize(_ context.Context, text, lang string, engine tts.Engine) (tts.Audio, error) {
	c.calls.Add(1)
	if c.fail {
		return tts.Audio{}, tts.ErrFailed
	}
	return tts.Audio{Data: []byte(lang + ":" + text), MIMEType: "audio/mp3", Engine: engine}, nil
}

type fixture struct {
	svc     *Service
	mic     *fakeMic
	stream  *fakeStream
	service *stubService
	speaker *countingSpeaker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		stream:  &fakeStream{segments: make(chan audiocapture.Segment, 8)},
		service: &stubService{},
		speaker: &countingSpeaker{},
	}
	f.mic = &fakeMic{devices: []string{"default"}, stream: f.stream}

	translator := translate.New(f.service, translate.Options{
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		Detector:   stubDetector{},
	})

	cfg := livetranslate.DefaultConfig()
	cfg.CaptureTimeout = 5 * time.Millisecond
	cfg.CalibrateDuration = 0
	session := livetranslate.NewSession(f.mic, echoTranscriber{}, translator, f.speaker, cfg)

	f.svc = New(Deps{
		Catalog:       langs.New(langs.DefaultFallback),
		Microphone:    f.mic,
		Session:       session,
		Translator:    translator,
		Speaker:       f.speaker,
		STTEngines:    []string{"whisper-api"},
		RecordTimeout: 50 * time.Millisecond,
		Version:       "test",
	})
	t.Cleanup(func() { f.svc.Close() })
	return f
}

// waitTranslated polls the session view until the snapshot carries want.
func (f *fixture) waitTranslated(t *testing.T, want string) types.Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := f.svc.SessionView().Snapshot
		if snap.Translated == want {
			return snap
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("translation %q never published, last snapshot %+v", want, f.svc.SessionView().Snapshot)
	return types.Snapshot{}
}

func TestStartSession(t *testing.T) {
	f := newFixture(t)

	st := f.svc.StartSession(context.Background(), types.StartRequest{Source: "Español", Target: "English"})
	if st.Level != types.LevelInfo {
		t.Fatalf("start status = %+v, want info", st)
	}

	view := f.svc.SessionView()
	if !view.Status.Active {
		t.Fatal("session should be active")
	}
	if view.Status.SourceLang != "es" || view.Status.TargetLang != "en" {
		t.Errorf("languages = %s -> %s, want es -> en", view.Status.SourceLang, view.Status.TargetLang)
	}
	if len(view.Status.STTEngines) != 1 || view.Status.STTEngines[0] != "whisper-api" {
		t.Errorf("stt engines = %v", view.Status.STTEngines)
	}

	again := f.svc.StartSession(context.Background(), types.StartRequest{Source: "English", Target: "Español"})
	if again.Message != "Already listening" {
		t.Errorf("second start = %+v", again)
	}
	if got := f.svc.SessionView().Status.SourceLang; got != "es" {
		t.Errorf("running session changed source to %s", got)
	}
}

func TestStartSessionNoMicrophone(t *testing.T) {
	tests := []struct {
		name    string
		devices []string
		listErr error
	}{
		{name: "no devices"},
		{name: "list error", listErr: audiocapture.ErrNoDevice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.mic.devices = tt.devices
			f.mic.listErr = tt.listErr

			st := f.svc.StartSession(context.Background(), types.StartRequest{Source: "Español", Target: "English"})
			if st.Level != types.LevelError {
				t.Fatalf("status = %+v, want error", st)
			}
			if f.svc.SessionView().Status.Active {
				t.Error("session should stay idle")
			}
		})
	}
}

func TestStopSession(t *testing.T) {
	f := newFixture(t)

	if st := f.svc.StopSession(); st.Message != "Not listening" {
		t.Errorf("stop while idle = %+v", st)
	}

	f.svc.StartSession(context.Background(), types.StartRequest{Source: "es", Target: "en"})
	if st := f.svc.StopSession(); st.Level != types.LevelInfo || st.Message == "Not listening" {
		t.Errorf("stop = %+v", st)
	}
	if f.svc.SessionView().Status.Active {
		t.Error("session should be idle after stop")
	}
}

func TestPipelineAndPlayback(t *testing.T) {
	f := newFixture(t)
	f.svc.StartSession(context.Background(), types.StartRequest{Source: "Español", Target: "English"})

	f.stream.say("hola")
	snap := f.waitTranslated(t, "Hello")
	if snap.Recognized != "hola" {
		t.Errorf("recognized = %q, want hola", snap.Recognized)
	}
	if snap.Audio == "" {
		t.Fatal("snapshot audio missing")
	}

	before := f.speaker.calls.Load()
	res := f.svc.PlayLastTranslation(context.Background(), types.PlayRequest{})
	if res.Status.Level != types.LevelSuccess {
		t.Fatalf("play = %+v", res.Status)
	}
	if res.Audio != snap.Audio {
		t.Errorf("play audio = %q, want cached %q", res.Audio, snap.Audio)
	}
	if f.speaker.calls.Load() != before {
		t.Error("cached audio should be reused without synthesis")
	}

	res = f.svc.PlayLastTranslation(context.Background(), types.PlayRequest{Text: "Good morning"})
	if res.Status.Level != types.LevelSuccess {
		t.Fatalf("play edited text = %+v", res.Status)
	}
	want := tts.Audio{Data: []byte("en:Good morning"), MIMEType: "audio/mp3"}.DataURI()
	if res.Audio != want {
		t.Errorf("play edited text audio = %q, want %q", res.Audio, want)
	}
}

func TestPlayLastTranslationErrors(t *testing.T) {
	tests := []struct {
		name   string
		req    types.PlayRequest
		fail   bool
		wantIn string
	}{
		{name: "nothing to play", req: types.PlayRequest{}, wantIn: "No text"},
		{name: "unknown engine", req: types.PlayRequest{Text: "hi", Engine: "gtts"}, wantIn: "Unknown speech engine"},
		{name: "synthesis failure", req: types.PlayRequest{Text: "hi"}, fail: true, wantIn: "Could not generate audio"},
		{name: "engine not configured", req: types.PlayRequest{Text: "hi", Engine: "local"}, wantIn: "not configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.speaker.fail = tt.fail
			f.speaker.missing = tts.EngineLocal

			res := f.svc.PlayLastTranslation(context.Background(), tt.req)
			if res.Status.Level != types.LevelError {
				t.Fatalf("status = %+v, want error", res.Status)
			}
			if !strings.Contains(res.Status.Message, tt.wantIn) {
				t.Errorf("message = %q, want it to contain %q", res.Status.Message, tt.wantIn)
			}
			if res.Audio != "" {
				t.Error("failed play should not carry audio")
			}
			if tt.name == "engine not configured" && f.speaker.calls.Load() != 0 {
				t.Error("synthesis attempted with an unconfigured engine")
			}
		})
	}
}

func TestSetAutoTranslate(t *testing.T) {
	f := newFixture(t)
	f.svc.StartSession(context.Background(), types.StartRequest{Source: "es", Target: "en"})

	f.svc.SetAutoTranslate(types.AutoRequest{Enabled: false})
	if f.svc.SessionView().Status.AutoTranslate {
		t.Fatal("auto translate should be off")
	}

	f.stream.say("buenas")
	deadline := time.Now().Add(2 * time.Second)
	for f.svc.SessionView().Snapshot.Recognized != "buenas" {
		if time.Now().After(deadline) {
			t.Fatal("recognition-only snapshot never published")
		}
		time.Sleep(2 * time.Millisecond)
	}
	snap := f.svc.SessionView().Snapshot
	if snap.Translated != "" || snap.Audio != "" {
		t.Errorf("recognition-only snapshot = %+v", snap)
	}
}

func TestTestMicrophone(t *testing.T) {
	f := newFixture(t)

	report := f.svc.TestMicrophone(context.Background())
	if report.Status.Level != types.LevelSuccess || len(report.Devices) != 1 {
		t.Errorf("report = %+v", report)
	}

	f.mic.devices = nil
	report = f.svc.TestMicrophone(context.Background())
	if report.Status.Level != types.LevelError || report.Devices == nil {
		t.Errorf("report without devices = %+v", report)
	}

	f.mic.listErr = errors.New("arecord: permission denied")
	report = f.svc.TestMicrophone(context.Background())
	if report.Status.Level != types.LevelError {
		t.Errorf("report with error = %+v", report)
	}
}

func TestRecord(t *testing.T) {
	f := newFixture(t)

	f.stream.say("hola mundo")
	res := f.svc.Record(context.Background(), types.RecordRequest{Source: "Español"})
	if res.Status.Level != types.LevelSuccess || res.Text != "hola mundo" || res.Engine != "whisper-api" {
		t.Errorf("record = %+v", res)
	}

	res = f.svc.Record(context.Background(), types.RecordRequest{Source: "Español", Timeout: 0.001})
	if res.Status.Message != "No speech detected" {
		t.Errorf("record without speech = %+v", res)
	}

	f.svc.StartSession(context.Background(), types.StartRequest{Source: "es", Target: "en"})
	res = f.svc.Record(context.Background(), types.RecordRequest{Source: "es"})
	if res.Status.Level != types.LevelInfo || res.Text != "" {
		t.Errorf("record while listening = %+v", res)
	}
}

func TestStartSessionWhileRecording(t *testing.T) {
	f := newFixture(t)
	f.mic.opening = make(chan struct{})
	f.mic.hold = make(chan struct{})

	done := make(chan types.RecordResult, 1)
	go func() {
		done <- f.svc.Record(context.Background(), types.RecordRequest{Source: "es", Timeout: 0.001})
	}()
	<-f.mic.opening

	st := f.svc.StartSession(context.Background(), types.StartRequest{Source: "es", Target: "en"})
	if st.Level != types.LevelInfo || !strings.Contains(st.Message, "busy") {
		t.Errorf("start while recording = %+v", st)
	}
	if res := f.svc.Record(context.Background(), types.RecordRequest{Source: "es"}); res.Status.Message != "Already recording" {
		t.Errorf("second record = %+v", res)
	}
	if f.svc.SessionView().Status.Active {
		t.Error("session started while recording")
	}

	close(f.mic.hold)
	if res := <-done; res.Status.Message != "No speech detected" {
		t.Errorf("record = %+v", res)
	}
}

func TestTranslateBatch(t *testing.T) {
	tests := []struct {
		name      string
		texts     []string
		wantLevel types.Level
		want      []string
	}{
		{name: "all translated", texts: []string{"hola", "adios"}, wantLevel: types.LevelSuccess, want: []string{"Hello", "ADIOS"}},
		{name: "blank item kept", texts: []string{"hola", " "}, wantLevel: types.LevelSuccess, want: []string{"Hello", ""}},
		{name: "partial failure", texts: []string{"boom", "hola"}, wantLevel: types.LevelInfo, want: []string{"", "Hello"}},
		{name: "all failed", texts: []string{"boom"}, wantLevel: types.LevelError, want: []string{""}},
		{name: "empty", texts: nil, wantLevel: types.LevelInfo, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			res := f.svc.TranslateBatch(context.Background(), types.BatchTranslateRequest{
				Texts: tt.texts, Source: "Español", Target: "English",
			})
			if res.Status.Level != tt.wantLevel {
				t.Errorf("level = %s, want %s (%s)", res.Status.Level, tt.wantLevel, res.Status.Message)
			}
			if strings.Join(res.Texts, "|") != strings.Join(tt.want, "|") || len(res.Texts) != len(tt.want) {
				t.Errorf("texts = %q, want %q", res.Texts, tt.want)
			}
		})
	}
}

func TestForgetTranslation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := types.TranslateRequest{Text: "hola", Source: "es", Target: "en"}

	f.svc.Translate(ctx, req)
	f.svc.Translate(ctx, req)
	if f.service.calls != 1 {
		t.Fatalf("service calls = %d, want 1 (cached)", f.service.calls)
	}

	st := f.svc.ForgetTranslation(types.ForgetRequest{Text: "hola", Source: "Español", Target: "English"})
	if st.Level != types.LevelInfo {
		t.Fatalf("forget = %+v", st)
	}
	f.svc.Translate(ctx, req)
	if f.service.calls != 2 {
		t.Errorf("service calls after forget = %d, want 2", f.service.calls)
	}

	st = f.svc.ForgetTranslation(types.ForgetRequest{})
	if st.Message != "Cleared 1 cached translations" {
		t.Errorf("clear = %+v", st)
	}
	f.svc.Translate(ctx, req)
	if f.service.calls != 3 {
		t.Errorf("service calls after clear = %d, want 3", f.service.calls)
	}
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		name      string
		req       types.TranslateRequest
		wantLevel types.Level
		wantText  string
		wantCalls int
	}{
		{
			name:      "by display name",
			req:       types.TranslateRequest{Text: "hola", Source: "Español", Target: "English"},
			wantLevel: types.LevelSuccess,
			wantText:  "Hello",
			wantCalls: 1,
		},
		{
			name:      "blank text",
			req:       types.TranslateRequest{Text: "  ", Source: "es", Target: "en"},
			wantLevel: types.LevelInfo,
		},
		{
			name:      "service failure",
			req:       types.TranslateRequest{Text: "boom", Source: "es", Target: "en"},
			wantLevel: types.LevelError,
			wantCalls: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			res := f.svc.Translate(context.Background(), tt.req)
			if res.Status.Level != tt.wantLevel {
				t.Errorf("level = %s, want %s (%s)", res.Status.Level, tt.wantLevel, res.Status.Message)
			}
			if res.Text != tt.wantText {
				t.Errorf("text = %q, want %q", res.Text, tt.wantText)
			}
			if f.service.calls != tt.wantCalls {
				t.Errorf("service calls = %d, want %d", f.service.calls, tt.wantCalls)
			}
		})
	}
}

func TestDetectLanguage(t *testing.T) {
	f := newFixture(t)

	res := f.svc.DetectLanguage(context.Background(), types.DetectRequest{Text: "hola amigo"})
	if res.Code != "es" || res.Name != "Español" || res.Status.Level != types.LevelSuccess {
		t.Errorf("detect = %+v", res)
	}

	res = f.svc.DetectLanguage(context.Background(), types.DetectRequest{Text: "???"})
	if res.Code != "" || res.Status.Level != types.LevelInfo {
		t.Errorf("detect unknown = %+v", res)
	}
}

func TestLanguages(t *testing.T) {
	f := newFixture(t)

	entries := f.svc.Languages()
	if len(entries) == 0 {
		t.Fatal("catalog is empty")
	}
	cat := langs.New(langs.DefaultFallback)
	for _, e := range entries {
		if got := cat.CodeFor(e.Name); got != e.Code {
			t.Errorf("CodeFor(%q) = %q, want %q", e.Name, got, e.Code)
		}
	}
}
