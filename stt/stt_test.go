package stt

import (
	"context"
	"errors"
	"testing"

	"go.aimuz.me/voicebridge/audiocapture"
)

// mockProvider implements Provider for testing.
type mockProvider struct {
	engine Engine
	ready  bool
	text   string
	err    error
	calls  int
	closed bool
}

func (m *mockProvider) Engine() Engine { return m.engine }
func (m *mockProvider) Name() string   { return m.engine.String() }
func (m *mockProvider) IsReady() bool  { return m.ready }
func (m *mockProvider) Close() error   { m.closed = true; return nil }

func (m *mockProvider) Transcribe(context.Context, audiocapture.Segment, string) (*Result, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &Result{Text: m.text}, nil
}

var testSegment = audiocapture.Segment{Samples: make([]float32, 1600), SampleRate: 16000}

func TestTranscriber_Order(t *testing.T) {
	tests := []struct {
		name       string
		providers  []*mockProvider
		wantText   string
		wantEngine Engine
		wantErr    error
		wantCalls  []int
	}{
		{
			name: "first succeeds",
			providers: []*mockProvider{
				{engine: EngineWhisperLocal, ready: true, text: "hola mundo"},
				{engine: EngineWhisperAPI, ready: true, text: "unused"},
			},
			wantText:   "hola mundo",
			wantEngine: EngineWhisperLocal,
			wantCalls:  []int{1, 0},
		},
		{
			name: "not ready is skipped",
			providers: []*mockProvider{
				{engine: EngineWhisperLocal, ready: false, text: "unused"},
				{engine: EngineWhisperAPI, ready: true, text: "buenos días"},
			},
			wantText:   "buenos días",
			wantEngine: EngineWhisperAPI,
			wantCalls:  []int{0, 1},
		},
		{
			name: "failure falls through",
			providers: []*mockProvider{
				{engine: EngineWhisperLocal, ready: true, err: errors.New("model crashed")},
				{engine: EngineWhisperAPI, ready: true, err: errors.New("network down")},
				{engine: EnginePocketSphinx, ready: true, text: "hello there"},
			},
			wantText:   "hello there",
			wantEngine: EnginePocketSphinx,
			wantCalls:  []int{1, 1, 1},
		},
		{
			name: "empty result falls through",
			providers: []*mockProvider{
				{engine: EngineWhisperLocal, ready: true, text: "[BLANK_AUDIO]"},
				{engine: EngineWhisperAPI, ready: true, text: "good morning"},
			},
			wantText:   "good morning",
			wantEngine: EngineWhisperAPI,
			wantCalls:  []int{1, 1},
		},
		{
			name: "all fail",
			providers: []*mockProvider{
				{engine: EngineWhisperLocal, ready: true, err: errors.New("boom")},
				{engine: EnginePocketSphinx, ready: false},
			},
			wantErr:   ErrNoSpeech,
			wantCalls: []int{1, 0},
		},
		{
			name: "too short is noise",
			providers: []*mockProvider{
				{engine: EngineWhisperLocal, ready: true, text: " ok "},
				{engine: EngineWhisperAPI, ready: true, text: "unused"},
			},
			wantErr:   ErrTooShort,
			wantCalls: []int{1, 0},
		},
		{
			name:      "no providers",
			providers: nil,
			wantErr:   ErrNoSpeech,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			providers := make([]Provider, len(tt.providers))
			for i, p := range tt.providers {
				providers[i] = p
			}
			tr := NewTranscriber(providers, 0)

			res, err := tr.Transcribe(context.Background(), testSegment, "es")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
			} else {
				if err != nil {
					t.Fatalf("Transcribe: %v", err)
				}
				if res.Text != tt.wantText {
					t.Errorf("Text = %q, want %q", res.Text, tt.wantText)
				}
				if res.Engine != tt.wantEngine {
					t.Errorf("Engine = %v, want %v", res.Engine, tt.wantEngine)
				}
			}

			for i, want := range tt.wantCalls {
				if got := tt.providers[i].calls; got != want {
					t.Errorf("provider %d calls = %d, want %d", i, got, want)
				}
			}
		})
	}
}

func TestTranscriber_EmptySegment(t *testing.T) {
	p := &mockProvider{engine: EngineWhisperLocal, ready: true, text: "hola"}
	tr := NewTranscriber([]Provider{p}, 0)

	_, err := tr.Transcribe(context.Background(), audiocapture.Segment{SampleRate: 16000}, "es")
	if !errors.Is(err, ErrNoSpeech) {
		t.Fatalf("error = %v, want ErrNoSpeech", err)
	}
	if p.calls != 0 {
		t.Errorf("provider called %d times for empty audio", p.calls)
	}
}

func TestTranscriber_ReadyAndClose(t *testing.T) {
	a := &mockProvider{engine: EngineWhisperLocal}
	b := &mockProvider{engine: EnginePocketSphinx, ready: true}
	tr := NewTranscriber([]Provider{a, b}, 0)

	if !tr.Ready() {
		t.Error("expected Ready with one ready provider")
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !a.closed || !b.closed {
		t.Error("expected every provider closed")
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"  hola mundo  ", "hola mundo"},
		{"[00:00:00.000 --> 00:00:04.000]  hello", "hello"},
		{"[BLANK_AUDIO]", ""},
		{"hello [Music] world", "hello world"},
		{"line one\nline two", "line one line two"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := cleanText(tt.input); got != tt.want {
				t.Errorf("cleanText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseEngine(t *testing.T) {
	for _, e := range DefaultEngineOrder {
		got, err := ParseEngine(e.String())
		if err != nil {
			t.Fatalf("ParseEngine(%q): %v", e.String(), err)
		}
		if got != e {
			t.Errorf("ParseEngine(%q) = %v, want %v", e.String(), got, e)
		}
	}
	if _, err := ParseEngine("google"); err == nil {
		t.Error("expected error for unknown engine")
	}
}

func TestFloat32ToWAV(t *testing.T) {
	wav := float32ToWAV([]float32{0, 1, -1, 2}, 16000)

	if len(wav) != 44+8 {
		t.Fatalf("len = %d, want 52", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Error("bad WAV header")
	}
	// 2 clamps to 1 -> 32767
	if wav[50] != 0xff || wav[51] != 0x7f {
		t.Errorf("clamped sample = %x %x, want ff 7f", wav[50], wav[51])
	}
}
