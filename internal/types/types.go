// Package types provides shared type definitions for the application.
package types

import "time"

// Level classifies a UI status message.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Status is the result every UI action reports back.
type Status struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Info returns an info status.
func Info(msg string) Status { return Status{Level: LevelInfo, Message: msg} }

// Success returns a success status.
func Success(msg string) Status { return Status{Level: LevelSuccess, Message: msg} }

// Error returns an error status.
func Error(msg string) Status { return Status{Level: LevelError, Message: msg} }

// Snapshot is the latest completed pipeline result. A published snapshot is
// never modified.
type Snapshot struct {
	Recognized  string    `json:"recognized"`
	Translated  string    `json:"translated"`
	Audio       string    `json:"audio,omitempty"` // data URI
	SourceLang  string    `json:"sourceLang"`
	TargetLang  string    `json:"targetLang"`
	UtteranceID string    `json:"utteranceId,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Utterance is one entry of the session history.
type Utterance struct {
	ID         string    `json:"id"`
	Recognized string    `json:"recognized"`
	Translated string    `json:"translated"`
	At         time.Time `json:"at"`
}

// LiveStatus represents the status of the continuous session.
type LiveStatus struct {
	Active         bool     `json:"active"`
	SessionID      string   `json:"sessionId,omitempty"`
	SourceLang     string   `json:"sourceLang"`
	TargetLang     string   `json:"targetLang"`
	AutoTranslate  bool     `json:"autoTranslate"`
	Duration       int64    `json:"duration"`       // Running duration in seconds
	UtteranceCount int      `json:"utteranceCount"` // Utterances published this session
	STTEngines     []string `json:"sttEngines"`     // Ready speech engines in order
}

// SessionView is what the UI polls.
type SessionView struct {
	Status   LiveStatus `json:"status"`
	Snapshot Snapshot   `json:"snapshot"`
}

// StartRequest starts a session. Languages are display names.
type StartRequest struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// PlayRequest asks to speak a text. Empty fields default to the last
// translation, the session target language and the configured engine.
type PlayRequest struct {
	Text   string `json:"text,omitempty"`
	Target string `json:"target,omitempty"`
	Engine string `json:"engine,omitempty"`
}

// PlayResult carries the audio to play.
type PlayResult struct {
	Status Status `json:"status"`
	Audio  string `json:"audio,omitempty"`
}

// AutoRequest toggles auto-translate mode.
type AutoRequest struct {
	Enabled bool `json:"enabled"`
}

// MicrophoneReport lists input devices.
type MicrophoneReport struct {
	Status  Status   `json:"status"`
	Devices []string `json:"devices"`
}

// TranslateRequest represents a one-shot text translation. Languages are
// display names or codes.
type TranslateRequest struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// TranslateResult represents the result of a translation request.
type TranslateResult struct {
	Status Status `json:"status"`
	Text   string `json:"text,omitempty"`
}

// BatchTranslateRequest translates several texts with one language pair.
type BatchTranslateRequest struct {
	Texts  []string `json:"texts"`
	Source string   `json:"source"`
	Target string   `json:"target"`
}

// BatchTranslateResult holds one translation per requested text, in order.
// Failed items are empty.
type BatchTranslateResult struct {
	Status Status   `json:"status"`
	Texts  []string `json:"texts"`
}

// ForgetRequest drops a cached translation. Without a text the whole
// in-memory cache is cleared.
type ForgetRequest struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// DetectRequest asks for the language of a text.
type DetectRequest struct {
	Text string `json:"text"`
}

// DetectResult represents the result of language detection.
type DetectResult struct {
	Status Status `json:"status"`
	Code   string `json:"code,omitempty"`
	Name   string `json:"name,omitempty"`
}

// RecordRequest asks for a single recording outside the continuous session.
type RecordRequest struct {
	Source  string  `json:"source"`
	Timeout float64 `json:"timeout,omitempty"` // seconds to wait for speech
}

// RecordResult carries the recognized text of a single recording.
type RecordResult struct {
	Status Status `json:"status"`
	Text   string `json:"text,omitempty"`
	Engine string `json:"engine,omitempty"`
}
