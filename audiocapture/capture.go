// Package audiocapture records microphone audio and splits it into
// utterance segments.
package audiocapture

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrNoDevice is returned when no input device is available or the
	// recorder cannot be started.
	ErrNoDevice = errors.New("no microphone available")
	// ErrTimeout is returned when no speech starts within the capture timeout.
	ErrTimeout = errors.New("timed out waiting for speech")
	// ErrClosed is returned once the stream has ended.
	ErrClosed = errors.New("audio stream closed")
)

// Segment is one captured utterance of mono PCM in [-1, 1].
type Segment struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the length of the segment.
func (s Segment) Duration() time.Duration {
	if s.SampleRate == 0 {
		return 0
	}
	return time.Duration(len(s.Samples)) * time.Second / time.Duration(s.SampleRate)
}

// Microphone is an audio input that can be opened for capture.
type Microphone interface {
	// Devices lists the names of available input devices.
	Devices(ctx context.Context) ([]string, error)
	// Open starts recording. The stream lives until Close or ctx is done.
	Open(ctx context.Context) (Stream, error)
}

// Stream yields utterances from an open microphone.
type Stream interface {
	// Calibrate listens for d and adjusts the energy threshold to the
	// ambient noise level.
	Calibrate(ctx context.Context, d time.Duration) error
	// Capture blocks until one utterance is recorded. It returns ErrTimeout
	// if no speech starts within timeout. A zero timeout waits forever.
	Capture(ctx context.Context, timeout time.Duration) (Segment, error)
	Close() error
}

// Config holds configuration for audio capture.
type Config struct {
	Device     string // recorder device name, empty for the default device
	SampleRate int    // default 16000 Hz

	// EnergyThreshold is the RMS level, on the 16-bit sample scale, above
	// which a frame counts as speech.
	EnergyThreshold float64
	// DynamicEnergy lets the threshold follow ambient noise between phrases.
	DynamicEnergy bool
	// PauseThreshold is the silence that ends a phrase.
	PauseThreshold time.Duration
	// PhraseTimeLimit caps a single phrase. Zero means unlimited.
	PhraseTimeLimit time.Duration
	// PreRoll is the audio kept from before speech onset.
	PreRoll time.Duration
	// FrameSize is the number of samples per analysis frame.
	FrameSize int
	// StartupTimeout bounds the wait for the first audio after Open.
	StartupTimeout time.Duration
}

// DefaultConfig returns the default capture configuration.
func DefaultConfig() Config {
	return Config{
		SampleRate:      16000, // Whisper expects 16kHz
		EnergyThreshold: 300,
		DynamicEnergy:   true,
		PauseThreshold:  800 * time.Millisecond,
		PhraseTimeLimit: 10 * time.Second,
		PreRoll:         500 * time.Millisecond,
		FrameSize:       1024,
		StartupTimeout:  2 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SampleRate <= 0 {
		c.SampleRate = def.SampleRate
	}
	if c.EnergyThreshold <= 0 {
		c.EnergyThreshold = def.EnergyThreshold
	}
	if c.PauseThreshold <= 0 {
		c.PauseThreshold = def.PauseThreshold
	}
	if c.PreRoll <= 0 {
		c.PreRoll = def.PreRoll
	}
	if c.FrameSize <= 0 {
		c.FrameSize = def.FrameSize
	}
	if c.StartupTimeout <= 0 {
		c.StartupTimeout = def.StartupTimeout
	}
	return c
}

// RingBuffer is a thread-safe circular buffer for audio samples.
type RingBuffer struct {
	mu       sync.RWMutex
	data     []float32
	writePos int
	size     int
	filled   int
}

// NewRingBuffer creates a new ring buffer with the given capacity.
func NewRingBuffer(size int) *RingBuffer {
	if size < 1 {
		size = 1
	}
	return &RingBuffer{
		data: make([]float32, size),
		size: size,
	}
}

// Write adds samples to the buffer, overwriting the oldest.
func (rb *RingBuffer) Write(samples []float32) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	for _, s := range samples {
		rb.data[rb.writePos] = s
		rb.writePos = (rb.writePos + 1) % rb.size
		if rb.filled < rb.size {
			rb.filled++
		}
	}
}

// Read returns the last n samples from the buffer.
func (rb *RingBuffer) Read(n int) []float32 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if n > rb.filled {
		n = rb.filled
	}
	if n <= 0 {
		return nil
	}

	result := make([]float32, n)
	startPos := (rb.writePos - n + rb.size) % rb.size
	for i := 0; i < n; i++ {
		result[i] = rb.data[(startPos+i)%rb.size]
	}
	return result
}

// Clear empties the buffer.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.writePos = 0
	rb.filled = 0
}

// Len returns the number of samples in the buffer.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.filled
}
