package audiocapture

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// pcmStream segments raw s16le mono PCM read from r.
type pcmStream struct {
	cfg     Config
	vad     *VAD
	preRoll *RingBuffer
	frames  chan []float32
	r       io.ReadCloser

	mu      sync.Mutex // serializes Calibrate and Capture
	readErr error      // set before frames is closed
	pending []float32  // frame consumed by ready, returned first by next

	closeOnce sync.Once
	closeErr  error
	onClose   func() error
}

// newPCMStream reads signed 16-bit little-endian mono PCM from r at
// cfg.SampleRate. Closing the stream closes r, then runs onClose.
func newPCMStream(r io.ReadCloser, cfg Config, onClose func() error) *pcmStream {
	cfg = cfg.withDefaults()
	s := &pcmStream{
		cfg:     cfg,
		vad:     NewVAD(cfg),
		preRoll: NewRingBuffer(int(cfg.PreRoll.Seconds() * float64(cfg.SampleRate))),
		frames:  make(chan []float32, 64),
		r:       r,
		onClose: onClose,
	}
	go s.readLoop()
	return s
}

func (s *pcmStream) readLoop() {
	defer close(s.frames)

	buf := make([]byte, s.cfg.FrameSize*2)
	for {
		n, err := io.ReadFull(s.r, buf)
		if n >= 2 {
			s.frames <- decodePCM16(buf[:n-n%2])
		}
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				err = io.EOF
			}
			s.readErr = err
			return
		}
	}
}

// ready waits up to d for the first frame. A source that ends or stays
// silent fails with ErrNoDevice.
func (s *pcmStream) ready(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	frame, err := s.next(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("no audio within %s", d)
		}
		return fmt.Errorf("%w: %w", ErrNoDevice, err)
	}
	s.pending = frame
	return nil
}

func (s *pcmStream) next(ctx context.Context) ([]float32, error) {
	if frame := s.pending; frame != nil {
		s.pending = nil
		return frame, nil
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case frame, ok := <-s.frames:
		if !ok {
			return nil, fmt.Errorf("%w: %w", ErrClosed, s.readErr)
		}
		return frame, nil
	}
}

// Calibrate implements Stream.
func (s *pcmStream) Calibrate(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var elapsed time.Duration
	for elapsed < d {
		frame, err := s.next(ctx)
		if err != nil {
			return fmt.Errorf("calibrate: %w", err)
		}
		s.vad.Calibrate(frame)
		elapsed += s.vad.frameDuration(frame)
	}
	return nil
}

// Capture implements Stream.
func (s *pcmStream) Capture(ctx context.Context, timeout time.Duration) (Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.vad.Reset()
	preRoll := s.preRoll
	preRoll.Clear()

	// Wait for the phrase to start.
	var waited time.Duration
	var samples []float32
	for {
		frame, err := s.next(ctx)
		if err != nil {
			return Segment{}, err
		}
		waited += s.vad.frameDuration(frame)

		if s.vad.Process(frame) == EventSpeechStart {
			samples = append(preRoll.Read(preRoll.Len()), frame...)
			break
		}
		if timeout > 0 && waited > timeout {
			return Segment{}, ErrTimeout
		}
		preRoll.Write(frame)
	}

	// Record until a pause or the phrase limit.
	for {
		frame, err := s.next(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) && len(samples) > 0 {
				break
			}
			return Segment{}, err
		}
		samples = append(samples, frame...)

		ev := s.vad.Process(frame)
		if ev == EventSpeechEnd {
			samples = s.trimTrailingSilence(samples)
			break
		}
		if ev == EventSpeechMaxDuration {
			break
		}
	}

	return Segment{Samples: samples, SampleRate: s.cfg.SampleRate}, nil
}

// trimTrailingSilence keeps at most PreRoll of the silence that ended the phrase.
func (s *pcmStream) trimTrailingSilence(samples []float32) []float32 {
	extra := s.vad.SilentDuration() - s.cfg.PreRoll
	if extra <= 0 {
		return samples
	}
	n := int(extra.Seconds() * float64(s.cfg.SampleRate))
	if n >= len(samples) {
		return samples
	}
	return samples[:len(samples)-n]
}

// Close implements Stream.
func (s *pcmStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.r.Close()
		if s.onClose != nil {
			if err := s.onClose(); err != nil && s.closeErr == nil {
				s.closeErr = err
			}
		}
		// Unblock the reader if nobody is draining frames.
		go func() {
			for range s.frames {
			}
		}()
	})
	return s.closeErr
}

func decodePCM16(b []byte) []float32 {
	out := make([]float32, len(b)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(b[i*2:]))
		out[i] = float32(v) / 32768
	}
	return out
}
