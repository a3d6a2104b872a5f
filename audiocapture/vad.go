package audiocapture

import (
	"math"
	"time"
)

// EventType represents the type of speech event.
type EventType int

const (
	EventNone EventType = iota // silence outside a phrase
	EventSpeechStart
	EventSpeechContinue    // inside a phrase, speech or short pause
	EventSpeechEnd         // pause exceeded the pause threshold
	EventSpeechMaxDuration // phrase reached the time limit
)

// Dynamic threshold tuning.
const (
	dynamicDamping = 0.15 // fraction of the old threshold kept per second
	dynamicRatio   = 1.5  // speech must be this much louder than ambient
)

// VAD detects phrases in a stream of fixed-size frames. Time is measured in
// audio, not wall clock, so results depend only on the samples fed in.
type VAD struct {
	threshold       float64
	dynamic         bool
	pauseThreshold  time.Duration
	phraseTimeLimit time.Duration
	sampleRate      int

	inSpeech  bool
	speechDur time.Duration
	silentDur time.Duration
}

// NewVAD creates a detector from cfg.
func NewVAD(cfg Config) *VAD {
	cfg = cfg.withDefaults()
	return &VAD{
		threshold:       cfg.EnergyThreshold,
		dynamic:         cfg.DynamicEnergy,
		pauseThreshold:  cfg.PauseThreshold,
		phraseTimeLimit: cfg.PhraseTimeLimit,
		sampleRate:      cfg.SampleRate,
	}
}

// Process feeds one frame and returns the resulting event.
func (v *VAD) Process(frame []float32) EventType {
	energy := Energy(frame)
	d := v.frameDuration(frame)

	if !v.inSpeech {
		if energy <= v.threshold {
			if v.dynamic {
				v.adjust(energy, d)
			}
			return EventNone
		}
		v.inSpeech = true
		v.speechDur = d
		v.silentDur = 0
		return EventSpeechStart
	}

	v.speechDur += d
	if energy > v.threshold {
		v.silentDur = 0
	} else {
		v.silentDur += d
	}

	if v.silentDur > v.pauseThreshold {
		v.inSpeech = false
		return EventSpeechEnd
	}
	if v.phraseTimeLimit > 0 && v.speechDur >= v.phraseTimeLimit {
		v.inSpeech = false
		return EventSpeechMaxDuration
	}
	return EventSpeechContinue
}

// Calibrate moves the threshold toward the ambient level of frame,
// regardless of the dynamic setting.
func (v *VAD) Calibrate(frame []float32) {
	v.adjust(Energy(frame), v.frameDuration(frame))
}

// Threshold returns the current energy threshold.
func (v *VAD) Threshold() float64 {
	return v.threshold
}

// SilentDuration returns the trailing silence of the current or last phrase.
func (v *VAD) SilentDuration() time.Duration {
	return v.silentDur
}

// Reset clears phrase state, keeping the learned threshold.
func (v *VAD) Reset() {
	v.inSpeech = false
	v.speechDur = 0
	v.silentDur = 0
}

// InSpeech returns true if currently in a phrase.
func (v *VAD) InSpeech() bool {
	return v.inSpeech
}

func (v *VAD) adjust(energy float64, d time.Duration) {
	damping := math.Pow(dynamicDamping, d.Seconds())
	target := energy * dynamicRatio
	v.threshold = v.threshold*damping + target*(1-damping)
}

func (v *VAD) frameDuration(frame []float32) time.Duration {
	return time.Duration(len(frame)) * time.Second / time.Duration(v.sampleRate)
}

// Energy returns the RMS of frame on the 16-bit sample scale.
func Energy(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}

	var sum float64
	for _, s := range frame {
		x := float64(s) * 32768
		sum += x * x
	}
	return math.Sqrt(sum / float64(len(frame)))
}
