package tts

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"go.aimuz.me/voicebridge/langs"
)

// LocalConfig holds configuration for Local.
type LocalConfig struct {
	BinPath string  // defaults to espeak-ng
	Rate    int     // words per minute, default 150
	Volume  float64 // 0..1, default 0.9
}

// Local synthesizes wav offline with espeak-ng.
type Local struct {
	binPath string
	rate    int
	volume  float64
}

// NewLocal creates a Local synthesizer.
func NewLocal(cfg LocalConfig) *Local {
	if cfg.BinPath == "" {
		cfg.BinPath = "espeak-ng"
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 150
	}
	if cfg.Volume <= 0 || cfg.Volume > 1 {
		cfg.Volume = 0.9
	}
	return &Local{binPath: cfg.BinPath, rate: cfg.Rate, volume: cfg.Volume}
}

// Available reports whether the espeak-ng binary is installed.
func (l *Local) Available() bool {
	_, err := exec.LookPath(l.binPath)
	return err == nil
}

// Synthesize implements Synthesizer.
func (l *Local) Synthesize(ctx context.Context, text, lang string) (Audio, error) {
	cmd := exec.CommandContext(ctx, l.binPath, l.args(lang)...)
	cmd.Stdin = strings.NewReader(text)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Audio{}, fmt.Errorf("espeak-ng failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}
	return Audio{Data: stdout.Bytes(), MIMEType: "audio/wav"}, nil
}

func (l *Local) args(lang string) []string {
	args := []string{
		"--stdout",
		"-s", strconv.Itoa(l.rate),
		// espeak amplitude is 0-200 with 100 as normal
		"-a", strconv.Itoa(int(math.Round(l.volume * 100))),
	}
	if voice := langs.ISOBase(lang); voice != "" {
		args = append(args, "-v", voice)
	}
	return args
}
