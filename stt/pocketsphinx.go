package stt

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"go.aimuz.me/voicebridge/audiocapture"
	"go.aimuz.me/voicebridge/langs"
)

// PocketSphinx transcribes with the pocketsphinx command line tool. It only
// serves the languages its acoustic model covers.
type PocketSphinx struct {
	binPath   string
	hmm       string
	dict      string
	lm        string
	languages []string
	ready     bool
}

// PocketSphinxConfig holds configuration for PocketSphinx.
type PocketSphinxConfig struct {
	BinPath string // defaults to "pocketsphinx" in PATH
	// Model files, empty for the tool's built-in model.
	HMM  string
	Dict string
	LM   string
	// Languages the model covers, ISO 639-1. Defaults to English.
	Languages []string
}

// NewPocketSphinx creates a PocketSphinx provider. It is ready when the
// binary is found.
func NewPocketSphinx(cfg PocketSphinxConfig) *PocketSphinx {
	bin := cfg.BinPath
	if bin == "" {
		bin = "pocketsphinx"
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"en"}
	}

	p := &PocketSphinx{
		hmm:       cfg.HMM,
		dict:      cfg.Dict,
		lm:        cfg.LM,
		languages: cfg.Languages,
	}
	if path, err := exec.LookPath(bin); err == nil {
		p.binPath = path
		p.ready = true
	}
	return p
}

func (p *PocketSphinx) Engine() Engine { return EnginePocketSphinx }
func (p *PocketSphinx) Name() string   { return EnginePocketSphinx.String() }
func (p *PocketSphinx) IsReady() bool  { return p.ready }

// Transcribe implements Provider.
func (p *PocketSphinx) Transcribe(ctx context.Context, seg audiocapture.Segment, lang string) (*Result, error) {
	if !p.ready {
		return nil, fmt.Errorf("%s: %w", p.Name(), ErrNotReady)
	}
	base := langs.ISOBase(lang)
	if base != "" && !slices.Contains(p.languages, base) {
		return nil, fmt.Errorf("pocketsphinx: language %q not supported", lang)
	}

	f, err := os.CreateTemp("", "voicebridge-sphinx-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(float32ToWAV(seg.Samples, seg.SampleRate)); err != nil {
		f.Close()
		return nil, fmt.Errorf("write audio file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close audio file: %w", err)
	}

	cmd := exec.CommandContext(ctx, p.binPath, p.args(filepath.Clean(f.Name()))...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pocketsphinx failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	return &Result{Text: parseSphinxOutput(stdout.Bytes()), Language: base}, nil
}

func (p *PocketSphinx) args(wavPath string) []string {
	var args []string
	if p.hmm != "" {
		args = append(args, "-hmm", p.hmm)
	}
	if p.dict != "" {
		args = append(args, "-dict", p.dict)
	}
	if p.lm != "" {
		args = append(args, "-lm", p.lm)
	}
	return append(args, "single", wavPath)
}

// parseSphinxOutput joins the "t" fields of the JSON lines pocketsphinx
// prints per utterance.
func parseSphinxOutput(out []byte) string {
	var parts []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		var line struct {
			Text string `json:"t"`
		}
		if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
			continue
		}
		if t := strings.TrimSpace(line.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

func (p *PocketSphinx) Close() error {
	return nil
}
