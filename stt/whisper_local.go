package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"go.aimuz.me/voicebridge/audiocapture"
	"go.aimuz.me/voicebridge/langs"
)

// WhisperLocal transcribes with the whisper.cpp command line tool.
type WhisperLocal struct {
	modelPath string
	modelSize string // "tiny", "base", "small", "medium", "large"
	binPath   string
	threads   int

	mu            sync.RWMutex
	ready         bool
	hasBinary     bool
	setupProgress int
}

// WhisperLocalConfig holds configuration for WhisperLocal.
type WhisperLocalConfig struct {
	ModelSize string // "tiny", "base", "small", "medium", "large"
	ModelDir  string // Directory to store models
	BinPath   string // Path to the whisper.cpp binary, searched in PATH if empty
	Threads   int
}

// modelURLs maps model sizes to their download location and approximate size.
var modelURLs = map[string]struct {
	URL  string
	Size int64
}{
	"tiny":   {"https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-tiny.bin", 75 * 1024 * 1024},
	"base":   {"https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-base.bin", 142 * 1024 * 1024},
	"small":  {"https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-small.bin", 466 * 1024 * 1024},
	"medium": {"https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-medium.bin", 1500 * 1024 * 1024},
	"large":  {"https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-large-v3.bin", 3000 * 1024 * 1024},
}

// DefaultModelDir returns the directory models are stored in by default.
func DefaultModelDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get config dir: %w", err)
	}
	return filepath.Join(dir, "voicebridge", "models"), nil
}

// NewWhisperLocal creates a WhisperLocal provider. It is ready only when
// both the binary and the model file are present.
func NewWhisperLocal(cfg WhisperLocalConfig) (*WhisperLocal, error) {
	if cfg.ModelSize == "" {
		cfg.ModelSize = "base"
	}
	if _, ok := modelURLs[cfg.ModelSize]; !ok {
		return nil, fmt.Errorf("invalid model size: %s", cfg.ModelSize)
	}

	if cfg.ModelDir == "" {
		dir, err := DefaultModelDir()
		if err != nil {
			return nil, err
		}
		cfg.ModelDir = dir
	}

	w := &WhisperLocal{
		modelSize:     cfg.ModelSize,
		modelPath:     filepath.Join(cfg.ModelDir, fmt.Sprintf("ggml-%s.bin", cfg.ModelSize)),
		binPath:       cfg.BinPath,
		threads:       cfg.Threads,
		setupProgress: -1,
	}

	if binPath := w.findWhisperBinary(); binPath != "" {
		w.hasBinary = true
		w.binPath = binPath
	}

	if _, err := os.Stat(w.modelPath); err == nil && w.hasBinary {
		w.ready = true
		w.setupProgress = 100
	}

	return w, nil
}

func (w *WhisperLocal) Engine() Engine { return EngineWhisperLocal }
func (w *WhisperLocal) Name() string   { return EngineWhisperLocal.String() }

// ModelPath returns where the model file is expected.
func (w *WhisperLocal) ModelPath() string { return w.modelPath }

// HasBinary returns true if the whisper.cpp binary is available.
func (w *WhisperLocal) HasBinary() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.hasBinary
}

func (w *WhisperLocal) IsReady() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ready
}

// SetupProgress returns the model download progress (0-100), -1 if not started.
func (w *WhisperLocal) SetupProgress() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.setupProgress
}

// Setup downloads the model if it is missing.
// The progress callback receives percentage (0-100).
func (w *WhisperLocal) Setup(ctx context.Context, progress func(percent int)) error {
	w.mu.Lock()
	if w.ready {
		w.mu.Unlock()
		return nil
	}
	w.setupProgress = 0
	w.mu.Unlock()

	if _, err := os.Stat(w.modelPath); err != nil {
		model := modelURLs[w.modelSize]
		if err := os.MkdirAll(filepath.Dir(w.modelPath), 0o755); err != nil {
			return fmt.Errorf("create model dir: %w", err)
		}
		if err := w.downloadModel(ctx, model.URL, model.Size, progress); err != nil {
			return fmt.Errorf("download model: %w", err)
		}
	}

	w.mu.Lock()
	w.ready = w.hasBinary
	w.setupProgress = 100
	w.mu.Unlock()

	if progress != nil {
		progress(100)
	}
	return nil
}

func (w *WhisperLocal) downloadModel(ctx context.Context, url string, expectedSize int64, progress func(percent int)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http status: %d", resp.StatusCode)
	}

	tmpPath := w.modelPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath)
	}()

	var downloaded int64
	buf := make([]byte, 32*1024)
	lastProgress := 0

	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return fmt.Errorf("write file: %w", werr)
			}
			downloaded += int64(n)

			if expectedSize > 0 {
				pct := min(int(downloaded*100/expectedSize), 99)
				if pct > lastProgress {
					lastProgress = pct
					w.mu.Lock()
					w.setupProgress = pct
					w.mu.Unlock()
					if progress != nil {
						progress(pct)
					}
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmpPath, w.modelPath); err != nil {
		return fmt.Errorf("rename file: %w", err)
	}
	return nil
}

// Transcribe implements Provider.
func (w *WhisperLocal) Transcribe(ctx context.Context, seg audiocapture.Segment, lang string) (*Result, error) {
	if !w.IsReady() {
		return nil, fmt.Errorf("%s: %w", w.Name(), ErrNotReady)
	}

	dir, err := os.MkdirTemp("", "voicebridge-whisper-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	audioPath := filepath.Join(dir, "audio.wav")
	if err := os.WriteFile(audioPath, float32ToWAV(seg.Samples, seg.SampleRate), 0o644); err != nil {
		return nil, fmt.Errorf("write audio file: %w", err)
	}

	outBase := filepath.Join(dir, "out")
	args := []string{
		"-m", w.modelPath,
		"-f", audioPath,
		"-oj", // JSON to <outBase>.json
		"-of", outBase,
		"-np",
	}
	if base := langs.ISOBase(lang); base != "" {
		args = append(args, "-l", base)
	} else {
		args = append(args, "-l", "auto")
	}
	if w.threads > 0 {
		args = append(args, "-t", fmt.Sprint(w.threads))
	}

	cmd := exec.CommandContext(ctx, w.binPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("whisper-cpp failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	data, err := os.ReadFile(outBase + ".json")
	if err != nil {
		// Older builds print the transcript only.
		return &Result{Text: stdout.String(), Language: lang}, nil
	}
	return parseWhisperJSON(data)
}

func parseWhisperJSON(data []byte) (*Result, error) {
	var out whisperCppOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse whisper output: %w", err)
	}

	var sb strings.Builder
	for _, seg := range out.Transcription {
		sb.WriteString(seg.Text)
	}
	return &Result{Text: sb.String(), Language: out.Result.Language}, nil
}

func (w *WhisperLocal) findWhisperBinary() string {
	if w.binPath != "" {
		if path, err := exec.LookPath(w.binPath); err == nil {
			return path
		}
		return ""
	}

	// whisper-cli is the name current whisper.cpp builds install
	for _, name := range []string{"whisper-cli", "whisper-cpp", "whisper"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	homeDir, _ := os.UserHomeDir()
	locations := []string{
		"/usr/local/bin",
		filepath.Join(homeDir, ".local", "bin"),
		filepath.Join(homeDir, "whisper.cpp", "build", "bin"),
	}
	for _, loc := range locations {
		path := filepath.Join(loc, "whisper-cli")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

func (w *WhisperLocal) Close() error {
	return nil
}

// whisperCppOutput represents the JSON output from whisper.cpp.
type whisperCppOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Text    string `json:"text"`
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
	} `json:"transcription"`
}
