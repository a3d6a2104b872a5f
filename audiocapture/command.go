package audiocapture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
)

// DefaultRecorder is the ALSA command line recorder.
const DefaultRecorder = "arecord"

// CommandMicrophone records through an external recorder process that
// writes raw PCM to stdout.
type CommandMicrophone struct {
	cfg      Config
	recorder string

	// listOutput runs the device listing command. Tests replace it.
	listOutput func(ctx context.Context) ([]byte, error)
}

// NewCommandMicrophone creates a microphone backed by recorder, or
// DefaultRecorder when empty.
func NewCommandMicrophone(recorder string, cfg Config) *CommandMicrophone {
	if recorder == "" {
		recorder = DefaultRecorder
	}
	m := &CommandMicrophone{cfg: cfg.withDefaults(), recorder: recorder}
	m.listOutput = func(ctx context.Context) ([]byte, error) {
		return exec.CommandContext(ctx, m.recorder, "-L").Output()
	}
	return m
}

// Devices implements Microphone.
func (m *CommandMicrophone) Devices(ctx context.Context) ([]string, error) {
	out, err := m.listOutput(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list devices: %w", ErrNoDevice, err)
	}
	return parseDeviceList(out), nil
}

// Open implements Microphone.
func (m *CommandMicrophone) Open(ctx context.Context) (Stream, error) {
	cmd := exec.CommandContext(ctx, m.recorder, m.args()...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("recorder pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s not installed", ErrNoDevice, m.recorder)
		}
		return nil, fmt.Errorf("%w: start recorder: %w", ErrNoDevice, err)
	}

	wait := func() error {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		err := cmd.Wait()
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			slog.Debug("recorder exited", "stderr", msg)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) || errors.Is(err, context.Canceled) {
			// Killed on purpose.
			return nil
		}
		return err
	}

	stream := newPCMStream(stdout, m.cfg, wait)
	if err := stream.ready(ctx, m.cfg.StartupTimeout); err != nil {
		_ = stream.Close()
		// The recorder has exited, stderr is complete.
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("open %s: %w: %s", m.recorder, err, msg)
		}
		return nil, fmt.Errorf("open %s: %w", m.recorder, err)
	}

	slog.Info("microphone opened",
		"recorder", m.recorder,
		"device", m.cfg.Device,
		"sample_rate", m.cfg.SampleRate,
	)
	return stream, nil
}

func (m *CommandMicrophone) args() []string {
	args := []string{"-q", "-t", "raw", "-f", "S16_LE", "-c", "1", "-r", strconv.Itoa(m.cfg.SampleRate)}
	if m.cfg.Device != "" {
		args = append(args, "-D", m.cfg.Device)
	}
	return args
}

// parseDeviceList extracts PCM names from `arecord -L` output. Names start
// at column zero; indented lines are descriptions.
func parseDeviceList(out []byte) []string {
	var devices []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if line == "" || line[0] == ' ' || line[0] == '\t' {
			continue
		}
		name := strings.TrimSpace(line)
		if name == "null" {
			continue
		}
		devices = append(devices, name)
	}
	return devices
}
