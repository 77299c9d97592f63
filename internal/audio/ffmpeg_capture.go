package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"nomvoice/internal/domain"
	"nomvoice/internal/ports"
)

// Speech capture profile: 16 kHz signed 16-bit little-endian mono. The
// transcribers and the level meter assume it.
const (
	SpeechSampleRate = 16000
	SpeechChannels   = 1
)

// SpeechProfile fills the unset fields of cfg with the speech capture
// profile and the host's default input.
func SpeechProfile(cfg ports.AudioConfig) ports.AudioConfig {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = SpeechSampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = SpeechChannels
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = defaultInputFormat(runtime.GOOS)
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = defaultInputDevice(cfg.InputFormat)
	}
	return cfg
}

func defaultInputFormat(goos string) string {
	switch goos {
	case "darwin":
		return "avfoundation"
	case "windows":
		return "dshow"
	default:
		return "pulse"
	}
}

func defaultInputDevice(format string) string {
	switch format {
	case "avfoundation":
		return ":0"
	case "dshow":
		// dshow has no default device; the user must name one.
		return ""
	default:
		return "default"
	}
}

// FFmpegCapture streams microphone PCM in the speech profile from an ffmpeg
// child process.
type FFmpegCapture struct {
	command    string
	startGrace time.Duration
	stopGrace  time.Duration
}

func NewFFmpegCapture(command string) *FFmpegCapture {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFmpegCapture{
		command:    command,
		startGrace: 250 * time.Millisecond,
		stopGrace:  1200 * time.Millisecond,
	}
}

func (c *FFmpegCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	cfg = SpeechProfile(cfg)
	if cfg.InputDevice == "" {
		return nil, fmt.Errorf("%w: input_device is required for %s", domain.ErrAudioConfigurationFailed, cfg.InputFormat)
	}

	cmd := exec.CommandContext(ctx, c.command, captureArgs(cfg)...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	// Children that outlive ffmpeg must not hold Wait open on stderr.
	cmd.WaitDelay = c.stopGrace
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: capture pipe: %v", domain.ErrAudioConfigurationFailed, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", domain.ErrAudioConfigurationFailed, c.command, err)
	}

	session := &micSession{
		stdout:    stdout,
		stderr:    stderr,
		process:   cmd.Process,
		exited:    make(chan struct{}),
		stopGrace: c.stopGrace,
	}
	go func() {
		session.exitErr = cmd.Wait()
		close(session.exited)
	}()

	// A device that cannot be opened makes ffmpeg exit almost immediately.
	select {
	case <-session.exited:
		return nil, startFailure(cfg, session.exitErr, stderr.String())
	case <-time.After(c.startGrace):
	}
	return session, nil
}

func captureArgs(cfg ports.AudioConfig) []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-fflags", "nobuffer",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-flush_packets", "1",
		"-",
	}
}

var permissionMarkers = []string{"permission denied", "not authorized", "access denied", "operation not permitted"}

// startFailure maps an early ffmpeg exit to the microphone error it most
// likely means.
func startFailure(cfg ports.AudioConfig, exitErr error, stderr string) error {
	detail := strings.TrimSpace(stderr)
	if detail == "" && exitErr != nil {
		detail = exitErr.Error()
	}
	if detail == "" {
		detail = "capture ended before any audio"
	}
	lower := strings.ToLower(detail)
	for _, marker := range permissionMarkers {
		if strings.Contains(lower, marker) {
			return fmt.Errorf("%w: %s", domain.ErrPermissionDenied, detail)
		}
	}
	return fmt.Errorf("%w: %s %q: %s", domain.ErrAudioConfigurationFailed, cfg.InputFormat, cfg.InputDevice, detail)
}

type micSession struct {
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process   *os.Process
	exited    chan struct{}
	exitErr   error
	stopGrace time.Duration

	stopOnce sync.Once
	stopErr  error
}

func (s *micSession) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *micSession) Close() error {
	return s.Stop()
}

// Stop interrupts ffmpeg so it flushes, and kills it if it lingers past the
// grace period. The non-zero exit caused by the interrupt is not an error.
func (s *micSession) Stop() error {
	s.stopOnce.Do(func() {
		_ = s.process.Signal(os.Interrupt)
		select {
		case <-s.exited:
		case <-time.After(s.stopGrace):
			_ = s.process.Kill()
			<-s.exited
		}

		var exitErr *exec.ExitError
		if s.exitErr != nil && !errors.As(s.exitErr, &exitErr) && !errors.Is(s.exitErr, exec.ErrWaitDelay) {
			s.stopErr = s.exitErr
		}
		if err := s.stdout.Close(); err != nil && !errors.Is(err, os.ErrClosed) && s.stopErr == nil {
			s.stopErr = err
		}
		if s.stopErr != nil {
			if detail := strings.TrimSpace(s.stderr.String()); detail != "" {
				s.stopErr = fmt.Errorf("%w: %s", s.stopErr, detail)
			}
		}
	})
	return s.stopErr
}
