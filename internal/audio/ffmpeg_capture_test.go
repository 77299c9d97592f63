package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"nomvoice/internal/domain"
	"nomvoice/internal/ports"
)

func TestSpeechProfileDefaults(t *testing.T) {
	t.Parallel()

	cfg := SpeechProfile(ports.AudioConfig{})
	if cfg.SampleRate != SpeechSampleRate || cfg.Channels != SpeechChannels {
		t.Fatalf("unexpected profile: %+v", cfg)
	}
	if cfg.InputFormat != defaultInputFormat(runtime.GOOS) {
		t.Fatalf("unexpected input format: %q", cfg.InputFormat)
	}

	custom := SpeechProfile(ports.AudioConfig{SampleRate: 48000, InputFormat: "alsa", InputDevice: "hw:1"})
	if custom.SampleRate != 48000 || custom.Channels != SpeechChannels || custom.InputDevice != "hw:1" {
		t.Fatalf("configured fields were overwritten: %+v", custom)
	}
}

func TestDefaultInputDevicePerFormat(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"pulse":        "default",
		"alsa":         "default",
		"avfoundation": ":0",
		"dshow":        "",
	}
	for format, want := range cases {
		if got := defaultInputDevice(format); got != want {
			t.Fatalf("defaultInputDevice(%q) = %q, want %q", format, got, want)
		}
	}
	if got := defaultInputFormat("darwin"); got != "avfoundation" {
		t.Fatalf("unexpected darwin format: %q", got)
	}
}

func TestCaptureArgsRequestSpeechPCM(t *testing.T) {
	t.Parallel()

	args := strings.Join(captureArgs(SpeechProfile(ports.AudioConfig{InputFormat: "pulse"})), " ")
	for _, want := range []string{"-f pulse -i default", "-ac 1", "-ar 16000", "-f s16le", "-fflags nobuffer"} {
		if !strings.Contains(args, want) {
			t.Fatalf("args %q missing %q", args, want)
		}
	}
	if !strings.HasSuffix(args, " -") {
		t.Fatalf("expected output to stdout: %q", args)
	}
}

func TestFFmpegCaptureStartReadAndStop(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "capture.sh", "#!/usr/bin/env bash\nprintf 'hello'\nsleep 2\n")
	capture := NewFFmpegCapture(script)

	session, err := capture.Start(context.Background(), ports.AudioConfig{InputFormat: "pulse"})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	buf := make([]byte, 8)
	n, readErr := session.Read(buf)
	if n <= 0 {
		t.Fatalf("expected audio bytes, got n=%d err=%v", n, readErr)
	}
	if !strings.Contains(string(buf[:n]), "hello") {
		t.Fatalf("unexpected bytes: %q", string(buf[:n]))
	}

	if err := session.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := session.Stop(); err != nil {
		t.Fatalf("second stop failed: %v", err)
	}
}

func TestFFmpegCaptureKillsAfterStopGrace(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "stubborn.sh", "#!/usr/bin/env bash\ntrap '' INT\nprintf 'pcm'\nexec sleep 5\n")
	capture := NewFFmpegCapture(script)
	capture.stopGrace = 50 * time.Millisecond

	session, err := capture.Start(context.Background(), ports.AudioConfig{InputFormat: "pulse"})
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	started := time.Now()
	if err := session.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if elapsed := time.Since(started); elapsed > 2*time.Second {
		t.Fatalf("stop waited %s for an interrupted capture", elapsed)
	}
}

func TestFFmpegCaptureEarlyExitIsConfigurationFailure(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "fail.sh", "#!/usr/bin/env bash\necho 'default: No such device' 1>&2\nexit 1\n")
	capture := NewFFmpegCapture(script)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := capture.Start(ctx, ports.AudioConfig{InputFormat: "pulse"})
	if !errors.Is(err, domain.ErrAudioConfigurationFailed) {
		t.Fatalf("expected configuration failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "No such device") {
		t.Fatalf("expected ffmpeg detail in error: %v", err)
	}
}

func TestFFmpegCaptureEarlyExitIsPermissionDenied(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "denied.sh", "#!/usr/bin/env bash\necho 'Failed to open device: Permission denied' 1>&2\nexit 1\n")
	capture := NewFFmpegCapture(script)

	_, err := capture.Start(context.Background(), ports.AudioConfig{InputFormat: "pulse"})
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
}

func TestFFmpegCaptureRequiresDshowDevice(t *testing.T) {
	t.Parallel()

	capture := NewFFmpegCapture(writeScript(t, "unused.sh", "#!/usr/bin/env bash\nexit 0\n"))
	_, err := capture.Start(context.Background(), ports.AudioConfig{InputFormat: "dshow"})
	if !errors.Is(err, domain.ErrAudioConfigurationFailed) {
		t.Fatalf("expected configuration failure, got %v", err)
	}
}

func TestStartFailureWithoutStderr(t *testing.T) {
	t.Parallel()

	err := startFailure(ports.AudioConfig{InputFormat: "alsa", InputDevice: "hw:0"}, nil, "  \n")
	if !errors.Is(err, domain.ErrAudioConfigurationFailed) {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(err.Error(), `alsa "hw:0"`) {
		t.Fatalf("expected input in error: %v", err)
	}
}

func writeScript(t *testing.T, name string, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o700); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}
