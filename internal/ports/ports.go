package ports

import (
	"context"
	"io"

	"nomvoice/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// AudioDevice reconfigures the physical audio route. Only the arbiter calls it.
type AudioDevice interface {
	SetMode(ctx context.Context, mode domain.AudioMode) error
}

// Player plays an encoded audio clip and blocks until it finishes or ctx ends.
type Player interface {
	Play(ctx context.Context, audio []byte) error
}

// Transcriber converts a finished capture into plain text.
type Transcriber interface {
	Transcribe(ctx context.Context, capture domain.Capture) (string, error)
}

// Synthesizer converts text into an encoded audio clip.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, rate float64) ([]byte, error)
}

// Permissions exposes the host microphone permission.
type Permissions interface {
	Status(ctx context.Context) (domain.PermissionStatus, error)
	Request(ctx context.Context) (domain.PermissionStatus, error)
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	StateChanged(state domain.VoiceState, reason domain.StateReason)
	Transcript(text string)
	Response(result domain.IntentResult, text string)
	VoiceError(code domain.ErrorCode, detail string)
}
