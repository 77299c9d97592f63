package domain

import (
	"context"
	"errors"
)

var (
	ErrPermissionDenied         = errors.New("microphone permission denied")
	ErrAudioConfigurationFailed = errors.New("audio session configuration failed")
	ErrTranscriptionFailed      = errors.New("transcription failed")
	ErrSynthesisFailed          = errors.New("speech synthesis failed")
	ErrPlaybackFailed           = errors.New("audio playback failed")
	ErrNoAudioCaptured          = errors.New("no audio captured")
	ErrCancelled                = errors.New("cancelled")
)

// ErrorCodeFor maps a runtime error onto the code surfaced to the UI.
func ErrorCodeFor(err error) ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return ErrorCodePermission
	case errors.Is(err, ErrAudioConfigurationFailed):
		return ErrorCodeAudioConfiguration
	case errors.Is(err, ErrTranscriptionFailed):
		return ErrorCodeTranscription
	case errors.Is(err, ErrSynthesisFailed):
		return ErrorCodeSynthesis
	case errors.Is(err, ErrPlaybackFailed):
		return ErrorCodePlayback
	case errors.Is(err, ErrNoAudioCaptured):
		return ErrorCodeNoAudio
	default:
		return ErrorCodeUnknown
	}
}

// IsCancelled reports whether err stems from supersession or context cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}
