package domain

import "time"

// VoiceState models the voice runtime lifecycle observed by the UI.
type VoiceState string

const (
	VoiceStateIdle       VoiceState = "idle"
	VoiceStateListening  VoiceState = "listening"
	VoiceStateProcessing VoiceState = "processing"
	VoiceStateSpeaking   VoiceState = "speaking"
	VoiceStateError      VoiceState = "error"
)

// StateReason provides a structured reason for state transitions.
type StateReason string

const (
	ReasonReady              StateReason = "ready"
	ReasonWakeWordDetected   StateReason = "wake_word_detected"
	ReasonListeningStarted   StateReason = "listening_started"
	ReasonListeningCancelled StateReason = "listening_cancelled"
	ReasonCaptureTimeout     StateReason = "capture_timeout"
	ReasonTranscribing       StateReason = "transcribing"
	ReasonNoise              StateReason = "noise"
	ReasonNoAudio            StateReason = "no_audio"
	ReasonSpeaking           StateReason = "speaking"
	ReasonSpeechFinished     StateReason = "speech_finished"
	ReasonCommandHandled     StateReason = "command_handled"
	ReasonAutoListen         StateReason = "auto_listen"
	ReasonFailed             StateReason = "failed"
	ReasonRecovered          StateReason = "recovered"
	ReasonBackgrounded       StateReason = "backgrounded"
)

// AudioMode is the physical audio session mode owned by the arbiter.
type AudioMode string

const (
	AudioModeIdle      AudioMode = "idle"
	AudioModeRecording AudioMode = "recording"
	AudioModePlayback  AudioMode = "playback"
)

// PermissionStatus is the host's microphone permission state.
type PermissionStatus string

const (
	PermissionUndetermined PermissionStatus = "undetermined"
	PermissionGranted      PermissionStatus = "granted"
	PermissionDenied       PermissionStatus = "denied"
)

// ErrorCode identifies user-visible runtime errors.
type ErrorCode string

const (
	ErrorCodeStartup            ErrorCode = "startup"
	ErrorCodePermission         ErrorCode = "permission_denied"
	ErrorCodeAudioConfiguration ErrorCode = "audio_configuration"
	ErrorCodeTranscription      ErrorCode = "transcription"
	ErrorCodeSynthesis          ErrorCode = "synthesis"
	ErrorCodePlayback           ErrorCode = "playback"
	ErrorCodeNoAudio            ErrorCode = "no_audio"
	ErrorCodeUnknown            ErrorCode = "unknown"
)

// Capture is a finished microphone recording in the fixed PCM profile
// (signed 16-bit little-endian).
type Capture struct {
	PCM        []byte        `json:"-"`
	SampleRate int           `json:"sampleRate"`
	Channels   int           `json:"channels"`
	Peak       float64       `json:"peak"`
	StartedAt  time.Time     `json:"startedAt"`
	Duration   time.Duration `json:"duration"`
}

// Empty reports whether the capture holds no samples.
func (c Capture) Empty() bool {
	return len(c.PCM) < 2
}

// Status summarizes the runtime for the UI.
type Status struct {
	State      VoiceState       `json:"state"`
	Listening  bool             `json:"listening"`
	Speaking   bool             `json:"speaking"`
	WakeWord   bool             `json:"wakeWord"`
	Foreground bool             `json:"foreground"`
	Permission PermissionStatus `json:"permission"`
	Message    string           `json:"message,omitempty"`
}
