package main

import (
	"errors"
	"testing"

	"nomvoice/internal/domain"
)

func TestStateReasonMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.StateReason]string{
		domain.ReasonReady:              "Ready",
		domain.ReasonWakeWordDetected:   "Wake word heard",
		domain.ReasonListeningStarted:   "Listening...",
		domain.ReasonAutoListen:         "Listening for the next command...",
		domain.ReasonListeningCancelled: "Listening cancelled",
		domain.ReasonCaptureTimeout:     "Stopped listening. Thinking...",
		domain.ReasonTranscribing:       "Thinking...",
		domain.ReasonNoise:              "Didn't catch that",
		domain.ReasonNoAudio:            "No audio captured",
		domain.ReasonSpeaking:           "Speaking",
		domain.ReasonSpeechFinished:     "Ready",
		domain.ReasonCommandHandled:     "Ready",
		domain.ReasonFailed:             "Something went wrong",
		domain.ReasonRecovered:          "Ready",
		domain.ReasonBackgrounded:       "Paused in background",
	}

	for reason, want := range cases {
		t.Run(string(reason), func(t *testing.T) {
			t.Parallel()
			if got := stateReasonMessage(reason); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := stateReasonMessage("unknown"); got != "" {
		t.Fatalf("expected empty unknown reason message, got %q", got)
	}
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.ErrorCode]string{
		domain.ErrorCodeStartup:            "Startup failed",
		domain.ErrorCodePermission:         "Microphone access denied",
		domain.ErrorCodeAudioConfiguration: "Audio device unavailable",
		domain.ErrorCodeTranscription:      "Transcription error",
		domain.ErrorCodeSynthesis:          "Speech synthesis error",
		domain.ErrorCodePlayback:           "Playback error",
		domain.ErrorCodeNoAudio:            "No audio captured",
	}
	for code, want := range cases {
		t.Run(string(code), func(t *testing.T) {
			t.Parallel()
			if got := errorMessage(code, "ignored"); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := errorMessage("unknown", "detail"); got != "detail" {
		t.Fatalf("expected detail fallback, got %q", got)
	}
	if got := errorMessage("unknown", ""); got != "Unknown error" {
		t.Fatalf("expected unknown fallback, got %q", got)
	}
}

func TestParseVisibility(t *testing.T) {
	t.Parallel()

	cases := []struct {
		data []interface{}
		want bool
	}{
		{nil, true},
		{[]interface{}{false}, false},
		{[]interface{}{true}, true},
		{[]interface{}{"hidden"}, false},
		{[]interface{}{" Hidden "}, false},
		{[]interface{}{"visible"}, true},
		{[]interface{}{42}, true},
	}
	for _, tc := range cases {
		if got := parseVisibility(tc.data); got != tc.want {
			t.Fatalf("parseVisibility(%v) = %v, want %v", tc.data, got, tc.want)
		}
	}
}

func TestRequireReady(t *testing.T) {
	t.Parallel()

	app := &App{}
	if err := app.requireReady(); err == nil {
		t.Fatalf("expected uninitialized error")
	}

	bootErr := errors.New("boot")
	app.bootErr = bootErr
	if err := app.requireReady(); !errors.Is(err, bootErr) {
		t.Fatalf("expected boot error, got %v", err)
	}
}

func TestGetStatusWhenNotInitialized(t *testing.T) {
	t.Parallel()

	app := &App{}
	status := app.GetStatus()
	if status.State != domain.VoiceStateIdle || status.Listening {
		t.Fatalf("unexpected status: %+v", status)
	}

	app.bootErr = errors.New("boot")
	status = app.GetStatus()
	if status.State != domain.VoiceStateError || status.Message != "boot" {
		t.Fatalf("unexpected boot status: %+v", status)
	}
	if info := app.GetRuntimeInfo(); info["error"] != "boot" {
		t.Fatalf("unexpected runtime info: %v", info)
	}
}
