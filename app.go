package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"nomvoice/internal/bootstrap"
	"nomvoice/internal/config"
	"nomvoice/internal/cooking"
	"nomvoice/internal/domain"
	"nomvoice/internal/usecase"
)

const (
	eventState      = "nomvoice:state"
	eventTranscript = "nomvoice:transcript"
	eventResponse   = "nomvoice:response"
	eventError      = "nomvoice:error"
	eventVisibility = "nomvoice:visibility"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	services   *bootstrap.Services
	controller *usecase.Controller
	cfg        config.Config
	bootErr    error
	stopWatch  context.CancelFunc
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build("", a)
	if err != nil {
		a.bootErr = err
		a.VoiceError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.services = services
	a.cfg = services.Config
	a.controller = services.Controller

	if err := a.controller.Start(ctx); err != nil {
		a.bootErr = err
		a.VoiceError(domain.ErrorCodeStartup, err.Error())
		return
	}

	runtime.EventsOn(ctx, eventVisibility, func(data ...interface{}) {
		visible := parseVisibility(data)
		if err := a.controller.SetForeground(ctx, visible); err != nil {
			services.Logger.Warn().Err(err).Bool("visible", visible).Msg("lifecycle transition incomplete")
		}
	})

	watchCtx, cancel := context.WithCancel(ctx)
	a.stopWatch = cancel
	if err := config.Watch(watchCtx, a.cfg.Path, a.reloadConfig); err != nil {
		services.Logger.Warn().Err(err).Msg("config hot reload disabled")
	}
}

func (a *App) shutdown(_ context.Context) {
	if a.stopWatch != nil {
		a.stopWatch()
	}
	if a.services != nil {
		if err := a.services.Close(); err != nil {
			a.services.Logger.Warn().Err(err).Msg("shutdown incomplete")
		}
	}
}

func (a *App) reloadConfig(cfg config.Config, err error) {
	if err != nil {
		a.services.Logger.Warn().Err(err).Msg("config reload failed")
		return
	}
	if err := a.services.Apply(cfg); err != nil {
		a.services.Logger.Warn().Err(err).Msg("config reload rejected")
		return
	}
	a.cfg = cfg
}

// StartListening opens a push-to-talk command session.
func (a *App) StartListening() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.controller.StartListening(a.ctx); err != nil {
		return domain.Status{}, err
	}
	return a.controller.Status(), nil
}

// StopListening ends capture early; the command is still processed.
func (a *App) StopListening() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.controller.StopListening(a.ctx); err != nil && !errors.Is(err, usecase.ErrNoActiveSession) {
		return err
	}
	return nil
}

// ToggleListening backs the single microphone button.
func (a *App) ToggleListening() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.controller.ToggleListening(a.ctx); err != nil {
		return domain.Status{}, err
	}
	return a.controller.Status(), nil
}

// Speak reads text aloud.
func (a *App) Speak(text string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.controller.Speak(a.ctx, text); err != nil && !domain.IsCancelled(err) {
		return err
	}
	return nil
}

// StopSpeaking interrupts playback.
func (a *App) StopSpeaking() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.StopSpeaking(a.ctx)
}

// GetStatus returns the current runtime status.
func (a *App) GetStatus() domain.Status {
	if a.controller == nil {
		if a.bootErr != nil {
			return domain.Status{State: domain.VoiceStateError, Message: a.bootErr.Error()}
		}
		return domain.Status{State: domain.VoiceStateIdle}
	}
	return a.controller.Status()
}

// GetPermission reports the microphone permission without prompting.
func (a *App) GetPermission() (domain.PermissionStatus, error) {
	if err := a.requireReady(); err != nil {
		return domain.PermissionUndetermined, err
	}
	return a.controller.PermissionStatus(a.ctx)
}

// RequestPermission prompts for microphone access.
func (a *App) RequestPermission() (domain.PermissionStatus, error) {
	if err := a.requireReady(); err != nil {
		return domain.PermissionUndetermined, err
	}
	return a.controller.RequestPermission(a.ctx)
}

// LoadRecipe reads a recipe file and makes it the active recipe.
func (a *App) LoadRecipe(path string) (domain.Recipe, error) {
	if err := a.requireReady(); err != nil {
		return domain.Recipe{}, err
	}
	recipe, err := cooking.LoadRecipe(path)
	if err != nil {
		return domain.Recipe{}, err
	}
	a.controller.SetRecipe(recipe)
	return recipe, nil
}

// GetRecipe returns the active recipe.
func (a *App) GetRecipe() domain.Recipe {
	if a.controller == nil {
		return domain.Recipe{}
	}
	return a.controller.Recipe()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"stt":        a.cfg.STT.Provider,
		"tts":        a.cfg.TTS.Provider,
		"voice":      a.cfg.OpenAI.Voice,
		"wakeWords":  strings.Join(a.cfg.WakeWord.Words, ", "),
		"recipe":     a.cfg.Recipe,
		"cacheDir":   a.cfg.Cache.Dir,
		"audioInput": a.cfg.Audio.InputDevice,
		"configFile": a.cfg.Path,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// StateChanged emits runtime lifecycle updates to the frontend.
func (a *App) StateChanged(state domain.VoiceState, reason domain.StateReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventState, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": stateReasonMessage(reason),
	})
}

// Transcript emits what the user said.
func (a *App) Transcript(text string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventTranscript, map[string]string{"text": text})
}

// Response emits the classified command and the answer spoken back.
func (a *App) Response(result domain.IntentResult, text string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventResponse, map[string]interface{}{
		"intent":     string(result.Intent),
		"confidence": result.Confidence,
		"transcript": result.RawTranscript,
		"text":       text,
	})
}

// VoiceError emits backend errors to the UI.
func (a *App) VoiceError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

// parseVisibility accepts a bool or "visible"/"hidden" from the frontend.
func parseVisibility(data []interface{}) bool {
	if len(data) == 0 {
		return true
	}
	switch v := data[0].(type) {
	case bool:
		return v
	case string:
		return !strings.EqualFold(strings.TrimSpace(v), "hidden")
	default:
		return true
	}
}

func stateReasonMessage(reason domain.StateReason) string {
	switch reason {
	case domain.ReasonReady:
		return "Ready"
	case domain.ReasonWakeWordDetected:
		return "Wake word heard"
	case domain.ReasonListeningStarted:
		return "Listening..."
	case domain.ReasonAutoListen:
		return "Listening for the next command..."
	case domain.ReasonListeningCancelled:
		return "Listening cancelled"
	case domain.ReasonCaptureTimeout:
		return "Stopped listening. Thinking..."
	case domain.ReasonTranscribing:
		return "Thinking..."
	case domain.ReasonNoise:
		return "Didn't catch that"
	case domain.ReasonNoAudio:
		return "No audio captured"
	case domain.ReasonSpeaking:
		return "Speaking"
	case domain.ReasonSpeechFinished, domain.ReasonCommandHandled:
		return "Ready"
	case domain.ReasonFailed:
		return "Something went wrong"
	case domain.ReasonRecovered:
		return "Ready"
	case domain.ReasonBackgrounded:
		return "Paused in background"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodePermission:
		return "Microphone access denied"
	case domain.ErrorCodeAudioConfiguration:
		return "Audio device unavailable"
	case domain.ErrorCodeTranscription:
		return "Transcription error"
	case domain.ErrorCodeSynthesis:
		return "Speech synthesis error"
	case domain.ErrorCodePlayback:
		return "Playback error"
	case domain.ErrorCodeNoAudio:
		return "No audio captured"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
