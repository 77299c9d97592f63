package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nomvoice/internal/cooking"
	"nomvoice/internal/domain"
	"nomvoice/internal/speechcache"
	"nomvoice/internal/tts"
)

const commandLeaseOwner = "command"

// Short phrases spoken on wake and while a response is synthesized.
var (
	DefaultAcknowledgements = []string{"Yes?", "I'm listening.", "Go ahead."}
	DefaultFillers          = []string{"One moment.", "Let me check.", "Okay."}
)

func (c *Controller) runCommand(s *commandSession) {
	defer close(s.done)
	err := c.commandLoop(s)

	c.mu.Lock()
	owned := c.current == s
	if owned {
		c.current = nil
	}
	c.mu.Unlock()

	// Whoever superseded or aborted the session owns the state now.
	if !owned || s.ctx.Err() != nil {
		s.cancel()
		return
	}
	s.cancel()

	switch {
	case err == nil:
		c.transition(domain.VoiceStateIdle, domain.ReasonCommandHandled, "")
	case errors.Is(err, errNoise):
		c.transition(domain.VoiceStateIdle, domain.ReasonNoise, "")
	case errors.Is(err, domain.ErrNoAudioCaptured):
		c.transition(domain.VoiceStateIdle, domain.ReasonNoAudio, "")
	case domain.IsCancelled(err):
		c.transition(domain.VoiceStateIdle, domain.ReasonListeningCancelled, "")
	default:
		c.fail(err)
	}
}

func (c *Controller) commandLoop(s *commandSession) error {
	ctx := s.ctx
	if s.wake {
		if err := c.speaker.Speak(ctx, c.nextPhrase(c.cfg.Acknowledgements, &c.ackTurn), tts.SpeakOptions{}); err != nil {
			if ctx.Err() != nil {
				return err
			}
			c.logger.Warn().Err(err).Msg("acknowledgement failed")
		}
	}

	reason := domain.ReasonListeningStarted
	for {
		result, response, err := c.listenOnce(s, reason)
		if err != nil {
			return err
		}

		if result.Intent == domain.IntentStopSpeaking {
			return c.speaker.Stop(ctx)
		}
		if response != "" {
			if err := c.respond(ctx, response); err != nil {
				if domain.IsCancelled(err) && ctx.Err() == nil {
					// Interrupted by a stop request; nothing more to say.
					return nil
				}
				return err
			}
		}

		if result.Intent == domain.IntentPause || !c.autoListenEnabled() {
			return nil
		}
		reason = domain.ReasonAutoListen
		c.transition(domain.VoiceStateListening, reason, "")
		if !sleepCtx(ctx, c.cfg.AutoListenDelay) {
			return fmt.Errorf("%w: %v", domain.ErrCancelled, ctx.Err())
		}
	}
}

// listenOnce captures one utterance and resolves it into the guide's answer.
func (c *Controller) listenOnce(s *commandSession, reason domain.StateReason) (domain.IntentResult, string, error) {
	ctx := s.ctx
	stop := s.armStop()
	if err := c.ensurePermission(ctx); err != nil {
		return domain.IntentResult{}, "", err
	}
	c.transition(domain.VoiceStateListening, reason, "")

	lease, err := c.arbiter.Acquire(ctx, commandLeaseOwner, domain.AudioModeRecording)
	if err != nil {
		return domain.IntentResult{}, "", err
	}
	pending, err := c.recorder.Begin(ctx, c.cfg.CaptureTimeout)
	if err != nil {
		lease.Release()
		return domain.IntentResult{}, "", fmt.Errorf("%w: %v", domain.ErrAudioConfigurationFailed, err)
	}

	select {
	case <-pending.Done():
	case <-stop:
	case <-ctx.Done():
	}
	capture, captureErr := pending.Stop()
	lease.Release()
	if ctx.Err() != nil {
		return domain.IntentResult{}, "", fmt.Errorf("%w: %v", domain.ErrCancelled, ctx.Err())
	}

	processing := domain.ReasonTranscribing
	if pending.TimedOut() {
		processing = domain.ReasonCaptureTimeout
	}
	c.transition(domain.VoiceStateProcessing, processing, "")
	if captureErr != nil {
		return domain.IntentResult{}, "", captureErr
	}

	raw, err := c.transcriber.Transcribe(ctx, capture)
	if err != nil {
		return domain.IntentResult{}, "", err
	}
	return c.finalizer.Finalize(raw)
}

// respond speaks text. When it is not cached, a filler covers the synthesis
// latency and the response is prefetched while the filler plays.
func (c *Controller) respond(ctx context.Context, text string) error {
	if !c.speaker.IsCached(text) {
		prefetched := make(chan error, 1)
		go func() { prefetched <- c.speaker.Prefetch(ctx, text) }()

		if err := c.speaker.Speak(ctx, c.nextPhrase(c.cfg.Fillers, &c.fillerTurn), tts.SpeakOptions{}); err != nil {
			if domain.IsCancelled(err) {
				return err
			}
			c.logger.Warn().Err(err).Msg("filler failed")
		}
		if err := <-prefetched; err != nil && !domain.IsCancelled(err) {
			c.logger.Debug().Err(err).Msg("prefetch failed, speaking through fallback")
		}
	}
	return c.speaker.Speak(ctx, text, tts.SpeakOptions{})
}

func (c *Controller) ensurePermission(ctx context.Context) error {
	c.mu.Lock()
	status := c.permission
	c.mu.Unlock()
	if status == domain.PermissionGranted {
		return nil
	}

	status, err := c.permissions.Request(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPermissionDenied, err)
	}
	c.mu.Lock()
	c.permission = status
	c.mu.Unlock()
	if status != domain.PermissionGranted {
		return domain.ErrPermissionDenied
	}
	return nil
}

func (c *Controller) autoListenEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoListen
}

func (c *Controller) nextPhrase(phrases []string, turn *int) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	phrase := phrases[*turn%len(phrases)]
	*turn++
	return phrase
}

// phrases lists every fixed text worth keeping in the speech cache.
func (c *Controller) phrases() []string {
	texts := make([]string, 0, len(c.cfg.Acknowledgements)+len(c.cfg.Fillers)+16)
	texts = append(texts, c.cfg.Acknowledgements...)
	texts = append(texts, c.cfg.Fillers...)
	texts = append(texts,
		cooking.NoRecipeResponse,
		cooking.UnknownResponse,
		cooking.HelpResponse,
		cooking.PauseResponse,
		cooking.TimerNeedsDuration,
		cooking.NoTimerResponse,
		cooking.LastStepResponse,
	)
	return append(texts, c.guide.StepTexts()...)
}

// WarmCache synthesizes every fixed phrase and recipe step that is not cached
// yet and waits for the result.
func (c *Controller) WarmCache(ctx context.Context, onProgress func(speechcache.Progress)) (speechcache.PrecacheResult, error) {
	return c.speaker.Precache(ctx, c.phrases(), onProgress)
}

func (c *Controller) precache(ctx context.Context, texts []string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		result, err := c.speaker.Precache(ctx, texts, func(p speechcache.Progress) {
			c.logger.Debug().Int("done", p.Done).Int("total", p.Total).Msg("precache progress")
		})
		if err != nil {
			c.logger.Debug().Err(err).Msg("precache skipped")
			return
		}
		c.logger.Info().
			Int("cached", result.Cached).
			Int("skipped", result.Skipped).
			Int("failed", result.Failed).
			Msg("speech cache warmed")
	}()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
