// Package local synthesizes speech on-device through an espeak-ng compatible
// command. It is the fallback when the remote synthesizer fails.
package local

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"nomvoice/internal/domain"
)

const (
	baseWordsPerMinute = 175
	maxTextLength      = 500
)

// Config controls the synthesis command.
type Config struct {
	Command string
	Voice   string
}

// Synthesizer implements ports.Synthesizer with a local command that writes
// WAV to stdout.
type Synthesizer struct {
	cfg    Config
	logger zerolog.Logger
}

func NewSynthesizer(cfg Config, logger zerolog.Logger) *Synthesizer {
	if cfg.Command == "" {
		cfg.Command = "espeak-ng"
	}
	return &Synthesizer{cfg: cfg, logger: logger.With().Str("component", "local_tts").Logger()}
}

// Available reports whether the command can be found.
func (s *Synthesizer) Available() bool {
	_, err := exec.LookPath(s.cfg.Command)
	return err == nil
}

func (s *Synthesizer) Synthesize(ctx context.Context, text string, rate float64) ([]byte, error) {
	text = sanitize(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty text after sanitization", domain.ErrSynthesisFailed)
	}
	if rate <= 0 {
		rate = 1
	}

	args := []string{"--stdout", "-s", strconv.Itoa(int(baseWordsPerMinute * rate))}
	if s.cfg.Voice != "" {
		args = append(args, "-v", s.cfg.Voice)
	}

	started := time.Now()
	cmd := exec.CommandContext(ctx, s.cfg.Command, args...)
	cmd.Stdin = strings.NewReader(text)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrCancelled, ctx.Err())
		}
		s.logger.Error().Err(err).Str("stderr", strings.TrimSpace(stderr.String())).Msg("local synthesis failed")
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrSynthesisFailed, s.cfg.Command, err)
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: %s produced no audio", domain.ErrSynthesisFailed, s.cfg.Command)
	}

	s.logger.Debug().Int("bytes", stdout.Len()).Dur("elapsed", time.Since(started)).Msg("local synthesis complete")
	return stdout.Bytes(), nil
}

func sanitize(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > maxTextLength {
		text = text[:maxTextLength]
	}
	return text
}
