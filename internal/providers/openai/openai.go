// Package openai adapts the OpenAI audio endpoints to the runtime's
// transcription and synthesis ports.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"nomvoice/internal/audio"
	"nomvoice/internal/domain"
)

// Config controls the OpenAI client and model choices.
type Config struct {
	APIKey     string
	BaseURL    string
	STTModel   string
	TTSModel   string
	Voice      string
	Language   string
	MaxRetries int
	HTTPClient *http.Client
}

func (c Config) withDefaults() Config {
	if c.STTModel == "" {
		c.STTModel = string(openai.AudioModelWhisper1)
	}
	if c.TTSModel == "" {
		c.TTSModel = string(openai.SpeechModelTTS1)
	}
	if c.Voice == "" {
		c.Voice = string(openai.AudioSpeechNewParamsVoiceAlloy)
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	return c
}

func newClient(cfg Config) (*openai.Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("OPENAI_API_KEY is not configured")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(cfg.HTTPClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)
	return &client, nil
}

// Transcriber implements ports.Transcriber with the Whisper endpoint.
type Transcriber struct {
	cfg    Config
	client *openai.Client
	err    error
}

func NewTranscriber(cfg Config) *Transcriber {
	cfg = cfg.withDefaults()
	client, err := newClient(cfg)
	return &Transcriber{cfg: cfg, client: client, err: err}
}

func (t *Transcriber) Transcribe(ctx context.Context, capture domain.Capture) (string, error) {
	if t.err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTranscriptionFailed, t.err)
	}
	wav, err := audio.EncodeWAV(capture)
	if err != nil {
		return "", err
	}

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(wav), "capture.wav", "audio/wav"),
		Model: openai.AudioModel(t.cfg.STTModel),
	}
	if t.cfg.Language != "" {
		params.Language = openai.String(t.cfg.Language)
	}

	result, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrCancelled, ctx.Err())
		}
		return "", fmt.Errorf("%w: %v", domain.ErrTranscriptionFailed, err)
	}
	return strings.TrimSpace(result.Text), nil
}

// Synthesizer implements ports.Synthesizer with the speech endpoint.
type Synthesizer struct {
	cfg    Config
	client *openai.Client
	err    error
}

func NewSynthesizer(cfg Config) *Synthesizer {
	cfg = cfg.withDefaults()
	client, err := newClient(cfg)
	return &Synthesizer{cfg: cfg, client: client, err: err}
}

func (s *Synthesizer) Synthesize(ctx context.Context, text string, rate float64) ([]byte, error) {
	if s.err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSynthesisFailed, s.err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", domain.ErrSynthesisFailed)
	}

	params := openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(s.cfg.TTSModel),
		Voice:          openai.AudioSpeechNewParamsVoice(s.cfg.Voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	}
	if rate > 0 {
		params.Speed = openai.Float(min(max(rate, 0.25), 4.0))
	}

	resp, err := s.client.Audio.Speech.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrCancelled, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrSynthesisFailed, err)
	}
	defer resp.Body.Close()

	clip, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read speech: %v", domain.ErrSynthesisFailed, err)
	}
	if len(clip) == 0 {
		return nil, fmt.Errorf("%w: empty speech response", domain.ErrSynthesisFailed)
	}
	return clip, nil
}
