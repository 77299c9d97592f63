// Package deepgram transcribes finished captures over the Deepgram streaming
// listen websocket.
package deepgram

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"nomvoice/internal/domain"
)

const defaultBaseURL = "https://api.deepgram.com/v1"

// Config controls Deepgram websocket settings.
type Config struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
	ChunkSize   int
	WaitTimeout time.Duration
}

// Transcriber implements ports.Transcriber by replaying a capture into a
// listen stream and collecting the final results.
type Transcriber struct {
	cfg    Config
	dialer *websocket.Dialer
}

func NewTranscriber(cfg Config) *Transcriber {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 4 * time.Second
	}
	return &Transcriber{cfg: cfg, dialer: websocket.DefaultDialer}
}

func (t *Transcriber) Transcribe(ctx context.Context, capture domain.Capture) (string, error) {
	if capture.Empty() {
		return "", domain.ErrNoAudioCaptured
	}

	s, err := t.openStream(ctx, StreamConfig{
		Encoding:   "linear16",
		SampleRate: capture.SampleRate,
		Channels:   capture.Channels,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTranscriptionFailed, err)
	}

	agg := newTranscriptAggregator()
	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		for event := range s.Events() {
			agg.Add(event)
		}
	}()

	sendErr := sendPCM(s, capture.PCM, t.cfg.ChunkSize)
	_ = s.CloseSend()
	streamErr := waitForStream(s, t.cfg.WaitTimeout)
	<-consumed

	if ctx.Err() != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrCancelled, ctx.Err())
	}
	raw := agg.Raw()
	if raw == "" {
		switch {
		case sendErr != nil:
			return "", fmt.Errorf("%w: %v", domain.ErrTranscriptionFailed, sendErr)
		case streamErr != nil:
			return "", fmt.Errorf("%w: %v", domain.ErrTranscriptionFailed, streamErr)
		}
	}
	return raw, nil
}

type audioSender interface {
	SendAudio(chunk []byte) error
}

func sendPCM(s audioSender, pcm []byte, chunkSize int) error {
	for len(pcm) > 0 {
		n := min(chunkSize, len(pcm))
		if err := s.SendAudio(pcm[:n]); err != nil {
			return fmt.Errorf("failed to stream audio: %w", err)
		}
		pcm = pcm[n:]
	}
	return nil
}

type waitCloser interface {
	Wait() error
	Close() error
}

func waitForStream(s waitCloser, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- s.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		_ = s.Close()
		return <-done
	}
}

type transcriptAggregator struct {
	mu         sync.Mutex
	finals     []string
	lastSpoken string
}

func newTranscriptAggregator() *transcriptAggregator {
	return &transcriptAggregator{}
}

func (a *transcriptAggregator) Add(event TranscriptEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	text := strings.TrimSpace(event.Text)
	if text == "" {
		return
	}
	a.lastSpoken = text
	if event.Kind == TranscriptKindFinal {
		a.finals = append(a.finals, text)
	}
}

// Raw joins the final results, falling back to the last interim text when
// the stream closed before a final arrived.
func (a *transcriptAggregator) Raw() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	joined := strings.TrimSpace(strings.Join(a.finals, " "))
	if joined == "" {
		return a.lastSpoken
	}
	if a.lastSpoken == "" || strings.HasSuffix(joined, a.lastSpoken) {
		return joined
	}
	if len(a.lastSpoken) > len(joined) {
		return strings.TrimSpace(joined + " " + a.lastSpoken)
	}
	return joined
}
