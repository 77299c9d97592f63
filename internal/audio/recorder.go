package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"nomvoice/internal/domain"
	"nomvoice/internal/ports"
)

// Recorder starts bounded microphone captures.
type Recorder struct {
	capture   ports.AudioCapture
	cfg       ports.AudioConfig
	chunkSize int
}

func NewRecorder(capture ports.AudioCapture, cfg ports.AudioConfig, chunkSize int) *Recorder {
	cfg = SpeechProfile(cfg)
	if chunkSize < 256 {
		chunkSize = 4096
	}
	return &Recorder{capture: capture, cfg: cfg, chunkSize: chunkSize}
}

// Begin starts a capture that stops itself after maxDuration or when ctx ends.
func (r *Recorder) Begin(ctx context.Context, maxDuration time.Duration) (*PendingCapture, error) {
	session, err := r.capture.Start(ctx, r.cfg)
	if err != nil {
		return nil, fmt.Errorf("start capture: %w", err)
	}

	pending := &PendingCapture{
		StartedAt:   time.Now(),
		MaxDuration: maxDuration,
		session:     session,
		cfg:         r.cfg,
		done:        make(chan struct{}),
	}
	go pending.pump(r.chunkSize)

	if maxDuration > 0 {
		pending.timer = time.AfterFunc(maxDuration, func() {
			pending.mu.Lock()
			pending.timedOut = true
			pending.mu.Unlock()
			_ = pending.session.Stop()
		})
	}
	pending.unbind = context.AfterFunc(ctx, func() {
		_ = pending.session.Stop()
	})
	return pending, nil
}

// PendingCapture is a live, bounded recording. It must be stopped on every
// exit path; Stop is idempotent.
type PendingCapture struct {
	StartedAt   time.Time
	MaxDuration time.Duration

	session ports.AudioSession
	cfg     ports.AudioConfig
	timer   *time.Timer
	unbind  func() bool

	mu       sync.Mutex
	buf      bytes.Buffer
	peak     float64
	readErr  error
	timedOut bool

	done chan struct{}

	stopOnce sync.Once
	result   domain.Capture
	stopErr  error
}

func (p *PendingCapture) pump(chunkSize int) {
	defer close(p.done)

	chunk := make([]byte, chunkSize)
	for {
		n, err := p.session.Read(chunk)
		if n > 0 {
			level := PeakLevel(chunk[:n])
			p.mu.Lock()
			p.buf.Write(chunk[:n])
			if level > p.peak {
				p.peak = level
			}
			p.mu.Unlock()
		}
		if err != nil {
			p.mu.Lock()
			if !isEndOfCapture(err) {
				p.readErr = err
			}
			p.mu.Unlock()
			return
		}
	}
}

// Done is closed once the capture stopped producing audio, whether through
// Stop, the duration bound, cancellation or the device ending the stream.
func (p *PendingCapture) Done() <-chan struct{} {
	return p.done
}

// Level returns the highest peak observed so far.
func (p *PendingCapture) Level() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peak
}

// TimedOut reports whether the duration bound ended the capture.
func (p *PendingCapture) TimedOut() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timedOut
}

// Stop ends the capture, closes the device handle and returns the audio.
func (p *PendingCapture) Stop() (domain.Capture, error) {
	p.stopOnce.Do(func() {
		if p.timer != nil {
			p.timer.Stop()
		}
		if p.unbind != nil {
			p.unbind()
		}
		stopErr := p.session.Stop()
		<-p.done

		p.mu.Lock()
		defer p.mu.Unlock()

		pcm := append([]byte(nil), p.buf.Bytes()...)
		p.result = domain.Capture{
			PCM:        pcm,
			SampleRate: p.cfg.SampleRate,
			Channels:   p.cfg.Channels,
			Peak:       p.peak,
			StartedAt:  p.StartedAt,
			Duration:   PCMDuration(len(pcm), p.cfg.SampleRate, p.cfg.Channels),
		}

		switch {
		case p.readErr != nil:
			p.stopErr = fmt.Errorf("audio capture error: %w", p.readErr)
		case stopErr != nil && len(pcm) == 0:
			p.stopErr = fmt.Errorf("failed to stop audio capture cleanly: %w", stopErr)
		case len(pcm) < 2:
			p.stopErr = domain.ErrNoAudioCaptured
		}
	})
	return p.result, p.stopErr
}

func isEndOfCapture(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed)
}
