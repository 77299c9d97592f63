// Package wakeword runs the low duty-cycle listen, transcribe, match loop that
// hands off to a command session when the wake phrase is heard.
package wakeword

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"nomvoice/internal/arbiter"
	"nomvoice/internal/audio"
	"nomvoice/internal/domain"
	"nomvoice/internal/ports"
)

const leaseOwner = "wakeword"

// Config controls the detection cycle.
type Config struct {
	Window          time.Duration
	LevelFloor      float64
	QuietPause      time.Duration
	RejectPause     time.Duration
	IrrelevantPause time.Duration
	FailurePause    time.Duration
}

func DefaultConfig() Config {
	return Config{
		Window:          1500 * time.Millisecond,
		LevelFloor:      0.02,
		QuietPause:      800 * time.Millisecond,
		RejectPause:     100 * time.Millisecond,
		IrrelevantPause: 300 * time.Millisecond,
		FailurePause:    time.Second,
	}
}

// Detector listens in fixed windows until a wake phrase is heard, then stops
// itself and invokes the activation callback exactly once.
type Detector struct {
	arbiter     *arbiter.Arbiter
	recorder    *audio.Recorder
	transcriber ports.Transcriber
	cfg         Config
	logger      zerolog.Logger

	matcher atomic.Pointer[Matcher]

	// proceed is the continue flag; a detection flips it true to false once.
	proceed atomic.Bool

	mu         sync.Mutex
	cancel     context.CancelFunc
	done       chan struct{}
	onActivate func(transcript string)
}

func NewDetector(
	arb *arbiter.Arbiter,
	recorder *audio.Recorder,
	transcriber ports.Transcriber,
	matcher *Matcher,
	cfg Config,
	logger zerolog.Logger,
) *Detector {
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	d := &Detector{
		arbiter:     arb,
		recorder:    recorder,
		transcriber: transcriber,
		cfg:         cfg,
		logger:      logger.With().Str("component", "wakeword").Logger(),
	}
	d.matcher.Store(matcher)
	return d
}

// SetMatcher swaps the wake lists; the next cycle uses them.
func (d *Detector) SetMatcher(m *Matcher) {
	if m != nil {
		d.matcher.Store(m)
	}
}

// SetOnActivate registers the callback invoked after a detection, once the
// loop has exited.
func (d *Detector) SetOnActivate(fn func(transcript string)) {
	d.mu.Lock()
	d.onActivate = fn
	d.mu.Unlock()
}

// Enabled reports the continue flag.
func (d *Detector) Enabled() bool {
	return d.proceed.Load()
}

// Running reports whether the loop goroutine is alive.
func (d *Detector) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done != nil
}

// Start launches the loop. It is a no-op while an enabled loop is running; a
// disabled loop that is still tearing down is waited for first.
func (d *Detector) Start(ctx context.Context) {
	d.mu.Lock()
	previous := d.done
	if previous != nil && d.proceed.Load() {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()
	if previous != nil {
		<-previous
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	d.cancel = cancel
	d.done = done
	d.proceed.Store(true)

	d.logger.Debug().Msg("wake word loop started")
	go d.run(loopCtx, done)
}

// Disable clears the continue flag and aborts the in-flight cycle without
// waiting for it.
func (d *Detector) Disable() {
	d.proceed.Store(false)
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Stop disables the loop and waits until it exited and released its lease.
func (d *Detector) Stop() {
	d.Disable()
	d.mu.Lock()
	done := d.done
	d.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (d *Detector) run(ctx context.Context, done chan struct{}) {
	var (
		detected   bool
		transcript string
	)

	for d.proceed.Load() && ctx.Err() == nil {
		outcome := d.cycle(ctx)
		if outcome.verdict == VerdictMatch {
			if d.proceed.CompareAndSwap(true, false) {
				detected = true
				transcript = outcome.transcript
			}
			break
		}
		if !sleepCtx(ctx, outcome.pause) {
			break
		}
	}

	d.mu.Lock()
	if d.done == done {
		d.cancel()
		d.cancel = nil
		d.done = nil
	}
	onActivate := d.onActivate
	d.mu.Unlock()
	close(done)

	if detected {
		d.logger.Info().Str("transcript", transcript).Msg("wake word detected")
		if onActivate != nil {
			onActivate(transcript)
		}
	} else {
		d.logger.Debug().Msg("wake word loop stopped")
	}
}

type cycleOutcome struct {
	verdict    Verdict
	transcript string
	pause      time.Duration
}

func (d *Detector) cycle(ctx context.Context) cycleOutcome {
	failed := cycleOutcome{verdict: VerdictIrrelevant, pause: d.cfg.FailurePause}

	lease, err := d.arbiter.Acquire(ctx, leaseOwner, domain.AudioModeRecording)
	if err != nil {
		if !errors.Is(err, domain.ErrCancelled) {
			d.logger.Warn().Err(err).Msg("wake word cycle could not configure audio")
		}
		return failed
	}

	pending, err := d.recorder.Begin(ctx, d.cfg.Window)
	if err != nil {
		lease.Release()
		d.logger.Warn().Err(err).Msg("wake word capture failed to start")
		return failed
	}

	select {
	case <-pending.Done():
	case <-ctx.Done():
	}
	capture, err := pending.Stop()
	lease.Release()

	if ctx.Err() != nil {
		return failed
	}
	if err != nil && !errors.Is(err, domain.ErrNoAudioCaptured) {
		d.logger.Warn().Err(err).Msg("wake word capture failed")
		return failed
	}
	if capture.Empty() || capture.Peak < d.cfg.LevelFloor {
		return cycleOutcome{verdict: VerdictIrrelevant, pause: d.cfg.QuietPause}
	}

	text, err := d.transcriber.Transcribe(ctx, capture)
	if err != nil {
		if ctx.Err() == nil {
			d.logger.Warn().Err(err).Msg("wake word transcription failed")
		}
		return failed
	}
	if !d.proceed.Load() {
		return failed
	}

	verdict := d.matcher.Load().Match(text)
	d.logger.Debug().Str("transcript", text).Stringer("verdict", verdict).Msg("wake word cycle")
	switch verdict {
	case VerdictMatch:
		return cycleOutcome{verdict: VerdictMatch, transcript: text}
	case VerdictReject:
		return cycleOutcome{verdict: VerdictReject, pause: d.cfg.RejectPause}
	default:
		return cycleOutcome{verdict: VerdictIrrelevant, pause: d.cfg.IrrelevantPause}
	}
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
