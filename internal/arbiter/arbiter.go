// Package arbiter owns the single physical audio session. Every component that
// records or plays audio holds a Lease while it touches the device.
package arbiter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"nomvoice/internal/domain"
	"nomvoice/internal/ports"
)

// Config controls hardware reconfiguration behavior.
type Config struct {
	Retries         int
	Backoff         time.Duration
	RecordingSettle time.Duration
	PlaybackSettle  time.Duration
}

// DefaultConfig returns the tuned reconfiguration settings.
func DefaultConfig() Config {
	return Config{
		Retries:         3,
		Backoff:         150 * time.Millisecond,
		RecordingSettle: 100 * time.Millisecond,
		PlaybackSettle:  50 * time.Millisecond,
	}
}

// Arbiter grants exclusive leases on the audio device and tracks its mode.
type Arbiter struct {
	device ports.AudioDevice
	cfg    Config
	logger zerolog.Logger

	slot chan struct{}

	mu     sync.Mutex
	mode   domain.AudioMode
	holder *Lease
}

// Lease is proof of exclusive ownership of the audio device.
type Lease struct {
	ID    string
	Owner string
	Mode  domain.AudioMode

	arbiter  *Arbiter
	stop     func() bool
	once     sync.Once
	released chan struct{}
}

func New(device ports.AudioDevice, cfg Config, logger zerolog.Logger) *Arbiter {
	defaults := DefaultConfig()
	if cfg.Retries <= 0 {
		cfg.Retries = defaults.Retries
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaults.Backoff
	}
	if cfg.RecordingSettle < 0 {
		cfg.RecordingSettle = 0
	}
	if cfg.PlaybackSettle < 0 {
		cfg.PlaybackSettle = 0
	}
	return &Arbiter{
		device: device,
		cfg:    cfg,
		logger: logger.With().Str("component", "arbiter").Logger(),
		slot:   make(chan struct{}, 1),
		mode:   domain.AudioModeIdle,
	}
}

// Acquire waits for the device to be free, switches it into mode and returns
// the lease. The lease is released automatically when ctx ends.
func (a *Arbiter) Acquire(ctx context.Context, owner string, mode domain.AudioMode) (*Lease, error) {
	return a.acquire(ctx, owner, mode, true)
}

// AcquireHeld is Acquire for holders whose device use outlives ctx, such as
// a player that keeps draining after cancellation. ctx bounds only the wait
// and the reconfiguration; the caller must Release the lease.
func (a *Arbiter) AcquireHeld(ctx context.Context, owner string, mode domain.AudioMode) (*Lease, error) {
	return a.acquire(ctx, owner, mode, false)
}

func (a *Arbiter) acquire(ctx context.Context, owner string, mode domain.AudioMode, bound bool) (*Lease, error) {
	select {
	case a.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: waiting for audio session: %v", domain.ErrCancelled, ctx.Err())
	}

	if err := a.configure(ctx, mode); err != nil {
		<-a.slot
		return nil, err
	}

	lease := &Lease{
		ID:       uuid.NewString(),
		Owner:    owner,
		Mode:     mode,
		arbiter:  a,
		released: make(chan struct{}),
	}

	a.mu.Lock()
	a.holder = lease
	a.mu.Unlock()

	if bound {
		stop := context.AfterFunc(ctx, lease.Release)
		a.mu.Lock()
		lease.stop = stop
		a.mu.Unlock()
	}

	a.logger.Debug().Str("lease", lease.ID).Str("owner", owner).Str("mode", string(mode)).Bool("bound", bound).Msg("lease acquired")
	return lease, nil
}

// Reset waits for the device and returns it to idle.
func (a *Arbiter) Reset(ctx context.Context) error {
	lease, err := a.Acquire(ctx, "reset", domain.AudioModeIdle)
	if err != nil {
		return err
	}
	lease.Release()
	return nil
}

// Mode returns the tracked physical mode.
func (a *Arbiter) Mode() domain.AudioMode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// Holder returns the owner of the outstanding lease, or "" when free.
func (a *Arbiter) Holder() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.holder == nil {
		return ""
	}
	return a.holder.Owner
}

func (a *Arbiter) configure(ctx context.Context, mode domain.AudioMode) error {
	a.mu.Lock()
	current := a.mode
	a.mu.Unlock()
	if current == mode {
		return nil
	}

	attempt := 0
	backoff := retry.WithMaxRetries(uint64(a.cfg.Retries-1), retry.NewConstant(a.cfg.Backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := a.device.SetMode(ctx, mode); err != nil {
			a.logger.Warn().Err(err).Int("attempt", attempt).Str("mode", string(mode)).Msg("audio session switch failed")
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		a.setMode(domain.AudioModeIdle)
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return fmt.Errorf("%w: configuring %s: %v", domain.ErrCancelled, mode, err)
		}
		return fmt.Errorf("%w: switch to %s after %d attempts: %v", domain.ErrAudioConfigurationFailed, mode, attempt, err)
	}
	a.setMode(mode)

	settle := time.Duration(0)
	switch mode {
	case domain.AudioModeRecording:
		settle = a.cfg.RecordingSettle
	case domain.AudioModePlayback:
		settle = a.cfg.PlaybackSettle
	}
	if settle <= 0 {
		return nil
	}
	timer := time.NewTimer(settle)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: settling %s: %v", domain.ErrCancelled, mode, ctx.Err())
	}
}

func (a *Arbiter) setMode(mode domain.AudioMode) {
	a.mu.Lock()
	a.mode = mode
	a.mu.Unlock()
}

// Release returns the device. Calling it more than once is a no-op.
func (l *Lease) Release() {
	if l == nil {
		return
	}
	l.once.Do(func() {
		a := l.arbiter
		a.mu.Lock()
		stop := l.stop
		a.mu.Unlock()
		if stop != nil {
			stop()
		}
		a.mu.Lock()
		if a.holder == l {
			a.holder = nil
		}
		a.mu.Unlock()
		<-a.slot
		close(l.released)
		a.logger.Debug().Str("lease", l.ID).Str("owner", l.Owner).Msg("lease released")
	})
}

// Released is closed once the lease has been returned.
func (l *Lease) Released() <-chan struct{} {
	return l.released
}
