// Package tts turns text into played audio. At most one utterance plays at a
// time; a newer Speak supersedes the one in flight.
package tts

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"nomvoice/internal/arbiter"
	"nomvoice/internal/domain"
	"nomvoice/internal/ports"
	"nomvoice/internal/speechcache"
)

const leaseOwner = "tts"

// Config controls synthesis defaults.
type Config struct {
	Rate          float64
	MaxConcurrent int
}

// SpeakOptions tune a single utterance. Callbacks run on the speaking goroutine.
type SpeakOptions struct {
	Rate      float64
	SkipCache bool
	OnStart   func()
	OnDone    func()
	OnError   func(error)
}

// Engine plays speech through the arbiter's playback lease.
type Engine struct {
	arbiter *arbiter.Arbiter
	cache   *speechcache.Cache
	remote  ports.Synthesizer
	local   ports.Synthesizer
	player  ports.Player
	cfg     Config
	logger  zerolog.Logger

	flight singleflight.Group
	stores sync.WaitGroup

	turn chan struct{}

	mu       sync.Mutex
	current  *utterance
	speaking bool
	observer func(bool)
}

type utterance struct {
	text   string
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine builds an engine. cache, remote and local may each be nil.
func NewEngine(
	arb *arbiter.Arbiter,
	cache *speechcache.Cache,
	remote ports.Synthesizer,
	local ports.Synthesizer,
	player ports.Player,
	cfg Config,
	logger zerolog.Logger,
) *Engine {
	if cfg.Rate <= 0 {
		cfg.Rate = 1.0
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	return &Engine{
		arbiter: arb,
		cache:   cache,
		remote:  remote,
		local:   local,
		player:  player,
		cfg:     cfg,
		logger:  logger.With().Str("component", "tts").Logger(),
		turn:    make(chan struct{}, 1),
	}
}

// SetObserver registers fn to be told when a playback lease is held.
func (e *Engine) SetObserver(fn func(speaking bool)) {
	e.mu.Lock()
	e.observer = fn
	e.mu.Unlock()
}

// Speaking reports whether an utterance currently holds the playback lease.
func (e *Engine) Speaking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speaking
}

// Speak plays text and blocks until playback finished, failed or was
// superseded. A superseded call returns domain.ErrCancelled without OnDone.
func (e *Engine) Speak(ctx context.Context, text string, opts SpeakOptions) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	uctx, cancel := context.WithCancel(ctx)
	u := &utterance{text: text, cancel: cancel, done: make(chan struct{})}

	e.mu.Lock()
	prev := e.current
	e.current = u
	e.mu.Unlock()
	if prev != nil {
		prev.cancel()
	}

	defer close(u.done)
	defer cancel()
	defer e.clearCurrent(u)

	select {
	case e.turn <- struct{}{}:
	case <-uctx.Done():
		return cancelledErr(uctx)
	}
	defer func() { <-e.turn }()

	if uctx.Err() != nil {
		return cancelledErr(uctx)
	}

	// The player may still be draining after uctx ends; the lease stays held
	// until Play has returned.
	lease, err := e.arbiter.AcquireHeld(uctx, leaseOwner, domain.AudioModePlayback)
	if err != nil {
		if uctx.Err() != nil {
			return cancelledErr(uctx)
		}
		return e.fail(opts, err)
	}
	e.setSpeaking(true)
	defer func() {
		e.setSpeaking(false)
		lease.Release()
	}()

	audio, err := e.resolve(uctx, text, opts)
	if err != nil {
		if uctx.Err() != nil {
			return cancelledErr(uctx)
		}
		return e.fail(opts, err)
	}

	if opts.OnStart != nil {
		opts.OnStart()
	}
	if err := e.player.Play(uctx, audio); err != nil {
		if uctx.Err() != nil || errors.Is(err, domain.ErrCancelled) {
			return cancelledErr(uctx)
		}
		if !errors.Is(err, domain.ErrPlaybackFailed) {
			err = fmt.Errorf("%w: %v", domain.ErrPlaybackFailed, err)
		}
		return e.fail(opts, err)
	}

	if opts.OnDone != nil {
		opts.OnDone()
	}
	return nil
}

// Stop interrupts playback and returns once the playback lease is released.
// It is safe to call when nothing is playing.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	u := e.current
	e.current = nil
	e.mu.Unlock()

	if u != nil {
		u.cancel()
		select {
		case <-u.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// Superseded utterances may still be tearing down.
	select {
	case e.turn <- struct{}{}:
		<-e.turn
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsCached reports whether text would play without synthesis.
func (e *Engine) IsCached(text string) bool {
	return e.cache != nil && e.cache.IsFresh(strings.TrimSpace(text))
}

// Prefetch synthesizes and stores text without playing it.
func (e *Engine) Prefetch(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" || e.cache == nil || e.cache.IsFresh(text) {
		return nil
	}
	audio, err := e.synthesizeRemote(ctx, text, e.cfg.Rate)
	if err != nil {
		return err
	}
	if _, err := e.cache.Store(text, audio); err != nil {
		e.logger.Warn().Err(err).Msg("prefetch store failed")
	}
	return nil
}

// Precache warms the cache for texts through the remote synthesizer.
func (e *Engine) Precache(ctx context.Context, texts []string, onProgress func(speechcache.Progress)) (speechcache.PrecacheResult, error) {
	if e.cache == nil || e.remote == nil {
		return speechcache.PrecacheResult{}, errors.New("precache requires a cache and a remote synthesizer")
	}
	return e.cache.PrecacheMany(ctx, texts, func(ctx context.Context, text string) ([]byte, error) {
		return e.synthesizeRemote(ctx, text, e.cfg.Rate)
	}, speechcache.PrecacheOptions{MaxConcurrent: e.cfg.MaxConcurrent, OnProgress: onProgress})
}

// Close stops playback and waits for pending cache writes.
func (e *Engine) Close() error {
	err := e.Stop(context.Background())
	e.stores.Wait()
	return err
}

func (e *Engine) resolve(ctx context.Context, text string, opts SpeakOptions) ([]byte, error) {
	rate := opts.Rate
	if rate <= 0 {
		rate = e.cfg.Rate
	}

	if !opts.SkipCache && e.cache != nil {
		if audio, ok := e.cache.LookupAudio(text); ok {
			e.logger.Debug().Str("key", speechcache.Key(text)).Msg("cache hit")
			return audio, nil
		}
	}

	if e.remote != nil {
		audio, err := e.synthesizeRemote(ctx, text, rate)
		if err == nil {
			if !opts.SkipCache && e.cache != nil {
				e.storeAsync(text, audio)
			}
			return audio, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		e.logger.Warn().Err(err).Msg("remote synthesis failed, using on-device voice")
	}

	if e.local != nil {
		audio, err := e.local.Synthesize(ctx, text, rate)
		if err == nil {
			return audio, nil
		}
		e.logger.Error().Err(err).Msg("on-device synthesis failed")
	}
	return nil, fmt.Errorf("%w: no synthesizer produced audio", domain.ErrSynthesisFailed)
}

func (e *Engine) synthesizeRemote(ctx context.Context, text string, rate float64) ([]byte, error) {
	if e.remote == nil {
		return nil, fmt.Errorf("%w: remote synthesizer not configured", domain.ErrSynthesisFailed)
	}
	key := speechcache.Key(text) + "@" + strconv.FormatFloat(rate, 'f', 2, 64)
	v, err, _ := e.flight.Do(key, func() (any, error) {
		return e.remote.Synthesize(ctx, text, rate)
	})
	if err != nil {
		if !errors.Is(err, domain.ErrSynthesisFailed) {
			err = fmt.Errorf("%w: %v", domain.ErrSynthesisFailed, err)
		}
		return nil, err
	}
	return v.([]byte), nil
}

func (e *Engine) storeAsync(text string, audio []byte) {
	e.stores.Add(1)
	go func() {
		defer e.stores.Done()
		if _, err := e.cache.Store(text, audio); err != nil {
			e.logger.Warn().Err(err).Msg("cache write failed")
		}
	}()
}

func (e *Engine) fail(opts SpeakOptions, err error) error {
	e.logger.Error().Err(err).Msg("speak failed")
	if opts.OnError != nil {
		opts.OnError(err)
	}
	return err
}

func (e *Engine) setSpeaking(speaking bool) {
	e.mu.Lock()
	e.speaking = speaking
	observer := e.observer
	e.mu.Unlock()
	if observer != nil {
		observer(speaking)
	}
}

func (e *Engine) clearCurrent(u *utterance) {
	e.mu.Lock()
	if e.current == u {
		e.current = nil
	}
	e.mu.Unlock()
}

func cancelledErr(ctx context.Context) error {
	if cause := context.Cause(ctx); cause != nil {
		return fmt.Errorf("%w: %v", domain.ErrCancelled, cause)
	}
	return domain.ErrCancelled
}
