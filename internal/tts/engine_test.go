package tts

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nomvoice/internal/arbiter"
	"nomvoice/internal/domain"
	"nomvoice/internal/speechcache"
)

type nopDevice struct{}

func (nopDevice) SetMode(context.Context, domain.AudioMode) error { return nil }

type fakeSynth struct {
	mu    sync.Mutex
	calls []string
	err   error
	delay time.Duration
}

func (s *fakeSynth) Synthesize(ctx context.Context, text string, _ float64) ([]byte, error) {
	s.mu.Lock()
	s.calls = append(s.calls, text)
	err := s.err
	s.mu.Unlock()
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return []byte("audio:" + text), nil
}

func (s *fakeSynth) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// recordingPlayer logs start/end events; clips play until released or cancelled.
type recordingPlayer struct {
	mu       sync.Mutex
	events   []string
	playing  atomic.Int32
	overlaps atomic.Int32
	hold     time.Duration
	holdFor  map[string]time.Duration
	err      error
}

func (p *recordingPlayer) Play(ctx context.Context, audio []byte) error {
	if p.playing.Add(1) > 1 {
		p.overlaps.Add(1)
	}
	defer p.playing.Add(-1)

	p.log("start " + string(audio))
	if p.err != nil {
		p.log("fail " + string(audio))
		return p.err
	}
	hold := p.hold
	if d, ok := p.holdFor[string(audio)]; ok {
		hold = d
	}
	select {
	case <-time.After(hold):
		p.log("end " + string(audio))
		return nil
	case <-ctx.Done():
		p.log("cut " + string(audio))
		return ctx.Err()
	}
}

func (p *recordingPlayer) log(event string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPlayer) snapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

type harness struct {
	engine  *Engine
	arbiter *arbiter.Arbiter
	cache   *speechcache.Cache
	remote  *fakeSynth
	local   *fakeSynth
	player  *recordingPlayer
}

func newHarness(t *testing.T, hold time.Duration) *harness {
	t.Helper()
	cache, err := speechcache.Open(speechcache.DefaultConfig(t.TempDir()), zerolog.Nop())
	require.NoError(t, err)
	arb := arbiter.New(nopDevice{}, arbiter.Config{Retries: 1, Backoff: time.Millisecond}, zerolog.Nop())
	h := &harness{
		arbiter: arb,
		cache:   cache,
		remote:  &fakeSynth{},
		local:   &fakeSynth{},
		player:  &recordingPlayer{hold: hold},
	}
	h.engine = NewEngine(arb, cache, h.remote, h.local, h.player, Config{}, zerolog.Nop())
	t.Cleanup(func() { _ = h.engine.Close() })
	return h
}

func TestSpeakMissSynthesizesStoresAndPlays(t *testing.T) {
	t.Parallel()

	h := newHarness(t, time.Millisecond)
	var done atomic.Bool
	err := h.engine.Speak(context.Background(), "Step two.", SpeakOptions{OnDone: func() { done.Store(true) }})
	require.NoError(t, err)
	assert.True(t, done.Load())
	assert.Equal(t, []string{"start audio:Step two.", "end audio:Step two."}, h.player.snapshot())

	require.Eventually(t, func() bool { return h.cache.IsFresh("Step two.") }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.engine.Speak(context.Background(), "Step two.", SpeakOptions{}))
	assert.Equal(t, 1, h.remote.callCount(), "second speak should hit the cache")
	assert.Empty(t, h.arbiter.Holder())
}

func TestSpeakSkipCacheDoesNotStore(t *testing.T) {
	t.Parallel()

	h := newHarness(t, time.Millisecond)
	require.NoError(t, h.engine.Speak(context.Background(), "Yes?", SpeakOptions{SkipCache: true}))
	require.NoError(t, h.engine.Close())
	assert.False(t, h.cache.IsFresh("Yes?"))
}

func TestSpeakFallsBackToLocalSynth(t *testing.T) {
	t.Parallel()

	h := newHarness(t, time.Millisecond)
	h.remote.err = errors.New("quota exceeded")

	require.NoError(t, h.engine.Speak(context.Background(), "Hello.", SpeakOptions{}))
	assert.Equal(t, 1, h.local.callCount())
	require.NoError(t, h.engine.Close())
	assert.False(t, h.cache.IsFresh("Hello."), "fallback audio is not cached")
}

func TestSpeakFailsWhenBothSynthsFail(t *testing.T) {
	t.Parallel()

	h := newHarness(t, time.Millisecond)
	h.remote.err = errors.New("down")
	h.local.err = errors.New("no voice")

	var reported error
	err := h.engine.Speak(context.Background(), "Hello.", SpeakOptions{OnError: func(err error) { reported = err }})
	require.ErrorIs(t, err, domain.ErrSynthesisFailed)
	assert.ErrorIs(t, reported, domain.ErrSynthesisFailed)
	assert.Empty(t, h.arbiter.Holder())
	assert.False(t, h.engine.Speaking())
}

func TestPlaybackFailureReportsAndReleases(t *testing.T) {
	t.Parallel()

	h := newHarness(t, time.Millisecond)
	h.player.err = errors.New("sink gone")

	var reported atomic.Bool
	err := h.engine.Speak(context.Background(), "Hello.", SpeakOptions{OnError: func(error) { reported.Store(true) }})
	require.ErrorIs(t, err, domain.ErrPlaybackFailed)
	assert.True(t, reported.Load())
	assert.Empty(t, h.arbiter.Holder())
}

func TestLatestSpeakWinsWithoutOverlap(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 5*time.Millisecond)
	h.player.holdFor = map[string]time.Duration{"audio:A": time.Minute}

	var doneA, doneB atomic.Int32
	errA := make(chan error, 1)
	go func() {
		errA <- h.engine.Speak(context.Background(), "A", SpeakOptions{OnDone: func() { doneA.Add(1) }})
	}()
	require.Eventually(t, func() bool { return len(h.player.snapshot()) == 1 }, time.Second, time.Millisecond)

	errB := h.engine.Speak(context.Background(), "B", SpeakOptions{OnDone: func() { doneB.Add(1) }})
	require.NoError(t, errB)
	require.ErrorIs(t, <-errA, domain.ErrCancelled)

	assert.Zero(t, doneA.Load())
	assert.Equal(t, int32(1), doneB.Load())
	assert.Zero(t, h.player.overlaps.Load())
	assert.Equal(t, []string{"start audio:A", "cut audio:A", "start audio:B", "end audio:B"}, h.player.snapshot())
}

func TestStopResolvesAfterLeaseRelease(t *testing.T) {
	t.Parallel()

	h := newHarness(t, time.Minute)
	errCh := make(chan error, 1)
	go func() { errCh <- h.engine.Speak(context.Background(), "Long step.", SpeakOptions{}) }()
	require.Eventually(t, h.engine.Speaking, time.Second, time.Millisecond)
	assert.Equal(t, "tts", h.arbiter.Holder())

	require.NoError(t, h.engine.Stop(context.Background()))
	assert.Empty(t, h.arbiter.Holder())
	assert.False(t, h.engine.Speaking())
	require.ErrorIs(t, <-errCh, domain.ErrCancelled)

	require.NoError(t, h.engine.Stop(context.Background()), "stop is idempotent")
}

func TestObserverTracksLease(t *testing.T) {
	t.Parallel()

	h := newHarness(t, time.Millisecond)
	var mu sync.Mutex
	var seen []bool
	h.engine.SetObserver(func(speaking bool) {
		mu.Lock()
		seen = append(seen, speaking)
		mu.Unlock()
	})

	require.NoError(t, h.engine.Speak(context.Background(), "Okay.", SpeakOptions{}))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, seen)
}

func TestPrefetchAndPrecache(t *testing.T) {
	t.Parallel()

	h := newHarness(t, time.Millisecond)
	require.NoError(t, h.engine.Prefetch(context.Background(), "Let me check."))
	assert.True(t, h.engine.IsCached("Let me check."))

	result, err := h.engine.Precache(context.Background(), []string{"Let me check.", "Got it.", "One moment."}, nil)
	require.NoError(t, err)
	assert.Equal(t, speechcache.PrecacheResult{Cached: 2, Skipped: 1}, result)
	assert.Equal(t, 3, h.remote.callCount())
}

// drainingPlayer keeps the device busy for drain after cancellation, like a
// subprocess player waiting for its child to exit.
type drainingPlayer struct {
	drain    time.Duration
	started  chan struct{}
	returned atomic.Bool
}

func (p *drainingPlayer) Play(ctx context.Context, _ []byte) error {
	close(p.started)
	<-ctx.Done()
	time.Sleep(p.drain)
	p.returned.Store(true)
	return ctx.Err()
}

func TestLeaseHeldUntilPlayerReturns(t *testing.T) {
	t.Parallel()

	arb := arbiter.New(nopDevice{}, arbiter.Config{Retries: 1, Backoff: time.Millisecond}, zerolog.Nop())
	player := &drainingPlayer{drain: 100 * time.Millisecond, started: make(chan struct{})}
	engine := NewEngine(arb, nil, &fakeSynth{}, nil, player, Config{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- engine.Speak(ctx, "Stir well.", SpeakOptions{}) }()
	<-player.started

	type grant struct {
		playerReturned bool
		speaking       bool
	}
	granted := make(chan grant, 1)
	go func() {
		lease, err := arb.Acquire(context.Background(), "wakeword", domain.AudioModeRecording)
		if err != nil {
			close(granted)
			return
		}
		granted <- grant{playerReturned: player.returned.Load(), speaking: engine.Speaking()}
		lease.Release()
	}()

	cancel()
	got, ok := <-granted
	require.True(t, ok, "recording lease was never granted")
	assert.True(t, got.playerReturned, "recording granted while playback was still draining")
	assert.False(t, got.speaking, "recording granted while the engine reported speaking")
	require.ErrorIs(t, <-errCh, domain.ErrCancelled)
	require.NoError(t, engine.Close())
}

func TestSpeakWithoutCache(t *testing.T) {
	t.Parallel()

	arb := arbiter.New(nopDevice{}, arbiter.Config{Retries: 1, Backoff: time.Millisecond}, zerolog.Nop())
	remote := &fakeSynth{}
	player := &recordingPlayer{hold: time.Millisecond}
	engine := NewEngine(arb, nil, remote, nil, player, Config{}, zerolog.Nop())

	require.NoError(t, engine.Speak(context.Background(), "Step one.", SpeakOptions{}))
	require.NoError(t, engine.Speak(context.Background(), "Step one.", SpeakOptions{}))
	require.NoError(t, engine.Close())

	assert.Equal(t, 2, remote.callCount(), "without a cache every utterance is synthesized")
	assert.False(t, engine.IsCached("Step one."))
	assert.NoError(t, engine.Prefetch(context.Background(), "Step two."))
	assert.Empty(t, arb.Holder())
}
