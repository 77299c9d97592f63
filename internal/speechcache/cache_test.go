package speechcache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func openTestCache(t *testing.T) (*Cache, *fakeClock) {
	t.Helper()
	cache, err := Open(DefaultConfig(t.TempDir()), zerolog.Nop())
	require.NoError(t, err)
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	cache.now = clock.Now
	return cache, clock
}

func TestKeyIsExactTextHash(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Key("Next step"), Key("Next step"))
	assert.NotEqual(t, Key("Next step"), Key("next step"))
	assert.Len(t, Key(""), 64)
}

func TestStoreThenLookupReturnsSameBytes(t *testing.T) {
	t.Parallel()

	cache, _ := openTestCache(t)
	path, err := cache.Store("Preheat the oven.", []byte("audio-1"))
	require.NoError(t, err)

	got, ok := cache.Lookup("Preheat the oven.")
	require.True(t, ok)
	assert.Equal(t, path, got)

	onDisk, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, []byte("audio-1"), onDisk)

	audio, ok := cache.LookupAudio("Preheat the oven.")
	require.True(t, ok)
	assert.Equal(t, []byte("audio-1"), audio)
}

func TestTTLBoundary(t *testing.T) {
	t.Parallel()

	cache, clock := openTestCache(t)
	path, err := cache.Store("Got it.", []byte("a"))
	require.NoError(t, err)

	clock.Advance(30*time.Minute - time.Second)
	assert.True(t, cache.IsFresh("Got it."))
	_, ok := cache.Lookup("Got it.")
	assert.True(t, ok)

	clock.Advance(2 * time.Second)
	_, ok = cache.Lookup("Got it.")
	assert.False(t, ok)

	_, err = os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist), "stale file should be deleted eagerly")
	assert.Zero(t, cache.Len())
}

func TestBatchEvictionRemovesTenOldest(t *testing.T) {
	t.Parallel()

	cache, clock := openTestCache(t)
	texts := make([]string, 51)
	for i := range texts {
		texts[i] = fmt.Sprintf("utterance %02d", i)
		_, err := cache.Store(texts[i], []byte{byte(i)})
		require.NoError(t, err)
		clock.Advance(time.Millisecond)
	}

	assert.Equal(t, 41, cache.Len())
	for i, text := range texts {
		_, ok := cache.Lookup(text)
		if i < 10 {
			assert.False(t, ok, "entry %d should have been evicted", i)
		} else {
			assert.True(t, ok, "entry %d should be present", i)
		}
	}
}

func TestIndexSurvivesReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cache, err := Open(DefaultConfig(dir), zerolog.Nop())
	require.NoError(t, err)
	_, err = cache.Store("Read the ingredients.", []byte("bytes"))
	require.NoError(t, err)

	orphan := filepath.Join(dir, "deadbeef.mp3")
	require.NoError(t, os.WriteFile(orphan, []byte("x"), 0o600))

	reopened, err := Open(DefaultConfig(dir), zerolog.Nop())
	require.NoError(t, err)
	audio, ok := reopened.LookupAudio("Read the ingredients.")
	require.True(t, ok)
	assert.Equal(t, []byte("bytes"), audio)

	_, err = os.Stat(orphan)
	assert.True(t, errors.Is(err, os.ErrNotExist), "orphaned file should be removed")
}

func TestLookupAudioDropsMissingFile(t *testing.T) {
	t.Parallel()

	cache, _ := openTestCache(t)
	path, err := cache.Store("Okay.", []byte("ok"))
	require.NoError(t, err)
	cache.hot.Purge()
	require.NoError(t, os.Remove(path))

	_, ok := cache.LookupAudio("Okay.")
	assert.False(t, ok)
	assert.Zero(t, cache.Len())
}

func TestClear(t *testing.T) {
	t.Parallel()

	cache, _ := openTestCache(t)
	path, err := cache.Store("One.", []byte("1"))
	require.NoError(t, err)

	cache.Clear()
	assert.Zero(t, cache.Len())
	_, err = os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestPrecacheManyBatchesAndSkips(t *testing.T) {
	t.Parallel()

	cache, _ := openTestCache(t)
	_, err := cache.Store("already", []byte("warm"))
	require.NoError(t, err)

	var calls atomic.Int32
	var running, peak atomic.Int32
	synth := func(_ context.Context, text string) ([]byte, error) {
		calls.Add(1)
		now := running.Add(1)
		for {
			prev := peak.Load()
			if now <= prev || peak.CompareAndSwap(prev, now) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		if text == "broken" {
			return nil, errors.New("remote down")
		}
		return []byte("audio:" + text), nil
	}

	var reports []Progress
	result, err := cache.PrecacheMany(context.Background(),
		[]string{"a", "b", "a", "already", "c", "broken", "d"},
		synth,
		PrecacheOptions{MaxConcurrent: 2, OnProgress: func(p Progress) { reports = append(reports, p) }},
	)
	require.NoError(t, err)

	assert.Equal(t, PrecacheResult{Cached: 4, Failed: 1, Skipped: 1}, result)
	assert.Equal(t, int32(5), calls.Load())
	assert.LessOrEqual(t, peak.Load(), int32(2))

	require.Len(t, reports, 3)
	assert.Equal(t, Progress{Done: 2, Total: 5, Cached: 2}, reports[0])
	assert.Equal(t, Progress{Done: 5, Total: 5, Cached: 4, Failed: 1}, reports[2])

	assert.True(t, cache.IsFresh("d"))
	assert.False(t, cache.IsFresh("broken"))
	assert.False(t, cache.InFlight("a"))
}

func TestPrecacheManySuppressesInFlightDuplicates(t *testing.T) {
	t.Parallel()

	cache, _ := openTestCache(t)
	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32

	synth := func(_ context.Context, text string) ([]byte, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return []byte(text), nil
	}

	firstDone := make(chan PrecacheResult, 1)
	go func() {
		result, _ := cache.PrecacheMany(context.Background(), []string{"shared"}, synth, PrecacheOptions{})
		firstDone <- result
	}()
	<-started

	second, err := cache.PrecacheMany(context.Background(), []string{"shared"}, synth, PrecacheOptions{})
	require.NoError(t, err)
	assert.Equal(t, PrecacheResult{Skipped: 1}, second)

	close(release)
	first := <-firstDone
	assert.Equal(t, 1, first.Cached)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPrecacheManyStopsOnCancel(t *testing.T) {
	t.Parallel()

	cache, _ := openTestCache(t)
	ctx, cancel := context.WithCancel(context.Background())
	synth := func(_ context.Context, text string) ([]byte, error) {
		cancel()
		return []byte(text), nil
	}

	result, err := cache.PrecacheMany(ctx, []string{"a", "b", "c"}, synth, PrecacheOptions{MaxConcurrent: 1})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, result.Cached)
	assert.False(t, cache.InFlight("b"))
}
