package speechcache

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// SynthesizeFunc produces audio for one utterance.
type SynthesizeFunc func(ctx context.Context, text string) ([]byte, error)

// Progress is reported after every batch and is cumulative.
type Progress struct {
	Done   int
	Total  int
	Cached int
	Failed int
}

type PrecacheOptions struct {
	MaxConcurrent int
	OnProgress    func(Progress)
}

type PrecacheResult struct {
	Cached  int
	Failed  int
	Skipped int
}

// PrecacheMany synthesizes and stores every text that is neither fresh nor
// already being precached, in batches of MaxConcurrent.
func (c *Cache) PrecacheMany(ctx context.Context, texts []string, synth SynthesizeFunc, opts PrecacheOptions) (PrecacheResult, error) {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 3
	}

	var result PrecacheResult
	pending := c.claim(texts, &result)
	defer c.unclaim(pending)

	progress := Progress{Total: len(pending)}
	var mu sync.Mutex

	for start := 0; start < len(pending); start += opts.MaxConcurrent {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		end := min(start+opts.MaxConcurrent, len(pending))

		var g errgroup.Group
		for _, text := range pending[start:end] {
			g.Go(func() error {
				ok := c.precacheOne(ctx, text, synth)
				mu.Lock()
				defer mu.Unlock()
				if ok {
					result.Cached++
				} else {
					result.Failed++
				}
				return nil
			})
		}
		_ = g.Wait()

		progress.Done = end
		progress.Cached = result.Cached
		progress.Failed = result.Failed
		if opts.OnProgress != nil {
			opts.OnProgress(progress)
		}
	}

	c.logger.Debug().
		Int("cached", result.Cached).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Msg("precache finished")
	return result, nil
}

func (c *Cache) precacheOne(ctx context.Context, text string, synth SynthesizeFunc) bool {
	audio, err := synth(ctx, text)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", Key(text)).Msg("precache synthesis failed")
		return false
	}
	if _, err := c.Store(text, audio); err != nil {
		c.logger.Warn().Err(err).Str("key", Key(text)).Msg("precache store failed")
		return false
	}
	return true
}

// claim marks the texts that need synthesis as in flight and returns them
// deduplicated in input order.
func (c *Cache) claim(texts []string, result *PrecacheResult) []string {
	seen := make(map[string]struct{}, len(texts))
	pending := make([]string, 0, len(texts))

	for _, text := range texts {
		if text == "" {
			continue
		}
		key := Key(text)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		if _, ok := c.fresh(key); ok {
			result.Skipped++
			continue
		}

		c.mu.Lock()
		_, busy := c.inflight[key]
		if !busy {
			c.inflight[key] = struct{}{}
		}
		c.mu.Unlock()
		if busy {
			result.Skipped++
			continue
		}
		pending = append(pending, text)
	}
	return pending
}

func (c *Cache) unclaim(texts []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, text := range texts {
		delete(c.inflight, Key(text))
	}
}

// InFlight reports whether text is currently being precached.
func (c *Cache) InFlight(text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflight[Key(text)]
	return ok
}
