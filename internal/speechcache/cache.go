// Package speechcache stores synthesized speech on disk, keyed by a hash of
// the exact utterance text, bounded by age and entry count.
package speechcache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
)

// Config bounds the cache.
type Config struct {
	Dir           string
	TTL           time.Duration
	Capacity      int
	EvictBatch    int
	Extension     string
	MemoryEntries int
}

func DefaultConfig(dir string) Config {
	return Config{
		Dir:           dir,
		TTL:           30 * time.Minute,
		Capacity:      50,
		EvictBatch:    10,
		Extension:     "mp3",
		MemoryEntries: 16,
	}
}

// Entry is one cached utterance.
type Entry struct {
	Key       string    `msgpack:"key"`
	Path      string    `msgpack:"path"`
	CreatedAt time.Time `msgpack:"created_at"`
	Size      int64     `msgpack:"size"`
}

// Cache is safe for concurrent use. It is the only writer of its directory.
type Cache struct {
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time

	mu       sync.Mutex
	entries  map[string]Entry
	inflight map[string]struct{}
	hot      *expirable.LRU[string, []byte]
}

// Open loads the persisted index from cfg.Dir, dropping stale and orphaned
// entries.
func Open(cfg Config, logger zerolog.Logger) (*Cache, error) {
	defaults := DefaultConfig(cfg.Dir)
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, errors.New("speech cache directory is not configured")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaults.TTL
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = defaults.Capacity
	}
	if cfg.EvictBatch <= 0 {
		cfg.EvictBatch = defaults.EvictBatch
	}
	if cfg.Extension == "" {
		cfg.Extension = defaults.Extension
	}
	cfg.Extension = strings.TrimPrefix(cfg.Extension, ".")
	if cfg.MemoryEntries <= 0 {
		cfg.MemoryEntries = defaults.MemoryEntries
	}

	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create speech cache directory %q: %w", cfg.Dir, err)
	}

	c := &Cache{
		cfg:      cfg,
		logger:   logger.With().Str("component", "speechcache").Logger(),
		now:      time.Now,
		entries:  make(map[string]Entry),
		inflight: make(map[string]struct{}),
		hot:      expirable.NewLRU[string, []byte](cfg.MemoryEntries, nil, cfg.TTL),
	}
	c.load()
	return c, nil
}

// Key derives the content hash for text. No normalization is applied.
func Key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Lookup returns the file path of a fresh entry. Stale entries are deleted.
func (c *Cache) Lookup(text string) (string, bool) {
	entry, ok := c.fresh(Key(text))
	if !ok {
		return "", false
	}
	return entry.Path, true
}

// LookupAudio returns the cached bytes of a fresh entry.
func (c *Cache) LookupAudio(text string) ([]byte, bool) {
	key := Key(text)
	entry, ok := c.fresh(key)
	if !ok {
		return nil, false
	}
	if audio, ok := c.hot.Get(key); ok {
		return audio, true
	}

	audio, err := os.ReadFile(entry.Path)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cached audio unreadable, dropping entry")
		c.mu.Lock()
		c.removeLocked(key)
		c.saveLocked()
		c.mu.Unlock()
		return nil, false
	}
	c.hot.Add(key, audio)
	return audio, true
}

// IsFresh reports whether text has an entry younger than the TTL.
func (c *Cache) IsFresh(text string) bool {
	_, ok := c.fresh(Key(text))
	return ok
}

// Store writes audio for text and returns its path. Exceeding capacity
// evicts the oldest entries in one batch.
func (c *Cache) Store(text string, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("refusing to cache empty audio")
	}
	key := Key(text)
	path := filepath.Join(c.cfg.Dir, key+"."+c.cfg.Extension)
	if err := writeFileAtomic(path, audio); err != nil {
		return "", fmt.Errorf("failed to write cached audio: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = Entry{Key: key, Path: path, CreatedAt: c.now(), Size: int64(len(audio))}
	c.hot.Add(key, audio)
	if len(c.entries) > c.cfg.Capacity {
		c.evictLocked()
	}
	c.saveLocked()
	return path, nil
}

// Len returns the number of indexed entries, fresh or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Entries returns the index ordered oldest first.
func (c *Cache) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sortedLocked()
}

// Clear deletes every entry and the persisted index.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		c.removeLocked(key)
	}
	c.hot.Purge()
	c.saveLocked()
}

func (c *Cache) fresh(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	if c.now().Sub(entry.CreatedAt) > c.cfg.TTL {
		c.logger.Debug().Str("key", key).Msg("evicting stale entry")
		c.removeLocked(key)
		c.saveLocked()
		return Entry{}, false
	}
	return entry, true
}

func (c *Cache) evictLocked() {
	ordered := c.sortedLocked()
	n := min(c.cfg.EvictBatch, len(ordered))
	for _, entry := range ordered[:n] {
		c.removeLocked(entry.Key)
	}
	c.logger.Debug().Int("evicted", n).Int("remaining", len(c.entries)).Msg("speech cache over capacity")
}

func (c *Cache) sortedLocked() []Entry {
	ordered := make([]Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		ordered = append(ordered, entry)
	}
	slices.SortStableFunc(ordered, func(a, b Entry) int {
		if cmp := a.CreatedAt.Compare(b.CreatedAt); cmp != 0 {
			return cmp
		}
		return strings.Compare(a.Key, b.Key)
	})
	return ordered
}

func (c *Cache) removeLocked(key string) {
	entry, ok := c.entries[key]
	if !ok {
		return
	}
	delete(c.entries, key)
	c.hot.Remove(key)
	if err := os.Remove(entry.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.logger.Warn().Err(err).Str("path", entry.Path).Msg("failed to delete cached audio")
	}
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
