package speechcache

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

const manifestName = "index.msgpack.zst"

func (c *Cache) manifestPath() string {
	return filepath.Join(c.cfg.Dir, manifestName)
}

// load restores the index and reconciles it with the directory contents.
func (c *Cache) load() {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := readManifest(c.manifestPath())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		c.logger.Warn().Err(err).Msg("speech cache index unreadable, starting empty")
	}

	now := c.now()
	for _, entry := range entries {
		if now.Sub(entry.CreatedAt) > c.cfg.TTL {
			if err := os.Remove(entry.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
				c.logger.Warn().Err(err).Str("path", entry.Path).Msg("failed to delete stale audio")
			}
			continue
		}
		if _, err := os.Stat(entry.Path); err != nil {
			continue
		}
		c.entries[entry.Key] = entry
	}

	files, err := os.ReadDir(c.cfg.Dir)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to scan speech cache directory")
		return
	}
	suffix := "." + c.cfg.Extension
	for _, file := range files {
		name := file.Name()
		if file.IsDir() || name == manifestName {
			continue
		}
		orphan := strings.HasPrefix(name, ".tmp-")
		if strings.HasSuffix(name, suffix) {
			_, indexed := c.entries[strings.TrimSuffix(name, suffix)]
			orphan = !indexed
		}
		if !orphan {
			continue
		}
		if err := os.Remove(filepath.Join(c.cfg.Dir, name)); err != nil {
			c.logger.Warn().Err(err).Str("file", name).Msg("failed to delete orphaned audio")
		}
	}

	for len(c.entries) > c.cfg.Capacity {
		c.evictLocked()
	}
	c.saveLocked()
	c.logger.Debug().Int("entries", len(c.entries)).Msg("speech cache loaded")
}

func (c *Cache) saveLocked() {
	entries := c.sortedLocked()
	if err := writeManifest(c.manifestPath(), entries); err != nil {
		c.logger.Warn().Err(err).Msg("failed to persist speech cache index")
	}
}

func readManifest(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer zr.Close()

	var entries []Entry
	if err := msgpack.NewDecoder(zr).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode index: %w", err)
	}
	return entries, nil
}

func writeManifest(path string, entries []Entry) error {
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}
	if err := msgpack.NewEncoder(zw).Encode(entries); err != nil {
		zw.Close()
		return fmt.Errorf("failed to encode index: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to close zstd writer: %w", err)
	}
	return writeFileAtomic(path, buf.Bytes())
}
