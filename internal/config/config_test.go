package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("NOMVOICE_CONFIG", "")
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Path != filepath.Join(home, ".config", "nomvoice", "config.yaml") {
		t.Fatalf("unexpected config path: %q", cfg.Path)
	}
	if cfg.Cache.TTL != 30*time.Minute || cfg.Cache.Capacity != 50 || cfg.Cache.EvictBatch != 10 {
		t.Fatalf("unexpected cache defaults: %+v", cfg.Cache)
	}
	if cfg.Arbiter.Retries != 3 || cfg.Arbiter.Backoff != 150*time.Millisecond {
		t.Fatalf("unexpected arbiter defaults: %+v", cfg.Arbiter)
	}
	if cfg.Command.CaptureTimeout != 5*time.Second || cfg.Command.MinTranscript != 2 {
		t.Fatalf("unexpected command defaults: %+v", cfg.Command)
	}
	if cfg.WakeWord.Window != 1500*time.Millisecond || len(cfg.WakeWord.Words) == 0 {
		t.Fatalf("unexpected wake word defaults: %+v", cfg.WakeWord)
	}
	if cfg.Audio.SampleRate != 16000 || cfg.Audio.Channels != 1 || cfg.Audio.RecorderCommand != "ffmpeg" {
		t.Fatalf("unexpected audio defaults: %+v", cfg.Audio)
	}
	if cfg.Cache.Dir != filepath.Join(home, ".cache", "nomvoice", "speech") {
		t.Fatalf("unexpected cache dir: %q", cfg.Cache.Dir)
	}
}

func TestLoadReadsYAMLAndEnvironment(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, "nomvoice.yaml")
	contents := `
recipe: /tmp/pancakes.yaml
cache:
  ttl: 10m
  capacity: 20
wakeword:
  words: [chef]
  phrases: ["hey chef"]
audio:
  hooks:
    playback: ["pactl", "set-default-sink", "speakers"]
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	t.Setenv("HOME", home)
	t.Setenv("OPENAI_API_KEY", " sk-env ")
	t.Setenv("DEEPGRAM_API_KEY", "dg-key")
	t.Setenv("NOMVOICE_COMMAND_AUTO_LISTEN", "true")
	t.Setenv("NOMVOICE_TTS_PROVIDER", "LOCAL")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Recipe != "/tmp/pancakes.yaml" {
		t.Fatalf("unexpected recipe: %q", cfg.Recipe)
	}
	if cfg.Cache.TTL != 10*time.Minute || cfg.Cache.Capacity != 20 {
		t.Fatalf("unexpected cache config: %+v", cfg.Cache)
	}
	if len(cfg.WakeWord.Words) != 1 || cfg.WakeWord.Words[0] != "chef" {
		t.Fatalf("unexpected wake words: %v", cfg.WakeWord.Words)
	}
	if got := cfg.Audio.Hooks["playback"]; len(got) != 3 || got[0] != "pactl" {
		t.Fatalf("unexpected playback hook: %v", got)
	}
	if cfg.OpenAI.APIKey != "sk-env" || cfg.Deepgram.APIKey != "dg-key" {
		t.Fatalf("unexpected provider keys: %q %q", cfg.OpenAI.APIKey, cfg.Deepgram.APIKey)
	}
	if !cfg.Command.AutoListen {
		t.Fatalf("expected auto listen from environment")
	}
	if cfg.TTS.Provider != "local" {
		t.Fatalf("unexpected tts provider: %q", cfg.TTS.Provider)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := filepath.Join(home, "bad.yaml")
	if err := os.WriteFile(path, []byte("cache: [unterminated"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := filepath.Join(home, "config.yaml")
	if err := os.WriteFile(path, []byte("wakeword:\n  words: [nom]\n"), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var seen []Config
	if err := Watch(ctx, path, func(cfg Config, err error) {
		if err != nil {
			return
		}
		mu.Lock()
		seen = append(seen, cfg)
		mu.Unlock()
	}); err != nil {
		t.Fatalf("watch failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("wakeword:\n  words: [chef]\n"), 0o600); err != nil {
		t.Fatalf("rewrite failed: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		var last Config
		if len(seen) > 0 {
			last = seen[len(seen)-1]
		}
		mu.Unlock()
		if len(last.WakeWord.Words) == 1 && last.WakeWord.Words[0] == "chef" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("config change was not observed")
}
