package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "NOMVOICE"

// Config stores runtime configuration.
type Config struct {
	Path string `mapstructure:"-"`

	Recipe   string         `mapstructure:"recipe"`
	Audio    AudioConfig    `mapstructure:"audio"`
	Arbiter  ArbiterConfig  `mapstructure:"arbiter"`
	Cache    CacheConfig    `mapstructure:"cache"`
	TTS      TTSConfig      `mapstructure:"tts"`
	STT      STTConfig      `mapstructure:"stt"`
	Command  CommandConfig  `mapstructure:"command"`
	WakeWord WakeWordConfig `mapstructure:"wakeword"`
	Runtime  RuntimeConfig  `mapstructure:"runtime"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Deepgram DeepgramConfig `mapstructure:"deepgram"`
	Local    LocalConfig    `mapstructure:"local"`
	Rules    RulesConfig    `mapstructure:"rules"`
	Log      LogConfig      `mapstructure:"log"`
}

type AudioConfig struct {
	RecorderCommand string              `mapstructure:"recorder_command"`
	PlayerCommand   string              `mapstructure:"player_command"`
	InputFormat     string              `mapstructure:"input_format"`
	InputDevice     string              `mapstructure:"input_device"`
	SampleRate      int                 `mapstructure:"sample_rate"`
	Channels        int                 `mapstructure:"channels"`
	ChunkSize       int                 `mapstructure:"chunk_size"`
	Hooks           map[string][]string `mapstructure:"hooks"`
}

type ArbiterConfig struct {
	Retries         int           `mapstructure:"retries"`
	Backoff         time.Duration `mapstructure:"backoff"`
	RecordingSettle time.Duration `mapstructure:"recording_settle"`
	PlaybackSettle  time.Duration `mapstructure:"playback_settle"`
}

type CacheConfig struct {
	Dir           string        `mapstructure:"dir"`
	TTL           time.Duration `mapstructure:"ttl"`
	Capacity      int           `mapstructure:"capacity"`
	EvictBatch    int           `mapstructure:"evict_batch"`
	MemoryEntries int           `mapstructure:"memory_entries"`
	Extension     string        `mapstructure:"extension"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
}

type TTSConfig struct {
	Provider string  `mapstructure:"provider"`
	Rate     float64 `mapstructure:"rate"`
}

type STTConfig struct {
	Provider string `mapstructure:"provider"`
}

type CommandConfig struct {
	CaptureTimeout  time.Duration `mapstructure:"capture_timeout"`
	MinTranscript   int           `mapstructure:"min_transcript"`
	AutoListen      bool          `mapstructure:"auto_listen"`
	AutoListenDelay time.Duration `mapstructure:"auto_listen_delay"`
}

type WakeWordConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Window          time.Duration `mapstructure:"window"`
	LevelFloor      float64       `mapstructure:"level_floor"`
	QuietPause      time.Duration `mapstructure:"quiet_pause"`
	RejectPause     time.Duration `mapstructure:"reject_pause"`
	IrrelevantPause time.Duration `mapstructure:"irrelevant_pause"`
	FailurePause    time.Duration `mapstructure:"failure_pause"`
	RestartDelay    time.Duration `mapstructure:"restart_delay"`
	Phrases         []string      `mapstructure:"phrases"`
	Words           []string      `mapstructure:"words"`
	Fillers         []string      `mapstructure:"fillers"`
	MediaTerms      []string      `mapstructure:"media_terms"`
	MaxLength       int           `mapstructure:"max_length"`
	DigitRun        int           `mapstructure:"digit_run"`
}

type RuntimeConfig struct {
	ErrorDisplay time.Duration `mapstructure:"error_display"`
}

type OpenAIConfig struct {
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
	STTModel string `mapstructure:"stt_model"`
	TTSModel string `mapstructure:"tts_model"`
	Voice    string `mapstructure:"voice"`
	Language string `mapstructure:"language"`
}

type DeepgramConfig struct {
	APIKey      string `mapstructure:"api_key"`
	APIBaseURL  string `mapstructure:"api_base"`
	Model       string `mapstructure:"model"`
	Language    string `mapstructure:"language"`
	SmartFormat bool   `mapstructure:"smart_format"`
}

type LocalConfig struct {
	Command string `mapstructure:"command"`
	Voice   string `mapstructure:"voice"`
}

type RulesConfig struct {
	Path           string `mapstructure:"path"`
	IterationLimit int    `mapstructure:"iteration_limit"`
}

type LogConfig struct {
	Dir     string `mapstructure:"dir"`
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

// DefaultPath returns $NOMVOICE_CONFIG or ~/.config/nomvoice/config.yaml.
func DefaultPath() (string, error) {
	if path := strings.TrimSpace(os.Getenv(envPrefix + "_CONFIG")); path != "" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("could not determine home directory")
	}
	return filepath.Join(home, ".config", "nomvoice", "config.yaml"), nil
}

// Load resolves configuration from the YAML file at path (empty means
// DefaultPath), NOMVOICE_* environment variables and defaults. A missing
// file is not an error.
func Load(path string) (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}
	if path == "" {
		if path, err = DefaultPath(); err != nil {
			return Config{}, err
		}
	}

	v := viper.New()
	setDefaults(v, home)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("openai.api_key", envPrefix+"_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("deepgram.api_key", envPrefix+"_DEEPGRAM_API_KEY", "DEEPGRAM_API_KEY")
	_ = v.BindEnv("deepgram.api_base", envPrefix+"_DEEPGRAM_API_BASE", "DEEPGRAM_API_BASE")

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Path = path
	cfg.normalize()
	return cfg, nil
}

func setDefaults(v *viper.Viper, home string) {
	v.SetDefault("recipe", "")

	v.SetDefault("audio.recorder_command", "ffmpeg")
	v.SetDefault("audio.player_command", "ffplay")
	v.SetDefault("audio.input_format", "pulse")
	v.SetDefault("audio.input_device", "default")
	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("audio.channels", 1)
	v.SetDefault("audio.chunk_size", 4096)
	v.SetDefault("audio.hooks", map[string][]string{})

	v.SetDefault("arbiter.retries", 3)
	v.SetDefault("arbiter.backoff", 150*time.Millisecond)
	v.SetDefault("arbiter.recording_settle", 100*time.Millisecond)
	v.SetDefault("arbiter.playback_settle", 50*time.Millisecond)

	v.SetDefault("cache.dir", filepath.Join(home, ".cache", "nomvoice", "speech"))
	v.SetDefault("cache.ttl", 30*time.Minute)
	v.SetDefault("cache.capacity", 50)
	v.SetDefault("cache.evict_batch", 10)
	v.SetDefault("cache.memory_entries", 16)
	v.SetDefault("cache.extension", "mp3")
	v.SetDefault("cache.max_concurrent", 3)

	v.SetDefault("tts.provider", "openai")
	v.SetDefault("tts.rate", 1.0)
	v.SetDefault("stt.provider", "openai")

	v.SetDefault("command.capture_timeout", 5*time.Second)
	v.SetDefault("command.min_transcript", 2)
	v.SetDefault("command.auto_listen", false)
	v.SetDefault("command.auto_listen_delay", 800*time.Millisecond)

	v.SetDefault("wakeword.enabled", true)
	v.SetDefault("wakeword.window", 1500*time.Millisecond)
	v.SetDefault("wakeword.level_floor", 0.02)
	v.SetDefault("wakeword.quiet_pause", 800*time.Millisecond)
	v.SetDefault("wakeword.reject_pause", 100*time.Millisecond)
	v.SetDefault("wakeword.irrelevant_pause", 300*time.Millisecond)
	v.SetDefault("wakeword.failure_pause", time.Second)
	v.SetDefault("wakeword.restart_delay", 400*time.Millisecond)
	v.SetDefault("wakeword.phrases", []string{"hey nom", "okay nom", "ok nom", "hi nom", "hey nomvoice", "hey mom"})
	v.SetDefault("wakeword.words", []string{"nom", "nomvoice", "nomnom"})
	v.SetDefault("wakeword.fillers", []string{"uh", "um", "umm", "hmm", "mm", "ah", "oh", "er", "yeah", "okay", "ok", "so", "like"})
	v.SetDefault("wakeword.media_terms", []string{"subscribe", "thanks for watching", "thank you for watching", "music", "applause", "laughter", "subtitles"})
	v.SetDefault("wakeword.max_length", 48)
	v.SetDefault("wakeword.digit_run", 4)

	v.SetDefault("runtime.error_display", 2*time.Second)

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.stt_model", "whisper-1")
	v.SetDefault("openai.tts_model", "tts-1")
	v.SetDefault("openai.voice", "alloy")
	v.SetDefault("openai.language", "en")

	v.SetDefault("deepgram.api_key", "")
	v.SetDefault("deepgram.api_base", "https://api.deepgram.com/v1")
	v.SetDefault("deepgram.model", "nova-2")
	v.SetDefault("deepgram.language", "")
	v.SetDefault("deepgram.smart_format", true)

	v.SetDefault("local.command", "espeak-ng")
	v.SetDefault("local.voice", "")

	v.SetDefault("rules.path", filepath.Join(home, ".config", "nomvoice", "substitutions.rules"))
	v.SetDefault("rules.iteration_limit", 30)

	v.SetDefault("log.dir", filepath.Join(home, ".local", "state", "nomvoice"))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", false)
}

func (c *Config) normalize() {
	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.Channels <= 0 {
		c.Audio.Channels = 1
	}
	if c.Audio.ChunkSize < 256 {
		c.Audio.ChunkSize = 4096
	}
	if c.Rules.IterationLimit <= 0 {
		c.Rules.IterationLimit = 30
	}
	if c.Command.MinTranscript <= 0 {
		c.Command.MinTranscript = 2
	}
	if c.TTS.Rate <= 0 {
		c.TTS.Rate = 1
	}
	c.TTS.Provider = strings.ToLower(strings.TrimSpace(c.TTS.Provider))
	c.STT.Provider = strings.ToLower(strings.TrimSpace(c.STT.Provider))
	c.OpenAI.APIKey = strings.TrimSpace(c.OpenAI.APIKey)
	c.Deepgram.APIKey = strings.TrimSpace(c.Deepgram.APIKey)
}
