package bootstrap

import (
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"nomvoice/internal/arbiter"
	"nomvoice/internal/audio"
	"nomvoice/internal/config"
	"nomvoice/internal/cooking"
	"nomvoice/internal/domain"
	"nomvoice/internal/intent"
	"nomvoice/internal/logging"
	"nomvoice/internal/ports"
	"nomvoice/internal/providers/deepgram"
	"nomvoice/internal/providers/local"
	"nomvoice/internal/providers/openai"
	"nomvoice/internal/speechcache"
	"nomvoice/internal/tts"
	"nomvoice/internal/usecase"
	"nomvoice/internal/wakeword"
)

// Services is the assembled runtime graph.
type Services struct {
	Config     config.Config
	Logger     zerolog.Logger
	Controller *usecase.Controller
	Speech     *tts.Engine
	Cache      *speechcache.Cache
	Classifier *intent.Classifier
	Arbiter    *arbiter.Arbiter

	logCloser io.Closer
}

// Build loads configuration from configPath (empty means the default path)
// and wires all backend dependencies.
func Build(configPath string, events ports.EventSink) (*Services, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, logCloser, err := logging.New(logging.Config{
		Dir:     cfg.Log.Dir,
		Level:   cfg.Log.Level,
		Console: cfg.Log.Console,
	})
	if err != nil {
		return nil, err
	}

	services, err := BuildWith(cfg, events, logger)
	if err != nil {
		_ = logCloser.Close()
		return nil, err
	}
	services.logCloser = logCloser
	return services, nil
}

// BuildWith wires the graph from an already loaded configuration.
func BuildWith(cfg config.Config, events ports.EventSink, logger zerolog.Logger) (*Services, error) {
	audioCfg := audio.SpeechProfile(ports.AudioConfig{
		SampleRate:  cfg.Audio.SampleRate,
		Channels:    cfg.Audio.Channels,
		InputFormat: cfg.Audio.InputFormat,
		InputDevice: cfg.Audio.InputDevice,
	})

	device := audio.NewHostDevice(cfg.Audio.RecorderCommand, cfg.Audio.PlayerCommand, modeHooks(cfg.Audio.Hooks))
	arb := arbiter.New(device, arbiter.Config{
		Retries:         cfg.Arbiter.Retries,
		Backoff:         cfg.Arbiter.Backoff,
		RecordingSettle: cfg.Arbiter.RecordingSettle,
		PlaybackSettle:  cfg.Arbiter.PlaybackSettle,
	}, logger)

	capture := audio.NewFFmpegCapture(cfg.Audio.RecorderCommand)
	recorder := audio.NewRecorder(capture, audioCfg, cfg.Audio.ChunkSize)

	transcriber, err := newTranscriber(cfg)
	if err != nil {
		return nil, err
	}

	cache, err := speechcache.Open(CacheConfig(cfg.Cache), logger)
	if err != nil {
		return nil, err
	}

	remote, err := newRemoteSynthesizer(cfg)
	if err != nil {
		return nil, err
	}
	var fallback ports.Synthesizer
	if espeak := local.NewSynthesizer(local.Config{Command: cfg.Local.Command, Voice: cfg.Local.Voice}, logger); espeak.Available() {
		fallback = espeak
	} else {
		logger.Warn().Str("command", cfg.Local.Command).Msg("local speech fallback unavailable")
	}
	if remote == nil && fallback == nil {
		return nil, errors.New("no speech synthesizer available: configure openai or install espeak-ng")
	}

	engine := tts.NewEngine(arb, cache, remote, fallback, audio.NewFFPlayPlayer(cfg.Audio.PlayerCommand), tts.Config{
		Rate:          cfg.TTS.Rate,
		MaxConcurrent: cfg.Cache.MaxConcurrent,
	}, logger)

	subs, err := intent.LoadSubstitutions(cfg.Rules.Path, cfg.Rules.IterationLimit)
	if err != nil {
		return nil, err
	}
	classifier := intent.NewClassifier(subs)

	matcher, err := wakeword.NewMatcher(WakeLists(cfg.WakeWord))
	if err != nil {
		return nil, fmt.Errorf("invalid wake word lists: %w", err)
	}
	detector := wakeword.NewDetector(arb, recorder, transcriber, matcher, wakeword.Config{
		Window:          cfg.WakeWord.Window,
		LevelFloor:      cfg.WakeWord.LevelFloor,
		QuietPause:      cfg.WakeWord.QuietPause,
		RejectPause:     cfg.WakeWord.RejectPause,
		IrrelevantPause: cfg.WakeWord.IrrelevantPause,
		FailurePause:    cfg.WakeWord.FailurePause,
	}, logger)

	controller := usecase.NewController(usecase.Deps{
		Arbiter:     arb,
		Recorder:    recorder,
		Transcriber: transcriber,
		Speaker:     engine,
		Detector:    detector,
		Classifier:  classifier,
		Permissions: audio.NewCapturePermissions(capture, audioCfg),
		Events:      events,
	}, usecase.Config{
		CaptureTimeout:  cfg.Command.CaptureTimeout,
		MinTranscript:   cfg.Command.MinTranscript,
		AutoListen:      cfg.Command.AutoListen,
		AutoListenDelay: cfg.Command.AutoListenDelay,
		RestartDelay:    cfg.WakeWord.RestartDelay,
		ErrorDisplay:    cfg.Runtime.ErrorDisplay,
		WakeWord:        cfg.WakeWord.Enabled,
	}, logger)

	if cfg.Recipe != "" {
		recipe, err := cooking.LoadRecipe(cfg.Recipe)
		if err != nil {
			return nil, err
		}
		controller.SetRecipe(recipe)
	}

	logger.Info().
		Str("stt", cfg.STT.Provider).
		Str("tts", cfg.TTS.Provider).
		Bool("fallback", fallback != nil).
		Int("substitutions", subs.Len()).
		Msg("runtime assembled")

	return &Services{
		Config:     cfg,
		Logger:     logger,
		Controller: controller,
		Speech:     engine,
		Cache:      cache,
		Classifier: classifier,
		Arbiter:    arb,
		logCloser:  nopCloser{},
	}, nil
}

// Apply pushes the settings that may change at runtime into the controller.
func (s *Services) Apply(cfg config.Config) error {
	if err := s.Controller.UpdateWakeWords(WakeLists(cfg.WakeWord)); err != nil {
		return err
	}
	s.Controller.SetAutoListen(cfg.Command.AutoListen)
	s.Controller.SetWakeWordEnabled(cfg.WakeWord.Enabled)
	s.Config = cfg
	s.Logger.Info().Msg("configuration reloaded")
	return nil
}

// Close stops the runtime and flushes the log file.
func (s *Services) Close() error {
	err := errors.Join(s.Controller.Close(), s.Speech.Close())
	if s.logCloser != nil {
		err = errors.Join(err, s.logCloser.Close())
	}
	return err
}

// CacheConfig converts the cache config section.
func CacheConfig(cfg config.CacheConfig) speechcache.Config {
	return speechcache.Config{
		Dir:           cfg.Dir,
		TTL:           cfg.TTL,
		Capacity:      cfg.Capacity,
		EvictBatch:    cfg.EvictBatch,
		Extension:     cfg.Extension,
		MemoryEntries: cfg.MemoryEntries,
	}
}

// WakeLists converts the wake word config section into matcher lists.
func WakeLists(cfg config.WakeWordConfig) wakeword.Lists {
	return wakeword.Lists{
		Phrases:    cfg.Phrases,
		Words:      cfg.Words,
		Fillers:    cfg.Fillers,
		MediaTerms: cfg.MediaTerms,
		MaxLength:  cfg.MaxLength,
		DigitRun:   cfg.DigitRun,
	}
}

func newTranscriber(cfg config.Config) (ports.Transcriber, error) {
	switch cfg.STT.Provider {
	case "", "openai":
		return openai.NewTranscriber(openaiConfig(cfg)), nil
	case "deepgram":
		return deepgram.NewTranscriber(deepgram.Config{
			APIKey:      cfg.Deepgram.APIKey,
			APIBaseURL:  cfg.Deepgram.APIBaseURL,
			Model:       cfg.Deepgram.Model,
			Language:    cfg.Deepgram.Language,
			SmartFormat: cfg.Deepgram.SmartFormat,
			ChunkSize:   cfg.Audio.ChunkSize,
		}), nil
	default:
		return nil, fmt.Errorf("unknown stt provider %q", cfg.STT.Provider)
	}
}

func newRemoteSynthesizer(cfg config.Config) (ports.Synthesizer, error) {
	switch cfg.TTS.Provider {
	case "", "openai":
		return openai.NewSynthesizer(openaiConfig(cfg)), nil
	case "local":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown tts provider %q", cfg.TTS.Provider)
	}
}

func openaiConfig(cfg config.Config) openai.Config {
	return openai.Config{
		APIKey:   cfg.OpenAI.APIKey,
		BaseURL:  cfg.OpenAI.BaseURL,
		STTModel: cfg.OpenAI.STTModel,
		TTSModel: cfg.OpenAI.TTSModel,
		Voice:    cfg.OpenAI.Voice,
		Language: cfg.OpenAI.Language,
	}
}

func modeHooks(hooks map[string][]string) map[domain.AudioMode][]string {
	out := make(map[domain.AudioMode][]string, len(hooks))
	for name, argv := range hooks {
		if len(argv) == 0 {
			continue
		}
		out[domain.AudioMode(name)] = argv
	}
	return out
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
