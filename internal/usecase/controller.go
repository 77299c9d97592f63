// Package usecase owns the voice runtime state machine: it starts the wake
// word loop when idle, runs command sessions and speaks the guide's answers.
package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"nomvoice/internal/arbiter"
	"nomvoice/internal/audio"
	"nomvoice/internal/cooking"
	"nomvoice/internal/domain"
	"nomvoice/internal/intent"
	"nomvoice/internal/ports"
	"nomvoice/internal/speechcache"
	"nomvoice/internal/tts"
	"nomvoice/internal/wakeword"
)

var (
	ErrNoActiveSession = errors.New("no active listening session")
	ErrNotStarted      = errors.New("voice runtime is not running")
	ErrBackgrounded    = errors.New("voice runtime is in the background")
)

// Speaker plays speech and reports when it holds the playback lease.
type Speaker interface {
	Speak(ctx context.Context, text string, opts tts.SpeakOptions) error
	Stop(ctx context.Context) error
	IsCached(text string) bool
	Prefetch(ctx context.Context, text string) error
	Precache(ctx context.Context, texts []string, onProgress func(speechcache.Progress)) (speechcache.PrecacheResult, error)
	SetObserver(fn func(speaking bool))
}

// WakeDetector is the background wake word loop.
type WakeDetector interface {
	Start(ctx context.Context)
	Disable()
	Stop()
	Enabled() bool
	Running() bool
	SetMatcher(m *wakeword.Matcher)
	SetOnActivate(fn func(transcript string))
}

// Config controls the runtime timings.
type Config struct {
	CaptureTimeout   time.Duration
	MinTranscript    int
	AutoListen       bool
	AutoListenDelay  time.Duration
	RestartDelay     time.Duration
	ErrorDisplay     time.Duration
	WakeWord         bool
	Acknowledgements []string
	Fillers          []string
}

// Deps groups the collaborators of a Controller.
type Deps struct {
	Arbiter     *arbiter.Arbiter
	Recorder    *audio.Recorder
	Transcriber ports.Transcriber
	Speaker     Speaker
	Detector    WakeDetector
	Classifier  *intent.Classifier
	Permissions ports.Permissions
	Events      ports.EventSink
}

// Controller is the single owner of VoiceState.
type Controller struct {
	arbiter     *arbiter.Arbiter
	recorder    *audio.Recorder
	transcriber ports.Transcriber
	speaker     Speaker
	detector    WakeDetector
	permissions ports.Permissions
	events      ports.EventSink
	guide       *cooking.Guide
	finalizer   transcriptFinalizer
	cfg         Config
	logger      zerolog.Logger

	wg sync.WaitGroup

	mu           sync.Mutex
	root         context.Context
	cancelRoot   context.CancelFunc
	closed       bool
	state        domain.VoiceState
	reason       domain.StateReason
	message      string
	foreground   bool
	permission   domain.PermissionStatus
	wakeEnabled  bool
	autoListen   bool
	speaking     bool
	manualSpeaks int
	current      *commandSession
	restartTimer *time.Timer
	restartGen   int
	recoverTimer *time.Timer
	ackTurn      int
	fillerTurn   int
}

func NewController(deps Deps, cfg Config, logger zerolog.Logger) *Controller {
	if cfg.CaptureTimeout <= 0 {
		cfg.CaptureTimeout = 5 * time.Second
	}
	if cfg.ErrorDisplay <= 0 {
		cfg.ErrorDisplay = 2 * time.Second
	}
	if cfg.RestartDelay < 0 {
		cfg.RestartDelay = 0
	}
	if len(cfg.Acknowledgements) == 0 {
		cfg.Acknowledgements = DefaultAcknowledgements
	}
	if len(cfg.Fillers) == 0 {
		cfg.Fillers = DefaultFillers
	}

	c := &Controller{
		arbiter:     deps.Arbiter,
		recorder:    deps.Recorder,
		transcriber: deps.Transcriber,
		speaker:     deps.Speaker,
		detector:    deps.Detector,
		permissions: deps.Permissions,
		events:      deps.Events,
		cfg:         cfg,
		logger:      logger.With().Str("component", "controller").Logger(),
		state:       domain.VoiceStateIdle,
		foreground:  true,
		permission:  domain.PermissionUndetermined,
		wakeEnabled: cfg.WakeWord,
		autoListen:  cfg.AutoListen,
	}
	c.guide = cooking.NewGuide(c.announceTimer)
	c.finalizer = newTranscriptFinalizer(deps.Classifier, c.guide, deps.Events, cfg.MinTranscript)

	c.speaker.SetObserver(c.onSpeaking)
	c.detector.SetOnActivate(c.handleWake)
	return c
}

// Start resolves the microphone permission, warms the speech cache and arms
// the wake word loop.
func (c *Controller) Start(ctx context.Context) error {
	status, err := c.permissions.Status(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("permission status unavailable")
		status = domain.PermissionUndetermined
	}
	if status == domain.PermissionUndetermined && c.cfg.WakeWord {
		if status, err = c.permissions.Request(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("permission request failed")
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrNotStarted
	}
	if c.root == nil {
		c.root, c.cancelRoot = context.WithCancel(context.WithoutCancel(ctx))
	}
	c.permission = status
	root := c.root
	c.mu.Unlock()

	c.precache(root, c.phrases())
	c.transition(domain.VoiceStateIdle, domain.ReasonReady, "")

	c.mu.Lock()
	c.scheduleRestartLocked()
	c.mu.Unlock()

	c.logger.Info().Str("permission", string(status)).Bool("wakeword", c.cfg.WakeWord).Msg("voice runtime started")
	return nil
}

// Close tears the runtime down and waits for background work.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	session := c.current
	c.current = nil
	c.cancelRestartLocked()
	if c.recoverTimer != nil {
		c.recoverTimer.Stop()
		c.recoverTimer = nil
	}
	cancel := c.cancelRoot
	c.mu.Unlock()

	c.detector.Stop()
	if session != nil {
		session.abort()
	}
	err := c.speaker.Stop(context.Background())
	c.guide.Close()
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	return err
}

// Status returns a snapshot for the UI.
func (c *Controller) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.Status{
		State:      c.state,
		Listening:  c.state == domain.VoiceStateListening,
		Speaking:   c.speaking,
		WakeWord:   c.detector.Running() && c.detector.Enabled(),
		Foreground: c.foreground,
		Permission: c.permission,
		Message:    c.message,
	}
}

func (c *Controller) State() domain.VoiceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) IsListening() bool {
	return c.State() == domain.VoiceStateListening
}

func (c *Controller) IsSpeaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaking
}

// Recipe returns the recipe the guide is walking through.
func (c *Controller) Recipe() domain.Recipe {
	return c.guide.Recipe()
}

// SetRecipe replaces the recipe and warms the cache with its steps.
func (c *Controller) SetRecipe(recipe domain.Recipe) {
	c.guide.SetRecipe(recipe)

	c.mu.Lock()
	root := c.root
	c.mu.Unlock()
	if root != nil {
		c.precache(root, c.guide.StepTexts())
	}
}

func (c *Controller) SetAutoListen(enabled bool) {
	c.mu.Lock()
	c.autoListen = enabled
	c.mu.Unlock()
}

// SetWakeWordEnabled turns the background wake word loop on or off.
func (c *Controller) SetWakeWordEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wakeEnabled = enabled
	if !enabled {
		c.cancelRestartLocked()
		c.detector.Disable()
		return
	}
	c.scheduleRestartLocked()
}

// UpdateWakeWords swaps the wake phrase lists used by the next cycle.
func (c *Controller) UpdateWakeWords(lists wakeword.Lists) error {
	matcher, err := wakeword.NewMatcher(lists)
	if err != nil {
		return err
	}
	c.detector.SetMatcher(matcher)
	return nil
}

// PermissionStatus queries the host without prompting.
func (c *Controller) PermissionStatus(ctx context.Context) (domain.PermissionStatus, error) {
	status, err := c.permissions.Status(ctx)
	if err != nil {
		return status, err
	}
	c.setPermission(status)
	return status, nil
}

// RequestPermission prompts the host for microphone access.
func (c *Controller) RequestPermission(ctx context.Context) (domain.PermissionStatus, error) {
	status, err := c.permissions.Request(ctx)
	if err != nil {
		return status, err
	}
	c.setPermission(status)
	return status, nil
}

func (c *Controller) setPermission(status domain.PermissionStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.permission = status
	if status == domain.PermissionGranted {
		c.scheduleRestartLocked()
		return
	}
	c.cancelRestartLocked()
	c.detector.Disable()
}

// SetForeground reacts to app visibility. Backgrounding stops every audio
// activity and returns to Idle; the wake loop resumes only on return.
func (c *Controller) SetForeground(ctx context.Context, foreground bool) error {
	if foreground {
		c.mu.Lock()
		c.foreground = true
		c.scheduleRestartLocked()
		c.mu.Unlock()
		c.logger.Debug().Msg("foregrounded")
		return nil
	}

	c.mu.Lock()
	c.foreground = false
	c.cancelRestartLocked()
	c.detector.Disable()
	session := c.current
	c.current = nil
	c.mu.Unlock()

	c.detector.Stop()
	if session != nil {
		session.abort()
	}
	stopErr := c.speaker.Stop(ctx)
	resetErr := c.arbiter.Reset(ctx)
	c.transition(domain.VoiceStateIdle, domain.ReasonBackgrounded, "")
	c.logger.Info().Msg("backgrounded, audio released")
	return errors.Join(stopErr, resetErr)
}

// Speak plays text outside a command session. Failures surface as the Error
// state; supersession returns domain.ErrCancelled.
func (c *Controller) Speak(ctx context.Context, text string) error {
	c.mu.Lock()
	if c.root == nil || c.closed {
		c.mu.Unlock()
		return ErrNotStarted
	}
	c.manualSpeaks++
	c.cancelRestartLocked()
	c.detector.Disable()
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.manualSpeaks--
		c.scheduleRestartLocked()
		c.mu.Unlock()
	}()

	// The detector may still hold the recording lease for a moment.
	c.detector.Stop()

	err := c.speaker.Speak(ctx, text, tts.SpeakOptions{})
	if err != nil && !domain.IsCancelled(err) {
		c.fail(err)
	}
	return err
}

// StopSpeaking interrupts playback and returns once the lease is released.
func (c *Controller) StopSpeaking(ctx context.Context) error {
	return c.speaker.Stop(ctx)
}

// StartListening opens a push-to-talk command session.
func (c *Controller) StartListening(context.Context) error {
	return c.beginCommand(false)
}

// StopListening ends the capture of the active session; transcription follows.
func (c *Controller) StopListening(context.Context) error {
	c.mu.Lock()
	session := c.current
	listening := c.state == domain.VoiceStateListening
	c.mu.Unlock()

	if session == nil || !listening || !session.requestStop() {
		return ErrNoActiveSession
	}
	return nil
}

// ToggleListening starts a session when none is listening and stops it otherwise.
func (c *Controller) ToggleListening(ctx context.Context) error {
	if c.IsListening() {
		return c.StopListening(ctx)
	}
	return c.StartListening(ctx)
}

func (c *Controller) handleWake(transcript string) {
	c.logger.Info().Str("transcript", transcript).Msg("activating command session")
	if err := c.beginCommand(true); err != nil {
		c.logger.Debug().Err(err).Msg("wake activation ignored")
	}
}

func (c *Controller) beginCommand(wake bool) error {
	c.mu.Lock()
	if c.root == nil || c.closed {
		c.mu.Unlock()
		return ErrNotStarted
	}
	if !c.foreground {
		c.mu.Unlock()
		return ErrBackgrounded
	}
	if wake && c.state != domain.VoiceStateIdle {
		c.mu.Unlock()
		return nil
	}
	if !wake && c.state == domain.VoiceStateListening && c.current != nil {
		c.mu.Unlock()
		return nil
	}

	previous := c.current
	session := newCommandSession(c.root, wake)
	c.current = session
	c.cancelRestartLocked()
	c.detector.Disable()
	c.wg.Add(1)
	c.mu.Unlock()

	if previous != nil {
		previous.abort()
	}

	if wake {
		c.transition(domain.VoiceStateProcessing, domain.ReasonWakeWordDetected, "")
	} else {
		c.transition(domain.VoiceStateListening, domain.ReasonListeningStarted, "")
	}

	go func() {
		defer c.wg.Done()
		c.runCommand(session)
	}()
	return nil
}

// onSpeaking follows the TTS engine's playback lease.
func (c *Controller) onSpeaking(speaking bool) {
	c.mu.Lock()
	c.speaking = speaking
	inSession := c.current != nil
	state := c.state
	c.mu.Unlock()

	if speaking {
		c.transition(domain.VoiceStateSpeaking, domain.ReasonSpeaking, "")
		return
	}
	if state != domain.VoiceStateSpeaking {
		return
	}
	// A session keeps working between utterances, so it leaves Speaking for
	// Processing until its next transition.
	if inSession {
		c.transition(domain.VoiceStateProcessing, domain.ReasonSpeechFinished, "")
		return
	}
	c.transition(domain.VoiceStateIdle, domain.ReasonSpeechFinished, "")
}

func (c *Controller) announceTimer(d time.Duration) {
	c.mu.Lock()
	root := c.root
	active := root != nil && !c.closed && c.foreground
	if active {
		c.wg.Add(1)
	}
	c.mu.Unlock()
	if !active {
		return
	}

	go func() {
		defer c.wg.Done()
		if err := c.Speak(root, cooking.TimerDoneText(d)); err != nil && !domain.IsCancelled(err) {
			c.logger.Warn().Err(err).Msg("timer announcement failed")
		}
	}()
}

// fail surfaces err and schedules the automatic return to Idle.
func (c *Controller) fail(err error) {
	code := domain.ErrorCodeFor(err)
	c.logger.Error().Err(err).Str("code", string(code)).Msg("voice runtime error")
	c.events.VoiceError(code, err.Error())
	c.transition(domain.VoiceStateError, domain.ReasonFailed, err.Error())

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != domain.VoiceStateError || c.closed {
		return
	}
	if c.recoverTimer != nil {
		c.recoverTimer.Stop()
	}
	c.recoverTimer = time.AfterFunc(c.cfg.ErrorDisplay, c.recoverFromError)
}

func (c *Controller) recoverFromError() {
	c.mu.Lock()
	if c.state != domain.VoiceStateError {
		c.mu.Unlock()
		return
	}
	c.recoverTimer = nil
	c.state, c.reason, c.message = domain.VoiceStateIdle, domain.ReasonRecovered, ""
	c.applyStateLocked()
	c.mu.Unlock()
	c.events.StateChanged(domain.VoiceStateIdle, domain.ReasonRecovered)
}

// transition moves to state and emits it. Leaving Idle disables the wake
// loop; entering Idle schedules its restart.
func (c *Controller) transition(state domain.VoiceState, reason domain.StateReason, message string) {
	c.mu.Lock()
	if c.state == state && c.reason == reason && c.message == message {
		c.mu.Unlock()
		return
	}
	c.state, c.reason, c.message = state, reason, message
	c.applyStateLocked()
	c.mu.Unlock()

	c.logger.Debug().Str("state", string(state)).Str("reason", string(reason)).Msg("state changed")
	c.events.StateChanged(state, reason)
}

func (c *Controller) applyStateLocked() {
	if c.state != domain.VoiceStateError && c.recoverTimer != nil {
		c.recoverTimer.Stop()
		c.recoverTimer = nil
	}
	if c.state != domain.VoiceStateIdle {
		c.cancelRestartLocked()
		c.detector.Disable()
		return
	}
	c.scheduleRestartLocked()
}

func (c *Controller) canListenLocked() bool {
	return c.root != nil &&
		!c.closed &&
		c.state == domain.VoiceStateIdle &&
		c.foreground &&
		c.wakeEnabled &&
		c.permission == domain.PermissionGranted &&
		!c.speaking &&
		c.manualSpeaks == 0 &&
		c.current == nil
}

func (c *Controller) scheduleRestartLocked() {
	if !c.canListenLocked() || c.restartTimer != nil {
		return
	}
	c.restartGen++
	gen := c.restartGen
	c.restartTimer = time.AfterFunc(c.cfg.RestartDelay, func() { c.startDetector(gen) })
}

func (c *Controller) cancelRestartLocked() {
	if c.restartTimer != nil {
		c.restartTimer.Stop()
		c.restartTimer = nil
	}
	c.restartGen++
}

// startDetector runs under c.mu so no transition can interleave between the
// check and the start.
func (c *Controller) startDetector(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.restartGen {
		return
	}
	c.restartTimer = nil
	if !c.canListenLocked() {
		return
	}
	if c.detector.Running() && c.detector.Enabled() {
		return
	}
	c.detector.Start(c.root)
}
