// Package session owns the listening session: start, stop, auto-restart
// and the transcript built from provider results.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"speech-transcript-service/internal/observability/logging"
	"speech-transcript-service/internal/observability/metrics"
	"speech-transcript-service/internal/service/segment"
	"speech-transcript-service/internal/service/stt"
	"speech-transcript-service/internal/service/transcript"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"
)

// Config holds controller settings.
type Config struct {
	// Language is the initial BCP-47 tag passed to the provider.
	Language string
	// RestartDelay is the wait between an unrequested end and the restart.
	RestartDelay time.Duration
	// ResetOnStart clears finalized text on every manual start.
	ResetOnStart bool
	// ProviderName is used for logging only.
	ProviderName string
}

// DefaultConfig returns the default controller settings.
func DefaultConfig() Config {
	return Config{
		Language:     "en-US",
		RestartDelay: 100 * time.Millisecond,
		ProviderName: "mock",
	}
}

// Option customizes a Controller.
type Option func(*Controller)

// WithScheduler replaces the timer used for the restart delay.
func WithScheduler(s Scheduler) Option {
	return func(c *Controller) { c.scheduler = s }
}

// WithContext sets the parent context of every provider run.
func WithContext(ctx context.Context) Option {
	return func(c *Controller) { c.baseCtx = ctx }
}

// WithMetrics replaces the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// Controller is the session state machine.
//
// All transitions run on a single dispatcher: an event is processed to
// completion before the next one starts. Events posted while a transition
// is running (for example a provider that terminates inside Stop) are
// queued behind it.
//
// State transitions:
//
//	IDLE ──start──→ LISTENING ──stop──→ STOPPING ──terminated──→ IDLE
//	                  │    ↑
//	                  │    └── restart delay ←── terminated (not requested)
//	                  │
//	                  └── error ──→ IDLE
type Controller struct {
	provider  stt.Provider
	presenter Presenter
	observer  SnapshotObserver
	scheduler Scheduler
	metrics   *metrics.Metrics
	cfg       Config
	logger    zerolog.Logger
	baseCtx   context.Context

	// Owned by the dispatcher.
	state       State
	transcript  transcript.State
	language    string
	suppress    bool
	sessionID   string
	segments    *segment.Generator
	segmentID   string
	runCancel   context.CancelFunc
	restart     Timer
	restartGen  uint64
	startedAt   time.Time
	status      string
	statusError bool

	qmu   sync.Mutex
	queue []Event
	busy  bool
	wake  chan struct{}

	snapshot atomic.Pointer[Snapshot]
}

// New creates an idle controller driving provider and reporting to presenter.
func New(provider stt.Provider, presenter Presenter, cfg Config, opts ...Option) *Controller {
	if presenter == nil {
		presenter = NopPresenter{}
	}
	if cfg.Language == "" {
		cfg.Language = DefaultConfig().Language
	}
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = DefaultConfig().RestartDelay
	}

	c := &Controller{
		provider:  provider,
		presenter: presenter,
		scheduler: realScheduler{},
		metrics:   metrics.DefaultMetrics,
		cfg:       cfg,
		logger:    logging.WithComponent("session"),
		baseCtx:   context.Background(),
		language:  cfg.Language,
		status:    StatusReady,
		wake:      make(chan struct{}, 1),
	}
	if o, ok := presenter.(SnapshotObserver); ok {
		c.observer = o
	}
	for _, opt := range opts {
		opt(c)
	}
	c.storeSnapshot()
	return c
}

// Snapshot returns the latest published session picture. Safe for
// concurrent use.
func (c *Controller) Snapshot() Snapshot {
	return *c.snapshot.Load()
}

// Start begins a new session from Idle.
func (c *Controller) Start(ctx context.Context) error {
	return c.submit(ctx, StartRequested{})
}

// Stop ends the session. It is a no-op when already idle or stopping.
func (c *Controller) Stop(ctx context.Context) error {
	return c.submit(ctx, StopRequested{})
}

// Clear empties the transcript.
func (c *Controller) Clear(ctx context.Context) error {
	return c.submit(ctx, ClearRequested{})
}

// SetLanguage changes the language used by the next provider start.
func (c *Controller) SetLanguage(ctx context.Context, tag string) error {
	return c.submit(ctx, LanguageChanged{Tag: tag})
}

func (c *Controller) submit(ctx context.Context, ev Event) error {
	req := &request{ev: ev, reply: make(chan error, 1)}
	c.Handle(req)

	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post queues ev for the dispatcher. Safe for concurrent use and from
// inside provider calls.
func (c *Controller) Post(ev Event) {
	c.qmu.Lock()
	c.queue = append(c.queue, ev)
	c.qmu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Run processes posted events until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info().Msg("Session controller running")
	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("Session controller stopped")
			return ctx.Err()
		case <-c.wake:
			c.processQueued()
		}
	}
}

// Shutdown stops the session and waits until it is idle. Queued provider
// events are processed here as well, so the final termination is handled
// even after Run has returned.
func (c *Controller) Shutdown(ctx context.Context) error {
	if err := c.Stop(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		c.processQueued()
		if c.Snapshot().State == StateIdle {
			c.logger.Info().Msg("Session controller shut down")
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.wake:
		case <-ticker.C:
		}
	}
}

// Handle processes ev and then everything queued behind it.
//
// If another dispatch is already in progress, ev is queued and processed
// by that dispatch, and Handle returns nil.
func (c *Controller) Handle(ev Event) error {
	c.qmu.Lock()
	if c.busy {
		c.queue = append(c.queue, ev)
		c.qmu.Unlock()
		return nil
	}
	c.busy = true
	c.qmu.Unlock()

	err := c.dispatch(ev)
	c.drain()
	return err
}

func (c *Controller) processQueued() {
	c.qmu.Lock()
	if c.busy || len(c.queue) == 0 {
		c.qmu.Unlock()
		return
	}
	c.busy = true
	c.qmu.Unlock()

	c.drain()
}

// drain runs queued events until the queue is empty. The caller must hold
// the busy flag.
func (c *Controller) drain() {
	for {
		c.qmu.Lock()
		if len(c.queue) == 0 {
			c.busy = false
			c.qmu.Unlock()
			return
		}
		ev := c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]
		c.qmu.Unlock()

		if err := c.dispatch(ev); err != nil {
			c.logger.Warn().
				Err(err).
				Str("event", fmt.Sprintf("%T", ev)).
				Msg("Queued event failed")
		}
	}
}

func (c *Controller) dispatch(ev Event) error {
	switch e := ev.(type) {
	case *request:
		err := c.dispatch(e.ev)
		e.reply <- err
		return err
	case StartRequested:
		return c.handleStart()
	case StopRequested:
		return c.handleStop()
	case ClearRequested:
		return c.handleClear()
	case LanguageChanged:
		return c.handleLanguage(e)
	case ProviderStarted:
		return c.handleProviderStarted(e)
	case BatchReceived:
		return c.handleBatch(e)
	case ProviderTerminated:
		return c.handleTerminated(e)
	case ProviderFailed:
		return c.handleFailed(e)
	case restartDue:
		return c.handleRestartDue(e)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
	}
}

func (c *Controller) handleStart() error {
	if c.state != StateIdle {
		c.logger.Debug().
			Str("state", c.state.String()).
			Msg("Start ignored, session already active")
		return ErrAlreadyActive
	}

	// Session ids and the transcript reset are committed only once the
	// provider accepts; a rejected start leaves the previous session intact.
	prevID, prevSegments := c.sessionID, c.segments
	c.sessionID = uuid.NewString()
	c.segments = segment.New(c.sessionID)

	if err := c.startProvider(false); err != nil {
		attempted := c.sessionID
		c.sessionID, c.segments = prevID, prevSegments
		c.metrics.RecordStartFailure()
		c.logger.Error().
			Err(err).
			Str("sessionId", attempted).
			Str("language", c.language).
			Msg("Provider rejected start")
		c.setStatus(StatusStartFailed, true)
		c.render()
		return fmt.Errorf("%w: %w", ErrProviderStartFailed, err)
	}

	if c.cfg.ResetOnStart {
		c.transcript.Reset()
	} else {
		c.transcript.ResetWatermark()
	}
	c.suppress = false
	c.startedAt = time.Now().UTC()

	c.metrics.RecordSessionStart()
	c.setState(StateListening)
	c.logger.Info().
		Str("sessionId", c.sessionID).
		Str("segmentId", c.segmentID).
		Str("language", c.language).
		Str("sttProvider", c.cfg.ProviderName).
		Msg("Session started")
	c.render()
	return nil
}

func (c *Controller) handleStop() error {
	if c.state != StateListening {
		return nil
	}

	// The flag must be visible before the provider is told to stop: the
	// provider may terminate from inside Stop.
	c.suppress = true

	if c.restart != nil {
		c.metrics.RecordRestartCancelled()
		c.logger.Info().
			Str("sessionId", c.sessionID).
			Msg("Pending restart cancelled by stop")
		c.toIdle("stopped")
		c.setStatus(StatusReady, false)
		c.render()
		return nil
	}

	c.setState(StateStopping)
	c.setStatus(StatusReady, false)

	if err := c.provider.Stop(); err != nil {
		c.logger.Warn().
			Err(err).
			Str("sessionId", c.sessionID).
			Str("segmentId", c.segmentID).
			Msg("Provider stop failed, ending session")
		c.toIdle("stop_failed")
	}
	c.render()
	return nil
}

func (c *Controller) handleClear() error {
	c.transcript.Reset()
	c.metrics.RecordClear()
	c.logger.Info().
		Str("sessionId", c.sessionID).
		Str("state", c.state.String()).
		Msg("Transcript cleared")
	c.render()
	return nil
}

func (c *Controller) handleLanguage(e LanguageChanged) error {
	if strings.TrimSpace(e.Tag) == "" {
		return fmt.Errorf("%w: empty tag", ErrInvalidLanguage)
	}
	tag, err := language.Parse(e.Tag)
	if err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidLanguage, e.Tag, err)
	}
	c.language = tag.String()
	c.logger.Info().
		Str("language", c.language).
		Str("state", c.state.String()).
		Msg("Language changed, applies to next provider start")
	c.storeSnapshot()
	return nil
}

func (c *Controller) handleProviderStarted(e ProviderStarted) error {
	if c.stale(e.Segment) {
		return nil
	}
	// Every provider run numbers its results from zero.
	c.transcript.ResetWatermark()
	if c.state == StateListening {
		c.setStatus(StatusListening, false)
	}
	c.logger.Debug().
		Str("segmentId", e.Segment).
		Msg("Provider run started")
	c.render()
	return nil
}

func (c *Controller) handleBatch(e BatchReceived) error {
	if c.stale(e.Segment) {
		return nil
	}

	res, err := c.transcript.Apply(e.Batch)
	if err != nil {
		c.metrics.RecordBatchRejected()
		c.logger.Error().
			Err(err).
			Str("segmentId", e.Segment).
			Int("hypotheses", e.Batch.Len()).
			Msg("Dropping invalid batch")
		return fmt.Errorf("segment %s: %w", e.Segment, err)
	}

	c.metrics.RecordBatch(res.FinalDelta != "", res.Confidence.Value, res.Confidence.Valid)
	c.logger.Debug().
		Str("segmentId", e.Segment).
		Int("hypotheses", e.Batch.Len()).
		Int("watermark", res.Watermark).
		Str("finalDelta", res.FinalDelta).
		Str("interim", res.Interim).
		Msg("Batch applied")
	c.render()
	return nil
}

func (c *Controller) handleTerminated(e ProviderTerminated) error {
	if c.stale(e.Segment) {
		return nil
	}
	c.endRun()

	if c.transcript.FoldInterim() {
		c.metrics.RecordInterimFolded()
	}
	c.render()

	if c.suppress {
		c.logger.Info().
			Str("sessionId", c.sessionID).
			Str("segmentId", e.Segment).
			Msg("Provider terminated after stop")
		c.toIdle("stopped")
		c.setStatus(StatusReady, false)
		c.render()
		return nil
	}

	c.restartGen++
	gen := c.restartGen
	c.restart = c.scheduler.AfterFunc(c.cfg.RestartDelay, func() {
		c.Post(restartDue{gen: gen})
	})
	c.logger.Info().
		Str("sessionId", c.sessionID).
		Str("segmentId", e.Segment).
		Dur("delay", c.cfg.RestartDelay).
		Msg("Provider ended unrequested, restart scheduled")
	c.storeSnapshot()
	return nil
}

func (c *Controller) handleRestartDue(e restartDue) error {
	if c.restart == nil || e.gen != c.restartGen {
		return nil
	}
	c.restart = nil

	if c.suppress || c.state != StateListening {
		c.metrics.RecordRestartCancelled()
		c.toIdle("stopped")
		c.setStatus(StatusReady, false)
		c.render()
		return nil
	}

	if err := c.startProvider(true); err != nil {
		c.metrics.RecordStartFailure()
		c.logger.Error().
			Err(err).
			Str("sessionId", c.sessionID).
			Msg("Auto-restart failed")
		c.toIdle("restart_failed")
		c.setStatus(StatusStartFailed, true)
		c.render()
		return nil
	}

	c.logger.Info().
		Str("sessionId", c.sessionID).
		Str("segmentId", c.segmentID).
		Str("language", c.language).
		Msg("Provider restarted")
	c.storeSnapshot()
	return nil
}

func (c *Controller) handleFailed(e ProviderFailed) error {
	if c.stale(e.Segment) {
		return nil
	}

	kind, msg := ClassifyError(e.Err)
	var cause error
	if e.Err != nil {
		cause = e.Err
	}
	c.metrics.RecordProviderError(kind.String())
	c.logger.Error().
		Err(cause).
		Str("sessionId", c.sessionID).
		Str("segmentId", e.Segment).
		Str("kind", kind.String()).
		Msg("Provider failed, ending session")

	c.suppress = true
	if err := c.provider.Stop(); err != nil {
		c.logger.Debug().Err(err).Msg("Provider stop after failure")
	}
	c.toIdle("error")
	c.setStatus(msg, true)
	c.render()
	return nil
}

// startProvider issues a start command for a new run. State is only
// touched when the provider accepts.
func (c *Controller) startProvider(restart bool) error {
	seg := c.segments.Next()
	ctx, cancel := context.WithCancel(c.baseCtx)

	if err := c.provider.Start(ctx, c.language, &runCallback{c: c, segment: seg}); err != nil {
		cancel()
		return err
	}

	c.endRun()
	c.segmentID = seg
	c.runCancel = cancel
	c.metrics.RecordSegmentStart(restart)
	runLogger := logging.WithSegment("session", c.sessionID, seg, c.cfg.ProviderName)
	runLogger.Debug().
		Bool("restart", restart).
		Str("language", c.language).
		Msg("Provider run started")
	return nil
}

// stale reports whether an event belongs to a run that is no longer current.
func (c *Controller) stale(seg string) bool {
	if c.state == StateIdle || seg == "" || seg != c.segmentID {
		c.metrics.RecordStaleEvent()
		c.logger.Debug().
			Str("segmentId", seg).
			Str("currentSegmentId", c.segmentID).
			Str("state", c.state.String()).
			Msg("Dropping event from stale provider run")
		return true
	}
	return false
}

// endRun forgets the current provider run.
func (c *Controller) endRun() {
	if c.runCancel != nil {
		c.runCancel()
		c.runCancel = nil
	}
	c.segmentID = ""
}

func (c *Controller) toIdle(reason string) {
	if c.restart != nil {
		c.restart.Stop()
		c.restart = nil
	}
	c.restartGen++
	c.endRun()
	c.suppress = false
	c.transcript.FoldInterim()

	if c.state != StateIdle {
		c.metrics.RecordSessionEnd(reason, time.Since(c.startedAt).Seconds())
		c.logger.Info().
			Str("sessionId", c.sessionID).
			Str("reason", reason).
			Msg("Session ended")
	}
	c.setState(StateIdle)
}

func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	c.metrics.RecordTransition(c.state.String(), s.String())
	c.state = s
}

func (c *Controller) setStatus(msg string, isError bool) {
	c.status = msg
	c.statusError = isError
	c.presenter.OnStatusChanged(msg, isError)
}

// render pushes the transcript and confidence to the presenter.
func (c *Controller) render() {
	text := c.transcript.Text()
	c.presenter.OnTranscriptChanged(text)
	p, ok := c.transcript.Confidence.Percent()
	c.presenter.OnConfidenceChanged(p, ok)
	c.metrics.RecordTranscriptLength(len(text))
	c.storeSnapshot()
}

func (c *Controller) storeSnapshot() {
	p, ok := c.transcript.Confidence.Percent()
	var segments int
	if c.segments != nil {
		segments = int(c.segments.Count())
	}
	snap := &Snapshot{
		SessionID:         c.sessionID,
		SegmentID:         c.segmentID,
		State:             c.state,
		Finalized:         c.transcript.Finalized,
		Interim:           c.transcript.Interim,
		Text:              c.transcript.Text(),
		Watermark:         c.transcript.Watermark,
		Confidence:        c.transcript.Confidence.Value,
		ConfidencePercent: p,
		HasConfidence:     ok,
		Language:          c.language,
		Status:            c.status,
		StatusError:       c.statusError,
		RestartPending:    c.restart != nil,
		Segments:          segments,
		StartedAt:         c.startedAt,
		UpdatedAt:         time.Now().UTC(),
	}
	c.snapshot.Store(snap)
	if c.observer != nil {
		c.observer.OnSnapshot(*snap)
	}
}
