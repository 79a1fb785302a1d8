package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"speech-transcript-service/internal/service/stt"
	"speech-transcript-service/internal/service/transcript"
)

// fakeProvider records commands and hands the callback back to the test.
type fakeProvider struct {
	mu              sync.Mutex
	languages       []string
	callbacks       []stt.Callback
	stops           int
	startErr        error
	stopErr         error
	terminateOnStop bool
}

func (p *fakeProvider) Start(ctx context.Context, language string, cb stt.Callback) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startErr != nil {
		return p.startErr
	}
	p.languages = append(p.languages, language)
	p.callbacks = append(p.callbacks, cb)
	return nil
}

func (p *fakeProvider) Stop() error {
	p.mu.Lock()
	p.stops++
	var cb stt.Callback
	if p.terminateOnStop && len(p.callbacks) > 0 {
		cb = p.callbacks[len(p.callbacks)-1]
	}
	err := p.stopErr
	p.mu.Unlock()

	if cb != nil {
		cb.OnEnd()
	}
	return err
}

func (p *fakeProvider) startCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.languages)
}

func (p *fakeProvider) stopCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stops
}

func (p *fakeProvider) current() stt.Callback {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.callbacks[len(p.callbacks)-1]
}

type fakeTimer struct {
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// fakeScheduler keeps deferred actions until the test fires them.
type fakeScheduler struct {
	timers []*fakeTimer
	delays []time.Duration
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{f: f}
	s.timers = append(s.timers, t)
	s.delays = append(s.delays, d)
	return t
}

// fire runs every timer, even stopped ones, the way a timer that already
// started firing would.
func (s *fakeScheduler) fire() {
	for _, t := range s.timers {
		if !t.fired {
			t.fired = true
			t.f()
		}
	}
}

type statusUpdate struct {
	message string
	isError bool
}

type recordingPresenter struct {
	texts       []string
	confidences []int
	statuses    []statusUpdate
	snapshots   []Snapshot
}

func (r *recordingPresenter) OnTranscriptChanged(fullText string) {
	r.texts = append(r.texts, fullText)
}

func (r *recordingPresenter) OnConfidenceChanged(percent int, ok bool) {
	if !ok {
		percent = -1
	}
	r.confidences = append(r.confidences, percent)
}

func (r *recordingPresenter) OnStatusChanged(message string, isError bool) {
	r.statuses = append(r.statuses, statusUpdate{message, isError})
}

func (r *recordingPresenter) OnSnapshot(snap Snapshot) {
	r.snapshots = append(r.snapshots, snap)
}

func (r *recordingPresenter) lastText() string {
	if len(r.texts) == 0 {
		return ""
	}
	return r.texts[len(r.texts)-1]
}

func (r *recordingPresenter) lastConfidence() int {
	if len(r.confidences) == 0 {
		return -1
	}
	return r.confidences[len(r.confidences)-1]
}

func (r *recordingPresenter) lastStatus() statusUpdate {
	if len(r.statuses) == 0 {
		return statusUpdate{}
	}
	return r.statuses[len(r.statuses)-1]
}

type harness struct {
	c         *Controller
	provider  *fakeProvider
	scheduler *fakeScheduler
	presenter *recordingPresenter
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		provider:  &fakeProvider{},
		scheduler: &fakeScheduler{},
		presenter: &recordingPresenter{},
	}
	h.c = New(h.provider, h.presenter, cfg, WithScheduler(h.scheduler))
	return h
}

// emit delivers a provider callback and processes what it posted.
func (h *harness) emit(f func(cb stt.Callback)) {
	f(h.provider.current())
	h.c.processQueued()
}

func (h *harness) fireRestart() {
	h.scheduler.fire()
	h.c.processQueued()
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.c.Handle(StartRequested{}); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	h.emit(func(cb stt.Callback) { cb.OnStarted() })
}

func interim(text string) stt.Hypothesis {
	return stt.Hypothesis{Candidates: []stt.Candidate{{Text: text}}}
}

func final(text string, conf float64) stt.Hypothesis {
	return stt.Hypothesis{
		Candidates: []stt.Candidate{{Text: text, Confidence: conf, HasConfidence: true}},
		IsFinal:    true,
	}
}

func batchOf(hs ...stt.Hypothesis) stt.Batch {
	return stt.Batch{Hypotheses: hs}
}

func TestController_InitialState(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	snap := h.c.Snapshot()
	if snap.State != StateIdle {
		t.Errorf("expected StateIdle, got %v", snap.State)
	}
	if snap.Language != "en-US" {
		t.Errorf("expected en-US, got %s", snap.Language)
	}
	if snap.Status != StatusReady {
		t.Errorf("expected status %q, got %q", StatusReady, snap.Status)
	}
}

func TestController_StartFromIdle(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.start(t)

	snap := h.c.Snapshot()
	if snap.State != StateListening {
		t.Errorf("expected StateListening, got %v", snap.State)
	}
	if snap.SessionID == "" {
		t.Error("expected a session id")
	}
	if !strings.HasPrefix(snap.SegmentID, snap.SessionID) || !strings.HasSuffix(snap.SegmentID, "-seg-1") {
		t.Errorf("unexpected segment id %q for session %q", snap.SegmentID, snap.SessionID)
	}
	if got := h.provider.languages; len(got) != 1 || got[0] != "en-US" {
		t.Errorf("expected one start with en-US, got %v", got)
	}
	if s := h.presenter.lastStatus(); s.message != StatusListening || s.isError {
		t.Errorf("expected status Listening, got %+v", s)
	}
}

func TestController_StartWhileActive(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.start(t)

	if err := h.c.Handle(StartRequested{}); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}
	if n := h.provider.startCount(); n != 1 {
		t.Errorf("expected provider started once, got %d", n)
	}

	h.c.Handle(StopRequested{})
	if err := h.c.Handle(StartRequested{}); !errors.Is(err, ErrAlreadyActive) {
		t.Errorf("expected ErrAlreadyActive while stopping, got %v", err)
	}
}

func TestController_StartRejected(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	cause := errors.New("microphone busy")
	h.provider.startErr = cause

	err := h.c.Handle(StartRequested{})
	if !errors.Is(err, ErrProviderStartFailed) {
		t.Fatalf("expected ErrProviderStartFailed, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected cause to be wrapped, got %v", err)
	}
	if st := h.c.Snapshot().State; st != StateIdle {
		t.Errorf("expected StateIdle, got %v", st)
	}
	if s := h.presenter.lastStatus(); s.message != StatusStartFailed || !s.isError {
		t.Errorf("expected start failure status, got %+v", s)
	}
	if len(h.scheduler.timers) != 0 {
		t.Error("failed start must not be retried")
	}
}

func TestController_SessionScenario(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.start(t)

	h.emit(func(cb stt.Callback) { cb.OnBatch(batchOf(interim("hel"))) })
	if got := h.presenter.lastText(); got != "hel" {
		t.Errorf("expected 'hel', got %q", got)
	}

	h.emit(func(cb stt.Callback) { cb.OnBatch(batchOf(final("hello", 0.8))) })
	if got := h.presenter.lastText(); got != "hello " {
		t.Errorf("expected 'hello ', got %q", got)
	}
	if got := h.presenter.lastConfidence(); got != 80 {
		t.Errorf("expected confidence 80, got %d", got)
	}

	h.emit(func(cb stt.Callback) { cb.OnEnd() })

	snap := h.c.Snapshot()
	if snap.State != StateListening {
		t.Errorf("expected StateListening while restart pending, got %v", snap.State)
	}
	if !snap.RestartPending {
		t.Error("expected a restart to be pending")
	}
	if snap.Finalized != "hello " {
		t.Errorf("expected finalized 'hello ', got %q", snap.Finalized)
	}
	if snap.Watermark != 1 {
		t.Errorf("expected watermark unchanged at 1, got %d", snap.Watermark)
	}
	if snap.Interim != "" {
		t.Errorf("expected interim cleared, got %q", snap.Interim)
	}
	if len(h.scheduler.delays) != 1 || h.scheduler.delays[0] != 100*time.Millisecond {
		t.Errorf("expected one 100ms restart, got %v", h.scheduler.delays)
	}

	h.fireRestart()

	if n := h.provider.startCount(); n != 2 {
		t.Fatalf("expected provider restarted, got %d starts", n)
	}
	snap = h.c.Snapshot()
	if snap.Finalized != "hello " || snap.Watermark != 1 {
		t.Errorf("restart must not touch the transcript, got %+v", snap)
	}
	if !strings.HasSuffix(snap.SegmentID, "-seg-2") {
		t.Errorf("expected second segment, got %q", snap.SegmentID)
	}

	// The new run numbers its results from zero.
	h.emit(func(cb stt.Callback) { cb.OnStarted() })
	h.emit(func(cb stt.Callback) { cb.OnBatch(batchOf(final("world", 0.9))) })
	if got := h.c.Snapshot().Text; got != "hello world " {
		t.Errorf("expected 'hello world ', got %q", got)
	}
}

func TestController_StopScenario(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.start(t)
	h.emit(func(cb stt.Callback) { cb.OnBatch(batchOf(final("hello", 0.8), interim("wor"))) })

	if err := h.c.Handle(StopRequested{}); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if !h.c.suppress {
		t.Error("expected suppression flag set")
	}
	if st := h.c.Snapshot().State; st != StateStopping {
		t.Errorf("expected StateStopping, got %v", st)
	}
	if n := h.provider.stopCount(); n != 1 {
		t.Errorf("expected one provider stop, got %d", n)
	}

	h.emit(func(cb stt.Callback) { cb.OnEnd() })

	snap := h.c.Snapshot()
	if snap.State != StateIdle {
		t.Errorf("expected StateIdle, got %v", snap.State)
	}
	if len(h.scheduler.timers) != 0 {
		t.Error("expected no restart after explicit stop")
	}
	if snap.Finalized != "hello wor" {
		t.Errorf("expected interim folded into 'hello wor', got %q", snap.Finalized)
	}
	if snap.Interim != "" {
		t.Errorf("expected empty interim while idle, got %q", snap.Interim)
	}
	if h.c.suppress {
		t.Error("expected suppression flag cleared")
	}
	if s := h.presenter.lastStatus(); s.message != StatusReady {
		t.Errorf("expected Ready, got %+v", s)
	}
}

func TestController_StopWithSynchronousTermination(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.provider.terminateOnStop = true
	h.start(t)

	if err := h.c.Handle(StopRequested{}); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	if st := h.c.Snapshot().State; st != StateIdle {
		t.Errorf("expected StateIdle, got %v", st)
	}
	if len(h.scheduler.timers) != 0 {
		t.Error("termination inside Stop must not schedule a restart")
	}
	if n := h.provider.startCount(); n != 1 {
		t.Errorf("expected no restart, got %d starts", n)
	}
}

func TestController_RestartCancelledByStop(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.start(t)
	h.emit(func(cb stt.Callback) { cb.OnEnd() })

	if len(h.scheduler.timers) != 1 {
		t.Fatalf("expected restart scheduled, got %d timers", len(h.scheduler.timers))
	}

	if err := h.c.Handle(StopRequested{}); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if st := h.c.Snapshot().State; st != StateIdle {
		t.Errorf("expected StateIdle, got %v", st)
	}
	if !h.scheduler.timers[0].stopped {
		t.Error("expected restart timer stopped")
	}
	if n := h.provider.stopCount(); n != 0 {
		t.Errorf("provider already ended, expected no stop command, got %d", n)
	}

	// A timer that raced the stop must still not start the provider.
	h.fireRestart()
	if n := h.provider.startCount(); n != 1 {
		t.Errorf("expected provider start not reissued, got %d starts", n)
	}
	if st := h.c.Snapshot().State; st != StateIdle {
		t.Errorf("expected StateIdle, got %v", st)
	}
}

func TestController_RestartFailure(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.start(t)
	h.emit(func(cb stt.Callback) { cb.OnEnd() })

	h.provider.startErr = errors.New("gone")
	h.fireRestart()

	if st := h.c.Snapshot().State; st != StateIdle {
		t.Errorf("expected StateIdle after failed restart, got %v", st)
	}
	if s := h.presenter.lastStatus(); s.message != StatusStartFailed || !s.isError {
		t.Errorf("expected start failure status, got %+v", s)
	}
}

func TestController_Clear(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.start(t)
	h.emit(func(cb stt.Callback) { cb.OnBatch(batchOf(final("hello", 0.8))) })

	if err := h.c.Handle(ClearRequested{}); err != nil {
		t.Fatalf("clear failed: %v", err)
	}

	snap := h.c.Snapshot()
	if snap.Finalized != "" || snap.Interim != "" || snap.Watermark != 0 {
		t.Errorf("expected empty transcript, got %+v", snap)
	}
	if snap.HasConfidence {
		t.Error("expected confidence absent")
	}
	if h.presenter.lastConfidence() != -1 {
		t.Errorf("expected presenter told confidence is absent, got %d", h.presenter.lastConfidence())
	}
	if snap.State != StateListening {
		t.Errorf("clear must not change state, got %v", snap.State)
	}
}

func TestController_ClearWhileIdle(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	if err := h.c.Handle(ClearRequested{}); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if st := h.c.Snapshot().State; st != StateIdle {
		t.Errorf("expected StateIdle, got %v", st)
	}
}

func TestController_ProviderError(t *testing.T) {
	tests := []struct {
		code    string
		kind    stt.ErrorKind
		message string
	}{
		{"no-speech", stt.KindNoSpeech, "Speech recognition error: no speech was detected"},
		{"audio-capture", stt.KindMicrophoneUnavailable, "Speech recognition error: microphone is not available"},
		{"not-allowed", stt.KindPermissionDenied, "Speech recognition error: microphone use is not allowed"},
		{"network", stt.KindNetwork, "Speech recognition error: a network error occurred"},
		{"aborted", stt.KindOther, "Speech recognition error: aborted"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			h := newHarness(t, DefaultConfig())
			h.start(t)
			h.emit(func(cb stt.Callback) { cb.OnBatch(batchOf(interim("pend"))) })

			h.emit(func(cb stt.Callback) { cb.OnError(stt.NewProviderError(tt.code, nil)) })

			snap := h.c.Snapshot()
			if snap.State != StateIdle {
				t.Errorf("expected StateIdle, got %v", snap.State)
			}
			if s := h.presenter.lastStatus(); s.message != tt.message || !s.isError {
				t.Errorf("expected error status %q, got %+v", tt.message, s)
			}
			if len(h.scheduler.timers) != 0 {
				t.Error("errors must not auto-restart")
			}
			if n := h.provider.stopCount(); n != 1 {
				t.Errorf("expected implicit stop, got %d stops", n)
			}
			if snap.Finalized != "pend" || snap.Interim != "" {
				t.Errorf("expected interim folded, got %+v", snap)
			}

			// A trailing end from the failed run is stale.
			h.emit(func(cb stt.Callback) { cb.OnEnd() })
			if len(h.scheduler.timers) != 0 {
				t.Error("stale end must not schedule a restart")
			}
		})
	}
}

func TestController_StaleEventsDropped(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.start(t)
	old := h.provider.current()

	h.emit(func(cb stt.Callback) { cb.OnEnd() })
	h.fireRestart()
	h.emit(func(cb stt.Callback) { cb.OnStarted() })

	old.OnBatch(batchOf(final("ghost", 1)))
	old.OnEnd()
	h.c.processQueued()

	snap := h.c.Snapshot()
	if snap.Finalized != "" {
		t.Errorf("expected stale batch ignored, got %q", snap.Finalized)
	}
	if len(h.scheduler.timers) != 1 {
		t.Errorf("expected stale end ignored, got %d timers", len(h.scheduler.timers))
	}
}

func TestController_BatchWhileStopping(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.start(t)
	h.c.Handle(StopRequested{})

	h.emit(func(cb stt.Callback) { cb.OnBatch(batchOf(final("late", 0.5))) })
	if got := h.c.Snapshot().Finalized; got != "late " {
		t.Errorf("expected results while stopping to be kept, got %q", got)
	}
}

func TestController_InvalidBatch(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.start(t)
	seg := h.c.Snapshot().SegmentID

	err := h.c.Handle(BatchReceived{Segment: seg, Batch: batchOf(stt.Hypothesis{IsFinal: true})})
	if !errors.Is(err, transcript.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if st := h.c.Snapshot().State; st != StateListening {
		t.Errorf("invalid batch must not end the session, got %v", st)
	}
}

func TestController_SetLanguage(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	if err := h.c.Handle(LanguageChanged{Tag: "ja-JP"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h.start(t)

	if err := h.c.Handle(LanguageChanged{Tag: "fr"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := h.provider.startCount(); n != 1 {
		t.Errorf("language change must not restart an active run, got %d starts", n)
	}
	if n := h.provider.stopCount(); n != 0 {
		t.Errorf("language change must not stop an active run, got %d stops", n)
	}

	h.emit(func(cb stt.Callback) { cb.OnEnd() })
	h.fireRestart()

	want := []string{"ja-JP", "fr"}
	got := h.provider.languages
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("expected languages %v, got %v", want, got)
	}
}

func TestController_SetLanguageInvalid(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	for _, tag := range []string{"", "not a tag!"} {
		if err := h.c.Handle(LanguageChanged{Tag: tag}); !errors.Is(err, ErrInvalidLanguage) {
			t.Errorf("tag %q: expected ErrInvalidLanguage, got %v", tag, err)
		}
	}
	if lang := h.c.Snapshot().Language; lang != "en-US" {
		t.Errorf("expected language unchanged, got %s", lang)
	}
}

func TestController_ManualRestartKeepsTranscript(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.start(t)
	h.emit(func(cb stt.Callback) { cb.OnBatch(batchOf(final("hello", 0.8))) })
	h.c.Handle(StopRequested{})
	h.emit(func(cb stt.Callback) { cb.OnEnd() })

	first := h.c.Snapshot().SessionID
	h.start(t)

	snap := h.c.Snapshot()
	if snap.Finalized != "hello " {
		t.Errorf("expected finalized kept, got %q", snap.Finalized)
	}
	if snap.Watermark != 0 {
		t.Errorf("expected watermark reset, got %d", snap.Watermark)
	}
	if snap.SessionID == first {
		t.Error("expected a new session id")
	}
}

func TestController_ResetOnStart(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ResetOnStart = true
	h := newHarness(t, cfg)
	h.start(t)
	h.emit(func(cb stt.Callback) { cb.OnBatch(batchOf(final("hello", 0.8))) })
	h.c.Handle(StopRequested{})
	h.emit(func(cb stt.Callback) { cb.OnEnd() })

	h.start(t)
	if got := h.c.Snapshot().Text; got != "" {
		t.Errorf("expected transcript reset, got %q", got)
	}
}

func TestController_ResetOnStartRejected(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ResetOnStart = true
	h := newHarness(t, cfg)
	h.start(t)
	h.emit(func(cb stt.Callback) { cb.OnBatch(batchOf(final("hello", 0.8))) })
	h.c.Handle(StopRequested{})
	h.emit(func(cb stt.Callback) { cb.OnEnd() })
	before := h.c.Snapshot()

	h.provider.startErr = errors.New("rejected")
	if err := h.c.Handle(StartRequested{}); !errors.Is(err, ErrProviderStartFailed) {
		t.Fatalf("expected ErrProviderStartFailed, got %v", err)
	}

	snap := h.c.Snapshot()
	if snap.State != StateIdle {
		t.Errorf("expected StateIdle, got %v", snap.State)
	}
	if snap.Finalized != "hello " {
		t.Errorf("expected transcript kept after rejected start, got %q", snap.Finalized)
	}
	if snap.SessionID != before.SessionID {
		t.Errorf("expected session id %q kept, got %q", before.SessionID, snap.SessionID)
	}
	if snap.Segments != before.Segments {
		t.Errorf("expected %d segments, got %d", before.Segments, snap.Segments)
	}

	// The next accepted start still resets.
	h.provider.startErr = nil
	h.start(t)
	if got := h.c.Snapshot().Text; got != "" {
		t.Errorf("expected transcript reset, got %q", got)
	}
}

func TestController_ShutdownProcessesLateTermination(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.start(t)
	h.emit(func(cb stt.Callback) { cb.OnBatch(batchOf(interim("bye"))) })

	// Run is not running: nothing else drains the queue.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- h.c.Shutdown(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for h.provider.stopCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("provider was not stopped")
		}
		time.Sleep(time.Millisecond)
	}
	h.provider.current().OnEnd()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not return")
	}

	snap := h.c.Snapshot()
	if snap.State != StateIdle {
		t.Errorf("expected StateIdle, got %v", snap.State)
	}
	if snap.Finalized != "bye" {
		t.Errorf("expected interim folded on shutdown, got %q", snap.Finalized)
	}
	if len(h.scheduler.timers) != 0 {
		t.Error("shutdown must not schedule a restart")
	}
}

func TestController_ShutdownTimeout(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.start(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := h.c.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
	if st := h.c.Snapshot().State; st != StateStopping {
		t.Errorf("expected StateStopping while the provider is still running, got %v", st)
	}
}

func TestController_ShutdownWhenIdle(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	if err := h.c.Shutdown(context.Background()); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestController_StopWhenIdle(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	if err := h.c.Handle(StopRequested{}); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if n := h.provider.stopCount(); n != 0 {
		t.Errorf("expected no provider stop, got %d", n)
	}
}

func TestController_StopFailure(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.provider.stopErr = errors.New("already gone")
	h.start(t)

	h.c.Handle(StopRequested{})
	if st := h.c.Snapshot().State; st != StateIdle {
		t.Errorf("expected StateIdle when provider cannot stop, got %v", st)
	}
}

func TestController_SnapshotObserver(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.start(t)
	h.emit(func(cb stt.Callback) { cb.OnBatch(batchOf(interim("hi"))) })

	if len(h.presenter.snapshots) == 0 {
		t.Fatal("expected snapshots")
	}
	last := h.presenter.snapshots[len(h.presenter.snapshots)-1]
	if last.Text != "hi" || last.State != StateListening {
		t.Errorf("unexpected snapshot %+v", last)
	}
}

func TestController_IntentHelpers(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	if err := h.c.SetLanguage(ctx, "de-DE"); err != nil {
		t.Fatalf("SetLanguage failed: %v", err)
	}
	if err := h.c.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := h.c.Start(ctx); !errors.Is(err, ErrAlreadyActive) {
		t.Errorf("expected ErrAlreadyActive, got %v", err)
	}
	if err := h.c.Clear(ctx); err != nil {
		t.Errorf("Clear failed: %v", err)
	}
	if err := h.c.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if st := h.c.Snapshot().State; st != StateStopping {
		t.Errorf("expected StateStopping, got %v", st)
	}
}

func TestController_UnknownEvent(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	if err := h.c.Handle(nil); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("expected ErrUnknownEvent, got %v", err)
	}
}

func TestController_RunWithRealScheduler(t *testing.T) {
	provider := &fakeProvider{}
	cfg := DefaultConfig()
	cfg.RestartDelay = 5 * time.Millisecond
	c := New(provider, nil, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	provider.current().OnEnd()

	deadline := time.Now().Add(2 * time.Second)
	for provider.startCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for auto-restart")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
