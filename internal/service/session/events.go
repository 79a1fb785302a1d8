package session

import "speech-transcript-service/internal/service/stt"

// Event is anything the controller reacts to: user intents and provider
// callbacks. Events are processed one at a time, in arrival order.
type Event interface {
	event()
}

// StartRequested asks for a new session from Idle.
type StartRequested struct{}

// StopRequested asks to end the session.
type StopRequested struct{}

// ClearRequested empties the transcript without touching the session state.
type ClearRequested struct{}

// LanguageChanged sets the BCP-47 tag used by the next provider start.
type LanguageChanged struct {
	Tag string
}

// ProviderStarted reports that the provider run Segment began listening.
type ProviderStarted struct {
	Segment string
}

// BatchReceived carries the cumulative results of provider run Segment.
type BatchReceived struct {
	Segment string
	Batch   stt.Batch
}

// ProviderTerminated reports that provider run Segment ended.
type ProviderTerminated struct {
	Segment string
}

// ProviderFailed reports that provider run Segment failed.
type ProviderFailed struct {
	Segment string
	Err     *stt.ProviderError
}

// restartDue fires when the restart delay of generation gen elapses.
type restartDue struct {
	gen uint64
}

// request wraps an intent whose result is awaited by the caller.
type request struct {
	ev    Event
	reply chan error
}

func (StartRequested) event() {}
func (StopRequested) event() {}
func (ClearRequested) event() {}
func (LanguageChanged) event() {}
func (ProviderStarted) event() {}
func (BatchReceived) event() {}
func (ProviderTerminated) event() {}
func (ProviderFailed) event() {}
func (restartDue) event() {}
func (*request) event() {}

// runCallback adapts provider callbacks of one run into controller events.
type runCallback struct {
	c       *Controller
	segment string
}

func (r *runCallback) OnStarted() {
	r.c.Post(ProviderStarted{Segment: r.segment})
}

func (r *runCallback) OnBatch(batch stt.Batch) {
	r.c.Post(BatchReceived{Segment: r.segment, Batch: batch})
}

func (r *runCallback) OnEnd() {
	r.c.Post(ProviderTerminated{Segment: r.segment})
}

func (r *runCallback) OnError(err *stt.ProviderError) {
	r.c.Post(ProviderFailed{Segment: r.segment, Err: err})
}
