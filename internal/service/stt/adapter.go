// Package stt defines the contract between recognition providers and the
// transcript session controller.
package stt

import (
	"context"
	"errors"
)

// ErrNoActiveRun is returned by AudioSink methods when no run accepts audio.
var ErrNoActiveRun = errors.New("no active recognition run")

// Candidate is one alternative text for a recognized unit of speech.
type Candidate struct {
	Text          string
	Confidence    float64
	HasConfidence bool
}

// Hypothesis is one recognized unit of speech with its alternatives,
// ordered as the provider ranked them.
type Hypothesis struct {
	Candidates []Candidate
	IsFinal    bool
}

// Batch is the cumulative list of hypotheses for the current provider run.
// Indices are stable: a later batch continues an earlier one and never
// renumbers it until the provider run ends.
type Batch struct {
	Hypotheses []Hypothesis
}

// Len returns the number of hypotheses in the batch.
func (b Batch) Len() int {
	return len(b.Hypotheses)
}

// Callback receives the events of a single provider run.
//
// A run reports OnStarted once, then zero or more OnBatch calls, then
// exactly one of OnEnd or OnError.
type Callback interface {
	// OnStarted is called when the provider begins listening.
	OnStarted()

	// OnBatch is called with the cumulative results of the run.
	OnBatch(batch Batch)

	// OnEnd is called when the run terminates, requested or not.
	OnEnd()

	// OnError is called when the run fails. No OnEnd follows.
	OnError(err *ProviderError)
}

// Provider defines the interface for recognition backends (Google, mock, ...).
type Provider interface {
	// Start begins a recognition run. A returned error means the provider
	// rejected the command and no callback will fire.
	Start(ctx context.Context, language string, cb Callback) error

	// Stop requests termination of the current run. Completion is signaled
	// through Callback.OnEnd, possibly before Stop returns.
	Stop() error
}

// AudioSink is implemented by providers that consume raw audio.
type AudioSink interface {
	// SendAudio forwards audio bytes to the active run.
	SendAudio(ctx context.Context, audio []byte) error

	// EndStream gracefully ends the active run without marking it as
	// user-requested. The run terminates through Callback.OnEnd.
	EndStream() error
}
