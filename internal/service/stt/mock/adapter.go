// Package mock provides a mock recognition provider for running without cloud
// credentials. It behaves like a browser recognizer: results arrive as
// cumulative batches, every final carries three ranked alternatives, and the
// run ends on its own after a pause.
package mock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"speech-transcript-service/internal/observability/logging"
	"speech-transcript-service/internal/service/stt"

	"github.com/rs/zerolog"
)

// MaxAlternatives is the number of candidates attached to every final.
const MaxAlternatives = 3

// ErrAlreadyRunning is returned by Start while a run is active.
var ErrAlreadyRunning = errors.New("mock provider already running")

// SimulatedUtterance represents a mock utterance with progressive transcripts.
type SimulatedUtterance struct {
	Partials   []string // Progressive interim transcripts
	Final      string   // Final transcript text
	Confidence float64  // Confidence of the best alternative
}

// DefaultUtterances provides sample utterances for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials:   []string{"the", "the quick", "the quick brown"},
		Final:      "the quick brown fox",
		Confidence: 0.94,
	},
	{
		Partials:   []string{"jumps", "jumps over"},
		Final:      "jumps over the lazy dog",
		Confidence: 0.88,
	},
	{
		Partials:   []string{"please", "please take", "please take a note"},
		Final:      "please take a note for tomorrow",
		Confidence: 0.91,
	},
	{
		Partials:   []string{"call", "call me"},
		Final:      "call me after lunch",
		Confidence: 0.79,
	},
	{
		Partials:   []string{"thank you"},
		Final:      "thank you very much",
		Confidence: 0.97,
	},
}

// Config controls the simulation.
type Config struct {
	// Utterances are spoken in order, cycling across runs.
	Utterances []SimulatedUtterance
	// Step is the delay between batches. Zero means batches are only
	// produced by SendAudio, one per frame.
	Step time.Duration
	// PauseAfter ends the run on its own after this many finals, the way
	// a browser recognizer stops after a pause. Zero never pauses.
	PauseAfter int
}

// DefaultConfig returns a configuration that speaks continuously and pauses
// after every two utterances.
func DefaultConfig() Config {
	return Config{
		Utterances: DefaultUtterances,
		Step:       300 * time.Millisecond,
		PauseAfter: 2,
	}
}

// run is one recognition run.
type run struct {
	stop     chan struct{}
	stopOnce sync.Once
	advance  chan struct{}
	fail     chan string
	done     chan struct{}
}

func (r *run) requestStop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// Provider implements stt.Provider and stt.AudioSink with scripted results.
type Provider struct {
	cfg    Config
	logger zerolog.Logger

	mu       sync.Mutex
	current  *run
	next     int    // index of the next utterance to speak
	language string // language of the current or last run
	runs     int
}

// New creates a mock provider.
func New(cfg Config) *Provider {
	if len(cfg.Utterances) == 0 {
		cfg.Utterances = DefaultUtterances
	}
	return &Provider{
		cfg:    cfg,
		logger: logging.WithComponent("stt-mock"),
	}
}

// Start begins a run. Events are delivered from a separate goroutine.
func (p *Provider) Start(ctx context.Context, language string, cb stt.Callback) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil {
		return ErrAlreadyRunning
	}

	r := &run{
		stop:    make(chan struct{}),
		advance: make(chan struct{}, 16),
		fail:    make(chan string, 1),
		done:    make(chan struct{}),
	}
	p.current = r
	p.language = language
	p.runs++

	p.logger.Debug().
		Str("language", language).
		Int("run", p.runs).
		Msg("Mock recognition run starting")

	go p.loop(ctx, r, cb)
	return nil
}

// Stop ends the current run. OnEnd follows asynchronously.
func (p *Provider) Stop() error {
	p.mu.Lock()
	r := p.current
	p.mu.Unlock()

	if r != nil {
		r.requestStop()
	}
	return nil
}

// SendAudio advances the simulation by one step.
func (p *Provider) SendAudio(ctx context.Context, audio []byte) error {
	p.mu.Lock()
	r := p.current
	p.mu.Unlock()

	if r == nil {
		return stt.ErrNoActiveRun
	}
	select {
	case r.advance <- struct{}{}:
	default:
	}
	return nil
}

// EndStream ends the current run as if the recognizer paused.
func (p *Provider) EndStream() error {
	return p.Stop()
}

// Fail makes the current run report a provider error with the given code.
func (p *Provider) Fail(code string) {
	p.mu.Lock()
	r := p.current
	p.mu.Unlock()

	if r == nil {
		return
	}
	select {
	case r.fail <- code:
	default:
	}
}

// Language returns the language of the current or last run.
func (p *Provider) Language() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.language
}

// Runs returns how many runs were started.
func (p *Provider) Runs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runs
}

// Wait blocks until the current run, if any, has delivered its last event.
func (p *Provider) Wait() {
	p.mu.Lock()
	r := p.current
	p.mu.Unlock()

	if r != nil {
		<-r.done
	}
}

func (p *Provider) loop(ctx context.Context, r *run, cb stt.Callback) {
	defer close(r.done)

	cb.OnStarted()

	var tick <-chan time.Time
	if p.cfg.Step > 0 {
		ticker := time.NewTicker(p.cfg.Step)
		defer ticker.Stop()
		tick = ticker.C
	}

	var (
		finals    []stt.Hypothesis
		utt       SimulatedUtterance
		partial   int
		speaking  bool
		completed int
	)

	for {
		select {
		case <-ctx.Done():
			p.finish(r)
			cb.OnEnd()
			return
		case <-r.stop:
			p.finish(r)
			cb.OnEnd()
			return
		case code := <-r.fail:
			p.finish(r)
			cb.OnError(stt.NewProviderError(code, nil))
			return
		case <-tick:
		case <-r.advance:
		}

		if !speaking {
			utt = p.nextUtterance()
			partial = 0
			speaking = true
		}

		if partial < len(utt.Partials) {
			hs := make([]stt.Hypothesis, 0, len(finals)+1)
			hs = append(hs, finals...)
			hs = append(hs, stt.Hypothesis{
				Candidates: []stt.Candidate{{Text: utt.Partials[partial]}},
			})
			partial++
			cb.OnBatch(stt.Batch{Hypotheses: hs})
			continue
		}

		finals = append(finals, stt.Hypothesis{Candidates: Alternatives(utt), IsFinal: true})
		speaking = false
		completed++
		cb.OnBatch(stt.Batch{Hypotheses: append([]stt.Hypothesis(nil), finals...)})

		if p.cfg.PauseAfter > 0 && completed >= p.cfg.PauseAfter {
			p.logger.Debug().
				Int("finals", completed).
				Msg("Mock recognizer paused, ending run")
			p.finish(r)
			cb.OnEnd()
			return
		}
	}
}

// finish detaches r so that a new run can start as soon as its end is
// reported.
func (p *Provider) finish(r *run) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == r {
		p.current = nil
	}
}

func (p *Provider) nextUtterance() SimulatedUtterance {
	p.mu.Lock()
	defer p.mu.Unlock()
	u := p.cfg.Utterances[p.next%len(p.cfg.Utterances)]
	p.next++
	return u
}

// Alternatives returns the ranked candidates for a final. The best
// candidate is deliberately not first so that selection by confidence
// matters.
func Alternatives(u SimulatedUtterance) []stt.Candidate {
	return []stt.Candidate{
		{Text: capitalize(u.Final), Confidence: clamp(u.Confidence - 0.12), HasConfidence: true},
		{Text: u.Final, Confidence: u.Confidence, HasConfidence: true},
		{Text: dropLastWord(u.Final), Confidence: clamp(u.Confidence - 0.3), HasConfidence: true},
	}[:MaxAlternatives]
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func dropLastWord(s string) string {
	if i := strings.LastIndex(s, " "); i > 0 {
		return s[:i]
	}
	return s
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
