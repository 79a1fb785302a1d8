package presenter

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"speech-transcript-service/internal/models"
	"speech-transcript-service/internal/observability/logging"
	"speech-transcript-service/internal/service/session"
)

// TranscriptPublisher ships transcript events to a bus.
type TranscriptPublisher interface {
	PublishPartial(ctx context.Context, key string, event any) error
	PublishFinal(ctx context.Context, key string, event any) error
	PublishSessionEnded(ctx context.Context, key string, event any) error
}

// EventValidator checks an event before it is published.
type EventValidator interface {
	Validate(event any) error
}

// Publisher turns session snapshots into transcript events:
//   - final when finalized text grew,
//   - partial when only the display text changed,
//   - session ended when the session went idle.
//
// Events are keyed by session id and published in order off the dispatcher.
type Publisher struct {
	session.NopPresenter

	pubs      []TranscriptPublisher
	validator EventValidator
	logger    zerolog.Logger
	worker    *worker
	now       func() time.Time

	mu      sync.Mutex
	tracker tracker
}

// NewPublisher publishes to every pub. validator may be nil.
func NewPublisher(validator EventValidator, pubs ...TranscriptPublisher) *Publisher {
	logger := logging.WithComponent("event-presenter")
	return &Publisher{
		pubs:      pubs,
		validator: validator,
		logger:    logger,
		worker:    newWorker(defaultQueueSize, logger),
		now:       time.Now,
	}
}

func (p *Publisher) OnSnapshot(s session.Snapshot) {
	p.mu.Lock()
	c := p.tracker.observe(s)
	p.mu.Unlock()

	if s.SessionID == "" {
		return
	}
	ts := p.now().UnixMilli()

	if !c.newSession {
		switch {
		case len(s.Finalized) > len(c.prev.Finalized) && strings.HasPrefix(s.Finalized, c.prev.Finalized):
			ev := models.TranscriptFinal{
				EventType:  models.EventTypeFinal,
				SessionID:  s.SessionID,
				SegmentID:  c.segment,
				Timestamp:  ts,
				Language:   s.Language,
				Text:       s.Finalized,
				Appended:   strings.TrimSpace(s.Finalized[len(c.prev.Finalized):]),
				Confidence: confidence(s),
			}
			p.enqueue(models.EventTypeFinal, s.SessionID, ev, TranscriptPublisher.PublishFinal)
			if s.Interim != "" {
				p.enqueuePartial(s, c.segment, ts)
			}
		case s.Text != c.prev.Text:
			p.enqueuePartial(s, c.segment, ts)
		}
	}

	if c.ended {
		var dur int64
		if !s.StartedAt.IsZero() {
			dur = s.UpdatedAt.Sub(s.StartedAt).Milliseconds()
		}
		ev := models.SessionEnded{
			EventType:  models.EventTypeSessionEnded,
			SessionID:  s.SessionID,
			Timestamp:  ts,
			Language:   s.Language,
			Text:       s.Text,
			Segments:   s.Segments,
			DurationMs: dur,
			Confidence: confidence(s),
		}
		p.enqueue(models.EventTypeSessionEnded, s.SessionID, ev, TranscriptPublisher.PublishSessionEnded)
	}
}

func (p *Publisher) enqueuePartial(s session.Snapshot, segment string, ts int64) {
	// Partials need a run to attribute them to.
	if segment == "" {
		return
	}
	ev := models.TranscriptPartial{
		EventType: models.EventTypePartial,
		SessionID: s.SessionID,
		SegmentID: segment,
		Timestamp: ts,
		Language:  s.Language,
		Text:      s.Text,
		Interim:   s.Interim,
	}
	p.enqueue(models.EventTypePartial, s.SessionID, ev, TranscriptPublisher.PublishPartial)
}

type publishFunc func(TranscriptPublisher, context.Context, string, any) error

func (p *Publisher) enqueue(eventType, key string, ev any, publish publishFunc) {
	if p.validator != nil {
		if err := p.validator.Validate(ev); err != nil {
			p.logger.Error().Err(err).Str("eventType", eventType).Msg("Event failed validation, not published")
			return
		}
	}
	p.worker.submit(func(ctx context.Context) {
		for _, pub := range p.pubs {
			if err := publish(pub, ctx, key, ev); err != nil {
				p.logger.Error().
					Err(err).
					Str("eventType", eventType).
					Str("sessionId", key).
					Msg("Failed to publish event")
			}
		}
	})
}

// Close waits for queued events to be published.
func (p *Publisher) Close() {
	p.worker.close()
}

func confidence(s session.Snapshot) *float64 {
	if !s.HasConfidence {
		return nil
	}
	v := s.Confidence
	return &v
}
