package presenter

import (
	"context"
	"sync"

	"speech-transcript-service/internal/observability/logging"
	"speech-transcript-service/internal/service/session"
	"speech-transcript-service/internal/store"
)

// SessionStore persists finished sessions.
type SessionStore interface {
	Save(ctx context.Context, s store.Session) error
}

// Archive saves every finished session to a SessionStore.
type Archive struct {
	session.NopPresenter

	store  SessionStore
	worker *worker

	mu      sync.Mutex
	tracker tracker
}

// NewArchive returns a presenter that archives sessions as they end.
func NewArchive(s SessionStore) *Archive {
	return &Archive{
		store:  s,
		worker: newWorker(defaultQueueSize, logging.WithComponent("archive-presenter")),
	}
}

func (a *Archive) OnSnapshot(s session.Snapshot) {
	a.mu.Lock()
	ch := a.tracker.observe(s)
	a.mu.Unlock()

	if !ch.ended {
		return
	}
	rec := store.Session{
		ID:         s.SessionID,
		Language:   s.Language,
		Text:       s.Text,
		Confidence: confidence(s),
		Segments:   s.Segments,
		StartedAt:  s.StartedAt,
		EndedAt:    s.UpdatedAt,
	}
	a.worker.submit(func(ctx context.Context) {
		logger := logging.WithSession("archive-presenter", rec.ID)
		if err := a.store.Save(ctx, rec); err != nil {
			logger.Error().Err(err).Msg("Failed to archive session")
			return
		}
		logger.Debug().Int("segments", rec.Segments).Msg("Session archived")
	})
}

// Close waits for pending writes.
func (a *Archive) Close() {
	a.worker.close()
}
