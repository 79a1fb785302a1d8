package presenter

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/atotto/clipboard"
	"github.com/rs/zerolog"

	"speech-transcript-service/internal/observability/logging"
	"speech-transcript-service/internal/service/session"
)

// Clipboard copies the transcript to the system clipboard when a session
// ends. Failures are logged and never reach the session.
type Clipboard struct {
	session.NopPresenter

	write  func(string) error
	logger zerolog.Logger
	worker *worker

	mu      sync.Mutex
	tracker tracker
}

// ErrClipboardUnsupported is returned when the platform has no clipboard
// utility.
var ErrClipboardUnsupported = errors.New("clipboard not supported on this platform")

// NewClipboard returns a presenter writing to the system clipboard.
func NewClipboard() (*Clipboard, error) {
	if clipboard.Unsupported {
		return nil, ErrClipboardUnsupported
	}
	return newClipboard(clipboard.WriteAll, logging.WithComponent("clipboard")), nil
}

func newClipboard(write func(string) error, logger zerolog.Logger) *Clipboard {
	return &Clipboard{
		write:  write,
		logger: logger,
		worker: newWorker(4, logger),
	}
}

func (c *Clipboard) OnSnapshot(s session.Snapshot) {
	c.mu.Lock()
	ch := c.tracker.observe(s)
	c.mu.Unlock()

	if !ch.ended {
		return
	}
	text := strings.TrimSpace(s.Text)
	if text == "" {
		return
	}
	sessionID := s.SessionID
	c.worker.submit(func(context.Context) {
		if err := c.write(text); err != nil {
			c.logger.Warn().Err(err).Str("sessionId", sessionID).Msg("Failed to copy transcript")
			return
		}
		c.logger.Info().
			Str("sessionId", sessionID).
			Int("length", len(text)).
			Msg("Transcript copied to clipboard")
	})
}

// Close waits for a pending copy.
func (c *Clipboard) Close() {
	c.worker.close()
}
