package presenter

import (
	"github.com/rs/zerolog"

	"speech-transcript-service/internal/observability/logging"
)

// Logging writes presenter updates to the service log. Status lines are
// logged at info (warn for errors); transcript and confidence at debug.
type Logging struct {
	logger zerolog.Logger
}

func NewLogging() *Logging {
	return &Logging{logger: logging.WithComponent("presenter")}
}

func (l *Logging) OnTranscriptChanged(fullText string) {
	l.logger.Debug().
		Int("length", len(fullText)).
		Str("text", fullText).
		Msg("Transcript changed")
}

func (l *Logging) OnConfidenceChanged(percent int, ok bool) {
	if !ok {
		return
	}
	l.logger.Debug().Int("confidencePercent", percent).Msg("Confidence changed")
}

func (l *Logging) OnStatusChanged(message string, isError bool) {
	if isError {
		l.logger.Warn().Str("status", message).Msg("Status changed")
		return
	}
	l.logger.Info().Str("status", message).Msg("Status changed")
}
