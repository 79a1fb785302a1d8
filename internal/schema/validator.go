// Package schema validates outgoing transcript events before they are
// published.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"speech-transcript-service/internal/models"
	"speech-transcript-service/internal/observability/logging"
)

// ErrInvalidEvent is returned for events that do not match their schema.
var ErrInvalidEvent = errors.New("invalid event")

// Required fields per event type. Strings must be non-empty and numbers
// positive. Text fields are not listed: they may be empty after a clear.
var required = map[string][]string{
	models.EventTypePartial:      {"sessionId", "segmentId", "timestamp", "language"},
	models.EventTypeFinal:        {"sessionId", "segmentId", "timestamp", "language"},
	models.EventTypeSessionEnded: {"sessionId", "timestamp", "language"},
}

type Validator struct {
	logger zerolog.Logger
}

func New() *Validator {
	return &Validator{logger: logging.WithComponent("schema")}
}

// Validate checks event against the schema of its eventType.
func (v *Validator) Validate(event any) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("%w: not an object", ErrInvalidEvent)
	}

	eventType, _ := fields["eventType"].(string)
	keys, ok := required[eventType]
	if !ok {
		return fmt.Errorf("%w: unknown eventType %q", ErrInvalidEvent, eventType)
	}

	for _, k := range keys {
		val, present := fields[k]
		if !present {
			return fmt.Errorf("%w: %s missing %s", ErrInvalidEvent, eventType, k)
		}
		switch x := val.(type) {
		case string:
			if x == "" {
				return fmt.Errorf("%w: %s has empty %s", ErrInvalidEvent, eventType, k)
			}
		case float64:
			if x <= 0 {
				return fmt.Errorf("%w: %s has non-positive %s", ErrInvalidEvent, eventType, k)
			}
		}
	}

	if c, ok := fields["confidence"].(float64); ok && (c < 0 || c > 1) {
		return fmt.Errorf("%w: confidence %v out of range", ErrInvalidEvent, c)
	}

	v.logger.Debug().Str("eventType", eventType).RawJSON("event", raw).Msg("Schema validated")
	return nil
}
