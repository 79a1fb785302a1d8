package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"speech-transcript-service/internal/models"
	"speech-transcript-service/internal/observability/logging"
)

// ErrUnknownEventType is returned for payloads with an unrecognised eventType.
var ErrUnknownEventType = errors.New("unknown event type")

// ConsumerConfig configures a transcript topic reader.
type ConsumerConfig struct {
	Brokers []string
	Topic   string
	// Since rewinds the reader to messages newer than this age. Zero reads
	// from the latest offset.
	Since time.Duration
}

// Consumer reads transcript events from one Kafka topic. It reads
// partition 0 without a consumer group.
type Consumer struct {
	reader *kafka.Reader
	topic  string
	since  time.Duration
	logger zerolog.Logger
}

// NewConsumer creates a reader for cfg.Topic.
func NewConsumer(cfg ConsumerConfig) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       cfg.Topic,
			Partition:   0,
			MinBytes:    1,
			MaxBytes:    10e6,
			StartOffset: kafka.LastOffset,
		}),
		topic:  cfg.Topic,
		since:  cfg.Since,
		logger: logging.WithComponent("kafka-consumer").With().Str("topic", cfg.Topic).Logger(),
	}
}

// Run delivers decoded events to handle until ctx is done. Read errors are
// retried after a second; undecodable messages are skipped.
func (c *Consumer) Run(ctx context.Context, handle func(event any)) error {
	if c.since > 0 {
		if err := c.reader.SetOffsetAt(ctx, time.Now().Add(-c.since)); err != nil {
			c.logger.Warn().Err(err).Msg("Cannot rewind reader, reading from latest")
		}
	}
	c.logger.Info().Dur("since", c.since).Msg("Consuming transcript events")

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn().Err(err).Msg("Kafka read error")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		event, err := Decode(msg.Value)
		if err != nil {
			c.logger.Warn().Err(err).Int64("offset", msg.Offset).Msg("Skipping message")
			continue
		}
		c.logger.Debug().
			Str("key", string(msg.Key)).
			Int64("offset", msg.Offset).
			Msg("Received transcript event")
		handle(event)
	}
}

// Close closes the reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// Decode turns a published payload back into its models type.
func Decode(payload []byte) (any, error) {
	var head struct {
		EventType string `json:"eventType"`
	}
	if err := json.Unmarshal(payload, &head); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	var event any
	switch head.EventType {
	case models.EventTypePartial:
		event = &models.TranscriptPartial{}
	case models.EventTypeFinal:
		event = &models.TranscriptFinal{}
	case models.EventTypeSessionEnded:
		event = &models.SessionEnded{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, head.EventType)
	}
	if err := json.Unmarshal(payload, event); err != nil {
		return nil, fmt.Errorf("decode %s: %w", head.EventType, err)
	}
	return event, nil
}
