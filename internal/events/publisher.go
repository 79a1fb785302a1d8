// Package events publishes transcript events to external buses.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"speech-transcript-service/internal/observability/logging"
	"speech-transcript-service/internal/observability/metrics"
)

// Event type labels used in headers and metrics.
const (
	TypePartial      = "partial"
	TypeFinal        = "final"
	TypeSessionEnded = "session_ended"
)

// Publisher publishes transcript events to separate Kafka topics.
// Session-ended events share the final topic.
type Publisher struct {
	writerPartial *kafka.Writer
	writerFinal   *kafka.Writer
	principal     string
	topicPartial  string
	topicFinal    string
	enabled       bool
	metrics       *metrics.Metrics
	logger        zerolog.Logger
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers      []string
	TopicPartial string
	TopicFinal   string
	Principal    string
	Enabled      bool
}

// New creates a new Kafka event publisher with separate topics for partial and final transcripts.
func New(cfg *Config) *Publisher {
	p := &Publisher{
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithComponent("kafka-publisher"),
	}

	// Handle nil config case
	if cfg == nil {
		p.logger.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return p
	}

	p.principal = cfg.Principal
	p.topicPartial = cfg.TopicPartial
	p.topicFinal = cfg.TopicFinal

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		p.logger.Info().Msg("Kafka disabled, using log-only mode")
		return p
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	p.writerPartial = newWriter(cfg.Brokers, cfg.TopicPartial, transport)
	p.writerFinal = newWriter(cfg.Brokers, cfg.TopicFinal, transport)
	p.enabled = true

	p.logger.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicPartial", cfg.TopicPartial).
		Str("topicFinal", cfg.TopicFinal).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return p
}

func newWriter(brokers []string, topic string, transport *kafka.Transport) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // keyed by session id, keeps a session on one partition
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}
}

// PublishPartial publishes a partial transcript event to the partial topic.
func (p *Publisher) PublishPartial(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerPartial, p.topicPartial, TypePartial, key, event)
}

// PublishFinal publishes a final transcript event to the final topic.
func (p *Publisher) PublishFinal(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerFinal, p.topicFinal, TypeFinal, key, event)
}

// PublishSessionEnded publishes a session summary to the final topic.
func (p *Publisher) PublishSessionEnded(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerFinal, p.topicFinal, TypeSessionEnded, key, event)
}

// publish writes one event to a specific Kafka writer.
func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	p.logger.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("eventType", eventType).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	// If Kafka is disabled, just log
	if !p.enabled || writer == nil {
		p.metrics.RecordPublish("kafka", topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordPublish("kafka", topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordPublish("kafka", topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerPartial != nil {
		if e := p.writerPartial.Close(); e != nil {
			p.logger.Error().Err(e).Msg("Error closing partial writer")
			err = e
		}
	}
	if p.writerFinal != nil {
		if e := p.writerFinal.Close(); e != nil {
			p.logger.Error().Err(e).Msg("Error closing final writer")
			err = e
		}
	}
	return err
}
