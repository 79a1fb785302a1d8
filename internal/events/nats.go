package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"speech-transcript-service/internal/observability/logging"
	"speech-transcript-service/internal/observability/metrics"
)

// NATSConfig holds NATS publisher configuration.
type NATSConfig struct {
	URL            string
	SubjectPrefix  string
	Principal      string
	ConnectTimeout time.Duration
	Enabled        bool
}

// NATSPublisher publishes transcript events as NATS messages on
// <prefix>.partial, <prefix>.final and <prefix>.session.
type NATSPublisher struct {
	conn      *nats.Conn
	prefix    string
	principal string
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// NewNATS connects to NATS. A disabled config yields a log-only publisher.
func NewNATS(cfg *NATSConfig) (*NATSPublisher, error) {
	p := &NATSPublisher{
		prefix:  "transcripts",
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithComponent("nats-publisher"),
	}
	if cfg == nil || !cfg.Enabled || cfg.URL == "" {
		p.logger.Info().Msg("NATS disabled, using log-only mode")
		return p, nil
	}
	if cfg.SubjectPrefix != "" {
		p.prefix = cfg.SubjectPrefix
	}
	p.principal = cfg.Principal

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Principal),
		nats.Timeout(timeout),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			p.logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			p.logger.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	p.conn = conn

	p.logger.Info().
		Str("url", cfg.URL).
		Str("subjectPrefix", p.prefix).
		Msg("NATS publisher initialized")
	return p, nil
}

// PublishPartial publishes a partial transcript event.
func (p *NATSPublisher) PublishPartial(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.prefix+".partial", TypePartial, key, event)
}

// PublishFinal publishes a final transcript event.
func (p *NATSPublisher) PublishFinal(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.prefix+".final", TypeFinal, key, event)
}

// PublishSessionEnded publishes a session summary.
func (p *NATSPublisher) PublishSessionEnded(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.prefix+".session", TypeSessionEnded, key, event)
}

func (p *NATSPublisher) publish(ctx context.Context, subject, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error().Err(err).Str("subject", subject).Msg("Failed to marshal event")
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.logger.Debug().
		Str("subject", subject).
		Str("eventType", eventType).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	if p.conn == nil {
		p.metrics.RecordPublish("nats", subject, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    payload,
		Header:  nats.Header{},
	}
	msg.Header.Set("eventType", eventType)
	msg.Header.Set("key", key)
	msg.Header.Set("principal", p.principal)

	err = p.conn.PublishMsg(msg)
	if err != nil {
		p.logger.Error().
			Err(err).
			Str("subject", subject).
			Str("key", key).
			Msg("Failed to publish to NATS")
	}
	p.metrics.RecordPublish("nats", subject, eventType, err, time.Since(start).Seconds())
	return err
}

// Healthy reports whether the connection is up. Log-only publishers are
// always healthy.
func (p *NATSPublisher) Healthy() bool {
	return p.conn == nil || p.conn.Status() == nats.CONNECTED
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p.conn == nil {
		return nil
	}
	p.logger.Info().Msg("Closing NATS connection")
	err := p.conn.Drain()
	if err != nil {
		p.conn.Close()
	}
	return err
}
