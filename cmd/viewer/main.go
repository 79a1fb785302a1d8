// Transcript viewer: consumes transcript topics from Kafka and pushes every
// event to WebSocket clients.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"speech-transcript-service/internal/events"
	"speech-transcript-service/internal/observability/logging"
	"speech-transcript-service/internal/presenter"
)

func main() {
	port := flag.String("port", "8081", "HTTP server port")
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topicPartial := flag.String("topic-partial", "transcripts.partial", "Partial transcript topic")
	topicFinal := flag.String("topic-final", "transcripts.final", "Final transcript topic")
	since := flag.Duration("since", time.Hour, "Replay events newer than this")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	lc := logging.DefaultConfig()
	lc.Level = *logLevel
	lc.Format = "console"
	logging.Init(lc)
	logger := logging.WithComponent("viewer")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hub := presenter.NewHub()
	go hub.Run(ctx)

	for _, topic := range []string{*topicPartial, *topicFinal} {
		c := events.NewConsumer(events.ConsumerConfig{
			Brokers: strings.Split(*brokers, ","),
			Topic:   topic,
			Since:   *since,
		})
		defer c.Close()
		go func() {
			_ = c.Run(ctx, hub.Broadcast)
		}()
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: ":" + *port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().
		Str("port", *port).
		Str("brokers", *brokers).
		Strs("topics", []string{*topicPartial, *topicFinal}).
		Msg("Transcript viewer starting")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("Server error")
	}
}
