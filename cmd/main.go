package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"speech-transcript-service/internal/app"
	"speech-transcript-service/internal/config"
	"speech-transcript-service/internal/events"
	httpapi "speech-transcript-service/internal/http"
	"speech-transcript-service/internal/observability"
	"speech-transcript-service/internal/observability/logging"
	"speech-transcript-service/internal/observability/metrics"
	"speech-transcript-service/internal/presenter"
	"speech-transcript-service/internal/schema"
	"speech-transcript-service/internal/service/audio"
	"speech-transcript-service/internal/service/session"
	"speech-transcript-service/internal/service/stt"
	"speech-transcript-service/internal/service/stt/google"
	"speech-transcript-service/internal/service/stt/mock"
	"speech-transcript-service/internal/store"
)

const healthService = "speech.transcript.SessionService"

func main() {
	if err := run(); err != nil {
		logger := logging.Logger()
		logger.Fatal().Err(err).Msg("Speech transcript service failed")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	application := app.New(cfg)
	if err := application.Start(); err != nil {
		return err
	}
	defer application.Shutdown()
	logger := application.Logger

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	provider, closeProvider, err := newProvider(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create %s provider: %w", cfg.STT.Provider, err)
	}
	defer closeProvider()

	// Transcript publishers
	kafkaPub := events.New(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		TopicPartial: cfg.Kafka.TopicPartial,
		TopicFinal:   cfg.Kafka.TopicFinal,
		Principal:    cfg.Kafka.Principal,
	})
	defer kafkaPub.Close()

	natsPub, err := events.NewNATS(&events.NATSConfig{
		Enabled:        cfg.NATS.Enabled,
		URL:            cfg.NATS.URL,
		SubjectPrefix:  cfg.NATS.SubjectPrefix,
		Principal:      cfg.Service.Principal,
		ConnectTimeout: 5 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer natsPub.Close()

	// Presenters
	hub := presenter.NewHub()
	publisher := presenter.NewPublisher(schema.New(), kafkaPub, natsPub)
	defer publisher.Close()

	sinks := []session.Presenter{presenter.NewLogging(), hub, publisher}

	var archive *store.Archive
	if cfg.Archive.Enabled {
		archive, err = store.Open(ctx, store.Config{Path: cfg.Archive.Path, Retention: cfg.Archive.Retention})
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer archive.Close()

		archiver := presenter.NewArchive(archive)
		defer archiver.Close()
		sinks = append(sinks, archiver)
	}

	if cfg.Clipboard.Enabled {
		clip, err := presenter.NewClipboard()
		if err != nil {
			logger.Warn().Err(err).Msg("Clipboard unavailable, transcripts will not be copied")
		} else {
			defer clip.Close()
			sinks = append(sinks, clip)
		}
	}

	// The controller outlives the signal context so the last session can end
	// cleanly during shutdown.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()

	controller := session.New(provider, presenter.NewMulti(sinks...), session.Config{
		Language:     cfg.STT.LanguageCode,
		RestartDelay: cfg.Session.RestartDelay,
		ResetOnStart: cfg.Session.ResetOnStart,
		ProviderName: cfg.STT.Provider,
	}, session.WithContext(loopCtx), session.WithMetrics(metrics.DefaultMetrics))

	go func() {
		if err := controller.Run(loopCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("Session controller stopped")
		}
	}()
	go hub.Run(ctx)

	if sink, ok := provider.(stt.AudioSink); ok && cfg.Audio.Source != "" {
		go pumpAudio(ctx, sink, cfg)
	}

	if cfg.Session.AutoStart {
		if err := controller.Start(ctx); err != nil {
			logger.Error().Err(err).Msg("Auto start failed")
		}
	}

	ready := func() error {
		if !natsPub.Healthy() {
			return errors.New("nats not connected")
		}
		return nil
	}

	// gRPC health and reflection
	lis, err := net.Listen("tcp", ":"+cfg.Service.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(observability.UnaryServerInterceptor(metrics.DefaultMetrics)),
		grpc.ChainStreamInterceptor(observability.StreamServerInterceptor(metrics.DefaultMetrics)),
	)
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(healthService, grpc_health_v1.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	go func() {
		logger.Info().Str("port", cfg.Service.GRPCPort).Msg("gRPC health server started")
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error().Err(err).Msg("gRPC serve failed")
		}
	}()

	obs := observability.NewServer(":"+cfg.Observability.MetricsPort, ready)
	obs.Start()

	opts := httpapi.Options{Live: hub, Ready: ready}
	if archive != nil {
		opts.Archive = archive
	}
	httpServer := &http.Server{
		Addr:              ":" + cfg.Service.HTTPPort,
		Handler:           httpapi.NewRouter(application, controller, opts),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("port", cfg.Service.HTTPPort).Msg("HTTP server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("HTTP serve failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
	defer shutdownCancel()

	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(healthService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	if err := controller.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Stopping session failed")
	}
	stopLoop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP shutdown failed")
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Observability shutdown failed")
	}
	grpcServer.GracefulStop()
	return nil
}

// newProvider builds the configured recognition backend and its cleanup.
func newProvider(ctx context.Context, cfg *config.Configuration) (stt.Provider, func(), error) {
	switch cfg.STT.Provider {
	case "google":
		p, err := google.New(ctx, google.Config{
			LanguageCode:    cfg.STT.LanguageCode,
			SampleRateHz:    int32(cfg.STT.SampleRateHz),
			InterimResults:  cfg.STT.InterimResults,
			AudioEncoding:   cfg.STT.AudioEncoding,
			MaxAlternatives: int32(cfg.STT.MaxAlternatives),
		})
		if err != nil {
			return nil, nil, err
		}
		return p, func() { _ = p.Close() }, nil
	case "mock", "":
		p := mock.New(mock.Config{
			Utterances: mock.DefaultUtterances,
			Step:       cfg.STT.MockStep,
			PauseAfter: cfg.STT.MockPauseAfter,
		})
		return p, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown provider %q", cfg.STT.Provider)
	}
}

// pumpAudio streams the configured audio source into the provider.
func pumpAudio(ctx context.Context, sink stt.AudioSink, cfg *config.Configuration) {
	logger := logging.WithComponent("audio")

	var src io.Reader = os.Stdin
	if cfg.Audio.Source != "-" {
		f, err := os.Open(cfg.Audio.Source)
		if err != nil {
			logger.Error().Err(err).Str("source", cfg.Audio.Source).Msg("Cannot open audio source")
			return
		}
		defer f.Close()
		src = f
	}

	h := audio.NewHandlerWithConfig(sink, audio.Config{
		FrameSize:     cfg.Audio.FrameSize,
		FrameInterval: cfg.Audio.FrameInterval,
		Limits: audio.SegmentLimits{
			MaxAudioBytes: cfg.SegmentLimits.MaxAudioBytes,
			MaxDuration:   cfg.SegmentLimits.MaxDuration,
			MaxFrames:     cfg.SegmentLimits.MaxFrames,
		},
	})
	if err := h.Pump(ctx, src); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("Audio pump stopped")
		return
	}
	m := h.GetSegmentMetrics()
	logger.Info().Int("segments", m.Segments).Int64("bytes", m.AudioBytes).Msg("Audio source drained")
}
