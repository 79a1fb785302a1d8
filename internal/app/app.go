package app

import (
	"os"
	"time"

	"speech-transcript-service/internal/config"
	"speech-transcript-service/internal/observability/logging"

	"github.com/rs/zerolog"
)

// ServiceName is reported in logs and the info endpoint.
const ServiceName = "speech-transcript-service"

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration
}

// New constructs a new Application from the provided configuration.
func New(cfg *config.Configuration) *Application {
	a := &Application{
		Cfg: cfg,
	}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	appLogger.Info().Msg("Speech transcript service application created")
	return a
}

// setupLogger configures the global zerolog logger for the service.
// ZEROLOG_LOG_LEVEL overrides the configured level; ENV=dev switches to
// console output.
func (a *Application) setupLogger() {
	lc := logging.DefaultConfig()
	lc.Level = a.Cfg.Observability.LogLevel
	lc.Format = a.Cfg.Observability.LogFormat
	if envLevel := os.Getenv("ZEROLOG_LOG_LEVEL"); envLevel != "" {
		lc.Level = envLevel
	}
	if os.Getenv("ENV") == "dev" {
		lc.Format = "console"
	}
	logging.Init(lc)

	a.Logger = logging.Logger().With().
		Str("service", ServiceName).
		Str("component", "application").
		Logger()

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("logFormat", lc.Format).
		Str("environment", os.Getenv("ENV")).
		Msg("Logger setup completed")
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.StartupTime = time.Now().UTC()
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Str("sttProvider", a.Cfg.STT.Provider).
		Str("language", a.Cfg.STT.LanguageCode).
		Msg("Speech transcript service starting")

	return nil
}

// Uptime returns the time since Start.
func (a *Application) Uptime() time.Duration {
	if a.StartupTime.IsZero() {
		return 0
	}
	return time.Since(a.StartupTime)
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown() {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	shutdownLogger.Info().
		Dur("uptime", a.Uptime()).
		Msg("Speech transcript service shutting down")
}
