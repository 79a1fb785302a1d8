package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"speech-transcript-service/internal/app"
	"speech-transcript-service/internal/observability/logging"
	"speech-transcript-service/internal/service/session"
	"speech-transcript-service/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// SessionService is the session control surface exposed over HTTP.
type SessionService interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Clear(ctx context.Context) error
	SetLanguage(ctx context.Context, tag string) error
	Snapshot() session.Snapshot
}

// ArchiveReader reads archived sessions.
type ArchiveReader interface {
	List(ctx context.Context, limit int) ([]store.Session, error)
	Get(ctx context.Context, id string) (store.Session, error)
}

// Options holds optional router dependencies.
type Options struct {
	Live    http.Handler  // WebSocket push of session snapshots
	Archive ArchiveReader // archived sessions, nil when archiving is off
	Ready   func() error  // readiness probe, nil means always ready
	Timeout time.Duration // per-request timeout for control calls
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application, svc SessionService, opts Options) http.Handler {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if opts.Ready != nil {
			if err := opts.Ready(); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error()})
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Get("/info", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"service":       app.ServiceName,
				"principal":     application.Cfg.Service.Principal,
				"sttProvider":   application.Cfg.STT.Provider,
				"startupTime":   application.StartupTime,
				"uptimeSeconds": int64(application.Uptime().Seconds()),
			})
		})

		r.Route("/session", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusOK, svc.Snapshot())
			})
			if opts.Live != nil {
				r.Handle("/ws", opts.Live)
			}

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(opts.Timeout))

				r.Post("/start", intent(svc, svc.Start))
				r.Post("/stop", intent(svc, svc.Stop))
				r.Post("/clear", intent(svc, svc.Clear))
				r.Put("/language", func(w http.ResponseWriter, req *http.Request) {
					var body struct {
						Language string `json:"language"`
					}
					if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
						writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
						return
					}
					if err := svc.SetLanguage(req.Context(), body.Language); err != nil {
						writeError(w, err)
						return
					}
					writeJSON(w, http.StatusOK, svc.Snapshot())
				})
			})
		})

		if opts.Archive != nil {
			r.Get("/sessions", func(w http.ResponseWriter, req *http.Request) {
				limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
				list, err := opts.Archive.List(req.Context(), limit)
				if err != nil {
					writeError(w, err)
					return
				}
				if list == nil {
					list = []store.Session{}
				}
				writeJSON(w, http.StatusOK, list)
			})
			r.Get("/sessions/{id}", func(w http.ResponseWriter, req *http.Request) {
				s, err := opts.Archive.Get(req.Context(), chi.URLParam(req, "id"))
				if err != nil {
					writeError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, s)
			})
		}
	})

	return r
}

// intent runs a control call and answers with the resulting snapshot.
func intent(svc SessionService, call func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := call(req.Context()); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, svc.Snapshot())
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrAlreadyActive):
		return http.StatusConflict
	case errors.Is(err, session.ErrProviderStartFailed):
		return http.StatusBadGateway
	case errors.Is(err, session.ErrInvalidLanguage):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// accessLog logs every request through zerolog.
func accessLog(next http.Handler) http.Handler {
	logger := logging.WithComponent("http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("requestId", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
