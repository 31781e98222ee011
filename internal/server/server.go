// internal/server/server.go
// Package server exposes the visualizer over HTTP.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/colebrumley/zplot/internal/history"
	"github.com/colebrumley/zplot/internal/logging"
	"github.com/colebrumley/zplot/internal/render"
	"github.com/colebrumley/zplot/internal/visualizer"
)

// WelcomeMessage is returned by GET /.
const WelcomeMessage = "Welcome to the Complex Function Visualizer API"

// HistoryStore is the part of history.DB the server uses.
type HistoryStore interface {
	Record(rec history.Record) (int64, error)
	List(state string, limit int) ([]history.Record, error)
	Get(requestID string) (*history.Record, error)
	Stats() (history.Stats, error)
}

// Options configures the HTTP layer.
type Options struct {
	// RateLimit is requests per minute per client on render endpoints; 0 disables.
	RateLimit int
	RateBurst int

	// TrustProxy applies X-Forwarded-For / X-Real-IP to the client address.
	TrustProxy bool
}

// Server routes HTTP requests to a Visualizer.
type Server struct {
	vis      *visualizer.Visualizer
	settings func() render.Settings
	history  HistoryStore
	limiter  *rateLimiter
	proxied  bool
	logger   *slog.Logger
	start    time.Time
	router   chi.Router
}

// New creates a Server. settings is called once per request for the current
// render settings snapshot. history may be nil.
func New(vis *visualizer.Visualizer, settings func() render.Settings, hist HistoryStore, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Server{
		vis:      vis,
		settings: settings,
		history:  hist,
		logger:   logger,
		start:    time.Now(),
		proxied:  opts.TrustProxy,
	}
	if opts.RateLimit > 0 {
		s.limiter = newRateLimiter(opts.RateLimit, opts.RateBurst)
	}
	s.router = s.buildRouter()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	if s.proxied {
		r.Use(middleware.RealIP)
	}
	r.Use(s.requestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleHome)
	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.limiter.middleware)
		}
		r.Get("/visualize", s.handleVisualize)
		r.Get("/preview", s.handlePreview)
		r.Get("/probe", s.handleProbe)
	})

	r.Route("/api/history", func(r chi.Router) {
		r.Get("/", s.handleHistoryList)
		r.Get("/stats", s.handleHistoryStats)
		r.Get("/{requestID}", s.handleHistoryGet)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	return r
}

type ctxKey int

const requestIDKey ctxKey = iota

// RequestIDHeader carries the per-request uuid.
const RequestIDHeader = "X-Request-Id"

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// RequestID returns the id assigned to the request, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logging.WithRequest(s.logger, RequestID(r.Context())).Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"client", clientIP(r),
			"duration", time.Since(start).Truncate(time.Millisecond).String(),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
