// Package api wires the job coordination core (internal/jobs) to an
// HTTP surface via chi, the way the pack's small services route and
// middleware-wrap their handlers. Framing concerns spec.md marks
// out of scope — CORS, multipart, generic request parsing — are left
// to whatever sits in front of this server.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/austintgriffith/openclaw-spine/internal/jobs"
	"github.com/austintgriffith/openclaw-spine/internal/metrics"
)

// Server holds the dependencies HTTP handlers need.
type Server struct {
	engine   *jobs.Engine
	resolver tokenResolver
	metrics  *metrics.Metrics
	log      zerolog.Logger

	router chi.Router
}

// NewServer builds the chi router and registers every route in
// spec.md §6.1, plus /metrics.
func NewServer(engine *jobs.Engine, head, leftClaw, rightClaw []string, m *metrics.Metrics, log zerolog.Logger) *Server {
	s := &Server{
		engine:   engine,
		resolver: newTokenResolver(head, leftClaw, rightClaw),
		metrics:  m,
		log:      log,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(authMiddleware(s.resolver))

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", m.Handler().ServeHTTP)

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Get("/", s.handleList)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Post("/claim", s.handleClaim)
			r.Post("/heartbeat", s.handleHeartbeat)
			r.Post("/complete", s.handleComplete)
			r.Post("/fail", s.handleFail)
			r.Post("/release", s.handleRelease)
			r.Post("/comment", s.handleComment)
		})
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		status := ww.Status()
		s.log.Info().
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("http request")
		if s.metrics != nil {
			s.metrics.ObserveHTTP(route, r.Method, http.StatusText(status), time.Since(start))
		}
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "time": time.Now().UTC()})
}

// kindStatus maps the spec's error taxonomy onto HTTP status codes.
func kindStatus(k jobs.Kind) int {
	switch k {
	case jobs.KindUnauthorized:
		return http.StatusUnauthorized
	case jobs.KindForbidden, jobs.KindNotOwner:
		return http.StatusForbidden
	case jobs.KindNotFound:
		return http.StatusNotFound
	case jobs.KindAlreadyClaimed, jobs.KindTerminalStatus, jobs.KindMaxAttemptsReached,
		jobs.KindNotRunning, jobs.KindLocked:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeEngineError renders err using the spec's error taxonomy,
// logging internal errors server-side without exposing their detail.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	kind := jobs.KindOf(err)
	status := kindStatus(kind)
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("internal error")
		writeJSON(w, status, map[string]string{})
		return
	}
	writeError(w, status, string(kind))
}

func (s *Server) requireRole(w http.ResponseWriter, r *http.Request) (jobs.Role, bool) {
	role, ok := roleFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, string(jobs.KindUnauthorized))
		return "", false
	}
	return role, true
}
