// Package api serves the coordinator over HTTP: a health probe, a
// read-only debug view of the session and journal, the companion bridge
// and the page connection socket.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/xraph/walkthrough/engine"
)

// API wires the HTTP handlers for an engine.
type API struct {
	eng    *engine.Engine
	logger *slog.Logger
	token  string
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) { a.logger = l }
}

// WithAdminToken overrides the bearer token required on /v1 routes.
func WithAdminToken(token string) Option {
	return func(a *API) { a.token = token }
}

// New creates an API from an engine.
func New(eng *engine.Engine, opts ...Option) *API {
	a := &API{
		eng:    eng,
		logger: eng.Logger(),
		token:  eng.Config().AdminToken,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(Recovery(a.logger))

	r.Get("/healthz", a.health)

	// Page sockets and companion posts are long-lived or fire-and-forget;
	// only the debug routes are request-logged.
	r.Handle("/v1/wire", a.eng.Wire())
	r.Mount("/bridge", a.eng.Bridge().Routes())

	r.Group(func(r chi.Router) {
		r.Use(Logger(a.logger))
		r.Use(BearerAuth(a.token))

		r.Get("/v1/session", a.getSession)
		r.Get("/v1/journal", a.listJournal)
		r.Get("/v1/stats", a.stats)
		r.Get("/v1/workflows", a.listWorkflows)
	})

	return r
}

// ── helpers ──────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
