// Package bridge accepts start requests from the companion web page.
//
// The companion page posts a small JSON envelope:
//
//	{"source": "walkthrough-companion", "type": "START_WALKTHROUGH",
//	 "payload": {"workflow_id": 42}}
//
// Requests from origins outside the allowlist are rejected with 403 and
// malformed envelopes with 400. Neither changes any state. An accepted
// request is answered with 202 and the walkthrough is started in the
// background. CORS preflights from allowlisted origins are answered so a
// browser page can post directly.
//
// The hosting tab comes from the X-Walkthrough-Tab header. Without it the
// bridge asks its TabResolver, if one is set.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	walkthrough "github.com/xraph/walkthrough"
	"github.com/xraph/walkthrough/gateway"
	"github.com/xraph/walkthrough/router"
)

// MessageStart is the only envelope type the bridge accepts.
const MessageStart = "START_WALKTHROUGH"

// TabHeader names the browser tab that should host the walkthrough.
const TabHeader = "X-Walkthrough-Tab"

const (
	maxBodyBytes        = 64 << 10
	defaultStartTimeout = 30 * time.Second
	preflightMaxAge     = 600
)

// TabResolver picks the tab for a request that names none.
type TabResolver func(ctx context.Context) (int, bool)

// Starter starts a walkthrough in a tab. *gateway.Gateway satisfies it.
type Starter interface {
	Start(ctx context.Context, tab int, req gateway.StartRequest) router.Result
}

var _ Starter = (*gateway.Gateway)(nil)

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) { b.logger = l }
}

// WithTabResolver sets the fallback used when a request carries no tab
// header.
func WithTabResolver(fn TabResolver) Option {
	return func(b *Bridge) { b.resolveTab = fn }
}

// WithStartTimeout bounds a background start.
func WithStartTimeout(d time.Duration) Option {
	return func(b *Bridge) { b.startTimeout = d }
}

// Bridge is the HTTP endpoint for companion start requests.
type Bridge struct {
	starter      Starter
	origins      []string
	source       string
	startTimeout time.Duration
	resolveTab   TabResolver
	logger       *slog.Logger

	wg sync.WaitGroup
}

// New creates a bridge that admits the origins and source tag in cfg.
func New(starter Starter, cfg walkthrough.Config, opts ...Option) *Bridge {
	b := &Bridge{
		starter:      starter,
		origins:      slices.Clone(cfg.AllowedOrigins),
		source:       cfg.CompanionSource,
		startTimeout: defaultStartTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Routes returns the bridge router, to be mounted by the caller.
func (b *Bridge) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc: func(_ *http.Request, origin string) bool {
			return slices.Contains(b.origins, origin)
		},
		AllowedMethods: []string{http.MethodPost},
		AllowedHeaders: []string{"Content-Type", TabHeader},
		MaxAge:         preflightMaxAge,
	}))
	r.Post("/", b.handleStart)
	return r
}

// Wait blocks until every background start has finished.
func (b *Bridge) Wait() { b.wg.Wait() }

// ──────────────────────────────────────────────────
// Validation
// ──────────────────────────────────────────────────

type envelope struct {
	Source  string          `json:"source"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type startPayload struct {
	WorkflowID      json.RawMessage `json:"workflow_id"`
	WorkflowIDCamel json.RawMessage `json:"workflowId"`
}

// Validate checks the origin and envelope and returns the requested
// workflow id. Errors wrap ErrForbiddenOrigin or ErrMalformedMessage.
func (b *Bridge) Validate(origin string, body []byte) (int64, error) {
	if origin == "" || !slices.Contains(b.origins, origin) {
		return 0, fmt.Errorf("%w: %q", walkthrough.ErrForbiddenOrigin, origin)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return 0, fmt.Errorf("%w: %v", walkthrough.ErrMalformedMessage, err)
	}
	if env.Source != b.source {
		return 0, fmt.Errorf("%w: unexpected source %q", walkthrough.ErrMalformedMessage, env.Source)
	}
	if env.Type != MessageStart {
		return 0, fmt.Errorf("%w: unexpected type %q", walkthrough.ErrMalformedMessage, env.Type)
	}
	if len(env.Payload) == 0 {
		return 0, fmt.Errorf("%w: missing payload", walkthrough.ErrMalformedMessage)
	}

	var p startPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return 0, fmt.Errorf("%w: payload: %v", walkthrough.ErrMalformedMessage, err)
	}
	raw := p.WorkflowID
	if len(raw) == 0 {
		raw = p.WorkflowIDCamel
	}
	return parseWorkflowID(raw)
}

// parseWorkflowID accepts a bare positive integer. Quoted numbers,
// fractions and exponents are rejected.
func parseWorkflowID(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 0, fmt.Errorf("%w: missing workflow id", walkthrough.ErrMalformedMessage)
	}
	id, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: workflow id %s is not an integer", walkthrough.ErrMalformedMessage, raw)
	}
	if id <= 0 {
		return 0, fmt.Errorf("%w: workflow id must be positive", walkthrough.ErrMalformedMessage)
	}
	return id, nil
}

func parseTab(v string) (int, error) {
	tab, err := strconv.Atoi(v)
	if err != nil || tab <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", walkthrough.ErrMalformedMessage, TabHeader)
	}
	return tab, nil
}

// ──────────────────────────────────────────────────
// Handler
// ──────────────────────────────────────────────────

func (b *Bridge) handleStart(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")

	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	workflowID, err := b.Validate(origin, body)
	if err != nil {
		b.logger.Warn("bridge: rejected start request",
			slog.String("origin", origin),
			slog.String("error", err.Error()),
		)
		writeError(w, statusFor(err), err.Error())
		return
	}

	tab, err := b.tabFor(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	b.wg.Add(1)
	go b.start(context.WithoutCancel(r.Context()), tab, workflowID)

	w.WriteHeader(http.StatusAccepted)
}

// tabFor reads the tab header, falling back to the resolver when the
// header is absent.
func (b *Bridge) tabFor(r *http.Request) (int, error) {
	if v := r.Header.Get(TabHeader); v != "" {
		return parseTab(v)
	}
	if b.resolveTab != nil {
		if tab, ok := b.resolveTab(r.Context()); ok && tab > 0 {
			return tab, nil
		}
	}
	return 0, fmt.Errorf("%w: no %s and no tab to fall back to", walkthrough.ErrMalformedMessage, TabHeader)
}

func (b *Bridge) start(ctx context.Context, tab int, workflowID int64) {
	defer b.wg.Done()

	ctx, cancel := context.WithTimeout(ctx, b.startTimeout)
	defer cancel()

	res := b.starter.Start(ctx, tab, gateway.StartRequest{WorkflowID: workflowID})
	if !res.Success {
		b.logger.Error("bridge: start failed",
			slog.Int("tab_id", tab),
			slog.Int64("workflow_id", workflowID),
			slog.String("code", res.Code),
			slog.String("error", res.Error),
		)
		return
	}
	b.logger.Info("bridge: walkthrough started",
		slog.Int("tab_id", tab),
		slog.Int64("workflow_id", workflowID),
	)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(http.MaxBytesReader(w, r.Body, maxBodyBytes)); err != nil {
		return nil, fmt.Errorf("%w: %v", walkthrough.ErrMalformedMessage, err)
	}
	return buf.Bytes(), nil
}

func statusFor(err error) int {
	if errors.Is(err, walkthrough.ErrForbiddenOrigin) {
		return http.StatusForbidden
	}
	return http.StatusBadRequest
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
