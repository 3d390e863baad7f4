package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	walkthrough "github.com/xraph/walkthrough"
	"github.com/xraph/walkthrough/advance"
	"github.com/xraph/walkthrough/bridge"
	"github.com/xraph/walkthrough/ext"
	"github.com/xraph/walkthrough/gateway"
	"github.com/xraph/walkthrough/journal"
	mw "github.com/xraph/walkthrough/middleware"
	"github.com/xraph/walkthrough/observability"
	"github.com/xraph/walkthrough/router"
	"github.com/xraph/walkthrough/session"
	"github.com/xraph/walkthrough/store"
	"github.com/xraph/walkthrough/stream"
	"github.com/xraph/walkthrough/wire"
)

// instrumentationName scopes the tracer and meter taken from custom
// providers.
const instrumentationName = "github.com/xraph/walkthrough"

// Engine holds the assembled coordinator.
// Use Build() to create one.
type Engine struct {
	cfg    walkthrough.Config
	store  store.Store
	logger *slog.Logger

	extensions *ext.Registry
	broker     *stream.Broker
	manager    *session.Manager
	scheduler  *advance.Scheduler
	router     *router.Router
	recorder   *journal.Recorder
	gateway    *gateway.Gateway
	wire       *wire.Server
	bridge     *bridge.Bridge

	catalog gateway.Catalog
	healer  gateway.Healer
	auth    wire.Authenticator
	mws     []mw.Middleware
	exts    []ext.Extension

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger shared by every subsystem.
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = l }
}

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.exts = append(eng.exts, e)
	}
}

// WithMiddleware appends middleware after the built-in chain.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithCatalog sets the workflow catalog used to start walkthroughs.
func WithCatalog(c gateway.Catalog) Option {
	return func(eng *Engine) { eng.catalog = c }
}

// WithHealer sets the locator healer.
func WithHealer(h gateway.Healer) Option {
	return func(eng *Engine) { eng.healer = h }
}

// WithAuth sets the page connection authenticator.
func WithAuth(a wire.Authenticator) Option {
	return func(eng *Engine) { eng.auth = a }
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// Build assembles the coordinator on top of s. The caller keeps ownership
// of the store.
func Build(cfg walkthrough.Config, s store.Store, opts ...Option) (*Engine, error) {
	if s == nil {
		return nil, walkthrough.ErrNoStore
	}

	eng := &Engine{
		cfg:    cfg,
		store:  s,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(eng)
	}
	logger := eng.logger

	eng.extensions = ext.NewRegistry(logger)
	eng.broker = stream.NewBroker(logger)
	eng.extensions.Register(eng.broker)

	eng.manager = session.NewManager(s,
		session.WithLogger(logger),
		session.WithTTL(cfg.SessionTTL),
		session.WithNotifier(eng.broker),
		session.WithObserver(eng.extensions),
	)

	eng.scheduler = advance.NewScheduler(logger)
	eng.router = router.New(eng.manager, eng.scheduler,
		router.WithLogger(logger),
		router.WithPolicy(advance.NewPolicy(cfg)),
	)
	eng.extensions.Register(eng.router)
	eng.extensions.Register(eng.lifecycleMetrics())
	for _, e := range eng.exts {
		eng.extensions.Register(e)
	}

	eng.recorder = journal.NewRecorder(s, logger)

	gwOpts := []gateway.Option{
		gateway.WithLogger(logger),
		gateway.WithJournal(eng.recorder),
	}
	if eng.catalog != nil {
		gwOpts = append(gwOpts, gateway.WithCatalog(eng.catalog))
	}
	if eng.healer != nil {
		gwOpts = append(gwOpts, gateway.WithHealer(eng.healer))
	}
	eng.gateway = gateway.New(eng.manager, eng.router, gwOpts...)

	handler := wire.NewHandler(eng.gateway, logger, eng.chain()...)
	wireOpts := []wire.Option{
		wire.WithLogger(logger),
		wire.WithRateLimit(cfg.FramesPerSecond, cfg.FrameBurst),
	}
	if eng.auth != nil {
		wireOpts = append(wireOpts, wire.WithAuth(eng.auth))
	}
	eng.wire = wire.NewServer(eng.broker, handler, wireOpts...)

	eng.bridge = bridge.New(eng.gateway, cfg,
		bridge.WithLogger(logger),
		bridge.WithTabResolver(eng.defaultTab),
	)

	return eng, nil
}

// defaultTab is the tab a companion start lands in when the request names
// none: the live session's primary tab, else the newest page connection.
func (eng *Engine) defaultTab(ctx context.Context) (int, bool) {
	if s, err := eng.manager.Current(ctx); err == nil && s != nil && s.Tabs.Primary > 0 {
		return s.Tabs.Primary, true
	}
	return eng.wire.Connections().LatestTab()
}

func (eng *Engine) lifecycleMetrics() *observability.MetricsExtension {
	if eng.meterProvider != nil {
		return observability.NewMetricsExtensionWithMeter(eng.meterProvider.Meter(instrumentationName))
	}
	return observability.NewMetricsExtension()
}

// chain returns the message middleware: built-ins first, then user
// middleware.
func (eng *Engine) chain() []mw.Middleware {
	tracing := mw.Tracing()
	if eng.tracerProvider != nil {
		tracing = mw.TracingWithTracer(eng.tracerProvider.Tracer(instrumentationName))
	}
	metrics := mw.Metrics()
	if eng.meterProvider != nil {
		metrics = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentationName))
	}

	chain := []mw.Middleware{
		mw.Recover(eng.logger),
		mw.Tag(),
		tracing,
		metrics,
		mw.Logging(eng.logger),
		mw.Timeout(eng.cfg.HandlerTimeout),
	}
	return append(chain, eng.mws...)
}

// Stop closes page connections, waits for background starts, cancels
// pending advances and notifies extensions. The store is left open.
func (eng *Engine) Stop(ctx context.Context) error {
	var errs []error

	if err := eng.wire.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close wire server: %w", err))
	}

	done := make(chan struct{})
	go func() {
		eng.bridge.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("wait for bridge starts: %w", ctx.Err()))
	}

	if err := eng.scheduler.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close advance scheduler: %w", err))
	}
	if err := eng.manager.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close session manager: %w", err))
	}

	eng.extensions.EmitShutdown(ctx)
	return errors.Join(errs...)
}

// Config returns the engine configuration.
func (eng *Engine) Config() walkthrough.Config { return eng.cfg }

// Store returns the persistence backend.
func (eng *Engine) Store() store.Store { return eng.store }

// Logger returns the engine logger.
func (eng *Engine) Logger() *slog.Logger { return eng.logger }

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Broker returns the stream broker.
func (eng *Engine) Broker() *stream.Broker { return eng.broker }

// Manager returns the session manager.
func (eng *Engine) Manager() *session.Manager { return eng.manager }

// Scheduler returns the advance scheduler.
func (eng *Engine) Scheduler() *advance.Scheduler { return eng.scheduler }

// Router returns the step router.
func (eng *Engine) Router() *router.Router { return eng.router }

// Journal returns the execution log recorder.
func (eng *Engine) Journal() *journal.Recorder { return eng.recorder }

// Gateway returns the message gateway.
func (eng *Engine) Gateway() *gateway.Gateway { return eng.gateway }

// Catalog returns the workflow catalog, or nil.
func (eng *Engine) Catalog() gateway.Catalog { return eng.catalog }

// Wire returns the page connection server.
func (eng *Engine) Wire() *wire.Server { return eng.wire }

// Bridge returns the companion bridge.
func (eng *Engine) Bridge() *bridge.Bridge { return eng.bridge }
