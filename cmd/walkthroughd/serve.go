package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/walkthrough/api"
	audithook "github.com/xraph/walkthrough/audit_hook"
	"github.com/xraph/walkthrough/catalog"
	"github.com/xraph/walkthrough/engine"
	"github.com/xraph/walkthrough/wire"
)

const readHeaderTimeout = 10 * time.Second

func newServeCmd(a *app, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the coordinator HTTP and WebSocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}

	flags := cmd.Flags()
	flags.String("listen", ":8080", "HTTP listen address")
	flags.String("catalog-dir", "", "directory of workflow YAML files")
	flags.Bool("catalog-watch", true, "reload the catalog when files change")
	_ = v.BindPFlag("listen", flags.Lookup("listen"))
	_ = v.BindPFlag("catalog.dir", flags.Lookup("catalog-dir"))
	_ = v.BindPFlag("catalog.watch", flags.Lookup("catalog-watch"))
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	s := a.settings
	logger := a.logger

	st, err := openStore(ctx, s.Store.Driver, s.Store.DSN, logger)
	if err != nil {
		return err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return fmt.Errorf("migrate: %w", err)
	}

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithAuth(authenticator(s.Wire.PageToken)),
	}
	if s.Audit.Enabled {
		opts = append(opts, engine.WithExtension(auditLog(logger)))
	}
	var cat *catalog.Dir
	if s.Catalog.Dir != "" {
		cat, err = catalog.Open(s.Catalog.Dir, catalog.WithLogger(logger))
		if err != nil {
			_ = st.Close()
			return err
		}
		opts = append(opts, engine.WithCatalog(cat))
	}

	eng, err := engine.Build(s.Core, st, opts...)
	if err != nil {
		_ = st.Close()
		return err
	}

	srv := &http.Server{
		Addr:              s.Listen,
		Handler:           api.New(eng, api.WithLogger(logger)).Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("walkthroughd listening",
			slog.String("addr", s.Listen),
			slog.String("store", s.Store.Driver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if cat != nil && s.Catalog.Watch {
		g.Go(func() error { return cat.Watch(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), s.Core.ShutdownTimeout)
		defer cancel()

		return errors.Join(
			srv.Shutdown(shutdownCtx),
			eng.Stop(shutdownCtx),
			st.Close(),
		)
	})

	return g.Wait()
}

// authenticator returns the page authenticator for the wire endpoint. An
// empty token leaves the endpoint open.
func authenticator(token string) wire.Authenticator {
	if token == "" {
		return &wire.NoopAuthenticator{}
	}
	return wire.NewAPIKeyAuthenticator(wire.APIKeyEntry{
		Token:    token,
		Identity: wire.Identity{Subject: "page", Scopes: []string{wire.ScopeAll}},
	})
}

// auditLog records audit events as structured log lines.
func auditLog(logger *slog.Logger) *audithook.Extension {
	l := logger.With(slog.String("component", "audit"))
	rec := audithook.RecorderFunc(func(ctx context.Context, evt *audithook.AuditEvent) error {
		l.InfoContext(ctx, evt.Action,
			slog.String("session_id", evt.ResourceID),
			slog.String("severity", evt.Severity),
			slog.String("outcome", evt.Outcome),
			slog.Any("metadata", evt.Metadata),
		)
		return nil
	})
	return audithook.New(rec, audithook.WithLogger(logger))
}
