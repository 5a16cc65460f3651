package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/mixplay/internal/app"
	"github.com/MrWong99/mixplay/internal/config"
	"github.com/MrWong99/mixplay/internal/health"
	"github.com/MrWong99/mixplay/internal/observe"
	"github.com/MrWong99/mixplay/internal/server"
)

// pinger is implemented by sources backed by a remote database.
type pinger interface {
	Ping(ctx context.Context) error
}

func newServeCmd(c *cli) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, health probes and Prometheus metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen != "" {
				c.cfg.Server.ListenAddr = listen
			}
			return c.serve(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (overrides server.listen_addr)")
	return cmd
}

func (c *cli) serve(ctx context.Context) error {
	cfg := c.cfg

	provider, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		RuntimeMetrics: cfg.Telemetry.RuntimeMetrics,
	})
	if err != nil {
		return err
	}
	metrics := observe.DefaultMetrics()

	a, src, err := c.openApp(ctx, app.WithMetrics(metrics))
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return err
	}

	checks := []health.Checker{
		health.Ready("index", a.Ready),
		health.WritableDir("output", cfg.Server.OutputDir),
	}
	if p, ok := src.(pinger); ok {
		checks = append(checks, health.Ping(string(cfg.Corpus.Backend), p.Ping))
	}
	srv := server.New(a,
		server.WithMetrics(metrics),
		server.WithHealth(health.New(checks...)),
		server.WithMetricsHandler(provider.MetricsHandler()),
	)

	var cfgWatcher *config.Watcher
	if c.configPath != "" {
		cfgWatcher, err = config.NewWatcher(c.configPath, func(_, updated *config.Config) {
			c.applyOverrides(updated)
			a.ApplyConfig(a.Config(), updated)
		})
		if err != nil {
			slog.Warn("config hot-reload disabled", "err", err)
		}
	}
	if cfg.Corpus.Backend == config.BackendJSONDir && cfg.Corpus.WatchInterval > 0 {
		if err := a.WatchTranscripts(ctx, cfg.Corpus.TranscriptsDir, cfg.Corpus.Pattern, cfg.Corpus.WatchInterval); err != nil {
			slog.Warn("transcript watcher disabled", "err", err)
		}
	}

	httpSrv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = httpSrv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("mixplay serving",
		"listen_addr", cfg.Server.ListenAddr,
		"backend", cfg.Corpus.Backend,
		"words", a.Index().Len(),
		"occurrences", a.Index().Occurrences(),
		"output_dir", cfg.Server.OutputDir,
	)

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping")
	case runErr = <-errCh:
		slog.Error("http server failed", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if cfgWatcher != nil {
		cfgWatcher.Stop()
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown error", "err", err)
	}
	if err := a.Shutdown(shutdownCtx); err != nil {
		slog.Warn("app shutdown error", "err", err)
	}
	if err := provider.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	return runErr
}
