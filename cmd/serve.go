package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"mockyard/api"
	"mockyard/cloudflare"
	"mockyard/config"
	"mockyard/manager"
	"mockyard/metrics"
	"mockyard/proxy"
	"mockyard/store"
)

const (
	shutdownTimeout = 10 * time.Second
	cleanupTimeout  = 30 * time.Second
)

func serveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and mock proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts.cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := log.Ctx(ctx)

	collector := metrics.NewPrometheusMetricsCollector("mockyard")
	orch, err := newOrchestrator(ctx, cfg, collector)
	if err != nil {
		return err
	}
	defer orch.Close()
	orch.ensureNetwork(ctx)

	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return err
	}
	defer st.Close()

	wsOpts := []manager.WorkspaceOption{manager.WithStopConcurrency(cfg.Orchestration.StopConcurrency)}
	routerOpts := api.Options{
		Registry:       collector.Registry(),
		IdentityHeader: cfg.API.IdentityHeader,
		Admins:         cfg.API.Admins,
		Logger:         *logger,
	}
	if cfg.Cloudflare.Enabled || cfg.Cloudflare.BaseDomain != "" {
		cfClient, err := cloudflare.NewClient(cfg.Cloudflare, cfg.ServerAddress)
		if err != nil {
			return err
		}
		domains := cloudflare.NewManager(cfClient, cfg.Cloudflare.AutoGenerate)
		wsOpts = append(wsOpts, manager.WithPublisher(domains))
		routerOpts.Domains = domains
	}

	service := manager.NewWorkspaceService(st, orch.scripts, manager.NewGenerator(orch.scripts, collector), orch.containers, collector, wsOpts...)
	routerOpts.Workspaces = service
	if cfg.Proxy.Enabled {
		routerOpts.Proxy = proxy.NewReverseProxyHandler(orch.containers, cfg.Proxy.Target, cfg.Orchestration.ServicePort)
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(routerOpts),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Str("runtime", orch.runtime).Str("engine", cfg.Engine.Driver).
			Str("store", cfg.Store.Driver).Msg("mockyard server starting")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("server failed to shut down gracefully")
	} else {
		logger.Info().Msg("server shutdown complete")
	}

	if cfg.StopOnShutdown {
		logger.Info().Msg("stopping project containers")
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		if err := service.StopAll(cleanupCtx); err != nil {
			logger.Warn().Err(err).Msg("some containers did not stop")
		}
	}

	logger.Info().Msg("server exited gracefully")
	return nil
}
