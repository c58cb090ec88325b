package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-catalog/pkg/catalog"
	"github.com/ekaya-inc/ekaya-catalog/pkg/handlers"
	"github.com/ekaya-inc/ekaya-catalog/pkg/middleware"
	"github.com/ekaya-inc/ekaya-catalog/pkg/services"
)

func (c *cli) newServeCommand() *cobra.Command {
	var extractOnStart bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run scheduled extractions and serve metrics and the catalog API",
		Long: `Runs until interrupted. Datasources with a schedule are re-extracted on it, hand
edits to the catalog directory invalidate cached reads, and when server.addr is set
an HTTP listener serves /metrics, /health, /ping and /api/sources.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return c.app.serve(ctx, extractOnStart)
		},
	}
	cmd.Flags().BoolVar(&extractOnStart, "extract-on-start", false, "extract every datasource once at startup")
	return cmd
}

func (a *app) serve(ctx context.Context, extractOnStart bool) error {
	logger := a.logger.Named("serve")

	extraction, err := a.extractionService()
	if err != nil {
		return err
	}
	scheduler, err := services.NewScheduler(a.cfg, extraction, a.logger)
	if err != nil {
		return err
	}

	if !a.cfg.Catalog.WatchDisabled {
		watcher, err := catalog.NewWatcher(a.cfg.Catalog.Dir, a.cfg.Catalog.WatchDebounce, a.reader.InvalidateCache, a.logger)
		if err != nil {
			return fmt.Errorf("failed to create catalog watcher: %w", err)
		}
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("failed to watch %s: %w", a.cfg.Catalog.Dir, err)
		}
		defer watcher.Stop()
	}

	serverErr := make(chan error, 1)
	var srv *http.Server
	if a.cfg.Server.Addr != "" {
		handler, err := a.routes(extraction)
		if err != nil {
			return err
		}
		srv = &http.Server{
			Addr:              a.cfg.Server.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP server listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	scheduler.Start()
	logger.Info("Catalog service started",
		zap.String("version", a.cfg.Version),
		zap.Int("scheduled", scheduler.Entries()),
		zap.Bool("watching", !a.cfg.Catalog.WatchDisabled))

	if extractOnStart {
		go a.extractAll(ctx, extraction, logger)
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case runErr = <-serverErr:
		logger.Error("HTTP server failed", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP server shutdown incomplete", zap.Error(err))
		}
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Warn("Scheduled extractions still running at shutdown", zap.Error(err))
	}
	return runErr
}

func (a *app) routes(extraction services.ExtractionService) (http.Handler, error) {
	httpMetrics, err := middleware.NewHTTPMetrics(a.registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register http metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))
	var connections handlers.ConnectionStatsProvider
	if a.connections != nil {
		connections = a.connections
	}
	handlers.NewHealthHandler(a.cfg, connections, a.logger).RegisterRoutes(mux)
	handlers.NewCatalogHandler(a.reader, extraction, a.logger).RegisterRoutes(mux)

	return middleware.RequestLogger(a.logger.Named("http"), httpMetrics)(mux), nil
}

func (a *app) extractAll(ctx context.Context, extraction services.ExtractionService, logger *zap.Logger) {
	for _, ds := range a.cfg.Datasources {
		if ctx.Err() != nil {
			return
		}
		results, err := extraction.ExtractDatasource(ctx, ds.Name)
		if err != nil {
			logger.Error("Startup extraction failed",
				zap.String("datasource", ds.Name),
				zap.Int("succeeded", len(results)),
				zap.Error(err))
			continue
		}
		logger.Info("Startup extraction completed",
			zap.String("datasource", ds.Name),
			zap.Int("sources", len(results)))
	}
}
