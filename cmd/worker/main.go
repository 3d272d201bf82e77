package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/clinic-scheduler/internal/app"
	"github.com/jwalitptl/clinic-scheduler/internal/config"
	"github.com/jwalitptl/clinic-scheduler/internal/handler/health"
	"github.com/jwalitptl/clinic-scheduler/internal/middleware"
	"github.com/jwalitptl/clinic-scheduler/internal/worker"
	"github.com/jwalitptl/clinic-scheduler/pkg/logger"
)

const cleanupInterval = time.Hour

func main() {
	var configPath string
	rootCmd := &cobra.Command{
		Use:          "clinic-scheduler-worker",
		Short:        "Relay committed appointment events from the outbox to Redis",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (default: ./config.yaml)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if cfg.Database.Driver != "postgres" {
		return errors.New("the worker requires database.driver=postgres; use serve --relay with the memory driver")
	}

	ctx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	reg, m := app.NewRegistry()

	stores, err := app.OpenStores(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer stores.Close()

	broker, err := app.OpenBroker(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer broker.Close()

	relay := worker.NewOutboxRelay(stores.Outbox(), broker, app.RelayConfig(cfg), log, m)
	cleanup := worker.NewOutboxCleanupWorker(stores.Outbox(), cfg.Outbox.Retention, cleanupInterval, log)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(middleware.RequestID(log), middleware.Recovery())
	health.NewHandler(map[string]health.Checker{
		"database": stores.DB.PingContext,
		"redis":    broker.Ping,
	}).RegisterRoutes(engine)
	if cfg.Metrics.Enabled {
		engine.GET(cfg.Metrics.Path, gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Outbox.HealthPort),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		relay.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		cleanup.Start(ctx)
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("starting worker health server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		log.Error().Err(runErr).Msg("health server failed")
	}

	log.Info().Msg("shutting down worker")
	cancelWorkers()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("health server shutdown")
	}
	waitOrTimeout(shutdownCtx, &wg, log)
	return runErr
}

func waitOrTimeout(ctx context.Context, wg *sync.WaitGroup, log zerolog.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info().Msg("worker exited")
	case <-ctx.Done():
		log.Warn().Msg("timed out waiting for workers to stop")
	}
}
