package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/clinic-scheduler/internal/app"
	"github.com/jwalitptl/clinic-scheduler/internal/config"
	appointmentHandler "github.com/jwalitptl/clinic-scheduler/internal/handler/appointment"
	"github.com/jwalitptl/clinic-scheduler/internal/handler/health"
	"github.com/jwalitptl/clinic-scheduler/internal/middleware"
	"github.com/jwalitptl/clinic-scheduler/internal/router"
	"github.com/jwalitptl/clinic-scheduler/internal/worker"
	"github.com/jwalitptl/clinic-scheduler/pkg/logger"
	"github.com/jwalitptl/clinic-scheduler/pkg/messaging/redis"
)

func serveCmd() *cobra.Command {
	var (
		withRelay bool
		seed      bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg, withRelay, seed)
		},
	}
	cmd.Flags().BoolVar(&withRelay, "relay", false, "run the outbox relay in-process (requires redis.enabled)")
	cmd.Flags().BoolVar(&seed, "seed", false, "seed a demo tenant when using the memory driver")
	return cmd
}

func runServer(ctx context.Context, cfg *config.Config, withRelay, seed bool) error {
	log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	reg, m := app.NewRegistry()

	stores, err := app.OpenStores(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer stores.Close()
	if seed && stores.Memory != nil {
		app.SeedDemo(stores.Memory, cfg.Scheduling.DefaultTimezone)
		log.Info().
			Str("business_id", app.DemoBusinessID.String()).
			Str("admin_id", app.DemoAdminID.String()).
			Msg("seeded demo tenant")
	}

	svc, err := app.NewAppointmentService(cfg.Scheduling, stores, m, log)
	if err != nil {
		return fmt.Errorf("build appointment service: %w", err)
	}

	checks := map[string]health.Checker{}
	if stores.DB != nil {
		checks["database"] = stores.DB.PingContext
	}

	var broker *redis.RedisBroker
	if cfg.Redis.Enabled {
		broker, err = app.OpenBroker(ctx, cfg, log)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer broker.Close()
		checks["redis"] = broker.Ping
	}

	limiter, err := newLimiter(cfg.RateLimit, broker)
	if err != nil {
		return err
	}

	routerCfg := router.Config{
		Mode:           cfg.Server.Mode,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		CORSOrigins:    cfg.Server.CORSOrigins,
	}
	if cfg.Metrics.Enabled {
		routerCfg.MetricsPath = cfg.Metrics.Path
	}
	engine, err := router.New(router.Dependencies{
		Auth:         middleware.NewAuthenticator(cfg.JWT),
		Appointments: appointmentHandler.NewHandler(svc),
		Health:       health.NewHandler(checks),
		Limiter:      limiter,
		Metrics:      m,
		Gatherer:     reg,
		Logger:       log,
	}, routerCfg)
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	if withRelay {
		if broker == nil {
			return errors.New("--relay requires redis.enabled")
		}
		relay := worker.NewOutboxRelay(stores.Outbox(), broker, app.RelayConfig(cfg), log, m)
		go relay.Start(ctx)
	}

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        engine,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}
	return serve(ctx, srv, cfg.Server.ShutdownTimeout, log)
}

func newLimiter(cfg config.RateLimitConfig, broker *redis.RedisBroker) (middleware.Limiter, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.Distributed {
		if broker == nil {
			return nil, errors.New("distributed rate limiting requires redis")
		}
		return middleware.NewRedisLimiter(broker.Client(), cfg.Limit, cfg.Window), nil
	}
	return middleware.NewLocalLimiter(cfg.RequestsPerSecond, cfg.Burst), nil
}

// serve runs srv until ctx is cancelled, then drains in-flight requests.
func serve(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, log zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info().Msg("server exited")
	return nil
}
