package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-scheduler/internal/middleware"
	"github.com/jwalitptl/clinic-scheduler/pkg/metrics"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type PublicHandler interface {
	RegisterRoutes(gin.IRouter)
}

type Config struct {
	Mode           string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	CORSOrigins    []string
	// MetricsPath exposes the Prometheus registry when set.
	MetricsPath string
}

type Dependencies struct {
	Auth         *middleware.Authenticator
	Appointments Handler
	Health       PublicHandler
	// Limiter is optional. Nil disables rate limiting.
	Limiter  middleware.Limiter
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Logger   zerolog.Logger
}

// New builds the HTTP engine: the shared middleware chain, public health
// and metrics endpoints, and the authenticated /api/v1 routes.
func New(deps Dependencies, cfg Config) (*gin.Engine, error) {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	if err := middleware.RegisterValidators(); err != nil {
		return nil, err
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoop()
	}

	engine := gin.New()
	engine.Use(
		middleware.RequestID(deps.Logger),
		middleware.Logger(),
		middleware.Recovery(),
		middleware.Metrics(deps.Metrics),
		middleware.SecurityHeaders(),
		middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins)),
	)
	if deps.Limiter != nil {
		engine.Use(middleware.RateLimit(deps.Limiter))
	}

	if deps.Health != nil {
		deps.Health.RegisterRoutes(engine)
	}
	if cfg.MetricsPath != "" && deps.Gatherer != nil {
		engine.GET(cfg.MetricsPath, gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	api := engine.Group("/api/v1")
	api.Use(
		middleware.ErrorHandler(),
		middleware.Timeout(cfg.RequestTimeout),
		middleware.SizeLimit(cfg.MaxBodyBytes),
		deps.Auth.Authenticate(),
	)
	deps.Appointments.RegisterRoutes(api)

	return engine, nil
}
