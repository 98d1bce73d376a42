package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/northpine-consulting/insight-api/internal/config"
	"github.com/northpine-consulting/insight-api/internal/http/handler"
	"github.com/northpine-consulting/insight-api/internal/http/middleware"
	"github.com/northpine-consulting/insight-api/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Router struct {
	cfg           *config.Config
	logger        *zap.Logger
	rateLimiter   *middleware.RateLimiter
	metrics       *metrics.Metrics
	reportHandler *handler.ReportHandler
	healthHandler *handler.HealthHandler
}

func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	rateLimiter *middleware.RateLimiter,
	m *metrics.Metrics,
	reportHandler *handler.ReportHandler,
	healthHandler *handler.HealthHandler,
) *Router {
	return &Router{
		cfg:           cfg,
		logger:        logger,
		rateLimiter:   rateLimiter,
		metrics:       m,
		reportHandler: reportHandler,
		healthHandler: healthHandler,
	}
}

func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(rt.logger))
	r.Use(middleware.Logging(rt.logger))
	r.Use(middleware.Metrics(rt.metrics))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(&rt.cfg.CORS, rt.cfg.App.Environment, rt.logger))
	r.Use(rt.rateLimiter.Limit)

	// Probes and operational endpoints
	r.Get("/health", rt.healthHandler.Live)
	r.Get("/health/ready", rt.healthHandler.Ready)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Reporting API
	r.Route("/api/v1/reports", func(r chi.Router) {
		r.Get("/resources", rt.reportHandler.GetResources)
		r.Get("/projects", rt.reportHandler.GetProjects)
		r.Get("/forecast", rt.reportHandler.GetForecast)
		r.Get("/summary", rt.reportHandler.GetSummary)
		r.Get("/history", rt.reportHandler.GetHistory)
	})

	return r
}
