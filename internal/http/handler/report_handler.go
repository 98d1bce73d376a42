package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/northpine-consulting/insight-api/internal/domain"
	"github.com/northpine-consulting/insight-api/internal/metrics"
	"github.com/northpine-consulting/insight-api/internal/service"
	"github.com/northpine-consulting/insight-api/internal/store"
	"go.uber.org/zap"
)

// defaultForecastMonths is the window served when the caller omits the
// from/to query parameters: the current month plus five ahead.
const defaultForecastMonths = 6

// ReportHandler serves the reporting endpoints.
type ReportHandler struct {
	reportService *service.ReportService
	snapshots     *store.SnapshotStore
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

func NewReportHandler(reportService *service.ReportService, snapshots *store.SnapshotStore, m *metrics.Metrics, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{
		reportService: reportService,
		snapshots:     snapshots,
		metrics:       m,
		logger:        logger,
	}
}

// GetResources returns the per-(staff, project) utilization report.
func (h *ReportHandler) GetResources(w http.ResponseWriter, r *http.Request) {
	report, err := h.reportService.ResourceReport(r.Context(), time.Now().UTC())
	if err != nil {
		h.respondReportError(w, "resources", err)
		return
	}

	h.metrics.ReportsGenerated.WithLabelValues("resources", "ok").Inc()
	respondJSON(w, http.StatusOK, report)
}

// GetProjects returns the per-project health report.
func (h *ReportHandler) GetProjects(w http.ResponseWriter, r *http.Request) {
	report, err := h.reportService.ProjectReport(r.Context(), time.Now().UTC())
	if err != nil {
		h.respondReportError(w, "projects", err)
		return
	}

	h.metrics.ReportsGenerated.WithLabelValues("projects", "ok").Inc()
	respondJSON(w, http.StatusOK, report)
}

// GetForecast returns the five-section forecast. Query parameters:
// from, to (YYYY-MM, default current month through five ahead) and
// metric (hours|revenue, default revenue).
func (h *ReportHandler) GetForecast(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()

	opts := service.ForecastOptions{
		From:   r.URL.Query().Get("from"),
		To:     r.URL.Query().Get("to"),
		Metric: domain.MetricMode(r.URL.Query().Get("metric")),
		Now:    now,
	}
	if opts.From == "" && opts.To == "" {
		opts.From = domain.MonthKeyOf(now)
		opts.To = domain.AddMonths(opts.From, defaultForecastMonths-1)
	}
	if opts.Metric == "" {
		opts.Metric = domain.MetricRevenue
	}

	report, err := h.reportService.ForecastReport(r.Context(), opts)
	if err != nil {
		h.respondReportError(w, "forecast", err)
		return
	}

	h.metrics.ReportsGenerated.WithLabelValues("forecast", "ok").Inc()
	respondJSON(w, http.StatusOK, report)
}

// GetSummary returns the firm-wide summary, computed fresh.
func (h *ReportHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	report, err := h.reportService.SummaryReport(r.Context(), time.Now().UTC())
	if err != nil {
		h.respondReportError(w, "summary", err)
		return
	}

	h.metrics.ReportsGenerated.WithLabelValues("summary", "ok").Inc()
	respondJSON(w, http.StatusOK, report)
}

// GetHistory returns persisted summary snapshots, newest first. Query
// parameter limit caps the page size.
func (h *ReportHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondWithError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	history, err := h.snapshots.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list snapshots", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "failed to load snapshot history")
		return
	}

	respondJSON(w, http.StatusOK, history)
}

// respondReportError maps service errors onto HTTP statuses: invalid input
// to 400, upstream failures to 503, anything else to 500.
func (h *ReportHandler) respondReportError(w http.ResponseWriter, kind string, err error) {
	h.metrics.ReportsGenerated.WithLabelValues(kind, "error").Inc()

	switch {
	case errors.Is(err, service.ErrInvalidMonthRange), errors.Is(err, service.ErrInvalidMetric):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUpstreamUnavailable):
		h.logger.Error("report upstream unavailable", zap.String("report", kind), zap.Error(err))
		respondWithError(w, http.StatusServiceUnavailable, "an upstream data source is unavailable")
	default:
		h.logger.Error("report generation failed", zap.String("report", kind), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "report generation failed")
	}
}
