package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/northpine-consulting/insight-api/internal/config"
	"github.com/northpine-consulting/insight-api/internal/domain"
	"github.com/northpine-consulting/insight-api/internal/http/handler"
	"github.com/northpine-consulting/insight-api/internal/metrics"
	"github.com/northpine-consulting/insight-api/internal/service"
	"github.com/northpine-consulting/insight-api/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeWarehouse struct {
	assignments []domain.PlannedAssignment
	err         error
}

func (f *fakeWarehouse) FetchPlannedAssignments(ctx context.Context) ([]domain.PlannedAssignment, error) {
	return f.assignments, f.err
}

func (f *fakeWarehouse) FetchFixedFeeRevenue(ctx context.Context) (map[string]domain.MonthlySeries, error) {
	return nil, f.err
}

type fakeTimeTracking struct {
	entries []domain.ActualEntry
}

func (f *fakeTimeTracking) FetchEntries(ctx context.Context, from, to time.Time) ([]domain.ActualEntry, error) {
	return f.entries, nil
}

type fakeCRM struct {
	deals []domain.PipelineDeal
}

func (f *fakeCRM) FetchDeals(ctx context.Context) ([]domain.PipelineDeal, error) {
	return f.deals, nil
}

func testReportConfig() config.ReportConfig {
	return config.ReportConfig{
		InternalClientID:          "client-internal",
		InternalProjectPrefix:     "internal:",
		ProjectFieldKey:           "project_number",
		StartMonthFieldKey:        "delivery_start",
		DurationFieldKey:          "delivery_months",
		DefaultDealDurationMonths: 3,
		StageProbabilities:        map[string]int{"proposal": 50},
		DefaultProbabilityPct:     50,
		EarlyStagePattern:         "lead",
	}
}

func setupRouter(t *testing.T, wh *fakeWarehouse) http.Handler {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&store.SummarySnapshot{}))

	reportService := service.NewReportService(
		wh,
		&fakeTimeTracking{},
		&fakeCRM{},
		testReportConfig(),
		zap.NewNop(),
	)
	snapshots := store.NewSnapshotStore(db, zap.NewNop())
	m := metrics.NewWith(prometheus.NewRegistry())

	h := handler.NewReportHandler(reportService, snapshots, m, zap.NewNop())

	r := chi.NewRouter()
	r.Route("/api/v1/reports", func(r chi.Router) {
		r.Get("/resources", h.GetResources)
		r.Get("/projects", h.GetProjects)
		r.Get("/forecast", h.GetForecast)
		r.Get("/summary", h.GetSummary)
		r.Get("/history", h.GetHistory)
	})
	return r
}

func plannedRows() []domain.PlannedAssignment {
	return []domain.PlannedAssignment{
		{
			StaffName:      "Alice",
			ProjectID:      "P-1",
			ClientName:     "Acme",
			ProjectName:    "Platform",
			Month:          "2025-01",
			AllocatedHours: 100,
			BillRate:       120,
		},
	}
}

func TestReportHandler_GetForecast(t *testing.T) {
	router := setupRouter(t, &fakeWarehouse{assignments: plannedRows()})

	t.Run("explicit range and metric", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/forecast?from=2025-01&to=2025-03&metric=hours", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var body domain.ForecastReportDTO
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, domain.MetricHours, body.Metric)
		assert.Equal(t, []string{"2025-01", "2025-02", "2025-03"}, body.Months)
		assert.Len(t, body.Sections, 5)
	})

	t.Run("defaults to a six month revenue window", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/forecast", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var body domain.ForecastReportDTO
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, domain.MetricRevenue, body.Metric)
		assert.Len(t, body.Months, 6)
		assert.Equal(t, domain.MonthKeyOf(time.Now().UTC()), body.Months[0])
	})

	t.Run("inverted range is a bad request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/forecast?from=2025-06&to=2025-01", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var apiErr domain.APIError
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
		assert.Equal(t, domain.ErrorTypeBadRequest, apiErr.Type)
	})

	t.Run("unknown metric is a bad request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/forecast?from=2025-01&to=2025-03&metric=euros", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestReportHandler_GetResources(t *testing.T) {
	router := setupRouter(t, &fakeWarehouse{assignments: plannedRows()})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/resources", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body domain.ResourceReportDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Resources, 1)
	assert.Equal(t, "Alice", body.Resources[0].StaffName)
	assert.Equal(t, 1, body.Metadata.AssignmentCount)
}

func TestReportHandler_UpstreamFailure(t *testing.T) {
	router := setupRouter(t, &fakeWarehouse{err: errors.New("connection refused")})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/summary", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var apiErr domain.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, domain.ErrorTypeUnavailable, apiErr.Type)
}

func TestReportHandler_GetHistory(t *testing.T) {
	router := setupRouter(t, &fakeWarehouse{assignments: plannedRows()})

	t.Run("empty store", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/history", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var body domain.SnapshotListDTO
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Zero(t, body.Total)
	})

	t.Run("bad limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/history?limit=abc", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
