package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/northpine-consulting/insight-api/internal/domain"
	"github.com/northpine-consulting/insight-api/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubWarehouse struct {
	assignments []domain.PlannedAssignment
	fixedFees   map[string]domain.MonthlySeries
	err         error
}

func (s *stubWarehouse) FetchPlannedAssignments(ctx context.Context) ([]domain.PlannedAssignment, error) {
	return s.assignments, s.err
}

func (s *stubWarehouse) FetchFixedFeeRevenue(ctx context.Context) (map[string]domain.MonthlySeries, error) {
	return s.fixedFees, s.err
}

type stubTimeTracking struct {
	entries []domain.ActualEntry
	err     error
}

func (s *stubTimeTracking) FetchEntries(ctx context.Context, from, to time.Time) ([]domain.ActualEntry, error) {
	return s.entries, s.err
}

type stubCRM struct {
	deals []domain.PipelineDeal
	err   error
}

func (s *stubCRM) FetchDeals(ctx context.Context) ([]domain.PipelineDeal, error) {
	return s.deals, s.err
}

func newReportService(wh *stubWarehouse, tt *stubTimeTracking, crm *stubCRM) *service.ReportService {
	return service.NewReportService(wh, tt, crm, reportConfig(), zap.NewNop())
}

func TestReportService_ForecastReport(t *testing.T) {
	now := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	wh := &stubWarehouse{
		assignments: []domain.PlannedAssignment{
			row("Alice", "P-1", "Platform", "2025-02", 100, 100),
			row("Alice", "P-1", "Platform", "2025-03", 100, 100),
		},
	}
	tt := &stubTimeTracking{
		entries: []domain.ActualEntry{entry("Alice", "P-1", "c1", "2025-01-15", 40)},
	}
	crmStub := &stubCRM{
		deals: []domain.PipelineDeal{
			wonDeal(1, "Phase 1", "P-1", 50000, "2025-01-05"),
			openDeal(2, "Phase 2", "Proposal", 30000, "2025-02-10", nil),
			wonDeal(3, "Stray", "P-404", 9000, "2025-01-05"),
		},
	}
	svc := newReportService(wh, tt, crmStub)

	t.Run("assembles all five sections with metadata", func(t *testing.T) {
		report, err := svc.ForecastReport(context.Background(), service.ForecastOptions{
			From: "2025-02", To: "2025-06", Metric: domain.MetricRevenue, Now: now,
		})
		require.NoError(t, err)

		assert.Len(t, report.Sections, 5)
		assert.Equal(t, []string{"2025-02", "2025-03", "2025-04", "2025-05", "2025-06"}, report.Months)
		assert.Equal(t, 2, report.Metadata.AssignmentCount)
		assert.Equal(t, 3, report.Metadata.DealCount)
		assert.Equal(t, 1, report.Metadata.EntryCount)

		// The stray won deal matched no known project.
		assert.Equal(t, 1, report.Summary.UnmatchedDealCount)
		assert.InDelta(t, 50000.0, report.Summary.TotalBookedValue, 1e-9)
	})

	t.Run("identical snapshots produce identical reports", func(t *testing.T) {
		opts := service.ForecastOptions{From: "2025-02", To: "2025-06", Metric: domain.MetricRevenue, Now: now}
		a, err := svc.ForecastReport(context.Background(), opts)
		require.NoError(t, err)
		b, err := svc.ForecastReport(context.Background(), opts)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("rejects inverted month ranges", func(t *testing.T) {
		_, err := svc.ForecastReport(context.Background(), service.ForecastOptions{
			From: "2025-06", To: "2025-02", Metric: domain.MetricRevenue, Now: now,
		})
		assert.ErrorIs(t, err, service.ErrInvalidMonthRange)
	})

	t.Run("rejects malformed month keys", func(t *testing.T) {
		_, err := svc.ForecastReport(context.Background(), service.ForecastOptions{
			From: "February", To: "2025-06", Metric: domain.MetricRevenue, Now: now,
		})
		assert.ErrorIs(t, err, service.ErrInvalidMonthRange)
	})

	t.Run("rejects unknown metrics", func(t *testing.T) {
		_, err := svc.ForecastReport(context.Background(), service.ForecastOptions{
			From: "2025-02", To: "2025-06", Metric: "euros", Now: now,
		})
		assert.ErrorIs(t, err, service.ErrInvalidMetric)
	})

	t.Run("wraps upstream failures", func(t *testing.T) {
		broken := newReportService(
			&stubWarehouse{err: errors.New("connection refused")},
			tt, crmStub,
		)
		_, err := broken.ForecastReport(context.Background(), service.ForecastOptions{
			From: "2025-02", To: "2025-06", Metric: domain.MetricRevenue, Now: now,
		})
		assert.ErrorIs(t, err, service.ErrUpstreamUnavailable)
	})
}

func TestReportService_ResourceReport(t *testing.T) {
	now := time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC)

	svc := newReportService(
		&stubWarehouse{
			assignments: []domain.PlannedAssignment{
				row("Alice", "P-1", "Platform", "2025-01", 100, 100),
				row("Alice", "P-1", "Platform", "2025-02", 100, 100),
			},
		},
		&stubTimeTracking{
			entries: []domain.ActualEntry{
				entry("Alice", "P-1", "c1", "2025-01-20", 60),
				entry("Alice", "P-1", "c1", "2025-02-10", 60),
				entry("Bob", "P-9", "c1", "2025-02-01", 10),
			},
		},
		&stubCRM{},
	)

	report, err := svc.ResourceReport(context.Background(), now)
	require.NoError(t, err)

	require.Len(t, report.Resources, 2)
	assert.Equal(t, 1, report.Summary.SeverelyUnderCount)
	assert.Equal(t, 1, report.Summary.LatePaceCount)
	assert.Equal(t, 1, report.Summary.UnassignedCount)
}

func TestReportService_ProjectReport(t *testing.T) {
	now := time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)

	svc := newReportService(
		&stubWarehouse{
			assignments: []domain.PlannedAssignment{
				row("Alice", "P-1", "Platform", "2025-01", 100, 100),
			},
			fixedFees: map[string]domain.MonthlySeries{"P-1": {"2025-01": 12000}},
		},
		&stubTimeTracking{},
		&stubCRM{deals: []domain.PipelineDeal{wonDeal(1, "Phase 1", "P-1", 10000, "2024-12-01")}},
	)

	report, err := svc.ProjectReport(context.Background(), now)
	require.NoError(t, err)

	require.Len(t, report.Projects, 1)
	p := report.Projects[0]
	assert.True(t, p.HasPipelineMatch)
	assert.InDelta(t, 100.0, p.PlanBookedPct, 1e-9)
	assert.InDelta(t, 10000.0, report.Summary.TotalBookedValue, 1e-9)
}
