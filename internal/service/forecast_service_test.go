package service_test

import (
	"testing"
	"time"

	"github.com/northpine-consulting/insight-api/internal/config"
	"github.com/northpine-consulting/insight-api/internal/domain"
	"github.com/northpine-consulting/insight-api/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func reportConfig() config.ReportConfig {
	return config.ReportConfig{
		InternalClientID:          "client-internal",
		InternalProjectPrefix:     "internal:",
		ProjectFieldKey:           projectField,
		StartMonthFieldKey:        "delivery_start",
		DurationFieldKey:          "delivery_months",
		DefaultDealDurationMonths: 3,
		StageProbabilities: map[string]int{
			"lead":        10,
			"qualified":   25,
			"proposal":    50,
			"negotiation": 75,
		},
		DefaultProbabilityPct: 50,
		EarlyStagePattern:     "lead",
	}
}

func openDeal(id int64, title, stage string, value float64, closeDay string, custom map[string]string) domain.PipelineDeal {
	d := domain.PipelineDeal{
		ID:           id,
		Title:        title,
		Value:        value,
		Status:       domain.DealStatusOpen,
		StageName:    stage,
		OrgName:      "Acme",
		CustomFields: custom,
	}
	if closeDay != "" {
		closeDate, _ := time.Parse("2006-01-02", closeDay)
		d.CloseDate = &closeDate
	}
	return d
}

func sectionByName(t *testing.T, sections []domain.ForecastSection, name string) domain.ForecastSection {
	t.Helper()
	for _, s := range sections {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("section %s not found", name)
	return domain.ForecastSection{}
}

func TestForecastService_PipelineSpread(t *testing.T) {
	svc := service.NewForecastService(reportConfig(), zap.NewNop())
	now := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	t.Run("deal value spreads from the month after close", func(t *testing.T) {
		deal := openDeal(1, "Big build", "Proposal sent", 90000, "2025-03-15", nil)
		sections := svc.Compose(nil, []domain.PipelineDeal{deal}, "2025-02", "2025-08", domain.MetricRevenue, now)

		unfactored := sectionByName(t, sections, domain.SectionPipelineUnfactored)
		require.Len(t, unfactored.Rows, 1)
		months := unfactored.Rows[0].Months
		assert.Zero(t, months["2025-03"])
		assert.InDelta(t, 30000.0, months["2025-04"], 1e-9)
		assert.InDelta(t, 30000.0, months["2025-05"], 1e-9)
		assert.InDelta(t, 30000.0, months["2025-06"], 1e-9)
		assert.Zero(t, months["2025-07"])
		assert.InDelta(t, 90000.0, unfactored.Rows[0].Total, 1e-9)

		factored := sectionByName(t, sections, domain.SectionPipelineFactored)
		assert.Equal(t, 50, factored.Rows[0].ProbabilityPct)
		assert.InDelta(t, 15000.0, factored.Rows[0].Months["2025-04"], 1e-9)
		assert.InDelta(t, 45000.0, factored.Rows[0].Total, 1e-9)
	})

	t.Run("explicit delivery fields override the close date", func(t *testing.T) {
		deal := openDeal(2, "Scheduled", "Negotiation", 40000, "2025-03-15", map[string]string{
			"delivery_start":  "2025-06",
			"delivery_months": "2",
		})
		sections := svc.Compose(nil, []domain.PipelineDeal{deal}, "2025-02", "2025-08", domain.MetricRevenue, now)

		unfactored := sectionByName(t, sections, domain.SectionPipelineUnfactored)
		months := unfactored.Rows[0].Months
		assert.InDelta(t, 20000.0, months["2025-06"], 1e-9)
		assert.InDelta(t, 20000.0, months["2025-07"], 1e-9)
		assert.Zero(t, months["2025-04"])
	})

	t.Run("non-positive duration falls back to the default", func(t *testing.T) {
		deal := openDeal(3, "Bad duration", "Proposal", 30000, "2025-03-15", map[string]string{
			"delivery_months": "0",
		})
		sections := svc.Compose(nil, []domain.PipelineDeal{deal}, "2025-02", "2025-08", domain.MetricRevenue, now)
		unfactored := sectionByName(t, sections, domain.SectionPipelineUnfactored)
		assert.InDelta(t, 10000.0, unfactored.Rows[0].Months["2025-04"], 1e-9)
	})

	t.Run("early-stage deals are excluded", func(t *testing.T) {
		deal := openDeal(4, "Too early", "Inbound Lead", 90000, "2025-03-15", nil)
		sections := svc.Compose(nil, []domain.PipelineDeal{deal}, "2025-02", "2025-08", domain.MetricRevenue, now)
		assert.Empty(t, sectionByName(t, sections, domain.SectionPipelineUnfactored).Rows)
	})

	t.Run("deal with no resolvable start spreads nothing", func(t *testing.T) {
		deal := openDeal(5, "Dateless", "Proposal", 90000, "", nil)
		sections := svc.Compose(nil, []domain.PipelineDeal{deal}, "2025-02", "2025-08", domain.MetricRevenue, now)
		unfactored := sectionByName(t, sections, domain.SectionPipelineUnfactored)
		require.Len(t, unfactored.Rows, 1)
		assert.Zero(t, unfactored.Rows[0].Total)
	})

	t.Run("hours mode carries no pipeline estimates", func(t *testing.T) {
		deal := openDeal(6, "Revenue only", "Proposal", 90000, "2025-03-15", nil)
		sections := svc.Compose(nil, []domain.PipelineDeal{deal}, "2025-02", "2025-08", domain.MetricHours, now)
		unfactored := sectionByName(t, sections, domain.SectionPipelineUnfactored)
		require.Len(t, unfactored.Rows, 1)
		assert.Zero(t, unfactored.Rows[0].Total)
	})

	t.Run("longest stage pattern wins", func(t *testing.T) {
		cfg := reportConfig()
		cfg.StageProbabilities["final negotiation"] = 90
		svc := service.NewForecastService(cfg, zap.NewNop())

		deal := openDeal(7, "Almost there", "Final Negotiation", 10000, "2025-03-15", nil)
		sections := svc.Compose(nil, []domain.PipelineDeal{deal}, "2025-02", "2025-08", domain.MetricRevenue, now)
		factored := sectionByName(t, sections, domain.SectionPipelineFactored)
		assert.Equal(t, 90, factored.Rows[0].ProbabilityPct)
	})

	t.Run("unknown stage uses the default probability", func(t *testing.T) {
		deal := openDeal(8, "Mystery", "Handshake", 10000, "2025-03-15", nil)
		sections := svc.Compose(nil, []domain.PipelineDeal{deal}, "2025-02", "2025-08", domain.MetricRevenue, now)
		factored := sectionByName(t, sections, domain.SectionPipelineFactored)
		assert.Equal(t, 50, factored.Rows[0].ProbabilityPct)
	})
}

func TestForecastService_ProjectSections(t *testing.T) {
	svc := service.NewForecastService(reportConfig(), zap.NewNop())
	now := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	buildProjects := func(t *testing.T, fixedFees map[string]domain.MonthlySeries) []domain.ProjectForecast {
		t.Helper()
		schedule, actuals := aggregate(t,
			[]domain.PlannedAssignment{
				row("Alice", "P-1", "Platform", "2025-01", 100, 100),
				row("Alice", "P-1", "Platform", "2025-02", 80, 100),
				row("Alice", "P-1", "Platform", "2025-03", 60, 100),
			},
			[]domain.ActualEntry{
				entry("Alice", "P-1", "c1", "2025-01-15", 110),
			},
		)
		return service.BuildProjectForecasts(schedule, actuals, nil, fixedFees)
	}

	t.Run("past months use actuals, current and future use plan", func(t *testing.T) {
		projects := buildProjects(t, nil)
		sections := svc.Compose(projects, nil, "2025-01", "2025-03", domain.MetricRevenue, now)

		hoursBased := sectionByName(t, sections, domain.SectionHoursBased)
		require.Len(t, hoursBased.Rows, 1)
		months := hoursBased.Rows[0].Months
		assert.InDelta(t, 11000.0, months["2025-01"], 1e-9) // 110 actual * 100
		assert.InDelta(t, 8000.0, months["2025-02"], 1e-9)  // 80 planned * 100
		assert.InDelta(t, 6000.0, months["2025-03"], 1e-9)
	})

	t.Run("hours metric reports raw hours", func(t *testing.T) {
		projects := buildProjects(t, nil)
		sections := svc.Compose(projects, nil, "2025-01", "2025-03", domain.MetricHours, now)

		hoursBased := sectionByName(t, sections, domain.SectionHoursBased)
		assert.InDelta(t, 110.0, hoursBased.Rows[0].Months["2025-01"], 1e-9)
		assert.InDelta(t, 80.0, hoursBased.Rows[0].Months["2025-02"], 1e-9)
	})

	t.Run("fixed fee replaces hours-times-rate wholesale", func(t *testing.T) {
		fees := map[string]domain.MonthlySeries{
			"P-1": {"2025-01": 5000, "2025-02": 5000},
		}
		projects := buildProjects(t, fees)
		sections := svc.Compose(projects, nil, "2025-01", "2025-03", domain.MetricRevenue, now)

		fixedFee := sectionByName(t, sections, domain.SectionFixedFee)
		assert.InDelta(t, 5000.0, fixedFee.Rows[0].Months["2025-01"], 1e-9)
		assert.InDelta(t, 5000.0, fixedFee.Rows[0].Months["2025-02"], 1e-9)
		assert.Zero(t, fixedFee.Rows[0].Months["2025-03"])

		// Section 1 ignores the fixed-fee schedule.
		hoursBased := sectionByName(t, sections, domain.SectionHoursBased)
		assert.InDelta(t, 11000.0, hoursBased.Rows[0].Months["2025-01"], 1e-9)
	})

	t.Run("section totals are column sums", func(t *testing.T) {
		projects := buildProjects(t, nil)
		sections := svc.Compose(projects, nil, "2025-01", "2025-03", domain.MetricRevenue, now)

		hoursBased := sectionByName(t, sections, domain.SectionHoursBased)
		var rowSum float64
		for _, r := range hoursBased.Rows {
			rowSum += r.Total
		}
		assert.InDelta(t, rowSum, hoursBased.GrandTotal, 1e-9)
		assert.InDelta(t, hoursBased.GrandTotal, hoursBased.Totals.Total(), 1e-9)
	})
}

func TestForecastService_UnifiedSection(t *testing.T) {
	svc := service.NewForecastService(reportConfig(), zap.NewNop())
	now := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	schedule, actuals := aggregate(t,
		[]domain.PlannedAssignment{row("Alice", "P-1", "Platform", "2025-02", 100, 100)},
		nil,
	)
	projects := service.BuildProjectForecasts(schedule, actuals, nil, nil)
	deal := openDeal(1, "Pipeline deal", "Proposal", 30000, "2025-02-10", nil)

	sections := svc.Compose(projects, []domain.PipelineDeal{deal}, "2025-02", "2025-06", domain.MetricRevenue, now)
	unified := sectionByName(t, sections, domain.SectionUnified)

	require.Len(t, unified.Rows, 2)

	// Booked row: stamped as won at full value.
	assert.Equal(t, "Won", unified.Rows[0].Stage)
	assert.Equal(t, 100, unified.Rows[0].ProbabilityPct)
	assert.Equal(t, "P-1", unified.Rows[0].ProjectKey)

	// Pipeline row keeps its stage and discount.
	assert.Equal(t, "Proposal", unified.Rows[1].Stage)
	assert.Equal(t, 50, unified.Rows[1].ProbabilityPct)

	fixedFee := sectionByName(t, sections, domain.SectionFixedFee)
	factored := sectionByName(t, sections, domain.SectionPipelineFactored)
	assert.InDelta(t, fixedFee.GrandTotal+factored.GrandTotal, unified.GrandTotal, 1e-9)
}

func TestBuildProjectForecasts(t *testing.T) {
	schedule, actuals := aggregate(t,
		[]domain.PlannedAssignment{row("Alice", "P-1", "Platform", "2025-01", 100, 100)},
		[]domain.ActualEntry{entry("Bob", "P-2", "c1", "2025-01-10", 5)},
	)
	won := &service.PipelineResult{
		Matches: map[string]*domain.PipelineMatch{
			"P-1": {ProjectKey: "P-1", Value: 50000, DealTitles: []string{"Phase 1"}},
		},
	}
	fees := map[string]domain.MonthlySeries{"P-2": {"2025-01": 1000}}

	projects := service.BuildProjectForecasts(schedule, actuals, won, fees)
	require.Len(t, projects, 2)

	// Sorted by project key.
	assert.Equal(t, "P-1", projects[0].ProjectKey)
	assert.Equal(t, "P-2", projects[1].ProjectKey)

	assert.True(t, projects[0].HasPipelineMatch)
	assert.Equal(t, 50000.0, projects[0].PipelineValue)
	assert.False(t, projects[0].HasFixedFee)

	// Actuals-only project still appears, with its fixed fee attached.
	assert.True(t, projects[1].HasFixedFee)
	assert.Equal(t, 5.0, projects[1].ActualHours.Total())
	assert.False(t, projects[1].HasPipelineMatch)
}
