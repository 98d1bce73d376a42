package service_test

import (
	"testing"

	"github.com/northpine-consulting/insight-api/internal/domain"
	"github.com/northpine-consulting/insight-api/internal/service"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestSummaryService_Roll(t *testing.T) {
	svc := service.NewSummaryService(zap.NewNop())

	t.Run("counts resource problems", func(t *testing.T) {
		resources := []domain.ResourceHealth{
			{Bucket: domain.BucketOverrun},
			{Bucket: domain.BucketOverrun, IsUnassigned: true},
			{Bucket: domain.BucketSeverelyUnder, HasPace: true, Pace: domain.PaceLate},
			{Bucket: domain.BucketOnTarget, HasPace: true, Pace: domain.PaceOnSchedule},
			// A late pace bucket without HasPace must not count.
			{Bucket: domain.BucketUnderTarget, Pace: domain.PaceLate},
		}

		summary := svc.Roll(resources, nil, 4)
		assert.Equal(t, 2, summary.OverrunCount)
		assert.Equal(t, 1, summary.SeverelyUnderCount)
		assert.Equal(t, 1, summary.LatePaceCount)
		assert.Equal(t, 1, summary.UnassignedCount)
		assert.Equal(t, 4, summary.UnmatchedDealCount)
	})

	t.Run("classifies matched projects only", func(t *testing.T) {
		projects := []domain.ProjectHealth{
			{HasPipelineMatch: true, PipelineValue: 10000, PlanBookedPct: 100, FeesBookedPct: 40, DurationPct: 30},
			{HasPipelineMatch: true, PipelineValue: 20000, PlanBookedPct: 150, FeesBookedPct: 110, DurationPct: 80},
			{HasPipelineMatch: true, PipelineValue: 5000, PlanBookedPct: 90, FeesBookedPct: 20, DurationPct: 60},
			// Unmatched projects never classify, whatever their numbers.
			{HasPipelineMatch: false, PlanBookedPct: 500, FeesBookedPct: 500, DurationPct: 99},
		}

		summary := svc.Roll(nil, projects, 0)
		assert.Equal(t, 1, summary.ScopingErrorCount) // 150 outside [85, 120]
		assert.Equal(t, 1, summary.OverBilledCount)   // 110 > 100
		assert.Equal(t, 1, summary.UnderBilledCount)  // duration 60 > 50, fees 20 < 50
		assert.InDelta(t, 35000.0, summary.TotalBookedValue, 1e-9)
	})

	t.Run("boundary booked percentages are healthy", func(t *testing.T) {
		projects := []domain.ProjectHealth{
			{HasPipelineMatch: true, PipelineValue: 1000, PlanBookedPct: 85},
			{HasPipelineMatch: true, PipelineValue: 1000, PlanBookedPct: 120},
			{HasPipelineMatch: true, PipelineValue: 1000, PlanBookedPct: 100, FeesBookedPct: 100},
		}
		summary := svc.Roll(nil, projects, 0)
		assert.Zero(t, summary.ScopingErrorCount)
		assert.Zero(t, summary.OverBilledCount)
	})
}
