package service

import (
	"github.com/northpine-consulting/insight-api/internal/domain"
	"go.uber.org/zap"
)

// SummaryService rolls analyzer output up into firm-wide counts.
type SummaryService struct {
	logger *zap.Logger
}

func NewSummaryService(logger *zap.Logger) *SummaryService {
	return &SummaryService{logger: logger}
}

// Roll derives the firm-wide summary from the resource and project health
// records plus the pipeline matcher's unmatched count.
func (s *SummaryService) Roll(resources []domain.ResourceHealth, projects []domain.ProjectHealth, unmatchedDeals int) domain.Summary {
	summary := domain.Summary{UnmatchedDealCount: unmatchedDeals}

	for i := range resources {
		r := &resources[i]
		switch r.Bucket {
		case domain.BucketOverrun:
			summary.OverrunCount++
		case domain.BucketSeverelyUnder:
			summary.SeverelyUnderCount++
		}
		if r.HasPace && r.Pace == domain.PaceLate {
			summary.LatePaceCount++
		}
		if r.IsUnassigned {
			summary.UnassignedCount++
		}
	}

	for i := range projects {
		p := &projects[i]
		if !p.HasPipelineMatch {
			continue
		}
		summary.TotalBookedValue += p.PipelineValue
		if p.PlanBookedPct < 85 || p.PlanBookedPct > 120 {
			summary.ScopingErrorCount++
		}
		if p.FeesBookedPct > 100 {
			summary.OverBilledCount++
		}
		if p.DurationPct > 50 && p.FeesBookedPct < 50 {
			summary.UnderBilledCount++
		}
	}

	s.logger.Debug("summary rolled",
		zap.Int("resources", len(resources)),
		zap.Int("projects", len(projects)),
		zap.Int("unmatched_deals", unmatchedDeals),
	)

	return summary
}
