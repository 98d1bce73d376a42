package service

import (
	"github.com/northpine-consulting/insight-api/internal/domain"
	"go.uber.org/zap"
)

// PipelineResult is the pipeline matcher's output.
type PipelineResult struct {
	// Matches maps projectKey to the aggregate of every deal matched to it.
	Matches map[string]*domain.PipelineMatch
	// UnmatchedCount counts deals that carried no usable project field or
	// whose key matched no known project. They are surfaced in the
	// summary, never silently dropped.
	UnmatchedCount int
	// FilteredCount is the number of deals that passed the status filter.
	FilteredCount int
}

// PipelineService joins CRM deals to projects through a configured custom
// field. A project may match zero, one, or many deals: values are summed
// over all matches (duplicates included), and the most recent won/close date
// among them becomes the representative date.
type PipelineService struct {
	projectFieldKey string
	logger          *zap.Logger
}

func NewPipelineService(projectFieldKey string, logger *zap.Logger) *PipelineService {
	return &PipelineService{
		projectFieldKey: projectFieldKey,
		logger:          logger,
	}
}

// Match aggregates deals with the given status against the known project
// keys. knownProjects decides whether a keyed deal counts as matched; a nil
// map treats every keyed deal as unmatched.
func (s *PipelineService) Match(deals []domain.PipelineDeal, status domain.DealStatus, knownProjects map[string]bool) *PipelineResult {
	result := &PipelineResult{
		Matches: make(map[string]*domain.PipelineMatch),
	}

	for i := range deals {
		deal := &deals[i]
		if deal.Status != status {
			continue
		}
		result.FilteredCount++

		key := domain.NormalizeKey(deal.CustomFields[s.projectFieldKey])
		if key == "" || !knownProjects[key] {
			result.UnmatchedCount++
			continue
		}

		match, ok := result.Matches[key]
		if !ok {
			match = &domain.PipelineMatch{ProjectKey: key}
			result.Matches[key] = match
		}
		match.Value += deal.Value
		match.DealTitles = append(match.DealTitles, deal.Title)

		if rep := deal.RepresentativeDate(); rep != nil {
			if match.LatestDate == nil || rep.After(*match.LatestDate) {
				match.LatestDate = rep
			}
		}
	}

	s.logger.Debug("pipeline deals matched",
		zap.String("status", string(status)),
		zap.Int("deals_considered", result.FilteredCount),
		zap.Int("projects_matched", len(result.Matches)),
		zap.Int("unmatched", result.UnmatchedCount),
	)

	return result
}
