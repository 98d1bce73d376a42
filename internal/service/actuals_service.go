package service

import (
	"time"

	"github.com/northpine-consulting/insight-api/internal/domain"
	"go.uber.org/zap"
)

// ActualsResult is the actuals aggregator's output.
type ActualsResult struct {
	// ProjectHours maps projectKey to actual hours by month.
	ProjectHours map[string]domain.MonthlySeries
	// PairHours maps (staff, project) to total actual hours. Pairs appear
	// here even when no planned assignment exists for them; the analyzer
	// uses that to flag unplanned work.
	PairHours map[domain.ResourceKey]float64
	// EarliestDate holds the earliest logged date per project, used as the
	// project start when the plan gives none.
	EarliestDate map[string]time.Time
	// ExcludedInternal counts entries dropped for the internal-client
	// sentinel; ExcludedUnkeyed counts entries with no normalizable
	// project key.
	ExcludedInternal int
	ExcludedUnkeyed  int
}

// ActualsService folds time-log entries into per-project and per-pair hour
// totals. Entries for the internal client sentinel and zero-hour entries
// never reach the aggregation; negative hours (corrections) are summed.
type ActualsService struct {
	internalClientID string
	logger           *zap.Logger
}

func NewActualsService(internalClientID string, logger *zap.Logger) *ActualsService {
	return &ActualsService{
		internalClientID: domain.NormalizeKey(internalClientID),
		logger:           logger,
	}
}

// Aggregate builds the actuals maps from the supplied snapshot.
func (s *ActualsService) Aggregate(entries []domain.ActualEntry) *ActualsResult {
	result := &ActualsResult{
		ProjectHours: make(map[string]domain.MonthlySeries),
		PairHours:    make(map[domain.ResourceKey]float64),
		EarliestDate: make(map[string]time.Time),
	}

	for _, entry := range entries {
		if entry.Hours == 0 {
			continue
		}
		if s.internalClientID != "" && domain.NormalizeKey(entry.ClientID) == s.internalClientID {
			result.ExcludedInternal++
			continue
		}

		key := domain.NormalizeKey(entry.ProjectID)
		if key == "" {
			result.ExcludedUnkeyed++
			continue
		}

		month := domain.MonthKeyOf(entry.Date)
		series, ok := result.ProjectHours[key]
		if !ok {
			series = make(domain.MonthlySeries)
			result.ProjectHours[key] = series
		}
		series.Add(month, entry.Hours)

		rk := domain.ResourceKey{StaffName: entry.StaffName, ProjectKey: key}
		result.PairHours[rk] += entry.Hours

		if earliest, ok := result.EarliestDate[key]; !ok || entry.Date.Before(earliest) {
			result.EarliestDate[key] = entry.Date
		}
	}

	s.logger.Debug("actuals aggregated",
		zap.Int("input_entries", len(entries)),
		zap.Int("projects", len(result.ProjectHours)),
		zap.Int("excluded_internal", result.ExcludedInternal),
		zap.Int("excluded_unkeyed", result.ExcludedUnkeyed),
	)

	return result
}
