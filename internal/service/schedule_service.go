package service

import (
	"sort"
	"strings"

	"github.com/northpine-consulting/insight-api/internal/domain"
	"go.uber.org/zap"
)

// ProjectPlan carries the per-project aggregation of the planned schedule:
// hours and revenue by month across all staff, plus the descriptive fields
// and rate accumulators the later stages need.
type ProjectPlan struct {
	ProjectKey        string
	ClientName        string
	ProjectName       string
	MonthlyHours      domain.MonthlySeries
	MonthlyRevenue    domain.MonthlySeries
	FirstPlannedMonth string
	LastPlannedMonth  string
	WeightedBillRate  float64
}

// ScheduleResult is the planned-schedule aggregator's output: one record per
// (staff, project) pair and one per project.
type ScheduleResult struct {
	Resources map[domain.ResourceKey]*domain.ResourceAssignment
	Projects  map[string]*ProjectPlan
	// DroppedRows counts input rows excluded for missing project keys or
	// internal-prefix project names.
	DroppedRows int
}

// rateAccumulator tracks the weighted-average components over priced rows
// (rate > 0 and hours > 0) only.
type rateAccumulator struct {
	weighted float64
	hours    float64
}

func (a *rateAccumulator) add(rate, hours float64) {
	if rate > 0 && hours > 0 {
		a.weighted += rate * hours
		a.hours += hours
	}
}

func (a *rateAccumulator) average() float64 {
	if a.hours == 0 {
		return 0
	}
	return a.weighted / a.hours
}

// ScheduleService folds planned-assignment rows into per-resource and
// per-project plan records. Pure computation over the supplied snapshot.
type ScheduleService struct {
	internalPrefix string
	logger         *zap.Logger
}

func NewScheduleService(internalProjectPrefix string, logger *zap.Logger) *ScheduleService {
	return &ScheduleService{
		internalPrefix: strings.ToLower(internalProjectPrefix),
		logger:         logger,
	}
}

// Aggregate builds the schedule maps in two passes: accumulate keyed maps
// first, then derive the weighted rates. Rows without a normalizable project
// key and rows for internal-prefix projects are dropped and counted.
func (s *ScheduleService) Aggregate(assignments []domain.PlannedAssignment) *ScheduleResult {
	result := &ScheduleResult{
		Resources: make(map[domain.ResourceKey]*domain.ResourceAssignment),
		Projects:  make(map[string]*ProjectPlan),
	}

	resourceRates := make(map[domain.ResourceKey]*rateAccumulator)
	projectRates := make(map[string]*rateAccumulator)

	for _, row := range assignments {
		key := domain.NormalizeKey(row.ProjectID)
		if key == "" {
			result.DroppedRows++
			continue
		}
		if s.isInternalProject(row.ProjectName) {
			result.DroppedRows++
			continue
		}

		rk := domain.ResourceKey{StaffName: row.StaffName, ProjectKey: key}
		res, ok := result.Resources[rk]
		if !ok {
			res = &domain.ResourceAssignment{
				StaffName:           row.StaffName,
				ProjectKey:          key,
				ClientName:          row.ClientName,
				ProjectName:         row.ProjectName,
				MonthlyPlannedHours: make(domain.MonthlySeries),
			}
			result.Resources[rk] = res
			resourceRates[rk] = &rateAccumulator{}
		}

		res.TotalPlannedHours += row.AllocatedHours
		res.MonthlyPlannedHours.Add(row.Month, row.AllocatedHours)
		resourceRates[rk].add(row.BillRate, row.AllocatedHours)

		// First/last planned months track months with hours > 0 only, so
		// zero-hour placeholder rows never stretch the schedule window.
		if row.AllocatedHours > 0 {
			if res.FirstPlannedMonth == "" || row.Month < res.FirstPlannedMonth {
				res.FirstPlannedMonth = row.Month
			}
			if res.LastPlannedMonth == "" || row.Month > res.LastPlannedMonth {
				res.LastPlannedMonth = row.Month
			}
		}

		proj, ok := result.Projects[key]
		if !ok {
			proj = &ProjectPlan{
				ProjectKey:     key,
				ClientName:     row.ClientName,
				ProjectName:    row.ProjectName,
				MonthlyHours:   make(domain.MonthlySeries),
				MonthlyRevenue: make(domain.MonthlySeries),
			}
			result.Projects[key] = proj
			projectRates[key] = &rateAccumulator{}
		}

		proj.MonthlyHours.Add(row.Month, row.AllocatedHours)
		// Revenue sums per row; the weighted rate below is for display and
		// forecasting only and never substitutes for these sums.
		proj.MonthlyRevenue.Add(row.Month, row.AllocatedHours*row.BillRate)
		projectRates[key].add(row.BillRate, row.AllocatedHours)

		if row.AllocatedHours > 0 {
			if proj.FirstPlannedMonth == "" || row.Month < proj.FirstPlannedMonth {
				proj.FirstPlannedMonth = row.Month
			}
			if proj.LastPlannedMonth == "" || row.Month > proj.LastPlannedMonth {
				proj.LastPlannedMonth = row.Month
			}
		}
	}

	for rk, acc := range resourceRates {
		result.Resources[rk].WeightedBillRate = acc.average()
	}
	for key, acc := range projectRates {
		result.Projects[key].WeightedBillRate = acc.average()
	}

	s.logger.Debug("planned schedule aggregated",
		zap.Int("input_rows", len(assignments)),
		zap.Int("resource_pairs", len(result.Resources)),
		zap.Int("projects", len(result.Projects)),
		zap.Int("dropped_rows", result.DroppedRows),
	)

	return result
}

func (s *ScheduleService) isInternalProject(projectName string) bool {
	if s.internalPrefix == "" {
		return false
	}
	return strings.HasPrefix(strings.ToLower(projectName), s.internalPrefix)
}

// SortedProjectKeys returns the project keys in stable order, for
// deterministic report output.
func (r *ScheduleResult) SortedProjectKeys() []string {
	keys := make([]string, 0, len(r.Projects))
	for k := range r.Projects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
