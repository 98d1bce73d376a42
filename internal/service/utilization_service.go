package service

import (
	"sort"
	"time"

	"github.com/northpine-consulting/insight-api/internal/domain"
	"go.uber.org/zap"
)

// UtilizationService classifies resource pairs and projects into
// utilization-health and schedule-pace buckets. All computations are pure;
// "now" arrives as an explicit parameter.
type UtilizationService struct {
	logger *zap.Logger
}

func NewUtilizationService(logger *zap.Logger) *UtilizationService {
	return &UtilizationService{logger: logger}
}

// AnalyzeResources walks the union of planned and actual (staff, project)
// pairs: a pair with logged hours but no plan is a valid, flagged case, not
// an error. Pairs with neither planned nor actual hours are excluded from
// the output. Results are ordered worst-first: utilization sort order
// ascending, ties broken by pace ratio ascending.
func (s *UtilizationService) AnalyzeResources(schedule *ScheduleResult, actuals *ActualsResult, now time.Time) []domain.ResourceHealth {
	currentMonth := domain.MonthKeyOf(now)

	keys := make(map[domain.ResourceKey]bool, len(schedule.Resources))
	for rk := range schedule.Resources {
		keys[rk] = true
	}
	for rk := range actuals.PairHours {
		keys[rk] = true
	}

	records := make([]domain.ResourceHealth, 0, len(keys))
	for rk := range keys {
		rec := domain.ResourceHealth{
			StaffName:  rk.StaffName,
			ProjectKey: rk.ProjectKey,
		}

		if res, ok := schedule.Resources[rk]; ok {
			rec.ClientName = res.ClientName
			rec.ProjectName = res.ProjectName
			rec.TotalPlannedHours = res.TotalPlannedHours
		} else if proj, ok := schedule.Projects[rk.ProjectKey]; ok {
			// Unplanned pair on a known project: carry the project's
			// descriptive fields so the report stays readable.
			rec.ClientName = proj.ClientName
			rec.ProjectName = proj.ProjectName
		}
		rec.TotalActualHours = actuals.PairHours[rk]

		if rec.TotalPlannedHours == 0 && rec.TotalActualHours == 0 {
			continue
		}

		switch {
		case rec.TotalPlannedHours > 0:
			rec.PercentUsed = rec.TotalActualHours / rec.TotalPlannedHours * 100
		case rec.TotalActualHours > 0:
			// Work happened with no plan at all.
			rec.PercentUsed = domain.PercentUsedUnassigned
			rec.IsUnassigned = true
		}
		rec.Bucket = domain.ClassifyUtilization(rec.PercentUsed)

		if res, ok := schedule.Resources[rk]; ok && res.FirstPlannedMonth != "" && res.LastPlannedMonth != "" && rec.TotalPlannedHours > 0 {
			totalMonths := domain.MonthsBetween(res.FirstPlannedMonth, res.LastPlannedMonth)
			elapsedMonths := 0
			if currentMonth >= res.FirstPlannedMonth {
				elapsedMonths = domain.MonthsBetween(res.FirstPlannedMonth, currentMonth)
				if elapsedMonths > totalMonths {
					elapsedMonths = totalMonths
				}
			}
			if totalMonths > 0 {
				rec.HasPace = true
				rec.ScheduleProgress = float64(elapsedMonths) / float64(totalMonths)
				rec.ExpectedHoursToDate = rec.TotalPlannedHours * rec.ScheduleProgress
				if rec.ExpectedHoursToDate > 0 {
					rec.PaceRatio = rec.TotalActualHours / rec.ExpectedHoursToDate
				}
				rec.Pace = domain.ClassifyPace(rec.PaceRatio)
			}
		}

		records = append(records, rec)
	}

	sort.SliceStable(records, func(i, j int) bool {
		oi, oj := records[i].Bucket.SortOrder(), records[j].Bucket.SortOrder()
		if oi != oj {
			return oi < oj
		}
		if records[i].PaceRatio != records[j].PaceRatio {
			return records[i].PaceRatio < records[j].PaceRatio
		}
		if records[i].StaffName != records[j].StaffName {
			return records[i].StaffName < records[j].StaffName
		}
		return records[i].ProjectKey < records[j].ProjectKey
	})

	s.logger.Debug("resource utilization analyzed",
		zap.Int("pairs", len(records)),
		zap.String("current_month", currentMonth),
	)

	return records
}

// AnalyzeProjects derives per-project health: booked percentages against the
// matched pipeline value, day-based duration progress, and timeline status.
func (s *UtilizationService) AnalyzeProjects(projects []domain.ProjectForecast, now time.Time) []domain.ProjectHealth {
	records := make([]domain.ProjectHealth, 0, len(projects))

	for i := range projects {
		p := &projects[i]
		rec := domain.ProjectHealth{
			ProjectKey:       p.ProjectKey,
			ClientName:       p.ClientName,
			ProjectName:      p.ProjectName,
			PlannedHours:     p.PlannedHours.Total(),
			ActualHours:      p.ActualHours.Total(),
			PlannedRevenue:   p.PlannedRevenue.Total(),
			PipelineValue:    p.PipelineValue,
			DealTitles:       p.DealTitles,
			LatestDealDate:   p.LatestDealDate,
			HasPipelineMatch: p.HasPipelineMatch,
		}
		rec.ActualRevenue = rec.ActualHours * p.WeightedBillRate

		// Booked percentages are defined only against a matched pipeline
		// value; unmatched projects report 0 and stay out of the scoping
		// and billing classifications.
		if p.HasPipelineMatch && p.PipelineValue > 0 {
			rec.PlanBookedPct = rec.PlannedRevenue / p.PipelineValue * 100
			rec.FeesBookedPct = rec.ActualRevenue / p.PipelineValue * 100
		}

		start, end := projectWindow(p)
		rec.Status = domain.ProjectActive
		if !start.IsZero() {
			rec.StartDate = &start
		}
		if !end.IsZero() {
			rec.EndDate = &end
		}
		if !start.IsZero() && !end.IsZero() {
			rec.DurationPct = durationPct(start, end, now)
			switch {
			case now.Before(start):
				rec.Status = domain.ProjectNotStarted
			case now.After(end):
				rec.Status = domain.ProjectCompleted
			}
		}

		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].ProjectKey < records[j].ProjectKey
	})

	return records
}

// projectWindow determines a project's timeline: start is the earliest
// actual date, else the first planned month; end is the last planned
// month's final day.
func projectWindow(p *domain.ProjectForecast) (time.Time, time.Time) {
	var start, end time.Time
	if p.EarliestActualDate != nil {
		start = *p.EarliestActualDate
	} else if p.FirstPlannedMonth != "" {
		start = domain.MonthStart(p.FirstPlannedMonth)
	}
	if p.LastPlannedMonth != "" {
		end = domain.MonthEnd(p.LastPlannedMonth)
	}
	return start, end
}

// durationPct measures calendar-day progress through [start, end], clamped
// to [0,100]: 0 before the start, 100 once the end has passed.
// Note this deliberately disagrees with the analyzer's whole-month schedule
// progress near month boundaries; the two measures are kept independent.
func durationPct(start, end, now time.Time) float64 {
	if now.Before(start) {
		return 0
	}
	if now.After(end) {
		return 100
	}
	totalDays := end.Sub(start).Hours() / 24
	if totalDays <= 0 {
		return 100
	}
	elapsedDays := now.Sub(start).Hours() / 24
	pct := elapsedDays / totalDays * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
