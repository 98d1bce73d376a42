package service

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/northpine-consulting/insight-api/internal/config"
	"github.com/northpine-consulting/insight-api/internal/domain"
	"go.uber.org/zap"
)

// ForecastService composes the five forecast views over a caller-specified
// month range. The composer assumes a valid, non-empty month sequence; the
// handler rejects inverted ranges before this code runs.
type ForecastService struct {
	cfg    config.ReportConfig
	logger *zap.Logger
}

func NewForecastService(cfg config.ReportConfig, logger *zap.Logger) *ForecastService {
	return &ForecastService{cfg: cfg, logger: logger}
}

// BuildProjectForecasts joins the three aggregated sources into one derived
// record per project: the union of planned and actual projects, enriched
// with won-pipeline matches and caller-supplied fixed-fee schedules.
func BuildProjectForecasts(schedule *ScheduleResult, actuals *ActualsResult, wonMatches *PipelineResult, fixedFees map[string]domain.MonthlySeries) []domain.ProjectForecast {
	keys := make(map[string]bool, len(schedule.Projects))
	for k := range schedule.Projects {
		keys[k] = true
	}
	for k := range actuals.ProjectHours {
		keys[k] = true
	}

	projects := make([]domain.ProjectForecast, 0, len(keys))
	for key := range keys {
		p := domain.ProjectForecast{
			ProjectKey:   key,
			PlannedHours: make(domain.MonthlySeries),
			ActualHours:  make(domain.MonthlySeries),
		}
		if plan, ok := schedule.Projects[key]; ok {
			p.ClientName = plan.ClientName
			p.ProjectName = plan.ProjectName
			p.PlannedHours = plan.MonthlyHours.Clone()
			p.PlannedRevenue = plan.MonthlyRevenue.Clone()
			p.WeightedBillRate = plan.WeightedBillRate
			p.FirstPlannedMonth = plan.FirstPlannedMonth
			p.LastPlannedMonth = plan.LastPlannedMonth
		}
		if hours, ok := actuals.ProjectHours[key]; ok {
			p.ActualHours = hours.Clone()
		}
		if earliest, ok := actuals.EarliestDate[key]; ok {
			d := earliest
			p.EarliestActualDate = &d
		}
		if wonMatches != nil {
			if match, ok := wonMatches.Matches[key]; ok {
				p.PipelineValue = match.Value
				p.DealTitles = match.DealTitles
				p.LatestDealDate = match.LatestDate
				p.HasPipelineMatch = true
			}
		}
		if fees, ok := fixedFees[key]; ok && len(fees) > 0 {
			p.FixedFeeRevenue = fees.Clone()
			p.HasFixedFee = true
		}
		projects = append(projects, p)
	}

	sort.Slice(projects, func(i, j int) bool {
		return projects[i].ProjectKey < projects[j].ProjectKey
	})
	return projects
}

// Compose produces the five forecast sections for the month range [from, to]
// in the requested metric mode. Months before the current month draw on
// actuals, current and future months on the plan; pipeline sections spread
// open-deal values across their delivery windows.
func (s *ForecastService) Compose(projects []domain.ProjectForecast, openDeals []domain.PipelineDeal, from, to string, metric domain.MetricMode, now time.Time) []domain.ForecastSection {
	months := domain.MonthRange(from, to)
	currentMonth := domain.MonthKeyOf(now)

	hoursBased := s.composeProjectSection(domain.SectionHoursBased, projects, months, currentMonth, metric, false)
	fixedFee := s.composeProjectSection(domain.SectionFixedFee, projects, months, currentMonth, metric, true)
	unfactored, factored := s.composePipelineSections(openDeals, months, metric)
	unified := s.composeUnified(fixedFee, factored, months)

	s.logger.Debug("forecast composed",
		zap.String("from", from),
		zap.String("to", to),
		zap.String("metric", string(metric)),
		zap.Int("projects", len(projects)),
		zap.Int("open_deals", len(openDeals)),
	)

	return []domain.ForecastSection{hoursBased, fixedFee, unfactored, factored, unified}
}

// composeProjectSection builds section 1 (hours-based) or section 2
// (fixed-fee aware). The two differ only in revenue mode for projects that
// carry a fixed-fee schedule, where that schedule replaces hours-times-rate.
func (s *ForecastService) composeProjectSection(name string, projects []domain.ProjectForecast, months []string, currentMonth string, metric domain.MetricMode, fixedFeeAware bool) domain.ForecastSection {
	section := domain.ForecastSection{
		Name:   name,
		Rows:   make([]domain.ForecastRow, 0, len(projects)),
		Totals: make(domain.MonthlySeries),
	}

	for i := range projects {
		p := &projects[i]
		row := domain.ForecastRow{
			ProjectKey:  p.ProjectKey,
			ClientName:  p.ClientName,
			ProjectName: p.ProjectName,
			Months:      make(domain.MonthlySeries, len(months)),
		}

		useFixedFee := fixedFeeAware && p.HasFixedFee && metric == domain.MetricRevenue
		for _, m := range months {
			var v float64
			switch {
			case useFixedFee:
				v = p.FixedFeeRevenue[m]
			case m < currentMonth:
				v = p.ActualHours[m]
				if metric == domain.MetricRevenue {
					v *= p.WeightedBillRate
				}
			default:
				v = p.PlannedHours[m]
				if metric == domain.MetricRevenue {
					v *= p.WeightedBillRate
				}
			}
			row.Months[m] = v
			row.Total += v
			section.Totals.Add(m, v)
		}

		// All-zero rows stay in: completeness over compactness.
		section.Rows = append(section.Rows, row)
		section.GrandTotal += row.Total
	}

	return section
}

// composePipelineSections builds sections 3 and 4 in one pass over the open
// deals. Each deal spreads value/durationMonths evenly across its delivery
// window; section 4 additionally discounts by the stage probability. Deals
// in early stages are excluded from both. Hours mode has no pipeline hour
// estimates, so every spread value is zero.
func (s *ForecastService) composePipelineSections(openDeals []domain.PipelineDeal, months []string, metric domain.MetricMode) (domain.ForecastSection, domain.ForecastSection) {
	unfactored := domain.ForecastSection{Name: domain.SectionPipelineUnfactored, Totals: make(domain.MonthlySeries)}
	factored := domain.ForecastSection{Name: domain.SectionPipelineFactored, Totals: make(domain.MonthlySeries)}

	earlyPattern := strings.ToLower(s.cfg.EarlyStagePattern)

	for i := range openDeals {
		deal := &openDeals[i]
		if deal.Status != domain.DealStatusOpen {
			continue
		}
		if earlyPattern != "" && strings.Contains(strings.ToLower(deal.StageName), earlyPattern) {
			continue
		}

		startMonth, durationMonths := s.dealSchedule(deal)
		probability := s.stageProbability(deal.StageName)
		projectKey := domain.NormalizeKey(deal.CustomFields[s.cfg.ProjectFieldKey])

		rawRow := domain.ForecastRow{
			ProjectKey: projectKey,
			ClientName: deal.OrgName,
			DealTitle:  deal.Title,
			Stage:      deal.StageName,
			Months:     make(domain.MonthlySeries, len(months)),
		}
		factoredRow := domain.ForecastRow{
			ProjectKey:     projectKey,
			ClientName:     deal.OrgName,
			DealTitle:      deal.Title,
			Stage:          deal.StageName,
			ProbabilityPct: probability,
			Months:         make(domain.MonthlySeries, len(months)),
		}

		var monthlyValue float64
		if metric == domain.MetricRevenue && startMonth != "" && durationMonths > 0 {
			monthlyValue = deal.Value / float64(durationMonths)
		}
		endMonth := ""
		if startMonth != "" {
			endMonth = domain.AddMonths(startMonth, durationMonths-1)
		}

		for _, m := range months {
			var v float64
			if monthlyValue != 0 && m >= startMonth && m <= endMonth {
				v = monthlyValue
			}
			rawRow.Months[m] = v
			rawRow.Total += v
			unfactored.Totals.Add(m, v)

			fv := v * float64(probability) / 100
			factoredRow.Months[m] = fv
			factoredRow.Total += fv
			factored.Totals.Add(m, fv)
		}

		unfactored.Rows = append(unfactored.Rows, rawRow)
		unfactored.GrandTotal += rawRow.Total
		factored.Rows = append(factored.Rows, factoredRow)
		factored.GrandTotal += factoredRow.Total
	}

	return unfactored, factored
}

// composeUnified concatenates the fixed-fee section's rows, stamped as won
// at full value, with the probability-factored pipeline rows: booked revenue
// plus discounted pipeline in one table.
func (s *ForecastService) composeUnified(fixedFee, factored domain.ForecastSection, months []string) domain.ForecastSection {
	unified := domain.ForecastSection{
		Name:   domain.SectionUnified,
		Rows:   make([]domain.ForecastRow, 0, len(fixedFee.Rows)+len(factored.Rows)),
		Totals: make(domain.MonthlySeries),
	}

	for _, row := range fixedFee.Rows {
		booked := row
		booked.Months = row.Months.Clone()
		booked.Stage = "Won"
		booked.ProbabilityPct = 100
		unified.Rows = append(unified.Rows, booked)
	}
	for _, row := range factored.Rows {
		pipeline := row
		pipeline.Months = row.Months.Clone()
		unified.Rows = append(unified.Rows, pipeline)
	}

	for _, row := range unified.Rows {
		for _, m := range months {
			unified.Totals.Add(m, row.Months[m])
		}
		unified.GrandTotal += row.Total
	}

	return unified
}

// dealSchedule resolves a deal's delivery window: the explicit start-month
// and duration custom fields when usable, else the month after the deal's
// representative date with the configured default duration. A deal with no
// resolvable start yields "", which spreads nothing.
func (s *ForecastService) dealSchedule(deal *domain.PipelineDeal) (string, int) {
	startMonth := ""
	if raw := strings.TrimSpace(deal.CustomFields[s.cfg.StartMonthFieldKey]); raw != "" {
		if _, err := domain.ParseMonth(raw); err == nil {
			startMonth = raw
		}
	}
	if startMonth == "" {
		if rep := deal.RepresentativeDate(); rep != nil {
			startMonth = domain.AddMonths(domain.MonthKeyOf(*rep), 1)
		}
	}

	durationMonths := s.cfg.DefaultDealDurationMonths
	if raw := strings.TrimSpace(deal.CustomFields[s.cfg.DurationFieldKey]); raw != "" {
		// Non-positive parsed durations are invalid and fall back to the
		// default rather than producing an empty or inverted window.
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			durationMonths = parsed
		}
	}

	return startMonth, durationMonths
}

// stageProbability resolves a stage name against the configured pattern
// table: case-insensitive substring match, longest pattern wins, falling
// back to the configured default.
func (s *ForecastService) stageProbability(stageName string) int {
	name := strings.ToLower(stageName)
	best := ""
	probability := s.cfg.DefaultProbabilityPct
	for pattern, pct := range s.cfg.StageProbabilities {
		p := strings.ToLower(pattern)
		if p != "" && strings.Contains(name, p) && len(p) > len(best) {
			best = p
			probability = pct
		}
	}
	return probability
}
