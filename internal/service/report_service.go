package service

import (
	"context"
	"fmt"
	"time"

	"github.com/northpine-consulting/insight-api/internal/config"
	"github.com/northpine-consulting/insight-api/internal/domain"
	"go.uber.org/zap"
)

// WarehouseClient fetches the planned-staffing schedule and fixed-fee
// revenue schedules from the data warehouse.
type WarehouseClient interface {
	FetchPlannedAssignments(ctx context.Context) ([]domain.PlannedAssignment, error)
	FetchFixedFeeRevenue(ctx context.Context) (map[string]domain.MonthlySeries, error)
}

// TimeTrackingClient fetches logged time entries for a date range.
type TimeTrackingClient interface {
	FetchEntries(ctx context.Context, from, to time.Time) ([]domain.ActualEntry, error)
}

// CRMClient fetches the full deal list, already paginated and joined with
// stage names by the client.
type CRMClient interface {
	FetchDeals(ctx context.Context) ([]domain.PipelineDeal, error)
}

// actualsLookback bounds the time-entry fetch window for the utilization
// and health reports. Consulting engagements here never run longer.
const actualsLookback = 24 * 30 * 24 * time.Hour

// ForecastOptions parameterizes a forecast request. Now is explicit so the
// engine stays clock-free and reports are reproducible in tests.
type ForecastOptions struct {
	From   string
	To     string
	Metric domain.MetricMode
	Now    time.Time
}

// Validate rejects malformed month ranges and metric modes before the
// composer runs; the composer itself assumes a valid non-empty sequence.
func (o *ForecastOptions) Validate() error {
	if _, err := domain.ParseMonth(o.From); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMonthRange, err)
	}
	if _, err := domain.ParseMonth(o.To); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMonthRange, err)
	}
	if o.To < o.From {
		return fmt.Errorf("%w: %s ends before %s", ErrInvalidMonthRange, o.To, o.From)
	}
	if !o.Metric.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidMetric, o.Metric)
	}
	return nil
}

// snapshot bundles one fetch of the three upstream datasets.
type snapshot struct {
	assignments []domain.PlannedAssignment
	entries     []domain.ActualEntry
	deals       []domain.PipelineDeal
	fixedFees   map[string]domain.MonthlySeries
}

func (s *snapshot) metadata() domain.ReportMetadata {
	return domain.ReportMetadata{
		AssignmentCount: len(s.assignments),
		DealCount:       len(s.deals),
		EntryCount:      len(s.entries),
	}
}

// ReportService orchestrates the reporting pipeline: fetch the three
// snapshots, run the pure aggregation and analysis stages in dependency
// order, and assemble the response DTOs. It holds no mutable state; every
// request builds fresh maps, so independent requests can run concurrently.
type ReportService struct {
	warehouse    WarehouseClient
	timetracking TimeTrackingClient
	crm          CRMClient
	schedule     *ScheduleService
	actuals      *ActualsService
	pipeline     *PipelineService
	utilization  *UtilizationService
	forecast     *ForecastService
	summary      *SummaryService
	logger       *zap.Logger
}

func NewReportService(
	warehouse WarehouseClient,
	timetracking TimeTrackingClient,
	crm CRMClient,
	cfg config.ReportConfig,
	logger *zap.Logger,
) *ReportService {
	return &ReportService{
		warehouse:    warehouse,
		timetracking: timetracking,
		crm:          crm,
		schedule:     NewScheduleService(cfg.InternalProjectPrefix, logger),
		actuals:      NewActualsService(cfg.InternalClientID, logger),
		pipeline:     NewPipelineService(cfg.ProjectFieldKey, logger),
		utilization:  NewUtilizationService(logger),
		forecast:     NewForecastService(cfg, logger),
		summary:      NewSummaryService(logger),
		logger:       logger,
	}
}

// ResourceReport produces the per-(staff, project) utilization report.
func (s *ReportService) ResourceReport(ctx context.Context, now time.Time) (*domain.ResourceReportDTO, error) {
	snap, err := s.fetchSnapshot(ctx, now)
	if err != nil {
		return nil, err
	}

	resources, projects, won := s.analyze(snap, now)
	return &domain.ResourceReportDTO{
		Resources: resources,
		Summary:   s.summary.Roll(resources, projects, won.UnmatchedCount),
		Metadata:  snap.metadata(),
	}, nil
}

// ProjectReport produces the per-project health report.
func (s *ReportService) ProjectReport(ctx context.Context, now time.Time) (*domain.ProjectReportDTO, error) {
	snap, err := s.fetchSnapshot(ctx, now)
	if err != nil {
		return nil, err
	}

	resources, projects, won := s.analyze(snap, now)
	return &domain.ProjectReportDTO{
		Projects: projects,
		Summary:  s.summary.Roll(resources, projects, won.UnmatchedCount),
		Metadata: snap.metadata(),
	}, nil
}

// ForecastReport produces the five-section forecast over the requested
// month range.
func (s *ReportService) ForecastReport(ctx context.Context, opts ForecastOptions) (*domain.ForecastReportDTO, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	snap, err := s.fetchSnapshot(ctx, opts.Now)
	if err != nil {
		return nil, err
	}

	scheduleResult := s.schedule.Aggregate(snap.assignments)
	actualsResult := s.actuals.Aggregate(snap.entries)
	known := knownProjects(scheduleResult, actualsResult)
	won := s.pipeline.Match(snap.deals, domain.DealStatusWon, known)

	projects := BuildProjectForecasts(scheduleResult, actualsResult, won, snap.fixedFees)
	sections := s.forecast.Compose(projects, snap.deals, opts.From, opts.To, opts.Metric, opts.Now)

	resources := s.utilization.AnalyzeResources(scheduleResult, actualsResult, opts.Now)
	health := s.utilization.AnalyzeProjects(projects, opts.Now)

	return &domain.ForecastReportDTO{
		From:     opts.From,
		To:       opts.To,
		Metric:   opts.Metric,
		Months:   domain.MonthRange(opts.From, opts.To),
		Sections: sections,
		Summary:  s.summary.Roll(resources, health, won.UnmatchedCount),
		Metadata: snap.metadata(),
	}, nil
}

// SummaryReport produces just the firm-wide summary, as persisted by the
// snapshot job.
func (s *ReportService) SummaryReport(ctx context.Context, now time.Time) (*domain.SummaryReportDTO, error) {
	snap, err := s.fetchSnapshot(ctx, now)
	if err != nil {
		return nil, err
	}

	resources, projects, won := s.analyze(snap, now)
	return &domain.SummaryReportDTO{
		Summary:  s.summary.Roll(resources, projects, won.UnmatchedCount),
		Metadata: snap.metadata(),
	}, nil
}

// analyze runs the aggregation and analysis stages shared by the resource,
// project, and summary reports.
func (s *ReportService) analyze(snap *snapshot, now time.Time) ([]domain.ResourceHealth, []domain.ProjectHealth, *PipelineResult) {
	scheduleResult := s.schedule.Aggregate(snap.assignments)
	actualsResult := s.actuals.Aggregate(snap.entries)
	known := knownProjects(scheduleResult, actualsResult)
	won := s.pipeline.Match(snap.deals, domain.DealStatusWon, known)

	resources := s.utilization.AnalyzeResources(scheduleResult, actualsResult, now)
	projects := s.utilization.AnalyzeProjects(
		BuildProjectForecasts(scheduleResult, actualsResult, won, snap.fixedFees), now)

	return resources, projects, won
}

// fetchSnapshot pulls the three upstream datasets. Cancellation is enforced
// here, at the I/O boundary; the engine below it never blocks.
func (s *ReportService) fetchSnapshot(ctx context.Context, now time.Time) (*snapshot, error) {
	assignments, err := s.warehouse.FetchPlannedAssignments(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: planned assignments: %v", ErrUpstreamUnavailable, err)
	}

	fixedFees, err := s.warehouse.FetchFixedFeeRevenue(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: fixed-fee revenue: %v", ErrUpstreamUnavailable, err)
	}

	entries, err := s.timetracking.FetchEntries(ctx, now.Add(-actualsLookback), now)
	if err != nil {
		return nil, fmt.Errorf("%w: time entries: %v", ErrUpstreamUnavailable, err)
	}

	deals, err := s.crm.FetchDeals(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: deals: %v", ErrUpstreamUnavailable, err)
	}

	s.logger.Debug("snapshot fetched",
		zap.Int("assignments", len(assignments)),
		zap.Int("entries", len(entries)),
		zap.Int("deals", len(deals)),
	)

	return &snapshot{
		assignments: assignments,
		entries:     entries,
		deals:       deals,
		fixedFees:   fixedFees,
	}, nil
}

// knownProjects is the join universe for deal matching: every project key
// present in either the plan or the actuals.
func knownProjects(schedule *ScheduleResult, actuals *ActualsResult) map[string]bool {
	known := make(map[string]bool, len(schedule.Projects)+len(actuals.ProjectHours))
	for k := range schedule.Projects {
		known[k] = true
	}
	for k := range actuals.ProjectHours {
		known[k] = true
	}
	return known
}
