package jobs

import (
	"context"
	"time"

	"github.com/northpine-consulting/insight-api/internal/config"
	"github.com/northpine-consulting/insight-api/internal/metrics"
	"github.com/northpine-consulting/insight-api/internal/service"
	"github.com/northpine-consulting/insight-api/internal/store"
	"go.uber.org/zap"
)

// SnapshotJob periodically computes the firm-wide summary and persists it
// to the history store, then prunes old snapshots down to the configured
// retention.
type SnapshotJob struct {
	reports *service.ReportService
	store   *store.SnapshotStore
	cfg     config.SnapshotsConfig
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewSnapshotJob(reports *service.ReportService, snapshots *store.SnapshotStore, cfg config.SnapshotsConfig, m *metrics.Metrics, logger *zap.Logger) *SnapshotJob {
	return &SnapshotJob{
		reports: reports,
		store:   snapshots,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
	}
}

// Register adds the job to the scheduler under the configured cron
// expression.
func (j *SnapshotJob) Register(scheduler *Scheduler) error {
	return scheduler.AddJob("summary-snapshot", j.cfg.CronExpr, j.Run)
}

// Run computes and persists one snapshot. Failures are logged, not fatal;
// the next scheduled run retries from scratch.
func (j *SnapshotJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.cfg.TimeoutDuration())
	defer cancel()

	now := time.Now().UTC()
	report, err := j.reports.SummaryReport(ctx, now)
	if err != nil {
		j.logger.Error("snapshot job: summary computation failed", zap.Error(err))
		return
	}

	saved, err := j.store.Save(ctx, report.Summary, report.Metadata, now)
	if err != nil {
		j.logger.Error("snapshot job: save failed", zap.Error(err))
		return
	}

	j.metrics.SnapshotsSaved.Inc()

	if _, err := j.store.Prune(ctx, j.cfg.KeepLatest); err != nil {
		j.logger.Warn("snapshot job: prune failed", zap.Error(err))
	}

	j.logger.Info("summary snapshot recorded",
		zap.String("snapshot_id", saved.ID),
		zap.Int("unmatched_deals", report.Summary.UnmatchedDealCount),
	)
}
