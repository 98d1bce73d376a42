package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/northpine-consulting/insight-api/internal/domain"
	"github.com/northpine-consulting/insight-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupStore(t *testing.T) *store.SnapshotStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&store.SummarySnapshot{}))
	t.Cleanup(func() {
		db.Exec("DELETE FROM summary_snapshots")
	})
	return store.NewSnapshotStore(db, zap.NewNop())
}

func sampleSummary(overruns int) domain.Summary {
	return domain.Summary{
		OverrunCount:       overruns,
		UnmatchedDealCount: 2,
		TotalBookedValue:   150000,
	}
}

func TestSnapshotStore_SaveAndLatest(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	takenAt := time.Date(2025, 8, 1, 6, 0, 0, 0, time.UTC)
	saved, err := s.Save(ctx, sampleSummary(3), domain.ReportMetadata{AssignmentCount: 10, DealCount: 4, EntryCount: 200}, takenAt)
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, 3, saved.Summary.OverrunCount)
	assert.Equal(t, 10, saved.AssignmentCount)

	latest, err := s.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, saved.ID, latest.ID)
	assert.Equal(t, takenAt, latest.TakenAt.UTC())
	assert.InDelta(t, 150000.0, latest.Summary.TotalBookedValue, 1e-9)
}

func TestSnapshotStore_LatestOnEmptyStore(t *testing.T) {
	s := setupStore(t)
	latest, err := s.Latest(context.Background())
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestSnapshotStore_ListNewestFirst(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	base := time.Date(2025, 8, 1, 6, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := s.Save(ctx, sampleSummary(i), domain.ReportMetadata{}, base.AddDate(0, 0, i))
		require.NoError(t, err)
	}

	list, err := s.List(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, list.Total)
	require.Len(t, list.Snapshots, 2)
	assert.Equal(t, 2, list.Snapshots[0].Summary.OverrunCount)
	assert.Equal(t, 1, list.Snapshots[1].Summary.OverrunCount)
}

func TestSnapshotStore_Prune(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	base := time.Date(2025, 8, 1, 6, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := s.Save(ctx, sampleSummary(i), domain.ReportMetadata{}, base.AddDate(0, 0, i))
		require.NoError(t, err)
	}

	deleted, err := s.Prune(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	list, err := s.List(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, 4, list.Snapshots[0].Summary.OverrunCount)
}

func TestSnapshotStore_PruneDisabled(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, sampleSummary(1), domain.ReportMetadata{}, time.Now().UTC())
	require.NoError(t, err)

	deleted, err := s.Prune(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}
