// Package store persists summary snapshots so the firm's headline numbers
// can be compared across time even though the upstream systems only expose
// current state.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/northpine-consulting/insight-api/internal/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SummarySnapshot is one persisted summary, with the computed counts stored
// as a JSON document. The snapshot is immutable once written.
type SummarySnapshot struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	TakenAt         time.Time `gorm:"index;not null"`
	Payload         string    `gorm:"type:text;not null"`
	AssignmentCount int       `gorm:"not null"`
	DealCount       int       `gorm:"not null"`
	EntryCount      int       `gorm:"not null"`
	CreatedAt       time.Time
}

// BeforeCreate assigns the snapshot ID.
func (s *SummarySnapshot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// SnapshotStore reads and writes summary snapshots.
type SnapshotStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewSnapshotStore(db *gorm.DB, logger *zap.Logger) *SnapshotStore {
	return &SnapshotStore{db: db, logger: logger}
}

// Save persists one summary with its input metadata.
func (s *SnapshotStore) Save(ctx context.Context, summary domain.Summary, metadata domain.ReportMetadata, takenAt time.Time) (*domain.SnapshotDTO, error) {
	payload, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("marshal summary: %w", err)
	}

	snapshot := SummarySnapshot{
		TakenAt:         takenAt.UTC(),
		Payload:         string(payload),
		AssignmentCount: metadata.AssignmentCount,
		DealCount:       metadata.DealCount,
		EntryCount:      metadata.EntryCount,
	}
	if err := s.db.WithContext(ctx).Create(&snapshot).Error; err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}

	s.logger.Info("Summary snapshot saved",
		zap.String("id", snapshot.ID.String()),
		zap.Time("taken_at", snapshot.TakenAt),
	)

	return toDTO(&snapshot)
}

// List returns the most recent snapshots, newest first, plus the total
// count in the store.
func (s *SnapshotStore) List(ctx context.Context, limit int) (*domain.SnapshotListDTO, error) {
	if limit <= 0 {
		limit = 30
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&SummarySnapshot{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count snapshots: %w", err)
	}

	var rows []SummarySnapshot
	if err := s.db.WithContext(ctx).Order("taken_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	result := &domain.SnapshotListDTO{
		Snapshots: make([]domain.SnapshotDTO, 0, len(rows)),
		Total:     int(total),
	}
	for i := range rows {
		dto, err := toDTO(&rows[i])
		if err != nil {
			return nil, err
		}
		result.Snapshots = append(result.Snapshots, *dto)
	}
	return result, nil
}

// Latest returns the most recent snapshot, or nil if none exists.
func (s *SnapshotStore) Latest(ctx context.Context) (*domain.SnapshotDTO, error) {
	var row SummarySnapshot
	err := s.db.WithContext(ctx).Order("taken_at DESC").First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load latest snapshot: %w", err)
	}
	return toDTO(&row)
}

// Prune deletes all but the newest keep snapshots. A non-positive keep
// disables pruning.
func (s *SnapshotStore) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}

	var cutoff SummarySnapshot
	err := s.db.WithContext(ctx).Order("taken_at DESC").Offset(keep - 1).First(&cutoff).Error
	if err == gorm.ErrRecordNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("find prune cutoff: %w", err)
	}

	res := s.db.WithContext(ctx).
		Where("taken_at < ?", cutoff.TakenAt).
		Delete(&SummarySnapshot{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune snapshots: %w", res.Error)
	}

	if res.RowsAffected > 0 {
		s.logger.Info("Snapshot history pruned",
			zap.Int64("deleted", res.RowsAffected),
			zap.Int("kept", keep),
		)
	}
	return res.RowsAffected, nil
}

func toDTO(row *SummarySnapshot) (*domain.SnapshotDTO, error) {
	var summary domain.Summary
	if err := json.Unmarshal([]byte(row.Payload), &summary); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot %s: %w", row.ID, err)
	}
	return &domain.SnapshotDTO{
		ID:              row.ID.String(),
		TakenAt:         row.TakenAt,
		Summary:         summary,
		AssignmentCount: row.AssignmentCount,
		DealCount:       row.DealCount,
		EntryCount:      row.EntryCount,
	}, nil
}
