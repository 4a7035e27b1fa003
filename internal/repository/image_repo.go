package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/timmy/imgfind/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ImageRepository persists per-image indexing outcomes.
type ImageRepository struct {
	db *gorm.DB
}

// NewImageRepository creates a new ImageRepository.
// Parameters:
//   - db: GORM database handle used for queries.
//
// Returns:
//   - *ImageRepository: repository instance bound to db.
func NewImageRepository(db *gorm.DB) *ImageRepository {
	return &ImageRepository{db: db}
}

// Upsert creates or updates the record keyed by source path.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - rec: record to create or update; ID is assigned when empty.
//
// Returns:
//   - error: non-nil if the upsert fails.
func (r *ImageRepository) Upsert(ctx context.Context, rec *domain.ImageRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "source_path"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"embedding_id", "file_name", "final_path", "name", "description",
			"vlm_model", "md5_hash", "width", "height", "file_size",
			"storage_key", "status", "last_error", "index_run_id", "updated_at",
		}),
	}).Create(rec).Error
}

// List returns records newest first, optionally filtered by status.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - status: filter; empty returns every status.
//   - limit: maximum records returned.
//   - offset: records to skip.
//
// Returns:
//   - []domain.ImageRecord: matching records.
//   - error: non-nil if the query fails.
func (r *ImageRepository) List(ctx context.Context, status domain.ImageStatus, limit, offset int) ([]domain.ImageRecord, error) {
	var recs []domain.ImageRecord
	q := r.db.WithContext(ctx).Model(&domain.ImageRecord{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Order("updated_at DESC").Limit(limit).Offset(offset).Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// CountByStatus returns the number of records per status.
func (r *ImageRepository) CountByStatus(ctx context.Context) (map[domain.ImageStatus]int64, error) {
	var rows []struct {
		Status domain.ImageStatus
		Count  int64
	}
	if err := r.db.WithContext(ctx).
		Model(&domain.ImageRecord{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[domain.ImageStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
