package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/imgfind/internal/domain"
	"gorm.io/gorm"
)

// IndexRunRepository persists indexing run summaries.
type IndexRunRepository struct {
	db *gorm.DB
}

// NewIndexRunRepository creates a new IndexRunRepository.
func NewIndexRunRepository(db *gorm.DB) *IndexRunRepository {
	return &IndexRunRepository{db: db}
}

// Start inserts a running record for sourceDir.
func (r *IndexRunRepository) Start(ctx context.Context, sourceDir string) (*domain.IndexRun, error) {
	run := &domain.IndexRun{
		ID:        uuid.New().String(),
		SourceDir: sourceDir,
		Status:    domain.RunStatusRunning,
		StartedAt: time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

// Finish stores the final counters and status of run.
func (r *IndexRunRepository) Finish(ctx context.Context, run *domain.IndexRun) error {
	now := time.Now()
	run.CompletedAt = &now
	return r.db.WithContext(ctx).Save(run).Error
}

// GetLatest returns the most recently started run, or nil if none was recorded.
func (r *IndexRunRepository) GetLatest(ctx context.Context) (*domain.IndexRun, error) {
	var run domain.IndexRun
	err := r.db.WithContext(ctx).Order("started_at DESC").First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// List returns runs newest first.
func (r *IndexRunRepository) List(ctx context.Context, limit int) ([]domain.IndexRun, error) {
	var runs []domain.IndexRun
	if err := r.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
