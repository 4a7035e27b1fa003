package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/timmy/imgfind/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func TestImageRepositoryUpsertBySourcePath(t *testing.T) {
	repo := NewImageRepository(openTestDB(t))
	ctx := context.Background()

	rec := &domain.ImageRecord{SourcePath: "images/a.jpg", Status: domain.ImageStatusFailed, LastError: "offline"}
	if err := repo.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	again := &domain.ImageRecord{
		SourcePath:  "images/a.jpg",
		EmbeddingID: "emb-cat",
		Name:        "cat",
		Status:      domain.ImageStatusIndexed,
	}
	if err := repo.Upsert(ctx, again); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}

	recs, err := repo.List(ctx, "", 10, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("rows = %d, want 1", len(recs))
	}
	got := recs[0]
	if got.SourcePath != "images/a.jpg" || got.Status != domain.ImageStatusIndexed || got.EmbeddingID != "emb-cat" || got.LastError != "" {
		t.Errorf("record not updated: %+v", got)
	}
}

func TestImageRepositoryCountAndList(t *testing.T) {
	repo := NewImageRepository(openTestDB(t))
	ctx := context.Background()

	statuses := []domain.ImageStatus{
		domain.ImageStatusIndexed,
		domain.ImageStatusIndexed,
		domain.ImageStatusPartial,
		domain.ImageStatusFailed,
	}
	for i, s := range statuses {
		rec := &domain.ImageRecord{SourcePath: filepath.Join("images", string(rune('a'+i))+".jpg"), Status: s}
		if err := repo.Upsert(ctx, rec); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	counts, err := repo.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[domain.ImageStatusIndexed] != 2 || counts[domain.ImageStatusPartial] != 1 || counts[domain.ImageStatusFailed] != 1 {
		t.Errorf("counts = %v", counts)
	}

	failed, err := repo.List(ctx, domain.ImageStatusFailed, 10, 0)
	if err != nil || len(failed) != 1 {
		t.Errorf("List(failed) = %d, %v", len(failed), err)
	}
	all, err := repo.List(ctx, "", 10, 0)
	if err != nil || len(all) != 4 {
		t.Errorf("List(all) = %d, %v", len(all), err)
	}
}

func TestIndexRunRepository(t *testing.T) {
	repo := NewIndexRunRepository(openTestDB(t))
	ctx := context.Background()

	if latest, err := repo.GetLatest(ctx); err != nil || latest != nil {
		t.Fatalf("GetLatest on empty catalog = %+v, %v", latest, err)
	}

	run, err := repo.Start(ctx, "images")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	run.Total, run.Succeeded, run.Failed = 3, 2, 1
	run.Status = domain.RunStatusCompleted
	if err := repo.Finish(ctx, run); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	latest, err := repo.GetLatest(ctx)
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if latest.ID != run.ID || latest.Succeeded != 2 || latest.CompletedAt == nil {
		t.Errorf("latest = %+v", latest)
	}

	second, err := repo.Start(ctx, "images")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	runs, err := repo.List(ctx, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != second.ID || runs[1].ID != run.ID {
		t.Errorf("List order = %+v", runs)
	}
}
