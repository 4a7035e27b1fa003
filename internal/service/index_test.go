package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/timmy/imgfind/internal/domain"
	"github.com/timmy/imgfind/internal/organizer"
	"github.com/timmy/imgfind/internal/repository"
)

type indexFixture struct {
	src, dst  string
	captioner *fakeCaptioner
	store     *memStore
	catalog   *memCatalog
	svc       *IndexService
}

// newIndexFixture writes one file per entry of files (name -> content).
func newIndexFixture(t *testing.T, files map[string]string, workers int) *indexFixture {
	t.Helper()
	f := &indexFixture{
		src:       t.TempDir(),
		dst:       filepath.Join(t.TempDir(), "renamed"),
		captioner: &fakeCaptioner{names: map[string]string{}, fail: map[string]bool{}},
		store:     newMemStore(),
		catalog:   newMemCatalog(),
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(f.src, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	f.svc = NewIndexService(f.captioner, organizer.New(f.src, f.dst, nil), f.store, nil, &IndexConfig{Workers: workers}).
		WithCatalog(f.catalog, f.catalog)
	return f
}

func TestIndexAll_OneCaptionFailure(t *testing.T) {
	f := newIndexFixture(t, map[string]string{
		"a.jpg": "sunset beach",
		"b.jpg": "broken",
		"c.JPG": "red car",
	}, 1)
	f.captioner.fail["broken"] = true

	stats, err := f.svc.IndexAll(context.Background())
	if err != nil {
		t.Fatalf("IndexAll: %v", err)
	}
	if stats.Total != 3 || stats.Succeeded != 2 || stats.Failed != 1 || stats.Partial != 0 {
		t.Errorf("stats = %+v", stats)
	}

	if !organizer.Exists(filepath.Join(f.src, "b.jpg")) {
		t.Error("failed image should stay in place under its original name")
	}
	for _, name := range []string{"sunset_beach_rn.jpg", "red_car_rn.jpg"} {
		if !organizer.Exists(filepath.Join(f.dst, name)) {
			t.Errorf("missing renamed file %s", name)
		}
	}
	if n, _ := f.store.Count(context.Background()); n != 2 {
		t.Errorf("store count = %d, want 2", n)
	}
	if f.store.docs["emb-sunset_beach"] != "A photo of sunset beach" {
		t.Errorf("stored doc = %q", f.store.docs["emb-sunset_beach"])
	}

	rec := f.catalog.records[filepath.Join(f.src, "b.jpg")]
	if rec.Status != domain.ImageStatusFailed || rec.LastError == "" {
		t.Errorf("failed record = %+v", rec)
	}
	if len(f.catalog.runs) != 1 || f.catalog.runs[0].Succeeded != 2 || f.catalog.runs[0].Status != domain.RunStatusCompleted {
		t.Errorf("runs = %+v", f.catalog.runs)
	}
}

func TestIndexAll_DuplicateIsPartial(t *testing.T) {
	f := newIndexFixture(t, map[string]string{
		"1.jpg": "same",
		"2.jpg": "same",
	}, 1)
	f.captioner.names["same"] = "Fluffy Cat"

	stats, err := f.svc.IndexAll(context.Background())
	if err != nil {
		t.Fatalf("IndexAll: %v", err)
	}
	if stats.Total != 2 || stats.Succeeded != 1 || stats.Partial != 1 || stats.Failed != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if organizer.Exists(filepath.Join(f.src, "1.jpg")) || organizer.Exists(filepath.Join(f.src, "2.jpg")) {
		t.Error("both files should have been renamed")
	}
	if !organizer.Exists(filepath.Join(f.dst, "fluffy_cat_rn.jpg")) {
		t.Error("renamed file missing")
	}
	if len(f.store.docs) != 1 {
		t.Errorf("store has %d entries, want 1", len(f.store.docs))
	}

	first := f.catalog.records[filepath.Join(f.src, "1.jpg")]
	second := f.catalog.records[filepath.Join(f.src, "2.jpg")]
	if first.Status != domain.ImageStatusIndexed {
		t.Errorf("first record status = %q", first.Status)
	}
	if second.Status != domain.ImageStatusPartial || !strings.Contains(second.LastError, repository.ErrDuplicateID.Error()) {
		t.Errorf("second record = %q, %q; want partial duplicate", second.Status, second.LastError)
	}
}

func TestIndexAll_StoreFailureKeepsRename(t *testing.T) {
	f := newIndexFixture(t, map[string]string{"x.jpg": "dog"}, 1)
	f.store.addErr = errors.New("qdrant unavailable")

	stats, err := f.svc.IndexAll(context.Background())
	if err != nil {
		t.Fatalf("IndexAll: %v", err)
	}
	if stats.Partial != 1 || stats.Succeeded != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if !organizer.Exists(filepath.Join(f.dst, "dog_rn.jpg")) {
		t.Error("file should stay renamed after store failure")
	}
	rec := f.catalog.records[filepath.Join(f.src, "x.jpg")]
	if rec.Status != domain.ImageStatusPartial || !strings.Contains(rec.LastError, "qdrant unavailable") {
		t.Errorf("record = %+v", rec)
	}
}

func TestIndexAll_ParallelCollisionCountsEveryImage(t *testing.T) {
	files := map[string]string{}
	for _, n := range []string{"a", "b", "c", "d", "e", "f"} {
		files[n+".jpg"] = "content-" + n
	}
	f := newIndexFixture(t, files, 4)
	for _, n := range []string{"a", "b", "c"} {
		f.captioner.names["content-"+n] = "twin"
	}

	stats, err := f.svc.IndexAll(context.Background())
	if err != nil {
		t.Fatalf("IndexAll: %v", err)
	}
	if stats.Total != 6 || stats.Succeeded != 4 || stats.Partial != 2 || stats.Failed != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if f.captioner.calls != 6 {
		t.Errorf("captioner calls = %d, want 6", f.captioner.calls)
	}
}

func TestIndexAll_MirrorFailureDoesNotChangeOutcome(t *testing.T) {
	f := newIndexFixture(t, map[string]string{"m.jpg": "mountain"}, 1)
	f.svc.WithMirror(failingMirror{})

	stats, err := f.svc.IndexAll(context.Background())
	if err != nil {
		t.Fatalf("IndexAll: %v", err)
	}
	if stats.Succeeded != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestIndexAll_EmptyAndMissingDir(t *testing.T) {
	f := newIndexFixture(t, nil, 1)
	if err := os.Remove(f.src); err != nil {
		t.Fatal(err)
	}
	stats, err := f.svc.IndexAll(context.Background())
	if err != nil {
		t.Fatalf("IndexAll: %v", err)
	}
	if stats.Total != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestIndexAll_Canceled(t *testing.T) {
	f := newIndexFixture(t, map[string]string{"a.jpg": "a", "b.jpg": "b"}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := f.svc.IndexAll(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if stats.Succeeded != 0 {
		t.Errorf("no image should be indexed after cancel: %+v", stats)
	}
	if len(f.catalog.runs) != 1 || f.catalog.runs[0].Status != domain.RunStatusCanceled {
		t.Errorf("runs = %+v", f.catalog.runs)
	}
	if f.svc.Running() {
		t.Error("service still marked running")
	}
}

func TestKeyedMutexReleasesKeys(t *testing.T) {
	var k keyedMutex
	unlockA := k.Lock("a")
	unlockB := k.Lock("b")
	unlockA()
	unlockB()
	if len(k.locks) != 0 {
		t.Errorf("locks leaked: %d", len(k.locks))
	}
}
