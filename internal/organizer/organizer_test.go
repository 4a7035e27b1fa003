package organizer

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestListImages(t *testing.T) {
	src := t.TempDir()
	for _, name := range []string{"b.JPG", "a.jpg", "c.jpeg", "d.png", "notes.txt", "e.JpEg"} {
		writeFile(t, filepath.Join(src, name), "x")
	}
	if err := os.Mkdir(filepath.Join(src, "dir.jpg"), 0755); err != nil {
		t.Fatal(err)
	}

	got, err := New(src, t.TempDir(), nil).ListImages()
	if err != nil {
		t.Fatalf("ListImages: %v", err)
	}
	want := []string{
		filepath.Join(src, "a.jpg"),
		filepath.Join(src, "b.JPG"),
		filepath.Join(src, "c.jpeg"),
		filepath.Join(src, "e.JpEg"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ListImages() = %v, want %v", got, want)
	}
}

func TestListImagesMissingDir(t *testing.T) {
	got, err := New(filepath.Join(t.TempDir(), "nope"), t.TempDir(), nil).ListImages()
	if err != nil {
		t.Fatalf("ListImages: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no images, got %v", got)
	}
}

func TestFinalizeCreatesTargetAndMoves(t *testing.T) {
	src := t.TempDir()
	target := filepath.Join(t.TempDir(), "renamed", "nested")
	orig := filepath.Join(src, "IMG_001.jpg")
	writeFile(t, orig, "cat")

	dest, err := New(src, target, nil).Finalize(orig, "cat_rn.jpg")
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if dest != filepath.Join(target, "cat_rn.jpg") {
		t.Errorf("dest = %q", dest)
	}
	if Exists(orig) {
		t.Error("original still present")
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "cat" {
		t.Errorf("dest content = %q, %v", data, err)
	}
}

func TestFinalizeOverwritesExisting(t *testing.T) {
	src := t.TempDir()
	target := t.TempDir()
	writeFile(t, filepath.Join(target, "dog_rn.jpg"), "old")
	orig := filepath.Join(src, "new.jpg")
	writeFile(t, orig, "new")

	dest, err := New(src, target, nil).Finalize(orig, "dog_rn.jpg")
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	data, _ := os.ReadFile(dest)
	if string(data) != "new" {
		t.Errorf("dest content = %q, want new", data)
	}
}

func TestFinalizeFailureLeavesOriginal(t *testing.T) {
	src := t.TempDir()
	orig := filepath.Join(src, "a.jpg")
	writeFile(t, orig, "a")

	o := New(src, t.TempDir(), nil)
	if _, err := o.Finalize(orig, "../escape_rn.jpg"); err == nil {
		t.Error("expected error for path-like filename")
	}
	if _, err := o.Finalize(filepath.Join(src, "missing.jpg"), "m_rn.jpg"); err == nil {
		t.Error("expected error for missing source")
	}
	if !Exists(orig) {
		t.Error("original should be untouched")
	}
}

func TestIsJPEG(t *testing.T) {
	for name, want := range map[string]bool{
		"a.jpg": true, "a.JPEG": true, "a.png": false, "jpg": false, "a.jpg.txt": false,
	} {
		if got := IsJPEG(name); got != want {
			t.Errorf("IsJPEG(%q) = %v, want %v", name, got, want)
		}
	}
}
