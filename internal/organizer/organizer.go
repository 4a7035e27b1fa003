// Package organizer lists source images and moves captioned ones to the
// renamed directory.
package organizer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/timmy/imgfind/internal/logger"
)

// Organizer owns the source and target directories of one index run.
type Organizer struct {
	sourceDir string
	targetDir string
	log       *logger.Logger
}

// New creates an Organizer. A nil log uses the default logger.
func New(sourceDir, targetDir string, log *logger.Logger) *Organizer {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Organizer{
		sourceDir: sourceDir,
		targetDir: targetDir,
		log:       log.WithField(logger.FieldComponent, "organizer"),
	}
}

// SourceDir returns the directory scanned by ListImages.
func (o *Organizer) SourceDir() string { return o.sourceDir }

// TargetDir returns the directory renamed images are moved into.
func (o *Organizer) TargetDir() string { return o.targetDir }

// ListImages returns the .jpg and .jpeg files (any case) directly inside the
// source directory, sorted by name. A missing directory yields no images.
func (o *Organizer) ListImages() ([]string, error) {
	entries, err := os.ReadDir(o.sourceDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			o.log.WithField("dir", o.sourceDir).Warn("Source directory does not exist")
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read source directory: %w", err)
	}

	images := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if IsJPEG(entry.Name()) {
			images = append(images, filepath.Join(o.sourceDir, entry.Name()))
		}
	}
	sort.Strings(images)
	return images, nil
}

// IsJPEG reports whether name has a .jpg or .jpeg extension.
func IsJPEG(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return true
	}
	return false
}

// Finalize moves originalPath to targetDir/safeFilename and returns the new
// path. An existing file at the destination is overwritten.
func (o *Organizer) Finalize(originalPath, safeFilename string) (string, error) {
	if safeFilename == "" || safeFilename != filepath.Base(safeFilename) {
		return "", fmt.Errorf("invalid target filename %q", safeFilename)
	}
	if err := os.MkdirAll(o.targetDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create target directory: %w", err)
	}

	dest := filepath.Join(o.targetDir, safeFilename)
	if Exists(dest) {
		o.log.WithFields(logger.Fields{
			logger.FieldImage: originalPath,
			"dest":            dest,
		}).Warn("Target file exists, overwriting")
	}

	if err := os.Rename(originalPath, dest); err != nil {
		if !errors.Is(err, syscall.EXDEV) {
			return "", fmt.Errorf("failed to move %s: %w", originalPath, err)
		}
		if err := copyThenRemove(originalPath, dest); err != nil {
			return "", err
		}
	}
	return dest, nil
}

func copyThenRemove(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	tmp := dest + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to flush %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to place %s: %w", dest, err)
	}
	in.Close()
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("copied but failed to remove %s: %w", src, err)
	}
	return nil
}

// Exists reports whether path names an existing regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
