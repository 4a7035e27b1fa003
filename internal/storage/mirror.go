package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const mirrorCacheControl = "public, max-age=86400"

// ObjectWriter is the part of a bucket the mirror drives.
type ObjectWriter interface {
	Put(ctx context.Context, obj Object) error
	URL(key string) string
}

var _ ObjectWriter = (*S3Bucket)(nil)

// Mirror copies renamed images into object storage under a key prefix.
type Mirror struct {
	bucket ObjectWriter
	prefix string
}

// NewMirror creates a Mirror writing to bucket under prefix.
func NewMirror(bucket ObjectWriter, prefix string) *Mirror {
	return &Mirror{bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// Key returns the object key for a local file.
func (m *Mirror) Key(localPath string) string {
	name := filepath.Base(localPath)
	if m.prefix == "" {
		return name
	}
	return path.Join(m.prefix, name)
}

// Put uploads localPath and returns its object key. Renamed files share
// names with the vector store ids, so a re-upload replaces the object.
func (m *Mirror) Put(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", localPath, err)
	}

	key := m.Key(localPath)
	err = m.bucket.Put(ctx, Object{
		Key:          key,
		Body:         f,
		Size:         info.Size(),
		ContentType:  "image/jpeg",
		CacheControl: mirrorCacheControl,
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

// URL returns the public URL of the mirrored copy of a local file.
func (m *Mirror) URL(localPath string) string {
	return m.bucket.URL(m.Key(localPath))
}
