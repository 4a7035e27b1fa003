package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/timmy/imgfind/internal/domain"
	"github.com/timmy/imgfind/internal/repository"
)

// fakeCaptioner maps an image's file content to a canned description.
// Content listed in fail returns an error.
type fakeCaptioner struct {
	mu    sync.Mutex
	names map[string]string
	fail  map[string]bool
	calls int
}

func (f *fakeCaptioner) Describe(_ context.Context, data []byte, _ string) (*domain.Description, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	key := string(data)
	if f.fail[key] {
		return nil, fmt.Errorf("%w: model returned prose", domain.ErrMalformedDescription)
	}
	name, ok := f.names[key]
	if !ok {
		name = key
	}
	return &domain.Description{Description: "A photo of " + name, Name: name}, nil
}

func (f *fakeCaptioner) GetModel() string { return "fake-vlm" }

// memStore is an in-memory vector store. Query returns the preset matches
// when set, otherwise every stored entry at distance 0.5.
type memStore struct {
	mu       sync.Mutex
	docs     map[string]string
	matches  []repository.QueryMatch
	queryErr error
	addErr   error
	queries  int
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string]string)}
}

func (m *memStore) Add(_ context.Context, id, doc string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return m.addErr
	}
	if _, ok := m.docs[id]; ok {
		return fmt.Errorf("%w: %s", repository.ErrDuplicateID, id)
	}
	m.docs[id] = doc
	return nil
}

func (m *memStore) Query(_ context.Context, _ string, n int) ([]repository.QueryMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	out := m.matches
	if out == nil {
		ids := make([]string, 0, len(m.docs))
		for id := range m.docs {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			out = append(out, repository.QueryMatch{ID: id, Document: m.docs[id], Distance: 0.5})
		}
	}
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *memStore) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queryErr != nil {
		return 0, m.queryErr
	}
	return len(m.docs), nil
}

type memCatalog struct {
	mu      sync.Mutex
	records map[string]domain.ImageRecord
	runs    []domain.IndexRun
}

func newMemCatalog() *memCatalog {
	return &memCatalog{records: make(map[string]domain.ImageRecord)}
}

func (c *memCatalog) Upsert(_ context.Context, rec *domain.ImageRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[rec.SourcePath] = *rec
	return nil
}

func (c *memCatalog) CountByStatus(_ context.Context) (map[domain.ImageStatus]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	counts := make(map[domain.ImageStatus]int64)
	for _, r := range c.records {
		counts[r.Status]++
	}
	return counts, nil
}

func (c *memCatalog) Start(_ context.Context, dir string) (*domain.IndexRun, error) {
	return &domain.IndexRun{ID: "run-" + strings.ReplaceAll(dir, "/", "_"), SourceDir: dir, Status: domain.RunStatusRunning}, nil
}

func (c *memCatalog) Finish(_ context.Context, run *domain.IndexRun) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs = append(c.runs, *run)
	return nil
}

type failingMirror struct{}

func (failingMirror) Put(context.Context, string) (string, error) {
	return "", errors.New("bucket unreachable")
}

// prefixLinker links a file to its base name under a fixed URL.
type prefixLinker string

func (p prefixLinker) URL(localPath string) string {
	return string(p) + filepath.Base(localPath)
}
