package service

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/imgfind/internal/domain"
	"github.com/timmy/imgfind/internal/logger"
	"github.com/timmy/imgfind/internal/organizer"
	"github.com/timmy/imgfind/internal/repository"
)

// ErrIndexRunning is returned when IndexAll is called while a run is active.
var ErrIndexRunning = errors.New("index run already in progress")

// Captioner produces a structured description of one image.
type Captioner interface {
	Describe(ctx context.Context, imageData []byte, format string) (*domain.Description, error)
	GetModel() string
}

// VectorStore is the subset of the vector store used by indexing and search.
type VectorStore interface {
	Add(ctx context.Context, embeddingID, document string) error
	Query(ctx context.Context, text string, n int) ([]repository.QueryMatch, error)
	Count(ctx context.Context) (int, error)
}

// ImageCatalog records per-image outcomes.
type ImageCatalog interface {
	Upsert(ctx context.Context, rec *domain.ImageRecord) error
	CountByStatus(ctx context.Context) (map[domain.ImageStatus]int64, error)
}

// RunCatalog records index runs.
type RunCatalog interface {
	Start(ctx context.Context, sourceDir string) (*domain.IndexRun, error)
	Finish(ctx context.Context, run *domain.IndexRun) error
}

// Mirror copies renamed images to object storage.
type Mirror interface {
	Put(ctx context.Context, localPath string) (string, error)
}

// IndexService captions, renames and stores every image in the source directory.
type IndexService struct {
	captioner Captioner
	organizer *organizer.Organizer
	store     VectorStore
	images    ImageCatalog
	runs      RunCatalog
	mirror    Mirror
	logger    *logger.Logger
	workers   int

	running   atomic.Bool
	nameLocks keyedMutex
}

// IndexConfig holds configuration for the index service
type IndexConfig struct {
	Workers int
}

// NewIndexService creates a new index service
func NewIndexService(
	captioner Captioner,
	org *organizer.Organizer,
	store VectorStore,
	log *logger.Logger,
	cfg *IndexConfig,
) *IndexService {
	workers := 1
	if cfg != nil && cfg.Workers > 0 {
		workers = cfg.Workers
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &IndexService{
		captioner: captioner,
		organizer: org,
		store:     store,
		logger:    log,
		workers:   workers,
	}
}

// WithCatalog enables per-image and per-run bookkeeping.
func (s *IndexService) WithCatalog(images ImageCatalog, runs RunCatalog) *IndexService {
	s.images = images
	s.runs = runs
	return s
}

// WithMirror enables uploading renamed images to object storage.
func (s *IndexService) WithMirror(m Mirror) *IndexService {
	s.mirror = m
	return s
}

// Running reports whether an index run is in progress.
func (s *IndexService) Running() bool {
	return s.running.Load()
}

// log returns the run-scoped logger carried by ctx.
func (s *IndexService) log(ctx context.Context) *logger.Logger {
	return logger.FromContext(ctx)
}

// IndexStats holds statistics for an index run
type IndexStats struct {
	RunID     string        `json:"run_id"`
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Partial   int           `json:"partial"`
	Failed    int           `json:"failed"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
}

type imageResult struct {
	path   string
	status domain.ImageStatus
	err    error
}

// IndexAll processes every image in the source directory once. Per-image
// failures are counted, never returned. The error is non-nil only when the
// directory cannot be listed, another run is active, or ctx is done.
func (s *IndexService) IndexAll(ctx context.Context) (*IndexStats, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrIndexRunning
	}
	defer s.running.Store(false)

	stats := &IndexStats{StartTime: time.Now()}

	paths, err := s.organizer.ListImages()
	if err != nil {
		return nil, err
	}

	run := s.startRun(ctx)
	if run != nil {
		stats.RunID = run.ID
	} else {
		stats.RunID = uuid.New().String()
	}
	ctx = logger.SetRunID(s.logger.WithContext(ctx), stats.RunID)
	ctx = logger.SetComponent(ctx, "index")

	s.log(ctx).WithFields(logger.Fields{
		"source":  s.organizer.SourceDir(),
		"target":  s.organizer.TargetDir(),
		"images":  len(paths),
		"workers": s.workers,
	}).Info("Starting index run")

	pathsChan := make(chan string, s.workers*2)
	resultsChan := make(chan *imageResult, s.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(ctx, pathsChan, resultsChan)
		}()
	}

	done := make(chan struct{})
	var errorLog []string
	go func() {
		for result := range resultsChan {
			stats.Total++
			switch result.status {
			case domain.ImageStatusIndexed:
				stats.Succeeded++
			case domain.ImageStatusPartial:
				stats.Partial++
			default:
				stats.Failed++
			}
			if result.err != nil {
				errorLog = append(errorLog, fmt.Sprintf("%s: %v", filepath.Base(result.path), result.err))
			}
		}
		close(done)
	}()

dispatch:
	for _, p := range paths {
		select {
		case pathsChan <- p:
		case <-ctx.Done():
			break dispatch
		}
	}

	close(pathsChan)
	wg.Wait()
	close(resultsChan)
	<-done

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	runErr := ctx.Err()
	s.finishRun(ctx, run, stats, errorLog, runErr)

	logger.With(logger.Fields{
		"total":     stats.Total,
		"succeeded": stats.Succeeded,
		"partial":   stats.Partial,
		"failed":    stats.Failed,
	}).WithDuration(stats.Duration.Milliseconds()).Info(ctx, "Index run completed")

	if runErr != nil {
		return stats, fmt.Errorf("index run interrupted: %w", runErr)
	}
	return stats, nil
}

func (s *IndexService) worker(ctx context.Context, paths <-chan string, results chan<- *imageResult) {
	for p := range paths {
		if ctx.Err() != nil {
			return
		}
		results <- s.processImage(ctx, p)
	}
}

// processImage runs caption, rename and store for one image. The file is
// only moved once a valid description exists, and a store failure after the
// move leaves it renamed.
func (s *IndexService) processImage(ctx context.Context, path string) *imageResult {
	start := time.Now()
	ctx = logger.WithField(ctx, logger.FieldImage, filepath.Base(path))
	result := &imageResult{path: path, status: domain.ImageStatusFailed}
	rec := &domain.ImageRecord{
		SourcePath: path,
		FileName:   filepath.Base(path),
		VLMModel:   s.captioner.GetModel(),
		IndexRunID: logger.GetRunID(ctx),
	}
	defer func() {
		rec.Status = result.status
		if result.err != nil {
			rec.LastError = result.err.Error()
		}
		s.record(ctx, rec)
	}()

	data, err := os.ReadFile(path)
	if err != nil {
		result.err = fmt.Errorf("failed to read image: %w", err)
		s.log(ctx).WithError(err).Error("Failed to read image")
		return result
	}
	hash := md5.Sum(data)
	rec.MD5Hash = hex.EncodeToString(hash[:])
	rec.FileSize = int64(len(data))
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		rec.Width, rec.Height = cfg.Width, cfg.Height
	}

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	desc, err := s.captioner.Describe(ctx, data, format)
	if err != nil {
		result.err = err
		s.log(ctx).WithError(err).Error("Failed to caption image, leaving it in place")
		return result
	}
	rec.Name = desc.Name
	rec.Description = desc.Description
	rec.EmbeddingID = desc.EmbeddingID()

	safeFilename := desc.SafeFilename()
	unlock := s.nameLocks.Lock(safeFilename)
	finalPath, err := s.organizer.Finalize(path, safeFilename)
	if err != nil {
		unlock()
		result.err = err
		s.log(ctx).WithError(err).Error("Failed to rename image, leaving it in place")
		return result
	}
	rec.FinalPath = finalPath

	err = s.store.Add(ctx, desc.EmbeddingID(), desc.Description)
	unlock()
	if err != nil {
		result.status = domain.ImageStatusPartial
		result.err = err
		entry := s.log(ctx).WithField(logger.FieldEmbeddingID, desc.EmbeddingID()).WithError(err)
		if errors.Is(err, repository.ErrDuplicateID) {
			entry.Warn("Embedding id already stored, image renamed but not indexed")
		} else {
			entry.Error("Failed to store description, image renamed but not indexed")
		}
	} else {
		result.status = domain.ImageStatusIndexed
	}

	if s.mirror != nil {
		if key, err := s.mirror.Put(ctx, finalPath); err != nil {
			s.log(ctx).WithError(err).Warn("Failed to mirror renamed image")
		} else {
			rec.StorageKey = key
		}
	}

	logger.With(logger.Fields{
		logger.FieldEmbeddingID: desc.EmbeddingID(),
		"final_path":            finalPath,
	}).WithStatus(string(result.status)).
		WithDuration(time.Since(start).Milliseconds()).
		Info(ctx, "Image processed")

	return result
}

func (s *IndexService) record(ctx context.Context, rec *domain.ImageRecord) {
	if s.images == nil {
		return
	}
	if err := s.images.Upsert(context.WithoutCancel(ctx), rec); err != nil {
		s.log(ctx).WithError(err).Warn("Failed to update image catalog")
	}
}

func (s *IndexService) startRun(ctx context.Context) *domain.IndexRun {
	if s.runs == nil {
		return nil
	}
	run, err := s.runs.Start(ctx, s.organizer.SourceDir())
	if err != nil {
		s.logger.WithError(err).Warn("Failed to record index run start")
		return nil
	}
	return run
}

func (s *IndexService) finishRun(ctx context.Context, run *domain.IndexRun, stats *IndexStats, errorLog []string, runErr error) {
	if run == nil {
		return
	}
	run.Total = stats.Total
	run.Succeeded = stats.Succeeded
	run.Partial = stats.Partial
	run.Failed = stats.Failed
	run.ErrorLog = strings.Join(errorLog, "\n")
	run.Status = domain.RunStatusCompleted
	if runErr != nil {
		run.Status = domain.RunStatusCanceled
	}
	// The run context may already be canceled; the summary is still written.
	if err := s.runs.Finish(context.WithoutCancel(ctx), run); err != nil {
		s.log(ctx).WithError(err).Warn("Failed to record index run result")
	}
}

// keyedMutex serializes work per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// Lock acquires the lock for key and returns its release function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
