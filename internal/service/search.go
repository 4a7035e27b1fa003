package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/timmy/imgfind/internal/domain"
	"github.com/timmy/imgfind/internal/logger"
	"github.com/timmy/imgfind/internal/organizer"
	"github.com/timmy/imgfind/internal/repository"
)

// Status messages shown next to the gallery.
const (
	StatusEmptyQuery   = "Please enter a search query"
	StatusNoMatches    = "No matching images found. Try a different search term."
	StatusSearchFailed = "Search failed, please try again later."
	StatusQueryTooLong = "Search query is too long, please shorten it."
	statusFoundFormat  = "Found %d matching images"
)

// MaxQueryLength is the longest query, in characters, sent to the embedder.
const MaxQueryLength = 500

// GalleryItem is one displayable search hit.
type GalleryItem struct {
	Path      string  `json:"path"`
	Name      string  `json:"name"`
	Caption   string  `json:"caption"`
	Distance  float64 `json:"distance"`
	MirrorURL string  `json:"mirror_url,omitempty"`
}

// MirrorLinker resolves the public URL of a renamed image's mirrored copy.
type MirrorLinker interface {
	URL(localPath string) string
}

// SearchService handles search operations
type SearchService struct {
	store  VectorStore
	images ImageCatalog
	mirror MirrorLinker
	logger *logger.Logger
	config *SearchConfig
}

// SearchConfig holds configuration for search service
type SearchConfig struct {
	RenamedDir        string
	DistanceThreshold float64
	MaxResults        int
	CaptionLength     int
}

// NewSearchService creates a new search service
func NewSearchService(store VectorStore, log *logger.Logger, cfg *SearchConfig) *SearchService {
	if log == nil {
		log = logger.GetDefault()
	}
	return &SearchService{
		store:  store,
		logger: log,
		config: cfg,
	}
}

// WithCatalog adds catalog counts to Stats.
func (s *SearchService) WithCatalog(images ImageCatalog) *SearchService {
	s.images = images
	return s
}

// WithMirror links every hit to its copy in object storage.
func (s *SearchService) WithMirror(m MirrorLinker) *SearchService {
	s.mirror = m
	return s
}

// log prefers the request-scoped logger carried by ctx.
func (s *SearchService) log(ctx context.Context) *logger.Logger {
	if logger.GetRequestID(ctx) != "" {
		return logger.FromContext(ctx)
	}
	return s.logger
}

// Search finds renamed images whose description is close to query. It never
// fails: errors degrade to an empty result and a status message.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - query: free-text query.
//
// Returns:
//   - []GalleryItem: hits in ascending distance order, existing files only.
//   - string: status message for the user.
func (s *SearchService) Search(ctx context.Context, query string) ([]GalleryItem, string) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, StatusEmptyQuery
	}
	if utf8.RuneCountInString(query) > MaxQueryLength {
		s.log(ctx).WithField("length", utf8.RuneCountInString(query)).Warn("Search query too long")
		return nil, StatusQueryTooLong
	}

	start := time.Now()
	log := s.log(ctx).WithField("query", query)

	matches, err := s.store.Query(ctx, query, s.config.MaxResults)
	if err != nil {
		log.WithError(err).Error("Vector store query failed")
		return nil, StatusSearchFailed
	}

	for i, m := range matches {
		log.WithFields(logger.Fields{
			"rank":     i + 1,
			"distance": fmt.Sprintf("%.4f", m.Distance),
			"preview":  truncateRunes(m.Document, 60),
		}).Debug("Candidate")
	}

	items := make([]GalleryItem, 0, len(matches))
	for _, m := range FilterByDistance(matches, s.config.DistanceThreshold) {
		path, ok := domain.ImagePathFromEmbeddingID(s.config.RenamedDir, m.ID)
		if !ok || !organizer.Exists(path) {
			continue
		}
		item := GalleryItem{
			Path:     path,
			Name:     filepath.Base(path),
			Caption:  FormatCaption(m.Document, m.Distance, s.config.CaptionLength),
			Distance: m.Distance,
		}
		if s.mirror != nil {
			item.MirrorURL = s.mirror.URL(path)
		}
		items = append(items, item)
	}

	logger.With(logger.Fields{"candidates": len(matches)}).
		WithCount(len(items)).
		WithDuration(time.Since(start).Milliseconds()).
		Info(logger.WithField(ctx, "query", query), "Search completed")

	if len(items) == 0 {
		return items, StatusNoMatches
	}
	return items, fmt.Sprintf(statusFoundFormat, len(items))
}

// FilterByDistance keeps matches strictly below threshold, preserving order.
func FilterByDistance(matches []repository.QueryMatch, threshold float64) []repository.QueryMatch {
	kept := make([]repository.QueryMatch, 0, len(matches))
	for _, m := range matches {
		if m.Distance < threshold {
			kept = append(kept, m)
		}
	}
	return kept
}

// FormatCaption renders the first n characters of document and the
// similarity percentage, (1 - distance) * 100. The percentage is not
// clamped and goes negative for distances above 1.
func FormatCaption(document string, distance float64, n int) string {
	return fmt.Sprintf("%s\nSimilarity: %.1f%%", truncateRunes(document, n), (1-distance)*100)
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// Stats summarizes the index.
type Stats struct {
	Vectors int                          `json:"vectors"`
	Images  map[domain.ImageStatus]int64 `json:"images,omitempty"`
}

// Stats returns the vector count and, with a catalog, image counts by status.
func (s *SearchService) Stats(ctx context.Context) (*Stats, error) {
	n, err := s.store.Count(ctx)
	if err != nil {
		return nil, err
	}
	stats := &Stats{Vectors: n}
	if s.images != nil {
		counts, err := s.images.CountByStatus(ctx)
		if err != nil {
			s.log(ctx).WithError(err).Warn("Failed to read catalog counts")
		} else {
			stats.Images = counts
		}
	}
	return stats, nil
}
