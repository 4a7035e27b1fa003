package handler

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/timmy/imgfind/internal/logger"
	"github.com/timmy/imgfind/internal/service"
)

// ImageRoute is the path prefix renamed images are served under.
const ImageRoute = "/images/"

const thumbnailWidth = 320

// SearchHandler handles search-related endpoints.
type SearchHandler struct {
	searchService *service.SearchService
}

// NewSearchHandler creates a new search handler.
// Parameters:
//   - searchService: search service instance.
//
// Returns:
//   - *SearchHandler: initialized handler.
func NewSearchHandler(searchService *service.SearchService) *SearchHandler {
	return &SearchHandler{
		searchService: searchService,
	}
}

// SearchRequest is the body of POST /api/v1/search.
type SearchRequest struct {
	Query string `json:"query" form:"q"`
}

// SearchResult is one gallery entry in the JSON response.
type SearchResult struct {
	Path         string  `json:"path"`
	URL          string  `json:"url"`
	ThumbnailURL string  `json:"thumbnail_url"`
	Caption      string  `json:"caption"`
	Distance     float64 `json:"distance"`
	MirrorURL    string  `json:"mirror_url,omitempty"`
}

// SearchResponse is the JSON search response.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
	Status  string         `json:"status"`
	Total   int            `json:"total"`
}

// Search handles GET and POST /api/v1/search. Failures are reported in the
// status field, never as an HTTP error.
// Parameters:
//   - c: Gin request context.
//
// Returns: none (writes JSON response).
func (h *SearchHandler) Search(c *gin.Context) {
	var req SearchRequest
	var err error
	if c.Request.Method == http.MethodPost {
		err = c.ShouldBindJSON(&req)
	} else {
		err = c.ShouldBindQuery(&req)
	}
	if err != nil {
		logger.CtxWarn(c.Request.Context(), "Invalid search request: client_ip=%s, error=%v", c.ClientIP(), err)
		c.JSON(http.StatusOK, toSearchResponse(nil, service.StatusSearchFailed))
		return
	}

	items, status := h.searchService.Search(c.Request.Context(), req.Query)
	c.JSON(http.StatusOK, toSearchResponse(items, status))
}

func toSearchResponse(items []service.GalleryItem, status string) SearchResponse {
	results := make([]SearchResult, 0, len(items))
	for _, item := range items {
		results = append(results, SearchResult{
			Path:         item.Path,
			URL:          ImageURL(item.Name),
			ThumbnailURL: ThumbnailURL(item.Name, thumbnailWidth),
			Caption:      item.Caption,
			Distance:     item.Distance,
			MirrorURL:    item.MirrorURL,
		})
	}
	return SearchResponse{Results: results, Status: status, Total: len(results)}
}

// ImageURL returns the served URL of a renamed image.
func ImageURL(name string) string {
	return ImageRoute + url.PathEscape(name)
}

// ThumbnailURL returns the URL of a scaled copy of a renamed image.
func ThumbnailURL(name string, width int) string {
	return ImageURL(name) + "?w=" + strconv.Itoa(width)
}

// Page handles GET /, the HTML search page.
func (h *SearchHandler) Page(c *gin.Context) {
	query := c.Query("q")
	data := pageData{Query: query}
	if c.Request.URL.Query().Has("q") {
		items, status := h.searchService.Search(c.Request.Context(), query)
		data.Status = status
		data.Results = toSearchResponse(items, status).Results
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := pageTemplate.Execute(c.Writer, data); err != nil {
		logger.CtxError(c.Request.Context(), "Failed to render page: %v", err)
	}
}

// GetStats handles GET /api/v1/stats.
func (h *SearchHandler) GetStats(c *gin.Context) {
	stats, err := h.searchService.Stats(c.Request.Context())
	if err != nil {
		logger.CtxError(c.Request.Context(), "Failed to get stats: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Vector store unavailable"})
		return
	}
	c.JSON(http.StatusOK, stats)
}
