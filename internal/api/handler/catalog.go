package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/imgfind/internal/domain"
	"github.com/timmy/imgfind/internal/logger"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// ImageLister lists catalog records.
type ImageLister interface {
	List(ctx context.Context, status domain.ImageStatus, limit, offset int) ([]domain.ImageRecord, error)
}

// RunLister lists past index runs.
type RunLister interface {
	List(ctx context.Context, limit int) ([]domain.IndexRun, error)
}

// CatalogHandler exposes the indexing catalog read-only.
type CatalogHandler struct {
	images ImageLister
	runs   RunLister
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(images ImageLister, runs RunLister) *CatalogHandler {
	return &CatalogHandler{images: images, runs: runs}
}

// ListImagesRequest holds the query of GET /api/v1/images.
type ListImagesRequest struct {
	Status string `form:"status" binding:"omitempty,oneof=indexed partial failed"`
	Limit  int    `form:"limit" binding:"omitempty,min=1"`
	Offset int    `form:"offset" binding:"omitempty,min=0"`
}

// ListImagesResponse is one page of catalog records.
type ListImagesResponse struct {
	Images []domain.ImageRecord `json:"images"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

// ListImages handles GET /api/v1/images, newest first. ?status=failed shows
// which images still need another run.
func (h *CatalogHandler) ListImages(c *gin.Context) {
	var req ListImagesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be indexed, partial or failed; limit and offset must be non-negative"})
		return
	}
	limit := pageSize(req.Limit)

	recs, err := h.images.List(c.Request.Context(), domain.ImageStatus(req.Status), limit, req.Offset)
	if err != nil {
		logger.CtxError(c.Request.Context(), "Failed to list images: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Catalog unavailable"})
		return
	}
	if recs == nil {
		recs = []domain.ImageRecord{}
	}
	c.JSON(http.StatusOK, ListImagesResponse{Images: recs, Limit: limit, Offset: req.Offset})
}

// ListRuns handles GET /api/v1/index/runs, newest first.
func (h *CatalogHandler) ListRuns(c *gin.Context) {
	var req struct {
		Limit int `form:"limit" binding:"omitempty,min=1"`
	}
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}

	runs, err := h.runs.List(c.Request.Context(), pageSize(req.Limit))
	if err != nil {
		logger.CtxError(c.Request.Context(), "Failed to list index runs: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Catalog unavailable"})
		return
	}
	if runs == nil {
		runs = []domain.IndexRun{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func pageSize(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}
