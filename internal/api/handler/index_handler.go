package handler

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/imgfind/internal/domain"
	"github.com/timmy/imgfind/internal/logger"
	"github.com/timmy/imgfind/internal/service"
)

// Indexer runs one pass over the source directory.
type Indexer interface {
	IndexAll(ctx context.Context) (*service.IndexStats, error)
	Running() bool
}

// RunHistory returns the most recent persisted index run, nil if there is none.
type RunHistory interface {
	GetLatest(ctx context.Context) (*domain.IndexRun, error)
}

// IndexHandler triggers index runs and reports their outcome.
type IndexHandler struct {
	indexer Indexer
	history RunHistory

	mu            sync.RWMutex
	lastStats     *service.IndexStats
	lastRunTime   time.Time
	lastRunStatus string
}

// NewIndexHandler creates a new index handler.
// Parameters:
//   - indexer: index service instance.
//
// Returns:
//   - *IndexHandler: initialized handler.
func NewIndexHandler(indexer Indexer) *IndexHandler {
	return &IndexHandler{indexer: indexer}
}

// WithHistory makes the status endpoint fall back to the catalog when this
// process has not recorded a run yet.
func (h *IndexHandler) WithHistory(history RunHistory) *IndexHandler {
	h.history = history
	return h
}

// IndexResponse represents the trigger API response.
type IndexResponse struct {
	Message string              `json:"message"`
	Stats   *service.IndexStats `json:"stats,omitempty"`
}

// IndexStatusResponse represents the index status.
type IndexStatusResponse struct {
	IsRunning     bool                `json:"is_running"`
	LastRunTime   string              `json:"last_run_time,omitempty"`
	LastRunStatus string              `json:"last_run_status,omitempty"`
	LastStats     *service.IndexStats `json:"last_stats,omitempty"`
	LastRun       *domain.IndexRun    `json:"last_run,omitempty"`
}

// TriggerIndex handles POST /api/v1/index. The run is synchronous and
// detached from the request context so a client disconnect does not
// interrupt it halfway.
func (h *IndexHandler) TriggerIndex(c *gin.Context) {
	ctx := c.Request.Context()
	logger.CtxInfo(ctx, "Received index request: client_ip=%s", c.ClientIP())

	stats, err := h.indexer.IndexAll(context.WithoutCancel(ctx))
	if errors.Is(err, service.ErrIndexRunning) {
		logger.CtxWarn(ctx, "Index request rejected: already running, client_ip=%s", c.ClientIP())
		c.JSON(http.StatusConflict, gin.H{"error": "Index run is already in progress"})
		return
	}

	h.Record(stats, err)

	if err != nil {
		logger.CtxError(ctx, "Index run failed: %v", err)
		c.JSON(http.StatusInternalServerError, IndexResponse{Message: "Index run failed", Stats: stats})
		return
	}

	c.JSON(http.StatusOK, IndexResponse{
		Message: "Index run completed",
		Stats:   stats,
	})
}

// Record stores the outcome of a run started outside the handler, such as
// the startup run.
func (h *IndexHandler) Record(stats *service.IndexStats, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastRunTime = time.Now()
	if stats != nil {
		h.lastStats = stats
	}
	if err != nil {
		h.lastRunStatus = "failed: " + err.Error()
	} else {
		h.lastRunStatus = "success"
	}
}

// GetIndexStatus handles GET /api/v1/index/status.
func (h *IndexHandler) GetIndexStatus(c *gin.Context) {
	h.mu.RLock()
	resp := IndexStatusResponse{
		IsRunning:     h.indexer.Running(),
		LastRunStatus: h.lastRunStatus,
		LastStats:     h.lastStats,
	}
	if !h.lastRunTime.IsZero() {
		resp.LastRunTime = h.lastRunTime.Format(time.RFC3339)
	}
	h.mu.RUnlock()

	if resp.LastRunTime == "" && h.history != nil {
		run, err := h.history.GetLatest(c.Request.Context())
		if err != nil {
			logger.CtxWarn(c.Request.Context(), "Failed to load last index run: %v", err)
		} else if run != nil {
			resp.LastRun = run
			resp.LastRunTime = run.StartedAt.Format(time.RFC3339)
			resp.LastRunStatus = string(run.Status)
		}
	}

	c.JSON(http.StatusOK, resp)
}
