package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/imgfind/internal/api/handler"
	"github.com/timmy/imgfind/internal/api/middleware"
	"github.com/timmy/imgfind/internal/logger"
	"github.com/timmy/imgfind/internal/service"
)

// RouterConfig holds presentation settings.
type RouterConfig struct {
	Mode       string
	CORS       middleware.CORSConfig
	RenamedDir string
	Checks     map[string]handler.Pinger
	// Catalog is optional; nil leaves the catalog endpoints unregistered.
	Catalog *handler.CatalogHandler
}

// SetupRouter configures the Gin router with all routes. indexHandler may
// be nil, which leaves the index endpoints unregistered.
func SetupRouter(
	searchService *service.SearchService,
	indexHandler *handler.IndexHandler,
	cfg *RouterConfig,
	log *logger.Logger,
) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS(cfg.CORS))

	healthHandler := handler.NewHealthHandler(cfg.Checks)
	searchHandler := handler.NewSearchHandler(searchService)
	imageHandler := handler.NewImageHandler(cfg.RenamedDir)

	r.GET("/health", healthHandler.Health)
	r.GET("/ready", healthHandler.Ready)

	r.GET("/", searchHandler.Page)
	r.GET(handler.ImageRoute+":name", imageHandler.Serve)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/search", searchHandler.Search)
		v1.POST("/search", searchHandler.Search)
		v1.GET("/stats", searchHandler.GetStats)

		if indexHandler != nil {
			v1.POST("/index", indexHandler.TriggerIndex)
			v1.GET("/index/status", indexHandler.GetIndexStatus)
		}
		if cfg.Catalog != nil {
			v1.GET("/images", cfg.Catalog.ListImages)
			v1.GET("/index/runs", cfg.Catalog.ListRuns)
		}
	}

	return r
}
