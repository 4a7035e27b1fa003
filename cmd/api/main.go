package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/imgfind/internal/api"
	"github.com/timmy/imgfind/internal/api/handler"
	"github.com/timmy/imgfind/internal/api/middleware"
	"github.com/timmy/imgfind/internal/config"
	"github.com/timmy/imgfind/internal/logger"
	"github.com/timmy/imgfind/internal/organizer"
	"github.com/timmy/imgfind/internal/repository"
	"github.com/timmy/imgfind/internal/service"
	"github.com/timmy/imgfind/internal/storage"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to config file")
	indexOnStartup := flag.Bool("index", true, "Index the source directory before serving")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.GetDefault().WithError(err).Fatal("Failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.GetDefault().WithError(err).Fatal("Invalid configuration")
	}

	appLogger := logger.New(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: "imgfind-api",
		File:        cfg.Log.File,
		MaxSize:     cfg.Log.MaxSize,
		MaxBackups:  cfg.Log.MaxBackups,
		MaxAge:      cfg.Log.MaxAge,
		Compress:    cfg.Log.Compress,
	})
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	ctx := appLogger.WithContext(context.Background())

	// Catalog
	db, err := repository.InitDB(&cfg.Database, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	imageRepo := repository.NewImageRepository(db)
	runRepo := repository.NewIndexRunRepository(db)

	// Vector store
	embeddingService := service.NewEmbeddingService(&service.EmbeddingConfig{
		Model:      cfg.Embedding.Model,
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    cfg.Embedding.Timeout,
	})
	qdrantRepo, err := repository.NewQdrantRepository(&repository.QdrantConnectionConfig{
		Host:            cfg.Qdrant.Host,
		Port:            cfg.Qdrant.Port,
		Collection:      cfg.Qdrant.Collection,
		APIKey:          cfg.Qdrant.APIKey,
		UseTLS:          cfg.Qdrant.UseTLS,
		VectorDimension: embeddingService.Dimensions(),
	}, embeddingService)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize Qdrant repository")
	}
	defer qdrantRepo.Close()

	if err := qdrantRepo.EnsureCollection(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to ensure Qdrant collection")
	}
	appLogger.WithFields(logger.Fields{
		"collection":      cfg.Qdrant.Collection,
		"embedding_model": embeddingService.GetModel(),
		"dimensions":      embeddingService.Dimensions(),
	}).Info("Vector store ready")

	vlmService, err := service.NewVLMService(&service.VLMConfig{
		Model:     cfg.VLM.Model,
		APIKey:    cfg.VLM.APIKey,
		BaseURL:   cfg.VLM.BaseURL,
		Timeout:   cfg.VLM.Timeout,
		MaxTokens: cfg.VLM.MaxTokens,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize VLM service")
	}

	org := organizer.New(cfg.Paths.ImagesDir, cfg.Paths.RenamedDir, appLogger)
	indexService := service.NewIndexService(vlmService, org, qdrantRepo, appLogger, &service.IndexConfig{
		Workers: cfg.Index.Workers,
	}).WithCatalog(imageRepo, runRepo)

	var mirror *storage.Mirror
	if cfg.Storage.Enabled {
		objectStorage, err := storage.NewS3Bucket(&cfg.Storage)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize storage")
		}
		if err := objectStorage.EnsureBucket(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure storage bucket")
		}
		mirror = storage.NewMirror(objectStorage, cfg.Storage.Prefix)
		indexService.WithMirror(mirror)
		appLogger.WithFields(logger.Fields{
			"bucket": cfg.Storage.Bucket,
			"prefix": cfg.Storage.Prefix,
		}).Info("Object storage mirror enabled")
	}

	searchService := service.NewSearchService(qdrantRepo, appLogger, &service.SearchConfig{
		RenamedDir:        cfg.Paths.RenamedDir,
		DistanceThreshold: cfg.Search.DistanceThreshold,
		MaxResults:        cfg.Search.MaxResults,
		CaptionLength:     cfg.Search.CaptionLength,
	}).WithCatalog(imageRepo)
	if mirror != nil {
		searchService.WithMirror(mirror)
	}

	indexHandler := handler.NewIndexHandler(indexService).WithHistory(runRepo)

	// Index before serving, so the first search sees every image.
	if *indexOnStartup && cfg.Index.OnStartup {
		runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		stats, err := indexService.IndexAll(runCtx)
		interrupted := runCtx.Err() != nil
		stop()
		indexHandler.Record(stats, err)
		if interrupted {
			appLogger.Info("Interrupted during startup index run, exiting")
			return
		}
		if err != nil {
			appLogger.WithError(err).Error("Startup index run failed")
		}
	}

	router := api.SetupRouter(searchService, indexHandler, &api.RouterConfig{
		Mode: cfg.Server.Mode,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
		RenamedDir: cfg.Paths.RenamedDir,
		Catalog:    handler.NewCatalogHandler(imageRepo, runRepo),
		Checks: map[string]handler.Pinger{
			"qdrant": func(ctx context.Context) error {
				_, err := qdrantRepo.Count(ctx)
				return err
			},
			"database": func(ctx context.Context) error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
		},
	}, appLogger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
