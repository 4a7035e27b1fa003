package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/timmy/imgfind/internal/config"
	"github.com/timmy/imgfind/internal/logger"
	"github.com/timmy/imgfind/internal/organizer"
	"github.com/timmy/imgfind/internal/repository"
	"github.com/timmy/imgfind/internal/service"
	"github.com/timmy/imgfind/internal/storage"
)

func main() {
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "imgfind-ingest",
	})
	logger.SetDefaultLogger(appLogger)

	configPath := flag.String("config", "", "Path to config file")
	workers := flag.Int("workers", 0, "Number of images captioned in parallel (0 uses index.workers)")
	noCatalog := flag.Bool("no-catalog", false, "Skip recording results in the catalog database")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	if *workers > 0 {
		cfg.Index.Workers = *workers
	}
	if err := cfg.Validate(); err != nil {
		appLogger.WithError(err).Fatal("Invalid configuration")
	}

	if cfg.Log.File != "" || cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		appLogger = logger.New(&logger.Config{
			Level:       cfg.Log.Level,
			Format:      cfg.Log.Format,
			ServiceName: "imgfind-ingest",
			File:        cfg.Log.File,
			MaxSize:     cfg.Log.MaxSize,
			MaxBackups:  cfg.Log.MaxBackups,
			MaxAge:      cfg.Log.MaxAge,
			Compress:    cfg.Log.Compress,
		})
		logger.SetDefaultLogger(appLogger)
	}
	defer logger.Sync()

	appLogger.WithFields(logger.Fields{
		"images_dir":  cfg.Paths.ImagesDir,
		"renamed_dir": cfg.Paths.RenamedDir,
		"workers":     cfg.Index.Workers,
	}).Info("Starting indexing")

	ctx, cancel := context.WithCancel(appLogger.WithContext(context.Background()))
	defer cancel()

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
	})

	if !*noCatalog {
		db, err := repository.InitDB(&cfg.Database, appLogger)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize database")
		}
		indexService.WithCatalog(repository.NewImageRepository(db), repository.NewIndexRunRepository(db))
	}

	if cfg.Storage.Enabled {
		objectStorage, err := storage.NewS3Bucket(&cfg.Storage)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize storage")
		}
		if err := objectStorage.EnsureBucket(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure storage bucket")
		}
		indexService.WithMirror(storage.NewMirror(objectStorage, cfg.Storage.Prefix))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	stats, err := indexService.IndexAll(ctx)
	if err != nil {
		if stats != nil {
			appLogger.WithFields(logger.Fields{
				"total":     stats.Total,
				"succeeded": stats.Succeeded,
				"partial":   stats.Partial,
				"failed":    stats.Failed,
			}).Warn("Indexing stopped early")
		}
		appLogger.WithError(err).Fatal("Indexing failed")
	}

	appLogger.WithFields(logger.Fields{
		"run_id":      stats.RunID,
		"total":       stats.Total,
		"succeeded":   stats.Succeeded,
		"partial":     stats.Partial,
		"failed":      stats.Failed,
		"duration_ms": stats.Duration.Milliseconds(),
	}).Info("Indexing completed")
}
