package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ossprey/licenscope/internal/api"
	"github.com/ossprey/licenscope/internal/api/handler"
	"github.com/ossprey/licenscope/internal/api/middleware"
	"github.com/ossprey/licenscope/internal/archive"
	"github.com/ossprey/licenscope/internal/catalog"
	"github.com/ossprey/licenscope/internal/classify"
	"github.com/ossprey/licenscope/internal/config"
	"github.com/ossprey/licenscope/internal/domain"
	"github.com/ossprey/licenscope/internal/engine"
	"github.com/ossprey/licenscope/internal/logger"
	"github.com/ossprey/licenscope/internal/report"
	"github.com/ossprey/licenscope/internal/repository"
	"github.com/ossprey/licenscope/internal/retention"
	"github.com/ossprey/licenscope/internal/scan"
	"github.com/ossprey/licenscope/internal/storage"
)

func main() {
	// Logger first: everything below reports through it. Level, format and
	// file rotation come from LOG_* environment variables.
	log := logger.NewDefault()
	logger.SetDefaultLogger(log)
	defer logger.Sync()

	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to load config")
	}

	// Persistence: in-memory for throwaway deployments, GORM otherwise.
	var store report.Store
	if cfg.Database.Driver == "memory" {
		log.Info("Using in-memory store, jobs will not survive a restart")
		store = report.NewMemoryStore()
	} else {
		db, err := repository.InitDB(&cfg.Database)
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize database")
		}
		store = repository.NewScanStore(db)
	}

	// Archive blob storage
	objects, err := storage.NewStorage(&storage.Config{
		Type:      cfg.Storage.Type,
		LocalDir:  cfg.Storage.LocalDir,
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize storage")
	}
	if s3s, ok := objects.(*storage.S3Storage); ok {
		if err := s3s.EnsureBucket(context.Background()); err != nil {
			log.WithError(err).Fatal("Failed to ensure storage bucket")
		}
	}

	// Detection engine behind the timeout gateway
	eng, err := engine.New(engine.Config{
		Provider:    cfg.Engine.Provider,
		ScanCodeBin: cfg.Engine.ScanCodeBin,
		BaseURL:     cfg.Engine.BaseURL,
		APIKey:      cfg.Engine.APIKey,
		Timeout:     cfg.Engine.Timeout,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize detection engine")
	}
	log.WithField(logger.FieldEngine, eng.Name()).Info("Detection engine ready")

	orch := scan.NewOrchestrator(
		store,
		archive.NewExtractor(cfg.Scan.WorkDir, archive.Limits{
			MaxTotalBytes: cfg.Scan.MaxTotalBytes,
			MaxEntries:    cfg.Scan.MaxEntries,
		}),
		classify.New(classify.Config{
			ScannableExtensions: cfg.Scan.Extensions,
			LicenseFilenames:    cfg.Scan.LicenseFilenames,
		}),
		engine.NewGateway(eng, cfg.Engine.Timeout),
		log,
		scan.Config{Workers: cfg.Scan.Workers},
	)

	cat, err := catalog.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load license catalog")
	}
	log.WithField(logger.FieldCount, cat.Len()).Info("License catalog loaded")

	// Retention sweeper (off by default)
	if cfg.Retention.Enabled {
		sweeper := retention.New(store, objects, log, retention.Config{
			Interval: cfg.Retention.Interval,
			MaxAge:   cfg.Retention.MaxAge,
		})
		if err := sweeper.Start(context.Background()); err != nil {
			log.WithError(err).Fatal("Failed to start retention sweeper")
		}
		defer sweeper.Stop()
	}

	// Setup router
	router := api.SetupRouter(api.Deps{
		Orchestrator: orch,
		Store:        store,
		Objects:      objects,
		Catalog:      cat,
		Logger:       log,
		Mode:         cfg.Server.Mode,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
		Upload: handler.ScanHandlerConfig{
			MaxArchiveBytes: cfg.Scan.MaxArchiveBytes,
			DefaultOptions: domain.ScanOptions{
				Recursive:     cfg.Scan.Recursive,
				IncludeBinary: cfg.Scan.IncludeBinary,
			},
		},
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Graceful shutdown with timeout. Running scans keep persisting through
	// their own detached contexts.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Fatal("Server forced to shutdown")
	}

	log.Info("Server exited")
}
