package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hyxhhh1013/Myproject-sub000/cache"
	"github.com/hyxhhh1013/Myproject-sub000/config"
	"github.com/hyxhhh1013/Myproject-sub000/database"
	"github.com/hyxhhh1013/Myproject-sub000/handlers"
	"github.com/hyxhhh1013/Myproject-sub000/media"
	"github.com/hyxhhh1013/Myproject-sub000/metrics"
	"github.com/hyxhhh1013/Myproject-sub000/realtime"
	"github.com/hyxhhh1013/Myproject-sub000/repository"
	"github.com/hyxhhh1013/Myproject-sub000/services"
	"github.com/hyxhhh1013/Myproject-sub000/workers"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	var cfg config.Config
	var log *slog.Logger

	rootCmd := &cobra.Command{
		Use:           "portfolio",
		Short:         "Photo portfolio catalog server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.LoadConfig()
			if err != nil {
				return err
			}
			log = newLogger(cfg)
			slog.SetDefault(log)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg, log)
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfg, log)
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the catalog schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer closeDB(db)
			return database.AutoMigrateModels(db)
		},
	}

	var deleteOrphans bool
	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "List stored artifacts that no catalog entry references",
		RunE: func(cmd *cobra.Command, args []string) error {
			return reconcile(cmd.Context(), cfg, log, deleteOrphans)
		},
	}
	reconcileCmd.Flags().BoolVar(&deleteOrphans, "delete", false, "Remove the orphaned artifacts")

	rootCmd.AddCommand(serveCmd, migrateCmd, reconcileCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func openDB(cfg config.Config) (*gorm.DB, error) {
	level := logger.Warn
	if cfg.SlogLevel() == slog.LevelDebug {
		level = logger.Info
	}
	if cfg.DatabaseDriver == config.DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.DatabaseDSN), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	return database.InitGormDB(cfg.DatabaseDriver, cfg.DatabaseDSN, level)
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func subDirs(cfg config.Config) map[media.AssetType]string {
	return map[media.AssetType]string{
		media.AssetTypeOriginal:  cfg.OriginalsSubDir,
		media.AssetTypeThumbnail: cfg.ThumbnailsSubDir,
	}
}

// openStore returns the configured artifact store. The local store is also
// returned separately so its files can be served over HTTP.
func openStore(cfg config.Config, log *slog.Logger) (media.Store, *media.LocalStorage, error) {
	storeLog := log.With("component", "artifact_store")
	if cfg.UsesS3() {
		s3Store, err := media.NewS3Storage(media.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		}, subDirs(cfg), storeLog)
		return s3Store, nil, err
	}
	local, err := media.NewLocalStorage(cfg.MediaStoragePath, subDirs(cfg), storeLog)
	if err != nil {
		return nil, nil, err
	}
	return local, local, nil
}

func openCache(ctx context.Context, cfg config.Config, m *metrics.Metrics, log *slog.Logger) (*cache.ResponseCache, error) {
	var backend cache.Backend
	if cfg.RedisURL != "" {
		client, err := cache.NewRedisClient(ctx, cfg.RedisURL, log)
		if err != nil {
			return nil, err
		}
		backend = cache.NewRedisBackend(client)
	} else {
		backend = cache.NewMemoryBackend()
	}
	return cache.New(backend, cache.Options{
		SweepInterval: cfg.CacheSweepInterval,
		Metrics:       m,
		Logger:        log,
	}), nil
}

func serve(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer closeDB(db)
	if err := database.AutoMigrateModels(db); err != nil {
		return err
	}

	store, local, err := openStore(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize artifact store: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}

	responseCache, err := openCache(ctx, cfg, m, log)
	if err != nil {
		return fmt.Errorf("failed to initialize response cache: %w", err)
	}
	defer responseCache.Close()

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := realtime.NewHub(log)
	go hub.Run(hubCtx)

	reaper := workers.NewArtifactReaper(store, m, log, workers.ReaperOptions{
		Workers:   cfg.ReaperWorkers,
		QueueSize: cfg.ReaperQueueSize,
	})
	defer reaper.Stop()

	photos := repository.NewPhotoRepository(db)
	categories := repository.NewCategoryRepository(db)
	tags := repository.NewTagRepository(db)

	ingestion := services.NewIngestionService(services.IngestionConfig{
		Photos:      photos,
		Categories:  categories,
		Tags:        tags,
		Processor:   media.NewProcessor(store, cfg.ThumbnailSize, log),
		Extractor:   media.NewExtractor(log),
		Reclaimer:   reaper,
		Events:      hub,
		Metrics:     m,
		Concurrency: cfg.IngestConcurrency,
		MaxFiles:    cfg.BulkMaxFiles,
		Logger:      log,
	})

	urls := services.NewURLBuilder(cfg.PublicBaseURL)
	invalidate := handlers.Invalidator{Cache: responseCache}
	errs := handlers.ErrorWriter{Log: log.With("component", "http"), ExposeCauses: cfg.IsDevelopment()}

	deps := handlers.RouterDeps{
		Photos: &handlers.PhotoHandler{
			Photos:       photos,
			Ingestion:    ingestion,
			Service:      services.NewPhotoService(photos, reaper, log),
			URLs:         urls,
			Invalidate:   invalidate,
			Errors:       errs,
			MaxFileBytes: cfg.MaxUploadBytes,
			MaxBulkFiles: cfg.BulkMaxFiles,
		},
		Categories:       &handlers.CategoryHandler{Categories: categories, URLs: urls, Invalidate: invalidate, Errors: errs},
		Tags:             &handlers.TagHandler{Tags: tags, Errors: errs},
		Cache:            responseCache,
		Hub:              hub,
		Gatherer:         reg,
		Health:           func() error { return database.Ping(db) },
		CORSOrigins:      cfg.CORSOrigins,
		AdminTokenHash:   cfg.AdminTokenHash,
		UploadRatePerMin: cfg.UploadRatePerMin,
		Logger:           log,
	}
	if local != nil {
		deps.Assets = local
	}
	if cfg.AdminTokenHash == "" {
		log.Warn("ADMIN_TOKEN_HASH is not set, mutating routes are unauthenticated")
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", server.Addr, "driver", cfg.DatabaseDriver, "s3", cfg.UsesS3())
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	stopHub()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// reconcile reports artifacts with no catalog row. With remove set they are
// deleted from the store.
func reconcile(ctx context.Context, cfg config.Config, log *slog.Logger, remove bool) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer closeDB(db)

	store, _, err := openStore(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize artifact store: %w", err)
	}

	referenced, err := repository.NewPhotoRepository(db).ArtifactRefs(ctx)
	if err != nil {
		return err
	}

	var orphans, removed int
	for _, assetType := range []media.AssetType{media.AssetTypeOriginal, media.AssetTypeThumbnail} {
		refs, err := store.List(ctx, assetType)
		if err != nil {
			return fmt.Errorf("failed to list %s artifacts: %w", assetType, err)
		}
		for _, ref := range refs {
			if referenced[ref] {
				continue
			}
			orphans++
			if !remove {
				fmt.Println(ref)
				continue
			}
			if err := store.Delete(ctx, ref); err != nil {
				log.Warn("failed to delete orphaned artifact", "ref", ref, "artifact_orphan", true, "error", err)
				continue
			}
			removed++
		}
	}

	log.Info("reconcile finished", "orphans", orphans, "removed", removed, "referenced", len(referenced))
	return nil
}
