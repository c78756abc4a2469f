package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

type Config struct {
	// http server
	Port        string   `env:"PORT" envDefault:"8080"`
	Environment string   `env:"APP_ENV" envDefault:"production"`
	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173"`

	// database
	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"sqlite"`
	DatabaseDSN    string `env:"DATABASE_DSN" envDefault:"portfolio.db"`

	// media storage configuration
	MediaStoragePath string `env:"MEDIA_STORAGE_PATH" envDefault:"./uploads"` // root for originals and thumbnails
	OriginalsSubDir  string `env:"ORIGINALS_SUBDIR" envDefault:"originals"`
	ThumbnailsSubDir string `env:"THUMBNAILS_SUBDIR" envDefault:"thumbnails"`
	PublicBaseURL    string `env:"PUBLIC_BASE_URL"` // prefix for artifact URLs, empty means relative /uploads

	// optional S3-compatible artifact store, used instead of the local disk when a bucket is set
	S3Bucket          string `env:"S3_BUCKET"`
	S3Region          string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint        string `env:"S3_ENDPOINT"`
	S3AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`

	// ingestion
	ThumbnailSize     int   `env:"THUMBNAIL_SIZE" envDefault:"300"`
	MaxUploadBytes    int64 `env:"MAX_UPLOAD_BYTES" envDefault:"41943040"`
	BulkMaxFiles      int   `env:"BULK_MAX_FILES" envDefault:"10"`
	IngestConcurrency int   `env:"INGEST_CONCURRENCY" envDefault:"4"`
	UploadRatePerMin  int   `env:"UPLOAD_RATE_PER_MINUTE" envDefault:"30"`

	// response cache
	CacheSweepInterval time.Duration `env:"CACHE_SWEEP_INTERVAL" envDefault:"2m"`
	RedisURL           string        `env:"REDIS_URL"` // shared cache backend, in-memory when empty

	// artifact reaper
	ReaperWorkers   int `env:"REAPER_WORKERS" envDefault:"2"`
	ReaperQueueSize int `env:"REAPER_QUEUE_SIZE" envDefault:"200"`

	// bcrypt hash of the admin bearer token; mutating routes are open when empty
	AdminTokenHash string `env:"ADMIN_TOKEN_HASH"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// IsDevelopment reports whether error causes may be exposed to clients.
func (c Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// UsesS3 reports whether artifacts go to an S3-compatible bucket.
func (c Config) UsesS3() bool {
	return c.S3Bucket != ""
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoadConfig parses the environment (after any .env has been loaded by the caller).
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}

	absMediaStorage, err := filepath.Abs(cfg.MediaStoragePath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for media storage '%s': %w", cfg.MediaStoragePath, err)
	}
	cfg.MediaStoragePath = absMediaStorage
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")

	switch cfg.DatabaseDriver {
	case DriverSQLite, DriverMySQL:
	default:
		return Config{}, fmt.Errorf("unsupported DATABASE_DRIVER '%s'", cfg.DatabaseDriver)
	}

	if cfg.ThumbnailSize <= 0 {
		slog.Warn("invalid THUMBNAIL_SIZE, using default", "value", cfg.ThumbnailSize)
		cfg.ThumbnailSize = 300
	}
	if cfg.BulkMaxFiles <= 0 {
		cfg.BulkMaxFiles = 10
	}
	if cfg.IngestConcurrency <= 0 {
		cfg.IngestConcurrency = 1
	}
	if cfg.MaxUploadBytes <= 0 {
		return Config{}, fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", cfg.MaxUploadBytes)
	}

	return cfg, nil
}
