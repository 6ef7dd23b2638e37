// Package bootstrap provides dependency initialization for the media
// compilation service and its CLI.
package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/maauso/mindset-media-api/internal/audio"
	"github.com/maauso/mindset-media-api/internal/compilation"
	"github.com/maauso/mindset-media-api/internal/config"
	"github.com/maauso/mindset-media-api/internal/fetch"
	"github.com/maauso/mindset-media-api/internal/job"
	"github.com/maauso/mindset-media-api/internal/media"
	"github.com/maauso/mindset-media-api/internal/storage"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Service  *job.CompilationService
	Pipeline *compilation.Pipeline
	Storage  storage.Storage

	db *job.SQLiteRepository
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	// Initialize storage
	store, err := NewStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Initialize the compilation pipeline
	pipeline, err := NewPipeline(cfg, store, logger)
	if err != nil {
		return nil, err
	}

	deps := &Dependencies{
		Pipeline: pipeline,
		Storage:  store,
	}

	// Initialize job repository
	var repo job.Repository
	if cfg.JobDBPath != "" {
		db, err := job.NewSQLiteRepository(cfg.JobDBPath, logger)
		if err != nil {
			return nil, fmt.Errorf("open job database: %w", err)
		}
		logger.Info("job history persisted", slog.String("path", cfg.JobDBPath))
		deps.db = db
		repo = db
	} else {
		repo = job.NewMemoryRepository()
	}

	deps.Service = job.NewCompilationService(repo, pipeline, store, cfg.MaxConcurrentJobs, logger,
		job.WithJobTimeout(cfg.JobTimeout),
	)

	return deps, nil
}

// Close stops running jobs and releases the job database.
func (d *Dependencies) Close() error {
	var errs []error
	if d.Service != nil {
		d.Service.Close()
	}
	if d.db != nil {
		if err := d.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close job database: %w", err))
		}
	}
	return errors.Join(errs...)
}

// NewPipeline wires the compilation pipeline on top of the ffmpeg backend.
// It fails when ffmpeg or ffprobe cannot be found.
func NewPipeline(cfg *config.Config, store storage.Storage, logger *slog.Logger) (*compilation.Pipeline, error) {
	processor := media.NewFFmpegProcessor(cfg.FFmpegPath, cfg.FFprobePath)
	if err := processor.CheckBinaries(); err != nil {
		return nil, fmt.Errorf("check media tools: %w", err)
	}

	fetcher := fetch.New(store,
		fetch.WithTimeout(cfg.DownloadTimeout),
		fetch.WithLogger(logger),
	)
	loader := compilation.NewLoader(processor, compilation.WithLoaderLogger(logger))
	compiler := compilation.NewCompiler(processor, store, logger)
	mixer := audio.NewMixer(processor, cfg.FFmpegPath, logger)
	exporter := compilation.NewExporter(processor, cfg.MinFreeBytes(), logger)

	return compilation.NewPipeline(fetcher, loader, compiler, mixer, exporter, store, logger), nil
}

// NewStorage creates the appropriate storage backend based on configuration.
func NewStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			Prefix:          cfg.S3Prefix,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
			slog.String("prefix", cfg.S3Prefix),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
	)
	return localStore, nil
}
