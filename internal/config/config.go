// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrS3RegionRequired is returned when S3_BUCKET is set without S3_REGION.
	ErrS3RegionRequired = errors.New("config: S3_REGION is required when S3_BUCKET is set")
	// ErrInvalidLimit is returned when a numeric limit is not positive.
	ErrInvalidLimit = errors.New("config: limit must be positive")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Storage settings
	TempDir   string `env:"TEMP_DIR, default=/tmp/mindset-media" json:"temp_dir"`
	JobDBPath string `env:"JOB_DB_PATH" json:"job_db_path,omitempty"` // Empty keeps jobs in memory

	// Media tools
	FFmpegPath  string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath string `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`

	// Processing settings
	DownloadTimeout   time.Duration `env:"DOWNLOAD_TIMEOUT, default=60s" json:"download_timeout"`
	MaxConcurrentJobs int           `env:"MAX_CONCURRENT_JOBS, default=2" json:"max_concurrent_jobs"`
	MinFreeDiskMB     int           `env:"MIN_FREE_DISK_MB, default=256" json:"min_free_disk_mb"`
	JobTimeout        time.Duration `env:"JOB_TIMEOUT, default=30m" json:"job_timeout"` // Zero disables the limit

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	S3Prefix           string `env:"S3_PREFIX, default=compilations" json:"s3_prefix"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// MinFreeBytes returns the disk space the exporter requires before writing.
func (c *Config) MinFreeBytes() uint64 {
	if c.MinFreeDiskMB <= 0 {
		return 0
	}
	return uint64(c.MinFreeDiskMB) << 20
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	return load(envconfig.OsLookuper())
}

func load(lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is consistent.
func (c *Config) Validate() error {
	if c.S3Bucket != "" && c.S3Region == "" {
		return ErrS3RegionRequired
	}
	if c.JobTimeout < 0 {
		return fmt.Errorf("%w: JOB_TIMEOUT", ErrInvalidLimit)
	}
	limits := []struct {
		name  string
		value int64
	}{
		{"PORT", int64(c.Port)},
		{"MAX_CONCURRENT_JOBS", int64(c.MaxConcurrentJobs)},
		{"MIN_FREE_DISK_MB", int64(c.MinFreeDiskMB)},
		{"DOWNLOAD_TIMEOUT", int64(c.DownloadTimeout)},
	}
	for _, l := range limits {
		if l.value <= 0 {
			return fmt.Errorf("%w: %s", ErrInvalidLimit, l.name)
		}
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, TempDir: %s, JobDBPath: %s, FFmpegPath: %s, FFprobePath: %s, DownloadTimeout: %s, MaxConcurrentJobs: %d, MinFreeDiskMB: %d, JobTimeout: %s, S3Bucket: %s, S3Region: %s, S3Endpoint: %s, S3Prefix: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.TempDir,
		c.JobDBPath,
		c.FFmpegPath,
		c.FFprobePath,
		c.DownloadTimeout,
		c.MaxConcurrentJobs,
		c.MinFreeDiskMB,
		c.JobTimeout,
		c.S3Bucket,
		c.S3Region,
		c.S3Endpoint,
		c.S3Prefix,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
