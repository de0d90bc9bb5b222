// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all server configuration.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string

	// Logging
	LogLevel  string
	LogFormat string

	// Storage backend ("local" or "s3", default: "local")
	StorageBackend   string
	LocalStoragePath string

	// S3 storage
	S3Endpoint  string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3UseSSL    bool

	// Downloads catalog
	CatalogPath string
	CatalogTTL  time.Duration

	// Upstream release API
	ReleaseAPIBase string
	UserAgent      string
	HTTPTimeout    time.Duration

	// Download stats (optional; disabled when empty)
	DatabaseURL string
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:       envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr:      envOr("METRICS_ADDR", ":9090"),
		LogLevel:         envOr("LOG_LEVEL", "info"),
		LogFormat:        envOr("LOG_FORMAT", "json"),
		StorageBackend:   envOr("STORAGE_BACKEND", "local"),
		LocalStoragePath: envOr("LOCAL_STORAGE_PATH", "/data/storage"),
		S3Endpoint:       envOr("S3_ENDPOINT", "http://localhost:9000"),
		S3Bucket:         envOr("S3_BUCKET", "appdrop"),
		S3AccessKey:      envOr("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:      envOr("S3_SECRET_KEY", "minioadmin"),
		S3Region:         envOr("S3_REGION", "us-east-1"),
		S3UseSSL:         envBool("S3_USE_SSL", false),
		CatalogPath:      envOr("CATALOG_PATH", "data/downloads.json"),
		CatalogTTL:       time.Duration(envInt64("CATALOG_TTL_SECONDS", 86400)) * time.Second,
		ReleaseAPIBase:   envOr("RELEASE_API_BASE", "https://api.github.com"),
		UserAgent:        envOr("USER_AGENT", "appdrop-server/1.0"),
		HTTPTimeout:      time.Duration(envInt64("HTTP_CLIENT_TIMEOUT_SECONDS", 30)) * time.Second,
		DatabaseURL:      envOr("DATABASE_URL", ""),
	}

	if cfg.StorageBackend != "local" && cfg.StorageBackend != "s3" {
		return nil, fmt.Errorf("STORAGE_BACKEND must be 'local' or 's3', got %q", cfg.StorageBackend)
	}
	if cfg.CatalogTTL <= 0 {
		return nil, fmt.Errorf("CATALOG_TTL_SECONDS must be positive")
	}
	if cfg.HTTPTimeout <= 0 {
		return nil, fmt.Errorf("HTTP_CLIENT_TIMEOUT_SECONDS must be positive")
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}
