// AppDrop Server
//
// Features:
// - TTL-cached downloads catalog persisted to local or S3 storage
// - GitHub release resolution with per-platform fallback URLs
// - Streaming download proxy with safe attachment filenames
// - Prometheus metrics & structured logging (zap)
// - Optional PostgreSQL download statistics
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/appdrop/appdrop/internal/api"
	"github.com/appdrop/appdrop/internal/catalog"
	"github.com/appdrop/appdrop/internal/config"
	"github.com/appdrop/appdrop/internal/logging"
	"github.com/appdrop/appdrop/internal/metrics"
	"github.com/appdrop/appdrop/internal/modules"
	"github.com/appdrop/appdrop/internal/proxy"
	"github.com/appdrop/appdrop/internal/release"
	"github.com/appdrop/appdrop/internal/stats"
	"github.com/appdrop/appdrop/internal/storage"
	"github.com/appdrop/appdrop/internal/storage/local"
	s3backend "github.com/appdrop/appdrop/internal/storage/s3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("AppDrop Server starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.String("storage", cfg.StorageBackend))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The downloads module is built lazily, on the first request that needs
	// it. Concurrent first requests share one initialization. Construction
	// runs under the server's context rather than the triggering request's:
	// the module outlives that request, and shutdown cancels an in-flight
	// init.
	registry := modules.NewRegistry(func(_ context.Context, _ string) (modules.Handle, error) {
		return buildDownloads(ctx, cfg)
	})

	srv := api.NewServer(registry)

	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metrics.Handler(),
	}
	go func() {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Error("metrics server error", zap.Error(err))
		}
	}()

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Handler(),
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")
		cancel()
		httpServer.Close()
		metricsServer.Close()
	}()

	logging.Info("server listening", zap.String("addr", cfg.ListenAddr))
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		logging.Fatal("server error", zap.Error(err))
	}
	logging.Info("server stopped")
}

// buildDownloads constructs the full downloads module: storage backend,
// catalog cache, release resolver, streaming proxy, optional stats store.
func buildDownloads(ctx context.Context, cfg *config.Config) (*api.Downloads, error) {
	backend, err := storage.NewBackend(ctx, storage.Options{
		Type:  cfg.StorageBackend,
		Local: local.Config{RootPath: cfg.LocalStoragePath},
		S3: s3backend.Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
		},
	})
	if err != nil {
		return nil, err
	}
	logging.Info("storage backend initialized", zap.String("type", backend.Type()))

	cache := catalog.NewCache(backend, cfg.CatalogPath, cfg.CatalogTTL, catalog.DefaultEntries())
	resolver := release.NewResolver(cfg.ReleaseAPIBase, cfg.UserAgent, cfg.HTTPTimeout)
	prox := proxy.New(cache, resolver, cfg.UserAgent, cfg.HTTPTimeout)

	d := &api.Downloads{
		Catalog: cache,
		Proxy:   prox,
	}

	if cfg.DatabaseURL != "" {
		store, err := stats.New(cfg.DatabaseURL)
		if err != nil {
			backend.Close()
			return nil, err
		}
		d.Stats = store
		logging.Info("download stats store initialized")
	}

	return d, nil
}
