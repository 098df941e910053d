package main

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"time"

	"kopilka/internal/backend"
	"kopilka/internal/cache"
	"kopilka/internal/cli"
	"kopilka/internal/events"
	"kopilka/internal/gate"
	apphttp "kopilka/internal/http"
	"kopilka/internal/session"
)

func main() {
	logger := cli.SetupLogger()
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Backend configuration error", "error", err)
		os.Exit(1)
	}

	be, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Backend initialization failed", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	sessions := session.NewRegistry(cfg.SessionTTL)
	bus := events.NewBus()
	pinGate := gate.New(be.Backend)

	// Optional offline asset cache fronting the configured upstream.
	var assetProxy http.Handler
	if cfg.AssetBaseURL != "" {
		upstream, err := url.Parse(cfg.AssetBaseURL)
		if err != nil {
			logger.Error("Invalid asset base URL", "error", err, "url", cfg.AssetBaseURL)
			os.Exit(1)
		}
		bucketStore, err := cache.NewDiskBucketStore(cfg.CacheDir)
		if err != nil {
			logger.Error("Cache directory unavailable", "error", err, "dir", cfg.CacheDir)
			os.Exit(1)
		}

		manager := cache.NewManager(cache.Generation{
			Version: cfg.CacheVersion,
			Assets:  cfg.AssetManifest,
		}, bucketStore, upstream, cfg.OfflineDoc)

		// Install is best-effort at startup: failure means we start
		// without an offline cache, it never blocks serving.
		if err := manager.Install(context.Background()); err != nil {
			logger.Warn("Cache install failed, continuing without offline cache",
				"error", err, "version", cfg.CacheVersion)
		} else if err := manager.Activate(); err != nil {
			logger.Warn("Cache activation failed", "error", err, "version", cfg.CacheVersion)
		} else {
			assetProxy = manager.Handler()
		}
	}

	srv := apphttp.NewServer(":"+cfg.Port, be.Backend, pinGate, sessions, bus, assetProxy)

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		sessions.Stop()
		if be.Cleanup != nil {
			if err := be.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", "error", err)
			}
		}
	})

	logger.Info("Starting kopilka server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"offline_cache", assetProxy != nil)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
