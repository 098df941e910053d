// kopilka-prefetch installs and activates one cache generation, then
// exits. Run it ahead of going offline, or from a cron job after
// deploying new assets, so the serving process always finds a complete
// bucket on disk.
package main

import (
	"context"
	"net/url"
	"os"

	"kopilka/internal/cache"
	"kopilka/internal/cli"
)

func main() {
	logger := cli.SetupLogger()
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig(logger)

	if cfg.AssetBaseURL == "" {
		logger.Error("ASSET_BASE_URL is required for prefetch")
		os.Exit(1)
	}

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

	ctx := context.Background()
	if err := manager.Install(ctx); err != nil {
		logger.Error("Cache install failed", "error", err, "version", cfg.CacheVersion)
		os.Exit(1)
	}
	if err := manager.Activate(); err != nil {
		logger.Error("Cache activation failed", "error", err, "version", cfg.CacheVersion)
		os.Exit(1)
	}

	logger.Info("Cache generation installed and active",
		"version", cfg.CacheVersion,
		"assets", len(cfg.AssetManifest),
		"dir", cfg.CacheDir)
}
