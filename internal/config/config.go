package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Database
	SQLiteDBPath string

	// Backend selection
	DataBackend string

	// Asset cache
	CacheDir      string
	CacheVersion  string
	AssetBaseURL  string
	AssetManifest []string
	OfflineDoc    string

	// Sessions
	SessionTTL time.Duration
}

// defaultManifest mirrors the pages and static assets the app ships.
var defaultManifest = []string{
	"/index.html",
	"/expenses.html",
	"/reports.html",
	"/static/styles.css",
	"/static/app.js",
}

func Load() *Config {
	cfg := &Config{
		Port:         getEnv("PORT", "8081"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/kopilka.db"),
		DataBackend:  getEnv("DATA_BACKEND", "sqlite"),

		CacheDir:      getEnv("CACHE_DIR", "./data/cache"),
		CacheVersion:  getEnv("CACHE_VERSION", "v1"),
		AssetBaseURL:  getEnv("ASSET_BASE_URL", ""),
		AssetManifest: getEnvList("ASSET_MANIFEST", defaultManifest),
		OfflineDoc:    getEnv("OFFLINE_DOC", "/index.html"),

		SessionTTL: getEnvDuration("SESSION_TTL", 12*time.Hour),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate data backend
	validBackends := []string{"memory", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	// Validate SQLite configuration if backend is sqlite
	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			// Check if directory exists or can be created
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	// Validate asset cache configuration if an upstream is configured
	if c.AssetBaseURL != "" {
		if parsedURL, err := url.Parse(c.AssetBaseURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid asset base URL '%s': %v", c.AssetBaseURL, err))
		} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid asset base URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
		}
		if c.CacheVersion == "" {
			errors = append(errors, "cache version cannot be empty when an asset base URL is provided")
		}
		if len(c.AssetManifest) == 0 {
			errors = append(errors, "asset manifest cannot be empty when an asset base URL is provided")
		}
		if c.CacheDir == "" {
			errors = append(errors, "cache directory cannot be empty when an asset base URL is provided")
		}
		offlineInManifest := false
		for _, a := range c.AssetManifest {
			if a == c.OfflineDoc {
				offlineInManifest = true
				break
			}
		}
		if !offlineInManifest {
			errors = append(errors, fmt.Sprintf("offline document '%s' must be part of the asset manifest", c.OfflineDoc))
		}
	}

	// Validate session configuration
	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	} else if c.SessionTTL > 7*24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at most 7 days", c.SessionTTL))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
