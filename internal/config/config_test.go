package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Port:          "8081",
		DataBackend:   "sqlite",
		SQLiteDBPath:  "./test.db",
		CacheDir:      "./cache",
		CacheVersion:  "v1",
		AssetBaseURL:  "https://assets.example.net/",
		AssetManifest: []string{"/index.html", "/static/styles.css"},
		OfflineDoc:    "/index.html",
		SessionTTL:    12 * time.Hour,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		wantErr     bool
		errorString string
	}{
		{
			name:   "valid sqlite backend config",
			mutate: func(c *Config) {},
		},
		{
			name:   "valid memory backend without upstream",
			mutate: func(c *Config) { c.DataBackend = "memory"; c.AssetBaseURL = "" },
		},
		{
			name:        "invalid port - non-numeric",
			mutate:      func(c *Config) { c.Port = "abc" },
			wantErr:     true,
			errorString: "invalid port 'abc': must be a number",
		},
		{
			name:        "invalid port - out of range",
			mutate:      func(c *Config) { c.Port = "70000" },
			wantErr:     true,
			errorString: "invalid port 70000: must be between 1 and 65535",
		},
		{
			name:        "invalid data backend",
			mutate:      func(c *Config) { c.DataBackend = "sheets" },
			wantErr:     true,
			errorString: "invalid data backend 'sheets'",
		},
		{
			name:        "sqlite backend missing database path",
			mutate:      func(c *Config) { c.SQLiteDBPath = "" },
			wantErr:     true,
			errorString: "SQLite database path cannot be empty",
		},
		{
			name:        "invalid asset base URL scheme",
			mutate:      func(c *Config) { c.AssetBaseURL = "ftp://assets.example.net/" },
			wantErr:     true,
			errorString: "must be 'http' or 'https'",
		},
		{
			name:        "empty manifest with upstream",
			mutate:      func(c *Config) { c.AssetManifest = nil },
			wantErr:     true,
			errorString: "asset manifest cannot be empty",
		},
		{
			name:        "offline document not in manifest",
			mutate:      func(c *Config) { c.OfflineDoc = "/offline.html" },
			wantErr:     true,
			errorString: "must be part of the asset manifest",
		},
		{
			name:        "session TTL too short",
			mutate:      func(c *Config) { c.SessionTTL = time.Second },
			wantErr:     true,
			errorString: "must be at least 1 minute",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error containing %q", tt.errorString)
				}
				if tt.errorString != "" && !strings.Contains(err.Error(), tt.errorString) {
					t.Fatalf("error %q does not contain %q", err.Error(), tt.errorString)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.Port != "8081" {
		t.Fatalf("unexpected default port %q", cfg.Port)
	}
	if cfg.DataBackend != "sqlite" {
		t.Fatalf("unexpected default backend %q", cfg.DataBackend)
	}
	if len(cfg.AssetManifest) == 0 {
		t.Fatalf("default manifest must not be empty")
	}
}
