// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

const validSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_ValidConfig(t *testing.T) {
	configContent := `
server:
  http_addr: "0.0.0.0:8080"

database:
  path: "./hearth.db"

cache:
  path: "./snapshots.db"
  ttl: "12h"

auth:
  jwt_secret: "` + validSecret + `"
  issuer: "hearth"
  audience: "hearth-app"
  admin_token: "operator-secret"

push:
  enabled: true
  vapid_public_key: "pub-key"
  vapid_private_key: "priv-key"
  subscriber: "mailto:ops@example.com"

feed:
  fetch_timeout: "3s"

unread:
  recompute_delay: "500ms"

tour:
  steps_path: "./tour.toml"

logging:
  level: "debug"
  format: "json"
`
	cfg, err := Load(writeConfig(t, configContent))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Verify server config
	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}

	// Verify database and cache config
	if cfg.Database.Path != "./hearth.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./hearth.db")
	}
	if cfg.Cache.Path != "./snapshots.db" {
		t.Errorf("Cache.Path = %q, want %q", cfg.Cache.Path, "./snapshots.db")
	}
	if cfg.Cache.TTL != 12*time.Hour {
		t.Errorf("Cache.TTL = %v, want %v", cfg.Cache.TTL, 12*time.Hour)
	}

	// Verify auth config
	if cfg.Auth.JWTSecret != validSecret {
		t.Errorf("Auth.JWTSecret = %q, want %q", cfg.Auth.JWTSecret, validSecret)
	}
	if cfg.Auth.Issuer != "hearth" {
		t.Errorf("Auth.Issuer = %q, want %q", cfg.Auth.Issuer, "hearth")
	}
	if cfg.Auth.AdminToken != "operator-secret" {
		t.Errorf("Auth.AdminToken = %q, want %q", cfg.Auth.AdminToken, "operator-secret")
	}

	// Verify push config
	if !cfg.Push.Enabled {
		t.Error("Push.Enabled = false, want true")
	}
	if cfg.Push.Subscriber != "mailto:ops@example.com" {
		t.Errorf("Push.Subscriber = %q, want %q", cfg.Push.Subscriber, "mailto:ops@example.com")
	}

	// Verify duration parsing
	if cfg.Feed.FetchTimeout != 3*time.Second {
		t.Errorf("Feed.FetchTimeout = %v, want %v", cfg.Feed.FetchTimeout, 3*time.Second)
	}
	if cfg.Unread.RecomputeDelay != 500*time.Millisecond {
		t.Errorf("Unread.RecomputeDelay = %v, want %v", cfg.Unread.RecomputeDelay, 500*time.Millisecond)
	}

	// Verify tour and logging
	if cfg.Tour.StepsPath != "./tour.toml" {
		t.Errorf("Tour.StepsPath = %q, want %q", cfg.Tour.StepsPath, "./tour.toml")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoad_Defaults(t *testing.T) {
	configContent := `
server:
  http_addr: "127.0.0.1:8080"
database:
  path: "./hearth.db"
auth:
  jwt_secret: "` + validSecret + `"
`
	cfg, err := Load(writeConfig(t, configContent))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Cache.TTL != DefaultCacheTTL {
		t.Errorf("Cache.TTL = %v, want default %v", cfg.Cache.TTL, DefaultCacheTTL)
	}
	if cfg.Feed.FetchTimeout != DefaultFetchTimeout {
		t.Errorf("Feed.FetchTimeout = %v, want default %v", cfg.Feed.FetchTimeout, DefaultFetchTimeout)
	}
	if cfg.Unread.RecomputeDelay != DefaultRecomputeDelay {
		t.Errorf("Unread.RecomputeDelay = %v, want default %v", cfg.Unread.RecomputeDelay, DefaultRecomputeDelay)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "text")
	}
	if cfg.Push.Enabled {
		t.Error("Push.Enabled = true, want false by default")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_HEARTH_SECRET", validSecret)
	t.Setenv("TEST_HEARTH_DB", "/var/lib/hearth/hearth.db")

	configContent := `
server:
  http_addr: "127.0.0.1:8080"
database:
  path: "${TEST_HEARTH_DB}"
auth:
  jwt_secret: "${TEST_HEARTH_SECRET}"
`
	cfg, err := Load(writeConfig(t, configContent))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/var/lib/hearth/hearth.db" {
		t.Errorf("Database.Path = %q, want expanded env var", cfg.Database.Path)
	}
	if cfg.Auth.JWTSecret != validSecret {
		t.Errorf("Auth.JWTSecret = %q, want expanded env var", cfg.Auth.JWTSecret)
	}
}

func TestLoad_UnsetEnvVarExpandsEmpty(t *testing.T) {
	configContent := `
server:
  http_addr: "127.0.0.1:8080"
database:
  path: "./hearth.db"
auth:
  jwt_secret: "${DEFINITELY_NOT_SET_HEARTH_VAR}"
`
	_, err := Load(writeConfig(t, configContent))
	if err == nil {
		t.Fatal("Load() error = nil, want validation failure for empty secret")
	}
	if !strings.Contains(err.Error(), "jwt_secret") {
		t.Errorf("Load() error = %v, want mention of jwt_secret", err)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configContent := `
server:
  http_addr: "127.0.0.1:8080"
database:
  path: "./hearth.db"
auth:
  jwt_secret: "` + validSecret + `"
feed:
  fetch_timeout: "not-a-duration"
`
	_, err := Load(writeConfig(t, configContent))
	if err == nil {
		t.Fatal("Load() error = nil, want duration parse failure")
	}
	if !strings.Contains(err.Error(), "fetch_timeout") {
		t.Errorf("Load() error = %v, want mention of fetch_timeout", err)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing http_addr",
			content: `
database:
  path: "./hearth.db"
auth:
  jwt_secret: "` + validSecret + `"
`,
			wantErr: "http_addr",
		},
		{
			name: "missing database path",
			content: `
server:
  http_addr: "127.0.0.1:8080"
auth:
  jwt_secret: "` + validSecret + `"
`,
			wantErr: "database.path",
		},
		{
			name: "short jwt secret",
			content: `
server:
  http_addr: "127.0.0.1:8080"
database:
  path: "./hearth.db"
auth:
  jwt_secret: "too-short"
`,
			wantErr: "32 bytes",
		},
		{
			name: "push enabled without keys",
			content: `
server:
  http_addr: "127.0.0.1:8080"
database:
  path: "./hearth.db"
auth:
  jwt_secret: "` + validSecret + `"
push:
  enabled: true
`,
			wantErr: "vapid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Load() error = nil, want validation failure")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() error = nil, want read failure")
	}
}
