package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
http:
  port: 9090
  readtimeout: 5s
log:
  level: debug
  format: json
auth:
  jwtsecret: super-secret-signing-key
oauth:
  callback: http://localhost/auth/callback
  apps:
    google:
      id: gid
      secret: gsecret
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.HTTP.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.HTTP.Port)
	}
	if cfg.HTTP.ReadTimeout != 5*time.Second {
		t.Errorf("ReadTimeout = %v, want 5s", cfg.HTTP.ReadTimeout)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want json", cfg.Log.Format)
	}
	if cfg.OAuth.Callback != "http://localhost/auth/callback" {
		t.Errorf("OAuth.Callback = %q", cfg.OAuth.Callback)
	}
	if app, ok := cfg.OAuth.Apps["google"]; !ok || app.ID != "gid" || app.Secret != "gsecret" {
		t.Errorf("OAuth.Apps[google] = %+v", app)
	}
	// Unset fields fall back to defaults.
	if cfg.HTTP.WriteTimeout != 15*time.Second {
		t.Errorf("WriteTimeout = %v, want default 15s", cfg.HTTP.WriteTimeout)
	}
	if cfg.Auth.SessionTTL != 24*time.Hour {
		t.Errorf("SessionTTL = %v, want default 24h", cfg.Auth.SessionTTL)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
http:
  port: 9090
auth:
  jwtsecret: super-secret-signing-key
`)
	t.Setenv("CROSSPOST_HTTP_PORT", "7070")
	t.Setenv("CROSSPOST_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Port != 7070 {
		t.Errorf("Port = %d, want env override 7070", cfg.HTTP.Port)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want warn", cfg.Log.Level)
	}
}

func TestLoadMissingFileUsesEnvOnly(t *testing.T) {
	t.Setenv("CROSSPOST_AUTH_JWTSECRET", "super-secret-signing-key")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Port != 8080 {
		t.Errorf("Port = %d, want default 8080", cfg.HTTP.Port)
	}
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Error("Load() error = nil, want missing jwtsecret error")
	}
}

func TestLoadRejectsBadLogFormat(t *testing.T) {
	path := writeConfigFile(t, `
log:
  format: xml
auth:
  jwtsecret: super-secret-signing-key
`)
	if _, err := Load(path); err == nil {
		t.Error("Load() error = nil, want bad log.format error")
	}
}
