package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/text/language"
)

func TestLoad(t *testing.T) {
	content := `
identity:
  uid: "operator-1"

api:
  listen_addr: ":9080"
  api_key: "test-api-key"
  read_timeout: 15s

storage:
  path: "/tmp/test-store.db"

logging:
  level: "debug"
  format: "text"

metrics:
  enabled: true
  listen_addr: ":9191"
  allowed_ips:
    - "10.0.0.0/8"

phone:
  country_prefix: "972"
  mobile_prefix: "5"

locale:
  language: "he"

agents:
  daily_limit: 100
  send_delay_ms: 5000
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Identity.UID != "operator-1" {
		t.Errorf("Identity.UID = %v, want operator-1", cfg.Identity.UID)
	}
	if cfg.API.ListenAddr != ":9080" {
		t.Errorf("API.ListenAddr = %v, want :9080", cfg.API.ListenAddr)
	}
	if cfg.API.APIKey != "test-api-key" {
		t.Errorf("API.APIKey = %v, want test-api-key", cfg.API.APIKey)
	}
	if cfg.API.ReadTimeout != 15*time.Second {
		t.Errorf("API.ReadTimeout = %v, want 15s", cfg.API.ReadTimeout)
	}
	if cfg.Storage.Path != "/tmp/test-store.db" {
		t.Errorf("Storage.Path = %v", cfg.Storage.Path)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.ListenAddr != ":9191" {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
	if len(cfg.Metrics.AllowedIPs) != 1 {
		t.Errorf("Metrics.AllowedIPs = %v", cfg.Metrics.AllowedIPs)
	}
	if cfg.Agents.DailyLimit != 100 || cfg.Agents.SendDelayMs != 5000 {
		t.Errorf("Agents = %+v", cfg.Agents)
	}
}

func TestLoadDefaults(t *testing.T) {
	content := `
identity:
  uid: "operator-1"
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.ListenAddr != ":8080" {
		t.Errorf("API.ListenAddr default = %v, want :8080", cfg.API.ListenAddr)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging defaults = %+v", cfg.Logging)
	}
	if cfg.Metrics.Path != "/metrics" || cfg.Metrics.FlushInterval != 10*time.Second {
		t.Errorf("Metrics defaults = %+v", cfg.Metrics)
	}
	if cfg.Phone.CountryPrefix != "972" || cfg.Phone.MobilePrefix != "5" {
		t.Errorf("Phone defaults = %+v", cfg.Phone)
	}
	if cfg.Agents.DailyLimit != 50 || cfg.Agents.SendDelayMs != 3000 {
		t.Errorf("Agents defaults = %+v", cfg.Agents)
	}
	if cfg.LanguageTag() != language.Hebrew {
		t.Errorf("LanguageTag = %v, want he", cfg.LanguageTag())
	}
}

func TestLoadEnvOverlay(t *testing.T) {
	content := `
identity:
  uid: "from-file"
logging:
  level: "info"
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv("BLASTRY_UID", "from-env")
	t.Setenv("BLASTRY_LOG_LEVEL", "warn")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Identity.UID != "from-env" {
		t.Errorf("Identity.UID = %v, want env override", cfg.Identity.UID)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %v, want warn", cfg.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing uid", func(c *Config) { c.Identity.UID = "" }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"bad country prefix", func(c *Config) { c.Phone.CountryPrefix = "abc" }, true},
		{"bad language", func(c *Config) { c.Locale.Language = "not a tag" }, true},
		{"negative delay", func(c *Config) { c.Agents.SendDelayMs = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Identity: IdentityConfig{UID: "u1"}}
			cfg.setDefaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Load() with missing file should return error")
	}
}
