package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure
type Config struct {
	Identity IdentityConfig `yaml:"identity"`
	API      APIConfig      `yaml:"api"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Phone    PhoneConfig    `yaml:"phone"`
	Locale   LocaleConfig   `yaml:"locale"`
	Agents   AgentsConfig   `yaml:"agents"`
}

// IdentityConfig names the store namespace all user-scoped paths live
// under.
type IdentityConfig struct {
	UID string `yaml:"uid" env:"BLASTRY_UID"`
}

// APIConfig contains HTTP API server settings
type APIConfig struct {
	ListenAddr     string        `yaml:"listen_addr" env:"BLASTRY_API_ADDR"`
	APIKey         string        `yaml:"api_key" env:"BLASTRY_API_KEY"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
}

// StorageConfig contains store database settings
type StorageConfig struct {
	Path string `yaml:"path" env:"BLASTRY_STORAGE_PATH"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level" env:"BLASTRY_LOG_LEVEL"`
	Format string `yaml:"format" env:"BLASTRY_LOG_FORMAT"`
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled       bool          `yaml:"enabled" env:"BLASTRY_METRICS_ENABLED"`
	ListenAddr    string        `yaml:"listen_addr" env:"BLASTRY_METRICS_ADDR"`
	Path          string        `yaml:"path"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	AllowedIPs    []string      `yaml:"allowed_ips"`
}

// PhoneConfig controls phone number normalization
type PhoneConfig struct {
	CountryPrefix string `yaml:"country_prefix"`
	MobilePrefix  string `yaml:"mobile_prefix"`
}

// LocaleConfig sets the collation language for recipient lists
type LocaleConfig struct {
	Language string `yaml:"language" env:"BLASTRY_LANGUAGE"`
}

// AgentsConfig seeds defaults for new agent records
type AgentsConfig struct {
	DailyLimit  int `yaml:"daily_limit"`
	SendDelayMs int `yaml:"send_delay_ms"`
}

// Load reads a config file, overlays environment variables, applies
// defaults and validates. An empty path skips the file and uses
// environment plus defaults only.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.API.MaxHeaderBytes == 0 {
		c.API.MaxHeaderBytes = 1 << 20 // 1 MB
	}
	if c.API.ReadTimeout == 0 {
		c.API.ReadTimeout = 30 * time.Second
	}
	if c.API.WriteTimeout == 0 {
		c.API.WriteTimeout = 30 * time.Second
	}
	if c.API.IdleTimeout == 0 {
		c.API.IdleTimeout = 60 * time.Second
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "/var/lib/blastry/store.db"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.FlushInterval == 0 {
		c.Metrics.FlushInterval = 10 * time.Second
	}

	if c.Phone.CountryPrefix == "" {
		c.Phone.CountryPrefix = "972"
	}
	if c.Phone.MobilePrefix == "" {
		c.Phone.MobilePrefix = "5"
	}

	if c.Locale.Language == "" {
		c.Locale.Language = "he"
	}

	if c.Agents.DailyLimit == 0 {
		c.Agents.DailyLimit = 50
	}
	if c.Agents.SendDelayMs == 0 {
		c.Agents.SendDelayMs = 3000
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Identity.UID == "" {
		return fmt.Errorf("identity.uid is required")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	if !isDigits(c.Phone.CountryPrefix) {
		return fmt.Errorf("invalid phone.country_prefix: %s (must be digits)", c.Phone.CountryPrefix)
	}
	if !isDigits(c.Phone.MobilePrefix) {
		return fmt.Errorf("invalid phone.mobile_prefix: %s (must be digits)", c.Phone.MobilePrefix)
	}

	if _, err := language.Parse(c.Locale.Language); err != nil {
		return fmt.Errorf("invalid locale.language: %s: %w", c.Locale.Language, err)
	}

	if c.Agents.DailyLimit < 0 {
		return fmt.Errorf("agents.daily_limit must not be negative")
	}
	if c.Agents.SendDelayMs < 0 {
		return fmt.Errorf("agents.send_delay_ms must not be negative")
	}

	return nil
}

// LanguageTag returns the parsed collation language. Validate has
// already checked it parses.
func (c *Config) LanguageTag() language.Tag {
	tag, err := language.Parse(c.Locale.Language)
	if err != nil {
		return language.Hebrew
	}
	return tag
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789", r) {
			return false
		}
	}
	return true
}
