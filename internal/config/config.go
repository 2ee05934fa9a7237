package config

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// TelegramConfig holds the Telegram channel settings.
type TelegramConfig struct {
	Token      string  `yaml:"token"`
	AllowedIDs []int64 `yaml:"allowed_ids"`
	Enabled    bool    `yaml:"enabled"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// RetentionConfig sets retention windows in days. 0 = keep forever.
type RetentionConfig struct {
	CompletedTaskDays int `yaml:"completed_task_days"`
	MessageDays       int `yaml:"message_days"`
}

// OTelConfig controls the OpenTelemetry provider.
type OTelConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"` // "otlp-http", "stdout", "none"
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
}

type Config struct {
	HomeDir string `yaml:"-"`

	BindAddr string `yaml:"bind_addr"`
	LogLevel string `yaml:"log_level"`

	// DBPath overrides the default tasks.db location under HomeDir.
	DBPath string `yaml:"db_path"`

	// AuthToken guards the HTTP API. Empty means no auth (local use).
	AuthToken string `yaml:"auth_token"`

	// AllowOrigins controls which Origin headers are accepted for browser clients.
	// Empty means no cross-origin access.
	AllowOrigins []string `yaml:"allow_origins"`

	// ListReplyLimit caps how many tasks a chat list reply shows before
	// summarizing the rest. Default 5.
	ListReplyLimit int `yaml:"list_reply_limit"`

	Retention RetentionConfig `yaml:"retention"`
	Channels  ChannelsConfig  `yaml:"channels"`
	OTel      OTelConfig      `yaml:"otel"`
}

// ConfigPath returns the path to config.yaml within the given home directory.
func ConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

// DatabasePath returns the effective SQLite database path.
func (c Config) DatabasePath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return filepath.Join(c.HomeDir, "tasks.db")
}

// Fingerprint returns a stable hash of the active config, used to detect
// whether a reload actually changed anything.
func (c Config) Fingerprint() string {
	h := fnv.New64a()
	fmt.Fprintf(h, "bind=%s|log=%s|db=%s|limit=%d|origins=%v|tg=%t|otel=%t:%s",
		c.BindAddr, c.LogLevel, c.DBPath, c.ListReplyLimit, c.AllowOrigins,
		c.Channels.Telegram.Enabled, c.OTel.Enabled, c.OTel.Exporter)
	return fmt.Sprintf("cfg-%x", h.Sum64())
}

func defaultConfig() Config {
	return Config{
		BindAddr:       "127.0.0.1:18790",
		LogLevel:       "info",
		ListReplyLimit: 5,
		Retention: RetentionConfig{
			CompletedTaskDays: 90,
			MessageDays:       90,
		},
		OTel: OTelConfig{
			Exporter:    "none",
			ServiceName: "chatdo",
			SampleRate:  1.0,
		},
	}
}

func HomeDir() string {
	if override := os.Getenv("CHATDO_HOME"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".chatdo")
}

func Load() (Config, error) {
	return LoadFrom(HomeDir())
}

// LoadFrom loads config.yaml from the given home directory, applying
// defaults and env overrides. A missing file is not an error.
func LoadFrom(homeDir string) (Config, error) {
	cfg := defaultConfig()
	cfg.HomeDir = homeDir

	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create chatdo home: %w", err)
	}

	data, err := os.ReadFile(ConfigPath(cfg.HomeDir))
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config.yaml: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	normalize(&cfg)
	return cfg, nil
}

func normalize(cfg *Config) {
	if cfg.BindAddr == "" {
		cfg.BindAddr = "127.0.0.1:18790"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.ListReplyLimit <= 0 {
		cfg.ListReplyLimit = 5
	}
	if cfg.Retention.CompletedTaskDays < 0 {
		cfg.Retention.CompletedTaskDays = 0
	}
	if cfg.Retention.MessageDays < 0 {
		cfg.Retention.MessageDays = 0
	}
	if cfg.OTel.Exporter == "" {
		cfg.OTel.Exporter = "none"
	}
	if cfg.OTel.ServiceName == "" {
		cfg.OTel.ServiceName = "chatdo"
	}
	if cfg.OTel.SampleRate <= 0 || cfg.OTel.SampleRate > 1 {
		cfg.OTel.SampleRate = 1.0
	}
	for i, origin := range cfg.AllowOrigins {
		cfg.AllowOrigins[i] = strings.TrimSpace(origin)
	}
}

func applyEnvOverrides(cfg *Config) {
	if raw := os.Getenv("CHATDO_BIND_ADDR"); raw != "" {
		cfg.BindAddr = raw
	}
	if raw := os.Getenv("CHATDO_LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := os.Getenv("CHATDO_DB_PATH"); raw != "" {
		cfg.DBPath = raw
	}
	if raw := os.Getenv("CHATDO_AUTH_TOKEN"); raw != "" {
		cfg.AuthToken = raw
	}
	if raw := os.Getenv("CHATDO_LIST_REPLY_LIMIT"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.ListReplyLimit = v
		}
	}
	if raw := os.Getenv("TELEGRAM_TOKEN"); raw != "" {
		cfg.Channels.Telegram.Token = raw
	}
	if raw := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); raw != "" {
		cfg.OTel.Endpoint = raw
	}
}
