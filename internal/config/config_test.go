package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFrom_Defaults(t *testing.T) {
	home := t.TempDir()
	cfg, err := LoadFrom(home)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.BindAddr != "127.0.0.1:18790" {
		t.Fatalf("BindAddr = %q, want default", cfg.BindAddr)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.ListReplyLimit != 5 {
		t.Fatalf("ListReplyLimit = %d, want 5", cfg.ListReplyLimit)
	}
	if cfg.Retention.CompletedTaskDays != 90 {
		t.Fatalf("CompletedTaskDays = %d, want 90", cfg.Retention.CompletedTaskDays)
	}
	if cfg.OTel.Exporter != "none" {
		t.Fatalf("OTel.Exporter = %q, want none", cfg.OTel.Exporter)
	}
	if got, want := cfg.DatabasePath(), filepath.Join(home, "tasks.db"); got != want {
		t.Fatalf("DatabasePath = %q, want %q", got, want)
	}
}

func TestLoadFrom_ReadsYAML(t *testing.T) {
	home := t.TempDir()
	yaml := `
bind_addr: "0.0.0.0:9000"
log_level: debug
list_reply_limit: 3
auth_token: s3cret
allow_origins:
  - " https://app.example.com "
retention:
  completed_task_days: 7
  message_days: 14
channels:
  telegram:
    enabled: true
    allowed_ids: [42, 99]
otel:
  enabled: true
  exporter: stdout
`
	if err := os.WriteFile(ConfigPath(home), []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadFrom(home)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.BindAddr != "0.0.0.0:9000" {
		t.Fatalf("BindAddr = %q", cfg.BindAddr)
	}
	if cfg.ListReplyLimit != 3 {
		t.Fatalf("ListReplyLimit = %d, want 3", cfg.ListReplyLimit)
	}
	if cfg.AuthToken != "s3cret" {
		t.Fatalf("AuthToken = %q", cfg.AuthToken)
	}
	if len(cfg.AllowOrigins) != 1 || cfg.AllowOrigins[0] != "https://app.example.com" {
		t.Fatalf("AllowOrigins = %v, want trimmed origin", cfg.AllowOrigins)
	}
	if cfg.Retention.CompletedTaskDays != 7 || cfg.Retention.MessageDays != 14 {
		t.Fatalf("Retention = %+v", cfg.Retention)
	}
	if !cfg.Channels.Telegram.Enabled || len(cfg.Channels.Telegram.AllowedIDs) != 2 {
		t.Fatalf("Telegram = %+v", cfg.Channels.Telegram)
	}
	if !cfg.OTel.Enabled || cfg.OTel.Exporter != "stdout" {
		t.Fatalf("OTel = %+v", cfg.OTel)
	}
}

func TestLoadFrom_EnvOverrides(t *testing.T) {
	home := t.TempDir()
	t.Setenv("CHATDO_BIND_ADDR", "127.0.0.1:7777")
	t.Setenv("CHATDO_AUTH_TOKEN", "env-token")
	t.Setenv("TELEGRAM_TOKEN", "env-tg")

	cfg, err := LoadFrom(home)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.BindAddr != "127.0.0.1:7777" {
		t.Fatalf("BindAddr = %q, want env override", cfg.BindAddr)
	}
	if cfg.AuthToken != "env-token" {
		t.Fatalf("AuthToken = %q, want env override", cfg.AuthToken)
	}
	if cfg.Channels.Telegram.Token != "env-tg" {
		t.Fatalf("Telegram.Token = %q, want env override", cfg.Channels.Telegram.Token)
	}
}

func TestLoadFrom_InvalidYAML(t *testing.T) {
	home := t.TempDir()
	if err := os.WriteFile(ConfigPath(home), []byte("bind_addr: [not a string"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadFrom(home); err == nil {
		t.Fatal("expected parse error for invalid yaml")
	}
}

func TestNormalize_ClampsValues(t *testing.T) {
	cfg := Config{ListReplyLimit: -1, OTel: OTelConfig{SampleRate: 2.5}}
	normalize(&cfg)
	if cfg.ListReplyLimit != 5 {
		t.Fatalf("ListReplyLimit = %d, want 5", cfg.ListReplyLimit)
	}
	if cfg.OTel.SampleRate != 1.0 {
		t.Fatalf("SampleRate = %v, want 1.0", cfg.OTel.SampleRate)
	}
}

func TestFingerprint_ChangesWithConfig(t *testing.T) {
	a := defaultConfig()
	b := defaultConfig()
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatal("identical configs should share a fingerprint")
	}
	b.BindAddr = "0.0.0.0:1"
	if a.Fingerprint() == b.Fingerprint() {
		t.Fatal("different configs should differ in fingerprint")
	}
}
