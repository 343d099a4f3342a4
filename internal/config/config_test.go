package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DBDriver != "sqlite" || cfg.DBPath != "./data/audit.db" {
		t.Errorf("Unexpected database defaults: %s %s", cfg.DBDriver, cfg.DBPath)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Errorf("Expected 24h session TTL, got %v", cfg.SessionTTL)
	}
	if cfg.Telegram.PollTimeout != 30*time.Second {
		t.Errorf("Expected 30s poll timeout, got %v", cfg.Telegram.PollTimeout)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("Expected info level, got %v", cfg.LogLevel)
	}
	if len(cfg.HTTP.AllowedOrigins) != 1 || cfg.HTTP.AllowedOrigins[0] != "*" {
		t.Errorf("Unexpected origins: %v", cfg.HTTP.AllowedOrigins)
	}
	if cfg.Archive.Enabled() {
		t.Errorf("Archive should be disabled without an endpoint")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_ENABLED", "false")
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/audit")
	t.Setenv("SESSION_TTL", "90m")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("CONVERSATION_LOG_QUEUE_SIZE", "-5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DBDriver != "postgres" {
		t.Errorf("Expected postgres driver, got %q", cfg.DBDriver)
	}
	if cfg.SessionTTL != 90*time.Minute {
		t.Errorf("Expected 90m TTL, got %v", cfg.SessionTTL)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("Expected debug level, got %v", cfg.LogLevel)
	}
	if len(cfg.HTTP.AllowedOrigins) != 2 {
		t.Errorf("Expected 2 origins, got %v", cfg.HTTP.AllowedOrigins)
	}
	if cfg.ConversationLog.QueueSize != 1000 {
		t.Errorf("Non-positive queue size should fall back to 1000, got %d", cfg.ConversationLog.QueueSize)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Telegram:        TelegramConfig{Enabled: true, Token: "t", PollTimeout: time.Second},
			DBDriver:        "sqlite",
			DBPath:          "x.db",
			DataDir:         "data",
			SessionTTL:      time.Hour,
			SessionCapacity: 10,
			HTTP:            HTTPConfig{Enabled: true, Port: "8080"},
			ConversationLog: ConversationLogConfig{QueueSize: 1},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing token", func(c *Config) { c.Telegram.Token = "" }, "TELEGRAM_BOT_TOKEN"},
		{"token not needed when disabled", func(c *Config) { c.Telegram.Enabled = false; c.Telegram.Token = "" }, ""},
		{"unknown driver", func(c *Config) { c.DBDriver = "mysql" }, "DB_DRIVER"},
		{"postgres without url", func(c *Config) { c.DBDriver = "postgres" }, "DATABASE_URL"},
		{"zero ttl", func(c *Config) { c.SessionTTL = 0 }, "SESSION_TTL"},
		{"no transports", func(c *Config) { c.Telegram.Enabled = false; c.HTTP.Enabled = false }, "at least one"},
		{"log without open file budget", func(c *Config) {
			c.ConversationLog.Enabled = true
			c.ConversationLog.Dir = "logs"
		}, "CONVERSATION_LOG_MAX_OPEN_FILES"},
		{"archive without keys", func(c *Config) { c.Archive.Endpoint = "localhost:9000" }, "S3_ACCESS_KEY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
