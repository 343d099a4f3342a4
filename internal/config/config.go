// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	LogLevel slog.Level

	Telegram TelegramConfig

	DBDriver    string // "sqlite" or "postgres"
	DBPath      string
	DatabaseURL string

	DataDir       string
	PhotoDir      string
	TemplatePath  string
	ReportTmpDir  string
	ChecklistPath string

	SessionTTL      time.Duration
	SessionCapacity int

	HTTP            HTTPConfig
	ConversationLog ConversationLogConfig
	Archive         ArchiveConfig
}

// TelegramConfig controls the Telegram long-poll gateway.
type TelegramConfig struct {
	Enabled     bool
	Token       string
	APIURL      string
	PollTimeout time.Duration
}

// HTTPConfig controls the ops API and web chat server.
type HTTPConfig struct {
	Enabled        bool
	Port           string
	APIToken       string
	AllowedOrigins []string
}

// ConversationLogConfig controls NDJSON conversation logging.
type ConversationLogConfig struct {
	Enabled      bool
	Dir          string
	QueueSize    int
	MaxOpenFiles int
}

// ArchiveConfig controls report archiving to S3-compatible storage.
type ArchiveConfig struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Enabled reports whether an archive endpoint is configured.
func (a ArchiveConfig) Enabled() bool {
	return a.Endpoint != ""
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		LogLevel: parseLevel(getEnv("LOG_LEVEL", "info")),
		Telegram: TelegramConfig{
			Enabled:     getEnvBool("TELEGRAM_ENABLED", true),
			Token:       getEnv("TELEGRAM_BOT_TOKEN", ""),
			APIURL:      getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
			PollTimeout: getEnvDuration("TELEGRAM_POLL_TIMEOUT", 30*time.Second),
		},
		DBDriver:        strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DBPath:          getEnv("DB_PATH", "./data/audit.db"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		DataDir:         getEnv("DATA_DIR", "./data"),
		PhotoDir:        getEnv("PHOTO_DIR", "./data/photos"),
		TemplatePath:    getEnv("TEMPLATE_PATH", "./data/act_fundament_template.docx"),
		ReportTmpDir:    getEnv("REPORT_TMP_DIR", ""),
		ChecklistPath:   getEnv("CHECKLIST_PATH", ""),
		SessionTTL:      getEnvDuration("SESSION_TTL", 24*time.Hour),
		SessionCapacity: getEnvInt("SESSION_CAPACITY", 10000),
		HTTP: HTTPConfig{
			Enabled:        getEnvBool("HTTP_ENABLED", true),
			Port:           getEnv("PORT", "8080"),
			APIToken:       getEnv("API_TOKEN", ""),
			AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:      getEnvBool("CONVERSATION_LOG_ENABLED", false),
			Dir:          getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			QueueSize:    queueSize,
			MaxOpenFiles: getEnvInt("CONVERSATION_LOG_MAX_OPEN_FILES", 64),
		},
		Archive: ArchiveConfig{
			Endpoint:  getEnv("S3_ENDPOINT", ""),
			Region:    getEnv("S3_REGION", ""),
			AccessKey: getEnv("S3_ACCESS_KEY", ""),
			SecretKey: getEnv("S3_SECRET_KEY", ""),
			Bucket:    getEnv("S3_BUCKET", "inspection-reports"),
			UseSSL:    getEnvBool("S3_USE_SSL", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Telegram.Enabled && c.Telegram.Token == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required when TELEGRAM_ENABLED is set")
	}
	if c.Telegram.PollTimeout <= 0 {
		return fmt.Errorf("TELEGRAM_POLL_TIMEOUT must be > 0")
	}
	switch c.DBDriver {
	case "sqlite":
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.DBDriver)
	}
	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR cannot be empty")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.SessionCapacity <= 0 {
		return fmt.Errorf("SESSION_CAPACITY must be > 0")
	}
	if c.HTTP.Enabled && c.HTTP.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if !c.Telegram.Enabled && !c.HTTP.Enabled {
		return fmt.Errorf("at least one of TELEGRAM_ENABLED or HTTP_ENABLED must be set")
	}
	if c.ConversationLog.Enabled && c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.Enabled && c.ConversationLog.MaxOpenFiles <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_MAX_OPEN_FILES must be > 0")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	if c.Archive.Enabled() && (c.Archive.AccessKey == "" || c.Archive.SecretKey == "" || c.Archive.Bucket == "") {
		return fmt.Errorf("S3_ACCESS_KEY, S3_SECRET_KEY and S3_BUCKET are required when S3_ENDPOINT is set")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
