package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ProviderGemini       = "gemini"
	ProviderOpenAICompat = "openai_compat"
)

var (
	ErrMissingDatabaseDSN = errors.New("DB_DSN is required")
	ErrInvalidProvider    = errors.New("LLM_PROVIDER must be 'gemini' or 'openai_compat'")
	ErrBadSecretsKey      = errors.New("SECRETS_KEY_B64 must decode to 32 bytes")
)

type Config struct {
	Server  ServerConfig
	DB      DBConfig
	LLM     LLMConfig
	Redis   RedisConfig
	HTTP    HTTPConfig
	Budget  BudgetConfig
	Secrets SecretsConfig
	Log     LogConfig
}

type ServerConfig struct {
	ListenAddr  string
	HealthPath  string
	MetricsPath string
	ReadTimeout time.Duration
}

type DBConfig struct {
	Driver      string
	DSN         string
	AutoMigrate bool
}

type LLMConfig struct {
	Provider string
	BaseURL  string
	Model    string
	// APIKey is the deploy-time default; a per-user override stored in
	// settings takes precedence at call time.
	APIKey string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type HTTPConfig struct {
	ClientTimeout time.Duration
	MaxRetries    int
	BackoffBase   time.Duration
}

type BudgetConfig struct {
	TurnsPerDay int64
}

type SecretsConfig struct {
	// Key encrypts the stored API-key override at rest. Optional: when
	// empty the override is stored as plain text.
	Key []byte
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			ListenAddr:  mustEnv("LISTEN_ADDR", "127.0.0.1:8799"),
			HealthPath:  mustEnv("HEALTH_PATH", "/healthz"),
			MetricsPath: mustEnv("METRICS_PATH", "/metrics"),
			ReadTimeout: mustDuration("HTTP_READ_TIMEOUT", 30*time.Second),
		},
		DB: DBConfig{
			Driver:      strings.ToLower(mustEnv("DB_DRIVER", "sqlite")),
			DSN:         mustEnv("DB_DSN", defaultDSN()),
			AutoMigrate: mustBool("AUTO_MIGRATE", true),
		},
		LLM: LLMConfig{
			Provider: strings.ToLower(mustEnv("LLM_PROVIDER", ProviderGemini)),
			BaseURL:  mustEnv("LLM_BASE_URL", "https://generativelanguage.googleapis.com"),
			Model:    mustEnv("LLM_MODEL", "gemini-2.0-flash"),
			APIKey:   mustEnv("LLM_API_KEY", ""),
		},
		Redis: RedisConfig{
			Addr:     mustEnv("REDIS_ADDR", ""),
			Password: mustEnv("REDIS_PASSWORD", ""),
			DB:       mustInt("REDIS_DB", 0),
		},
		HTTP: HTTPConfig{
			ClientTimeout: mustDuration("HTTP_TIMEOUT", 60*time.Second),
			MaxRetries:    mustInt("HTTP_MAX_RETRIES", 2),
			BackoffBase:   mustDuration("HTTP_BACKOFF_BASE", 400*time.Millisecond),
		},
		Budget: BudgetConfig{
			TurnsPerDay: int64(mustInt("TURN_BUDGET_PER_DAY", 0)),
		},
		Log: LogConfig{
			Level: strings.ToLower(mustEnv("LOG_LEVEL", "info")),
		},
	}

	if cfg.DB.DSN == "" {
		return nil, ErrMissingDatabaseDSN
	}
	if cfg.LLM.Provider != ProviderGemini && cfg.LLM.Provider != ProviderOpenAICompat {
		return nil, ErrInvalidProvider
	}

	if raw := mustEnv("SECRETS_KEY_B64", ""); raw != "" {
		key, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("decode SECRETS_KEY_B64: %w", err)
		}
		if len(key) != 32 {
			return nil, ErrBadSecretsKey
		}
		cfg.Secrets.Key = key
	}

	return cfg, nil
}

func defaultDSN() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "lifelog.db"
	}
	return home + "/.lifelog/lifelog.db"
}

func mustEnv(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func mustInt(key string, def int) int {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func mustBool(key string, def bool) bool {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func mustDuration(key string, def time.Duration) time.Duration {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
