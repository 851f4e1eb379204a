package config

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

var (
	ErrMissingDatabaseDSN = errors.New("DB_DSN is required for sql storage")
	ErrMissingMasterKey   = errors.New("at least one master key is required")
	ErrMissingAPIKey      = errors.New("AI_API_KEY is required for the gemini provider")
)

type Config struct {
	HTTP    HTTPServerConfig
	Storage StorageConfig
	Redis   RedisConfig
	AI      AIConfig
	Client  HTTPClientConfig
	Guard   GuardConfig
	Drive   DriveConfig
	Crypto  CryptoConfig
	Log     LogConfig
}

type HTTPServerConfig struct {
	ListenAddr  string
	HealthPath  string
	MetricsPath string
}

type StorageConfig struct {
	Driver      string
	DSN         string
	AutoMigrate bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type AIConfig struct {
	Provider       string
	BaseURL        string
	APIKey         string
	Model          string
	ThinkingBudget int
}

type HTTPClientConfig struct {
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
}

type GuardConfig struct {
	PerHour     int64
	InFlightTTL time.Duration
}

type DriveConfig struct {
	AccessToken string
	BaseURL     string
	UploadURL   string
}

// CryptoConfig is empty when no master key is configured; snapshots are then
// stored unsealed.
type CryptoConfig struct {
	CurrentKeyID string
	Keys         map[string][]byte
}

func (c CryptoConfig) Enabled() bool {
	return len(c.Keys) > 0
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		HTTP: HTTPServerConfig{
			ListenAddr:  mustEnv("HTTP_LISTEN_ADDR", ":8080"),
			HealthPath:  mustEnv("HEALTH_PATH", "/healthz"),
			MetricsPath: mustEnv("METRICS_PATH", "/metrics"),
		},
		Storage: StorageConfig{
			Driver:      strings.ToLower(mustEnv("STORAGE_DRIVER", StorageMemory)),
			DSN:         mustEnv("DB_DSN", ""),
			AutoMigrate: mustBool("AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:     mustEnv("REDIS_ADDR", ""),
			Password: mustEnv("REDIS_PASSWORD", ""),
			DB:       mustInt("REDIS_DB", 0),
			Prefix:   mustEnv("REDIS_PREFIX", "formgenie:"),
		},
		AI: AIConfig{
			Provider:       strings.ToLower(mustEnv("AI_PROVIDER", "gemini")),
			BaseURL:        mustEnv("AI_BASE_URL", ""),
			APIKey:         mustEnv("AI_API_KEY", mustEnv("API_KEY", "")),
			Model:          mustEnv("AI_MODEL", "gemini-3-pro-preview"),
			ThinkingBudget: mustInt("AI_THINKING_BUDGET", 32768),
		},
		Client: HTTPClientConfig{
			Timeout:     mustDuration("HTTP_TIMEOUT", 120*time.Second),
			MaxRetries:  mustInt("HTTP_MAX_RETRIES", 2),
			BackoffBase: mustDuration("HTTP_BACKOFF_BASE", 400*time.Millisecond),
		},
		Guard: GuardConfig{
			PerHour:     mustInt64("RATE_LIMIT_PER_HOUR", 0),
			InFlightTTL: mustDuration("INFLIGHT_TTL", 5*time.Minute),
		},
		Drive: DriveConfig{
			AccessToken: mustEnv("DRIVE_ACCESS_TOKEN", ""),
			BaseURL:     mustEnv("DRIVE_BASE_URL", ""),
			UploadURL:   mustEnv("DRIVE_UPLOAD_URL", ""),
		},
		Log: LogConfig{
			Level: strings.ToLower(mustEnv("LOG_LEVEL", "info")),
		},
	}

	switch cfg.Storage.Driver {
	case StorageMemory, StorageRedis:
	case StorageSQLite, StoragePostgres:
		if cfg.Storage.DSN == "" {
			return nil, ErrMissingDatabaseDSN
		}
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.Storage.Driver)
	}
	if cfg.Storage.Driver == StorageRedis && cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "127.0.0.1:6379"
	}
	if (cfg.AI.Provider == "gemini" || cfg.AI.Provider == "") && cfg.AI.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	cc, err := loadCryptoConfig()
	switch {
	case errors.Is(err, ErrMissingMasterKey):
	case err != nil:
		return nil, err
	default:
		cfg.Crypto = cc
	}

	return cfg, nil
}

func loadCryptoConfig() (CryptoConfig, error) {
	keysB64 := map[string]string{}

	if raw := mustEnv("MASTER_KEYS_JSON", ""); raw != "" {
		var parsed map[string]string
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return CryptoConfig{}, fmt.Errorf("parse MASTER_KEYS_JSON: %w", err)
		}
		for id, val := range parsed {
			if strings.TrimSpace(id) == "" || strings.TrimSpace(val) == "" {
				continue
			}
			keysB64[id] = val
		}
	}

	for _, e := range os.Environ() {
		parts := strings.SplitN(e, "=", 2)
		if len(parts) != 2 {
			continue
		}
		k, v := parts[0], parts[1]
		if !strings.HasPrefix(k, "MASTER_KEY_") || !strings.HasSuffix(k, "_B64") {
			continue
		}
		if k == "MASTER_KEY_B64" {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(k, "MASTER_KEY_"), "_B64")
		if id == "" || v == "" {
			continue
		}
		keysB64[id] = v
	}

	current := mustEnv("MASTER_KEY_CURRENT_ID", "")
	if singleton := mustEnv("MASTER_KEY_B64", ""); singleton != "" {
		if current == "" {
			current = "default"
		}
		keysB64[current] = singleton
	}

	if len(keysB64) == 0 {
		return CryptoConfig{}, ErrMissingMasterKey
	}

	keys := make(map[string][]byte, len(keysB64))
	for id, b64 := range keysB64 {
		raw, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return CryptoConfig{}, fmt.Errorf("decode master key %q: %w", id, err)
		}
		if len(raw) != 32 {
			return CryptoConfig{}, fmt.Errorf("master key %q must be 32 bytes after base64 decode", id)
		}
		keys[id] = raw
	}

	if current == "" {
		for id := range keys {
			current = id
			break
		}
	}
	if _, ok := keys[current]; !ok {
		return CryptoConfig{}, fmt.Errorf("MASTER_KEY_CURRENT_ID=%q does not exist in provided keys", current)
	}

	return CryptoConfig{
		CurrentKeyID: current,
		Keys:         keys,
	}, nil
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

func mustInt64(key string, def int64) int64 {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
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
