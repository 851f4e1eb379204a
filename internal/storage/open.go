package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Driver      string
	DSN         string
	AutoMigrate bool
	Redis       *redis.Client
	RedisPrefix string
}

// Open picks the backend named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	switch d := strings.ToLower(strings.TrimSpace(cfg.Driver)); d {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverRedis:
		if cfg.Redis == nil {
			return nil, fmt.Errorf("redis driver requires a client")
		}
		return NewRedis(cfg.Redis, cfg.RedisPrefix), nil
	default:
		switch normalizeDriver(d) {
		case DriverSQLite, DriverPostgres:
			return OpenSQL(ctx, d, cfg.DSN, cfg.AutoMigrate)
		}
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}
