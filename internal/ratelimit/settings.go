package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gaiya-app/gaiya-cloud/internal/logging"
	internalsettings "github.com/gaiya-app/gaiya-cloud/internal/settings"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// SettingsConfig selects and configures the limiter backend.
type SettingsConfig struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// RedisClientFactory constructs a Redis client for the given options.
type RedisClientFactory func(options *redis.Options) *redis.Client

// NewLimiter builds the configured backend. The Redis backend is pinged once
// at startup; an unreachable Redis is reported so the caller can decide
// whether to start anyway.
func NewLimiter(ctx context.Context, conn *gorm.DB, cfg SettingsConfig, newRedisClient RedisClientFactory) (Limiter, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", internalsettings.RateLimitBackendDB:
		return NewDBLimiter(conn), nil
	case internalsettings.RateLimitBackendRedis:
	default:
		return nil, fmt.Errorf("rate limit: unknown backend %q", cfg.Backend)
	}

	if newRedisClient == nil {
		newRedisClient = redis.NewClient
	}
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, fmt.Errorf("rate limit redis: missing address")
	}
	prefix := strings.TrimSpace(cfg.RedisPrefix)
	if prefix == "" {
		prefix = internalsettings.DefaultRateLimitRedisPrefix
	}
	redisDB := cfg.RedisDB
	if redisDB < 0 {
		redisDB = 0
	}
	client := newRedisClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       redisDB,
	})
	ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if errPing := client.Ping(ctxPing).Err(); errPing != nil {
		logging.Module("ratelimit").WithError(errPing).Warn("rate limit: redis ping failed, requests will fail open until it recovers")
	}
	return NewRedisLimiter(client, prefix), nil
}
