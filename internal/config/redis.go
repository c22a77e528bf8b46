package config

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig locates the Redis server shared by the auth rate limiter, the
// table catalogue cache and the refresh-token denylist.
type RedisConfig struct {
	Addr             string
	Password         string
	DB               int
	TLS              bool
	DialTimeout      time.Duration
	PingTimeout      time.Duration
	RevocationPrefix string
}

// LoadRedisConfig reads REDIS_* variables.  REDIS_HOST plus REDIS_PORT win
// over the REDIS_ADDR shorthand.
func LoadRedisConfig() RedisConfig {
	addr := envStr("REDIS_ADDR", "localhost:6379")
	if host, port := envStr("REDIS_HOST", ""), envStr("REDIS_PORT", ""); host != "" && port != "" {
		addr = host + ":" + port
	}
	return RedisConfig{
		Addr:             addr,
		Password:         envStr("REDIS_PASSWORD", ""),
		DB:               envInt("REDIS_DB", 0),
		TLS:              envBool("REDIS_TLS", false),
		DialTimeout:      envDur("REDIS_DIAL_TIMEOUT", 2*time.Second),
		PingTimeout:      envDur("REDIS_PING_TIMEOUT", 2*time.Second),
		RevocationPrefix: envStr("REDIS_REVOCATION_PREFIX", "revoked"),
	}
}

// NewRedisClient connects and pings.  On failure the client is closed and
// the error returned; callers run without Redis (in-process rate limiting,
// no response cache, logout answers 503).
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}
