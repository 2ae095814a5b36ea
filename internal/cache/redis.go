package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces every key written by this module.
const DefaultKeyPrefix = "linkforensics:"

// defaultDialTimeout bounds the connectivity check performed by NewRedis.
const defaultDialTimeout = 5 * time.Second

// Redis is a Cache backed by a Redis server.
type Redis struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

var _ Cache = (*Redis)(nil)

// RedisOption configures a Redis cache.
type RedisOption func(*redisConfig)

type redisConfig struct {
	password    string
	db          int
	prefix      string
	dialTimeout time.Duration
	logger      *slog.Logger
}

// WithPassword sets the AUTH password.
func WithPassword(password string) RedisOption {
	return func(c *redisConfig) {
		c.password = password
	}
}

// WithDB selects the logical database.
func WithDB(db int) RedisOption {
	return func(c *redisConfig) {
		c.db = db
	}
}

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(c *redisConfig) {
		c.prefix = prefix
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RedisOption {
	return func(c *redisConfig) {
		c.logger = logger
	}
}

// NewRedis connects to the Redis server at addr and verifies it with PING.
func NewRedis(ctx context.Context, addr string, opts ...RedisOption) (*Redis, error) {
	cfg := &redisConfig{
		prefix:      DefaultKeyPrefix,
		dialTimeout: defaultDialTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    cfg.password,
		DB:          cfg.db,
		DialTimeout: cfg.dialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.dialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close() //nolint:errcheck // connection already failed
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	cfg.logger.Debug("redis cache initialized", "addr", addr, "db", cfg.db)

	return &Redis{
		client: client,
		prefix: cfg.prefix,
		logger: cfg.logger,
	}, nil
}

// Get implements Cache.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		r.logger.Debug("redis get failed", "key", key, "error", err)
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return val, nil
}

// Set implements Cache.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		r.logger.Debug("redis set failed", "key", key, "ttl", ttl, "error", err)
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Close implements Cache.
func (r *Redis) Close() error {
	return r.client.Close()
}
