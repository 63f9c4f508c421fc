// Package redis guards against two engine instances trading the same
// account at once. One Redlock-held key marks the live instance; a second
// boot finds the key taken and exits.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/amyangfei/redlock-go/v3/redlock"
	redis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/avetrov/goldpilot/internal/adapters/config"
	"github.com/avetrov/goldpilot/pkg/logger"
)

// Client wraps the RedLock manager plus a plain connection for health checks
type Client struct {
	lockManager *redlock.RedLock
	conn        *redis.Client
}

// New creates new Redis client with RedLock support
func New(cfg *config.RedisConfig) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Single instance; a cluster deployment would list every node here
	redisAddrs := []string{"tcp://" + cfg.Addr}

	lockManager, err := redlock.NewRedLock(ctx, redisAddrs)
	if err != nil {
		return nil, fmt.Errorf("failed to create redlock manager: %w", err)
	}

	conn := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     5,
	})

	if err := conn.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("redis client initialized",
		zap.String("address", cfg.Addr),
		zap.Int("db", cfg.DB),
	)

	return &Client{
		lockManager: lockManager,
		conn:        conn,
	}, nil
}

// NewEngineLock creates the single-instance guard on this client
func (c *Client) NewEngineLock(ttl time.Duration) *EngineLock {
	return newEngineLock(c.lockManager, ttl)
}

// Health pings the server
func (c *Client) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.conn.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close closes redis connections
func (c *Client) Close() error {
	logger.Info("closing redis client")
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("failed to close redis connection: %w", err)
	}
	return nil
}
