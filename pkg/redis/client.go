package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/canopy-network/backlog-autoscaler/pkg/backlog"
)

// DefaultScanCount is the SCAN COUNT hint per round trip.
const DefaultScanCount = 100

// Options configures the connection.
type Options struct {
	Host      string
	Port      string
	Password  string
	DB        int
	ScanCount int64
}

// Client wraps the Redis client used as the queue store.
type Client struct {
	client    redis.UniversalClient
	logger    *zap.Logger
	scanCount int64
}

var _ backlog.Store = (*Client)(nil)

// NewClient connects to Redis and verifies the connection with PING.
func NewClient(ctx context.Context, opts Options, logger *zap.Logger) (*Client, error) {
	addr := fmt.Sprintf("%s:%s", opts.Host, opts.Port)

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: opts.Password,
		DB:       opts.DB,

		// Connection pool
		PoolSize:     4,
		MinIdleConns: 1,

		// Timeouts
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	logger.Info("Connected to Redis",
		zap.String("addr", addr),
		zap.Int("db", opts.DB))

	return NewFromClient(rdb, opts.ScanCount, logger), nil
}

// NewFromClient wraps an existing go-redis client.
func NewFromClient(rdb redis.UniversalClient, scanCount int64, logger *zap.Logger) *Client {
	if scanCount <= 0 {
		scanCount = DefaultScanCount
	}
	return &Client{
		client:    rdb,
		logger:    logger.With(zap.String("component", "redis")),
		scanCount: scanCount,
	}
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// Health checks if Redis is healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// ScanKeys resolves a glob pattern to keys with SCAN. A pattern without glob
// metacharacters is returned as-is, so literal queue names cost no keyspace walk.
func (c *Client) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	if !hasGlobMeta(pattern) {
		return []string{pattern}, nil
	}

	var keys []string
	iter := c.client.Scan(ctx, 0, pattern, c.scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %q: %w", pattern, err)
	}
	c.logger.Debug("pattern resolved", zap.String("pattern", pattern), zap.Int("keys", len(keys)))
	return keys, nil
}

// ListLen returns LLEN of key. A missing key has length 0; a non-list key errors (WRONGTYPE).
func (c *Client) ListLen(ctx context.Context, key string) (int64, error) {
	return c.client.LLen(ctx, key).Result()
}

func hasGlobMeta(pattern string) bool {
	return strings.ContainsAny(pattern, `*?[\`)
}
