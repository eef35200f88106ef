// Package marketdata provides price history and price discovery on top of the brokerage data API.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/capitol/internal/domain"
	"github.com/go-redis/redis/v8"
	"github.com/vmihailenco/msgpack/v5"
)

// BarCache stores OHLCV series keyed by symbol and date range
type BarCache interface {
	Get(ctx context.Context, key string) ([]domain.BrokerOHLCV, bool, error)
	Set(ctx context.Context, key string, bars []domain.BrokerOHLCV, ttl time.Duration) error
}

// RedisBarCache is a BarCache backed by redis with msgpack-encoded values
type RedisBarCache struct {
	client *redis.Client
}

// NewRedisBarCache connects to redis and verifies the connection
func NewRedisBarCache(addr string) (*RedisBarCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     5,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisBarCache{client: rdb}, nil
}

// NewRedisBarCacheWithClient wraps an existing client
func NewRedisBarCacheWithClient(client *redis.Client) *RedisBarCache {
	return &RedisBarCache{client: client}
}

// Get returns cached bars. A miss is (nil, false, nil).
func (c *RedisBarCache) Get(ctx context.Context, key string) ([]domain.BrokerOHLCV, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var bars []domain.BrokerOHLCV
	if err := msgpack.Unmarshal(raw, &bars); err != nil {
		return nil, false, fmt.Errorf("decode bars: %w", err)
	}
	return bars, true, nil
}

// Set stores bars with a TTL
func (c *RedisBarCache) Set(ctx context.Context, key string, bars []domain.BrokerOHLCV, ttl time.Duration) error {
	raw, err := msgpack.Marshal(bars)
	if err != nil {
		return fmt.Errorf("encode bars: %w", err)
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close closes the redis connection
func (c *RedisBarCache) Close() error {
	return c.client.Close()
}

// barsKey builds the cache key for a symbol/date range
func barsKey(symbol string, timeframe domain.Timeframe, start, end time.Time) string {
	return fmt.Sprintf("capitol:bars:%s:%s:%s:%s",
		timeframe, symbol, start.UTC().Format("20060102"), end.UTC().Format("20060102"))
}
