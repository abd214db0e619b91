package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrCacheMiss is returned when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

const productListKey = "catalog:products"

// Client is a thin cache layer over Redis for the product catalog.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a Redis client and verifies the connection.
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// GetProductList loads the cached catalog listing into out.
func (c *Client) GetProductList(ctx context.Context, out interface{}) error {
	data, err := c.rdb.Get(ctx, productListKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return fmt.Errorf("failed to read product cache: %w", err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode product cache: %w", err)
	}
	return nil
}

// SetProductList caches the catalog listing with a TTL.
func (c *Client) SetProductList(ctx context.Context, products interface{}, ttl time.Duration) error {
	data, err := json.Marshal(products)
	if err != nil {
		return fmt.Errorf("failed to encode product cache: %w", err)
	}
	return c.rdb.Set(ctx, productListKey, data, ttl).Err()
}

// InvalidateProducts drops the cached catalog listing. Called after a
// finalization commits so stock counts never go stale past the TTL.
func (c *Client) InvalidateProducts(ctx context.Context) error {
	return c.rdb.Del(ctx, productListKey).Err()
}
