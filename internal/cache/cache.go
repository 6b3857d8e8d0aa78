// Package cache keeps the item catalog in Redis. Items never change while the
// server runs, so entries only expire by TTL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/erazemk/ecoleta/internal/model"
)

// DefaultTTL is used when no TTL is configured.
const DefaultTTL = 10 * time.Minute

const itemsKey = "ecoleta:items:v1"

// Open connects to Redis at url. An empty url returns nil (cache disabled).
func Open(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, eris.Wrap(err, "cache: parse redis url")
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, eris.Wrap(err, "cache: redis ping")
	}
	return client, nil
}

// ItemCache stores the item list as a single JSON value.
type ItemCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewItemCache returns a cache backed by client.
func NewItemCache(client redis.Cmdable, ttl time.Duration) *ItemCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ItemCache{client: client, ttl: ttl}
}

// GetItems returns the cached items. ok is false on a miss.
func (c *ItemCache) GetItems(ctx context.Context) (items []model.Item, ok bool, err error) {
	data, err := c.client.Get(ctx, itemsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "cache: get items")
	}

	if err := json.Unmarshal(data, &items); err != nil {
		return nil, false, eris.Wrap(err, "cache: decode items")
	}
	return items, true, nil
}

// SetItems replaces the cached items.
func (c *ItemCache) SetItems(ctx context.Context, items []model.Item) error {
	data, err := json.Marshal(items)
	if err != nil {
		return eris.Wrap(err, "cache: encode items")
	}
	return eris.Wrap(c.client.Set(ctx, itemsKey, data, c.ttl).Err(), "cache: set items")
}

// Invalidate drops the cached items, used after reseeding.
func (c *ItemCache) Invalidate(ctx context.Context) error {
	return eris.Wrap(c.client.Del(ctx, itemsKey).Err(), "cache: invalidate items")
}
