// Package redis is a lookup.Cache shared between instances through Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/EcommerceGo/taxonomy/internal/domain"
)

const (
	keyPrefix = "taxonomy:lookup:"
	scanBatch = 200
)

// Cache stores query results as JSON under keyPrefix with a TTL.
type Cache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// New creates a Redis-backed cache. A zero ttl stores entries without expiry.
func New(client redis.UniversalClient, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Get returns the nodes cached under key.
func (c *Cache) Get(ctx context.Context, key string) ([]domain.CategoryNode, bool, error) {
	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get lookup %s: %w", key, err)
	}

	var nodes []domain.CategoryNode
	if err := json.Unmarshal(data, &nodes); err != nil {
		return nil, false, fmt.Errorf("unmarshal lookup %s: %w", key, err)
	}
	if nodes == nil {
		nodes = []domain.CategoryNode{}
	}
	return nodes, true, nil
}

// Set stores nodes under key.
func (c *Cache) Set(ctx context.Context, key string, nodes []domain.CategoryNode) error {
	if nodes == nil {
		nodes = []domain.CategoryNode{}
	}
	data, err := json.Marshal(nodes)
	if err != nil {
		return fmt.Errorf("marshal lookup %s: %w", key, err)
	}
	if err := c.client.Set(ctx, keyPrefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set lookup %s: %w", key, err)
	}
	return nil
}

// Purge deletes every key under keyPrefix.
func (c *Cache) Purge(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, keyPrefix+"*", scanBatch).Result()
		if err != nil {
			return fmt.Errorf("redis scan lookups: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del lookups: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
