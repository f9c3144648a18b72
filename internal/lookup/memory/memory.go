// Package memory is an in-process lookup.Cache with per-entry expiry.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/utafrali/EcommerceGo/taxonomy/internal/domain"
)

type entry struct {
	nodes   []domain.CategoryNode
	expires time.Time
}

// Cache keeps entries for a fixed TTL. A zero TTL keeps them until Purge.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

// New returns an empty cache.
func New(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns a copy of the nodes cached under key.
func (c *Cache) Get(_ context.Context, key string) ([]domain.CategoryNode, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return cloneAll(e.nodes), true, nil
}

// Set stores a copy of nodes under key.
func (c *Cache) Set(_ context.Context, key string, nodes []domain.CategoryNode) error {
	e := entry{nodes: cloneAll(nodes)}
	if c.ttl > 0 {
		e.expires = c.now().Add(c.ttl)
	}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
	return nil
}

// Purge drops every entry.
func (c *Cache) Purge(context.Context) error {
	c.mu.Lock()
	clear(c.entries)
	c.mu.Unlock()
	return nil
}

// Len reports the number of entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func cloneAll(nodes []domain.CategoryNode) []domain.CategoryNode {
	out := make([]domain.CategoryNode, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}
