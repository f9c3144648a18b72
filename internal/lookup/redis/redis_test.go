package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/EcommerceGo/taxonomy/internal/domain"
	"github.com/utafrali/EcommerceGo/taxonomy/internal/lookup"
)

var _ lookup.Cache = (*Cache)(nil)

func setupTestRedis(t *testing.T, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, ttl), mr
}

func TestSetGet(t *testing.T) {
	c, mr := setupTestRedis(t, time.Minute)
	ctx := context.Background()
	parent := "hs"

	nodes := []domain.CategoryNode{{ID: "pl", Name: "Plumbing", Slug: "plumbing", Type: domain.TypeSub, ParentID: &parent}}
	require.NoError(t, c.Set(ctx, lookup.SlugKey("plumbing"), nodes))

	assert.True(t, mr.Exists("taxonomy:lookup:slug:plumbing"))
	assert.Equal(t, time.Minute, mr.TTL("taxonomy:lookup:slug:plumbing"))

	got, ok, err := c.Get(ctx, lookup.SlugKey("plumbing"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, domain.TypeSub, got[0].Type)
	assert.Equal(t, "hs", got[0].Parent())
}

func TestGet_Miss(t *testing.T) {
	c, _ := setupTestRedis(t, time.Minute)
	got, ok, err := c.Get(context.Background(), lookup.SearchKey("nothing"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestEmptyResultIsCached(t *testing.T) {
	c, _ := setupTestRedis(t, 0)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, lookup.TypeKey(domain.TypeElement), nil))

	got, ok, err := c.Get(ctx, lookup.TypeKey(domain.TypeElement))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestExpiry(t *testing.T) {
	c, mr := setupTestRedis(t, time.Minute)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, lookup.LevelKey(1), []domain.CategoryNode{{ID: "hs", Type: domain.TypeMain}}))

	mr.FastForward(61 * time.Second)
	_, ok, err := c.Get(ctx, lookup.LevelKey(1))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGet_CorruptValue(t *testing.T) {
	c, mr := setupTestRedis(t, time.Minute)
	require.NoError(t, mr.Set("taxonomy:lookup:search:x", "{not json"))

	_, _, err := c.Get(context.Background(), lookup.SearchKey("x"))
	assert.Error(t, err)
}

func TestPurge_OnlyOwnKeys(t *testing.T) {
	c, mr := setupTestRedis(t, time.Minute)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		require.NoError(t, c.Set(ctx, lookup.LevelKey(i), []domain.CategoryNode{}))
	}
	require.NoError(t, mr.Set("cart:user-1", "{}"))

	require.NoError(t, c.Purge(ctx))
	assert.False(t, mr.Exists("taxonomy:lookup:level:1"))
	assert.False(t, mr.Exists("taxonomy:lookup:level:3"))
	assert.True(t, mr.Exists("cart:user-1"))
}

func TestGet_ServerDown(t *testing.T) {
	c, mr := setupTestRedis(t, time.Minute)
	mr.Close()

	_, _, err := c.Get(context.Background(), lookup.SlugKey("x"))
	assert.Error(t, err)
}
