package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	PlanID string `json:"plan_id"`
	Role   string `json:"role"`
}

func setupTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewClient(client), mr
}

func TestSetAndGet(t *testing.T) {
	c, mr := setupTestCache(t)
	ctx := context.Background()

	want := entry{PlanID: "manager_pro", Role: "manager_pro"}
	require.NoError(t, c.Set(ctx, "plan:price_1", want, time.Minute))

	var got entry
	found, err := c.Get(ctx, "plan:price_1", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, want, got)

	mr.FastForward(2 * time.Minute)
	found, err = c.Get(ctx, "plan:price_1", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGet_Miss(t *testing.T) {
	c, _ := setupTestCache(t)
	var got entry
	found, err := c.Get(context.Background(), "nope", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGet_Corrupt(t *testing.T) {
	c, mr := setupTestCache(t)
	require.NoError(t, mr.Set("plan:bad", "{not json"))
	var got entry
	_, err := c.Get(context.Background(), "plan:bad", &got)
	assert.Error(t, err)
}

func TestDeletePrefix(t *testing.T) {
	c, mr := setupTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "plan:a", entry{}, 0))
	require.NoError(t, c.Set(ctx, "plan:b", entry{}, 0))
	require.NoError(t, c.Set(ctx, "other", entry{}, 0))

	require.NoError(t, c.DeletePrefix(ctx, "plan:"))
	assert.False(t, mr.Exists("plan:a"))
	assert.False(t, mr.Exists("plan:b"))
	assert.True(t, mr.Exists("other"))

	require.NoError(t, c.DeletePrefix(ctx, "plan:"))
}

func TestNilCache(t *testing.T) {
	var c *Cache
	ctx := context.Background()
	found, err := c.Get(ctx, "k", &entry{})
	assert.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, c.Set(ctx, "k", entry{}, time.Second))
	assert.NoError(t, c.DeletePrefix(ctx, "k"))
}
