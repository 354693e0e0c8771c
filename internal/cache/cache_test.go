package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scriptd/internal/logging"
)

func setupTestCache(t *testing.T) *Cache {
	t.Helper()

	mr := miniredis.RunT(t)
	c, err := New(context.Background(), "redis://"+mr.Addr(), logging.NewDiscardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c
}

func TestGetSetRoundTrip(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()

	_, hit := c.Get(ctx, ScriptKey("abc"))
	assert.False(t, hit)

	c.Set(ctx, ScriptKey("abc"), []byte(`{"id":"abc"}`), time.Minute)

	value, hit := c.Get(ctx, ScriptKey("abc"))
	assert.True(t, hit)
	assert.Equal(t, []byte(`{"id":"abc"}`), value)
}

func TestDelete(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()

	c.Set(ctx, ScriptKey("abc"), []byte("x"), time.Minute)
	c.Delete(ctx, ScriptKey("abc"))

	_, hit := c.Get(ctx, ScriptKey("abc"))
	assert.False(t, hit)
}

func TestDeleteByPrefix(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()

	c.Set(ctx, ListKey(map[string]string{"tag": "backup"}), []byte("a"), time.Minute)
	c.Set(ctx, ListKey(map[string]string{"search": "disk"}), []byte("b"), time.Minute)
	c.Set(ctx, ScriptKey("abc"), []byte("c"), time.Minute)

	c.DeleteByPrefix(ctx, ListKeyPrefix())

	_, hit := c.Get(ctx, ListKey(map[string]string{"tag": "backup"}))
	assert.False(t, hit)
	_, hit = c.Get(ctx, ListKey(map[string]string{"search": "disk"}))
	assert.False(t, hit)

	// Script entries are untouched by list invalidation
	_, hit = c.Get(ctx, ScriptKey("abc"))
	assert.True(t, hit)
}

func TestDisabledCache(t *testing.T) {
	c := Disabled(logging.NewDiscardLogger())
	ctx := context.Background()

	assert.False(t, c.Enabled())

	c.Set(ctx, "k", []byte("v"), time.Minute)
	_, hit := c.Get(ctx, "k")
	assert.False(t, hit)

	// No-ops must not panic
	c.Delete(ctx, "k")
	c.DeleteByPrefix(ctx, "scripts:list:")
	assert.NoError(t, c.Close())
}

func TestListKeyNormalization(t *testing.T) {
	a := ListKey(map[string]string{"tag": "backup", "search": "disk"})
	b := ListKey(map[string]string{"search": "disk", "tag": "backup"})
	assert.Equal(t, a, b)

	// Empty values are dropped
	assert.Equal(t, ListKey(nil), ListKey(map[string]string{"tag": ""}))
	assert.Equal(t, "scripts:list:all", ListKey(nil))
}
