package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/forge/internal/common"
)

func TestCache_SetGet(t *testing.T) {
	c, err := New[string](common.CacheConfig{NumCounters: 100, MaxCostMB: 1, BufferItems: 8})
	require.NoError(t, err)
	defer c.Close()

	c.SetTTL("k", "v", time.Minute)

	got, ok := c.Get("k")
	assert.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestCache_Miss(t *testing.T) {
	c, err := New[string](common.CacheConfig{})
	require.NoError(t, err)
	defer c.Close()

	_, ok := c.Get("missing")
	assert.False(t, ok)
}

func TestCache_Del(t *testing.T) {
	c, err := New[int](common.CacheConfig{})
	require.NoError(t, err)
	defer c.Close()

	c.SetTTL("n", 7, time.Minute)
	_, ok := c.Get("n")
	require.True(t, ok)

	c.Del("n")
	c.ristretto.Wait()

	_, ok = c.Get("n")
	assert.False(t, ok)
}
