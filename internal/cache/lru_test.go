package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRU_SetGet(t *testing.T) {
	c := NewLRU(4, time.Minute)

	c.Set("a", "1")
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU(2, time.Minute)

	c.Set("a", "1")
	c.Set("b", "2")

	// 触碰 a，使 b 成为最久未使用
	_, _ = c.Get("a")
	c.Set("c", "3")

	_, ok := c.Get("b")
	assert.False(t, ok, "b should have been evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestLRU_ExpiryCountsAsMiss(t *testing.T) {
	c := NewLRU(4, 30*time.Millisecond)

	c.Set("a", "1")
	time.Sleep(50 * time.Millisecond)

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "expired entry removed on get")

	hits, misses := c.HitStats()
	assert.Equal(t, int64(0), hits)
	assert.Equal(t, int64(1), misses)
}

func TestLRU_UpdateRefreshesTTLAndPosition(t *testing.T) {
	c := NewLRU(2, time.Minute)

	c.Set("a", "1")
	c.Set("b", "2")
	c.Set("a", "updated")
	c.Set("c", "3")

	// a 被更新后应存活，b 被淘汰
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "updated", v)
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestLRU_DeleteAndClear(t *testing.T) {
	c := NewLRU(4, time.Minute)

	c.Set("a", "1")
	c.Set("b", "2")
	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Clear()
	assert.Equal(t, 0, c.Len())
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestLRU_BoundedUnderChurn(t *testing.T) {
	const capacity = 8
	c := NewLRU(capacity, time.Minute)

	for i := 0; i < 100; i++ {
		c.Set(fmt.Sprintf("k%d", i), "v")
		assert.LessOrEqual(t, c.Len(), capacity)
	}
}
