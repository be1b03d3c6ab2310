package scanner

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/guardflow/internal/cache"
)

func testVerdict(allowed bool) *Verdict {
	v := NewVerdict("some text")
	v.Allowed = allowed
	v.Results["toxicity"] = ScannerResult{Passed: allowed, RiskScore: 0.2}
	return v
}

func newRedisCache(t *testing.T) (*miniredis.Miniredis, *VerdictCache) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	mgr, err := cache.NewManager(cache.Config{Addr: mr.Addr(), DefaultTTL: time.Minute}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })

	return mr, NewVerdictCache(mgr, cache.NewLRU(64, time.Minute), time.Minute, zap.NewNop())
}

func TestCacheKey_ContentAddressed(t *testing.T) {
	k1 := CacheKey(KindInput, "hello")
	k2 := CacheKey(KindInput, "hello")
	k3 := CacheKey(KindOutput, "hello")
	k4 := CacheKey(KindInput, "world")

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.NotEqual(t, k1, k4)
	assert.True(t, strings.HasPrefix(k1, "guardflow:scan:input:"))
	// sha-256 十六进制共 64 字符
	assert.Len(t, k1[len("guardflow:scan:input:"):], 64)
}

func TestVerdictCache_RoundTrip(t *testing.T) {
	_, vc := newRedisCache(t)
	ctx := context.Background()

	want := testVerdict(false)
	vc.Put(ctx, KindInput, "prompt", want)

	got, ok := vc.Get(ctx, KindInput, "prompt")
	require.True(t, ok)
	assert.Equal(t, want.Allowed, got.Allowed)
	assert.Equal(t, want.Results["toxicity"].RiskScore, got.Results["toxicity"].RiskScore)
}

func TestVerdictCache_MissOnUnknownText(t *testing.T) {
	_, vc := newRedisCache(t)

	_, ok := vc.Get(context.Background(), KindInput, "never seen")
	assert.False(t, ok)
}

func TestVerdictCache_FallsBackToLocalOnRedisFailure(t *testing.T) {
	mr, vc := newRedisCache(t)
	ctx := context.Background()

	want := testVerdict(true)
	vc.Put(ctx, KindOutput, "text", want)

	// Redis 宕机后本地层仍可命中
	mr.Close()
	got, ok := vc.Get(ctx, KindOutput, "text")
	require.True(t, ok)
	assert.Equal(t, want.Allowed, got.Allowed)
}

func TestVerdictCache_LocalOnly(t *testing.T) {
	vc := NewVerdictCache(nil, cache.NewLRU(8, time.Minute), time.Minute, zap.NewNop())
	ctx := context.Background()

	vc.Put(ctx, KindInput, "p", testVerdict(true))
	got, ok := vc.Get(ctx, KindInput, "p")
	require.True(t, ok)
	assert.True(t, got.Allowed)

	// 无分布式层时单飞直接走自行计算
	_, ok = vc.Deduplicate(ctx, KindInput, "p", time.Second)
	assert.False(t, ok)
}

func TestVerdictCache_CorruptValueIsMiss(t *testing.T) {
	mr, vc := newRedisCache(t)
	ctx := context.Background()

	require.NoError(t, mr.Set(CacheKey(KindInput, "bad"), "{not json"))
	_, ok := vc.Get(ctx, KindInput, "bad")
	assert.False(t, ok)
}

func TestVerdictCache_Deduplicate(t *testing.T) {
	_, vc := newRedisCache(t)
	ctx := context.Background()

	// 第一个调用者取锁，自行计算
	_, ok := vc.Deduplicate(ctx, KindInput, "shared", time.Second)
	require.False(t, ok)

	go func() {
		time.Sleep(50 * time.Millisecond)
		vc.Put(ctx, KindInput, "shared", testVerdict(true))
		vc.Release(ctx, KindInput, "shared")
	}()

	// 第二个调用者等到写回的裁定
	got, ok := vc.Deduplicate(ctx, KindInput, "shared", 2*time.Second)
	require.True(t, ok)
	assert.True(t, got.Allowed)
}

func TestVerdictCache_NilSafe(t *testing.T) {
	var vc *VerdictCache
	ctx := context.Background()

	_, ok := vc.Get(ctx, KindInput, "x")
	assert.False(t, ok)
	vc.Put(ctx, KindInput, "x", testVerdict(true))
	_, ok = vc.Deduplicate(ctx, KindInput, "x", time.Second)
	assert.False(t, ok)
}
