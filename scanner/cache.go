package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/guardflow/internal/cache"
)

// 缓存键命名空间。键形如 guardflow:scan:<kind>:<hex-sha256-of-text>
const cacheNamespace = "guardflow:scan"

// CacheKey 计算裁定缓存键。内容寻址：同类别同文本必得同键。
func CacheKey(kind Kind, text string) string {
	sum := sha256.Sum256([]byte(text))
	return cacheNamespace + ":" + string(kind) + ":" + hex.EncodeToString(sum[:])
}

// VerdictCache 扫描裁定的两级缓存。
//
// distributed 层（Redis）为主，local 层（LRU）为备；
// 分布式层连接或操作失败时降级到本地层。任一层为 nil 即跳过。
// 缓存故障永不致命，一律按未命中处理。
type VerdictCache struct {
	redis  *cache.Manager
	local  *cache.LRU
	ttl    time.Duration
	logger *zap.Logger
}

// NewVerdictCache 组装裁定缓存。redis 与 local 均可为 nil。
func NewVerdictCache(redis *cache.Manager, local *cache.LRU, ttl time.Duration, logger *zap.Logger) *VerdictCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VerdictCache{
		redis:  redis,
		local:  local,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "verdict_cache")),
	}
}

// Get 查询裁定。返回值损坏或过期按未命中处理。
func (c *VerdictCache) Get(ctx context.Context, kind Kind, text string) (*Verdict, bool) {
	if c == nil {
		return nil, false
	}
	key := CacheKey(kind, text)

	if c.redis != nil {
		if raw, err := c.redis.Get(ctx, key); err == nil {
			if v := decodeVerdict(raw); v != nil {
				// 回填本地层
				if c.local != nil {
					c.local.Set(key, raw)
				}
				return v, true
			}
		} else if !cache.IsCacheMiss(err) {
			c.logger.Debug("分布式缓存读取失败，降级本地层", zap.Error(err))
		}
	}

	if c.local != nil {
		if raw, ok := c.local.Get(key); ok {
			if v := decodeVerdict(raw); v != nil {
				return v, true
			}
		}
	}

	return nil, false
}

// Put 写入裁定。写入失败仅记录日志。
func (c *VerdictCache) Put(ctx context.Context, kind Kind, text string, v *Verdict) {
	if c == nil || v == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	key := CacheKey(kind, text)

	if c.local != nil {
		c.local.Set(key, string(raw))
	}
	if c.redis != nil {
		if err := c.redis.Set(ctx, key, string(raw), c.ttl); err != nil {
			c.logger.Debug("分布式缓存写入失败", zap.Error(err))
		}
	}
}

// Deduplicate 单飞去重：同一文本的扫描计算跨进程至多并发一次。
//
// 返回 (裁定, true) 表示等到了他人的计算结果；
// 返回 (nil, false) 表示调用方应自行扫描，完成后调用 Release。
// 无分布式层时直接走自行计算路径（进程内重复扫描可接受）。
func (c *VerdictCache) Deduplicate(ctx context.Context, kind Kind, text string, waitTimeout time.Duration) (*Verdict, bool) {
	if c == nil || c.redis == nil {
		return nil, false
	}
	raw, ok := c.redis.Deduplicate(ctx, CacheKey(kind, text), waitTimeout)
	if !ok {
		return nil, false
	}
	if v := decodeVerdict(raw); v != nil {
		return v, true
	}
	return nil, false
}

// Release 释放单飞锁。与 Deduplicate 的自行计算路径成对出现。
func (c *VerdictCache) Release(ctx context.Context, kind Kind, text string) {
	if c == nil || c.redis == nil {
		return
	}
	c.redis.ReleaseLock(ctx, CacheKey(kind, text))
}

// decodeVerdict 反序列化裁定，损坏值返回 nil
func decodeVerdict(raw string) *Verdict {
	var v Verdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil
	}
	if v.Results == nil {
		v.Results = make(map[string]ScannerResult)
	}
	return &v
}
