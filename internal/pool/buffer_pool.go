package pool

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// maxRetainedBuffer 超过该容量的缓冲不回收，避免个别长响应把池撑大
const maxRetainedBuffer = 64 * 1024

// BufferPool pools serialization buffers for the streaming hot path.
// Every proxied frame is marshalled once; reuse keeps per-frame
// allocations off the steady state.
type BufferPool struct {
	pool sync.Pool

	// Metrics
	gets atomic.Int64
	puts atomic.Int64
	news atomic.Int64
}

// NewBufferPool creates a pool whose buffers start at initialCap bytes.
func NewBufferPool(initialCap int) *BufferPool {
	p := &BufferPool{}
	p.pool.New = func() any {
		p.news.Add(1)
		return bytes.NewBuffer(make([]byte, 0, initialCap))
	}
	return p
}

// Get retrieves an empty buffer from the pool.
func (p *BufferPool) Get() *bytes.Buffer {
	p.gets.Add(1)
	return p.pool.Get().(*bytes.Buffer)
}

// Put returns a buffer to the pool. Oversized buffers are dropped.
func (p *BufferPool) Put(b *bytes.Buffer) {
	if b == nil || b.Cap() > maxRetainedBuffer {
		return
	}
	p.puts.Add(1)
	b.Reset()
	p.pool.Put(b)
}

// Stats returns pool counters.
func (p *BufferPool) Stats() BufferPoolStats {
	return BufferPoolStats{
		Gets: p.gets.Load(),
		Puts: p.puts.Load(),
		News: p.news.Load(),
	}
}

// BufferPoolStats contains buffer pool counters.
type BufferPoolStats struct {
	Gets int64 `json:"gets"`
	Puts int64 `json:"puts"`
	News int64 `json:"news"`
}

// HitRate returns the fraction of Gets served without allocation.
func (s BufferPoolStats) HitRate() float64 {
	if s.Gets == 0 {
		return 0
	}
	return float64(s.Gets-s.News) / float64(s.Gets)
}
