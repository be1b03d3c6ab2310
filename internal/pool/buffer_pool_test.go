package pool

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferPool_ReusesBuffers(t *testing.T) {
	p := NewBufferPool(128)

	b := p.Get()
	b.WriteString("frame")
	p.Put(b)

	b2 := p.Get()
	assert.Zero(t, b2.Len(), "pooled buffer must come back empty")
	assert.GreaterOrEqual(t, b2.Cap(), 128)

	stats := p.Stats()
	assert.Equal(t, int64(2), stats.Gets)
	assert.Equal(t, int64(1), stats.Puts)
}

func TestBufferPool_DropsOversizedBuffers(t *testing.T) {
	p := NewBufferPool(64)

	b := p.Get()
	b.WriteString(strings.Repeat("x", maxRetainedBuffer+1))
	p.Put(b)

	assert.Equal(t, int64(0), p.Stats().Puts)
}

func TestBufferPool_PutNilIsNoop(t *testing.T) {
	p := NewBufferPool(64)
	p.Put(nil)
	assert.Equal(t, int64(0), p.Stats().Puts)
}

func TestBufferPoolStats_HitRate(t *testing.T) {
	assert.Zero(t, BufferPoolStats{}.HitRate())
	assert.Equal(t, 0.75, BufferPoolStats{Gets: 4, News: 1}.HitRate())
}
