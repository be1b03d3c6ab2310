package channel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundedQueue_PutTake(t *testing.T) {
	q := NewBoundedQueue[int](2)

	require.NoError(t, q.Put(context.Background(), 1, 0))
	require.NoError(t, q.Put(context.Background(), 2, 0))
	assert.Equal(t, 2, q.Len())

	err := q.Put(context.Background(), 3, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrQueueFull)

	v, ok := q.Take()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	v, ok = q.Take()
	require.True(t, ok)
	assert.Equal(t, 2, v)

	_, ok = q.Take()
	assert.False(t, ok)
}

func TestBoundedQueue_ZeroCapacity(t *testing.T) {
	q := NewBoundedQueue[struct{}](0)
	err := q.Put(context.Background(), struct{}{}, 0)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 0, q.Cap())
}

func TestBoundedQueue_PutWaitsForSlot(t *testing.T) {
	q := NewBoundedQueue[int](1)
	require.NoError(t, q.Put(context.Background(), 1, 0))

	done := make(chan error, 1)
	go func() {
		done <- q.Put(context.Background(), 2, 500*time.Millisecond)
	}()

	time.Sleep(20 * time.Millisecond)
	_, ok := q.Take()
	require.True(t, ok)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("put did not complete after slot freed")
	}
}

func TestBoundedQueue_ContextCancel(t *testing.T) {
	q := NewBoundedQueue[int](1)
	require.NoError(t, q.Put(context.Background(), 1, 0))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := q.Put(ctx, 2, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBoundedQueue_Closed(t *testing.T) {
	q := NewBoundedQueue[int](1)
	require.NoError(t, q.Put(context.Background(), 1, 0))
	q.Close()

	err := q.Put(context.Background(), 2, 0)
	assert.ErrorIs(t, err, ErrQueueClosed)

	// 已入队元素仍可取出
	v, ok := q.Take()
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestBoundedQueue_Stats(t *testing.T) {
	q := NewBoundedQueue[int](1)
	require.NoError(t, q.Put(context.Background(), 1, 0))
	_ = q.Put(context.Background(), 2, 0)
	q.Take()

	enq, deq, rej := q.Stats()
	assert.Equal(t, int64(1), enq)
	assert.Equal(t, int64(1), deq)
	assert.Equal(t, int64(1), rej)
}
