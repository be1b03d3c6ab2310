// Package channel provides bounded channel primitives.
// This package is internal and should not be imported by external projects.
package channel

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

var (
	// ErrQueueFull 队列已满且在入队超时内未腾出空位
	ErrQueueFull = errors.New("queue is full")
	// ErrQueueClosed 队列已关闭
	ErrQueueClosed = errors.New("queue is closed")
)

// BoundedQueue 有界 FIFO 队列。
// 入队带短超时，满则立即拒绝；出队由持有者显式调用。
// 容量为 0 时任何入队都会被拒绝（纯并发门控场景）。
type BoundedQueue[T any] struct {
	ch       chan T
	capacity int
	closed   atomic.Bool

	// 统计
	enqueued atomic.Int64
	dequeued atomic.Int64
	rejected atomic.Int64
}

// NewBoundedQueue 创建容量为 capacity 的队列。capacity 可以为 0。
func NewBoundedQueue[T any](capacity int) *BoundedQueue[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &BoundedQueue[T]{
		ch:       make(chan T, capacity),
		capacity: capacity,
	}
}

// Put 尝试入队，最多等待 timeout。
// 队列满返回 ErrQueueFull；ctx 取消返回 ctx.Err()。
func (q *BoundedQueue[T]) Put(ctx context.Context, item T, timeout time.Duration) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}

	// 快路径：有空位直接入队
	select {
	case q.ch <- item:
		q.enqueued.Add(1)
		return nil
	default:
	}

	if timeout <= 0 {
		q.rejected.Add(1)
		return ErrQueueFull
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case q.ch <- item:
		q.enqueued.Add(1)
		return nil
	case <-timer.C:
		q.rejected.Add(1)
		return ErrQueueFull
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Take 出队一个元素。队列为空时返回零值与 false，从不阻塞。
func (q *BoundedQueue[T]) Take() (T, bool) {
	select {
	case item := <-q.ch:
		q.dequeued.Add(1)
		return item, true
	default:
		var zero T
		return zero, false
	}
}

// Len 当前排队元素数
func (q *BoundedQueue[T]) Len() int {
	return len(q.ch)
}

// Cap 队列容量
func (q *BoundedQueue[T]) Cap() int {
	return q.capacity
}

// Close 关闭队列。已入队元素仍可被 Take 取出。
func (q *BoundedQueue[T]) Close() {
	q.closed.Store(true)
}

// Stats 队列累计统计
func (q *BoundedQueue[T]) Stats() (enqueued, dequeued, rejected int64) {
	return q.enqueued.Load(), q.dequeued.Load(), q.rejected.Load()
}
