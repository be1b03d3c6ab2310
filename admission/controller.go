// =============================================================================
// 🚦 每模型准入控制器
// =============================================================================
// 两级闸门：有界等待队列 + 有界并行许可。请求先以短超时入队，
// 再等待信号量许可；队列满立即拒绝，等待许可期间受请求超时约束。
// 不同模型之间完全隔离，互不阻塞。
// =============================================================================
package admission

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/BaSui01/guardflow/internal/channel"
)

var (
	// ErrQueueFull 等待队列已满
	ErrQueueFull = errors.New("admission queue is full")
	// ErrTimeout 等待并行许可超时
	ErrTimeout = errors.New("admission wait timed out")
)

// 入队超时。队列满时不值得久等：要么马上有空位，要么快速拒绝。
const defaultPutTimeout = 100 * time.Millisecond

// 内存自动推导阈值：可用内存达到 16 GiB 时默认并行 4，否则 1
const autoSizeMemoryThreshold = 16 << 30

// Config 控制器配置
type Config struct {
	// DefaultParallel 新模型的默认并行上限。0 表示按可用内存自动推导
	DefaultParallel int
	// DefaultQueueLimit 新模型的默认队列上限
	DefaultQueueLimit int
	// PutTimeout 入队超时，零值取内置默认
	PutTimeout time.Duration
}

// Operation 受准入控制的工作单元
type Operation func(ctx context.Context) error

// Controller 每模型准入控制器。
// 队列状态表由单一互斥锁保护，锁只跨表查找/插入持有。
type Controller struct {
	mu         sync.Mutex
	queues     map[string]*modelQueue
	parallel   int
	queueLimit int
	putTimeout time.Duration
	logger     *zap.Logger
}

// modelQueue 单个模型的队列状态。
// 计数器由 statsMu 保护，锁只跨计数更新持有。
type modelQueue struct {
	parallelLimit int
	queueLimit    int
	sem           *semaphore.Weighted
	queue         *channel.BoundedQueue[struct{}]
	createdAt     time.Time

	statsMu       sync.Mutex
	active        int64
	processed     int64
	rejected      int64
	cumWait       time.Duration
	cumProcessing time.Duration
}

// NewController 创建控制器。
// cfg.DefaultParallel 为 0 时按可用内存自动推导。
func NewController(cfg Config, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}

	parallel := cfg.DefaultParallel
	if parallel <= 0 {
		parallel = autoSizeParallel(logger)
	}
	queueLimit := cfg.DefaultQueueLimit
	if queueLimit < 0 {
		queueLimit = 0
	}
	putTimeout := cfg.PutTimeout
	if putTimeout <= 0 {
		putTimeout = defaultPutTimeout
	}

	logger.Info("准入控制器就绪",
		zap.Int("default_parallel", parallel),
		zap.Int("default_queue_limit", queueLimit))

	return &Controller{
		queues:     make(map[string]*modelQueue),
		parallel:   parallel,
		queueLimit: queueLimit,
		putTimeout: putTimeout,
		logger:     logger.With(zap.String("component", "admission")),
	}
}

// autoSizeParallel 按可用内存推导默认并行上限。探测失败回落 4。
func autoSizeParallel(logger *zap.Logger) int {
	avail, err := availableMemoryBytes()
	if err != nil {
		logger.Warn("可用内存探测失败，并行上限回落默认值",
			zap.Int("fallback", 4), zap.Error(err))
		return 4
	}
	if avail >= autoSizeMemoryThreshold {
		return 4
	}
	return 1
}

// newModelQueue 按限额构造队列状态
func newModelQueue(parallelLimit, queueLimit int) *modelQueue {
	return &modelQueue{
		parallelLimit: parallelLimit,
		queueLimit:    queueLimit,
		sem:           semaphore.NewWeighted(int64(parallelLimit)),
		queue:         channel.NewBoundedQueue[struct{}](queueLimit),
		createdAt:     time.Now(),
	}
}

// resolve 查找或创建模型队列。锁只跨表操作持有。
func (c *Controller) resolve(model string) *modelQueue {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, ok := c.queues[model]
	if !ok {
		q = newModelQueue(c.parallel, c.queueLimit)
		c.queues[model] = q
		c.logger.Info("新模型队列",
			zap.String("model", model),
			zap.Int("parallel_limit", q.parallelLimit),
			zap.Int("queue_limit", q.queueLimit))
	}
	return q
}

// Execute 在 model 的准入闸门内执行 op。
//
// 队列满返回 ErrQueueFull 并计入 rejected；等待许可期间 ctx 到期
// 返回 ErrTimeout（rejected 不变，它只统计队列满拒绝）。
// op 的返回值原样透传。
func (c *Controller) Execute(ctx context.Context, model, requestID string, op Operation) error {
	q := c.resolve(model)

	// 快路径：有空闲许可且无等待者时免排队直通。
	// TryAcquire 在存在等待者时必然失败，先来先服务不被插队破坏。
	// queue_limit=0 因此退化为纯并发门控：许可用尽即拒绝。
	if q.sem.TryAcquire(1) {
		return q.run(ctx, op, 0)
	}

	// 第一级：短超时入队
	if err := q.queue.Put(ctx, struct{}{}, c.putTimeout); err != nil {
		if errors.Is(err, channel.ErrQueueFull) || errors.Is(err, channel.ErrQueueClosed) {
			q.statsMu.Lock()
			q.rejected++
			q.statsMu.Unlock()
			c.logger.Warn("队列已满，拒绝请求",
				zap.String("model", model),
				zap.String("request_id", requestID))
			return ErrQueueFull
		}
		// ctx 在入队等待中取消：槽位从未被占用，rejected 不计
		return ErrTimeout
	}

	// 第二级：等待并行许可。semaphore.Weighted 的等待者按 FIFO 唤醒，
	// 且许可只在入队成功后才开始等待，因此模型内准入保持先来先服务。
	waitStart := time.Now()
	if err := q.sem.Acquire(ctx, 1); err != nil {
		// 释放占用的队列槽位
		q.queue.Take()
		c.logger.Warn("等待许可超时",
			zap.String("model", model),
			zap.String("request_id", requestID),
			zap.Duration("waited", time.Since(waitStart)))
		return ErrTimeout
	}
	waited := time.Since(waitStart)

	// 取得许可：消费队列槽位并进入执行态
	q.queue.Take()
	return q.run(ctx, op, waited)
}

// run 持有许可执行 op，收尾释放许可并累计统计
func (q *modelQueue) run(ctx context.Context, op Operation, waited time.Duration) error {
	q.statsMu.Lock()
	q.active++
	q.cumWait += waited
	q.statsMu.Unlock()

	procStart := time.Now()
	err := op(ctx)
	elapsed := time.Since(procStart)

	q.statsMu.Lock()
	q.active--
	q.processed++
	q.cumProcessing += elapsed
	q.statsMu.Unlock()
	q.sem.Release(1)

	return err
}

// Configure 热更新模型限额。以新限额重建队列状态，
// 在途请求在旧信号量上收尾；计数器随之清零（调用方知悉）。
func (c *Controller) Configure(model string, parallelLimit, queueLimit int) {
	if parallelLimit <= 0 {
		parallelLimit = c.parallel
	}
	if queueLimit < 0 {
		queueLimit = 0
	}

	c.mu.Lock()
	c.queues[model] = newModelQueue(parallelLimit, queueLimit)
	c.mu.Unlock()

	c.logger.Info("模型限额已更新",
		zap.String("model", model),
		zap.Int("parallel_limit", parallelLimit),
		zap.Int("queue_limit", queueLimit))
}

// Reset 移除模型的队列状态，下次请求按默认限额重建
func (c *Controller) Reset(model string) {
	c.mu.Lock()
	delete(c.queues, model)
	c.mu.Unlock()
}

// DefaultParallel 返回生效的默认并行上限（含自动推导结果）
func (c *Controller) DefaultParallel() int {
	return c.parallel
}
