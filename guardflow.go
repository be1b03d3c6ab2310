// Package guardflow wires the scanning proxy together: configuration in,
// a ready-to-serve gateway out.
//
// Usage:
//
//	cfg, _ := config.NewLoader().WithConfigPath("config.yaml").Load()
//	gw, err := guardflow.New(cfg, guardflow.WithLogger(logger))
//	defer gw.Close()
//
// The gateway owns the scan pipeline, verdict cache, admission controller,
// upstream client and audit recorder. HTTP routing lives in cmd/guardflow,
// which builds its mux on top of [Gateway.Core].
package guardflow

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/guardflow/admission"
	"github.com/BaSui01/guardflow/api/handlers"
	"github.com/BaSui01/guardflow/audit"
	"github.com/BaSui01/guardflow/config"
	"github.com/BaSui01/guardflow/internal/cache"
	"github.com/BaSui01/guardflow/internal/metrics"
	"github.com/BaSui01/guardflow/internal/pool"
	"github.com/BaSui01/guardflow/scanner"
	"github.com/BaSui01/guardflow/upstream"
)

// 扫描调度池规格
const (
	scanWorkers   = 32
	scanQueueSize = 256
)

// Gateway 防护代理的组件集合。由 New 构建，Close 释放。
type Gateway struct {
	cfg       *config.Config
	logger    *zap.Logger
	collector *metrics.Collector

	registry  *scanner.Registry
	pipeline  *scanner.Pipeline
	workers   *pool.GoroutinePool
	verdicts  *scanner.VerdictCache
	redis     *cache.Manager
	admission *admission.Controller
	upstream  *upstream.Client
	audit     audit.Recorder

	core *handlers.Core
}

// Option 配置 Gateway 的可选项
type Option func(*options)

type options struct {
	logger    *zap.Logger
	collector *metrics.Collector
}

// WithLogger 设置日志器，缺省为 zap.NewNop()
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCollector 设置指标收集器，缺省新建 guardflow 命名空间的收集器
func WithCollector(c *metrics.Collector) Option {
	return func(o *options) { o.collector = c }
}

// New 按配置构建网关。配置必须已通过 Validate。
// 构建顺序：扫描流水线 → 裁定缓存 → 准入控制 → 上游客户端 → 审计。
// 任何一步失败都会回收已建组件后返回错误。
func New(cfg *config.Config, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	collector := o.collector
	if collector == nil {
		collector = metrics.NewCollector("guardflow", logger)
	}

	g := &Gateway{cfg: cfg, logger: logger, collector: collector}

	// 扫描任务经工作池调度，不在服务 goroutine 上执行
	g.workers = pool.NewGoroutinePool(pool.GoroutinePoolConfig{
		MaxWorkers: scanWorkers,
		QueueSize:  scanQueueSize,
		PanicHandler: func(r any) {
			logger.Error("扫描任务 panic", zap.Any("panic", r))
		},
	})

	g.registry = scanner.NewRegistry(logger)
	pipeline, err := g.registry.BuildPipeline(cfg, scanner.Options{
		FailFast:     cfg.ScanFailFast,
		BlockOnError: cfg.BlockOnGuardError,
		Workers:      g.workers,
	})
	if err != nil {
		g.Close()
		return nil, fmt.Errorf("build scan pipeline: %w", err)
	}
	g.pipeline = pipeline

	if cfg.CacheEnabled {
		g.verdicts = g.buildVerdictCache()
	}

	parallel, auto := cfg.ResolveParallel()
	if auto {
		parallel = 0 // 控制器按可用内存推导
	}
	g.admission = admission.NewController(admission.Config{
		DefaultParallel:   parallel,
		DefaultQueueLimit: cfg.MaxQueue,
	}, logger)

	client, err := upstream.NewClient(upstreamBase(cfg), cfg.Upstream, logger)
	if err != nil {
		g.Close()
		return nil, fmt.Errorf("create upstream client: %w", err)
	}
	client.OnRetry(collector.RecordUpstreamRetry)
	g.upstream = client

	recorder, err := audit.Open(cfg.Audit, logger)
	if err != nil {
		// 审计不在请求关键路径上，打不开存储时降级为空记录器
		logger.Warn("审计存储不可用，降级为空记录器", zap.Error(err))
		recorder = audit.Nop{}
	}
	g.audit = recorder

	g.core = handlers.NewCore(handlers.CoreDeps{
		Config:    cfg,
		Pipeline:  g.pipeline,
		Cache:     g.verdicts,
		Admission: g.admission,
		Upstream:  g.upstream,
		Metrics:   collector,
		Audit:     g.audit,
		Logger:    logger,
	})

	return g, nil
}

// buildVerdictCache 按 cache_backend 组装两级裁定缓存。
// Redis 连不上时 auto 与 distributed 都降级到纯本地 LRU（缓存故障从不致命）。
func (g *Gateway) buildVerdictCache() *scanner.VerdictCache {
	cfg := g.cfg
	ttl := cfg.CacheTTLDuration()

	var redisMgr *cache.Manager
	if cfg.CacheBackend == "auto" || cfg.CacheBackend == "distributed" {
		mgr, err := cache.NewManager(cache.Config{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			DefaultTTL:   ttl,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		}, g.logger)
		if err != nil {
			g.logger.Warn("Redis 不可用，裁定缓存降级为本地 LRU",
				zap.String("addr", cfg.Redis.Addr),
				zap.String("backend", cfg.CacheBackend),
				zap.Error(err))
		} else {
			redisMgr = mgr
			g.redis = mgr
		}
	}

	local := cache.NewLRU(cfg.CacheMaxSize, ttl)
	return scanner.NewVerdictCache(redisMgr, local, ttl, g.logger)
}

// Core 返回受护端点共享的编排核心
func (g *Gateway) Core() *handlers.Core {
	return g.core
}

// Collector 返回 Prometheus 指标收集器
func (g *Gateway) Collector() *metrics.Collector {
	return g.collector
}

// Admission 返回准入控制器（运维端点与测试使用）
func (g *Gateway) Admission() *admission.Controller {
	return g.admission
}

// Close 释放网关持有的连接与后台协程。可安全重复调用。
func (g *Gateway) Close() error {
	var firstErr error
	if g.audit != nil {
		if err := g.audit.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		g.audit = nil
	}
	if g.upstream != nil {
		g.upstream.Close()
		g.upstream = nil
	}
	if g.redis != nil {
		if err := g.redis.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		g.redis = nil
	}
	if g.workers != nil {
		g.workers.Close()
		g.workers = nil
	}
	return firstErr
}

// upstreamBase 拼接后端基址与可选路径前缀
func upstreamBase(cfg *config.Config) string {
	base := strings.TrimRight(cfg.OllamaURL, "/")
	if cfg.OllamaPath != "" {
		base += "/" + strings.Trim(cfg.OllamaPath, "/")
	}
	return base
}
