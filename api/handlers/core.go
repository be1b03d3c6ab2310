// =============================================================================
// 🎯 请求编排核心
// =============================================================================
// 四个受护端点共享的依赖装配与防护编排：
// 输入/输出扫描（裁定缓存 → 单飞 → 流水线）、模型级准入、审计与指标记录。
// =============================================================================
package handlers

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/guardflow/admission"
	"github.com/BaSui01/guardflow/audit"
	"github.com/BaSui01/guardflow/config"
	"github.com/BaSui01/guardflow/dialect"
	"github.com/BaSui01/guardflow/internal/ctxkeys"
	"github.com/BaSui01/guardflow/internal/metrics"
	"github.com/BaSui01/guardflow/langdetect"
	"github.com/BaSui01/guardflow/scanner"
	"github.com/BaSui01/guardflow/types"
	"github.com/BaSui01/guardflow/upstream"
)

// 方言标签，用于指标与审计
const (
	dialectNative = "native"
	dialectOpenAI = "openai"
)

// 单飞等待窗口：等待他人扫描结果的上限
const dedupeWait = 2 * time.Second

// CoreDeps Core 的装配依赖。Metrics 与 Audit 可为空。
type CoreDeps struct {
	Config    *config.Config
	Pipeline  *scanner.Pipeline
	Cache     *scanner.VerdictCache
	Admission *admission.Controller
	Upstream  *upstream.Client
	Metrics   *metrics.Collector
	Audit     audit.Recorder
	Logger    *zap.Logger
}

// Core 受护端点共享的编排核心
type Core struct {
	cfg       *config.Config
	pipeline  *scanner.Pipeline
	cache     *scanner.VerdictCache
	admission *admission.Controller
	upstream  *upstream.Client
	metrics   *metrics.Collector
	audit     audit.Recorder
	tokens    *dialect.TokenCounter
	logger    *zap.Logger
}

// NewCore 装配编排核心
func NewCore(deps CoreDeps) *Core {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	recorder := deps.Audit
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &Core{
		cfg:       deps.Config,
		pipeline:  deps.Pipeline,
		cache:     deps.Cache,
		admission: deps.Admission,
		upstream:  deps.Upstream,
		metrics:   deps.Metrics,
		audit:     recorder,
		tokens:    dialect.NewTokenCounter(),
		logger:    logger.With(zap.String("component", "handlers")),
	}
}

// passVerdict 防护关闭时的放行裁定
func passVerdict(text string) *scanner.Verdict {
	return &scanner.Verdict{
		Allowed:   true,
		Sanitized: text,
		Results:   map[string]scanner.ScannerResult{},
	}
}

// guardInput 输入侧防护。防护关闭或文本为空直接放行。
// 返回 error 仅表示上下文取消。
func (c *Core) guardInput(ctx context.Context, text string) (*scanner.Verdict, error) {
	if !c.cfg.EnableInputGuard || text == "" {
		return passVerdict(text), nil
	}
	return c.guardCached(ctx, scanner.KindInput, "", text)
}

// guardOutput 输出侧防护（非流式全文）
func (c *Core) guardOutput(ctx context.Context, prompt, text string) (*scanner.Verdict, error) {
	if !c.cfg.EnableOutputGuard || text == "" {
		return passVerdict(text), nil
	}
	return c.guardCached(ctx, scanner.KindOutput, prompt, text)
}

// guardCached 裁定缓存 → 单飞去重 → 流水线扫描。
// 缓存与单飞均为尽力而为，失败一律退化为自行扫描。
func (c *Core) guardCached(ctx context.Context, kind scanner.Kind, prompt, text string) (*scanner.Verdict, error) {
	if v, ok := c.cache.Get(ctx, kind, text); ok {
		if c.metrics != nil {
			c.metrics.RecordCacheHit(string(kind))
		}
		return v, nil
	}
	if c.metrics != nil {
		c.metrics.RecordCacheMiss(string(kind))
	}

	if v, ok := c.cache.Deduplicate(ctx, kind, text, dedupeWait); ok {
		return v, nil
	}
	defer c.cache.Release(ctx, kind, text)

	v, err := c.scan(ctx, kind, prompt, text)
	if err != nil {
		return nil, err
	}
	c.cache.Put(ctx, kind, text, v)
	return v, nil
}

// scan 直接执行流水线扫描并记指标，不经过裁定缓存。
// 流式扫描窗口走这条路径：窗口内容是部分文本，缓存命中率趋零。
func (c *Core) scan(ctx context.Context, kind scanner.Kind, prompt, text string) (*scanner.Verdict, error) {
	start := time.Now()
	var v *scanner.Verdict
	var err error
	if kind == scanner.KindInput {
		v, err = c.pipeline.ScanInput(ctx, text)
	} else {
		v, err = c.pipeline.ScanOutput(ctx, prompt, text)
	}
	if err != nil {
		return nil, err
	}

	if c.metrics != nil {
		direction := string(kind)
		c.metrics.RecordScanDuration(direction, time.Since(start))
		for name, res := range v.Results {
			result := "pass"
			switch {
			case res.Error != "":
				result = "error"
			case !res.Passed:
				result = "fail"
			}
			c.metrics.RecordScan(name, direction, result)
		}
	}
	return v, nil
}

// admit 在模型队列内执行 op，并将准入错误折叠为线上错误码
func (c *Core) admit(ctx context.Context, model string, op admission.Operation) error {
	requestID, _ := ctxkeys.RequestID(ctx)

	enqueued := time.Now()
	var waited time.Duration
	err := c.admission.Execute(ctx, model, requestID, func(ctx context.Context) error {
		waited = time.Since(enqueued)
		return op(ctx)
	})

	switch {
	case errors.Is(err, admission.ErrQueueFull):
		if c.metrics != nil {
			c.metrics.RecordRejected(model)
		}
		return types.NewError(types.ErrQueueFull, "too many requests queued for this model").
			WithHTTPStatus(429).WithRetryable(true).WithCause(err)
	case errors.Is(err, admission.ErrTimeout):
		return types.NewError(types.ErrTimeout, "timed out waiting for a model slot").
			WithHTTPStatus(504).WithRetryable(true).WithCause(err)
	case err != nil:
		return err
	}

	if c.metrics != nil {
		c.metrics.RecordProcessed(model, waited)
		if snap, ok := c.admission.ModelSnapshot(model); ok {
			c.metrics.SetAdmissionState(model, snap.Active, int64(snap.Waiting))
		}
	}
	return nil
}

// recordGuard 记录一次防护裁定：审计一行，拦截时计数
func (c *Core) recordGuard(ctx context.Context, model, dialectName, direction string, v *scanner.Verdict, lang langdetect.Lang, started time.Time) {
	requestID, _ := ctxkeys.RequestID(ctx)
	c.audit.Record(audit.Entry{
		RequestID:      requestID,
		Model:          model,
		Dialect:        dialectName,
		Direction:      direction,
		Allowed:        v.Allowed,
		FailedScanners: v.FailedScanners(),
		RiskScores:     riskScores(v),
		Language:       string(lang),
		Latency:        time.Since(started),
	})
	if !v.Allowed && c.metrics != nil {
		c.metrics.RecordBlocked(direction, dialectName)
	}
}

// recordUpstream 记录一次上游请求结果
func (c *Core) recordUpstream(path string, status int) {
	if c.metrics != nil {
		c.metrics.RecordUpstreamRequest(path, status)
	}
}

// estimateUsage 为代理合成的响应估算 token 用量
func (c *Core) estimateUsage(prompt, completion string) dialect.Usage {
	return dialect.UsageFromNative(c.tokens.Count(prompt), c.tokens.Count(completion))
}
