// =============================================================================
// 🏥 诊断端点
// =============================================================================
// /health 探活（含上游连通性）、/config 脱敏配置视图、/stats 运行时统计，
// 以及 Kubernetes 风格的 /healthz /ready /version 探针。
// =============================================================================
package handlers

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// 上游探活超时
const probeTimeout = 3 * time.Second

// HealthHandler 诊断端点处理器
type HealthHandler struct {
	core    *Core
	version string
	started time.Time
	probe   *http.Client
}

// HealthStatus 健康状态响应
type HealthStatus struct {
	Status    string                 `json:"status"` // healthy / degraded
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单个检查结果
type CheckResult struct {
	Status  string `json:"status"` // pass / fail
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// NewHealthHandler 创建诊断处理器
func NewHealthHandler(core *Core, version string) *HealthHandler {
	return &HealthHandler{
		core:    core,
		version: version,
		started: time.Now(),
		probe:   &http.Client{Timeout: probeTimeout},
	}
}

// HandleHealth 处理 /health 请求。
// 并发探测各依赖，任一失败报 degraded 并返回 503。
// @Summary 健康检查
// @Tags 诊断
// @Produce json
// @Router /health [get]
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	checks := map[string]CheckResult{}
	var upstreamCheck CheckResult

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		upstreamCheck = h.probeUpstream(ctx)
		return nil
	})
	_ = g.Wait()
	checks["upstream"] = upstreamCheck

	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   h.version,
		Checks:    checks,
	}
	code := http.StatusOK
	for _, c := range checks {
		if c.Status != "pass" {
			status.Status = "degraded"
			code = http.StatusServiceUnavailable
			break
		}
	}
	writeJSON(w, code, status)
}

// probeUpstream 探测后端版本端点
func (h *HealthHandler) probeUpstream(ctx context.Context) CheckResult {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.core.upstream.BaseURL()+"/api/version", nil)
	if err != nil {
		return CheckResult{Status: "fail", Message: err.Error()}
	}
	resp, err := h.probe.Do(req)
	if err != nil {
		return CheckResult{Status: "fail", Message: err.Error(), Latency: time.Since(start).String()}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return CheckResult{Status: "fail", Message: resp.Status, Latency: time.Since(start).String()}
	}
	return CheckResult{Status: "pass", Latency: time.Since(start).String()}
}

// HandleConfig 处理 /config 请求，返回脱敏后的运行配置。
// 凭据类字段（Redis 密码、审计口令）从不出现在视图里。
// @Summary 配置视图
// @Tags 诊断
// @Produce json
// @Router /config [get]
func (h *HealthHandler) HandleConfig(w http.ResponseWriter, _ *http.Request) {
	cfg := h.core.cfg
	writeJSON(w, http.StatusOK, map[string]any{
		"ollama_url":             cfg.OllamaURL,
		"proxy_host":             cfg.ProxyHost,
		"proxy_port":             cfg.ProxyPort,
		"metrics_port":           cfg.MetricsPort,
		"request_timeout":        cfg.RequestTimeout.String(),
		"openai_timeout":         cfg.OpenAITimeout.String(),
		"enable_input_guard":     cfg.EnableInputGuard,
		"enable_output_guard":    cfg.EnableOutputGuard,
		"block_on_guard_error":   cfg.BlockOnGuardError,
		"scan_fail_fast":         cfg.ScanFailFast,
		"inline_guard_errors":    cfg.InlineGuardErrors,
		"guard_window_threshold": cfg.GuardWindowThreshold,
		"ollama_num_parallel":    cfg.NumParallel,
		"ollama_max_queue":       cfg.MaxQueue,
		"cache_enabled":          cfg.CacheEnabled,
		"cache_backend":          cfg.CacheBackend,
		"cache_max_size":         cfg.CacheMaxSize,
		"cache_ttl":              cfg.CacheTTL,
		"rate_limit_rps":         cfg.RateLimitRPS,
		"rate_limit_burst":       cfg.RateLimitBurst,
		"input_scanners":         h.core.pipeline.InputScanners(),
		"output_scanners":        h.core.pipeline.OutputScanners(),
		"audit_driver":           cfg.Audit.Driver,
	})
}

// HandleStats 处理 /stats 请求，返回准入队列与审计的运行时统计
// @Summary 运行时统计
// @Tags 诊断
// @Produce json
// @Router /stats [get]
func (h *HealthHandler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	totals := h.core.audit.Totals()
	writeJSON(w, http.StatusOK, map[string]any{
		"uptime_seconds": time.Since(h.started).Seconds(),
		"models":         h.core.admission.Snapshot(),
		"audit": map[string]int64{
			"recorded": totals.Recorded,
			"blocked":  totals.Blocked,
			"dropped":  totals.Dropped,
			"failed":   totals.Failed,
		},
	})
}

// HandleHealthz 活跃度探针，只确认进程在运行
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthStatus{Status: "healthy", Timestamp: time.Now()})
}

// HandleReady 就绪探针，确认上游可达
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	check := h.probeUpstream(ctx)
	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Checks:    map[string]CheckResult{"upstream": check},
	}
	code := http.StatusOK
	if check.Status != "pass" {
		status.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// HandleVersion 返回构建版本
func (h *HealthHandler) HandleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": h.version})
}
