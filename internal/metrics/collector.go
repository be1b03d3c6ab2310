// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 扫描指标
	scansTotal   *prometheus.CounterVec
	scanDuration *prometheus.HistogramVec
	blockedTotal *prometheus.CounterVec

	// 准入指标
	admissionActive    *prometheus.GaugeVec
	admissionWaiting   *prometheus.GaugeVec
	admissionProcessed *prometheus.CounterVec
	admissionRejected  *prometheus.CounterVec
	admissionWait      *prometheus.HistogramVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// 上游指标
	upstreamRequestsTotal *prometheus.CounterVec
	upstreamRetriesTotal  prometheus.Counter

	logger *zap.Logger
}

// NewCollector 在默认注册表上创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWith(namespace, prometheus.DefaultRegisterer, logger)
}

// NewCollectorWith 在指定注册表上创建指标收集器。
// 测试与多实例场景用独立注册表避免指标重复注册。
func NewCollectorWith(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"method", "path"},
	)

	// 扫描指标
	c.scansTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Total number of scanner invocations",
		},
		[]string{"scanner", "direction", "result"}, // result: pass, fail, error
	)

	c.scanDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Scan pipeline duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"direction"},
	)

	c.blockedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocked_total",
			Help:      "Total number of blocked requests and responses",
		},
		[]string{"direction", "dialect"},
	)

	// 准入指标
	c.admissionActive = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "admission_active",
			Help:      "Requests currently holding a parallel permit",
		},
		[]string{"model"},
	)

	c.admissionWaiting = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "admission_waiting",
			Help:      "Requests currently waiting in the admission queue",
		},
		[]string{"model"},
	)

	c.admissionProcessed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_processed_total",
			Help:      "Total number of requests that completed processing",
		},
		[]string{"model"},
	)

	c.admissionRejected = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_rejected_total",
			Help:      "Total number of requests rejected with a full queue",
		},
		[]string{"model"},
	)

	c.admissionWait = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "admission_wait_seconds",
			Help:      "Time spent waiting for a parallel permit",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{"model"},
	)

	// 缓存指标
	c.cacheHits = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of verdict cache hits by scan kind",
		},
		[]string{"kind"}, // kind: input, output
	)

	c.cacheMisses = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of verdict cache misses by scan kind",
		},
		[]string{"kind"},
	)

	// 上游指标
	c.upstreamRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Total number of requests forwarded upstream",
		},
		[]string{"path", "status"},
	)

	c.upstreamRetriesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_retries_total",
			Help:      "Total number of upstream transport retries",
		},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 🛡️ 扫描指标记录
// =============================================================================

// RecordScan 记录单个扫描器的一次调用
func (c *Collector) RecordScan(scanner, direction, result string) {
	c.scansTotal.WithLabelValues(scanner, direction, result).Inc()
}

// RecordScanDuration 记录一次流水线扫描耗时
func (c *Collector) RecordScanDuration(direction string, duration time.Duration) {
	c.scanDuration.WithLabelValues(direction).Observe(duration.Seconds())
}

// RecordBlocked 记录一次策略拦截
func (c *Collector) RecordBlocked(direction, dialect string) {
	c.blockedTotal.WithLabelValues(direction, dialect).Inc()
}

// =============================================================================
// 🚦 准入指标记录
// =============================================================================

// SetAdmissionState 更新单个模型的活跃/等待 Gauge
func (c *Collector) SetAdmissionState(model string, active, waiting int64) {
	c.admissionActive.WithLabelValues(model).Set(float64(active))
	c.admissionWaiting.WithLabelValues(model).Set(float64(waiting))
}

// RecordProcessed 记录一次完成处理
func (c *Collector) RecordProcessed(model string, waited time.Duration) {
	c.admissionProcessed.WithLabelValues(model).Inc()
	c.admissionWait.WithLabelValues(model).Observe(waited.Seconds())
}

// RecordRejected 记录一次队列满拒绝
func (c *Collector) RecordRejected(model string) {
	c.admissionRejected.WithLabelValues(model).Inc()
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录裁定缓存命中，kind 为扫描类别（input/output）
func (c *Collector) RecordCacheHit(kind string) {
	c.cacheHits.WithLabelValues(kind).Inc()
}

// RecordCacheMiss 记录裁定缓存未命中
func (c *Collector) RecordCacheMiss(kind string) {
	c.cacheMisses.WithLabelValues(kind).Inc()
}

// =============================================================================
// 🔌 上游指标记录
// =============================================================================

// RecordUpstreamRequest 记录一次上游请求
func (c *Collector) RecordUpstreamRequest(path string, status int) {
	c.upstreamRequestsTotal.WithLabelValues(path, strconv.Itoa(status)).Inc()
}

// RecordUpstreamRetry 记录一次上游传输层重试
func (c *Collector) RecordUpstreamRetry() {
	c.upstreamRetriesTotal.Inc()
}

// statusClass 将状态码归类为 2xx/3xx/4xx/5xx
func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
