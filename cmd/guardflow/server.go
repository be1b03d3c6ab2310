package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/guardflow"
	"github.com/BaSui01/guardflow/api/handlers"
	"github.com/BaSui01/guardflow/config"
	"github.com/BaSui01/guardflow/internal/metrics"
	"github.com/BaSui01/guardflow/internal/server"
	"github.com/BaSui01/guardflow/internal/telemetry"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 防护代理主服务器，管理代理端口与指标端口的生命周期
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	gateway   *guardflow.Gateway
	collector *metrics.Collector
	telemetry *telemetry.Providers

	listeners *server.Group

	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	s.collector = metrics.NewCollector("guardflow", s.logger)

	providers, err := telemetry.Init(s.cfg.Telemetry, s.logger)
	if err != nil {
		s.logger.Warn("遥测初始化失败，继续以 noop 运行", zap.Error(err))
	} else {
		s.telemetry = providers
	}

	gw, err := guardflow.New(s.cfg,
		guardflow.WithLogger(s.logger),
		guardflow.WithCollector(s.collector),
	)
	if err != nil {
		return fmt.Errorf("failed to build gateway: %w", err)
	}
	s.gateway = gw

	s.listeners = server.NewGroup(s.logger)
	s.registerProxyListener()
	s.registerMetricsListener()
	if err := s.listeners.Start(); err != nil {
		return fmt.Errorf("failed to start listeners: %w", err)
	}

	s.logger.Info("GuardFlow 已就绪",
		zap.String("upstream", s.cfg.OllamaURL),
		zap.Int("proxy_port", s.cfg.ProxyPort),
		zap.Int("metrics_port", s.cfg.MetricsPort),
		zap.Bool("input_guard", s.cfg.EnableInputGuard),
		zap.Bool("output_guard", s.cfg.EnableOutputGuard),
	)
	return nil
}

// =============================================================================
// 🌐 代理服务器
// =============================================================================

// registerProxyListener 注册全部路由并把代理端口加入监听组
func (s *Server) registerProxyListener() {
	core := s.gateway.Core()
	mux := http.NewServeMux()

	// 受护端点：两种方言共用一个端口
	mux.HandleFunc("/api/generate", postOnly(handlers.NewGenerateHandler(core).Handle))
	mux.HandleFunc("/api/chat", postOnly(handlers.NewChatHandler(core).Handle))
	mux.HandleFunc("/v1/chat/completions", postOnly(handlers.NewOpenAIChatHandler(core).Handle))
	mux.HandleFunc("/v1/completions", postOnly(handlers.NewOpenAICompletionHandler(core).Handle))

	// 透传端点：正文原样转发，不经扫描
	passthrough := map[string][]string{
		"/v1/embeddings": {http.MethodPost},
		"/v1/models":     {http.MethodGet, http.MethodPost},
		"/api/embed":     {http.MethodPost},
		"/api/tags":      {http.MethodGet},
		"/api/show":      {http.MethodPost},
		"/api/delete":    {http.MethodPost, http.MethodDelete},
		"/api/copy":      {http.MethodPost},
		"/api/pull":      {http.MethodPost},
		"/api/push":      {http.MethodPost},
		"/api/create":    {http.MethodPost},
		"/api/ps":        {http.MethodGet},
		"/api/version":   {http.MethodGet},
	}
	for path, methods := range passthrough {
		mux.Handle(path, handlers.NewPassthroughHandler(core, methods...))
	}

	// 诊断端点
	health := handlers.NewHealthHandler(core, Version)
	mux.HandleFunc("/health", health.HandleHealth)
	mux.HandleFunc("/config", health.HandleConfig)
	mux.HandleFunc("/stats", health.HandleStats)
	mux.HandleFunc("/healthz", health.HandleHealthz)
	mux.HandleFunc("/ready", health.HandleReady)
	mux.HandleFunc("/readyz", health.HandleReady)
	mux.HandleFunc("/version", health.HandleVersion)

	// 中间件链：外层防护与观测，内层限流与来源准入
	rateLimiterCtx, cancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = cancel
	chain := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		Metrics(s.collector),
		CORS(s.cfg.CORSAllowOrigins),
		TrustedHosts(s.cfg.TrustedHosts, s.cfg.TrustXForwarded, s.logger),
		RateLimiter(rateLimiterCtx, s.cfg.RateLimitRPS, s.cfg.RateLimitBurst, s.cfg.TrustXForwarded, s.logger),
	}
	if s.cfg.Telemetry.Enabled {
		chain = append(chain, OTelTracing())
	}
	handler := Chain(mux, chain...)

	s.listeners.Add("proxy", handler, server.Config{
		Addr:            fmt.Sprintf("%s:%d", s.cfg.ProxyHost, s.cfg.ProxyPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout, // 0：流式响应不设写超时
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	})
}

// postOnly 仅放行 POST 请求
func postOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusMethodNotAllowed)
			fmt.Fprint(w, `{"error":"method_not_allowed","message":"method not allowed"}`)
			return
		}
		h(w, r)
	}
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// registerMetricsListener 把指标端口加入监听组。metrics_port 为 0 时关闭。
func (s *Server) registerMetricsListener() {
	if s.cfg.MetricsPort <= 0 {
		s.logger.Info("指标端口未配置，跳过 metrics 服务器")
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.listeners.Add("metrics", mux, server.Config{
		Addr:            fmt.Sprintf("%s:%d", s.cfg.ProxyHost, s.cfg.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.ReadTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	})
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	if s.listeners != nil {
		s.listeners.Wait()
	}
	s.Shutdown()
}

// Shutdown 优雅关闭：先停接入，再放掉在途请求，最后释放组件
func (s *Server) Shutdown() {
	s.logger.Info("开始优雅关闭")
	ctx := context.Background()

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}
	if s.listeners != nil {
		if err := s.listeners.Shutdown(ctx); err != nil {
			s.logger.Error("监听面关闭失败", zap.Error(err))
		}
	}
	if s.gateway != nil {
		if err := s.gateway.Close(); err != nil {
			s.logger.Error("网关组件释放失败", zap.Error(err))
		}
	}
	if s.telemetry != nil {
		if err := s.telemetry.Shutdown(ctx); err != nil {
			s.logger.Error("遥测关闭失败", zap.Error(err))
		}
	}

	s.logger.Info("优雅关闭完成")
}
