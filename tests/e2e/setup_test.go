// E2E 测试环境与通用辅助函数。
//
// 用 guardflow.New 组装完整网关（真实扫描器、准入控制、上游客户端），
// 下游对接 testutil.FakeBackend，路由镜像线上的四个受护端点。
//go:build e2e

package e2e

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/guardflow"
	"github.com/BaSui01/guardflow/api/handlers"
	"github.com/BaSui01/guardflow/config"
	"github.com/BaSui01/guardflow/internal/metrics"
	"github.com/BaSui01/guardflow/testutil"
)

// --- 测试环境 ---

// TestEnv 端到端测试环境：假后端 + 完整网关 + HTTP 服务
type TestEnv struct {
	Backend *testutil.FakeBackend
	Gateway *guardflow.Gateway
	Server  *httptest.Server
	Config  *config.Config
}

// --- 环境设置 ---

// NewTestEnv 创建测试环境。mutate 在 Validate 前调整配置。
func NewTestEnv(t *testing.T, mutate func(*config.Config)) *TestEnv {
	t.Helper()

	backend := testutil.NewFakeBackend(t)

	cfg := config.DefaultConfig()
	cfg.OllamaURL = backend.URL()
	// 测试不依赖外部 Redis，裁定缓存走纯本地 LRU
	cfg.CacheBackend = "memory"
	cfg.NumParallel = "4"
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())

	logger := zaptest.NewLogger(t)
	// 每个环境独立的指标注册表，多网关共存不冲突
	collector := metrics.NewCollectorWith("guardflow_e2e", prometheus.NewRegistry(), logger)

	gw, err := guardflow.New(cfg, guardflow.WithLogger(logger), guardflow.WithCollector(collector))
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Close() })

	core := gw.Core()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/generate", handlers.NewGenerateHandler(core).Handle)
	mux.HandleFunc("/api/chat", handlers.NewChatHandler(core).Handle)
	mux.HandleFunc("/v1/chat/completions", handlers.NewOpenAIChatHandler(core).Handle)
	mux.HandleFunc("/v1/completions", handlers.NewOpenAICompletionHandler(core).Handle)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &TestEnv{
		Backend: backend,
		Gateway: gw,
		Server:  srv,
		Config:  cfg,
	}
}

// --- 请求辅助 ---

// PostJSON 向受护端点发 JSON 请求，调用方负责断言与读取响应体
func (e *TestEnv) PostJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	resp, err := http.Post(e.Server.URL+path, "application/json",
		bytes.NewReader(testutil.MustJSON(t, body)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// ReadBody 读取完整响应体
func ReadBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return data
}

// DecodeBody 把响应体解码为通用 JSON 对象
func DecodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	testutil.MustParseJSON(t, ReadBody(t, resp), &out)
	return out
}
