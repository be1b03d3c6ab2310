package handlers

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/guardflow/admission"
	"github.com/BaSui01/guardflow/config"
	"github.com/BaSui01/guardflow/scanner"
	"github.com/BaSui01/guardflow/upstream"
)

// stubScanner 可编程的测试扫描器
type stubScanner struct {
	name  string
	fn    func(text string) (*scanner.Result, error)
	calls atomic.Int32
	seen  atomic.Value // 最近一次扫描文本
}

func (s *stubScanner) Name() string { return s.name }

func (s *stubScanner) Scan(_ context.Context, text string) (*scanner.Result, error) {
	s.calls.Add(1)
	s.seen.Store(text)
	if s.fn != nil {
		return s.fn(text)
	}
	return &scanner.Result{Sanitized: text, Passed: true}, nil
}

func (s *stubScanner) lastSeen() string {
	v, _ := s.seen.Load().(string)
	return v
}

// blockStub 命中子串时判不通过
func blockStub(name, needle string) *stubScanner {
	return &stubScanner{name: name, fn: func(text string) (*scanner.Result, error) {
		if strings.Contains(text, needle) {
			return &scanner.Result{Sanitized: text, Passed: false, RiskScore: 0.97}, nil
		}
		return &scanner.Result{Sanitized: text, Passed: true}, nil
	}}
}

// redactStub 改写命中子串
func redactStub(name, needle, replacement string) *stubScanner {
	return &stubScanner{name: name, fn: func(text string) (*scanner.Result, error) {
		return &scanner.Result{
			Sanitized: strings.ReplaceAll(text, needle, replacement),
			Passed:    true,
		}, nil
	}}
}

// coreFixture 一套完整的测试编排核心
type coreFixture struct {
	core      *Core
	cfg       *config.Config
	admission *admission.Controller
}

// newCoreFixture 装配指向 backendURL 的编排核心。
// 缓存、指标、审计均为空实现，mutate 可在装配前调整配置。
func newCoreFixture(t *testing.T, backendURL string, input, output []scanner.Scanner, mutate func(*config.Config)) *coreFixture {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Upstream.Retries = 0
	cfg.Upstream.ConnectTimeout = 2 * time.Second
	if mutate != nil {
		mutate(cfg)
	}

	ctrl := admission.NewController(admission.Config{
		DefaultParallel:   4,
		DefaultQueueLimit: 16,
	}, zap.NewNop())

	client, err := upstream.NewClient(backendURL, cfg.Upstream, zap.NewNop())
	if err != nil {
		t.Fatalf("upstream client: %v", err)
	}
	t.Cleanup(client.Close)

	pipeline := scanner.NewPipeline(input, output, scanner.Options{
		FailFast:     cfg.ScanFailFast,
		BlockOnError: cfg.BlockOnGuardError,
	})

	core := NewCore(CoreDeps{
		Config:    cfg,
		Pipeline:  pipeline,
		Admission: ctrl,
		Upstream:  client,
		Logger:    zap.NewNop(),
	})
	return &coreFixture{core: core, cfg: cfg, admission: ctrl}
}

// newBackendFixture 同时起一个假后端
func newBackendFixture(t *testing.T, backend *httptest.Server, input, output []scanner.Scanner, mutate func(*config.Config)) *coreFixture {
	t.Helper()
	t.Cleanup(backend.Close)
	return newCoreFixture(t, backend.URL, input, output, mutate)
}
