// =============================================================================
// 🔬 桩扫描器
// =============================================================================
package testutil

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/BaSui01/guardflow/scanner"
)

// StubScanner 可编程扫描器，按注入的函数产出结果并记录调用
type StubScanner struct {
	ScannerName string
	Fn          func(text string) (*scanner.Result, error)

	calls atomic.Int32
	last  atomic.Value
}

// Name 实现 scanner.Scanner
func (s *StubScanner) Name() string { return s.ScannerName }

// Scan 实现 scanner.Scanner，记录调用次数与最近一次输入
func (s *StubScanner) Scan(_ context.Context, text string) (*scanner.Result, error) {
	s.calls.Add(1)
	s.last.Store(text)
	if s.Fn != nil {
		return s.Fn(text)
	}
	return &scanner.Result{Sanitized: text, Passed: true}, nil
}

// Calls 返回累计调用次数
func (s *StubScanner) Calls() int {
	return int(s.calls.Load())
}

// LastText 返回最近一次扫描的输入文本
func (s *StubScanner) LastText() string {
	if v, ok := s.last.Load().(string); ok {
		return v
	}
	return ""
}

// Blocking 构造命中子串即拦截的桩扫描器
func Blocking(name, needle string) *StubScanner {
	return &StubScanner{
		ScannerName: name,
		Fn: func(text string) (*scanner.Result, error) {
			if strings.Contains(text, needle) {
				return &scanner.Result{Sanitized: text, Passed: false, RiskScore: 0.97}, nil
			}
			return &scanner.Result{Sanitized: text, Passed: true}, nil
		},
	}
}

// Sanitizing 构造命中即改写但放行的桩扫描器
func Sanitizing(name, needle, replacement string) *StubScanner {
	return &StubScanner{
		ScannerName: name,
		Fn: func(text string) (*scanner.Result, error) {
			if strings.Contains(text, needle) {
				return &scanner.Result{
					Sanitized: strings.ReplaceAll(text, needle, replacement),
					Passed:    true,
					RiskScore: 0.4,
				}, nil
			}
			return &scanner.Result{Sanitized: text, Passed: true}, nil
		},
	}
}

// Failing 构造总是返回错误的桩扫描器
func Failing(name string, err error) *StubScanner {
	return &StubScanner{
		ScannerName: name,
		Fn: func(text string) (*scanner.Result, error) {
			return nil, err
		},
	}
}
