package scanner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/guardflow/internal/pool"
)

// stubScanner 可编程的测试扫描器
type stubScanner struct {
	name   string
	fn     func(text string) (*Result, error)
	calls  atomic.Int32
	serial bool

	// 并发度探针
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (s *stubScanner) Name() string { return s.name }

func (s *stubScanner) SerialOnly() bool { return s.serial }

func (s *stubScanner) Scan(ctx context.Context, text string) (*Result, error) {
	s.calls.Add(1)
	cur := s.inFlight.Add(1)
	for {
		max := s.maxInFlight.Load()
		if cur <= max || s.maxInFlight.CompareAndSwap(max, cur) {
			break
		}
	}
	defer s.inFlight.Add(-1)

	if s.fn != nil {
		return s.fn(text)
	}
	return &Result{Sanitized: text, Passed: true}, nil
}

func passStub(name string) *stubScanner {
	return &stubScanner{name: name}
}

func failStub(name string, score float64) *stubScanner {
	return &stubScanner{name: name, fn: func(text string) (*Result, error) {
		return &Result{Sanitized: text, Passed: false, RiskScore: score}, nil
	}}
}

func errStub(name string) *stubScanner {
	return &stubScanner{name: name, fn: func(text string) (*Result, error) {
		return nil, errors.New("model unavailable")
	}}
}

func TestPipeline_FailFast(t *testing.T) {
	first := passStub("first")
	second := failStub("second", 0.9)
	third := passStub("third")

	p := NewPipeline([]Scanner{first, second, third}, nil, Options{FailFast: true})

	verdict, err := p.ScanInput(context.Background(), "hello")
	require.NoError(t, err)

	assert.False(t, verdict.Allowed)
	assert.Len(t, verdict.Results, 2, "快速失败后第三个扫描器不应出现在结果中")
	assert.Equal(t, int32(0), third.calls.Load(), "快速失败后第三个扫描器不应被调用")
	assert.Equal(t, []string{"second"}, verdict.FailedScanners())
}

func TestPipeline_FullSweep(t *testing.T) {
	first := failStub("first", 0.8)
	second := passStub("second")
	third := failStub("third", 0.6)

	p := NewPipeline([]Scanner{first, second, third}, nil, Options{FailFast: false})

	verdict, err := p.ScanInput(context.Background(), "hello")
	require.NoError(t, err)

	assert.False(t, verdict.Allowed)
	assert.Len(t, verdict.Results, 3)
	assert.Equal(t, []string{"first", "third"}, verdict.FailedScanners())
	assert.InDelta(t, 0.8, verdict.HighestRisk(), 1e-9)
}

func TestPipeline_SanitizeChaining(t *testing.T) {
	redact := &stubScanner{name: "redact", fn: func(text string) (*Result, error) {
		return &Result{Sanitized: "[REDACTED]", Passed: true}, nil
	}}
	var sawText string
	probe := &stubScanner{name: "probe", fn: func(text string) (*Result, error) {
		sawText = text
		return &Result{Sanitized: text, Passed: true}, nil
	}}

	p := NewPipeline([]Scanner{redact, probe}, nil, Options{FailFast: true})

	verdict, err := p.ScanInput(context.Background(), "secret stuff")
	require.NoError(t, err)

	assert.Equal(t, "[REDACTED]", sawText, "后续扫描器应收到改写后的文本")
	assert.Equal(t, "[REDACTED]", verdict.Sanitized)
	assert.True(t, verdict.Results["redact"].SanitizedChanged)
	assert.False(t, verdict.Results["probe"].SanitizedChanged)
	assert.True(t, verdict.Changed())
}

func TestPipeline_ScannerError(t *testing.T) {
	t.Run("fail open", func(t *testing.T) {
		p := NewPipeline([]Scanner{errStub("broken")}, nil, Options{FailFast: true, BlockOnError: false})

		verdict, err := p.ScanInput(context.Background(), "hello")
		require.NoError(t, err)

		assert.True(t, verdict.Allowed)
		r := verdict.Results["broken"]
		assert.True(t, r.Passed)
		assert.Equal(t, "model unavailable", r.Error)
		assert.Zero(t, r.RiskScore)
	})

	t.Run("fail closed", func(t *testing.T) {
		p := NewPipeline([]Scanner{errStub("broken"), passStub("after")}, nil, Options{FailFast: true, BlockOnError: true})

		verdict, err := p.ScanInput(context.Background(), "hello")
		require.NoError(t, err)

		assert.False(t, verdict.Allowed)
		r := verdict.Results["broken"]
		assert.False(t, r.Passed)
		assert.Equal(t, 1.0, r.RiskScore)
		assert.NotContains(t, verdict.Results, "after", "fail closed 且快速失败时不再继续")
	})
}

func TestPipeline_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPipeline([]Scanner{passStub("any")}, nil, Options{FailFast: true})

	verdict, err := p.ScanInput(ctx, "hello")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotNil(t, verdict)
}

func TestPipeline_OutputSideSeparate(t *testing.T) {
	in := passStub("input-only")
	out := failStub("output-only", 1.0)

	p := NewPipeline([]Scanner{in}, []Scanner{out}, Options{FailFast: true})

	inVerdict, err := p.ScanInput(context.Background(), "text")
	require.NoError(t, err)
	assert.True(t, inVerdict.Allowed)

	outVerdict, err := p.ScanOutput(context.Background(), "prompt", "text")
	require.NoError(t, err)
	assert.False(t, outVerdict.Allowed)
	assert.Equal(t, int32(1), in.calls.Load())
	assert.Equal(t, int32(1), out.calls.Load())

	assert.Equal(t, []string{"input-only"}, p.InputScanners())
	assert.Equal(t, []string{"output-only"}, p.OutputScanners())
}

func TestPipeline_Empty(t *testing.T) {
	p := NewPipeline(nil, nil, Options{FailFast: true})

	verdict, err := p.ScanInput(context.Background(), "anything")
	require.NoError(t, err)
	assert.True(t, verdict.Allowed)
	assert.Equal(t, "anything", verdict.Sanitized)
	assert.Empty(t, verdict.Results)
}

func TestPipeline_SerialGate(t *testing.T) {
	slow := &stubScanner{name: "slow", serial: true, fn: func(text string) (*Result, error) {
		time.Sleep(2 * time.Millisecond)
		return &Result{Sanitized: text, Passed: true}, nil
	}}

	p := NewPipeline([]Scanner{slow}, nil, Options{FailFast: true})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.ScanInput(context.Background(), "text")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(8), slow.calls.Load())
	assert.Equal(t, int32(1), slow.maxInFlight.Load(), "串行扫描器同一时刻至多一次调用")
}

func TestPipeline_WorkerPoolDispatch(t *testing.T) {
	workers := pool.NewGoroutinePool(pool.GoroutinePoolConfig{
		MaxWorkers:  4,
		QueueSize:   16,
		IdleTimeout: time.Second,
	})
	defer workers.Close()

	p := NewPipeline([]Scanner{passStub("a"), failStub("b", 0.7)}, nil, Options{
		FailFast: true,
		Workers:  workers,
	})

	verdict, err := p.ScanInput(context.Background(), "hello")
	require.NoError(t, err)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, []string{"b"}, verdict.FailedScanners())
	assert.GreaterOrEqual(t, workers.Stats().Submitted, int64(2))
}

func TestPipeline_ClosedPoolFallsBackInline(t *testing.T) {
	workers := pool.NewGoroutinePool(pool.GoroutinePoolConfig{
		MaxWorkers:  2,
		QueueSize:   4,
		IdleTimeout: time.Second,
	})
	workers.Close()

	p := NewPipeline([]Scanner{passStub("a")}, nil, Options{Workers: workers})

	// 停机竞态下在途扫描仍须得出裁定
	verdict, err := p.ScanInput(context.Background(), "hello")
	require.NoError(t, err)
	assert.True(t, verdict.Allowed)
}
