package scanner

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/guardflow/internal/pool"
)

// Options 流水线行为配置
type Options struct {
	// FailFast 遇到首个失败立即返回部分裁定
	FailFast bool
	// BlockOnError 扫描器自身出错时按 passed=false 处理（fail closed）；
	// 关闭时按 passed=true 处理并记录错误（fail open）
	BlockOnError bool
	// Workers 扫描任务调度池。为 nil 时在调用方 goroutine 内联执行
	Workers *pool.GoroutinePool
	// Logger 组件日志
	Logger *zap.Logger
}

// slot 流水线中的一个扫描器位。
// gate 非 nil 时对该扫描器的调用跨请求串行化。
type slot struct {
	scanner Scanner
	gate    *sync.Mutex
}

func newSlot(s Scanner) *slot {
	sl := &slot{scanner: s}
	if so, ok := s.(SerialOnly); ok && so.SerialOnly() {
		sl.gate = &sync.Mutex{}
	}
	return sl
}

// Pipeline 有序扫描器流水线。
// 构造后不可变，读取无需加锁；输入与输出扫描器分列。
type Pipeline struct {
	input        []*slot
	output       []*slot
	failFast     bool
	blockOnError bool
	workers      *pool.GoroutinePool
	logger       *zap.Logger
}

// NewPipeline 从有序扫描器列表构造流水线
func NewPipeline(input, output []Scanner, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pipeline{
		failFast:     opts.FailFast,
		blockOnError: opts.BlockOnError,
		workers:      opts.Workers,
		logger:       logger,
	}
	for _, s := range input {
		p.input = append(p.input, newSlot(s))
	}
	for _, s := range output {
		p.output = append(p.output, newSlot(s))
	}
	return p
}

// InputScanners 返回输入侧扫描器名称，按执行顺序
func (p *Pipeline) InputScanners() []string {
	return slotNames(p.input)
}

// OutputScanners 返回输出侧扫描器名称，按执行顺序
func (p *Pipeline) OutputScanners() []string {
	return slotNames(p.output)
}

func slotNames(slots []*slot) []string {
	names := make([]string, 0, len(slots))
	for _, sl := range slots {
		names = append(names, sl.scanner.Name())
	}
	return names
}

// ScanInput 对请求侧文本执行输入扫描器
func (p *Pipeline) ScanInput(ctx context.Context, text string) (*Verdict, error) {
	return p.run(ctx, p.input, text)
}

// ScanOutput 对响应侧文本执行输出扫描器。
// prompt 为产生该输出的原始提示，当前实现不参与评分，仅保留签名。
func (p *Pipeline) ScanOutput(ctx context.Context, prompt, text string) (*Verdict, error) {
	_ = prompt
	return p.run(ctx, p.output, text)
}

// run 按序执行扫描器并聚合裁定。
// 每个扫描器的改写结果作为下一个扫描器的输入。
// 返回的 error 仅表示上下文取消；扫描器自身的错误
// 按 fail open/closed 策略折叠进裁定。
func (p *Pipeline) run(ctx context.Context, slots []*slot, text string) (*Verdict, error) {
	verdict := NewVerdict(text)
	current := text

	for _, sl := range slots {
		select {
		case <-ctx.Done():
			verdict.Sanitized = current
			return verdict, ctx.Err()
		default:
		}

		name := sl.scanner.Name()
		res, err := p.invoke(ctx, sl, current)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				verdict.Sanitized = current
				return verdict, err
			}

			passed := !p.blockOnError
			score := 0.0
			if !passed {
				score = 1.0
			}
			verdict.Results[name] = ScannerResult{
				Passed:    passed,
				RiskScore: score,
				Error:     err.Error(),
			}
			p.logger.Warn("扫描器执行失败",
				zap.String("scanner", name),
				zap.Bool("fail_closed", p.blockOnError),
				zap.Error(err))

			if !passed {
				verdict.Allowed = false
				if p.failFast {
					break
				}
			}
			continue
		}

		changed := res.Sanitized != current
		verdict.Results[name] = ScannerResult{
			Passed:           res.Passed,
			RiskScore:        clampScore(res.RiskScore),
			SanitizedChanged: changed,
		}
		current = res.Sanitized

		if !res.Passed {
			verdict.Allowed = false
			p.logger.Debug("扫描器判定不通过",
				zap.String("scanner", name),
				zap.Float64("risk_score", res.RiskScore))
			if p.failFast {
				break
			}
		}
	}

	verdict.Sanitized = current
	return verdict, nil
}

// invoke 执行单个扫描器，存在工作池时经由工作池调度
func (p *Pipeline) invoke(ctx context.Context, sl *slot, text string) (*Result, error) {
	scan := func(ctx context.Context) (*Result, error) {
		if sl.gate != nil {
			sl.gate.Lock()
			defer sl.gate.Unlock()
		}
		res, err := sl.scanner.Scan(ctx, text)
		if err != nil {
			return nil, err
		}
		if res == nil {
			return nil, errors.New("scanner returned nil result")
		}
		return res, nil
	}

	if p.workers == nil {
		return scan(ctx)
	}

	var res *Result
	err := p.workers.SubmitWait(ctx, func(taskCtx context.Context) error {
		r, scanErr := scan(taskCtx)
		if scanErr != nil {
			return scanErr
		}
		res = r
		return nil
	})
	if errors.Is(err, pool.ErrPoolClosed) {
		// 停机竞态：池先于在途请求关闭时内联执行
		return scan(ctx)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}
