package scanner

import (
	"context"
	"sort"
)

// Scanner 扫描器接口
// 在单一风险维度上为一段文本打分，并可选地返回改写后的文本
type Scanner interface {
	// Scan 执行扫描，返回改写文本、是否通过与风险分
	Scan(ctx context.Context, text string) (*Result, error)
	// Name 返回扫描器名称（流水线内唯一）
	Name() string
}

// SerialOnly 标记非并发安全的扫描器。
// 流水线对实现了该接口且返回 true 的扫描器串行调度，
// 保证同一实例同时至多有一次调用。
type SerialOnly interface {
	SerialOnly() bool
}

// Result 单个扫描器的原始输出
type Result struct {
	// Sanitized 改写后的文本（未改写时等于输入）
	Sanitized string
	// Passed 是否通过本维度检查
	Passed bool
	// RiskScore 风险分，归一化到 [0,1]
	RiskScore float64
}

// Kind 扫描类别：输入、输出或双向
type Kind string

const (
	// KindInput 仅用于请求侧文本
	KindInput Kind = "input"
	// KindOutput 仅用于响应侧文本
	KindOutput Kind = "output"
	// KindBoth 两侧均可用
	KindBoth Kind = "both"
)

// 内置扫描器名称。名称是对外契约：配置键、环境变量覆盖
// 与 X-Failed-Scanners 头均使用这些字符串。
const (
	NameBanSubstrings   = "ban-substrings"
	NamePromptInjection = "prompt-injection"
	NameToxicity        = "toxicity"
	NameSecrets         = "secrets"
	NameCode            = "code"
	NameAnonymise       = "anonymise"
	NameMaliciousURLs   = "malicious-urls"
	NameNoRefusal       = "no-refusal"
)

// ScannerResult 裁定中单个扫描器的条目
type ScannerResult struct {
	Passed           bool    `json:"passed"`
	RiskScore        float64 `json:"risk_score"`
	SanitizedChanged bool    `json:"sanitized_changed"`
	// Error 扫描器自身执行出错时的描述
	Error string `json:"error,omitempty"`
}

// Verdict 一段文本经过一条流水线后的聚合裁定。
// 快速失败模式下 Results 可能少于流水线的扫描器数，
// 缺失条目视为"未评估"而非"通过"。
type Verdict struct {
	Allowed   bool                     `json:"allowed"`
	Sanitized string                   `json:"sanitized"`
	Results   map[string]ScannerResult `json:"results"`
}

// NewVerdict 创建一个放行的空裁定
func NewVerdict(text string) *Verdict {
	return &Verdict{
		Allowed:   true,
		Sanitized: text,
		Results:   make(map[string]ScannerResult),
	}
}

// FailedScanners 返回未通过的扫描器名称，按字典序排序
func (v *Verdict) FailedScanners() []string {
	if v == nil {
		return nil
	}
	failed := make([]string, 0, len(v.Results))
	for name, r := range v.Results {
		if !r.Passed {
			failed = append(failed, name)
		}
	}
	sort.Strings(failed)
	return failed
}

// HighestRisk 返回未通过扫描器中的最高风险分
func (v *Verdict) HighestRisk() float64 {
	if v == nil {
		return 0
	}
	highest := 0.0
	for _, r := range v.Results {
		if !r.Passed && r.RiskScore > highest {
			highest = r.RiskScore
		}
	}
	return highest
}

// Changed 报告流水线是否改写了文本
func (v *Verdict) Changed() bool {
	if v == nil {
		return false
	}
	for _, r := range v.Results {
		if r.SanitizedChanged {
			return true
		}
	}
	return false
}

// clampScore 将风险分收敛到 [0,1]
func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
