package scanner

import (
	"context"
	"regexp"
)

// defaultRefusalThreshold 拒答默认阈值
const defaultRefusalThreshold = 0.5

// refusalPattern 拒答特征
type refusalPattern struct {
	pattern *regexp.Regexp
	weight  float64
}

// 拒答特征表。强拒绝句式权重高，模板化开场白权重居中。
var refusalPatterns = []refusalPattern{
	{pattern: regexp.MustCompile(`(?i)\bI\s+(?:cannot|can't|won't|will\s+not)\s+(?:help|assist|provide|do|comply|answer|create|generate|write)\b`), weight: 0.9},
	{pattern: regexp.MustCompile(`(?i)\bI(?:'m|\s+am)\s+(?:unable|not\s+able)\s+to\s+(?:help|assist|provide|do|comply|answer)\b`), weight: 0.9},
	{pattern: regexp.MustCompile(`(?i)\bI(?:'m|\s+am)\s+sorry,?\s+but\s+I\s+(?:cannot|can't|won't)\b`), weight: 0.9},
	{pattern: regexp.MustCompile(`(?i)\bI\s+must\s+(?:decline|refuse)\b`), weight: 0.9},
	{pattern: regexp.MustCompile(`(?i)\bAs\s+an\s+AI(?:\s+(?:language\s+)?model)?,?\s+I\s+(?:cannot|can't|am\s+not\s+able|don't|do\s+not)\b`), weight: 0.8},
	{pattern: regexp.MustCompile(`(?i)\bmy\s+(?:guidelines|programming|principles)\s+(?:prevent|prohibit|don't\s+allow)\b`), weight: 0.8},
	{pattern: regexp.MustCompile(`(?i)\bI\s+(?:don't|do\s+not)\s+feel\s+comfortable\b`), weight: 0.6},
	{pattern: regexp.MustCompile(`(?i)\bagainst\s+my\s+(?:guidelines|programming|policy|policies)\b`), weight: 0.6},
	{pattern: regexp.MustCompile(`我不能(?:帮助|协助|提供|回答|完成|生成)`), weight: 0.9},
	{pattern: regexp.MustCompile(`我无法(?:帮助|协助|提供|回答|完成|生成)`), weight: 0.9},
	{pattern: regexp.MustCompile(`(?:抱歉|对不起)，?我不能`), weight: 0.9},
	{pattern: regexp.MustCompile(`作为(?:一个)?(?:AI|人工智能)(?:语言)?(?:模型|助手)，?我不能`), weight: 0.8},
}

// NoRefusal 拒答探测扫描器。
// 模型输出命中拒绝句式即按权重计分，用于识别被策略打断的回答。
type NoRefusal struct {
	threshold float64
}

// NewNoRefusal 创建拒答扫描器
func NewNoRefusal(threshold float64) *NoRefusal {
	return &NoRefusal{threshold: threshold}
}

// Name 实现 Scanner 接口
func (n *NoRefusal) Name() string {
	return NameNoRefusal
}

// Scan 实现 Scanner 接口
func (n *NoRefusal) Scan(ctx context.Context, text string) (*Result, error) {
	res := &Result{Sanitized: text, Passed: true}
	if text == "" {
		return res, nil
	}

	score := 0.0
	for _, rp := range refusalPatterns {
		if !rp.pattern.MatchString(text) {
			continue
		}
		if rp.weight > score {
			score = rp.weight
		}
	}

	res.RiskScore = score
	res.Passed = score < n.threshold
	return res, nil
}
