package scanner

import (
	"context"
	"strings"
)

// BanSubstrings 字面子串拒绝表扫描器。
// 大小写不敏感；命中任意一条即不通过，风险分 1.0。
type BanSubstrings struct {
	substrings []string
	lowered    []string
}

// NewBanSubstrings 创建子串扫描器。列表为空时恒通过
func NewBanSubstrings(substrings []string) *BanSubstrings {
	lowered := make([]string, 0, len(substrings))
	kept := make([]string, 0, len(substrings))
	for _, s := range substrings {
		if s == "" {
			continue
		}
		kept = append(kept, s)
		lowered = append(lowered, strings.ToLower(s))
	}
	return &BanSubstrings{substrings: kept, lowered: lowered}
}

// Name 实现 Scanner 接口
func (b *BanSubstrings) Name() string {
	return NameBanSubstrings
}

// Scan 实现 Scanner 接口
func (b *BanSubstrings) Scan(ctx context.Context, text string) (*Result, error) {
	res := &Result{Sanitized: text, Passed: true}
	if len(b.lowered) == 0 || text == "" {
		return res, nil
	}

	haystack := strings.ToLower(text)
	for _, needle := range b.lowered {
		if strings.Contains(haystack, needle) {
			res.Passed = false
			res.RiskScore = 1.0
			return res, nil
		}
	}
	return res, nil
}

// Substrings 返回当前拒绝表
func (b *BanSubstrings) Substrings() []string {
	out := make([]string, len(b.substrings))
	copy(out, b.substrings)
	return out
}
