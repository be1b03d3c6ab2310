package scanner

import (
	"context"
	"regexp"
)

// piiPattern PII 特征。顺序即替换顺序：
// 长数字串（身份证）先于短数字串（银行卡），避免被泛化模式截断。
type piiPattern struct {
	kind    string
	pattern *regexp.Regexp
}

var piiPatterns = []piiPattern{
	{kind: "email", pattern: regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)},
	{kind: "id_card", pattern: regexp.MustCompile(`\b[1-9]\d{5}(?:19|20)\d{2}(?:0[1-9]|1[0-2])(?:0[1-9]|[12]\d|3[01])\d{3}[\dXx]\b`)},
	{kind: "credit_card", pattern: regexp.MustCompile(`\b(?:\d{4}[- ]){3}\d{4}\b`)},
	{kind: "bank_card", pattern: regexp.MustCompile(`\b\d{16,19}\b`)},
	{kind: "ssn", pattern: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{kind: "phone", pattern: regexp.MustCompile(`\b1[3-9]\d{9}\b`)},
	{kind: "intl_phone", pattern: regexp.MustCompile(`\+\d{7,15}\b`)},
	{kind: "ip_address", pattern: regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
}

// Anonymise PII 匿名化扫描器。
// 将命中的个人信息改写为不透明令牌并登记到保管库，
// 改写成功即通过；风险分仅作观测，不参与拦截。
type Anonymise struct {
	vault *Vault
}

// NewAnonymise 创建匿名化扫描器
func NewAnonymise(vault *Vault) *Anonymise {
	if vault == nil {
		vault = NewVault()
	}
	return &Anonymise{vault: vault}
}

// Name 实现 Scanner 接口
func (a *Anonymise) Name() string {
	return NameAnonymise
}

// Scan 实现 Scanner 接口
func (a *Anonymise) Scan(ctx context.Context, text string) (*Result, error) {
	res := &Result{Sanitized: text, Passed: true}
	if text == "" {
		return res, nil
	}

	hits := 0
	sanitized := text
	for _, pp := range piiPatterns {
		sanitized = pp.pattern.ReplaceAllStringFunc(sanitized, func(match string) string {
			hits++
			return a.vault.Store(pp.kind, match)
		})
	}

	if hits > 0 {
		res.Sanitized = sanitized
		res.RiskScore = clampScore(0.2 + 0.1*float64(hits-1))
	}
	return res, nil
}

// Vault 返回底层保管库
func (a *Anonymise) Vault() *Vault {
	return a.vault
}
