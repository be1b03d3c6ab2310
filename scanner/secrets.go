package scanner

import (
	"context"
	"regexp"
)

// secretPattern 密钥特征
type secretPattern struct {
	kind    string
	pattern *regexp.Regexp
}

// 密钥特征表。顺序即替换顺序，先特异后泛化，
// 避免泛化模式吞掉更精确的命中。
var secretPatterns = []secretPattern{
	{kind: "aws_access_key", pattern: regexp.MustCompile(`\b(?:AKIA|ASIA|AGPA|AROA)[0-9A-Z]{16}\b`)},
	{kind: "aws_secret_key", pattern: regexp.MustCompile(`(?i)aws[_\-]?secret[_\-]?(?:access[_\-]?)?key['":\s=]+[A-Za-z0-9/+=]{40}`)},
	{kind: "github_token", pattern: regexp.MustCompile(`\b(?:ghp|gho|ghu|ghs|ghr)_[A-Za-z0-9]{36,255}\b`)},
	{kind: "github_pat", pattern: regexp.MustCompile(`\bgithub_pat_[A-Za-z0-9_]{22,255}\b`)},
	{kind: "slack_token", pattern: regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9-]{10,250}\b`)},
	{kind: "openai_key", pattern: regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{20,}\b`)},
	{kind: "google_api_key", pattern: regexp.MustCompile(`\bAIza[0-9A-Za-z_-]{35}\b`)},
	{kind: "private_key", pattern: regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH |PGP )?PRIVATE KEY(?: BLOCK)?-----`)},
	{kind: "jwt", pattern: regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\b`)},
	{kind: "bearer_token", pattern: regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9_\-.~+/]{20,}=*`)},
	{kind: "generic_api_key", pattern: regexp.MustCompile(`(?i)\b(?:api[_\-]?key|apikey|access[_\-]?token|auth[_\-]?token)['":\s=]+[A-Za-z0-9_\-]{16,}`)},
	{kind: "password_assignment", pattern: regexp.MustCompile(`(?i)\bpassword['":\s=]+\S{8,}`)},
}

// Secrets 密钥与令牌探测扫描器。
// 命中时将密钥改写为占位符，但裁定仍为不通过：
// 改写只为防止密钥继续向下游传播，不代表放行。
type Secrets struct{}

// NewSecrets 创建密钥扫描器
func NewSecrets() *Secrets {
	return &Secrets{}
}

// Name 实现 Scanner 接口
func (s *Secrets) Name() string {
	return NameSecrets
}

// Scan 实现 Scanner 接口
func (s *Secrets) Scan(ctx context.Context, text string) (*Result, error) {
	res := &Result{Sanitized: text, Passed: true}
	if text == "" {
		return res, nil
	}

	hits := 0
	sanitized := text
	for _, sp := range secretPatterns {
		if !sp.pattern.MatchString(sanitized) {
			continue
		}
		hits++
		sanitized = sp.pattern.ReplaceAllString(sanitized, "[REDACTED:"+sp.kind+"]")
	}

	if hits > 0 {
		res.Sanitized = sanitized
		res.Passed = false
		res.RiskScore = 1.0
	}
	return res, nil
}
