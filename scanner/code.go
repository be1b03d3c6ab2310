package scanner

import (
	"context"
	"regexp"
	"strings"
)

// codeSignatures 各语言的源码特征。键为语言名（小写）。
var codeSignatures = map[string][]*regexp.Regexp{
	"python": {
		regexp.MustCompile(`(?m)^\s*def\s+\w+\s*\(.*\)\s*:`),
		regexp.MustCompile(`(?m)^\s*from\s+[\w.]+\s+import\s+`),
		regexp.MustCompile(`(?m)^\s*import\s+[\w.]+\s*$`),
		regexp.MustCompile(`(?m)^\s*class\s+\w+(\(.*\))?\s*:`),
	},
	"go": {
		regexp.MustCompile(`(?m)^\s*func\s+(\(\w+\s+\*?\w+\)\s+)?\w+\s*\(`),
		regexp.MustCompile(`(?m)^package\s+\w+\s*$`),
		regexp.MustCompile(`(?m)^\s*import\s+\(`),
	},
	"javascript": {
		regexp.MustCompile(`(?m)\bfunction\s+\w+\s*\(`),
		regexp.MustCompile(`=>\s*\{`),
		regexp.MustCompile(`(?m)^\s*(?:const|let|var)\s+\w+\s*=`),
		regexp.MustCompile(`\brequire\s*\(\s*['"]`),
	},
	"rust": {
		regexp.MustCompile(`(?m)^\s*fn\s+\w+\s*(<.*>)?\s*\(`),
		regexp.MustCompile(`\blet\s+mut\s+\w+`),
		regexp.MustCompile(`(?m)^\s*use\s+[\w:]+;`),
	},
	"java": {
		regexp.MustCompile(`\bpublic\s+(?:static\s+)?(?:final\s+)?(?:class|void|int|String)\b`),
		regexp.MustCompile(`System\.out\.println`),
	},
	"c": {
		regexp.MustCompile(`(?m)^\s*#include\s*[<"][\w./]+[>"]`),
		regexp.MustCompile(`\bint\s+main\s*\(`),
	},
	"shell": {
		regexp.MustCompile(`(?m)^#!/bin/(?:ba|z)?sh`),
		regexp.MustCompile(`(?m)^\s*(?:if|while)\s+\[\[?\s`),
	},
	"sql": {
		regexp.MustCompile(`(?i)\bselect\s+.+?\s+from\s+\w+`),
		regexp.MustCompile(`(?i)\b(?:insert\s+into|drop\s+table|create\s+table)\s+\w+`),
	},
}

// fencedBlock 带语言标注的围栏代码块
var fencedBlock = regexp.MustCompile("(?m)^```\\s*([a-zA-Z+#]+)\\s*$")

// Code 源码探测扫描器。
// 按配置的语言集匹配源码特征；blocking 为 false 时只上报分数不拦截。
type Code struct {
	languages map[string]bool
	blocking  bool
}

// NewCode 创建源码扫描器。languages 为空表示检测全部内置语言
func NewCode(languages []string, blocking bool) *Code {
	langs := make(map[string]bool, len(languages))
	for _, l := range languages {
		langs[strings.ToLower(strings.TrimSpace(l))] = true
	}
	return &Code{languages: langs, blocking: blocking}
}

// Name 实现 Scanner 接口
func (c *Code) Name() string {
	return NameCode
}

// Scan 实现 Scanner 接口
func (c *Code) Scan(ctx context.Context, text string) (*Result, error) {
	res := &Result{Sanitized: text, Passed: true}
	if text == "" {
		return res, nil
	}

	score := c.score(text)
	res.RiskScore = score
	if c.blocking && score >= 0.5 {
		res.Passed = false
	}
	return res, nil
}

func (c *Code) enabled(lang string) bool {
	if len(c.languages) == 0 {
		return true
	}
	return c.languages[lang]
}

// score 计算源码特征分：围栏块带目标语言标注记满分，
// 单个特征 0.6，两个及以上 0.9。
func (c *Code) score(text string) float64 {
	for _, m := range fencedBlock.FindAllStringSubmatch(text, -1) {
		if c.enabled(strings.ToLower(m[1])) {
			return 1.0
		}
	}

	hits := 0
	for lang, sigs := range codeSignatures {
		if !c.enabled(lang) {
			continue
		}
		for _, sig := range sigs {
			if sig.MatchString(text) {
				hits++
			}
		}
	}

	switch {
	case hits == 0:
		return 0
	case hits == 1:
		return 0.6
	default:
		return 0.9
	}
}
