package scanner

import (
	"context"
	"regexp"
)

// defaultInjectionThreshold 提示注入默认阈值
const defaultInjectionThreshold = 0.5

// 风险权重，按模式严重度取值
const (
	weightCritical = 1.0
	weightHigh     = 0.85
	weightMedium   = 0.6
	weightLow      = 0.3
)

// injectionPattern 注入特征
type injectionPattern struct {
	pattern     *regexp.Regexp
	description string
	weight      float64
}

// 注入特征表，覆盖英文、中文与通用标记三类
var injectionPatterns = []injectionPattern{
	// 英文指令覆盖
	{
		pattern:     regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above|earlier)\s+(instructions?|prompts?|rules?|guidelines?)`),
		description: "ignore previous instructions",
		weight:      weightCritical,
	},
	{
		pattern:     regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above|earlier|the\s+above)\s*(instructions?|prompts?|rules?|guidelines?)?`),
		description: "disregard instructions",
		weight:      weightCritical,
	},
	{
		pattern:     regexp.MustCompile(`(?i)forget\s+(everything|all|what)\s*(you\s+)?(know|learned|were\s+told)?`),
		description: "forget context",
		weight:      weightCritical,
	},
	{
		pattern:     regexp.MustCompile(`(?i)(new|different|updated|override)\s+instructions?`),
		description: "inject new instructions",
		weight:      weightHigh,
	},
	// 英文角色操纵
	{
		pattern:     regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|the)\b`),
		description: "role override",
		weight:      weightHigh,
	},
	{
		pattern:     regexp.MustCompile(`(?i)pretend\s+(to\s+be|you\s+are)\b`),
		description: "pretend role",
		weight:      weightMedium,
	},
	// 越狱
	{
		pattern:     regexp.MustCompile(`(?i)do\s+anything\s+now`),
		description: "DAN jailbreak",
		weight:      weightCritical,
	},
	{
		pattern:     regexp.MustCompile(`(?i)jailbreak`),
		description: "explicit jailbreak",
		weight:      weightCritical,
	},
	// 角色标记与分隔符注入
	{
		pattern:     regexp.MustCompile(`(?im)^\s*system\s*:\s*`),
		description: "system role marker",
		weight:      weightCritical,
	},
	{
		pattern:     regexp.MustCompile(`(?im)^\s*assistant\s*:\s*`),
		description: "assistant role marker",
		weight:      weightHigh,
	},
	{
		pattern:     regexp.MustCompile(`(?i)<\s*system\s*>`),
		description: "system tag",
		weight:      weightCritical,
	},
	{
		pattern:     regexp.MustCompile(`(?i)\[\s*INST\s*\]`),
		description: "instruction tag",
		weight:      weightHigh,
	},
	{
		pattern:     regexp.MustCompile(`(?i)---+\s*(system|instructions?|rules?)\s*---+`),
		description: "delimiter escape",
		weight:      weightHigh,
	},
	{
		pattern:     regexp.MustCompile(`(?i)===+\s*(system|instructions?|rules?)\s*===+`),
		description: "delimiter escape",
		weight:      weightHigh,
	},
	{
		pattern:     regexp.MustCompile("(?i)```\\s*(system|instructions)"),
		description: "code block escape",
		weight:      weightHigh,
	},
	// 中文指令覆盖
	{
		pattern:     regexp.MustCompile(`忽略(之前|上面|以上|先前|前面)(的)?(指令|指示|规则|提示|要求)`),
		description: "ignore previous instructions (zh)",
		weight:      weightCritical,
	},
	{
		pattern:     regexp.MustCompile(`忘(记|掉)(之前|上面|以上|所有|一切)(的)?(内容|指令|指示|规则)?`),
		description: "forget context (zh)",
		weight:      weightCritical,
	},
	{
		pattern:     regexp.MustCompile(`不要(遵守|遵循|听从)(之前|上面|以上|任何)(的)?(指令|指示|规则)?`),
		description: "disobey instructions (zh)",
		weight:      weightCritical,
	},
	// 中文角色操纵
	{
		pattern:     regexp.MustCompile(`你现在是(一个|一名)`),
		description: "role override (zh)",
		weight:      weightHigh,
	},
	{
		pattern:     regexp.MustCompile(`从现在开始(你是|你要|你将)`),
		description: "behavior override (zh)",
		weight:      weightHigh,
	},
	{
		pattern:     regexp.MustCompile(`(假装|扮演)你是`),
		description: "pretend role (zh)",
		weight:      weightMedium,
	},
}

// InjectionMatch 单次注入命中
type InjectionMatch struct {
	Description string  `json:"description"`
	Weight      float64 `json:"weight"`
	Position    int     `json:"position"`
	MatchedText string  `json:"matched_text"`
}

// PromptInjection 提示注入扫描器。
// 基于多语言特征库打分，风险分取命中模式的最高权重。
type PromptInjection struct {
	threshold float64
}

// NewPromptInjection 创建注入扫描器
func NewPromptInjection(threshold float64) *PromptInjection {
	return &PromptInjection{threshold: threshold}
}

// Name 实现 Scanner 接口
func (p *PromptInjection) Name() string {
	return NamePromptInjection
}

// Scan 实现 Scanner 接口
func (p *PromptInjection) Scan(ctx context.Context, text string) (*Result, error) {
	res := &Result{Sanitized: text, Passed: true}
	if text == "" {
		return res, nil
	}

	score := 0.0
	for _, ip := range injectionPatterns {
		if !ip.pattern.MatchString(text) {
			continue
		}
		if ip.weight > score {
			score = ip.weight
		}
		if score >= 1.0 {
			break
		}
	}

	res.RiskScore = score
	res.Passed = score < p.threshold
	return res, nil
}

// Detect 返回全部注入命中明细，供诊断与测试使用
func (p *PromptInjection) Detect(text string) []InjectionMatch {
	var matches []InjectionMatch
	for _, ip := range injectionPatterns {
		locs := ip.pattern.FindAllStringIndex(text, -1)
		for _, loc := range locs {
			matches = append(matches, InjectionMatch{
				Description: ip.description,
				Weight:      ip.weight,
				Position:    loc[0],
				MatchedText: text[loc[0]:loc[1]],
			})
		}
	}
	return matches
}
