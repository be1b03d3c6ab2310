package scanner

import (
	"context"
	"regexp"
	"strings"
)

// defaultToxicityThreshold 毒性默认阈值
const defaultToxicityThreshold = 0.7

// toxicityTier 一个严重度层级：英文走词边界正则，中文走子串表
type toxicityTier struct {
	weight  float64
	english *regexp.Regexp
	chinese []string
}

// 毒性词表按严重度分层。
// 风险分取命中层级的最高权重，每多一个不同层级命中加 0.05，封顶 1.0。
var toxicityTiers = []toxicityTier{
	{
		weight:  0.95,
		english: regexp.MustCompile(`(?i)\b(?:kill\s+(?:you|yourself|him|her|them)|i\s+will\s+(?:kill|hurt|destroy)\s+you|i\s+hope\s+you\s+die|go\s+die|murder\s+you|beat\s+you\s+up)\b`),
		chinese: []string{"去死", "杀了你", "弄死你", "砍死", "打死你"},
	},
	{
		weight:  0.7,
		english: regexp.MustCompile(`(?i)\b(?:idiot|stupid|moron|imbecile|worthless|pathetic|loser|dumbass|shut\s+up|i\s+hate\s+you|disgusting)\b`),
		chinese: []string{"白痴", "蠢货", "废物", "垃圾东西", "滚开", "恶心的家伙"},
	},
	{
		weight:  0.4,
		english: regexp.MustCompile(`(?i)\b(?:damn|crap|jerk|sucks?|dumb)\b`),
		chinese: []string{"讨厌鬼", "笨蛋"},
	},
}

// Toxicity 毒性语言扫描器。多语言分层词表启发式打分。
type Toxicity struct {
	threshold float64
}

// NewToxicity 创建毒性扫描器
func NewToxicity(threshold float64) *Toxicity {
	return &Toxicity{threshold: threshold}
}

// Name 实现 Scanner 接口
func (t *Toxicity) Name() string {
	return NameToxicity
}

// Scan 实现 Scanner 接口
func (t *Toxicity) Scan(ctx context.Context, text string) (*Result, error) {
	res := &Result{Sanitized: text, Passed: true}
	if text == "" {
		return res, nil
	}

	score := t.Score(text)
	res.RiskScore = score
	res.Passed = score < t.threshold
	return res, nil
}

// Score 计算文本的毒性分
func (t *Toxicity) Score(text string) float64 {
	highest := 0.0
	hits := 0

	for _, tier := range toxicityTiers {
		matched := false
		if tier.english.MatchString(text) {
			matched = true
		}
		if !matched {
			for _, term := range tier.chinese {
				if strings.Contains(text, term) {
					matched = true
					break
				}
			}
		}
		if matched {
			hits++
			if tier.weight > highest {
				highest = tier.weight
			}
		}
	}

	if hits == 0 {
		return 0
	}
	return clampScore(highest + float64(hits-1)*0.05)
}
