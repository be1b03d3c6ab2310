// =============================================================================
// 🔢 用量估算
// =============================================================================
// 上游帧缺少 prompt_eval_count / eval_count 时，用量字段退化为本地估算。
// 首选 tiktoken（cl100k_base），初始化失败时回落到区分 CJK 的字符估算。
// =============================================================================
package dialect

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter 本地 token 计数器，并发安全
type TokenCounter struct {
	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

// NewTokenCounter 创建计数器。tiktoken 编码表在首次计数时惰性加载。
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{}
}

func (c *TokenCounter) init() error {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			c.initErr = err
			return
		}
		c.enc = enc
	})
	return c.initErr
}

// Count 估算文本的 token 数。编码表不可用时走字符估算。
func (c *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	if err := c.init(); err == nil {
		return len(c.enc.Encode(text, nil, nil))
	}
	return estimateTokens(text)
}

// estimateTokens 区分 CJK 的字符估算。
// CJK 约 1.5 字符/token，其余约 4 字符/token。
func estimateTokens(text string) int {
	totalChars := utf8.RuneCountInString(text)
	cjkCount := 0
	for _, r := range text {
		if isCJK(r) {
			cjkCount++
		}
	}
	estimated := int(float64(cjkCount)/1.5 + float64(totalChars-cjkCount)/4.0)
	if estimated == 0 {
		estimated = 1
	}
	return estimated
}

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x20000 && r <= 0x2A6DF) ||
		(r >= 0xF900 && r <= 0xFAFF) ||
		(r >= 0x3000 && r <= 0x303F) ||
		(r >= 0xFF00 && r <= 0xFFEF)
}
