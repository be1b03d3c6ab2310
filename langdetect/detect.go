// =============================================================================
// 🌐 请求语言检测
// =============================================================================
// 基于 Unicode 区块的轻量语言检测，用于选择本地化错误消息。
// 只需区分支持的语言码，不追求语言学精度；未命中一律回落 en。
// =============================================================================
package langdetect

import "regexp"

// Lang 支持的语言码
type Lang string

const (
	English    Lang = "en"
	Chinese    Lang = "zh"
	Vietnamese Lang = "vi"
	Japanese   Lang = "ja"
	Korean     Lang = "ko"
	Russian    Lang = "ru"
	Arabic     Lang = "ar"
)

// blockPattern 一个 Unicode 区块检测项
type blockPattern struct {
	lang Lang
	re   *regexp.Regexp
}

// 检测顺序即优先级。假名先于汉字：日文文本通常混有汉字，
// 命中假名即可断定为日文；纯汉字文本才判为中文。
var blockPatterns = []blockPattern{
	{Japanese, regexp.MustCompile(`[\x{3040}-\x{30FF}]`)},                 // 平假名 + 片假名
	{Korean, regexp.MustCompile(`[\x{AC00}-\x{D7AF}\x{1100}-\x{11FF}]`)},  // 谚文音节 + 字母
	{Chinese, regexp.MustCompile(`[\x{4E00}-\x{9FFF}\x{3400}-\x{4DBF}]`)}, // 中日韩统一表意文字
	{Russian, regexp.MustCompile(`[\x{0400}-\x{04FF}]`)},                  // 西里尔字母
	{Arabic, regexp.MustCompile(`[\x{0600}-\x{06FF}\x{0750}-\x{077F}]`)},  // 阿拉伯字母
	{Vietnamese, regexp.MustCompile(`[ăâđơưĂÂĐƠƯ\x{1EA0}-\x{1EF9}]`)},     // 越南语专用拉丁扩展
}

// Detect 检测文本语言。对任意输入总是返回支持集合内的语言码，
// 未识别（含空串）返回 English。
func Detect(text string) Lang {
	if text == "" {
		return English
	}
	for _, bp := range blockPatterns {
		if bp.re.MatchString(text) {
			return bp.lang
		}
	}
	return English
}

// Supported 返回全部支持的语言码
func Supported() []Lang {
	return []Lang{English, Chinese, Vietnamese, Japanese, Korean, Russian, Arabic}
}

// IsSupported 判断语言码是否在支持集合内
func IsSupported(lang Lang) bool {
	switch lang {
	case English, Chinese, Vietnamese, Japanese, Korean, Russian, Arabic:
		return true
	}
	return false
}
