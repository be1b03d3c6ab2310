package langdetect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Lang
	}{
		{name: "english plain", text: "How do I bake bread?", want: English},
		{name: "english with digits", text: "list 10 items", want: English},
		{name: "chinese simplified", text: "请介绍一下你自己", want: Chinese},
		{name: "chinese mixed ascii", text: "帮我写一个 Go 函数", want: Chinese},
		{name: "vietnamese diacritics", text: "Bạn có thể giúp tôi không?", want: Vietnamese},
		{name: "japanese hiragana", text: "これはテストです", want: Japanese},
		{name: "japanese kanji with kana", text: "日本語のテキストを書く", want: Japanese},
		{name: "korean hangul", text: "안녕하세요, 반갑습니다", want: Korean},
		{name: "russian cyrillic", text: "Привет, как дела?", want: Russian},
		{name: "arabic", text: "مرحبا كيف حالك", want: Arabic},
		{name: "empty string", text: "", want: English},
		{name: "whitespace only", text: "   \n\t", want: English},
		{name: "emoji only", text: "🚀🔥✨", want: English},
		{name: "french falls back to english", text: "Bonjour, comment allez-vous?", want: English},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.text))
		})
	}
}

// 日文判定优先级：含假名的中日混排文本应判为日文而非中文。
func TestDetect_KanaBeforeHan(t *testing.T) {
	assert.Equal(t, Japanese, Detect("漢字とひらがな"))
	assert.Equal(t, Chinese, Detect("只有汉字没有假名"))
}

func TestIsSupported(t *testing.T) {
	for _, lang := range Supported() {
		assert.True(t, IsSupported(lang), "supported language %q should report true", lang)
	}
	assert.False(t, IsSupported("fr"))
	assert.False(t, IsSupported(""))
}

// TestProperty_Detect_Totality verifies that detection is total: any input,
// including arbitrary unicode garbage, resolves to a supported language code.
func TestProperty_Detect_Totality(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		text := rapid.String().Draw(rt, "text")
		lang := Detect(text)
		assert.True(t, IsSupported(lang), "Detect must return a supported code, got %q for %q", lang, text)
	})
}

// TestProperty_Detect_ASCIIFallsBackToEnglish verifies that pure ASCII input
// never maps to a non-English language.
func TestProperty_Detect_ASCIIFallsBackToEnglish(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		text := rapid.StringMatching(`[a-zA-Z0-9 .,!?]{0,64}`).Draw(rt, "text")
		assert.Equal(t, English, Detect(text))
	})
}
