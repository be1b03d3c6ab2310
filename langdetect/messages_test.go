package langdetect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessage_AllKindsAllLanguages(t *testing.T) {
	kinds := []MessageKind{
		MsgServerBusy,
		MsgTimeout,
		MsgInputBlocked,
		MsgOutputBlocked,
		MsgUpstreamError,
	}

	for _, lang := range Supported() {
		for _, kind := range kinds {
			msg := Message(lang, kind)
			assert.NotEmpty(t, msg, "language %q kind %q must have a message", lang, kind)
		}
	}
}

func TestMessage_FallbackToEnglish(t *testing.T) {
	// 不支持的语言码回退到英文文案。
	assert.Equal(t, Message(English, MsgServerBusy), Message("fr", MsgServerBusy))
	assert.Equal(t, Message(English, MsgTimeout), Message("", MsgTimeout))
}

func TestMessage_UnknownKind(t *testing.T) {
	assert.Empty(t, Message(English, MessageKind("no_such_kind")))
}

func TestMessage_LocalizedDistinct(t *testing.T) {
	// 抽查：中文、俄文文案与英文不同，证明本地化表真实生效。
	en := Message(English, MsgInputBlocked)
	assert.NotEqual(t, en, Message(Chinese, MsgInputBlocked))
	assert.NotEqual(t, en, Message(Russian, MsgInputBlocked))
}
