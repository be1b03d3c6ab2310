// Package types provides core wire types used across the guardflow proxy.
// This package has ZERO dependencies on other guardflow packages to avoid circular imports.
// All other packages should import types from here.
package types

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Role represents the role of a message participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message 对话消息。代理对消息做最小解码：扫描只需要 role 和文本内容，
// 其余字段（图片、工具调用等）原样透传给后端，不做语义解释。
type Message struct {
	Role      Role            `json:"role"`
	Content   FlexibleContent `json:"content,omitempty"`
	Name      string          `json:"name,omitempty"`
	Images    json.RawMessage `json:"images,omitempty"`
	ToolCalls json.RawMessage `json:"tool_calls,omitempty"`
}

// Text 返回消息的纯文本内容。
func (m Message) Text() string {
	return m.Content.Text()
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: FlexibleContent{text: content}}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: FlexibleContent{text: content}}
}

// FlexibleContent 兼容两种线上形态的消息内容：
//
//   - 纯字符串："content": "hello"
//   - OpenAI 分段数组："content": [{"type":"text","text":"hello"}, ...]
//
// 解码时保留原始字节，编码时原样回放，保证转发不改写客户端载荷；
// 扫描器只消费拼接后的文本段。
type FlexibleContent struct {
	raw  json.RawMessage
	text string
}

// contentPart OpenAI 内容分段中的文本部分。
type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewContent 构造纯字符串内容。
func NewContent(text string) FlexibleContent {
	return FlexibleContent{text: text}
}

// Text 返回拼接后的纯文本。
func (c FlexibleContent) Text() string {
	return c.text
}

// IsEmpty 内容是否为空（无原始字节且无文本）。
func (c FlexibleContent) IsEmpty() bool {
	return len(c.raw) == 0 && c.text == ""
}

// UnmarshalJSON 接受字符串或分段数组两种形态。
func (c *FlexibleContent) UnmarshalJSON(data []byte) error {
	c.raw = append(c.raw[:0], data...)

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		c.text = ""
		return nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		c.text = s
		return nil
	}

	if trimmed[0] == '[' {
		var parts []contentPart
		if err := json.Unmarshal(trimmed, &parts); err != nil {
			return err
		}
		var sb strings.Builder
		for _, p := range parts {
			if p.Type == "" || p.Type == "text" {
				sb.WriteString(p.Text)
			}
		}
		c.text = sb.String()
		return nil
	}

	// 其他形态（对象等）：不提取文本，原样透传
	c.text = ""
	return nil
}

// MarshalJSON 优先回放原始字节；本地构造的内容编码为字符串。
func (c FlexibleContent) MarshalJSON() ([]byte, error) {
	if len(c.raw) > 0 {
		return c.raw, nil
	}
	return json.Marshal(c.text)
}
