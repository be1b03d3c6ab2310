package dialect

import (
	"encoding/json"
	"strings"

	"github.com/BaSui01/guardflow/types"
)

// =============================================================================
// OpenAI 兼容方言线上类型
// =============================================================================

// ChatCompletionRequest /v1/chat/completions 请求体
type ChatCompletionRequest struct {
	Model            string          `json:"model"`
	Messages         []types.Message `json:"messages"`
	Stream           bool            `json:"stream,omitempty"`
	MaxTokens        *int            `json:"max_tokens,omitempty"`
	Temperature      *float64        `json:"temperature,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	TopK             *int            `json:"top_k,omitempty"`
	RepeatPenalty    *float64        `json:"repeat_penalty,omitempty"`
	NumCtx           *int            `json:"num_ctx,omitempty"`
	Seed             *int            `json:"seed,omitempty"`
	Stop             json.RawMessage `json:"stop,omitempty"`
	PresencePenalty  *float64        `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
}

// LatestUserText 返回最后一条 user 消息的文本，没有则为空串
func (r *ChatCompletionRequest) LatestUserText() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == types.RoleUser {
			return r.Messages[i].Text()
		}
	}
	return ""
}

// CompletionRequest /v1/completions 请求体
type CompletionRequest struct {
	Model            string          `json:"model"`
	Prompt           FlexiblePrompt  `json:"prompt"`
	Stream           bool            `json:"stream,omitempty"`
	MaxTokens        *int            `json:"max_tokens,omitempty"`
	Temperature      *float64        `json:"temperature,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	TopK             *int            `json:"top_k,omitempty"`
	RepeatPenalty    *float64        `json:"repeat_penalty,omitempty"`
	NumCtx           *int            `json:"num_ctx,omitempty"`
	Seed             *int            `json:"seed,omitempty"`
	Stop             json.RawMessage `json:"stop,omitempty"`
	PresencePenalty  *float64        `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
}

// FlexiblePrompt 兼容字符串与字符串数组两种形态的 prompt。
// 数组形态按换行拼接。
type FlexiblePrompt struct {
	text string
}

// NewPrompt 构造纯字符串 prompt
func NewPrompt(text string) FlexiblePrompt {
	return FlexiblePrompt{text: text}
}

// Text 返回拼接后的 prompt 文本
func (p FlexiblePrompt) Text() string {
	return p.text
}

// UnmarshalJSON 接受 "a" 或 ["a","b"] 两种形态
func (p *FlexiblePrompt) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		p.text = ""
		return nil
	}

	if trimmed[0] == '[' {
		var parts []string
		if err := json.Unmarshal(data, &parts); err != nil {
			return err
		}
		p.text = strings.Join(parts, "\n")
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	p.text = s
	return nil
}

// MarshalJSON 编码为字符串形态
func (p FlexiblePrompt) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.text)
}

// Usage OpenAI 风格的 token 用量
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletion /v1/chat/completions 非流式响应
type ChatCompletion struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   Usage        `json:"usage"`
	Guard   *GuardInfo   `json:"guard,omitempty"`
}

// ChatChoice 非流式 chat 候选
type ChatChoice struct {
	Index        int           `json:"index"`
	Message      types.Message `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

// ChatCompletionChunk /v1/chat/completions 流式帧
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
	Error   *StreamError  `json:"error,omitempty"`
	Guard   *GuardInfo    `json:"guard,omitempty"`
}

// ChunkChoice 流式 chat 候选
type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// Delta 流式增量
type Delta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// Completion /v1/completions 非流式响应
type Completion struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []CompletionChoice `json:"choices"`
	Usage   Usage              `json:"usage"`
	Guard   *GuardInfo         `json:"guard,omitempty"`
}

// CompletionChoice completion 候选（流式与非流式共用形态）
type CompletionChoice struct {
	Index        int     `json:"index"`
	Text         string  `json:"text"`
	FinishReason *string `json:"finish_reason"`
}

// CompletionChunk /v1/completions 流式帧
type CompletionChunk struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []CompletionChoice `json:"choices"`
	Error   *StreamError       `json:"error,omitempty"`
	Guard   *GuardInfo         `json:"guard,omitempty"`
}

// StreamError 流内错误对象（拦截终帧携带）
type StreamError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// OpenAI 终止原因
const (
	FinishStop          = "stop"
	FinishLength        = "length"
	FinishContentFilter = "content_filter"
)
