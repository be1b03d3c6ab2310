package upstream

import (
	"encoding/json"
	"time"

	"github.com/BaSui01/guardflow/types"
)

// =============================================================================
// 原生方言线上类型
// =============================================================================
// 与后端 /api/generate、/api/chat 的 JSON 形态一一对应。
// 不参与扫描的字段以 RawMessage 原样携带，转发不改写。
// =============================================================================

// GenerateRequest /api/generate 请求体
type GenerateRequest struct {
	Model     string          `json:"model"`
	Prompt    string          `json:"prompt"`
	Suffix    string          `json:"suffix,omitempty"`
	System    string          `json:"system,omitempty"`
	Template  string          `json:"template,omitempty"`
	Context   json.RawMessage `json:"context,omitempty"`
	Stream    *bool           `json:"stream,omitempty"`
	Raw       bool            `json:"raw,omitempty"`
	Format    json.RawMessage `json:"format,omitempty"`
	Images    json.RawMessage `json:"images,omitempty"`
	Options   map[string]any  `json:"options,omitempty"`
	KeepAlive json.RawMessage `json:"keep_alive,omitempty"`
}

// Streaming 客户端是否要求流式响应。原生方言缺省即流式。
func (r *GenerateRequest) Streaming() bool {
	return r.Stream == nil || *r.Stream
}

// ChatRequest /api/chat 请求体
type ChatRequest struct {
	Model     string          `json:"model"`
	Messages  []types.Message `json:"messages"`
	Stream    *bool           `json:"stream,omitempty"`
	Format    json.RawMessage `json:"format,omitempty"`
	Options   map[string]any  `json:"options,omitempty"`
	Tools     json.RawMessage `json:"tools,omitempty"`
	KeepAlive json.RawMessage `json:"keep_alive,omitempty"`
}

// Streaming 客户端是否要求流式响应。原生方言缺省即流式。
func (r *ChatRequest) Streaming() bool {
	return r.Stream == nil || *r.Stream
}

// LatestUserText 返回最后一条 user 消息的文本，没有则为空串
func (r *ChatRequest) LatestUserText() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == types.RoleUser {
			return r.Messages[i].Text()
		}
	}
	return ""
}

// GenerateResponse /api/generate 响应体（完整或流式帧）
type GenerateResponse struct {
	Model              string          `json:"model"`
	CreatedAt          time.Time       `json:"created_at"`
	Response           string          `json:"response"`
	Done               bool            `json:"done"`
	DoneReason         string          `json:"done_reason,omitempty"`
	Context            json.RawMessage `json:"context,omitempty"`
	TotalDuration      int64           `json:"total_duration,omitempty"`
	LoadDuration       int64           `json:"load_duration,omitempty"`
	PromptEvalCount    int             `json:"prompt_eval_count,omitempty"`
	PromptEvalDuration int64           `json:"prompt_eval_duration,omitempty"`
	EvalCount          int             `json:"eval_count,omitempty"`
	EvalDuration       int64           `json:"eval_duration,omitempty"`
}

// ChatResponse /api/chat 响应体（完整或流式帧）
type ChatResponse struct {
	Model              string        `json:"model"`
	CreatedAt          time.Time     `json:"created_at"`
	Message            types.Message `json:"message"`
	Done               bool          `json:"done"`
	DoneReason         string        `json:"done_reason,omitempty"`
	TotalDuration      int64         `json:"total_duration,omitempty"`
	LoadDuration       int64         `json:"load_duration,omitempty"`
	PromptEvalCount    int           `json:"prompt_eval_count,omitempty"`
	PromptEvalDuration int64         `json:"prompt_eval_duration,omitempty"`
	EvalCount          int           `json:"eval_count,omitempty"`
	EvalDuration       int64         `json:"eval_duration,omitempty"`
}
