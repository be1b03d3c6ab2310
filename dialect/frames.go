// =============================================================================
// 📡 线上帧格式
// =============================================================================
// 原生方言：换行分隔 JSON（NDJSON），终帧 done:true。
// OpenAI 方言：SSE，data: <json>\n\n 帧，终结哨兵 data: [DONE]\n\n。
// 两种拦截终帧在这里统一构造，保证所有出口的线上形态一致。
// =============================================================================
package dialect

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/BaSui01/guardflow/internal/pool"
	"github.com/BaSui01/guardflow/types"
)

// frameBuffers 逐帧序列化缓冲，NDJSON 与 SSE 共用
var frameBuffers = pool.NewBufferPool(4096)

// DoneReasonGuardBlocked 拦截终帧的原生 done_reason 取值
const DoneReasonGuardBlocked = "guard_blocked"

// ErrTypeContentPolicy 拦截错误对象的 type 取值
const ErrTypeContentPolicy = "content_policy_violation"

// GuardInfo 拦截元数据，随拦截响应返回给客户端。
// 风险分以百分比呈现。
type GuardInfo struct {
	Blocked        bool               `json:"blocked"`
	BlockType      string             `json:"block_type"`
	FailedScanners []string           `json:"failed_scanners"`
	RiskPercent    map[string]float64 `json:"risk_percent,omitempty"`
	Language       string             `json:"language,omitempty"`
}

// =============================================================================
// NDJSON（原生方言）
// =============================================================================

// NDJSONWriter 原生流式响应写入器
type NDJSONWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

// NewNDJSONWriter 包装响应写入器。首帧写入前设置内容类型。
func NewNDJSONWriter(w http.ResponseWriter) *NDJSONWriter {
	flusher, _ := w.(http.Flusher)
	return &NDJSONWriter{w: w, flusher: flusher}
}

func (n *NDJSONWriter) start() {
	if !n.started {
		n.w.Header().Set("Content-Type", "application/x-ndjson")
		n.started = true
	}
}

// WriteFrame 序列化并写出一帧，逐帧冲刷
func (n *NDJSONWriter) WriteFrame(v any) error {
	n.start()
	buf := frameBuffers.Get()
	defer frameBuffers.Put(buf)
	// Encode 自带行尾换行，正好是 NDJSON 帧界
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		return err
	}
	return n.flushBytes(buf.Bytes())
}

// WriteRaw 原样写出一行（不含行尾），用于透传未解析帧
func (n *NDJSONWriter) WriteRaw(line []byte) error {
	n.start()
	buf := frameBuffers.Get()
	defer frameBuffers.Put(buf)
	buf.Write(line)
	buf.WriteByte('\n')
	return n.flushBytes(buf.Bytes())
}

func (n *NDJSONWriter) flushBytes(frame []byte) error {
	if _, err := n.w.Write(frame); err != nil {
		return err
	}
	if n.flusher != nil {
		n.flusher.Flush()
	}
	return nil
}

// =============================================================================
// SSE（OpenAI 方言）
// =============================================================================

// SSEWriter OpenAI 流式响应写入器
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

// NewSSEWriter 包装响应写入器
func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	flusher, _ := w.(http.Flusher)
	return &SSEWriter{w: w, flusher: flusher}
}

func (s *SSEWriter) start() {
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		s.started = true
	}
}

// WriteEvent 序列化并写出一个 data 帧，逐帧冲刷
func (s *SSEWriter) WriteEvent(v any) error {
	s.start()
	buf := frameBuffers.Get()
	defer frameBuffers.Put(buf)
	buf.WriteString("data: ")
	// Encode 的行尾换行加一个空行构成 SSE 帧界
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		return err
	}
	buf.WriteByte('\n')
	if _, err := s.w.Write(buf.Bytes()); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// WriteDone 写出终结哨兵 data: [DONE]
func (s *SSEWriter) WriteDone() error {
	s.start()
	if _, err := fmt.Fprint(s.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// =============================================================================
// 终帧构造
// =============================================================================

// NativeGenerateBlockedFrame 原生 generate 流的拦截终帧
func NativeGenerateBlockedFrame(model, message string, guard *GuardInfo) map[string]any {
	return map[string]any{
		"model":       model,
		"created_at":  time.Now().UTC().Format(time.RFC3339Nano),
		"response":    "",
		"done":        true,
		"done_reason": DoneReasonGuardBlocked,
		"error": map[string]any{
			"type":    ErrTypeContentPolicy,
			"message": message,
		},
		"guard": guard,
	}
}

// NativeChatBlockedFrame 原生 chat 流的拦截终帧
func NativeChatBlockedFrame(model, message string, guard *GuardInfo) map[string]any {
	return map[string]any{
		"model":      model,
		"created_at": time.Now().UTC().Format(time.RFC3339Nano),
		"message": map[string]any{
			"role":    string(types.RoleAssistant),
			"content": "",
		},
		"done":        true,
		"done_reason": DoneReasonGuardBlocked,
		"error": map[string]any{
			"type":    ErrTypeContentPolicy,
			"message": message,
		},
		"guard": guard,
	}
}

// NativeErrorFrame 原生流的内部错误终帧（上游中途失败时）
func NativeErrorFrame(model, message string) map[string]any {
	return map[string]any{
		"model":       model,
		"created_at":  time.Now().UTC().Format(time.RFC3339Nano),
		"done":        true,
		"done_reason": "error",
		"error": map[string]any{
			"type":    string(types.ErrServerError),
			"message": message,
		},
	}
}

// ChatRoleChunk OpenAI chat 流的首个角色增量帧
func ChatRoleChunk(id string, created int64, model string) *ChatCompletionChunk {
	return &ChatCompletionChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   model,
		Choices: []ChunkChoice{{Index: 0, Delta: Delta{Role: string(types.RoleAssistant)}}},
	}
}

// ChatContentChunk OpenAI chat 流的内容增量帧
func ChatContentChunk(id string, created int64, model, content string) *ChatCompletionChunk {
	return &ChatCompletionChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   model,
		Choices: []ChunkChoice{{Index: 0, Delta: Delta{Content: content}}},
	}
}

// ChatFinishChunk OpenAI chat 流的终帧。
// finishReason 为 content_filter 时附带错误对象。
func ChatFinishChunk(id string, created int64, model, finishReason, message string) *ChatCompletionChunk {
	chunk := &ChatCompletionChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   model,
		Choices: []ChunkChoice{{Index: 0, Delta: Delta{}, FinishReason: &finishReason}},
	}
	if finishReason == FinishContentFilter {
		chunk.Error = &StreamError{Type: ErrTypeContentPolicy, Message: message}
	}
	return chunk
}

// CompletionTextChunk OpenAI completion 流的文本帧
func CompletionTextChunk(id string, created int64, model, text string) *CompletionChunk {
	return &CompletionChunk{
		ID:      id,
		Object:  "text_completion",
		Created: created,
		Model:   model,
		Choices: []CompletionChoice{{Index: 0, Text: text}},
	}
}

// CompletionFinishChunk OpenAI completion 流的终帧
func CompletionFinishChunk(id string, created int64, model, finishReason, message string) *CompletionChunk {
	chunk := &CompletionChunk{
		ID:      id,
		Object:  "text_completion",
		Created: created,
		Model:   model,
		Choices: []CompletionChoice{{Index: 0, FinishReason: &finishReason}},
	}
	if finishReason == FinishContentFilter {
		chunk.Error = &StreamError{Type: ErrTypeContentPolicy, Message: message}
	}
	return chunk
}

// ExtractFrameText 从一个已解析的上游帧提取增量文本。
// 字段按方言取：原生 generate 取 response，原生 chat 取 message.content，
// OpenAI chat 取 choices[0].delta.content，OpenAI completion 取 choices[0].text。
func ExtractFrameText(frame map[string]any) string {
	if s, ok := frame["response"].(string); ok {
		return s
	}
	if msg, ok := frame["message"].(map[string]any); ok {
		if s, ok := msg["content"].(string); ok {
			return s
		}
	}
	if choices, ok := frame["choices"].([]any); ok && len(choices) > 0 {
		if choice, ok := choices[0].(map[string]any); ok {
			if delta, ok := choice["delta"].(map[string]any); ok {
				if s, ok := delta["content"].(string); ok {
					return s
				}
			}
			if s, ok := choice["text"].(string); ok {
				return s
			}
		}
	}
	return ""
}

// FrameDone 报告一个已解析的上游帧是否为原生终帧
func FrameDone(frame map[string]any) bool {
	done, ok := frame["done"].(bool)
	return ok && done
}
