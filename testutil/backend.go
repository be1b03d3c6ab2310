// =============================================================================
// 🎭 假推理后端
// =============================================================================
// 以 httptest.Server 模拟 Ollama 兼容后端：/api/generate 与 /api/chat
// 支持非流式 JSON 与 NDJSON 流式两种形态，另带 /api/version 供探活。
// 所有字段在发起请求前设置；请求捕获与命中计数并发安全。
// =============================================================================
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/guardflow/types"
	"github.com/BaSui01/guardflow/upstream"
)

// FakeBackend 可编程的假推理后端
type FakeBackend struct {
	// GenerateText 非流式 /api/generate 的回复文本
	GenerateText string
	// ChatText 非流式 /api/chat 的回复文本
	ChatText string
	// StreamWords 流式响应的逐帧文本；为空时退化为单帧 GenerateText/ChatText
	StreamWords []string
	// Delay 每次响应前的人工延迟，用于超时与排队测试
	Delay time.Duration
	// FailStatus 非零时所有请求直接返回该状态码
	FailStatus int

	server *httptest.Server

	mu               sync.Mutex
	generateRequests []upstream.GenerateRequest
	chatRequests     []upstream.ChatRequest
}

// NewFakeBackend 启动假后端并注册 Cleanup
func NewFakeBackend(t *testing.T) *FakeBackend {
	t.Helper()
	b := &FakeBackend{
		GenerateText: "ok",
		ChatText:     "ok",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/generate", b.handleGenerate)
	mux.HandleFunc("/api/chat", b.handleChat)
	mux.HandleFunc("/api/version", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"version": "0.0.0-test"})
	})

	b.server = httptest.NewServer(mux)
	t.Cleanup(b.server.Close)
	return b
}

// URL 返回后端基址
func (b *FakeBackend) URL() string {
	return b.server.URL
}

// Close 提前关闭后端（探活失败场景）
func (b *FakeBackend) Close() {
	b.server.Close()
}

// GenerateRequests 返回捕获的 /api/generate 请求
func (b *FakeBackend) GenerateRequests() []upstream.GenerateRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]upstream.GenerateRequest, len(b.generateRequests))
	copy(out, b.generateRequests)
	return out
}

// ChatRequests 返回捕获的 /api/chat 请求
func (b *FakeBackend) ChatRequests() []upstream.ChatRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]upstream.ChatRequest, len(b.chatRequests))
	copy(out, b.chatRequests)
	return out
}

// Hits 返回两个受护端点的总命中次数
func (b *FakeBackend) Hits() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.generateRequests) + len(b.chatRequests)
}

func (b *FakeBackend) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req upstream.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	b.mu.Lock()
	b.generateRequests = append(b.generateRequests, req)
	b.mu.Unlock()

	if b.interrupted(w) {
		return
	}

	if streaming(req.Stream) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		enc := json.NewEncoder(w)
		for _, word := range b.streamTexts(b.GenerateText) {
			enc.Encode(upstream.GenerateResponse{Model: req.Model, Response: word})
			flush(w)
		}
		enc.Encode(upstream.GenerateResponse{
			Model: req.Model, Done: true, DoneReason: "stop",
			PromptEvalCount: 2, EvalCount: 1,
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(upstream.GenerateResponse{
		Model: req.Model, Response: b.GenerateText, Done: true, DoneReason: "stop",
		PromptEvalCount: 2, EvalCount: 1,
	})
}

func (b *FakeBackend) handleChat(w http.ResponseWriter, r *http.Request) {
	var req upstream.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	b.mu.Lock()
	b.chatRequests = append(b.chatRequests, req)
	b.mu.Unlock()

	if b.interrupted(w) {
		return
	}

	if streaming(req.Stream) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		enc := json.NewEncoder(w)
		for _, word := range b.streamTexts(b.ChatText) {
			enc.Encode(upstream.ChatResponse{Model: req.Model, Message: types.NewAssistantMessage(word)})
			flush(w)
		}
		enc.Encode(upstream.ChatResponse{
			Model: req.Model, Message: types.NewAssistantMessage(""),
			Done: true, DoneReason: "stop", PromptEvalCount: 2, EvalCount: 1,
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(upstream.ChatResponse{
		Model: req.Model, Message: types.NewAssistantMessage(b.ChatText),
		Done: true, DoneReason: "stop", PromptEvalCount: 2, EvalCount: 1,
	})
}

// interrupted 处理延迟与故障注入，返回 true 表示请求已终结
func (b *FakeBackend) interrupted(w http.ResponseWriter) bool {
	if b.Delay > 0 {
		time.Sleep(b.Delay)
	}
	if b.FailStatus != 0 {
		http.Error(w, `{"error":"injected failure"}`, b.FailStatus)
		return true
	}
	return false
}

func (b *FakeBackend) streamTexts(fallback string) []string {
	if len(b.StreamWords) > 0 {
		return b.StreamWords
	}
	return []string{fallback}
}

// streaming Ollama 语义：stream 缺省为 true
func streaming(s *bool) bool {
	return s == nil || *s
}

func flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
