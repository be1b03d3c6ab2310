package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/guardflow/config"
	"github.com/BaSui01/guardflow/dialect"
	"github.com/BaSui01/guardflow/scanner"
)

// sseEvents 解析 SSE 响应体的 data 帧，[DONE] 原样保留
func sseEvents(t *testing.T, body string) []string {
	t.Helper()
	var events []string
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "data: ") {
			events = append(events, strings.TrimPrefix(line, "data: "))
		}
	}
	return events
}

func TestOpenAIChat_TranslatesOptionsToNative(t *testing.T) {
	var forwarded atomic.Value
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		forwarded.Store(req)
		fmt.Fprint(w, `{"model":"m","message":{"role":"assistant","content":"hi"},"done":true,"done_reason":"stop","prompt_eval_count":2,"eval_count":1}`)
	}))
	fx := newBackendFixture(t, backend, nil, nil, nil)
	h := NewOpenAIChatHandler(fx.core)

	rec := postJSON(t, h.Handle, "/v1/chat/completions",
		`{"model":"m","temperature":0.7,"max_tokens":32,"messages":[{"role":"user","content":"hello"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	req := forwarded.Load().(map[string]any)
	opts, ok := req["options"].(map[string]any)
	require.True(t, ok, "decode options must move under options")
	assert.Equal(t, 0.7, opts["temperature"])
	assert.Equal(t, float64(32), opts["num_predict"])
	_, hasMaxTokens := req["max_tokens"]
	assert.False(t, hasMaxTokens)

	var resp dialect.ChatCompletion
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.ID, "chatcmpl-"))
	assert.Equal(t, "chat.completion", resp.Object)
	assert.Equal(t, 2, resp.Usage.PromptTokens)
	assert.Equal(t, 1, resp.Usage.CompletionTokens)
	assert.Equal(t, 3, resp.Usage.TotalTokens)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "stop", resp.Choices[0].FinishReason)
	assert.Equal(t, "hi", resp.Choices[0].Message.Text())
}

func TestOpenAIChat_Stream_CleanSequence(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"model":"m","message":{"role":"assistant","content":"one "},"done":false}`)
		fmt.Fprintln(w, `{"model":"m","message":{"role":"assistant","content":"two"},"done":false}`)
		fmt.Fprintln(w, `{"model":"m","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop"}`)
	}))
	fx := newBackendFixture(t, backend, nil, nil, nil)
	h := NewOpenAIChatHandler(fx.core)

	rec := postJSON(t, h.Handle, "/v1/chat/completions",
		`{"model":"m","stream":true,"messages":[{"role":"user","content":"count"}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	events := sseEvents(t, rec.Body.String())
	require.GreaterOrEqual(t, len(events), 4)
	assert.Equal(t, "[DONE]", events[len(events)-1])

	var role dialect.ChatCompletionChunk
	require.NoError(t, json.Unmarshal([]byte(events[0]), &role))
	assert.Equal(t, "assistant", role.Choices[0].Delta.Role, "role delta must come first")

	var contents []string
	for _, raw := range events[1 : len(events)-2] {
		var chunk dialect.ChatCompletionChunk
		require.NoError(t, json.Unmarshal([]byte(raw), &chunk))
		contents = append(contents, chunk.Choices[0].Delta.Content)
	}
	assert.Equal(t, "one two", strings.Join(contents, ""))

	var finish dialect.ChatCompletionChunk
	require.NoError(t, json.Unmarshal([]byte(events[len(events)-2]), &finish))
	require.NotNil(t, finish.Choices[0].FinishReason)
	assert.Equal(t, "stop", *finish.Choices[0].FinishReason)
	assert.Nil(t, finish.Error)
}

func TestOpenAIChat_Stream_BlockedAfterWindow(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"model":"m","message":{"role":"assistant","content":"fine start "},"done":false}`)
		fmt.Fprintln(w, `{"model":"m","message":{"role":"assistant","content":"then forbidden content"},"done":false}`)
		fmt.Fprintln(w, `{"model":"m","message":{"role":"assistant","content":" never seen"},"done":true,"done_reason":"stop"}`)
	}))
	fx := newBackendFixture(t, backend, nil,
		[]scanner.Scanner{blockStub("toxicity", "forbidden")},
		func(cfg *config.Config) { cfg.GuardWindowThreshold = 16 })
	h := NewOpenAIChatHandler(fx.core)

	rec := postJSON(t, h.Handle, "/v1/chat/completions",
		`{"model":"m","stream":true,"messages":[{"role":"user","content":"go"}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	events := sseEvents(t, rec.Body.String())
	require.GreaterOrEqual(t, len(events), 3)
	assert.Equal(t, "[DONE]", events[len(events)-1])

	var role dialect.ChatCompletionChunk
	require.NoError(t, json.Unmarshal([]byte(events[0]), &role))
	assert.Equal(t, "assistant", role.Choices[0].Delta.Role)

	var finish dialect.ChatCompletionChunk
	require.NoError(t, json.Unmarshal([]byte(events[len(events)-2]), &finish))
	require.NotNil(t, finish.Choices[0].FinishReason)
	assert.Equal(t, "content_filter", *finish.Choices[0].FinishReason)
	require.NotNil(t, finish.Error)
	assert.Equal(t, "content_policy_violation", finish.Error.Type)
	require.NotNil(t, finish.Guard)
	assert.True(t, finish.Guard.Blocked)
	assert.Equal(t, "output_blocked", finish.Guard.BlockType)
	assert.Contains(t, finish.Guard.FailedScanners, "toxicity")

	assert.NotContains(t, rec.Body.String(), "never seen", "frames after the block must not reach the client")
}

func TestOpenAIChat_InputBlocked451(t *testing.T) {
	var hits atomic.Int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	fx := newBackendFixture(t, backend, []scanner.Scanner{blockStub("secrets", "sk-")}, nil, nil)
	h := NewOpenAIChatHandler(fx.core)

	rec := postJSON(t, h.Handle, "/v1/chat/completions",
		`{"model":"m","messages":[{"role":"user","content":"key sk-1"}]}`)

	require.Equal(t, http.StatusUnavailableForLegalReasons, rec.Code)
	assert.Equal(t, "input_blocked", rec.Header().Get("X-Block-Type"))
	assert.Equal(t, int32(0), hits.Load())
}

func TestOpenAIChat_InlineInputBlock_NonStream(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	fx := newBackendFixture(t, backend, []scanner.Scanner{blockStub("secrets", "sk-")}, nil,
		func(cfg *config.Config) { cfg.InlineGuardErrors = true })
	h := NewOpenAIChatHandler(fx.core)

	rec := postJSON(t, h.Handle, "/v1/chat/completions",
		`{"model":"m","messages":[{"role":"user","content":"key sk-1"}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp dialect.ChatCompletion
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "content_filter", resp.Choices[0].FinishReason)
	assert.Contains(t, resp.Choices[0].Message.Text(), "secrets")
	// 合成响应的用量来自估算器
	assert.Greater(t, resp.Usage.PromptTokens, 0)
	assert.Greater(t, resp.Usage.CompletionTokens, 0)
	// 拦截元数据随方言响应下发
	require.NotNil(t, resp.Guard)
	assert.True(t, resp.Guard.Blocked)
	assert.Equal(t, "input_blocked", resp.Guard.BlockType)
	assert.Contains(t, resp.Guard.FailedScanners, "secrets")
}

func TestOpenAIChat_MissingModel400(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	fx := newBackendFixture(t, backend, nil, nil, nil)
	h := NewOpenAIChatHandler(fx.core)

	rec := postJSON(t, h.Handle, "/v1/chat/completions",
		`{"messages":[{"role":"user","content":"x"}]}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body wireError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid_model", body.Error)
}
