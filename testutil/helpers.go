// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 上下文、JSON 与流式响应体的通用测试辅助
//
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	lines := testutil.NDJSONLines(recorder.Body.String())
//
// =============================================================================
package testutil

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	t.Helper()
	return TestContextWithTimeout(t, 30*time.Second)
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 📦 数据辅助
// =============================================================================

// MustJSON 序列化为 JSON，失败时使测试失败
func MustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal %T: %v", v, err)
	}
	return data
}

// MustParseJSON 反序列化 JSON，失败时使测试失败
func MustParseJSON(t *testing.T, data []byte, dest any) {
	t.Helper()
	if err := json.Unmarshal(data, dest); err != nil {
		t.Fatalf("unmarshal into %T: %v\nbody: %s", dest, err, data)
	}
}

// =============================================================================
// 🌊 流式响应体辅助
// =============================================================================

// NDJSONLines 按行拆解 NDJSON 响应体，丢弃空行
func NDJSONLines(body string) []string {
	var lines []string
	for _, line := range strings.Split(body, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// SSEEvents 拆解 SSE 响应体，返回各 data: 负载（含末尾的 [DONE]）
func SSEEvents(body string) []string {
	var events []string
	for _, chunk := range strings.Split(body, "\n\n") {
		chunk = strings.TrimSpace(chunk)
		if after, ok := strings.CutPrefix(chunk, "data: "); ok {
			events = append(events, after)
		}
	}
	return events
}
