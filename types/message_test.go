package types

import (
	"encoding/json"
	"testing"
)

func TestFlexibleContent_String(t *testing.T) {
	t.Parallel()

	var m Message
	if err := json.Unmarshal([]byte(`{"role":"user","content":"hello world"}`), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.Text() != "hello world" {
		t.Fatalf("expected text %q, got %q", "hello world", m.Text())
	}

	out, err := json.Marshal(m.Content)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `"hello world"` {
		t.Fatalf("expected verbatim replay, got %s", out)
	}
}

func TestFlexibleContent_Parts(t *testing.T) {
	t.Parallel()

	raw := `{"role":"user","content":[{"type":"text","text":"see "},{"type":"image_url","image_url":{"url":"http://x"}},{"type":"text","text":"this"}]}`
	var m Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.Text() != "see this" {
		t.Fatalf("expected joined text parts, got %q", m.Text())
	}

	// 回放必须保留非文本分段
	out, err := json.Marshal(m.Content)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var parts []map[string]any
	if err := json.Unmarshal(out, &parts); err != nil {
		t.Fatalf("replayed content not an array: %v", err)
	}
	if len(parts) != 3 {
		t.Fatalf("expected 3 parts preserved, got %d", len(parts))
	}
}

func TestFlexibleContent_NullAndEmpty(t *testing.T) {
	t.Parallel()

	var m Message
	if err := json.Unmarshal([]byte(`{"role":"assistant","content":null}`), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.Text() != "" {
		t.Fatalf("null content must yield empty text")
	}
	if !NewContent("").IsEmpty() {
		t.Fatalf("empty constructed content must report empty")
	}
	if NewContent("x").IsEmpty() {
		t.Fatalf("non-empty content must not report empty")
	}
}
