package types

import (
	"errors"
	"testing"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrUpstreamError, "upstream failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true).
		WithLanguage("en")

	if GetErrorCode(err) != ErrUpstreamError {
		t.Fatalf("expected code %s, got %s", ErrUpstreamError, GetErrorCode(err))
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if got := err.Error(); got == "" {
		t.Fatalf("expected non-empty error string")
	}
}

func TestError_WireCodes(t *testing.T) {
	t.Parallel()

	// 线上契约：错误码即响应体 "error" 字段取值
	cases := map[ErrorCode]string{
		ErrInvalidJSON:             "invalid_json",
		ErrInputBlocked:            "input_blocked",
		ErrOutputBlocked:           "output_blocked",
		ErrQueueFull:               "queue_full",
		ErrTimeout:                 "timeout",
		ErrUpstreamError:           "upstream_error",
		ErrInvalidUpstreamResponse: "invalid_upstream_response",
	}
	for code, wire := range cases {
		if string(code) != wire {
			t.Fatalf("code %s does not match wire string %s", code, wire)
		}
	}
}

func TestIsBlocked(t *testing.T) {
	t.Parallel()

	if !IsBlocked(NewError(ErrInputBlocked, "blocked")) {
		t.Fatalf("input_blocked should report blocked")
	}
	if !IsBlocked(NewError(ErrOutputBlocked, "blocked")) {
		t.Fatalf("output_blocked should report blocked")
	}
	if IsBlocked(NewError(ErrTimeout, "slow")) {
		t.Fatalf("timeout must not report blocked")
	}
	if IsBlocked(errors.New("plain")) {
		t.Fatalf("plain error must not report blocked")
	}
}
