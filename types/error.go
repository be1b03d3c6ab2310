package types

import "fmt"

// ErrorCode 统一错误码。取值即 JSON 错误响应体 "error" 字段的线上字符串，
// 客户端按该值分支，不得随意改动。
type ErrorCode string

// 请求解析错误码
const (
	ErrInvalidJSON     ErrorCode = "invalid_json"
	ErrInvalidPayload  ErrorCode = "invalid_payload"
	ErrInvalidMessages ErrorCode = "invalid_messages"
	ErrInvalidModel    ErrorCode = "invalid_model"
	ErrInvalidPrompt   ErrorCode = "invalid_prompt"
)

// 策略拦截错误码
const (
	ErrInputBlocked  ErrorCode = "input_blocked"
	ErrOutputBlocked ErrorCode = "output_blocked"
)

// 准入与上游错误码
const (
	ErrQueueFull               ErrorCode = "queue_full"
	ErrTimeout                 ErrorCode = "timeout"
	ErrUpstreamError           ErrorCode = "upstream_error"
	ErrInvalidUpstreamResponse ErrorCode = "invalid_upstream_response"
	ErrServerError             ErrorCode = "server_error"
	ErrInternalError           ErrorCode = "internal_error"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Language   string    `json:"language,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithLanguage 记录本地化错误消息所用的语言码。
func (e *Error) WithLanguage(lang string) *Error {
	e.Language = lang
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// IsBlocked 判断错误是否为策略拦截（输入或输出）。
func IsBlocked(err error) bool {
	code := GetErrorCode(err)
	return code == ErrInputBlocked || code == ErrOutputBlocked
}
