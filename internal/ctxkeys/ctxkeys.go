package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	modelKey     contextKey = "model"
	dialectKey   contextKey = "dialect"
	languageKey  contextKey = "language"
)

// WithRequestID 设置请求 ID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID 获取请求 ID
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithModel 设置本次请求的目标模型名
func WithModel(ctx context.Context, model string) context.Context {
	return context.WithValue(ctx, modelKey, model)
}

// Model 获取目标模型名
func Model(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(modelKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithDialect 设置请求方言（native / openai）
func WithDialect(ctx context.Context, dialect string) context.Context {
	return context.WithValue(ctx, dialectKey, dialect)
}

// Dialect 获取请求方言
func Dialect(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(dialectKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithLanguage 设置检测到的请求语言码
func WithLanguage(ctx context.Context, lang string) context.Context {
	return context.WithValue(ctx, languageKey, lang)
}

// Language 获取检测到的请求语言码
func Language(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(languageKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
