// =============================================================================
// 📦 线上错误形态与响应辅助
// =============================================================================
// 错误响应体固定为 {"error","message","language","details"}，
// error 字段取 types.ErrorCode 的线上字符串，message 按检测语言本地化。
// 拦截响应额外携带 X-Error-Type / X-Block-Type / X-Language /
// X-Failed-Scanners 元数据头。
// =============================================================================
package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/guardflow/dialect"
	"github.com/BaSui01/guardflow/langdetect"
	"github.com/BaSui01/guardflow/scanner"
	"github.com/BaSui01/guardflow/types"
)

// 拦截元数据头
const (
	headerErrorType      = "X-Error-Type"
	headerBlockType      = "X-Block-Type"
	headerLanguage       = "X-Language"
	headerFailedScanners = "X-Failed-Scanners"
)

// 请求体大小上限
const maxBodyBytes = 32 << 20

// wireError 统一错误响应体
type wireError struct {
	Error    string `json:"error"`
	Message  string `json:"message"`
	Language string `json:"language,omitempty"`
	Model    string `json:"model,omitempty"`
	Details  any    `json:"details,omitempty"`
}

// writeJSON 写入 JSON 响应
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON 读取并解码请求体。
// 语法错误归为 invalid_json，字段类型违例归为 invalid_payload。
func decodeJSON(r *http.Request, dst any) *types.Error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return types.NewError(types.ErrInvalidJSON, "failed to read request body").
			WithHTTPStatus(http.StatusBadRequest).WithCause(err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return types.NewError(types.ErrInvalidJSON, "request body is empty").
			WithHTTPStatus(http.StatusBadRequest)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return types.NewError(types.ErrInvalidPayload, "request field "+typeErr.Field+" has wrong type").
				WithHTTPStatus(http.StatusBadRequest).WithCause(err)
		}
		return types.NewError(types.ErrInvalidJSON, "request body is not valid JSON").
			WithHTTPStatus(http.StatusBadRequest).WithCause(err)
	}
	return nil
}

// httpStatusFor 错误码到 HTTP 状态码的缺省映射
func httpStatusFor(code types.ErrorCode) int {
	switch code {
	case types.ErrInvalidJSON, types.ErrInvalidPayload, types.ErrInvalidMessages,
		types.ErrInvalidModel, types.ErrInvalidPrompt:
		return http.StatusBadRequest
	case types.ErrInputBlocked, types.ErrOutputBlocked:
		return http.StatusUnavailableForLegalReasons
	case types.ErrQueueFull:
		return http.StatusTooManyRequests
	case types.ErrTimeout:
		return http.StatusGatewayTimeout
	case types.ErrUpstreamError, types.ErrInvalidUpstreamResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// localizedMessage 为面向用户的错误种类选择本地化消息，其余保留原文
func localizedMessage(lang langdetect.Lang, code types.ErrorCode, fallback string) string {
	switch code {
	case types.ErrQueueFull:
		return langdetect.Message(lang, langdetect.MsgServerBusy)
	case types.ErrTimeout:
		return langdetect.Message(lang, langdetect.MsgTimeout)
	case types.ErrInputBlocked:
		return langdetect.Message(lang, langdetect.MsgInputBlocked)
	case types.ErrOutputBlocked:
		return langdetect.Message(lang, langdetect.MsgOutputBlocked)
	case types.ErrUpstreamError, types.ErrInvalidUpstreamResponse:
		return langdetect.Message(lang, langdetect.MsgUpstreamError)
	}
	return fallback
}

// renderError 按线上契约写出错误响应。
// queue_full 附带模型名，便于客户端区分哪个模型过载。
func renderError(w http.ResponseWriter, lang langdetect.Lang, model string, err error, logger *zap.Logger) {
	var te *types.Error
	if !errors.As(err, &te) {
		te = types.NewError(types.ErrInternalError, "internal server error").
			WithHTTPStatus(http.StatusInternalServerError).WithCause(err)
	}

	status := te.HTTPStatus
	if status == 0 {
		status = httpStatusFor(te.Code)
	}

	body := wireError{
		Error:    string(te.Code),
		Message:  localizedMessage(lang, te.Code, te.Message),
		Language: string(lang),
	}
	if te.Code == types.ErrQueueFull {
		body.Model = model
	}

	if logger != nil {
		logger.Warn("请求失败",
			zap.String("code", string(te.Code)),
			zap.Int("status", status),
			zap.String("model", model),
			zap.Error(te))
	}
	writeJSON(w, status, body)
}

// renderBlocked 以 451 拒绝并附带拦截元数据头
func renderBlocked(w http.ResponseWriter, lang langdetect.Lang, code types.ErrorCode, v *scanner.Verdict) {
	failed := v.FailedScanners()
	rawFailed, _ := json.Marshal(failed)

	w.Header().Set(headerErrorType, dialect.ErrTypeContentPolicy)
	w.Header().Set(headerBlockType, string(code))
	w.Header().Set(headerLanguage, string(lang))
	w.Header().Set(headerFailedScanners, string(rawFailed))

	writeJSON(w, http.StatusUnavailableForLegalReasons, wireError{
		Error:    string(code),
		Message:  localizedMessage(lang, code, "blocked by content guard"),
		Language: string(lang),
		Details: map[string]any{
			"failed_scanners": failed,
			"risk_scores":     riskScores(v),
		},
	})
}

// riskScores 按扫描器名汇总风险分
func riskScores(v *scanner.Verdict) map[string]float64 {
	out := make(map[string]float64, len(v.Results))
	for name, res := range v.Results {
		out[name] = res.RiskScore
	}
	return out
}

// buildGuardInfo 组装随拦截响应返回的元数据对象
func buildGuardInfo(v *scanner.Verdict, code types.ErrorCode, lang langdetect.Lang) *dialect.GuardInfo {
	info := &dialect.GuardInfo{
		Blocked:        true,
		BlockType:      string(code),
		FailedScanners: v.FailedScanners(),
		RiskPercent:    make(map[string]float64),
		Language:       string(lang),
	}
	for name, res := range v.Results {
		if !res.Passed {
			info.RiskPercent[name] = res.RiskScore * 100
		}
	}
	return info
}

// guardMarkdown 以 markdown 文本陈述拦截结果，作为内联响应正文
func guardMarkdown(message string, failed []string) string {
	var b strings.Builder
	b.WriteString("> ⚠️ **")
	b.WriteString(message)
	b.WriteString("**")
	if len(failed) > 0 {
		b.WriteString("\n>\n> `")
		b.WriteString(strings.Join(failed, "`, `"))
		b.WriteString("`")
	}
	return b.String()
}

// relayUpstreamStatus 原样回放后端的非 2xx 响应（如模型不存在）
func relayUpstreamStatus(w http.ResponseWriter, resp *http.Response) {
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}
