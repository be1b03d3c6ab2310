// =============================================================================
// 💬 原生 /api/chat 端点
// =============================================================================
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/guardflow/audit"
	"github.com/BaSui01/guardflow/dialect"
	"github.com/BaSui01/guardflow/internal/ctxkeys"
	"github.com/BaSui01/guardflow/langdetect"
	"github.com/BaSui01/guardflow/scanner"
	"github.com/BaSui01/guardflow/types"
	"github.com/BaSui01/guardflow/upstream"
)

// ChatHandler 原生多轮对话端点处理器。
// 历史消息视为已审查过的上下文，只扫描最后一条用户消息。
type ChatHandler struct {
	core *Core
}

// NewChatHandler 创建 chat 处理器
func NewChatHandler(core *Core) *ChatHandler {
	return &ChatHandler{core: core}
}

// Handle 处理 /api/chat 请求
// @Summary 受护多轮对话
// @Description 输入防护 → 模型准入 → 上游转发 → 输出防护，NDJSON 流式
// @Tags 原生方言
// @Accept json
// @Produce json
// @Router /api/chat [post]
func (h *ChatHandler) Handle(w http.ResponseWriter, r *http.Request) {
	c := h.core
	ctx, cancel := context.WithTimeout(r.Context(), c.cfg.RequestTimeout)
	defer cancel()
	ctx = ctxkeys.WithDialect(ctx, dialectNative)

	var req upstream.ChatRequest
	if terr := decodeJSON(r, &req); terr != nil {
		renderError(w, langdetect.English, "", terr, c.logger)
		return
	}
	if strings.TrimSpace(req.Model) == "" {
		renderError(w, langdetect.English, "",
			types.NewError(types.ErrInvalidModel, "model is required"), c.logger)
		return
	}
	if len(req.Messages) == 0 {
		renderError(w, langdetect.English, req.Model,
			types.NewError(types.ErrInvalidMessages, "messages must not be empty"), c.logger)
		return
	}

	scanText := req.LatestUserText()
	lang := langdetect.Detect(scanText)
	ctx = ctxkeys.WithModel(ctx, req.Model)
	ctx = ctxkeys.WithLanguage(ctx, string(lang))

	started := time.Now()
	v, err := c.guardInput(ctx, scanText)
	if err != nil {
		renderError(w, lang, req.Model,
			types.NewError(types.ErrTimeout, "input scan cancelled").WithCause(err), c.logger)
		return
	}
	if c.cfg.EnableInputGuard {
		c.recordGuard(ctx, req.Model, dialectNative, audit.DirectionInput, v, lang, started)
	}
	if !v.Allowed {
		if c.cfg.InlineGuardErrors {
			h.renderInlineBlocked(w, &req, lang, v)
		} else {
			renderBlocked(w, lang, types.ErrInputBlocked, v)
		}
		return
	}
	if v.Sanitized != scanText {
		replaceLatestUserText(req.Messages, v.Sanitized)
	}

	if req.Streaming() {
		h.stream(ctx, w, &req, scanText, lang)
	} else {
		h.complete(ctx, w, &req, scanText, lang)
	}
}

// complete 非流式路径
func (h *ChatHandler) complete(ctx context.Context, w http.ResponseWriter, req *upstream.ChatRequest, prompt string, lang langdetect.Lang) {
	c := h.core
	body, err := json.Marshal(req)
	if err != nil {
		renderError(w, lang, req.Model, err, c.logger)
		return
	}

	admitErr := c.admit(ctx, req.Model, func(ctx context.Context) error {
		resp, err := c.upstream.Post(ctx, "/api/chat", body)
		if err != nil {
			renderError(w, lang, req.Model, err, c.logger)
			return nil
		}
		defer resp.Body.Close()
		c.recordUpstream("/api/chat", resp.StatusCode)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			relayUpstreamStatus(w, resp)
			return nil
		}

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			renderError(w, lang, req.Model,
				types.NewError(types.ErrUpstreamError, "failed to read backend response").WithCause(err), c.logger)
			return nil
		}
		var native upstream.ChatResponse
		if err := json.Unmarshal(raw, &native); err != nil {
			renderError(w, lang, req.Model,
				types.NewError(types.ErrInvalidUpstreamResponse, "backend returned malformed JSON").WithCause(err), c.logger)
			return nil
		}

		h.finish(ctx, w, req, prompt, lang, raw, &native)
		return nil
	})
	if admitErr != nil {
		renderError(w, lang, req.Model, admitErr, c.logger)
	}
}

// finish 输出防护后回放响应
func (h *ChatHandler) finish(ctx context.Context, w http.ResponseWriter, req *upstream.ChatRequest, prompt string, lang langdetect.Lang, raw []byte, native *upstream.ChatResponse) {
	c := h.core
	started := time.Now()
	v, err := c.guardOutput(ctx, prompt, native.Message.Text())
	if err != nil {
		renderError(w, lang, req.Model,
			types.NewError(types.ErrTimeout, "output scan cancelled").WithCause(err), c.logger)
		return
	}
	if c.cfg.EnableOutputGuard {
		c.recordGuard(ctx, req.Model, dialectNative, audit.DirectionOutput, v, lang, started)
	}
	if !v.Allowed {
		if c.cfg.InlineGuardErrors {
			msg := localizedMessage(lang, types.ErrOutputBlocked, "output blocked")
			frame := dialect.NativeChatBlockedFrame(req.Model, msg, buildGuardInfo(v, types.ErrOutputBlocked, lang))
			frame["message"] = map[string]any{
				"role":    string(types.RoleAssistant),
				"content": guardMarkdown(msg, v.FailedScanners()),
			}
			writeJSON(w, http.StatusOK, frame)
		} else {
			renderBlocked(w, lang, types.ErrOutputBlocked, v)
		}
		return
	}

	if v.Sanitized != native.Message.Text() {
		native.Message = types.NewAssistantMessage(v.Sanitized)
		writeJSON(w, http.StatusOK, native)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// stream 流式路径
func (h *ChatHandler) stream(ctx context.Context, w http.ResponseWriter, req *upstream.ChatRequest, prompt string, lang langdetect.Lang) {
	c := h.core
	body, err := json.Marshal(req)
	if err != nil {
		renderError(w, lang, req.Model, err, c.logger)
		return
	}

	admitErr := c.admit(ctx, req.Model, func(ctx context.Context) error {
		stream, errResp, err := c.upstream.OpenStream(ctx, "/api/chat", body)
		if err != nil {
			renderError(w, lang, req.Model, err, c.logger)
			return nil
		}
		if errResp != nil {
			defer errResp.Body.Close()
			c.recordUpstream("/api/chat", errResp.StatusCode)
			relayUpstreamStatus(w, errResp)
			return nil
		}
		c.recordUpstream("/api/chat", http.StatusOK)

		c.runStreamGuard(ctx, stream, newNativeSink(w, req.Model, true), streamParams{
			model:   req.Model,
			prompt:  prompt,
			lang:    lang,
			dialect: dialectNative,
		})
		return nil
	})
	if admitErr != nil {
		renderError(w, lang, req.Model, admitErr, c.logger)
	}
}

// renderInlineBlocked 内联防护：拦截以成功响应正文返回
func (h *ChatHandler) renderInlineBlocked(w http.ResponseWriter, req *upstream.ChatRequest, lang langdetect.Lang, v *scanner.Verdict) {
	msg := localizedMessage(lang, types.ErrInputBlocked, "input blocked")
	frame := dialect.NativeChatBlockedFrame(req.Model, msg, buildGuardInfo(v, types.ErrInputBlocked, lang))
	frame["message"] = map[string]any{
		"role":    string(types.RoleAssistant),
		"content": guardMarkdown(msg, v.FailedScanners()),
	}

	if req.Streaming() {
		_ = dialect.NewNDJSONWriter(w).WriteFrame(frame)
		return
	}
	writeJSON(w, http.StatusOK, frame)
}

// replaceLatestUserText 用消毒后的文本替换最后一条用户消息
func replaceLatestUserText(messages []types.Message, text string) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == types.RoleUser {
			messages[i].Content = types.NewContent(text)
			return
		}
	}
}
