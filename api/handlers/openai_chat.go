// =============================================================================
// 🤝 OpenAI /v1/chat/completions 端点
// =============================================================================
// OpenAI 请求转译为原生 chat 请求后走与原生端点相同的防护编排，
// 响应再转译回 OpenAI 形态。流缺省非流式，与原生方言相反。
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

// OpenAIChatHandler OpenAI chat 端点处理器
type OpenAIChatHandler struct {
	core *Core
}

// NewOpenAIChatHandler 创建 OpenAI chat 处理器
func NewOpenAIChatHandler(core *Core) *OpenAIChatHandler {
	return &OpenAIChatHandler{core: core}
}

// Handle 处理 /v1/chat/completions 请求
// @Summary 受护聊天补全（OpenAI 兼容）
// @Description 转译为原生 chat 请求，防护编排后转译回 OpenAI 形态，SSE 流式
// @Tags OpenAI 方言
// @Accept json
// @Produce json
// @Router /v1/chat/completions [post]
func (h *OpenAIChatHandler) Handle(w http.ResponseWriter, r *http.Request) {
	c := h.core
	ctx, cancel := context.WithTimeout(r.Context(), c.cfg.OpenAITimeout)
	defer cancel()
	ctx = ctxkeys.WithDialect(ctx, dialectOpenAI)

	var req dialect.ChatCompletionRequest
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
		c.recordGuard(ctx, req.Model, dialectOpenAI, audit.DirectionInput, v, lang, started)
	}
	if !v.Allowed {
		if c.cfg.InlineGuardErrors {
			h.renderInlineBlocked(w, &req, scanText, lang, v)
		} else {
			renderBlocked(w, lang, types.ErrInputBlocked, v)
		}
		return
	}

	native := req.ToNativeChat(req.Stream)
	if v.Sanitized != scanText {
		replaceLatestUserText(native.Messages, v.Sanitized)
	}

	if req.Stream {
		h.stream(ctx, w, native, scanText, lang)
	} else {
		h.complete(ctx, w, native, scanText, lang)
	}
}

// complete 非流式路径：原生响应转译为 chat.completion
func (h *OpenAIChatHandler) complete(ctx context.Context, w http.ResponseWriter, native *upstream.ChatRequest, prompt string, lang langdetect.Lang) {
	c := h.core
	body, err := json.Marshal(native)
	if err != nil {
		renderError(w, lang, native.Model, err, c.logger)
		return
	}

	admitErr := c.admit(ctx, native.Model, func(ctx context.Context) error {
		resp, err := c.upstream.Post(ctx, "/api/chat", body)
		if err != nil {
			renderError(w, lang, native.Model, err, c.logger)
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
			renderError(w, lang, native.Model,
				types.NewError(types.ErrUpstreamError, "failed to read backend response").WithCause(err), c.logger)
			return nil
		}
		var chatResp upstream.ChatResponse
		if err := json.Unmarshal(raw, &chatResp); err != nil {
			renderError(w, lang, native.Model,
				types.NewError(types.ErrInvalidUpstreamResponse, "backend returned malformed JSON").WithCause(err), c.logger)
			return nil
		}

		started := time.Now()
		v, err := c.guardOutput(ctx, prompt, chatResp.Message.Text())
		if err != nil {
			renderError(w, lang, native.Model,
				types.NewError(types.ErrTimeout, "output scan cancelled").WithCause(err), c.logger)
			return nil
		}
		if c.cfg.EnableOutputGuard {
			c.recordGuard(ctx, native.Model, dialectOpenAI, audit.DirectionOutput, v, lang, started)
		}
		if !v.Allowed {
			if c.cfg.InlineGuardErrors {
				h.writeInlineCompletion(w, native.Model, prompt, lang, v, types.ErrOutputBlocked)
			} else {
				renderBlocked(w, lang, types.ErrOutputBlocked, v)
			}
			return nil
		}

		if v.Sanitized != chatResp.Message.Text() {
			chatResp.Message = types.NewAssistantMessage(v.Sanitized)
		}
		writeJSON(w, http.StatusOK, dialect.FromNativeChat(&chatResp, native.Model))
		return nil
	})
	if admitErr != nil {
		renderError(w, lang, native.Model, admitErr, c.logger)
	}
}

// stream 流式路径：原生帧转译为 SSE chunk
func (h *OpenAIChatHandler) stream(ctx context.Context, w http.ResponseWriter, native *upstream.ChatRequest, prompt string, lang langdetect.Lang) {
	c := h.core
	body, err := json.Marshal(native)
	if err != nil {
		renderError(w, lang, native.Model, err, c.logger)
		return
	}

	admitErr := c.admit(ctx, native.Model, func(ctx context.Context) error {
		stream, errResp, err := c.upstream.OpenStream(ctx, "/api/chat", body)
		if err != nil {
			renderError(w, lang, native.Model, err, c.logger)
			return nil
		}
		if errResp != nil {
			defer errResp.Body.Close()
			c.recordUpstream("/api/chat", errResp.StatusCode)
			relayUpstreamStatus(w, errResp)
			return nil
		}
		c.recordUpstream("/api/chat", http.StatusOK)

		c.runStreamGuard(ctx, stream, newOpenAIChatSink(w, native.Model), streamParams{
			model:   native.Model,
			prompt:  prompt,
			lang:    lang,
			dialect: dialectOpenAI,
		})
		return nil
	})
	if admitErr != nil {
		renderError(w, lang, native.Model, admitErr, c.logger)
	}
}

// renderInlineBlocked 内联防护：拦截以 chat.completion 形态返回
func (h *OpenAIChatHandler) renderInlineBlocked(w http.ResponseWriter, req *dialect.ChatCompletionRequest, prompt string, lang langdetect.Lang, v *scanner.Verdict) {
	if !req.Stream {
		h.writeInlineCompletion(w, req.Model, prompt, lang, v, types.ErrInputBlocked)
		return
	}

	msg := localizedMessage(lang, types.ErrInputBlocked, "input blocked")
	sink := newOpenAIChatSink(w, req.Model)
	if err := sink.ensureRole(); err != nil {
		return
	}
	if err := sink.w.WriteEvent(dialect.ChatContentChunk(sink.id, sink.created, req.Model,
		guardMarkdown(msg, v.FailedScanners()))); err != nil {
		return
	}
	_ = sink.Blocked(msg, buildGuardInfo(v, types.ErrInputBlocked, lang))
}

// writeInlineCompletion 合成拦截说明的非流式 chat.completion。
// 上游从未产生这条响应，用量用 tokenizer 估算。
func (h *OpenAIChatHandler) writeInlineCompletion(w http.ResponseWriter, model, prompt string, lang langdetect.Lang, v *scanner.Verdict, code types.ErrorCode) {
	msg := localizedMessage(lang, code, "blocked by content guard")
	content := guardMarkdown(msg, v.FailedScanners())
	writeJSON(w, http.StatusOK, &dialect.ChatCompletion{
		ID:      dialect.NewChatCompletionID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []dialect.ChatChoice{{
			Index:        0,
			Message:      types.NewAssistantMessage(content),
			FinishReason: dialect.FinishContentFilter,
		}},
		Usage: h.core.estimateUsage(prompt, content),
		Guard: buildGuardInfo(v, code, lang),
	})
}
