// =============================================================================
// 📜 OpenAI /v1/completions 端点
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

// OpenAICompletionHandler OpenAI completion 端点处理器。
// 数组形态的 prompt 在解码时按换行拼接，扫描拼接后的全文。
type OpenAICompletionHandler struct {
	core *Core
}

// NewOpenAICompletionHandler 创建 OpenAI completion 处理器
func NewOpenAICompletionHandler(core *Core) *OpenAICompletionHandler {
	return &OpenAICompletionHandler{core: core}
}

// Handle 处理 /v1/completions 请求
// @Summary 受护文本补全（OpenAI 兼容）
// @Description 转译为原生 generate 请求，防护编排后转译回 OpenAI 形态，SSE 流式
// @Tags OpenAI 方言
// @Accept json
// @Produce json
// @Router /v1/completions [post]
func (h *OpenAICompletionHandler) Handle(w http.ResponseWriter, r *http.Request) {
	c := h.core
	ctx, cancel := context.WithTimeout(r.Context(), c.cfg.OpenAITimeout)
	defer cancel()
	ctx = ctxkeys.WithDialect(ctx, dialectOpenAI)

	var req dialect.CompletionRequest
	if terr := decodeJSON(r, &req); terr != nil {
		renderError(w, langdetect.English, "", terr, c.logger)
		return
	}
	if strings.TrimSpace(req.Model) == "" {
		renderError(w, langdetect.English, "",
			types.NewError(types.ErrInvalidModel, "model is required"), c.logger)
		return
	}
	prompt := req.Prompt.Text()
	if strings.TrimSpace(prompt) == "" {
		renderError(w, langdetect.English, req.Model,
			types.NewError(types.ErrInvalidPrompt, "prompt is required"), c.logger)
		return
	}

	lang := langdetect.Detect(prompt)
	ctx = ctxkeys.WithModel(ctx, req.Model)
	ctx = ctxkeys.WithLanguage(ctx, string(lang))

	started := time.Now()
	v, err := c.guardInput(ctx, prompt)
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
			h.renderInlineBlocked(w, &req, prompt, lang, v)
		} else {
			renderBlocked(w, lang, types.ErrInputBlocked, v)
		}
		return
	}

	native := req.ToNativeGenerate(req.Stream)
	if v.Sanitized != prompt {
		native.Prompt = v.Sanitized
	}

	if req.Stream {
		h.stream(ctx, w, native, lang)
	} else {
		h.complete(ctx, w, native, lang)
	}
}

// complete 非流式路径：原生响应转译为 text_completion
func (h *OpenAICompletionHandler) complete(ctx context.Context, w http.ResponseWriter, native *upstream.GenerateRequest, lang langdetect.Lang) {
	c := h.core
	body, err := json.Marshal(native)
	if err != nil {
		renderError(w, lang, native.Model, err, c.logger)
		return
	}

	admitErr := c.admit(ctx, native.Model, func(ctx context.Context) error {
		resp, err := c.upstream.Post(ctx, "/api/generate", body)
		if err != nil {
			renderError(w, lang, native.Model, err, c.logger)
			return nil
		}
		defer resp.Body.Close()
		c.recordUpstream("/api/generate", resp.StatusCode)

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
		var genResp upstream.GenerateResponse
		if err := json.Unmarshal(raw, &genResp); err != nil {
			renderError(w, lang, native.Model,
				types.NewError(types.ErrInvalidUpstreamResponse, "backend returned malformed JSON").WithCause(err), c.logger)
			return nil
		}

		started := time.Now()
		v, err := c.guardOutput(ctx, native.Prompt, genResp.Response)
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
				h.writeInlineCompletion(w, native.Model, native.Prompt, lang, v, types.ErrOutputBlocked)
			} else {
				renderBlocked(w, lang, types.ErrOutputBlocked, v)
			}
			return nil
		}

		if v.Sanitized != genResp.Response {
			genResp.Response = v.Sanitized
		}
		writeJSON(w, http.StatusOK, dialect.FromNativeGenerate(&genResp, native.Model))
		return nil
	})
	if admitErr != nil {
		renderError(w, lang, native.Model, admitErr, c.logger)
	}
}

// stream 流式路径：原生帧转译为 SSE text_completion 帧
func (h *OpenAICompletionHandler) stream(ctx context.Context, w http.ResponseWriter, native *upstream.GenerateRequest, lang langdetect.Lang) {
	c := h.core
	body, err := json.Marshal(native)
	if err != nil {
		renderError(w, lang, native.Model, err, c.logger)
		return
	}

	admitErr := c.admit(ctx, native.Model, func(ctx context.Context) error {
		stream, errResp, err := c.upstream.OpenStream(ctx, "/api/generate", body)
		if err != nil {
			renderError(w, lang, native.Model, err, c.logger)
			return nil
		}
		if errResp != nil {
			defer errResp.Body.Close()
			c.recordUpstream("/api/generate", errResp.StatusCode)
			relayUpstreamStatus(w, errResp)
			return nil
		}
		c.recordUpstream("/api/generate", http.StatusOK)

		c.runStreamGuard(ctx, stream, newOpenAICompletionSink(w, native.Model), streamParams{
			model:   native.Model,
			prompt:  native.Prompt,
			lang:    lang,
			dialect: dialectOpenAI,
		})
		return nil
	})
	if admitErr != nil {
		renderError(w, lang, native.Model, admitErr, c.logger)
	}
}

// renderInlineBlocked 内联防护：拦截以 text_completion 形态返回
func (h *OpenAICompletionHandler) renderInlineBlocked(w http.ResponseWriter, req *dialect.CompletionRequest, prompt string, lang langdetect.Lang, v *scanner.Verdict) {
	if !req.Stream {
		h.writeInlineCompletion(w, req.Model, prompt, lang, v, types.ErrInputBlocked)
		return
	}

	msg := localizedMessage(lang, types.ErrInputBlocked, "input blocked")
	sink := newOpenAICompletionSink(w, req.Model)
	if err := sink.w.WriteEvent(dialect.CompletionTextChunk(sink.id, sink.created, req.Model,
		guardMarkdown(msg, v.FailedScanners()))); err != nil {
		return
	}
	_ = sink.Blocked(msg, buildGuardInfo(v, types.ErrInputBlocked, lang))
}

// writeInlineCompletion 合成拦截说明的非流式 text_completion
func (h *OpenAICompletionHandler) writeInlineCompletion(w http.ResponseWriter, model, prompt string, lang langdetect.Lang, v *scanner.Verdict, code types.ErrorCode) {
	msg := localizedMessage(lang, code, "blocked by content guard")
	content := guardMarkdown(msg, v.FailedScanners())
	finish := dialect.FinishContentFilter
	writeJSON(w, http.StatusOK, &dialect.Completion{
		ID:      dialect.NewCompletionID(),
		Object:  "text_completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []dialect.CompletionChoice{{
			Index:        0,
			Text:         content,
			FinishReason: &finish,
		}},
		Usage: h.core.estimateUsage(prompt, content),
		Guard: buildGuardInfo(v, code, lang),
	})
}
