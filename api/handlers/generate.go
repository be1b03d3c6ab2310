// =============================================================================
// ✍️ 原生 /api/generate 端点
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

// GenerateHandler 原生 completion 端点处理器。
// 该方言扫描完整 prompt；chat 方言只扫描最后一条用户消息。
type GenerateHandler struct {
	core *Core
}

// NewGenerateHandler 创建 generate 处理器
func NewGenerateHandler(core *Core) *GenerateHandler {
	return &GenerateHandler{core: core}
}

// Handle 处理 /api/generate 请求
// @Summary 受护文本生成
// @Description 输入防护 → 模型准入 → 上游转发 → 输出防护，NDJSON 流式
// @Tags 原生方言
// @Accept json
// @Produce json
// @Router /api/generate [post]
func (h *GenerateHandler) Handle(w http.ResponseWriter, r *http.Request) {
	c := h.core
	ctx, cancel := context.WithTimeout(r.Context(), c.cfg.RequestTimeout)
	defer cancel()
	ctx = ctxkeys.WithDialect(ctx, dialectNative)

	var req upstream.GenerateRequest
	if terr := decodeJSON(r, &req); terr != nil {
		renderError(w, langdetect.English, "", terr, c.logger)
		return
	}
	if strings.TrimSpace(req.Model) == "" {
		renderError(w, langdetect.English, "",
			types.NewError(types.ErrInvalidModel, "model is required"), c.logger)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		renderError(w, langdetect.English, req.Model,
			types.NewError(types.ErrInvalidPrompt, "prompt is required"), c.logger)
		return
	}

	lang := langdetect.Detect(req.Prompt)
	ctx = ctxkeys.WithModel(ctx, req.Model)
	ctx = ctxkeys.WithLanguage(ctx, string(lang))

	started := time.Now()
	v, err := c.guardInput(ctx, req.Prompt)
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
	if v.Sanitized != req.Prompt {
		req.Prompt = v.Sanitized
	}

	if req.Streaming() {
		h.stream(ctx, w, &req, lang)
	} else {
		h.complete(ctx, w, &req, lang)
	}
}

// complete 非流式路径：完整响应解析后过输出防护
func (h *GenerateHandler) complete(ctx context.Context, w http.ResponseWriter, req *upstream.GenerateRequest, lang langdetect.Lang) {
	c := h.core
	body, err := json.Marshal(req)
	if err != nil {
		renderError(w, lang, req.Model, err, c.logger)
		return
	}

	admitErr := c.admit(ctx, req.Model, func(ctx context.Context) error {
		resp, err := c.upstream.Post(ctx, "/api/generate", body)
		if err != nil {
			renderError(w, lang, req.Model, err, c.logger)
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
			renderError(w, lang, req.Model,
				types.NewError(types.ErrUpstreamError, "failed to read backend response").WithCause(err), c.logger)
			return nil
		}
		var native upstream.GenerateResponse
		if err := json.Unmarshal(raw, &native); err != nil {
			renderError(w, lang, req.Model,
				types.NewError(types.ErrInvalidUpstreamResponse, "backend returned malformed JSON").WithCause(err), c.logger)
			return nil
		}

		h.finish(ctx, w, req, lang, raw, &native)
		return nil
	})
	if admitErr != nil {
		renderError(w, lang, req.Model, admitErr, c.logger)
	}
}

// finish 输出防护后回放响应。未经改写时正文逐字节原样返回。
func (h *GenerateHandler) finish(ctx context.Context, w http.ResponseWriter, req *upstream.GenerateRequest, lang langdetect.Lang, raw []byte, native *upstream.GenerateResponse) {
	c := h.core
	started := time.Now()
	v, err := c.guardOutput(ctx, req.Prompt, native.Response)
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
			frame := dialect.NativeGenerateBlockedFrame(req.Model, msg, buildGuardInfo(v, types.ErrOutputBlocked, lang))
			frame["response"] = guardMarkdown(msg, v.FailedScanners())
			writeJSON(w, http.StatusOK, frame)
		} else {
			renderBlocked(w, lang, types.ErrOutputBlocked, v)
		}
		return
	}

	if v.Sanitized != native.Response {
		native.Response = v.Sanitized
		writeJSON(w, http.StatusOK, native)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// stream 流式路径：逐帧转发并窗口化扫描
func (h *GenerateHandler) stream(ctx context.Context, w http.ResponseWriter, req *upstream.GenerateRequest, lang langdetect.Lang) {
	c := h.core
	body, err := json.Marshal(req)
	if err != nil {
		renderError(w, lang, req.Model, err, c.logger)
		return
	}

	admitErr := c.admit(ctx, req.Model, func(ctx context.Context) error {
		stream, errResp, err := c.upstream.OpenStream(ctx, "/api/generate", body)
		if err != nil {
			renderError(w, lang, req.Model, err, c.logger)
			return nil
		}
		if errResp != nil {
			defer errResp.Body.Close()
			c.recordUpstream("/api/generate", errResp.StatusCode)
			relayUpstreamStatus(w, errResp)
			return nil
		}
		c.recordUpstream("/api/generate", http.StatusOK)

		c.runStreamGuard(ctx, stream, newNativeSink(w, req.Model, false), streamParams{
			model:   req.Model,
			prompt:  req.Prompt,
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
func (h *GenerateHandler) renderInlineBlocked(w http.ResponseWriter, req *upstream.GenerateRequest, lang langdetect.Lang, v *scanner.Verdict) {
	msg := localizedMessage(lang, types.ErrInputBlocked, "input blocked")
	frame := dialect.NativeGenerateBlockedFrame(req.Model, msg, buildGuardInfo(v, types.ErrInputBlocked, lang))
	frame["response"] = guardMarkdown(msg, v.FailedScanners())

	if req.Streaming() {
		_ = dialect.NewNDJSONWriter(w).WriteFrame(frame)
		return
	}
	writeJSON(w, http.StatusOK, frame)
}
