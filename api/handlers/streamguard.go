// =============================================================================
// 🛡️ 流式输出防护
// =============================================================================
// 上游逐帧转发，增量文本在固定大小的窗口内累积；窗口满或收到终帧时
// 扫描一次。命中拦截即写出方言正确的拦截终帧并恰好关闭一次上游连接，
// 阻止后端继续生成。单请求内存以窗口大小为界。
//
// 帧渲染经 frameSink 抽象按方言分流：原生流原样转发 NDJSON 帧，
// OpenAI 流把原生帧转译为 SSE 增量帧。
// =============================================================================
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/guardflow/audit"
	"github.com/BaSui01/guardflow/dialect"
	"github.com/BaSui01/guardflow/langdetect"
	"github.com/BaSui01/guardflow/scanner"
	"github.com/BaSui01/guardflow/types"
	"github.com/BaSui01/guardflow/upstream"
)

// streamParams 一次流式防护的请求上下文
type streamParams struct {
	model    string
	prompt   string
	lang     langdetect.Lang
	dialect  string
	blockMsg string
}

// frameSink 以单一方言渲染受护流的帧
type frameSink interface {
	// Forward 转发一个上游帧。frame 为 nil 表示该行无法解析为 JSON。
	Forward(raw []byte, frame map[string]any) error
	// Blocked 写出拦截终帧
	Blocked(message string, info *dialect.GuardInfo) error
	// Fail 写出内部错误终帧（上游中途断开）
	Fail(message string) error
	// Finish 收尾终帧。上游自带终帧的方言可为空操作。
	Finish() error
}

// runStreamGuard 驱动流式输出防护直至终态。
// 任何退出路径都经 defer 关闭上游，Abort 幂等。
func (c *Core) runStreamGuard(ctx context.Context, stream *upstream.Stream, sink frameSink, p streamParams) {
	defer stream.Abort()

	threshold := c.cfg.GuardWindowThreshold
	if threshold <= 0 {
		threshold = 1024
	}

	started := time.Now()
	var window strings.Builder
	lastVerdict := passVerdict("")

	for {
		line, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			c.logger.Warn("上游流中断",
				zap.String("model", p.model),
				zap.Error(err))
			_ = sink.Fail("inference backend connection lost")
			return
		}

		// Next 返回的切片在下次读取前有效，转发与解析前先复制
		raw := append([]byte(nil), line...)
		var frame map[string]any
		if json.Unmarshal(raw, &frame) != nil {
			if err := sink.Forward(raw, nil); err != nil {
				return
			}
			continue
		}

		window.WriteString(dialect.ExtractFrameText(frame))
		if c.cfg.EnableOutputGuard && window.Len() > 0 &&
			(dialect.FrameDone(frame) || window.Len() >= threshold) {
			v, scanErr := c.scan(ctx, scanner.KindOutput, p.prompt, window.String())
			if scanErr != nil {
				// 上下文取消：客户端已断开或请求超时，中止即可
				return
			}
			lastVerdict = v
			if !v.Allowed {
				c.recordGuard(ctx, p.model, p.dialect, audit.DirectionOutput, v, p.lang, started)
				msg := localizedMessage(p.lang, types.ErrOutputBlocked, p.blockMsg)
				_ = sink.Blocked(msg, buildGuardInfo(v, types.ErrOutputBlocked, p.lang))
				return
			}
			window.Reset()
		}

		if err := sink.Forward(raw, frame); err != nil {
			return
		}
	}

	// 上游未发终帧即结束：扫描残余窗口
	if c.cfg.EnableOutputGuard && window.Len() > 0 {
		v, scanErr := c.scan(ctx, scanner.KindOutput, p.prompt, window.String())
		if scanErr != nil {
			return
		}
		lastVerdict = v
		if !v.Allowed {
			c.recordGuard(ctx, p.model, p.dialect, audit.DirectionOutput, v, p.lang, started)
			msg := localizedMessage(p.lang, types.ErrOutputBlocked, p.blockMsg)
			_ = sink.Blocked(msg, buildGuardInfo(v, types.ErrOutputBlocked, p.lang))
			return
		}
	}

	if c.cfg.EnableOutputGuard {
		c.recordGuard(ctx, p.model, p.dialect, audit.DirectionOutput, lastVerdict, p.lang, started)
	}
	_ = sink.Finish()
}

// =============================================================================
// 原生方言 sink
// =============================================================================

// nativeSink 原样转发 NDJSON 帧，终帧按原生形态合成
type nativeSink struct {
	w     *dialect.NDJSONWriter
	model string
	chat  bool
}

func newNativeSink(w http.ResponseWriter, model string, chat bool) *nativeSink {
	return &nativeSink{w: dialect.NewNDJSONWriter(w), model: model, chat: chat}
}

func (s *nativeSink) Forward(raw []byte, _ map[string]any) error {
	return s.w.WriteRaw(raw)
}

func (s *nativeSink) Blocked(message string, info *dialect.GuardInfo) error {
	if s.chat {
		return s.w.WriteFrame(dialect.NativeChatBlockedFrame(s.model, message, info))
	}
	return s.w.WriteFrame(dialect.NativeGenerateBlockedFrame(s.model, message, info))
}

func (s *nativeSink) Fail(message string) error {
	return s.w.WriteFrame(dialect.NativeErrorFrame(s.model, message))
}

// Finish 原生流的终帧由上游产生并已转发
func (s *nativeSink) Finish() error { return nil }

// =============================================================================
// OpenAI chat sink
// =============================================================================

// openaiChatSink 把原生 chat 帧转译为 SSE chat.completion.chunk 帧。
// 首个可见帧之前写出角色增量，终态后置 done 防止重复终帧。
type openaiChatSink struct {
	w        *dialect.SSEWriter
	id       string
	created  int64
	model    string
	roleSent bool
	done     bool
}

func newOpenAIChatSink(w http.ResponseWriter, model string) *openaiChatSink {
	return &openaiChatSink{
		w:       dialect.NewSSEWriter(w),
		id:      dialect.NewChatCompletionID(),
		created: time.Now().Unix(),
		model:   model,
	}
}

func (s *openaiChatSink) ensureRole() error {
	if s.roleSent {
		return nil
	}
	s.roleSent = true
	return s.w.WriteEvent(dialect.ChatRoleChunk(s.id, s.created, s.model))
}

func (s *openaiChatSink) Forward(_ []byte, frame map[string]any) error {
	if frame == nil || s.done {
		// 无法解析的上游帧不可跨方言转发
		return nil
	}
	if err := s.ensureRole(); err != nil {
		return err
	}
	if text := dialect.ExtractFrameText(frame); text != "" {
		if err := s.w.WriteEvent(dialect.ChatContentChunk(s.id, s.created, s.model, text)); err != nil {
			return err
		}
	}
	if dialect.FrameDone(frame) {
		return s.terminate(nativeFinishReason(frame), nil, nil)
	}
	return nil
}

func (s *openaiChatSink) Blocked(message string, info *dialect.GuardInfo) error {
	if err := s.ensureRole(); err != nil {
		return err
	}
	return s.terminate(dialect.FinishContentFilter, &dialect.StreamError{
		Type:    dialect.ErrTypeContentPolicy,
		Message: message,
	}, info)
}

func (s *openaiChatSink) Fail(message string) error {
	if err := s.ensureRole(); err != nil {
		return err
	}
	return s.terminate(dialect.FinishStop, &dialect.StreamError{
		Type:    string(types.ErrServerError),
		Message: message,
	}, nil)
}

func (s *openaiChatSink) Finish() error {
	if err := s.ensureRole(); err != nil {
		return err
	}
	return s.terminate(dialect.FinishStop, nil, nil)
}

func (s *openaiChatSink) terminate(reason string, streamErr *dialect.StreamError, guard *dialect.GuardInfo) error {
	if s.done {
		return nil
	}
	s.done = true
	chunk := dialect.ChatFinishChunk(s.id, s.created, s.model, reason, "")
	if streamErr != nil {
		chunk.Error = streamErr
	}
	chunk.Guard = guard
	if err := s.w.WriteEvent(chunk); err != nil {
		return err
	}
	return s.w.WriteDone()
}

// =============================================================================
// OpenAI completion sink
// =============================================================================

// openaiCompletionSink 把原生 generate 帧转译为 SSE text_completion 帧
type openaiCompletionSink struct {
	w       *dialect.SSEWriter
	id      string
	created int64
	model   string
	done    bool
}

func newOpenAICompletionSink(w http.ResponseWriter, model string) *openaiCompletionSink {
	return &openaiCompletionSink{
		w:       dialect.NewSSEWriter(w),
		id:      dialect.NewCompletionID(),
		created: time.Now().Unix(),
		model:   model,
	}
}

func (s *openaiCompletionSink) Forward(_ []byte, frame map[string]any) error {
	if frame == nil || s.done {
		return nil
	}
	if text := dialect.ExtractFrameText(frame); text != "" {
		if err := s.w.WriteEvent(dialect.CompletionTextChunk(s.id, s.created, s.model, text)); err != nil {
			return err
		}
	}
	if dialect.FrameDone(frame) {
		return s.terminate(nativeFinishReason(frame), nil, nil)
	}
	return nil
}

func (s *openaiCompletionSink) Blocked(message string, info *dialect.GuardInfo) error {
	return s.terminate(dialect.FinishContentFilter, &dialect.StreamError{
		Type:    dialect.ErrTypeContentPolicy,
		Message: message,
	}, info)
}

func (s *openaiCompletionSink) Fail(message string) error {
	return s.terminate(dialect.FinishStop, &dialect.StreamError{
		Type:    string(types.ErrServerError),
		Message: message,
	}, nil)
}

func (s *openaiCompletionSink) Finish() error {
	return s.terminate(dialect.FinishStop, nil, nil)
}

func (s *openaiCompletionSink) terminate(reason string, streamErr *dialect.StreamError, guard *dialect.GuardInfo) error {
	if s.done {
		return nil
	}
	s.done = true
	chunk := dialect.CompletionFinishChunk(s.id, s.created, s.model, reason, "")
	if streamErr != nil {
		chunk.Error = streamErr
	}
	chunk.Guard = guard
	if err := s.w.WriteEvent(chunk); err != nil {
		return err
	}
	return s.w.WriteDone()
}

// nativeFinishReason 从原生终帧取 done_reason 并映射为 OpenAI 终止原因
func nativeFinishReason(frame map[string]any) string {
	reason, _ := frame["done_reason"].(string)
	return dialect.FinishReasonFromNative(reason)
}
