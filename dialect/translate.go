// =============================================================================
// 🔁 方言转译
// =============================================================================
// OpenAI 兼容协议与后端原生协议的双向无状态转译。
// 请求方向：解码选项平移到 options 子对象，max_tokens → num_predict；
// 响应方向：eval 计数映射为 usage，合成 OpenAI 风格 id 与时间戳。
// =============================================================================
package dialect

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/guardflow/types"
	"github.com/BaSui01/guardflow/upstream"
)

// ToNativeChat 将 OpenAI chat 请求转译为原生 chat 请求。
// 消息原样转发；解码选项收拢到 options。
func (r *ChatCompletionRequest) ToNativeChat(stream bool) *upstream.ChatRequest {
	return &upstream.ChatRequest{
		Model:    r.Model,
		Messages: r.Messages,
		Stream:   &stream,
		Options: buildOptions(optionFields{
			MaxTokens:        r.MaxTokens,
			Temperature:      r.Temperature,
			TopP:             r.TopP,
			TopK:             r.TopK,
			RepeatPenalty:    r.RepeatPenalty,
			NumCtx:           r.NumCtx,
			Seed:             r.Seed,
			Stop:             r.Stop,
			PresencePenalty:  r.PresencePenalty,
			FrequencyPenalty: r.FrequencyPenalty,
		}),
	}
}

// ToNativeGenerate 将 OpenAI completion 请求转译为原生 generate 请求。
// 数组形态的 prompt 已在解码时按换行拼接。
func (r *CompletionRequest) ToNativeGenerate(stream bool) *upstream.GenerateRequest {
	return &upstream.GenerateRequest{
		Model:  r.Model,
		Prompt: r.Prompt.Text(),
		Stream: &stream,
		Options: buildOptions(optionFields{
			MaxTokens:        r.MaxTokens,
			Temperature:      r.Temperature,
			TopP:             r.TopP,
			TopK:             r.TopK,
			RepeatPenalty:    r.RepeatPenalty,
			NumCtx:           r.NumCtx,
			Seed:             r.Seed,
			Stop:             r.Stop,
			PresencePenalty:  r.PresencePenalty,
			FrequencyPenalty: r.FrequencyPenalty,
		}),
	}
}

// optionFields 两种 OpenAI 请求共有的解码选项
type optionFields struct {
	MaxTokens        *int
	Temperature      *float64
	TopP             *float64
	TopK             *int
	RepeatPenalty    *float64
	NumCtx           *int
	Seed             *int
	Stop             json.RawMessage
	PresencePenalty  *float64
	FrequencyPenalty *float64
}

// buildOptions 只收拢客户端实际设置的选项；全空返回 nil
func buildOptions(f optionFields) map[string]any {
	opts := make(map[string]any)
	if f.MaxTokens != nil {
		opts["num_predict"] = *f.MaxTokens
	}
	if f.Temperature != nil {
		opts["temperature"] = *f.Temperature
	}
	if f.TopP != nil {
		opts["top_p"] = *f.TopP
	}
	if f.TopK != nil {
		opts["top_k"] = *f.TopK
	}
	if f.RepeatPenalty != nil {
		opts["repeat_penalty"] = *f.RepeatPenalty
	}
	if f.NumCtx != nil {
		opts["num_ctx"] = *f.NumCtx
	}
	if f.Seed != nil {
		opts["seed"] = *f.Seed
	}
	if len(f.Stop) > 0 {
		var stop any
		if err := json.Unmarshal(f.Stop, &stop); err == nil {
			opts["stop"] = stop
		}
	}
	if f.PresencePenalty != nil {
		opts["presence_penalty"] = *f.PresencePenalty
	}
	if f.FrequencyPenalty != nil {
		opts["frequency_penalty"] = *f.FrequencyPenalty
	}
	if len(opts) == 0 {
		return nil
	}
	return opts
}

// NewChatCompletionID 合成 chat 响应 id（chatcmpl-<hex>）
func NewChatCompletionID() string {
	return "chatcmpl-" + randomHex()
}

// NewCompletionID 合成 completion 响应 id（cmpl-<hex>）
func NewCompletionID() string {
	return "cmpl-" + randomHex()
}

func randomHex() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// FinishReasonFromNative 将原生 done_reason 映射为 OpenAI finish_reason
func FinishReasonFromNative(doneReason string) string {
	switch doneReason {
	case "length":
		return FinishLength
	case DoneReasonGuardBlocked:
		return FinishContentFilter
	default:
		return FinishStop
	}
}

// UsageFromNative 将原生 eval 计数映射为 OpenAI usage
func UsageFromNative(promptEval, evalCount int) Usage {
	return Usage{
		PromptTokens:     promptEval,
		CompletionTokens: evalCount,
		TotalTokens:      promptEval + evalCount,
	}
}

// FromNativeChat 将原生 chat 响应转译为 OpenAI chat completion
func FromNativeChat(resp *upstream.ChatResponse, model string) *ChatCompletion {
	content := resp.Message.Text()
	return &ChatCompletion{
		ID:      NewChatCompletionID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []ChatChoice{{
			Index:        0,
			Message:      types.NewAssistantMessage(content),
			FinishReason: FinishReasonFromNative(resp.DoneReason),
		}},
		Usage: UsageFromNative(resp.PromptEvalCount, resp.EvalCount),
	}
}

// FromNativeGenerate 将原生 generate 响应转译为 OpenAI completion
func FromNativeGenerate(resp *upstream.GenerateResponse, model string) *Completion {
	finish := FinishReasonFromNative(resp.DoneReason)
	return &Completion{
		ID:      NewCompletionID(),
		Object:  "text_completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []CompletionChoice{{
			Index:        0,
			Text:         resp.Response,
			FinishReason: &finish,
		}},
		Usage: UsageFromNative(resp.PromptEvalCount, resp.EvalCount),
	}
}
