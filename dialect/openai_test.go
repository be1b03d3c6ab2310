package dialect

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/guardflow/types"
)

func TestFlexiblePrompt_String(t *testing.T) {
	var p FlexiblePrompt
	require.NoError(t, json.Unmarshal([]byte(`"hello world"`), &p))
	assert.Equal(t, "hello world", p.Text())
}

func TestFlexiblePrompt_ArrayJoinsWithNewline(t *testing.T) {
	var p FlexiblePrompt
	require.NoError(t, json.Unmarshal([]byte(`["line one","line two","line three"]`), &p))
	assert.Equal(t, "line one\nline two\nline three", p.Text())
}

func TestFlexiblePrompt_NullAndEmpty(t *testing.T) {
	var p FlexiblePrompt
	require.NoError(t, json.Unmarshal([]byte(`null`), &p))
	assert.Equal(t, "", p.Text())

	require.NoError(t, json.Unmarshal([]byte(`[]`), &p))
	assert.Equal(t, "", p.Text())
}

func TestFlexiblePrompt_RejectsInvalid(t *testing.T) {
	var p FlexiblePrompt
	assert.Error(t, json.Unmarshal([]byte(`123`), &p))
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &p))
}

func TestFlexiblePrompt_MarshalAsString(t *testing.T) {
	data, err := json.Marshal(NewPrompt("a\nb"))
	require.NoError(t, err)
	assert.Equal(t, `"a\nb"`, string(data))
}

func TestChatCompletionRequest_LatestUserText(t *testing.T) {
	req := &ChatCompletionRequest{
		Messages: []types.Message{
			types.NewUserMessage("first"),
			types.NewAssistantMessage("reply"),
			types.NewUserMessage("second"),
		},
	}
	assert.Equal(t, "second", req.LatestUserText())

	empty := &ChatCompletionRequest{Messages: []types.Message{types.NewAssistantMessage("only")}}
	assert.Equal(t, "", empty.LatestUserText())
}

func TestChatCompletionRequest_StreamDefaultsFalse(t *testing.T) {
	var req ChatCompletionRequest
	require.NoError(t, json.Unmarshal([]byte(`{"model":"m","messages":[]}`), &req))
	assert.False(t, req.Stream)
}
