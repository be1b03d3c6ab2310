package scanner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCode_Scan(t *testing.T) {
	s := NewCode(nil, true)
	ctx := context.Background()

	tests := []struct {
		name string
		text string
		pass bool
	}{
		{name: "python def", text: "def main(argv):\n    return 0", pass: false},
		{name: "go func", text: "package main\n\nfunc main() {\n}", pass: false},
		{name: "fenced python block", text: "```python\nprint('hi')\n```", pass: false},
		{name: "c include", text: "#include <stdio.h>\nint main() { return 0; }", pass: false},
		{name: "sql select", text: "SELECT id, name FROM users WHERE id = 1", pass: false},
		{name: "prose", text: "Let me explain how functions work in general terms.", pass: true},
		{name: "empty", text: "", pass: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.Scan(ctx, tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.pass, res.Passed, "risk=%.2f", res.RiskScore)
		})
	}
}

func TestCode_LanguageFilter(t *testing.T) {
	pythonOnly := NewCode([]string{"python"}, true)

	res, err := pythonOnly.Scan(context.Background(), "package main\n\nfunc main() {\n}")
	require.NoError(t, err)
	assert.True(t, res.Passed, "Go 代码不在目标语言集内")

	res, err = pythonOnly.Scan(context.Background(), "def handler(event):\n    pass")
	require.NoError(t, err)
	assert.False(t, res.Passed)
}

func TestCode_NonBlocking(t *testing.T) {
	s := NewCode(nil, false)

	res, err := s.Scan(context.Background(), "def main():\n    return 1")
	require.NoError(t, err)
	assert.True(t, res.Passed, "非拦截模式只上报不拦截")
	assert.Greater(t, res.RiskScore, 0.0)
}

func TestCode_FencedBlockRespectsFilter(t *testing.T) {
	goOnly := NewCode([]string{"go"}, true)

	res, err := goOnly.Scan(context.Background(), "```python\nprint('x')\n```")
	require.NoError(t, err)
	assert.True(t, res.Passed)

	res, err = goOnly.Scan(context.Background(), "```go\nfmt.Println(1)\n```")
	require.NoError(t, err)
	assert.False(t, res.Passed)
}
