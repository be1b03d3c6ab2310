package scanner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToxicity_Scan(t *testing.T) {
	s := NewToxicity(defaultToxicityThreshold)
	ctx := context.Background()

	tests := []struct {
		name string
		text string
		pass bool
	}{
		{name: "threat", text: "I will kill you if you do that again", pass: false},
		{name: "chinese threat", text: "你这种人去死吧", pass: false},
		{name: "insult", text: "you are a worthless idiot", pass: false},
		{name: "chinese insult", text: "你就是个白痴", pass: false},
		{name: "mild profanity passes default threshold", text: "damn, that sucks", pass: true},
		{name: "neutral", text: "the weather is nice today", pass: true},
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

func TestToxicity_Score(t *testing.T) {
	s := NewToxicity(defaultToxicityThreshold)

	assert.Zero(t, s.Score("hello there"))
	assert.InDelta(t, 0.7, s.Score("you idiot"), 1e-9)
	// 两个层级命中叠加 0.05
	assert.InDelta(t, 0.75, s.Score("you damn idiot"), 1e-9)
	// 威胁层 + 侮辱层 + 轻度层
	assert.InDelta(t, 1.0, s.Score("I will kill you, you damn worthless idiot"), 1e-9)
}

func TestToxicity_CustomThreshold(t *testing.T) {
	permissive := NewToxicity(0.96)
	res, err := permissive.Scan(context.Background(), "you idiot")
	require.NoError(t, err)
	assert.True(t, res.Passed)

	strict := NewToxicity(0.3)
	res, err = strict.Scan(context.Background(), "damn")
	require.NoError(t, err)
	assert.False(t, res.Passed)
}
