package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQAPairs_PlainArray(t *testing.T) {
	raw := `[{"question":"什么是缓存","answer":"临时存储"},{"question":"what is a queue","answer":"fifo structure","self_eval":4}]`

	pairs, err := ParseQAPairs(raw)
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, "什么是缓存", pairs[0].Question)
	assert.Equal(t, 4, pairs[1].SelfEval)
}

func TestParseQAPairs_CodeFence(t *testing.T) {
	raw := "```json\n[{\"question\":\"q1\",\"answer\":\"a1\"}]\n```"

	pairs, err := ParseQAPairs(raw)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, "q1", pairs[0].Question)
}

func TestParseQAPairs_ObjectPerLine(t *testing.T) {
	raw := `{"question":"q1","answer":"a1"},
{"question":"q2","answer":"a2"}`

	pairs, err := ParseQAPairs(raw)
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, "q2", pairs[1].Question)
}

func TestParseQAPairs_RegexFallback(t *testing.T) {
	// 数组整体与逐行都无法解析时退回正则提取
	raw := `Here are the pairs: {"question": "how to reset", "answer": "run the reset \"command\""} and some trailing prose`

	pairs, err := ParseQAPairs(raw)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, "how to reset", pairs[0].Question)
	assert.Equal(t, `run the reset "command"`, pairs[0].Answer)
}

func TestParseQAPairs_FiltersEmptyEntries(t *testing.T) {
	raw := `[{"question":"","answer":"orphan"},{"question":"valid","answer":"yes"}]`

	pairs, err := ParseQAPairs(raw)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, "valid", pairs[0].Question)
}

func TestParseQAPairs_NoPairsIsError(t *testing.T) {
	_, err := ParseQAPairs("I could not generate any questions for this content.")
	assert.Error(t, err)
}
