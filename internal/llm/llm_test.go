package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvaluation_WellFormed(t *testing.T) {
	e := parseEvaluation("Score: 4/5 - Explanation: accurate and specific")
	require.NotNil(t, e.Score)
	assert.Equal(t, 4, *e.Score)
	assert.Equal(t, "accurate and specific", e.Explanation)
}

func TestParseEvaluation_ExtraWhitespace(t *testing.T) {
	e := parseEvaluation("  Score:  5 /5 - Explanation: precise  ")
	require.NotNil(t, e.Score)
	assert.Equal(t, 5, *e.Score)
	assert.Equal(t, "precise", e.Explanation)
}

func TestParseEvaluation_MalformedKeepsRawText(t *testing.T) {
	raw := "The caption looks fine to me, maybe a 4."
	e := parseEvaluation(raw)
	assert.Nil(t, e.Score)
	assert.Equal(t, raw, e.Explanation)
}

func TestParseEvaluation_MissingScorePrefix(t *testing.T) {
	raw := "Rating: 4/5 - Explanation: good"
	e := parseEvaluation(raw)
	assert.Nil(t, e.Score)
	assert.Equal(t, raw, e.Explanation)
}

func TestParseEvaluation_ScoreOutOfRange(t *testing.T) {
	raw := "Score: 9/5 - Explanation: enthusiastic"
	e := parseEvaluation(raw)
	assert.Nil(t, e.Score)
	assert.Equal(t, raw, e.Explanation)
}

func TestParseEvaluation_NonNumericScore(t *testing.T) {
	raw := "Score: four/5 - Explanation: spelled out"
	e := parseEvaluation(raw)
	assert.Nil(t, e.Score)
	assert.Equal(t, raw, e.Explanation)
}

func TestBuildEvalPrompt_EmbedsCaption(t *testing.T) {
	p := buildEvalPrompt("dented bumper")
	assert.True(t, strings.Contains(p, "'dented bumper'"))
	assert.True(t, strings.Contains(p, "Score: X/5"))
}
