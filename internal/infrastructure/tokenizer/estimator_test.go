package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEstimator_Shared(t *testing.T) {
	e1 := NewEstimator()
	e2 := NewEstimator()

	require.NotNil(t, e1)
	assert.Same(t, e1, e2, "should return the same instance")
	assert.Equal(t, "tiktoken", e1.Method())
}

func TestEstimator_CountTokens(t *testing.T) {
	estimator := NewEstimator()

	tests := []struct {
		name     string
		text     string
		minCount int
		maxCount int
	}{
		{"空字符串", "", 0, 0},
		{"简单英文", "Hello, world!", 3, 5},
		{"简单中文", "你好世界", 2, 8},
		{"长文本", "The quick brown fox jumps over the lazy dog. This is a test sentence that should produce a reasonable number of tokens.", 20, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count := estimator.CountTokens(tt.text)
			assert.GreaterOrEqual(t, count, tt.minCount)
			assert.LessOrEqual(t, count, tt.maxCount)
		})
	}
}

func TestCharEstimator(t *testing.T) {
	estimator := NewCharEstimator()

	assert.Equal(t, "chars", estimator.Method())
	assert.Equal(t, 0, estimator.CountTokens(""))
	assert.Equal(t, 1, estimator.CountTokens("abc"))
	assert.Equal(t, 1, estimator.CountTokens("abcd"))
	assert.Equal(t, 2, estimator.CountTokens("abcde"))
}

func TestNilEstimatorFallsBack(t *testing.T) {
	var estimator *Estimator
	assert.Equal(t, 3, estimator.CountTokens("twelve chars"))
}
