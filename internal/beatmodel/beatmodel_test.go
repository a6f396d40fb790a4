package beatmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeClassesPassesThroughWhenSumNearOne(t *testing.T) {
	classes := []float32{0.5, 0.3, 0.199}
	out := normalizeClasses(classes)
	assert.Equal(t, classes, out)
}

func TestNormalizeClassesAppliesSoftmaxWhenSumOff(t *testing.T) {
	classes := []float32{5, 1, 0.2}
	out := normalizeClasses(classes)

	var sum float32
	for _, v := range out {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
	// softmax of distinct logits should not equal the raw (non-normalized) values
	assert.NotEqual(t, classes, out)
}

func TestResetStateClearsFailureAndReadiness(t *testing.T) {
	m := &Model{}
	m.ResetState()
	assert.True(t, m.Ready())

	m.consecutiveFailures = maxConsecutiveFailures
	m.notReady = true
	assert.False(t, m.Ready())

	m.ResetState()
	assert.True(t, m.Ready())
	assert.Equal(t, 0, m.consecutiveFailures)
	assert.Len(t, m.hidden, hiddenLayers*hiddenSize)
	assert.Len(t, m.cell, hiddenLayers*hiddenSize)
}

func TestInferRejectsWhenNotReady(t *testing.T) {
	m := &Model{notReady: true}
	_, err := m.Infer(make([]float64, featureDim))
	assert.Error(t, err)
}

func TestInferRejectsWrongFeatureLength(t *testing.T) {
	m := &Model{}
	m.ResetState()
	_, err := m.Infer(make([]float64, featureDim-1))
	assert.Error(t, err)
}
