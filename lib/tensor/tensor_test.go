// Copyright 2026 The TopicKA Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tensor

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSoftmaxSumsToOne(t *testing.T) {
	probs := Softmax([]float32{1.5, -2, 0.25, 7})
	var sum float32
	for _, p := range probs {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
	assert.Equal(t, 3, Argmax(probs))
}

func TestSoftmaxLargeLogitsStable(t *testing.T) {
	probs := Softmax([]float32{1000, 999, 998})
	for _, p := range probs {
		assert.False(t, math.IsNaN(float64(p)))
		assert.False(t, math.IsInf(float64(p), 0))
	}
	assert.Greater(t, probs[0], probs[1])
}

func TestMaskTailRenormalizes(t *testing.T) {
	// Probabilities 0.4/0.1/0.3/0.2 before masking; keeping only the
	// first two must renormalize to 0.8/0.2 of the remaining mass.
	logits := []float32{
		float32(math.Log(0.4)),
		float32(math.Log(0.1)),
		float32(math.Log(0.3)),
		float32(math.Log(0.2)),
	}
	MaskTail(logits, 2)
	probs := Softmax(logits)

	assert.InDelta(t, 0.4/0.5, probs[0], 1e-4)
	assert.InDelta(t, 0.1/0.5, probs[1], 1e-4)
	assert.Less(t, probs[2], float32(1e-6))
	assert.Less(t, probs[3], float32(1e-6))
}

func TestLogSoftmaxMatchesSoftmax(t *testing.T) {
	logits := []float32{0.5, -1, 2, 0}
	probs := Softmax(logits)
	lps := LogSoftmax(logits)
	for i := range probs {
		assert.InDelta(t, math.Log(float64(probs[i])), float64(lps[i]), 1e-4)
	}
}

func TestKLDivergence(t *testing.T) {
	p := []float32{0.5, 0.3, 0.2}
	assert.InDelta(t, 0, KLDivergence(p, p), 1e-6)

	q := []float32{0.2, 0.3, 0.5}
	assert.Greater(t, KLDivergence(p, q), float32(0))

	// Zero mass in q is clipped rather than producing infinities.
	kl := KLDivergence([]float32{0.5, 0.5}, []float32{1, 0})
	assert.False(t, math.IsInf(float64(kl), 0))
	assert.False(t, math.IsNaN(float64(kl)))
}

func TestSafeLogFloorsAtProbFloor(t *testing.T) {
	assert.Equal(t, SafeLog(0), SafeLog(ProbFloor))
	assert.InDelta(t, math.Log(1e-9), float64(SafeLog(0)), 1e-3)
}

func TestGumbelSoftmaxLowTemperatureIsArgmax(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	logits := []float32{0.1, 40, 0.3}
	for i := 0; i < 50; i++ {
		soft := GumbelSoftmax(rng, logits, 0.01)
		var sum float32
		for _, p := range soft {
			sum += p
		}
		require.InDelta(t, 1.0, sum, 1e-4)
		assert.Equal(t, 1, Argmax(soft))
	}
}

func TestGumbelSoftmaxHighTemperatureSpreads(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	soft := GumbelSoftmax(rng, []float32{0.1, 5, 0.3}, 100)
	for _, p := range soft {
		assert.Greater(t, p, float32(0.01))
	}
}

func TestSampleCategoricalRespectsMass(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	probs := []float32{0, 1, 0}
	for i := 0; i < 20; i++ {
		assert.Equal(t, 1, SampleCategorical(rng, probs))
	}
}

func TestTopKSortedDescending(t *testing.T) {
	idx := TopK([]float32{0.1, 0.9, 0.5, 0.7}, 3)
	assert.Equal(t, []int{1, 3, 2}, idx)

	// k larger than the vector is truncated.
	assert.Len(t, TopK([]float32{1, 2}, 5), 2)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0, Clamp(-3, 0, 5))
	assert.Equal(t, 5, Clamp(9, 0, 5))
	assert.Equal(t, 2, Clamp(2, 0, 5))
}

func TestLinearShapesAndDeterminism(t *testing.T) {
	a := NewLinear(rand.New(rand.NewSource(11)), 4, 3, Tanh, true)
	b := NewLinear(rand.New(rand.NewSource(11)), 4, 3, Tanh, true)

	x := []float32{0.5, -1, 0.25, 2}
	outA := a.Apply(x)
	outB := b.Apply(x)
	require.Len(t, outA, 3)
	assert.Equal(t, outA, outB)
	for _, v := range outA {
		assert.LessOrEqual(t, float64(v), 1.0)
		assert.GreaterOrEqual(t, float64(v), -1.0)
	}
}

func TestEmbeddingLookupClamps(t *testing.T) {
	emb := NewEmbedding(rand.New(rand.NewSource(1)), 10, 4)
	require.Len(t, emb.Lookup(3), 4)
	assert.Equal(t, emb.Lookup(0), emb.Lookup(-5))
	assert.Equal(t, emb.Lookup(9), emb.Lookup(100))
}
