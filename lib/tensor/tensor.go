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

// Package tensor provides the float32 vector primitives the generation
// engine is built on. Everything operates on flat []float32 slices; batch
// and beam parallelism is expressed by the callers, never here.
package tensor

import (
	"math"
	"math/rand"
	"sort"
)

const (
	// MaskValue is the additive bias applied to logits at positions that
	// must receive no probability mass.
	MaskValue float32 = -1e10

	// ProbFloor is the smallest probability ever passed to a logarithm.
	ProbFloor float32 = 1e-9
)

// Zeros returns a fresh zero vector of length n.
func Zeros(n int) []float32 {
	return make([]float32, n)
}

// Clone returns a copy of v.
func Clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

// Dot returns the inner product of a and b. Panics if lengths differ.
func Dot(a, b []float32) float32 {
	if len(a) != len(b) {
		panic("tensor: dot length mismatch")
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(sum)
}

// Concat concatenates the given vectors into a new one.
func Concat(vs ...[]float32) []float32 {
	n := 0
	for _, v := range vs {
		n += len(v)
	}
	out := make([]float32, 0, n)
	for _, v := range vs {
		out = append(out, v...)
	}
	return out
}

// AXPY adds scale*x to dst element-wise.
func AXPY(dst []float32, scale float32, x []float32) {
	for i := range x {
		dst[i] += scale * x[i]
	}
}

// Scale multiplies v by s in place and returns it.
func Scale(v []float32, s float32) []float32 {
	for i := range v {
		v[i] *= s
	}
	return v
}

// Mean returns the arithmetic mean of v, or 0 for an empty vector.
func Mean(v []float32) float32 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += float64(x)
	}
	return float32(sum / float64(len(v)))
}

// Tanhf is tanh on a single float32.
func Tanhf(x float32) float32 {
	return float32(math.Tanh(float64(x)))
}

// Sigmoidf is the logistic function on a single float32.
func Sigmoidf(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}

// SafeLog returns log(p) with p floored at ProbFloor, so log(0) is never
// evaluated.
func SafeLog(p float32) float32 {
	if p < ProbFloor {
		p = ProbFloor
	}
	return float32(math.Log(float64(p)))
}

// Softmax returns the normalized distribution for the given logits.
// The input is not modified.
func Softmax(logits []float32) []float32 {
	out := make([]float32, len(logits))
	if len(logits) == 0 {
		return out
	}
	maxL := logits[0]
	for _, l := range logits[1:] {
		if l > maxL {
			maxL = l
		}
	}
	var sum float64
	for i, l := range logits {
		e := math.Exp(float64(l - maxL))
		out[i] = float32(e)
		sum += e
	}
	inv := float32(1 / sum)
	for i := range out {
		out[i] *= inv
	}
	return out
}

// LogSoftmax returns log-probabilities for the given logits.
func LogSoftmax(logits []float32) []float32 {
	out := make([]float32, len(logits))
	if len(logits) == 0 {
		return out
	}
	maxL := logits[0]
	for _, l := range logits[1:] {
		if l > maxL {
			maxL = l
		}
	}
	var sum float64
	for _, l := range logits {
		sum += math.Exp(float64(l - maxL))
	}
	logZ := float32(math.Log(sum)) + maxL
	for i, l := range logits {
		out[i] = l - logZ
	}
	return out
}

// MaskTail adds MaskValue to every position at or beyond valid, leaving the
// head of the logits untouched.
func MaskTail(logits []float32, valid int) {
	if valid < 0 {
		valid = 0
	}
	for i := valid; i < len(logits); i++ {
		logits[i] += MaskValue
	}
}

// Argmax returns the index of the largest element (first on ties), or -1
// for an empty vector.
func Argmax(v []float32) int {
	if len(v) == 0 {
		return -1
	}
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

// SampleCategorical draws one index from the given distribution. The
// distribution is assumed normalized; any residual mass falls on the last
// index.
func SampleCategorical(rng *rand.Rand, probs []float32) int {
	u := rng.Float64()
	var acc float64
	for i, p := range probs {
		acc += float64(p)
		if u < acc {
			return i
		}
	}
	return len(probs) - 1
}

// GumbelSoftmax draws a relaxed one-hot sample from the categorical defined
// by logits, at the given temperature. Lower temperatures concentrate the
// mass; as temperature approaches zero the output converges to the one-hot
// argmax of the perturbed logits.
func GumbelSoftmax(rng *rand.Rand, logits []float32, temperature float32) []float32 {
	if temperature <= 0 {
		temperature = 1e-4
	}
	perturbed := make([]float32, len(logits))
	for i, l := range logits {
		u := rng.Float64()
		if u < 1e-12 {
			u = 1e-12
		}
		g := -math.Log(-math.Log(u))
		perturbed[i] = (l + float32(g)) / temperature
	}
	return Softmax(perturbed)
}

// KLDivergence returns KL(p || q) for two distributions over the same
// support. q is clipped to [ProbFloor, 1] inside the log so padded
// positions with ~0 mass on both sides contribute nothing.
func KLDivergence(p, q []float32) float32 {
	var sum float64
	for i := range p {
		if p[i] <= 0 {
			continue
		}
		qi := q[i]
		if qi < ProbFloor {
			qi = ProbFloor
		}
		if qi > 1 {
			qi = 1
		}
		sum += float64(p[i]) * (math.Log(float64(p[i])) - math.Log(float64(qi)))
	}
	return float32(sum)
}

// TopK returns the indices of the k largest elements in descending score
// order. k is clamped to len(v).
func TopK(v []float32, k int) []int {
	if k > len(v) {
		k = len(v)
	}
	idx := make([]int, len(v))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return v[idx[a]] > v[idx[b]] })
	return idx[:k]
}

// Clamp restricts x to the inclusive range [lo, hi].
func Clamp(x, lo, hi int) int {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
