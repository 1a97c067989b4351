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
)

// Activation selects the nonlinearity applied by a Linear layer.
type Activation int

const (
	// Identity applies no nonlinearity.
	Identity Activation = iota
	// Tanh applies the hyperbolic tangent.
	Tanh
	// Sigmoid applies the logistic function.
	Sigmoid
	// ELU applies the exponential linear unit.
	ELU
	// ReLU applies the rectified linear unit.
	ReLU
)

func (a Activation) apply(x float32) float32 {
	switch a {
	case Tanh:
		return Tanhf(x)
	case Sigmoid:
		return Sigmoidf(x)
	case ELU:
		if x >= 0 {
			return x
		}
		return float32(math.Exp(float64(x)) - 1)
	case ReLU:
		if x > 0 {
			return x
		}
		return 0
	default:
		return x
	}
}

// Linear is a dense layer y = act(W·x + b). Weights are read-only during a
// forward pass; the training step is the single mutation point.
type Linear struct {
	In, Out int
	// W is laid out row-major, one row per output unit.
	W [][]float32
	// B is nil when the layer has no bias.
	B   []float32
	Act Activation
}

// NewLinear creates a dense layer with Glorot-uniform initialized weights.
func NewLinear(rng *rand.Rand, in, out int, act Activation, bias bool) *Linear {
	l := &Linear{In: in, Out: out, Act: act}
	limit := float32(math.Sqrt(6 / float64(in+out)))
	l.W = make([][]float32, out)
	for o := range l.W {
		row := make([]float32, in)
		for i := range row {
			row[i] = (rng.Float32()*2 - 1) * limit
		}
		l.W[o] = row
	}
	if bias {
		l.B = make([]float32, out)
	}
	return l
}

// Apply runs the layer on a single vector.
func (l *Linear) Apply(x []float32) []float32 {
	if len(x) != l.In {
		panic("tensor: linear input size mismatch")
	}
	out := make([]float32, l.Out)
	for o, row := range l.W {
		v := Dot(row, x)
		if l.B != nil {
			v += l.B[o]
		}
		out[o] = l.Act.apply(v)
	}
	return out
}

// ApplyBatch runs the layer on each row of xs.
func (l *Linear) ApplyBatch(xs [][]float32) [][]float32 {
	out := make([][]float32, len(xs))
	for i, x := range xs {
		out[i] = l.Apply(x)
	}
	return out
}

// Embedding is a lookup table of fixed-width rows.
type Embedding struct {
	Dim  int
	Rows [][]float32
}

// NewEmbedding creates a table of n random rows of width dim.
func NewEmbedding(rng *rand.Rand, n, dim int) *Embedding {
	e := &Embedding{Dim: dim, Rows: make([][]float32, n)}
	limit := float32(math.Sqrt(3 / float64(dim)))
	for i := range e.Rows {
		row := make([]float32, dim)
		for j := range row {
			row[j] = (rng.Float32()*2 - 1) * limit
		}
		e.Rows[i] = row
	}
	return e
}

// Len returns the number of rows.
func (e *Embedding) Len() int { return len(e.Rows) }

// Lookup returns the row for id, clamping id into the valid range. Ids at
// inference time are model predictions and are never trusted to be
// well-formed.
func (e *Embedding) Lookup(id int) []float32 {
	return e.Rows[Clamp(id, 0, len(e.Rows)-1)]
}
