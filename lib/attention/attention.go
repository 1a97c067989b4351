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

// Package attention implements the scoring functions the decoder uses to
// attend over encoder memory. The attention kind is a closed enum resolved
// once, at construction, into a concrete Mechanism; an unrecognized kind is
// a fatal configuration error, not a runtime condition.
package attention

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/SixingPKU/IJCAI2020-TopicKA/lib/tensor"
)

// Kind names an attention scoring function.
type Kind string

const (
	Luong          Kind = "luong"
	ScaledLuong    Kind = "scaled_luong"
	Bahdanau       Kind = "bahdanau"
	NormedBahdanau Kind = "normed_bahdanau"
)

// ParseKind validates a configured attention kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case Luong, ScaledLuong, Bahdanau, NormedBahdanau:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown attention kind %q", s)
	}
}

// Mechanism scores a query against every memory position. Implementations
// return raw logits; masking and normalization happen in Attend.
type Mechanism interface {
	Score(query []float32, memory [][]float32) []float32
}

// New builds the Mechanism for a kind. units is the query width, memDim the
// width of each memory vector.
func New(rng *rand.Rand, kind Kind, units, memDim int) (Mechanism, error) {
	switch kind {
	case Luong:
		return &luong{proj: tensor.NewLinear(rng, memDim, units, tensor.Identity, false)}, nil
	case ScaledLuong:
		return &luong{
			proj:  tensor.NewLinear(rng, memDim, units, tensor.Identity, false),
			scale: float32(1 / math.Sqrt(float64(units))),
		}, nil
	case Bahdanau:
		return newBahdanau(rng, units, memDim, false), nil
	case NormedBahdanau:
		return newBahdanau(rng, units, memDim, true), nil
	default:
		return nil, fmt.Errorf("unknown attention kind %q", kind)
	}
}

// luong scores by the inner product of the query with a projected memory
// vector, optionally scaled by 1/sqrt(units).
type luong struct {
	proj  *tensor.Linear
	scale float32
}

func (l *luong) Score(query []float32, memory [][]float32) []float32 {
	scores := make([]float32, len(memory))
	for s, m := range memory {
		v := tensor.Dot(query, l.proj.Apply(m))
		if l.scale != 0 {
			v *= l.scale
		}
		scores[s] = v
	}
	return scores
}

// bahdanau scores with an additive network v·tanh(Wq·q + Wm·m). The normed
// variant weight-normalizes v with a learned gain, initialized so the
// normalized vector matches the unnormalized one at construction.
type bahdanau struct {
	queryProj *tensor.Linear
	memProj   *tensor.Linear
	v         []float32
	normed    bool
	gain      float32
}

func newBahdanau(rng *rand.Rand, units, memDim int, normed bool) *bahdanau {
	b := &bahdanau{
		queryProj: tensor.NewLinear(rng, units, units, tensor.Identity, false),
		memProj:   tensor.NewLinear(rng, memDim, units, tensor.Identity, false),
		v:         make([]float32, units),
		normed:    normed,
	}
	limit := float32(math.Sqrt(3 / float64(units)))
	for i := range b.v {
		b.v[i] = (rng.Float32()*2 - 1) * limit
	}
	if normed {
		var norm float64
		for _, x := range b.v {
			norm += float64(x) * float64(x)
		}
		b.gain = float32(math.Sqrt(norm))
	}
	return b
}

func (b *bahdanau) attVector() []float32 {
	if !b.normed {
		return b.v
	}
	var norm float64
	for _, x := range b.v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return b.v
	}
	out := make([]float32, len(b.v))
	scale := b.gain / float32(norm)
	for i, x := range b.v {
		out[i] = x * scale
	}
	return out
}

func (b *bahdanau) Score(query []float32, memory [][]float32) []float32 {
	q := b.queryProj.Apply(query)
	v := b.attVector()
	scores := make([]float32, len(memory))
	for s, m := range memory {
		h := b.memProj.Apply(m)
		var sum float64
		for i := range h {
			sum += float64(v[i]) * math.Tanh(float64(h[i]+q[i]))
		}
		scores[s] = float32(sum)
	}
	return scores
}

// Attend scores the query against memory, masks positions at or beyond
// memLen, and returns the normalized alignment plus the weighted context
// vector (same width as a memory vector).
func Attend(m Mechanism, query []float32, memory [][]float32, memLen int) (align, context []float32) {
	scores := m.Score(query, memory)
	if memLen > len(memory) {
		memLen = len(memory)
	}
	tensor.MaskTail(scores, memLen)
	align = tensor.Softmax(scores)

	if len(memory) == 0 {
		return align, nil
	}
	context = tensor.Zeros(len(memory[0]))
	for s, w := range align {
		if w == 0 {
			continue
		}
		tensor.AXPY(context, w, memory[s])
	}
	return align, context
}
