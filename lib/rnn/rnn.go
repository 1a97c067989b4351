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

// Package rnn provides the recurrent cells the encoder and decoder are
// built from. The time dimension is an inherently sequential dependency
// chain; cells expose single-step transitions and callers drive the loop.
package rnn

import (
	"math/rand"

	"github.com/SixingPKU/IJCAI2020-TopicKA/lib/tensor"
)

// GRUCell is a gated recurrent unit over float32 vectors.
type GRUCell struct {
	InDim int
	Units int

	reset     *tensor.Linear
	update    *tensor.Linear
	candidate *tensor.Linear
}

// NewGRUCell creates a cell taking inDim inputs and carrying units state.
func NewGRUCell(rng *rand.Rand, inDim, units int) *GRUCell {
	return &GRUCell{
		InDim:     inDim,
		Units:     units,
		reset:     tensor.NewLinear(rng, inDim+units, units, tensor.Sigmoid, true),
		update:    tensor.NewLinear(rng, inDim+units, units, tensor.Sigmoid, true),
		candidate: tensor.NewLinear(rng, inDim+units, units, tensor.Tanh, true),
	}
}

// ZeroState returns the initial hidden state.
func (c *GRUCell) ZeroState() []float32 { return tensor.Zeros(c.Units) }

// Step advances the cell one timestep, returning the new hidden state
// (which is also the cell output).
func (c *GRUCell) Step(x, h []float32) []float32 {
	xh := tensor.Concat(x, h)
	r := c.reset.Apply(xh)
	z := c.update.Apply(xh)

	gated := make([]float32, len(h))
	for i := range h {
		gated[i] = r[i] * h[i]
	}
	n := c.candidate.Apply(tensor.Concat(x, gated))

	out := make([]float32, c.Units)
	for i := range out {
		out[i] = (1-z[i])*n[i] + z[i]*h[i]
	}
	return out
}

// MultiCell stacks GRU cells; layer l feeds layer l+1.
type MultiCell struct {
	Cells []*GRUCell
}

// NewMultiCell builds a stack of layers cells. The first layer takes inDim
// inputs, deeper layers take units.
func NewMultiCell(rng *rand.Rand, inDim, units, layers int) *MultiCell {
	if layers < 1 {
		layers = 1
	}
	m := &MultiCell{Cells: make([]*GRUCell, layers)}
	for l := range m.Cells {
		d := units
		if l == 0 {
			d = inDim
		}
		m.Cells[l] = NewGRUCell(rng, d, units)
	}
	return m
}

// Layers returns the stack depth.
func (m *MultiCell) Layers() int { return len(m.Cells) }

// Units returns the per-layer state width.
func (m *MultiCell) Units() int { return m.Cells[0].Units }

// ZeroState returns one zero state per layer.
func (m *MultiCell) ZeroState() [][]float32 {
	states := make([][]float32, len(m.Cells))
	for l, c := range m.Cells {
		states[l] = c.ZeroState()
	}
	return states
}

// Step advances every layer one timestep. Returns the top layer's output
// and the full new state stack.
func (m *MultiCell) Step(x []float32, states [][]float32) ([]float32, [][]float32) {
	next := make([][]float32, len(m.Cells))
	in := x
	for l, c := range m.Cells {
		next[l] = c.Step(in, states[l])
		in = next[l]
	}
	return in, next
}

// Encoder is a bidirectional stacked GRU. It produces one memory vector
// per source position (forward and backward outputs concatenated) and a
// per-layer state summary.
type Encoder struct {
	fwd *MultiCell
	bwd *MultiCell
}

// NewEncoder creates a bidirectional encoder with units per direction.
func NewEncoder(rng *rand.Rand, inDim, units, layers int) *Encoder {
	return &Encoder{
		fwd: NewMultiCell(rng, inDim, units, layers),
		bwd: NewMultiCell(rng, inDim, units, layers),
	}
}

// MemoryDim returns the width of each memory vector (both directions).
func (e *Encoder) MemoryDim() int { return 2 * e.fwd.Units() }

// StateDim returns the width of the concatenated per-layer state summary.
func (e *Encoder) StateDim() int { return e.fwd.Layers() * 2 * e.fwd.Units() }

// Encode consumes the padded input embeddings and the true length.
// memory keeps the padded shape (rows beyond length stay zero so copy-slot
// indexing never leaves the array); states is the concatenation, layer by
// layer, of the final forward and backward hidden states.
func (e *Encoder) Encode(inputs [][]float32, length int) (memory [][]float32, states []float32) {
	if length > len(inputs) {
		length = len(inputs)
	}
	units := e.fwd.Units()
	memory = make([][]float32, len(inputs))
	for t := range memory {
		memory[t] = tensor.Zeros(2 * units)
	}

	fwStates := e.fwd.ZeroState()
	var fwOut []float32
	for t := 0; t < length; t++ {
		fwOut, fwStates = e.fwd.Step(inputs[t], fwStates)
		copy(memory[t][:units], fwOut)
	}

	bwStates := e.bwd.ZeroState()
	var bwOut []float32
	for t := length - 1; t >= 0; t-- {
		bwOut, bwStates = e.bwd.Step(inputs[t], bwStates)
		copy(memory[t][units:], bwOut)
	}

	parts := make([][]float32, 0, e.fwd.Layers())
	for l := 0; l < e.fwd.Layers(); l++ {
		parts = append(parts, tensor.Concat(fwStates[l], bwStates[l]))
	}
	return memory, tensor.Concat(parts...)
}
