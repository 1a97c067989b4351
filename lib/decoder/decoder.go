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

// Package decoder implements the dual-path fusion decoder and the
// extended-vocabulary index resolver. A standard recurrence and a
// knowledge-cue recurrence run side by side and are blended by a learned
// gate; the fused output is projected onto the extended vocabulary
// (common words, copy slots, entity slots).
package decoder

import (
	"fmt"
	"math/rand"

	"github.com/SixingPKU/IJCAI2020-TopicKA/lib/attention"
	"github.com/SixingPKU/IJCAI2020-TopicKA/lib/rnn"
	"github.com/SixingPKU/IJCAI2020-TopicKA/lib/tensor"
	"github.com/SixingPKU/IJCAI2020-TopicKA/lib/vocab"
)

// Config sizes and shapes the decoder. The capability flags resolve, at
// construction, into optional stages rather than branches inside the step.
type Config struct {
	Units  int
	Layers int

	// EmbedDim is the word embedding width, EntityDim the entity
	// embedding width, CueDim the fact vector width.
	EmbedDim  int
	EntityDim int
	CueDim    int

	// MidDim is the hidden width of the bag-of-words head.
	MidDim int
	// SimDim is the similarity width for per-step multi-cue scoring.
	SimDim int

	Space vocab.ExtendedSpace

	Attention attention.Kind

	EnableCopy   bool
	EnableEntity bool
	// EnableFusion turns the knowledge path on; when false only the
	// standard recurrence with plain attention runs.
	EnableFusion bool
	// MultiCue re-attends over the full candidate pool every step instead
	// of conditioning on the single selected cue.
	MultiCue bool

	// EncoderSummaryDim is the width of the encoder state summary used to
	// initialize the decoder.
	EncoderSummaryDim int
	// MemoryDim is the width of one encoder memory vector.
	MemoryDim int
}

// InputDim returns the width of one decoder input embedding: the word part
// plus, when enabled, the copy and entity parts, always in that order.
func (c Config) InputDim() int {
	d := c.EmbedDim
	if c.EnableCopy {
		d += c.EmbedDim
	}
	if c.EnableEntity {
		d += c.EntityDim
	}
	return d
}

// Context is the fixed per-example conditioning shared by every timestep
// of one decode. Beam search tiles one Context per hypothesis group.
type Context struct {
	Memory    [][]float32
	MemoryLen int

	SourceIDs []int

	// Candidates is the padded fact pool embedding; FactIDs the pool's
	// fact ids; FactLen the true pool size.
	Candidates [][]float32
	FactIDs    []int
	FactLen    int

	// Cue is the selected cue embedding, fixed for the whole sequence.
	Cue []float32
}

// State is the decoder's recurrent state for one hypothesis.
type State struct {
	Std [][]float32
	Cue [][]float32
	// Attn is the previous step's attended output, fed back as part of
	// the next input.
	Attn []float32
}

// Clone deep-copies the state; beam hypotheses must never share slices.
func (s *State) Clone() *State {
	out := &State{
		Std:  make([][]float32, len(s.Std)),
		Cue:  make([][]float32, len(s.Cue)),
		Attn: tensor.Clone(s.Attn),
	}
	for i, v := range s.Std {
		out.Std[i] = tensor.Clone(v)
	}
	for i, v := range s.Cue {
		out.Cue[i] = tensor.Clone(v)
	}
	return out
}

// StepResult carries everything one decode step produces.
type StepResult struct {
	// Output is the fused, attended decoder output.
	Output []float32
	// Logits spans the full extended vocabulary V+C+E. Disabled or padded
	// partitions carry the mask bias.
	Logits []float32
	// Align is the attention distribution over source positions.
	Align []float32
	// FactAlign is the per-step candidate distribution in multi-cue mode,
	// nil otherwise.
	FactAlign []float32
	// Gate is the mean fusion-gate value (1 when fusion is disabled).
	Gate float32
	// TypeLogits is the 3-way word/copy/entity selector head.
	TypeLogits []float32
}

// Decoder is the step-wise fusion decoder. All weights are read-only
// during a forward pass.
type Decoder struct {
	cfg Config

	stdCell *rnn.MultiCell
	cueCell *rnn.MultiCell

	mech      attention.Mechanism
	attnLayer *tensor.Linear

	gate *tensor.Linear

	projection *tensor.Linear
	copyKey    *tensor.Linear
	entityKey  *tensor.Linear
	typeHead   *tensor.Linear

	factQuery *tensor.Linear
	factKey   *tensor.Linear

	initProj []*tensor.Linear

	bowHidden *tensor.Linear
	bowOut    *tensor.Linear
}

// New constructs the decoder; an unrecognized attention kind is fatal
// here, before any computation.
func New(rng *rand.Rand, cfg Config) (*Decoder, error) {
	if cfg.Units <= 0 || cfg.Layers <= 0 {
		return nil, fmt.Errorf("decoder needs positive units and layers, got %d/%d", cfg.Units, cfg.Layers)
	}
	mech, err := attention.New(rng, cfg.Attention, cfg.Units, cfg.MemoryDim)
	if err != nil {
		return nil, err
	}

	d := &Decoder{
		cfg:        cfg,
		mech:       mech,
		stdCell:    rnn.NewMultiCell(rng, cfg.InputDim()+cfg.Units, cfg.Units, cfg.Layers),
		attnLayer:  tensor.NewLinear(rng, cfg.Units+cfg.MemoryDim, cfg.Units, tensor.Tanh, false),
		projection: tensor.NewLinear(rng, cfg.Units, cfg.Space.VocabSize, tensor.Identity, false),
		typeHead:   tensor.NewLinear(rng, cfg.Units, 3, tensor.Identity, true),
		bowHidden:  tensor.NewLinear(rng, cfg.Layers*cfg.Units, cfg.MidDim, tensor.ELU, true),
		bowOut:     tensor.NewLinear(rng, cfg.MidDim, cfg.Space.VocabSize, tensor.Identity, true),
	}

	initIn := cfg.EncoderSummaryDim
	if cfg.EnableFusion {
		initIn += cfg.CueDim
		d.cueCell = rnn.NewMultiCell(rng, cfg.InputDim()+cfg.CueDim, cfg.Units, cfg.Layers)
		d.gate = tensor.NewLinear(rng, 2*cfg.Units, cfg.Units, tensor.Sigmoid, true)
		if cfg.MultiCue {
			d.factQuery = tensor.NewLinear(rng, cfg.Units, cfg.SimDim, tensor.ELU, true)
			d.factKey = tensor.NewLinear(rng, cfg.CueDim, cfg.SimDim, tensor.ELU, true)
		}
	}
	d.initProj = make([]*tensor.Linear, cfg.Layers)
	for l := range d.initProj {
		d.initProj[l] = tensor.NewLinear(rng, initIn, cfg.Units, tensor.Tanh, false)
	}

	if cfg.EnableCopy {
		d.copyKey = tensor.NewLinear(rng, cfg.MemoryDim, cfg.Units, tensor.Identity, false)
	}
	if cfg.EnableEntity {
		d.entityKey = tensor.NewLinear(rng, cfg.CueDim, cfg.Units, tensor.Identity, false)
	}
	return d, nil
}

// Config returns the decoder's configuration.
func (d *Decoder) Config() Config { return d.cfg }

// InitState builds the initial recurrent state from the encoder summary
// (plus the cue embedding when fusion is on).
func (d *Decoder) InitState(encoderSummary, cue []float32) *State {
	in := encoderSummary
	if d.cfg.EnableFusion {
		in = tensor.Concat(encoderSummary, cue)
	}
	st := &State{
		Std:  make([][]float32, d.cfg.Layers),
		Attn: tensor.Zeros(d.cfg.Units),
	}
	for l, proj := range d.initProj {
		st.Std[l] = proj.Apply(in)
	}
	if d.cfg.EnableFusion {
		st.Cue = d.cueCell.ZeroState()
	}
	return st
}

// BowLogits predicts the response word bag from the initial decoder state
// alone, through the two-layer head.
func (d *Decoder) BowLogits(st *State) []float32 {
	return d.bowOut.Apply(d.bowHidden.Apply(tensor.Concat(st.Std...)))
}

// Step advances the decoder one position. The returned state is fresh; the
// input state is not mutated, so beam search can branch from it.
func (d *Decoder) Step(st *State, input []float32, ctx *Context) (*State, *StepResult) {
	res := &StepResult{Gate: 1}

	stdOut, newStd := d.stdCell.Step(tensor.Concat(input, st.Attn), st.Std)

	fused := stdOut
	var newCue [][]float32
	if d.cfg.EnableFusion {
		cueVec := ctx.Cue
		if d.cfg.MultiCue {
			cueVec, res.FactAlign = d.attendFacts(stdOut, ctx)
		}
		var cueOut []float32
		cueOut, newCue = d.cueCell.Step(tensor.Concat(input, cueVec), st.Cue)

		g := d.gate.Apply(tensor.Concat(stdOut, cueOut))
		fused = make([]float32, d.cfg.Units)
		for i := range fused {
			fused[i] = g[i]*stdOut[i] + (1-g[i])*cueOut[i]
		}
		res.Gate = tensor.Mean(g)
	}

	align, rawCtx := attention.Attend(d.mech, fused, ctx.Memory, ctx.MemoryLen)
	out := d.attnLayer.Apply(tensor.Concat(fused, rawCtx))

	res.Align = align
	res.Output = out
	res.Logits = d.project(out, ctx)
	res.TypeLogits = d.typeHead.Apply(out)

	return &State{Std: newStd, Cue: newCue, Attn: out}, res
}

// Forward runs the teacher-forced recurrence over a full gold input
// sequence. Inputs are known in advance, so no id resolution happens
// between steps; the recurrence itself stays sequential.
func (d *Decoder) Forward(st *State, inputs [][]float32, ctx *Context) []*StepResult {
	results := make([]*StepResult, len(inputs))
	for t, in := range inputs {
		st, results[t] = d.Step(st, in, ctx)
	}
	return results
}

// attendFacts recomputes a per-step distribution over the candidate pool
// with the current decoder state as query.
func (d *Decoder) attendFacts(query []float32, ctx *Context) ([]float32, []float32) {
	q := d.factQuery.Apply(query)
	scores := make([]float32, len(ctx.Candidates))
	for f, cand := range ctx.Candidates {
		scores[f] = tensor.Dot(q, d.factKey.Apply(cand))
	}
	tensor.MaskTail(scores, ctx.FactLen)
	align := tensor.Softmax(scores)

	cue := tensor.Zeros(d.cfg.CueDim)
	for f, w := range align {
		if w == 0 {
			continue
		}
		tensor.AXPY(cue, w, ctx.Candidates[f])
	}
	return cue, align
}

// project computes the extended-vocabulary logits. Copy and entity scores
// come from the current output against source memory and candidate
// embeddings directly; unavailable partitions are masked, never omitted,
// so the logit vector always spans V+C+E.
func (d *Decoder) project(out []float32, ctx *Context) []float32 {
	space := d.cfg.Space
	logits := make([]float32, space.Size())
	copy(logits, d.projection.Apply(out))

	base := space.VocabSize
	for s := 0; s < space.CopySlots; s++ {
		if d.cfg.EnableCopy && s < ctx.MemoryLen && s < len(ctx.Memory) {
			logits[base+s] = tensor.Dot(out, d.copyKey.Apply(ctx.Memory[s]))
		} else {
			logits[base+s] = tensor.MaskValue
		}
	}

	base = space.VocabSize + space.CopySlots
	for f := 0; f < space.EntitySlots; f++ {
		if d.cfg.EnableEntity && f < ctx.FactLen && f < len(ctx.Candidates) {
			logits[base+f] = tensor.Dot(out, d.entityKey.Apply(ctx.Candidates[f]))
		} else {
			logits[base+f] = tensor.MaskValue
		}
	}
	return logits
}
