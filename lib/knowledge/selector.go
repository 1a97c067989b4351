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

package knowledge

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/SixingPKU/IJCAI2020-TopicKA/lib/tensor"
)

// SelectionMode names the discretization strategy for the cue selection.
type SelectionMode string

const (
	// SelectArgmax picks the highest-probability candidate. Not
	// differentiable through the selection.
	SelectArgmax SelectionMode = "argmax"
	// SelectSample draws one candidate from the categorical distribution.
	SelectSample SelectionMode = "sample"
	// SelectGumbel draws a Gumbel-softmax relaxation; the soft
	// distribution keeps a gradient path through the weighted embedding.
	SelectGumbel SelectionMode = "gumbel"
)

// ParseSelectionMode validates a configured mode.
func ParseSelectionMode(s string) (SelectionMode, error) {
	switch SelectionMode(s) {
	case SelectArgmax, SelectSample, SelectGumbel:
		return SelectionMode(s), nil
	default:
		return "", fmt.Errorf("unknown cue selection mode %q", s)
	}
}

// SelectorConfig sizes the selector.
type SelectorConfig struct {
	// FactDim is the width of a candidate fact vector.
	FactDim int
	// MemoryDim is the width of one encoder memory vector.
	MemoryDim int
	// SummaryDim is the width of the encoder state summary (source side;
	// the target side is assumed equal since the encoder is shared).
	SummaryDim int
	// SimDim is the shared similarity space width.
	SimDim int

	Mode              SelectionMode
	GumbelTemperature float32
	KLDTemperature    float32

	// MaskUnknownSlot additionally removes candidate position 0 from
	// contention, for corpora where the pool is fronted by a placeholder
	// fact.
	MaskUnknownSlot bool
}

// Selector scores candidate facts against the source and, at train time,
// the target, producing prior/posterior distributions and a realized cue.
type Selector struct {
	cfg SelectorConfig

	// rng drives the sample and gumbel draws and is shared by every
	// decode; mu serializes access so concurrent Select calls stay safe.
	rng *rand.Rand
	mu  sync.Mutex

	factProj      *tensor.Linear
	encoderKeys   *tensor.Linear
	encoderValues *tensor.Linear
	posteriorProj *tensor.Linear
}

// NewSelector builds the selector's projections.
func NewSelector(rng *rand.Rand, cfg SelectorConfig) (*Selector, error) {
	mode, err := ParseSelectionMode(string(cfg.Mode))
	if err != nil {
		return nil, err
	}
	cfg.Mode = mode
	if cfg.GumbelTemperature <= 0 {
		cfg.GumbelTemperature = 0.1
	}
	if cfg.KLDTemperature <= 0 {
		cfg.KLDTemperature = 1
	}
	return &Selector{
		cfg:           cfg,
		rng:           rng,
		factProj:      tensor.NewLinear(rng, cfg.FactDim, cfg.SimDim, tensor.Tanh, true),
		encoderKeys:   tensor.NewLinear(rng, cfg.MemoryDim, cfg.SimDim, tensor.Tanh, true),
		encoderValues: tensor.NewLinear(rng, cfg.MemoryDim, cfg.SimDim, tensor.Tanh, true),
		posteriorProj: tensor.NewLinear(rng, 2*cfg.SummaryDim, cfg.SimDim, tensor.Tanh, true),
	}, nil
}

// Query carries the per-example inputs to one selection.
type Query struct {
	// Memory is the padded encoder memory, MemoryLen its true length.
	Memory    [][]float32
	MemoryLen int
	// Candidates is the padded candidate pool embedding, FactLen the true
	// pool size.
	Candidates [][]float32
	FactLen    int
	// SourceSummary is the encoder state summary of the source.
	SourceSummary []float32
	// TargetSummary, when non-nil, enables the posterior path (train time
	// only; it is the shared encoder run over the gold target).
	TargetSummary []float32
	// GoldCue is the annotated cue position, -1 when absent. When set and
	// Teacher is true, the realized selection is forced to it.
	GoldCue int
	// Teacher forces the gold cue through to the decoder (training).
	Teacher bool
}

// Selection is the outcome of one cue choice, fixed for the whole decode.
type Selection struct {
	// Prior sums to 1 over the padded candidate dimension; padded
	// positions carry ~0 mass.
	Prior []float32
	// Posterior is nil when no target summary was supplied.
	Posterior []float32
	// Index is the realized candidate position.
	Index int
	// Soft is the relaxed distribution in gumbel mode, nil otherwise.
	Soft []float32
	// Embedding is the cue representation handed to the decoder: the
	// chosen candidate's vector, or the soft-weighted pool in gumbel mode.
	Embedding []float32
	// KL is KL(posterior_temp ‖ prior), 0 without a posterior.
	KL float32
	// SupervisionLoss is the bag-of-words selector loss against GoldCue,
	// 0 when unannotated.
	SupervisionLoss float32
}

// Select computes the prior (and posterior) distributions and realizes a
// cue according to the configured mode.
func (s *Selector) Select(q Query) *Selection {
	priorScores := s.priorScores(q)
	prior := tensor.Softmax(priorScores)

	sel := &Selection{Prior: prior}
	sampling := prior
	drawScores := priorScores

	if q.TargetSummary != nil {
		postScores := s.posteriorScores(q)
		posterior := tensor.Softmax(postScores)
		sel.Posterior = posterior
		sampling = posterior
		drawScores = postScores

		tempered := make([]float32, len(postScores))
		for i, v := range postScores {
			tempered[i] = v / s.cfg.KLDTemperature
		}
		sel.KL = tensor.KLDivergence(tensor.Softmax(tempered), prior)

		if q.GoldCue >= 0 && q.GoldCue < len(prior) {
			sel.SupervisionLoss = -tensor.SafeLog(prior[q.GoldCue]) - tensor.SafeLog(posterior[q.GoldCue])
		}
	} else if q.GoldCue >= 0 && q.GoldCue < len(prior) {
		sel.SupervisionLoss = -tensor.SafeLog(prior[q.GoldCue])
	}

	switch s.cfg.Mode {
	case SelectSample:
		s.mu.Lock()
		sel.Index = tensor.SampleCategorical(s.rng, sampling)
		s.mu.Unlock()
	case SelectGumbel:
		s.mu.Lock()
		sel.Soft = tensor.GumbelSoftmax(s.rng, drawScores, s.cfg.GumbelTemperature)
		s.mu.Unlock()
		sel.Index = tensor.Argmax(sel.Soft)
	default:
		sel.Index = tensor.Argmax(sampling)
	}

	if q.Teacher && q.GoldCue >= 0 && q.GoldCue < len(q.Candidates) {
		sel.Index = q.GoldCue
	}

	if sel.Soft != nil {
		// No hard lookup in gumbel mode: the cue representation is the
		// probability-weighted pool, keeping the gradient path defined.
		emb := tensor.Zeros(len(q.Candidates[0]))
		for f, w := range sel.Soft {
			if w == 0 {
				continue
			}
			tensor.AXPY(emb, w, q.Candidates[f])
		}
		sel.Embedding = emb
	} else {
		idx := tensor.Clamp(sel.Index, 0, len(q.Candidates)-1)
		sel.Embedding = tensor.Clone(q.Candidates[idx])
	}
	return sel
}

// priorScores attends each projected candidate over the encoder memory and
// scores it by the inner product of the attended vector with its own
// projection, then applies the padding mask.
func (s *Selector) priorScores(q Query) []float32 {
	memLen := q.MemoryLen
	if memLen > len(q.Memory) {
		memLen = len(q.Memory)
	}
	keys := make([][]float32, memLen)
	values := make([][]float32, memLen)
	for t := 0; t < memLen; t++ {
		keys[t] = s.encoderKeys.Apply(q.Memory[t])
		values[t] = s.encoderValues.Apply(q.Memory[t])
	}

	scores := make([]float32, len(q.Candidates))
	for f, cand := range q.Candidates {
		proj := s.factProj.Apply(cand)
		logits := make([]float32, memLen)
		for t := 0; t < memLen; t++ {
			logits[t] = tensor.Dot(proj, keys[t])
		}
		attn := tensor.Softmax(logits)
		attended := tensor.Zeros(s.cfg.SimDim)
		for t, w := range attn {
			tensor.AXPY(attended, w, values[t])
		}
		scores[f] = tensor.Dot(attended, proj)
	}
	s.mask(scores, q.FactLen)
	return scores
}

// posteriorScores scores candidates against a projection of the combined
// source and target summaries.
func (s *Selector) posteriorScores(q Query) []float32 {
	proj := s.posteriorProj.Apply(tensor.Concat(q.SourceSummary, q.TargetSummary))
	scores := make([]float32, len(q.Candidates))
	for f, cand := range q.Candidates {
		scores[f] = tensor.Dot(proj, s.factProj.Apply(cand))
	}
	s.mask(scores, q.FactLen)
	return scores
}

// mask removes padded candidates (and, when configured, the placeholder
// slot at position 0) from contention.
func (s *Selector) mask(scores []float32, factLen int) {
	tensor.MaskTail(scores, factLen)
	if s.cfg.MaskUnknownSlot && len(scores) > 1 {
		scores[0] += tensor.MaskValue
	}
}
