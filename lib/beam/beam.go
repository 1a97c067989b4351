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

// Package beam drives decoding. A width-1 search is greedy decoding; wider
// searches keep one full decoder state per hypothesis, so conditioning is
// tiled up front and every branch owns its slices.
package beam

import (
	"fmt"
	"math"
	"sort"

	"github.com/SixingPKU/IJCAI2020-TopicKA/lib/decoder"
	"github.com/SixingPKU/IJCAI2020-TopicKA/lib/tensor"
)

// Stepper advances one decode step. *decoder.Decoder satisfies it.
type Stepper interface {
	Step(st *decoder.State, input []float32, ctx *decoder.Context) (*decoder.State, *decoder.StepResult)
}

// InputResolver turns an emitted extended id into the next step's input.
// *decoder.Resolver satisfies it.
type InputResolver interface {
	Resolve(id int, ctx *decoder.Context) decoder.Resolved
}

// Config shapes one search.
type Config struct {
	// Width 1 is greedy decoding.
	Width int
	// LengthPenalty is the GNMT exponent w in ((5+len)/6)^w; 0 disables.
	LengthPenalty float32
	// CoveragePenalty weights sum_s log(min(attn mass at s, 1)); 0 disables.
	CoveragePenalty float32
	// MaxStepsFactor bounds decoding at factor × source length (default 2).
	MaxStepsFactor int

	SOSID int
	EOSID int

	// Diagnostics keeps per-step alignments, gate means and fact
	// alignments on the result.
	Diagnostics bool
}

func (c Config) validate() error {
	if c.Width < 1 {
		return fmt.Errorf("beam width must be >= 1, got %d", c.Width)
	}
	return nil
}

// Hypothesis is one partial decode: its state, emitted ids, running score
// and accumulated diagnostics. Hypotheses never share mutable slices.
type Hypothesis struct {
	State *decoder.State
	// IDs are the emitted extended-vocabulary ids, SOS excluded.
	IDs []int
	// Words are the resolved surface word ids, aligned with IDs.
	Words []int
	// Score is the sum of emitted log-probabilities.
	Score    float32
	Finished bool

	coverage []float32

	Gates      []float32
	Aligns     [][]float32
	FactAligns [][]float32
}

func (h *Hypothesis) extend(st *decoder.State, id int, logProb float32, res *decoder.StepResult, diag bool) *Hypothesis {
	next := &Hypothesis{
		State: st,
		IDs:   append(append([]int(nil), h.IDs...), id),
		Score: h.Score + logProb,
		Words: append([]int(nil), h.Words...),
	}
	if len(h.coverage) == len(res.Align) {
		next.coverage = tensor.Clone(h.coverage)
	} else {
		next.coverage = tensor.Zeros(len(res.Align))
	}
	for s, a := range res.Align {
		next.coverage[s] += a
	}
	if diag {
		next.Gates = append(append([]float32(nil), h.Gates...), res.Gate)
		next.Aligns = append(append([][]float32(nil), h.Aligns...), res.Align)
		if res.FactAlign != nil {
			next.FactAligns = append(append([][]float32(nil), h.FactAligns...), res.FactAlign)
		}
	}
	return next
}

// rank is the length- and coverage-penalized comparison score.
func (h *Hypothesis) rank(cfg Config) float32 {
	score := h.Score
	if cfg.LengthPenalty > 0 && len(h.IDs) > 0 {
		lp := float32(math.Pow(float64(5+len(h.IDs))/6.0, float64(cfg.LengthPenalty)))
		score = h.Score / lp
	}
	if cfg.CoveragePenalty > 0 && h.coverage != nil {
		var cp float32
		for _, mass := range h.coverage {
			if mass > 1 {
				mass = 1
			}
			cp += tensor.SafeLog(mass)
		}
		score += cfg.CoveragePenalty * cp
	}
	return score
}

// Result is the best decode of one search.
type Result struct {
	IDs     []int
	WordIDs []int
	Score   float32
	Steps   int

	Gates          []float32
	Alignments     [][]float32
	FactAlignments [][]float32
}

// Search decodes one example. The initial state is consumed; callers keep
// their own copy if they need it again.
func Search(cfg Config, step Stepper, resolve InputResolver, init *decoder.State, ctx *decoder.Context) (*Result, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	factor := cfg.MaxStepsFactor
	if factor <= 0 {
		factor = 2
	}
	maxSteps := factor * ctx.MemoryLen
	if maxSteps < 1 {
		maxSteps = 1
	}

	sos := resolve.Resolve(cfg.SOSID, ctx)
	active := []*Hypothesis{{State: init, Words: []int{}}}
	var finished []*Hypothesis

	for t := 0; t < maxSteps && len(active) > 0; t++ {
		var pool []*Hypothesis
		for _, h := range active {
			input := sos.Embedding
			if n := len(h.IDs); n > 0 {
				input = resolve.Resolve(h.IDs[n-1], ctx).Embedding
			}

			st, res := step.Step(h.State, input, ctx)
			logProbs := tensor.LogSoftmax(res.Logits)

			// Expanding each hypothesis by the beam width is enough: the
			// global top-k over the union can never need more children
			// from a single parent.
			for _, id := range tensor.TopK(logProbs, cfg.Width) {
				child := h.extend(st.Clone(), id, logProbs[id], res, cfg.Diagnostics)
				child.Words = append(child.Words, resolve.Resolve(id, ctx).WordID)
				if id == cfg.EOSID {
					child.Finished = true
				}
				pool = append(pool, child)
			}
		}

		sort.SliceStable(pool, func(i, j int) bool { return pool[i].rank(cfg) > pool[j].rank(cfg) })
		active = active[:0]
		for _, h := range pool {
			if h.Finished {
				finished = append(finished, h)
			} else {
				active = append(active, h)
			}
			if len(active) == cfg.Width {
				break
			}
		}
		if len(finished) >= cfg.Width {
			break
		}
	}

	best := pick(cfg, finished)
	if best == nil {
		best = pick(cfg, active)
	}
	if best == nil {
		return nil, fmt.Errorf("beam search produced no hypotheses (source length %d)", ctx.MemoryLen)
	}

	ids := best.IDs
	words := best.Words
	if best.Finished && len(ids) > 0 {
		ids = ids[:len(ids)-1]
		words = words[:len(words)-1]
	}
	return &Result{
		IDs:            ids,
		WordIDs:        words,
		Score:          best.rank(cfg),
		Steps:          len(best.IDs),
		Gates:          best.Gates,
		Alignments:     best.Aligns,
		FactAlignments: best.FactAligns,
	}, nil
}

func pick(cfg Config, hs []*Hypothesis) *Hypothesis {
	var best *Hypothesis
	for _, h := range hs {
		if best == nil || h.rank(cfg) > best.rank(cfg) {
			best = h
		}
	}
	return best
}
