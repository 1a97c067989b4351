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

// Package batch turns aligned id sequences into padded, length-bucketed
// batches with uniform shapes. All arrays inside one Batch share the same
// padded dimensions; true lengths ride alongside.
package batch

import (
	"fmt"
	"math/rand"
)

// Example is one aligned training/inference sample before padding.
type Example struct {
	// Source is the source utterance as word ids.
	Source []int
	// SourceEntity is the per-position entity id aligned with Source.
	SourceEntity []int
	// Target is the gold response as input-side ids (no SOS framing yet).
	Target []int
	// TargetOut is the gold response as extended-vocabulary output ids,
	// aligned position-for-position with Target.
	TargetOut []int
	// Facts is the ordered candidate fact pool (fact ids).
	Facts []int
	// CueFact is the gold cue position inside Facts, or -1 when
	// unannotated.
	CueFact int
}

// Batch is a uniform-shape group of examples. Field layout mirrors what
// the model consumes: ids plus true lengths, everything padded to the
// batch maxima.
type Batch struct {
	Source       [][]int
	SourceEntity [][]int
	DecoderIn    [][]int
	DecoderOut   [][]int
	Facts        [][]int

	SourceLen  []int
	DecoderLen []int
	FactLen    []int

	// CueFact holds the gold cue position per example (-1 when absent).
	CueFact []int
}

// Size returns the number of examples in the batch.
func (b *Batch) Size() int { return len(b.Source) }

// Config controls batching.
type Config struct {
	BatchSize  int
	NumBuckets int
	SrcMaxLen  int
	TgtMaxLen  int

	// Framing ids. SOS is prepended to decoder inputs, EOS appended to
	// decoder outputs and used as word-side padding.
	SOSID int
	EOSID int
	// PadEntityID pads entity arrays and fact pools.
	PadEntityID int

	Shuffle bool
	Seed    int64
}

// Provider groups examples into padded batches, bucketing by length so one
// batch does not mix very short and very long sequences.
type Provider struct {
	cfg Config
	rng *rand.Rand
}

// NewProvider validates the config and returns a provider.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.NumBuckets <= 0 {
		cfg.NumBuckets = 1
	}
	return &Provider{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}, nil
}

// Batches partitions the examples into padded batches. Zero-length sources
// or targets are dropped, over-long sequences truncated.
func (p *Provider) Batches(examples []Example) []*Batch {
	kept := make([]Example, 0, len(examples))
	for _, ex := range examples {
		if len(ex.Source) == 0 || len(ex.Target) == 0 {
			continue
		}
		kept = append(kept, p.truncate(ex))
	}
	if p.cfg.Shuffle {
		p.rng.Shuffle(len(kept), func(i, j int) { kept[i], kept[j] = kept[j], kept[i] })
	}

	buckets := make(map[int][]Example)
	order := []int{}
	for _, ex := range kept {
		key := p.bucketKey(ex)
		if _, ok := buckets[key]; !ok {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], ex)
	}

	var out []*Batch
	for _, key := range order {
		group := buckets[key]
		for start := 0; start < len(group); start += p.cfg.BatchSize {
			end := start + p.cfg.BatchSize
			if end > len(group) {
				end = len(group)
			}
			out = append(out, p.pad(group[start:end]))
		}
	}
	return out
}

func (p *Provider) truncate(ex Example) Example {
	if p.cfg.SrcMaxLen > 0 && len(ex.Source) > p.cfg.SrcMaxLen {
		ex.Source = ex.Source[:p.cfg.SrcMaxLen]
		if len(ex.SourceEntity) > p.cfg.SrcMaxLen {
			ex.SourceEntity = ex.SourceEntity[:p.cfg.SrcMaxLen]
		}
	}
	if p.cfg.TgtMaxLen > 0 && len(ex.Target) > p.cfg.TgtMaxLen {
		ex.Target = ex.Target[:p.cfg.TgtMaxLen]
	}
	if len(ex.TargetOut) > len(ex.Target) {
		ex.TargetOut = ex.TargetOut[:len(ex.Target)]
	}
	return ex
}

// bucketKey groups by the larger of source/target length so padded waste
// stays bounded.
func (p *Provider) bucketKey(ex Example) int {
	width := 10
	if p.cfg.SrcMaxLen > 0 {
		width = (p.cfg.SrcMaxLen + p.cfg.NumBuckets - 1) / p.cfg.NumBuckets
		if width == 0 {
			width = 1
		}
	}
	key := len(ex.Source) / width
	if t := (len(ex.Target) + 1) / width; t > key {
		key = t
	}
	if key > p.cfg.NumBuckets {
		key = p.cfg.NumBuckets
	}
	return key
}

// pad builds one uniform-shape Batch. Decoder inputs get SOS prepended and
// outputs get EOS appended, so decoder_in[i][0] is always the start token
// and decoder_out[i][len-1] the end token.
func (p *Provider) pad(group []Example) *Batch {
	maxS, maxT, maxF := 0, 0, 0
	for _, ex := range group {
		if len(ex.Source) > maxS {
			maxS = len(ex.Source)
		}
		if len(ex.Target)+1 > maxT {
			maxT = len(ex.Target) + 1
		}
		if len(ex.Facts) > maxF {
			maxF = len(ex.Facts)
		}
	}
	if maxF == 0 {
		maxF = 1
	}

	b := &Batch{
		Source:       make([][]int, len(group)),
		SourceEntity: make([][]int, len(group)),
		DecoderIn:    make([][]int, len(group)),
		DecoderOut:   make([][]int, len(group)),
		Facts:        make([][]int, len(group)),
		SourceLen:    make([]int, len(group)),
		DecoderLen:   make([]int, len(group)),
		FactLen:      make([]int, len(group)),
		CueFact:      make([]int, len(group)),
	}
	for i, ex := range group {
		b.Source[i] = padTo(ex.Source, maxS, p.cfg.EOSID)
		b.SourceEntity[i] = padTo(ex.SourceEntity, maxS, p.cfg.PadEntityID)

		decIn := append([]int{p.cfg.SOSID}, ex.Target...)
		decOut := append(append([]int{}, ex.TargetOut...), p.cfg.EOSID)
		b.DecoderIn[i] = padTo(decIn, maxT, p.cfg.EOSID)
		b.DecoderOut[i] = padTo(decOut, maxT, p.cfg.EOSID)

		b.Facts[i] = padTo(ex.Facts, maxF, p.cfg.PadEntityID)

		b.SourceLen[i] = len(ex.Source)
		b.DecoderLen[i] = len(decIn)
		b.FactLen[i] = len(ex.Facts)
		if ex.CueFact >= 0 && ex.CueFact < len(ex.Facts) {
			b.CueFact[i] = ex.CueFact
		} else {
			b.CueFact[i] = -1
		}
	}
	return b
}

func padTo(ids []int, n, pad int) []int {
	out := make([]int, n)
	copy(out, ids)
	for i := len(ids); i < n; i++ {
		out[i] = pad
	}
	return out
}
