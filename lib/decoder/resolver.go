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

package decoder

import (
	"math/rand"

	"github.com/SixingPKU/IJCAI2020-TopicKA/lib/tensor"
	"github.com/SixingPKU/IJCAI2020-TopicKA/lib/vocab"
)

// Resolver maps extended-vocabulary ids to surface word ids and to the
// decoder input embedding for the next step. The same resolution runs at
// train time over gold decoder inputs and at inference over emitted ids,
// so the two paths see identical input construction.
type Resolver struct {
	space vocab.ExtendedSpace
	align *vocab.Alignment

	wordEmb   *tensor.Embedding
	entityEmb *tensor.Embedding
	// copyTransform projects an encoder memory vector into word-embedding
	// space for copy-range inputs.
	copyTransform *tensor.Linear

	enableCopy   bool
	enableEntity bool
}

// ResolverConfig wires the resolver's tables.
type ResolverConfig struct {
	Space        vocab.ExtendedSpace
	Align        *vocab.Alignment
	WordEmb      *tensor.Embedding
	EntityEmb    *tensor.Embedding
	MemoryDim    int
	EnableCopy   bool
	EnableEntity bool
}

// NewResolver builds a resolver over the given id space and tables.
func NewResolver(rng *rand.Rand, cfg ResolverConfig) *Resolver {
	r := &Resolver{
		space:        cfg.Space,
		align:        cfg.Align,
		wordEmb:      cfg.WordEmb,
		entityEmb:    cfg.EntityEmb,
		enableCopy:   cfg.EnableCopy,
		enableEntity: cfg.EnableEntity,
	}
	if cfg.EnableCopy {
		r.copyTransform = tensor.NewLinear(rng, cfg.MemoryDim, cfg.WordEmb.Dim, tensor.Tanh, false)
	}
	return r
}

// Resolved is the outcome of resolving one extended id.
type Resolved struct {
	// Range classifies the id.
	Range vocab.IDRange
	// WordID is the surface word id after following the resolution chain.
	WordID int
	// Embedding is the decoder input for the next step: the [word, copy,
	// entity] parts concatenated, with parts for ranges the id does not
	// occupy zeroed (word part always populated).
	Embedding []float32
}

// Resolve follows an extended id back to a surface word id and builds the
// next decoder input. Offsets past the true source or fact length clamp to
// the last valid position; they are never raised.
func (r *Resolver) Resolve(id int, ctx *Context) Resolved {
	res := Resolved{Range: r.space.RangeOf(id)}

	var copyPart []float32
	switch res.Range {
	case vocab.RangeCopy:
		off := r.space.CopyOffset(id, ctx.MemoryLen)
		res.WordID = sourceWord(ctx, off)
		if r.enableCopy && off < len(ctx.Memory) {
			copyPart = r.copyTransform.Apply(ctx.Memory[off])
		}
	case vocab.RangeEntity:
		off := r.space.EntityOffset(id, ctx.FactLen)
		factID := 0
		if off < len(ctx.FactIDs) {
			factID = ctx.FactIDs[off]
		}
		entity := r.align.ResponseEntity(factID)
		res.WordID = r.align.Word(entity)
	default:
		res.WordID = tensor.Clamp(id, 0, r.space.VocabSize-1)
	}

	parts := make([][]float32, 0, 3)
	parts = append(parts, r.wordEmb.Lookup(res.WordID))
	if r.enableCopy {
		if copyPart == nil {
			copyPart = tensor.Zeros(r.wordEmb.Dim)
		}
		parts = append(parts, copyPart)
	}
	if r.enableEntity {
		// The entity part is always the word's aligned entity embedding,
		// whether or not the id itself is entity-range.
		parts = append(parts, r.entityEmb.Lookup(r.align.Entity(res.WordID)))
	}
	res.Embedding = tensor.Concat(parts...)
	return res
}

// InputFor builds the decoder input embedding for a gold extended id at
// train time. It is the same resolution as inference.
func (r *Resolver) InputFor(id int, ctx *Context) []float32 {
	return r.Resolve(id, ctx).Embedding
}

func sourceWord(ctx *Context, off int) int {
	if off < 0 || off >= len(ctx.SourceIDs) {
		return vocab.UnkID
	}
	return ctx.SourceIDs[off]
}
