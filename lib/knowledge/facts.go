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

// Package knowledge holds the fact embedding table and the latent cue-fact
// selector that decides which knowledge candidate conditions generation.
package knowledge

import (
	"math/rand"

	"github.com/SixingPKU/IJCAI2020-TopicKA/lib/tensor"
	"github.com/SixingPKU/IJCAI2020-TopicKA/lib/vocab"
)

// FactTable embeds fact ids into fixed-width vectors, optionally enriched
// with the word embeddings of the entities each fact contributes to the
// post and response sides. Shared by the prior and posterior paths.
type FactTable struct {
	emb *tensor.Embedding

	// Optional word-feature enrichment.
	align     *vocab.Alignment
	wordEmb   *tensor.Embedding
	wordParts bool
}

// NewFactTable creates a table of numFacts embeddings of width dim.
func NewFactTable(rng *rand.Rand, numFacts, dim int) *FactTable {
	return &FactTable{emb: tensor.NewEmbedding(rng, numFacts, dim)}
}

// EnableWordFeatures appends, to every fact vector, the word embeddings of
// the fact's post-side and response-side entities.
func (t *FactTable) EnableWordFeatures(align *vocab.Alignment, wordEmb *tensor.Embedding) {
	t.align = align
	t.wordEmb = wordEmb
	t.wordParts = true
}

// Dim returns the width of one fact vector.
func (t *FactTable) Dim() int {
	d := t.emb.Dim
	if t.wordParts {
		d += 2 * t.wordEmb.Dim
	}
	return d
}

// Embed returns the vector for one fact id.
func (t *FactTable) Embed(factID int) []float32 {
	base := t.emb.Lookup(factID)
	if !t.wordParts {
		return base
	}
	postWord := t.wordEmb.Lookup(t.align.Word(postEntity(t.align, factID)))
	respWord := t.wordEmb.Lookup(t.align.Word(t.align.ResponseEntity(factID)))
	return tensor.Concat(base, postWord, respWord)
}

// EmbedPool embeds every candidate in a (padded) pool.
func (t *FactTable) EmbedPool(factIDs []int) [][]float32 {
	out := make([][]float32, len(factIDs))
	for i, id := range factIDs {
		out[i] = t.Embed(id)
	}
	return out
}

func postEntity(a *vocab.Alignment, factID int) int {
	if factID < 0 || factID >= len(a.FactEntityInPost) {
		return 0
	}
	return a.FactEntityInPost[factID]
}
