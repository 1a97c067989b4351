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

package loss

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SixingPKU/IJCAI2020-TopicKA/lib/vocab"
)

func uniformLogits(steps, width int) [][]float32 {
	out := make([][]float32, steps)
	for t := range out {
		out[t] = make([]float32, width)
	}
	return out
}

func TestSequenceNLLUniform(t *testing.T) {
	// Uniform logits over 4 classes: NLL is log(4) at every position.
	nll := SequenceNLL(uniformLogits(3, 4), []int{1, 2, 3}, 3)
	assert.InDelta(t, math.Log(4), float64(nll), 1e-4)
}

func TestSequenceNLLExcludesUnk(t *testing.T) {
	logits := uniformLogits(3, 4)
	// Make position 1 very confident about the unk target; if it counted,
	// the mean would drop well below log(4).
	logits[1][vocab.UnkID] = 100

	withUnk := SequenceNLL(logits, []int{1, vocab.UnkID, 3}, 3)
	assert.InDelta(t, math.Log(4), float64(withUnk), 1e-4)
}

func TestSequenceNLLAllUnkFloorsDenominator(t *testing.T) {
	nll := SequenceNLL(uniformLogits(2, 4), []int{vocab.UnkID, vocab.UnkID}, 2)
	assert.Zero(t, nll)
}

func TestSequenceNLLRespectsLength(t *testing.T) {
	logits := uniformLogits(4, 4)
	logits[3][2] = 100 // past the true length, must not count

	short := SequenceNLL(logits, []int{1, 1, 1, 2}, 3)
	assert.InDelta(t, math.Log(4), float64(short), 1e-4)
}

func TestTypeNLL(t *testing.T) {
	space := vocab.ExtendedSpace{VocabSize: 10, CopySlots: 5, EntitySlots: 5}

	typeLogits := [][]float32{
		{100, 0, 0}, // word
		{0, 100, 0}, // copy
		{0, 0, 100}, // entity
	}
	targets := []int{3, 12, 17}
	assert.InDelta(t, 0, float64(TypeNLL(typeLogits, targets, 3, space)), 1e-4)

	// Wrong range prediction costs ~100.
	wrong := TypeNLL(typeLogits, []int{12, 3, 17}, 3, space)
	assert.Greater(t, wrong, float32(10))
}

func TestBagOfWordsUniform(t *testing.T) {
	// Uniform over 10 words, bag of 2 distinct in-range words.
	bow := BagOfWords(make([]float32, 10), []int{3, 5}, nil)
	assert.InDelta(t, math.Log(10), float64(bow), 1e-4)
}

func TestBagOfWordsDropsUnkAndDuplicates(t *testing.T) {
	same := BagOfWords(make([]float32, 10), []int{3, 3, vocab.UnkID, 99}, nil)
	only := BagOfWords(make([]float32, 10), []int{3}, nil)
	assert.Equal(t, only, same)
}

func TestBagOfWordsEmptyBagIsZero(t *testing.T) {
	assert.Zero(t, BagOfWords(make([]float32, 10), nil, nil))
	assert.Zero(t, BagOfWords(make([]float32, 10), []int{vocab.UnkID}, nil))
}

func TestBagOfWordsRankWeighting(t *testing.T) {
	weights := LogRankWeights(10)
	require.Len(t, weights, 10)
	assert.Zero(t, weights[0])
	assert.Greater(t, weights[9], weights[5])

	// Weighted and unweighted agree for a single-word bag because the
	// weight cancels against the denominator when it exceeds 1.
	unweighted := BagOfWords(make([]float32, 10), []int{9}, nil)
	weighted := BagOfWords(make([]float32, 10), []int{9}, weights)
	assert.InDelta(t, float64(unweighted), float64(weighted), 1e-4)
}
