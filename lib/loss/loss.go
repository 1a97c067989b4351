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

// Package loss computes the training objectives: sequence cross-entropy
// over the extended vocabulary, the type-selector auxiliary loss, and the
// bag-of-words losses. Divergence terms live in lib/tensor.
package loss

import (
	"math"

	"github.com/SixingPKU/IJCAI2020-TopicKA/lib/tensor"
	"github.com/SixingPKU/IJCAI2020-TopicKA/lib/vocab"
)

// SequenceNLL is the mean per-token negative log-likelihood over the first
// length positions. Unknown-token targets (id 0) never contribute: the
// model should not be rewarded for predicting unk, nor punished for
// failing to. The denominator counts contributing positions, floored at 1.
func SequenceNLL(logits [][]float32, targets []int, length int) float32 {
	if length > len(logits) {
		length = len(logits)
	}
	if length > len(targets) {
		length = len(targets)
	}
	var sum float32
	counted := 0
	for t := 0; t < length; t++ {
		if targets[t] == vocab.UnkID {
			continue
		}
		lp := tensor.LogSoftmax(logits[t])
		sum -= lp[targets[t]]
		counted++
	}
	if counted < 1 {
		counted = 1
	}
	return sum / float32(counted)
}

// TypeNLL is the mean cross-entropy of the 3-way range selector against
// the target ids' range membership. Every position counts, unk included;
// predicting "common word" for an unk target is still a correct range.
func TypeNLL(typeLogits [][]float32, targets []int, length int, space vocab.ExtendedSpace) float32 {
	if length > len(typeLogits) {
		length = len(typeLogits)
	}
	if length > len(targets) {
		length = len(targets)
	}
	if length < 1 {
		return 0
	}
	var sum float32
	for t := 0; t < length; t++ {
		lp := tensor.LogSoftmax(typeLogits[t])
		sum -= lp[int(space.RangeOf(targets[t]))]
	}
	return sum / float32(length)
}

// BagOfWords is the weighted average NLL of the gold response bag under a
// single vocabulary distribution (the decoder's initial-state word-bag
// head). Ids outside [1, V) are dropped from the bag; duplicate words
// count once. The denominator is the total bag weight, floored at 1.
func BagOfWords(bowLogits []float32, bag []int, weights []float32) float32 {
	probs := tensor.Softmax(bowLogits)
	seen := make(map[int]struct{}, len(bag))
	var sum, denom float32
	for _, id := range bag {
		if id <= vocab.UnkID || id >= len(probs) {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		w := float32(1)
		if weights != nil && id < len(weights) {
			w = weights[id]
		}
		sum -= w * tensor.SafeLog(probs[id])
		denom += w
	}
	if denom < 1 {
		denom = 1
	}
	return sum / denom
}

// LogRankWeights builds the word-rank weighting for BagOfWords: the vocab
// is frequency-ordered, so weight[id] = log(id+1) up-weights rarer words
// and zeroes the head of the table.
func LogRankWeights(vocabSize int) []float32 {
	w := make([]float32, vocabSize)
	for id := range w {
		w[id] = float32(math.Log(float64(id) + 1))
	}
	return w
}
