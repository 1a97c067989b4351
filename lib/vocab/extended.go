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

package vocab

import "fmt"

// IDRange identifies which partition of the extended vocabulary an id
// belongs to.
type IDRange int

const (
	// RangeWord is the common vocabulary partition [0, V).
	RangeWord IDRange = iota
	// RangeCopy is the copy-from-source partition [V, V+C).
	RangeCopy
	// RangeEntity is the entity partition [V+C, V+C+E).
	RangeEntity
)

func (r IDRange) String() string {
	switch r {
	case RangeWord:
		return "word"
	case RangeCopy:
		return "copy"
	case RangeEntity:
		return "entity"
	default:
		return fmt.Sprintf("range(%d)", int(r))
	}
}

// ExtendedSpace partitions the decoder's output id space into three
// contiguous, non-overlapping ranges: common words, copy slots, entity
// slots. Any generated id falls in exactly one range; relative offsets are
// always clamped, never rejected, because at inference time ids are the
// model's own predictions.
type ExtendedSpace struct {
	VocabSize   int
	CopySlots   int
	EntitySlots int
}

// Size returns the total extended vocabulary size V+C+E.
func (s ExtendedSpace) Size() int {
	return s.VocabSize + s.CopySlots + s.EntitySlots
}

// RangeOf classifies an id by threshold comparison. Negative ids classify
// as words, ids beyond the entity partition as entities; both are clamped
// during offset resolution.
func (s ExtendedSpace) RangeOf(id int) IDRange {
	switch {
	case id < s.VocabSize:
		return RangeWord
	case id < s.VocabSize+s.CopySlots:
		return RangeCopy
	default:
		return RangeEntity
	}
}

// CopyOffset returns the source position a copy-range id refers to,
// clamped to [0, srcLen-1].
func (s ExtendedSpace) CopyOffset(id, srcLen int) int {
	hi := srcLen - 1
	if hi < 0 {
		hi = 0
	}
	off := id - s.VocabSize
	if off < 0 {
		off = 0
	}
	if off > hi {
		off = hi
	}
	return off
}

// EntityOffset returns the fact-pool position an entity-range id refers
// to, clamped to [0, factLen-1].
func (s ExtendedSpace) EntityOffset(id, factLen int) int {
	hi := factLen - 1
	if hi < 0 {
		hi = 0
	}
	off := id - s.VocabSize - s.CopySlots
	if off < 0 {
		off = 0
	}
	if off > hi {
		off = hi
	}
	return off
}
