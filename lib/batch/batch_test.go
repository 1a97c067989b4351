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

package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSOS = 1
	testEOS = 2
)

func testConfig() Config {
	return Config{
		BatchSize:  2,
		NumBuckets: 1,
		SrcMaxLen:  10,
		TgtMaxLen:  10,
		SOSID:      testSOS,
		EOSID:      testEOS,
	}
}

func TestNewProviderRejectsZeroBatch(t *testing.T) {
	_, err := NewProvider(Config{})
	require.Error(t, err)
}

func TestFraming(t *testing.T) {
	p, err := NewProvider(testConfig())
	require.NoError(t, err)

	batches := p.Batches([]Example{{
		Source:    []int{5, 6, 7},
		Target:    []int{8, 9},
		TargetOut: []int{8, 9},
		Facts:     []int{3},
		CueFact:   0,
	}})
	require.Len(t, batches, 1)
	b := batches[0]

	// SOS prepended to the input side, EOS appended to the output side.
	assert.Equal(t, []int{testSOS, 8, 9}, b.DecoderIn[0])
	assert.Equal(t, []int{8, 9, testEOS}, b.DecoderOut[0])
	assert.Equal(t, 3, b.DecoderLen[0])
	assert.Equal(t, 3, b.SourceLen[0])
	assert.Equal(t, 1, b.FactLen[0])
	assert.Equal(t, 0, b.CueFact[0])
}

func TestPaddingUniformShape(t *testing.T) {
	p, err := NewProvider(testConfig())
	require.NoError(t, err)

	batches := p.Batches([]Example{
		{Source: []int{5}, Target: []int{8}, TargetOut: []int{8}, Facts: []int{1}, CueFact: -1},
		{Source: []int{5, 6, 7, 9}, Target: []int{8, 9, 4}, TargetOut: []int{8, 9, 4}, Facts: []int{1, 2}, CueFact: 1},
	})
	require.Len(t, batches, 1)
	b := batches[0]

	require.Equal(t, 2, b.Size())
	assert.Len(t, b.Source[0], len(b.Source[1]))
	assert.Len(t, b.DecoderIn[0], len(b.DecoderIn[1]))
	assert.Len(t, b.DecoderOut[0], len(b.DecoderOut[1]))
	assert.Len(t, b.Facts[0], len(b.Facts[1]))

	assert.Equal(t, 1, b.SourceLen[0])
	assert.Equal(t, 4, b.SourceLen[1])
}

func TestTruncationToMaxLens(t *testing.T) {
	cfg := testConfig()
	cfg.SrcMaxLen = 3
	cfg.TgtMaxLen = 2
	p, err := NewProvider(cfg)
	require.NoError(t, err)

	batches := p.Batches([]Example{{
		Source:    []int{5, 6, 7, 8, 9},
		Target:    []int{4, 5, 6, 7},
		TargetOut: []int{4, 5, 6, 7},
		Facts:     []int{1},
	}})
	require.Len(t, batches, 1)
	b := batches[0]

	assert.Equal(t, 3, b.SourceLen[0])
	// Truncated target plus the EOS frame.
	assert.Equal(t, 3, b.DecoderLen[0])
	assert.Equal(t, []int{4, 5, testEOS}, b.DecoderOut[0])
}

func TestEmptyExamplesDropped(t *testing.T) {
	p, err := NewProvider(testConfig())
	require.NoError(t, err)

	batches := p.Batches([]Example{
		{Source: nil, Target: []int{1}, TargetOut: []int{1}},
		{Source: []int{5}, Target: nil, TargetOut: nil},
	})
	assert.Empty(t, batches)
}

func TestChunkingByBatchSize(t *testing.T) {
	p, err := NewProvider(testConfig())
	require.NoError(t, err)

	examples := make([]Example, 5)
	for i := range examples {
		examples[i] = Example{Source: []int{5, 6}, Target: []int{7}, TargetOut: []int{7}, Facts: []int{1}}
	}
	batches := p.Batches(examples)

	total := 0
	for _, b := range batches {
		assert.LessOrEqual(t, b.Size(), 2)
		total += b.Size()
	}
	assert.Equal(t, 5, total)
}

func TestShuffleDeterministicPerSeed(t *testing.T) {
	cfg := testConfig()
	cfg.Shuffle = true
	cfg.Seed = 42
	cfg.BatchSize = 1

	examples := make([]Example, 8)
	for i := range examples {
		examples[i] = Example{Source: []int{10 + i}, Target: []int{7}, TargetOut: []int{7}}
	}

	p1, err := NewProvider(cfg)
	require.NoError(t, err)
	p2, err := NewProvider(cfg)
	require.NoError(t, err)

	b1 := p1.Batches(examples)
	b2 := p2.Batches(examples)
	require.Equal(t, len(b1), len(b2))
	for i := range b1 {
		assert.Equal(t, b1[i].Source, b2[i].Source)
	}
}
