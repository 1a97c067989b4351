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

package topicka

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SixingPKU/IJCAI2020-TopicKA/lib/batch"
	"github.com/SixingPKU/IJCAI2020-TopicKA/lib/session"
	"github.com/SixingPKU/IJCAI2020-TopicKA/lib/vocab"
)

func testVocab() *vocab.Table {
	tokens := []string{vocab.UNK, vocab.SOS, vocab.EOS}
	for i := 0; i < 37; i++ {
		tokens = append(tokens, fmt.Sprintf("w%d", i))
	}
	return vocab.NewTable(tokens)
}

func testAlign() *vocab.Alignment {
	wordToEntity := make([]int, 40)
	entityToWord := make([]int, 8)
	for e := 1; e < 8; e++ {
		w := 10 + e
		entityToWord[e] = w
		wordToEntity[w] = e
	}
	return &vocab.Alignment{
		WordToEntity:         wordToEntity,
		EntityToWord:         entityToWord,
		FactEntityInResponse: []int{0, 1, 2, 3, 4, 5, 6, 7},
		FactEntityInPost:     []int{0, 7, 6, 5, 4, 3, 2, 1},
	}
}

func testModelConfig() Config {
	cfg := DefaultConfig()
	cfg.VocabSize = 40
	cfg.CopySlots = 8
	cfg.EntitySlots = 4
	cfg.NumFacts = 8
	cfg.NumEntities = 8
	cfg.EmbedDim = 6
	cfg.EntityDim = 4
	cfg.Units = 8
	cfg.Layers = 1
	cfg.SimDim = 8
	cfg.MidDim = 12
	cfg.BeamWidth = 2
	return cfg
}

func newTestModel(t *testing.T, mutate func(*Config)) *Model {
	t.Helper()
	cfg := testModelConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := NewModel(cfg, testVocab(), testAlign())
	require.NoError(t, err)
	return m
}

func testRequest() *Request {
	return &Request{
		SourceIDs: []int{5, 11, 23, 8},
		FactIDs:   []int{1, 3, 5},
		ForceCue:  -1,
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, testModelConfig().Validate())

	bad := []func(*Config){
		func(c *Config) { c.VocabSize = 0 },
		func(c *Config) { c.Attention = "monotonic" },
		func(c *Config) { c.CueMode = "soft" },
		func(c *Config) { c.InferMode = "sampling" },
		func(c *Config) { c.BeamWidth = 0 },
		func(c *Config) { c.Units = 0 },
		func(c *Config) { c.EnableCopy = true; c.CopySlots = 0 },
	}
	for i, mutate := range bad {
		cfg := testModelConfig()
		mutate(&cfg)
		assert.Errorf(t, cfg.Validate(), "case %d", i)
	}
}

func TestGenerate(t *testing.T) {
	m := newTestModel(t, nil)
	eng := NewEngine(m, zap.NewNop())

	resp, err := eng.Generate(context.Background(), testRequest())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, resp.Steps, 1)
	assert.Len(t, resp.WordIDs, len(resp.IDs))
	assert.Len(t, resp.Tokens, len(resp.IDs))
	assert.LessOrEqual(t, resp.Steps, 2*4)
	assert.GreaterOrEqual(t, resp.CueIndex, 0)
	assert.Less(t, resp.CueIndex, 3)

	var sum float32
	for _, p := range resp.CuePrior {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-4)
}

func TestGenerateEmptySource(t *testing.T) {
	m := newTestModel(t, nil)
	eng := NewEngine(m, zap.NewNop())

	_, err := eng.Generate(context.Background(), &Request{})
	require.Error(t, err)
}

func TestGenerateDeterministicForArgmax(t *testing.T) {
	run := func() *Response {
		m := newTestModel(t, nil)
		eng := NewEngine(m, zap.NewNop())
		resp, err := eng.Generate(context.Background(), testRequest())
		require.NoError(t, err)
		return resp
	}
	a, b := run(), run()
	assert.Equal(t, a.IDs, b.IDs)
	assert.Equal(t, a.CueIndex, b.CueIndex)
}

func TestGreedyEqualsBeamWidthOne(t *testing.T) {
	greedy := newTestModel(t, func(c *Config) { c.InferMode = string(InferGreedy); c.BeamWidth = 7 })
	beam1 := newTestModel(t, func(c *Config) { c.InferMode = string(InferBeam); c.BeamWidth = 1 })

	rg, err := NewEngine(greedy, zap.NewNop()).Generate(context.Background(), testRequest())
	require.NoError(t, err)
	rb, err := NewEngine(beam1, zap.NewNop()).Generate(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, rg.IDs, rb.IDs)
}

func TestForceCue(t *testing.T) {
	m := newTestModel(t, nil)
	eng := NewEngine(m, zap.NewNop())

	req := testRequest()
	req.ForceCue = 2
	resp, err := eng.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.CueIndex)
}

func TestGenerateDiagnostics(t *testing.T) {
	m := newTestModel(t, nil)
	eng := NewEngine(m, zap.NewNop())

	req := testRequest()
	req.Diagnostics = true
	resp, err := eng.Generate(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, resp.Gates, resp.Steps)
	require.Len(t, resp.Alignments, resp.Steps)
}

func TestGenerateBatch(t *testing.T) {
	m := newTestModel(t, nil)
	eng := NewEngine(m, zap.NewNop())

	reqs := []*Request{
		testRequest(),
		{SourceIDs: []int{7, 7, 9}, FactIDs: []int{2}, ForceCue: -1},
		{SourceIDs: []int{30}, ForceCue: -1},
	}
	resps, err := eng.GenerateBatch(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, resps, 3)
	for _, r := range resps {
		require.NotNil(t, r)
	}

	// Batch results match individual decodes.
	single, err := eng.Generate(context.Background(), reqs[1])
	require.NoError(t, err)
	assert.Equal(t, single.IDs, resps[1].IDs)
}

// Sample and gumbel mode share the selector's random generator across the
// concurrent decodes of a batch. Run with -race.
func TestGenerateBatchStochasticModes(t *testing.T) {
	for _, mode := range []string{"sample", "gumbel"} {
		t.Run(mode, func(t *testing.T) {
			m := newTestModel(t, func(c *Config) { c.CueMode = mode })
			eng := NewEngine(m, zap.NewNop())

			reqs := make([]*Request, 32)
			for i := range reqs {
				reqs[i] = testRequest()
			}
			resps, err := eng.GenerateBatch(context.Background(), reqs)
			require.NoError(t, err)
			require.Len(t, resps, len(reqs))
			for _, r := range resps {
				require.NotNil(t, r)
				assert.GreaterOrEqual(t, r.CueIndex, 0)
				assert.Less(t, r.CueIndex, 3)
			}
		})
	}
}

func TestGenerateBatchCancelled(t *testing.T) {
	m := newTestModel(t, nil)
	eng := NewEngine(m, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := eng.GenerateBatch(ctx, []*Request{testRequest()})
	require.Error(t, err)
}

func TestCachedGenerator(t *testing.T) {
	m := newTestModel(t, nil)
	cached := NewCachedGenerator(NewEngine(m, zap.NewNop()), NewDecodeCache(16), zap.NewNop())

	req := testRequest()
	first, err := cached.Generate(context.Background(), req)
	require.NoError(t, err)
	second, err := cached.Generate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	hits, misses := cached.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)

	// A different request misses.
	other := testRequest()
	other.SourceIDs = []int{9, 9}
	_, err = cached.Generate(context.Background(), other)
	require.NoError(t, err)
	_, misses = cached.Stats()
	assert.Equal(t, uint64(2), misses)
}

func TestTrainerForwardBatch(t *testing.T) {
	m := newTestModel(t, nil)
	sess, err := session.New(session.Config{
		Optimizer:          "adam",
		LearningRate:       0.001,
		KLWeight:           1,
		WordBowWeight:      1,
		KnowledgeBowWeight: 1,
		TypeWeight:         1,
	}, zap.NewNop())
	require.NoError(t, err)

	trainer := NewTrainer(m, sess, zap.NewNop())

	provider, err := batch.NewProvider(batch.Config{
		BatchSize: 2,
		SrcMaxLen: 8,
		TgtMaxLen: 8,
		SOSID:     1,
		EOSID:     2,
	})
	require.NoError(t, err)

	examples := []batch.Example{
		{
			Source:    []int{5, 11, 23},
			Target:    []int{8, 12},
			TargetOut: []int{8, 12},
			Facts:     []int{1, 3},
			CueFact:   1,
		},
		{
			Source:    []int{7, 9},
			Target:    []int{13, 40 + 1}, // includes a copy-range input
			TargetOut: []int{13, 40 + 1},
			Facts:     []int{2},
			CueFact:   0,
		},
	}
	batches := provider.Batches(examples)
	require.Len(t, batches, 1)

	objective, losses, err := trainer.Step(context.Background(), batches[0])
	require.NoError(t, err)

	for name, v := range map[string]float32{
		"objective": objective,
		"ce":        losses.CrossEntropy,
		"kl":        losses.KL,
		"word_bow":  losses.WordBow,
		"know_bow":  losses.KnowledgeBow,
		"type":      losses.Type,
	} {
		assert.Falsef(t, math.IsNaN(float64(v)), "%s is NaN", name)
		assert.Falsef(t, math.IsInf(float64(v), 0), "%s is Inf", name)
	}
	assert.Greater(t, losses.CrossEntropy, float32(0))
	assert.GreaterOrEqual(t, losses.KL, float32(0))
	assert.Equal(t, 1, sess.GlobalStep)
	assert.InDelta(t, float64(objective), float64(sess.MeanObjective()), 1e-5)
}

func TestTrainerEmptyBatch(t *testing.T) {
	m := newTestModel(t, nil)
	sess, err := session.New(session.Config{Optimizer: "sgd", LearningRate: 0.1}, zap.NewNop())
	require.NoError(t, err)

	trainer := NewTrainer(m, sess, zap.NewNop())
	_, err = trainer.ForwardBatch(context.Background(), &batch.Batch{})
	require.Error(t, err)
}
