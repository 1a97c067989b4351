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

package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseOptimizer(t *testing.T) {
	for _, name := range []string{"sgd", "adam"} {
		opt, err := ParseOptimizer(name)
		require.NoError(t, err)
		assert.Equal(t, OptimizerKind(name), opt)
	}

	_, err := ParseOptimizer("adagrad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "adagrad")
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{Optimizer: "rmsprop", LearningRate: 0.1}, zap.NewNop())
	require.Error(t, err)

	_, err = New(Config{Optimizer: "sgd", LearningRate: 0}, zap.NewNop())
	require.Error(t, err)
}

func TestWarmupRampsToBaseRate(t *testing.T) {
	s, err := New(Config{Optimizer: "adam", LearningRate: 0.1, WarmupSteps: 100}, zap.NewNop())
	require.NoError(t, err)

	// Starts near 1% of the base rate and rises monotonically.
	assert.InDelta(t, 0.001, float64(s.LearningRate()), 1e-4)

	prev := s.LearningRate()
	for i := 0; i < 100; i++ {
		s.Advance()
		lr := s.LearningRate()
		assert.GreaterOrEqual(t, lr, prev)
		prev = lr
	}
	assert.InDelta(t, 0.1, float64(s.LearningRate()), 1e-4)
}

func TestStagedDecay(t *testing.T) {
	s, err := New(Config{
		Optimizer:     "sgd",
		LearningRate:  0.1,
		DecayStart:    10,
		DecayInterval: 10,
		DecayFactor:   0.5,
	}, zap.NewNop())
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		s.Advance()
	}
	assert.InDelta(t, 0.1, float64(s.LearningRate()), 1e-5)

	for i := 0; i < 10; i++ {
		s.Advance()
	}
	assert.InDelta(t, 0.05, float64(s.LearningRate()), 1e-5)

	for i := 0; i < 10; i++ {
		s.Advance()
	}
	assert.InDelta(t, 0.025, float64(s.LearningRate()), 1e-5)
}

func TestCounters(t *testing.T) {
	s, err := New(Config{Optimizer: "adam", LearningRate: 0.01}, zap.NewNop())
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		s.Advance()
	}
	assert.Equal(t, 5, s.GlobalStep)
	assert.Equal(t, 5, s.EpochStep)

	s.EndEpoch()
	assert.Equal(t, 1, s.Epoch)
	assert.Equal(t, 0, s.EpochStep)
	assert.Equal(t, 5, s.GlobalStep)
}

func TestEpochMeanObjective(t *testing.T) {
	s, err := New(Config{Optimizer: "sgd", LearningRate: 0.1}, zap.NewNop())
	require.NoError(t, err)

	assert.Zero(t, s.MeanObjective())

	s.RecordObjective(1)
	s.RecordObjective(2)
	s.RecordObjective(3)
	assert.InDelta(t, 2.0, float64(s.MeanObjective()), 1e-5)

	// The accumulator is per epoch.
	s.EndEpoch()
	assert.Zero(t, s.MeanObjective())
}

func TestObjectiveWeighting(t *testing.T) {
	s, err := New(Config{
		Optimizer:          "adam",
		LearningRate:       0.01,
		KLWeight:           0.5,
		WordBowWeight:      2,
		KnowledgeBowWeight: 1,
		TypeWeight:         0.25,
	}, zap.NewNop())
	require.NoError(t, err)

	obj := s.Objective(StepLosses{
		CrossEntropy: 1,
		KL:           2,
		WordBow:      3,
		KnowledgeBow: 4,
		Type:         8,
	})
	assert.InDelta(t, 1+0.5*2+2*3+1*4+0.25*8, float64(obj), 1e-5)
}

func TestKLAnnealing(t *testing.T) {
	s, err := New(Config{
		Optimizer:     "adam",
		LearningRate:  0.01,
		KLWeight:      1,
		KLAnnealSteps: 10,
	}, zap.NewNop())
	require.NoError(t, err)

	losses := StepLosses{KL: 1}
	assert.Zero(t, s.Objective(losses))

	for i := 0; i < 5; i++ {
		s.Advance()
	}
	assert.InDelta(t, 0.5, float64(s.Objective(losses)), 1e-5)

	for i := 0; i < 10; i++ {
		s.Advance()
	}
	assert.InDelta(t, 1.0, float64(s.Objective(losses)), 1e-5)
}
