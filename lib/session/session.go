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

// Package session tracks training progress: the step and epoch counters,
// the learning-rate schedule derived from them, and the weighting that
// folds the auxiliary losses into one objective. The parameter update
// itself is external; this package only validates the optimizer choice
// and prices each step.
package session

import (
	"fmt"
	"math"

	"go.uber.org/zap"
)

// OptimizerKind names a supported optimizer.
type OptimizerKind string

const (
	OptimizerSGD  OptimizerKind = "sgd"
	OptimizerAdam OptimizerKind = "adam"
)

// ParseOptimizer validates a configured optimizer name. Anything but sgd
// or adam is a configuration error.
func ParseOptimizer(s string) (OptimizerKind, error) {
	switch OptimizerKind(s) {
	case OptimizerSGD, OptimizerAdam:
		return OptimizerKind(s), nil
	default:
		return "", fmt.Errorf("unknown optimizer %q (want sgd or adam)", s)
	}
}

// Config shapes a training session.
type Config struct {
	Optimizer    string
	LearningRate float32

	// WarmupSteps ramps the rate exponentially from 1% of LearningRate up
	// to the full rate over the first WarmupSteps steps.
	WarmupSteps int
	// DecayStart is the step after which the rate is multiplied by
	// DecayFactor every DecayInterval steps. Zero disables decay.
	DecayStart    int
	DecayInterval int
	DecayFactor   float32

	// Objective weights. CrossEntropy always carries weight 1.
	KLWeight           float32
	KLAnnealSteps      int
	WordBowWeight      float32
	KnowledgeBowWeight float32
	TypeWeight         float32
}

// Session carries the mutable training counters. It is not safe for
// concurrent use; training drives it from a single goroutine.
type Session struct {
	cfg    Config
	opt    OptimizerKind
	logger *zap.Logger

	// GlobalStep counts optimizer steps across the whole run, EpochStep
	// within the current epoch.
	GlobalStep int
	EpochStep  int
	Epoch      int

	objectiveSum float64
	objectiveN   int
}

// New validates the configuration and returns a fresh session at step 0.
func New(cfg Config, logger *zap.Logger) (*Session, error) {
	opt, err := ParseOptimizer(cfg.Optimizer)
	if err != nil {
		return nil, err
	}
	if cfg.LearningRate <= 0 {
		return nil, fmt.Errorf("learning rate must be positive, got %v", cfg.LearningRate)
	}
	if cfg.DecayFactor <= 0 || cfg.DecayFactor > 1 {
		cfg.DecayFactor = 0.5
	}
	if cfg.DecayInterval <= 0 {
		cfg.DecayInterval = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{cfg: cfg, opt: opt, logger: logger}, nil
}

// Optimizer returns the validated optimizer kind.
func (s *Session) Optimizer() OptimizerKind { return s.opt }

// LearningRate returns the rate for the current step: exponential warmup
// to the base rate, then staged decay.
func (s *Session) LearningRate() float32 {
	lr := float64(s.cfg.LearningRate)
	if s.cfg.WarmupSteps > 0 && s.GlobalStep < s.cfg.WarmupSteps {
		// warmup_factor^(warmup_steps - step), with the factor chosen so
		// the ramp starts at 1% of the base rate.
		factor := math.Exp(math.Log(0.01) / float64(s.cfg.WarmupSteps))
		return float32(lr * math.Pow(factor, float64(s.cfg.WarmupSteps-s.GlobalStep)))
	}
	if s.cfg.DecayStart > 0 && s.GlobalStep > s.cfg.DecayStart {
		decays := (s.GlobalStep - s.cfg.DecayStart) / s.cfg.DecayInterval
		lr *= math.Pow(float64(s.cfg.DecayFactor), float64(decays))
	}
	return float32(lr)
}

// Advance moves the counters forward one optimizer step.
func (s *Session) Advance() {
	s.GlobalStep++
	s.EpochStep++
}

// RecordObjective accumulates a batch objective for epoch-level reporting.
func (s *Session) RecordObjective(objective float32) {
	s.objectiveSum += float64(objective)
	s.objectiveN++
}

// MeanObjective returns the mean recorded objective for the current epoch,
// 0 when nothing was recorded yet.
func (s *Session) MeanObjective() float32 {
	if s.objectiveN == 0 {
		return 0
	}
	return float32(s.objectiveSum / float64(s.objectiveN))
}

// EndEpoch closes the current epoch and resets the per-epoch counters.
func (s *Session) EndEpoch() {
	s.logger.Info("epoch finished",
		zap.Int("epoch", s.Epoch),
		zap.Int("steps", s.EpochStep),
		zap.Int("global_step", s.GlobalStep),
		zap.Float32("mean_objective", s.MeanObjective()))
	s.Epoch++
	s.EpochStep = 0
	s.objectiveSum = 0
	s.objectiveN = 0
}

// StepLosses are the raw per-batch loss terms.
type StepLosses struct {
	CrossEntropy float32
	KL           float32
	WordBow      float32
	KnowledgeBow float32
	Type         float32
}

// Objective folds the terms into the scalar the optimizer minimizes. The
// KL weight anneals linearly from 0 over KLAnnealSteps, so early training
// is not dominated by pulling the prior toward an untrained posterior.
func (s *Session) Objective(l StepLosses) float32 {
	klw := s.cfg.KLWeight
	if s.cfg.KLAnnealSteps > 0 {
		ramp := float32(s.GlobalStep) / float32(s.cfg.KLAnnealSteps)
		if ramp < 1 {
			klw *= ramp
		}
	}
	return l.CrossEntropy +
		klw*l.KL +
		s.cfg.WordBowWeight*l.WordBow +
		s.cfg.KnowledgeBowWeight*l.KnowledgeBow +
		s.cfg.TypeWeight*l.Type
}
