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
	"fmt"

	"github.com/SixingPKU/IJCAI2020-TopicKA/lib/attention"
	"github.com/SixingPKU/IJCAI2020-TopicKA/lib/knowledge"
	"github.com/SixingPKU/IJCAI2020-TopicKA/lib/vocab"
)

// InferMode names the decoding strategy.
type InferMode string

const (
	InferGreedy InferMode = "greedy"
	InferBeam   InferMode = "beam_search"
)

// ParseInferMode validates a configured inference mode.
func ParseInferMode(s string) (InferMode, error) {
	switch InferMode(s) {
	case InferGreedy, InferBeam:
		return InferMode(s), nil
	default:
		return "", fmt.Errorf("unknown inference mode %q (want greedy or beam_search)", s)
	}
}

// Config assembles one model. Validate rejects unknown enum values and
// impossible shapes before any weight is allocated.
type Config struct {
	// Vocabulary and id-space sizes. CopySlots bounds source length,
	// EntitySlots bounds the fact pool, NumFacts sizes the fact table,
	// NumEntities the entity embedding table.
	VocabSize   int `mapstructure:"vocab_size"`
	CopySlots   int `mapstructure:"copy_slots"`
	EntitySlots int `mapstructure:"entity_slots"`
	NumFacts    int `mapstructure:"num_facts"`
	NumEntities int `mapstructure:"num_entities"`

	// Model widths.
	EmbedDim  int `mapstructure:"embed_dim"`
	EntityDim int `mapstructure:"entity_dim"`
	Units     int `mapstructure:"units"`
	Layers    int `mapstructure:"layers"`
	SimDim    int `mapstructure:"sim_dim"`
	MidDim    int `mapstructure:"mid_dim"`

	// Strategy enums, resolved once at construction.
	Attention string `mapstructure:"attention"`
	CueMode   string `mapstructure:"cue_mode"`
	InferMode string `mapstructure:"infer_mode"`

	// Capability flags.
	EnableCopy       bool `mapstructure:"enable_copy"`
	EnableEntity     bool `mapstructure:"enable_entity"`
	EnableFusion     bool `mapstructure:"enable_fusion"`
	MultiCue         bool `mapstructure:"multi_cue"`
	FactWordFeatures bool `mapstructure:"fact_word_features"`
	MaskUnknownFact  bool `mapstructure:"mask_unknown_fact"`

	// Decoding.
	BeamWidth       int     `mapstructure:"beam_width"`
	LengthPenalty   float32 `mapstructure:"length_penalty"`
	CoveragePenalty float32 `mapstructure:"coverage_penalty"`
	MaxStepsFactor  int     `mapstructure:"max_steps_factor"`

	// Temperatures.
	GumbelTemperature float32 `mapstructure:"gumbel_temperature"`
	KLDTemperature    float32 `mapstructure:"kld_temperature"`

	// Seed makes weight initialization and sampling reproducible.
	Seed int64 `mapstructure:"seed"`
}

// DefaultConfig returns a small working configuration; callers override
// sizes to match their corpus.
func DefaultConfig() Config {
	return Config{
		VocabSize:      50000,
		CopySlots:      64,
		EntitySlots:    32,
		NumFacts:       1024,
		NumEntities:    4096,
		EmbedDim:       128,
		EntityDim:      64,
		Units:          256,
		Layers:         2,
		SimDim:         128,
		MidDim:         256,
		Attention:      string(attention.Luong),
		CueMode:        string(knowledge.SelectArgmax),
		InferMode:      string(InferBeam),
		EnableCopy:     true,
		EnableEntity:   true,
		EnableFusion:   true,
		BeamWidth:      4,
		LengthPenalty:  1.0,
		MaxStepsFactor: 2,
		Seed:           1,
	}
}

// Space returns the extended id space the config implies.
func (c Config) Space() vocab.ExtendedSpace {
	return vocab.ExtendedSpace{
		VocabSize:   c.VocabSize,
		CopySlots:   c.CopySlots,
		EntitySlots: c.EntitySlots,
	}
}

// Validate checks shapes and resolves every strategy enum. An unknown
// attention kind, cue mode or inference mode is fatal here.
func (c Config) Validate() error {
	if c.VocabSize <= 1 {
		return fmt.Errorf("vocab_size must exceed 1, got %d", c.VocabSize)
	}
	if c.CopySlots < 0 || c.EntitySlots < 0 {
		return fmt.Errorf("id-space slot counts must be non-negative, got copy=%d entity=%d", c.CopySlots, c.EntitySlots)
	}
	if c.EnableCopy && c.CopySlots == 0 {
		return fmt.Errorf("copy enabled but copy_slots is 0")
	}
	if c.EnableEntity && (c.EntitySlots == 0 || c.NumEntities == 0) {
		return fmt.Errorf("entity enabled but entity_slots=%d num_entities=%d", c.EntitySlots, c.NumEntities)
	}
	if c.NumFacts <= 0 {
		return fmt.Errorf("num_facts must be positive, got %d", c.NumFacts)
	}
	for name, v := range map[string]int{
		"embed_dim": c.EmbedDim, "units": c.Units, "layers": c.Layers,
		"sim_dim": c.SimDim, "mid_dim": c.MidDim,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, v)
		}
	}
	if c.EnableEntity && c.EntityDim <= 0 {
		return fmt.Errorf("entity_dim must be positive when entity support is on, got %d", c.EntityDim)
	}
	if _, err := attention.ParseKind(c.Attention); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := knowledge.ParseSelectionMode(c.CueMode); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := ParseInferMode(c.InferMode); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.InferMode == string(InferBeam) && c.BeamWidth < 1 {
		return fmt.Errorf("beam_width must be >= 1, got %d", c.BeamWidth)
	}
	return nil
}
