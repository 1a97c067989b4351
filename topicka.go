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

// Package topicka assembles the knowledge-grounded generation model: a
// bidirectional encoder, a latent cue-fact selector, a dual-path fusion
// decoder with an extended copy/entity vocabulary, and beam-search
// decoding on top.
package topicka

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/SixingPKU/IJCAI2020-TopicKA/lib/attention"
	"github.com/SixingPKU/IJCAI2020-TopicKA/lib/beam"
	"github.com/SixingPKU/IJCAI2020-TopicKA/lib/decoder"
	"github.com/SixingPKU/IJCAI2020-TopicKA/lib/knowledge"
	"github.com/SixingPKU/IJCAI2020-TopicKA/lib/rnn"
	"github.com/SixingPKU/IJCAI2020-TopicKA/lib/tensor"
	"github.com/SixingPKU/IJCAI2020-TopicKA/lib/vocab"
)

// Model owns every weight table and sub-component. Construction resolves
// all strategy enums; a built Model never fails on configuration.
type Model struct {
	cfg   Config
	space vocab.ExtendedSpace

	words *vocab.Table
	align *vocab.Alignment

	wordEmb   *tensor.Embedding
	entityEmb *tensor.Embedding

	encoder  *rnn.Encoder
	facts    *knowledge.FactTable
	selector *knowledge.Selector
	dec      *decoder.Decoder
	resolver *decoder.Resolver

	sosID int
	eosID int
}

// NewModel builds all components from one seeded source of randomness, so
// two models with equal configs carry identical weights.
func NewModel(cfg Config, words *vocab.Table, align *vocab.Alignment) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("model config: %w", err)
	}
	if words == nil || align == nil {
		return nil, fmt.Errorf("model needs a vocabulary table and an entity alignment")
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	m := &Model{
		cfg:     cfg,
		space:   cfg.Space(),
		words:   words,
		align:   align,
		wordEmb: tensor.NewEmbedding(rng, cfg.VocabSize, cfg.EmbedDim),
		sosID:   words.ID(vocab.SOS),
		eosID:   words.ID(vocab.EOS),
	}

	encIn := cfg.EmbedDim
	if cfg.EnableEntity {
		m.entityEmb = tensor.NewEmbedding(rng, cfg.NumEntities, cfg.EntityDim)
		encIn += cfg.EntityDim
	}
	m.encoder = rnn.NewEncoder(rng, encIn, cfg.Units, cfg.Layers)

	factDim := cfg.EntityDim
	if factDim <= 0 {
		factDim = cfg.EmbedDim
	}
	m.facts = knowledge.NewFactTable(rng, cfg.NumFacts, factDim)
	if cfg.FactWordFeatures {
		m.facts.EnableWordFeatures(align, m.wordEmb)
	}

	sel, err := knowledge.NewSelector(rng, knowledge.SelectorConfig{
		FactDim:           m.facts.Dim(),
		MemoryDim:         m.encoder.MemoryDim(),
		SummaryDim:        m.encoder.StateDim(),
		SimDim:            cfg.SimDim,
		Mode:              knowledge.SelectionMode(cfg.CueMode),
		GumbelTemperature: cfg.GumbelTemperature,
		KLDTemperature:    cfg.KLDTemperature,
		MaskUnknownSlot:   cfg.MaskUnknownFact,
	})
	if err != nil {
		return nil, fmt.Errorf("cue selector: %w", err)
	}
	m.selector = sel

	dec, err := decoder.New(rng, decoder.Config{
		Units:             cfg.Units,
		Layers:            cfg.Layers,
		EmbedDim:          cfg.EmbedDim,
		EntityDim:         cfg.EntityDim,
		CueDim:            m.facts.Dim(),
		MidDim:            cfg.MidDim,
		SimDim:            cfg.SimDim,
		Space:             m.space,
		Attention:         attention.Kind(cfg.Attention),
		EnableCopy:        cfg.EnableCopy,
		EnableEntity:      cfg.EnableEntity,
		EnableFusion:      cfg.EnableFusion,
		MultiCue:          cfg.MultiCue,
		EncoderSummaryDim: m.encoder.StateDim(),
		MemoryDim:         m.encoder.MemoryDim(),
	})
	if err != nil {
		return nil, fmt.Errorf("fusion decoder: %w", err)
	}
	m.dec = dec

	m.resolver = decoder.NewResolver(rng, decoder.ResolverConfig{
		Space:        m.space,
		Align:        align,
		WordEmb:      m.wordEmb,
		EntityEmb:    m.entityEmb,
		MemoryDim:    m.encoder.MemoryDim(),
		EnableCopy:   cfg.EnableCopy,
		EnableEntity: cfg.EnableEntity,
	})
	return m, nil
}

// Config returns the model's configuration.
func (m *Model) Config() Config { return m.cfg }

// Space returns the extended id space.
func (m *Model) Space() vocab.ExtendedSpace { return m.space }

// embedSequence builds encoder inputs: the word embedding, concatenated
// with the entity embedding when entity support is on. Missing entity ids
// fall back to the alignment table.
func (m *Model) embedSequence(ids, entityIDs []int) [][]float32 {
	out := make([][]float32, len(ids))
	for i, id := range ids {
		we := m.wordEmb.Lookup(id)
		if !m.cfg.EnableEntity {
			out[i] = we
			continue
		}
		ent := 0
		if i < len(entityIDs) {
			ent = entityIDs[i]
		} else {
			ent = m.align.Entity(id)
		}
		out[i] = tensor.Concat(we, m.entityEmb.Lookup(ent))
	}
	return out
}

// encode runs the shared encoder over one id sequence.
func (m *Model) encode(ids, entityIDs []int) (memory [][]float32, summary []float32) {
	return m.encoder.Encode(m.embedSequence(ids, entityIDs), len(ids))
}

// Request is one generation input. Ids are word-level; SourceEntityIDs is
// optional and falls back to the alignment table. ForceCue below 0 leaves
// the cue choice to the selector.
type Request struct {
	SourceIDs       []int
	SourceEntityIDs []int
	FactIDs         []int
	ForceCue        int
	Diagnostics     bool
}

// Response is one generated sequence with its provenance.
type Response struct {
	// IDs are extended-vocabulary ids; WordIDs and Tokens the resolved
	// surface forms.
	IDs     []int
	WordIDs []int
	Tokens  []string
	Score   float32
	Steps   int

	// CueIndex is the selected fact position, CuePrior the selector's
	// distribution over the pool.
	CueIndex int
	CuePrior []float32

	// Diagnostics, populated on request.
	Gates          []float32
	Alignments     [][]float32
	FactAlignments [][]float32
}

// Generator produces a response for a request. Engine and CachedGenerator
// both satisfy it.
type Generator interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// Engine runs inference over a built model.
type Engine struct {
	model  *Model
	logger *zap.Logger
}

// NewEngine wraps a model for decoding.
func NewEngine(model *Model, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{model: model, logger: logger}
}

// Generate decodes one example end to end: encode, select a cue, then
// greedy or beam search per the configured inference mode. The posterior
// path never runs here; only the prior conditions the cue.
func (e *Engine) Generate(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(req.SourceIDs) == 0 {
		return nil, fmt.Errorf("generate: empty source")
	}
	m := e.model
	start := time.Now()

	src := req.SourceIDs
	if len(src) > m.cfg.CopySlots && m.cfg.CopySlots > 0 {
		src = src[:m.cfg.CopySlots]
	}
	factIDs := req.FactIDs
	if len(factIDs) > m.cfg.EntitySlots && m.cfg.EntitySlots > 0 {
		factIDs = factIDs[:m.cfg.EntitySlots]
	}
	if len(factIDs) == 0 {
		// The pool is never empty: slot 0 stands in when no facts are
		// attached, so the decoder always has a cue vector.
		factIDs = []int{0}
	}

	memory, summary := m.encode(src, req.SourceEntityIDs)
	candidates := m.facts.EmbedPool(factIDs)

	forced := req.ForceCue
	teacher := forced >= 0 && forced < len(factIDs)
	if !teacher {
		forced = -1
	}
	sel := m.selector.Select(knowledge.Query{
		Memory:        memory,
		MemoryLen:     len(src),
		Candidates:    candidates,
		FactLen:       len(factIDs),
		SourceSummary: summary,
		GoldCue:       forced,
		Teacher:       teacher,
	})

	dctx := &decoder.Context{
		Memory:     memory,
		MemoryLen:  len(src),
		SourceIDs:  src,
		Candidates: candidates,
		FactIDs:    factIDs,
		FactLen:    len(factIDs),
		Cue:        sel.Embedding,
	}
	init := m.dec.InitState(summary, sel.Embedding)

	width := m.cfg.BeamWidth
	if InferMode(m.cfg.InferMode) == InferGreedy {
		width = 1
	}
	result, err := beam.Search(beam.Config{
		Width:           width,
		LengthPenalty:   m.cfg.LengthPenalty,
		CoveragePenalty: m.cfg.CoveragePenalty,
		MaxStepsFactor:  m.cfg.MaxStepsFactor,
		SOSID:           m.sosID,
		EOSID:           m.eosID,
		Diagnostics:     req.Diagnostics,
	}, m.dec, m.resolver, init, dctx)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	tokens := make([]string, len(result.WordIDs))
	for i, id := range result.WordIDs {
		tokens[i] = m.words.Token(id)
	}

	decodeRequestOps.WithLabelValues(m.cfg.InferMode).Inc()
	tokenGenerationOps.Add(float64(len(result.IDs)))
	decodeDuration.WithLabelValues(m.cfg.InferMode).Observe(time.Since(start).Seconds())
	e.logger.Debug("decoded",
		zap.Int("source_len", len(src)),
		zap.Int("facts", len(factIDs)),
		zap.Int("cue", sel.Index),
		zap.Int("steps", result.Steps),
		zap.Duration("duration", time.Since(start)))

	return &Response{
		IDs:            result.IDs,
		WordIDs:        result.WordIDs,
		Tokens:         tokens,
		Score:          result.Score,
		Steps:          result.Steps,
		CueIndex:       sel.Index,
		CuePrior:       sel.Prior,
		Gates:          result.Gates,
		Alignments:     result.Alignments,
		FactAlignments: result.FactAlignments,
	}, nil
}

// GenerateBatch decodes independent requests concurrently. Parallelism is
// across examples only; each decode stays sequential in time.
func (e *Engine) GenerateBatch(ctx context.Context, reqs []*Request) ([]*Response, error) {
	responses := make([]*Response, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			resp, err := e.Generate(gctx, req)
			if err != nil {
				return fmt.Errorf("request %d: %w", i, err)
			}
			responses[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return responses, nil
}
