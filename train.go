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

	"go.uber.org/zap"

	"github.com/SixingPKU/IJCAI2020-TopicKA/lib/batch"
	"github.com/SixingPKU/IJCAI2020-TopicKA/lib/decoder"
	"github.com/SixingPKU/IJCAI2020-TopicKA/lib/knowledge"
	"github.com/SixingPKU/IJCAI2020-TopicKA/lib/loss"
	"github.com/SixingPKU/IJCAI2020-TopicKA/lib/session"
)

// Trainer runs the teacher-forced forward pass and prices each batch. The
// parameter update itself is external; the trainer reports loss terms and
// keeps the session counters moving.
type Trainer struct {
	model  *Model
	sess   *session.Session
	logger *zap.Logger

	// rankWeights, when non-nil, weights the word-bag loss by log rank.
	rankWeights []float32
}

// NewTrainer pairs a model with a training session.
func NewTrainer(model *Model, sess *session.Session, logger *zap.Logger) *Trainer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trainer{model: model, sess: sess, logger: logger}
}

// UseRankWeighting switches the word-bag loss to log-rank weighting; the
// vocabulary must be frequency-ordered for the weights to mean anything.
func (t *Trainer) UseRankWeighting() {
	t.rankWeights = loss.LogRankWeights(t.model.cfg.VocabSize)
}

// Session exposes the trainer's session (counters, learning rate).
func (t *Trainer) Session() *session.Session { return t.sess }

// ForwardBatch runs one batch through the full training path: shared
// encoding of source and gold response, posterior-aware cue selection with
// the gold cue forced through to the decoder, and the teacher-forced
// decoder recurrence. Returns the loss terms averaged over the batch.
func (t *Trainer) ForwardBatch(ctx context.Context, b *batch.Batch) (session.StepLosses, error) {
	var losses session.StepLosses
	n := len(b.Source)
	if n == 0 {
		return losses, fmt.Errorf("train: empty batch")
	}

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return losses, err
		}
		ex, err := t.forwardExample(b, i)
		if err != nil {
			return losses, fmt.Errorf("example %d: %w", i, err)
		}
		losses.CrossEntropy += ex.CrossEntropy
		losses.KL += ex.KL
		losses.WordBow += ex.WordBow
		losses.KnowledgeBow += ex.KnowledgeBow
		losses.Type += ex.Type
	}

	inv := 1 / float32(n)
	losses.CrossEntropy *= inv
	losses.KL *= inv
	losses.WordBow *= inv
	losses.KnowledgeBow *= inv
	losses.Type *= inv

	trainStepOps.Inc()
	return losses, nil
}

// Step prices one batch, advances the session and returns the weighted
// objective together with the raw terms.
func (t *Trainer) Step(ctx context.Context, b *batch.Batch) (float32, session.StepLosses, error) {
	losses, err := t.ForwardBatch(ctx, b)
	if err != nil {
		return 0, losses, err
	}
	objective := t.sess.Objective(losses)
	t.sess.RecordObjective(objective)
	t.sess.Advance()
	if t.sess.GlobalStep%100 == 0 {
		t.logger.Info("train step",
			zap.Int("global_step", t.sess.GlobalStep),
			zap.Float32("objective", objective),
			zap.Float32("ce", losses.CrossEntropy),
			zap.Float32("kl", losses.KL),
			zap.Float32("lr", t.sess.LearningRate()))
	}
	return objective, losses, nil
}

func (t *Trainer) forwardExample(b *batch.Batch, i int) (session.StepLosses, error) {
	m := t.model
	var out session.StepLosses

	srcLen := b.SourceLen[i]
	tgtLen := b.DecoderLen[i]
	if srcLen == 0 || tgtLen == 0 {
		return out, fmt.Errorf("degenerate lengths src=%d tgt=%d", srcLen, tgtLen)
	}

	memory, summary := m.encoder.Encode(m.embedSequence(b.Source[i], b.SourceEntity[i]), srcLen)
	candidates := m.facts.EmbedPool(b.Facts[i])
	factLen := b.FactLen[i]

	dctx := &decoder.Context{
		Memory:     memory,
		MemoryLen:  srcLen,
		SourceIDs:  b.Source[i],
		Candidates: candidates,
		FactIDs:    b.Facts[i],
		FactLen:    factLen,
	}

	// The posterior sees the gold response through the shared encoder.
	// Extended target ids resolve to surface words first.
	tgtWords := make([]int, tgtLen)
	for s := 0; s < tgtLen; s++ {
		tgtWords[s] = m.resolver.Resolve(b.DecoderOut[i][s], dctx).WordID
	}
	_, tgtSummary := m.encoder.Encode(m.embedSequence(tgtWords, nil), tgtLen)

	sel := m.selector.Select(knowledge.Query{
		Memory:        memory,
		MemoryLen:     srcLen,
		Candidates:    candidates,
		FactLen:       factLen,
		SourceSummary: summary,
		TargetSummary: tgtSummary,
		GoldCue:       b.CueFact[i],
		Teacher:       true,
	})
	dctx.Cue = sel.Embedding

	init := m.dec.InitState(summary, sel.Embedding)
	out.WordBow = loss.BagOfWords(m.dec.BowLogits(init), tgtWords, t.rankWeights)

	inputs := make([][]float32, tgtLen)
	for s := 0; s < tgtLen; s++ {
		inputs[s] = m.resolver.InputFor(b.DecoderIn[i][s], dctx)
	}
	results := m.dec.Forward(init, inputs, dctx)

	logits := make([][]float32, len(results))
	typeLogits := make([][]float32, len(results))
	for s, r := range results {
		logits[s] = r.Logits
		typeLogits[s] = r.TypeLogits
	}

	out.CrossEntropy = loss.SequenceNLL(logits, b.DecoderOut[i], tgtLen)
	out.Type = loss.TypeNLL(typeLogits, b.DecoderOut[i], tgtLen, m.space)
	out.KL = sel.KL
	out.KnowledgeBow = sel.SupervisionLoss
	return out, nil
}
