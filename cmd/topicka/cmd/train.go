// Copyright 2026 The TopicKA Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	topicka "github.com/SixingPKU/IJCAI2020-TopicKA"
	"github.com/SixingPKU/IJCAI2020-TopicKA/lib/batch"
	"github.com/SixingPKU/IJCAI2020-TopicKA/lib/session"
	"github.com/SixingPKU/IJCAI2020-TopicKA/lib/vocab"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Run the training forward pass over a corpus",
	Long: `Train reads JSON-lines examples, batches them by length, and drives the
teacher-forced forward pass, reporting the objective per step.

Each example line looks like:

  {"source": [4, 17], "target": [8, 2], "target_out": [8, 2], "facts": [12, 3], "cue_fact": 1}

Examples:
  topicka train --input examples.jsonl --epochs 3 --optimizer adam --lr 0.001`,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().String("input", "", "JSON-lines example file (required)")
	trainCmd.Flags().Int("epochs", 1, "number of passes over the corpus")
	trainCmd.Flags().Int("batch-size", 32, "examples per batch")
	trainCmd.Flags().Int("buckets", 5, "length buckets")
	trainCmd.Flags().String("optimizer", "adam", "optimizer name (sgd, adam)")
	trainCmd.Flags().Float32("lr", 0.001, "base learning rate")
	trainCmd.Flags().Int("warmup-steps", 0, "learning-rate warmup steps")
	trainCmd.Flags().Float32("kl-weight", 1.0, "KL divergence weight")
	trainCmd.Flags().Int("kl-anneal-steps", 0, "steps to anneal the KL weight over")
	trainCmd.Flags().Float32("word-bow-weight", 0, "word bag-of-words loss weight")
	trainCmd.Flags().Float32("knowledge-bow-weight", 0, "cue supervision loss weight")
	trainCmd.Flags().Float32("type-weight", 0, "type-selector loss weight")
	trainCmd.Flags().Bool("rank-bow", false, "weight the word bag by log rank")
	_ = trainCmd.MarkFlagRequired("input")

	mustBindPFlag("train.optimizer", trainCmd.Flags().Lookup("optimizer"))
	mustBindPFlag("train.lr", trainCmd.Flags().Lookup("lr"))
	mustBindPFlag("train.warmup_steps", trainCmd.Flags().Lookup("warmup-steps"))
	mustBindPFlag("train.batch_size", trainCmd.Flags().Lookup("batch-size"))
}

type trainExample struct {
	Source       []int `json:"source"`
	SourceEntity []int `json:"source_entity"`
	Target       []int `json:"target"`
	TargetOut    []int `json:"target_out"`
	Facts        []int `json:"facts"`
	CueFact      *int  `json:"cue_fact"`
}

func runTrain(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	model, words, err := buildModel(logger)
	if err != nil {
		return err
	}

	klWeight, _ := cmd.Flags().GetFloat32("kl-weight")
	klAnneal, _ := cmd.Flags().GetInt("kl-anneal-steps")
	wordBow, _ := cmd.Flags().GetFloat32("word-bow-weight")
	knowledgeBow, _ := cmd.Flags().GetFloat32("knowledge-bow-weight")
	typeWeight, _ := cmd.Flags().GetFloat32("type-weight")

	sess, err := session.New(session.Config{
		Optimizer:          viper.GetString("train.optimizer"),
		LearningRate:       float32(viper.GetFloat64("train.lr")),
		WarmupSteps:        viper.GetInt("train.warmup_steps"),
		KLWeight:           klWeight,
		KLAnnealSteps:      klAnneal,
		WordBowWeight:      wordBow,
		KnowledgeBowWeight: knowledgeBow,
		TypeWeight:         typeWeight,
	}, logger)
	if err != nil {
		return err
	}

	trainer := topicka.NewTrainer(model, sess, logger)
	if rank, _ := cmd.Flags().GetBool("rank-bow"); rank {
		trainer.UseRankWeighting()
	}

	input, _ := cmd.Flags().GetString("input")
	examples, err := loadExamples(input)
	if err != nil {
		return err
	}
	logger.Info("corpus loaded", zap.Int("examples", len(examples)))

	cfg := model.Config()
	buckets, _ := cmd.Flags().GetInt("buckets")
	provider, err := batch.NewProvider(batch.Config{
		BatchSize:  viper.GetInt("train.batch_size"),
		NumBuckets: buckets,
		SrcMaxLen:  cfg.CopySlots,
		TgtMaxLen:  2 * cfg.CopySlots,
		SOSID:      words.ID(vocab.SOS),
		EOSID:      words.ID(vocab.EOS),
		Shuffle:    true,
		Seed:       cfg.Seed,
	})
	if err != nil {
		return err
	}

	epochs, _ := cmd.Flags().GetInt("epochs")
	for epoch := 0; epoch < epochs; epoch++ {
		for _, b := range provider.Batches(examples) {
			if _, _, err := trainer.Step(cmd.Context(), b); err != nil {
				return fmt.Errorf("epoch %d step %d: %w", epoch, sess.EpochStep, err)
			}
		}
		// EndEpoch reports the mean objective recorded by the steps above.
		sess.EndEpoch()
	}
	logger.Info("training pass finished",
		zap.Int("epochs", epochs),
		zap.Int("global_step", sess.GlobalStep),
		zap.Float32("lr", sess.LearningRate()))
	return nil
}

func loadExamples(path string) ([]batch.Example, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	var examples []batch.Example
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var te trainExample
		if err := sonic.UnmarshalString(line, &te); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		ex := batch.Example{
			Source:       te.Source,
			SourceEntity: te.SourceEntity,
			Target:       te.Target,
			TargetOut:    te.TargetOut,
			Facts:        te.Facts,
			CueFact:      -1,
		}
		if te.CueFact != nil {
			ex.CueFact = *te.CueFact
		}
		examples = append(examples, ex)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return examples, nil
}
