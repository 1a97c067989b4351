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
)

var decodeCmd = &cobra.Command{
	Use:   "decode",
	Short: "Decode a file of generation requests",
	Long: `Decode reads JSON-lines requests and writes one generated response per line.

Each request line looks like:

  {"source": [4, 17, 9], "facts": [12, 3], "force_cue": -1}

Examples:
  # Beam-search decode with the default width
  topicka decode --input requests.jsonl

  # Greedy decode with result caching
  topicka decode --input requests.jsonl --infer-mode greedy --cache`,
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)

	decodeCmd.Flags().String("input", "", "JSON-lines request file (required)")
	decodeCmd.Flags().String("infer-mode", "beam_search", "decoding strategy (greedy, beam_search)")
	decodeCmd.Flags().Int("beam-width", 4, "beam width (beam_search mode)")
	decodeCmd.Flags().Float32("length-penalty", 1.0, "GNMT length penalty exponent")
	decodeCmd.Flags().Float32("coverage-penalty", 0, "coverage penalty weight")
	decodeCmd.Flags().Bool("diagnostics", false, "emit alignments and gate values")
	decodeCmd.Flags().Bool("cache", false, "cache decode results")
	_ = decodeCmd.MarkFlagRequired("input")

	mustBindPFlag("infer_mode", decodeCmd.Flags().Lookup("infer-mode"))
	mustBindPFlag("beam_width", decodeCmd.Flags().Lookup("beam-width"))
	mustBindPFlag("length_penalty", decodeCmd.Flags().Lookup("length-penalty"))
	mustBindPFlag("coverage_penalty", decodeCmd.Flags().Lookup("coverage-penalty"))
}

type decodeRequest struct {
	Source       []int `json:"source"`
	SourceEntity []int `json:"source_entity"`
	Facts        []int `json:"facts"`
	ForceCue     *int  `json:"force_cue"`
}

type decodeResponse struct {
	Tokens   []string  `json:"tokens"`
	WordIDs  []int     `json:"word_ids"`
	Score    float32   `json:"score"`
	CueIndex int       `json:"cue_index"`
	CuePrior []float32 `json:"cue_prior,omitempty"`
	Gates    []float32 `json:"gates,omitempty"`
}

func runDecode(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	model, _, err := buildModel(logger)
	if err != nil {
		return err
	}

	var gen topicka.Generator = topicka.NewEngine(model, logger)
	if cached, _ := cmd.Flags().GetBool("cache"); cached {
		gen = topicka.NewCachedGenerator(gen, topicka.NewDecodeCache(4096), logger)
	}
	diagnostics, _ := cmd.Flags().GetBool("diagnostics")

	input, _ := cmd.Flags().GetString("input")
	f, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var dr decodeRequest
		if err := sonic.UnmarshalString(line, &dr); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}

		req := &topicka.Request{
			SourceIDs:       dr.Source,
			SourceEntityIDs: dr.SourceEntity,
			FactIDs:         dr.Facts,
			ForceCue:        -1,
			Diagnostics:     diagnostics,
		}
		if dr.ForceCue != nil {
			req.ForceCue = *dr.ForceCue
		}

		resp, err := gen.Generate(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}

		encoded, err := sonic.MarshalString(decodeResponse{
			Tokens:   resp.Tokens,
			WordIDs:  resp.WordIDs,
			Score:    resp.Score,
			CueIndex: resp.CueIndex,
			CuePrior: resp.CuePrior,
			Gates:    resp.Gates,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(out, encoded)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	logger.Info("decode finished", zap.Int("requests", lineNo), zap.String("mode", viper.GetString("infer_mode")))
	return nil
}
