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
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	topicka "github.com/SixingPKU/IJCAI2020-TopicKA"
	"github.com/SixingPKU/IJCAI2020-TopicKA/lib/vocab"
)

// Version is set from main via ldflags.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:          "topicka",
	Short:        "Knowledge-grounded sequence generation",
	Long:         `topicka decodes responses grounded in a commonsense fact pool, fusing a selected cue fact into generation through a gated dual-path decoder.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	rootCmd.Version = Version
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default topicka.yaml in the working directory)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("vocab", "vocab.txt", "vocabulary file, one token per line, frequency ordered")
	rootCmd.PersistentFlags().String("align", "align.json", "entity alignment table (JSON)")
	rootCmd.PersistentFlags().String("attention", "luong", "attention kind (luong, scaled_luong, bahdanau, normed_bahdanau)")
	rootCmd.PersistentFlags().String("cue-mode", "argmax", "cue selection mode (argmax, sample, gumbel)")
	rootCmd.PersistentFlags().Int64("seed", 1, "weight initialization seed")

	mustBindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	mustBindPFlag("vocab", rootCmd.PersistentFlags().Lookup("vocab"))
	mustBindPFlag("align", rootCmd.PersistentFlags().Lookup("align"))
	mustBindPFlag("attention", rootCmd.PersistentFlags().Lookup("attention"))
	mustBindPFlag("cue_mode", rootCmd.PersistentFlags().Lookup("cue-mode"))
	mustBindPFlag("seed", rootCmd.PersistentFlags().Lookup("seed"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("topicka")
		viper.AddConfigPath(".")
	}
	viper.SetEnvPrefix("TOPICKA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "using config file:", viper.ConfigFileUsed())
	}
}

func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", key, err))
	}
}

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	level, err := zap.ParseAtomicLevel(viper.GetString("log.level"))
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	cfg.Level = level
	return cfg.Build()
}

// buildModel loads the vocabulary and alignment tables and assembles the
// model from the merged flag/file/env configuration.
func buildModel(logger *zap.Logger) (*topicka.Model, *vocab.Table, error) {
	words, err := vocab.LoadTable(viper.GetString("vocab"))
	if err != nil {
		return nil, nil, fmt.Errorf("load vocabulary: %w", err)
	}

	align, err := vocab.LoadAlignment(viper.GetString("align"))
	if err != nil {
		return nil, nil, fmt.Errorf("load alignment: %w", err)
	}

	cfg := topicka.DefaultConfig()
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	if cfg.VocabSize > words.Len() {
		cfg.VocabSize = words.Len()
	}

	model, err := topicka.NewModel(cfg, words, align)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("model assembled",
		zap.Int("vocab", cfg.VocabSize),
		zap.Int("copy_slots", cfg.CopySlots),
		zap.Int("entity_slots", cfg.EntitySlots),
		zap.String("attention", cfg.Attention),
		zap.String("cue_mode", cfg.CueMode))
	return model, words, nil
}
