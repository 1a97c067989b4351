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

// Package vocab holds the id<->string lookup tables, the word/entity
// alignment maps, and the extended vocabulary id space the decoder
// generates into.
package vocab

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/bytedance/sonic"
)

// Reserved tokens. Id 0 is the unknown token by construction: every table
// is loaded with UNK first.
const (
	UNK = "<unk>"
	SOS = "<s>"
	EOS = "</s>"

	// UnkID is the id of UNK in every table.
	UnkID = 0
)

// Table maps tokens to dense ids and back. Unknown tokens map to UnkID.
type Table struct {
	tokens []string
	ids    map[string]int
}

// NewTable builds a table from an ordered token list. The first token is
// expected to be UNK; if it is not, UNK is prepended.
func NewTable(tokens []string) *Table {
	if len(tokens) == 0 || tokens[0] != UNK {
		tokens = append([]string{UNK}, tokens...)
	}
	t := &Table{tokens: tokens, ids: make(map[string]int, len(tokens))}
	for i, tok := range tokens {
		if _, ok := t.ids[tok]; !ok {
			t.ids[tok] = i
		}
	}
	return t
}

// LoadTable reads a vocabulary file with one token per line.
func LoadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening vocab file: %w", err)
	}
	defer f.Close()

	var tokens []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		tokens = append(tokens, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading vocab file: %w", err)
	}
	return NewTable(tokens), nil
}

// Len returns the number of entries.
func (t *Table) Len() int { return len(t.tokens) }

// ID returns the id for a token, or UnkID when absent.
func (t *Table) ID(token string) int {
	if id, ok := t.ids[token]; ok {
		return id
	}
	return UnkID
}

// IDs maps a token slice through the table.
func (t *Table) IDs(tokens []string) []int {
	out := make([]int, len(tokens))
	for i, tok := range tokens {
		out[i] = t.ID(tok)
	}
	return out
}

// Token returns the surface form for id, clamping out-of-range ids to UNK.
func (t *Table) Token(id int) string {
	if id < 0 || id >= len(t.tokens) {
		return UNK
	}
	return t.tokens[id]
}

// Alignment carries the fixed word<->entity mapping tables and the
// per-fact entity annotations.
type Alignment struct {
	// WordToEntity maps a word id to its entity id (0 when none).
	WordToEntity []int `json:"word_to_entity"`
	// EntityToWord maps an entity id back to a word id (UnkID when none).
	EntityToWord []int `json:"entity_to_word"`
	// FactEntityInResponse maps a fact id to the entity it contributes to
	// the response side.
	FactEntityInResponse []int `json:"fact_entity_in_response"`
	// FactEntityInPost maps a fact id to the entity it shares with the
	// source utterance.
	FactEntityInPost []int `json:"fact_entity_in_post"`
}

// LoadAlignment reads an alignment JSON file.
func LoadAlignment(path string) (*Alignment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading alignment file: %w", err)
	}
	var a Alignment
	if err := sonic.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parsing alignment file: %w", err)
	}
	return &a, nil
}

// Entity returns the entity id for a word id, clamped lookups, 0 when the
// table has no entry.
func (a *Alignment) Entity(wordID int) int {
	if wordID < 0 || wordID >= len(a.WordToEntity) {
		return 0
	}
	return a.WordToEntity[wordID]
}

// Word returns the word id for an entity id, UnkID when absent.
func (a *Alignment) Word(entityID int) int {
	if entityID < 0 || entityID >= len(a.EntityToWord) {
		return UnkID
	}
	return a.EntityToWord[entityID]
}

// ResponseEntity returns the response-side entity annotated on a fact id.
func (a *Alignment) ResponseEntity(factID int) int {
	if factID < 0 || factID >= len(a.FactEntityInResponse) {
		return 0
	}
	return a.FactEntityInResponse[factID]
}
