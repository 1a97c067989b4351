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

package attention

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	for _, name := range []string{"luong", "scaled_luong", "bahdanau", "normed_bahdanau"} {
		kind, err := ParseKind(name)
		require.NoError(t, err)
		assert.Equal(t, Kind(name), kind)
	}

	_, err := ParseKind("monotonic")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monotonic")
}

func TestNewRejectsUnknownKind(t *testing.T) {
	_, err := New(rand.New(rand.NewSource(1)), Kind("nope"), 8, 16)
	require.Error(t, err)
}

func randomMemory(rng *rand.Rand, n, dim int) [][]float32 {
	mem := make([][]float32, n)
	for i := range mem {
		mem[i] = make([]float32, dim)
		for j := range mem[i] {
			mem[i][j] = float32(rng.NormFloat64())
		}
	}
	return mem
}

func TestAttendDistribution(t *testing.T) {
	for _, name := range []string{"luong", "scaled_luong", "bahdanau", "normed_bahdanau"} {
		t.Run(name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(5))
			m, err := New(rng, Kind(name), 8, 16)
			require.NoError(t, err)

			memory := randomMemory(rng, 6, 16)
			query := make([]float32, 8)
			for i := range query {
				query[i] = float32(rng.NormFloat64())
			}

			align, context := Attend(m, query, memory, 4)
			require.Len(t, align, 6)
			require.Len(t, context, 16)

			var sum float32
			for _, a := range align {
				sum += a
			}
			assert.InDelta(t, 1.0, sum, 1e-4)

			// Positions beyond the true length carry no mass.
			assert.Less(t, align[4], float32(1e-6))
			assert.Less(t, align[5], float32(1e-6))
		})
	}
}

func TestAttendDeterministic(t *testing.T) {
	build := func() (Mechanism, [][]float32, []float32) {
		rng := rand.New(rand.NewSource(9))
		m, err := New(rng, Luong, 4, 8)
		require.NoError(t, err)
		return m, randomMemory(rng, 3, 8), []float32{0.1, -0.5, 0.25, 1}
	}

	m1, mem1, q1 := build()
	m2, mem2, q2 := build()
	a1, c1 := Attend(m1, q1, mem1, 3)
	a2, c2 := Attend(m2, q2, mem2, 3)
	assert.Equal(t, a1, a2)
	assert.Equal(t, c1, c2)
}
