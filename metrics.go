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

import "github.com/prometheus/client_golang/prometheus"

var (
	decodeRequestOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "topicka",
			Subsystem: "engine",
			Name:      "decode_request_ops_total",
			Help:      "The total number of decode requests.",
		},
		[]string{"mode"},
	)
	tokenGenerationOps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "topicka",
			Subsystem: "engine",
			Name:      "token_generation_ops_total",
			Help:      "The total number of tokens generated.",
		},
	)
	decodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "topicka",
			Subsystem: "engine",
			Name:      "decode_duration_seconds",
			Help:      "Time taken to decode one request.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"mode"},
	)

	cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "topicka",
			Subsystem: "engine",
			Name:      "cache_hits_total",
			Help:      "Total number of decode cache hits.",
		},
		[]string{"type"},
	)
	cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "topicka",
			Subsystem: "engine",
			Name:      "cache_misses_total",
			Help:      "Total number of decode cache misses.",
		},
		[]string{"type"},
	)

	trainStepOps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "topicka",
			Subsystem: "engine",
			Name:      "train_step_ops_total",
			Help:      "The total number of training steps processed.",
		},
	)
)

func init() {
	prometheus.MustRegister(decodeRequestOps)
	prometheus.MustRegister(tokenGenerationOps)
	prometheus.MustRegister(decodeDuration)
	prometheus.MustRegister(cacheHits)
	prometheus.MustRegister(cacheMisses)
	prometheus.MustRegister(trainStepOps)
}

// RecordCacheHit increments the cache hit counter.
func RecordCacheHit(cacheType string) {
	cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss increments the cache miss counter.
func RecordCacheMiss(cacheType string) {
	cacheMisses.WithLabelValues(cacheType).Inc()
}
