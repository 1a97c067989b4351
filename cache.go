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
	"encoding/binary"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DecodeCacheTTL is the default TTL for cached decode results.
const DecodeCacheTTL = 2 * time.Minute

// CachedGenerator wraps a Generator with result caching. Decoding is
// deterministic for argmax cue selection, so identical requests can share
// one result; singleflight deduplicates concurrent identical requests.
type CachedGenerator struct {
	inner   Generator
	cache   *ttlcache.Cache[string, *Response]
	sfGroup *singleflight.Group
	logger  *zap.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCachedGenerator wraps a generator with a TTL cache.
func NewCachedGenerator(inner Generator, cache *ttlcache.Cache[string, *Response], logger *zap.Logger) *CachedGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedGenerator{
		inner:   inner,
		cache:   cache,
		sfGroup: &singleflight.Group{},
		logger:  logger,
	}
}

// NewDecodeCache builds the cache a CachedGenerator expects, with the
// default TTL and automatic expiry.
func NewDecodeCache(capacity uint64) *ttlcache.Cache[string, *Response] {
	cache := ttlcache.New[string, *Response](
		ttlcache.WithTTL[string, *Response](DecodeCacheTTL),
		ttlcache.WithCapacity[string, *Response](capacity),
	)
	go cache.Start()
	return cache
}

// Generate returns a cached response when one exists for an identical
// request, decoding through the wrapped generator otherwise.
func (c *CachedGenerator) Generate(ctx context.Context, req *Request) (*Response, error) {
	key := cacheKey(req)

	if item := c.cache.Get(key); item != nil {
		c.hits.Add(1)
		RecordCacheHit("decode")
		c.logger.Debug("decode cache hit", zap.Int("source_len", len(req.SourceIDs)))
		return item.Value(), nil
	}

	result, err, shared := c.sfGroup.Do(key, func() (any, error) {
		c.misses.Add(1)
		RecordCacheMiss("decode")

		resp, err := c.inner.Generate(ctx, req)
		if err != nil {
			return nil, err
		}
		c.cache.Set(key, resp, ttlcache.DefaultTTL)
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("singleflight hit for decode request")
	}
	return result.(*Response), nil
}

// Stats reports hit and miss counts since construction.
func (c *CachedGenerator) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// cacheKey hashes everything that conditions a decode.
func cacheKey(req *Request) string {
	h := xxhash.New()
	writeInts := func(tag string, ids []int) {
		_, _ = h.WriteString(tag)
		var buf [binary.MaxVarintLen64]byte
		for _, id := range ids {
			n := binary.PutVarint(buf[:], int64(id))
			_, _ = h.Write(buf[:n])
		}
	}
	writeInts("s", req.SourceIDs)
	writeInts("e", req.SourceEntityIDs)
	writeInts("f", req.FactIDs)
	writeInts("c", []int{req.ForceCue})
	if req.Diagnostics {
		_, _ = h.WriteString("d")
	}
	return strconv.FormatUint(h.Sum64(), 16)
}
