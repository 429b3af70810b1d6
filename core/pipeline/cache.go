package pipeline

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tarkov-database/martin-tileserver/core/tiledata"
	"github.com/tarkov-database/martin-tileserver/model"
)

// CacheEntry is what the pipeline stores and retrieves on a cache hit,
// mirroring the (bytes, media, encoding) triple spec §4.E names.
type CacheEntry struct {
	Data     []byte
	Media    tiledata.Media
	Encoding tiledata.Encoding
	ETag     string
}

func (e *CacheEntry) size() int { return len(e.Data) }

// cacheShardCount stripes the cache across multiple independent LRUs to
// reduce lock contention under concurrent fan-out, the way a sharded cache
// in any high-throughput Go service is built.
const cacheShardCount = 16

// Cache is a bounded, shard-striped LRU keyed by (source-fingerprint, z, x,
// y, query-fingerprint), with low-water-mark eviction per spec §4.E step 7.
type Cache struct {
	shards     [cacheShardCount]*lru.Cache[string, *CacheEntry]
	mu         [cacheShardCount]sync.Mutex
	maxBytes   int64
	lowWater   int64
	used       int64
	usedMu     sync.Mutex
	cacheEmpty bool
}

// NewCache builds a cache bounded by maxBytes, evicting down to 90% (the
// spec's stated default low-water mark) once the bound is exceeded.
func NewCache(maxBytes int64, cacheEmpty bool) (*Cache, error) {
	c := &Cache{
		maxBytes:   maxBytes,
		lowWater:   maxBytes * 9 / 10,
		cacheEmpty: cacheEmpty,
	}
	for i := range c.shards {
		shard, err := lru.New[string, *CacheEntry](1 << 20) // count is effectively unbounded; byte budget governs eviction
		if err != nil {
			return nil, fmt.Errorf("pipeline: build cache shard: %w", err)
		}
		c.shards[i] = shard
	}
	return c, nil
}

func (c *Cache) shardFor(key string) int {
	sum := sha1.Sum([]byte(key))
	return int(sum[0]) % cacheShardCount
}

// Get returns the cached entry for key, if any.
func (c *Cache) Get(key string) (*CacheEntry, bool) {
	i := c.shardFor(key)
	c.mu[i].Lock()
	defer c.mu[i].Unlock()
	return c.shards[i].Get(key)
}

// Put stores entry under key unless it is empty and empty-tile caching is
// disabled (spec §4.E step 8's default), triggering low-water eviction
// across all shards when the byte budget is exceeded.
func (c *Cache) Put(key string, entry *CacheEntry) {
	if len(entry.Data) == 0 && !c.cacheEmpty {
		return
	}

	i := c.shardFor(key)
	c.mu[i].Lock()
	if old, ok := c.shards[i].Peek(key); ok {
		c.addUsed(-int64(old.size()))
	}
	c.shards[i].Add(key, entry)
	c.mu[i].Unlock()

	c.addUsed(int64(entry.size()))
	c.evictIfNeeded()
}

func (c *Cache) addUsed(delta int64) {
	c.usedMu.Lock()
	c.used += delta
	c.usedMu.Unlock()
}

// evictIfNeeded removes approximately-least-recently-used entries, shard by
// shard round-robin, until usage is back under the low-water mark.
func (c *Cache) evictIfNeeded() {
	c.usedMu.Lock()
	over := c.used > c.maxBytes
	c.usedMu.Unlock()
	if !over {
		return
	}

	for {
		c.usedMu.Lock()
		done := c.used <= c.lowWater
		c.usedMu.Unlock()
		if done {
			return
		}

		evictedAny := false
		for i := range c.shards {
			c.mu[i].Lock()
			if key, val, ok := c.shards[i].RemoveOldest(); ok {
				c.mu[i].Unlock()
				c.addUsed(-int64(val.size()))
				_ = key
				evictedAny = true
			} else {
				c.mu[i].Unlock()
			}
		}
		if !evictedAny {
			return
		}
	}
}

// Key builds the composite cache key spec §4.E describes: the comma-joined
// source ids, the tile coordinate, and a SHA-1 fingerprint of the query
// parameters forwarded to function sources.
func Key(sourceIDs []string, coord model.TileCoord, query map[string]string) string {
	var b strings.Builder
	b.WriteString(strings.Join(sourceIDs, ","))
	fmt.Fprintf(&b, "|%s|", coord.String())
	b.WriteString(queryFingerprint(query))
	return b.String()
}

func queryFingerprint(query map[string]string) string {
	if len(query) == 0 {
		return ""
	}
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha1.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(query[k]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
