package cache

import (
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/Lothbrok303/lazabot-ubu/pkg/log"
)

// Cache is a named, process-local concurrent map for frequently-read state.
// Copying a Cache value aliases the same underlying map. There is no TTL or
// eviction; callers control entry lifetime.
type Cache[K comparable, V any] struct {
	store *shardedMap[K, V]
	name  string
}

// New creates a cache with a diagnostic name.
func New[K comparable, V any](name string) Cache[K, V] {
	return Cache[K, V]{
		store: newShardedMap[K, V](),
		name:  name,
	}
}

// Name returns the cache's diagnostic name.
func (c Cache[K, V]) Name() string {
	return c.name
}

// Set inserts or updates a value.
func (c Cache[K, V]) Set(key K, value V) {
	c.store.set(key, value)
}

// Get returns the value for key and whether it was present.
func (c Cache[K, V]) Get(key K) (V, bool) {
	return c.store.get(key)
}

// Remove deletes key and returns the removed value, if any.
func (c Cache[K, V]) Remove(key K) (V, bool) {
	return c.store.remove(key)
}

// Contains reports whether key is present.
func (c Cache[K, V]) Contains(key K) bool {
	_, ok := c.store.get(key)
	return ok
}

// Clear removes all entries.
func (c Cache[K, V]) Clear() {
	c.store.clear()
	log.Logger.Debug().Str("cache", c.name).Msg("cache cleared")
}

// Len returns the number of entries.
func (c Cache[K, V]) Len() int {
	return c.store.len()
}

// IsEmpty reports whether the cache has no entries.
func (c Cache[K, V]) IsEmpty() bool {
	return c.Len() == 0
}

// Keys returns a snapshot of all keys.
func (c Cache[K, V]) Keys() []K {
	keys := make([]K, 0, c.Len())
	c.store.forEach(func(k K, _ V) {
		keys = append(keys, k)
	})
	return keys
}

// Values returns a snapshot of all values.
func (c Cache[K, V]) Values() []V {
	values := make([]V, 0, c.Len())
	c.store.forEach(func(_ K, v V) {
		values = append(values, v)
	})
	return values
}

// ForEach calls f for every entry. f must not mutate the cache.
func (c Cache[K, V]) ForEach(f func(K, V)) {
	c.store.forEach(f)
}

const shardCount = 16

// shardedMap spreads keys over fixed shards so concurrent writers on
// different keys rarely contend on the same lock.
type shardedMap[K comparable, V any] struct {
	shards [shardCount]struct {
		mu sync.RWMutex
		m  map[K]V
	}
}

func newShardedMap[K comparable, V any]() *shardedMap[K, V] {
	s := &shardedMap[K, V]{}
	for i := range s.shards {
		s.shards[i].m = make(map[K]V)
	}
	return s
}

func (s *shardedMap[K, V]) shardFor(key K) *struct {
	mu sync.RWMutex
	m  map[K]V
} {
	return &s.shards[fnvIndex(key)%shardCount]
}

func (s *shardedMap[K, V]) set(key K, value V) {
	shard := s.shardFor(key)
	shard.mu.Lock()
	shard.m[key] = value
	shard.mu.Unlock()
}

func (s *shardedMap[K, V]) get(key K) (V, bool) {
	shard := s.shardFor(key)
	shard.mu.RLock()
	v, ok := shard.m[key]
	shard.mu.RUnlock()
	return v, ok
}

func (s *shardedMap[K, V]) remove(key K) (V, bool) {
	shard := s.shardFor(key)
	shard.mu.Lock()
	v, ok := shard.m[key]
	if ok {
		delete(shard.m, key)
	}
	shard.mu.Unlock()
	return v, ok
}

func (s *shardedMap[K, V]) clear() {
	for i := range s.shards {
		s.shards[i].mu.Lock()
		s.shards[i].m = make(map[K]V)
		s.shards[i].mu.Unlock()
	}
}

func (s *shardedMap[K, V]) len() int {
	total := 0
	for i := range s.shards {
		s.shards[i].mu.RLock()
		total += len(s.shards[i].m)
		s.shards[i].mu.RUnlock()
	}
	return total
}

// fnvIndex hashes a comparable key through its string form. Shard selection
// only needs a stable spread, not speed on the hash itself.
func fnvIndex[K comparable](key K) uint32 {
	h := fnv.New32a()
	fmt.Fprintf(h, "%v", key)
	return h.Sum32()
}

func (s *shardedMap[K, V]) forEach(f func(K, V)) {
	for i := range s.shards {
		s.shards[i].mu.RLock()
		for k, v := range s.shards[i].m {
			f(k, v)
		}
		s.shards[i].mu.RUnlock()
	}
}
