package syncutil

import "sync"

// shardCount bounds the lock pool. Power of two so a hash maps to a
// shard with a mask.
const shardCount = 256

// ShardedMutex is a fixed pool of mutexes keyed by string. Memory stays
// bounded no matter how many keys appear; keys that hash to the same
// shard contend with each other.
type ShardedMutex struct {
	shards [shardCount]sync.Mutex
}

// Lock acquires the shard for key and returns its unlock function.
func (s *ShardedMutex) Lock(key string) func() {
	mu := &s.shards[fnv1a(key)&(shardCount-1)]
	mu.Lock()
	return mu.Unlock
}

// fnv1a hashes key without allocating.
func fnv1a(key string) uint32 {
	const (
		offset = 2166136261
		prime  = 16777619
	)
	h := uint32(offset)
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= prime
	}
	return h
}
