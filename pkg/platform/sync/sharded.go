package sync

import (
	"hash/fnv"
	"sync"
)

const shardCount = 64

// ShardedMutex serialises work per key over a fixed set of mutexes. Two keys
// may share a shard; callers must not hold one key while locking another.
type ShardedMutex struct {
	shards [shardCount]sync.Mutex
}

func NewShardedMutex() *ShardedMutex {
	return &ShardedMutex{}
}

func (m *ShardedMutex) Lock(key string) {
	m.shards[shardFor(key)].Lock()
}

func (m *ShardedMutex) Unlock(key string) {
	m.shards[shardFor(key)].Unlock()
}

// WithLock runs fn while holding the shard for key.
func (m *ShardedMutex) WithLock(key string, fn func() error) error {
	mu := &m.shards[shardFor(key)]
	mu.Lock()
	defer mu.Unlock()
	return fn()
}

func shardFor(key string) uint32 {
	if key == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % shardCount
}
