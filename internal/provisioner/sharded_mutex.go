package provisioner

import (
	"hash/fnv"
	"sync"
)

// shardedMutex is a fixed pool of mutexes keyed by schema name.
type shardedMutex struct {
	shards [64]sync.Mutex
}

func (s *shardedMutex) Lock(key string) func() {
	mu := s.shard(key)
	mu.Lock()
	return mu.Unlock
}

func (s *shardedMutex) shard(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.shards[h.Sum32()%uint32(len(s.shards))]
}
