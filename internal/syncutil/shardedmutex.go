// Package syncutil holds small concurrency helpers.
package syncutil

import (
	"hash/fnv"
	"sync"
)

const numShards = 256

// ShardedMutex serializes work per string key using a fixed pool of
// mutexes. Memory stays bounded no matter how many distinct keys show
// up; two keys hashing to the same shard occasionally contend.
type ShardedMutex struct {
	shards [numShards]sync.Mutex
}

// Lock acquires the mutex for key and returns its unlock function.
func (s *ShardedMutex) Lock(key string) func() {
	mu := s.shard(key)
	mu.Lock()
	return mu.Unlock
}

func (s *ShardedMutex) shard(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.shards[h.Sum32()%numShards]
}
