package service

import (
	"hash/fnv"
	"sync"
)

// accountLocks is a fixed pool of mutexes keyed by account. Memory stays
// bounded however many accounts are seen; unrelated accounts occasionally
// share a shard.
type accountLocks struct {
	shards [256]sync.Mutex
}

// Lock acquires the mutex for account and returns the unlock function.
func (l *accountLocks) Lock(account string) func() {
	mu := l.shard(account)
	mu.Lock()
	return mu.Unlock
}

func (l *accountLocks) shard(account string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(account))
	return &l.shards[h.Sum32()%uint32(len(l.shards))]
}
