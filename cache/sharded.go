package cache

import (
	"sync/atomic"
	"time"
)

// Sharded spreads keys over several Stores to reduce lock contention on Get
// and Set. The byte budget is shared: the shards keep one running total, and
// a Set that pushes it past maxBytes evicts the oldest entries across all
// shards until the total fits again or only the new entry is left. Each
// shard on its own is bounded by the full budget.
type Sharded struct {
	shards   []*Store
	maxBytes int64
	total    atomic.Int64
}

// NewSharded creates shardCount stores sharing ttl and maxBytes. A
// non-positive shardCount is treated as one shard.
func NewSharded(shardCount int, ttl time.Duration, maxBytes int64, opts ...Option) *Sharded {
	shardCount = max(shardCount, 1)

	s := &Sharded{shards: make([]*Store, shardCount), maxBytes: maxBytes}
	for i := range shardCount {
		st := New(ttl, maxBytes, opts...)
		st.observer = &totalObserver{Observer: st.observer, total: &s.total}
		s.shards[i] = st
	}
	return s
}

// totalObserver keeps the shared byte total of a Sharded in step with every
// shard and forwards events to the configured observer.
type totalObserver struct {
	Observer
	total *atomic.Int64
}

func (o *totalObserver) AddBytes(delta int64) {
	o.total.Add(delta)
	o.Observer.AddBytes(delta)
}

func (s *Sharded) shard(key Key) *Store {
	return s.shards[key.hash()%uint64(len(s.shards))]
}

// Get reads key from its shard.
func (s *Sharded) Get(key Key) (any, bool) {
	return s.shard(key).Get(key)
}

// Set writes key into its shard, then evicts the oldest other entries of any
// shard while the shared total exceeds the budget.
func (s *Sharded) Set(key Key, value any) {
	s.shard(key).Set(key, value)

	for s.total.Load() > s.maxBytes {
		victim := s.oldestShard(key)
		if victim == nil {
			return
		}
		victim.evictOldest(key)
	}
}

// oldestShard returns the shard holding the oldest entry other than skip, or
// nil when skip is the only entry left.
func (s *Sharded) oldestShard(skip Key) *Store {
	var (
		victim *Store
		at     time.Time
	)
	for _, sh := range s.shards {
		t, ok := sh.oldest(skip)
		if ok && (victim == nil || t.Before(at)) {
			victim, at = sh, t
		}
	}
	return victim
}

// Delete removes key from its shard.
func (s *Sharded) Delete(key Key) {
	s.shard(key).Delete(key)
}

// Purge empties every shard.
func (s *Sharded) Purge() {
	for _, sh := range s.shards {
		sh.Purge()
	}
}

// Len sums the entry counts of all shards.
func (s *Sharded) Len() int {
	n := 0
	for _, sh := range s.shards {
		n += sh.Len()
	}
	return n
}

// Bytes returns the shared running byte total.
func (s *Sharded) Bytes() int64 {
	return s.total.Load()
}

var _ Backend = (*Sharded)(nil)
