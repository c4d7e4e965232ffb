package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// entry is immutable once stored; Set replaces it instead of mutating it.
type entry struct {
	key       Key
	value     any
	createdAt time.Time
	size      int64
}

// Store is a TTL- and byte-budget-bounded map from Key to an arbitrary value.
//
// Expiration is lazy: an entry whose age reached the TTL is dropped by the Get
// that finds it, and until then it still counts toward the budget. When a Set
// would push the running total over the budget, the oldest entries by
// insertion time are evicted until the new entry fits or the store is empty.
// A single entry larger than the whole budget is still stored.
//
// Get and Set are each atomic; a Get followed by a Set is not.
type Store struct {
	mu sync.Mutex

	ttl      time.Duration
	maxBytes int64
	total    int64

	items map[Key]*list.Element
	order *list.List // front is the oldest insertion

	clock    clock.Clock
	observer Observer
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the wall clock used to stamp and age entries.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithObserver registers an Observer for hit, miss, expiry and eviction events.
func WithObserver(o Observer) Option {
	return func(s *Store) { s.observer = o }
}

// New creates a Store whose entries live for ttl and whose measured sizes
// never sum past maxBytes once a Set returns. A non-positive ttl makes every
// entry expire immediately.
func New(ttl time.Duration, maxBytes int64, opts ...Option) *Store {
	s := &Store{
		ttl:      ttl,
		maxBytes: maxBytes,
		items:    make(map[Key]*list.Element),
		order:    list.New(),
		clock:    clock.New(),
		observer: noopObserver{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Get returns the value stored under key if it has not expired. An expired
// entry is removed and reported as absent.
func (s *Store) Get(key Key) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	if !ok {
		s.observer.Miss()
		return nil, false
	}

	e := elem.Value.(*entry)
	if s.clock.Since(e.createdAt) >= s.ttl {
		s.remove(elem)
		s.observer.Expire()
		s.observer.Miss()
		return nil, false
	}

	s.observer.Hit()
	return e.value, true
}

// Set stores value under key. A previous entry for key is dropped first, then
// the oldest entries are evicted until the new one fits in the budget.
func (s *Store) Set(key Key, value any) {
	size := Size(value)

	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[key]; ok {
		s.remove(elem)
	}

	for s.total+size > s.maxBytes && s.order.Len() > 0 {
		s.remove(s.order.Front())
		s.observer.Evict()
	}

	e := &entry{key: key, value: value, createdAt: s.clock.Now(), size: size}
	s.items[key] = s.order.PushBack(e)
	s.total += size
	s.observer.AddBytes(size)
}

// Delete removes key if present.
func (s *Store) Delete(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[key]; ok {
		s.remove(elem)
	}
}

// Purge removes every entry.
func (s *Store) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.observer.AddBytes(-s.total)
	s.items = make(map[Key]*list.Element)
	s.order.Init()
	s.total = 0
}

// Len returns the number of stored entries, expired ones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Bytes returns the running total of measured entry sizes.
func (s *Store) Bytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// frontExcept returns the oldest element whose key is not skip. Caller must
// hold s.mu.
func (s *Store) frontExcept(skip Key) *list.Element {
	for elem := s.order.Front(); elem != nil; elem = elem.Next() {
		if elem.Value.(*entry).key != skip {
			return elem
		}
	}
	return nil
}

// oldest reports when the oldest entry other than skip was stored.
func (s *Store) oldest(skip Key) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem := s.frontExcept(skip)
	if elem == nil {
		return time.Time{}, false
	}
	return elem.Value.(*entry).createdAt, true
}

// evictOldest drops the oldest entry other than skip and reports whether
// there was one.
func (s *Store) evictOldest(skip Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem := s.frontExcept(skip)
	if elem == nil {
		return false
	}
	s.remove(elem)
	s.observer.Evict()
	return true
}

// remove unlinks elem and releases its size. Caller must hold s.mu.
func (s *Store) remove(elem *list.Element) {
	e := s.order.Remove(elem).(*entry)
	delete(s.items, e.key)
	s.total -= e.size
	s.observer.AddBytes(-e.size)
}

var _ Backend = (*Store)(nil)
