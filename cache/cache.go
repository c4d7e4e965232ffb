// Package cache provides the in-process store that sits in front of the Amari
// API. Values of unrelated shapes share one key space, entries expire by age
// and the store is bounded by a byte budget.
package cache

// Backend is the storage contract the fetch coordinator reads through.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Get returns the value stored under key. The boolean reports a hit;
	// expired entries are reported as absent.
	Get(key Key) (any, bool)

	// Set stores value under key, replacing any previous entry wholesale.
	Set(key Key, value any)
}

// Observer receives store events. It is used to feed metrics and is called
// with the store lock held, so implementations must not call back into the
// store.
type Observer interface {
	Hit()
	Miss()
	Expire()
	Evict()
	// AddBytes reports a change of the running byte total.
	AddBytes(delta int64)
}

type noopObserver struct{}

func (noopObserver) Hit()           {}
func (noopObserver) Miss()          {}
func (noopObserver) Expire()        {}
func (noopObserver) Evict()         {}
func (noopObserver) AddBytes(int64) {}
