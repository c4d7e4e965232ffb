package cache

import (
	"errors"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Ristretto is a Backend built on ristretto's admission-controlled cache.
// Each entry costs its measured Size, so the byte budget still holds, but
// the contract is weaker than Store's: the admission policy may drop a Set,
// and the victim of an eviction is chosen by sampled LFU.
type Ristretto struct {
	rc  *ristretto.Cache[string, any]
	ttl time.Duration
}

// ErrNonPositiveTTL is returned by NewRistretto for a ttl of zero or less.
// Ristretto reads a zero TTL as "never expire", so such a backend would
// serve entries past their lifetime.
var ErrNonPositiveTTL = errors.New("cache: ristretto backend needs a positive TTL")

// NewRistretto creates a ristretto-backed cache. numCounters is the number of
// keys tracked for admission frequency; ten times the expected entry count is
// a good start.
func NewRistretto(ttl time.Duration, maxBytes, numCounters int64) (*Ristretto, error) {
	if ttl <= 0 {
		return nil, ErrNonPositiveTTL
	}
	rc, err := ristretto.NewCache(&ristretto.Config[string, any]{
		NumCounters:        numCounters,
		MaxCost:            maxBytes,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &Ristretto{rc: rc, ttl: ttl}, nil
}

// Get reads key. Ristretto drops expired entries on read.
func (r *Ristretto) Get(key Key) (any, bool) {
	return r.rc.Get(key.String())
}

// Set offers value to the admission policy and waits for the write buffer to
// drain so that a following Get observes it when it was admitted.
func (r *Ristretto) Set(key Key, value any) {
	r.rc.SetWithTTL(key.String(), value, Size(value), r.ttl)
	r.rc.Wait()
}

// Delete removes key.
func (r *Ristretto) Delete(key Key) {
	r.rc.Del(key.String())
}

// Close stops ristretto's background goroutines.
func (r *Ristretto) Close() error {
	r.rc.Close()
	return nil
}

var _ Backend = (*Ristretto)(nil)
