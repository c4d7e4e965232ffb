package cache

import (
	"errors"
	"fmt"
)

// ErrTypeMismatch is returned by Lookup when the stored value is not of the
// requested type. It means two call sites disagree on what a Kind holds.
var ErrTypeMismatch = errors.New("cache: stored value has unexpected type")

// Lookup reads key from b and asserts the value to T. A miss returns
// (zero, false, nil); a hit of the wrong type returns ErrTypeMismatch.
func Lookup[T any](b Backend, key Key) (T, bool, error) {
	var zero T
	v, ok := b.Get(key)
	if !ok {
		return zero, false, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, false, fmt.Errorf("%w: %s holds %T, want %T", ErrTypeMismatch, key, v, zero)
	}
	return t, true, nil
}
