package cache

import (
	"errors"
	"testing"
	"time"
)

func mustNewRistretto(t *testing.T, ttl time.Duration) *Ristretto {
	t.Helper()
	r, err := NewRistretto(ttl, mib, 10_000)
	if err != nil {
		t.Fatalf("NewRistretto: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRistretto_GetSet(t *testing.T) {
	r := mustNewRistretto(t, time.Minute)
	key := NewKey(KindUser, 1, 42)

	if _, ok := r.Get(key); ok {
		t.Fatal("expected miss")
	}

	r.Set(key, []byte("v1"))
	v, ok := r.Get(key)
	if !ok {
		t.Fatal("expected hit")
	}
	if string(v.([]byte)) != "v1" {
		t.Fatalf("got %q, want %q", v, "v1")
	}

	r.Delete(key)
	r.rc.Wait()
	if _, ok := r.Get(key); ok {
		t.Fatal("expected miss after delete")
	}
}

func TestRistretto_TTLExpires(t *testing.T) {
	r := mustNewRistretto(t, 50*time.Millisecond)
	key := NewKey(KindUser, 1, 1)

	r.Set(key, []byte("temp"))
	if _, ok := r.Get(key); !ok {
		t.Fatal("expected hit before TTL")
	}

	// Ristretto cleanup may need a bit of extra time.
	time.Sleep(200 * time.Millisecond)

	if _, ok := r.Get(key); ok {
		t.Fatal("expected miss after TTL")
	}
}

func TestRistretto_RejectsNonPositiveTTL(t *testing.T) {
	for _, ttl := range []time.Duration{0, -time.Second} {
		r, err := NewRistretto(ttl, mib, 10_000)
		if !errors.Is(err, ErrNonPositiveTTL) {
			t.Fatalf("ttl %v: err = %v, want ErrNonPositiveTTL", ttl, err)
		}
		if r != nil {
			t.Fatalf("ttl %v: expected no backend", ttl)
		}
	}
}
