package fetch

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Keksclan/amari-go/cache"
	"github.com/Keksclan/amari-go/tracing"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type member struct {
	ID   uint64
	Name string
}

func newCoordinator(t *testing.T, opts ...Option) (*Coordinator, *cache.Store) {
	t.Helper()
	s := cache.New(time.Minute, 1<<20)
	return New(s, opts...), s
}

func TestOne_MissThenHit(t *testing.T) {
	c, _ := newCoordinator(t)
	key := cache.NewKey(cache.KindUser, 1, 42)

	var calls atomic.Int32
	fn := func(_ context.Context) (member, error) {
		calls.Add(1)
		return member{ID: 42, Name: "rawr"}, nil
	}

	for range 3 {
		got, err := One(t.Context(), c, key, true, fn)
		if err != nil {
			t.Fatalf("One: %v", err)
		}
		if got.Name != "rawr" {
			t.Fatalf("got %q, want %q", got.Name, "rawr")
		}
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("fn called %d times, want 1", n)
	}
}

func TestOne_ErrorIsNotCached(t *testing.T) {
	c, s := newCoordinator(t)
	key := cache.NewKey(cache.KindUser, 1, 42)
	boom := errors.New("boom")

	_, err := One(t.Context(), c, key, true, func(_ context.Context) (member, error) {
		return member{}, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("store len = %d, want 0", s.Len())
	}

	// The next call must reach the provider again.
	var calls atomic.Int32
	_, err = One(t.Context(), c, key, true, func(_ context.Context) (member, error) {
		calls.Add(1)
		return member{ID: 42}, nil
	})
	if err != nil || calls.Load() != 1 {
		t.Fatalf("err=%v calls=%d", err, calls.Load())
	}
}

func TestOne_WithoutCacheNeverTouchesStore(t *testing.T) {
	c, s := newCoordinator(t)
	key := cache.NewKey(cache.KindUser, 1, 42)
	s.Set(key, member{ID: 42, Name: "stale"})

	var calls atomic.Int32
	got, err := One(t.Context(), c, key, false, func(_ context.Context) (member, error) {
		calls.Add(1)
		return member{ID: 42, Name: "fresh"}, nil
	})
	if err != nil {
		t.Fatalf("One: %v", err)
	}
	if got.Name != "fresh" || calls.Load() != 1 {
		t.Fatalf("got %q after %d calls", got.Name, calls.Load())
	}

	v, _ := s.Get(key)
	if v.(member).Name != "stale" {
		t.Fatal("uncached fetch must not write the store")
	}
}

func TestOne_TypeMismatchFailsLoudly(t *testing.T) {
	c, s := newCoordinator(t)
	key := cache.NewKey(cache.KindUser, 1, 42)
	s.Set(key, "not a member")

	_, err := One(t.Context(), c, key, true, func(_ context.Context) (member, error) {
		t.Fatal("fn must not be called")
		return member{}, nil
	})
	if !errors.Is(err, cache.ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
}

// missSignal reports every store miss on a channel so tests can wait until
// callers have looked the key up.
type missSignal chan struct{}

func (m missSignal) Hit()           {}
func (m missSignal) Miss()          { m <- struct{}{} }
func (m missSignal) Expire()        {}
func (m missSignal) Evict()         {}
func (m missSignal) AddBytes(int64) {}

func newSignallingCoordinator(t *testing.T) (*Coordinator, *cache.Store, missSignal) {
	t.Helper()
	misses := make(missSignal, 64)
	s := cache.New(time.Minute, 1<<20, cache.WithObserver(misses))
	return New(s, WithCoalescing(true)), s, misses
}

func TestOne_CoalescesConcurrentMisses(t *testing.T) {
	c, _, misses := newSignallingCoordinator(t)
	key := cache.NewKey(cache.KindUser, 1, 42)

	var calls atomic.Int32
	release := make(chan struct{})
	fn := func(_ context.Context) (member, error) {
		calls.Add(1)
		<-release
		return member{ID: 42}, nil
	}

	const callers = 8
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := One(context.Background(), c, key, true, fn)
			if err != nil {
				t.Errorf("One: %v", err)
				return
			}
			if got.ID != 42 {
				t.Errorf("got %+v", got)
			}
		}()
	}
	// Every caller has missed while fn is held, so without coalescing each
	// would call fn.
	for range callers {
		<-misses
	}
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Fatalf("fn called %d times, want 1", n)
	}
}

func TestOne_CoalescedCallSurvivesStarterCancellation(t *testing.T) {
	c, s, misses := newSignallingCoordinator(t)
	key := cache.NewKey(cache.KindUser, 1, 42)

	started := make(chan struct{})
	release := make(chan struct{})
	fnCtxErr := make(chan error, 1)
	var calls atomic.Int32
	fn := func(ctx context.Context) (member, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		fnCtxErr <- ctx.Err()
		return member{ID: 42, Name: "shared"}, nil
	}

	starterCtx, cancel := context.WithCancel(t.Context())
	starterErr := make(chan error, 1)
	go func() {
		_, err := One(starterCtx, c, key, true, fn)
		starterErr <- err
	}()
	// One miss in One and one in the shared call's own store check.
	<-misses
	<-misses
	<-started

	cancel()
	if err := <-starterErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("starter err = %v, want context.Canceled", err)
	}

	// The call is still in flight; a caller with a live context joins it.
	followerDone := make(chan error, 1)
	var got member
	go func() {
		var err error
		got, err = One(context.Background(), c, key, true, fn)
		followerDone <- err
	}()
	<-misses
	close(release)

	if err := <-followerDone; err != nil {
		t.Fatalf("follower err = %v, want nil", err)
	}
	if got.Name != "shared" {
		t.Fatalf("follower got %+v", got)
	}
	if err := <-fnCtxErr; err != nil {
		t.Fatalf("fn saw ctx err %v after the starter was cancelled", err)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("fn called %d times, want 1", n)
	}
	if _, ok := s.Get(key); !ok {
		t.Fatal("shared result was not cached")
	}
}

func TestOne_CoalescedErrorReachesEveryCallerAndIsNotCached(t *testing.T) {
	c, s, misses := newSignallingCoordinator(t)
	key := cache.NewKey(cache.KindUser, 1, 42)
	boom := errors.New("boom")

	release := make(chan struct{})
	var calls atomic.Int32
	fn := func(_ context.Context) (member, error) {
		calls.Add(1)
		<-release
		return member{}, boom
	}

	const callers = 4
	errs := make(chan error, callers)
	for range callers {
		go func() {
			_, err := One(context.Background(), c, key, true, fn)
			errs <- err
		}()
	}
	for range callers {
		<-misses
	}
	close(release)

	for range callers {
		if err := <-errs; !errors.Is(err, boom) {
			t.Fatalf("err = %v, want boom", err)
		}
	}
	if s.Len() != 0 {
		t.Fatalf("store len = %d, want 0", s.Len())
	}
	if n := calls.Load(); n < 1 {
		t.Fatal("fn was never called")
	}
}

func TestOne_CoalescedResultOfOtherTypeIsMismatch(t *testing.T) {
	c, _, misses := newSignallingCoordinator(t)
	key := cache.NewKey(cache.KindUser, 1, 42)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := One(t.Context(), c, key, true, func(context.Context) (member, error) {
			close(started)
			<-release
			return member{ID: 42}, nil
		})
		done <- err
	}()
	<-misses
	<-misses
	<-started

	mismatch := make(chan error, 1)
	go func() {
		_, err := One(t.Context(), c, key, true, func(context.Context) (string, error) {
			return "not a member", nil
		})
		mismatch <- err
	}()
	<-misses
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("first caller: %v", err)
	}
	if err := <-mismatch; !errors.Is(err, cache.ErrTypeMismatch) {
		t.Fatalf("err = %v, want cache.ErrTypeMismatch", err)
	}
}

func memberID(m member) uint64 { return m.ID }

func TestBatch_AllCachedMakesNoRemoteCall(t *testing.T) {
	c, s := newCoordinator(t)
	for _, id := range []uint64{1, 2, 3} {
		s.Set(cache.NewKey(cache.KindUser, 9, id), member{ID: id})
	}

	res, err := Batch(t.Context(), c, cache.KindUser, 9, []uint64{1, 2, 3}, memberID,
		func(_ context.Context, _ []uint64) ([]member, error) {
			t.Fatal("fn must not be called")
			return nil, nil
		})
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if res.Resolved != 3 || res.Requested != 3 {
		t.Fatalf("resolved=%d requested=%d, want 3/3", res.Resolved, res.Requested)
	}
}

func TestBatch_PartialHitFetchesOnlyMissing(t *testing.T) {
	c, s := newCoordinator(t)
	s.Set(cache.NewKey(cache.KindUser, 9, 1), member{ID: 1})
	s.Set(cache.NewKey(cache.KindUser, 9, 2), member{ID: 2})

	var calls [][]uint64
	fn := func(_ context.Context, missing []uint64) ([]member, error) {
		calls = append(calls, slices.Clone(missing))
		out := make([]member, 0, len(missing))
		for _, id := range missing {
			out = append(out, member{ID: id})
		}
		return out, nil
	}

	res, err := Batch(t.Context(), c, cache.KindUser, 9, []uint64{1, 3, 2, 4, 5}, memberID, fn)
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("fn called %d times, want 1", len(calls))
	}
	if !slices.Equal(calls[0], []uint64{3, 4, 5}) {
		t.Fatalf("fn got %v, want [3 4 5]", calls[0])
	}
	if res.Resolved != 5 || res.Requested != 5 {
		t.Fatalf("resolved=%d requested=%d, want 5/5", res.Resolved, res.Requested)
	}

	// Every fetched item is cached on its own key.
	for _, id := range []uint64{3, 4, 5} {
		if _, ok := s.Get(cache.NewKey(cache.KindUser, 9, id)); !ok {
			t.Fatalf("member %d not back-filled", id)
		}
	}
}

func TestBatch_ProviderReturnsFewerItems(t *testing.T) {
	c, _ := newCoordinator(t)

	res, err := Batch(t.Context(), c, cache.KindUser, 9, []uint64{1, 2, 3}, memberID,
		func(_ context.Context, _ []uint64) ([]member, error) {
			return []member{{ID: 1}}, nil
		})
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if res.Resolved != 1 || res.Requested != 3 {
		t.Fatalf("resolved=%d requested=%d, want 1/3", res.Resolved, res.Requested)
	}
}

func TestBatch_DuplicatesAreNotCollapsed(t *testing.T) {
	c, s := newCoordinator(t)
	s.Set(cache.NewKey(cache.KindUser, 9, 1), member{ID: 1})

	var got []uint64
	res, err := Batch(t.Context(), c, cache.KindUser, 9, []uint64{1, 1, 2, 2}, memberID,
		func(_ context.Context, missing []uint64) ([]member, error) {
			got = missing
			return []member{{ID: 2}}, nil
		})
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if !slices.Equal(got, []uint64{2, 2}) {
		t.Fatalf("fn got %v, want [2 2]", got)
	}
	if res.Resolved != 3 || res.Requested != 4 {
		t.Fatalf("resolved=%d requested=%d, want 3/4", res.Resolved, res.Requested)
	}
}

func TestBatch_ErrorPropagatesWithoutWrites(t *testing.T) {
	c, s := newCoordinator(t)
	boom := errors.New("boom")

	_, err := Batch(t.Context(), c, cache.KindUser, 9, []uint64{1, 2}, memberID,
		func(_ context.Context, _ []uint64) ([]member, error) {
			return nil, boom
		})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("store len = %d, want 0", s.Len())
	}
}

func TestBatch_RecordsSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	c, s := newCoordinator(t, WithTracing(&tracing.Config{TracerProvider: tp}))
	s.Set(cache.NewKey(cache.KindUser, 9, 1), member{ID: 1})

	_, err := Batch(t.Context(), c, cache.KindUser, 9, []uint64{1, 2}, memberID,
		func(_ context.Context, missing []uint64) ([]member, error) {
			return []member{{ID: 2}}, nil
		})
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "fetch.Batch" {
		t.Fatalf("span name = %q", spans[0].Name())
	}
	assertIntAttr(t, spans[0].Attributes(), "batch.requested", 2)
	assertIntAttr(t, spans[0].Attributes(), "batch.missing", 1)
}

func assertIntAttr(t *testing.T, attrs []attribute.KeyValue, key string, want int64) {
	t.Helper()
	for _, a := range attrs {
		if string(a.Key) == key {
			if got := a.Value.AsInt64(); got != want {
				t.Fatalf("attribute %q = %d, want %d", key, got, want)
			}
			return
		}
	}
	t.Fatalf("attribute %q not found", key)
}
