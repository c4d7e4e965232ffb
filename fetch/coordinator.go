// Package fetch implements the read-through policy in front of a
// cache.Backend: consult the cache, call the remote provider on a miss and
// write fresh values back.
//
// The check-fetch-populate sequence is not held under one lock. Two callers
// missing the same key both call the provider and the last write wins,
// unless coalescing is enabled, in which case concurrent single-item misses
// for one key share a single call.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/Keksclan/amari-go/cache"
	"github.com/Keksclan/amari-go/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// Coordinator owns the shared cache handle used by every fetch.
type Coordinator struct {
	store    cache.Backend
	coalesce bool
	group    singleflight.Group
	tracer   trace.Tracer
	logger   *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithCoalescing makes concurrent single-item misses for the same key share
// one remote call. The shared call outlives the cancellation of the caller
// that started it, so other callers still receive its result.
func WithCoalescing(on bool) Option {
	return func(c *Coordinator) { c.coalesce = on }
}

// WithTracing enables spans for One and Batch.
func WithTracing(cfg *tracing.Config) Option {
	return func(c *Coordinator) { c.tracer = cfg.Tracer() }
}

// WithLogger sets the logger used for cache hit and miss debug records.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// New creates a Coordinator reading through store.
func New(store cache.Backend, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:  store,
		tracer: (*tracing.Config)(nil).Tracer(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Store returns the backend the coordinator reads through.
func (c *Coordinator) Store() cache.Backend {
	return c.store
}

// One returns the value for key. With useCache set, a hit is returned without
// calling fn and a successful miss is written back before returning; a
// failed fn leaves the store untouched. Without useCache fn is always called
// and the store is never touched.
func One[T any](ctx context.Context, c *Coordinator, key cache.Key, useCache bool, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := c.tracer.Start(ctx, "fetch.One", trace.WithAttributes(
		attribute.String("cache.key", key.String()),
		attribute.Bool("cache.enabled", useCache),
	))
	defer span.End()

	var zero T
	if !useCache {
		v, err := fn(ctx)
		return v, recordErr(span, err)
	}

	v, ok, err := cache.Lookup[T](c.store, key)
	if err != nil {
		return zero, recordErr(span, err)
	}
	span.SetAttributes(attribute.Bool("cache.hit", ok))
	if ok {
		c.logger.DebugContext(ctx, "cache hit", "key", key)
		return v, nil
	}
	c.logger.DebugContext(ctx, "cache miss", "key", key)

	if c.coalesce {
		v, shared, err := coalesced(ctx, c, key, fn)
		span.SetAttributes(attribute.Bool("fetch.shared", shared))
		return v, recordErr(span, err)
	}

	v, err = fn(ctx)
	if err != nil {
		return zero, recordErr(span, err)
	}
	c.store.Set(key, v)
	return v, nil
}

// coalesced runs fn for key at most once across concurrent callers. The
// shared call is detached from the cancellation of whichever caller started
// it; each caller stops waiting when its own ctx is done. The flight checks
// the store again first, so a caller that missed just before an earlier
// flight wrote the value does not fetch it a second time.
func coalesced[T any](ctx context.Context, c *Coordinator, key cache.Key, fn func(context.Context) (T, error)) (T, bool, error) {
	var zero T
	ch := c.group.DoChan(key.String(), func() (any, error) {
		if v, ok, err := cache.Lookup[T](c.store, key); err != nil || ok {
			return v, err
		}
		v, err := fn(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.store.Set(key, v)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Shared, res.Err
		}
		v, ok := res.Val.(T)
		if !ok {
			return zero, res.Shared, fmt.Errorf("%w: %s shared %T, want %T", cache.ErrTypeMismatch, key, res.Val, zero)
		}
		return v, res.Shared, nil
	}
}

func recordErr(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
