package fetch

import (
	"context"

	"github.com/Keksclan/amari-go/cache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Result is the aggregate of a batch fetch.
type Result[T any] struct {
	// Items holds the cached items first, in request order, followed by the
	// freshly fetched items in the order the provider returned them.
	Items []T
	// Resolved is len(Items).
	Resolved int
	// Requested is the number of ids asked for, duplicates included.
	Requested int
}

// Batch resolves ids within scope. Each id is looked up under
// cache.NewKey(kind, scope, id); the ids that miss are fetched with exactly
// one call to fn, and every returned item is cached on its own key as
// reported by idOf. When every id hits, fn is not called.
//
// Ids are not deduplicated: a repeated id is looked up, and if missing sent
// to fn, once per occurrence. Resolved is smaller than Requested when the
// provider returns fewer items than asked for.
func Batch[T any](
	ctx context.Context,
	c *Coordinator,
	kind cache.Kind,
	scope uint64,
	ids []uint64,
	idOf func(T) uint64,
	fn func(ctx context.Context, missing []uint64) ([]T, error),
) (Result[T], error) {
	ctx, span := c.tracer.Start(ctx, "fetch.Batch", trace.WithAttributes(
		attribute.String("cache.kind", string(kind)),
		attribute.Int("batch.requested", len(ids)),
	))
	defer span.End()

	items := make([]T, 0, len(ids))
	var missing []uint64
	for _, id := range ids {
		v, ok, err := cache.Lookup[T](c.store, cache.NewKey(kind, scope, id))
		if err != nil {
			return Result[T]{}, recordErr(span, err)
		}
		if ok {
			items = append(items, v)
			continue
		}
		missing = append(missing, id)
	}
	span.SetAttributes(attribute.Int("batch.missing", len(missing)))
	c.logger.DebugContext(ctx, "batch partitioned",
		"kind", kind, "scope", scope, "cached", len(items), "missing", len(missing))

	if len(missing) > 0 {
		fetched, err := fn(ctx, missing)
		if err != nil {
			return Result[T]{}, recordErr(span, err)
		}
		for _, v := range fetched {
			c.store.Set(cache.NewKey(kind, scope, idOf(v)), v)
			items = append(items, v)
		}
	}

	return Result[T]{
		Items:     items,
		Resolved:  len(items),
		Requested: len(ids),
	}, nil
}
