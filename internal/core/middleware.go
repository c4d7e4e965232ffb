package core

import (
	"cmp"
	"slices"
)

// entry is a middleware with a deterministic position. Lower Order values run
// first, i.e. sit further outside.
type entry struct {
	mw    Middleware
	order int
}

// Builder collects middlewares in any order and chains them by Order.
type Builder struct {
	entries []entry
}

// Add registers mw at the given order. A nil mw is ignored.
func (b *Builder) Add(order int, mw Middleware) {
	if mw == nil {
		return
	}
	b.entries = append(b.entries, entry{mw: mw, order: order})
}

// Build sorts the collected middlewares by order (stable) and wraps final
// with them.
func (b *Builder) Build(final Handler) Handler {
	slices.SortStableFunc(b.entries, func(a, c entry) int {
		return cmp.Compare(a.order, c.order)
	})

	mws := make([]Middleware, 0, len(b.entries))
	for _, e := range b.entries {
		mws = append(mws, e.mw)
	}
	return Chain(mws...)(final)
}
