package core

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

func tagging(tag string, log *[]string) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, call *Call) error {
			*log = append(*log, tag)
			return next(ctx, call)
		}
	}
}

func TestBuilderOrderDeterminesExecution(t *testing.T) {
	var log []string
	var b Builder
	// Register in reverse order; Order values should sort them correctly.
	b.Add(300, tagging("C", &log))
	b.Add(100, tagging("A", &log))
	b.Add(200, tagging("B", &log))

	h := b.Build(func(_ context.Context, _ *Call) error {
		log = append(log, "handler")
		return nil
	})
	if err := h(t.Context(), NewCall("member", http.MethodGet, "/", nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{"A", "B", "C", "handler"}
	if len(log) != len(expected) {
		t.Fatalf("log length mismatch: got %v, want %v", log, expected)
	}
	for i := range expected {
		if log[i] != expected[i] {
			t.Fatalf("log[%d] = %q, want %q\nfull log: %v", i, log[i], expected[i], log)
		}
	}
}

func TestBuilderStableForSameOrder(t *testing.T) {
	var log []string
	var b Builder
	b.Add(100, tagging("first", &log))
	b.Add(100, tagging("second", &log))
	b.Add(100, nil)
	b.Add(100, tagging("third", &log))

	h := b.Build(func(_ context.Context, _ *Call) error { return nil })
	_ = h(t.Context(), NewCall("member", http.MethodGet, "/", nil))

	expected := []string{"first", "second", "third"}
	for i := range expected {
		if i >= len(log) || log[i] != expected[i] {
			t.Fatalf("got %v, want %v", log, expected)
		}
	}
}

func TestChainPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	var log []string
	h := Chain(tagging("outer", &log))(func(_ context.Context, _ *Call) error { return boom })

	if err := h(t.Context(), NewCall("member", http.MethodGet, "/", nil)); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if len(log) != 1 {
		t.Fatalf("log = %v", log)
	}
}
