package amari

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Keksclan/amari-go/breaker"
	"github.com/Keksclan/amari-go/contextx"
	"github.com/Keksclan/amari-go/internal/core"
	"github.com/Keksclan/amari-go/metrics"
	"github.com/Keksclan/amari-go/ratelimit"
	"github.com/Keksclan/amari-go/retry"
	"github.com/Keksclan/amari-go/tracing"
	"go.opentelemetry.io/otel/trace"
)

// Positions in the remote-call chain. Lower runs further outside, so one
// span and one breaker decision cover all retries of a call, and every
// attempt waits for its own rate-limit token.
const (
	orderRequestID = 0
	orderTracing   = 10
	orderLogging   = 20
	orderBreaker   = 30
	orderRetry     = 40
	orderRateLimit = 50
)

func requestIDMiddleware() core.Middleware {
	return func(next core.Handler) core.Handler {
		return func(ctx context.Context, call *core.Call) error {
			return next(contextx.EnsureRequestID(ctx), call)
		}
	}
}

func tracingMiddleware(tracer trace.Tracer) core.Middleware {
	return func(next core.Handler) core.Handler {
		return func(ctx context.Context, call *core.Call) error {
			ctx, span := tracing.StartClient(ctx, tracer, call.Endpoint, call.Method, call.Path)
			err := next(ctx, call)
			tracing.End(span, err)
			return err
		}
	}
}

func loggingMiddleware(logger *slog.Logger) core.Middleware {
	return func(next core.Handler) core.Handler {
		return func(ctx context.Context, call *core.Call) error {
			start := time.Now()
			err := next(ctx, call)
			attrs := []any{
				"endpoint", call.Endpoint,
				"method", call.Method,
				"path", call.Path,
				"request_id", contextx.RequestIDFromContext(ctx),
				"duration", time.Since(start),
			}
			if err != nil {
				logger.WarnContext(ctx, "remote call failed", append(attrs, "error", err)...)
			} else {
				logger.DebugContext(ctx, "remote call", attrs...)
			}
			return err
		}
	}
}

func breakerMiddleware(b *breaker.Breaker) core.Middleware {
	return func(next core.Handler) core.Handler {
		return func(ctx context.Context, call *core.Call) error {
			err := b.Do(ctx, func(ctx context.Context) error { return next(ctx, call) })
			if errors.Is(err, breaker.ErrOpen) {
				return fmt.Errorf("amari: %s: %w", call.Endpoint, err)
			}
			return err
		}
	}
}

func retryMiddleware(cfg retry.Config, logger *slog.Logger, m *metrics.Metrics) core.Middleware {
	return func(next core.Handler) core.Handler {
		return func(ctx context.Context, call *core.Call) error {
			attemptCfg := cfg
			attemptCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
				m.ObserveRetry(call.Endpoint)
				logger.WarnContext(ctx, "retrying remote call",
					"endpoint", call.Endpoint, "attempt", attempt, "delay", delay, "error", err)
				if cfg.OnRetry != nil {
					cfg.OnRetry(attempt, err, delay)
				}
			}
			_, err := retry.Do(ctx, attemptCfg, func(ctx context.Context) (struct{}, error) {
				return struct{}{}, next(ctx, call)
			})
			return err
		}
	}
}

func rateLimitMiddleware(l *ratelimit.Limiter) core.Middleware {
	return func(next core.Handler) core.Handler {
		return func(ctx context.Context, call *core.Call) error {
			if err := l.Wait(ctx); err != nil {
				return fmt.Errorf("amari: %s: rate limit: %w", call.Endpoint, err)
			}
			return next(ctx, call)
		}
	}
}
