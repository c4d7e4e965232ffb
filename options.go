package amari

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Keksclan/amari-go/breaker"
	"github.com/Keksclan/amari-go/cache"
	"github.com/Keksclan/amari-go/retry"
	"github.com/Keksclan/amari-go/tracing"
	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Client.
type Option func(*config)

// WithBaseURL points the client at another API root, e.g. a local fake.
func WithBaseURL(u string) Option {
	return func(c *config) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the HTTP client used for every request.
func WithHTTPClient(h *http.Client) Option {
	return func(c *config) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithCache sets the entry lifetime and byte budget of the built-in store.
func WithCache(ttl time.Duration, maxBytes int64) Option {
	return func(c *config) {
		c.ttl = ttl
		c.maxBytes = maxBytes
	}
}

// WithCacheShards splits the built-in store into n shards. The byte budget
// is divided evenly between them.
func WithCacheShards(n int) Option {
	return func(c *config) { c.shards = n }
}

// WithBackend replaces the built-in store, e.g. with a *cache.Ristretto.
// WithCache, WithCacheShards and WithMetrics' cache collectors then no
// longer apply.
func WithBackend(b cache.Backend) Option {
	return func(c *config) { c.backend = b }
}

// WithCoalescing makes concurrent cached lookups of the same single record
// share one request.
func WithCoalescing(on bool) Option {
	return func(c *config) { c.coalesce = on }
}

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics registers the client's Prometheus collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *config) { c.registerer = reg }
}

// WithTracing enables OpenTelemetry spans for fetches and requests.
func WithTracing(cfg *tracing.Config) Option {
	return func(c *config) { c.tracing = cfg }
}

// WithRateLimit caps outgoing requests at rps per second with the given
// burst. Every attempt, retries included, takes a token.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *config) {
		c.rateLimit = true
		c.rps = rps
		c.burst = burst
	}
}

// WithRetry retries transient failures according to cfg.
func WithRetry(cfg retry.Config) Option {
	return func(c *config) { c.retry = &cfg }
}

// WithBreaker guards the API with a circuit breaker. When cfg.IsFailure is
// nil only unavailable and throttled responses and transport errors count
// as failures.
func WithBreaker(cfg breaker.Config) Option {
	return func(c *config) { c.breaker = &cfg }
}

// WithClock replaces the clock used by the store and the breaker.
func WithClock(clk clock.Clock) Option {
	return func(c *config) { c.clock = clk }
}
