package amari

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Keksclan/amari-go/breaker"
	"github.com/Keksclan/amari-go/cache"
	"github.com/Keksclan/amari-go/retry"
	"github.com/Keksclan/amari-go/tracing"
	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
)

// config holds the internal configuration assembled via functional options.
type config struct {
	baseURL    string
	httpClient *http.Client

	ttl      time.Duration
	maxBytes int64
	shards   int
	backend  cache.Backend
	coalesce bool

	logger     *slog.Logger
	registerer prometheus.Registerer
	tracing    *tracing.Config

	rateLimit bool
	rps       float64
	burst     int

	retry   *retry.Config
	breaker *breaker.Config

	clock clock.Clock
}

func defaultConfig() config {
	return config{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		ttl:        DefaultTTL,
		maxBytes:   DefaultMaxBytes,
		shards:     1,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		clock:      clock.New(),
	}
}
