package amari

import (
	"time"

	"github.com/Keksclan/amari-go/breaker"
	"github.com/Keksclan/amari-go/retry"
)

const (
	// DefaultBaseURL is the Amari API root.
	DefaultBaseURL = "https://amaribot.com/api/v1"

	// DefaultTTL is how long cached records stay fresh.
	DefaultTTL = 60 * time.Second

	// DefaultMaxBytes is the default cache byte budget (256 MiB).
	DefaultMaxBytes int64 = 256 * 1024 * 1024

	// DefaultRewardsPage and DefaultRewardsLimit are sent when a
	// RewardsQuery leaves them unset.
	DefaultRewardsPage  = 1
	DefaultRewardsLimit = 50
)

// DefaultOptions returns the recommended set of options for production use:
// retries for throttled and unavailable responses and a circuit breaker.
func DefaultOptions() []Option {
	return []Option{
		WithRetry(retry.DefaultConfig()),
		WithBreaker(breaker.DefaultConfig()),
	}
}
