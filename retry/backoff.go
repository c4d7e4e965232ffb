package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// backoff returns the delay before retry number attempt+1 (attempt is
// 0-indexed), doubling from BaseDelay and capped at MaxDelay before jitter.
func backoff(cfg Config, attempt int) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt))
	delay = math.Min(delay, float64(cfg.MaxDelay))
	if cfg.Jitter > 0 {
		delay += delay * cfg.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(math.Max(delay, 0))
}
