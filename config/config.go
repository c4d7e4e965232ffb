// Package config loads the settings of the amari command from the
// environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	amari "github.com/Keksclan/amari-go"
	"github.com/Keksclan/amari-go/breaker"
	"github.com/Keksclan/amari-go/retry"
	"github.com/joho/godotenv"
)

// ErrMissingToken is returned by Load when AMARI_TOKEN is not set.
var ErrMissingToken = errors.New("config: AMARI_TOKEN is not set")

type Config struct {
	Token   string
	BaseURL string

	Cache     CacheConfig
	RateLimit RateLimitConfig
	Retry     RetryConfig
	Breaker   BreakerConfig
	Log       LogConfig

	// MetricsAddr, when set, is the address the command serves /metrics on.
	MetricsAddr string
}

type CacheConfig struct {
	TTL      time.Duration
	MaxBytes int64
	Shards   int
	Coalesce bool
}

type RateLimitConfig struct {
	RPS   float64 // zero disables limiting
	Burst int
}

type RetryConfig struct {
	MaxAttempts int // one disables retries
	BaseDelay   time.Duration
}

type BreakerConfig struct {
	FailureThreshold int // zero disables the breaker
	OpenTimeout      time.Duration
}

type LogConfig struct {
	Level  string
	Format string // json or text
}

// Load reads the given .env files, or ./.env when none are given, and then
// the process environment. A missing .env file is not an error; variables
// already set in the environment win over the file.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && len(files) > 0 {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg := &Config{
		Token:   os.Getenv("AMARI_TOKEN"),
		BaseURL: getEnv("AMARI_BASE_URL", amari.DefaultBaseURL),
		Cache: CacheConfig{
			TTL:      getDurationEnv("AMARI_CACHE_TTL", amari.DefaultTTL),
			MaxBytes: getInt64Env("AMARI_CACHE_MAX_BYTES", amari.DefaultMaxBytes),
			Shards:   getIntEnv("AMARI_CACHE_SHARDS", 1),
			Coalesce: getBoolEnv("AMARI_CACHE_COALESCE", false),
		},
		RateLimit: RateLimitConfig{
			RPS:   getFloatEnv("AMARI_RATE_LIMIT_RPS", 0),
			Burst: getIntEnv("AMARI_RATE_LIMIT_BURST", 1),
		},
		Retry: RetryConfig{
			MaxAttempts: getIntEnv("AMARI_RETRY_MAX_ATTEMPTS", 3),
			BaseDelay:   getDurationEnv("AMARI_RETRY_BASE_DELAY", 200*time.Millisecond),
		},
		Breaker: BreakerConfig{
			FailureThreshold: getIntEnv("AMARI_BREAKER_THRESHOLD", 5),
			OpenTimeout:      getDurationEnv("AMARI_BREAKER_OPEN_TIMEOUT", 30*time.Second),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("AMARI_LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("AMARI_LOG_FORMAT", "text")),
		},
		MetricsAddr: os.Getenv("AMARI_METRICS_ADDR"),
	}

	if cfg.Token == "" {
		return nil, ErrMissingToken
	}
	return cfg, nil
}

// Logger builds a slog logger writing to w at the configured level and
// format.
func (l LogConfig) Logger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	switch l.Level {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("config: unsupported log level %q", l.Level)
	}

	opts := &slog.HandlerOptions{Level: level}
	switch l.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("config: unsupported log format %q", l.Format)
	}
}

// ClientOptions translates cfg into options for amari.New.
func (cfg *Config) ClientOptions() []amari.Option {
	opts := []amari.Option{
		amari.WithBaseURL(cfg.BaseURL),
		amari.WithCache(cfg.Cache.TTL, cfg.Cache.MaxBytes),
		amari.WithCacheShards(cfg.Cache.Shards),
		amari.WithCoalescing(cfg.Cache.Coalesce),
	}
	if cfg.RateLimit.RPS > 0 {
		opts = append(opts, amari.WithRateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	}
	if cfg.Retry.MaxAttempts > 1 {
		rc := retry.DefaultConfig()
		rc.MaxAttempts = cfg.Retry.MaxAttempts
		rc.BaseDelay = cfg.Retry.BaseDelay
		opts = append(opts, amari.WithRetry(rc))
	}
	if cfg.Breaker.FailureThreshold > 0 {
		bc := breaker.DefaultConfig()
		bc.FailureThreshold = cfg.Breaker.FailureThreshold
		bc.OpenTimeout = cfg.Breaker.OpenTimeout
		opts = append(opts, amari.WithBreaker(bc))
	}
	return opts
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
