// Command amari queries the Amari API through the caching client.
//
// Usage:
//
//	amari [flags] user <guild> <member>
//	amari [flags] users <guild> <member>...
//	amari [flags] leaderboard <guild>
//	amari [flags] rewards <guild>
//
// The token and client settings come from AMARI_* environment variables or a
// .env file; see package config.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	amari "github.com/Keksclan/amari-go"
	"github.com/Keksclan/amari-go/config"
	"github.com/Keksclan/amari-go/metrics"
	"github.com/Keksclan/amari-go/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

var (
	envFile   = flag.String("env", "", "Path to a .env file (default ./.env if present)")
	noCache   = flag.Bool("no_cache", false, "Bypass the cache")
	repeat    = flag.Int("repeat", 1, "Run the query this many times, to observe cache hits")
	weekly    = flag.Bool("weekly", false, "leaderboard: use the weekly leaderboard")
	raw       = flag.Bool("raw", false, "leaderboard: use the raw leaderboard")
	page      = flag.Int("page", 0, "leaderboard/rewards: page number")
	limit     = flag.Int("limit", 0, "leaderboard/rewards: page size")
	traceOut  = flag.Bool("trace", false, "Print OpenTelemetry spans to stderr")
	logLevel  = flag.String("log_level", "", "Log level: debug/info/warn/error (overrides AMARI_LOG_LEVEL)")
	logFormat = flag.String("log_format", "", "Log format: json/text (overrides AMARI_LOG_FORMAT)")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "amari: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var files []string
	if *envFile != "" {
		files = append(files, *envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return err
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}

	logger, err := cfg.Log.Logger(os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := append(cfg.ClientOptions(), amari.WithLogger(logger))

	if *traceOut {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("stdout exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
		defer func() { _ = tp.Shutdown(context.Background()) }()
		opts = append(opts, amari.WithTracing(&tracing.Config{
			TracerProvider: tp,
			Propagators:    propagation.TraceContext{},
		}))
	}

	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, amari.WithMetrics(reg))
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux(reg), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
		defer func() { _ = srv.Shutdown(context.Background()) }()
		logger.Info("serving metrics", "addr", cfg.MetricsAddr)
	}

	client, err := amari.New(cfg.Token, opts...)
	if err != nil {
		return err
	}
	defer client.Close()

	query, err := parseQuery(client, flag.Args())
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for i := range max(*repeat, 1) {
		start := time.Now()
		out, err := query(ctx)
		if err != nil {
			return err
		}
		logger.Info("query done", "run", i+1, "duration", time.Since(start))
		if err := enc.Encode(out); err != nil {
			return err
		}
	}
	return nil
}

func metricsMux(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	return mux
}

type queryFunc func(ctx context.Context) (any, error)

func parseQuery(c *amari.Client, args []string) (queryFunc, error) {
	if len(args) < 2 {
		return nil, errors.New("usage: amari [flags] user|users|leaderboard|rewards <guild> [member...]")
	}
	guild, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("guild id %q: %w", args[1], err)
	}
	ids := make([]uint64, 0, len(args)-2)
	for _, a := range args[2:] {
		id, err := strconv.ParseUint(a, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("member id %q: %w", a, err)
		}
		ids = append(ids, id)
	}
	useCache := !*noCache

	switch args[0] {
	case "user":
		if len(ids) != 1 {
			return nil, errors.New("user takes exactly one member id")
		}
		return func(ctx context.Context) (any, error) {
			return c.FetchUser(ctx, guild, ids[0], useCache)
		}, nil
	case "users":
		if len(ids) == 0 {
			return nil, errors.New("users takes at least one member id")
		}
		return func(ctx context.Context) (any, error) {
			return c.FetchUsers(ctx, guild, ids, useCache)
		}, nil
	case "leaderboard":
		q := amari.LeaderboardQuery{Weekly: *weekly, Raw: *raw, Page: *page, Limit: *limit, Cache: useCache}
		return func(ctx context.Context) (any, error) {
			return c.FetchLeaderboard(ctx, guild, q)
		}, nil
	case "rewards":
		q := amari.RewardsQuery{Page: *page, Limit: *limit, Cache: useCache}
		return func(ctx context.Context) (any, error) {
			return c.FetchRewards(ctx, guild, q)
		}, nil
	default:
		return nil, fmt.Errorf("unknown command %q", args[0])
	}
}
