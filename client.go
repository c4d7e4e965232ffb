// Package amari is a client for the Amari bot REST API with a read-through
// cache in front of it.
//
// Single-record and batch member lookups, leaderboard pages and reward pages
// can be served from an in-memory store bounded by a TTL and a byte budget.
// Batch member lookups are reconciled per member: cached members are returned
// as they are and only the missing ones are requested.
package amari

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Keksclan/amari-go/breaker"
	"github.com/Keksclan/amari-go/cache"
	"github.com/Keksclan/amari-go/fetch"
	"github.com/Keksclan/amari-go/internal/core"
	"github.com/Keksclan/amari-go/metrics"
	"github.com/Keksclan/amari-go/ratelimit"
)

// Client talks to the Amari API. It is safe for concurrent use.
type Client struct {
	token   string
	cfg     config
	coord   *fetch.Coordinator
	metrics *metrics.Metrics
	breaker *breaker.Breaker
	handler core.Handler
}

// New creates a Client authenticating with token.
func New(token string, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, ErrEmptyToken
	}

	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	c := &Client{token: token, cfg: cfg}
	if cfg.registerer != nil {
		c.metrics = metrics.New(cfg.registerer)
	}

	store := cfg.backend
	if store == nil {
		storeOpts := []cache.Option{cache.WithClock(cfg.clock)}
		if c.metrics != nil {
			storeOpts = append(storeOpts, cache.WithObserver(c.metrics))
		}
		if cfg.shards > 1 {
			store = cache.NewSharded(cfg.shards, cfg.ttl, cfg.maxBytes, storeOpts...)
		} else {
			store = cache.New(cfg.ttl, cfg.maxBytes, storeOpts...)
		}
	}

	c.coord = fetch.New(store,
		fetch.WithCoalescing(cfg.coalesce),
		fetch.WithTracing(cfg.tracing),
		fetch.WithLogger(cfg.logger),
	)

	var b core.Builder
	b.Add(orderRequestID, requestIDMiddleware())
	b.Add(orderTracing, tracingMiddleware(cfg.tracing.Tracer()))
	b.Add(orderLogging, loggingMiddleware(cfg.logger))
	if cfg.breaker != nil {
		c.breaker = c.newBreaker(*cfg.breaker)
		b.Add(orderBreaker, breakerMiddleware(c.breaker))
	}
	if cfg.retry != nil {
		b.Add(orderRetry, retryMiddleware(*cfg.retry, cfg.logger, c.metrics))
	}
	if cfg.rateLimit {
		b.Add(orderRateLimit, rateLimitMiddleware(ratelimit.NewLimiter(cfg.rps, cfg.burst)))
	}
	c.handler = b.Build(c.send)

	return c, nil
}

func (c *Client) newBreaker(bc breaker.Config) *breaker.Breaker {
	if bc.IsFailure == nil {
		bc.IsFailure = isProviderFailure
	}
	userHook := bc.OnStateChange
	bc.OnStateChange = func(from, to breaker.State) {
		c.metrics.SetBreakerState(int(to))
		c.cfg.logger.Warn("circuit breaker state changed", "from", from, "to", to)
		if userHook != nil {
			userHook(from, to)
		}
	}
	return breaker.NewWithClock(bc, c.cfg.clock)
}

// Store returns the cache the client reads through.
func (c *Client) Store() cache.Backend {
	return c.coord.Store()
}

// BreakerState reports the circuit breaker state, Closed when no breaker is
// configured.
func (c *Client) BreakerState() breaker.State {
	if c.breaker == nil {
		return breaker.Closed
	}
	return c.breaker.State()
}

// Close releases the cache backend if it holds resources and drops idle
// connections.
func (c *Client) Close() error {
	c.cfg.httpClient.CloseIdleConnections()
	if cl, ok := c.coord.Store().(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

// FetchUser returns one guild member. With useCache the member is served
// from and written to the cache.
func (c *Client) FetchUser(ctx context.Context, guildID, userID uint64, useCache bool) (User, error) {
	key := cache.NewKey(cache.KindUser, guildID, userID)
	return fetch.One(ctx, c.coord, key, useCache, func(ctx context.Context) (User, error) {
		var u User
		path := fmt.Sprintf("/guild/%d/member/%d", guildID, userID)
		err := c.handler(ctx, core.NewCall("member", http.MethodGet, path, &u))
		return u, err
	})
}

// FetchUsers returns several guild members at once.
//
// With useCache, members found in the cache are returned without a request
// and the rest are fetched with a single request and cached one by one. The
// result then lists the cached members first, followed by the fetched ones;
// TotalMembers is the number returned and QueriedMembers the number asked
// for, duplicates included. Without useCache the API response is returned
// as is.
func (c *Client) FetchUsers(ctx context.Context, guildID uint64, userIDs []uint64, useCache bool) (Users, error) {
	if !useCache {
		return c.postMembers(ctx, guildID, userIDs)
	}

	res, err := fetch.Batch(ctx, c.coord, cache.KindUser, guildID, userIDs,
		func(u User) uint64 { return u.ID },
		func(ctx context.Context, missing []uint64) ([]User, error) {
			resp, err := c.postMembers(ctx, guildID, missing)
			return resp.Members, err
		})
	if err != nil {
		return Users{}, err
	}
	return Users{
		GuildID:        guildID,
		Members:        res.Items,
		TotalMembers:   res.Resolved,
		QueriedMembers: res.Requested,
	}, nil
}

type membersRequest struct {
	Members []string `json:"members"`
}

func (c *Client) postMembers(ctx context.Context, guildID uint64, ids []uint64) (Users, error) {
	body := membersRequest{Members: make([]string, len(ids))}
	for i, id := range ids {
		body.Members[i] = strconv.FormatUint(id, 10)
	}

	var out Users
	call := core.NewCall("members", http.MethodPost, fmt.Sprintf("/guild/%d/members", guildID), &out)
	call.Body = body
	if err := c.handler(ctx, call); err != nil {
		return Users{}, err
	}
	return out, nil
}

// LeaderboardQuery selects a leaderboard page.
type LeaderboardQuery struct {
	// Weekly selects the weekly leaderboard.
	Weekly bool
	// Raw selects the unpaginated raw leaderboard. It cannot be combined
	// with Page.
	Raw bool
	// Page and Limit are sent only when positive.
	Page  int
	Limit int
	// Cache serves the page from and writes it to the cache.
	Cache bool
}

func (q LeaderboardQuery) route(guildID uint64) (cache.Kind, string, string) {
	switch {
	case q.Raw:
		return cache.KindRawLeaderboard, "raw_leaderboard", fmt.Sprintf("/guild/raw/leaderboard/%d", guildID)
	case q.Weekly:
		return cache.KindWeeklyLeaderboard, "weekly", fmt.Sprintf("/guild/weekly/%d", guildID)
	default:
		return cache.KindLeaderboard, "leaderboard", fmt.Sprintf("/guild/leaderboard/%d", guildID)
	}
}

// FetchLeaderboard returns one page of a guild leaderboard. Cached pages are
// keyed by kind, guild, page and limit exactly as given, so a page asked for
// without a limit and the same page with the API's default limit are cached
// separately.
func (c *Client) FetchLeaderboard(ctx context.Context, guildID uint64, q LeaderboardQuery) (Leaderboard, error) {
	if q.Raw && q.Page > 0 {
		return Leaderboard{}, ErrRawPagination
	}

	kind, endpoint, path := q.route(guildID)
	query := url.Values{}
	key := cache.NewKey(kind, guildID, 0)
	if q.Page > 0 {
		query.Set("page", strconv.Itoa(q.Page))
		key.ID = uint64(q.Page)
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
		key.Limit = cache.Some(uint64(q.Limit))
	}

	return fetch.One(ctx, c.coord, key, q.Cache, func(ctx context.Context) (Leaderboard, error) {
		var lb Leaderboard
		call := core.NewCall(endpoint, http.MethodGet, path, &lb)
		call.Query = query
		err := c.handler(ctx, call)
		return lb, err
	})
}

// RewardsQuery selects a page of reward roles.
type RewardsQuery struct {
	// Page defaults to DefaultRewardsPage and Limit to DefaultRewardsLimit
	// when not positive.
	Page  int
	Limit int
	// Cache serves the page from and writes it to the cache.
	Cache bool
}

// FetchRewards returns one page of a guild's reward roles.
func (c *Client) FetchRewards(ctx context.Context, guildID uint64, q RewardsQuery) (Rewards, error) {
	page, limit := q.Page, q.Limit
	if page <= 0 {
		page = DefaultRewardsPage
	}
	if limit <= 0 {
		limit = DefaultRewardsLimit
	}

	key := cache.NewKey(cache.KindRewards, guildID, uint64(page))
	key.Limit = cache.Some(uint64(limit))

	return fetch.One(ctx, c.coord, key, q.Cache, func(ctx context.Context) (Rewards, error) {
		var r Rewards
		call := core.NewCall("rewards", http.MethodGet, fmt.Sprintf("/guild/rewards/%d", guildID), &r)
		call.Query = url.Values{
			"page":  {strconv.Itoa(page)},
			"limit": {strconv.Itoa(limit)},
		}
		err := c.handler(ctx, call)
		return r, err
	})
}
