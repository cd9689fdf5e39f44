// Package cache provides a Redis-backed read-through cache in front of the
// charge-site fetch client. Identical queries issued by different sessions
// within the TTL are answered without calling the backend.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"chargemap/internal/external"
	"chargemap/internal/types"
)

// DefaultTTL is how long a fetched site list is served from cache.
const DefaultTTL = 30 * time.Second

// opTimeout bounds each Redis round trip so a stalled cache leaves the
// upstream most of the fetch budget.
const opTimeout = 250 * time.Millisecond

const keyPrefix = "chargemap:sites:"

// KV is the subset of the Redis client the cache uses. *redis.Client
// satisfies it.
type KV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// Fetcher is the upstream the cache reads through.
type Fetcher interface {
	FetchChargeSites(ctx context.Context, region types.Region, filters types.Filters) ([]types.ChargeSite, error)
}

// Observer is told about every lookup.
type Observer interface {
	ObserveCache(hit bool)
}

type noopObserver struct{}

func (noopObserver) ObserveCache(bool) {}

// SiteCache decorates a Fetcher with a Redis cache. Cache failures are logged
// and fall through to the upstream; they never fail a fetch. Upstream errors
// are not cached.
//
// fetchTimeout covers the whole lookup, cache round trips included. A fetch
// that misses it fails with *external.TimeoutError.
type SiteCache struct {
	kv           KV
	next         Fetcher
	ttl          time.Duration
	fetchTimeout time.Duration
	observer     Observer
	logger       *slog.Logger
}

// NewSiteCache wraps next. observer may be nil. A non-positive fetchTimeout
// falls back to external.DefaultFetchTimeout.
func NewSiteCache(kv KV, next Fetcher, ttl, fetchTimeout time.Duration, observer Observer, logger *slog.Logger) *SiteCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if fetchTimeout <= 0 {
		fetchTimeout = external.DefaultFetchTimeout
	}
	if observer == nil {
		observer = noopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SiteCache{
		kv:           kv,
		next:         next,
		ttl:          ttl,
		fetchTimeout: fetchTimeout,
		observer:     observer,
		logger:       logger,
	}
}

// Key returns the cache key for a query.
func Key(region types.Region, filters types.Filters) string {
	return keyPrefix + external.ChargeSitesQuery(region, filters)
}

// FetchChargeSites serves the query from cache or the upstream.
func (c *SiteCache) FetchChargeSites(ctx context.Context, region types.Region, filters types.Filters) ([]types.ChargeSite, error) {
	ctx, cancel := context.WithTimeoutCause(ctx, c.fetchTimeout, &external.TimeoutError{Timeout: c.fetchTimeout})
	defer cancel()

	key := Key(region, filters)

	raw, err := c.get(ctx, key)
	switch {
	case err == nil:
		var sites []types.ChargeSite
		jsonErr := json.Unmarshal(raw, &sites)
		if jsonErr == nil {
			c.observer.ObserveCache(true)
			if sites == nil {
				sites = []types.ChargeSite{}
			}
			return sites, nil
		}
		c.logger.WarnContext(ctx, "discarding undecodable cache entry", "key", key, "error", jsonErr)
	case errors.Is(err, redis.Nil):
	default:
		c.logger.WarnContext(ctx, "site cache read failed", "key", key, "error", err)
	}
	c.observer.ObserveCache(false)

	if err := context.Cause(ctx); err != nil {
		return nil, timeoutOr(err)
	}

	sites, err := c.next.FetchChargeSites(ctx, region, filters)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(sites)
	if err != nil {
		return sites, nil
	}
	if err := c.set(ctx, key, payload); err != nil {
		c.logger.WarnContext(ctx, "site cache write failed", "key", key, "error", err)
	}
	return sites, nil
}

func (c *SiteCache) get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return c.kv.Get(ctx, key).Bytes()
}

func (c *SiteCache) set(ctx context.Context, key string, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return c.kv.Set(ctx, key, payload, c.ttl).Err()
}

// timeoutOr returns the *external.TimeoutError in cause, or a NetworkError
// wrapping it (the caller's context was cancelled).
func timeoutOr(cause error) error {
	var te *external.TimeoutError
	if errors.As(cause, &te) {
		return te
	}
	return &external.NetworkError{Err: cause}
}

// Probe checks Redis connectivity for the health endpoint.
type Probe struct {
	kv KV
}

// NewProbe returns a health probe over kv.
func NewProbe(kv KV) *Probe {
	return &Probe{kv: kv}
}

// Name implements core.HealthProbe.
func (p *Probe) Name() string { return "redis" }

// Check pings Redis.
func (p *Probe) Check(ctx context.Context) error {
	if err := p.kv.Ping(ctx).Err(); err != nil {
		return types.NewAppError(types.ErrCodeInternalCache, "redis ping failed", err)
	}
	return nil
}
