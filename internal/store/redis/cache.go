// Package redis provides a read-through bar-range cache in front of the
// SQLite reader, plus the pub/sub channel that nudges the sync worker when a
// query finds no data. The cache is an optimization only: any Redis trouble
// degrades to direct store reads behind a circuit breaker, never to a failed
// query.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"cloud.google.com/go/civil"
	goredis "github.com/go-redis/redis/v8"

	"stock-historyv1/internal/metrics"
	"stock-historyv1/internal/model"
)

// SyncRequestChannel carries symbols that need an out-of-band bar sync.
const SyncRequestChannel = "sync:requests"

// Source is the underlying bar source the cache reads through.
type Source interface {
	FetchBars(ctx context.Context, symbol string, start, end civil.Date) ([]model.Bar, error)
}

// CacheConfig configures the bar cache.
type CacheConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration // cached range lifetime; default 5m
}

// Cache decorates a Source with Redis-backed range caching.
type Cache struct {
	client  *goredis.Client
	source  Source
	ttl     time.Duration
	breaker *Breaker
	mets    *metrics.Metrics
}

// NewCache connects to Redis and wraps source. mets may be nil.
func NewCache(cfg CacheConfig, source Source, mets *metrics.Metrics) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	c := &Cache{
		client:  client,
		source:  source,
		ttl:     ttl,
		breaker: NewBreaker(5, 10*time.Second),
		mets:    mets,
	}
	c.breaker.OnStateChange = func(from, to State) {
		log.Printf("[redis-cache] circuit breaker %s -> %s", from, to)
		if mets != nil {
			mets.CircuitBreakerState.Set(float64(to))
			if to == StateOpen {
				mets.CircuitBreakerTrips.Inc()
			}
		}
	}

	log.Printf("[redis-cache] connected to %s (ttl=%s)", cfg.Addr, ttl)
	return c, nil
}

// Client returns the underlying Redis client for health checks.
func (c *Cache) Client() *goredis.Client { return c.client }

func rangeKey(symbol string, start, end civil.Date) string {
	return fmt.Sprintf("bars:%s:%s:%s", symbol, start, end)
}

// FetchBars serves a cached range when one exists, otherwise reads through
// to the underlying source and caches the result. Store errors propagate;
// cache errors never do.
func (c *Cache) FetchBars(ctx context.Context, symbol string, start, end civil.Date) ([]model.Bar, error) {
	key := rangeKey(symbol, start, end)

	var payload string
	err := c.breaker.Do(func() error {
		v, err := c.client.Get(ctx, key).Result()
		if err == goredis.Nil {
			return nil // key absent is not a Redis failure
		}
		if err != nil {
			return err
		}
		payload = v
		return nil
	})
	if err == nil && payload != "" {
		var bars []model.Bar
		if jsonErr := json.Unmarshal([]byte(payload), &bars); jsonErr == nil {
			if c.mets != nil {
				c.mets.CacheHits.Inc()
			}
			return bars, nil
		}
		log.Printf("[redis-cache] corrupt payload for %s, falling through", key)
	}

	if c.mets != nil {
		c.mets.CacheMisses.Inc()
	}

	bars, err := c.source.FetchBars(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}

	// Empty ranges are deliberately not cached: a sync could fill them at
	// any moment and the advisory must reflect the store.
	if len(bars) == 0 {
		return bars, nil
	}

	buf, err := json.Marshal(bars)
	if err == nil {
		if setErr := c.breaker.Do(func() error {
			return c.client.Set(ctx, key, buf, c.ttl).Err()
		}); setErr != nil && setErr != ErrCircuitOpen {
			log.Printf("[redis-cache] set %s failed: %v", key, setErr)
		}
	}
	return bars, nil
}

// NotifySyncNeeded publishes a sync request for symbol. Best effort: errors
// are returned for logging but never fail the query path.
func (c *Cache) NotifySyncNeeded(ctx context.Context, symbol string) error {
	return c.breaker.Do(func() error {
		return c.client.Publish(ctx, SyncRequestChannel, symbol).Err()
	})
}

// SubscribeSyncRequests subscribes to the sync request channel. Used by the
// sync worker for on-demand ingestion.
func (c *Cache) SubscribeSyncRequests(ctx context.Context) *goredis.PubSub {
	return c.client.Subscribe(ctx, SyncRequestChannel)
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}
