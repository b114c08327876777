// Package fetcher provides cached access to slow or rate-limited upstream
// data. Every on-chain and API read the bot performs during a cycle goes
// through a Cached wrapper so that endpoint throttling degrades the data's
// freshness instead of failing the cycle outright.
package fetcher

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// FetchFunc loads a fresh value from the upstream source.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Classifier reports whether an error is a rate-limit/throttling response.
// Rate-limited refreshes fall back to the stale cache entry; any other
// failure propagates to the caller.
type Classifier func(error) bool

// Cached wraps a FetchFunc with a freshness TTL and an attempt cooldown.
//
// Within the TTL the cached value is returned without touching the source.
// Within the cooldown after any attempt, the source is left alone and the
// cached value (however stale) is served. Outside both windows a refresh
// runs; concurrent callers share one in-flight refresh.
type Cached[T any] struct {
	name        string
	ttl         time.Duration
	cooldown    time.Duration
	clock       clockwork.Clock
	fetch       FetchFunc[T]
	rateLimited Classifier

	group singleflight.Group

	mu          sync.RWMutex
	value       T
	hasValue    bool
	fetchedAt   time.Time
	lastAttempt time.Time
	lastErr     error
}

func New[T any](name string, ttl, cooldown time.Duration, rateLimited Classifier, fetch FetchFunc[T]) *Cached[T] {
	return NewWithClock(name, ttl, cooldown, rateLimited, fetch, clockwork.NewRealClock())
}

func NewWithClock[T any](name string, ttl, cooldown time.Duration, rateLimited Classifier, fetch FetchFunc[T], clock clockwork.Clock) *Cached[T] {

	if rateLimited == nil {
		rateLimited = func(error) bool { return false }
	}

	return &Cached[T]{
		name:        name,
		ttl:         ttl,
		cooldown:    cooldown,
		clock:       clock,
		fetch:       fetch,
		rateLimited: rateLimited,
	}
}

// Get returns the cached value, refreshing it first if both the TTL and the
// attempt cooldown have expired.
func (c *Cached[T]) Get(ctx context.Context) (T, error) {

	now := c.clock.Now()

	c.mu.RLock()
	if c.hasValue && now.Sub(c.fetchedAt) < c.ttl {
		value := c.value
		c.mu.RUnlock()
		return value, nil
	}

	// Within the cooldown the source is not touched again, whatever the
	// last attempt's outcome was
	if !c.lastAttempt.IsZero() && now.Sub(c.lastAttempt) < c.cooldown {
		if c.hasValue {
			value := c.value
			age := now.Sub(c.fetchedAt)
			c.mu.RUnlock()
			log.WithFields(log.Fields{
				"Fetcher": c.name, "Age": age.Truncate(time.Second),
			}).Debug("Source in cooldown; serving stale data")
			return value, nil
		}
		lastErr := c.lastErr
		c.mu.RUnlock()
		var zero T
		return zero, errors.Wrapf(lastErr, "Fetcher '%s' in cooldown with no cached data", c.name)
	}
	c.mu.RUnlock()

	return c.refresh(ctx)
}

// refresh performs a single shared fetch. All concurrent callers that find
// the cache expired join the same upstream call.
func (c *Cached[T]) refresh(ctx context.Context) (T, error) {

	v, err, _ := c.group.Do(c.name, func() (interface{}, error) {

		value, err := c.fetch(ctx)

		c.mu.Lock()
		c.lastAttempt = c.clock.Now()
		c.lastErr = err
		if err == nil {
			c.value = value
			c.hasValue = true
			c.fetchedAt = c.lastAttempt
		}
		c.mu.Unlock()

		return value, err
	})

	if err == nil {
		return v.(T), nil
	}

	// Throttling responses degrade to the stale entry; anything else is a
	// real failure the caller has to see
	if c.rateLimited(err) {
		c.mu.RLock()
		defer c.mu.RUnlock()

		if c.hasValue {
			log.WithFields(log.Fields{
				"Fetcher": c.name, "Age": c.clock.Now().Sub(c.fetchedAt).Truncate(time.Second),
			}).WithError(err).Warn("Source rate limited; serving stale data")
			return c.value, nil
		}
	}

	var zero T
	return zero, errors.Wrapf(err, "Unable to fetch '%s'", c.name)
}

// Invalidate expires the cached value so the next Get hits the source.
// Cooldown state is cleared too; an explicit invalidation means the caller
// knows the upstream changed.
func (c *Cached[T]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchedAt = time.Time{}
	c.lastErr = nil
	c.lastAttempt = time.Time{}
}

// Age returns how old the cached value is, and whether one exists at all.
func (c *Cached[T]) Age() (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.hasValue {
		return 0, false
	}
	return c.clock.Now().Sub(c.fetchedAt), true
}

// LastError returns the error from the most recent refresh attempt, or nil
// if it succeeded.
func (c *Cached[T]) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}
