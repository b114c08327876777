package fetcher

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

var errThrottled = errors.New("429 too many requests")

func isThrottled(err error) bool { return errors.Is(err, errThrottled) }

func TestCachedServesFreshWithinTTL(t *testing.T) {

	clock := clockwork.NewFakeClock()
	calls := 0

	c := NewWithClock("test", time.Minute, 10*time.Second, nil, func(ctx context.Context) (int, error) {
		calls++
		return calls * 100, nil
	}, clock)

	v, err := c.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 100, v)
	require.Equal(t, 1, calls)

	// Still fresh; no second fetch
	v, err = c.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 100, v)
	require.Equal(t, 1, calls)

	clock.Advance(time.Minute + time.Second)

	v, err = c.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 200, v)
	require.Equal(t, 2, calls)
}

func TestCachedCooldownAfterFailure(t *testing.T) {

	clock := clockwork.NewFakeClock()
	calls := 0

	c := NewWithClock("test", time.Minute, 10*time.Second, nil, func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("rpc unavailable")
	}, clock)

	_, err := c.Get(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, calls)

	// Within cooldown the source is not retried
	_, err = c.Get(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, calls)

	clock.Advance(11 * time.Second)

	_, err = c.Get(context.Background())
	require.Error(t, err)
	require.Equal(t, 2, calls)
}

func TestCachedServesStaleWhenRateLimited(t *testing.T) {

	clock := clockwork.NewFakeClock()
	calls := 0
	fail := false

	c := NewWithClock("test", time.Minute, 10*time.Second, isThrottled, func(ctx context.Context) (int, error) {
		calls++
		if fail {
			return 0, errThrottled
		}
		return 42, nil
	}, clock)

	v, err := c.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 42, v)

	clock.Advance(2 * time.Minute)
	fail = true

	// Throttled refresh falls back to the stale value
	v, err = c.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 42, v)
	require.Equal(t, 2, calls)

	// Within cooldown, stale is served without touching the source
	v, err = c.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 42, v)
	require.Equal(t, 2, calls)

	// After cooldown the source recovers and the cache picks it up
	clock.Advance(11 * time.Second)
	fail = false

	v, err = c.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 42, v)
	require.Equal(t, 3, calls)

	age, ok := c.Age()
	require.True(t, ok)
	require.Equal(t, time.Duration(0), age)
	require.NoError(t, c.LastError())
}

func TestCachedPropagatesHardFailures(t *testing.T) {

	clock := clockwork.NewFakeClock()
	fail := false

	c := NewWithClock("test", time.Minute, 10*time.Second, isThrottled, func(ctx context.Context) (int, error) {
		if fail {
			return 0, errors.New("connection refused")
		}
		return 42, nil
	}, clock)

	_, err := c.Get(context.Background())
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	fail = true

	// A non-throttling failure surfaces even though a stale value exists
	_, err = c.Get(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "connection refused")
}

func TestCachedInvalidate(t *testing.T) {

	clock := clockwork.NewFakeClock()
	calls := 0

	c := NewWithClock("test", time.Hour, 10*time.Second, nil, func(ctx context.Context) (int, error) {
		calls++
		return calls, nil
	}, clock)

	_, err := c.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	c.Invalidate()

	v, err := c.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, v)
	require.Equal(t, 2, calls)
}

func TestCachedConcurrentCallersShareOneFetch(t *testing.T) {

	var calls atomic.Int64
	release := make(chan struct{})

	c := New("test", time.Minute, 10*time.Second, nil, func(ctx context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 7, nil
	})

	var wg sync.WaitGroup
	results := make([]int, 8)
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Get(context.Background())
		}(i)
	}

	// Give the goroutines time to pile up on the in-flight fetch
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int64(1), calls.Load())
	for i := range results {
		require.NoError(t, errs[i])
		require.Equal(t, 7, results[i])
	}
}
