package lockout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestGuard(t *testing.T, cfg Config) (*Guard, *miniredis.Miniredis, *fakeClock) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	return New(rdb, cfg, WithClock(clock.Now)), mr, clock
}

func TestRecordFailureCountsDownToLock(t *testing.T) {
	g, _, clock := newTestGuard(t, DefaultConfig())
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		res, err := g.RecordFailure(ctx, "a@x.com")
		require.NoError(t, err)
		require.False(t, res.Locked)
		require.Equal(t, i, res.Attempts)
		require.Equal(t, 5-i, res.RemainingAttempts)
	}
	require.False(t, g.IsLocked(ctx, "a@x.com"))

	res, err := g.RecordFailure(ctx, "a@x.com")
	require.NoError(t, err)
	require.True(t, res.Locked)
	require.Equal(t, 0, res.RemainingAttempts)
	require.Equal(t, clock.Now().Add(30*time.Minute).UnixMilli(), res.LockedUntil.UnixMilli())

	state := g.Check(ctx, "a@x.com")
	require.Equal(t, StatusLocked, state.Status)
	require.True(t, g.IsLocked(ctx, "a@x.com"))
}

func TestIdentityIsNormalized(t *testing.T) {
	g, mr, _ := newTestGuard(t, DefaultConfig())
	ctx := context.Background()

	_, err := g.RecordFailure(ctx, " A@X.com")
	require.NoError(t, err)
	res, err := g.RecordFailure(ctx, "a@x.com")
	require.NoError(t, err)
	require.Equal(t, 2, res.Attempts)
	require.True(t, mr.Exists("lockout:a@x.com"))
}

func TestCounterUsesWindowTTLUntilLocked(t *testing.T) {
	g, mr, _ := newTestGuard(t, DefaultConfig())
	ctx := context.Background()

	_, err := g.RecordFailure(ctx, "b@x.com")
	require.NoError(t, err)
	require.Equal(t, 15*time.Minute, mr.TTL("lockout:b@x.com"))

	for i := 0; i < 4; i++ {
		_, err = g.RecordFailure(ctx, "b@x.com")
		require.NoError(t, err)
	}
	require.Equal(t, 30*time.Minute, mr.TTL("lockout:b@x.com"))
}

func TestLockExpires(t *testing.T) {
	g, mr, clock := newTestGuard(t, Config{Threshold: 2, Duration: time.Minute, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := g.RecordFailure(ctx, "c@x.com")
		require.NoError(t, err)
	}
	require.True(t, g.IsLocked(ctx, "c@x.com"))

	clock.Advance(59 * time.Second)
	require.True(t, g.IsLocked(ctx, "c@x.com"))

	// Clock passes the lock while the key is still present.
	clock.Advance(2 * time.Second)
	require.False(t, g.IsLocked(ctx, "c@x.com"))
	require.False(t, mr.Exists("lockout:c@x.com"))
}

func TestFailureAfterExpiredLockStartsOver(t *testing.T) {
	g, _, clock := newTestGuard(t, Config{Threshold: 2, Duration: time.Minute, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := g.RecordFailure(ctx, "d@x.com")
		require.NoError(t, err)
	}
	clock.Advance(2 * time.Minute)

	res, err := g.RecordFailure(ctx, "d@x.com")
	require.NoError(t, err)
	require.False(t, res.Locked)
	require.Equal(t, 1, res.Attempts)
}

func TestResetClearsCounter(t *testing.T) {
	g, _, _ := newTestGuard(t, DefaultConfig())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := g.RecordFailure(ctx, "e@x.com")
		require.NoError(t, err)
	}
	require.True(t, g.IsLocked(ctx, "e@x.com"))

	require.NoError(t, g.Reset(ctx, "e@x.com"))
	require.False(t, g.IsLocked(ctx, "e@x.com"))

	info, err := g.Info(ctx, "e@x.com")
	require.NoError(t, err)
	require.Equal(t, Info{}, info)
}

func TestInfo(t *testing.T) {
	g, _, clock := newTestGuard(t, Config{Threshold: 3, Duration: time.Minute, Window: time.Minute})
	ctx := context.Background()

	_, err := g.RecordFailure(ctx, "f@x.com")
	require.NoError(t, err)
	info, err := g.Info(ctx, "f@x.com")
	require.NoError(t, err)
	require.Equal(t, 1, info.Attempts)
	require.True(t, info.LockedUntil.IsZero())

	for i := 0; i < 2; i++ {
		_, err = g.RecordFailure(ctx, "f@x.com")
		require.NoError(t, err)
	}
	info, err = g.Info(ctx, "f@x.com")
	require.NoError(t, err)
	require.Equal(t, 3, info.Attempts)
	require.Equal(t, clock.Now().Add(time.Minute).UnixMilli(), info.LockedUntil.UnixMilli())
}

func TestConcurrentFailuresAreNotLost(t *testing.T) {
	g, _, _ := newTestGuard(t, Config{Threshold: 100, Duration: time.Minute, Window: time.Minute})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = g.RecordFailure(ctx, "g@x.com")
		}()
	}
	wg.Wait()

	info, err := g.Info(ctx, "g@x.com")
	require.NoError(t, err)
	require.Equal(t, 20, info.Attempts)
}

func TestUnavailableStoreFailsOpen(t *testing.T) {
	g, mr, _ := newTestGuard(t, DefaultConfig())
	ctx := context.Background()

	mr.Close()

	state := g.Check(ctx, "h@x.com")
	require.Equal(t, StatusUnknown, state.Status)
	require.ErrorIs(t, state.Err, ErrUnavailable)
	require.False(t, g.IsLocked(ctx, "h@x.com"))

	_, err := g.RecordFailure(ctx, "h@x.com")
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, g.Reset(ctx, "h@x.com"), ErrUnavailable)
}
