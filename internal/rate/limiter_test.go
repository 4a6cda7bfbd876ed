package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newWindow(t *testing.T, max int) (*Window, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewWindow(rdb, "rl:test:", max, time.Minute, time.Second), mr
}

func TestWindowLimitsAndExpires(t *testing.T) {
	w, mr := newWindow(t, 3)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		n, err := w.Hit(ctx, "a")
		require.NoError(t, err)
		require.Equal(t, int64(i), n)
		require.NoError(t, w.Allow(ctx, "a"))
	}

	n, err := w.Hit(ctx, "a")
	require.ErrorIs(t, err, ErrRateLimited)
	require.Equal(t, int64(3), n)
	require.ErrorIs(t, w.Allow(ctx, "a"), ErrRateLimited)
	require.NoError(t, w.Allow(ctx, "b"))

	require.Equal(t, time.Minute, mr.TTL("rl:test:a"))

	mr.FastForward(time.Minute)
	require.NoError(t, w.Allow(ctx, "a"))
	count, err := w.Count(ctx, "a")
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestWindowReset(t *testing.T) {
	w, _ := newWindow(t, 1)
	ctx := context.Background()

	_, err := w.Hit(ctx, "a")
	require.ErrorIs(t, err, ErrRateLimited)
	require.NoError(t, w.Reset(ctx, "a"))
	require.NoError(t, w.Allow(ctx, "a"))
}

func TestDisabledWindow(t *testing.T) {
	w, mr := newWindow(t, 0)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := w.Hit(ctx, "a")
		require.NoError(t, err)
	}
	require.False(t, mr.Exists("rl:test:a"))

	var nilWindow *Window
	require.NoError(t, nilWindow.Allow(ctx, "a"))
}

func TestWindowUnavailable(t *testing.T) {
	w, mr := newWindow(t, 3)
	mr.Close()

	_, err := w.Hit(context.Background(), "a")
	require.ErrorIs(t, err, ErrRedisUnavailable)
	require.ErrorIs(t, w.Allow(context.Background(), "a"), ErrRedisUnavailable)
}
