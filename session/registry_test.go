package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newRegistryTest(t *testing.T) (*Registry, *miniredis.Miniredis, *testClock) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := &testClock{t: time.Unix(1700000000, 0)}
	return NewRegistry(rdb, DefaultConfig(), WithClock(clock.Now)), mr, clock
}

func TestCreateStoresRecordAndIndex(t *testing.T) {
	reg, mr, clock := newRegistryTest(t)
	ctx := context.Background()

	rec, err := reg.Create(ctx, "u1", "laptop", "10.0.0.1", "firefox")
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)
	require.True(t, rec.Active)
	require.True(t, rec.LoginTime.Equal(clock.Now()))

	require.True(t, mr.Exists(Key(rec.ID)))
	members, err := mr.Members(IndexKey("u1"))
	require.NoError(t, err)
	require.Equal(t, []string{rec.ID}, members)
	require.Equal(t, 24*time.Hour, mr.TTL(Key(rec.ID)))
	require.Equal(t, 24*time.Hour, mr.TTL(IndexKey("u1")))

	got, err := reg.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, "laptop", got.Device)
	require.Equal(t, "10.0.0.1", got.IPAddress)
}

func TestCreateGeneratesDistinctIDs(t *testing.T) {
	reg, _, _ := newRegistryTest(t)
	ctx := context.Background()

	a, err := reg.Create(ctx, "u1", "", "", "")
	require.NoError(t, err)
	b, err := reg.Create(ctx, "u1", "", "", "")
	require.NoError(t, err)
	require.NotEqual(t, a.ID, b.ID)
}

func TestGetMissingAndGetDoesNotRefreshTTL(t *testing.T) {
	reg, mr, _ := newRegistryTest(t)
	ctx := context.Background()

	_, err := reg.Get(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)

	rec, err := reg.Create(ctx, "u1", "", "", "")
	require.NoError(t, err)
	mr.FastForward(time.Hour)

	_, err = reg.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, 23*time.Hour, mr.TTL(Key(rec.ID)))
}

func TestUpdateActivityRefreshesTTL(t *testing.T) {
	reg, mr, clock := newRegistryTest(t)
	ctx := context.Background()

	rec, err := reg.Create(ctx, "u1", "", "", "")
	require.NoError(t, err)

	mr.FastForward(time.Hour)
	clock.Advance(time.Hour)
	require.NoError(t, reg.UpdateActivity(ctx, rec.ID))

	require.Equal(t, 24*time.Hour, mr.TTL(Key(rec.ID)))
	require.Equal(t, 24*time.Hour, mr.TTL(IndexKey("u1")))

	got, err := reg.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.True(t, got.LastActivity.Equal(clock.Now()))
	require.True(t, got.LoginTime.Equal(rec.LoginTime))
}

func TestUpdateActivityMissingIsNoop(t *testing.T) {
	reg, mr, _ := newRegistryTest(t)

	require.NoError(t, reg.UpdateActivity(context.Background(), "ghost"))
	require.False(t, mr.Exists(Key("ghost")))
}

func TestInvalidateIsIdempotentAndKeepsTTL(t *testing.T) {
	reg, mr, _ := newRegistryTest(t)
	ctx := context.Background()

	rec, err := reg.Create(ctx, "u1", "", "", "")
	require.NoError(t, err)
	mr.FastForward(time.Hour)

	flipped, err := reg.Invalidate(ctx, rec.ID)
	require.NoError(t, err)
	require.True(t, flipped)

	got, err := reg.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.False(t, got.Active)
	require.Equal(t, 23*time.Hour, mr.TTL(Key(rec.ID)))
	require.False(t, mr.Exists(IndexKey("u1")))

	flipped, err = reg.Invalidate(ctx, rec.ID)
	require.NoError(t, err)
	require.False(t, flipped)

	flipped, err = reg.Invalidate(ctx, "ghost")
	require.NoError(t, err)
	require.False(t, flipped)
}

func TestInvalidateAll(t *testing.T) {
	reg, mr, _ := newRegistryTest(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		rec, err := reg.Create(ctx, "u1", "", "", "")
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}
	other, err := reg.Create(ctx, "u2", "", "", "")
	require.NoError(t, err)

	n, err := reg.InvalidateAll(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.False(t, mr.Exists(IndexKey("u1")))

	for _, id := range ids {
		got, err := reg.Get(ctx, id)
		require.NoError(t, err)
		require.False(t, got.Active)
	}

	active, err := reg.ListActive(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, other.ID, active[0].ID)

	n, err = reg.InvalidateAll(ctx, "u1")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestListActivePrunesIndexDrift(t *testing.T) {
	reg, mr, clock := newRegistryTest(t)
	ctx := context.Background()

	first, err := reg.Create(ctx, "u1", "", "", "")
	require.NoError(t, err)
	clock.Advance(time.Second)
	second, err := reg.Create(ctx, "u1", "", "", "")
	require.NoError(t, err)
	clock.Advance(time.Second)
	third, err := reg.Create(ctx, "u1", "", "", "")
	require.NoError(t, err)

	mr.Del(Key(second.ID))

	active, err := reg.ListActive(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.Equal(t, first.ID, active[0].ID)
	require.Equal(t, third.ID, active[1].ID)

	members, err := mr.Members(IndexKey("u1"))
	require.NoError(t, err)
	require.ElementsMatch(t, []string{first.ID, third.ID}, members)
}

func TestListActiveEmpty(t *testing.T) {
	reg, _, _ := newRegistryTest(t)

	active, err := reg.ListActive(context.Background(), "nobody")
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestRegistryUnavailable(t *testing.T) {
	reg, mr, _ := newRegistryTest(t)
	mr.Close()

	_, err := reg.Create(context.Background(), "u1", "", "", "")
	require.ErrorIs(t, err, ErrRedisUnavailable)

	_, err = reg.Get(context.Background(), "sid")
	require.ErrorIs(t, err, ErrRedisUnavailable)
}
