package twofactor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newStoreTest(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, DefaultConfig(), zerolog.Nop()), mr
}

func TestEnableLookupDisable(t *testing.T) {
	s, mr := newStoreTest(t)
	ctx := context.Background()

	require.False(t, s.IsEnabled(ctx, "u1"))
	l := s.Lookup(ctx, "u1")
	require.False(t, l.Found)
	require.NoError(t, l.Err)

	require.NoError(t, s.Enable(ctx, "u1", "JBSWY3DPEHPK3PXP", []string{"AB12CD34", "0011AAFF"}))
	require.True(t, s.IsEnabled(ctx, "u1"))
	secret, ok := s.Secret(ctx, "u1")
	require.True(t, ok)
	require.Equal(t, "JBSWY3DPEHPK3PXP", secret)
	require.Equal(t, 365*24*time.Hour, mr.TTL("2fa_secret:u1"))
	require.Equal(t, 30*24*time.Hour, mr.TTL("backup_codes:u1"))

	members, err := mr.Members("backup_codes:u1")
	require.NoError(t, err)
	require.Len(t, members, 2)
	require.NotContains(t, members, "AB12CD34")

	require.NoError(t, s.Disable(ctx, "u1"))
	require.False(t, s.IsEnabled(ctx, "u1"))
	require.False(t, mr.Exists("backup_codes:u1"))
}

func TestBackupCodeSingleUse(t *testing.T) {
	s, _ := newStoreTest(t)
	ctx := context.Background()
	require.NoError(t, s.Enable(ctx, "u1", "JBSWY3DPEHPK3PXP", []string{"AB12CD34", "0011AAFF"}))

	ok, err := s.VerifyBackupCode(ctx, "u1", "ab12cd34")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.VerifyBackupCode(ctx, "u1", "AB12CD34")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = s.VerifyBackupCode(ctx, "u1", "FFFFFFFF")
	require.NoError(t, err)
	require.False(t, ok)

	n, err := s.RemainingBackupCodes(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestBackupCodeConcurrentUseSucceedsOnce(t *testing.T) {
	s, _ := newStoreTest(t)
	ctx := context.Background()
	require.NoError(t, s.Enable(ctx, "u1", "JBSWY3DPEHPK3PXP", []string{"AB12CD34"}))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := s.VerifyBackupCode(ctx, "u1", "AB12CD34"); ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, wins)
}

func TestReplaceBackupCodes(t *testing.T) {
	s, _ := newStoreTest(t)
	ctx := context.Background()
	require.NoError(t, s.Enable(ctx, "u1", "JBSWY3DPEHPK3PXP", []string{"AB12CD34"}))
	require.NoError(t, s.ReplaceBackupCodes(ctx, "u1", []string{"11111111", "22222222", "33333333"}))

	ok, err := s.VerifyBackupCode(ctx, "u1", "AB12CD34")
	require.NoError(t, err)
	require.False(t, ok)

	n, err := s.RemainingBackupCodes(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestPendingEnrollment(t *testing.T) {
	s, mr := newStoreTest(t)
	ctx := context.Background()

	_, err := s.LoadPending(ctx, "u1")
	require.ErrorIs(t, err, ErrNoPendingEnrollment)

	require.NoError(t, s.SavePending(ctx, "u1", "PENDINGSECRET"))
	require.Equal(t, 10*time.Minute, mr.TTL("2fa_pending:u1"))
	got, err := s.LoadPending(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "PENDINGSECRET", got)

	mr.FastForward(11 * time.Minute)
	_, err = s.LoadPending(ctx, "u1")
	require.ErrorIs(t, err, ErrNoPendingEnrollment)

	require.NoError(t, s.SavePending(ctx, "u1", "PENDINGSECRET"))
	require.NoError(t, s.Enable(ctx, "u1", "PENDINGSECRET", nil))
	_, err = s.LoadPending(ctx, "u1")
	require.ErrorIs(t, err, ErrNoPendingEnrollment)
}

func TestMarkStepUsed(t *testing.T) {
	s, _ := newStoreTest(t)
	ctx := context.Background()

	first, err := s.MarkStepUsed(ctx, "u1", 56666666)
	require.NoError(t, err)
	require.True(t, first)

	again, err := s.MarkStepUsed(ctx, "u1", 56666666)
	require.NoError(t, err)
	require.False(t, again)

	other, err := s.MarkStepUsed(ctx, "u2", 56666666)
	require.NoError(t, err)
	require.True(t, other)
}

func TestLookupUnavailableIsTyped(t *testing.T) {
	s, mr := newStoreTest(t)
	mr.Close()

	l := s.Lookup(context.Background(), "u1")
	require.False(t, l.Found)
	require.ErrorIs(t, l.Err, ErrUnavailable)

	_, ok := s.Secret(context.Background(), "u1")
	require.False(t, ok)
	require.False(t, s.IsEnabled(context.Background(), "u1"))
}
