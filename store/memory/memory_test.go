package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/MrEthical07/lmsauth"
	"github.com/stretchr/testify/require"
)

func TestFindByIdentityIsCaseInsensitive(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(lmsauth.Account{ID: "u1", Identity: "A@x.com", Active: true}))

	acct, err := s.FindByIdentity(context.Background(), " a@X.com ")
	require.NoError(t, err)
	require.Equal(t, "u1", acct.ID)

	_, err = s.FindByIdentity(context.Background(), "b@x.com")
	require.ErrorIs(t, err, lmsauth.ErrNotFound)
}

func TestAddRejectsDuplicates(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(lmsauth.Account{ID: "u1", Identity: "a@x.com"}))
	require.ErrorIs(t, s.Add(lmsauth.Account{ID: "u2", Identity: "A@X.COM"}), ErrDuplicateIdentity)
	require.ErrorIs(t, s.Add(lmsauth.Account{ID: "u1", Identity: "c@x.com"}), ErrDuplicateIdentity)
	require.Error(t, s.Add(lmsauth.Account{ID: "", Identity: "d@x.com"}))
	require.Equal(t, 1, s.Len())
}

func TestReturnedAccountsAreCopies(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(lmsauth.Account{ID: "u1", Identity: "a@x.com", TokenVersion: 3}))

	acct, err := s.GetAccount(context.Background(), "u1")
	require.NoError(t, err)
	acct.TokenVersion = 99

	again, err := s.GetAccount(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, uint64(3), again.TokenVersion)
}

func TestPersistPasswordDigestWritesVersion(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Add(lmsauth.Account{ID: "u1", Identity: "a@x.com", PasswordDigest: "old"}))

	require.NoError(t, s.PersistPasswordDigest(ctx, "u1", "new", 1))
	acct, err := s.GetAccount(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "new", acct.PasswordDigest)
	require.Equal(t, uint64(1), acct.TokenVersion)

	require.ErrorIs(t, s.PersistPasswordDigest(ctx, "nope", "x", 1), lmsauth.ErrNotFound)
	require.ErrorIs(t, s.PersistTokenVersion(ctx, "nope", 1), lmsauth.ErrNotFound)
	require.ErrorIs(t, s.SetActive("nope", false), lmsauth.ErrNotFound)
}

func TestConcurrentVersionWrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Add(lmsauth.Account{ID: "u1", Identity: "a@x.com"}))

	var wg sync.WaitGroup
	for i := 1; i <= 32; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			_ = s.PersistTokenVersion(ctx, "u1", v)
			_, _ = s.GetAccount(ctx, "u1")
		}(uint64(i))
	}
	wg.Wait()

	acct, err := s.GetAccount(ctx, "u1")
	require.NoError(t, err)
	require.NotZero(t, acct.TokenVersion)
}
