package lmsauth_test

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/lmsauth"
	"github.com/stretchr/testify/require"
)

func TestLogoutClosesOnlyThatSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.login(t)
	second := f.login(t)

	require.NoError(t, f.engine.Logout(ctx, first.SessionID))
	// idempotent
	require.NoError(t, f.engine.Logout(ctx, first.SessionID))
	require.NoError(t, f.engine.Logout(ctx, "no-such-session"))

	_, err := f.engine.Validate(ctx, first.AccessToken)
	require.ErrorIs(t, err, lmsauth.ErrTokenRevoked)
	_, err = f.engine.Refresh(ctx, first.RefreshToken)
	require.ErrorIs(t, err, lmsauth.ErrTokenRevoked)

	_, err = f.engine.Validate(ctx, second.AccessToken)
	require.NoError(t, err)

	acct, err := f.store.GetAccount(ctx, testUserID)
	require.NoError(t, err)
	require.Zero(t, acct.TokenVersion, "single logout must not bump the version")

	require.Len(t, f.sink.ofType(lmsauth.EventLogout), 1)
}

func TestLogoutAllRevokesEveryToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.login(t)
	b := f.login(t)

	n, err := f.engine.LogoutAll(ctx, testUserID)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	for _, res := range []*lmsauth.LoginResult{a, b} {
		_, err = f.engine.Validate(ctx, res.AccessToken)
		require.ErrorIs(t, err, lmsauth.ErrTokenRevoked)
		_, err = f.engine.Refresh(ctx, res.RefreshToken)
		require.ErrorIs(t, err, lmsauth.ErrTokenRevoked)
	}

	sessions, err := f.engine.ListSessions(ctx, testUserID)
	require.NoError(t, err)
	require.Empty(t, sessions)

	acct, err := f.store.GetAccount(ctx, testUserID)
	require.NoError(t, err)
	require.Equal(t, uint64(1), acct.TokenVersion)

	fresh := f.login(t)
	claims, err := f.engine.Validate(ctx, fresh.AccessToken)
	require.NoError(t, err)
	require.Equal(t, uint64(1), claims.TokenVersion)
}

func TestLogoutAllUnknownUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.LogoutAll(context.Background(), "ghost")
	require.ErrorIs(t, err, lmsauth.ErrNotFound)
}

func TestRevokeSessionChecksOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addAccount(t, "u2", "b@x.com", "another password")

	mine := f.login(t)

	err := f.engine.RevokeSession(ctx, "u2", mine.SessionID)
	require.ErrorIs(t, err, lmsauth.ErrNotFound)
	_, err = f.engine.Validate(ctx, mine.AccessToken)
	require.NoError(t, err)

	require.NoError(t, f.engine.RevokeSession(ctx, testUserID, mine.SessionID))
	_, err = f.engine.Validate(ctx, mine.AccessToken)
	require.ErrorIs(t, err, lmsauth.ErrTokenRevoked)

	require.ErrorIs(t, f.engine.RevokeSession(ctx, testUserID, mine.SessionID), lmsauth.ErrNotFound)
	require.ErrorIs(t, f.engine.RevokeSession(ctx, testUserID, "missing"), lmsauth.ErrNotFound)
}

func TestTouchSessionExtendsLifetime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.login(t)

	f.advance(20 * time.Hour)
	require.NoError(t, f.engine.TouchSession(ctx, res.SessionID))
	f.advance(20 * time.Hour)

	sessions, err := f.engine.ListSessions(ctx, testUserID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, f.clock.Now().Add(-20*time.Hour).UnixMilli(), sessions[0].LastActivity.UnixMilli())

	require.NoError(t, f.engine.TouchSession(ctx, "missing"))
}

func TestSessionExpiresWithoutActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.login(t)
	f.advance(25 * time.Hour)

	sessions, err := f.engine.ListSessions(ctx, testUserID)
	require.NoError(t, err)
	require.Empty(t, sessions)

	_, err = f.engine.Refresh(ctx, res.RefreshToken)
	require.ErrorIs(t, err, lmsauth.ErrTokenRevoked)
}

func TestRefreshRotatesPair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.login(t)
	f.advance(10 * time.Minute)

	pair, err := f.engine.Refresh(ctx, res.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, res.AccessToken, pair.AccessToken)
	require.Equal(t, f.clock.Now().Add(15*time.Minute), pair.AccessExpiresAt)

	claims, err := f.engine.Validate(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, res.SessionID, claims.SessionID)

	sessions, err := f.engine.ListSessions(ctx, testUserID)
	require.NoError(t, err)
	require.Equal(t, f.clock.Now().UnixMilli(), sessions[0].LastActivity.UnixMilli())
}

func TestTokenTypesAreNotInterchangeable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.login(t)

	_, err := f.engine.Validate(ctx, res.RefreshToken)
	require.ErrorIs(t, err, lmsauth.ErrTokenInvalid)
	_, err = f.engine.Refresh(ctx, res.AccessToken)
	require.ErrorIs(t, err, lmsauth.ErrTokenInvalid)
	_, err = f.engine.Validate(ctx, "not-a-token")
	require.ErrorIs(t, err, lmsauth.ErrTokenInvalid)
}

func TestAccessTokenExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.login(t)
	f.clock.Advance(16 * time.Minute)

	_, err := f.engine.Validate(ctx, res.AccessToken)
	require.ErrorIs(t, err, lmsauth.ErrTokenInvalid)

	_, err = f.engine.Refresh(ctx, res.RefreshToken)
	require.NoError(t, err)
}

func TestExternalVersionBumpVisibleAfterCacheTTL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.login(t)
	_, err := f.engine.Validate(ctx, res.AccessToken)
	require.NoError(t, err)

	// Bumped directly in the database, without telling the engine.
	require.NoError(t, f.store.PersistTokenVersion(ctx, testUserID, 7))
	_, err = f.engine.Validate(ctx, res.AccessToken)
	require.NoError(t, err)

	f.mr.FastForward(61 * time.Second)
	_, err = f.engine.Validate(ctx, res.AccessToken)
	require.ErrorIs(t, err, lmsauth.ErrTokenRevoked)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const next = "a much better passphrase"

	old := f.login(t)

	require.ErrorIs(t, f.engine.ChangePassword(ctx, testUserID, "not it at all", next), lmsauth.ErrInvalidCredentials)
	require.ErrorIs(t, f.engine.ChangePassword(ctx, testUserID, testPassword, testPassword), lmsauth.ErrPasswordReuse)
	require.ErrorIs(t, f.engine.ChangePassword(ctx, testUserID, testPassword, "short"), lmsauth.ErrPasswordPolicy)
	require.ErrorIs(t, f.engine.ChangePassword(ctx, "ghost", testPassword, next), lmsauth.ErrNotFound)

	require.NoError(t, f.engine.ChangePassword(ctx, testUserID, testPassword, next))
	cached, err := f.mr.Get("token_version:" + testUserID)
	require.NoError(t, err)
	require.Equal(t, "1", cached)

	_, err = f.engine.Validate(ctx, old.AccessToken)
	require.ErrorIs(t, err, lmsauth.ErrTokenRevoked)
	_, err = f.engine.Refresh(ctx, old.RefreshToken)
	require.ErrorIs(t, err, lmsauth.ErrTokenRevoked)

	sessions, err := f.engine.ListSessions(ctx, testUserID)
	require.NoError(t, err)
	require.Empty(t, sessions)

	_, err = f.engine.Login(ctx, testIdentity, testPassword)
	require.ErrorIs(t, err, lmsauth.ErrInvalidCredentials)

	res, err := f.engine.Login(ctx, testIdentity, next)
	require.NoError(t, err)
	claims, err := f.engine.Validate(ctx, res.AccessToken)
	require.NoError(t, err)
	require.Equal(t, uint64(1), claims.TokenVersion)

	events := f.sink.ofType(lmsauth.EventPasswordChange)
	require.Equal(t, "success", events[len(events)-1].Status)
}

func TestZeroVersionCacheTTLReadsStore(t *testing.T) {
	f := newFixture(t, func(c *lmsauth.Config) { c.Token.VersionCacheTTL = 0 })
	ctx := context.Background()

	res := f.login(t)
	_, err := f.engine.Validate(ctx, res.AccessToken)
	require.NoError(t, err)
	require.False(t, f.mr.Exists("token_version:"+testUserID))

	_, err = f.engine.LogoutAll(ctx, testUserID)
	require.NoError(t, err)
	require.False(t, f.mr.Exists("token_version:"+testUserID))

	_, err = f.engine.Validate(ctx, res.AccessToken)
	require.ErrorIs(t, err, lmsauth.ErrTokenRevoked)
}

func TestLogoutAllCachesBumpedVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.login(t)
	require.True(t, f.mr.Exists("token_version:"+testUserID))

	_, err := f.engine.LogoutAll(ctx, testUserID)
	require.NoError(t, err)
	cached, err := f.mr.Get("token_version:" + testUserID)
	require.NoError(t, err)
	require.Equal(t, "1", cached)

	_, err = f.engine.Validate(ctx, res.AccessToken)
	require.ErrorIs(t, err, lmsauth.ErrTokenRevoked)
}
