package lmsauth

import (
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type emptyStore struct{}

func (emptyStore) FindByIdentity(context.Context, string) (*Account, error) { return nil, ErrNotFound }
func (emptyStore) GetAccount(context.Context, string) (*Account, error)     { return nil, ErrNotFound }
func (emptyStore) PersistTokenVersion(context.Context, string, uint64) error {
	return ErrNotFound
}
func (emptyStore) PersistPasswordDigest(context.Context, string, string, uint64) error {
	return ErrNotFound
}

func testRedis(t *testing.T) redis.UniversalClient {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestBuildRequiresDependencies(t *testing.T) {
	_, err := New().WithConfig(validConfig()).WithCredentialStore(emptyStore{}).Build()
	require.EqualError(t, err, "redis client required")

	_, err = New().WithConfig(validConfig()).WithRedis(testRedis(t)).Build()
	require.EqualError(t, err, "credential store required")

	_, err = New().WithRedis(testRedis(t)).WithCredentialStore(emptyStore{}).Build()
	require.EqualError(t, err, "ed25519 requires PrivateKey")
}

func TestBuilderIsSingleUse(t *testing.T) {
	b := New().
		WithConfig(validConfig()).
		WithRedis(testRedis(t)).
		WithCredentialStore(emptyStore{}).
		WithLogger(zerolog.Nop())

	e, err := b.Build()
	require.NoError(t, err)
	defer e.Close()

	_, err = b.Build()
	require.EqualError(t, err, "builder already used")
}

func TestWithConfigCopiesKeys(t *testing.T) {
	cfg := validConfig()
	b := New().WithConfig(cfg)
	cfg.Token.PrivateKey[0] = 'x'

	require.Equal(t, []byte(strings.Repeat("s", 32)), b.config.Token.PrivateKey)
}

func TestBuilderMetricsToggles(t *testing.T) {
	e, err := New().
		WithConfig(validConfig()).
		WithRedis(testRedis(t)).
		WithCredentialStore(emptyStore{}).
		WithLogger(zerolog.Nop()).
		WithMetricsEnabled(false).
		Build()
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Login(context.Background(), "nobody@x.com", "password1")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.Empty(t, e.MetricsSnapshot().Counters)
}
