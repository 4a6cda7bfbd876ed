package lmsauth_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/lmsauth"
	"github.com/MrEthical07/lmsauth/password"
	"github.com/MrEthical07/lmsauth/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	testUserID   = "u1"
	testIdentity = "a@x.com"
	testPassword = "correct horse battery"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingSink struct {
	mu     sync.Mutex
	events []lmsauth.ActivityEvent
}

func (s *recordingSink) LogActivity(_ context.Context, e lmsauth.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) ofType(eventType string) []lmsauth.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []lmsauth.ActivityEvent
	for _, e := range s.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	engine *lmsauth.Engine
	store  *memory.Store
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	clock  *testClock
	hasher *password.Argon2
	sink   *recordingSink
}

func testConfig() lmsauth.Config {
	cfg := lmsauth.DefaultConfig()
	cfg.Token.SigningMethod = "hs256"
	cfg.Token.PrivateKey = []byte(strings.Repeat("k", 32))
	cfg.Token.Issuer = "lmsauth-test"
	cfg.Password = password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
		MinLength:   8,
	}
	cfg.Activity.Async = false
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

func newFixture(t *testing.T, mutate ...func(*lmsauth.Config)) *fixture {
	t.Helper()

	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	hasher, err := password.NewArgon2(cfg.Password)
	require.NoError(t, err)

	store := memory.New()
	digest, err := hasher.Hash(testPassword)
	require.NoError(t, err)
	require.NoError(t, store.Add(lmsauth.Account{
		ID:             testUserID,
		Identity:       testIdentity,
		PasswordDigest: digest,
		Active:         true,
	}))

	clock := &testClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	sink := &recordingSink{}

	engine, err := lmsauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(store).
		WithActivityLogger(sink).
		WithLogger(zerolog.Nop()).
		WithClock(clock.Now).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	return &fixture{
		engine: engine,
		store:  store,
		mr:     mr,
		rdb:    rdb,
		clock:  clock,
		hasher: hasher,
		sink:   sink,
	}
}

// advance moves both the engine clock and Redis TTLs.
func (f *fixture) advance(d time.Duration) {
	f.clock.Advance(d)
	f.mr.FastForward(d)
}

func (f *fixture) addAccount(t *testing.T, id, identity, pw string) {
	t.Helper()
	digest, err := f.hasher.Hash(pw)
	require.NoError(t, err)
	require.NoError(t, f.store.Add(lmsauth.Account{ID: id, Identity: identity, PasswordDigest: digest, Active: true}))
}

func clientCtx(ip, userAgent string) context.Context {
	ctx := lmsauth.WithClientIP(context.Background(), ip)
	ctx = lmsauth.WithUserAgent(ctx, userAgent)
	return lmsauth.WithDevice(ctx, "laptop")
}

func (f *fixture) login(t *testing.T) *lmsauth.LoginResult {
	t.Helper()
	res, err := f.engine.Login(clientCtx("10.0.0.1", "firefox"), testIdentity, testPassword)
	require.NoError(t, err)
	return res
}
