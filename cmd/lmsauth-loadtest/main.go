package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/lmsauth"
	"github.com/MrEthical07/lmsauth/internal/observability"
	"github.com/MrEthical07/lmsauth/metrics/export/prometheus"
	"github.com/MrEthical07/lmsauth/password"
	"github.com/MrEthical07/lmsauth/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const loadPassword = "load-test-password"

type options struct {
	users       int
	concurrency int
	ops         int
	rps         float64
	badRatio    float64
	redisAddr   string
	metricsAddr string
}

func main() {
	var opt options
	flag.IntVar(&opt.users, "users", 1000, "number of accounts to seed")
	flag.IntVar(&opt.concurrency, "concurrency", 64, "number of concurrent workers")
	flag.IntVar(&opt.ops, "ops", 20000, "operations per phase (login, validate, refresh)")
	flag.Float64Var(&opt.rps, "rps", 0, "global rate limit in operations per second; 0 means unlimited")
	flag.Float64Var(&opt.badRatio, "bad-password-ratio", 0.1, "fraction of logins sent with a wrong password")
	flag.StringVar(&opt.redisAddr, "redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	flag.StringVar(&opt.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	flag.Parse()

	if opt.users <= 0 || opt.concurrency <= 0 || opt.ops <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, and ops must be > 0")
		os.Exit(2)
	}
	if opt.badRatio < 0 || opt.badRatio > 1 {
		fmt.Fprintln(os.Stderr, "bad-password-ratio must be between 0 and 1")
		os.Exit(2)
	}

	logger := observability.NewLogger(os.Stderr, "warn", "console")
	if err := run(context.Background(), opt, logger); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opt options, logger zerolog.Logger) error {
	addr := opt.redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var client redis.UniversalClient
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		fmt.Printf("using redis at %s\n", addr)
	}
	client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer client.Close()

	engine, accounts, err := buildEngine(client, opt.users, logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	if opt.metricsAddr != "" {
		srv := metricsServer(opt.metricsAddr, engine)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
		defer srv.Close()
		fmt.Printf("metrics on http://%s/metrics\n", opt.metricsAddr)
	}

	var limiter *rate.Limiter
	if opt.rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(opt.rps), opt.concurrency)
	}

	tokens := newTokenPool(len(accounts))
	loginStats := runPhase(ctx, opt, limiter, 7919, func(r *rand.Rand) error {
		i := r.Intn(len(accounts))
		pw := loadPassword
		if r.Float64() < opt.badRatio {
			pw = "wrong-" + loadPassword
		}
		ctx := lmsauth.WithClientIP(ctx, fmt.Sprintf("10.%d.%d.%d", r.Intn(256), r.Intn(256), r.Intn(256)))
		res, err := engine.Login(ctx, accounts[i], pw)
		if err != nil {
			return err
		}
		tokens.put(i, res.AccessToken, res.RefreshToken)
		return nil
	})

	validateStats := runPhase(ctx, opt, limiter, 6151, func(r *rand.Rand) error {
		access, _, ok := tokens.get(r.Intn(len(accounts)))
		if !ok {
			return errNoToken
		}
		_, err := engine.Validate(ctx, access)
		return err
	})

	refreshStats := runPhase(ctx, opt, limiter, 4049, func(r *rand.Rand) error {
		i := r.Intn(len(accounts))
		_, refresh, ok := tokens.get(i)
		if !ok {
			return errNoToken
		}
		pair, err := engine.Refresh(ctx, refresh)
		if err != nil {
			return err
		}
		tokens.put(i, pair.AccessToken, pair.RefreshToken)
		return nil
	})

	fmt.Println("---- results ----")
	printStats("login", loginStats)
	printStats("validate", validateStats)
	printStats("refresh", refreshStats)

	snap := engine.MetricsSnapshot()
	fmt.Printf("accounts locked=%d suspicious logins=%d lockout fail-open=%d\n",
		snap.Counters[lmsauth.MetricAccountLocked],
		snap.Counters[lmsauth.MetricSuspiciousLogin],
		snap.Counters[lmsauth.MetricLockoutFailOpen],
	)
	return nil
}

func buildEngine(client redis.UniversalClient, users int, logger zerolog.Logger) (*lmsauth.Engine, []string, error) {
	cfg := lmsauth.DefaultConfig()
	cfg.Token.SigningMethod = "hs256"
	cfg.Token.PrivateKey = []byte(strings.Repeat("L", 32))
	// Cheap hashing keeps the run about Redis, not argon2.
	cfg.Password = password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32, MinLength: 8}
	cfg.Metrics.EnableLatencyHistograms = true

	hasher, err := password.NewArgon2(cfg.Password)
	if err != nil {
		return nil, nil, err
	}
	digest, err := hasher.Hash(loadPassword)
	if err != nil {
		return nil, nil, err
	}

	store := memory.New()
	identities := make([]string, users)
	fmt.Printf("seeding %d accounts...\n", users)
	for i := 0; i < users; i++ {
		identities[i] = fmt.Sprintf("student%d@lms.test", i)
		if err := store.Add(lmsauth.Account{
			ID:             fmt.Sprintf("u%d", i),
			Identity:       identities[i],
			PasswordDigest: digest,
			Active:         true,
		}); err != nil {
			return nil, nil, err
		}
	}

	engine, err := lmsauth.New().
		WithConfig(cfg).
		WithRedis(client).
		WithCredentialStore(store).
		WithPasswordHasher(hasher).
		WithLogger(logger).
		Build()
	if err != nil {
		return nil, nil, err
	}
	return engine, identities, nil
}

func metricsServer(addr string, engine *lmsauth.Engine) *http.Server {
	r := mux.NewRouter()
	r.Handle("/metrics", prometheus.NewExporter(engine).Handler()).Methods(http.MethodGet)
	return &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
}

var errNoToken = errors.New("no token issued for account yet")

type tokenSlot struct {
	mu      sync.Mutex
	access  string
	refresh string
}

type tokenPool struct {
	slots []tokenSlot
}

func newTokenPool(n int) *tokenPool {
	return &tokenPool{slots: make([]tokenSlot, n)}
}

func (p *tokenPool) put(i int, access, refresh string) {
	p.slots[i].mu.Lock()
	p.slots[i].access, p.slots[i].refresh = access, refresh
	p.slots[i].mu.Unlock()
}

func (p *tokenPool) get(i int) (string, string, bool) {
	p.slots[i].mu.Lock()
	defer p.slots[i].mu.Unlock()
	return p.slots[i].access, p.slots[i].refresh, p.slots[i].access != ""
}

func runPhase(ctx context.Context, opt options, limiter *rate.Limiter, seed int64, op func(r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, opt.ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < opt.concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= opt.ops {
					return
				}
				if limiter != nil {
					if err := limiter.Wait(ctx); err != nil {
						return
					}
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
