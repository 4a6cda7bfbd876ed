package lmsauth

import (
	"crypto/rand"
	"errors"
	"io"
	"time"

	"github.com/MrEthical07/lmsauth/internal/audit"
	"github.com/MrEthical07/lmsauth/internal/ledger"
	"github.com/MrEthical07/lmsauth/internal/limiters"
	"github.com/MrEthical07/lmsauth/internal/lockout"
	"github.com/MrEthical07/lmsauth/internal/twofactor"
	"github.com/MrEthical07/lmsauth/jwt"
	"github.com/MrEthical07/lmsauth/password"
	"github.com/MrEthical07/lmsauth/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Builder assembles an Engine. A Builder is single use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	credentials CredentialStore
	hasher      PasswordHasher
	activity    ActivityLogger

	logger *zerolog.Logger
	now    func() time.Time
	random io.Reader

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the ephemeral store. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore sets the account database. Required.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.credentials = store
	return b
}

// WithPasswordHasher replaces the default Argon2id hasher built from
// Config.Password.
func (b *Builder) WithPasswordHasher(hasher PasswordHasher) *Builder {
	b.hasher = hasher
	return b
}

// WithActivityLogger sets the activity sink. Without one, events are dropped.
func (b *Builder) WithActivityLogger(logger ActivityLogger) *Builder {
	b.activity = logger
	return b
}

// WithLogger sets the diagnostic logger. The default is the zerolog global
// logger.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = &logger
	return b
}

// WithClock replaces time.Now for every component. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithRandom replaces crypto/rand as the source of TOTP secrets and backup
// codes. Intended for tests.
func (b *Builder) WithRandom(r io.Reader) *Builder {
	b.random = r
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the components.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.credentials == nil {
		return nil, errors.New("credential store required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := log.Logger
	if b.logger != nil {
		logger = *b.logger
	}
	logger = logger.With().Str("component", "lmsauth").Logger()

	now := b.now
	if now == nil {
		now = time.Now
	}
	random := b.random
	if random == nil {
		random = rand.Reader
	}

	engine := &Engine{
		config:      cfg,
		log:         logger,
		now:         now,
		random:      random,
		credentials: b.credentials,
	}

	// -------- PASSWORD HASHER --------
	engine.hasher = b.hasher
	if engine.hasher == nil {
		ph, err := password.NewArgon2(cfg.Password)
		if err != nil {
			return nil, err
		}
		engine.hasher = ph
	}

	// -------- REDIS-BACKED COMPONENTS --------
	engine.lockout = lockout.New(b.redis, lockout.Config{
		Threshold: cfg.Lockout.MaxFailedAttempts,
		Duration:  cfg.Lockout.Duration,
		Window:    cfg.Lockout.AttemptWindow,
		OpTimeout: cfg.Redis.OpTimeout,
	}, lockout.WithClock(now), lockout.WithLogger(logger))

	engine.sessions = session.NewRegistry(b.redis, session.Config{
		TTL:                   cfg.Session.TTL,
		MaxDistinctIPs:        cfg.Suspicious.MaxDistinctIPs,
		MaxDistinctUserAgents: cfg.Suspicious.MaxDistinctUserAgents,
		RapidLoginWindow:      cfg.Suspicious.RapidLoginWindow,
		MaxRapidLogins:        cfg.Suspicious.MaxRapidLogins,
		OpTimeout:             cfg.Redis.OpTimeout,
	}, session.WithClock(now), session.WithLogger(logger))

	engine.twoFactor = twofactor.New(b.redis, twofactor.Config{
		SecretTTL:     cfg.TOTP.SecretTTL,
		BackupCodeTTL: cfg.TOTP.BackupCodeTTL,
		PendingTTL:    cfg.TOTP.EnrollmentTTL,
		ReplayTTL:     time.Duration(2*cfg.TOTP.Window+2) * 30 * time.Second,
		OpTimeout:     cfg.Redis.OpTimeout,
	}, logger)

	engine.codeAttempts = limiters.NewSecondFactor(b.redis, limiters.SecondFactorConfig{
		MaxAttempts: cfg.TOTP.MaxCodeAttempts,
		Window:      cfg.TOTP.CodeAttemptWindow,
		OpTimeout:   cfg.Redis.OpTimeout,
	})
	if cfg.Lockout.MaxFailuresPerIP > 0 {
		engine.ipFailures = limiters.NewClientIP(b.redis, limiters.ClientIPConfig{
			MaxFailures: cfg.Lockout.MaxFailuresPerIP,
			Window:      cfg.Lockout.AttemptWindow,
			OpTimeout:   cfg.Redis.OpTimeout,
		})
	}

	versionCache := b.redis
	if cfg.Token.VersionCacheTTL == 0 {
		versionCache = nil
	}
	engine.ledger = ledger.New(credentialSource{store: b.credentials}, versionCache, cfg.Token.VersionCacheTTL, logger)

	// -------- TOKENS --------
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.Token.AccessTTL,
		RefreshTTL:    cfg.Token.RefreshTTL,
		SigningMethod: jwt.SigningMethod(cfg.Token.SigningMethod),
		PrivateKey:    cloneBytes(cfg.Token.PrivateKey),
		PublicKey:     cloneBytes(cfg.Token.PublicKey),
		Issuer:        cfg.Token.Issuer,
		Audience:      cfg.Token.Audience,
		Leeway:        cfg.Token.Leeway,
	}, jwt.WithClock(now))
	if err != nil {
		return nil, err
	}
	engine.tokens = jm

	// -------- ACTIVITY + METRICS --------
	engine.audit = audit.NewDispatcher(audit.Config{
		Async:       cfg.Activity.Async,
		BufferSize:  cfg.Activity.BufferSize,
		DropIfFull:  cfg.Activity.DropIfFull,
		SinkTimeout: cfg.Activity.SinkTimeout,
	}, b.activity, logger)
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return engine, nil
}
