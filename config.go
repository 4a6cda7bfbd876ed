package lmsauth

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/lmsauth/password"
)

// Config holds every tunable of the Engine. Start from DefaultConfig and
// override what you need; Builder.Build rejects configs that fail Validate.
type Config struct {
	Lockout    LockoutConfig    `toml:"lockout"`
	Session    SessionConfig    `toml:"session"`
	Suspicious SuspiciousConfig `toml:"suspicious"`
	TOTP       TOTPConfig       `toml:"totp"`
	Token      TokenConfig      `toml:"token"`
	Password   password.Config  `toml:"password"`
	Activity   ActivityConfig   `toml:"activity"`
	Metrics    MetricsConfig    `toml:"metrics"`
	Redis      RedisConfig      `toml:"redis"`
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig controls brute-force protection per login identity.
type LockoutConfig struct {
	// MaxFailedAttempts is the failure count that triggers a lock.
	MaxFailedAttempts int `toml:"max_failed_attempts"`
	// Duration is how long a triggered lock lasts.
	Duration time.Duration `toml:"duration"`
	// AttemptWindow is how long an unlocked failure counter survives without
	// new failures.
	AttemptWindow time.Duration `toml:"attempt_window"`
	// MaxFailuresPerIP throttles a client address after that many failed
	// logins within AttemptWindow, whatever identities it tried. 0 disables.
	MaxFailuresPerIP int `toml:"max_failures_per_ip"`
}

/*
====================================
SESSION CONFIG
====================================
*/

type SessionConfig struct {
	TTL time.Duration `toml:"ttl"`
}

/*
====================================
SUSPICIOUS ACTIVITY CONFIG
====================================
*/

// SuspiciousConfig tunes the advisory login heuristic. A login is flagged
// when the user's active sessions exceed any of the limits.
type SuspiciousConfig struct {
	Enabled               bool          `toml:"enabled"`
	MaxDistinctIPs        int           `toml:"max_distinct_ips"`
	MaxDistinctUserAgents int           `toml:"max_distinct_user_agents"`
	RapidLoginWindow      time.Duration `toml:"rapid_login_window"`
	MaxRapidLogins        int           `toml:"max_rapid_logins"`
}

/*
====================================
TOTP CONFIG
====================================
*/

type TOTPConfig struct {
	Issuer string `toml:"issuer"`
	// Window is how many 30 second steps either side of now are accepted.
	Window          int           `toml:"window"`
	SecretTTL       time.Duration `toml:"secret_ttl"`
	BackupCodeTTL   time.Duration `toml:"backup_code_ttl"`
	BackupCodeCount int           `toml:"backup_code_count"`
	EnrollmentTTL   time.Duration `toml:"enrollment_ttl"`
	// MaxCodeAttempts wrong codes within CodeAttemptWindow block further
	// code checks for that user until the window ends.
	MaxCodeAttempts   int           `toml:"max_code_attempts"`
	CodeAttemptWindow time.Duration `toml:"code_attempt_window"`
	// EnforceReplayProtection rejects a TOTP code whose time step was already
	// used by the same user.
	EnforceReplayProtection bool `toml:"enforce_replay_protection"`
	// FailOpenOnLookupError treats an unreadable 2FA record as "2FA not
	// enabled", which is the default. Set it to false to fail closed with
	// ErrInfrastructure instead.
	FailOpenOnLookupError bool `toml:"fail_open_on_lookup_error"`
}

/*
====================================
TOKEN CONFIG
====================================
*/

type TokenConfig struct {
	AccessTTL     time.Duration `toml:"access_ttl"`
	RefreshTTL    time.Duration `toml:"refresh_ttl"`
	SigningMethod string        `toml:"signing_method"` // "ed25519" (default) or "hs256"
	PrivateKey    []byte        `toml:"-"`
	PublicKey     []byte        `toml:"-"`
	// PrivateKeyFile and PublicKeyFile are read by LoadConfigFile.
	PrivateKeyFile string        `toml:"private_key_file"`
	PublicKeyFile  string        `toml:"public_key_file"`
	Issuer         string        `toml:"issuer"`
	Audience       string        `toml:"audience"`
	Leeway         time.Duration `toml:"leeway"`
	// VersionCacheTTL bounds how long a cached token version may be served.
	// Zero reads every version from the credential store.
	VersionCacheTTL time.Duration `toml:"version_cache_ttl"`
}

/*
====================================
ACTIVITY CONFIG
====================================
*/

type ActivityConfig struct {
	Async       bool          `toml:"async"`
	BufferSize  int           `toml:"buffer_size"`
	DropIfFull  bool          `toml:"drop_if_full"`
	SinkTimeout time.Duration `toml:"sink_timeout"`
}

/*
====================================
METRICS CONFIG
====================================
*/

type MetricsConfig struct {
	Enabled                 bool `toml:"enabled"`
	EnableLatencyHistograms bool `toml:"enable_latency_histograms"`
}

/*
====================================
REDIS CONFIG
====================================
*/

type RedisConfig struct {
	// OpTimeout bounds every individual store call.
	OpTimeout time.Duration `toml:"op_timeout"`
}

// DefaultConfig returns the production defaults: 5 failures lock for 30
// minutes, 24 hour sessions, 15 minute access and 7 day refresh tokens.
func DefaultConfig() Config {
	return Config{
		Lockout: LockoutConfig{
			MaxFailedAttempts: 5,
			Duration:          30 * time.Minute,
			AttemptWindow:     15 * time.Minute,
		},
		Session: SessionConfig{
			TTL: 24 * time.Hour,
		},
		Suspicious: SuspiciousConfig{
			Enabled:               true,
			MaxDistinctIPs:        3,
			MaxDistinctUserAgents: 2,
			RapidLoginWindow:      5 * time.Minute,
			MaxRapidLogins:        2,
		},
		TOTP: TOTPConfig{
			Issuer:            "LMS",
			Window:            1,
			SecretTTL:         365 * 24 * time.Hour,
			BackupCodeTTL:     30 * 24 * time.Hour,
			BackupCodeCount:   10,
			EnrollmentTTL:     10 * time.Minute,
			MaxCodeAttempts:   5,
			CodeAttemptWindow: 5 * time.Minute,

			FailOpenOnLookupError: true,
		},
		Token: TokenConfig{
			AccessTTL:       15 * time.Minute,
			RefreshTTL:      7 * 24 * time.Hour,
			SigningMethod:   "ed25519",
			VersionCacheTTL: 60 * time.Second,
		},
		Password: password.DefaultConfig(),
		Activity: ActivityConfig{
			Async:       true,
			BufferSize:  1024,
			DropIfFull:  true,
			SinkTimeout: 2 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Redis: RedisConfig{
			OpTimeout: 500 * time.Millisecond,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if c.Lockout.MaxFailedAttempts <= 0 {
		return errors.New("Lockout MaxFailedAttempts must be > 0")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}
	if c.Lockout.AttemptWindow <= 0 {
		return errors.New("Lockout AttemptWindow must be > 0")
	}
	if c.Lockout.MaxFailuresPerIP < 0 {
		return errors.New("Lockout MaxFailuresPerIP must be >= 0")
	}

	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}

	if c.Suspicious.Enabled {
		if c.Suspicious.MaxDistinctIPs <= 0 ||
			c.Suspicious.MaxDistinctUserAgents <= 0 ||
			c.Suspicious.MaxRapidLogins <= 0 {
			return errors.New("Suspicious limits must be > 0 when enabled")
		}
		if c.Suspicious.RapidLoginWindow <= 0 {
			return errors.New("Suspicious RapidLoginWindow must be > 0 when enabled")
		}
	}

	if strings.TrimSpace(c.TOTP.Issuer) == "" {
		return errors.New("TOTP Issuer is required")
	}
	if c.TOTP.Window < 0 || c.TOTP.Window > 3 {
		return errors.New("TOTP Window must be between 0 and 3")
	}
	if c.TOTP.SecretTTL <= 0 || c.TOTP.BackupCodeTTL <= 0 || c.TOTP.EnrollmentTTL <= 0 {
		return errors.New("TOTP TTLs must be > 0")
	}
	if c.TOTP.BackupCodeCount <= 0 {
		return errors.New("TOTP BackupCodeCount must be > 0")
	}
	if c.TOTP.MaxCodeAttempts <= 0 || c.TOTP.CodeAttemptWindow <= 0 {
		return errors.New("TOTP code attempt limits must be > 0")
	}

	if c.Token.AccessTTL <= 0 {
		return errors.New("Token AccessTTL must be > 0")
	}
	if c.Token.RefreshTTL < c.Token.AccessTTL {
		return errors.New("Token RefreshTTL must be >= AccessTTL")
	}
	switch c.Token.SigningMethod {
	case "ed25519":
		if len(c.Token.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
		if len(c.Token.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
	case "hs256":
		if len(c.Token.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	default:
		return errors.New("unsupported Token SigningMethod")
	}
	if c.Token.Leeway < 0 {
		return errors.New("Token Leeway must be >= 0")
	}
	if c.Token.VersionCacheTTL < 0 {
		return errors.New("Token VersionCacheTTL must be >= 0")
	}

	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}

	if c.Activity.Async && c.Activity.BufferSize <= 0 {
		return errors.New("Activity BufferSize must be > 0 when async")
	}

	if c.Redis.OpTimeout <= 0 {
		return errors.New("Redis OpTimeout must be > 0")
	}
	return nil
}
