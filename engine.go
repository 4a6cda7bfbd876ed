package lmsauth

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/MrEthical07/lmsauth/internal/audit"
	"github.com/MrEthical07/lmsauth/internal/ledger"
	"github.com/MrEthical07/lmsauth/internal/limiters"
	"github.com/MrEthical07/lmsauth/internal/lockout"
	"github.com/MrEthical07/lmsauth/internal/twofactor"
	"github.com/MrEthical07/lmsauth/jwt"
	"github.com/MrEthical07/lmsauth/session"
	"github.com/rs/zerolog"
)

// Engine runs login, session, token and two-factor operations. All methods
// are safe for concurrent use; Redis is the only shared mutable state.
type Engine struct {
	config Config
	log    zerolog.Logger
	now    func() time.Time
	random io.Reader

	credentials  CredentialStore
	hasher       PasswordHasher
	lockout      *lockout.Guard
	ipFailures   *limiters.ClientIP
	codeAttempts *limiters.SecondFactor
	sessions     *session.Registry
	twoFactor    *twofactor.Store
	ledger       *ledger.Ledger
	tokens       *jwt.Manager
	audit        *audit.Dispatcher
	metrics      *Metrics
}

// Close flushes pending activity events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many activity events were dropped because the
// async buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) ready() error {
	if e == nil || e.credentials == nil || e.sessions == nil || e.tokens == nil {
		return ErrEngineNotReady
	}
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observe(id MetricID, start time.Time) {
	if e == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(id, time.Since(start))
}

// infra logs err and wraps it as ErrInfrastructure.
func (e *Engine) infra(op string, err error) error {
	e.metricInc(MetricInfrastructureError)
	e.log.Error().Err(err).Str("op", op).Msg("backend call failed")
	return infraError(err)
}

// credentialSource exposes the credential store as the ledger's source of
// truth.
type credentialSource struct {
	store CredentialStore
}

func (s credentialSource) TokenVersion(ctx context.Context, userID string) (uint64, error) {
	acct, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		return 0, err
	}
	if acct == nil {
		return 0, ErrNotFound
	}
	return acct.TokenVersion, nil
}

func (s credentialSource) PersistTokenVersion(ctx context.Context, userID string, version uint64) error {
	return s.store.PersistTokenVersion(ctx, userID, version)
}

// loadAccount maps store errors to ErrNotFound or ErrInfrastructure.
func (e *Engine) loadAccount(ctx context.Context, userID string) (*Account, error) {
	acct, err := e.credentials.GetAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, e.infra("get_account", err)
	}
	if acct == nil {
		return nil, ErrNotFound
	}
	return acct, nil
}

func toSessionInfo(rec *session.Record) SessionInfo {
	return SessionInfo{
		SessionID:    rec.ID,
		UserID:       rec.UserID,
		Device:       rec.Device,
		IPAddress:    rec.IPAddress,
		UserAgent:    rec.UserAgent,
		LoginTime:    rec.LoginTime,
		LastActivity: rec.LastActivity,
	}
}
