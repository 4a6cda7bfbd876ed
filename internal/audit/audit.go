package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event types emitted by the engine.
const (
	TypeLogin              = "login"
	TypeLogout             = "logout"
	TypeLogoutAll          = "logout_all"
	TypePasswordChange     = "password_change"
	TypeTokenRefresh       = "token_refresh"
	TypeSuspiciousActivity = "suspicious_activity"
	TypeTwoFactorEnabled   = "2fa_enabled"
	TypeTwoFactorDisabled  = "2fa_disabled"
	TypeBackupCodesRenewed = "2fa_backup_codes_regenerated"
	TypeSessionRevoked     = "session_revoked"
	TypeAccountUnlocked    = "account_unlocked"
)

// Status values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Event is one activity record.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      string            `json:"type"`
	Status    string            `json:"status"`
	UserID    string            `json:"user_id,omitempty"`
	Identity  string            `json:"identity,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	IPAddress string            `json:"ip_address,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink receives activity events. Returned errors are logged by the
// dispatcher and never reach the operation that produced the event.
type Sink interface {
	LogActivity(ctx context.Context, event Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event Event) error

func (f SinkFunc) LogActivity(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// NoOpSink drops events.
type NoOpSink struct{}

func (NoOpSink) LogActivity(context.Context, Event) error { return nil }

// ChannelSink writes events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) LogActivity(ctx context.Context, event Event) error {
	select {
	case s.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

func (s *JSONWriterSink) LogActivity(_ context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.writer.Write(data)
	return err
}

// LoggerSink writes events through a zerolog logger at info level, or warn
// for failures and suspicious activity.
type LoggerSink struct {
	log zerolog.Logger
}

func NewLoggerSink(logger zerolog.Logger) *LoggerSink {
	return &LoggerSink{log: logger}
}

func (s *LoggerSink) LogActivity(_ context.Context, event Event) error {
	e := s.log.Info()
	if event.Status == StatusFailure || event.Type == TypeSuspiciousActivity {
		e = s.log.Warn()
	}

	e = e.Time("at", event.Timestamp).
		Str("type", event.Type).
		Str("status", event.Status)
	if event.UserID != "" {
		e = e.Str("user_id", event.UserID)
	}
	if event.Identity != "" {
		e = e.Str("identity", event.Identity)
	}
	if event.SessionID != "" {
		e = e.Str("session_id", event.SessionID)
	}
	if event.IPAddress != "" {
		e = e.Str("ip", event.IPAddress)
	}
	if event.UserAgent != "" {
		e = e.Str("user_agent", event.UserAgent)
	}
	if event.Reason != "" {
		e = e.Str("reason", event.Reason)
	}
	if len(event.Metadata) > 0 {
		e = e.Interface("metadata", event.Metadata)
	}
	e.Msg("activity")
	return nil
}

// MultiSink fans an event out to every sink and returns the first error.
type MultiSink []Sink

func (m MultiSink) LogActivity(ctx context.Context, event Event) error {
	var first error
	for _, s := range m {
		if err := s.LogActivity(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
