package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
)

// NewLogger builds a zerolog logger writing to w. Format "console" produces
// human-readable output; anything else is JSON. An unknown level means info.
func NewLogger(w io.Writer, level, format string) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if strings.EqualFold(format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// InitSentry configures the global Sentry client. An empty dsn disables it.
func InitSentry(dsn, environment string) error {
	if dsn == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: true,
	})
}

// FlushSentry waits for buffered Sentry events.
func FlushSentry() {
	sentry.Flush(2 * time.Second)
}

// SentryHook forwards error and fatal log events to Sentry.
type SentryHook struct {
	hub *sentry.Hub
}

// NewSentryHook returns a hook bound to hub, or to the current hub when nil.
func NewSentryHook(hub *sentry.Hub) SentryHook {
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	return SentryHook{hub: hub}
}

func (h SentryHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	if level < zerolog.ErrorLevel || h.hub == nil || h.hub.Client() == nil {
		return
	}

	sentryLevel := sentry.LevelError
	if level >= zerolog.FatalLevel {
		sentryLevel = sentry.LevelFatal
	}

	h.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentryLevel)
		h.hub.CaptureMessage(msg)
	})
}
