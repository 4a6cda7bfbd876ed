package observability

import (
	"bytes"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn", "json")

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), `"message":"shown"`)

	buf.Reset()
	fallback := NewLogger(&buf, "bogus", "json")
	fallback.Info().Msg("default level")
	require.Contains(t, buf.String(), "default level")
}

func TestNewLoggerConsole(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "info", "console")
	logger.Info().Str("k", "v").Msg("hello")
	require.Contains(t, buf.String(), "hello")
	require.NotContains(t, buf.String(), `"message"`)
}

func TestInitSentryEmptyDSNIsNoop(t *testing.T) {
	require.NoError(t, InitSentry("", "test"))
}

func TestSentryHookIgnoresBelowError(t *testing.T) {
	hub := sentry.NewHub(nil, sentry.NewScope())
	logger := zerolog.New(&bytes.Buffer{}).Hook(NewSentryHook(hub))

	// No client bound: the hook must not panic.
	logger.Error().Msg("no client")
	logger.Warn().Msg("warn")
}

func TestSentryHookCapturesErrors(t *testing.T) {
	var captured []*sentry.Event
	client, err := sentry.NewClient(sentry.ClientOptions{
		BeforeSend: func(e *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			captured = append(captured, e)
			return nil
		},
	})
	require.NoError(t, err)

	hub := sentry.NewHub(client, sentry.NewScope())
	logger := zerolog.New(&bytes.Buffer{}).Hook(NewSentryHook(hub))

	logger.Warn().Msg("not forwarded")
	logger.Error().Msg("redis unreachable")

	require.Len(t, captured, 1)
	require.Equal(t, "redis unreachable", captured[0].Message)
	require.Equal(t, sentry.LevelError, captured[0].Level)
}
