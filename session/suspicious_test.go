package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSuspiciousMultipleIPs(t *testing.T) {
	reg, _, clock := newRegistryTest(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := reg.Create(ctx, "u1", "laptop", fmt.Sprintf("10.0.0.%d", i+1), "firefox")
		require.NoError(t, err)
		clock.Advance(10 * time.Minute)
	}

	got, err := reg.CheckSuspicious(ctx, "u1", "10.0.0.9", "firefox")
	require.NoError(t, err)
	require.True(t, got.Suspicious)
	require.Equal(t, ReasonMultipleIPs, got.Reason)
	require.Contains(t, got.Reason, "IP")
	require.True(t, got.NewIPAddress)
	require.False(t, got.NewUserAgent)
	require.Equal(t, 4, got.ActiveSessions)
}

func TestSuspiciousMultipleDevices(t *testing.T) {
	reg, _, clock := newRegistryTest(t)
	ctx := context.Background()

	ips := []string{"10.0.0.1", "10.0.0.2", "10.0.0.1"}
	agents := []string{"firefox", "chrome", "safari"}
	for i := range ips {
		_, err := reg.Create(ctx, "u1", "", ips[i], agents[i])
		require.NoError(t, err)
		clock.Advance(10 * time.Minute)
	}

	got, err := reg.CheckSuspicious(ctx, "u1", "10.0.0.1", "firefox")
	require.NoError(t, err)
	require.True(t, got.Suspicious)
	require.Equal(t, ReasonMultipleDevices, got.Reason)
	require.Contains(t, got.Reason, "devices")
}

func TestSuspiciousRapidLogins(t *testing.T) {
	reg, _, clock := newRegistryTest(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := reg.Create(ctx, "u1", "", "10.0.0.1", "firefox")
		require.NoError(t, err)
		clock.Advance(time.Minute)
	}

	got, err := reg.CheckSuspicious(ctx, "u1", "10.0.0.1", "firefox")
	require.NoError(t, err)
	require.True(t, got.Suspicious)
	require.Equal(t, ReasonRapidLogins, got.Reason)

	clock.Advance(5 * time.Minute)
	got, err = reg.CheckSuspicious(ctx, "u1", "10.0.0.1", "firefox")
	require.NoError(t, err)
	require.False(t, got.Suspicious)
	require.Empty(t, got.Reason)
}

func TestSuspiciousIgnoresInactiveSessions(t *testing.T) {
	reg, _, clock := newRegistryTest(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		rec, err := reg.Create(ctx, "u1", "", fmt.Sprintf("10.0.1.%d", i), "firefox")
		require.NoError(t, err)
		clock.Advance(10 * time.Minute)
		if i > 0 {
			_, err = reg.Invalidate(ctx, rec.ID)
			require.NoError(t, err)
		}
	}

	got, err := reg.CheckSuspicious(ctx, "u1", "10.0.1.0", "firefox")
	require.NoError(t, err)
	require.False(t, got.Suspicious)
	require.False(t, got.NewIPAddress)
	require.Equal(t, 1, got.ActiveSessions)
}

func TestSuspiciousNoSessions(t *testing.T) {
	reg, _, _ := newRegistryTest(t)

	got, err := reg.CheckSuspicious(context.Background(), "u1", "10.0.0.1", "firefox")
	require.NoError(t, err)
	require.False(t, got.Suspicious)
	require.True(t, got.NewIPAddress)
	require.True(t, got.NewUserAgent)
}
