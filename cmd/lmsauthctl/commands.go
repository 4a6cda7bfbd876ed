package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/lmsauth"
	"github.com/MrEthical07/lmsauth/password"
	"github.com/MrEthical07/lmsauth/totp"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/peterh/liner"
)

type command struct {
	help        string
	needsEngine bool
	run         func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"migrate":        {help: "apply database migrations", needsEngine: true, run: runMigrate},
	"create-account": {help: "create an account (prompts for the password)", needsEngine: true, run: runCreateAccount},
	"set-active":     {help: "enable or disable an account: <user-id> true|false", needsEngine: true, run: runSetActive},
	"unlock":         {help: "clear the lockout of an identity", needsEngine: true, run: runUnlock},
	"lockout":        {help: "show the lockout state of an identity", needsEngine: true, run: runLockout},
	"sessions":       {help: "list the active sessions of a user", needsEngine: true, run: runSessions},
	"revoke-session": {help: "revoke one session: <user-id> <session-id>", needsEngine: true, run: runRevokeSession},
	"revoke-all":     {help: "log a user out everywhere", needsEngine: true, run: runRevokeAll},
	"twofactor":      {help: "show the two-factor state of a user", needsEngine: true, run: runTwoFactor},
	"report":         {help: "summarize the security posture of the configuration", needsEngine: true, run: runReport},
	"totp-code":      {help: "print the current code for a base32 secret", run: runTOTPCode},
}

var commandOrder = []string{
	"migrate", "create-account", "set-active", "unlock", "lockout", "sessions",
	"revoke-session", "revoke-all", "twofactor", "report", "totp-code",
}

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	warnStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

var errUsage = errors.New("wrong number of arguments")

func exactArgs(args []string, n int) error {
	if len(args) != n {
		return fmt.Errorf("%w: want %d, got %d", errUsage, n, len(args))
	}
	return nil
}

func runMigrate(ctx context.Context, a *app, args []string) error {
	if err := exactArgs(args, 0); err != nil {
		return err
	}
	if err := a.admin.Migrate(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "migrations applied")
	return nil
}

func runCreateAccount(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("create-account", flag.ContinueOnError)
	identity := fs.String("identity", "", "login identity (email)")
	id := fs.String("id", "", "user id (default: random uuid)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*identity) == "" {
		return errors.New("-identity is required")
	}
	if *id == "" {
		*id = uuid.NewString()
	}

	pw, err := promptPassword()
	if err != nil {
		return err
	}

	hasher, err := password.NewArgon2(a.config.Password)
	if err != nil {
		return err
	}
	digest, err := hasher.Hash(pw)
	if err != nil {
		return err
	}

	if err := a.admin.CreateAccount(ctx, lmsauth.Account{
		ID:             *id,
		Identity:       *identity,
		PasswordDigest: digest,
		Active:         true,
	}); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "created %s (%s)\n", *id, *identity)
	return nil
}

func promptPassword() (string, error) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	first, err := line.PasswordPrompt("password: ")
	if err != nil {
		return "", err
	}
	second, err := line.PasswordPrompt("repeat password: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errors.New("passwords do not match")
	}
	return first, nil
}

func runSetActive(ctx context.Context, a *app, args []string) error {
	if err := exactArgs(args, 2); err != nil {
		return err
	}
	var active bool
	switch args[1] {
	case "true":
		active = true
	case "false":
	default:
		return fmt.Errorf("%w: active must be true or false", errUsage)
	}
	if err := a.admin.SetActive(ctx, args[0], active); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s active=%t\n", args[0], active)
	return nil
}

func runUnlock(ctx context.Context, a *app, args []string) error {
	if err := exactArgs(args, 1); err != nil {
		return err
	}
	if err := a.engine.Unlock(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "unlocked %s\n", args[0])
	return nil
}

func runLockout(ctx context.Context, a *app, args []string) error {
	if err := exactArgs(args, 1); err != nil {
		return err
	}
	st, err := a.engine.LockoutStatus(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Fprintln(a.out, headingStyle.Render("lockout "+st.Identity))
	if st.Locked {
		fmt.Fprintf(a.out, "%s until %s\n", warnStyle.Render("LOCKED"), st.LockedUntil.Local().Format(time.RFC1123))
	}
	fmt.Fprintf(a.out, "failed attempts: %d\nremaining:       %d\n", st.Attempts, st.RemainingAttempts)
	return nil
}

func runSessions(ctx context.Context, a *app, args []string) error {
	if err := exactArgs(args, 1); err != nil {
		return err
	}
	sessions, err := a.engine.ListSessions(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Fprintln(a.out, headingStyle.Render(fmt.Sprintf("%d active session(s) for %s", len(sessions), args[0])))
	for _, s := range sessions {
		fmt.Fprintf(a.out, "%s  %-15s  %-10s  last seen %s  %s\n",
			s.SessionID,
			s.IPAddress,
			s.Device,
			s.LastActivity.Local().Format(time.RFC3339),
			s.UserAgent,
		)
	}
	return nil
}

func runRevokeSession(ctx context.Context, a *app, args []string) error {
	if err := exactArgs(args, 2); err != nil {
		return err
	}
	if err := a.engine.RevokeSession(ctx, args[0], args[1]); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "revoked session %s\n", args[1])
	return nil
}

func runRevokeAll(ctx context.Context, a *app, args []string) error {
	if err := exactArgs(args, 1); err != nil {
		return err
	}
	n, err := a.engine.LogoutAll(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "revoked every token of %s (%d session(s) closed)\n", args[0], n)
	return nil
}

func runTwoFactor(ctx context.Context, a *app, args []string) error {
	if err := exactArgs(args, 1); err != nil {
		return err
	}
	st, err := a.engine.TwoFactorStatus(ctx, args[0])
	if err != nil {
		return err
	}
	if !st.Enabled {
		fmt.Fprintln(a.out, "two-factor: disabled")
		return nil
	}
	fmt.Fprintf(a.out, "two-factor: enabled\nbackup codes left: %d\n", st.RemainingBackupCodes)
	return nil
}

func runReport(_ context.Context, a *app, args []string) error {
	if err := exactArgs(args, 0); err != nil {
		return err
	}
	r := a.engine.SecurityReport()

	fmt.Fprintln(a.out, headingStyle.Render("security report"))
	fmt.Fprintf(a.out, "signing: %s\n", r.SigningAlgorithm)
	fmt.Fprintf(a.out, "tokens: access %s, refresh %s, version cache %s\n", r.AccessTTL, r.RefreshTTL, r.VersionCacheTTL)
	fmt.Fprintf(a.out, "sessions: %s idle timeout\n", r.SessionTTL)
	fmt.Fprintf(a.out, "argon2id: m=%d t=%d p=%d\n", r.Argon2.Memory, r.Argon2.Time, r.Argon2.Parallelism)
	fmt.Fprintf(a.out, "lockout: %d failures, %s\n", r.LockoutThreshold, r.LockoutDuration)
	fmt.Fprintf(a.out, "client throttle: %t\n", r.ClientThrottleActive)
	fmt.Fprintf(a.out, "2fa code throttle: %t, replay protection: %t\n", r.CodeThrottleActive, r.ReplayProtection)
	fmt.Fprintf(a.out, "suspicious login detection: %t\n", r.SuspiciousDetection)

	for _, w := range r.Warnings {
		fmt.Fprintf(a.out, "%s %s\n", warnStyle.Render("WARN"), w)
	}
	return nil
}

func runTOTPCode(_ context.Context, a *app, args []string) error {
	if err := exactArgs(args, 1); err != nil {
		return err
	}
	now := time.Now()
	code, err := totp.GenerateCode(args[0], now)
	if err != nil {
		return err
	}
	left := totp.DefaultPeriod - time.Duration(now.Unix()%int64(totp.DefaultPeriod/time.Second))*time.Second
	fmt.Fprintf(a.out, "%s (valid %s)\n", code, left)
	return nil
}
