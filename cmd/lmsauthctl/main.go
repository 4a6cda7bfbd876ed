package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrEthical07/lmsauth"
	"github.com/MrEthical07/lmsauth/internal/observability"
	"github.com/MrEthical07/lmsauth/store/postgres"
	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("lmsauthctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", envOrDefault("LMSAUTH_CONFIG", "lmsauth.toml"), "path to the TOML config file")
	fs.Usage = func() { usage(stderr) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		usage(stderr)
		return 2
	}

	name, rest := fs.Arg(0), fs.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		usage(stderr)
		return 2
	}

	logger := observability.NewLogger(stderr, envOrDefault("LOG_LEVEL", "warn"), envOrDefault("LOG_FORMAT", "console"))
	if err := observability.InitSentry(os.Getenv("SENTRY_DSN"), envOrDefault("APP_ENV", "development")); err != nil {
		logger.Error().Err(err).Msg("sentry init failed")
	}
	defer observability.FlushSentry()
	logger = logger.Hook(observability.NewSentryHook(nil))

	a := &app{out: stdout, log: logger}
	defer a.close()

	if cmd.needsEngine {
		if err := a.connect(ctx, *configPath); err != nil {
			logger.Error().Err(err).Msg("startup failed")
			return 1
		}
	}

	if err := cmd.run(ctx, a, rest); err != nil {
		logger.Error().Err(err).Str("command", name).Msg("command failed")
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

// accountAdmin is the part of the credential store that only the CLI uses.
type accountAdmin interface {
	Migrate(ctx context.Context) error
	CreateAccount(ctx context.Context, acct lmsauth.Account) error
	SetActive(ctx context.Context, userID string, active bool) error
}

type app struct {
	out     io.Writer
	log     zerolog.Logger
	engine  *lmsauth.Engine
	config  lmsauth.Config
	admin   accountAdmin
	closers []func()
}

func (a *app) connect(ctx context.Context, configPath string) error {
	cfg, err := lmsauth.LoadConfigFile(configPath)
	if err != nil {
		return err
	}
	a.config = cfg

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	db, err := postgres.Open(ctx, databaseURL)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() { _ = db.Close() })
	store := postgres.New(db)
	a.admin = store

	opts, err := redis.ParseURL(envOrDefault("REDIS_URL", "redis://localhost:6379/0"))
	if err != nil {
		return fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	a.closers = append(a.closers, func() { _ = rdb.Close() })

	// Synchronous activity so events are not lost when the process exits.
	cfg.Activity.Async = false
	engine, err := lmsauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(store).
		WithActivityLogger(lmsauth.NewZerologActivityLogger(a.log)).
		WithLogger(a.log).
		Build()
	if err != nil {
		return err
	}
	a.engine = engine
	a.closers = append(a.closers, engine.Close)
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, figure.NewFigure("lmsauthctl", "cybermedium", true).String())
	fmt.Fprintln(w, "usage: lmsauthctl [-config lmsauth.toml] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, name := range commandOrder {
		fmt.Fprintf(w, "  %-16s %s\n", name, commands[name].help)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
