// Package postgres implements lmsauth.CredentialStore on PostgreSQL through
// database/sql and the pgx driver.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/MrEthical07/lmsauth"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Store reads and writes the lms_accounts table.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects with the pgx driver and pings the server.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate applies the embedded migrations that have not run yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS lms_schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("create lms_schema_migrations table: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migration files: %w", err)
	}

	versions := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			versions = append(versions, entry.Name())
		}
	}
	sort.Strings(versions)

	for _, version := range versions {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM lms_schema_migrations WHERE version = $1)`, version,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", version, err)
		}
		if exists {
			continue
		}

		script, err := migrationFiles.ReadFile("migrations/" + version)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", version, err)
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, string(script)); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO lms_schema_migrations (version) VALUES ($1)`, version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", version, err)
		}
	}
	return nil
}

// CreateAccount inserts acct.
func (s *Store) CreateAccount(ctx context.Context, acct lmsauth.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lms_accounts (id, identity, password_digest, active, token_version)
		VALUES ($1, $2, $3, $4, $5)
	`, acct.ID, strings.TrimSpace(acct.Identity), acct.PasswordDigest, acct.Active, int64(acct.TokenVersion))
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *Store) FindByIdentity(ctx context.Context, identity string) (*lmsauth.Account, error) {
	return s.queryAccount(ctx, `
		SELECT id, identity, password_digest, active, token_version
		FROM lms_accounts
		WHERE lower(identity) = lower($1)
	`, strings.TrimSpace(identity))
}

func (s *Store) GetAccount(ctx context.Context, userID string) (*lmsauth.Account, error) {
	return s.queryAccount(ctx, `
		SELECT id, identity, password_digest, active, token_version
		FROM lms_accounts
		WHERE id = $1
	`, userID)
}

func (s *Store) queryAccount(ctx context.Context, query string, arg string) (*lmsauth.Account, error) {
	var (
		acct    lmsauth.Account
		version int64
	)
	err := s.db.QueryRowContext(ctx, query, arg).
		Scan(&acct.ID, &acct.Identity, &acct.PasswordDigest, &acct.Active, &version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, lmsauth.ErrNotFound
		}
		return nil, fmt.Errorf("query account: %w", err)
	}
	acct.TokenVersion = uint64(version)
	return &acct, nil
}

func (s *Store) PersistTokenVersion(ctx context.Context, userID string, version uint64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE lms_accounts
		SET token_version = $2, updated_at = NOW()
		WHERE id = $1
	`, userID, int64(version))
	if err != nil {
		return fmt.Errorf("update token version: %w", err)
	}
	return requireRow(res)
}

// PersistPasswordDigest writes the digest and version in one statement.
func (s *Store) PersistPasswordDigest(ctx context.Context, userID, digest string, version uint64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE lms_accounts
		SET password_digest = $2, token_version = $3, updated_at = NOW()
		WHERE id = $1
	`, userID, digest, int64(version))
	if err != nil {
		return fmt.Errorf("update password digest: %w", err)
	}
	return requireRow(res)
}

// SetActive enables or disables an account.
func (s *Store) SetActive(ctx context.Context, userID string, active bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE lms_accounts SET active = $2, updated_at = NOW() WHERE id = $1
	`, userID, active)
	if err != nil {
		return fmt.Errorf("update active flag: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return lmsauth.ErrNotFound
	}
	return nil
}
