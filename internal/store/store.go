// Package store owns the allowed_emails, users and notes tables in the
// embedded SQLite database. Every mutation commits a single transaction and
// then flushes the storage volume to its durable replica.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/notegate/notegate/internal/platform/db"
	"github.com/notegate/notegate/internal/shared"
	"github.com/notegate/notegate/internal/volsync"
)

// Store provides query and mutation operations over the database file.
type Store struct {
	handle *sql.DB
	syncer volsync.Syncer
	logger *slog.Logger
}

// New constructs a Store. The syncer is invoked after every committed
// mutation; pass volsync.Noop{} when no replica is configured.
func New(handle *sql.DB, syncer volsync.Syncer, logger *slog.Logger) *Store {
	if syncer == nil {
		syncer = volsync.Noop{}
	}
	return &Store{handle: handle, syncer: syncer, logger: logger}
}

// InitSchema idempotently ensures all tables exist. Safe to call on every
// process start; schema changes stay additive and guarded by existence
// checks.
func (s *Store) InitSchema(ctx context.Context) error {
	return s.mutate(ctx, func(ctx context.Context, tx db.DBTX) error {
		statements := []string{
			`CREATE TABLE IF NOT EXISTS allowed_emails (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				email TEXT UNIQUE NOT NULL,
				added_by TEXT,
				added_at TIMESTAMP NOT NULL,
				is_admin_grant BOOLEAN NOT NULL DEFAULT FALSE
			)`,
			`CREATE TABLE IF NOT EXISTS users (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				email TEXT UNIQUE NOT NULL,
				name TEXT NOT NULL,
				is_admin BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMP NOT NULL,
				last_login_at TIMESTAMP
			)`,
			`CREATE TABLE IF NOT EXISTS notes (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id INTEGER NOT NULL REFERENCES users(id),
				content TEXT NOT NULL,
				created_at TIMESTAMP NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS audit_logs (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				actor_email TEXT NOT NULL,
				action TEXT NOT NULL,
				subject TEXT NOT NULL,
				occurred_at TIMESTAMP NOT NULL
			)`,
		}
		for _, stmt := range statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("store: init schema: %w", err)
			}
		}
		return nil
	})
}

// IsEmailAllowed reports whether the email is on the allow-list.
func (s *Store) IsEmailAllowed(ctx context.Context, email string) (bool, error) {
	var one int
	err := s.handle.QueryRowContext(ctx,
		`SELECT 1 FROM allowed_emails WHERE email = ?`, NormalizeEmail(email)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: check allow-list: %w", err)
	}
	return true, nil
}

// GetOrCreateUser is the single authorization chokepoint for account
// creation. An existing user gets name and last_login_at refreshed; a new
// user is created only when the email is allow-listed, with is_admin seeded
// from the entry's admin-grant flag. The concurrent first-login race is
// resolved by the unique email constraint: the losing writer retries as a
// read instead of creating a second row.
func (s *Store) GetOrCreateUser(ctx context.Context, email, name string) (*User, error) {
	email = NormalizeEmail(email)

	user, err := s.loginUser(ctx, email, name)
	if err != nil && isUniqueViolation(err) {
		// Lost the race against a concurrent first login for the same
		// email; the row exists now.
		user, err = s.touchUser(ctx, email, name)
	}
	return user, err
}

func (s *Store) loginUser(ctx context.Context, email, name string) (*User, error) {
	var user *User
	err := s.mutate(ctx, func(ctx context.Context, tx db.DBTX) error {
		existing, err := scanUser(tx.QueryRowContext(ctx, selectUserSQL+` WHERE email = ?`, email))
		switch {
		case err == nil:
			now := time.Now().UTC()
			if _, err := tx.ExecContext(ctx,
				`UPDATE users SET name = ?, last_login_at = ? WHERE id = ?`, name, now, existing.ID); err != nil {
				return fmt.Errorf("store: refresh login: %w", err)
			}
			existing.Name = name
			existing.LastLoginAt = &now
			user = existing
			return nil
		case errors.Is(err, sql.ErrNoRows):
			// The allow-list gates account creation only; existing users
			// keep logging in even after their entry is removed.
			var isAdminGrant bool
			err := tx.QueryRowContext(ctx,
				`SELECT is_admin_grant FROM allowed_emails WHERE email = ?`, email).Scan(&isAdminGrant)
			if errors.Is(err, sql.ErrNoRows) {
				return shared.ErrAccessDenied
			}
			if err != nil {
				return fmt.Errorf("store: check allow-list: %w", err)
			}

			now := time.Now().UTC()
			result, err := tx.ExecContext(ctx,
				`INSERT INTO users (email, name, is_admin, created_at, last_login_at) VALUES (?, ?, ?, ?, ?)`,
				email, name, isAdminGrant, now, now)
			if err != nil {
				return err
			}
			id, err := result.LastInsertId()
			if err != nil {
				return fmt.Errorf("store: new user id: %w", err)
			}
			user = &User{
				ID:          id,
				Email:       email,
				Name:        name,
				IsAdmin:     isAdminGrant,
				CreatedAt:   now,
				LastLoginAt: &now,
			}
			return nil
		default:
			return fmt.Errorf("store: lookup user: %w", err)
		}
	})
	return user, err
}

func (s *Store) touchUser(ctx context.Context, email, name string) (*User, error) {
	var user *User
	err := s.mutate(ctx, func(ctx context.Context, tx db.DBTX) error {
		existing, err := scanUser(tx.QueryRowContext(ctx, selectUserSQL+` WHERE email = ?`, email))
		if errors.Is(err, sql.ErrNoRows) {
			return shared.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("store: lookup user: %w", err)
		}
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET name = ?, last_login_at = ? WHERE id = ?`, name, now, existing.ID); err != nil {
			return fmt.Errorf("store: refresh login: %w", err)
		}
		existing.Name = name
		existing.LastLoginAt = &now
		user = existing
		return nil
	})
	return user, err
}

// AddAllowedEmail idempotently upserts an allow-list entry.
func (s *Store) AddAllowedEmail(ctx context.Context, email, addedBy string, isAdminGrant bool) error {
	return s.mutate(ctx, func(ctx context.Context, tx db.DBTX) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO allowed_emails (email, added_by, added_at, is_admin_grant) VALUES (?, ?, ?, ?)
			 ON CONFLICT(email) DO NOTHING`,
			NormalizeEmail(email), addedBy, time.Now().UTC(), isAdminGrant)
		if err != nil {
			return fmt.Errorf("store: add allowed email: %w", err)
		}
		return nil
	})
}

// RemoveAllowedEmail deletes an allow-list entry. Existing user rows are
// unaffected; the allow-list gates account creation only.
func (s *Store) RemoveAllowedEmail(ctx context.Context, email string) error {
	return s.mutate(ctx, func(ctx context.Context, tx db.DBTX) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM allowed_emails WHERE email = ?`, NormalizeEmail(email)); err != nil {
			return fmt.Errorf("store: remove allowed email: %w", err)
		}
		return nil
	})
}

// ListAllowedEmails returns the allow-list ordered by insertion time.
func (s *Store) ListAllowedEmails(ctx context.Context) ([]AllowedEmail, error) {
	rows, err := s.handle.QueryContext(ctx,
		`SELECT email, COALESCE(added_by, ''), added_at, is_admin_grant FROM allowed_emails ORDER BY added_at, id`)
	if err != nil {
		return nil, fmt.Errorf("store: list allowed emails: %w", err)
	}
	defer rows.Close()

	var entries []AllowedEmail
	for rows.Next() {
		var entry AllowedEmail
		if err := rows.Scan(&entry.Email, &entry.AddedBy, &entry.AddedAt, &entry.IsAdminGrant); err != nil {
			return nil, fmt.Errorf("store: scan allowed email: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// GetUserByEmail fetches a user, or ErrNotFound.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	user, err := scanUser(s.handle.QueryRowContext(ctx, selectUserSQL+` WHERE email = ?`, NormalizeEmail(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get user: %w", err)
	}
	return user, nil
}

// IsAdmin reports the admin flag for a live user. Implements the
// authorization gate's directory lookup.
func (s *Store) IsAdmin(ctx context.Context, email string) (bool, error) {
	user, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		return false, err
	}
	return user.IsAdmin, nil
}

// ListUsers returns all users ordered by creation time ascending.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.handle.QueryContext(ctx, selectUserSQL+` ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("store: list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		user, err := scanUserRows(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// SetAdmin flips the admin flag, failing with ErrNotFound when no user row
// exists for the email.
func (s *Store) SetAdmin(ctx context.Context, email string, value bool) error {
	return s.mutate(ctx, func(ctx context.Context, tx db.DBTX) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE users SET is_admin = ? WHERE email = ?`, value, NormalizeEmail(email))
		if err != nil {
			return fmt.Errorf("store: set admin: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("store: set admin: %w", err)
		}
		if affected == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

const selectUserSQL = `SELECT id, email, name, is_admin, created_at, last_login_at FROM users`

// mutate runs fn inside a single transaction that commits before returning
// and, on commit, triggers the durability flush. On error the transaction
// rolls back and no flush occurs. A flush failure after a successful commit
// is logged and surfaced as a persistence warning, never rolled back.
func (s *Store) mutate(ctx context.Context, fn func(ctx context.Context, tx db.DBTX) error) error {
	if err := db.WithTx(ctx, s.handle, fn); err != nil {
		return err
	}
	if err := s.syncer.Sync(ctx); err != nil {
		if s.logger != nil {
			s.logger.Warn("durable flush failed after commit", slog.Any("error", err))
		}
		return fmt.Errorf("%w: %v", shared.ErrPersistenceWarning, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var user User
	var lastLogin sql.NullTime
	if err := row.Scan(&user.ID, &user.Email, &user.Name, &user.IsAdmin, &user.CreatedAt, &lastLogin); err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		user.LastLoginAt = &lastLogin.Time
	}
	return &user, nil
}

func scanUserRows(rows *sql.Rows) (*User, error) {
	user, err := scanUser(rows)
	if err != nil {
		return nil, fmt.Errorf("store: scan user: %w", err)
	}
	return user, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
