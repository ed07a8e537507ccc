// Package cli offers operational helpers run from the notegate binary.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/notegate/notegate/internal/shared"
	"github.com/notegate/notegate/internal/store"
)

// AdminCLI manages the allow-list and user roles without going through HTTP.
type AdminCLI struct {
	Store  *store.Store
	Logger *slog.Logger
}

// NewAdminCLI constructs a new helper instance.
func NewAdminCLI(st *store.Store, logger *slog.Logger) *AdminCLI {
	return &AdminCLI{Store: st, Logger: logger}
}

// InitAdmin grants admin access to an email. The email is added to the
// allow-list with an admin grant; if the user has already logged in, their
// role is promoted immediately.
func (c *AdminCLI) InitAdmin(ctx context.Context, email string) error {
	if email == "" {
		return errors.New("cli: email is required")
	}
	err := c.Store.AddAllowedEmail(ctx, email, "cli", true)
	if err != nil && !errors.Is(err, shared.ErrPersistenceWarning) {
		return fmt.Errorf("cli: add allowed email: %w", err)
	}
	if errors.Is(err, shared.ErrPersistenceWarning) {
		c.Logger.Warn("allow-list entry committed without durable flush", slog.String("email", email))
	}

	err = c.Store.SetAdmin(ctx, email, true)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		c.Logger.Info("admin grant staged; user will become admin on first login", slog.String("email", email))
		return nil
	case errors.Is(err, shared.ErrPersistenceWarning):
		c.Logger.Warn("promotion committed without durable flush", slog.String("email", email))
		return nil
	case err != nil:
		return fmt.Errorf("cli: set admin: %w", err)
	}
	c.Logger.Info("existing user promoted to admin", slog.String("email", email))
	return nil
}

// ListUsers prints registered users in a table.
func (c *AdminCLI) ListUsers(ctx context.Context, w io.Writer) error {
	users, err := c.Store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("cli: list users: %w", err)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tEMAIL\tNAME\tADMIN\tCREATED\tLAST LOGIN")
	for _, u := range users {
		lastLogin := "never"
		if u.LastLoginAt != nil {
			lastLogin = u.LastLoginAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%s\t%s\n",
			u.ID, u.Email, u.Name, u.IsAdmin,
			u.CreatedAt.Format("2006-01-02 15:04"), lastLogin)
	}
	return tw.Flush()
}

// MakeAdmin promotes an already-registered user.
func (c *AdminCLI) MakeAdmin(ctx context.Context, email string) error {
	if email == "" {
		return errors.New("cli: email is required")
	}
	err := c.Store.SetAdmin(ctx, email, true)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return fmt.Errorf("cli: no user found for %s; they must log in first", email)
	case errors.Is(err, shared.ErrPersistenceWarning):
		c.Logger.Warn("promotion committed without durable flush", slog.String("email", email))
		return nil
	case err != nil:
		return fmt.Errorf("cli: set admin: %w", err)
	}
	c.Logger.Info("user promoted to admin", slog.String("email", email))
	return nil
}
