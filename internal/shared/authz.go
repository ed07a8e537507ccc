package shared

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
)

// UserDirectory is the minimal store lookup the authorization gate needs.
type UserDirectory interface {
	// IsAdmin reports the admin flag for a live user, or ErrNotFound when
	// no user row exists for the email.
	IsAdmin(ctx context.Context, email string) (bool, error)
}

// Redirect is an authorization decision directing the caller elsewhere.
type Redirect struct {
	Location string
	Code     int
}

// Authz decides whether a request may proceed. Decisions are redirect
// directives, never errors; every protected route goes through these and
// handlers perform no checks of their own.
type Authz struct {
	Users  UserDirectory
	Logger *slog.Logger
}

// CheckAuth returns a redirect to the login page when the session holds no
// email or the store has no corresponding live user.
func (a Authz) CheckAuth(ctx context.Context, sess *Session) *Redirect {
	if sess == nil || sess.User() == "" {
		return &Redirect{Location: "/login", Code: http.StatusSeeOther}
	}
	if _, err := a.Users.IsAdmin(ctx, sess.User()); err != nil {
		if !errors.Is(err, ErrNotFound) && a.Logger != nil {
			a.Logger.Error("authz user lookup", slog.Any("error", err))
		}
		return &Redirect{Location: "/login", Code: http.StatusSeeOther}
	}
	return nil
}

// CheckAdmin applies CheckAuth and then requires the admin flag.
func (a Authz) CheckAdmin(ctx context.Context, sess *Session) *Redirect {
	if redirect := a.CheckAuth(ctx, sess); redirect != nil {
		return redirect
	}
	isAdmin, err := a.Users.IsAdmin(ctx, sess.User())
	if err != nil || !isAdmin {
		return &Redirect{Location: "/error?msg=Admin+access+required", Code: http.StatusSeeOther}
	}
	return nil
}

// RequireAuth guards routes that need a logged-in user.
func (a Authz) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := SessionFromContext(r.Context())
		if redirect := a.CheckAuth(r.Context(), sess); redirect != nil {
			http.Redirect(w, r, redirect.Location, redirect.Code)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin guards admin-only routes.
func (a Authz) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := SessionFromContext(r.Context())
		if redirect := a.CheckAdmin(r.Context(), sess); redirect != nil {
			http.Redirect(w, r, redirect.Location, redirect.Code)
			return
		}
		next.ServeHTTP(w, r)
	})
}
