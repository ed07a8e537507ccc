package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/notegate/notegate/internal/admin"
	"github.com/notegate/notegate/internal/notes"
	"github.com/notegate/notegate/internal/oauth"
	"github.com/notegate/notegate/internal/observability"
	"github.com/notegate/notegate/internal/platform/httpx"
	"github.com/notegate/notegate/internal/shared"
	"github.com/notegate/notegate/internal/store"
	"github.com/notegate/notegate/internal/view"
	"github.com/notegate/notegate/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Templates      *view.Engine
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Store          *store.Store
	Authz          shared.Authz
	OAuthHandler   *oauth.Handler
	NotesHandler   *notes.Handler
	AdminHandler   *admin.Handler
	Metrics        *observability.Metrics
}

const recentNotesLimit = 3

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Landing page for unauthenticated visitors.
	r.Get("/welcome", func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		csrfToken, _ := params.CSRFManager.EnsureToken(sess)
		var flash *shared.FlashMessage
		if sess != nil {
			flash = sess.PopFlash()
		}
		data := view.TemplateData{
			Title:     "Notegate",
			CSRFToken: csrfToken,
			Flash:     flash,
		}
		if err := params.Templates.Render(w, "pages/landing.html", data); err != nil {
			params.Logger.Error("render landing", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || sess.User() == "" {
			http.Redirect(w, r, "/welcome", http.StatusSeeOther)
			return
		}

		user, err := params.Store.GetUserByEmail(r.Context(), sess.User())
		if err != nil {
			params.SessionManager.Destroy(sess)
			http.Redirect(w, r, "/welcome", http.StatusSeeOther)
			return
		}

		userNotes, err := params.Store.ListNotes(r.Context(), user.ID)
		if err != nil {
			params.Logger.Error("list notes", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		recent := userNotes
		if len(recent) > recentNotesLimit {
			recent = recent[:recentNotesLimit]
		}

		csrfToken, _ := params.CSRFManager.EnsureToken(sess)
		data := view.TemplateData{
			Title:       "Notegate",
			CSRFToken:   csrfToken,
			Flash:       sess.PopFlash(),
			CurrentPath: r.URL.Path,
			User:        user,
			Data: map[string]any{
				"NoteCount":   len(userNotes),
				"RecentNotes": recent,
			},
		}
		if err := params.Templates.Render(w, "pages/home.html", data); err != nil {
			params.Logger.Error("render home", slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	})

	// Error page; message arrives via ?msg= so denial redirects stay stateless.
	r.Get("/error", func(w http.ResponseWriter, r *http.Request) {
		msg := r.URL.Query().Get("msg")
		if msg == "" {
			msg = "Something went wrong"
		}
		sess := shared.SessionFromContext(r.Context())
		csrfToken, _ := params.CSRFManager.EnsureToken(sess)
		var user *store.User
		if sess != nil && sess.User() != "" {
			user, _ = params.Store.GetUserByEmail(r.Context(), sess.User())
		}
		data := view.TemplateData{
			Title:     "Error",
			CSRFToken: csrfToken,
			User:      user,
			Data:      map[string]any{"Message": msg},
		}
		if err := params.Templates.Render(w, "pages/error.html", data); err != nil {
			params.Logger.Error("render error page", slog.Any("error", err))
			http.Error(w, msg, http.StatusInternalServerError)
		}
	})

	params.OAuthHandler.MountRoutes(r)
	r.Route("/notes", params.NotesHandler.MountRoutes)
	r.Route("/admin", params.AdminHandler.MountRoutes)

	r.Group(func(r chi.Router) {
		r.Use(params.Authz.RequireAuth)
		r.Get("/api/stats", func(w http.ResponseWriter, r *http.Request) {
			users, err := params.Store.ListUsers(r.Context())
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			allowed, err := params.Store.ListAllowedEmails(r.Context())
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			httpx.JSON(w, http.StatusOK, map[string]any{
				"users":          len(users),
				"allowed_emails": len(allowed),
			})
		})
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
