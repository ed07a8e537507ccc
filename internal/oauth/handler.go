package oauth

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/notegate/notegate/internal/shared"
	"github.com/notegate/notegate/internal/store"
	"github.com/notegate/notegate/internal/view"
)

const stateSessionKey = "oauth_state"

// LoginMetrics counts login attempts by outcome. Satisfied by
// observability.Metrics.
type LoginMetrics interface {
	RecordLogin(outcome string)
}

// Handler wires HTTP endpoints for the login flow. The login redirect puts
// the flow in its pending state; only the provider callback moves it to
// authenticated or denied.
type Handler struct {
	logger    *slog.Logger
	store     *store.Store
	templates *view.Engine
	sessions  *shared.SessionManager
	csrf      *shared.CSRFManager
	provider  Provider
	metrics   LoginMetrics
}

// NewHandler constructs a Handler. A nil provider renders the login page
// with setup instructions instead of a redirect link.
func NewHandler(logger *slog.Logger, st *store.Store, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager, provider Provider) *Handler {
	return &Handler{
		logger:    logger,
		store:     st,
		templates: templates,
		sessions:  sessions,
		csrf:      csrf,
		provider:  provider,
	}
}

// SetMetrics attaches a login counter. Optional.
func (h *Handler) SetMetrics(metrics LoginMetrics) {
	h.metrics = metrics
}

func (h *Handler) recordLogin(outcome string) {
	if h.metrics != nil {
		h.metrics.RecordLogin(outcome)
	}
}

// MountRoutes registers login flow routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Get("/auth/callback", h.handleCallback)
	r.Get("/logout", h.handleLogout)
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil && sess.User() != "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	loginURL := ""
	if h.provider != nil && sess != nil {
		state := uuid.NewString()
		sess.Set(stateSessionKey, state)
		loginURL = h.provider.AuthURL(state)
	}

	csrfToken, _ := h.csrf.EnsureToken(sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	data := view.TemplateData{
		Title:       "Login",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        map[string]any{"LoginURL": loginURL},
	}
	if err := h.templates.Render(w, "pages/login.html", data); err != nil {
		h.logger.Error("render login", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if h.provider == nil || sess == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	expectedState := sess.Get(stateSessionKey)
	sess.Delete(stateSessionKey)
	if expectedState == "" || r.URL.Query().Get("state") != expectedState {
		h.redirectError(w, r, "Login session expired, please try again")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		h.redirectError(w, r, "Login was cancelled")
		return
	}

	identity, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("oauth exchange", slog.Any("error", err))
		h.recordLogin("error")
		h.redirectError(w, r, "Login failed, please try again")
		return
	}
	if !identity.EmailVerified {
		h.recordLogin("denied")
		h.redirectError(w, r, "Email not verified")
		return
	}

	name := identity.Name
	if name == "" {
		name = identity.Email
	}

	user, err := h.store.GetOrCreateUser(r.Context(), identity.Email, name)
	switch {
	case errors.Is(err, shared.ErrAccessDenied):
		h.recordLogin("denied")
		h.redirectError(w, r, "Access denied. Email "+identity.Email+" is not authorized.")
		return
	case errors.Is(err, shared.ErrPersistenceWarning):
		// Committed locally; the replica will catch up on the next flush.
		h.logger.Warn("login committed without durable flush", slog.String("email", user.Email))
	case err != nil:
		h.logger.Error("get or create user", slog.Any("error", err))
		h.recordLogin("error")
		h.redirectError(w, r, shared.UserSafeMessage(err))
		return
	}

	h.recordLogin("success")
	sess.SetUser(user.Email)
	sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Welcome back, " + user.Name})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		h.sessions.Destroy(sess)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) redirectError(w http.ResponseWriter, r *http.Request, msg string) {
	http.Redirect(w, r, "/error?msg="+url.QueryEscape(msg), http.StatusSeeOther)
}
