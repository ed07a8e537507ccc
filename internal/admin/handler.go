// Package admin serves the admin dashboard: registered users, promotion,
// and allow-list management.
package admin

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/notegate/notegate/internal/shared"
	"github.com/notegate/notegate/internal/store"
	"github.com/notegate/notegate/internal/view"
)

// Handler wires the admin endpoints. Every route is behind RequireAdmin.
type Handler struct {
	logger    *slog.Logger
	store     *store.Store
	templates *view.Engine
	csrf      *shared.CSRFManager
	authz     shared.Authz
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, st *store.Store, templates *view.Engine, csrf *shared.CSRFManager, authz shared.Authz) *Handler {
	return &Handler{
		logger:    logger,
		store:     st,
		templates: templates,
		csrf:      csrf,
		authz:     authz,
		validator: validator.New(),
	}
}

// MountRoutes registers admin routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAdmin)
		r.Get("/", h.dashboard)
		r.Post("/emails", h.addEmail)
		r.Delete("/emails", h.removeEmail)
		r.Post("/users/promote", h.promoteUser)
	})
}

type allowedEmailVM struct {
	ID           string
	Email        string
	IsAdminGrant bool
}

var domIDReplacer = strings.NewReplacer("@", "-at-", ".", "-dot-")

func newAllowedEmailVM(entry store.AllowedEmail) allowedEmailVM {
	return allowedEmailVM{
		ID:           domIDReplacer.Replace(entry.Email),
		Email:        entry.Email,
		IsAdminGrant: entry.IsAdminGrant,
	}
}

type emailForm struct {
	Email string `validate:"required,email"`
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	entries, err := h.store.ListAllowedEmails(r.Context())
	if err != nil {
		h.logger.Error("list allowed emails", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	allowed := make([]allowedEmailVM, len(entries))
	for i, entry := range entries {
		allowed[i] = newAllowedEmailVM(entry)
	}
	activity, err := h.store.ListAuditEntries(r.Context(), 10)
	if err != nil {
		h.logger.Error("list audit entries", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(sess)
	var flash *shared.FlashMessage
	var user *store.User
	if sess != nil {
		flash = sess.PopFlash()
		user, _ = h.store.GetUserByEmail(r.Context(), sess.User())
	}
	data := view.TemplateData{
		Title:       "Admin",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		User:        user,
		Data:        map[string]any{"Users": users, "AllowedEmails": allowed, "Activity": activity},
	}
	if err := h.templates.Render(w, "pages/admin.html", data); err != nil {
		h.logger.Error("render admin", slog.Any("error", err))
	}
}

func (h *Handler) addEmail(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := emailForm{Email: r.PostFormValue("email")}
	if err := h.validator.Struct(form); err != nil {
		http.Error(w, "a valid email is required", http.StatusBadRequest)
		return
	}
	isAdminGrant := r.PostFormValue("is_admin_grant") != ""

	addedBy := ""
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		addedBy = sess.User()
	}

	err := h.store.AddAllowedEmail(r.Context(), form.Email, addedBy, isAdminGrant)
	if errors.Is(err, shared.ErrPersistenceWarning) {
		h.logger.Warn("allow-list entry committed without durable flush", slog.String("email", form.Email))
	} else if err != nil {
		h.logger.Error("add allowed email", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.recordAudit(r, "allow_email", form.Email)

	if r.Header.Get("HX-Request") != "true" {
		h.redirectWithFlash(w, r, "success", form.Email+" added to the allow-list")
		return
	}
	vm := newAllowedEmailVM(store.AllowedEmail{Email: store.NormalizeEmail(form.Email), IsAdminGrant: isAdminGrant})
	if err := h.templates.RenderFragment(w, "partials/allowed_email.html", vm); err != nil {
		h.logger.Error("render allowed email", slog.Any("error", err))
	}
}

func (h *Handler) removeEmail(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	err := h.store.RemoveAllowedEmail(r.Context(), email)
	if errors.Is(err, shared.ErrPersistenceWarning) {
		h.logger.Warn("allow-list removal committed without durable flush", slog.String("email", email))
	} else if err != nil {
		h.logger.Error("remove allowed email", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.recordAudit(r, "revoke_email", email)

	if r.Header.Get("HX-Request") != "true" {
		h.redirectWithFlash(w, r, "success", email+" removed from the allow-list")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) promoteUser(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	email := r.PostFormValue("email")

	err := h.store.SetAdmin(r.Context(), email, true)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		h.redirectWithFlash(w, r, "error", "No user found for "+email+"; they must log in first")
		return
	case errors.Is(err, shared.ErrPersistenceWarning):
		h.logger.Warn("promotion committed without durable flush", slog.String("email", email))
	case err != nil:
		h.logger.Error("set admin", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.recordAudit(r, "promote_user", email)
	h.redirectWithFlash(w, r, "success", email+" is now an admin")
}

// recordAudit is best effort; a failed audit write never fails the action.
func (h *Handler) recordAudit(r *http.Request, action, subject string) {
	actor := ""
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		actor = sess.User()
	}
	err := h.store.RecordAudit(r.Context(), actor, action, subject)
	if err != nil && !errors.Is(err, shared.ErrPersistenceWarning) {
		h.logger.Error("record audit", slog.Any("error", err), slog.String("action", action))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}
