// Package notes serves the notes pages and their htmx fragment endpoints.
package notes

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/notegate/notegate/internal/shared"
	"github.com/notegate/notegate/internal/store"
	"github.com/notegate/notegate/internal/view"
)

// Handler wires the notes endpoints.
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

// MountRoutes registers notes routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAuth)
		r.Get("/", h.showNotes)
		r.Post("/", h.addNote)
		r.Delete("/{noteID}", h.deleteNote)
	})
}

type noteForm struct {
	Content string `validate:"required,max=10000"`
}

func (h *Handler) showNotes(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	userNotes, err := h.store.ListNotes(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("list notes", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	data := view.TemplateData{
		Title:       "My Notes",
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		User:        user,
		Data:        map[string]any{"Notes": userNotes},
	}
	if err := h.templates.Render(w, "pages/notes.html", data); err != nil {
		h.logger.Error("render notes", slog.Any("error", err))
	}
}

func (h *Handler) addNote(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	form := noteForm{Content: r.PostFormValue("content")}
	if err := h.validator.Struct(form); err != nil {
		http.Error(w, "note content is required", http.StatusBadRequest)
		return
	}

	note, err := h.store.AddNote(r.Context(), user.ID, form.Content)
	if errors.Is(err, shared.ErrPersistenceWarning) {
		h.logger.Warn("note committed without durable flush", slog.Int64("note_id", note.ID))
	} else if err != nil {
		h.logger.Error("add note", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	// htmx inserts the returned card; plain form posts go back to the page.
	if r.Header.Get("HX-Request") != "true" {
		http.Redirect(w, r, "/notes", http.StatusSeeOther)
		return
	}
	if err := h.templates.RenderFragment(w, "partials/note_card.html", note); err != nil {
		h.logger.Error("render note card", slog.Any("error", err))
	}
}

func (h *Handler) deleteNote(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	noteID, err := strconv.ParseInt(chi.URLParam(r, "noteID"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	deleted, err := h.store.DeleteNote(r.Context(), noteID, user.ID)
	if errors.Is(err, shared.ErrPersistenceWarning) {
		h.logger.Warn("delete committed without durable flush", slog.Int64("note_id", noteID))
	} else if err != nil {
		h.logger.Error("delete note", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if !deleted {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	if r.Header.Get("HX-Request") != "true" {
		http.Redirect(w, r, "/notes", http.StatusSeeOther)
		return
	}
	// Empty body: htmx removes the swapped element.
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (*store.User, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.User() == "" {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return nil, false
	}
	user, err := h.store.GetUserByEmail(r.Context(), sess.User())
	if err != nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return nil, false
	}
	return user, true
}
