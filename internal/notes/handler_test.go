package notes_test

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	_ "modernc.org/sqlite"

	"github.com/notegate/notegate/internal/notes"
	"github.com/notegate/notegate/internal/shared"
	"github.com/notegate/notegate/internal/store"
	"github.com/notegate/notegate/internal/view"
	_ "github.com/notegate/notegate/testing"
)

var notesDBCounter int

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	notesDBCounter++
	handle, err := sql.Open("sqlite", fmt.Sprintf("file:notestest%d?mode=memory&cache=shared", notesDBCounter))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	handle.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = handle.Close() })

	st := store.New(handle, nil, nil)
	if err := st.InitSchema(context.Background()); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return st
}

func seedUser(t *testing.T, st *store.Store, email string) *store.User {
	t.Helper()
	ctx := context.Background()
	if err := st.AddAllowedEmail(ctx, email, "cli", false); err != nil {
		t.Fatalf("seed allow-list: %v", err)
	}
	user, err := st.GetOrCreateUser(ctx, email, "Test User")
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func newNotesRouter(t *testing.T, st *store.Store) (chi.Router, *shared.SessionManager) {
	t.Helper()
	sessionManager := shared.NewSessionManager("test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	templates, err := view.NewEngine()
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	authz := shared.Authz{Users: st, Logger: logger}
	handler := notes.NewHandler(logger, st, templates, csrfManager, authz)

	r := chi.NewRouter()
	r.Route("/notes", handler.MountRoutes)
	return r, sessionManager
}

func authedRequest(sessionManager *shared.SessionManager, method, target string, body io.Reader, email string) *http.Request {
	req := httptest.NewRequest(method, target, body)
	sess := sessionManager.Load(req)
	sess.SetUser(email)
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func TestShowNotesRequiresLogin(t *testing.T) {
	router, _ := newNotesRouter(t, newTestStore(t))

	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", res.Code)
	}
	if loc := res.Header().Get("Location"); loc != "/login" {
		t.Fatalf("expected /login, got %q", loc)
	}
}

func TestShowNotesRendersOwnNotes(t *testing.T) {
	st := newTestStore(t)
	user := seedUser(t, st, "writer@example.com")
	other := seedUser(t, st, "other@example.com")
	if _, err := st.AddNote(context.Background(), user.ID, "my visible note"); err != nil {
		t.Fatalf("add note: %v", err)
	}
	if _, err := st.AddNote(context.Background(), other.ID, "someone else's note"); err != nil {
		t.Fatalf("add note: %v", err)
	}
	router, sessionManager := newNotesRouter(t, st)

	req := authedRequest(sessionManager, http.MethodGet, "/notes", nil, "writer@example.com")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.Code)
	}
	body := res.Body.String()
	if !strings.Contains(body, "my visible note") {
		t.Fatal("expected own note in page")
	}
	if strings.Contains(body, "someone else's note") {
		t.Fatal("expected other users' notes to stay hidden")
	}
}

func TestAddNoteReturnsFragmentForHTMX(t *testing.T) {
	st := newTestStore(t)
	seedUser(t, st, "writer@example.com")
	router, sessionManager := newNotesRouter(t, st)

	form := url.Values{"content": {"fresh note"}}
	req := authedRequest(sessionManager, http.MethodPost, "/notes", strings.NewReader(form.Encode()), "writer@example.com")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HX-Request", "true")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "fresh note") {
		t.Fatal("expected note card fragment")
	}
}

func TestAddNoteRedirectsPlainForm(t *testing.T) {
	st := newTestStore(t)
	seedUser(t, st, "writer@example.com")
	router, sessionManager := newNotesRouter(t, st)

	form := url.Values{"content": {"plain form note"}}
	req := authedRequest(sessionManager, http.MethodPost, "/notes", strings.NewReader(form.Encode()), "writer@example.com")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", res.Code)
	}
	if loc := res.Header().Get("Location"); loc != "/notes" {
		t.Fatalf("expected /notes, got %q", loc)
	}
}

func TestAddNoteRejectsEmptyContent(t *testing.T) {
	st := newTestStore(t)
	seedUser(t, st, "writer@example.com")
	router, sessionManager := newNotesRouter(t, st)

	form := url.Values{"content": {""}}
	req := authedRequest(sessionManager, http.MethodPost, "/notes", strings.NewReader(form.Encode()), "writer@example.com")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestDeleteNote(t *testing.T) {
	st := newTestStore(t)
	user := seedUser(t, st, "writer@example.com")
	seedUser(t, st, "intruder@example.com")
	note, err := st.AddNote(context.Background(), user.ID, "doomed")
	if err != nil {
		t.Fatalf("add note: %v", err)
	}
	router, sessionManager := newNotesRouter(t, st)

	// Someone else's delete hits 404; the note survives.
	req := authedRequest(sessionManager, http.MethodDelete, fmt.Sprintf("/notes/%d", note.ID), nil, "intruder@example.com")
	req.Header.Set("HX-Request", "true")
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign note, got %d", res.Code)
	}

	req = authedRequest(sessionManager, http.MethodDelete, fmt.Sprintf("/notes/%d", note.ID), nil, "writer@example.com")
	req.Header.Set("HX-Request", "true")
	res = httptest.NewRecorder()
	router.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}

	remaining, err := st.ListNotes(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("list notes: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected note to be gone, found %d", len(remaining))
	}
}
