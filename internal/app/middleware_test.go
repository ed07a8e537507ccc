package app_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/notegate/notegate/internal/app"
	"github.com/notegate/notegate/internal/shared"
	_ "github.com/notegate/notegate/testing"
)

func newStack(t *testing.T) (http.Handler, *shared.SessionManager, *shared.CSRFManager) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessionManager := shared.NewSessionManager("test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")

	r := chi.NewRouter()
	for _, mw := range app.MiddlewareStack(app.MiddlewareConfig{
		Logger:         logger,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
	}) {
		r.Use(mw)
	}
	r.Get("/prime", func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		token, _ := csrfManager.EnsureToken(sess)
		_, _ = w.Write([]byte(token))
	})
	r.Post("/submit", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r, sessionManager, csrfManager
}

func sessionCookie(t *testing.T, res *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range res.Result().Cookies() {
		if c.Name == "test_session" {
			return c
		}
	}
	t.Fatal("expected session cookie")
	return nil
}

func TestSessionCookieCommittedBeforeBody(t *testing.T) {
	router, _, _ := newStack(t)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/prime", nil))

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	cookie := sessionCookie(t, res)
	if cookie.Value == "" {
		t.Fatal("expected non-empty session cookie")
	}
}

func TestPostWithoutCSRFTokenIsRejected(t *testing.T) {
	router, _, _ := newStack(t)

	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/submit", nil))

	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", res.Code)
	}
}

func TestPostWithValidCSRFTokenPasses(t *testing.T) {
	router, _, _ := newStack(t)

	primeRes := httptest.NewRecorder()
	router.ServeHTTP(primeRes, httptest.NewRequest(http.MethodGet, "/prime", nil))
	token := primeRes.Body.String()
	cookie := sessionCookie(t, primeRes)

	form := url.Values{shared.CSRFFormField: {token}}
	req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}
}

func TestPostWithCSRFHeaderPasses(t *testing.T) {
	router, _, _ := newStack(t)

	primeRes := httptest.NewRecorder()
	router.ServeHTTP(primeRes, httptest.NewRequest(http.MethodGet, "/prime", nil))
	token := primeRes.Body.String()
	cookie := sessionCookie(t, primeRes)

	req := httptest.NewRequest(http.MethodPost, "/submit", nil)
	req.Header.Set("X-CSRF-Token", token)
	req.AddCookie(cookie)
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}
}
