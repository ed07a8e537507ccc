package shared

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

// FlashMessage represents a one-time notification stored in session.
type FlashMessage struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// SessionManager issues cookie-held sessions. The whole session state lives
// in the browser cookie under an HMAC-SHA256 signature; nothing is written
// server-side.
type SessionManager struct {
	cookieName string
	ttl        time.Duration
	secure     bool
	secret     []byte
}

// Session holds per-request session data.
type Session struct {
	values    map[string]string
	userEmail string
	flashes   []FlashMessage
	isNew     bool
	dirty     bool
	destroyed bool
}

type sessionPayload struct {
	Values    map[string]string `json:"values"`
	UserEmail string            `json:"user_email"`
	Flashes   []FlashMessage    `json:"flashes,omitempty"`
	ExpiresAt int64             `json:"expires_at"`
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(cookieName, secret string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
		secret:     []byte(secret),
	}
}

// Load decodes the session cookie, or returns a fresh session when the
// cookie is absent, tampered with, or expired.
func (sm *SessionManager) Load(r *http.Request) *Session {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		return sm.newSession()
	}
	payload, err := sm.decode(cookie.Value)
	if err != nil {
		return sm.newSession()
	}
	if payload.ExpiresAt > 0 && time.Now().Unix() > payload.ExpiresAt {
		return sm.newSession()
	}
	return &Session{
		values:    payload.Values,
		userEmail: payload.UserEmail,
		flashes:   payload.Flashes,
	}
}

// Commit writes the session cookie when the session changed during the
// request. Destroyed sessions are expired immediately.
func (sm *SessionManager) Commit(w http.ResponseWriter, sess *Session) error {
	if sess == nil {
		return nil
	}

	if sess.destroyed {
		http.SetCookie(w, &http.Cookie{
			Name:     sm.cookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   sm.secure,
			SameSite: http.SameSiteLaxMode,
		})
		return nil
	}

	if !sess.dirty {
		return nil
	}

	payload := sessionPayload{
		Values:    sess.values,
		UserEmail: sess.userEmail,
		Flashes:   sess.flashes,
		ExpiresAt: time.Now().Add(sm.ttl).Unix(),
	}
	encoded, err := sm.encode(payload)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sm.cookieName,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(sm.ttl),
	})
	sess.dirty = false
	return nil
}

// Destroy marks the session for deletion.
func (sm *SessionManager) Destroy(sess *Session) {
	if sess == nil {
		return
	}
	sess.destroyed = true
}

// TTL exposes the configured session lifetime.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

// CookieName returns the cookie identifier used for sessions.
func (sm *SessionManager) CookieName() string {
	return sm.cookieName
}

// Session helpers

// Set stores a key-value pair.
func (s *Session) Set(key, value string) {
	if s.values == nil {
		s.values = make(map[string]string)
	}
	s.values[key] = value
	s.dirty = true
}

// Get retrieves a value.
func (s *Session) Get(key string) string {
	if s.values == nil {
		return ""
	}
	return s.values[key]
}

// Delete removes a value.
func (s *Session) Delete(key string) {
	if s.values == nil {
		return
	}
	delete(s.values, key)
	s.dirty = true
}

// SetUser associates the session with the authenticated user's email.
func (s *Session) SetUser(email string) {
	s.userEmail = email
	s.dirty = true
}

// User returns the authenticated user's email, empty when anonymous.
func (s *Session) User() string {
	return s.userEmail
}

// AddFlash queues a flash message.
func (s *Session) AddFlash(msg FlashMessage) {
	s.flashes = append(s.flashes, msg)
	s.dirty = true
}

// PopFlash retrieves and clears the oldest flash message.
func (s *Session) PopFlash() *FlashMessage {
	if len(s.flashes) == 0 {
		return nil
	}
	msg := s.flashes[0]
	s.flashes = s.flashes[1:]
	s.dirty = true
	return &msg
}

func (sm *SessionManager) newSession() *Session {
	return &Session{
		values: make(map[string]string),
		isNew:  true,
	}
}

func (sm *SessionManager) encode(payload sessionPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	body := base64.RawURLEncoding.EncodeToString(data)
	return body + "." + sm.sign(body), nil
}

func (sm *SessionManager) decode(value string) (*sessionPayload, error) {
	body, sig, ok := strings.Cut(value, ".")
	if !ok {
		return nil, errors.New("malformed session cookie")
	}
	if !hmac.Equal([]byte(sm.sign(body)), []byte(sig)) {
		return nil, errors.New("session signature mismatch")
	}
	data, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return nil, err
	}
	var payload sessionPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (sm *SessionManager) sign(body string) string {
	mac := hmac.New(sha256.New, sm.secret)
	_, _ = mac.Write([]byte(body))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
