package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrAccessDenied indicates the email is not on the allow-list.
	ErrAccessDenied = errors.New("access denied")
	// ErrPersistenceWarning indicates the local commit succeeded but the
	// durable replica flush failed. Data is intact locally.
	ErrPersistenceWarning = errors.New("durable flush failed after commit")
	// ErrStorageUnavailable indicates the database file could not be opened.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// UserSafeMessage maps an error to a message that can be rendered to users
// without leaking storage-engine details.
func UserSafeMessage(err error) string {
	switch {
	case errors.Is(err, ErrAccessDenied):
		return "Access denied. Your email is not authorized for this application."
	case errors.Is(err, ErrNotFound):
		return "The requested record was not found."
	case errors.Is(err, ErrStorageUnavailable):
		return "Application storage is temporarily unavailable."
	default:
		return "Something went wrong. Please try again."
	}
}
