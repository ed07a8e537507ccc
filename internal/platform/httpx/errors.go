package httpx

import (
	"errors"
	"net/http"

	"github.com/notegate/notegate/internal/shared"
)

// RespondError maps domain errors to HTTP problem responses. Persistence
// warnings never reach this path; they are logged and treated as success.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrAccessDenied):
		Problem(w, http.StatusForbidden, "Access Denied", shared.UserSafeMessage(err))
	case errors.Is(err, shared.ErrStorageUnavailable):
		Problem(w, http.StatusInternalServerError, "Storage Unavailable", shared.UserSafeMessage(err))
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
