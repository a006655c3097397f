// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/coursebook-app/coursebook/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
// Not-found conditions on auth flows are deliberately folded into a
// generic 401 upstream; this mapping handles everything surfaced as-is.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrDomainNotAllowed):
		Problem(w, http.StatusForbidden, "Domain Not Allowed", err.Error())
	case errors.Is(err, shared.ErrEmailTaken),
		errors.Is(err, shared.ErrUsernameTaken),
		errors.Is(err, shared.ErrRegistrationPending),
		errors.Is(err, shared.ErrResetPending):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
