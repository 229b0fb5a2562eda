package response

import (
	"errors"
	"net/http"

	"github.com/oskar/fitness/internal/core"
)

// WriteOAuthError writes an RFC 6749 error body with the status the error
// code calls for: 401 for invalid_client, 500 for server_error, 400 for the
// rest. Anything that is not an OAuthError is reported as an opaque
// server_error so internal details never leak.
func WriteOAuthError(w http.ResponseWriter, err error) {
	var oerr *core.OAuthError
	if !errors.As(err, &oerr) {
		oerr = &core.OAuthError{Code: core.ErrCodeServerError, Description: "Internal server error"}
	}

	status := http.StatusBadRequest
	switch oerr.Code {
	case core.ErrCodeInvalidClient:
		w.Header().Set("WWW-Authenticate", `Basic realm="oauth2"`)
		status = http.StatusUnauthorized
	case core.ErrCodeServerError:
		status = http.StatusInternalServerError
	}

	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, status, oerr)
}
