package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/xtrntr/papertrade/internal/auth"
	"github.com/xtrntr/papertrade/internal/errs"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"message": message})
}

// badRequestErrors are reported to the client verbatim with status 400
var badRequestErrors = []error{
	auth.ErrUserExists,
	auth.ErrNoPendingSignup,
	auth.ErrOTPExpired,
	auth.ErrOTPMismatch,
	auth.ErrInvalidCredentials,
	auth.ErrInvalidResetCode,
}

// writeError maps err onto a status code and a JSON body. Unclassified
// errors are logged and reported as a generic server error.
func writeError(w http.ResponseWriter, r *http.Request, log zerolog.Logger, err error) {
	var ve *errs.ValidationError
	var fe *errs.InsufficientFundsError
	var he *errs.InsufficientHoldingsError

	switch {
	case errors.As(err, &ve):
		writeMessage(w, http.StatusBadRequest, ve.Message)
		return
	case errors.As(err, &fe):
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"message":   fe.Error(),
			"required":  fe.Required,
			"available": fe.Available,
		})
		return
	case errors.As(err, &he):
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"message": he.Error(),
			"symbol":  he.Symbol,
			"held":    he.Held,
		})
		return
	case errors.Is(err, auth.ErrInvalidToken):
		writeMessage(w, http.StatusUnauthorized, auth.ErrInvalidToken.Error())
		return
	case errors.Is(err, auth.ErrAccountNotFound):
		writeMessage(w, http.StatusNotFound, auth.ErrAccountNotFound.Error())
		return
	case errors.Is(err, errs.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "Not found")
		return
	}
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			writeMessage(w, http.StatusBadRequest, target.Error())
			return
		}
	}

	log.Error().
		Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("request_id", middleware.GetReqID(r.Context())).
		Msg("Request failed")
	writeMessage(w, http.StatusInternalServerError, "Server error")
}

// decode reads a JSON body into v
func decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		return errs.Invalid("body", "Invalid request body")
	}
	return nil
}
