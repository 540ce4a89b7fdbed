package web

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/neulbom/roster/internal/onboard"
	"github.com/neulbom/roster/internal/roster"
	"github.com/neulbom/roster/internal/store"
)

// errorResponse is the JSON body returned for every failed request.
type errorResponse struct {
	Error      string             `json:"error"`
	Violations []roster.Violation `json:"violations,omitempty"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	slog.Info("request failed", "status", status, "error", message)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":%q}`+"\n", message)
}

// writeServiceError maps pipeline errors to HTTP responses.
//
// Unrecognized errors are treated as internal and the detail is kept
// server-side only.
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		formatErr   *roster.FormatError
		encodingErr *roster.EncodingError
		rejected    *onboard.RejectedError
		accountErr  *onboard.AccountCreationError
	)

	switch {
	case errors.As(err, &formatErr), errors.As(err, &encodingErr):
		writeError(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, onboard.ErrBatchTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())

	case errors.As(err, &rejected):
		// The caller fixes the file and re-submits; every violation is
		// reported at once.
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:      rejected.Error(),
			Violations: rejected.Violations,
		})

	case errors.Is(err, onboard.ErrEmptyBatch):
		writeError(w, http.StatusUnprocessableEntity, err.Error())

	case errors.As(err, &accountErr):
		writeError(w, http.StatusConflict, err.Error())

	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")

	default:
		slog.Error("internal error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
