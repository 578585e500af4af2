// ABOUTME: JSON request/response helpers for the REST surface
// ABOUTME: Maps domain sentinel errors onto HTTP status codes

package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hearthlabs/hearth/internal/ledger"
	"github.com/hearthlabs/hearth/internal/members"
	"github.com/hearthlabs/hearth/internal/messaging"
	"github.com/hearthlabs/hearth/internal/store"
	"github.com/hearthlabs/hearth/internal/tour"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			slog.Default().Warn("encoding response failed", "error", err)
		}
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errorStatus(err), errorResponse{Error: err.Error()})
}

// errorStatus picks the HTTP status for a domain error. Unknown errors are
// internal.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, tour.ErrTourComplete):
		return http.StatusNotFound
	case errors.Is(err, store.ErrDuplicateMember),
		errors.Is(err, store.ErrDuplicateConversation):
		return http.StatusConflict
	case errors.Is(err, messaging.ErrNotParticipant),
		errors.Is(err, ledger.ErrNotRecipient):
		return http.StatusForbidden
	case errors.Is(err, messaging.ErrEmptyContent),
		errors.Is(err, messaging.ErrSelfThread),
		errors.Is(err, members.ErrInvalidHandle),
		errors.Is(err, members.ErrEmptyName),
		errors.Is(err, ledger.ErrInvalidTransition),
		errors.Is(err, ledger.ErrSelfReferral),
		errors.Is(err, ledger.ErrEmptyBusiness),
		errors.Is(err, tour.ErrUnknownStep):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON decodes the request body into v, rejecting unknown fields and
// oversized bodies.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}
