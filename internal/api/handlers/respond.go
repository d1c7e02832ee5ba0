package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hugh/go-accounts/internal/api/dto"
	"github.com/hugh/go-accounts/internal/api/validation"
	"github.com/hugh/go-accounts/internal/users"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into v and validates it, writing a 400 and
// returning false on failure.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	// An empty body decodes as an empty object.
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return false
	}
	if details := validation.Struct(v); details != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: details})
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Validation failed",
			Details: map[string]string{name: "must be a valid UUID"},
		})
		return uuid.Nil, false
	}
	return id, true
}

// parseIDs converts ids already checked by the validator.
func parseIDs(ids []string) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	for _, s := range ids {
		out = append(out, uuid.MustParse(s))
	}
	return out
}

// writeServiceError maps service sentinels onto HTTP statuses. Anything
// unrecognised is logged and reported as a 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, users.ErrPasswordMismatch),
		errors.Is(err, users.ErrPrimaryEmailDeletion),
		errors.Is(err, users.ErrUnknownOrganization),
		errors.Is(err, users.ErrUnknownRole),
		errors.Is(err, users.ErrUnknownUserEmail),
		errors.Is(err, users.ErrInvalidVerificationToken):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, users.ErrEmailInUse):
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, users.ErrUserNotFound), errors.Is(err, users.ErrUserEmailNotFound):
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: err.Error()})
	default:
		logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Internal server error"})
	}
}
