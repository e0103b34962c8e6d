package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/git-apexplanners/wsscapt/internal/domain"
)

type apiErrorBody struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code string, message string, details interface{}) {
	if code == "" {
		code = http.StatusText(status)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiErrorBody{Error: apiError{Code: code, Message: message, Details: details}})
}

// writeDomainError maps the store's error taxonomy onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var storageErr *domain.StorageError
	switch {
	case errors.Is(err, domain.ErrUnknownSession):
		writeError(w, http.StatusNotFound, "unknown_session", err.Error(), nil)
	case errors.Is(err, domain.ErrDuplicateSession):
		writeError(w, http.StatusConflict, "duplicate_session", err.Error(), nil)
	case errors.As(err, &storageErr):
		writeError(w, http.StatusServiceUnavailable, "storage_error", err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "", err.Error(), nil)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
