package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kalambet/cinetrait/internal/analysis"
	"github.com/kalambet/cinetrait/internal/storage"
	"github.com/kalambet/cinetrait/internal/validation"
)

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeError(w, code, errType, fmt.Sprintf(format, args...), nil)
}

// writeError writes {"error": {"message", "type", ...extra}}.
func writeError(w http.ResponseWriter, code int, errType, msg string, extra map[string]any) {
	body := map[string]any{
		"message": msg,
		"type":    errType,
	}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, code, map[string]any{"error": body})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeValidationError(w http.ResponseWriter, err error) {
	var verr *validation.Error
	if errors.As(err, &verr) {
		writeError(w, http.StatusBadRequest, "invalid_request_error", verr.Error(), map[string]any{"fields": verr.Fields})
		return
	}
	httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
}

// writeDomainError maps analysis and storage errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var ide *analysis.InsufficientDataError
	switch {
	case errors.As(err, &ide):
		writeError(w, http.StatusUnprocessableEntity, "insufficient_data", err.Error(), map[string]any{
			"observation_count": ide.Count,
			"minimum_required":  ide.Required,
		})
	case errors.Is(err, analysis.ErrUnresolvedCategoryData):
		httpError(w, http.StatusConflict, "unresolved_category_data", "%v", err)
	case errors.Is(err, storage.ErrAlreadyExists):
		httpError(w, http.StatusConflict, "conflict_error", "%v", err)
	case errors.Is(err, analysis.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "%v", err)
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "internal error: %v", err)
	}
}
