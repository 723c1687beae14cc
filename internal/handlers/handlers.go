// Package handlers serves the /v1 HTTP API.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/saleslog/backend/internal/pipeline"
	"github.com/saleslog/backend/internal/provider"
	"github.com/saleslog/backend/internal/tokens"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writePipelineError maps pipeline sentinels to HTTP statuses. Anything
// unrecognized is logged and returned as a 500.
func writePipelineError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var provErr *provider.Error
	switch {
	case errors.Is(err, pipeline.ErrNoteNotFound), errors.Is(err, pipeline.ErrFileNotFound):
		writeErr(w, http.StatusNotFound, err.Error())
	case errors.Is(err, pipeline.ErrEmptySource):
		writeErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, pipeline.ErrJobPreviouslyFailed):
		writeErr(w, http.StatusConflict, err.Error())
	case errors.Is(err, tokens.ErrQuotaExceeded):
		writeErr(w, http.StatusTooManyRequests, err.Error())
	case errors.As(err, &provErr):
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": provErr.Message,
			"stage": provErr.Stage,
		})
	default:
		logger.Error("pipeline error", "error", err)
		writeErr(w, http.StatusInternalServerError, "internal error")
	}
}

// pathID parses the {id} path value as a UUID.
func pathID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	return id, err == nil
}
