package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/laguz/internal/apperr"
	"github.com/starford/laguz/internal/pipeline"
	"github.com/starford/laguz/internal/progress"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string               `json:"error"`
	Stage string               `json:"stage,omitempty"`
	Tasks []progress.StageTask `json:"tasks,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeIngestError maps a failed reload to a status code. The failing stage
// and the final progress snapshot are included when known. Rate limits never
// reach here: the remote source degrades to its cache or fallback files.
func writeIngestError(w http.ResponseWriter, err error) {
	body := errorBody(err.Error())
	var perr *pipeline.Error
	if errors.As(err, &perr) {
		body.Stage = perr.Stage
		body.Tasks = perr.Tasks
	}

	status := http.StatusBadGateway
	switch {
	case errors.Is(err, apperr.ErrAuthRequired):
		status = http.StatusUnauthorized
	case errors.Is(err, apperr.ErrCacheUnavailable), errors.Is(err, apperr.ErrPoolExhausted):
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, body)
}
