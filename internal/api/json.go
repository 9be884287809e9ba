package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/notebundle/internal/apperr"
	"github.com/starford/notebundle/internal/noteservice"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeError maps domain errors onto HTTP statuses. Anything unrecognised is
// logged and reported as an internal error.
func writeError(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.CannotAccessDocument):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrAlreadyExists), errors.Is(err, apperr.ErrNotPersisted):
		status = http.StatusConflict
	case errors.Is(err, noteservice.ErrInvalidPath),
		errors.Is(err, apperr.ErrIndexOutOfRange),
		errors.Is(err, apperr.ErrInvalidName):
		status = http.StatusBadRequest
	case errors.Is(err, apperr.CannotLoadFileWrappers),
		errors.Is(err, apperr.CannotLoadText),
		errors.Is(err, apperr.CannotAccessAttachments):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, noteservice.ErrNoHandler):
		status = http.StatusNotImplemented
	}

	body := errorBody(err.Error())
	if kind := apperr.KindOf(err); kind != 0 {
		body.Kind = kind.String()
	}
	if status == http.StatusInternalServerError {
		slog.Error(op+" failed", slog.String("error", err.Error()))
		if body.Kind == "" {
			body.Error = "internal error"
		}
	}
	writeJSON(w, status, body)
}
