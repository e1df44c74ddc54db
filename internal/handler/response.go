package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/lineval/internal/apperror"
)

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// writeError maps service errors to HTTP statuses. Anything that is not an
// AppError is an unexpected failure: logged, and hidden behind a generic
// 500.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := http.StatusInternalServerError
	resp := errorResponse{Error: "internal server error"}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		resp.Error = appErr.Message
		resp.Field = appErr.Field
		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, apperror.ErrUnavailable):
			status = http.StatusServiceUnavailable
		}
	} else {
		logger.Error("request failed", "error", err)
	}

	writeJSON(w, status, resp)
}
