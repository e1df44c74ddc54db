// Package handler exposes the evaluation service over HTTP.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/lineval/internal/apperror"
	"github.com/sakif/lineval/internal/service"
)

type EvalHandler struct {
	service *service.EvalService
	logger  *slog.Logger
}

func NewEvalHandler(svc *service.EvalService, logger *slog.Logger) *EvalHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EvalHandler{service: svc, logger: logger}
}

type evaluateRequest struct {
	ContextID string `json:"contextId"`
	Code      string `json:"code"`
	TimeoutMs int64  `json:"timeoutMs,omitempty"`
}

// HandleEvaluate runs a snippet. Snippet failures are part of the result
// and come back with 200; only request-level problems map to error
// statuses.
func (h *EvalHandler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	res, err := h.service.Evaluate(r.Context(), req.ContextID, req.Code,
		time.Duration(req.TimeoutMs)*time.Millisecond)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
