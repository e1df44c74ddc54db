package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *EvalHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Reset(chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *EvalHandler) HandleDispose(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Dispose(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type consoleResponse struct {
	Console []string `json:"console"`
}

// HandleConsole returns the console output of the context's most recent
// evaluation.
func (h *EvalHandler) HandleConsole(w http.ResponseWriter, r *http.Request) {
	lines, err := h.service.Console(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if lines == nil {
		lines = []string{}
	}
	writeJSON(w, http.StatusOK, consoleResponse{Console: lines})
}
