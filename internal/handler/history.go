package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/lineval/internal/model"
	"github.com/sakif/lineval/internal/repository"
)

type historyResponse struct {
	Evaluations []model.Evaluation `json:"evaluations"`
}

// HandleHistory lists a context's recorded evaluations, newest first.
// limit and offset come from the query string; malformed values fall back
// to the defaults.
func (h *EvalHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	opts := repository.ListOptions{}
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		opts.Limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil {
		opts.Offset = v
	}

	evaluations, err := h.service.History(r.Context(), chi.URLParam(r, "id"), opts)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Evaluations: evaluations})
}
