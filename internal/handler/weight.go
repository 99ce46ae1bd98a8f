package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/pawlog/internal/model"
	"github.com/dukerupert/pawlog/internal/record"
)

type WeightHandler struct {
	weights *record.WeightStore
	pager   *record.Pager[model.Weight]
	logger  *slog.Logger
}

func NewWeightHandler(weights *record.WeightStore, pager *record.Pager[model.Weight], logger *slog.Logger) *WeightHandler {
	return &WeightHandler{weights: weights, pager: pager, logger: logger}
}

func (h *WeightHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in record.WeightInput
	if !decodeJSON(w, r, &in) {
		return
	}

	pet := r.PathValue("pet")
	id, err := h.weights.Add(r.Context(), pet, in)
	if err != nil {
		writeError(w, r, h.logger, err, "failed to create weight")
		return
	}
	weight, err := h.weights.Get(r.Context(), pet, id)
	if err != nil {
		writeError(w, r, h.logger, err, "failed to load weight")
		return
	}
	writeJSON(w, http.StatusCreated, weight)
}

func (h *WeightHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := h.pager.Page(r.Context(), r.PathValue("pet"), r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, r, h.logger, err, "failed to list weights")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *WeightHandler) Get(w http.ResponseWriter, r *http.Request) {
	weight, err := h.weights.Get(r.Context(), r.PathValue("pet"), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err, "failed to get weight")
		return
	}
	writeJSON(w, http.StatusOK, weight)
}

func (h *WeightHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch record.WeightPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	pet, id := r.PathValue("pet"), r.PathValue("id")
	if err := h.weights.Update(r.Context(), pet, id, patch); err != nil {
		writeError(w, r, h.logger, err, "failed to update weight")
		return
	}
	weight, err := h.weights.Get(r.Context(), pet, id)
	if err != nil {
		writeError(w, r, h.logger, err, "failed to load weight")
		return
	}
	writeJSON(w, http.StatusOK, weight)
}

func (h *WeightHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.weights.Delete(r.Context(), r.PathValue("pet"), r.PathValue("id")); err != nil {
		writeError(w, r, h.logger, err, "failed to delete weight")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
