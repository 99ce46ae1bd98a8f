package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/pawlog/internal/model"
	"github.com/dukerupert/pawlog/internal/record"
)

type EntryHandler struct {
	entries *record.EntryStore
	pager   *record.Pager[model.Entry]
	logger  *slog.Logger
}

func NewEntryHandler(entries *record.EntryStore, pager *record.Pager[model.Entry], logger *slog.Logger) *EntryHandler {
	return &EntryHandler{entries: entries, pager: pager, logger: logger}
}

func (h *EntryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in record.EntryInput
	if !decodeJSON(w, r, &in) {
		return
	}

	pet := r.PathValue("pet")
	id, err := h.entries.Add(r.Context(), pet, in)
	if err != nil {
		writeError(w, r, h.logger, err, "failed to create entry")
		return
	}
	entry, err := h.entries.Get(r.Context(), pet, id)
	if err != nil {
		writeError(w, r, h.logger, err, "failed to load entry")
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (h *EntryHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := h.pager.Page(r.Context(), r.PathValue("pet"), r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, r, h.logger, err, "failed to list entries")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *EntryHandler) Get(w http.ResponseWriter, r *http.Request) {
	entry, err := h.entries.Get(r.Context(), r.PathValue("pet"), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err, "failed to get entry")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *EntryHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch record.EntryPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	pet, id := r.PathValue("pet"), r.PathValue("id")
	if err := h.entries.Update(r.Context(), pet, id, patch); err != nil {
		writeError(w, r, h.logger, err, "failed to update entry")
		return
	}
	entry, err := h.entries.Get(r.Context(), pet, id)
	if err != nil {
		writeError(w, r, h.logger, err, "failed to load entry")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *EntryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.entries.Delete(r.Context(), r.PathValue("pet"), r.PathValue("id")); err != nil {
		writeError(w, r, h.logger, err, "failed to delete entry")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
