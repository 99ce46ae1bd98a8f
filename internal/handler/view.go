package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/pawlog/internal/aggregate"
	"github.com/dukerupert/pawlog/internal/view"
)

type ViewHandler struct {
	calendar *view.Calendar
	trend    *view.Trend
	logger   *slog.Logger
}

func NewViewHandler(calendar *view.Calendar, trend *view.Trend, logger *slog.Logger) *ViewHandler {
	return &ViewHandler{calendar: calendar, trend: trend, logger: logger}
}

func (h *ViewHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	v, err := h.calendar.Month(r.Context(), r.PathValue("pet"), r.PathValue("month"))
	if err != nil {
		writeError(w, r, h.logger, err, "failed to load calendar")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *ViewHandler) Trend(w http.ResponseWriter, r *http.Request) {
	rng, err := view.ParseRange(r.URL.Query().Get("range"))
	if err != nil {
		writeError(w, r, h.logger, err, "failed to load trend")
		return
	}
	v, err := h.trend.Weights(r.Context(), r.PathValue("pet"), rng)
	if err != nil {
		writeError(w, r, h.logger, err, "failed to load trend")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type ReconcileHandler struct {
	reconciler *aggregate.Reconciler
	logger     *slog.Logger
}

func NewReconcileHandler(rc *aggregate.Reconciler, logger *slog.Logger) *ReconcileHandler {
	return &ReconcileHandler{reconciler: rc, logger: logger}
}

// Reconcile rebuilds the pet's buckets and returns the report.
func (h *ReconcileHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	rep, err := h.reconciler.ReconcileOwner(r.Context(), r.PathValue("pet"))
	if err != nil {
		writeError(w, r, h.logger, err, "failed to reconcile")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
