package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/pawlog/internal/aggregate"
	"github.com/dukerupert/pawlog/internal/auth"
	"github.com/dukerupert/pawlog/internal/bucket"
	"github.com/dukerupert/pawlog/internal/common"
	"github.com/dukerupert/pawlog/internal/database"
	"github.com/dukerupert/pawlog/internal/docstore"
	"github.com/dukerupert/pawlog/internal/model"
	"github.com/dukerupert/pawlog/internal/record"
	"github.com/dukerupert/pawlog/internal/view"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupMux wires the handlers over an in-memory store with inline bucket
// synchronization, so views reflect writes as soon as a request returns.
func setupMux(t *testing.T, pageSize int) *http.ServeMux {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := quietLogger()
	docs := docstore.New(db, docstore.WithGuard(auth.Guard), docstore.WithLogger(logger))
	resolver := bucket.NewResolver(time.UTC)
	runner := aggregate.NewRunner(aggregate.ModeInline, aggregate.WithRunnerLogger(logger))
	entrySync := aggregate.NewSynchronizer(aggregate.EntryMonths(), docs, resolver, logger)
	weightSync := aggregate.NewSynchronizer(aggregate.WeightYears(), docs, resolver, logger)

	entryH := NewEntryHandler(
		record.NewEntryStore(docs, aggregate.Bind(entrySync, runner)),
		record.NewEntryPager(docs, pageSize), logger)
	weightH := NewWeightHandler(
		record.NewWeightStore(docs, aggregate.Bind(weightSync, runner)),
		record.NewWeightPager(docs, pageSize), logger)
	viewH := NewViewHandler(view.NewCalendar(docs), view.NewTrend(docs, nil), logger)
	reconcileH := NewReconcileHandler(aggregate.NewReconciler(docs, nil, logger, entrySync, weightSync), logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/pets/{pet}/entries", entryH.Create)
	mux.HandleFunc("GET /api/pets/{pet}/entries", entryH.List)
	mux.HandleFunc("GET /api/pets/{pet}/entries/{id}", entryH.Get)
	mux.HandleFunc("PATCH /api/pets/{pet}/entries/{id}", entryH.Update)
	mux.HandleFunc("DELETE /api/pets/{pet}/entries/{id}", entryH.Delete)
	mux.HandleFunc("POST /api/pets/{pet}/weights", weightH.Create)
	mux.HandleFunc("GET /api/pets/{pet}/weights", weightH.List)
	mux.HandleFunc("GET /api/pets/{pet}/weights/{id}", weightH.Get)
	mux.HandleFunc("PATCH /api/pets/{pet}/weights/{id}", weightH.Update)
	mux.HandleFunc("DELETE /api/pets/{pet}/weights/{id}", weightH.Delete)
	mux.HandleFunc("GET /api/pets/{pet}/calendar/{month}", viewH.Calendar)
	mux.HandleFunc("GET /api/pets/{pet}/trend", viewH.Trend)
	mux.HandleFunc("POST /api/pets/{pet}/reconcile", reconcileH.Reconcile)
	return mux
}

func do(t *testing.T, mux http.Handler, ctx context.Context, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if ctx != nil {
		req = req.WithContext(ctx)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestEntryLifecycle(t *testing.T) {
	mux := setupMux(t, 20)

	rec := do(t, mux, nil, "POST", "/api/pets/rex/entries",
		`{"type":"diary","date":"2024-05-10T09:00:00Z","title":"Park","tags":["walk","walk"],"image_urls":["a.jpg","b.jpg"]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body)
	}
	created := decodeBody[model.Entry](t, rec)
	if created.ID == "" || created.TimeType != model.TimeTypePoint || len(created.Tags) != 1 {
		t.Errorf("created = %+v", created)
	}

	rec = do(t, mux, nil, "GET", "/api/pets/rex/calendar/2024-05", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("calendar status = %d", rec.Code)
	}
	cal := decodeBody[view.CalendarView](t, rec)
	if len(cal.Entries) != 1 || cal.Entries[0].ID != created.ID || cal.Entries[0].FirstImageURL != "a.jpg" {
		t.Errorf("calendar = %+v", cal)
	}

	rec = do(t, mux, nil, "PATCH", "/api/pets/rex/entries/"+created.ID, `{"date":"2024-06-02T09:00:00Z"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d, body = %s", rec.Code, rec.Body)
	}
	if got := decodeBody[model.Entry](t, rec); got.Title != "Park" || got.Date.Month() != time.June {
		t.Errorf("patched = %+v", got)
	}

	may := decodeBody[view.CalendarView](t, do(t, mux, nil, "GET", "/api/pets/rex/calendar/2024-05", ""))
	june := decodeBody[view.CalendarView](t, do(t, mux, nil, "GET", "/api/pets/rex/calendar/2024-06", ""))
	if len(may.Entries) != 0 || len(june.Entries) != 1 {
		t.Errorf("after migration: may = %d, june = %d", len(may.Entries), len(june.Entries))
	}

	rec = do(t, mux, nil, "DELETE", "/api/pets/rex/entries/"+created.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = do(t, mux, nil, "GET", "/api/pets/rex/entries/"+created.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d", rec.Code)
	}
	june = decodeBody[view.CalendarView](t, do(t, mux, nil, "GET", "/api/pets/rex/calendar/2024-06", ""))
	if len(june.Entries) != 0 {
		t.Errorf("june after delete = %+v", june.Entries)
	}
}

func TestEntryRequestErrors(t *testing.T) {
	mux := setupMux(t, 20)

	tests := []struct {
		name, method, path, body string
		want                     int
	}{
		{"malformed json", "POST", "/api/pets/rex/entries", `{"type":`, http.StatusBadRequest},
		{"unknown field", "POST", "/api/pets/rex/entries", `{"type":"diary","date":"2024-05-10T09:00:00Z","mood":"happy"}`, http.StatusBadRequest},
		{"bad type", "POST", "/api/pets/rex/entries", `{"type":"memo","date":"2024-05-10T09:00:00Z"}`, http.StatusBadRequest},
		{"range without end", "POST", "/api/pets/rex/entries", `{"type":"schedule","time_type":"range","date":"2024-05-10T09:00:00Z"}`, http.StatusBadRequest},
		{"missing entry", "GET", "/api/pets/rex/entries/nope", "", http.StatusNotFound},
		{"patch missing", "PATCH", "/api/pets/rex/entries/nope", `{"title":"x"}`, http.StatusNotFound},
		{"bad month", "GET", "/api/pets/rex/calendar/2024-13", "", http.StatusBadRequest},
		{"bad range", "GET", "/api/pets/rex/trend?range=2w", "", http.StatusBadRequest},
		{"bad cursor", "GET", "/api/pets/rex/entries?cursor=!!!", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, mux, nil, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d, body = %s", rec.Code, tt.want, rec.Body)
			}
			if got := decodeBody[map[string]string](t, rec); got["error"] == "" {
				t.Errorf("missing error message: %s", rec.Body)
			}
		})
	}
}

func TestEntryListPages(t *testing.T) {
	mux := setupMux(t, 2)

	for _, d := range []string{"2024-05-01", "2024-05-02", "2024-05-03"} {
		rec := do(t, mux, nil, "POST", "/api/pets/rex/entries", `{"type":"diary","date":"`+d+`T08:00:00Z"}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("create %s: %d %s", d, rec.Code, rec.Body)
		}
	}

	first := decodeBody[record.Page[model.Entry]](t, do(t, mux, nil, "GET", "/api/pets/rex/entries", ""))
	if len(first.Items) != 2 || first.NextCursor == "" || first.Items[0].Date.Day() != 3 {
		t.Fatalf("first page = %+v", first)
	}
	second := decodeBody[record.Page[model.Entry]](t, do(t, mux, nil, "GET", "/api/pets/rex/entries?cursor="+first.NextCursor, ""))
	if len(second.Items) != 1 || second.NextCursor != "" || second.Items[0].Date.Day() != 1 {
		t.Errorf("second page = %+v", second)
	}
}

func TestWeightTrend(t *testing.T) {
	mux := setupMux(t, 20)
	now := time.Now().UTC()

	old := now.AddDate(0, -8, 0).Format(time.RFC3339)
	recent := now.AddDate(0, 0, -3).Format(time.RFC3339)

	rec := do(t, mux, nil, "POST", "/api/pets/rex/weights", `{"value":11.2,"date":"`+old+`"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create old: %d %s", rec.Code, rec.Body)
	}
	rec = do(t, mux, nil, "POST", "/api/pets/rex/weights", `{"value":12.5,"unit":"kg","date":"`+recent+`"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create recent: %d %s", rec.Code, rec.Body)
	}
	w := decodeBody[model.Weight](t, rec)

	trend := decodeBody[view.TrendView](t, do(t, mux, nil, "GET", "/api/pets/rex/trend", ""))
	if trend.Range != view.RangeQuarter || len(trend.Weights) != 1 || trend.Weights[0].ID != w.ID {
		t.Errorf("default trend = %+v", trend)
	}
	all := decodeBody[view.TrendView](t, do(t, mux, nil, "GET", "/api/pets/rex/trend?range=all", ""))
	if len(all.Weights) != 2 {
		t.Errorf("all trend = %+v", all)
	}

	rec = do(t, mux, nil, "POST", "/api/pets/rex/weights", `{"value":-1,"date":"`+recent+`"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative weight status = %d", rec.Code)
	}
}

func TestReconcileRebuildsBuckets(t *testing.T) {
	mux := setupMux(t, 20)

	rec := do(t, mux, nil, "POST", "/api/pets/rex/entries", `{"type":"diary","date":"2024-05-10T09:00:00Z"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d", rec.Code)
	}

	rec = do(t, mux, nil, "POST", "/api/pets/rex/reconcile", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("reconcile status = %d, body = %s", rec.Code, rec.Body)
	}
	rep := decodeBody[aggregate.Report](t, rec)
	if rep.Owner != "rex" || len(rep.Aggregates) != 2 {
		t.Errorf("report = %+v", rep)
	}
}

func TestPermissionDenied(t *testing.T) {
	mux := setupMux(t, 20)
	ctx := auth.WithAuth(context.Background(), auth.AuthContext{Actor: "sam", Pets: []string{"luna"}})

	rec := do(t, mux, ctx, "POST", "/api/pets/rex/entries", `{"type":"diary","date":"2024-05-10T09:00:00Z"}`)
	if rec.Code != http.StatusForbidden {
		t.Errorf("create for ungranted pet status = %d", rec.Code)
	}
	rec = do(t, mux, ctx, "GET", "/api/pets/rex/calendar/2024-05", "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("calendar for ungranted pet status = %d", rec.Code)
	}
	rec = do(t, mux, ctx, "POST", "/api/pets/luna/entries", `{"type":"diary","date":"2024-05-10T09:00:00Z"}`)
	if rec.Code != http.StatusCreated {
		t.Errorf("create for granted pet status = %d, body = %s", rec.Code, rec.Body)
	}
	if got := decodeBody[model.Entry](t, rec); got.CreatedBy != "sam" {
		t.Errorf("created_by = %q, want sam", got.CreatedBy)
	}
}

func TestWriteErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{common.Invalid("date", "is required"), http.StatusBadRequest},
		{common.ErrNotFound, http.StatusNotFound},
		{common.ErrPermissionDenied, http.StatusForbidden},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		writeError(rec, httptest.NewRequest("GET", "/", nil), quietLogger(), tt.err, "boom")
		if rec.Code != tt.want {
			t.Errorf("writeError(%v) = %d, want %d", tt.err, rec.Code, tt.want)
		}
	}

	rec := httptest.NewRecorder()
	writeError(rec, httptest.NewRequest("GET", "/", nil), quietLogger(), io.ErrUnexpectedEOF, "boom")
	if body := rec.Body.String(); strings.Contains(body, "unexpected EOF") {
		t.Errorf("internal error leaked: %s", body)
	}
}
