package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/pawlog/internal/config"
	"github.com/dukerupert/pawlog/internal/database"
)

func setupServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.LoadDefaults()
	cfg.SyncMode = "inline"
	cfg.Timezone = time.UTC
	if mutate != nil {
		mutate(&cfg)
	}

	srv, err := New(db, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return srv
}

func send(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const entryBody = `{"type":"diary","date":"2024-05-10T09:00:00Z","title":"Park"}`

func TestLocalModeRoundTrip(t *testing.T) {
	srv := setupServer(t, nil)
	h := srv.Router()

	rec := send(t, h, "POST", "/api/pets/rex/entries", "", entryBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
	if !strings.Contains(rec.Body.String(), `"created_by":"local"`) {
		t.Errorf("body = %s", rec.Body)
	}

	rec = send(t, h, "GET", "/api/pets/rex/calendar/2024-05", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"title":"Park"`) {
		t.Errorf("calendar = %d %s", rec.Code, rec.Body)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv := setupServer(t, func(c *config.Config) { c.JWTSecret = "s3cret" })
	h := srv.Router()

	rec := send(t, h, "GET", "/health", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("health = %d %s", rec.Code, rec.Body)
	}

	rec = send(t, h, "GET", "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "pawlog_websocket_sessions") {
		t.Error("metrics missing pawlog_websocket_sessions")
	}
}

func TestTokenMode(t *testing.T) {
	srv := setupServer(t, func(c *config.Config) { c.JWTSecret = "s3cret" })
	h := srv.Router()

	token, err := srv.Issuer().Issue("sam", []string{"rex"}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if rec := send(t, h, "POST", "/api/pets/rex/entries", "", entryBody); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d", rec.Code)
	}
	if rec := send(t, h, "POST", "/api/pets/rex/entries", "garbage", entryBody); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token status = %d", rec.Code)
	}
	if rec := send(t, h, "POST", "/api/pets/luna/entries", token, entryBody); rec.Code != http.StatusForbidden {
		t.Errorf("ungranted pet status = %d", rec.Code)
	}

	rec := send(t, h, "POST", "/api/pets/rex/entries", token, entryBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("granted pet status = %d, body = %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), `"created_by":"sam"`) {
		t.Errorf("body = %s", rec.Body)
	}
}

func TestWriteRateLimit(t *testing.T) {
	srv := setupServer(t, func(c *config.Config) { c.WriteRateLimit = 2 })
	h := srv.Router()

	for i := range 2 {
		if rec := send(t, h, "POST", "/api/pets/rex/entries", "", entryBody); rec.Code != http.StatusCreated {
			t.Fatalf("write %d status = %d", i, rec.Code)
		}
	}
	rec := send(t, h, "POST", "/api/pets/rex/entries", "", entryBody)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third write status = %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}

	if rec := send(t, h, "GET", "/api/pets/rex/entries", "", ""); rec.Code != http.StatusOK {
		t.Errorf("reads should not be limited, status = %d", rec.Code)
	}
}

func TestNewRejectsUnknownSyncMode(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	cfg := config.LoadDefaults()
	cfg.SyncMode = "eventually"
	if _, err := New(db, cfg, nil); err == nil {
		t.Error("expected error for unknown sync mode")
	}
}

func TestBackupDisabledWithoutSettings(t *testing.T) {
	srv := setupServer(t, nil)
	if srv.BackupManager().Enabled() {
		t.Error("backups should be disabled without S3 settings")
	}
	if srv.Relay() != nil {
		t.Error("relay should be nil without a Redis address")
	}
}
