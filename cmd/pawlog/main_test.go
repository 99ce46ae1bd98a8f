package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/pawlog/internal/aggregate"
	"github.com/dukerupert/pawlog/internal/auth"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "none.env")}, args...))
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("PAWLOG_JWT_SECRET", "s3cret")

	out, err := execute(t, "token", "--actor", "sam", "--pet", "rex", "--pet", "luna", "--ttl", "1h")
	if err != nil {
		t.Fatalf("token: %v\n%s", err, out)
	}

	ac, err := auth.NewIssuer("s3cret").Parse(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("parse issued token: %v", err)
	}
	if ac.Actor != "sam" || len(ac.Pets) != 2 {
		t.Errorf("auth context = %+v", ac)
	}
}

func TestTokenCommandLocalMode(t *testing.T) {
	t.Setenv("PAWLOG_JWT_SECRET", "")

	if _, err := execute(t, "token", "--actor", "sam", "--pet", "rex"); err == nil {
		t.Error("expected error without a secret")
	}
}

func TestReconcileCommand(t *testing.T) {
	t.Setenv("PAWLOG_DB_PATH", filepath.Join(t.TempDir(), "data", "pawlog.db"))
	t.Setenv("PAWLOG_LOG_LEVEL", "error")

	out, err := execute(t, "reconcile", "--pet", "rex", "--format", "table")
	if err != nil {
		t.Fatalf("reconcile: %v\n%s", err, out)
	}
	for _, want := range []string{"entry_months", "weight_years", "rex"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderReports(t *testing.T) {
	var buf bytes.Buffer
	renderReports(&buf, []aggregate.Report{{
		Owner:    "rex",
		Duration: time.Millisecond,
		Aggregates: []aggregate.RebuildResult{
			{Aggregate: "entry_months", Records: 3, Buckets: 2, Rewritten: 1},
		},
	}})
	out := buf.String()
	if !strings.Contains(out, "entry_months") || !strings.Contains(out, "1 pets") {
		t.Errorf("table:\n%s", out)
	}
}
