package view

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dukerupert/pawlog/internal/aggregate"
	"github.com/dukerupert/pawlog/internal/bucket"
	"github.com/dukerupert/pawlog/internal/common"
	"github.com/dukerupert/pawlog/internal/database"
	"github.com/dukerupert/pawlog/internal/docstore"
	"github.com/dukerupert/pawlog/internal/model"
)

func setupDocs(t *testing.T) *docstore.Store {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return docstore.New(db)
}

// putDoc stores a record for pet rex.
func putDoc(t *testing.T, docs *docstore.Store, collection, id string, v any) {
	t.Helper()
	if err := docs.Set(context.Background(), docstore.Doc("rex", collection, id), v, docstore.SetOptions{}); err != nil {
		t.Fatalf("put %s/%s: %v", collection, id, err)
	}
}

func summary(id string, d time.Time) model.EntrySummary {
	return model.EntrySummary{ID: id, Date: d, Type: model.EntryTypeDiary, TimeType: model.TimeTypePoint, Tags: []string{}}
}

func item(id string, d time.Time) model.WeightItem {
	return model.WeightItem{ID: id, Value: 4, Unit: model.UnitKilogram, Date: d}
}

func entryIDs(list []model.EntrySummary) string {
	ids := make([]string, len(list))
	for i, e := range list {
		ids[i] = e.ID
	}
	return fmt.Sprint(ids)
}

func weightIDs(list []model.WeightItem) string {
	ids := make([]string, len(list))
	for i, w := range list {
		ids[i] = w.ID
	}
	return fmt.Sprint(ids)
}

func day(m time.Month, d int) time.Time {
	return time.Date(2024, m, d, 12, 0, 0, 0, time.UTC)
}

func TestCalendarMonthSortsAndDedupes(t *testing.T) {
	docs := setupDocs(t)
	ctx := context.Background()

	stale := summary("A", day(5, 1))
	fresh := summary("A", day(5, 20))
	doc := model.MonthlyEntrySummary{Entries: []model.EntrySummary{
		summary("C", day(5, 10)), stale, summary("B", day(5, 10)), fresh,
	}}
	if err := docs.Set(ctx, docstore.Doc("rex", aggregate.EntryMonthsCollection, "2024-05"), doc, docstore.SetOptions{}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	v, err := NewCalendar(docs).Month(ctx, "rex", "2024-05")
	if err != nil {
		t.Fatalf("month: %v", err)
	}
	if got := entryIDs(v.Entries); got != "[A B C]" {
		t.Errorf("entries = %s, want [A B C]", got)
	}
	if !v.Entries[0].Date.Equal(fresh.Date) {
		t.Errorf("duplicate resolved to %v, want the later projection", v.Entries[0].Date)
	}
}

func TestCalendarMissingMonthIsEmpty(t *testing.T) {
	v, err := NewCalendar(setupDocs(t)).Month(context.Background(), "rex", "2030-01")
	if err != nil {
		t.Fatalf("month: %v", err)
	}
	if v.Entries == nil || len(v.Entries) != 0 {
		t.Errorf("entries = %#v, want empty list", v.Entries)
	}
}

func TestCalendarRejectsBadMonth(t *testing.T) {
	c := NewCalendar(setupDocs(t))
	if _, err := c.Month(context.Background(), "rex", "May"); !errors.Is(err, common.ErrValidation) {
		t.Errorf("Month err = %v, want ErrValidation", err)
	}
	if _, err := c.Watch(context.Background(), "rex", "2024-13"); !errors.Is(err, common.ErrValidation) {
		t.Errorf("Watch err = %v, want ErrValidation", err)
	}
}

func TestCalendarWatchFollowsSynchronizer(t *testing.T) {
	docs := setupDocs(t)
	sync := aggregate.NewSynchronizer(aggregate.EntryMonths(), docs, bucket.NewResolver(time.UTC), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := NewCalendar(docs).Watch(ctx, "rex", "2024-05")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	first := recv(t, ch)
	if len(first.Entries) != 0 {
		t.Fatalf("initial entries = %s", entryIDs(first.Entries))
	}

	e := model.Entry{ID: "A", Type: model.EntryTypeDiary, TimeType: model.TimeTypePoint, Date: day(5, 3)}
	putDoc(t, docs, aggregate.EntriesCollection, "A", e)
	if err := sync.Apply(ctx, aggregate.Change[model.Entry]{Op: aggregate.OpCreate, Owner: "rex", ID: "A", After: &e}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := entryIDs(recv(t, ch).Entries); got != "[A]" {
		t.Fatalf("after create = %s, want [A]", got)
	}

	// Moving the entry to June empties the watched May bucket.
	moved := e
	moved.Date = day(6, 1)
	putDoc(t, docs, aggregate.EntriesCollection, "A", moved)
	if err := sync.Apply(ctx, aggregate.Change[model.Entry]{Op: aggregate.OpUpdate, Owner: "rex", ID: "A", Before: &e, After: &moved}); err != nil {
		t.Fatalf("apply move: %v", err)
	}
	if got := entryIDs(recv(t, ch).Entries); got != "[]" {
		t.Fatalf("after move = %s, want []", got)
	}
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatal("view stream closed")
		}
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for view")
	}
	var zero T
	return zero
}

func TestParseRange(t *testing.T) {
	for _, s := range []string{"1m", "3m", "6m", "1y", "all"} {
		if r, err := ParseRange(s); err != nil || string(r) != s {
			t.Errorf("ParseRange(%q) = %q, %v", s, r, err)
		}
	}
	if r, _ := ParseRange(""); r != DefaultTrendSpan {
		t.Errorf("ParseRange(\"\") = %q, want default", r)
	}
	if _, err := ParseRange("2w"); !errors.Is(err, common.ErrValidation) {
		t.Errorf("ParseRange(2w) err = %v, want ErrValidation", err)
	}
}

func TestTrendWeightsAcrossYears(t *testing.T) {
	docs := setupDocs(t)
	ctx := context.Background()
	now := time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)

	put := func(year string, items ...model.WeightItem) {
		t.Helper()
		doc := model.YearlyWeightSummary{Weights: items}
		if err := docs.Set(ctx, docstore.Doc("rex", aggregate.WeightYearsCollection, year), doc, docstore.SetOptions{}); err != nil {
			t.Fatalf("seed %s: %v", year, err)
		}
	}
	put("2023",
		item("W3", time.Date(2023, 12, 20, 0, 0, 0, 0, time.UTC)),
		item("W2", time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC)),
		item("W1", time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC)),
	)
	put("2024",
		item("W5", time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)),
		item("W4", time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)),
		item("W4", time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)),
	)
	// Another pet's weights stay out.
	if err := docs.Set(ctx, docstore.Doc("fido", aggregate.WeightYearsCollection, "2024"),
		model.YearlyWeightSummary{Weights: []model.WeightItem{item("X", now)}}, docstore.SetOptions{}); err != nil {
		t.Fatalf("seed fido: %v", err)
	}

	tr := NewTrend(docs, func() time.Time { return now })
	tests := []struct {
		r    Range
		want string
	}{
		{RangeMonth, "[W5 W4]"},
		{RangeQuarter, "[W5 W4 W3]"},
		{RangeHalfYear, "[W5 W4 W3 W2]"},
		{RangeYear, "[W5 W4 W3 W2]"},
		{RangeAll, "[W5 W4 W3 W2 W1]"},
	}
	for _, tt := range tests {
		t.Run(string(tt.r), func(t *testing.T) {
			v, err := tr.Weights(ctx, "rex", tt.r)
			if err != nil {
				t.Fatalf("weights: %v", err)
			}
			if got := weightIDs(v.Weights); got != tt.want {
				t.Errorf("weights = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTrendWatch(t *testing.T) {
	docs := setupDocs(t)
	sync := aggregate.NewSynchronizer(aggregate.WeightYears(), docs, bucket.NewResolver(time.UTC), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := NewTrend(docs, func() time.Time { return day(12, 31) })
	ch, err := tr.Watch(ctx, "rex", RangeAll)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if v := recv(t, ch); len(v.Weights) != 0 {
		t.Fatalf("initial = %s", weightIDs(v.Weights))
	}

	w := model.Weight{ID: "W1", Value: 5, Unit: model.UnitKilogram, Date: day(3, 1)}
	putDoc(t, docs, aggregate.WeightsCollection, "W1", w)
	if err := sync.Apply(ctx, aggregate.Change[model.Weight]{Op: aggregate.OpCreate, Owner: "rex", ID: "W1", After: &w}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := weightIDs(recv(t, ch).Weights); got != "[W1]" {
		t.Fatalf("after create = %s, want [W1]", got)
	}
}
