package view

import (
	"context"
	"fmt"

	"github.com/dukerupert/pawlog/internal/aggregate"
	"github.com/dukerupert/pawlog/internal/bucket"
	"github.com/dukerupert/pawlog/internal/docstore"
	"github.com/dukerupert/pawlog/internal/model"
)

type CalendarView struct {
	Month   string               `json:"month"`
	Entries []model.EntrySummary `json:"entries"`
	Err     error                `json:"-"`
}

// Calendar reads one month bucket at a time.
type Calendar struct {
	docs *docstore.Store
}

func NewCalendar(docs *docstore.Store) *Calendar {
	return &Calendar{docs: docs}
}

func (c *Calendar) path(owner, month string) docstore.Path {
	return docstore.Doc(owner, aggregate.EntryMonthsCollection, month)
}

// Month returns the entries of month ("YYYY-MM"), newest first.
func (c *Calendar) Month(ctx context.Context, owner, month string) (CalendarView, error) {
	if _, _, err := bucket.ParseMonth(month); err != nil {
		return CalendarView{}, fmt.Errorf("calendar: %w", err)
	}
	snap, err := c.docs.Get(ctx, c.path(owner, month))
	if err != nil {
		return CalendarView{}, fmt.Errorf("calendar: %w", err)
	}
	return calendarView(month, snap)
}

// Watch streams the month view, first as it is now and again after every
// change to the bucket. Switching months means cancelling ctx and watching
// the other month.
func (c *Calendar) Watch(ctx context.Context, owner, month string) (<-chan CalendarView, error) {
	if _, _, err := bucket.ParseMonth(month); err != nil {
		return nil, fmt.Errorf("calendar: %w", err)
	}
	events, err := c.docs.WatchDoc(ctx, c.path(owner, month))
	if err != nil {
		return nil, fmt.Errorf("calendar: %w", err)
	}

	out := make(chan CalendarView)
	go func() {
		defer close(out)
		for ev := range events {
			v := CalendarView{Month: month, Err: ev.Err}
			if ev.Err == nil {
				v, _ = calendarView(month, ev.Value)
			}
			select {
			case out <- v:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func calendarView(month string, snap docstore.Snapshot) (CalendarView, error) {
	var doc model.MonthlyEntrySummary
	if err := snap.Decode(&doc); err != nil {
		err = fmt.Errorf("calendar %s: %w", month, err)
		return CalendarView{Month: month, Entries: []model.EntrySummary{}, Err: err}, err
	}
	entries := dedupe(doc.Entries, func(s model.EntrySummary) string { return s.ID })
	sortEntries(entries)
	return CalendarView{Month: month, Entries: entries}, nil
}
