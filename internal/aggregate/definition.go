// Package aggregate keeps time-bucketed summary documents consistent with the
// authoritative record collections they are derived from.
package aggregate

import (
	"cmp"
	"slices"
	"time"

	"github.com/dukerupert/pawlog/internal/bucket"
	"github.com/dukerupert/pawlog/internal/model"
)

// Definition describes one derived aggregate: which record collection feeds
// it, how records map to bucket keys, and what each bucket stores.
type Definition[R, P any] struct {
	// Name labels logs and metrics.
	Name string
	// Source is the authoritative record collection.
	Source string
	// Collection holds the bucket documents.
	Collection  string
	Granularity bucket.Granularity
	// Field is the list field inside a bucket document.
	Field string

	RecordID func(R) string
	Date     func(R) time.Time
	Project  func(R) P
	ID       func(P) string

	// Less orders the bucket list on every write. Nil leaves it unordered.
	Less func(a, b P) bool
}

func (d Definition[R, P]) sort(list []P) {
	if d.Less == nil {
		return
	}
	slices.SortStableFunc(list, func(a, b P) int {
		switch {
		case d.Less(a, b):
			return -1
		case d.Less(b, a):
			return 1
		default:
			return 0
		}
	})
}

const (
	EntriesCollection     = "entries"
	EntryMonthsCollection = "entry_months"
	WeightsCollection     = "weights"
	WeightYearsCollection = "weight_years"
)

// EntryMonths indexes diary and schedule entries by the month of their start
// date. Range entries are indexed only under their start month.
func EntryMonths() Definition[model.Entry, model.EntrySummary] {
	return Definition[model.Entry, model.EntrySummary]{
		Name:        "entry_months",
		Source:      EntriesCollection,
		Collection:  EntryMonthsCollection,
		Granularity: bucket.Month,
		Field:       "entries",
		RecordID:    func(e model.Entry) string { return e.ID },
		Date:        func(e model.Entry) time.Time { return e.Date },
		Project:     model.Entry.Summary,
		ID:          func(s model.EntrySummary) string { return s.ID },
	}
}

// WeightYears keeps full weight copies per year, newest first.
func WeightYears() Definition[model.Weight, model.WeightItem] {
	return Definition[model.Weight, model.WeightItem]{
		Name:        "weight_years",
		Source:      WeightsCollection,
		Collection:  WeightYearsCollection,
		Granularity: bucket.Year,
		Field:       "weights",
		RecordID:    func(w model.Weight) string { return w.ID },
		Date:        func(w model.Weight) time.Time { return w.Date },
		Project:     model.Weight.Item,
		ID:          func(w model.WeightItem) string { return w.ID },
		Less:        WeightNewestFirst,
	}
}

// WeightNewestFirst orders weight items by date descending, then id.
func WeightNewestFirst(a, b model.WeightItem) bool {
	if c := b.Date.Compare(a.Date); c != 0 {
		return c < 0
	}
	return cmp.Less(a.ID, b.ID)
}
