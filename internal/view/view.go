// Package view serves calendar and trend reads from bucket documents,
// one-shot or as push streams.
package view

import (
	"cmp"
	"slices"
	"time"

	"github.com/dukerupert/pawlog/internal/model"
)

// dedupe keeps the last projection seen for each id.
func dedupe[P any](list []P, id func(P) string) []P {
	index := make(map[string]int, len(list))
	out := make([]P, 0, len(list))
	for _, p := range list {
		if i, ok := index[id(p)]; ok {
			out[i] = p
			continue
		}
		index[id(p)] = len(out)
		out = append(out, p)
	}
	return out
}

func newestFirst(aDate, bDate time.Time, aID, bID string) int {
	if c := bDate.Compare(aDate); c != 0 {
		return c
	}
	return cmp.Compare(aID, bID)
}

func sortEntries(list []model.EntrySummary) {
	slices.SortFunc(list, func(a, b model.EntrySummary) int {
		return newestFirst(a.Date, b.Date, a.ID, b.ID)
	})
}

func sortWeights(list []model.WeightItem) {
	slices.SortFunc(list, func(a, b model.WeightItem) int {
		return newestFirst(a.Date, b.Date, a.ID, b.ID)
	})
}
