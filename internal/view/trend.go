package view

import (
	"context"
	"fmt"
	"time"

	"github.com/dukerupert/pawlog/internal/aggregate"
	"github.com/dukerupert/pawlog/internal/common"
	"github.com/dukerupert/pawlog/internal/docstore"
	"github.com/dukerupert/pawlog/internal/model"
)

type Range string

const (
	RangeMonth    Range = "1m"
	RangeQuarter  Range = "3m"
	RangeHalfYear Range = "6m"
	RangeYear     Range = "1y"
	RangeAll      Range = "all"
)

const DefaultTrendSpan = RangeQuarter

// ParseRange accepts 1m, 3m, 6m, 1y and all. An empty string selects the
// default span.
func ParseRange(s string) (Range, error) {
	switch r := Range(s); r {
	case "":
		return DefaultTrendSpan, nil
	case RangeMonth, RangeQuarter, RangeHalfYear, RangeYear, RangeAll:
		return r, nil
	default:
		return "", common.Invalid("range", fmt.Sprintf("%q is not one of 1m, 3m, 6m, 1y, all", s))
	}
}

// Since returns the earliest instant inside the range ending at now. The
// zero time means unbounded.
func (r Range) Since(now time.Time) time.Time {
	switch r {
	case RangeMonth:
		return now.AddDate(0, -1, 0)
	case RangeQuarter:
		return now.AddDate(0, -3, 0)
	case RangeHalfYear:
		return now.AddDate(0, -6, 0)
	case RangeYear:
		return now.AddDate(-1, 0, 0)
	default:
		return time.Time{}
	}
}

type TrendView struct {
	Range   Range              `json:"range"`
	Weights []model.WeightItem `json:"weights"`
	Err     error              `json:"-"`
}

// Trend reads every year bucket of an owner and filters by range.
type Trend struct {
	docs *docstore.Store
	now  func() time.Time
}

func NewTrend(docs *docstore.Store, now func() time.Time) *Trend {
	if now == nil {
		now = time.Now
	}
	return &Trend{docs: docs, now: now}
}

func (t *Trend) query(owner string) docstore.Query {
	return docstore.Query{Owner: owner, Collection: aggregate.WeightYearsCollection}
}

func (t *Trend) Weights(ctx context.Context, owner string, r Range) (TrendView, error) {
	if _, err := ParseRange(string(r)); err != nil {
		return TrendView{}, fmt.Errorf("trend: %w", err)
	}
	snaps, err := t.docs.Query(ctx, t.query(owner))
	if err != nil {
		return TrendView{}, fmt.Errorf("trend: %w", err)
	}
	return t.view(r, snaps)
}

// Watch streams the trend view after every change to any year bucket.
func (t *Trend) Watch(ctx context.Context, owner string, r Range) (<-chan TrendView, error) {
	if _, err := ParseRange(string(r)); err != nil {
		return nil, fmt.Errorf("trend: %w", err)
	}
	events, err := t.docs.WatchQuery(ctx, t.query(owner))
	if err != nil {
		return nil, fmt.Errorf("trend: %w", err)
	}

	out := make(chan TrendView)
	go func() {
		defer close(out)
		for ev := range events {
			v := TrendView{Range: r, Err: ev.Err}
			if ev.Err == nil {
				v, _ = t.view(r, ev.Value)
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

func (t *Trend) view(r Range, snaps []docstore.Snapshot) (TrendView, error) {
	if r == "" {
		r = DefaultTrendSpan
	}
	var all []model.WeightItem
	for _, snap := range snaps {
		var doc model.YearlyWeightSummary
		if err := snap.Decode(&doc); err != nil {
			err = fmt.Errorf("trend %s: %w", snap.Path, err)
			return TrendView{Range: r, Weights: []model.WeightItem{}, Err: err}, err
		}
		all = append(all, doc.Weights...)
	}
	all = dedupe(all, func(w model.WeightItem) string { return w.ID })
	sortWeights(all)

	since := r.Since(t.now())
	weights := make([]model.WeightItem, 0, len(all))
	for _, w := range all {
		if since.IsZero() || !w.Date.Before(since) {
			weights = append(weights, w)
		}
	}
	return TrendView{Range: r, Weights: weights}, nil
}
