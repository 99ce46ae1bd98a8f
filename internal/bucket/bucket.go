// Package bucket maps instants to the time buckets that hold their summaries.
package bucket

import (
	"fmt"
	"time"

	"github.com/dukerupert/pawlog/internal/common"
)

type Granularity int

const (
	Month Granularity = iota
	Year
)

func (g Granularity) String() string {
	switch g {
	case Month:
		return "month"
	case Year:
		return "year"
	default:
		return fmt.Sprintf("granularity(%d)", int(g))
	}
}

const (
	monthLayout = "2006-01"
	yearLayout  = "2006"
)

// Resolver computes bucket keys on the calendar of Location.
type Resolver struct {
	Location *time.Location
}

func NewResolver(loc *time.Location) Resolver {
	if loc == nil {
		loc = time.Local
	}
	return Resolver{Location: loc}
}

func (r Resolver) loc() *time.Location {
	if r.Location == nil {
		return time.Local
	}
	return r.Location
}

// Key returns "YYYY-MM" for Month and "YYYY" for Year.
func (r Resolver) Key(t time.Time, g Granularity) string {
	local := t.In(r.loc())
	if g == Year {
		return local.Format(yearLayout)
	}
	return local.Format(monthLayout)
}

// ParseMonth validates a "YYYY-MM" key.
func ParseMonth(key string) (year int, month time.Month, err error) {
	t, err := time.Parse(monthLayout, key)
	if err != nil || t.Format(monthLayout) != key {
		return 0, 0, common.Invalid("month", fmt.Sprintf("%q is not a YYYY-MM key", key))
	}
	return t.Year(), t.Month(), nil
}

// ParseYear validates a "YYYY" key.
func ParseYear(key string) (int, error) {
	t, err := time.Parse(yearLayout, key)
	if err != nil || t.Format(yearLayout) != key {
		return 0, common.Invalid("year", fmt.Sprintf("%q is not a YYYY key", key))
	}
	return t.Year(), nil
}

// MonthRange returns the half-open interval [start, end) covered by a month key.
func (r Resolver) MonthRange(key string) (start, end time.Time, err error) {
	y, m, err := ParseMonth(key)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start = time.Date(y, m, 1, 0, 0, 0, 0, r.loc())
	return start, start.AddDate(0, 1, 0), nil
}

// YearRange returns the half-open interval [start, end) covered by a year key.
func (r Resolver) YearRange(key string) (start, end time.Time, err error) {
	y, err := ParseYear(key)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start = time.Date(y, time.January, 1, 0, 0, 0, 0, r.loc())
	return start, start.AddDate(1, 0, 0), nil
}
