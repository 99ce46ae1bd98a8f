// Package record is the authoritative store for entries and weights. Every
// successful mutation hands a change to the bucket synchronizer.
package record

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/pawlog/internal/common"
	"github.com/dukerupert/pawlog/internal/docstore"
)

type base struct {
	docs  *docstore.Store
	now   func() time.Time
	newID func() string
}

type Option func(*base)

func WithClock(now func() time.Time) Option { return func(b *base) { b.now = now } }

func WithIDGenerator(fn func() string) Option { return func(b *base) { b.newID = fn } }

func newBase(docs *docstore.Store, opts []Option) base {
	b := base{docs: docs, now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

func (b base) clock() time.Time {
	return b.now().UTC()
}

func validateOwner(owner string) error {
	if strings.TrimSpace(owner) == "" {
		return common.Invalid("owner", "is required")
	}
	if strings.Contains(owner, "/") {
		return common.Invalid("owner", "must not contain '/'")
	}
	return nil
}

func validateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return common.Invalid("id", "is required")
	}
	if strings.Contains(id, "/") {
		return common.Invalid("id", "must not contain '/'")
	}
	return nil
}

// normalizeSet trims, drops blanks, de-duplicates and sorts.
func normalizeSet(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// normalizeList trims and drops blanks, keeping order.
func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func decode[T any](snap docstore.Snapshot) (*T, error) {
	var v T
	if err := json.Unmarshal(snap.Data, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", snap.Path, err)
	}
	return &v, nil
}

func notFound(p docstore.Path) error {
	return fmt.Errorf("%s %s: %w", strings.TrimSuffix(p.Collection, "s"), p.ID, common.ErrNotFound)
}
