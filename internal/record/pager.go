package record

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/dukerupert/pawlog/internal/aggregate"
	"github.com/dukerupert/pawlog/internal/common"
	"github.com/dukerupert/pawlog/internal/docstore"
	"github.com/dukerupert/pawlog/internal/model"
)

const DefaultPageSize = 20

type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// Pager reads a record collection newest first, one fixed-size page at a
// time. It reads the records themselves, not the buckets.
type Pager[T any] struct {
	docs       *docstore.Store
	collection string
	size       int
}

func NewEntryPager(docs *docstore.Store, size int) *Pager[model.Entry] {
	return newPager[model.Entry](docs, aggregate.EntriesCollection, size)
}

func NewWeightPager(docs *docstore.Store, size int) *Pager[model.Weight] {
	return newPager[model.Weight](docs, aggregate.WeightsCollection, size)
}

func newPager[T any](docs *docstore.Store, collection string, size int) *Pager[T] {
	if size <= 0 {
		size = DefaultPageSize
	}
	return &Pager[T]{docs: docs, collection: collection, size: size}
}

// Page returns the page after cursor. An empty cursor starts from the newest
// record; an empty NextCursor in the result means there is nothing more.
func (p *Pager[T]) Page(ctx context.Context, owner, cursor string) (Page[T], error) {
	if err := validateOwner(owner); err != nil {
		return Page[T]{}, fmt.Errorf("page %s: %w", p.collection, err)
	}
	q := docstore.Query{
		Owner:      owner,
		Collection: p.collection,
		OrderBy:    "date",
		Descending: true,
		Limit:      p.size + 1,
	}
	if cursor != "" {
		c, err := decodeCursor(cursor)
		if err != nil {
			return Page[T]{}, fmt.Errorf("page %s: %w", p.collection, err)
		}
		q.After = &c
	}

	snaps, err := p.docs.Query(ctx, q)
	if err != nil {
		return Page[T]{}, fmt.Errorf("page %s: %w", p.collection, err)
	}

	var next string
	if len(snaps) > p.size {
		snaps = snaps[:p.size]
		c, err := docstore.CursorAfter(snaps[len(snaps)-1], "date")
		if err != nil {
			return Page[T]{}, fmt.Errorf("page %s: %w", p.collection, err)
		}
		next = encodeCursor(c)
	}

	items := make([]T, 0, len(snaps))
	for _, snap := range snaps {
		v, err := decode[T](snap)
		if err != nil {
			return Page[T]{}, fmt.Errorf("page %s: %w", p.collection, err)
		}
		items = append(items, *v)
	}
	return Page[T]{Items: items, NextCursor: next}, nil
}

func encodeCursor(c docstore.Cursor) string {
	b, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(b)
}

func decodeCursor(s string) (docstore.Cursor, error) {
	var c docstore.Cursor
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return c, common.Invalid("cursor", "is malformed")
	}
	if err := json.Unmarshal(b, &c); err != nil || c.ID == "" {
		return c, common.Invalid("cursor", "is malformed")
	}
	return c, nil
}
