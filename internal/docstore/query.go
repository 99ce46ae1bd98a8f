package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/dukerupert/pawlog/internal/common"
)

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Query selects the documents of one owner's collection. OrderBy names a
// top-level field holding an RFC 3339 timestamp; documents are then ordered by
// that instant with the document id as tie-breaker. Without OrderBy the order
// is by id ascending.
type Query struct {
	Owner      string
	Collection string
	OrderBy    string
	Descending bool
	Limit      int
	After      *Cursor
}

// Cursor marks the last document of a previous page.
type Cursor struct {
	Value string `json:"v,omitempty"`
	ID    string `json:"id"`
}

// CursorAfter builds the cursor that continues a query ordered by field
// right after snap.
func CursorAfter(snap Snapshot, field string) (Cursor, error) {
	c := Cursor{ID: snap.Path.ID}
	if field == "" {
		return c, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(snap.Data, &fields); err != nil {
		return Cursor{}, fmt.Errorf("cursor for %s: %w", snap.Path, err)
	}
	if raw, ok := fields[field]; ok {
		if err := json.Unmarshal(raw, &c.Value); err != nil {
			return Cursor{}, fmt.Errorf("cursor for %s: field %s: %w", snap.Path, field, err)
		}
	}
	return c, nil
}

func (q Query) validate() error {
	if strings.TrimSpace(q.Owner) == "" {
		return common.Invalid("owner", "is required")
	}
	if strings.TrimSpace(q.Collection) == "" {
		return common.Invalid("collection", "is required")
	}
	if q.OrderBy != "" && !fieldName.MatchString(q.OrderBy) {
		return common.Invalid("order_by", fmt.Sprintf("%q is not a field name", q.OrderBy))
	}
	if q.Limit < 0 {
		return common.Invalid("limit", "must not be negative")
	}
	return nil
}

// Query runs q and returns the matching snapshots in order.
func (s *Store) Query(ctx context.Context, q Query) ([]Snapshot, error) {
	if err := q.validate(); err != nil {
		return nil, fmt.Errorf("query %s: %w", collectionKey(q.Owner, q.Collection), err)
	}
	if err := s.authorize(ctx, q.Owner); err != nil {
		return nil, fmt.Errorf("query %s: %w", collectionKey(q.Owner, q.Collection), err)
	}
	return s.query(ctx, q)
}

func (s *Store) query(ctx context.Context, q Query) ([]Snapshot, error) {
	where := "owner = ? AND collection = ?"
	args := []any{q.Owner, q.Collection}
	order := "doc_id ASC"

	if q.OrderBy != "" {
		key := "julianday(json_extract(data, '$." + q.OrderBy + "'))"
		dir, cmp := "ASC", ">"
		if q.Descending {
			dir, cmp = "DESC", "<"
		}
		order = key + " " + dir + ", doc_id " + dir
		if q.After != nil {
			where += " AND (" + key + " " + cmp + " julianday(?) OR (" + key + " = julianday(?) AND doc_id " + cmp + " ?))"
			args = append(args, q.After.Value, q.After.Value, q.After.ID)
		}
	} else if q.After != nil {
		where += " AND doc_id > ?"
		args = append(args, q.After.ID)
	}

	stmt := `SELECT ` + docCols + ` FROM documents WHERE ` + where + ` ORDER BY ` + order
	if q.Limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collectionKey(q.Owner, q.Collection), err)
	}
	defer rows.Close()

	var snaps []Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}
