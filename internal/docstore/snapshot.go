package docstore

import (
	"encoding/json"
	"fmt"
	"time"
)

// Snapshot is the committed state of one document. Exists is false for a
// document that has never been written or has been deleted.
type Snapshot struct {
	Path      Path            `json:"path"`
	Exists    bool            `json:"exists"`
	Data      json.RawMessage `json:"data,omitempty"`
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Decode unmarshals the document body into v. An absent document leaves v
// untouched, so callers can treat it as the zero value.
func (s Snapshot) Decode(v any) error {
	if !s.Exists || len(s.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(s.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", s.Path, err)
	}
	return nil
}

// Event is one push from a watch stream.
type Event[T any] struct {
	Value T
	Err   error
}
