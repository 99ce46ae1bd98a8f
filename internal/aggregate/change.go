package aggregate

import (
	"fmt"

	"github.com/dukerupert/pawlog/internal/common"
)

type Op int

const (
	OpCreate Op = iota
	OpUpdate
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Change describes one committed record mutation. Before is set for updates
// and deletes, After for creates and updates. Before locates the bucket the
// mutation may have left; the bucket contents always come from the record as
// stored when the change is applied.
type Change[R any] struct {
	Op     Op
	Owner  string
	ID     string
	Before *R
	After  *R
}

func (ch Change[R]) validate() error {
	if ch.Owner == "" {
		return common.Invalid("owner", "is required")
	}
	if ch.ID == "" {
		return common.Invalid("id", "is required")
	}
	switch ch.Op {
	case OpCreate:
		if ch.After == nil {
			return common.Invalid("after", "is required for create")
		}
	case OpUpdate:
		if ch.After == nil || ch.Before == nil {
			return common.Invalid("change", "update needs before and after")
		}
	case OpDelete:
		if ch.Before == nil {
			return common.Invalid("before", "is required for delete")
		}
	default:
		return common.Invalid("op", ch.Op.String()+" is not supported")
	}
	return nil
}
