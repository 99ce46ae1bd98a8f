package record

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/dukerupert/pawlog/internal/aggregate"
	"github.com/dukerupert/pawlog/internal/auth"
	"github.com/dukerupert/pawlog/internal/common"
	"github.com/dukerupert/pawlog/internal/docstore"
	"github.com/dukerupert/pawlog/internal/model"
)

type WeightInput struct {
	Value float64    `json:"value"`
	Unit  model.Unit `json:"unit"`
	Date  time.Time  `json:"date"`
}

type WeightPatch struct {
	Value *float64    `json:"value"`
	Unit  *model.Unit `json:"unit"`
	Date  *time.Time  `json:"date"`
}

type WeightStore struct {
	base
	sync aggregate.Dispatcher[model.Weight]
}

func NewWeightStore(docs *docstore.Store, sync aggregate.Dispatcher[model.Weight], opts ...Option) *WeightStore {
	return &WeightStore{base: newBase(docs, opts), sync: sync}
}

func (s *WeightStore) path(owner, id string) docstore.Path {
	return docstore.Doc(owner, aggregate.WeightsCollection, id)
}

func (s *WeightStore) dispatch(ctx context.Context, ch aggregate.Change[model.Weight]) {
	if s.sync != nil {
		s.sync.Dispatch(ctx, ch)
	}
}

func (s *WeightStore) Add(ctx context.Context, owner string, in WeightInput) (string, error) {
	if err := validateOwner(owner); err != nil {
		return "", fmt.Errorf("add weight: %w", err)
	}
	w := model.Weight{Value: in.Value, Unit: in.Unit, Date: in.Date}
	if err := normalizeWeight(&w); err != nil {
		return "", fmt.Errorf("add weight: %w", err)
	}

	now := s.clock()
	actor := auth.Actor(ctx)
	w.ID = s.newID()
	w.CreatedAt, w.UpdatedAt = now, now
	w.CreatedBy, w.UpdatedBy = actor, actor

	if err := s.docs.Set(ctx, s.path(owner, w.ID), w, docstore.SetOptions{}); err != nil {
		return "", fmt.Errorf("add weight: %w", err)
	}

	s.dispatch(ctx, aggregate.Change[model.Weight]{Op: aggregate.OpCreate, Owner: owner, ID: w.ID, After: &w})
	return w.ID, nil
}

func (s *WeightStore) Get(ctx context.Context, owner, id string) (*model.Weight, error) {
	if err := validateOwner(owner); err != nil {
		return nil, fmt.Errorf("get weight: %w", err)
	}
	if err := validateID(id); err != nil {
		return nil, fmt.Errorf("get weight: %w", err)
	}
	p := s.path(owner, id)
	snap, err := s.docs.Get(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("get weight: %w", err)
	}
	if !snap.Exists {
		return nil, notFound(p)
	}
	return decode[model.Weight](snap)
}

func (s *WeightStore) Update(ctx context.Context, owner, id string, patch WeightPatch) error {
	if err := validateOwner(owner); err != nil {
		return fmt.Errorf("update weight: %w", err)
	}
	if err := validateID(id); err != nil {
		return fmt.Errorf("update weight: %w", err)
	}
	if err := patch.validate(); err != nil {
		return fmt.Errorf("update weight: %w", err)
	}

	p := s.path(owner, id)
	var before, after *model.Weight
	_, err := s.docs.Update(ctx, p, docstore.SetOptions{}, func(cur docstore.Snapshot) (any, error) {
		if !cur.Exists {
			return nil, notFound(p)
		}
		b, err := decode[model.Weight](cur)
		if err != nil {
			return nil, err
		}
		a := *b
		if patch.Value != nil {
			a.Value = *patch.Value
		}
		if patch.Unit != nil {
			a.Unit = *patch.Unit
		}
		if patch.Date != nil {
			a.Date = *patch.Date
		}
		if err := normalizeWeight(&a); err != nil {
			return nil, err
		}
		a.UpdatedAt = s.clock()
		a.UpdatedBy = auth.Actor(ctx)
		before, after = b, &a
		return a, nil
	})
	if err != nil {
		return fmt.Errorf("update weight: %w", err)
	}

	s.dispatch(ctx, aggregate.Change[model.Weight]{Op: aggregate.OpUpdate, Owner: owner, ID: id, Before: before, After: after})
	return nil
}

func (s *WeightStore) Delete(ctx context.Context, owner, id string) error {
	if err := validateOwner(owner); err != nil {
		return fmt.Errorf("delete weight: %w", err)
	}
	if err := validateID(id); err != nil {
		return fmt.Errorf("delete weight: %w", err)
	}

	p := s.path(owner, id)
	snap, err := s.docs.DeleteFunc(ctx, p, func(cur docstore.Snapshot) error {
		if !cur.Exists {
			return notFound(p)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete weight: %w", err)
	}
	before, err := decode[model.Weight](snap)
	if err != nil {
		return fmt.Errorf("delete weight: %w", err)
	}

	s.dispatch(ctx, aggregate.Change[model.Weight]{Op: aggregate.OpDelete, Owner: owner, ID: id, Before: before})
	return nil
}

func (p WeightPatch) validate() error {
	if p.Value != nil {
		if err := validateValue(*p.Value); err != nil {
			return err
		}
	}
	if p.Unit != nil && !p.Unit.Valid() {
		return common.Invalid("unit", fmt.Sprintf("%q is not kg or g", *p.Unit))
	}
	if p.Date != nil && p.Date.IsZero() {
		return common.Invalid("date", "is required")
	}
	return nil
}

func validateValue(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return common.Invalid("value", "must be a finite number")
	}
	if v <= 0 {
		return common.Invalid("value", "must be positive")
	}
	return nil
}

func normalizeWeight(w *model.Weight) error {
	if err := validateValue(w.Value); err != nil {
		return err
	}
	if w.Unit == "" {
		w.Unit = model.UnitKilogram
	}
	if !w.Unit.Valid() {
		return common.Invalid("unit", fmt.Sprintf("%q is not kg or g", w.Unit))
	}
	if w.Date.IsZero() {
		return common.Invalid("date", "is required")
	}
	w.Date = w.Date.UTC()
	return nil
}
