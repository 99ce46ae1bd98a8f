package record

import (
	"context"
	"fmt"
	"time"

	"github.com/dukerupert/pawlog/internal/aggregate"
	"github.com/dukerupert/pawlog/internal/auth"
	"github.com/dukerupert/pawlog/internal/common"
	"github.com/dukerupert/pawlog/internal/docstore"
	"github.com/dukerupert/pawlog/internal/model"
)

type EntryInput struct {
	Type        model.EntryType `json:"type"`
	TimeType    model.TimeType  `json:"time_type"`
	Date        time.Time       `json:"date"`
	EndDate     *time.Time      `json:"end_date"`
	Title       string          `json:"title"`
	Body        string          `json:"body"`
	Tags        []string        `json:"tags"`
	ImageURLs   []string        `json:"image_urls"`
	FriendIDs   []string        `json:"friend_ids"`
	IsCompleted *bool           `json:"is_completed"`
}

// EntryPatch holds the fields to change; nil leaves a field untouched.
type EntryPatch struct {
	Type        *model.EntryType `json:"type"`
	TimeType    *model.TimeType  `json:"time_type"`
	Date        *time.Time       `json:"date"`
	EndDate     *time.Time       `json:"end_date"`
	Title       *string          `json:"title"`
	Body        *string          `json:"body"`
	Tags        *[]string        `json:"tags"`
	ImageURLs   *[]string        `json:"image_urls"`
	FriendIDs   *[]string        `json:"friend_ids"`
	IsCompleted *bool            `json:"is_completed"`
}

type EntryStore struct {
	base
	sync aggregate.Dispatcher[model.Entry]
}

// NewEntryStore returns an EntryStore. sync may be nil, in which case no
// bucket maintenance happens.
func NewEntryStore(docs *docstore.Store, sync aggregate.Dispatcher[model.Entry], opts ...Option) *EntryStore {
	return &EntryStore{base: newBase(docs, opts), sync: sync}
}

func (s *EntryStore) path(owner, id string) docstore.Path {
	return docstore.Doc(owner, aggregate.EntriesCollection, id)
}

func (s *EntryStore) dispatch(ctx context.Context, ch aggregate.Change[model.Entry]) {
	if s.sync != nil {
		s.sync.Dispatch(ctx, ch)
	}
}

func (s *EntryStore) Add(ctx context.Context, owner string, in EntryInput) (string, error) {
	if err := validateOwner(owner); err != nil {
		return "", fmt.Errorf("add entry: %w", err)
	}
	e := model.Entry{
		Type:        in.Type,
		TimeType:    in.TimeType,
		Date:        in.Date,
		EndDate:     in.EndDate,
		Title:       in.Title,
		Body:        in.Body,
		Tags:        in.Tags,
		ImageURLs:   in.ImageURLs,
		FriendIDs:   in.FriendIDs,
		IsCompleted: in.IsCompleted,
	}
	if err := normalizeEntry(&e); err != nil {
		return "", fmt.Errorf("add entry: %w", err)
	}

	now := s.clock()
	actor := auth.Actor(ctx)
	e.ID = s.newID()
	e.CreatedAt, e.UpdatedAt = now, now
	e.CreatedBy, e.UpdatedBy = actor, actor

	if err := s.docs.Set(ctx, s.path(owner, e.ID), e, docstore.SetOptions{}); err != nil {
		return "", fmt.Errorf("add entry: %w", err)
	}

	s.dispatch(ctx, aggregate.Change[model.Entry]{Op: aggregate.OpCreate, Owner: owner, ID: e.ID, After: &e})
	return e.ID, nil
}

func (s *EntryStore) Get(ctx context.Context, owner, id string) (*model.Entry, error) {
	if err := validateOwner(owner); err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	if err := validateID(id); err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	p := s.path(owner, id)
	snap, err := s.docs.Get(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	if !snap.Exists {
		return nil, notFound(p)
	}
	return decode[model.Entry](snap)
}

func (s *EntryStore) Update(ctx context.Context, owner, id string, patch EntryPatch) error {
	if err := validateOwner(owner); err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	if err := validateID(id); err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	if err := patch.validate(); err != nil {
		return fmt.Errorf("update entry: %w", err)
	}

	p := s.path(owner, id)
	var before, after *model.Entry
	_, err := s.docs.Update(ctx, p, docstore.SetOptions{}, func(cur docstore.Snapshot) (any, error) {
		if !cur.Exists {
			return nil, notFound(p)
		}
		b, err := decode[model.Entry](cur)
		if err != nil {
			return nil, err
		}
		a := *b
		patch.apply(&a)
		if err := normalizeEntry(&a); err != nil {
			return nil, err
		}
		a.UpdatedAt = s.clock()
		a.UpdatedBy = auth.Actor(ctx)
		before, after = b, &a
		return a, nil
	})
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}

	s.dispatch(ctx, aggregate.Change[model.Entry]{Op: aggregate.OpUpdate, Owner: owner, ID: id, Before: before, After: after})
	return nil
}

func (s *EntryStore) Delete(ctx context.Context, owner, id string) error {
	if err := validateOwner(owner); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if err := validateID(id); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}

	p := s.path(owner, id)
	snap, err := s.docs.DeleteFunc(ctx, p, func(cur docstore.Snapshot) error {
		if !cur.Exists {
			return notFound(p)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	before, err := decode[model.Entry](snap)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}

	s.dispatch(ctx, aggregate.Change[model.Entry]{Op: aggregate.OpDelete, Owner: owner, ID: id, Before: before})
	return nil
}

func (p EntryPatch) validate() error {
	if p.Type != nil && !p.Type.Valid() {
		return common.Invalid("type", fmt.Sprintf("%q is not diary or schedule", *p.Type))
	}
	if p.TimeType != nil && !p.TimeType.Valid() {
		return common.Invalid("time_type", fmt.Sprintf("%q is not point or range", *p.TimeType))
	}
	if p.Date != nil && p.Date.IsZero() {
		return common.Invalid("date", "is required")
	}
	return nil
}

func (p EntryPatch) apply(e *model.Entry) {
	if p.Type != nil {
		e.Type = *p.Type
	}
	if p.TimeType != nil {
		e.TimeType = *p.TimeType
	}
	if p.Date != nil {
		e.Date = *p.Date
	}
	if p.EndDate != nil {
		end := *p.EndDate
		e.EndDate = &end
	}
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Body != nil {
		e.Body = *p.Body
	}
	if p.Tags != nil {
		e.Tags = *p.Tags
	}
	if p.ImageURLs != nil {
		e.ImageURLs = *p.ImageURLs
	}
	if p.FriendIDs != nil {
		e.FriendIDs = *p.FriendIDs
	}
	if p.IsCompleted != nil {
		done := *p.IsCompleted
		e.IsCompleted = &done
	}
}

// normalizeEntry validates e and brings it into canonical form: point entries
// lose their end date, diary entries lose completion state, and the set-like
// lists are trimmed, de-duplicated and sorted.
func normalizeEntry(e *model.Entry) error {
	if e.TimeType == "" {
		e.TimeType = model.TimeTypePoint
	}
	switch {
	case !e.Type.Valid():
		return common.Invalid("type", fmt.Sprintf("%q is not diary or schedule", e.Type))
	case !e.TimeType.Valid():
		return common.Invalid("time_type", fmt.Sprintf("%q is not point or range", e.TimeType))
	case e.Date.IsZero():
		return common.Invalid("date", "is required")
	}
	e.Date = e.Date.UTC()

	if e.TimeType == model.TimeTypePoint {
		e.EndDate = nil
	} else {
		if e.EndDate == nil || e.EndDate.IsZero() {
			return common.Invalid("end_date", "is required for range entries")
		}
		end := e.EndDate.UTC()
		if end.Before(e.Date) {
			return common.Invalid("end_date", "must not be before date")
		}
		e.EndDate = &end
	}

	if e.Type == model.EntryTypeDiary {
		e.IsCompleted = nil
	} else if e.IsCompleted == nil {
		done := false
		e.IsCompleted = &done
	}

	e.Tags = normalizeSet(e.Tags)
	e.ImageURLs = normalizeList(e.ImageURLs)
	if e.FriendIDs != nil {
		e.FriendIDs = normalizeSet(e.FriendIDs)
		if len(e.FriendIDs) == 0 {
			e.FriendIDs = nil
		}
	}
	return nil
}
