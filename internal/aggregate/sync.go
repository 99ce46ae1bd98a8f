package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dukerupert/pawlog/internal/bucket"
	"github.com/dukerupert/pawlog/internal/docstore"
)

// Synchronizer applies record changes to the bucket documents of one
// Definition.
type Synchronizer[R, P any] struct {
	def      Definition[R, P]
	store    *docstore.Store
	resolver bucket.Resolver
	logger   *slog.Logger
}

func NewSynchronizer[R, P any](def Definition[R, P], store *docstore.Store, resolver bucket.Resolver, logger *slog.Logger) *Synchronizer[R, P] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer[R, P]{
		def:      def,
		store:    store,
		resolver: resolver,
		logger:   logger.With("component", "sync", "aggregate", def.Name),
	}
}

func (s *Synchronizer[R, P]) Name() string { return s.def.Name }

// Collections returns the record and bucket collections of the aggregate.
func (s *Synchronizer[R, P]) Collections() []string {
	return []string{s.def.Source, s.def.Collection}
}

// Key returns the bucket key of r.
func (s *Synchronizer[R, P]) Key(r R) string {
	return s.resolver.Key(s.def.Date(r), s.def.Granularity)
}

// Path returns the bucket document for key.
func (s *Synchronizer[R, P]) Path(owner, key string) docstore.Path {
	return docstore.Doc(owner, s.def.Collection, key)
}

// Apply brings the affected bucket(s) in line with ch. The change only says
// where the record was; where it is now comes from the record collection.
// The bucket of ch.Before is cleaned when the record has left it, and the
// stored record is upserted into its own bucket, so jobs for the same record
// converge whatever order they run in.
func (s *Synchronizer[R, P]) Apply(ctx context.Context, ch Change[R]) error {
	if err := ch.validate(); err != nil {
		return err
	}

	current, err := s.record(ctx, ch.Owner, ch.ID)
	if err != nil {
		return err
	}

	var stale string
	if ch.Before != nil {
		stale = s.Key(*ch.Before)
	}

	if current == nil {
		if stale == "" {
			// Created and deleted before this job ran; the delete job cleans up.
			return nil
		}
		return s.patch(ctx, ch.Owner, stale, ch.ID, nil)
	}

	key := s.Key(*current)
	if stale != "" && stale != key {
		s.logger.Debug("record moved bucket", "owner", ch.Owner, "id", ch.ID, "from", stale, "to", key)
		if err := s.patch(ctx, ch.Owner, stale, ch.ID, nil); err != nil {
			return err
		}
	}
	return s.upsert(ctx, ch.Owner, *current)
}

// record reads the stored record, or nil when it no longer exists.
func (s *Synchronizer[R, P]) record(ctx context.Context, owner, id string) (*R, error) {
	snap, err := s.store.Get(ctx, docstore.Doc(owner, s.def.Source, id))
	if err != nil {
		return nil, fmt.Errorf("sync %s: read record: %w", id, err)
	}
	if !snap.Exists {
		return nil, nil
	}
	var r R
	if err := snap.Decode(&r); err != nil {
		return nil, fmt.Errorf("sync %s: %w", id, err)
	}
	return &r, nil
}

func (s *Synchronizer[R, P]) upsert(ctx context.Context, owner string, r R) error {
	p := s.def.Project(r)
	return s.patch(ctx, owner, s.Key(r), s.def.RecordID(r), &p)
}

// patch drops every projection with id from the bucket and, when upsert is
// set, appends it again. The bucket is written even when the list ends up
// empty.
func (s *Synchronizer[R, P]) patch(ctx context.Context, owner, key, id string, upsert *P) error {
	path := s.Path(owner, key)
	_, err := s.store.Update(ctx, path, docstore.SetOptions{Merge: true}, func(cur docstore.Snapshot) (any, error) {
		list, err := s.decode(cur)
		if err != nil {
			return nil, err
		}
		next := make([]P, 0, len(list)+1)
		for _, p := range list {
			if s.def.ID(p) != id {
				next = append(next, p)
			}
		}
		if upsert != nil {
			next = append(next, *upsert)
		}
		s.def.sort(next)
		return map[string]any{s.def.Field: next}, nil
	})
	if err != nil {
		return fmt.Errorf("sync %s into %s: %w", id, path, err)
	}
	return nil
}

// write replaces the bucket list, skipping the write when it is unchanged.
func (s *Synchronizer[R, P]) write(ctx context.Context, owner, key string, list []P) (bool, error) {
	if list == nil {
		list = []P{}
	}
	s.def.sort(list)
	want, err := json.Marshal(list)
	if err != nil {
		return false, fmt.Errorf("encode bucket %s: %w", key, err)
	}

	wrote := false
	path := s.Path(owner, key)
	_, err = s.store.Update(ctx, path, docstore.SetOptions{Merge: true}, func(cur docstore.Snapshot) (any, error) {
		wrote = false
		if cur.Exists {
			var fields map[string]json.RawMessage
			if err := json.Unmarshal(cur.Data, &fields); err != nil {
				return nil, fmt.Errorf("decode %s: %w", path, err)
			}
			if raw, ok := fields[s.def.Field]; ok && jsonEqual(raw, want) {
				return nil, docstore.ErrNoChange
			}
		}
		wrote = true
		return map[string]json.RawMessage{s.def.Field: want}, nil
	})
	if err != nil {
		return false, fmt.Errorf("write bucket %s: %w", path, err)
	}
	return wrote, nil
}

// Bucket reads the projections stored in one bucket. A missing bucket yields
// an empty list.
func (s *Synchronizer[R, P]) Bucket(ctx context.Context, owner, key string) ([]P, error) {
	snap, err := s.store.Get(ctx, s.Path(owner, key))
	if err != nil {
		return nil, err
	}
	return s.decode(snap)
}

func (s *Synchronizer[R, P]) decode(snap docstore.Snapshot) ([]P, error) {
	if !snap.Exists {
		return nil, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(snap.Data, &fields); err != nil {
		return nil, fmt.Errorf("decode %s: %w", snap.Path, err)
	}
	raw, ok := fields[s.def.Field]
	if !ok || string(raw) == "null" {
		return nil, nil
	}
	var list []P
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode %s.%s: %w", snap.Path, s.def.Field, err)
	}
	return list, nil
}

func jsonEqual(a, b []byte) bool {
	var x, y any
	if json.Unmarshal(a, &x) != nil || json.Unmarshal(b, &y) != nil {
		return false
	}
	ax, _ := json.Marshal(x)
	by, _ := json.Marshal(y)
	return string(ax) == string(by)
}
