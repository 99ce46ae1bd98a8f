package docstore

import (
	"context"
	"fmt"
)

// WatchDoc streams snapshots of p: the current state first, then the latest
// state after every committed change, including the caller's own writes.
// The channel is closed when ctx is done.
func (s *Store) WatchDoc(ctx context.Context, p Path) (<-chan Event[Snapshot], error) {
	if err := s.check(ctx, p); err != nil {
		return nil, fmt.Errorf("watch %s: %w", p, err)
	}
	return watch(ctx, s.hub, p.String(), func(ctx context.Context) (Snapshot, error) {
		return s.get(ctx, s.db, p)
	}), nil
}

// WatchQuery streams the result of q, re-run after every committed change in
// the queried collection.
func (s *Store) WatchQuery(ctx context.Context, q Query) (<-chan Event[[]Snapshot], error) {
	key := collectionKey(q.Owner, q.Collection)
	if err := q.validate(); err != nil {
		return nil, fmt.Errorf("watch %s: %w", key, err)
	}
	if err := s.authorize(ctx, q.Owner); err != nil {
		return nil, fmt.Errorf("watch %s: %w", key, err)
	}
	return watch(ctx, s.hub, key, func(ctx context.Context) ([]Snapshot, error) {
		return s.query(ctx, q)
	}), nil
}

func watch[T any](ctx context.Context, hub *Hub, topic string, fetch func(context.Context) (T, error)) <-chan Event[T] {
	out := make(chan Event[T])
	// Subscribe before the first read so no commit can slip between them.
	sub := hub.subscribe(topic)

	go func() {
		defer close(out)
		defer hub.unsubscribe(sub)

		for {
			v, err := fetch(ctx)
			if ctx.Err() != nil {
				return
			}
			select {
			case out <- Event[T]{Value: v, Err: err}:
			case <-ctx.Done():
				return
			}

			select {
			case <-sub.signal:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
