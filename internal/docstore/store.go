// Package docstore is a small document store on top of SQLite. Documents are
// JSON objects addressed by owner/collection/id, carry a version that is bumped
// on every write, and can be watched for committed changes.
package docstore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dukerupert/pawlog/internal/common"
)

// ErrNoChange can be returned from an UpdateFunc to skip the write.
var ErrNoChange = errors.New("docstore: no change")

// Guard authorizes access to an owner's documents. It should return an error
// wrapping common.ErrPermissionDenied to refuse.
type Guard func(ctx context.Context, owner string) error

// Relay forwards change notifications to other processes sharing the database.
type Relay interface {
	Publish(ctx context.Context, topics []string) error
}

// SetOptions controls how Set and Update write the document body.
// Merge applies the fields as an RFC 7396 merge patch over the stored object;
// otherwise the body is replaced.
type SetOptions struct {
	Merge bool
}

// UpdateFunc computes the fields to write from the current snapshot.
// It may run several times when the write loses a version race.
type UpdateFunc func(current Snapshot) (any, error)

type Store struct {
	db         *sql.DB
	hub        *Hub
	guard      Guard
	relay      Relay
	now        func() time.Time
	maxRetries uint64
	backoff    time.Duration
	onConflict func(Path)
	logger     *slog.Logger
}

type Option func(*Store)

func WithGuard(g Guard) Option { return func(s *Store) { s.guard = g } }

func WithHub(h *Hub) Option { return func(s *Store) { s.hub = h } }

func WithRelay(r Relay) Option { return func(s *Store) { s.relay = r } }

func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.logger = l } }

// WithRetry bounds the optimistic retry loop used by Update and DeleteFunc.
func WithRetry(maxRetries uint64, base time.Duration) Option {
	return func(s *Store) {
		s.maxRetries = maxRetries
		s.backoff = base
	}
}

// WithConflictHook is called every time a conditional write loses a race.
func WithConflictHook(fn func(Path)) Option { return func(s *Store) { s.onConflict = fn } }

func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:         db,
		now:        time.Now,
		maxRetries: 8,
		backoff:    5 * time.Millisecond,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hub == nil {
		s.hub = NewHub()
	}
	return s
}

// Hub returns the change hub watchers subscribe to.
func (s *Store) Hub() *Hub {
	return s.hub
}

const docCols = `owner, collection, doc_id, data, version, created_at, updated_at`

func scanSnapshot(scanner interface{ Scan(...any) error }) (Snapshot, error) {
	var snap Snapshot
	var data string
	err := scanner.Scan(
		&snap.Path.Owner, &snap.Path.Collection, &snap.Path.ID,
		&data, &snap.Version, &snap.CreatedAt, &snap.UpdatedAt,
	)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Data = json.RawMessage(data)
	snap.Exists = true
	return snap, nil
}

func (s *Store) authorize(ctx context.Context, owner string) error {
	if s.guard == nil {
		return nil
	}
	return s.guard(ctx, owner)
}

func (s *Store) check(ctx context.Context, p Path) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.authorize(ctx, p.Owner)
}

// Get returns the document at p. A missing document is not an error: the
// snapshot comes back with Exists == false.
func (s *Store) Get(ctx context.Context, p Path) (Snapshot, error) {
	if err := s.check(ctx, p); err != nil {
		return Snapshot{}, fmt.Errorf("get %s: %w", p, err)
	}
	return s.get(ctx, s.db, p)
}

func (s *Store) get(ctx context.Context, q rowQuerier, p Path) (Snapshot, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+docCols+` FROM documents WHERE owner = ? AND collection = ? AND doc_id = ?`,
		p.Owner, p.Collection, p.ID,
	)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{Path: p}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("get %s: %w", p, err)
	}
	return snap, nil
}

func encodeFields(fields any) (string, error) {
	b, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		return "", common.Invalid("fields", "must encode to a JSON object")
	}
	return string(b), nil
}

// Set writes fields to p unconditionally, creating the document if needed.
func (s *Store) Set(ctx context.Context, p Path, fields any, opts SetOptions) error {
	if err := s.check(ctx, p); err != nil {
		return fmt.Errorf("set %s: %w", p, err)
	}
	data, err := encodeFields(fields)
	if err != nil {
		return fmt.Errorf("set %s: %w", p, err)
	}

	insertExpr, updateExpr := "json(?4)", "json(?4)"
	if opts.Merge {
		insertExpr, updateExpr = "json_patch('{}', ?4)", "json_patch(documents.data, ?4)"
	}

	now := s.now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (owner, collection, doc_id, data, version, created_at, updated_at)
		 VALUES (?1, ?2, ?3, `+insertExpr+`, 1, ?5, ?5)
		 ON CONFLICT (owner, collection, doc_id) DO UPDATE SET
		   data = `+updateExpr+`,
		   version = documents.version + 1,
		   updated_at = ?5`,
		p.Owner, p.Collection, p.ID, data, now,
	)
	if err != nil {
		return fmt.Errorf("set %s: %w", p, err)
	}

	s.changed(ctx, p)
	return nil
}

// Update performs an optimistic read-modify-write: it reads p, asks fn for
// the fields to write, and commits them only if the document version is
// unchanged since the read. Lost races are retried with backoff; when the
// retries run out the error wraps common.ErrVersionConflict.
func (s *Store) Update(ctx context.Context, p Path, opts SetOptions, fn UpdateFunc) (Snapshot, error) {
	if err := s.check(ctx, p); err != nil {
		return Snapshot{}, fmt.Errorf("update %s: %w", p, err)
	}

	var committed Snapshot
	skipped := false
	err := s.retry(ctx, func(ctx context.Context) error {
		cur, err := s.get(ctx, s.db, p)
		if err != nil {
			return err
		}
		fields, err := fn(cur)
		if errors.Is(err, ErrNoChange) {
			committed, skipped = cur, true
			return nil
		}
		if err != nil {
			return err
		}
		data, err := encodeFields(fields)
		if err != nil {
			return err
		}
		committed, err = s.writeIfVersion(ctx, p, cur, data, opts.Merge)
		if errors.Is(err, common.ErrVersionConflict) {
			if s.onConflict != nil {
				s.onConflict(p)
			}
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("update %s: %w", p, err)
	}

	if !skipped {
		s.changed(ctx, p)
	}
	return committed, nil
}

func (s *Store) writeIfVersion(ctx context.Context, p Path, cur Snapshot, data string, merge bool) (Snapshot, error) {
	now := s.now().UTC()

	var committed Snapshot
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var res sql.Result
		var err error
		if !cur.Exists {
			insertExpr := "json(?)"
			if merge {
				insertExpr = "json_patch('{}', ?)"
			}
			res, err = tx.ExecContext(ctx,
				`INSERT INTO documents (owner, collection, doc_id, data, version, created_at, updated_at)
				 VALUES (?, ?, ?, `+insertExpr+`, 1, ?, ?)
				 ON CONFLICT (owner, collection, doc_id) DO NOTHING`,
				p.Owner, p.Collection, p.ID, data, now, now,
			)
		} else {
			dataExpr := "json(?)"
			if merge {
				dataExpr = "json_patch(data, ?)"
			}
			res, err = tx.ExecContext(ctx,
				`UPDATE documents SET data = `+dataExpr+`, version = version + 1, updated_at = ?
				 WHERE owner = ? AND collection = ? AND doc_id = ? AND version = ?`,
				data, now, p.Owner, p.Collection, p.ID, cur.Version,
			)
		}
		if err != nil {
			return fmt.Errorf("conditional write: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return common.ErrVersionConflict
		}
		committed, err = s.get(ctx, tx, p)
		return err
	})
	return committed, err
}

// Delete removes p. Deleting a missing document is a no-op.
func (s *Store) Delete(ctx context.Context, p Path) error {
	if err := s.check(ctx, p); err != nil {
		return fmt.Errorf("delete %s: %w", p, err)
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE owner = ? AND collection = ? AND doc_id = ?`,
		p.Owner, p.Collection, p.ID,
	)
	if err != nil {
		return fmt.Errorf("delete %s: %w", p, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.changed(ctx, p)
	}
	return nil
}

// DeleteFunc reads p, lets fn inspect (and veto) the current snapshot, and
// deletes the document only if it was not modified in between. It returns
// the snapshot that was deleted.
func (s *Store) DeleteFunc(ctx context.Context, p Path, fn func(current Snapshot) error) (Snapshot, error) {
	if err := s.check(ctx, p); err != nil {
		return Snapshot{}, fmt.Errorf("delete %s: %w", p, err)
	}

	var deleted Snapshot
	err := s.retry(ctx, func(ctx context.Context) error {
		cur, err := s.get(ctx, s.db, p)
		if err != nil {
			return err
		}
		if err := fn(cur); err != nil {
			return err
		}
		deleted = cur
		if !cur.Exists {
			return nil
		}
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM documents WHERE owner = ? AND collection = ? AND doc_id = ? AND version = ?`,
			p.Owner, p.Collection, p.ID, cur.Version,
		)
		if err != nil {
			return fmt.Errorf("conditional delete: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			if s.onConflict != nil {
				s.onConflict(p)
			}
			return retry.RetryableError(common.ErrVersionConflict)
		}
		return nil
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("delete %s: %w", p, err)
	}

	if deleted.Exists {
		s.changed(ctx, p)
	}
	return deleted, nil
}

// Owners lists every owner that has at least one document in collection.
func (s *Store) Owners(ctx context.Context, collection string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT owner FROM documents WHERE collection = ? ORDER BY owner`, collection,
	)
	if err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var o string
		if err := rows.Scan(&o); err != nil {
			return nil, fmt.Errorf("scan owner: %w", err)
		}
		owners = append(owners, o)
	}
	return owners, rows.Err()
}

func (s *Store) retry(ctx context.Context, fn retry.RetryFunc) error {
	b := retry.NewExponential(s.backoff)
	b = retry.WithCappedDuration(250*time.Millisecond, b)
	b = retry.WithJitterPercent(20, b)
	b = retry.WithMaxRetries(s.maxRetries, b)
	return retry.Do(ctx, b, fn)
}

func (s *Store) changed(ctx context.Context, p Path) {
	topics := []string{p.String(), p.CollectionKey()}
	s.hub.Publish(topics...)
	if s.relay == nil {
		return
	}
	if err := s.relay.Publish(ctx, topics); err != nil {
		s.logger.Warn("relay change notification", "path", p.String(), "error", err)
	}
}
