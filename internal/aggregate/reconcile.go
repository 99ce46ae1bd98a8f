package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dukerupert/pawlog/internal/docstore"
)

// RebuildResult counts what a rebuild of one aggregate did for one owner.
type RebuildResult struct {
	Aggregate string `json:"aggregate"`
	Records   int    `json:"records"`
	Buckets   int    `json:"buckets"`
	Rewritten int    `json:"rewritten"`
	Emptied   int    `json:"emptied"`
}

// Rebuild recomputes every bucket of owner from the authoritative records.
// Buckets that lost all members are written with an empty list.
func (s *Synchronizer[R, P]) Rebuild(ctx context.Context, owner string) (RebuildResult, error) {
	res := RebuildResult{Aggregate: s.def.Name}

	records, err := s.store.Query(ctx, docstore.Query{Owner: owner, Collection: s.def.Source})
	if err != nil {
		return res, fmt.Errorf("rebuild %s: %w", s.def.Name, err)
	}
	groups := make(map[string][]P)
	for _, snap := range records {
		var r R
		if err := json.Unmarshal(snap.Data, &r); err != nil {
			return res, fmt.Errorf("rebuild %s: decode %s: %w", s.def.Name, snap.Path, err)
		}
		key := s.Key(r)
		groups[key] = append(groups[key], s.def.Project(r))
		res.Records++
	}

	buckets, err := s.store.Query(ctx, docstore.Query{Owner: owner, Collection: s.def.Collection})
	if err != nil {
		return res, fmt.Errorf("rebuild %s: %w", s.def.Name, err)
	}
	keys := make([]string, 0, len(groups)+len(buckets))
	for key := range groups {
		keys = append(keys, key)
	}
	for _, snap := range buckets {
		if _, ok := groups[snap.Path.ID]; !ok {
			keys = append(keys, snap.Path.ID)
		}
	}
	slices.Sort(keys)

	for _, key := range keys {
		list := groups[key]
		wrote, err := s.write(ctx, owner, key, list)
		if err != nil {
			return res, fmt.Errorf("rebuild %s: %w", s.def.Name, err)
		}
		res.Buckets++
		if wrote {
			res.Rewritten++
			if len(list) == 0 {
				res.Emptied++
			}
		}
	}
	return res, nil
}

// Rebuilder is implemented by every Synchronizer.
type Rebuilder interface {
	Name() string
	Collections() []string
	Rebuild(ctx context.Context, owner string) (RebuildResult, error)
}

// Report summarizes one reconcile run for one owner.
type Report struct {
	Owner      string          `json:"owner"`
	Aggregates []RebuildResult `json:"aggregates"`
	Duration   time.Duration   `json:"duration"`
}

// Reconciler repairs soft inconsistencies left by failed sync jobs by
// rebuilding buckets from the record collections.
type Reconciler struct {
	store      *docstore.Store
	rebuilders []Rebuilder
	metrics    *Metrics
	logger     *slog.Logger
}

func NewReconciler(store *docstore.Store, metrics *Metrics, logger *slog.Logger, rebuilders ...Rebuilder) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:      store,
		rebuilders: rebuilders,
		metrics:    metrics,
		logger:     logger.With("component", "reconcile"),
	}
}

func (r *Reconciler) ReconcileOwner(ctx context.Context, owner string) (Report, error) {
	start := time.Now()
	rep := Report{Owner: owner}
	for _, rb := range r.rebuilders {
		res, err := rb.Rebuild(ctx, owner)
		if err != nil {
			r.metrics.reconcile("failed")
			return rep, fmt.Errorf("reconcile %s: %w", owner, err)
		}
		r.metrics.bucketsRewritten(rb.Name(), res.Rewritten)
		rep.Aggregates = append(rep.Aggregates, res)
	}
	rep.Duration = time.Since(start)
	r.metrics.reconcile("ok")

	r.logger.Info("owner reconciled", "owner", owner, "duration", rep.Duration, "rewritten", rep.rewritten())
	return rep, nil
}

// ReconcileAll reconciles every owner that has records or buckets. It keeps
// going past per-owner failures and returns the first error.
func (r *Reconciler) ReconcileAll(ctx context.Context) ([]Report, error) {
	owners, err := r.owners(ctx)
	if err != nil {
		return nil, err
	}

	var reports []Report
	var firstErr error
	for _, owner := range owners {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		rep, err := r.ReconcileOwner(ctx, owner)
		if err != nil {
			r.logger.Error("reconcile owner", "owner", owner, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		reports = append(reports, rep)
	}
	return reports, firstErr
}

func (r *Reconciler) owners(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	for _, rb := range r.rebuilders {
		for _, collection := range rb.Collections() {
			list, err := r.store.Owners(ctx, collection)
			if err != nil {
				return nil, fmt.Errorf("reconcile: %w", err)
			}
			for _, o := range list {
				seen[o] = struct{}{}
			}
		}
	}
	owners := make([]string, 0, len(seen))
	for o := range seen {
		owners = append(owners, o)
	}
	slices.Sort(owners)
	return owners, nil
}

// Loop reconciles every owner each interval until ctx is done.
func (r *Reconciler) Loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.ReconcileAll(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("periodic reconcile", "error", err)
			}
		}
	}
}

func (rep Report) rewritten() int {
	n := 0
	for _, a := range rep.Aggregates {
		n += a.Rewritten
	}
	return n
}
