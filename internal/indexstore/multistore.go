package indexstore

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// MultiStore fans a single file's reconciliation out to several backends
// concurrently (SPEC_FULL.md §3.1 "Multi-backend fan-out"). Each backend's
// delete+insert transaction remains atomic on its own; MultiStore makes no
// cross-backend atomicity promise, matching the single-file, per-backend
// scope the reconciler already assumes.
type MultiStore struct {
	stores []Store
}

// NewMultiStore wraps one or more backends behind a single Store.
func NewMultiStore(stores ...Store) *MultiStore {
	return &MultiStore{stores: stores}
}

// Reconcile runs Reconcile against every backend concurrently, returning the
// first error encountered. Each backend gets its own copy of rows, so the
// Updated values one backend overwrites are never seen by another; the
// caller's rows are left unmodified.
func (m *MultiStore) Reconcile(ctx context.Context, filename string, rows []Row, opts ReconcileOptions) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, store := range m.stores {
		store := store
		rowsCopy := make([]Row, len(rows))
		copy(rowsCopy, rows)
		g.Go(func() error {
			return store.Reconcile(ctx, filename, rowsCopy, opts)
		})
	}
	return g.Wait()
}

func (m *MultiStore) Close() error {
	var first error
	for _, store := range m.stores {
		if err := store.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
