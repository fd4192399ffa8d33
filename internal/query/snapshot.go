package query

import (
	"context"
	"sync/atomic"
)

// Snapshot is a cheap, reference-counted, read-only view of the cache at a
// fixed revision. Independent files are checked on worker goroutines, each
// holding its own snapshot; input mutation is only permitted once every
// snapshot has been released.
//
// Queries evaluated through a snapshot may still populate memo entries.
// That is a cache fill, not a logical mutation, and is safe because inputs
// cannot move underneath it.
type Snapshot struct {
	cache    *Cache
	revision Revision
	released atomic.Bool
}

// Snapshot acquires a read-only view at the current revision.
func (c *Cache) Snapshot() *Snapshot {
	c.snapshots.Add(1)
	return &Snapshot{cache: c, revision: c.Revision()}
}

// Release returns the snapshot. Releasing twice is a no-op.
func (s *Snapshot) Release() {
	if s.released.CompareAndSwap(false, true) {
		s.cache.snapshots.Add(-1)
	}
}

// Revision returns the revision the snapshot was taken at.
func (s *Snapshot) Revision() Revision {
	return s.revision
}

// Get evaluates a query through the snapshot.
func (s *Snapshot) Get(ctx context.Context, query string, arg any) any {
	if s.released.Load() {
		panic("query: Get on released snapshot")
	}
	return s.cache.Get(ctx, query, arg)
}

// Input reads an input cell through the snapshot.
func (s *Snapshot) Input(query string, arg any) (any, bool) {
	if s.released.Load() {
		panic("query: Input on released snapshot")
	}
	return s.cache.Input(query, arg)
}
