// Package query implements the incremental computation layer: a generic
// key/value memoization cache with lazily-recorded dependency edges, a
// monotonic revision counter, early value cutoff, cycle fallbacks, and
// reference-counted read-only snapshots for parallel readers.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
)

// Revision is the cache's monotonic clock. Every input mutation bumps it.
type Revision uint64

// Key identifies a memoized computation: a registered query name plus a
// comparable argument, usually a file path. Input cells use the same keyspace.
type Key struct {
	Query string
	Arg   any
}

func (k Key) String() string {
	return fmt.Sprintf("%s(%v)", k.Query, k.Arg)
}

// Func computes a query result. It must be pure: same inputs, same output.
// Reads of other queries or inputs go through ctx so the cache can record
// the dependency edge.
type Func func(ctx *Ctx, arg any) any

// Equaler lets result types define structural equality for early cutoff.
// Values without it fall back to reflect.DeepEqual.
type Equaler interface {
	Equal(other any) bool
}

type queryDef struct {
	fn       Func
	fallback any // returned when evaluation re-enters the same key
}

type memo struct {
	value      any
	deps       []Key // read-set recorded during the last computation
	changedAt  Revision
	verifiedAt Revision
}

type inputCell struct {
	value     any
	changedAt Revision
}

// Cache is the dependency-tracking memoization store. All mutable shared
// state of the engine lives here; computed values are immutable once
// published for a revision.
type Cache struct {
	logger *slog.Logger

	mu       sync.Mutex
	revision Revision
	queries  map[string]queryDef
	inputs   map[Key]inputCell
	memos    map[Key]*memo

	snapshots atomic.Int32
}

// New returns an empty cache. A nil logger defaults to slog.Default.
func New(logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		logger:  logger,
		queries: make(map[string]queryDef),
		inputs:  make(map[Key]inputCell),
		memos:   make(map[Key]*memo),
	}
}

// Register defines a derived query. fallback is the value a re-entrant
// (cyclic) evaluation resolves to instead of propagating a fault.
func (c *Cache) Register(name string, fallback any, fn Func) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.queries[name]; ok {
		panic("query: duplicate query " + name)
	}
	c.queries[name] = queryDef{fn: fn, fallback: fallback}
}

// Revision returns the current revision of the cache.
func (c *Cache) Revision() Revision {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.revision
}

// SetInput stores an input cell value and bumps the revision, unless the new
// value equals the old one (early cutoff at the input level). Mutating the
// cache while snapshots are outstanding breaks the snapshot consistency
// invariant and is a programmer error, so it panics rather than racing.
func (c *Cache) SetInput(query string, arg, value any) {
	if n := c.snapshots.Load(); n > 0 {
		c.logger.Error("query: input mutation with live snapshots", "snapshots", n, "query", query)
		panic(fmt.Sprintf("query: SetInput(%s) with %d live snapshot(s)", query, n))
	}
	key := Key{Query: query, Arg: arg}
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.inputs[key]; ok && valuesEqual(old.value, value) {
		return
	}
	c.revision++
	c.inputs[key] = inputCell{value: value, changedAt: c.revision}
}

// Input reads an input cell outside any query computation.
func (c *Cache) Input(query string, arg any) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cell, ok := c.inputs[Key{Query: query, Arg: arg}]
	if !ok {
		return nil, false
	}
	return cell.value, true
}

// Get evaluates (or reuses) the query result for arg. Safe for concurrent
// use; two goroutines racing on the same key both compute, and determinism
// makes the duplicate write harmless.
func (c *Cache) Get(ctx context.Context, query string, arg any) any {
	cx := &Ctx{ctx: ctx, cache: c}
	return c.eval(cx, Key{Query: query, Arg: arg}, true)
}

// Ctx threads through a query computation, carrying the cancellation
// context, the currently-executing key stack for cycle detection, and the
// read-set frames for lazy dependency recording.
type Ctx struct {
	ctx   context.Context
	cache *Cache
	stack []Key
	reads [][]Key // one frame per stack entry
}

// Context returns the cancellation context for cooperative polling at safe
// points, e.g. once per visited AST node.
func (cx *Ctx) Context() context.Context {
	return cx.ctx
}

// Get evaluates a nested query, recording the edge in the caller's read-set.
func (cx *Ctx) Get(query string, arg any) any {
	return cx.cache.eval(cx, Key{Query: query, Arg: arg}, true)
}

// Input reads an input cell, recording the edge in the caller's read-set.
// Missing inputs read as nil; the caller decides how to degrade.
func (cx *Ctx) Input(query string, arg any) any {
	key := Key{Query: query, Arg: arg}
	cx.record(key)
	cx.cache.mu.Lock()
	defer cx.cache.mu.Unlock()
	cell, ok := cx.cache.inputs[key]
	if !ok {
		return nil
	}
	return cell.value
}

func (cx *Ctx) record(key Key) {
	if n := len(cx.reads); n > 0 {
		cx.reads[n-1] = append(cx.reads[n-1], key)
	}
}

func (cx *Ctx) onStack(key Key) bool {
	for _, k := range cx.stack {
		if k == key {
			return true
		}
	}
	return false
}

// eval is the memoization core. record controls whether the read lands in
// the parent frame (dependency verification walks deps without re-recording).
func (c *Cache) eval(cx *Ctx, key Key, record bool) any {
	if record {
		cx.record(key)
	}

	c.mu.Lock()
	if cell, ok := c.inputs[key]; ok {
		c.mu.Unlock()
		return cell.value
	}
	rev := c.revision
	m := c.memos[key]
	def, defined := c.queries[key.Query]
	c.mu.Unlock()

	if !defined {
		panic("query: unknown query " + key.Query)
	}

	// A re-entrant key resolves to the query's fallback value so mutually
	// recursive declarations degrade gracefully instead of faulting.
	if cx.onStack(key) {
		c.logger.Debug("query: cycle", "key", key.String())
		return def.fallback
	}

	if m != nil {
		if m.verifiedAt == rev {
			return m.value
		}
		if c.verifyDeps(cx, m, rev) {
			c.mu.Lock()
			m.verifiedAt = rev
			c.mu.Unlock()
			return m.value
		}
	}

	// Recompute with a fresh read-set frame.
	cx.stack = append(cx.stack, key)
	cx.reads = append(cx.reads, nil)
	value := def.fn(cx, key.Arg)
	deps := cx.reads[len(cx.reads)-1]
	cx.stack = cx.stack[:len(cx.stack)-1]
	cx.reads = cx.reads[:len(cx.reads)-1]

	// A cancelled computation discards its partial result rather than
	// poisoning the cache.
	if cx.ctx != nil && cx.ctx.Err() != nil {
		c.logger.Debug("query: cancelled, discarding", "key", key.String())
		return value
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	changedAt := c.revision
	if prev := c.memos[key]; prev != nil && valuesEqual(prev.value, value) {
		// Early cutoff: the recomputed value is unchanged, so dependents
		// verifying against changedAt will not cascade.
		value = prev.value
		changedAt = prev.changedAt
	}
	c.memos[key] = &memo{value: value, deps: deps, changedAt: changedAt, verifiedAt: c.revision}
	return value
}

// verifyDeps reports whether every recorded dependency still has the value
// the memo was computed against. Each dependency is brought up to date first
// (which may recurse), then its changedAt is compared against the memo's
// verification point.
func (c *Cache) verifyDeps(cx *Ctx, m *memo, rev Revision) bool {
	for _, dep := range m.deps {
		changed, ok := c.depChangedAt(cx, dep)
		if !ok || changed > m.verifiedAt {
			return false
		}
	}
	return true
}

func (c *Cache) depChangedAt(cx *Ctx, dep Key) (Revision, bool) {
	c.mu.Lock()
	if cell, ok := c.inputs[dep]; ok {
		c.mu.Unlock()
		return cell.changedAt, true
	}
	_, derived := c.queries[dep.Query]
	c.mu.Unlock()
	if !derived {
		return 0, false
	}
	// Bring the dependency up to date without recording a read edge.
	c.eval(cx, dep, false)
	c.mu.Lock()
	defer c.mu.Unlock()
	dm := c.memos[dep]
	if dm == nil {
		return 0, false
	}
	return dm.changedAt, true
}

func valuesEqual(a, b any) bool {
	if eq, ok := a.(Equaler); ok {
		return eq.Equal(b)
	}
	return reflect.DeepEqual(a, b)
}
