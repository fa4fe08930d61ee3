// Package cache provides the query keyed fetch cache that backs lazy tree
// expansion.
package cache

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/brettbedarf/zexplorer"
	"github.com/brettbedarf/zexplorer/internal/events"
	"github.com/brettbedarf/zexplorer/internal/metrics"
	"github.com/brettbedarf/zexplorer/internal/util"
	"golang.org/x/sync/semaphore"
)

// ErrClosed is the fetch error of every reload started after Close
var ErrClosed = errors.New("fetch cache closed")

// Validity of an entry's children
type Validity uint8

const (
	Invalidated Validity = iota
	Valid
)

func (v Validity) String() string {
	if v == Valid {
		return "valid"
	}
	return "invalidated"
}

// FetchState of an entry
type FetchState uint8

const (
	Idle FetchState = iota
	InFlight
	Errored
)

func (s FetchState) String() string {
	switch s {
	case InFlight:
		return "in-flight"
	case Errored:
		return "errored"
	default:
		return "idle"
	}
}

// FetchResult is handed to every callback attached to a fetch
type FetchResult struct {
	Query     zexplorer.Query
	Items     []zexplorer.ResourceHandle // full cached list after the fetch
	HasMore   bool
	Remaining *int
	Err       error // *zexplorer.FetchError on failure
}

// Entry is a read-only snapshot of a cache entry
type Entry struct {
	Children  []zexplorer.ResourceHandle
	Validity  Validity
	State     FetchState
	HasMore   bool
	Remaining *int
	Err       error // last fetch error, cleared by the next success
}

// flight is one lister call and the callbacks waiting on it
type flight struct {
	from        zexplorer.Continuation
	waiters     []func(FetchResult)
	invalidated bool // invalidate() arrived while in flight
}

type entry struct {
	children  []zexplorer.ResourceHandle
	seen      map[zexplorer.HandleID]struct{}
	fetched   bool // at least one successful fetch
	validity  Validity
	state     FetchState
	hasMore   bool
	remaining *int
	next      zexplorer.Continuation
	err       error
	flight    *flight
}

func (e *entry) snapshot() Entry {
	return Entry{
		Children:  slices.Clone(e.children),
		Validity:  e.validity,
		State:     e.state,
		HasMore:   e.hasMore,
		Remaining: e.remaining,
		Err:       e.err,
	}
}

// Options for [New]. Zero values fall back to defaults.
type Options struct {
	Workers int // max concurrent lister calls (Default 4)
	Bus     *events.Bus
	Metrics *metrics.Metrics
}

// FetchCache maps a [zexplorer.Query] to its last fetched children and
// guarantees at most one in-flight lister call per query.
//
// Reads never block on fetches. Fetch completions commit state under mu, then
// deliver callbacks in registration order while holding deliverMu so fan-outs
// of different fetches never interleave. Events are published after both.
type FetchCache struct {
	lister  zexplorer.Lister
	bus     *events.Bus
	metrics *metrics.Metrics
	logger  util.Logger
	pool    *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	deliverMu sync.Mutex
	entries   map[zexplorer.Query]*entry
	closed    bool
}

func New(lister zexplorer.Lister, opts Options) *FetchCache {
	workers := opts.Workers
	if workers < 1 {
		workers = 4
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &FetchCache{
		lister:  lister,
		bus:     opts.Bus,
		metrics: opts.Metrics,
		logger:  util.GetLogger("FetchCache"),
		pool:    semaphore.NewWeighted(int64(workers)),
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[zexplorer.Query]*entry),
	}
}

// GetCached returns the last fetched children of q. ok is false if q was never
// fetched successfully. Stale (invalidated) children are still returned.
func (c *FetchCache) GetCached(q zexplorer.Query) (children []zexplorer.ResourceHandle, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, exists := c.entries[q]
	if !exists || !e.fetched {
		return nil, false
	}
	return slices.Clone(e.children), true
}

// IsValid is true only if an entry exists and is [Valid]
func (c *FetchCache) IsValid(q zexplorer.Query) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, exists := c.entries[q]
	return exists && e.validity == Valid
}

// Entry returns a snapshot of q's entry
func (c *FetchCache) Entry(q zexplorer.Query) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, exists := c.entries[q]
	if !exists {
		return Entry{}, false
	}
	return e.snapshot(), true
}

// Len returns the number of cached queries
func (c *FetchCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Reload refetches q from the beginning, replacing its children on success.
// If a fetch for q is already in flight onDone is attached to it instead.
// onDone may be nil. Callbacks of one fetch run in the order they were attached
// and never interleave with another fetch's, but two fetches completing back
// to back may deliver in either order. After Close onDone gets [ErrClosed].
func (c *FetchCache) Reload(q zexplorer.Query, onDone func(FetchResult)) {
	c.ReloadFrom(q, "", onDone)
}

// ReloadFrom fetches q continuing from the given marker. A non-empty marker
// appends to the cached children; replaying a marker never duplicates items.
func (c *FetchCache) ReloadFrom(q zexplorer.Query, from zexplorer.Continuation, onDone func(FetchResult)) {
	logger := c.logger.With().Str("query", q.Key()).Str("from", string(from)).Logger()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		logger.Debug().Msg("Fetch after close")
		if onDone != nil {
			onDone(FetchResult{Query: q, Err: &zexplorer.FetchError{Query: q, Err: ErrClosed}})
		}
		return
	}
	e, exists := c.entries[q]
	if !exists {
		e = &entry{seen: make(map[zexplorer.HandleID]struct{})}
		c.entries[q] = e
		c.metrics.SetCacheEntries(len(c.entries))
	}
	if e.state == InFlight {
		if onDone != nil {
			e.flight.waiters = append(e.flight.waiters, onDone)
		}
		c.mu.Unlock()
		c.metrics.RecordJoin()
		logger.Trace().Msg("Joined in-flight fetch")
		return
	}
	f := &flight{from: from}
	if onDone != nil {
		f.waiters = append(f.waiters, onDone)
	}
	e.state = InFlight
	e.flight = f
	c.wg.Add(1)
	c.mu.Unlock()

	logger.Debug().Msg("Starting fetch")
	go c.fetch(q, f)
}

// LoadMore continues q from where the last page ended. Returns false without
// fetching when q has no further pages.
func (c *FetchCache) LoadMore(q zexplorer.Query, onDone func(FetchResult)) bool {
	c.mu.Lock()
	e, exists := c.entries[q]
	if !exists || !e.hasMore || e.next == "" {
		c.mu.Unlock()
		return false
	}
	next := e.next
	c.mu.Unlock()

	c.ReloadFrom(q, next, onDone)
	return true
}

// Fetch reloads q and blocks until the result (or ctx) is done
func (c *FetchCache) Fetch(ctx context.Context, q zexplorer.Query) FetchResult {
	done := make(chan FetchResult, 1)
	c.Reload(q, func(r FetchResult) { done <- r })
	select {
	case r := <-done:
		return r
	case <-ctx.Done():
		return FetchResult{Query: q, Err: &zexplorer.FetchError{Query: q, Err: ctx.Err()}}
	}
}

func (c *FetchCache) fetch(q zexplorer.Query, f *flight) {
	defer c.wg.Done()

	start := time.Now()
	var res zexplorer.ListResult
	err := c.pool.Acquire(c.ctx, 1)
	if err == nil {
		res, err = c.lister.List(c.ctx, q, f.from)
		c.pool.Release(1)
	}
	if err != nil {
		c.metrics.RecordFetch(q.Kind.String(), metrics.ResultError, time.Since(start))
		c.fail(q, f, &zexplorer.FetchError{Query: q, Err: err})
		return
	}
	c.metrics.RecordFetch(q.Kind.String(), metrics.ResultOK, time.Since(start))
	c.complete(q, f, res)
}

// detachLocked takes f's waiters and reports whether f still owns q's entry.
// Caller must hold c.mu.
func (c *FetchCache) detachLocked(q zexplorer.Query, f *flight) (*entry, []func(FetchResult)) {
	waiters := f.waiters
	f.waiters = nil
	e, exists := c.entries[q]
	if !exists || e.flight != f {
		// entry was cleaned (and possibly recreated) while we were fetching
		return nil, waiters
	}
	e.flight = nil
	return e, waiters
}

func (c *FetchCache) complete(q zexplorer.Query, f *flight, res zexplorer.ListResult) {
	c.mu.Lock()
	e, waiters := c.detachLocked(q, f)
	if e == nil {
		c.mu.Unlock()
		c.logger.Debug().Str("query", q.Key()).Msg("Dropping result of evicted entry")
		c.deliver(waiters, FetchResult{Query: q, Items: res.Items, HasMore: res.HasMore, Remaining: res.Remaining})
		return
	}

	if f.from == "" {
		e.children = e.children[:0]
		clear(e.seen)
	}
	for _, h := range res.Items {
		id := h.ID()
		if _, dup := e.seen[id]; dup {
			continue
		}
		e.seen[id] = struct{}{}
		e.children = append(e.children, h)
	}
	e.fetched = true
	e.state = Idle
	e.err = nil
	e.validity = Valid
	if f.invalidated {
		e.validity = Invalidated
	}
	e.hasMore = res.HasMore
	e.remaining = res.Remaining
	e.next = ""
	if res.HasMore {
		e.next = res.Next
	}
	result := FetchResult{
		Query:     q,
		Items:     slices.Clone(e.children),
		HasMore:   e.hasMore,
		Remaining: e.remaining,
	}
	c.mu.Unlock()

	c.logger.Debug().Str("query", q.Key()).Int("items", len(result.Items)).Bool("hasMore", result.HasMore).Msg("Fetch completed")
	c.deliver(waiters, result)
	c.bus.Publish(events.CacheUpdated{Query: q, Items: result.Items})
}

func (c *FetchCache) fail(q zexplorer.Query, f *flight, err *zexplorer.FetchError) {
	c.mu.Lock()
	e, waiters := c.detachLocked(q, f)
	result := FetchResult{Query: q, Err: err}
	if e != nil {
		// prior children stay untouched
		e.state = Errored
		e.err = err
		result.Items = slices.Clone(e.children)
		result.HasMore = e.hasMore
		result.Remaining = e.remaining
	}
	c.mu.Unlock()

	c.logger.Warn().Err(err.Err).Str("query", q.Key()).Msg("Fetch failed")
	c.deliver(waiters, result)
	c.bus.Publish(events.FetchFailed{Query: q, Err: err})
}

func (c *FetchCache) deliver(waiters []func(FetchResult), r FetchResult) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	for _, fn := range waiters {
		fn(r)
	}
}

// Invalidate marks q stale without dropping its children so callers can keep
// showing them while refetching
func (c *FetchCache) Invalidate(q zexplorer.Query) {
	c.mu.Lock()
	e, exists := c.entries[q]
	if !exists {
		c.mu.Unlock()
		return
	}
	e.validity = Invalidated
	if e.flight != nil {
		e.flight.invalidated = true
	}
	c.mu.Unlock()

	c.logger.Debug().Str("query", q.Key()).Msg("Invalidated")
	c.bus.Publish(events.CacheInvalidated{Query: q})
}

// CleanCache drops q's entry outright. An in-flight fetch still completes its
// callbacks but its result is not stored.
func (c *FetchCache) CleanCache(q zexplorer.Query) {
	c.mu.Lock()
	_, exists := c.entries[q]
	delete(c.entries, q)
	c.metrics.SetCacheEntries(len(c.entries))
	c.mu.Unlock()

	if exists {
		c.logger.Debug().Str("query", q.Key()).Msg("Evicted")
		c.bus.Publish(events.CacheInvalidated{Query: q, Evicted: true})
	}
}

// CleanWhere drops every entry whose query matches pred, i.e. all queries of a
// deleted connection or beneath a deleted path. Returns the evicted queries.
func (c *FetchCache) CleanWhere(pred func(zexplorer.Query) bool) []zexplorer.Query {
	c.mu.Lock()
	var evicted []zexplorer.Query
	for q := range c.entries {
		if pred(q) {
			evicted = append(evicted, q)
			delete(c.entries, q)
		}
	}
	c.metrics.SetCacheEntries(len(c.entries))
	c.mu.Unlock()

	for _, q := range evicted {
		c.bus.Publish(events.CacheInvalidated{Query: q, Evicted: true})
	}
	return evicted
}

// Close cancels in-flight fetches, waits for them and drops every entry.
// Reloads after Close fail with [ErrClosed].
func (c *FetchCache) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()

	c.mu.Lock()
	clear(c.entries)
	c.metrics.SetCacheEntries(0)
	c.mu.Unlock()
}
