// Package transfer runs batches of move/copy and delete operations and keeps
// the fetch cache and cut buffer consistent with what actually happened
package transfer

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/brettbedarf/zexplorer"
	"github.com/brettbedarf/zexplorer/internal/metrics"
	"github.com/brettbedarf/zexplorer/internal/tree"
	"github.com/brettbedarf/zexplorer/internal/util"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Invalidator is the part of the fetch cache the executor touches
type Invalidator interface {
	Invalidate(q zexplorer.Query)
	CleanCache(q zexplorer.Query)
}

// Locator maps a resource to the cached listings it appears in
// (ParentQueries) and the listings of its own children (ContainerQueries)
type Locator interface {
	ParentQueries(h zexplorer.ResourceHandle) []zexplorer.Query
	ContainerQueries(h zexplorer.ResourceHandle) []zexplorer.Query
}

// derivedLocator only knows the queries derivable from handle keys
type derivedLocator struct{}

func (derivedLocator) ParentQueries(h zexplorer.ResourceHandle) []zexplorer.Query {
	if q, ok := tree.ParentQuery(h); ok {
		return []zexplorer.Query{q}
	}
	return nil
}

func (derivedLocator) ContainerQueries(h zexplorer.ResourceHandle) []zexplorer.Query {
	if q, ok := tree.ContainerQuery(h); ok {
		return []zexplorer.Query{q}
	}
	return nil
}

type Options struct {
	// Locator defaults to the queries derivable from handle keys
	Locator Locator
	// Buffer, when set, loses every successfully moved source
	Buffer  *CutBuffer
	Deleter zexplorer.Deleter
	Metrics *metrics.Metrics
	// Parallelism above 1 runs batches without shared destinations
	// concurrently
	Parallelism int
}

// Report summarizes a batch. A batch always runs to completion (or
// cancellation); individual failures end up in Failed.
type Report struct {
	ID        uuid.UUID
	Succeeded []zexplorer.MoveCopyOperation
	Failed    []*zexplorer.TransferError
	// Skipped holds operations never started because the batch was cancelled
	Skipped   []zexplorer.MoveCopyOperation
	Cancelled bool
	// ConflictSkipped holds the pairs conflict resolution left out of the batch
	ConflictSkipped []ConflictSkip
	Invalidated     []zexplorer.Query
}

// ConflictSkip is a pair that was never turned into an operation. Reason is
// the structural reason for pairs that could not be overwritten.
type ConflictSkip struct {
	Pair   zexplorer.ConflictPair
	Reason string
}

// Err joins every failure, nil if there was none
func (r Report) Err() error {
	errs := make([]error, len(r.Failed))
	for i, f := range r.Failed {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Executor performs move/copy batches. There is no rollback: cancelling or
// failing midway leaves the completed operations in place.
type Executor struct {
	transfer zexplorer.Transfer
	cache    Invalidator
	locator  Locator
	buffer   *CutBuffer
	deleter  zexplorer.Deleter
	metrics  *metrics.Metrics
	parallel int
	logger   util.Logger
}

func NewExecutor(t zexplorer.Transfer, cache Invalidator, opts Options) *Executor {
	if opts.Locator == nil {
		opts.Locator = derivedLocator{}
	}
	return &Executor{
		transfer: t,
		cache:    cache,
		locator:  opts.Locator,
		buffer:   opts.Buffer,
		deleter:  opts.Deleter,
		metrics:  opts.Metrics,
		parallel: opts.Parallelism,
		logger:   util.GetLogger("Executor"),
	}
}

type outcome struct {
	op  zexplorer.MoveCopyOperation
	err error
	ran bool
}

// Run performs ops in order. sink may be nil. Cancellation through ctx or the
// sink is checked between operations and never interrupts one in flight.
func (e *Executor) Run(ctx context.Context, ops []zexplorer.MoveCopyOperation, sink zexplorer.ProgressSink) Report {
	if sink == nil {
		sink = nopSink{}
	}
	report := Report{ID: uuid.New()}
	logger := e.logger.With().Str("batch", report.ID.String()).Int("ops", len(ops)).Logger()
	logger.Debug().Msg("Starting batch")
	e.metrics.RecordBatch()

	var results []outcome
	if e.parallel > 1 && independent(ops) {
		results = e.runParallel(ctx, ops, sink)
	} else {
		results = e.runSequential(ctx, ops, sink)
	}

	var moved []zexplorer.HandleID
	for _, r := range results {
		switch {
		case !r.ran:
			report.Skipped = append(report.Skipped, r.op)
			report.Cancelled = true
			e.metrics.RecordTransfer(opName(r.op), metrics.ResultSkip)
		case r.err != nil:
			te := &zexplorer.TransferError{Op: r.op, Err: r.err}
			report.Failed = append(report.Failed, te)
			e.metrics.RecordTransfer(opName(r.op), metrics.ResultError)
			logger.Warn().Err(r.err).Str("source", r.op.Source.Key).Str("destination", r.op.Destination.Key).Msg("Operation failed")
		default:
			report.Succeeded = append(report.Succeeded, r.op)
			e.metrics.RecordTransfer(opName(r.op), metrics.ResultOK)
			if r.op.IsMove {
				moved = append(moved, r.op.Source.ID())
			}
		}
	}
	if e.buffer != nil {
		e.buffer.Remove(moved...)
	}

	report.Invalidated = e.invalidate(report.Succeeded)
	logger.Info().
		Int("succeeded", len(report.Succeeded)).
		Int("failed", len(report.Failed)).
		Int("skipped", len(report.Skipped)).
		Bool("cancelled", report.Cancelled).
		Msg("Batch done")
	return report
}

func (e *Executor) runSequential(ctx context.Context, ops []zexplorer.MoveCopyOperation, sink zexplorer.ProgressSink) []outcome {
	results := make([]outcome, len(ops))
	for i, op := range ops {
		results[i].op = op
	}
	for i, op := range ops {
		if ctx.Err() != nil || sink.Cancelled() {
			break
		}
		results[i].err = e.transfer.Perform(ctx, op)
		results[i].ran = true
		sink.Progress(i+1, len(ops), op)
	}
	return results
}

// runParallel is only used when no two operations share a destination, so
// their completion order does not matter
func (e *Executor) runParallel(ctx context.Context, ops []zexplorer.MoveCopyOperation, sink zexplorer.ProgressSink) []outcome {
	results := make([]outcome, len(ops))
	var (
		mu   sync.Mutex
		done int
	)
	g := new(errgroup.Group)
	g.SetLimit(e.parallel)
	for i, op := range ops {
		results[i].op = op
		if ctx.Err() != nil || sink.Cancelled() {
			continue
		}
		g.Go(func() error {
			err := e.transfer.Perform(ctx, op)
			mu.Lock()
			results[i].err = err
			results[i].ran = true
			done++
			sink.Progress(done, len(ops), op)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// independent reports whether the operations touch disjoint trees: no shared
// source or destination, and no key of one nested under a key of another
func independent(ops []zexplorer.MoveCopyOperation) bool {
	dests := make(map[zexplorer.HandleID]struct{}, len(ops))
	srcs := make(map[zexplorer.HandleID]struct{}, len(ops))
	for _, op := range ops {
		id := op.Destination.ID()
		if _, dup := dests[id]; dup {
			return false
		}
		dests[id] = struct{}{}
		id = op.Source.ID()
		if _, dup := srcs[id]; dup {
			return false
		}
		srcs[id] = struct{}{}
	}
	for i, op := range ops {
		for j, other := range ops {
			if i != j && overlaps(op.Source, other.Destination) {
				return false
			}
		}
	}
	return true
}

// overlaps reports whether a and b are on one connection and one key equals
// or lies under the other
func overlaps(a, b zexplorer.ResourceHandle) bool {
	if a.Connection != b.Connection {
		return false
	}
	return under(a.Key, b.Key) || under(b.Key, a.Key)
}

func under(key, root string) bool {
	if key == root || root == "/" {
		return true
	}
	return strings.HasPrefix(key, strings.TrimSuffix(root, "/")+"/")
}

// invalidate marks stale the listings of every touched destination and, for
// moves, the listings the sources disappeared from. Each query once.
func (e *Executor) invalidate(ops []zexplorer.MoveCopyOperation) []zexplorer.Query {
	seen := make(map[zexplorer.Query]struct{})
	var out []zexplorer.Query
	add := func(qs []zexplorer.Query) {
		for _, q := range qs {
			if _, dup := seen[q]; dup {
				continue
			}
			seen[q] = struct{}{}
			out = append(out, q)
		}
	}
	for _, op := range ops {
		add(e.locator.ContainerQueries(op.Destination))
		if op.IsMove {
			add(e.locator.ParentQueries(op.Source))
		}
	}
	for _, q := range out {
		e.cache.Invalidate(q)
	}
	return out
}

func opName(op zexplorer.MoveCopyOperation) string {
	if op.IsMove {
		return "move"
	}
	return "copy"
}

type nopSink struct{}

func (nopSink) Progress(int, int, zexplorer.MoveCopyOperation) {}
func (nopSink) Cancelled() bool                                { return false }
