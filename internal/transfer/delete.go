package transfer

import (
	"context"
	"errors"

	"github.com/brettbedarf/zexplorer"
	"github.com/brettbedarf/zexplorer/internal/metrics"
	"github.com/google/uuid"
)

// Delete removes handles one by one, continuing past failures. Listings the
// handles appeared in are invalidated; listings owned by deleted containers
// are evicted. Deleted handles also leave the cut buffer.
func (e *Executor) Delete(ctx context.Context, handles []zexplorer.ResourceHandle, sink zexplorer.ProgressSink) Report {
	if sink == nil {
		sink = nopSink{}
	}
	report := Report{ID: uuid.New()}
	logger := e.logger.With().Str("batch", report.ID.String()).Int("deletes", len(handles)).Logger()
	e.metrics.RecordBatch()

	var deleted []zexplorer.HandleID
	var parents, owned []zexplorer.Query
	for i, h := range handles {
		// a delete is reported as an operation without destination
		op := zexplorer.MoveCopyOperation{Source: h}
		if ctx.Err() != nil || sink.Cancelled() {
			report.Cancelled = true
			report.Skipped = append(report.Skipped, op)
			e.metrics.RecordTransfer("delete", metrics.ResultSkip)
			continue
		}
		err := e.delete(ctx, h)
		sink.Progress(i+1, len(handles), op)
		if err != nil {
			report.Failed = append(report.Failed, &zexplorer.TransferError{Op: op, Err: err})
			e.metrics.RecordTransfer("delete", metrics.ResultError)
			logger.Warn().Err(err).Str("handle", h.Key).Msg("Delete failed")
			continue
		}
		report.Succeeded = append(report.Succeeded, op)
		e.metrics.RecordTransfer("delete", metrics.ResultOK)
		deleted = append(deleted, h.ID())
		parents = append(parents, e.locator.ParentQueries(h)...)
		if h.Dir {
			owned = append(owned, e.locator.ContainerQueries(h)...)
		}
	}

	if e.buffer != nil {
		e.buffer.Remove(deleted...)
	}
	seen := make(map[zexplorer.Query]struct{})
	for _, q := range owned {
		seen[q] = struct{}{}
		e.cache.CleanCache(q)
	}
	for _, q := range parents {
		if _, dup := seen[q]; dup {
			continue
		}
		seen[q] = struct{}{}
		e.cache.Invalidate(q)
		report.Invalidated = append(report.Invalidated, q)
	}
	logger.Info().Int("deleted", len(deleted)).Int("failed", len(report.Failed)).Msg("Delete batch done")
	return report
}

func (e *Executor) delete(ctx context.Context, h zexplorer.ResourceHandle) error {
	if e.deleter == nil {
		return errors.ErrUnsupported
	}
	return e.deleter.Delete(ctx, h)
}
