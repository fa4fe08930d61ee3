// Package session wires the fetch cache, the explorer tree, the cut buffer
// and the move/copy executor around a single provider
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/brettbedarf/zexplorer"
	"github.com/brettbedarf/zexplorer/adapters"
	"github.com/brettbedarf/zexplorer/config"
	"github.com/brettbedarf/zexplorer/internal/cache"
	"github.com/brettbedarf/zexplorer/internal/conflicts"
	"github.com/brettbedarf/zexplorer/internal/events"
	"github.com/brettbedarf/zexplorer/internal/metrics"
	"github.com/brettbedarf/zexplorer/internal/transfer"
	"github.com/brettbedarf/zexplorer/internal/tree"
	"github.com/brettbedarf/zexplorer/internal/util"
	"github.com/brettbedarf/zexplorer/requests"
)

// ErrEmptyBuffer is returned when pasting with nothing cut or copied
var ErrEmptyBuffer = errors.New("nothing to paste")

// Options for [New]
type Options struct {
	// Registerer receives the session's collectors. Nil disables metrics.
	Registerer prometheus.Registerer
	// Render is called whenever a node's children changed
	Render tree.Renderer
}

// Session contains the process scoped explorer state for one provider
type Session struct {
	provider adapters.Provider
	bus      *events.Bus
	cache    *cache.FetchCache
	pages    *cache.PaginationController
	explorer *tree.Explorer
	buffer   *transfer.CutBuffer
	executor *transfer.Executor
	logger   util.Logger
}

// New creates a Session serving provider. cfg must be valid.
func New(cfg *config.Config, provider adapters.Provider, opts Options) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var m *metrics.Metrics
	if opts.Registerer != nil {
		m = metrics.New(cfg.MetricsNamespace, opts.Registerer)
	}

	bus := events.NewBus()
	c := cache.New(provider.Lister(), cache.Options{Workers: cfg.FetchWorkers, Bus: bus, Metrics: m})
	pages := cache.NewPaginationController(c, cfg.PageSize)
	explorer := tree.NewExplorer(c, pages, tree.NewNodeRegistry(), bus, opts.Render)
	buffer := transfer.NewCutBuffer(bus)

	parallelism := 0
	if cfg.ParallelTransfers {
		parallelism = cfg.TransferParallelism
	}
	executor := transfer.NewExecutor(provider.Transfer(), c, transfer.Options{
		Locator:     explorer,
		Buffer:      buffer,
		Deleter:     provider.Deleter(),
		Metrics:     m,
		Parallelism: parallelism,
	})

	s := &Session{
		provider: provider,
		bus:      bus,
		cache:    c,
		pages:    pages,
		explorer: explorer,
		buffer:   buffer,
		executor: executor,
		logger:   util.GetLogger("Session").With().Str("connection", provider.Connection()).Logger(),
	}
	s.logger.Debug().Int("workers", cfg.FetchWorkers).Int("parallelism", parallelism).Msg("Session created")
	return s, nil
}

func (s *Session) Bus() *events.Bus                   { return s.bus }
func (s *Session) Cache() *cache.FetchCache           { return s.cache }
func (s *Session) Pages() *cache.PaginationController { return s.pages }
func (s *Session) Explorer() *tree.Explorer           { return s.explorer }
func (s *Session) Buffer() *transfer.CutBuffer        { return s.buffer }
func (s *Session) Connection() string                 { return s.provider.Connection() }

// List fetches q, following continuations until the listing is complete or
// ctx is done
func (s *Session) List(ctx context.Context, q zexplorer.Query) ([]zexplorer.ResourceHandle, error) {
	res := s.cache.Fetch(ctx, q)
	for res.Err == nil && res.HasMore {
		done := make(chan cache.FetchResult, 1)
		if !s.pages.LoadMore(q, func(r cache.FetchResult) { done <- r }) {
			break
		}
		select {
		case res = <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Items, nil
}

// Paste computes conflicts for plan, lets policy resolve them and runs the
// resulting operations. A nil policy is parsed from the plan. Pairs the policy
// skipped are listed in the report's ConflictSkipped.
func (s *Session) Paste(ctx context.Context, plan *requests.PastePlan, policy zexplorer.ConflictPolicy, sink zexplorer.ProgressSink) (transfer.Report, error) {
	if policy == nil {
		var err error
		if policy, err = conflicts.ParsePolicy(plan.Policy); err != nil {
			return transfer.Report{}, err
		}
	}
	logger := s.logger.With().Str("plan", plan.ID.String()).Bool("move", plan.Move).Logger()
	if o, ok := policy.(conflicts.OverwriteAll); ok && o.OnForcedSkip == nil {
		o.OnForcedSkip = func(p zexplorer.ConflictPair) {
			logger.Warn().Str("source", p.Source.Key).Str("destination", p.Destination.Key).
				Msg("Cannot overwrite, skipping")
		}
		policy = o
	}

	c, err := conflicts.Compute(ctx, s.provider, plan.Sources, plan.Destinations)
	if err != nil {
		return transfer.Report{}, err
	}
	resolutions, err := conflicts.Resolve(ctx, c, policy)
	if err != nil {
		return transfer.Report{}, err
	}
	ops := conflicts.ApplyResolutions(plan.Sources, plan.Destinations, resolutions, plan.Move)
	logger.Info().
		Int("resolvable", len(c.Resolvable)).
		Int("unresolvable", len(c.Unresolvable)).
		Int("operations", len(ops)).
		Msg("Pasting")

	report := s.executor.Run(ctx, ops, sink)
	if plan.ID != uuid.Nil {
		report.ID = plan.ID
	}
	report.ConflictSkipped = conflictSkips(c, resolutions)
	return report, nil
}

func conflictSkips(c conflicts.Conflicts, resolutions []zexplorer.ConflictResolution) []transfer.ConflictSkip {
	var out []transfer.ConflictSkip
	for _, r := range resolutions {
		if r.Kind != zexplorer.ResolveSkip {
			continue
		}
		skip := transfer.ConflictSkip{Pair: r.Pair(), Reason: "skipped"}
		if reason := c.Reasons[r.Pair().Key()]; reason != conflicts.ReasonNone {
			skip.Reason = reason.String()
		}
		out = append(out, skip)
	}
	return out
}

// PasteBuffer pastes the cut buffer into destinations. Cut handles are moved
// (and leave the buffer as they succeed), copied handles stay.
func (s *Session) PasteBuffer(ctx context.Context, destinations []zexplorer.ResourceHandle, policy zexplorer.ConflictPolicy, sink zexplorer.ProgressSink) (transfer.Report, error) {
	handles, isCut := s.buffer.Get()
	if len(handles) == 0 {
		return transfer.Report{}, ErrEmptyBuffer
	}
	plan := &requests.PastePlan{
		Move:         isCut,
		Sources:      handles,
		Destinations: destinations,
	}
	if policy == nil {
		policy = conflicts.SkipAll{}
	}
	report, err := s.Paste(ctx, plan, policy, sink)
	if err != nil {
		return report, fmt.Errorf("pasting buffer: %w", err)
	}
	return report, nil
}

// Delete removes handles, continuing past individual failures
func (s *Session) Delete(ctx context.Context, handles []zexplorer.ResourceHandle, sink zexplorer.ProgressSink) transfer.Report {
	return s.executor.Delete(ctx, handles, sink)
}

// FilesChanged forwards external change notifications to the explorer
func (s *Session) FilesChanged(handles ...zexplorer.ResourceHandle) {
	s.bus.Publish(events.FilesChanged{Handles: handles})
}

// Close stops event delivery and waits for in-flight fetches
func (s *Session) Close() {
	s.explorer.Close()
	s.cache.Close()
	s.logger.Debug().Msg("Session closed")
}
