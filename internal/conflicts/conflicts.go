// Package conflicts detects name collisions of a paste and turns the user's
// answers into move/copy operations
package conflicts

import (
	"context"
	"fmt"

	"github.com/brettbedarf/zexplorer"
	"github.com/brettbedarf/zexplorer/internal/util"
	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/sync/errgroup"
)

// Reason explains why a pair cannot be resolved by overwriting
type Reason uint8

const (
	ReasonNone Reason = iota
	// ReasonDirOverFile: the source is a directory, the existing child a file
	ReasonDirOverFile
	// ReasonFileOverDir: the source is a file, the existing child a directory
	ReasonFileOverDir
	// ReasonSelfOverwrite: the destination is the source's own parent
	ReasonSelfOverwrite
)

func (r Reason) String() string {
	switch r {
	case ReasonDirOverFile:
		return "directory would replace a file"
	case ReasonFileOverDir:
		return "file would replace a directory"
	case ReasonSelfOverwrite:
		return "source would overwrite itself"
	default:
		return "none"
	}
}

// DefaultLookups bounds concurrent name resolver calls in [Compute]
const DefaultLookups = 8

// Conflicts is the partitioned result of [Compute]. Every detected pair is in
// exactly one of Resolvable and Unresolvable.
type Conflicts struct {
	Resolvable   []zexplorer.ConflictPair
	Unresolvable []zexplorer.ConflictPair
	// Renames holds the collision free fallback name of every pair
	Renames map[zexplorer.PairKey]string
	Reasons map[zexplorer.PairKey]Reason
}

// Empty is true when the paste can proceed without asking anything
func (c Conflicts) Empty() bool {
	return len(c.Resolvable) == 0 && len(c.Unresolvable) == 0
}

// Pairs returns both partitions, resolvable first
func (c Conflicts) Pairs() []zexplorer.ConflictPair {
	out := make([]zexplorer.ConflictPair, 0, len(c.Resolvable)+len(c.Unresolvable))
	out = append(out, c.Resolvable...)
	return append(out, c.Unresolvable...)
}

// IsUnresolvable reports whether pair may never be overwritten
func (c Conflicts) IsUnresolvable(key zexplorer.PairKey) bool {
	return c.Reasons[key] != ReasonNone
}

// StructuralError describes why pair is unresolvable, nil if it is not
func (c Conflicts) StructuralError(p zexplorer.ConflictPair) error {
	r := c.Reasons[p.Key()]
	if r == ReasonNone {
		return nil
	}
	return &zexplorer.StructuralConflictError{Pair: p, Reason: r.String()}
}

type found struct {
	pair    zexplorer.ConflictPair
	reason  Reason
	newName string
}

// Compute asks the name resolver of every (destination, source) pairing
// whether the source collides with an existing child, classifies the hits and
// computes a fallback name for each. Pairs are returned in destination then
// source order; duplicates are reported once.
func Compute(ctx context.Context, provider zexplorer.NameResolverProvider, sources, destinations []zexplorer.ResourceHandle) (Conflicts, error) {
	logger := util.GetLogger("Conflicts")
	hits := xsync.NewMap[zexplorer.PairKey, found]()

	seen := make(map[zexplorer.PairKey]struct{})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(DefaultLookups)
	for _, dst := range destinations {
		for _, src := range sources {
			key := zexplorer.ConflictPair{Destination: dst, Source: src}.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			g.Go(func() error {
				f, hit, err := lookup(gctx, provider.NameResolver(src, dst), src, sources, dst)
				if err != nil {
					return err
				}
				if hit {
					hits.Store(key, f)
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return Conflicts{}, fmt.Errorf("computing conflicts: %w", err)
	}

	res := Conflicts{
		Renames: make(map[zexplorer.PairKey]string),
		Reasons: make(map[zexplorer.PairKey]Reason),
	}
	var ordered []zexplorer.ConflictPair
	for _, dst := range destinations {
		for _, src := range sources {
			key := zexplorer.ConflictPair{Destination: dst, Source: src}.Key()
			f, ok := hits.LoadAndDelete(key)
			if !ok {
				continue
			}
			ordered = append(ordered, f.pair)
			res.Renames[key] = f.newName
			if f.reason != ReasonNone {
				res.Reasons[key] = f.reason
				res.Unresolvable = append(res.Unresolvable, f.pair)
			} else {
				res.Resolvable = append(res.Resolvable, f.pair)
			}
		}
	}
	res.Renames = DedupeRenames(ordered, res.Renames)

	logger.Debug().
		Int("resolvable", len(res.Resolvable)).
		Int("unresolvable", len(res.Unresolvable)).
		Msg("Computed conflicts")
	return res, nil
}

func lookup(ctx context.Context, r zexplorer.NameResolver, src zexplorer.ResourceHandle, all []zexplorer.ResourceHandle, dst zexplorer.ResourceHandle) (found, bool, error) {
	child, err := r.ConflictingChild(ctx, src, all, dst)
	if err != nil {
		return found{}, false, fmt.Errorf("%s into %s: %w", src.Key, dst.Key, err)
	}
	if child == nil {
		return found{}, false, nil
	}
	newName, err := r.Resolve(ctx, src, all, dst)
	if err != nil {
		return found{}, false, fmt.Errorf("resolving new name for %s in %s: %w", src.Key, dst.Key, err)
	}
	pair := zexplorer.ConflictPair{Destination: dst, Source: src}
	return found{pair: pair, reason: Classify(pair, *child), newName: newName}, true, nil
}

// Classify decides whether pair, colliding with the existing child, can be
// resolved by overwriting
func Classify(pair zexplorer.ConflictPair, existing zexplorer.ResourceHandle) Reason {
	src, dst := pair.Source, pair.Destination
	switch {
	case src.Connection == dst.Connection && src.Parent == dst.Key:
		return ReasonSelfOverwrite
	case src.Dir && !existing.Dir:
		return ReasonDirOverFile
	case !src.Dir && existing.Dir:
		return ReasonFileOverDir
	default:
		return ReasonNone
	}
}
