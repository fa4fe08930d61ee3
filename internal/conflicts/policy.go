package conflicts

import (
	"context"
	"errors"
	"fmt"

	"github.com/brettbedarf/zexplorer"
	"github.com/brettbedarf/zexplorer/internal/util"
)

// Resolve asks policy how to handle every conflict. It must not be called
// while holding the cache or registry locks since the policy may block on the
// user. An aborted policy skips every pair. A policy that overwrites an
// unresolvable pair is rejected with [zexplorer.ErrStructuralConflict].
func Resolve(ctx context.Context, c Conflicts, policy zexplorer.ConflictPolicy) ([]zexplorer.ConflictResolution, error) {
	if c.Empty() {
		return nil, nil
	}
	logger := util.GetLogger("Conflicts")

	decided, err := policy.Decide(ctx, c.Resolvable, c.Unresolvable, c.Renames)
	if errors.Is(err, zexplorer.ErrConflictPolicyAborted) {
		logger.Info().Int("pairs", len(c.Pairs())).Msg("Conflict resolution aborted, skipping all")
		return skipAll(c.Pairs()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("deciding conflicts: %w", err)
	}

	byKey := make(map[zexplorer.PairKey]zexplorer.ConflictResolution, len(decided))
	for _, r := range decided {
		byKey[r.Pair().Key()] = r
	}

	out := make([]zexplorer.ConflictResolution, 0, len(c.Resolvable)+len(c.Unresolvable))
	for _, p := range c.Pairs() {
		key := p.Key()
		r, ok := byKey[key]
		if !ok {
			logger.Warn().Str("source", p.Source.Key).Str("destination", p.Destination.Key).
				Msg("Policy left pair undecided, skipping")
			r = zexplorer.ConflictResolution{Source: p.Source, Destination: p.Destination, Kind: zexplorer.ResolveSkip}
		}
		if r.Kind == zexplorer.ResolveOverwrite && c.IsUnresolvable(key) {
			return nil, c.StructuralError(p)
		}
		if r.Kind == zexplorer.ResolveRename && r.NewName == "" {
			r.NewName = c.Renames[key]
		}
		out = append(out, r)
	}
	return out, nil
}

func skipAll(pairs []zexplorer.ConflictPair) []zexplorer.ConflictResolution {
	out := make([]zexplorer.ConflictResolution, len(pairs))
	for i, p := range pairs {
		out[i] = zexplorer.ConflictResolution{Source: p.Source, Destination: p.Destination, Kind: zexplorer.ResolveSkip}
	}
	return out
}

// SkipAll resolves every pair to skip
type SkipAll struct{}

func (SkipAll) Decide(_ context.Context, resolvable, unresolvable []zexplorer.ConflictPair, _ map[zexplorer.PairKey]string) ([]zexplorer.ConflictResolution, error) {
	return skipAll(append(append([]zexplorer.ConflictPair(nil), resolvable...), unresolvable...)), nil
}

// OverwriteAll overwrites every resolvable pair. Unresolvable pairs are never
// overwritten; each is skipped and reported through OnForcedSkip.
type OverwriteAll struct {
	OnForcedSkip func(pair zexplorer.ConflictPair)
}

func (p OverwriteAll) Decide(_ context.Context, resolvable, unresolvable []zexplorer.ConflictPair, _ map[zexplorer.PairKey]string) ([]zexplorer.ConflictResolution, error) {
	out := make([]zexplorer.ConflictResolution, 0, len(resolvable)+len(unresolvable))
	for _, pair := range resolvable {
		out = append(out, zexplorer.ConflictResolution{Source: pair.Source, Destination: pair.Destination, Kind: zexplorer.ResolveOverwrite})
	}
	for _, pair := range unresolvable {
		if p.OnForcedSkip != nil {
			p.OnForcedSkip(pair)
		}
		out = append(out, zexplorer.ConflictResolution{Source: pair.Source, Destination: pair.Destination, Kind: zexplorer.ResolveSkip})
	}
	return out, nil
}

// RenameAll gives every pair its fallback name
type RenameAll struct{}

func (RenameAll) Decide(_ context.Context, resolvable, unresolvable []zexplorer.ConflictPair, renames map[zexplorer.PairKey]string) ([]zexplorer.ConflictResolution, error) {
	out := make([]zexplorer.ConflictResolution, 0, len(resolvable)+len(unresolvable))
	for _, list := range [][]zexplorer.ConflictPair{resolvable, unresolvable} {
		for _, pair := range list {
			out = append(out, zexplorer.ConflictResolution{
				Source:      pair.Source,
				Destination: pair.Destination,
				Kind:        zexplorer.ResolveRename,
				NewName:     renames[pair.Key()],
			})
		}
	}
	return out, nil
}

// PerItem asks Choose about every pair. Resolvable pairs are offered skip,
// overwrite and rename to newName; unresolvable pairs only skip and rename.
// Choose returning anything else is a contract violation and panics.
type PerItem struct {
	Choose func(pair zexplorer.ConflictPair, unresolvable bool, newName string) zexplorer.ResolutionKind
}

func (p PerItem) Decide(ctx context.Context, resolvable, unresolvable []zexplorer.ConflictPair, renames map[zexplorer.PairKey]string) ([]zexplorer.ConflictResolution, error) {
	out := make([]zexplorer.ConflictResolution, 0, len(resolvable)+len(unresolvable))
	ask := func(pair zexplorer.ConflictPair, structural bool) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		newName := renames[pair.Key()]
		kind := p.Choose(pair, structural, newName)
		switch {
		case kind == zexplorer.ResolveSkip:
		case kind == zexplorer.ResolveRename:
		case kind == zexplorer.ResolveOverwrite && !structural:
		default:
			panic(fmt.Sprintf("conflicts: unsupported choice %s for %s into %s", kind, pair.Source.Key, pair.Destination.Key))
		}
		r := zexplorer.ConflictResolution{Source: pair.Source, Destination: pair.Destination, Kind: kind}
		if kind == zexplorer.ResolveRename {
			r.NewName = newName
		}
		out = append(out, r)
		return nil
	}
	for _, pair := range resolvable {
		if err := ask(pair, false); err != nil {
			return nil, err
		}
	}
	for _, pair := range unresolvable {
		if err := ask(pair, true); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ParsePolicy maps the names used by paste plans to a non interactive policy
func ParsePolicy(name string) (zexplorer.ConflictPolicy, error) {
	switch name {
	case "", "skip":
		return SkipAll{}, nil
	case "overwrite":
		return OverwriteAll{}, nil
	case "rename":
		return RenameAll{}, nil
	default:
		return nil, fmt.Errorf("unknown conflict policy %q", name)
	}
}
