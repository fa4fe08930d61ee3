package conflicts

import "github.com/brettbedarf/zexplorer"

// DedupeRenames makes the fallback names unique per destination. Resolvers
// already avoid existing children and the names of the other sources, but two
// sources can still map to the same target, i.e. a.txt and A.json both
// becoming member A1. Pairs are visited once in order; a pair whose target was
// already taken by an earlier pair gets the next suffix that no other target
// in that destination uses.
//
// The bumped name is only checked against the other targets, not against the
// destination's listing.
func DedupeRenames(pairs []zexplorer.ConflictPair, renames map[zexplorer.PairKey]string) map[zexplorer.PairKey]string {
	out := make(map[zexplorer.PairKey]string, len(renames))
	targets := make(map[zexplorer.HandleID]map[string]struct{})
	for _, p := range pairs {
		dst := p.Destination.ID()
		if targets[dst] == nil {
			targets[dst] = make(map[string]struct{})
		}
		if name, ok := renames[p.Key()]; ok {
			targets[dst][name] = struct{}{}
		}
	}

	assigned := make(map[zexplorer.HandleID]map[string]struct{})
	for _, p := range pairs {
		key := p.Key()
		name, ok := renames[key]
		if !ok {
			continue
		}
		dst := p.Destination.ID()
		if assigned[dst] == nil {
			assigned[dst] = make(map[string]struct{})
		}
		if _, taken := assigned[dst][name]; taken {
			for n := 1; ; n++ {
				candidate := zexplorer.SuffixedName(name, n, p.Destination.IsPDS())
				_, usedByTarget := targets[dst][candidate]
				_, usedByAssigned := assigned[dst][candidate]
				if !usedByTarget && !usedByAssigned {
					name = candidate
					break
				}
			}
		}
		assigned[dst][name] = struct{}{}
		out[key] = name
	}
	// names for keys not in pairs pass through
	for k, v := range renames {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out
}
