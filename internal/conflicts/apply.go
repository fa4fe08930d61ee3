package conflicts

import "github.com/brettbedarf/zexplorer"

// ApplyResolutions builds the operations of a paste of every source into every
// destination. Skipped pairs are dropped, overwrites are forced and renames
// carry their new name. Pairs without a resolution did not conflict.
func ApplyResolutions(sources, destinations []zexplorer.ResourceHandle, resolutions []zexplorer.ConflictResolution, isMove bool) []zexplorer.MoveCopyOperation {
	byKey := make(map[zexplorer.PairKey]zexplorer.ConflictResolution, len(resolutions))
	for _, r := range resolutions {
		byKey[r.Pair().Key()] = r
	}

	seen := make(map[zexplorer.PairKey]struct{})
	ops := make([]zexplorer.MoveCopyOperation, 0, len(sources)*len(destinations))
	for _, dst := range destinations {
		for _, src := range sources {
			key := zexplorer.ConflictPair{Destination: dst, Source: src}.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			op := zexplorer.MoveCopyOperation{Source: src, Destination: dst, IsMove: isMove}
			if r, ok := byKey[key]; ok {
				switch r.Kind {
				case zexplorer.ResolveSkip:
					continue
				case zexplorer.ResolveOverwrite:
					op.ForceOverwrite = true
				case zexplorer.ResolveRename:
					op.NewName = r.NewName
				}
			}
			ops = append(ops, op)
		}
	}
	return ops
}
