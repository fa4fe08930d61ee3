package tree

import "github.com/brettbedarf/zexplorer"

// childQuery derives the listing query of a container handle. Leaves have no
// entry or return false.
type childQuery func(h zexplorer.ResourceHandle) (zexplorer.Query, bool)

func dirQuery(kind zexplorer.ResourceKind, shape zexplorer.ResultShape) childQuery {
	return func(h zexplorer.ResourceHandle) (zexplorer.Query, bool) {
		if !h.Dir {
			return zexplorer.Query{}, false
		}
		return zexplorer.Query{Connection: h.Connection, Kind: kind, Payload: h.Key, Shape: shape}, true
	}
}

// childQueries is keyed by the kind of the handle being expanded
var childQueries = map[zexplorer.ResourceKind]childQuery{
	// a PDS lists its members; members and sequential datasets are leaves
	zexplorer.KindMember:  dirQuery(zexplorer.KindMember, zexplorer.ShapeMembers),
	zexplorer.KindUssPath: dirQuery(zexplorer.KindUssPath, zexplorer.ShapeFiles),
	zexplorer.KindLocal:   dirQuery(zexplorer.KindLocal, zexplorer.ShapeFiles),
	zexplorer.KindJob: func(h zexplorer.ResourceHandle) (zexplorer.Query, bool) {
		return zexplorer.Query{Connection: h.Connection, Kind: zexplorer.KindJob, Payload: h.Key, Shape: zexplorer.ShapeSpool}, true
	},
}

// ContainerQuery returns the query listing h's children
func ContainerQuery(h zexplorer.ResourceHandle) (zexplorer.Query, bool) {
	fn, ok := childQueries[h.Kind]
	if !ok {
		return zexplorer.Query{}, false
	}
	return fn(h)
}

// ParentQuery derives the query of the listing that contains h from its
// Parent key. Handles whose parent is a mask or filter cannot be derived this
// way; see [Explorer.ParentQueries].
func ParentQuery(h zexplorer.ResourceHandle) (zexplorer.Query, bool) {
	if h.Parent == "" {
		return zexplorer.Query{}, false
	}
	parent := zexplorer.ResourceHandle{Connection: h.Connection, Key: h.Parent, Kind: h.Kind, Dir: true}
	if h.Kind == zexplorer.KindSpoolFile {
		parent.Kind = zexplorer.KindJob
	}
	return ContainerQuery(parent)
}

// materialize turns a cached listing into nodes, reusing existing nodes for
// handles that are still present so expanded subtrees survive a refresh
func materialize(items []zexplorer.ResourceHandle, existing map[zexplorer.HandleID]*ResourceNode) []*ResourceNode {
	nodes := make([]*ResourceNode, 0, len(items))
	for _, h := range items {
		if n, ok := existing[h.ID()]; ok && n.handle.Dir == h.Dir {
			nodes = append(nodes, n)
			continue
		}
		var q *zexplorer.Query
		if cq, ok := ContainerQuery(h); ok {
			q = &cq
		}
		nodes = append(nodes, newHandleNode(h, q))
	}
	return nodes
}
