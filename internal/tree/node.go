// Package tree materializes explorer tree positions from cached listings
package tree

import (
	"strings"
	"sync"
	"weak"

	"github.com/brettbedarf/zexplorer"
	"github.com/brettbedarf/zexplorer/internal/cache"
)

// Placeholder marks transient nodes rendered instead of real children
type Placeholder uint8

const (
	NotPlaceholder Placeholder = iota
	PlaceholderLoading
	PlaceholderError
	PlaceholderLoadMore
)

// ResourceNode is one position in the logical tree. A node exclusively owns
// its children; the parent pointer is weak and only used to rebuild paths.
type ResourceNode struct {
	name        string
	kind        zexplorer.ResourceKind
	handle      *zexplorer.ResourceHandle // nil for roots and placeholders
	query       *zexplorer.Query          // listing of this node's children; nil for leaves
	placeholder Placeholder
	err         error               // PlaceholderError only
	more        *cache.LoadMoreInfo // PlaceholderLoadMore only

	mu       sync.RWMutex // protects the fields below
	parent   weak.Pointer[ResourceNode]
	children []*ResourceNode
}

// newRoot creates a top level node for a mask, path or filter query
func newRoot(name string, q zexplorer.Query) *ResourceNode {
	return &ResourceNode{name: name, kind: q.Kind, query: &q}
}

func newHandleNode(h zexplorer.ResourceHandle, q *zexplorer.Query) *ResourceNode {
	return &ResourceNode{name: h.Name, kind: h.Kind, handle: &h, query: q}
}

func newPlaceholder(kind Placeholder, parent *ResourceNode) *ResourceNode {
	n := &ResourceNode{kind: parent.kind, placeholder: kind}
	switch kind {
	case PlaceholderLoading:
		n.name = "loading..."
	case PlaceholderError:
		n.name = "error"
	case PlaceholderLoadMore:
		n.name = "load more"
	}
	n.parent = weak.Make(parent)
	return n
}

func (n *ResourceNode) Name() string                 { return n.name }
func (n *ResourceNode) Kind() zexplorer.ResourceKind { return n.kind }
func (n *ResourceNode) Placeholder() Placeholder     { return n.placeholder }
func (n *ResourceNode) Err() error                   { return n.err }
func (n *ResourceNode) LoadMore() (cache.LoadMoreInfo, bool) {
	if n.more == nil {
		return cache.LoadMoreInfo{}, false
	}
	return *n.more, true
}

// Handle returns the resource displayed by the node, if any
func (n *ResourceNode) Handle() (zexplorer.ResourceHandle, bool) {
	if n.handle == nil {
		return zexplorer.ResourceHandle{}, false
	}
	return *n.handle, true
}

// Query returns the listing query of the node's children, if it has any
func (n *ResourceNode) Query() (zexplorer.Query, bool) {
	if n.query == nil {
		return zexplorer.Query{}, false
	}
	return *n.query, true
}

// IsLeaf reports whether the node can never have children
func (n *ResourceNode) IsLeaf() bool {
	return n.query == nil
}

// RegistryValue indexes query bearing nodes by their query so cache events for
// that query reach them; all other nodes by their handle identity
func (n *ResourceNode) RegistryValue() any {
	if n.query != nil {
		return *n.query
	}
	if n.handle != nil {
		return n.handle.ID()
	}
	return n
}

func (n *ResourceNode) RegistryHandle() (zexplorer.HandleID, bool) {
	if n.handle == nil {
		return zexplorer.HandleID{}, false
	}
	return n.handle.ID(), true
}

// Parent returns the parent node while it is still alive
func (n *ResourceNode) Parent() *ResourceNode {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.parent.Value()
}

// Children returns the last materialized children
func (n *ResourceNode) Children() []*ResourceNode {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*ResourceNode, len(n.children))
	copy(out, n.children)
	return out
}

// Path joins the names from the root down to n
func (n *ResourceNode) Path() string {
	var parts []string
	for cur := n; cur != nil; cur = cur.Parent() {
		parts = append(parts, cur.name)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/")
}

// setChildren replaces n's children and points them back at n. Replaced
// children are simply dropped.
func (n *ResourceNode) setChildren(children []*ResourceNode) {
	for _, c := range children {
		c.mu.Lock()
		c.parent = weak.Make(n)
		c.mu.Unlock()
	}
	n.mu.Lock()
	n.children = children
	n.mu.Unlock()
}

// childByID indexes n's current real children by handle identity
func (n *ResourceNode) childByID() map[zexplorer.HandleID]*ResourceNode {
	n.mu.RLock()
	defer n.mu.RUnlock()
	m := make(map[zexplorer.HandleID]*ResourceNode, len(n.children))
	for _, c := range n.children {
		if c.handle != nil {
			m[c.handle.ID()] = c
		}
	}
	return m
}

// detach removes child from n's children
func (n *ResourceNode) detach(child *ResourceNode) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, c := range n.children {
		if c == child {
			n.children = append(n.children[:i], n.children[i+1:]...)
			return true
		}
	}
	return false
}
