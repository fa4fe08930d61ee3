package tree

import (
	"strings"

	"github.com/brettbedarf/zexplorer"
	"github.com/brettbedarf/zexplorer/internal/cache"
	"github.com/brettbedarf/zexplorer/internal/events"
	"github.com/brettbedarf/zexplorer/internal/registry"
	"github.com/brettbedarf/zexplorer/internal/util"
	"github.com/google/uuid"
)

// Renderer is told which node needs re-rendering. It is called from fetch
// goroutines and must be safe for concurrent use.
type Renderer func(n *ResourceNode)

type NodeRegistry = registry.Registry[ResourceNode, *ResourceNode]

// NewNodeRegistry creates an empty registry for explorer nodes
func NewNodeRegistry() *NodeRegistry {
	return registry.New[ResourceNode]()
}

// Explorer expands nodes through the fetch cache and fans cache, buffer and
// filesystem events out to every registered node they concern
type Explorer struct {
	cache  *cache.FetchCache
	pages  *cache.PaginationController
	nodes  *NodeRegistry
	bus    *events.Bus
	render Renderer
	sub    uuid.UUID
	logger util.Logger
}

func NewExplorer(c *cache.FetchCache, pages *cache.PaginationController, nodes *NodeRegistry, bus *events.Bus, render Renderer) *Explorer {
	if render == nil {
		render = func(*ResourceNode) {}
	}
	x := &Explorer{
		cache:  c,
		pages:  pages,
		nodes:  nodes,
		bus:    bus,
		render: render,
		logger: util.GetLogger("Explorer"),
	}
	x.sub = bus.Subscribe(x.onEvent)
	return x
}

// Close stops event delivery to the explorer
func (x *Explorer) Close() {
	x.bus.Unsubscribe(x.sub)
}

// Registry exposes the node registry
func (x *Explorer) Registry() *NodeRegistry {
	return x.nodes
}

// Root creates and registers a top level node for q
func (x *Explorer) Root(name string, q zexplorer.Query) *ResourceNode {
	n := newRoot(name, q)
	x.nodes.Register(n)
	return n
}

// Expand is the user asking to open n. Unlike [Explorer.Children] it retries
// a previously failed fetch.
func (x *Explorer) Expand(n *ResourceNode) []*ResourceNode {
	if q, ok := n.Query(); ok {
		if e, exists := x.cache.Entry(q); exists && e.State == cache.Errored {
			x.cache.Reload(q, nil)
		}
	}
	return x.Children(n)
}

// Children materializes n's children from the cache. On a miss or a stale
// entry it starts a background reload; until the reload lands a loading
// placeholder (miss) or the stale children (invalidated) are returned.
func (x *Explorer) Children(n *ResourceNode) []*ResourceNode {
	q, ok := n.Query()
	if !ok {
		return nil
	}
	e, exists := x.cache.Entry(q)
	if !exists || (e.Validity != cache.Valid && e.State == cache.Idle) {
		x.cache.Reload(q, nil)
	}

	items, cached := x.cache.GetCached(q)
	var children []*ResourceNode
	switch {
	case cached:
		children = materialize(items, n.childByID())
		if info, more := x.pages.Affordance(q); more {
			p := newPlaceholder(PlaceholderLoadMore, n)
			p.more = &info
			children = append(children, p)
		}
	case exists && e.State == cache.Errored:
		p := newPlaceholder(PlaceholderError, n)
		p.err = e.Err
		children = []*ResourceNode{p}
	default:
		children = []*ResourceNode{newPlaceholder(PlaceholderLoading, n)}
	}

	n.setChildren(children)
	for _, c := range children {
		if c.placeholder == NotPlaceholder {
			x.nodes.Register(c)
		}
	}
	return children
}

// LoadMore fetches the next page of n's listing. Returns false when n is
// fully loaded.
func (x *Explorer) LoadMore(n *ResourceNode) bool {
	if n.placeholder == PlaceholderLoadMore {
		n = n.Parent()
		if n == nil {
			return false
		}
	}
	q, ok := n.Query()
	if !ok {
		return false
	}
	return x.pages.LoadMore(q, nil)
}

// Refresh marks n's listing stale and refetches it
func (x *Explorer) Refresh(n *ResourceNode) {
	q, ok := n.Query()
	if !ok {
		return
	}
	x.cache.Invalidate(q)
	x.cache.Reload(q, nil)
}

// Remove is called when the resource behind n (a mask, path or filter) is
// permanently deleted. It evicts n's listing and every listing beneath it on
// the same connection, then drops n from its parent.
func (x *Explorer) Remove(n *ResourceNode) []zexplorer.Query {
	var evicted []zexplorer.Query
	if q, ok := n.Query(); ok {
		evicted = x.cache.CleanWhere(func(c zexplorer.Query) bool {
			return c.Connection == q.Connection && underPayload(c.Payload, q.Payload)
		})
	}
	if p := n.Parent(); p != nil {
		p.detach(n)
		x.render(p)
	}
	return evicted
}

func underPayload(payload, root string) bool {
	if payload == root {
		return true
	}
	return strings.HasPrefix(payload, strings.TrimSuffix(root, "/")+"/") ||
		strings.HasPrefix(payload, root+"(")
}

// ContainerQueries returns the listing queries of container h
func (x *Explorer) ContainerQueries(h zexplorer.ResourceHandle) []zexplorer.Query {
	seen := make(map[zexplorer.Query]struct{})
	var out []zexplorer.Query
	add := func(q zexplorer.Query) {
		if _, dup := seen[q]; !dup {
			seen[q] = struct{}{}
			out = append(out, q)
		}
	}
	if q, ok := ContainerQuery(h); ok {
		add(q)
	}
	for _, n := range x.nodes.FindByHandle(h.ID()) {
		if q, ok := n.Query(); ok {
			add(q)
		}
	}
	return out
}

// ParentQueries returns every listing query currently showing h. Besides the
// one derived from h's parent key this includes masks and filters that
// matched h.
func (x *Explorer) ParentQueries(h zexplorer.ResourceHandle) []zexplorer.Query {
	seen := make(map[zexplorer.Query]struct{})
	var out []zexplorer.Query
	add := func(q zexplorer.Query) {
		if _, dup := seen[q]; !dup {
			seen[q] = struct{}{}
			out = append(out, q)
		}
	}
	if q, ok := ParentQuery(h); ok {
		add(q)
	}
	for _, n := range x.nodes.FindByHandle(h.ID()) {
		if p := n.Parent(); p != nil {
			if q, ok := p.Query(); ok {
				add(q)
			}
		}
	}
	return out
}

func (x *Explorer) onEvent(evt events.Event) {
	switch e := evt.(type) {
	case events.CacheUpdated:
		x.renderQuery(e.Query)
	case events.CacheInvalidated:
		x.renderQuery(e.Query)
	case events.FetchFailed:
		x.renderQuery(e.Query)
	case events.BufferChanged:
		for _, h := range e.Handles {
			x.nodes.NotifyHandle(h.ID(), x.render)
		}
	case events.FilesChanged:
		for _, h := range e.Handles {
			for _, q := range x.ParentQueries(h) {
				x.cache.Invalidate(q)
			}
			x.nodes.NotifyHandle(h.ID(), x.render)
		}
	}
}

func (x *Explorer) renderQuery(q zexplorer.Query) {
	cnt := x.nodes.NotifyValue(q, x.render)
	x.logger.Trace().Str("query", q.Key()).Int("nodes", cnt).Msg("Rendered nodes for query")
}
