// Package registry indexes live tree nodes by the value and resource they
// display so events can be fanned out to every tree location showing them.
package registry

import (
	"sync"
	"weak"

	"github.com/brettbedarf/zexplorer"
	"github.com/brettbedarf/zexplorer/internal/util"
)

// Node is implemented by anything the registry can index.
// RegistryValue must return a comparable value.
type Node interface {
	RegistryValue() any
	RegistryHandle() (zexplorer.HandleID, bool)
}

// Registry is a many-to-many index from a value or handle to every live node
// displaying it. Nodes are held weakly: once the tree drops a node it
// disappears from lookups without any unregister call. Dead references are
// pruned lazily on lookup.
//
// All access is serialized by a single mutex. Lookups return a slice so
// callers invoke per-node callbacks after the lock is released.
type Registry[T any, P interface {
	*T
	Node
}] struct {
	mu       sync.Mutex
	byValue  map[any][]weak.Pointer[T]
	byHandle map[zexplorer.HandleID][]weak.Pointer[T]
	logger   util.Logger
}

func New[T any, P interface {
	*T
	Node
}]() *Registry[T, P] {
	return &Registry[T, P]{
		byValue:  make(map[any][]weak.Pointer[T]),
		byHandle: make(map[zexplorer.HandleID][]weak.Pointer[T]),
		logger:   util.GetLogger("NodeRegistry"),
	}
}

// Register indexes n under its value and, if it carries one, its handle.
// Registering the same node twice is a no-op.
func (r *Registry[T, P]) Register(n P) {
	wp := weak.Make((*T)(n))
	value := n.RegistryValue()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byValue[value] = addUnique(r.byValue[value], wp)
	if id, ok := n.RegistryHandle(); ok {
		r.byHandle[id] = addUnique(r.byHandle[id], wp)
	}
}

// FindByValue returns every live node registered under v
func (r *Registry[T, P]) FindByValue(v any) []P {
	r.mu.Lock()
	defer r.mu.Unlock()
	live, nodes := prune[T, P](r.byValue[v])
	store(r.byValue, v, live)
	return nodes
}

// FindByHandle returns every live node displaying the resource id
func (r *Registry[T, P]) FindByHandle(id zexplorer.HandleID) []P {
	r.mu.Lock()
	defer r.mu.Unlock()
	live, nodes := prune[T, P](r.byHandle[id])
	store(r.byHandle, id, live)
	return nodes
}

// FindByPredicate scans every live node. pred runs outside the lock and may
// use the registry.
func (r *Registry[T, P]) FindByPredicate(pred func(P) bool) []P {
	all := r.live()
	out := all[:0]
	for _, n := range all {
		if pred(n) {
			out = append(out, n)
		}
	}
	return out
}

// Len returns the number of live registered nodes
func (r *Registry[T, P]) Len() int {
	return len(r.live())
}

func (r *Registry[T, P]) live() []P {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []P
	for v, ptrs := range r.byValue {
		live, nodes := prune[T, P](ptrs)
		store(r.byValue, v, live)
		out = append(out, nodes...)
	}
	return out
}

// Prune drops every dead reference from both indexes
func (r *Registry[T, P]) Prune() {
	r.mu.Lock()
	defer r.mu.Unlock()
	dropped := 0
	for v, ptrs := range r.byValue {
		live, _ := prune[T, P](ptrs)
		dropped += len(ptrs) - len(live)
		store(r.byValue, v, live)
	}
	for id, ptrs := range r.byHandle {
		live, _ := prune[T, P](ptrs)
		store(r.byHandle, id, live)
	}
	r.logger.Trace().Int("dropped", dropped).Int("values", len(r.byValue)).Msg("Pruned registry")
}

// NotifyValue calls fn for every live node registered under v, outside the lock
func (r *Registry[T, P]) NotifyValue(v any, fn func(P)) int {
	nodes := r.FindByValue(v)
	for _, n := range nodes {
		fn(n)
	}
	return len(nodes)
}

// NotifyHandle calls fn for every live node displaying id, outside the lock
func (r *Registry[T, P]) NotifyHandle(id zexplorer.HandleID, fn func(P)) int {
	nodes := r.FindByHandle(id)
	for _, n := range nodes {
		fn(n)
	}
	return len(nodes)
}

func addUnique[T any](ptrs []weak.Pointer[T], wp weak.Pointer[T]) []weak.Pointer[T] {
	for _, p := range ptrs {
		if p == wp {
			return ptrs
		}
	}
	return append(ptrs, wp)
}

// prune returns the still live pointers and the nodes they point to
func prune[T any, P interface {
	*T
	Node
}](ptrs []weak.Pointer[T]) ([]weak.Pointer[T], []P) {
	live := ptrs[:0]
	nodes := make([]P, 0, len(ptrs))
	for _, p := range ptrs {
		if v := p.Value(); v != nil {
			live = append(live, p)
			nodes = append(nodes, P(v))
		}
	}
	clear(ptrs[len(live):])
	return live, nodes
}

func store[K comparable, T any](m map[K][]weak.Pointer[T], k K, live []weak.Pointer[T]) {
	if len(live) == 0 {
		delete(m, k)
		return
	}
	m[k] = live
}
