// Package events is the publish/subscribe channel between the cache, the cut
// buffer and whatever renders the tree
package events

import (
	"github.com/brettbedarf/zexplorer"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
)

// Event is implemented by every type published on a [Bus]
type Event interface {
	event()
}

// CacheUpdated is published after a fetch stored a new child list
type CacheUpdated struct {
	Query zexplorer.Query
	Items []zexplorer.ResourceHandle
}

// CacheInvalidated is published when an entry is marked stale or dropped
type CacheInvalidated struct {
	Query   zexplorer.Query
	Evicted bool // true for cleanCache, false for invalidate
}

// FetchFailed is published when a lister call failed
type FetchFailed struct {
	Query zexplorer.Query
	Err   error
}

// BufferChanged is published whenever the cut/copy buffer changes
type BufferChanged struct {
	Handles []zexplorer.ResourceHandle
	IsCut   bool
}

// FilesChanged carries external filesystem change notifications
type FilesChanged struct {
	Handles []zexplorer.ResourceHandle
}

func (CacheUpdated) event()     {}
func (CacheInvalidated) event() {}
func (FetchFailed) event()      {}
func (BufferChanged) event()    {}
func (FilesChanged) event()     {}

// Bus delivers events synchronously to every subscriber. Delivery order
// between subscribers is unspecified.
type Bus struct {
	subs *xsync.Map[uuid.UUID, func(Event)]
}

func NewBus() *Bus {
	return &Bus{subs: xsync.NewMap[uuid.UUID, func(Event)]()}
}

// Subscribe registers fn and returns the id to pass to Unsubscribe
func (b *Bus) Subscribe(fn func(Event)) uuid.UUID {
	id := uuid.New()
	b.subs.Store(id, fn)
	return id
}

func (b *Bus) Unsubscribe(id uuid.UUID) {
	b.subs.Delete(id)
}

// Publish calls every subscriber on the caller's goroutine. Must not be called
// while holding a lock a subscriber may need.
func (b *Bus) Publish(evt Event) {
	if b == nil {
		return
	}
	b.subs.Range(func(_ uuid.UUID, fn func(Event)) bool {
		fn(evt)
		return true
	})
}

// Len returns the number of active subscriptions
func (b *Bus) Len() int {
	return b.subs.Size()
}
