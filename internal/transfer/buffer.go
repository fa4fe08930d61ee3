package transfer

import (
	"slices"
	"sync"

	"github.com/brettbedarf/zexplorer"
	"github.com/brettbedarf/zexplorer/internal/events"
)

// CutBuffer holds the handles the user cut or copied. It is owned by the
// session, starts empty and is never persisted. Every change is published as
// [events.BufferChanged] carrying the handles whose state changed.
type CutBuffer struct {
	mu      sync.Mutex
	handles []zexplorer.ResourceHandle
	isCut   bool
	bus     *events.Bus
}

func NewCutBuffer(bus *events.Bus) *CutBuffer {
	if bus == nil {
		bus = events.NewBus()
	}
	return &CutBuffer{bus: bus}
}

// Get returns the buffered handles and whether they were cut
func (b *CutBuffer) Get() ([]zexplorer.ResourceHandle, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.handles), b.isCut
}

// Set replaces the buffer content
func (b *CutBuffer) Set(handles []zexplorer.ResourceHandle, isCut bool) {
	b.mu.Lock()
	old := b.handles
	b.handles = slices.Clone(handles)
	b.isCut = isCut
	b.mu.Unlock()

	b.bus.Publish(events.BufferChanged{Handles: append(slices.Clone(old), handles...), IsCut: isCut})
}

// Remove drops the given resources, i.e. sources that were moved away
func (b *CutBuffer) Remove(ids ...zexplorer.HandleID) {
	if len(ids) == 0 {
		return
	}
	b.mu.Lock()
	var removed []zexplorer.ResourceHandle
	b.handles = slices.DeleteFunc(b.handles, func(h zexplorer.ResourceHandle) bool {
		if slices.Contains(ids, h.ID()) {
			removed = append(removed, h)
			return true
		}
		return false
	})
	isCut := b.isCut
	b.mu.Unlock()

	if len(removed) > 0 {
		b.bus.Publish(events.BufferChanged{Handles: removed, IsCut: isCut})
	}
}

func (b *CutBuffer) Clear() {
	b.Set(nil, false)
}

// Subscribe calls fn with the buffer content after every change. The returned
// func cancels the subscription.
func (b *CutBuffer) Subscribe(fn func(handles []zexplorer.ResourceHandle, isCut bool)) func() {
	id := b.bus.Subscribe(func(evt events.Event) {
		if _, ok := evt.(events.BufferChanged); ok {
			fn(b.Get())
		}
	})
	return func() { b.bus.Unsubscribe(id) }
}
