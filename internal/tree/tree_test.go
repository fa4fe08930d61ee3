package tree

import (
	"context"
	"errors"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/brettbedarf/zexplorer"
	"github.com/brettbedarf/zexplorer/internal/cache"
	"github.com/brettbedarf/zexplorer/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const conn = "local"

// fakeLister serves per-payload listings in pages. A payload listed in fail
// returns an error.
type fakeLister struct {
	mu       sync.Mutex
	items    map[string][]zexplorer.ResourceHandle
	fail     map[string]error
	pageSize int
	calls    map[string]int
}

func newFakeLister() *fakeLister {
	return &fakeLister{
		items: make(map[string][]zexplorer.ResourceHandle),
		fail:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (l *fakeLister) set(payload string, hs ...zexplorer.ResourceHandle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items[payload] = hs
}

func (l *fakeLister) setErr(payload string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.fail, payload)
		return
	}
	l.fail[payload] = err
}

func (l *fakeLister) callCount(payload string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[payload]
}

func (l *fakeLister) List(ctx context.Context, q zexplorer.Query, from zexplorer.Continuation) (zexplorer.ListResult, error) {
	l.mu.Lock()
	l.calls[q.Payload]++
	items := l.items[q.Payload]
	err := l.fail[q.Payload]
	size := l.pageSize
	l.mu.Unlock()
	if err != nil {
		return zexplorer.ListResult{}, err
	}
	if size == 0 {
		return zexplorer.ListResult{Items: items}, nil
	}
	start, _ := strconv.Atoi(string(from))
	end := min(start+size, len(items))
	rem := len(items) - end
	res := zexplorer.ListResult{Items: items[start:end], HasMore: rem > 0, Remaining: &rem}
	if res.HasMore {
		res.Next = zexplorer.Continuation(strconv.Itoa(end))
	}
	return res, nil
}

type harness struct {
	lister   *fakeLister
	cache    *cache.FetchCache
	bus      *events.Bus
	explorer *Explorer
	rendered chan *ResourceNode
}

func newHarness(t *testing.T, pageSize int) *harness {
	t.Helper()
	h := &harness{
		lister:   newFakeLister(),
		bus:      events.NewBus(),
		rendered: make(chan *ResourceNode, 64),
	}
	h.lister.pageSize = pageSize
	h.cache = cache.New(h.lister, cache.Options{Bus: h.bus})
	pages := cache.NewPaginationController(h.cache, max(pageSize, 1))
	h.explorer = NewExplorer(h.cache, pages, NewNodeRegistry(), h.bus, func(n *ResourceNode) {
		select {
		case h.rendered <- n:
		default:
		}
	})
	t.Cleanup(func() {
		h.explorer.Close()
		h.cache.Close()
	})
	return h
}

// waitRender blocks until n is asked to re-render
func (h *harness) waitRender(t *testing.T, n *ResourceNode) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case got := <-h.rendered:
			if got == n {
				return
			}
		case <-deadline:
			t.Fatalf("node %q was never re-rendered", n.Name())
		}
	}
}

func localQuery(p string) zexplorer.Query {
	return zexplorer.Query{Connection: conn, Kind: zexplorer.KindLocal, Payload: p, Shape: zexplorer.ShapeFiles}
}

func names(nodes []*ResourceNode) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Name()
	}
	return out
}

func TestExplorer_ChildrenLoadThenMaterialize(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	h.lister.set("/work",
		zexplorer.NewHandle(conn, zexplorer.KindLocal, "/work/src", true),
		zexplorer.NewHandle(conn, zexplorer.KindLocal, "/work/a.txt", false),
	)
	root := h.explorer.Root("work", localQuery("/work"))

	first := h.explorer.Children(root)
	require.Len(t, first, 1)
	assert.Equal(t, PlaceholderLoading, first[0].Placeholder())

	h.waitRender(t, root)
	kids := h.explorer.Children(root)
	assert.Equal(t, []string{"src", "a.txt"}, names(kids))
	assert.False(t, kids[0].IsLeaf())
	assert.True(t, kids[1].IsLeaf())
	assert.Equal(t, "work/src", kids[0].Path())
	assert.Same(t, root, kids[0].Parent())

	// directories are registered under their own listing query
	found := h.explorer.Registry().FindByValue(localQuery("/work/src"))
	assert.Equal(t, []*ResourceNode{kids[0]}, found)
	assert.Equal(t, 1, h.lister.callCount("/work"))
}

func TestExplorer_RefreshReusesSurvivingNodes(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	src := zexplorer.NewHandle(conn, zexplorer.KindLocal, "/work/src", true)
	h.lister.set("/work", src, zexplorer.NewHandle(conn, zexplorer.KindLocal, "/work/old.txt", false))
	root := h.explorer.Root("work", localQuery("/work"))
	h.explorer.Children(root)
	h.waitRender(t, root)
	before := h.explorer.Children(root)

	h.lister.set("/work", src, zexplorer.NewHandle(conn, zexplorer.KindLocal, "/work/new.txt", false))
	h.explorer.Refresh(root)
	require.Eventually(t, func() bool {
		return h.cache.IsValid(localQuery("/work")) && h.lister.callCount("/work") == 2
	}, 5*time.Second, 5*time.Millisecond)

	after := h.explorer.Children(root)
	assert.Equal(t, []string{"src", "new.txt"}, names(after))
	assert.Same(t, before[0], after[0], "unchanged directory keeps its node")
}

func TestExplorer_ErrorPlaceholderAndExpandRetry(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	h.lister.setErr("/broken", errors.New("permission denied"))
	root := h.explorer.Root("broken", localQuery("/broken"))

	h.explorer.Children(root)
	h.waitRender(t, root)

	kids := h.explorer.Children(root)
	require.Len(t, kids, 1)
	assert.Equal(t, PlaceholderError, kids[0].Placeholder())
	require.Error(t, kids[0].Err())
	assert.ErrorIs(t, kids[0].Err(), zexplorer.ErrFetch)
	assert.Equal(t, 1, h.lister.callCount("/broken"), "rendering an errored node does not refetch")

	h.lister.setErr("/broken", nil)
	h.lister.set("/broken", zexplorer.NewHandle(conn, zexplorer.KindLocal, "/broken/x", false))
	h.explorer.Expand(root)
	h.waitRender(t, root)
	require.Eventually(t, func() bool { return h.cache.IsValid(localQuery("/broken")) }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"x"}, names(h.explorer.Children(root)))
}

func TestExplorer_LoadMorePlaceholder(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 2)
	h.lister.set("/many",
		zexplorer.NewHandle(conn, zexplorer.KindLocal, "/many/a", false),
		zexplorer.NewHandle(conn, zexplorer.KindLocal, "/many/b", false),
		zexplorer.NewHandle(conn, zexplorer.KindLocal, "/many/c", false),
	)
	root := h.explorer.Root("many", localQuery("/many"))
	h.explorer.Children(root)
	h.waitRender(t, root)

	kids := h.explorer.Children(root)
	require.Len(t, kids, 3)
	more := kids[2]
	assert.Equal(t, PlaceholderLoadMore, more.Placeholder())
	info, ok := more.LoadMore()
	require.True(t, ok)
	assert.Equal(t, 2, info.Loaded)
	assert.Equal(t, 1, info.NextPage)

	require.True(t, h.explorer.LoadMore(more))
	h.waitRender(t, root)
	require.Eventually(t, func() bool {
		return len(h.explorer.Children(root)) == 3 && h.explorer.Children(root)[2].Placeholder() == NotPlaceholder
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, names(h.explorer.Children(root)))
	assert.False(t, h.explorer.LoadMore(root))
}

func TestExplorer_RemoveEvictsSubtree(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	h.lister.set("/top", zexplorer.NewHandle(conn, zexplorer.KindLocal, "/top/dir", true))
	h.lister.set("/top/dir", zexplorer.NewHandle(conn, zexplorer.KindLocal, "/top/dir/f", false))
	h.lister.set("/topper")

	for _, p := range []string{"/top", "/top/dir", "/topper"} {
		r := h.cache.Fetch(context.Background(), localQuery(p))
		require.NoError(t, r.Err)
	}

	parent := h.explorer.Root("all", localQuery("/"))
	n := newRoot("top", localQuery("/top"))
	parent.setChildren([]*ResourceNode{n})

	evicted := h.explorer.Remove(n)
	assert.ElementsMatch(t, []zexplorer.Query{localQuery("/top"), localQuery("/top/dir")}, evicted)
	assert.True(t, h.cache.IsValid(localQuery("/topper")))
	assert.Empty(t, parent.Children())
}

func TestExplorer_FilesChangedInvalidatesParents(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	f := zexplorer.NewHandle(conn, zexplorer.KindLocal, "/w/f.txt", false)
	h.lister.set("/w", f)
	root := h.explorer.Root("w", localQuery("/w"))
	h.explorer.Children(root)
	h.waitRender(t, root)
	h.explorer.Children(root)

	// a mask style root also displaying f
	mask := zexplorer.Query{Connection: conn, Kind: zexplorer.KindMask, Payload: "*.txt", Shape: zexplorer.ShapeFiles}
	h.lister.set("*.txt", f)
	maskRoot := h.explorer.Root("txt", mask)
	h.explorer.Children(maskRoot)
	h.waitRender(t, maskRoot)
	h.explorer.Children(maskRoot)

	assert.ElementsMatch(t, []zexplorer.Query{localQuery("/w"), mask}, h.explorer.ParentQueries(f))

	h.bus.Publish(events.FilesChanged{Handles: []zexplorer.ResourceHandle{f}})
	assert.False(t, h.cache.IsValid(localQuery("/w")))
	assert.False(t, h.cache.IsValid(mask))
	runtime.KeepAlive(root)
	runtime.KeepAlive(maskRoot)
}

func TestExplorer_BufferChangedRendersHandleNodes(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	f := zexplorer.NewHandle(conn, zexplorer.KindLocal, "/b/f", false)
	h.lister.set("/b", f)
	root := h.explorer.Root("b", localQuery("/b"))
	h.explorer.Children(root)
	h.waitRender(t, root)
	kids := h.explorer.Children(root)
	require.Len(t, kids, 1)

	h.bus.Publish(events.BufferChanged{Handles: []zexplorer.ResourceHandle{f}, IsCut: true})
	h.waitRender(t, kids[0])
}

func TestContainerAndParentQuery(t *testing.T) {
	t.Parallel()

	pds := zexplorer.ResourceHandle{Connection: "z", Key: "USER.PDS", Name: "USER.PDS", Kind: zexplorer.KindMember, Dir: true}
	member := zexplorer.ResourceHandle{Connection: "z", Key: "USER.PDS(A)", Name: "A", Kind: zexplorer.KindMember, Parent: "USER.PDS"}
	job := zexplorer.ResourceHandle{Connection: "z", Key: "JOB1", Name: "JOB1", Kind: zexplorer.KindJob}
	spool := zexplorer.ResourceHandle{Connection: "z", Key: "JOB1/JESMSGLG", Name: "JESMSGLG", Kind: zexplorer.KindSpoolFile, Parent: "JOB1"}

	tests := []struct {
		name      string
		handle    zexplorer.ResourceHandle
		container *zexplorer.Query
		parent    *zexplorer.Query
	}{
		{
			name:      "PDS lists members",
			handle:    pds,
			container: &zexplorer.Query{Connection: "z", Kind: zexplorer.KindMember, Payload: "USER.PDS", Shape: zexplorer.ShapeMembers},
		},
		{
			name:   "member is a leaf under its PDS",
			handle: member,
			parent: &zexplorer.Query{Connection: "z", Kind: zexplorer.KindMember, Payload: "USER.PDS", Shape: zexplorer.ShapeMembers},
		},
		{
			name:      "job lists spool files",
			handle:    job,
			container: &zexplorer.Query{Connection: "z", Kind: zexplorer.KindJob, Payload: "JOB1", Shape: zexplorer.ShapeSpool},
		},
		{
			name:   "spool file parent is its job",
			handle: spool,
			parent: &zexplorer.Query{Connection: "z", Kind: zexplorer.KindJob, Payload: "JOB1", Shape: zexplorer.ShapeSpool},
		},
		{
			name:      "local directory",
			handle:    zexplorer.NewHandle("l", zexplorer.KindLocal, "/a/b", true),
			container: &zexplorer.Query{Connection: "l", Kind: zexplorer.KindLocal, Payload: "/a/b", Shape: zexplorer.ShapeFiles},
			parent:    &zexplorer.Query{Connection: "l", Kind: zexplorer.KindLocal, Payload: "/a", Shape: zexplorer.ShapeFiles},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := ContainerQuery(tt.handle)
			if tt.container == nil {
				assert.False(t, ok)
			} else {
				require.True(t, ok)
				assert.Equal(t, *tt.container, c)
			}
			p, ok := ParentQuery(tt.handle)
			if tt.parent == nil {
				assert.False(t, ok)
			} else {
				require.True(t, ok)
				assert.Equal(t, *tt.parent, p)
			}
		})
	}
}
