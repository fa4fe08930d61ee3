package adapters

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/brettbedarf/zexplorer"
	"github.com/brettbedarf/zexplorer/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// writeTree creates files (and their parent directories) below root
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func newTestLocal(t *testing.T, pageSize int, files map[string]string) (*Local, string) {
	t.Helper()
	root := t.TempDir()
	writeTree(t, root, files)
	l, err := NewLocal(LocalConfig{Root: root, PageSize: pageSize})
	require.NoError(t, err)
	return l, root
}

func dirQ(l *Local, key string) zexplorer.Query {
	return zexplorer.Query{Connection: l.Connection(), Kind: zexplorer.KindLocal, Payload: key, Shape: zexplorer.ShapeFiles}
}

func keys(hs []zexplorer.ResourceHandle) []string {
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = h.Key
	}
	return out
}

func mustHandle(t *testing.T, l *Local, key string) zexplorer.ResourceHandle {
	t.Helper()
	h, err := l.Handle(key)
	require.NoError(t, err)
	return h
}

func readFile(t *testing.T, root, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(name)))
	require.NoError(t, err)
	return string(b)
}

func TestNewLocal_Validation(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root, map[string]string{"f": "x"})

	_, err := NewLocal(LocalConfig{Root: filepath.Join(root, "f")})
	assert.Error(t, err, "root must be a directory")
	_, err = NewLocal(LocalConfig{Root: root, PageSize: -1})
	assert.Error(t, err)

	l, err := NewLocal(LocalConfig{Root: root})
	require.NoError(t, err)
	assert.Equal(t, LocalType, l.Connection())
	assert.Equal(t, dirQ(l, "/"), l.RootQuery())
}

func TestLocal_ListPaged(t *testing.T) {
	t.Parallel()

	l, _ := newTestLocal(t, 2, map[string]string{
		"a.txt":     "a",
		"b.txt":     "b",
		"c.txt":     "c",
		"sub/d.txt": "d",
	})
	ctx := context.Background()

	first, err := l.List(ctx, dirQ(l, "/"), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"/a.txt", "/b.txt"}, keys(first.Items))
	assert.True(t, first.HasMore)
	require.NotNil(t, first.Remaining)
	assert.Equal(t, 2, *first.Remaining)

	second, err := l.List(ctx, dirQ(l, "/"), first.Next)
	require.NoError(t, err)
	assert.Equal(t, []string{"/c.txt", "/sub"}, keys(second.Items))
	assert.False(t, second.HasMore)
	assert.Empty(t, second.Next)
	assert.True(t, second.Items[1].Dir)
	assert.Equal(t, "/", second.Items[1].Parent)

	sub, err := l.List(ctx, dirQ(l, "/sub"), "")
	require.NoError(t, err)
	require.Len(t, sub.Items, 1)
	assert.Equal(t, "d.txt", sub.Items[0].Name)
	assert.Equal(t, "/sub", sub.Items[0].Parent)
	assert.Equal(t, "1", sub.Items[0].Attrs.Attributes()["size"])

	_, err = l.List(ctx, dirQ(l, "/"), "garbage")
	assert.Error(t, err)
	_, err = l.List(ctx, zexplorer.Query{Connection: l.Connection(), Kind: zexplorer.KindJob}, "")
	assert.Error(t, err)
	_, err = l.List(ctx, dirQ(l, "/missing"), "")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestLocal_ListMask(t *testing.T) {
	t.Parallel()

	l, _ := newTestLocal(t, 0, map[string]string{
		"a.txt":          "a",
		"b.go":           "b",
		"src/x/c.txt":    "c",
		"src/x/y/d.txt":  "d",
		"src/x/y/e.json": "e",
	})
	mask := zexplorer.Query{Connection: l.Connection(), Kind: zexplorer.KindMask, Payload: "**/*.txt", Shape: zexplorer.ShapeFiles}

	res, err := l.List(context.Background(), mask, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"/a.txt", "/src/x/c.txt", "/src/x/y/d.txt"}, keys(res.Items))
	assert.False(t, res.HasMore)

	_, err = l.List(context.Background(), zexplorer.Query{Connection: l.Connection(), Kind: zexplorer.KindMask, Payload: "[abc"}, "")
	assert.Error(t, err)
}

func TestLocal_CopyFile(t *testing.T) {
	t.Parallel()

	l, root := newTestLocal(t, 0, map[string]string{"src/a.txt": "new", "dst/a.txt": "old"})
	ctx := context.Background()
	op := zexplorer.MoveCopyOperation{Source: mustHandle(t, l, "/src/a.txt"), Destination: mustHandle(t, l, "/dst")}

	err := l.Perform(ctx, op)
	require.ErrorIs(t, err, fs.ErrExist, "never overwrites without force")
	assert.Equal(t, "old", readFile(t, root, "dst/a.txt"))

	op.ForceOverwrite = true
	require.NoError(t, l.Perform(ctx, op))
	assert.Equal(t, "new", readFile(t, root, "dst/a.txt"))
	assert.Equal(t, "new", readFile(t, root, "src/a.txt"), "copy keeps the source")

	op.ForceOverwrite = false
	op.NewName = "a_(1).txt"
	require.NoError(t, l.Perform(ctx, op))
	assert.Equal(t, "new", readFile(t, root, "dst/a_(1).txt"))
}

func TestLocal_MoveAndCopyDirectory(t *testing.T) {
	t.Parallel()

	l, root := newTestLocal(t, 0, map[string]string{
		"proj/main.go":       "package main",
		"proj/pkg/lib.go":    "package pkg",
		"proj/pkg/deep/x.md": "x",
		"out/.keep":          "",
	})
	ctx := context.Background()
	proj := mustHandle(t, l, "/proj")
	out := mustHandle(t, l, "/out")

	require.NoError(t, l.Perform(ctx, zexplorer.MoveCopyOperation{Source: proj, Destination: out}))
	assert.Equal(t, "package pkg", readFile(t, root, "out/proj/pkg/lib.go"))
	assert.Equal(t, "x", readFile(t, root, "out/proj/pkg/deep/x.md"))

	require.NoError(t, l.Perform(ctx, zexplorer.MoveCopyOperation{Source: proj, Destination: out, IsMove: true, NewName: "moved"}))
	assert.Equal(t, "package main", readFile(t, root, "out/moved/main.go"))
	_, err := os.Stat(filepath.Join(root, "proj"))
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestLocal_PerformRejects(t *testing.T) {
	t.Parallel()

	l, _ := newTestLocal(t, 0, map[string]string{"d/sub/f": "f"})
	ctx := context.Background()
	d := mustHandle(t, l, "/d")
	sub := mustHandle(t, l, "/d/sub")
	foreign := zexplorer.ResourceHandle{Connection: "zosmf", Key: "USER.PDS", Kind: zexplorer.KindMember, Dir: true}

	tests := []struct {
		name string
		op   zexplorer.MoveCopyOperation
	}{
		{"into own subtree", zexplorer.MoveCopyOperation{Source: d, Destination: sub}},
		{"onto itself", zexplorer.MoveCopyOperation{Source: sub, Destination: d, ForceOverwrite: true}},
		{"other connection", zexplorer.MoveCopyOperation{Source: sub, Destination: foreign}},
		{"bad name", zexplorer.MoveCopyOperation{Source: sub, Destination: d, NewName: "../escape"}},
		{"missing source", zexplorer.MoveCopyOperation{Source: l.handle("/nope", false), Destination: d}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, l.Perform(ctx, tt.op))
		})
	}
	assert.ErrorIs(t, l.Perform(ctx, tests[2].op), errors.ErrUnsupported)
}

func TestLocal_Delete(t *testing.T) {
	t.Parallel()

	l, root := newTestLocal(t, 0, map[string]string{"a.txt": "a", "dir/b.txt": "b"})
	ctx := context.Background()

	require.NoError(t, l.Delete(ctx, mustHandle(t, l, "/a.txt")))
	require.NoError(t, l.Delete(ctx, mustHandle(t, l, "/dir")))
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.ErrorIs(t, l.Delete(ctx, l.handle("/a.txt", false)), fs.ErrNotExist)
	assert.Error(t, l.Delete(ctx, l.handle("/", true)))
	assert.Error(t, l.Delete(ctx, l.handle("/../..", true)), "keys cannot escape the root")
}

func TestNameResolver_ExactNames(t *testing.T) {
	t.Parallel()

	l, _ := newTestLocal(t, 1, map[string]string{
		"src/a.txt":       "a",
		"src/b.txt":       "b",
		"dst/a.txt":       "a",
		"dst/a_(1).txt":   "a",
		"other/a_(2).txt": "x",
	})
	ctx := context.Background()
	a := mustHandle(t, l, "/src/a.txt")
	b := mustHandle(t, l, "/src/b.txt")
	dst := mustHandle(t, l, "/dst")
	r := l.NameResolver(a, dst)

	child, err := r.ConflictingChild(ctx, a, []zexplorer.ResourceHandle{a, b}, dst)
	require.NoError(t, err)
	require.NotNil(t, child, "found across pages")
	assert.Equal(t, "/dst/a.txt", child.Key)

	child, err = r.ConflictingChild(ctx, b, []zexplorer.ResourceHandle{a, b}, dst)
	require.NoError(t, err)
	assert.Nil(t, child)

	name, err := r.Resolve(ctx, a, []zexplorer.ResourceHandle{a, b}, dst)
	require.NoError(t, err)
	assert.Equal(t, "a_(2).txt", name)

	_, err = r.ConflictingChild(ctx, a, nil, a)
	assert.Error(t, err, "files are not containers")
}

func TestNameResolver_MemberNames(t *testing.T) {
	t.Parallel()

	pds := zexplorer.ResourceHandle{Connection: "zosmf", Key: "USER.PDS", Name: "USER.PDS", Kind: zexplorer.KindMember, Dir: true}
	q := zexplorer.Query{Connection: "zosmf", Kind: zexplorer.KindMember, Payload: "USER.PDS", Shape: zexplorer.ShapeMembers}
	member := func(name string) zexplorer.ResourceHandle {
		return zexplorer.ResourceHandle{Connection: "zosmf", Key: "USER.PDS(" + name + ")", Name: name, Kind: zexplorer.KindMember, Parent: "USER.PDS"}
	}
	lister := &mocks.MockLister{}
	lister.On("List", mock.Anything, q, zexplorer.Continuation("")).
		Return(zexplorer.ListResult{Items: []zexplorer.ResourceHandle{member("FILE"), member("FILE1")}}, nil)

	src := zexplorer.NewHandle("local", zexplorer.KindLocal, "/a/file.txt", false)
	other := zexplorer.NewHandle("local", zexplorer.KindLocal, "/a/file2.c", false)
	r := NewNameResolver(lister, pds)

	child, err := r.ConflictingChild(context.Background(), src, []zexplorer.ResourceHandle{src}, pds)
	require.NoError(t, err)
	require.NotNil(t, child)
	assert.Equal(t, "FILE", child.Name)

	name, err := r.Resolve(context.Background(), src, []zexplorer.ResourceHandle{src, other}, pds)
	require.NoError(t, err)
	assert.Equal(t, "FILE3", name, "FILE1 exists and FILE2 is another source's target")
}

func TestNameResolver_ListError(t *testing.T) {
	t.Parallel()

	dst := zexplorer.NewHandle("local", zexplorer.KindLocal, "/d", true)
	lister := &mocks.MockLister{}
	lister.On("List", mock.Anything, mock.Anything, mock.Anything).Return(zexplorer.ListResult{}, errors.New("offline"))

	_, err := NewNameResolver(lister, dst).ConflictingChild(context.Background(), dst, nil, dst)
	assert.ErrorIs(t, err, zexplorer.ErrFetch)
}
