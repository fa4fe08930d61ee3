package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brettbedarf/zexplorer"
	"github.com/brettbedarf/zexplorer/adapters"
	"github.com/brettbedarf/zexplorer/config"
	"github.com/brettbedarf/zexplorer/internal/conflicts"
	"github.com/brettbedarf/zexplorer/internal/util"
	"github.com/brettbedarf/zexplorer/requests"
)

type fixture struct {
	s     *Session
	local *adapters.Local
	root  string
	reg   *prometheus.Registry
}

func newFixture(t *testing.T, files map[string]string) *fixture {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	local, err := adapters.NewLocal(adapters.LocalConfig{Root: root, PageSize: 2})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	s, err := New(config.NewConfig(nil), local, Options{Registerer: reg})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return &fixture{s: s, local: local, root: root, reg: reg}
}

func (f *fixture) handle(t *testing.T, key string) zexplorer.ResourceHandle {
	t.Helper()
	h, err := f.local.Handle(key)
	require.NoError(t, err)
	return h
}

func (f *fixture) exists(name string) bool {
	_, err := os.Stat(filepath.Join(f.root, filepath.FromSlash(name)))
	return err == nil
}

func dirQuery(key string) zexplorer.Query {
	return zexplorer.Query{Connection: adapters.LocalType, Kind: zexplorer.KindLocal, Payload: key, Shape: zexplorer.ShapeFiles}
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	local, err := adapters.NewLocal(adapters.LocalConfig{Root: t.TempDir()})
	require.NoError(t, err)
	_, err = New(config.NewConfig(&config.ConfigOverride{FetchWorkers: util.Pointer(0)}), local, Options{})
	assert.Error(t, err)
}

func TestSession_ListFollowsPages(t *testing.T) {
	t.Parallel()

	f := newFixture(t, map[string]string{"a": "", "b": "", "c": "", "d": "", "e": ""})

	items, err := f.s.List(context.Background(), dirQuery("/"))
	require.NoError(t, err)
	assert.Len(t, items, 5)
	assert.True(t, f.s.Cache().IsValid(dirQuery("/")))

	count, err := testutil.GatherAndCount(f.reg, "zexplorer_fetch_total")
	require.NoError(t, err)
	assert.Positive(t, count)

	_, err = f.s.List(context.Background(), dirQuery("/missing"))
	assert.ErrorIs(t, err, zexplorer.ErrFetch)
}

func TestSession_PasteRenames(t *testing.T) {
	t.Parallel()

	f := newFixture(t, map[string]string{"src/file.txt": "new", "dst/file.txt": "old"})
	ctx := context.Background()
	_, err := f.s.List(ctx, dirQuery("/dst"))
	require.NoError(t, err)

	plan := &requests.PastePlan{
		Policy:       "rename",
		Sources:      []zexplorer.ResourceHandle{f.handle(t, "/src/file.txt")},
		Destinations: []zexplorer.ResourceHandle{f.handle(t, "/dst")},
	}
	report, err := f.s.Paste(ctx, plan, nil, nil)
	require.NoError(t, err)
	require.NoError(t, report.Err())
	require.Len(t, report.Succeeded, 1)
	assert.Equal(t, "file_(1).txt", report.Succeeded[0].NewName)
	assert.True(t, f.exists("dst/file_(1).txt"))
	assert.Contains(t, report.Invalidated, dirQuery("/dst"))
	assert.False(t, f.s.Cache().IsValid(dirQuery("/dst")))
}

func TestSession_PasteSkipsByDefault(t *testing.T) {
	t.Parallel()

	f := newFixture(t, map[string]string{"src/file.txt": "new", "src/other.txt": "x", "dst/file.txt": "old"})
	plan := &requests.PastePlan{
		Sources:      []zexplorer.ResourceHandle{f.handle(t, "/src/file.txt"), f.handle(t, "/src/other.txt")},
		Destinations: []zexplorer.ResourceHandle{f.handle(t, "/dst")},
	}

	report, err := f.s.Paste(context.Background(), plan, nil, nil)
	require.NoError(t, err)
	require.Len(t, report.Succeeded, 1)
	assert.Equal(t, "/src/other.txt", report.Succeeded[0].Source.Key)
	b, err := os.ReadFile(filepath.Join(f.root, "dst", "file.txt"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(b))
}

func TestSession_PasteOverwriteReportsForcedSkips(t *testing.T) {
	t.Parallel()

	files := map[string]string{"src/x/inner.txt": "in", "src/y.txt": "y", "dst/x": "file", "dst/y.txt": "old"}
	sources := func(f *fixture) []zexplorer.ResourceHandle {
		return []zexplorer.ResourceHandle{f.handle(t, "/src/x"), f.handle(t, "/src/y.txt")}
	}

	t.Run("parsed policy", func(t *testing.T) {
		f := newFixture(t, files)
		plan := &requests.PastePlan{
			Policy:       "overwrite",
			Sources:      sources(f),
			Destinations: []zexplorer.ResourceHandle{f.handle(t, "/dst")},
		}
		report, err := f.s.Paste(context.Background(), plan, nil, nil)
		require.NoError(t, err)
		require.NoError(t, report.Err())

		require.Len(t, report.Succeeded, 1)
		assert.Equal(t, "/src/y.txt", report.Succeeded[0].Source.Key)
		require.Len(t, report.ConflictSkipped, 1)
		skip := report.ConflictSkipped[0]
		assert.Equal(t, "/src/x", skip.Pair.Source.Key)
		assert.Equal(t, "/dst", skip.Pair.Destination.Key)
		assert.Equal(t, conflicts.ReasonDirOverFile.String(), skip.Reason)

		b, err := os.ReadFile(filepath.Join(f.root, "dst", "x"))
		require.NoError(t, err)
		assert.Equal(t, "file", string(b))
	})

	t.Run("caller callback kept", func(t *testing.T) {
		f := newFixture(t, files)
		var forced []zexplorer.ConflictPair
		policy := conflicts.OverwriteAll{OnForcedSkip: func(p zexplorer.ConflictPair) { forced = append(forced, p) }}
		plan := &requests.PastePlan{Sources: sources(f), Destinations: []zexplorer.ResourceHandle{f.handle(t, "/dst")}}

		report, err := f.s.Paste(context.Background(), plan, policy, nil)
		require.NoError(t, err)
		require.Len(t, forced, 1)
		assert.Equal(t, "/src/x", forced[0].Source.Key)
		assert.Len(t, report.ConflictSkipped, 1)
	})
}

func TestSession_PasteSkipReasons(t *testing.T) {
	t.Parallel()

	f := newFixture(t, map[string]string{"src/file.txt": "new", "dst/file.txt": "old"})
	plan := &requests.PastePlan{
		Sources:      []zexplorer.ResourceHandle{f.handle(t, "/src/file.txt")},
		Destinations: []zexplorer.ResourceHandle{f.handle(t, "/dst")},
	}
	report, err := f.s.Paste(context.Background(), plan, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, report.Succeeded)
	require.Len(t, report.ConflictSkipped, 1)
	assert.Equal(t, "skipped", report.ConflictSkipped[0].Reason)
}

func TestSession_PasteUnknownPolicy(t *testing.T) {
	t.Parallel()

	f := newFixture(t, map[string]string{"a": ""})
	plan := &requests.PastePlan{Policy: "merge"}
	_, err := f.s.Paste(context.Background(), plan, nil, nil)
	assert.Error(t, err)
}

func TestSession_PasteBufferMoves(t *testing.T) {
	t.Parallel()

	f := newFixture(t, map[string]string{"src/a.txt": "a", "dst/.keep": ""})
	ctx := context.Background()

	_, err := f.s.PasteBuffer(ctx, nil, nil, nil)
	require.ErrorIs(t, err, ErrEmptyBuffer)

	f.s.Buffer().Set([]zexplorer.ResourceHandle{f.handle(t, "/src/a.txt")}, true)
	report, err := f.s.PasteBuffer(ctx, []zexplorer.ResourceHandle{f.handle(t, "/dst")}, conflicts.SkipAll{}, nil)
	require.NoError(t, err)
	require.Len(t, report.Succeeded, 1)
	assert.True(t, f.exists("dst/a.txt"))
	assert.False(t, f.exists("src/a.txt"))

	handles, _ := f.s.Buffer().Get()
	assert.Empty(t, handles, "moved sources leave the buffer")
	assert.Contains(t, report.Invalidated, dirQuery("/src"))
}

func TestSession_Delete(t *testing.T) {
	t.Parallel()

	f := newFixture(t, map[string]string{"dir/a.txt": "a", "b.txt": "b"})
	report := f.s.Delete(context.Background(), []zexplorer.ResourceHandle{f.handle(t, "/dir"), f.handle(t, "/b.txt")}, nil)

	require.NoError(t, report.Err())
	assert.Len(t, report.Succeeded, 2)
	assert.False(t, f.exists("dir"))
	assert.False(t, f.exists("b.txt"))
}

func TestSession_FilesChangedInvalidates(t *testing.T) {
	t.Parallel()

	f := newFixture(t, map[string]string{"dir/a.txt": "a"})
	ctx := context.Background()
	_, err := f.s.List(ctx, dirQuery("/dir"))
	require.NoError(t, err)

	f.s.FilesChanged(f.handle(t, "/dir/a.txt"))
	assert.False(t, f.s.Cache().IsValid(dirQuery("/dir")))
}
