package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/brettbedarf/zexplorer"
	"github.com/brettbedarf/zexplorer/internal/util"
	"github.com/charlievieth/fastwalk"
)

// LocalConfig configures a provider over a local directory tree. Handle keys
// are slash separated paths relative to Root, i.e. "/src/a.txt".
type LocalConfig struct {
	Type     string `json:"type" yaml:"type"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"` // connection name, Default "local"
	Root     string `json:"root" yaml:"root"`
	PageSize int    `json:"pageSize,omitempty" yaml:"page_size,omitempty"` // 0 lists everything at once
}

// Local implements every provider capability on the local filesystem
type Local struct {
	conn     string
	root     string
	pageSize int
	logger   util.Logger
}

func newLocalFromJSON(raw []byte) (Provider, error) {
	var cfg LocalConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return NewLocal(cfg)
}

func NewLocal(cfg LocalConfig) (*Local, error) {
	if cfg.Name == "" {
		cfg.Name = LocalType
	}
	if cfg.PageSize < 0 {
		return nil, fmt.Errorf("page size must not be negative, got %d", cfg.PageSize)
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("local root %s is not a directory", root)
	}
	return &Local{
		conn:     cfg.Name,
		root:     root,
		pageSize: cfg.PageSize,
		logger:   util.GetLogger("LocalProvider"),
	}, nil
}

func (l *Local) Connection() string           { return l.conn }
func (l *Local) Lister() zexplorer.Lister     { return l }
func (l *Local) Transfer() zexplorer.Transfer { return l }
func (l *Local) Deleter() zexplorer.Deleter   { return l }

func (l *Local) NameResolver(_, destination zexplorer.ResourceHandle) zexplorer.NameResolver {
	return NewNameResolver(l, destination)
}

// Handle returns the handle of key, reading whether it is a directory
func (l *Local) Handle(key string) (zexplorer.ResourceHandle, error) {
	info, err := os.Stat(l.osPath(key))
	if err != nil {
		return zexplorer.ResourceHandle{}, err
	}
	return l.handle(key, info.IsDir()), nil
}

// RootQuery lists the provider's root directory
func (l *Local) RootQuery() zexplorer.Query {
	return zexplorer.Query{Connection: l.conn, Kind: zexplorer.KindLocal, Payload: "/", Shape: zexplorer.ShapeFiles}
}

func (l *Local) handle(key string, dir bool) zexplorer.ResourceHandle {
	h := zexplorer.NewHandle(l.conn, zexplorer.KindLocal, key, dir)
	h.Attrs = fileAttrs{path: l.osPath(h.Key)}
	return h
}

// osPath maps a key to a path below root. Keys can never escape root.
func (l *Local) osPath(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(path.Clean("/"+key)))
}

func (l *Local) List(ctx context.Context, q zexplorer.Query, from zexplorer.Continuation) (zexplorer.ListResult, error) {
	if err := ctx.Err(); err != nil {
		return zexplorer.ListResult{}, err
	}
	var (
		items []zexplorer.ResourceHandle
		err   error
	)
	switch q.Kind {
	case zexplorer.KindLocal, zexplorer.KindUssPath:
		items, err = l.readDir(q.Payload)
	case zexplorer.KindMask:
		items, err = l.glob(q.Payload)
	default:
		err = fmt.Errorf("local provider cannot list %s queries", q.Kind)
	}
	if err != nil {
		return zexplorer.ListResult{}, err
	}
	l.logger.Trace().Str("query", q.Key()).Str("from", string(from)).Int("items", len(items)).Msg("Listed")
	return page(items, from, l.pageSize)
}

func (l *Local) readDir(dirKey string) ([]zexplorer.ResourceHandle, error) {
	entries, err := os.ReadDir(l.osPath(dirKey))
	if err != nil {
		return nil, err
	}
	items := make([]zexplorer.ResourceHandle, 0, len(entries))
	for _, e := range entries {
		items = append(items, l.handle(path.Join("/", dirKey, e.Name()), e.IsDir()))
	}
	return items, nil
}

// glob matches a doublestar pattern relative to root, i.e. "src/**/*.go"
func (l *Local) glob(pattern string) ([]zexplorer.ResourceHandle, error) {
	pattern = strings.TrimPrefix(pattern, "/")
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid mask %q", pattern)
	}
	fsys := os.DirFS(l.root)
	matches, err := doublestar.Glob(fsys, pattern)
	if err != nil {
		return nil, err
	}
	slices.Sort(matches)
	items := make([]zexplorer.ResourceHandle, 0, len(matches))
	for _, m := range matches {
		info, err := fs.Stat(fsys, m)
		if err != nil {
			// vanished between glob and stat
			continue
		}
		items = append(items, l.handle("/"+m, info.IsDir()))
	}
	return items, nil
}

// page slices items using the offset continuation
func page(items []zexplorer.ResourceHandle, from zexplorer.Continuation, size int) (zexplorer.ListResult, error) {
	start := 0
	if from != "" {
		var err error
		if start, err = strconv.Atoi(string(from)); err != nil || start < 0 {
			return zexplorer.ListResult{}, fmt.Errorf("invalid continuation %q", from)
		}
	}
	start = min(start, len(items))
	end := len(items)
	if size > 0 {
		end = min(start+size, len(items))
	}
	rem := len(items) - end
	res := zexplorer.ListResult{Items: items[start:end], HasMore: rem > 0, Remaining: &rem}
	if res.HasMore {
		res.Next = zexplorer.Continuation(strconv.Itoa(end))
	}
	return res, nil
}

// Perform copies or moves op.Source into op.Destination. An existing target
// is only replaced with ForceOverwrite.
func (l *Local) Perform(ctx context.Context, op zexplorer.MoveCopyOperation) error {
	if op.Source.Connection != l.conn || op.Destination.Connection != l.conn {
		return fmt.Errorf("local provider %s cannot transfer between %s and %s: %w",
			l.conn, op.Source.Connection, op.Destination.Connection, errors.ErrUnsupported)
	}
	name := op.TargetName()
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid target name %q", name)
	}
	src := l.osPath(op.Source.Key)
	target := filepath.Join(l.osPath(op.Destination.Key), name)
	if src == target {
		return fmt.Errorf("%s onto itself: %w", op.Source.Key, fs.ErrExist)
	}
	if within(target, src) {
		return fmt.Errorf("cannot paste %s into its own subtree", op.Source.Key)
	}
	if _, err := os.Lstat(src); err != nil {
		return err
	}

	if _, err := os.Lstat(target); err == nil {
		if !op.ForceOverwrite {
			return fmt.Errorf("%s: %w", name, fs.ErrExist)
		}
		if err := os.RemoveAll(target); err != nil {
			return err
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	logger := l.logger.With().Str("source", src).Str("target", target).Bool("move", op.IsMove).Logger()
	if op.IsMove {
		if err := os.Rename(src, target); err == nil {
			logger.Debug().Msg("Renamed")
			return nil
		}
		// i.e. crossing devices; fall back to copy and remove
	}
	start := time.Now()
	if err := copyTree(ctx, src, target); err != nil {
		return err
	}
	logger.Debug().Dur("took", time.Since(start)).Msg("Copied")
	if op.IsMove {
		return os.RemoveAll(src)
	}
	return nil
}

// Delete removes the resource behind h, recursively for directories
func (l *Local) Delete(ctx context.Context, h zexplorer.ResourceHandle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := l.osPath(h.Key)
	if p == l.root {
		return fmt.Errorf("refusing to delete the provider root")
	}
	if _, err := os.Lstat(p); err != nil {
		return err
	}
	l.logger.Debug().Str("path", p).Msg("Deleting")
	return os.RemoveAll(p)
}

func within(p, dir string) bool {
	rel, err := filepath.Rel(dir, p)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}

func copyTree(ctx context.Context, src, target string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return copyFile(src, target, info.Mode())
	}

	conf := fastwalk.Config{Follow: false}
	return fastwalk.Walk(&conf, src, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		dst := filepath.Join(target, rel)
		switch {
		case d.IsDir():
			return os.MkdirAll(dst, 0o755)
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(p)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
				return err
			}
			return os.Symlink(link, dst)
		default:
			fi, err := d.Info()
			if err != nil {
				return err
			}
			return copyFile(p, dst, fi.Mode())
		}
	})
}

func copyFile(src, dst string, mode fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// fileAttrs stats lazily so listings stay cheap
type fileAttrs struct {
	path string
}

func (a fileAttrs) Attributes() map[string]string {
	info, err := os.Lstat(a.path)
	if err != nil {
		return nil
	}
	return map[string]string{
		"size":     strconv.FormatInt(info.Size(), 10),
		"mode":     info.Mode().String(),
		"modified": info.ModTime().UTC().Format(time.RFC3339),
	}
}

var _ Provider = (*Local)(nil)
