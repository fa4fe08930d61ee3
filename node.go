// Package zexplorer contains core domain types and collaborator interfaces for
// the explorer fetch cache and the move/copy conflict engine
package zexplorer

import (
	"path"
	"strings"
)

// ResourceKind is the closed set of tree positions the explorer knows how to
// expand. Kinds determine both how children are queried and which name
// conflict rules apply to them.
type ResourceKind uint8

const (
	KindUnknown ResourceKind = iota
	KindMask                 // dataset mask, children are datasets
	KindUssPath              // USS file or directory
	KindFilter               // job filter, children are jobs
	KindMember               // PDS member (or the PDS itself when Dir)
	KindJob                  // job, children are spool files
	KindSpoolFile
	KindLocal // local filesystem path
)

func (k ResourceKind) String() string {
	switch k {
	case KindMask:
		return "mask"
	case KindUssPath:
		return "uss"
	case KindFilter:
		return "filter"
	case KindMember:
		return "member"
	case KindJob:
		return "job"
	case KindSpoolFile:
		return "spool"
	case KindLocal:
		return "local"
	default:
		return "unknown"
	}
}

// ParseResourceKind is the inverse of [ResourceKind.String]
func ParseResourceKind(s string) ResourceKind {
	switch strings.ToLower(s) {
	case "mask":
		return KindMask
	case "uss":
		return KindUssPath
	case "filter":
		return KindFilter
	case "member":
		return KindMember
	case "job":
		return KindJob
	case "spool":
		return KindSpoolFile
	case "local":
		return KindLocal
	default:
		return KindUnknown
	}
}

// ResultShape marks what a listing returns. Two queries with the same payload
// but different shapes are different cache entries.
type ResultShape uint8

const (
	ShapeFiles ResultShape = iota
	ShapeDatasets
	ShapeMembers
	ShapeJobs
	ShapeSpool
)

// Query identifies one listing request bound to a connection. It is
// comparable and its equality is the cache identity.
type Query struct {
	Connection string
	Kind       ResourceKind
	Payload    string // mask, path or filter
	Shape      ResultShape
}

// Key returns a stable string form for logs and metrics labels
func (q Query) Key() string {
	var b strings.Builder
	b.WriteString(q.Connection)
	b.WriteByte('|')
	b.WriteString(q.Kind.String())
	b.WriteByte('|')
	b.WriteString(q.Payload)
	return b.String()
}

// AttrResolver lazily resolves display attributes of a handle. It is a
// back-reference into whatever produced the handle and may be nil.
type AttrResolver interface {
	Attributes() map[string]string
}

// HandleID is the identity of a [ResourceHandle]. Two handles with equal IDs
// refer to the same resource.
type HandleID struct {
	Connection string
	Key        string
}

func (id HandleID) String() string {
	if id.Connection == "" {
		return id.Key
	}
	return id.Connection + ":" + id.Key
}

// ResourceHandle is the opaque identity of a local or remote file-like
// resource. The cache stores handles, never content.
type ResourceHandle struct {
	Connection string
	Key        string // path-like key, i.e. /u/user/a.txt or USER.PDS(MEMBER)
	Name       string // last component as displayed
	Dir        bool
	Kind       ResourceKind
	// Parent is the key of the listing that contains this handle.
	// Empty for roots.
	Parent string
	Attrs  AttrResolver
}

// NewHandle builds a handle for a slash separated key and derives Name and
// Parent from it
func NewHandle(conn string, kind ResourceKind, key string, dir bool) ResourceHandle {
	clean := path.Clean(key)
	parent := path.Dir(clean)
	if parent == clean {
		parent = ""
	}
	return ResourceHandle{
		Connection: conn,
		Key:        clean,
		Name:       path.Base(clean),
		Dir:        dir,
		Kind:       kind,
		Parent:     parent,
	}
}

// ID returns the handle's identity
func (h ResourceHandle) ID() HandleID {
	return HandleID{Connection: h.Connection, Key: h.Key}
}

// ParentID returns the identity of the containing resource
func (h ResourceHandle) ParentID() HandleID {
	return HandleID{Connection: h.Connection, Key: h.Parent}
}

// IsPDS reports whether the handle is a partitioned dataset, i.e. a directory
// whose children are members
func (h ResourceHandle) IsPDS() bool {
	return h.Kind == KindMember && h.Dir
}
