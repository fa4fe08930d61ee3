package zexplorer

// ConflictPair is a source about to be pasted into a destination that already
// holds a child with a colliding name
type ConflictPair struct {
	Destination ResourceHandle
	Source      ResourceHandle
}

// PairKey is the dedup identity of a [ConflictPair]
type PairKey struct {
	Destination HandleID
	Source      HandleID
}

// Key returns the (destination, source) identity of the pair
func (p ConflictPair) Key() PairKey {
	return PairKey{Destination: p.Destination.ID(), Source: p.Source.ID()}
}

// ResolutionKind valid kinds are ResolveSkip, ResolveOverwrite and ResolveRename
type ResolutionKind uint8

const (
	ResolveSkip ResolutionKind = iota
	ResolveOverwrite
	ResolveRename
)

func (k ResolutionKind) String() string {
	switch k {
	case ResolveSkip:
		return "skip"
	case ResolveOverwrite:
		return "overwrite"
	case ResolveRename:
		return "rename"
	default:
		return "unknown"
	}
}

type ConflictResolution struct {
	Source      ResourceHandle
	Destination ResourceHandle
	Kind        ResolutionKind
	NewName     string // only set for ResolveRename
}

// Pair returns the conflict pair the resolution was made for
func (r ConflictResolution) Pair() ConflictPair {
	return ConflictPair{Destination: r.Destination, Source: r.Source}
}

// MoveCopyOperation is one unit of work handed to a [Transfer]
type MoveCopyOperation struct {
	Source         ResourceHandle
	Destination    ResourceHandle // directory/dataset receiving the source
	IsMove         bool
	ForceOverwrite bool
	NewName        string // optional; empty keeps the source name
}

// TargetName is the name the source will have once it lands in Destination
func (op MoveCopyOperation) TargetName() string {
	if op.NewName != "" {
		return op.NewName
	}
	return op.Source.Name
}
