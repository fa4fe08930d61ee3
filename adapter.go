package zexplorer

import "context"

// Continuation is an opaque marker returned by a [Lister] to resume a listing.
// The zero value starts from the beginning.
type Continuation string

// ListResult is one page of children for a [Query]
type ListResult struct {
	Items     []ResourceHandle
	HasMore   bool
	Next      Continuation
	Remaining *int // nil when the server does not report a count
}

// Lister performs the actual remote (or local) listing. Implementations own
// connection management and must be safe for concurrent use.
type Lister interface {
	List(ctx context.Context, q Query, from Continuation) (ListResult, error)
}

// Transfer executes a single move or copy
type Transfer interface {
	Perform(ctx context.Context, op MoveCopyOperation) error
}

// Deleter removes a single resource
type Deleter interface {
	Delete(ctx context.Context, h ResourceHandle) error
}

// NameResolver knows the naming rules of one (source, destination) pairing,
// i.e. that a local file.txt lands in a PDS as member FILE
type NameResolver interface {
	// ConflictingChild returns the existing child of destination that source
	// would collide with, or nil if there is none
	ConflictingChild(ctx context.Context, source ResourceHandle, allSources []ResourceHandle, destination ResourceHandle) (*ResourceHandle, error)

	// Resolve computes a deterministic, collision free new name for source
	// inside destination
	Resolve(ctx context.Context, source ResourceHandle, allSources []ResourceHandle, destination ResourceHandle) (string, error)
}

// NameResolverProvider hands out the [NameResolver] responsible for a pairing
type NameResolverProvider interface {
	NameResolver(source, destination ResourceHandle) NameResolver
}

// ConflictPolicy is the user interaction boundary. It receives both partitions
// and the fallback names computed for every pair and returns one resolution
// per pair. Returning [ErrConflictPolicyAborted] skips the whole batch.
type ConflictPolicy interface {
	Decide(ctx context.Context, resolvable, unresolvable []ConflictPair, renames map[PairKey]string) ([]ConflictResolution, error)
}

// ProgressSink receives progress of a batch and exposes the cooperative
// cancellation flag checked between operations
type ProgressSink interface {
	Progress(done, total int, op MoveCopyOperation)
	Cancelled() bool
}
