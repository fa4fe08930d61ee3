package zexplorer

import (
	"errors"
	"fmt"
)

var (
	// ErrFetch marks a failed listing. Recoverable; retried on next expansion.
	ErrFetch = errors.New("fetch failed")
	// ErrTransfer marks a failed move/copy/delete of a single operation
	ErrTransfer = errors.New("transfer failed")
	// ErrConflictPolicyAborted is returned by a [ConflictPolicy] when the user
	// cancels. Treated as skip everything.
	ErrConflictPolicyAborted = errors.New("conflict resolution aborted")
	// ErrStructuralConflict marks a directory/file mismatch or self overwrite
	ErrStructuralConflict = errors.New("structural conflict")
)

// FetchError wraps a lister failure with the query it happened on
type FetchError struct {
	Query Query
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Query.Key(), e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// TransferError records the failure of one operation in a batch
type TransferError struct {
	Op  MoveCopyOperation
	Err error
}

func (e *TransferError) Error() string {
	if e.Op.Destination.Key == "" {
		return fmt.Sprintf("delete %s: %v", e.Op.Source.Key, e.Err)
	}
	verb := "copy"
	if e.Op.IsMove {
		verb = "move"
	}
	return fmt.Sprintf("%s %s to %s: %v", verb, e.Op.Source.Key, e.Op.Destination.Key, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

func (e *TransferError) Is(target error) bool { return target == ErrTransfer }

// StructuralConflictError describes why a pair cannot be resolved by overwrite
type StructuralConflictError struct {
	Pair   ConflictPair
	Reason string
}

func (e *StructuralConflictError) Error() string {
	return fmt.Sprintf("%s into %s: %s", e.Pair.Source.Key, e.Pair.Destination.Key, e.Reason)
}

func (e *StructuralConflictError) Is(target error) bool { return target == ErrStructuralConflict }
