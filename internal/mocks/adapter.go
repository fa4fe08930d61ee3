package mocks

import (
	"context"

	"github.com/brettbedarf/zexplorer"
	"github.com/stretchr/testify/mock"
)

// MockLister implements zexplorer.Lister for testing across packages
type MockLister struct {
	mock.Mock
}

func (m *MockLister) List(ctx context.Context, q zexplorer.Query, from zexplorer.Continuation) (zexplorer.ListResult, error) {
	args := m.Called(ctx, q, from)

	// Handle function return types (for complex tests)
	if fn, ok := args.Get(0).(func(context.Context, zexplorer.Query, zexplorer.Continuation) zexplorer.ListResult); ok {
		return fn(ctx, q, from), args.Error(1)
	}
	return args.Get(0).(zexplorer.ListResult), args.Error(1)
}

var _ zexplorer.Lister = (*MockLister)(nil)

// MockTransfer implements zexplorer.Transfer
type MockTransfer struct {
	mock.Mock
}

func (m *MockTransfer) Perform(ctx context.Context, op zexplorer.MoveCopyOperation) error {
	args := m.Called(ctx, op)
	return args.Error(0)
}

var _ zexplorer.Transfer = (*MockTransfer)(nil)

// MockDeleter implements zexplorer.Deleter
type MockDeleter struct {
	mock.Mock
}

func (m *MockDeleter) Delete(ctx context.Context, h zexplorer.ResourceHandle) error {
	args := m.Called(ctx, h)
	return args.Error(0)
}

var _ zexplorer.Deleter = (*MockDeleter)(nil)

// MockNameResolver implements zexplorer.NameResolver and, returning itself,
// zexplorer.NameResolverProvider
type MockNameResolver struct {
	mock.Mock
}

func (m *MockNameResolver) ConflictingChild(ctx context.Context, source zexplorer.ResourceHandle, allSources []zexplorer.ResourceHandle, destination zexplorer.ResourceHandle) (*zexplorer.ResourceHandle, error) {
	args := m.Called(ctx, source, allSources, destination)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*zexplorer.ResourceHandle), args.Error(1)
}

func (m *MockNameResolver) Resolve(ctx context.Context, source zexplorer.ResourceHandle, allSources []zexplorer.ResourceHandle, destination zexplorer.ResourceHandle) (string, error) {
	args := m.Called(ctx, source, allSources, destination)
	return args.String(0), args.Error(1)
}

func (m *MockNameResolver) NameResolver(source, destination zexplorer.ResourceHandle) zexplorer.NameResolver {
	return m
}

var (
	_ zexplorer.NameResolver         = (*MockNameResolver)(nil)
	_ zexplorer.NameResolverProvider = (*MockNameResolver)(nil)
)

// MockConflictPolicy implements zexplorer.ConflictPolicy
type MockConflictPolicy struct {
	mock.Mock
}

func (m *MockConflictPolicy) Decide(ctx context.Context, resolvable, unresolvable []zexplorer.ConflictPair, renames map[zexplorer.PairKey]string) ([]zexplorer.ConflictResolution, error) {
	args := m.Called(ctx, resolvable, unresolvable, renames)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]zexplorer.ConflictResolution), args.Error(1)
}

var _ zexplorer.ConflictPolicy = (*MockConflictPolicy)(nil)

// MockProgressSink implements zexplorer.ProgressSink
type MockProgressSink struct {
	mock.Mock
}

func (m *MockProgressSink) Progress(done, total int, op zexplorer.MoveCopyOperation) {
	m.Called(done, total, op)
}

func (m *MockProgressSink) Cancelled() bool {
	return m.Called().Bool(0)
}

var _ zexplorer.ProgressSink = (*MockProgressSink)(nil)
