package adapters

import (
	"context"
	"fmt"
	"strings"

	"github.com/brettbedarf/zexplorer"
	"github.com/brettbedarf/zexplorer/internal/tree"
)

// nameRules is how a source name lands in a destination
type nameRules struct {
	target func(name string) string
	equal  func(a, b string) bool
	member bool
}

var (
	exactRules  = nameRules{target: func(n string) string { return n }, equal: func(a, b string) bool { return a == b }}
	memberRules = nameRules{target: zexplorer.MemberName, equal: strings.EqualFold, member: true}
)

// listingResolver detects collisions by listing the destination through
// lister. PDS destinations use member name rules, everything else exact names.
type listingResolver struct {
	lister zexplorer.Lister
	rules  nameRules
}

// NewNameResolver returns the resolver for pasting into destination, whose
// children are listed through l
func NewNameResolver(l zexplorer.Lister, destination zexplorer.ResourceHandle) zexplorer.NameResolver {
	rules := exactRules
	if destination.IsPDS() {
		rules = memberRules
	}
	return &listingResolver{lister: l, rules: rules}
}

func (r *listingResolver) children(ctx context.Context, dst zexplorer.ResourceHandle) ([]zexplorer.ResourceHandle, error) {
	q, ok := tree.ContainerQuery(dst)
	if !ok {
		return nil, fmt.Errorf("%s is not a container", dst.Key)
	}
	var all []zexplorer.ResourceHandle
	var from zexplorer.Continuation
	for {
		res, err := r.lister.List(ctx, q, from)
		if err != nil {
			return nil, &zexplorer.FetchError{Query: q, Err: err}
		}
		all = append(all, res.Items...)
		if !res.HasMore || res.Next == "" || res.Next == from {
			return all, nil
		}
		from = res.Next
	}
}

func (r *listingResolver) ConflictingChild(ctx context.Context, source zexplorer.ResourceHandle, _ []zexplorer.ResourceHandle, destination zexplorer.ResourceHandle) (*zexplorer.ResourceHandle, error) {
	children, err := r.children(ctx, destination)
	if err != nil {
		return nil, err
	}
	want := r.rules.target(source.Name)
	for _, c := range children {
		if r.rules.equal(c.Name, want) {
			return &c, nil
		}
	}
	return nil, nil
}

// Resolve picks the smallest suffix not used by an existing child nor by the
// target of another source
func (r *listingResolver) Resolve(ctx context.Context, source zexplorer.ResourceHandle, allSources []zexplorer.ResourceHandle, destination zexplorer.ResourceHandle) (string, error) {
	children, err := r.children(ctx, destination)
	if err != nil {
		return "", err
	}
	taken := make(map[string]struct{}, len(children)+len(allSources))
	key := func(n string) string {
		if r.rules.member {
			return strings.ToUpper(n)
		}
		return n
	}
	for _, c := range children {
		taken[key(c.Name)] = struct{}{}
	}
	for _, s := range allSources {
		if s.ID() != source.ID() {
			taken[key(r.rules.target(s.Name))] = struct{}{}
		}
	}

	base := r.rules.target(source.Name)
	for n := 1; ; n++ {
		candidate := zexplorer.SuffixedName(base, n, r.rules.member)
		if _, used := taken[key(candidate)]; !used {
			return candidate, nil
		}
	}
}
