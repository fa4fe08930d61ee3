package cache

import "github.com/brettbedarf/zexplorer"

// LoadMoreInfo describes the "load more" affordance shown under a partially
// loaded listing
type LoadMoreInfo struct {
	Query     zexplorer.Query
	Loaded    int
	Remaining *int // nil when the server did not report a count
	NextPage  int  // how many items the next page is expected to bring
}

// PaginationController tracks how much of each query has been materialized
// and merges further pages into the cache
type PaginationController struct {
	cache    *FetchCache
	pageSize int
}

func NewPaginationController(cache *FetchCache, pageSize int) *PaginationController {
	return &PaginationController{cache: cache, pageSize: pageSize}
}

// Loaded is the number of children of q currently cached
func (p *PaginationController) Loaded(q zexplorer.Query) int {
	e, ok := p.cache.Entry(q)
	if !ok {
		return 0
	}
	return len(e.Children)
}

func (p *PaginationController) HasMore(q zexplorer.Query) bool {
	e, ok := p.cache.Entry(q)
	return ok && e.HasMore
}

func (p *PaginationController) Remaining(q zexplorer.Query) *int {
	e, ok := p.cache.Entry(q)
	if !ok {
		return nil
	}
	return e.Remaining
}

// Affordance returns what the "load more" placeholder for q should show, or
// false if q is fully loaded
func (p *PaginationController) Affordance(q zexplorer.Query) (LoadMoreInfo, bool) {
	e, ok := p.cache.Entry(q)
	if !ok || !e.HasMore {
		return LoadMoreInfo{}, false
	}
	next := p.pageSize
	if e.Remaining != nil && *e.Remaining < next {
		next = *e.Remaining
	}
	return LoadMoreInfo{
		Query:     q,
		Loaded:    len(e.Children),
		Remaining: e.Remaining,
		NextPage:  next,
	}, true
}

// LoadMore requests the next page of q. Returns false when there is none.
func (p *PaginationController) LoadMore(q zexplorer.Query, onDone func(FetchResult)) bool {
	return p.cache.LoadMore(q, onDone)
}
