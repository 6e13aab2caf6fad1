package searcher

import "sync"

// Searcher is a reusable execution context for graph search.
// It owns all scratch memory required for search, eliminating heap allocations
// in the steady state.
//
// Searcher is NOT thread-safe. It is intended to be owned by a single goroutine
// during a search operation.
type Searcher struct {
	// Visited tracks visited nodes during graph traversal.
	Visited *VisitedSet

	// Results is a WorstFirst heap holding the best ef items found so far.
	Results *PriorityQueue

	// Candidates is a BestFirst heap of nodes still to expand.
	Candidates *PriorityQueue

	// Neighbors is a reusable buffer for decoded adjacency lists.
	Neighbors []uint32

	// Sorted is a reusable buffer for collecting results best-first.
	Sorted []Item

	// Visits counts nodes scored during the current search.
	Visits int
}

var searcherPool = sync.Pool{
	New: func() any {
		return NewSearcher(1024, 128)
	},
}

// NewSearcher creates a new searcher with the given initial capacities.
func NewSearcher(visitedCap, queueCap int) *Searcher {
	return &Searcher{
		Visited:    NewVisitedSet(visitedCap),
		Results:    NewPriorityQueue(WorstFirst),
		Candidates: NewPriorityQueue(BestFirst),
		Neighbors:  make([]uint32, 0, 64),
		Sorted:     make([]Item, 0, queueCap),
	}
}

// Get returns a Searcher from the pool.
func Get() *Searcher {
	s := searcherPool.Get().(*Searcher)
	s.Reset()
	return s
}

// Put returns a Searcher to the pool.
func Put(s *Searcher) {
	searcherPool.Put(s)
}

// Reset clears the searcher state for reuse.
func (s *Searcher) Reset() {
	s.Visited.Reset()
	s.Results.Reset()
	s.Candidates.Reset()
	s.Neighbors = s.Neighbors[:0]
	s.Sorted = s.Sorted[:0]
	s.Visits = 0
}
