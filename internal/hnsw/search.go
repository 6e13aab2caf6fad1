package hnsw

import (
	"context"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/bqhnsw/internal/searcher"
)

// SearchParams controls a query.
type SearchParams struct {
	K int
	// BeamWidth is the level-0 queue size; the effective width is max(K, BeamWidth).
	BeamWidth int
	// VisitBudget caps the number of scored nodes. 0 means unlimited.
	VisitBudget int
	// Filter restricts which ordinals may appear in the results. Nodes outside
	// it are still traversed.
	Filter *roaring.Bitmap
}

// SearchStats reports the work done by a query.
type SearchStats struct {
	Visited         int
	BudgetExhausted bool
}

// Search returns up to K ordinals best-first, scored by sc.
func Search(ctx context.Context, v View, sc Scorer, p SearchParams) ([]searcher.Item, SearchStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, SearchStats{}, err
	}
	if v.Len() == 0 || p.K <= 0 {
		return nil, SearchStats{}, nil
	}

	s := searcher.Get()
	defer searcher.Put(s)
	s.Visited.EnsureCapacity(v.Len())

	ef := max(p.K, p.BeamWidth)
	t := traversal{s: s, v: v, sc: sc, budget: p.VisitBudget, filter: p.Filter}

	epOrd, epLevel := v.EntryPoint()
	entry, err := t.score(epOrd)
	if err != nil {
		return nil, SearchStats{}, err
	}

	exhausted := false
	for level := epLevel; level > 0 && !exhausted; level-- {
		entry, exhausted, err = t.greedy(entry, level)
		if err != nil {
			return nil, SearchStats{}, err
		}
	}

	if exhausted {
		s.Results.Reset()
		if t.admit(entry.Node) {
			s.Results.PushItem(entry)
		}
	} else {
		exhausted, err = t.searchLayer(entry, 0, ef)
		if err != nil {
			return nil, SearchStats{}, err
		}
	}

	out := s.Results.AppendSorted(nil)
	if len(out) > p.K {
		out = out[:p.K]
	}
	return out, SearchStats{Visited: s.Visits, BudgetExhausted: exhausted}, nil
}

// traversal carries the state shared by build-time and query-time walks.
type traversal struct {
	s      *searcher.Searcher
	v      View
	sc     Scorer
	budget int
	filter *roaring.Bitmap
	// self is the node being inserted; it is never scored against itself.
	self    uint32
	hasSelf bool
}

func (t *traversal) admit(ord uint32) bool {
	return t.filter == nil || t.filter.Contains(ord)
}

func (t *traversal) spent() bool {
	return t.budget > 0 && t.s.Visits >= t.budget
}

func (t *traversal) score(ord uint32) (searcher.Item, error) {
	score, err := t.sc.Score(ord)
	if err != nil {
		return searcher.Item{}, err
	}
	t.s.Visits++
	return searcher.Item{Node: ord, Score: score}, nil
}

// greedy walks level keeping only the single best node.
func (t *traversal) greedy(curr searcher.Item, level int) (searcher.Item, bool, error) {
	var err error
	for changed := true; changed; {
		changed = false
		t.s.Neighbors, err = t.v.Neighbors(level, curr.Node, t.s.Neighbors[:0])
		if err != nil {
			return curr, false, err
		}
		for _, n := range t.s.Neighbors {
			if t.hasSelf && n == t.self {
				continue
			}
			if t.spent() {
				return curr, true, nil
			}
			item, err := t.score(n)
			if err != nil {
				return curr, false, err
			}
			if searcher.Better(item, curr) {
				curr = item
				changed = true
			}
		}
	}
	return curr, false, nil
}

// searchLayer runs a bounded beam search on level, leaving the best ef
// admitted nodes in s.Results. It reports whether the visit budget ran out.
func (t *traversal) searchLayer(entry searcher.Item, level, ef int) (bool, error) {
	s := t.s
	s.Visited.Reset()
	s.Candidates.Reset()
	s.Results.Reset()

	if t.hasSelf {
		s.Visited.Visit(t.self)
	}
	s.Visited.Visit(entry.Node)
	s.Candidates.PushItem(entry)
	if t.admit(entry.Node) {
		s.Results.PushItemBounded(entry, ef)
	}

	var err error
	for s.Candidates.Len() > 0 {
		curr, _ := s.Candidates.PopItem()
		if s.Results.Len() >= ef {
			if worst, _ := s.Results.TopItem(); curr.Score < worst.Score {
				break
			}
		}

		s.Neighbors, err = t.v.Neighbors(level, curr.Node, s.Neighbors[:0])
		if err != nil {
			return false, err
		}
		for _, n := range s.Neighbors {
			if !s.Visited.Visit(n) {
				continue
			}
			if t.spent() {
				return true, nil
			}
			item, err := t.score(n)
			if err != nil {
				return false, err
			}

			if s.Results.Len() >= ef {
				if worst, _ := s.Results.TopItem(); !searcher.Better(item, worst) {
					continue
				}
			}
			s.Candidates.PushItem(item)
			if t.admit(n) {
				s.Results.PushItemBounded(item, ef)
			}
		}
	}
	return false, nil
}
