package searcher

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityQueue(t *testing.T) {
	t.Run("BestFirst", func(t *testing.T) {
		pq := NewPriorityQueue(BestFirst)

		pq.PushItem(Item{Node: 1, Score: 0.5})
		pq.PushItem(Item{Node: 2, Score: 0.9})
		pq.PushItem(Item{Node: 3, Score: 0.1})
		require.Equal(t, 3, pq.Len())

		top, ok := pq.TopItem()
		require.True(t, ok)
		assert.Equal(t, uint32(2), top.Node)

		var order []uint32
		for pq.Len() > 0 {
			item, _ := pq.PopItem()
			order = append(order, item.Node)
		}
		assert.Equal(t, []uint32{2, 1, 3}, order)

		_, ok = pq.PopItem()
		assert.False(t, ok)
	})

	t.Run("WorstFirst", func(t *testing.T) {
		pq := NewPriorityQueue(WorstFirst)

		pq.PushItem(Item{Node: 1, Score: 0.5})
		pq.PushItem(Item{Node: 2, Score: 0.9})
		pq.PushItem(Item{Node: 3, Score: 0.1})

		top, _ := pq.TopItem()
		assert.Equal(t, uint32(3), top.Node)
	})

	t.Run("TieBreakLowerOrdinalWins", func(t *testing.T) {
		pq := NewPriorityQueue(BestFirst)
		pq.PushItem(Item{Node: 9, Score: 0.5})
		pq.PushItem(Item{Node: 4, Score: 0.5})
		pq.PushItem(Item{Node: 7, Score: 0.5})

		item, _ := pq.PopItem()
		assert.Equal(t, uint32(4), item.Node)
		item, _ = pq.PopItem()
		assert.Equal(t, uint32(7), item.Node)
	})

	t.Run("PushItemBounded", func(t *testing.T) {
		pq := NewPriorityQueue(WorstFirst)
		for i, s := range []float32{0.1, 0.8, 0.3, 0.9, 0.2, 0.7} {
			pq.PushItemBounded(Item{Node: uint32(i), Score: s}, 3)
		}
		require.Equal(t, 3, pq.Len())

		sorted := pq.AppendSorted(nil)
		assert.Equal(t, []Item{{Node: 3, Score: 0.9}, {Node: 1, Score: 0.8}, {Node: 5, Score: 0.7}}, sorted)

		assert.False(t, pq.PushItemBounded(Item{Node: 10, Score: 0.7}, 3), "tie with a lower ordinal on top is not better")
		assert.True(t, pq.PushItemBounded(Item{Node: 0, Score: 0.7}, 3))
	})
}

func TestPriorityQueueRandomized(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	pq := NewPriorityQueue(BestFirst)

	items := make([]Item, 500)
	for i := range items {
		items[i] = Item{Node: uint32(i), Score: float32(r.Intn(50))}
		pq.PushItem(items[i])
	}
	SortItems(items)

	for i := range items {
		got, ok := pq.PopItem()
		require.True(t, ok)
		require.Equal(t, items[i], got)
	}
}
