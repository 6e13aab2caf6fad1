package searcher

// Item is a graph ordinal with its similarity score. Higher scores are better.
type Item struct {
	Node  uint32
	Score float32
}

// Better reports whether a ranks ahead of b: higher score first, then the
// lower ordinal.
func Better(a, b Item) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Node < b.Node
}

// Order selects which end of the ranking sits on top of a PriorityQueue.
type Order uint8

const (
	// BestFirst keeps the best item on top. Used for exploration.
	BestFirst Order = iota
	// WorstFirst keeps the worst item on top. Used for bounded result sets.
	WorstFirst
)

// PriorityQueue is a binary heap of Items ordered by Order.
type PriorityQueue struct {
	order Order
	items []Item
}

// NewPriorityQueue creates a new priority queue.
func NewPriorityQueue(order Order) *PriorityQueue {
	return &PriorityQueue{
		order: order,
		items: make([]Item, 0, 16),
	}
}

// Reset clears the priority queue for reuse.
func (pq *PriorityQueue) Reset() {
	pq.items = pq.items[:0]
}

// Len returns the number of elements in the heap.
func (pq *PriorityQueue) Len() int {
	return len(pq.items)
}

// TopItem returns the top element of the heap.
func (pq *PriorityQueue) TopItem() (Item, bool) {
	if len(pq.items) == 0 {
		return Item{}, false
	}
	return pq.items[0], true
}

// PushItem inserts an item while maintaining the heap invariant.
func (pq *PriorityQueue) PushItem(item Item) {
	pq.items = append(pq.items, item)
	pq.siftUp(len(pq.items) - 1)
}

// PushItemBounded inserts an item into a WorstFirst heap holding at most
// capacity items. When full, the item replaces the top only if it is better.
// It reports whether the item was kept.
func (pq *PriorityQueue) PushItemBounded(item Item, capacity int) bool {
	if len(pq.items) < capacity {
		pq.PushItem(item)
		return true
	}
	if len(pq.items) == 0 || !Better(item, pq.items[0]) {
		return false
	}
	pq.items[0] = item
	pq.siftDown(0)
	return true
}

// PopItem removes and returns the top element from the heap.
func (pq *PriorityQueue) PopItem() (Item, bool) {
	n := len(pq.items)
	if n == 0 {
		return Item{}, false
	}

	item := pq.items[0]
	pq.items[0] = pq.items[n-1]
	pq.items = pq.items[:n-1]

	if len(pq.items) > 0 {
		pq.siftDown(0)
	}

	return item, true
}

// AppendSorted appends the contents best-first to dst, leaving the queue
// unchanged.
func (pq *PriorityQueue) AppendSorted(dst []Item) []Item {
	start := len(dst)
	dst = append(dst, pq.items...)
	SortItems(dst[start:])
	return dst
}

func (pq *PriorityQueue) less(i, j int) bool {
	if pq.order == BestFirst {
		return Better(pq.items[i], pq.items[j])
	}
	return Better(pq.items[j], pq.items[i])
}

func (pq *PriorityQueue) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !pq.less(i, parent) {
			break
		}
		pq.items[i], pq.items[parent] = pq.items[parent], pq.items[i]
		i = parent
	}
}

func (pq *PriorityQueue) siftDown(i int) {
	n := len(pq.items)
	for {
		left := 2*i + 1
		if left >= n {
			break
		}
		child := left
		right := left + 1
		if right < n && pq.less(right, left) {
			child = right
		}
		if !pq.less(child, i) {
			break
		}
		pq.items[i], pq.items[child] = pq.items[child], pq.items[i]
		i = child
	}
}
