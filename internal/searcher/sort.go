package searcher

import "slices"

// SortItems orders items best-first.
func SortItems(items []Item) {
	slices.SortFunc(items, func(a, b Item) int {
		switch {
		case Better(a, b):
			return -1
		case Better(b, a):
			return 1
		default:
			return 0
		}
	})
}
