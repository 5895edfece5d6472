package sortrun

import "github.com/allinbits/labs/projects/queryengine/internal/value"

// heapItem is one pending line from one run, tagged with its
// precomputed key and originating run id — avoiding recomputing the key
// on every comparison and preserving the popped-from-which-run link
// (spec §9 "priority queue of heterogeneous records").
type heapItem struct {
	key    value.MixedKey
	line   string
	runIdx int
}

// mergeHeap is a container/heap.Interface implementation that orders by
// key ascending (or descending) and breaks ties on run id, a documented
// tightening of the source's unspecified tie-break (spec §9).
type mergeHeap struct {
	items      []heapItem
	descending bool
}

func (h *mergeHeap) Len() int { return len(h.items) }

func (h *mergeHeap) Less(i, j int) bool {
	cmp := value.Compare(h.items[i].key, h.items[j].key)
	if cmp == 0 {
		return h.items[i].runIdx < h.items[j].runIdx
	}
	if h.descending {
		return cmp > 0
	}
	return cmp < 0
}

func (h *mergeHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *mergeHeap) Push(x any) { h.items = append(h.items, x.(heapItem)) }

func (h *mergeHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}
