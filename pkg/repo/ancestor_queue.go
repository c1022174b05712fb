package repo

import "github.com/odvcencio/twig/pkg/object"

type ancestorQueueItem struct {
	hash   object.Hash
	commit *object.CommitObj
}

// ancestorMaxHeap orders pending commits newest first, breaking timestamp
// ties by hash so traversal order is stable.
type ancestorMaxHeap []ancestorQueueItem

func (h ancestorMaxHeap) Len() int { return len(h) }

func (h ancestorMaxHeap) Less(i, j int) bool {
	if h[i].commit.Timestamp == h[j].commit.Timestamp {
		return h[i].hash < h[j].hash
	}
	return h[i].commit.Timestamp > h[j].commit.Timestamp
}

func (h ancestorMaxHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *ancestorMaxHeap) Push(x any) {
	*h = append(*h, x.(ancestorQueueItem))
}

func (h *ancestorMaxHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
