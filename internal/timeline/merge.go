package timeline

import (
	"container/heap"

	"github.com/gitviz/gitviz/internal/models"
)

// Resolver stamps canonical author names onto events as they leave the
// merge. identity.Resolver satisfies this.
type Resolver interface {
	Resolve(raw string) string
}

// Merge combines per-repository event streams into one chronological
// stream. Each source must already be ordered by timestamp ascending (the
// scanner guarantees this). Ties are broken by source position, then by
// position within the source, so the result is deterministic for a given
// input arrangement.
//
// Author identifiers are resolved at the moment an event is dequeued;
// mappings added before the merge apply to every event.
func Merge(sources [][]models.CommitEvent, resolver Resolver) []models.CommitEvent {
	total := 0
	for _, src := range sources {
		total += len(src)
	}
	if total == 0 {
		return []models.CommitEvent{}
	}

	h := make(mergeHeap, 0, len(sources))
	for i, src := range sources {
		if len(src) > 0 {
			h = append(h, mergeItem{event: src[0], source: i, index: 0})
		}
	}
	heap.Init(&h)

	merged := make([]models.CommitEvent, 0, total)
	for h.Len() > 0 {
		item := heap.Pop(&h).(mergeItem)

		event := item.event
		event.Author = resolver.Resolve(event.Author)
		merged = append(merged, event)

		next := item.index + 1
		if next < len(sources[item.source]) {
			heap.Push(&h, mergeItem{
				event:  sources[item.source][next],
				source: item.source,
				index:  next,
			})
		}
	}
	return merged
}

type mergeItem struct {
	event  models.CommitEvent
	source int
	index  int
}

type mergeHeap []mergeItem

func (h mergeHeap) Len() int { return len(h) }

func (h mergeHeap) Less(i, j int) bool {
	ti, tj := h[i].event.Timestamp, h[j].event.Timestamp
	if !ti.Equal(tj) {
		return ti.Before(tj)
	}
	if h[i].source != h[j].source {
		return h[i].source < h[j].source
	}
	return h[i].index < h[j].index
}

func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *mergeHeap) Push(x any) { *h = append(*h, x.(mergeItem)) }

func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
