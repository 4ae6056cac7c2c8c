package qpack

import "container/heap"

// refHeap is a min-heap, keyed by minRef, over the set of header blocks the
// encoder currently has outstanding (sent but not yet acknowledged or
// cancelled). minRef is the oldest (smallest) dynamic-table absolute id that
// block still references. The heap's minimum is therefore the eviction
// safety boundary: no entry at or after heap-min may be evicted, because
// some in-flight block still points at it (spec.md §9's design note on the
// header-info/dynamic-entry bipartite graph, queried via a min-heap keyed by
// min_ref). No teacher precedent for this specific structure — the teacher
// tracks usage with qpackHeaderBlockUsage/qpackUsageTracker instead, a
// map-of-slices walked linearly on every ack. container/heap gives the same
// answer in O(log n) per update instead of a linear scan, which is the
// standard library's idiomatic priority-queue interface and the natural fit
// here (see DESIGN.md).
type refBlock struct {
	streamID uint64
	minRef   uint64
	index    int // maintained by heap.Interface, needed for heap.Fix/Remove
}

type refHeapImpl []*refBlock

func (h refHeapImpl) Len() int           { return len(h) }
func (h refHeapImpl) Less(i, j int) bool { return h[i].minRef < h[j].minRef }
func (h refHeapImpl) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *refHeapImpl) Push(x interface{}) {
	b := x.(*refBlock)
	b.index = len(*h)
	*h = append(*h, b)
}
func (h *refHeapImpl) Pop() interface{} {
	old := *h
	n := len(old)
	b := old[n-1]
	old[n-1] = nil
	b.index = -1
	*h = old[:n-1]
	return b
}

// RefHeap tracks, per stream, the minimum dynamic-table reference an
// outstanding header block holds, answering "what is the oldest entry any
// live block still needs?" in O(log n).
type RefHeap struct {
	h       refHeapImpl
	byBlock map[uint64]*refBlock
}

func NewRefHeap() *RefHeap {
	return &RefHeap{byBlock: make(map[uint64]*refBlock)}
}

// Track records (or updates) the minimum reference for streamID. Calling it
// again for the same stream lowers or raises the tracked minimum.
func (r *RefHeap) Track(streamID, minRef uint64) {
	if b, ok := r.byBlock[streamID]; ok {
		b.minRef = minRef
		heap.Fix(&r.h, b.index)
		return
	}
	b := &refBlock{streamID: streamID, minRef: minRef}
	r.byBlock[streamID] = b
	heap.Push(&r.h, b)
}

// Release drops tracking for a stream (its header block was acknowledged or
// the stream was cancelled).
func (r *RefHeap) Release(streamID uint64) {
	b, ok := r.byBlock[streamID]
	if !ok {
		return
	}
	heap.Remove(&r.h, b.index)
	delete(r.byBlock, streamID)
}

// SafeEvictionBoundary returns the smallest dynamic-table absolute id that
// is still referenced by any outstanding header block, and ok=false if none
// are outstanding (in which case every entry is evictable as far as
// in-flight references are concerned).
func (r *RefHeap) SafeEvictionBoundary() (id uint64, ok bool) {
	if r.h.Len() == 0 {
		return 0, false
	}
	return r.h[0].minRef, true
}
