package coordinator

import (
	"container/heap"
	"sync"
	"time"
)

// pendingItem is one buffered batch awaiting its turn in sequence order.
type pendingItem struct {
	seq      int64
	arrived  time.Time
	payload  any
	index    int
}

// seqHeap is a min-heap over pendingItem.seq, the bounded per-run priority
// queue described in §9 ("Reorder buffer is a per-run bounded priority
// queue keyed on sequence"). container/heap is stdlib; no third-party
// priority-queue library appears anywhere in the reference pack (see
// DESIGN.md).
type seqHeap []*pendingItem

func (h seqHeap) Len() int            { return len(h) }
func (h seqHeap) Less(i, j int) bool  { return h[i].seq < h[j].seq }
func (h seqHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *seqHeap) Push(x any)         { item := x.(*pendingItem); item.index = len(*h); *h = append(*h, item) }
func (h *seqHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// runWindow is one run's reorder state.
type runWindow struct {
	heap          seqHeap
	nextExpected  int64
	oldestArrival time.Time
}

// ReorderWindow buffers out-of-order batches per run, capped at maxSize
// batches or maxAge — whichever ends first — releasing contiguous prefixes
// for persistence as soon as the next-expected sequence appears, and
// releasing everything buffered as-is when the window closes.
type ReorderWindow struct {
	mu      sync.Mutex
	maxSize int
	maxAge  time.Duration
	windows map[string]*runWindow
}

// NewReorderWindow constructs a window with the given size/age caps.
func NewReorderWindow(maxSize int, maxAge time.Duration) *ReorderWindow {
	return &ReorderWindow{
		maxSize: maxSize,
		maxAge:  maxAge,
		windows: make(map[string]*runWindow),
	}
}

func (w *ReorderWindow) windowFor(runID string) *runWindow {
	rw, ok := w.windows[runID]
	if !ok {
		rw = &runWindow{}
		heap.Init(&rw.heap)
		w.windows[runID] = rw
	}
	return rw
}

// Submit records a batch at sequence seq and returns any payloads now ready
// for persistence in sequence order (the contiguous prefix starting at the
// run's next-expected sequence).
func (w *ReorderWindow) Submit(runID string, seq int64, payload any) (ready []any) {
	w.mu.Lock()
	defer w.mu.Unlock()

	rw := w.windowFor(runID)
	now := time.Now()

	if seq == rw.nextExpected {
		ready = append(ready, payload)
		rw.nextExpected++
		ready = append(ready, w.drainContiguousLocked(rw)...)
		return ready
	}

	item := &pendingItem{seq: seq, arrived: now, payload: payload}
	heap.Push(&rw.heap, item)
	if rw.oldestArrival.IsZero() {
		rw.oldestArrival = now
	}

	if rw.heap.Len() >= w.maxSize || now.Sub(rw.oldestArrival) >= w.maxAge {
		ready = append(ready, w.flushLocked(rw)...)
	}
	return ready
}

// drainContiguousLocked pops items off the heap while their sequence
// matches rw.nextExpected.
func (w *ReorderWindow) drainContiguousLocked(rw *runWindow) []any {
	var out []any
	for rw.heap.Len() > 0 && rw.heap[0].seq == rw.nextExpected {
		item := heap.Pop(&rw.heap).(*pendingItem)
		out = append(out, item.payload)
		rw.nextExpected++
	}
	if rw.heap.Len() == 0 {
		rw.oldestArrival = time.Time{}
	}
	return out
}

// flushLocked releases everything currently buffered, in sequence order,
// and advances next-expected past the highest released sequence — the
// "released as-is when the window closes" behavior of §4.5.
func (w *ReorderWindow) flushLocked(rw *runWindow) []any {
	var out []any
	var lastSeq int64 = -1
	for rw.heap.Len() > 0 {
		item := heap.Pop(&rw.heap).(*pendingItem)
		out = append(out, item.payload)
		lastSeq = item.seq
	}
	if lastSeq >= rw.nextExpected {
		rw.nextExpected = lastSeq + 1
	}
	rw.oldestArrival = time.Time{}
	return out
}

// FlushAged force-releases any run window whose oldest buffered item has
// exceeded maxAge. Called periodically by the coordinator alongside the
// heartbeat watchdog.
func (w *ReorderWindow) FlushAged() map[string][]any {
	w.mu.Lock()
	defer w.mu.Unlock()

	released := make(map[string][]any)
	now := time.Now()
	for runID, rw := range w.windows {
		if rw.heap.Len() > 0 && now.Sub(rw.oldestArrival) >= w.maxAge {
			released[runID] = w.flushLocked(rw)
		}
	}
	return released
}

// Forget drops a run's window state, used once a run reaches a terminal
// status.
func (w *ReorderWindow) Forget(runID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.windows, runID)
}
