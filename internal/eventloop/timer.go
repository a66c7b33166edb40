package eventloop

import "time"

// timerEntry is one scheduled one-shot timer, ordered by expiry in timerHeap.
type timerEntry struct {
	id     int64
	expiry time.Time
	cb     Callback
	user   any
}

// timerHeap is a container/heap min-heap keyed by expiry — the straightforward
// improvement over a flat-array scan that §9's Design Notes call out as
// acceptable-but-optional; taken here since MaxLiveTimers keeps either
// representation small but the heap keeps firing order exact without a scan.
type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].expiry.Before(h[j].expiry) }
func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) {
	*h = append(*h, x.(*timerEntry))
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
