package orchestrator

import (
	"container/heap"
	"sync"

	"eduvid/internal/types"
)

// queueItem is one pending submission waiting for a worker slot.
type queueItem struct {
	jobID    string
	priority types.Priority
	seq      int64 // monotonic submission order, enforces FIFO within a priority tier
}

// itemHeap is a max-heap on priority, breaking ties by earliest seq —
// container/heap's documented pattern, generalized from the package's
// own PriorityQueue example to this job's (priority, seq) ordering.
type itemHeap []*queueItem

func (h itemHeap) Len() int { return len(h) }
func (h itemHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *itemHeap) Push(x any)   { *h = append(*h, x.(*queueItem)) }
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// PriorityQueue is a thread-safe strict-priority FIFO queue of job ids.
type PriorityQueue struct {
	mu   sync.Mutex
	heap itemHeap
	seq  int64
	cond *sync.Cond
	closed bool
}

// NewPriorityQueue builds an empty queue.
func NewPriorityQueue() *PriorityQueue {
	q := &PriorityQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues jobID at priority p.
func (q *PriorityQueue) Push(jobID string, p types.Priority) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	heap.Push(&q.heap, &queueItem{jobID: jobID, priority: p, seq: q.seq})
	q.cond.Signal()
}

// Pop blocks until an item is available or the queue is closed, in which
// case ok is false.
func (q *PriorityQueue) Pop() (jobID string, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.heap.Len() == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.heap.Len() == 0 {
		return "", false
	}
	item := heap.Pop(&q.heap).(*queueItem)
	return item.jobID, true
}

// Len reports the number of pending items.
func (q *PriorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// Close wakes every blocked Pop so workers can exit during shutdown.
func (q *PriorityQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}
