package arena

import (
	"context"
	"sync"
	"sync/atomic"
)

// tickWaiter is a suspended caller waiting for a tick number.
type tickWaiter struct {
	// at is the tick number the waiter is released on
	at uint64

	// done is closed when the waiter is released
	done chan struct{}

	// cancelled is set when the caller gave up waiting
	cancelled atomic.Bool

	// index is the heap index for efficient removal
	index int
}

// waiterQueue is a priority queue of tick waiters.
// It uses a binary heap for O(log n) insertion and removal.
type waiterQueue struct {
	mu     sync.Mutex
	heap   []*tickWaiter
	closed bool
}

func newWaiterQueue() *waiterQueue {
	return &waiterQueue{
		heap: make([]*tickWaiter, 0, 16),
	}
}

// compactHeap removes cancelled waiters and rebuilds the heap property.
func (q *waiterQueue) compactHeap() {
	write := 0
	for read := 0; read < len(q.heap); read++ {
		if !q.heap[read].cancelled.Load() {
			q.heap[write] = q.heap[read]
			q.heap[write].index = write
			write++
		}
	}

	for i := write; i < len(q.heap); i++ {
		q.heap[i] = nil
	}
	q.heap = q.heap[:write]

	for i := len(q.heap)/2 - 1; i >= 0; i-- {
		q.down(i, len(q.heap))
	}
}

// Push adds a waiter with periodic cleanup of cancelled entries.
// It reports false once ReleaseAll has run; w is then never released.
func (q *waiterQueue) Push(w *tickWaiter) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	if len(q.heap) > 100 && len(q.heap)%100 == 0 {
		q.compactHeap()
	}

	w.index = len(q.heap)
	q.heap = append(q.heap, w)
	q.up(w.index)
	return true
}

// ReleaseDue closes every waiter whose tick is at or before tick.
func (q *waiterQueue) ReleaseDue(tick uint64) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	released := 0
	for len(q.heap) > 0 && q.heap[0].at <= tick {
		w := q.pop()
		if !w.cancelled.Load() {
			released++
		}
		close(w.done)
	}
	return released
}

// ReleaseAll closes every waiter and rejects later pushes. Used when the
// scheduler stops.
func (q *waiterQueue) ReleaseAll() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true

	for _, w := range q.heap {
		close(w.done)
	}
	clear(q.heap)
	q.heap = q.heap[:0]
}

// Len returns the number of queued waiters.
func (q *waiterQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// pop removes and returns the earliest waiter. Caller must hold lock.
func (q *waiterQueue) pop() *tickWaiter {
	n := len(q.heap) - 1
	q.swap(0, n)
	q.down(0, n)
	w := q.heap[n]
	q.heap[n] = nil
	q.heap = q.heap[:n]
	w.index = -1
	return w
}

func (q *waiterQueue) up(i int) {
	for {
		parent := (i - 1) / 2
		if parent == i || q.heap[i].at >= q.heap[parent].at {
			break
		}
		q.swap(i, parent)
		i = parent
	}
}

func (q *waiterQueue) down(i, n int) {
	for {
		left := 2*i + 1
		if left >= n || left < 0 {
			break
		}
		j := left
		if right := left + 1; right < n && q.heap[right].at < q.heap[left].at {
			j = right
		}
		if q.heap[j].at >= q.heap[i].at {
			break
		}
		q.swap(i, j)
		i = j
	}
}

func (q *waiterQueue) swap(i, j int) {
	q.heap[i], q.heap[j] = q.heap[j], q.heap[i]
	q.heap[i].index = i
	q.heap[j].index = j
}

// Clock suspends callers on tick boundaries.
type Clock interface {
	// WaitTicks blocks until n more ticks have completed or ctx is done.
	WaitTicks(ctx context.Context, n int) error
}
