package engine

import "sync"

// Queue is one bounded-concurrency worker lane. Submitted units run on
// their own goroutine but at most `slots` of them execute at a time, so
// the number of live upscaler processes stays bounded.
type Queue struct {
	slots chan struct{}
}

// Submit schedules fn. It returns immediately; fn runs once a worker
// slot frees up and blocks that slot until it returns.
func (q *Queue) Submit(fn func()) {
	go func() {
		q.slots <- struct{}{}
		defer func() { <-q.slots }()
		fn()
	}()
}

// QueueManager owns a small fixed set of long-lived queues shared by all
// batches. Allocation books a batch's expected item count against the
// least-loaded queue; the booking is released only when the whole batch
// completes, which is a coarse balancing heuristic rather than a
// work-stealing scheduler.
type QueueManager struct {
	mu     sync.Mutex
	queues []*Queue
	counts []int
	next   int
}

// NewQueueManager creates numQueues queues with slotsPerQueue concurrent
// workers each.
func NewQueueManager(numQueues, slotsPerQueue int) *QueueManager {
	if numQueues < 1 {
		numQueues = 1
	}
	if slotsPerQueue < 1 {
		slotsPerQueue = 1
	}
	m := &QueueManager{
		queues: make([]*Queue, numQueues),
		counts: make([]int, numQueues),
	}
	for i := range m.queues {
		m.queues[i] = &Queue{slots: make(chan struct{}, slotsPerQueue)}
	}
	return m
}

// Allocate picks the queue with the fewest booked items, breaking ties
// with a rotating pointer, and books count against it.
func (m *QueueManager) Allocate(count int) *Queue {
	m.mu.Lock()
	defer m.mu.Unlock()

	best := -1
	for off := 0; off < len(m.counts); off++ {
		i := (m.next + 1 + off) % len(m.counts)
		if best == -1 || m.counts[i] < m.counts[best] {
			best = i
		}
	}
	m.next = best
	m.counts[best] += count
	return m.queues[best]
}

// Release returns a completed batch's booking to the queue.
func (m *QueueManager) Release(q *Queue, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, queue := range m.queues {
		if queue == q {
			m.counts[i] -= count
			if m.counts[i] < 0 {
				m.counts[i] = 0
			}
			return
		}
	}
}

// Counts returns a snapshot of the per-queue bookings.
func (m *QueueManager) Counts() []int {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]int, len(m.counts))
	copy(out, m.counts)
	return out
}
