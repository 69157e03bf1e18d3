package engine

import (
	"reflect"
	"sync"
	"testing"
	"time"
)

func TestAllocatePicksLeastLoaded(t *testing.T) {
	m := NewQueueManager(3, 1)

	m.Allocate(5)
	m.Allocate(2)
	m.Allocate(7)
	if got, want := m.Counts(), []int{7, 5, 2}; !reflect.DeepEqual(got, want) {
		t.Fatalf("counts = %v, want %v", got, want)
	}

	q := m.Allocate(4)
	if got, want := m.Counts(), []int{7, 5, 6}; !reflect.DeepEqual(got, want) {
		t.Fatalf("counts after allocate = %v, want %v", got, want)
	}
	if q != m.queues[2] {
		t.Fatal("batch was not booked against the least-loaded queue")
	}
}

func TestAllocateRotatesOnTies(t *testing.T) {
	m := NewQueueManager(3, 1)

	seen := map[*Queue]bool{}
	seen[m.Allocate(1)] = true
	seen[m.Allocate(1)] = true
	seen[m.Allocate(1)] = true
	if len(seen) != 3 {
		t.Fatalf("equal-load allocations landed on %d distinct queues, want 3", len(seen))
	}
}

func TestReleaseReturnsBooking(t *testing.T) {
	m := NewQueueManager(2, 1)

	q := m.Allocate(3)
	m.Release(q, 3)
	for i, n := range m.Counts() {
		if n != 0 {
			t.Fatalf("queue %d still booked with %d after release", i, n)
		}
	}

	// Releasing more than was booked clamps at zero.
	q = m.Allocate(1)
	m.Release(q, 5)
	for i, n := range m.Counts() {
		if n != 0 {
			t.Fatalf("queue %d count = %d after over-release", i, n)
		}
	}
}

func TestSubmitBoundsConcurrency(t *testing.T) {
	m := NewQueueManager(1, 2)
	q := m.Allocate(8)

	var mu sync.Mutex
	running, peak := 0, 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		q.Submit(func() {
			defer wg.Done()
			mu.Lock()
			running++
			if running > peak {
				peak = running
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)

			mu.Lock()
			running--
			mu.Unlock()
		})
	}
	wg.Wait()

	if peak > 2 {
		t.Fatalf("observed %d concurrent units, want at most 2", peak)
	}
	if peak == 0 {
		t.Fatal("no unit ever ran")
	}
}
