package scheduler

import (
	"container/heap"
	"context"
	"sync"

	"github.com/hupe1980/infermesh/core"
)

// queueItem is one pending task in a dispatch queue. Higher weight runs
// first; equal weights run in submission order.
type queueItem struct {
	weight    int
	seq       uint64
	index     int
	cancelled bool
}

type itemHeap []*queueItem

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].weight != h[j].weight {
		return h[i].weight > h[j].weight
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap) Push(x any) {
	item := x.(*queueItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// dispatchQueue admits tasks by weight under a fixed concurrency bound.
// It is shared process-wide across all requests using the same strategy,
// so the bound is a global budget, not a per-request one.
type dispatchQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   itemHeap
	running int
	limit   int
	seq     uint64
}

func newDispatchQueue(limit int) *dispatchQueue {
	q := &dispatchQueue{limit: limit}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// submit enters the task into the queue and returns its pending item.
// Submission order is observable immediately: a caller that submits one
// item before another is guaranteed the earlier item wins equal-weight
// ties and, with a higher weight, is admitted first.
func (q *dispatchQueue) submit(weight int) *queueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	item := &queueItem{weight: weight, seq: q.seq}
	q.seq++
	heap.Push(&q.items, item)
	return item
}

// wait blocks until the submitted item is admitted by weight and
// capacity, executes fn, and releases the slot. A context cancelled
// before admission returns core.ErrTaskCancelled without running fn.
func (q *dispatchQueue) wait(ctx context.Context, item *queueItem, fn func()) error {
	admitted := make(chan struct{})
	go func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		for {
			if item.cancelled {
				return
			}
			if q.running < q.limit && len(q.items) > 0 && q.items[0] == item {
				heap.Pop(&q.items)
				q.running++
				close(admitted)
				// Wake the next waiter; capacity may remain.
				q.cond.Broadcast()
				return
			}
			q.cond.Wait()
		}
	}()

	select {
	case <-admitted:
	case <-ctx.Done():
		q.mu.Lock()
		item.cancelled = true
		if item.index >= 0 {
			heap.Remove(&q.items, item.index)
		}
		q.mu.Unlock()
		q.cond.Broadcast()

		// The admit goroutine may have won the race under its lock.
		select {
		case <-admitted:
			q.release()
		default:
		}
		return core.ErrTaskCancelled
	}

	fn()
	q.release()
	return nil
}

// run submits and waits in one step.
func (q *dispatchQueue) run(ctx context.Context, weight int, fn func()) error {
	return q.wait(ctx, q.submit(weight), fn)
}

func (q *dispatchQueue) release() {
	q.mu.Lock()
	q.running--
	q.mu.Unlock()
	q.cond.Broadcast()
}

// depth returns the number of waiting and running tasks.
func (q *dispatchQueue) depth() (waiting, running int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items), q.running
}

// newStrategyQueues builds the shared queue set, one bounded queue per
// dispatch strategy.
func newStrategyQueues() map[core.Strategy]*dispatchQueue {
	return map[core.Strategy]*dispatchQueue{
		core.StrategySerial:          newDispatchQueue(core.StrategySerial.Concurrency()),
		core.StrategyParallelLimited: newDispatchQueue(core.StrategyParallelLimited.Concurrency()),
		core.StrategyParallelFull:    newDispatchQueue(core.StrategyParallelFull.Concurrency()),
	}
}
