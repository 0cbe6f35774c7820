package admission

import (
	"container/heap"
	"time"

	"github.com/agentmesh/substrate/types"
)

// taskEnvelope is the scheduler-owned wrapper around a submitted Task,
// mirroring bus.envelope. It holds its own copy of the Task; the only field
// of that copy rewritten after submission is Priority (reprioritizeOriginator).
type taskEnvelope struct {
	task       Task
	seq        uint64
	enqueuedAt time.Time
	attempt    int
	lastErr    error
	handle     *Handle
}

// taskHeap orders envelopes by descending priority, then ascending arrival
// sequence, the same rule the Message Bus's holding area uses.
type taskHeap []*taskEnvelope

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	pi, pj := h[i].task.Priority, h[j].task.Priority
	if pi != pj {
		return pi > pj
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(*taskEnvelope)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

type taskQueue struct {
	h taskHeap
}

func newTaskQueue() *taskQueue {
	q := &taskQueue{}
	heap.Init(&q.h)
	return q
}

func (q *taskQueue) push(e *taskEnvelope) { heap.Push(&q.h, e) }

func (q *taskQueue) pop() *taskEnvelope {
	if q.h.Len() == 0 {
		return nil
	}
	return heap.Pop(&q.h).(*taskEnvelope)
}

func (q *taskQueue) len() int { return q.h.Len() }

// reprioritizeOriginator updates the priority of every queued task
// submitted by originatorID and restores the heap invariant. Used by
// setPriorityForUser; O(n) in queue depth, acceptable since it is an
// operator action, not a hot path.
func (q *taskQueue) reprioritizeOriginator(originatorID string, p types.Priority) int {
	changed := 0
	for _, e := range q.h {
		if e.task.OriginatorID == originatorID {
			e.task.Priority = p
			changed++
		}
	}
	if changed > 0 {
		heap.Init(&q.h)
	}
	return changed
}

// snapshot returns queued envelopes without removing them, for details().
func (q *taskQueue) snapshot() []*taskEnvelope {
	out := make([]*taskEnvelope, len(q.h))
	copy(out, q.h)
	return out
}
