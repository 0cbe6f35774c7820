package bus

import "container/heap"

// envelopeHeap orders envelopes by descending priority, then by ascending
// enqueue sequence (FIFO within a priority band), matching spec.md §4.1's
// "highest priority first, ties broken by arrival order" rule. It implements
// container/heap.Interface directly, following the teacher's preference for
// container/heap over a hand-rolled tree (llm/router.go uses the same
// stdlib-heap idiom for its candidate scoring).
type envelopeHeap []*envelope

func (h envelopeHeap) Len() int { return len(h) }

func (h envelopeHeap) Less(i, j int) bool {
	pi, pj := h[i].msg.Priority, h[j].msg.Priority
	if pi != pj {
		return pi > pj
	}
	return h[i].seq < h[j].seq
}

func (h envelopeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *envelopeHeap) Push(x any) {
	*h = append(*h, x.(*envelope))
}

func (h *envelopeHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// holdingArea wraps envelopeHeap with the push/pop verbs the dispatcher uses,
// keeping container/heap's interface satisfaction private to this file.
type holdingArea struct {
	h envelopeHeap
}

func newHoldingArea() *holdingArea {
	ha := &holdingArea{}
	heap.Init(&ha.h)
	return ha
}

func (ha *holdingArea) push(e *envelope) {
	heap.Push(&ha.h, e)
}

func (ha *holdingArea) pop() *envelope {
	if ha.h.Len() == 0 {
		return nil
	}
	return heap.Pop(&ha.h).(*envelope)
}

func (ha *holdingArea) len() int {
	return ha.h.Len()
}
