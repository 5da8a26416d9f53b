package timing

import (
	"container/heap"
)

type queuedEvent struct {
	ScheduledEvent
	seq uint64
}

// eventHeap orders events by time, then by scheduling order.
type eventHeap []*queuedEvent

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].Time != h[j].Time {
		return h[i].Time < h[j].Time
	}

	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(*queuedEvent))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	evt := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]

	return evt
}

type eventQueue struct {
	events eventHeap
	seq    uint64
}

func newEventQueue() *eventQueue {
	q := &eventQueue{events: make(eventHeap, 0)}
	heap.Init(&q.events)

	return q
}

func (q *eventQueue) Push(evt ScheduledEvent) {
	q.seq++
	heap.Push(&q.events, &queuedEvent{ScheduledEvent: evt, seq: q.seq})
}

func (q *eventQueue) Pop() *queuedEvent {
	if len(q.events) == 0 {
		return nil
	}

	return heap.Pop(&q.events).(*queuedEvent)
}

func (q *eventQueue) Peek() *queuedEvent {
	if len(q.events) == 0 {
		return nil
	}

	return q.events[0]
}

func (q *eventQueue) Len() int {
	return len(q.events)
}
