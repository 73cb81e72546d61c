package interview

import (
	"context"
	"sync"
)

// EventQueue is a bounded FIFO between a session and its outbound pump.
// Push never blocks: when full, the oldest audio chunk is dropped first, and
// only if none is queued the oldest event of any type.
type EventQueue struct {
	mu       sync.Mutex
	items    []Event
	capacity int
	dropped  int64
	notify   chan struct{}
}

func NewEventQueue(capacity int) *EventQueue {
	if capacity <= 0 {
		capacity = DefaultEventQueueSize
	}
	return &EventQueue{
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// Push appends ev and reports whether an older event was dropped for it.
func (q *EventQueue) Push(ev Event) (dropped bool) {
	q.mu.Lock()
	if len(q.items) >= q.capacity {
		idx := 0
		for i, item := range q.items {
			if item.Type == EventAudioChunk {
				idx = i
				break
			}
		}
		q.items = append(q.items[:idx], q.items[idx+1:]...)
		q.dropped++
		dropped = true
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return dropped
}

func (q *EventQueue) TryPop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Event{}, false
	}
	ev := q.items[0]
	q.items[0] = Event{}
	q.items = q.items[1:]
	return ev, true
}

// Pop blocks until an event is available or ctx is done.
func (q *EventQueue) Pop(ctx context.Context) (Event, error) {
	for {
		if ev, ok := q.TryPop(); ok {
			return ev, nil
		}
		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-q.notify:
		}
	}
}

// Ready is signaled after a Push. A single consumer should drain with TryPop
// after each signal.
func (q *EventQueue) Ready() <-chan struct{} { return q.notify }

func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *EventQueue) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
