package ami

import "sync"

// Call-state events must never be dropped; losing one corrupts the
// correlator's state machine. Status-style events are expendable under
// backpressure.
func isCallStateEvent(name string) bool {
	switch name {
	case "DialBegin", "DialEnd", "Hangup":
		return true
	}
	return false
}

// eventQueue is a bounded FIFO between the connection reader and the
// correlator loop. When full, the oldest droppable (non call-state)
// event is evicted; if every queued event is call-state, the queue grows
// past its bound rather than lose one.
type eventQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Event
	max    int
	closed bool
}

func newEventQueue(max int) *eventQueue {
	q := &eventQueue{max: max}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues an event, applying the drop policy when the queue is full.
// Returns the name of a dropped event, or "" if nothing was dropped.
func (q *eventQueue) Push(e Event) (dropped string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ""
	}

	if len(q.items) >= q.max {
		for i, queued := range q.items {
			if !isCallStateEvent(queued.Name()) {
				dropped = queued.Name()
				q.items = append(q.items[:i], q.items[i+1:]...)
				break
			}
		}
	}

	q.items = append(q.items, e)
	q.cond.Signal()
	return dropped
}

// Pop blocks until an event is available or the queue is closed.
// The second return is false once the queue is closed and drained.
func (q *eventQueue) Pop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	e := q.items[0]
	q.items = q.items[1:]
	return e, true
}

// Close wakes all waiters; queued events may still be drained.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
