package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// eventQueue is a bounded, ordering-preserving queue with blocking
// reads. Multiple writers (scheduler, streaming layer, cancellation
// paths) enqueue under one lock; sequence numbers are assigned at
// enqueue so delivery order equals enqueue order.
type eventQueue struct {
	mu       sync.Mutex
	events   []Event
	nextSeq  uint64
	capacity int
	notify   chan struct{}
	closed   bool
}

func newEventQueue(capacity int) *eventQueue {
	return &eventQueue{
		capacity: capacity,
		nextSeq:  1,
		notify:   make(chan struct{}),
	}
}

// enqueue appends the event, dropping the oldest non-terminal event on
// overflow and recording a backpressure marker in its place. Returns
// true if a drop occurred.
func (q *eventQueue) enqueue(ev Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}

	ev.Seq = q.nextSeq
	q.nextSeq++
	q.events = append(q.events, ev)

	dropped := false
	if len(q.events) > q.capacity {
		// Find the oldest droppable event. Terminal events and
		// backpressure markers survive.
		for i, old := range q.events {
			if old.Type.Terminal() || old.Type == EventBackpressure {
				continue
			}
			q.events = append(q.events[:i], q.events[i+1:]...)
			dropped = true
			break
		}
		if dropped {
			bp := Event{
				ID:        uuid.New().String(),
				Seq:       q.nextSeq,
				Type:      EventBackpressure,
				Payload:   map[string]any{"reason": "event queue overflow"},
				Timestamp: time.Now().UTC(),
			}
			q.nextSeq++
			q.events = append(q.events, bp)
			// Drop again if the marker pushed us back over.
			if len(q.events) > q.capacity {
				for i, old := range q.events {
					if old.Type.Terminal() || old.Type == EventBackpressure {
						continue
					}
					q.events = append(q.events[:i], q.events[i+1:]...)
					break
				}
			}
		}
	}

	close(q.notify)
	q.notify = make(chan struct{})
	return dropped
}

// wait blocks until events with Seq > since exist, then returns them in
// order plus the highest sequence delivered.
func (q *eventQueue) wait(ctx context.Context, since uint64) ([]Event, uint64, error) {
	for {
		q.mu.Lock()
		if q.closed && len(q.pendingLocked(since)) == 0 {
			q.mu.Unlock()
			return nil, since, context.Canceled
		}
		pending := q.pendingLocked(since)
		if len(pending) > 0 {
			cursor := pending[len(pending)-1].Seq
			q.mu.Unlock()
			return pending, cursor, nil
		}
		ch := q.notify
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, since, ctx.Err()
		case <-ch:
		}
	}
}

func (q *eventQueue) pendingLocked(since uint64) []Event {
	var out []Event
	for _, ev := range q.events {
		if ev.Seq > since {
			out = append(out, ev)
		}
	}
	return out
}

func (q *eventQueue) shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.notify)
	q.notify = make(chan struct{})
}
