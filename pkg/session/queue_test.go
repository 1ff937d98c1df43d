package session

import (
	"context"
	"testing"
)

func TestQueueOverflowDropsOldestNonTerminal(t *testing.T) {
	q := newEventQueue(4)

	q.enqueue(Event{Type: EventStatus, Payload: map[string]any{"i": 0}})
	q.enqueue(Event{Type: EventComplete})
	q.enqueue(Event{Type: EventStatus, Payload: map[string]any{"i": 2}})
	q.enqueue(Event{Type: EventStatus, Payload: map[string]any{"i": 3}})
	dropped := q.enqueue(Event{Type: EventStatus, Payload: map[string]any{"i": 4}})

	if !dropped {
		t.Fatal("expected a drop on overflow")
	}

	events, _, err := q.wait(context.Background(), 0)
	if err != nil {
		t.Fatalf("wait() error = %v", err)
	}

	var sawComplete, sawBackpressure, sawFirst bool
	for _, ev := range events {
		switch ev.Type {
		case EventComplete:
			sawComplete = true
		case EventBackpressure:
			sawBackpressure = true
		case EventStatus:
			if ev.Payload["i"] == 0 {
				sawFirst = true
			}
		}
	}
	if !sawComplete {
		t.Error("terminal event must never be dropped")
	}
	if !sawBackpressure {
		t.Error("overflow must record a backpressure event")
	}
	if sawFirst {
		t.Error("oldest non-terminal event should have been dropped")
	}
}

func TestQueueSequencesMonotonic(t *testing.T) {
	q := newEventQueue(16)
	for i := 0; i < 10; i++ {
		q.enqueue(Event{Type: EventStatus})
	}
	events, cursor, err := q.wait(context.Background(), 0)
	if err != nil {
		t.Fatalf("wait() error = %v", err)
	}
	var last uint64
	for _, ev := range events {
		if ev.Seq <= last {
			t.Fatalf("sequence not strictly increasing: %d after %d", ev.Seq, last)
		}
		last = ev.Seq
	}
	if cursor != last {
		t.Errorf("cursor = %d, want %d", cursor, last)
	}
}

func TestQueueShutdownUnblocksWaiters(t *testing.T) {
	q := newEventQueue(4)
	done := make(chan error, 1)
	go func() {
		_, _, err := q.wait(context.Background(), 0)
		done <- err
	}()
	q.shutdown()
	if err := <-done; err == nil {
		t.Fatal("expected error after shutdown")
	}
}
