package session

import (
	"context"
	"testing"
	"time"

	"github.com/agentcore-dev/agentcore/pkg/fault"
	"github.com/agentcore-dev/agentcore/pkg/telemetry"
)

func newTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = telemetry.NewNopLogger()
	}
	store := NewStore(NewMemoryBackend(), opts)
	t.Cleanup(func() { _ = store.Shutdown() })
	return store
}

func TestCreateAndGet(t *testing.T) {
	store := newTestStore(t, Options{})
	ctx := context.Background()

	sess, err := store.Create(ctx, "user-1", map[string]any{"origin": "test"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if sess.Status != StatusIdle {
		t.Errorf("Status = %v, want idle", sess.Status)
	}
	if sess.LastTouched.Before(sess.CreatedAt) {
		t.Error("last-touched must be >= creation")
	}

	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.UserID != "user-1" {
		t.Errorf("UserID = %v, want user-1", got.UserID)
	}
}

func TestGetMissing(t *testing.T) {
	store := newTestStore(t, Options{})
	_, err := store.Get(context.Background(), "nope")
	if !fault.Is(err, fault.KindSessionNotFound) {
		t.Errorf("expected SessionNotFound, got %v", err)
	}
}

func TestAppendMessage(t *testing.T) {
	store := newTestStore(t, Options{})
	ctx := context.Background()
	sess, _ := store.Create(ctx, "", nil)

	if err := store.AppendMessage(ctx, sess.ID, Message{Role: RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}
	if err := store.AppendMessage(ctx, sess.ID, Message{Role: RoleAgent, Content: "hello"}); err != nil {
		t.Fatalf("AppendMessage() error = %v", err)
	}

	history, err := store.History(ctx, sess.ID)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(history))
	}
	if history[0].Content != "hi" || history[1].Content != "hello" {
		t.Error("messages out of order")
	}
	if history[0].ID == "" {
		t.Error("message id should be assigned")
	}
}

func TestAppendMessageClosedSession(t *testing.T) {
	store := newTestStore(t, Options{})
	ctx := context.Background()
	sess, _ := store.Create(ctx, "", nil)
	if err := store.Close(ctx, sess.ID); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	err := store.AppendMessage(ctx, sess.ID, Message{Role: RoleUser, Content: "late"})
	if !fault.Is(err, fault.KindSessionClosed) {
		t.Errorf("expected SessionClosed, got %v", err)
	}
}

func TestCloseEmitsTerminalEvent(t *testing.T) {
	store := newTestStore(t, Options{})
	ctx := context.Background()
	sess, _ := store.Create(ctx, "", nil)

	if err := store.Close(ctx, sess.ID); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	events, _, err := store.DequeueEvents(ctx, sess.ID, 0)
	if err != nil {
		t.Fatalf("DequeueEvents() error = %v", err)
	}
	if len(events) != 1 || events[0].Type != EventClosed {
		t.Fatalf("expected single closed event, got %+v", events)
	}
	// Close is idempotent and emits no second event.
	if err := store.Close(ctx, sess.ID); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}

func TestCloseCancelsInFlight(t *testing.T) {
	store := newTestStore(t, Options{})
	ctx := context.Background()
	sess, _ := store.Create(ctx, "", nil)

	reqCtx, cancel := context.WithCancel(ctx)
	store.RegisterCancel(sess.ID, cancel)

	if err := store.Close(ctx, sess.ID); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	select {
	case <-reqCtx.Done():
	case <-time.After(time.Second):
		t.Fatal("close did not cancel in-flight context")
	}
}

func TestExpiredSessionNotReturned(t *testing.T) {
	store := newTestStore(t, Options{TTL: 10 * time.Millisecond, IdleTimeout: time.Hour})
	ctx := context.Background()
	sess, _ := store.Create(ctx, "", nil)

	time.Sleep(30 * time.Millisecond)
	_, err := store.Get(ctx, sess.ID)
	if !fault.Is(err, fault.KindSessionExpired) {
		t.Errorf("expected SessionExpired, got %v", err)
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	store := newTestStore(t, Options{TTL: 10 * time.Millisecond, IdleTimeout: time.Hour})
	ctx := context.Background()
	sess, _ := store.Create(ctx, "", nil)

	time.Sleep(30 * time.Millisecond)
	removed := store.Sweep(ctx)
	if removed != 1 {
		t.Errorf("Sweep() removed %d, want 1", removed)
	}
	if _, err := store.Get(ctx, sess.ID); !fault.Is(err, fault.KindSessionNotFound) {
		t.Errorf("expected SessionNotFound after sweep, got %v", err)
	}
}

func TestDequeueBlocksUntilEnqueue(t *testing.T) {
	store := newTestStore(t, Options{})
	ctx := context.Background()
	sess, _ := store.Create(ctx, "", nil)

	type result struct {
		events []Event
		cursor uint64
		err    error
	}
	done := make(chan result, 1)
	go func() {
		events, cursor, err := store.DequeueEvents(ctx, sess.ID, 0)
		done <- result{events, cursor, err}
	}()

	time.Sleep(20 * time.Millisecond)
	if err := store.EnqueueEvent(ctx, sess.ID, Event{Type: EventStatus, Payload: map[string]any{"phase": "planning"}}); err != nil {
		t.Fatalf("EnqueueEvent() error = %v", err)
	}

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("DequeueEvents() error = %v", r.err)
		}
		if len(r.events) != 1 || r.events[0].Type != EventStatus {
			t.Fatalf("unexpected events: %+v", r.events)
		}
		if r.cursor != r.events[0].Seq {
			t.Error("cursor should equal last delivered sequence")
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not wake up")
	}
}

func TestDequeueCancellation(t *testing.T) {
	store := newTestStore(t, Options{})
	sess, _ := store.Create(context.Background(), "", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err := store.DequeueEvents(ctx, sess.ID, 0)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestEventOrderingAndCursor(t *testing.T) {
	store := newTestStore(t, Options{})
	ctx := context.Background()
	sess, _ := store.Create(ctx, "", nil)

	for i := 0; i < 5; i++ {
		_ = store.EnqueueEvent(ctx, sess.ID, Event{Type: EventStatus, Payload: map[string]any{"i": i}})
	}
	events, cursor, err := store.DequeueEvents(ctx, sess.ID, 0)
	if err != nil {
		t.Fatalf("DequeueEvents() error = %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].Seq <= events[i-1].Seq {
			t.Fatal("events not in sequence order")
		}
	}

	// Resuming from the cursor yields only newer events.
	_ = store.EnqueueEvent(ctx, sess.ID, Event{Type: EventComplete})
	more, _, err := store.DequeueEvents(ctx, sess.ID, cursor)
	if err != nil {
		t.Fatalf("DequeueEvents(resume) error = %v", err)
	}
	if len(more) != 1 || more[0].Type != EventComplete {
		t.Fatalf("resume returned %+v", more)
	}
}
