package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/agentcore-dev/agentcore/pkg/fault"
)

func setupRedisBackend(t *testing.T) (*miniredis.Miniredis, *RedisBackend) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	backend := NewRedisBackendFromClient(client, RedisOptions{TTL: time.Hour})
	t.Cleanup(func() { _ = backend.Close() })
	return mr, backend
}

func TestRedisSaveLoadSession(t *testing.T) {
	_, backend := setupRedisBackend(t)
	ctx := context.Background()

	sess := &Session{
		ID:          "s1",
		UserID:      "u1",
		Status:      StatusIdle,
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
		LastTouched: time.Now().UTC().Truncate(time.Second),
	}
	if err := backend.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	got, err := backend.LoadSession(ctx, "s1")
	if err != nil {
		t.Fatalf("LoadSession() error = %v", err)
	}
	if got.UserID != "u1" || got.Status != StatusIdle {
		t.Errorf("loaded session = %+v", got)
	}
}

func TestRedisLoadMissingSession(t *testing.T) {
	_, backend := setupRedisBackend(t)
	_, err := backend.LoadSession(context.Background(), "absent")
	if !fault.Is(err, fault.KindSessionNotFound) {
		t.Errorf("expected SessionNotFound, got %v", err)
	}
}

func TestRedisMessagesRoundTrip(t *testing.T) {
	_, backend := setupRedisBackend(t)
	ctx := context.Background()

	sess := &Session{ID: "s1", Status: StatusIdle}
	if err := backend.SaveSession(ctx, sess); err != nil {
		t.Fatal(err)
	}
	for i, content := range []string{"first", "second", "third"} {
		msg := Message{ID: string(rune('a' + i)), Role: RoleUser, Content: content}
		if err := backend.AppendMessage(ctx, "s1", msg); err != nil {
			t.Fatalf("AppendMessage() error = %v", err)
		}
	}

	msgs, err := backend.LoadMessages(ctx, "s1")
	if err != nil {
		t.Fatalf("LoadMessages() error = %v", err)
	}
	if len(msgs) != 3 || msgs[0].Content != "first" || msgs[2].Content != "third" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestRedisDeleteSessionRemovesDerivedKeys(t *testing.T) {
	mr, backend := setupRedisBackend(t)
	ctx := context.Background()

	if err := backend.SaveSession(ctx, &Session{ID: "s1"}); err != nil {
		t.Fatal(err)
	}
	_ = backend.AppendMessage(ctx, "s1", Message{Content: "x"})
	_ = backend.AppendEvent(ctx, "s1", Event{Type: EventStatus, Seq: 1})

	if err := backend.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	for _, key := range []string{"session:s1", "session:s1:messages", "session:s1:events"} {
		if mr.Exists(key) {
			t.Errorf("key %s should be deleted", key)
		}
	}
}

func TestRedisTTLApplied(t *testing.T) {
	mr, backend := setupRedisBackend(t)
	ctx := context.Background()

	if err := backend.SaveSession(ctx, &Session{ID: "s1"}); err != nil {
		t.Fatal(err)
	}
	mr.FastForward(2 * time.Hour)
	if _, err := backend.LoadSession(ctx, "s1"); !fault.Is(err, fault.KindSessionNotFound) {
		t.Errorf("expected expiry after TTL, got %v", err)
	}
}

func TestRedisListSessionsSkipsDerivedKeys(t *testing.T) {
	_, backend := setupRedisBackend(t)
	ctx := context.Background()

	_ = backend.SaveSession(ctx, &Session{ID: "s1"})
	_ = backend.SaveSession(ctx, &Session{ID: "s2"})
	_ = backend.AppendMessage(ctx, "s1", Message{Content: "x"})

	sessions, err := backend.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(sessions) != 2 {
		t.Errorf("expected 2 sessions, got %d", len(sessions))
	}
}
