package registry

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisMirrorSaveAppliesTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mirror := NewRedisMirror(client, 30*time.Second)
	ctx := context.Background()

	rec := &Record{ID: "a1", Name: "w1", Capabilities: []string{"search"}, LastHeartbeat: time.Now().UTC()}
	if err := mirror.Save(ctx, rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, err := client.Get(ctx, "agent:a1").Bytes()
	if err != nil {
		t.Fatalf("mirrored record missing: %v", err)
	}
	var got Record
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Name != "w1" {
		t.Errorf("mirrored record = %+v", got)
	}

	// TTL is three heartbeat timeouts; a dead agent vanishes.
	mr.FastForward(2 * time.Minute)
	if mr.Exists("agent:a1") {
		t.Error("record should expire after 3x heartbeat timeout")
	}
}

func TestRedisMirrorDelete(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mirror := NewRedisMirror(client, 30*time.Second)
	ctx := context.Background()

	_ = mirror.Save(ctx, &Record{ID: "a1", Name: "w1"})
	if err := mirror.Delete(ctx, "a1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if mr.Exists("agent:a1") {
		t.Error("record should be deleted")
	}
}
