package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMirror replicates agent records to Redis under agent:{id}, with
// TTL equal to three heartbeat timeouts so dead agents disappear from
// the shared view without explicit cleanup.
type RedisMirror struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisMirror creates a mirror over an existing client.
func NewRedisMirror(client *redis.Client, heartbeatTimeout time.Duration) *RedisMirror {
	return &RedisMirror{
		client: client,
		prefix: "agent:",
		ttl:    3 * heartbeatTimeout,
	}
}

func (m *RedisMirror) Save(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal agent record: %w", err)
	}
	return m.client.Set(ctx, m.prefix+rec.ID, data, m.ttl).Err()
}

func (m *RedisMirror) Delete(ctx context.Context, id string) error {
	return m.client.Del(ctx, m.prefix+id).Err()
}
