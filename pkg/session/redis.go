package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentcore-dev/agentcore/pkg/fault"
)

// RedisBackend stores sessions in Redis, suitable for multi-instance
// deployments that share one session space.
//
// Key layout:
//
//	{prefix}{id}           serialized Session, TTL = session TTL
//	{prefix}{id}:messages  list of serialized Messages
//	{prefix}{id}:events    list of serialized Events, trimmed to capacity
type RedisBackend struct {
	client        *redis.Client
	prefix        string
	ttl           time.Duration
	eventCapacity int64
	maxMessages   int64
}

// RedisOptions configures the Redis backend.
type RedisOptions struct {
	// Addr is the Redis server address (host:port).
	Addr string
	// Password is optional.
	Password string
	// DB is the Redis database number.
	DB int
	// Prefix defaults to "session:".
	Prefix string
	// TTL is applied to every session key (0 = never expire).
	TTL time.Duration
	// EventCapacity bounds the mirrored event list (default 256).
	EventCapacity int
	// MaxMessages bounds the message log (default 1000).
	MaxMessages int
}

// NewRedisBackend connects to Redis and verifies the connection.
func NewRedisBackend(opts RedisOptions) (*RedisBackend, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisBackendFromClient(client, opts), nil
}

// NewRedisBackendFromClient wraps an existing client. Useful for testing
// with miniredis.
func NewRedisBackendFromClient(client *redis.Client, opts RedisOptions) *RedisBackend {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "session:"
	}
	capacity := int64(opts.EventCapacity)
	if capacity <= 0 {
		capacity = 256
	}
	maxMessages := int64(opts.MaxMessages)
	if maxMessages <= 0 {
		maxMessages = 1000
	}
	return &RedisBackend{
		client:        client,
		prefix:        prefix,
		ttl:           opts.TTL,
		eventCapacity: capacity,
		maxMessages:   maxMessages,
	}
}

func (b *RedisBackend) sessionKey(id string) string  { return b.prefix + id }
func (b *RedisBackend) messagesKey(id string) string { return b.prefix + id + ":messages" }
func (b *RedisBackend) eventsKey(id string) string   { return b.prefix + id + ":events" }

func (b *RedisBackend) SaveSession(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return b.client.Set(ctx, b.sessionKey(sess.ID), data, b.ttl).Err()
}

func (b *RedisBackend) LoadSession(ctx context.Context, sessionID string) (*Session, error) {
	data, err := b.client.Get(ctx, b.sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fault.New(fault.KindSessionNotFound, "session %s not found", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &sess, nil
}

func (b *RedisBackend) DeleteSession(ctx context.Context, sessionID string) error {
	return b.client.Del(ctx,
		b.sessionKey(sessionID),
		b.messagesKey(sessionID),
		b.eventsKey(sessionID),
	).Err()
}

func (b *RedisBackend) ListSessions(ctx context.Context) ([]*Session, error) {
	var sessions []*Session
	iter := b.client.Scan(ctx, 0, b.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		// Derived keys carry a suffix after the id.
		if strings.Contains(key[len(b.prefix):], ":") {
			continue
		}
		data, err := b.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var sess Session
		if err := json.Unmarshal(data, &sess); err != nil {
			continue
		}
		sessions = append(sessions, &sess)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (b *RedisBackend) AppendMessage(ctx context.Context, sessionID string, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	pipe := b.client.Pipeline()
	pipe.RPush(ctx, b.messagesKey(sessionID), data)
	pipe.LTrim(ctx, b.messagesKey(sessionID), -b.maxMessages, -1)
	if b.ttl > 0 {
		pipe.Expire(ctx, b.messagesKey(sessionID), b.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (b *RedisBackend) LoadMessages(ctx context.Context, sessionID string) ([]Message, error) {
	raw, err := b.client.LRange(ctx, b.messagesKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	msgs := make([]Message, 0, len(raw))
	for _, item := range raw {
		var msg Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (b *RedisBackend) AppendEvent(ctx context.Context, sessionID string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	pipe := b.client.Pipeline()
	pipe.RPush(ctx, b.eventsKey(sessionID), data)
	pipe.LTrim(ctx, b.eventsKey(sessionID), -b.eventCapacity, -1)
	if b.ttl > 0 {
		pipe.Expire(ctx, b.eventsKey(sessionID), b.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}
