package session

import (
	"context"
	"sync"

	"github.com/agentcore-dev/agentcore/pkg/fault"
)

// MemoryBackend is the in-process Backend used for single-instance
// operation and tests.
type MemoryBackend struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	messages map[string][]Message
	events   map[string][]Event
	closed   bool
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		sessions: make(map[string]*Session),
		messages: make(map[string][]Message),
		events:   make(map[string][]Event),
	}
}

func (b *MemoryBackend) SaveSession(ctx context.Context, sess *Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fault.New(fault.KindInternal, "session backend closed")
	}
	cp := *sess
	b.sessions[sess.ID] = &cp
	return nil
}

func (b *MemoryBackend) LoadSession(ctx context.Context, sessionID string) (*Session, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	sess, ok := b.sessions[sessionID]
	if !ok {
		return nil, fault.New(fault.KindSessionNotFound, "session %s not found", sessionID)
	}
	cp := *sess
	return &cp, nil
}

func (b *MemoryBackend) DeleteSession(ctx context.Context, sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, sessionID)
	delete(b.messages, sessionID)
	delete(b.events, sessionID)
	return nil
}

func (b *MemoryBackend) ListSessions(ctx context.Context) ([]*Session, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Session, 0, len(b.sessions))
	for _, sess := range b.sessions {
		cp := *sess
		out = append(out, &cp)
	}
	return out, nil
}

func (b *MemoryBackend) AppendMessage(ctx context.Context, sessionID string, msg Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.sessions[sessionID]; !ok {
		return fault.New(fault.KindSessionNotFound, "session %s not found", sessionID)
	}
	b.messages[sessionID] = append(b.messages[sessionID], msg)
	return nil
}

func (b *MemoryBackend) LoadMessages(ctx context.Context, sessionID string) ([]Message, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	msgs := b.messages[sessionID]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (b *MemoryBackend) AppendEvent(ctx context.Context, sessionID string, ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[sessionID] = append(b.events[sessionID], ev)
	return nil
}

func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
