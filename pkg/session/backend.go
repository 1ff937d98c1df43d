package session

import (
	"context"
)

// Backend persists session metadata and message logs. The event queues
// live in the Store; a Backend may additionally mirror events for
// multi-instance deployments.
//
// Backends must support atomic updates per key. The in-memory backend
// is sufficient for single-instance operation; the Redis backend is
// recommended when more than one core shares sessions.
type Backend interface {
	// SaveSession creates or replaces session metadata.
	SaveSession(ctx context.Context, sess *Session) error

	// LoadSession returns session metadata, or a fault error of kind
	// SessionNotFound.
	LoadSession(ctx context.Context, sessionID string) (*Session, error)

	// DeleteSession removes the session and all derived keys.
	DeleteSession(ctx context.Context, sessionID string) error

	// ListSessions returns a snapshot of all stored sessions.
	ListSessions(ctx context.Context) ([]*Session, error)

	// AppendMessage appends to the session's message log.
	AppendMessage(ctx context.Context, sessionID string, msg Message) error

	// LoadMessages returns the message log in append order.
	LoadMessages(ctx context.Context, sessionID string) ([]Message, error)

	// AppendEvent mirrors an event for late joiners on other instances.
	AppendEvent(ctx context.Context, sessionID string, ev Event) error

	// Close releases backend resources.
	Close() error
}
