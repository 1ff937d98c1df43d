package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentcore-dev/agentcore/pkg/fault"
	"github.com/agentcore-dev/agentcore/pkg/telemetry"
)

// Store manages session lifecycle, message logs, and per-session event
// queues. Store is safe for concurrent use.
type Store struct {
	backend Backend
	logger  telemetry.Logger

	ttl      time.Duration
	idle     time.Duration
	capacity int

	mu      sync.RWMutex
	queues  map[string]*eventQueue
	cancels map[string][]context.CancelFunc
}

// Options configures the Store.
type Options struct {
	// TTL is the absolute session lifetime (default one hour).
	TTL time.Duration
	// IdleTimeout closes sessions without activity (default 30 minutes).
	IdleTimeout time.Duration
	// EventQueueCapacity bounds each session's queue (default 256).
	EventQueueCapacity int
	// Logger defaults to the standard sink.
	Logger telemetry.Logger
}

// NewStore creates a session store over the given backend.
func NewStore(backend Backend, opts Options) *Store {
	if opts.TTL == 0 {
		opts.TTL = time.Hour
	}
	if opts.IdleTimeout == 0 {
		opts.IdleTimeout = 30 * time.Minute
	}
	if opts.EventQueueCapacity == 0 {
		opts.EventQueueCapacity = 256
	}
	if opts.Logger == nil {
		opts.Logger = telemetry.NewStdLogger()
	}
	return &Store{
		backend:  backend,
		logger:   opts.Logger,
		ttl:      opts.TTL,
		idle:     opts.IdleTimeout,
		capacity: opts.EventQueueCapacity,
		queues:   make(map[string]*eventQueue),
		cancels:  make(map[string][]context.CancelFunc),
	}
}

// Create creates a new idle session.
func (s *Store) Create(ctx context.Context, userID string, metadata map[string]any) (*Session, error) {
	now := time.Now().UTC()
	sess := &Session{
		ID:          uuid.New().String(),
		UserID:      userID,
		Status:      StatusIdle,
		CreatedAt:   now,
		LastTouched: now,
		Metadata:    metadata,
	}
	if err := s.backend.SaveSession(ctx, sess); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.queues[sess.ID] = newEventQueue(s.capacity)
	s.mu.Unlock()
	return sess, nil
}

// Get retrieves a session, failing with SessionNotFound if absent and
// SessionExpired if its TTL has lapsed but the sweep has not yet run.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := s.backend.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != StatusClosed && sess.Expired(time.Now().UTC(), s.ttl, s.idle) {
		return nil, fault.New(fault.KindSessionExpired, "session %s expired", sessionID)
	}
	return sess, nil
}

// AppendMessage appends to the session log and updates last-touched.
// Fails with SessionClosed if the session is closed.
func (s *Store) AppendMessage(ctx context.Context, sessionID string, msg Message) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Status == StatusClosed {
		return fault.New(fault.KindSessionClosed, "session %s is closed", sessionID)
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	if err := s.backend.AppendMessage(ctx, sessionID, msg); err != nil {
		return err
	}
	sess.LastTouched = time.Now().UTC()
	return s.backend.SaveSession(ctx, sess)
}

// History returns the session's message log in append order.
func (s *Store) History(ctx context.Context, sessionID string) ([]Message, error) {
	if _, err := s.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.backend.LoadMessages(ctx, sessionID)
}

// SetStatus transitions the session status. Closed is terminal; use
// Close for that transition.
func (s *Store) SetStatus(ctx context.Context, sessionID string, status Status) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Status == StatusClosed {
		return fault.New(fault.KindSessionClosed, "session %s is closed", sessionID)
	}
	sess.Status = status
	sess.LastTouched = time.Now().UTC()
	return s.backend.SaveSession(ctx, sess)
}

// EnqueueEvent pushes an event to the session's queue. The queue is
// bounded: on overflow the oldest non-terminal event is dropped and a
// backpressure event is recorded. Terminal events are never dropped.
func (s *Store) EnqueueEvent(ctx context.Context, sessionID string, ev Event) error {
	q := s.queue(sessionID)
	if q == nil {
		return fault.New(fault.KindSessionNotFound, "session %s not found", sessionID)
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	dropped := q.enqueue(ev)
	if dropped {
		s.logger.Warn(ctx, "session event queue overflow", "session_id", sessionID)
	}
	// Mirror for late joiners on other instances; queue delivery is
	// the ordering source of truth.
	if err := s.backend.AppendEvent(ctx, sessionID, ev); err != nil {
		s.logger.Warn(ctx, "event mirror failed", "session_id", sessionID, "error", err)
	}
	return nil
}

// DequeueEvents blocks until events with sequence > sinceCursor are
// available, returning them in order plus the new cursor. It returns
// when the context is cancelled. Late joiners see only events still in
// the queue window.
func (s *Store) DequeueEvents(ctx context.Context, sessionID string, sinceCursor uint64) ([]Event, uint64, error) {
	q := s.queue(sessionID)
	if q == nil {
		return nil, sinceCursor, fault.New(fault.KindSessionNotFound, "session %s not found", sessionID)
	}
	return q.wait(ctx, sinceCursor)
}

// RegisterCancel records a cancellation hook invoked when the session
// closes. The scheduler registers per-request cancel functions here so
// closure aborts in-flight work.
func (s *Store) RegisterCancel(sessionID string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels[sessionID] = append(s.cancels[sessionID], cancel)
}

// Close transitions the session to closed, flushes a closed terminal
// event, and cancels in-flight work. The next Sweep deletes it.
func (s *Store) Close(ctx context.Context, sessionID string) error {
	sess, err := s.backend.LoadSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Status == StatusClosed {
		return nil
	}
	sess.Status = StatusClosed
	sess.LastTouched = time.Now().UTC()
	if err := s.backend.SaveSession(ctx, sess); err != nil {
		return err
	}

	_ = s.EnqueueEvent(ctx, sessionID, Event{Type: EventClosed})

	s.mu.Lock()
	cancels := s.cancels[sessionID]
	delete(s.cancels, sessionID)
	s.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	return nil
}

// Sweep removes closed sessions and sessions whose absolute TTL or idle
// timeout is exceeded. Run from the maintenance scheduler at a fixed
// interval.
func (s *Store) Sweep(ctx context.Context) int {
	sessions, err := s.backend.ListSessions(ctx)
	if err != nil {
		s.logger.Error(ctx, "session sweep failed", "error", err)
		return 0
	}
	now := time.Now().UTC()
	removed := 0
	for _, sess := range sessions {
		expired := sess.Expired(now, s.ttl, s.idle)
		if !expired && sess.Status != StatusClosed {
			continue
		}
		if sess.Status != StatusClosed && expired {
			_ = s.Close(ctx, sess.ID)
		}
		if err := s.backend.DeleteSession(ctx, sess.ID); err != nil {
			continue
		}
		s.mu.Lock()
		if q, ok := s.queues[sess.ID]; ok {
			q.shutdown()
			delete(s.queues, sess.ID)
		}
		s.mu.Unlock()
		removed++
	}
	return removed
}

// Shutdown closes every queue and the backend.
func (s *Store) Shutdown() error {
	s.mu.Lock()
	for _, q := range s.queues {
		q.shutdown()
	}
	s.queues = make(map[string]*eventQueue)
	s.mu.Unlock()
	return s.backend.Close()
}

func (s *Store) queue(sessionID string) *eventQueue {
	s.mu.RLock()
	q, ok := s.queues[sessionID]
	s.mu.RUnlock()
	if ok {
		return q
	}
	// The session may live in a shared backend written by another
	// instance; adopt it with a fresh queue.
	if _, err := s.backend.LoadSession(context.Background(), sessionID); err != nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.queues[sessionID]; ok {
		return q
	}
	q = newEventQueue(s.capacity)
	s.queues[sessionID] = q
	return q
}
