package stream

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentcore-dev/agentcore/pkg/session"
	"github.com/agentcore-dev/agentcore/pkg/telemetry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Cross-origin policy is enforced by the fronting proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsClientFrame struct {
	Type      string         `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	Content   string         `json:"content,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}

type wsServerFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Status    string `json:"status,omitempty"`
	Message   any    `json:"message,omitempty"`
	Messages  any    `json:"messages,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// handleWebSocket is the bidirectional transport. The session id
// arrives as a query parameter; frames follow the JSON protocol:
// client sends message/ping/get_history/close, server replies with
// connected/status/message/history/pong/error/closing.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	writer := newWSWriter(conn)

	if _, err := s.store.Get(r.Context(), sessionID); err != nil {
		_ = writer.send(wsServerFrame{Type: "error", Error: "session not found"})
		return
	}
	_ = writer.send(wsServerFrame{Type: "connected", SessionID: sessionID})

	// Forward queue events so this transport sees the same ordering as
	// SSE consumers. The forwarder stops with the read loop.
	forwardCtx, cancelForward := context.WithCancel(r.Context())
	defer cancelForward()
	go s.forwardEvents(forwardCtx, writer, sessionID)

	for {
		var frame wsClientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			// Transport disconnect does not close the session.
			return
		}

		switch frame.Type {
		case "message":
			s.handleWSMessage(r, writer, sessionID, frame)

		case "ping":
			_ = writer.send(wsServerFrame{Type: "pong", Timestamp: time.Now().Unix()})

		case "get_history":
			history, err := s.store.History(r.Context(), sessionID)
			if err != nil {
				_ = writer.send(wsServerFrame{Type: "error", Error: err.Error()})
				continue
			}
			_ = writer.send(wsServerFrame{Type: "history", Messages: history})

		case "close":
			_ = writer.send(wsServerFrame{Type: "closing"})
			return

		default:
			_ = writer.send(wsServerFrame{Type: "error", Error: "unknown message type: " + frame.Type})
		}
	}
}

func (s *Server) handleWSMessage(r *http.Request, writer *wsWriter, sessionID string, frame wsClientFrame) {
	txn := s.transaction(r, sessionID)
	ctx := telemetry.WithTransaction(r.Context(), txn)

	_ = writer.send(wsServerFrame{Type: "status", Status: "thinking"})

	if err := s.store.AppendMessage(ctx, sessionID, session.Message{
		Role:    session.RoleUser,
		Content: frame.Content,
	}); err != nil {
		_ = writer.send(wsServerFrame{Type: "error", Error: err.Error()})
		return
	}

	result, err := s.scheduler.Process(ctx, sessionID, frame.Content, frame.Context)
	if err != nil {
		_ = writer.send(wsServerFrame{Type: "error", Error: err.Error()})
		return
	}
	_ = writer.send(wsServerFrame{Type: "message", Message: map[string]any{
		"role":           "agent",
		"result":         result,
		"transaction_id": txn.ID,
	}})
}

// forwardEvents relays queue events as status frames.
func (s *Server) forwardEvents(ctx context.Context, writer *wsWriter, sessionID string) {
	var cursor uint64
	for {
		events, next, err := s.store.DequeueEvents(ctx, sessionID, cursor)
		if err != nil {
			return
		}
		cursor = next
		for _, ev := range events {
			frame := wsServerFrame{Type: "status", Status: string(ev.Type), Message: ev.Payload}
			if err := writer.send(frame); err != nil {
				return
			}
			if ev.Type == session.EventClosed {
				return
			}
		}
	}
}

// wsWriter serializes concurrent frame writes.
type wsWriter struct {
	conn *websocket.Conn
	ch   chan wsServerFrame
}

func newWSWriter(conn *websocket.Conn) *wsWriter {
	w := &wsWriter{conn: conn, ch: make(chan wsServerFrame, 64)}
	go func() {
		for frame := range w.ch {
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		}
	}()
	return w
}

func (w *wsWriter) send(frame wsServerFrame) error {
	select {
	case w.ch <- frame:
		return nil
	default:
		return websocket.ErrCloseSent
	}
}
